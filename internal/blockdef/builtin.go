package blockdef

// standardDefinitions is the built-in block set: enough control flow,
// logic, math, and text blocks for a usable default palette. Applications
// extend it with LoadJSON.
func standardDefinitions() []*Definition {
	stmt := &SocketDef{}
	return []*Definition{
		{
			Type:     "controls_repeat",
			Colour:   120,
			Tooltip:  "Run the enclosed statements a fixed number of times",
			Previous: stmt,
			Next:     stmt,
			Fields:   []FieldDef{{Name: "TIMES", Kind: "number", Value: "10"}},
			Inputs:   []InputDef{{Name: "DO", Kind: "statement"}},
		},
		{
			Type:     "controls_if",
			Colour:   120,
			Previous: stmt,
			Next:     stmt,
			Inputs: []InputDef{
				{Name: "IF0", Kind: "value", Checks: []string{"Boolean"}},
				{Name: "DO0", Kind: "statement"},
			},
		},
		{
			Type:    "logic_boolean",
			Colour:  210,
			Output:  &SocketDef{Checks: []string{"Boolean"}},
			Fields:  []FieldDef{{Name: "BOOL", Kind: "dropdown", Options: []string{"TRUE", "FALSE"}}},
			Tooltip: "A boolean constant",
		},
		{
			Type:   "logic_compare",
			Colour: 210,
			Output: &SocketDef{Checks: []string{"Boolean"}},
			Fields: []FieldDef{{Name: "OP", Kind: "dropdown", Options: []string{"EQ", "NEQ", "LT", "LTE", "GT", "GTE"}}},
			Inputs: []InputDef{
				{Name: "A", Kind: "value"},
				{Name: "B", Kind: "value"},
			},
		},
		{
			Type:   "math_number",
			Colour: 230,
			Output: &SocketDef{Checks: []string{"Number"}},
			Fields: []FieldDef{{Name: "NUM", Kind: "number", Value: "0"}},
		},
		{
			Type:   "math_arithmetic",
			Colour: 230,
			Output: &SocketDef{Checks: []string{"Number"}},
			Fields: []FieldDef{{Name: "OP", Kind: "dropdown", Options: []string{"ADD", "MINUS", "MULTIPLY", "DIVIDE", "POWER"}}},
			Inputs: []InputDef{
				{Name: "A", Kind: "value", Checks: []string{"Number"}},
				{Name: "B", Kind: "value", Checks: []string{"Number"}},
			},
		},
		{
			Type:   "math_angle",
			Colour: 230,
			Output: &SocketDef{Checks: []string{"Number"}},
			Fields: []FieldDef{{Name: "ANGLE", Kind: "angle", Value: "90"}},
		},
		{
			Type:   "text",
			Colour: 160,
			Output: &SocketDef{Checks: []string{"String"}},
			Fields: []FieldDef{{Name: "TEXT", Kind: "text"}},
		},
		{
			Type:     "text_print",
			Colour:   160,
			Tooltip:  "Print a value",
			Previous: stmt,
			Next:     stmt,
			Inputs:   []InputDef{{Name: "TEXT", Kind: "value"}},
		},
		{
			Type:     "controls_whileUntil",
			Colour:   120,
			Previous: stmt,
			Next:     stmt,
			Fields:   []FieldDef{{Name: "MODE", Kind: "dropdown", Options: []string{"WHILE", "UNTIL"}}},
			Inputs: []InputDef{
				{Name: "COND", Kind: "value", Checks: []string{"Boolean"}},
				{Name: "DO", Kind: "statement"},
			},
		},
	}
}
