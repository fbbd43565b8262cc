package blockdef

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// ToolboxCategory is one palette drawer: a named, coloured group of block
// types the user can drag from.
type ToolboxCategory struct {
	Name   string   `yaml:"name" json:"name"`
	Colour int      `yaml:"colour" json:"colour"`
	Blocks []string `yaml:"blocks" json:"blocks"`
}

// Toolbox is the palette configuration served to editor clients.
type Toolbox struct {
	Categories []ToolboxCategory `yaml:"categories" json:"categories"`
}

// DefaultToolbox groups the built-in block set into standard categories.
func DefaultToolbox() *Toolbox {
	return &Toolbox{Categories: []ToolboxCategory{
		{Name: "Control", Colour: 120, Blocks: []string{"controls_if", "controls_repeat", "controls_whileUntil"}},
		{Name: "Logic", Colour: 210, Blocks: []string{"logic_boolean", "logic_compare"}},
		{Name: "Math", Colour: 230, Blocks: []string{"math_number", "math_arithmetic", "math_angle"}},
		{Name: "Text", Colour: 160, Blocks: []string{"text", "text_print"}},
	}}
}

// LoadToolbox reads a palette configuration from a YAML file and checks
// every listed block type against the registry.
func LoadToolbox(path string, r *Registry) (*Toolbox, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading toolbox config: %w", err)
	}
	return ParseToolbox(data, r)
}

// ParseToolbox parses a YAML palette configuration and validates it.
func ParseToolbox(data []byte, r *Registry) (*Toolbox, error) {
	var tb Toolbox
	if err := yaml.Unmarshal(data, &tb); err != nil {
		return nil, fmt.Errorf("parsing toolbox config: %w", err)
	}
	for _, cat := range tb.Categories {
		if cat.Name == "" {
			return nil, fmt.Errorf("toolbox category without name")
		}
		for _, t := range cat.Blocks {
			if r.Get(t) == nil {
				return nil, fmt.Errorf("toolbox category %s lists unknown block type %s", cat.Name, t)
			}
		}
	}
	return &tb, nil
}
