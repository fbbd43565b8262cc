// Package blockdef loads block type definitions and instantiates blocks
// from them. Definitions come from JSON files shipped with the application
// plus a built-in standard set.
package blockdef

import (
	"fmt"

	"github.com/blockpad/backend/internal/model"
)

// SocketDef declares an optional connection on a block type. A present but
// empty Checks list means the socket accepts any type.
type SocketDef struct {
	Checks []string `json:"checks,omitempty"`
}

// checks normalizes the declared type checks: an empty list means "any",
// which the model represents as nil.
func (s *SocketDef) checks() []string {
	if s == nil || len(s.Checks) == 0 {
		return nil
	}
	return append([]string(nil), s.Checks...)
}

// FieldDef declares an inline field on a block type.
type FieldDef struct {
	Name    string   `json:"name"`
	Kind    string   `json:"kind"`
	Value   string   `json:"value,omitempty"`
	Options []string `json:"options,omitempty"`
}

// InputDef declares a child socket on a block type. Kind is "value" or
// "statement".
type InputDef struct {
	Name   string   `json:"name"`
	Kind   string   `json:"kind"`
	Checks []string `json:"checks,omitempty"`
}

// Definition is one block type: its sockets, fields, and inputs. The
// palette colour is carried through to clients untouched.
type Definition struct {
	Type     string     `json:"type"`
	Colour   int        `json:"colour,omitempty"`
	Tooltip  string     `json:"tooltip,omitempty"`
	Output   *SocketDef `json:"output,omitempty"`
	Previous *SocketDef `json:"previous,omitempty"`
	Next     *SocketDef `json:"next,omitempty"`
	Fields   []FieldDef `json:"fields,omitempty"`
	Inputs   []InputDef `json:"inputs,omitempty"`
}

// Validate checks a definition for internal consistency.
func (d *Definition) Validate() error {
	if d.Type == "" {
		return fmt.Errorf("definition without type name")
	}
	if d.Output != nil && d.Previous != nil {
		return fmt.Errorf("definition %s: a block cannot have both an output and a previous connection", d.Type)
	}
	seen := make(map[string]bool)
	for _, f := range d.Fields {
		if f.Name == "" {
			return fmt.Errorf("definition %s: field without name", d.Type)
		}
		if seen["f:"+f.Name] {
			return fmt.Errorf("definition %s: duplicate field %s", d.Type, f.Name)
		}
		seen["f:"+f.Name] = true
		switch model.FieldKind(f.Kind) {
		case model.FieldText, model.FieldNumber, model.FieldAngle, model.FieldCheckbox:
		case model.FieldDropdown:
			if len(f.Options) == 0 {
				return fmt.Errorf("definition %s: dropdown %s without options", d.Type, f.Name)
			}
		default:
			return fmt.Errorf("definition %s: unknown field kind %q", d.Type, f.Kind)
		}
	}
	for _, in := range d.Inputs {
		if in.Name == "" {
			return fmt.Errorf("definition %s: input without name", d.Type)
		}
		if seen["i:"+in.Name] {
			return fmt.Errorf("definition %s: duplicate input %s", d.Type, in.Name)
		}
		seen["i:"+in.Name] = true
		if in.Kind != "value" && in.Kind != "statement" {
			return fmt.Errorf("definition %s: input %s has unknown kind %q", d.Type, in.Name, in.Kind)
		}
	}
	return nil
}
