package model

import (
	"fmt"
	"math"
	"strconv"
)

// FieldKind identifies the editable value type a field carries. The set is
// closed; custom blocks compose these primitives rather than adding kinds.
type FieldKind string

const (
	FieldText     FieldKind = "text"
	FieldNumber   FieldKind = "number"
	FieldAngle    FieldKind = "angle"
	FieldCheckbox FieldKind = "checkbox"
	FieldDropdown FieldKind = "dropdown"
)

// Field is an atomic editable value owned by exactly one block. Fields are
// not connectable; they only hold data and render inline on the block.
type Field struct {
	Name string
	Kind FieldKind

	options []string // dropdown only

	text    string
	number  float64
	checked bool

	// Owning block, stamped when that block is indexed into a workspace.
	// Lets SetValue honor the serialize fence.
	owner *Block
}

// NewField creates a field of the given kind with its zero value.
func NewField(name string, kind FieldKind) *Field {
	return &Field{Name: name, Kind: kind}
}

// NewDropdownField creates a dropdown restricted to the given options.
// The first option is the initial value.
func NewDropdownField(name string, options []string) *Field {
	f := &Field{Name: name, Kind: FieldDropdown, options: append([]string(nil), options...)}
	if len(f.options) > 0 {
		f.text = f.options[0]
	}
	return f
}

// Options returns the dropdown option list, nil for other kinds.
func (f *Field) Options() []string {
	return f.options
}

// Value returns the field value in its serialized text form, the same form
// the XML document carries.
func (f *Field) Value() string {
	switch f.Kind {
	case FieldNumber, FieldAngle:
		return strconv.FormatFloat(f.number, 'f', -1, 64)
	case FieldCheckbox:
		if f.checked {
			return "TRUE"
		}
		return "FALSE"
	default:
		return f.text
	}
}

// SetValue parses and assigns a value from its serialized text form. Fails
// with ErrConcurrentModification while the owning workspace is being
// serialized.
func (f *Field) SetValue(value string) error {
	if err := f.owner.ensureMutable(); err != nil {
		return err
	}
	switch f.Kind {
	case FieldText:
		f.text = value
	case FieldNumber:
		n, err := strconv.ParseFloat(value, 64)
		if err != nil {
			return fmt.Errorf("field %s: invalid number %q", f.Name, value)
		}
		f.number = n
	case FieldAngle:
		n, err := strconv.ParseFloat(value, 64)
		if err != nil {
			return fmt.Errorf("field %s: invalid angle %q", f.Name, value)
		}
		f.number = wrapAngle(n)
	case FieldCheckbox:
		switch value {
		case "TRUE", "true":
			f.checked = true
		case "FALSE", "false":
			f.checked = false
		default:
			return fmt.Errorf("field %s: invalid checkbox value %q", f.Name, value)
		}
	case FieldDropdown:
		for _, opt := range f.options {
			if opt == value {
				f.text = value
				return nil
			}
		}
		return fmt.Errorf("field %s: %q is not an option", f.Name, value)
	default:
		return fmt.Errorf("field %s: unknown kind %q", f.Name, f.Kind)
	}
	return nil
}

// Number returns the numeric value for number and angle fields.
func (f *Field) Number() float64 { return f.number }

// Checked returns the boolean value for checkbox fields.
func (f *Field) Checked() bool { return f.checked }

// Text returns the text value for text and dropdown fields.
func (f *Field) Text() string { return f.text }

// wrapAngle normalizes an angle into [0, 360).
func wrapAngle(deg float64) float64 {
	d := math.Mod(deg, 360)
	if d < 0 {
		d += 360
	}
	return d
}
