package blockdef

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/google/uuid"

	"github.com/blockpad/backend/internal/model"
)

// Socket layout offsets, in workspace units. The view layer owns real
// geometry; these keep connection positions distinct and stable so drag
// snapping behaves sensibly without a renderer.
const (
	outputOffsetY   = 12
	previousOffsetX = 16
	nextOffsetX     = 16
	nextOffsetY     = 48
	inputOffsetX    = 96
	inputRowHeight  = 28
)

// Registry maps block type names to their definitions and acts as the
// block factory. Extension blocks register at startup; the registry is
// read-only afterwards and safe for concurrent reads.
type Registry struct {
	defs  map[string]*Definition
	order []string
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{defs: make(map[string]*Definition)}
}

// StandardRegistry returns a registry preloaded with the built-in block
// set.
func StandardRegistry() *Registry {
	r := NewRegistry()
	for _, d := range standardDefinitions() {
		if err := r.Register(d); err != nil {
			panic(err) // built-in set must be internally consistent
		}
	}
	return r
}

// Register adds a definition. Duplicate type names are an error.
func (r *Registry) Register(d *Definition) error {
	if err := d.Validate(); err != nil {
		return err
	}
	if _, ok := r.defs[d.Type]; ok {
		return fmt.Errorf("block type %s already registered", d.Type)
	}
	r.defs[d.Type] = d
	r.order = append(r.order, d.Type)
	return nil
}

// Get returns the definition for a type name, or nil.
func (r *Registry) Get(typeName string) *Definition {
	return r.defs[typeName]
}

// Types returns all registered type names in registration order.
func (r *Registry) Types() []string {
	return append([]string(nil), r.order...)
}

// Definitions returns all definitions in registration order.
func (r *Registry) Definitions() []*Definition {
	out := make([]*Definition, 0, len(r.order))
	for _, t := range r.order {
		out = append(out, r.defs[t])
	}
	return out
}

// LoadJSON registers definitions from a JSON array.
func (r *Registry) LoadJSON(data []byte) error {
	var defs []*Definition
	if err := json.Unmarshal(data, &defs); err != nil {
		return fmt.Errorf("parsing block definitions: %w", err)
	}
	for _, d := range defs {
		if err := r.Register(d); err != nil {
			return err
		}
	}
	return nil
}

// LoadJSONFile registers definitions from a JSON file on disk.
func (r *Registry) LoadJSONFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("reading block definitions: %w", err)
	}
	return r.LoadJSON(data)
}

// NewBlock instantiates a block of the named type with a fresh id.
func (r *Registry) NewBlock(typeName string) (*model.Block, error) {
	return r.NewBlockWithID(typeName, uuid.New().String())
}

// NewBlockWithID instantiates a block with a fixed id, used when loading
// documents that carry stable ids. An empty id gets a fresh one.
func (r *Registry) NewBlockWithID(typeName, id string) (*model.Block, error) {
	d := r.defs[typeName]
	if d == nil {
		return nil, fmt.Errorf("unknown block type: %s", typeName)
	}
	if id == "" {
		id = uuid.New().String()
	}
	b := model.NewBlock(id, typeName)

	for _, fd := range d.Fields {
		var f *model.Field
		if model.FieldKind(fd.Kind) == model.FieldDropdown {
			f = model.NewDropdownField(fd.Name, fd.Options)
		} else {
			f = model.NewField(fd.Name, model.FieldKind(fd.Kind))
		}
		if fd.Value != "" {
			if err := f.SetValue(fd.Value); err != nil {
				return nil, fmt.Errorf("block type %s: %w", typeName, err)
			}
		}
		b.Fields = append(b.Fields, f)
	}

	if d.Output != nil {
		b.Output = newConnection(model.OutputValue, d.Output.checks(), 0, outputOffsetY)
		b.AttachConnection(b.Output)
	}
	if d.Previous != nil {
		b.Previous = newConnection(model.PreviousStatement, d.Previous.checks(), previousOffsetX, 0)
		b.AttachConnection(b.Previous)
	}
	if d.Next != nil {
		b.Next = newConnection(model.NextStatement, d.Next.checks(), nextOffsetX, nextOffsetY)
		b.AttachConnection(b.Next)
	}
	for i, ind := range d.Inputs {
		b.Inputs = append(b.Inputs, r.NewInput(b, ind, i))
	}
	return b, nil
}

// NewInput synthesizes one input socket for a block, at the given row. The
// controller also uses it to build replacement rows during shape mutation.
func (r *Registry) NewInput(b *model.Block, ind InputDef, row int) *model.Input {
	kind := model.InputValue
	if ind.Kind == "statement" {
		kind = model.NextStatement
	}
	checks := ind.Checks
	if len(checks) == 0 {
		checks = nil
	}
	c := newConnection(kind, checks, inputOffsetX, float64(12+row*inputRowHeight))
	b.AttachConnection(c)
	return &model.Input{Name: ind.Name, Connection: c}
}

func newConnection(kind model.ConnectionKind, checks []string, offX, offY float64) *model.Connection {
	return &model.Connection{
		ID:      uuid.New().String(),
		Kind:    kind,
		Checks:  checks,
		OffsetX: offX,
		OffsetY: offY,
	}
}
