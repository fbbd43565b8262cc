package model

import (
	"fmt"

	"github.com/vmihailenco/msgpack/v5"
)

// SerializeSnapshot flattens the workspace to a compact msgpack snapshot of
// the same document tree SerializeXML emits. Editor clients use it instead
// of XML when polling large workspaces.
func (w *Workspace) SerializeSnapshot() ([]byte, error) {
	doc, err := w.buildDocument()
	if err != nil {
		return nil, err
	}
	out, err := msgpack.Marshal(doc)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrSerialization, err)
	}
	return out, nil
}
