package model

import (
	"encoding/xml"
	"fmt"
)

// BlockFactory synthesizes blocks from registered definitions. Implemented
// by the block definition registry; the document loader depends only on
// this interface.
type BlockFactory interface {
	// NewBlockWithID instantiates the named block type with a fixed id.
	NewBlockWithID(typeName, id string) (*Block, error)
}

// Document DTOs. The same tree marshals to the XML interchange format and,
// via msgpack, to the compact binary snapshot.
type xmlDocument struct {
	XMLName xml.Name   `xml:"xml" msgpack:"-"`
	Blocks  []xmlBlock `xml:"block" msgpack:"blocks"`
}

type xmlBlock struct {
	Type       string     `xml:"type,attr" msgpack:"type"`
	ID         string     `xml:"id,attr" msgpack:"id"`
	X          float64    `xml:"x,attr,omitempty" msgpack:"x,omitempty"`
	Y          float64    `xml:"y,attr,omitempty" msgpack:"y,omitempty"`
	Fields     []xmlField `xml:"field" msgpack:"fields,omitempty"`
	Values     []xmlInput `xml:"value" msgpack:"values,omitempty"`
	Statements []xmlInput `xml:"statement" msgpack:"statements,omitempty"`
	Next       *xmlNext   `xml:"next" msgpack:"next,omitempty"`
}

type xmlField struct {
	Name  string `xml:"name,attr" msgpack:"name"`
	Value string `xml:",chardata" msgpack:"value"`
}

type xmlInput struct {
	Name  string    `xml:"name,attr" msgpack:"name"`
	Block *xmlBlock `xml:"block" msgpack:"block"`
}

type xmlNext struct {
	Block *xmlBlock `xml:"block" msgpack:"block"`
}

// SerializeXML flattens the workspace to the XML document format: one
// element per block with nested field and input elements, next-chain
// continuation as chained sibling <next> elements. The traversal is
// depth-first over the root list, so output is deterministic.
//
// The workspace is fenced read-only while the snapshot is taken; mutators
// called concurrently fail with ErrConcurrentModification.
func (w *Workspace) SerializeXML() ([]byte, error) {
	doc, err := w.buildDocument()
	if err != nil {
		return nil, err
	}
	out, err := xml.MarshalIndent(doc, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrSerialization, err)
	}
	return out, nil
}

func (w *Workspace) buildDocument() (*xmlDocument, error) {
	w.BeginSerialize()
	defer w.EndSerialize()

	doc := &xmlDocument{}
	for _, root := range w.roots {
		node, err := buildXMLBlock(root)
		if err != nil {
			return nil, err
		}
		doc.Blocks = append(doc.Blocks, *node)
	}
	return doc, nil
}

func buildXMLBlock(b *Block) (*xmlBlock, error) {
	node := &xmlBlock{Type: b.Type, ID: b.ID, X: b.X, Y: b.Y}
	for _, f := range b.Fields {
		node.Fields = append(node.Fields, xmlField{Name: f.Name, Value: f.Value()})
	}
	for _, in := range b.Inputs {
		t := in.Connection.Target()
		if t == nil {
			continue
		}
		if err := checkSymmetry(in.Connection); err != nil {
			return nil, err
		}
		child, err := buildXMLBlock(t.Owner())
		if err != nil {
			return nil, err
		}
		entry := xmlInput{Name: in.Name, Block: child}
		if in.Connection.Kind == NextStatement {
			node.Statements = append(node.Statements, entry)
		} else {
			node.Values = append(node.Values, entry)
		}
	}
	if b.Next != nil && b.Next.Target() != nil {
		if err := checkSymmetry(b.Next); err != nil {
			return nil, err
		}
		child, err := buildXMLBlock(b.Next.Target().Owner())
		if err != nil {
			return nil, err
		}
		node.Next = &xmlNext{Block: child}
	}
	return node, nil
}

// checkSymmetry is the defensive invariant check: a linked connection's
// target must point back.
func checkSymmetry(c *Connection) error {
	t := c.Target()
	if t == nil {
		return nil
	}
	if t.Target() != c {
		return fmt.Errorf("%w: connection %s link is not symmetric", ErrSerialization, c.ID)
	}
	if t.Owner() == nil {
		return fmt.Errorf("%w: connection %s target has no owner", ErrSerialization, c.ID)
	}
	return nil
}

// LoadXML replaces the workspace contents with the document. Blocks are
// rebuilt bottom-up into a staging workspace and swapped in atomically on
// full success; any failure leaves the live workspace untouched and
// returns an error wrapping ErrMalformedDocument.
func (w *Workspace) LoadXML(data []byte, factory BlockFactory) error {
	if err := w.CheckMutable(); err != nil {
		return err
	}
	var doc xmlDocument
	if err := xml.Unmarshal(data, &doc); err != nil {
		return fmt.Errorf("%w: %v", ErrMalformedDocument, err)
	}
	return w.loadDocument(&doc, factory)
}

func (w *Workspace) loadDocument(doc *xmlDocument, factory BlockFactory) error {
	staging := NewWorkspace()
	for i := range doc.Blocks {
		root, err := buildBlock(&doc.Blocks[i], factory)
		if err != nil {
			return err
		}
		if err := staging.AddBlockTree(root); err != nil {
			return fmt.Errorf("%w: %v", ErrMalformedDocument, err)
		}
	}

	// Full success: swap the staging graph in. The staged blocks must be
	// re-homed or their serialize fence would keep watching the staging
	// workspace.
	for _, old := range w.blocks {
		old.ws = nil
	}
	w.roots = staging.roots
	w.blocks = staging.blocks
	w.conns = staging.conns
	w.connOrder = staging.connOrder
	for _, b := range w.blocks {
		b.ws = w
	}
	w.listener.OnWorkspaceReset()
	for _, root := range w.roots {
		w.listener.OnBlockAdded(root)
	}
	return nil
}

// buildBlock rebuilds one block node bottom-up: children are built and
// wired before the node is handed back, so every returned subtree is
// already internally consistent.
func buildBlock(node *xmlBlock, factory BlockFactory) (*Block, error) {
	if node.Type == "" {
		return nil, fmt.Errorf("%w: block element without type", ErrMalformedDocument)
	}
	b, err := factory.NewBlockWithID(node.Type, node.ID)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedDocument, err)
	}
	b.X, b.Y = node.X, node.Y

	for _, f := range node.Fields {
		field := b.Field(f.Name)
		if field == nil {
			return nil, fmt.Errorf("%w: block %s has no field %s", ErrMalformedDocument, node.Type, f.Name)
		}
		if err := field.SetValue(f.Value); err != nil {
			return nil, fmt.Errorf("%w: %v", ErrMalformedDocument, err)
		}
	}

	for _, group := range [][]xmlInput{node.Values, node.Statements} {
		for _, entry := range group {
			in := b.Input(entry.Name)
			if in == nil {
				return nil, fmt.Errorf("%w: block %s has no input %s", ErrMalformedDocument, node.Type, entry.Name)
			}
			if entry.Block == nil {
				continue
			}
			child, err := buildBlock(entry.Block, factory)
			if err != nil {
				return nil, err
			}
			if err := child.ConnectAsChildOf(in.Connection); err != nil {
				return nil, fmt.Errorf("%w: input %s of block %s: %v", ErrMalformedDocument, entry.Name, node.Type, err)
			}
		}
	}

	if node.Next != nil && node.Next.Block != nil {
		next, err := buildBlock(node.Next.Block, factory)
		if err != nil {
			return nil, err
		}
		if b.Next == nil {
			return nil, fmt.Errorf("%w: block %s has no next connection", ErrMalformedDocument, node.Type)
		}
		if err := next.ConnectAsChildOf(b.Next); err != nil {
			return nil, fmt.Errorf("%w: next of block %s: %v", ErrMalformedDocument, node.Type, err)
		}
	}
	return b, nil
}
