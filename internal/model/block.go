package model

import "fmt"

// Input is a named child socket on a block. Value inputs carry an
// InputValue connection, statement inputs a NextStatement connection.
type Input struct {
	Name       string
	Connection *Connection
}

// Block is one node of the program graph: a statement or expression with
// inline fields and typed sockets. A block and everything reachable through
// its next chain and input sockets forms a subtree.
type Block struct {
	ID   string
	Type string

	// Workspace position. Only meaningful on root blocks; connected blocks
	// derive their rendered position from their parent.
	X, Y float64

	Fields []*Field
	Inputs []*Input

	Output   *Connection
	Previous *Connection
	Next     *Connection

	// Owning workspace, stamped when the block is indexed and cleared when
	// it is removed. Lets socket and field mutators honor the serialize
	// fence; nil while the block is free-standing.
	ws *Workspace
}

// NewBlock creates a bare block. Connections and fields are attached by the
// definition factory; AttachConnection wires ownership.
func NewBlock(id, typeName string) *Block {
	return &Block{ID: id, Type: typeName}
}

// AttachConnection sets the connection's owner back-reference to b. Every
// connection on a block must be attached exactly once, by its factory.
func (b *Block) AttachConnection(c *Connection) {
	c.owner = b
}

// ensureMutable consults the owning workspace's serialize fence. Blocks not
// indexed in a workspace are always mutable.
func (b *Block) ensureMutable() error {
	if b == nil || b.ws == nil {
		return nil
	}
	return b.ws.CheckMutable()
}

// Field returns the named field, or nil.
func (b *Block) Field(name string) *Field {
	for _, f := range b.Fields {
		if f.Name == name {
			return f
		}
	}
	return nil
}

// Input returns the named input, or nil.
func (b *Block) Input(name string) *Input {
	for _, in := range b.Inputs {
		if in.Name == name {
			return in
		}
	}
	return nil
}

// Connections returns all sockets the block owns, inputs first, in a stable
// order.
func (b *Block) Connections() []*Connection {
	conns := make([]*Connection, 0, len(b.Inputs)+3)
	for _, in := range b.Inputs {
		conns = append(conns, in.Connection)
	}
	for _, c := range []*Connection{b.Output, b.Previous, b.Next} {
		if c != nil {
			conns = append(conns, c)
		}
	}
	return conns
}

// ParentConnection returns the parent-side socket this block is plugged
// into, or nil when the block is a root.
func (b *Block) ParentConnection() *Connection {
	if b.Output != nil && b.Output.target != nil {
		return b.Output.target
	}
	if b.Previous != nil && b.Previous.target != nil {
		return b.Previous.target
	}
	return nil
}

// ParentBlock returns the block this one is plugged into, or nil.
func (b *Block) ParentBlock() *Block {
	if pc := b.ParentConnection(); pc != nil {
		return pc.owner
	}
	return nil
}

// Root walks parent links up to the chain root.
func (b *Block) Root() *Block {
	r := b
	for {
		p := r.ParentBlock()
		if p == nil {
			return r
		}
		r = p
	}
}

// NextBlock returns the block linked to the next socket, or nil.
func (b *Block) NextBlock() *Block {
	if b.Next != nil && b.Next.target != nil {
		return b.Next.target.owner
	}
	return nil
}

// childConnectionFor returns the child-side plug on b that can sit in the
// given parent socket kind.
func (b *Block) childConnectionFor(kind ConnectionKind) *Connection {
	switch kind {
	case InputValue:
		return b.Output
	case NextStatement:
		return b.Previous
	}
	return nil
}

// ConnectAsChildOf plugs this block's subtree into the given parent socket.
// If the block is already plugged in elsewhere it is detached first, but
// only after the new link is validated, so a failed call changes nothing.
func (b *Block) ConnectAsChildOf(parent *Connection) error {
	if parent == nil || !parent.Kind.IsParentSide() {
		return ErrIncompatibleConnection
	}
	if parent.target != nil {
		return ErrAlreadyConnected
	}
	child := b.childConnectionFor(parent.Kind)
	if child == nil || !parent.CanConnectTo(child) {
		return ErrIncompatibleConnection
	}
	if err := child.Disconnect(); err != nil {
		return err
	}
	return parent.Connect(child)
}

// DisconnectFromParent detaches this block's subtree, making it a free
// chain. No-op when the block is already a root; fails with
// ErrConcurrentModification while a serialize snapshot is in flight.
func (b *Block) DisconnectFromParent() error {
	if b.Output != nil {
		if err := b.Output.Disconnect(); err != nil {
			return err
		}
	}
	if b.Previous != nil {
		return b.Previous.Disconnect()
	}
	return nil
}

// hasDescendant reports whether other is b or lives anywhere in b's
// subtree (input children and the next chain).
func (b *Block) hasDescendant(other *Block) bool {
	found := false
	b.walkSubtree(func(d *Block) {
		if d == other {
			found = true
		}
	})
	return found
}

// walkSubtree visits b, every block plugged into its inputs, and the next
// chain, depth first. Connections only point down the tree, so no visited
// set is needed.
func (b *Block) walkSubtree(visit func(*Block)) {
	visit(b)
	for _, in := range b.Inputs {
		if t := in.Connection.target; t != nil {
			t.owner.walkSubtree(visit)
		}
	}
	if nb := b.NextBlock(); nb != nil {
		nb.walkSubtree(visit)
	}
}

// Subtree returns the block and all its descendants in depth-first order.
func (b *Block) Subtree() []*Block {
	var out []*Block
	b.walkSubtree(func(d *Block) { out = append(out, d) })
	return out
}

// Mutate replaces the block's input row, the shape change behind blocks
// like controls_if gaining an else slot. Inputs that survive by name keep
// their connection and any attached child; removed inputs are disconnected
// first and their children are returned so the caller can re-root them.
func (b *Block) Mutate(newInputs []*Input) (orphans []*Block, err error) {
	if err := b.ensureMutable(); err != nil {
		return nil, err
	}
	kept := make(map[string]bool, len(newInputs))
	for _, in := range newInputs {
		if in.Connection.owner == nil {
			b.AttachConnection(in.Connection)
		} else if in.Connection.owner != b {
			panic(fmt.Sprintf("mutate: input %s owned by another block", in.Name))
		}
		kept[in.Name] = true
	}
	for _, old := range b.Inputs {
		if kept[old.Name] {
			// Carry the existing socket (and its child) into the new row.
			for i, in := range newInputs {
				if in.Name == old.Name && in.Connection != old.Connection {
					newInputs[i].Connection = old.Connection
				}
			}
			continue
		}
		if t := old.Connection.target; t != nil {
			orphans = append(orphans, t.owner)
			if err := old.Connection.Disconnect(); err != nil {
				return nil, err
			}
		}
	}
	b.Inputs = newInputs
	return orphans, nil
}

// MoveBy shifts the block and its whole subtree by a delta.
func (b *Block) MoveBy(dx, dy float64) {
	b.walkSubtree(func(d *Block) {
		d.X += dx
		d.Y += dy
	})
}

// MoveTo places the block at an absolute position, dragging its subtree
// along.
func (b *Block) MoveTo(x, y float64) {
	b.MoveBy(x-b.X, y-b.Y)
}
