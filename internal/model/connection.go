package model

import "math"

// ConnectionKind identifies the socket role a connection plays on its block.
type ConnectionKind string

const (
	// InputValue is a value socket on the parent side (accepts an output).
	InputValue ConnectionKind = "input"
	// OutputValue is the child-side plug of a value block.
	OutputValue ConnectionKind = "output"
	// PreviousStatement is the child-side plug of a statement block.
	PreviousStatement ConnectionKind = "previous"
	// NextStatement is the parent-side socket continuing a statement chain.
	// Statement inputs on a block are also NextStatement sockets.
	NextStatement ConnectionKind = "next"
)

// Opposite returns the complementary kind, or "" for an unknown kind.
func (k ConnectionKind) Opposite() ConnectionKind {
	switch k {
	case InputValue:
		return OutputValue
	case OutputValue:
		return InputValue
	case PreviousStatement:
		return NextStatement
	case NextStatement:
		return PreviousStatement
	}
	return ""
}

// IsParentSide reports whether this kind is the socket a child plugs into.
func (k ConnectionKind) IsParentSide() bool {
	return k == InputValue || k == NextStatement
}

// Connection is a typed socket instance on a block. It links to at most one
// compatible counterpart; the link is always symmetric.
type Connection struct {
	ID     string
	Kind   ConnectionKind
	Checks []string // accepted type names; nil means any

	// Offset of the socket relative to the owning block's position, in
	// workspace units. Assigned by the block factory.
	OffsetX, OffsetY float64

	owner  *Block
	target *Connection
}

// Owner returns the block this connection belongs to.
func (c *Connection) Owner() *Block { return c.owner }

// Target returns the linked counterpart, or nil when unconnected.
func (c *Connection) Target() *Connection { return c.target }

// IsConnected reports whether the connection has a target.
func (c *Connection) IsConnected() bool { return c.target != nil }

// Position returns the socket's absolute workspace coordinates, derived
// from the owning block's position.
func (c *Connection) Position() (x, y float64) {
	if c.owner == nil {
		return c.OffsetX, c.OffsetY
	}
	return c.owner.X + c.OffsetX, c.owner.Y + c.OffsetY
}

// DistanceTo returns the Euclidean distance from the socket to a point.
func (c *Connection) DistanceTo(x, y float64) float64 {
	cx, cy := c.Position()
	return math.Hypot(cx-x, cy-y)
}

// CanConnectTo reports whether linking c to other would be legal: kinds are
// complementary, type checks overlap, neither side is taken, and the link
// would not make a block its own ancestor.
func (c *Connection) CanConnectTo(other *Connection) bool {
	if c == nil || other == nil || c == other {
		return false
	}
	if c.owner == nil || other.owner == nil || c.owner == other.owner {
		return false
	}
	if other.Kind != c.Kind.Opposite() {
		return false
	}
	if !checksCompatible(c.Checks, other.Checks) {
		return false
	}
	// Reject cycles: the parent block must not live inside the subtree that
	// is about to be plugged underneath it.
	parent, child := c, other
	if !c.Kind.IsParentSide() {
		parent, child = other, c
	}
	if child.owner.hasDescendant(parent.owner) {
		return false
	}
	return true
}

// Connect links c and other symmetrically. It fails with
// ErrConcurrentModification while either endpoint's workspace is being
// serialized, with ErrAlreadyConnected if either side has a target and with
// ErrIncompatibleConnection if CanConnectTo is false.
func (c *Connection) Connect(other *Connection) error {
	if err := c.ensureMutable(); err != nil {
		return err
	}
	if other != nil {
		if err := other.ensureMutable(); err != nil {
			return err
		}
	}
	if c.target != nil || (other != nil && other.target != nil) {
		return ErrAlreadyConnected
	}
	if !c.CanConnectTo(other) {
		return ErrIncompatibleConnection
	}
	c.target = other
	other.target = c
	return nil
}

// Disconnect clears both sides of the link. No-op when unconnected; fails
// with ErrConcurrentModification while a serialize snapshot is in flight.
func (c *Connection) Disconnect() error {
	if c.target == nil {
		return nil
	}
	if err := c.ensureMutable(); err != nil {
		return err
	}
	if err := c.target.ensureMutable(); err != nil {
		return err
	}
	c.target.target = nil
	c.target = nil
	return nil
}

// ensureMutable consults the serialize fence of the workspace holding the
// owning block, if any.
func (c *Connection) ensureMutable() error {
	if c == nil || c.owner == nil {
		return nil
	}
	return c.owner.ensureMutable()
}

// NearestCompatible returns the closest candidate within maxRadius that c
// can connect to, or nil. Ties resolve to the earliest candidate in slice
// order, which makes drag snapping deterministic.
func (c *Connection) NearestCompatible(candidates []*Connection, maxRadius float64) *Connection {
	x, y := c.Position()
	var best *Connection
	bestDist := maxRadius
	for _, cand := range candidates {
		d := cand.DistanceTo(x, y)
		if d > bestDist {
			continue
		}
		if best != nil && d == bestDist {
			continue // first indexed wins
		}
		if !c.CanConnectTo(cand) {
			continue
		}
		best = cand
		bestDist = d
	}
	return best
}

// checksCompatible implements the type-check rule: nil on either side means
// "any"; otherwise the sets must share at least one type name.
func checksCompatible(a, b []string) bool {
	if a == nil || b == nil {
		return true
	}
	for _, ta := range a {
		for _, tb := range b {
			if ta == tb {
				return true
			}
		}
	}
	return false
}
