package model

import (
	"fmt"
	"sync/atomic"
)

// Workspace is the root container for the block graph: an ordered set of
// free-standing chains plus id indices over every block and connection.
//
// The workspace is single-threaded by contract. All mutation must happen on
// one goroutine; the only cross-goroutine interaction supported is the
// serialize fence, which lets a background serialization mark the graph
// read-only while it snapshots.
type Workspace struct {
	roots []*Block

	blocks map[string]*Block
	conns  map[string]*Connection
	// connOrder preserves registration order so spatial queries and snap
	// tie-breaks are deterministic.
	connOrder []*Connection

	listener Listener

	serializing atomic.Int32
}

// NewWorkspace creates an empty workspace with no listener.
func NewWorkspace() *Workspace {
	return &Workspace{
		blocks:   make(map[string]*Block),
		conns:    make(map[string]*Connection),
		listener: NopListener{},
	}
}

// SetListener installs the view-layer notification sink. A nil listener
// resets to the no-op sink.
func (w *Workspace) SetListener(l Listener) {
	if l == nil {
		l = NopListener{}
	}
	w.listener = l
}

// Block returns the indexed block by id, or nil.
func (w *Workspace) Block(id string) *Block { return w.blocks[id] }

// Connection returns the indexed connection by id, or nil.
func (w *Workspace) Connection(id string) *Connection { return w.conns[id] }

// Roots returns the current root chains in insertion order.
func (w *Workspace) Roots() []*Block {
	return append([]*Block(nil), w.roots...)
}

// BlockCount returns the number of indexed blocks.
func (w *Workspace) BlockCount() int { return len(w.blocks) }

// AddBlockTree registers a free-standing block and its full subtree,
// making it a new root chain. Fails with ErrDuplicateID if any id in the
// subtree collides with the index; nothing is registered on failure.
func (w *Workspace) AddBlockTree(root *Block) error {
	if err := w.CheckMutable(); err != nil {
		return err
	}
	if root.ParentBlock() != nil {
		return fmt.Errorf("add block tree: %s is not a root", root.ID)
	}
	subtree := root.Subtree()
	seen := make(map[string]bool, len(subtree))
	for _, b := range subtree {
		if w.blocks[b.ID] != nil || seen[b.ID] {
			return fmt.Errorf("add block tree: block %s: %w", b.ID, ErrDuplicateID)
		}
		seen[b.ID] = true
		for _, c := range b.Connections() {
			if w.conns[c.ID] != nil || seen[c.ID] {
				return fmt.Errorf("add block tree: connection %s: %w", c.ID, ErrDuplicateID)
			}
			seen[c.ID] = true
		}
	}
	for _, b := range subtree {
		w.indexBlock(b)
	}
	w.roots = append(w.roots, root)
	w.listener.OnBlockAdded(root)
	return nil
}

// RemoveBlockTree removes a block from the workspace.
//
// With cascade, the block's entire subtree goes: the whole next chain and
// every block plugged into an input, transitively.
//
// Without cascade only the block itself goes: the remainder of its next
// chain is spliced into the former parent socket (or becomes a new root if
// there is none or the splice is incompatible), and blocks plugged into
// the removed block's value inputs become floating roots rather than being
// destroyed.
func (w *Workspace) RemoveBlockTree(id string, cascade bool) error {
	if err := w.CheckMutable(); err != nil {
		return err
	}
	b := w.blocks[id]
	if b == nil {
		return fmt.Errorf("remove block tree: block %s: %w", id, ErrNotFound)
	}

	parentConn := b.ParentConnection()
	if err := b.DisconnectFromParent(); err != nil {
		return err
	}
	w.removeRoot(b)

	if cascade {
		for _, d := range b.Subtree() {
			w.deindexBlock(d)
			w.listener.OnBlockRemoved(d.ID)
		}
		if parentConn != nil {
			w.listener.OnConnectionChanged(parentConn.ID)
		}
		return nil
	}

	// Splice: pull the rest of the next chain out before the block goes.
	var rest *Block
	if b.Next != nil && b.Next.Target() != nil {
		rest = b.Next.Target().Owner()
		if err := b.Next.Disconnect(); err != nil {
			return err
		}
	}
	if rest != nil {
		spliced := false
		if parentConn != nil && parentConn.CanConnectTo(rest.childConnectionFor(parentConn.Kind)) {
			if err := rest.ConnectAsChildOf(parentConn); err == nil {
				spliced = true
			}
		}
		if !spliced {
			w.roots = append(w.roots, rest)
			w.listener.OnBlockAdded(rest)
		}
	}
	// Value children float free as new roots, still registered.
	for _, in := range b.Inputs {
		if t := in.Connection.Target(); t != nil {
			child := t.Owner()
			if err := in.Connection.Disconnect(); err != nil {
				return err
			}
			w.roots = append(w.roots, child)
			w.listener.OnBlockAdded(child)
		}
	}
	w.deindexBlock(b)
	w.listener.OnBlockRemoved(b.ID)
	if parentConn != nil {
		w.listener.OnConnectionChanged(parentConn.ID)
	}
	return nil
}

// PromoteToRoot records a connected block as a root after it has been
// detached from its parent. Used by the controller when a drag picks a
// block out of a chain.
func (w *Workspace) PromoteToRoot(b *Block) error {
	if err := w.CheckMutable(); err != nil {
		return err
	}
	if w.blocks[b.ID] == nil {
		return fmt.Errorf("promote to root: block %s: %w", b.ID, ErrNotFound)
	}
	for _, r := range w.roots {
		if r == b {
			return nil
		}
	}
	w.roots = append(w.roots, b)
	return nil
}

// AdoptRoot removes a block from the root list after it was plugged into a
// parent. Counterpart of PromoteToRoot.
func (w *Workspace) AdoptRoot(b *Block) {
	w.removeRoot(b)
}

// ConnectionsNear returns every registered connection within maxRadius of
// the given position, in registration order. A non-empty kind restricts the
// result to that socket kind. A linear scan is deliberate: workspaces hold
// tens to low hundreds of blocks.
func (w *Workspace) ConnectionsNear(x, y, maxRadius float64, kind ConnectionKind) []*Connection {
	var out []*Connection
	for _, c := range w.connOrder {
		if kind != "" && c.Kind != kind {
			continue
		}
		if c.DistanceTo(x, y) <= maxRadius {
			out = append(out, c)
		}
	}
	return out
}

// NotifyBlockUpdated reports a field edit or move on an indexed block.
func (w *Workspace) NotifyBlockUpdated(b *Block) {
	w.listener.OnBlockUpdated(b)
}

// NotifyConnectionChanged reports a connect/disconnect on a socket.
func (w *Workspace) NotifyConnectionChanged(id string) {
	w.listener.OnConnectionChanged(id)
}

// Reset destroys all chains and returns the workspace to the empty state.
// Irreversible; there is no undo at this layer.
func (w *Workspace) Reset() error {
	if err := w.CheckMutable(); err != nil {
		return err
	}
	for _, b := range w.blocks {
		b.ws = nil
	}
	w.roots = nil
	w.blocks = make(map[string]*Block)
	w.conns = make(map[string]*Connection)
	w.connOrder = nil
	w.listener.OnWorkspaceReset()
	return nil
}

// IndexMutatedBlock re-indexes a block's connections after a shape
// mutation replaced its input row. New sockets are registered; sockets
// that no longer exist on the block are dropped from the index.
func (w *Workspace) IndexMutatedBlock(b *Block) error {
	if err := w.CheckMutable(); err != nil {
		return err
	}
	if w.blocks[b.ID] == nil {
		return fmt.Errorf("index mutated block: %s: %w", b.ID, ErrNotFound)
	}
	current := make(map[string]bool)
	for _, c := range b.Connections() {
		current[c.ID] = true
		if w.conns[c.ID] == nil {
			w.conns[c.ID] = c
			w.connOrder = append(w.connOrder, c)
		}
	}
	kept := w.connOrder[:0]
	for _, c := range w.connOrder {
		if c.Owner() == b && !current[c.ID] {
			delete(w.conns, c.ID)
			continue
		}
		kept = append(kept, c)
	}
	w.connOrder = kept
	w.listener.OnBlockUpdated(b)
	return nil
}

// CheckMutable reports whether the graph accepts mutations right now. It
// returns ErrConcurrentModification while a serialize snapshot is being
// taken. Multi-step mutators call it first so a tripped fence fails before
// any state has changed.
func (w *Workspace) CheckMutable() error {
	if w.serializing.Load() > 0 {
		return ErrConcurrentModification
	}
	return nil
}

// BeginSerialize raises the serialize fence: until the matching
// EndSerialize, every mutator fails with ErrConcurrentModification.
// SerializeXML and SerializeSnapshot fence themselves; callers reading the
// graph from another goroutine bracket the read with this pair.
func (w *Workspace) BeginSerialize() { w.serializing.Add(1) }

// EndSerialize lowers the fence raised by BeginSerialize.
func (w *Workspace) EndSerialize() { w.serializing.Add(-1) }

// --- internals ---

func (w *Workspace) indexBlock(b *Block) {
	b.ws = w
	for _, f := range b.Fields {
		f.owner = b
	}
	w.blocks[b.ID] = b
	for _, c := range b.Connections() {
		w.conns[c.ID] = c
		w.connOrder = append(w.connOrder, c)
	}
}

func (w *Workspace) deindexBlock(b *Block) {
	b.ws = nil
	delete(w.blocks, b.ID)
	for _, c := range b.Connections() {
		delete(w.conns, c.ID)
	}
	kept := w.connOrder[:0]
	for _, c := range w.connOrder {
		if c.Owner() != b {
			kept = append(kept, c)
		}
	}
	w.connOrder = kept
}

func (w *Workspace) removeRoot(b *Block) {
	for i, r := range w.roots {
		if r == b {
			w.roots = append(w.roots[:i], w.roots[i+1:]...)
			return
		}
	}
}
