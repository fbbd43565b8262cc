// Package controller orchestrates workspace mutations: it validates
// requested edits, applies them to the block graph, and emits a single
// view notification per applied change.
package controller

import (
	"fmt"

	"github.com/blockpad/backend/internal/blockdef"
	"github.com/blockpad/backend/internal/model"
)

// Config is the immutable controller configuration, assembled once before
// construction.
type Config struct {
	// SnapRadius is the maximum distance, in workspace units, at which a
	// dropped block snaps to a compatible socket.
	SnapRadius float64
	// CascadeDelete is the default removal policy for callers that do not
	// choose one explicitly.
	CascadeDelete bool
	// MaxBlocks caps workspace size; 0 means unlimited.
	MaxBlocks int
}

// DefaultConfig mirrors the server's XML config defaults.
func DefaultConfig() Config {
	return Config{SnapRadius: 60, CascadeDelete: true, MaxBlocks: 1000}
}

// DragResult describes how a finished drag resolved, so the caller can
// re-render just the affected subtree.
type DragResult struct {
	BlockID string `json:"blockId"`
	// Snapped is true when the block connected to a socket; false when it
	// stayed floating as a new root chain.
	Snapped bool `json:"snapped"`
	// ConnectionID is the parent socket the block snapped to, if any.
	ConnectionID string `json:"connectionId,omitempty"`
	// ParentBlockID is the owner of that socket, if any.
	ParentBlockID string `json:"parentBlockId,omitempty"`
}

// Controller mediates between edit requests and one workspace.
type Controller struct {
	cfg  Config
	ws   *model.Workspace
	defs *blockdef.Registry
}

// New creates a controller over a workspace using the given definitions.
func New(cfg Config, ws *model.Workspace, defs *blockdef.Registry) *Controller {
	return &Controller{cfg: cfg, ws: ws, defs: defs}
}

// Workspace exposes the underlying graph for read-only callers.
func (ct *Controller) Workspace() *model.Workspace { return ct.ws }

// Config returns the controller configuration.
func (ct *Controller) Config() Config { return ct.cfg }

// CreateBlock instantiates a block type at a position and adds it as a new
// root chain.
func (ct *Controller) CreateBlock(typeName string, x, y float64) (*model.Block, error) {
	if ct.cfg.MaxBlocks > 0 && ct.ws.BlockCount() >= ct.cfg.MaxBlocks {
		return nil, fmt.Errorf("workspace is full (%d blocks)", ct.cfg.MaxBlocks)
	}
	b, err := ct.defs.NewBlock(typeName)
	if err != nil {
		return nil, err
	}
	b.MoveTo(x, y)
	if err := ct.ws.AddBlockTree(b); err != nil {
		return nil, err
	}
	return b, nil
}

// RemoveBlock removes a block with the given cascade policy.
func (ct *Controller) RemoveBlock(blockID string, cascade bool) error {
	return ct.ws.RemoveBlockTree(blockID, cascade)
}

// FinishDrag completes a drag of a block to a position: the block is
// detached from any parent, moved, and then snapped to the nearest
// compatible socket within the snap radius. With no candidate in range the
// block stays where it was dropped as a new root chain.
func (ct *Controller) FinishDrag(blockID string, x, y float64) (*DragResult, error) {
	b := ct.ws.Block(blockID)
	if b == nil {
		return nil, fmt.Errorf("drag: block %s: %w", blockID, model.ErrNotFound)
	}
	// Fail before the detach so a fenced workspace never loses the block
	// from its root chains.
	if err := ct.ws.CheckMutable(); err != nil {
		return nil, err
	}

	if parent := b.ParentConnection(); parent != nil {
		if err := b.DisconnectFromParent(); err != nil {
			return nil, err
		}
		ct.ws.NotifyConnectionChanged(parent.ID)
	}
	if err := ct.ws.PromoteToRoot(b); err != nil {
		return nil, err
	}
	b.MoveTo(x, y)

	res := &DragResult{BlockID: b.ID}
	target := ct.findSnapTarget(b)
	if target == nil {
		ct.ws.NotifyBlockUpdated(b)
		return res, nil
	}
	if err := b.ConnectAsChildOf(target); err != nil {
		// Candidate search already validated; a failure here means the
		// socket was taken mid-flight, so leave the block floating.
		ct.ws.NotifyBlockUpdated(b)
		return res, nil
	}
	ct.ws.AdoptRoot(b)
	ct.ws.NotifyConnectionChanged(target.ID)

	res.Snapped = true
	res.ConnectionID = target.ID
	res.ParentBlockID = target.Owner().ID
	return res, nil
}

// findSnapTarget searches free parent sockets near the dragged block's own
// plugs. Candidates owned by the dragged subtree are excluded.
func (ct *Controller) findSnapTarget(b *model.Block) *model.Connection {
	subtree := make(map[string]bool)
	for _, d := range b.Subtree() {
		subtree[d.ID] = true
	}
	for _, plug := range []*model.Connection{b.Output, b.Previous} {
		if plug == nil {
			continue
		}
		px, py := plug.Position()
		raw := ct.ws.ConnectionsNear(px, py, ct.cfg.SnapRadius, plug.Kind.Opposite())
		candidates := raw[:0]
		for _, c := range raw {
			if subtree[c.Owner().ID] || c.IsConnected() {
				continue
			}
			candidates = append(candidates, c)
		}
		if target := plug.NearestCompatible(candidates, ct.cfg.SnapRadius); target != nil {
			return target
		}
	}
	return nil
}

// Connect links two sockets by id, the non-spatial mutation path.
func (ct *Controller) Connect(connectionID, targetID string) error {
	a := ct.ws.Connection(connectionID)
	if a == nil {
		return fmt.Errorf("connect: connection %s: %w", connectionID, model.ErrNotFound)
	}
	b := ct.ws.Connection(targetID)
	if b == nil {
		return fmt.Errorf("connect: connection %s: %w", targetID, model.ErrNotFound)
	}
	if err := a.Connect(b); err != nil {
		return err
	}
	child := a
	if a.Kind.IsParentSide() {
		child = b
	}
	ct.ws.AdoptRoot(child.Owner())
	ct.ws.NotifyConnectionChanged(a.ID)
	return nil
}

// DetachBlock pulls a block out of its parent socket, making its subtree a
// new root chain. No-op on roots.
func (ct *Controller) DetachBlock(blockID string) error {
	b := ct.ws.Block(blockID)
	if b == nil {
		return fmt.Errorf("detach: block %s: %w", blockID, model.ErrNotFound)
	}
	parent := b.ParentConnection()
	if parent == nil {
		return nil
	}
	if err := ct.ws.CheckMutable(); err != nil {
		return err
	}
	if err := b.DisconnectFromParent(); err != nil {
		return err
	}
	if err := ct.ws.PromoteToRoot(b); err != nil {
		return err
	}
	ct.ws.NotifyConnectionChanged(parent.ID)
	return nil
}

// SetField assigns a field value from its text form.
func (ct *Controller) SetField(blockID, fieldName, value string) error {
	b := ct.ws.Block(blockID)
	if b == nil {
		return fmt.Errorf("set field: block %s: %w", blockID, model.ErrNotFound)
	}
	f := b.Field(fieldName)
	if f == nil {
		return fmt.Errorf("set field: block %s has no field %s: %w", blockID, fieldName, model.ErrNotFound)
	}
	if err := f.SetValue(value); err != nil {
		return err
	}
	ct.ws.NotifyBlockUpdated(b)
	return nil
}

// MutateBlock replaces a block's input row with freshly synthesized inputs
// from the given declarations. Children attached to inputs that survive by
// name are kept; children on removed inputs become floating roots.
func (ct *Controller) MutateBlock(blockID string, inputs []blockdef.InputDef) error {
	b := ct.ws.Block(blockID)
	if b == nil {
		return fmt.Errorf("mutate: block %s: %w", blockID, model.ErrNotFound)
	}
	if err := ct.ws.CheckMutable(); err != nil {
		return err
	}
	row := make([]*model.Input, 0, len(inputs))
	for i, ind := range inputs {
		row = append(row, ct.defs.NewInput(b, ind, i))
	}
	orphans, err := b.Mutate(row)
	if err != nil {
		return err
	}
	for _, o := range orphans {
		if err := ct.ws.PromoteToRoot(o); err != nil {
			return err
		}
		ct.ws.NotifyBlockUpdated(o)
	}
	return ct.ws.IndexMutatedBlock(b)
}

// Reset clears the workspace.
func (ct *Controller) Reset() error {
	return ct.ws.Reset()
}

// SerializeXML snapshots the workspace as an XML document.
func (ct *Controller) SerializeXML() ([]byte, error) {
	return ct.ws.SerializeXML()
}

// SerializeSnapshot snapshots the workspace as a msgpack document.
func (ct *Controller) SerializeSnapshot() ([]byte, error) {
	return ct.ws.SerializeSnapshot()
}

// LoadXML replaces the workspace contents from an XML document,
// all-or-nothing.
func (ct *Controller) LoadXML(data []byte) error {
	return ct.ws.LoadXML(data, ct.defs)
}
