package model

// Listener receives structural-change notifications from a workspace. The
// view layer implements it to re-render affected subtrees incrementally.
// Callbacks fire on the mutating goroutine, after the mutation committed.
type Listener interface {
	OnBlockAdded(block *Block)
	OnBlockRemoved(blockID string)
	OnBlockUpdated(block *Block)
	OnConnectionChanged(connectionID string)
	OnWorkspaceReset()
}

// NopListener is a Listener that ignores every event.
type NopListener struct{}

func (NopListener) OnBlockAdded(*Block)          {}
func (NopListener) OnBlockRemoved(string)        {}
func (NopListener) OnBlockUpdated(*Block)        {}
func (NopListener) OnConnectionChanged(string)   {}
func (NopListener) OnWorkspaceReset()            {}
