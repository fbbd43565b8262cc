// Package session tracks live editing sessions: one workspace plus its
// controller per connected editor.
package session

import (
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/blockpad/backend/internal/blockdef"
	"github.com/blockpad/backend/internal/controller"
	"github.com/blockpad/backend/internal/model"
)

// MaxSessions limits concurrent editing sessions to prevent memory
// exhaustion.
const MaxSessions = 50

// Info is the session metadata exposed to clients.
type Info struct {
	ID         string    `json:"id"`
	CreatedAt  time.Time `json:"createdAt"`
	BlockCount int       `json:"blockCount"`
}

// State holds a live session: its graph, controller, and keep-alive stamp.
type State struct {
	ID           string
	CreatedAt    time.Time
	LastAccessed time.Time
	Workspace    *model.Workspace
	Controller   *controller.Controller
}

// Info snapshots the client-facing metadata.
func (s *State) Info() *Info {
	return &Info{ID: s.ID, CreatedAt: s.CreatedAt, BlockCount: s.Workspace.BlockCount()}
}

// Manager owns all live sessions.
//
// The manager itself is safe for concurrent use, but each session's graph
// is single-threaded by contract: callers must serialize mutations per
// session (the HTTP layer does this implicitly per editor client).
type Manager struct {
	mu       sync.RWMutex
	sessions map[string]*State
	defs     *blockdef.Registry
	cfg      controller.Config
}

// NewManager creates a session manager over a definition registry.
func NewManager(defs *blockdef.Registry, cfg controller.Config) *Manager {
	return &Manager{
		sessions: make(map[string]*State),
		defs:     defs,
		cfg:      cfg,
	}
}

// Create opens a new editing session with an empty workspace.
func (m *Manager) Create() (*State, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if len(m.sessions) >= MaxSessions {
		return nil, fmt.Errorf("session limit reached (%d)", MaxSessions)
	}

	ws := model.NewWorkspace()
	st := &State{
		ID:           uuid.New().String(),
		CreatedAt:    time.Now(),
		LastAccessed: time.Now(),
		Workspace:    ws,
		Controller:   controller.New(m.cfg, ws, m.defs),
	}
	m.sessions[st.ID] = st
	fmt.Printf("[Session %.8s] created\n", st.ID)
	return st, nil
}

// Get returns a session and refreshes its keep-alive stamp.
func (m *Manager) Get(id string) (*State, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	st, ok := m.sessions[id]
	if ok {
		st.LastAccessed = time.Now()
	}
	return st, ok
}

// Touch refreshes the keep-alive stamp without returning the session.
func (m *Manager) Touch(id string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	st, ok := m.sessions[id]
	if ok {
		st.LastAccessed = time.Now()
	}
	return ok
}

// Delete closes a session.
func (m *Manager) Delete(id string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.sessions[id]; !ok {
		return false
	}
	delete(m.sessions, id)
	fmt.Printf("[Session %.8s] deleted\n", id)
	return true
}

// Count returns the number of live sessions.
func (m *Manager) Count() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.sessions)
}

// CleanupOldSessions drops sessions idle for longer than maxAge. Called
// from the server's background ticker.
func (m *Manager) CleanupOldSessions(maxAge time.Duration) int {
	m.mu.Lock()
	defer m.mu.Unlock()

	cutoff := time.Now().Add(-maxAge)
	removed := 0
	for id, st := range m.sessions {
		if st.LastAccessed.Before(cutoff) {
			delete(m.sessions, id)
			removed++
			fmt.Printf("[Session %.8s] expired after %s idle\n", id, maxAge)
		}
	}
	return removed
}
