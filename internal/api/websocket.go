// websocket.go - Workspace event stream for editor clients
package api

import (
	"encoding/json"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/labstack/echo/v4"

	"github.com/blockpad/backend/internal/model"
	"github.com/blockpad/backend/internal/session"
)

// Server -> client event types, mirroring the workspace listener calls.
const (
	EvtBlockAdded        = "block:added"
	EvtBlockRemoved      = "block:removed"
	EvtBlockUpdated      = "block:updated"
	EvtConnectionChanged = "connection:changed"
	EvtWorkspaceReset    = "workspace:reset"
)

// WSEvent is one workspace change pushed to subscribed clients.
type WSEvent struct {
	Type      string          `json:"type"`
	SessionID string          `json:"sessionId"`
	Payload   json.RawMessage `json:"payload,omitempty"`
	Timestamp int64           `json:"timestamp"`
}

type blockAddedPayload struct {
	BlockID string `json:"blockId"`
	Type    string `json:"type"`
}

type idPayload struct {
	ID string `json:"id"`
}

// WebSocketHandler streams workspace events to editor clients. Each
// session's workspace gets a broadcasting listener installed on first
// subscribe; events fan out to every client watching that session.
type WebSocketHandler struct {
	sessions *session.Manager
	upgrader websocket.Upgrader

	mu   sync.RWMutex
	subs map[string]map[*wsClient]bool
}

type wsClient struct {
	conn *websocket.Conn
	mu   sync.Mutex // serializes writes
}

// NewWebSocketHandler creates the event stream handler.
func NewWebSocketHandler(sessions *session.Manager) *WebSocketHandler {
	return &WebSocketHandler{
		sessions: sessions,
		upgrader: websocket.Upgrader{
			CheckOrigin: func(r *http.Request) bool {
				return true
			},
			ReadBufferSize:  16 * 1024,
			WriteBufferSize: 16 * 1024,
		},
		subs: make(map[string]map[*wsClient]bool),
	}
}

// HandleWebSocket subscribes a client to one session's event stream.
func (wsh *WebSocketHandler) HandleWebSocket(c echo.Context) error {
	sessionID := c.Param("sessionId")
	st, ok := wsh.sessions.Get(sessionID)
	if !ok {
		return NewNotFoundError("session", sessionID)
	}

	ws, err := wsh.upgrader.Upgrade(c.Response(), c.Request(), nil)
	if err != nil {
		return err
	}
	client := &wsClient{conn: ws}
	defer ws.Close()

	fmt.Printf("[WebSocket %.8s] client subscribed\n", sessionID)

	wsh.subscribe(sessionID, client, st)
	defer wsh.unsubscribe(sessionID, client)

	// Read loop: the stream is one-way, but we consume control frames and
	// pings until the client goes away.
	ws.SetReadLimit(64 * 1024)
	for {
		if _, _, err := ws.ReadMessage(); err != nil {
			fmt.Printf("[WebSocket %.8s] client disconnected\n", sessionID)
			return nil
		}
	}
}

func (wsh *WebSocketHandler) subscribe(sessionID string, client *wsClient, st *session.State) {
	wsh.mu.Lock()
	defer wsh.mu.Unlock()
	if wsh.subs[sessionID] == nil {
		wsh.subs[sessionID] = make(map[*wsClient]bool)
		// First subscriber: wire the workspace to the hub.
		st.Workspace.SetListener(&eventBroadcaster{hub: wsh, sessionID: sessionID})
	}
	wsh.subs[sessionID][client] = true
}

func (wsh *WebSocketHandler) unsubscribe(sessionID string, client *wsClient) {
	wsh.mu.Lock()
	defer wsh.mu.Unlock()
	if clients := wsh.subs[sessionID]; clients != nil {
		delete(clients, client)
		if len(clients) == 0 {
			delete(wsh.subs, sessionID)
		}
	}
}

// broadcast sends an event to every client watching a session. Dead
// connections are dropped from the subscription set.
func (wsh *WebSocketHandler) broadcast(sessionID, evtType string, payload interface{}) {
	raw, err := json.Marshal(payload)
	if err != nil {
		return
	}
	evt := WSEvent{
		Type:      evtType,
		SessionID: sessionID,
		Payload:   raw,
		Timestamp: time.Now().UnixMilli(),
	}

	wsh.mu.RLock()
	clients := make([]*wsClient, 0, len(wsh.subs[sessionID]))
	for cl := range wsh.subs[sessionID] {
		clients = append(clients, cl)
	}
	wsh.mu.RUnlock()

	for _, cl := range clients {
		cl.mu.Lock()
		err := cl.conn.WriteJSON(evt)
		cl.mu.Unlock()
		if err != nil {
			wsh.unsubscribe(sessionID, cl)
		}
	}
}

// eventBroadcaster adapts the workspace listener interface onto the hub.
type eventBroadcaster struct {
	hub       *WebSocketHandler
	sessionID string
}

func (b *eventBroadcaster) OnBlockAdded(block *model.Block) {
	b.hub.broadcast(b.sessionID, EvtBlockAdded, blockAddedPayload{BlockID: block.ID, Type: block.Type})
}

func (b *eventBroadcaster) OnBlockRemoved(blockID string) {
	b.hub.broadcast(b.sessionID, EvtBlockRemoved, idPayload{ID: blockID})
}

func (b *eventBroadcaster) OnBlockUpdated(block *model.Block) {
	b.hub.broadcast(b.sessionID, EvtBlockUpdated, idPayload{ID: block.ID})
}

func (b *eventBroadcaster) OnConnectionChanged(connectionID string) {
	b.hub.broadcast(b.sessionID, EvtConnectionChanged, idPayload{ID: connectionID})
}

func (b *eventBroadcaster) OnWorkspaceReset() {
	b.hub.broadcast(b.sessionID, EvtWorkspaceReset, struct{}{})
}
