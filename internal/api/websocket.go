// internal/api/websocket.go
package api

import (
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/senushidinara/DreamStruct/internal/models"
	"github.com/senushidinara/DreamStruct/internal/utils"
)

const (
	MessageSessionState = "session:state"
	MessagePong         = "pong"
	MessageError        = "error"

	wsWriteWait  = 10 * time.Second
	wsPongWait   = 60 * time.Second
	wsPingPeriod = (wsPongWait * 9) / 10
	wsSendBuffer = 32
	wsMaxMessage = 4096
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		return true
	},
}

// WebSocketConnection is the subset of *websocket.Conn the clients use.
type WebSocketConnection interface {
	WriteMessage(messageType int, data []byte) error
	ReadMessage() (messageType int, p []byte, err error)
	Close() error
	SetReadDeadline(t time.Time) error
	SetWriteDeadline(t time.Time) error
	SetReadLimit(limit int64)
	SetPongHandler(h func(appData string) error)
}

// WebSocketMessage is the frame pushed to clients.
type WebSocketMessage struct {
	Type      string      `json:"type"`
	SessionID string      `json:"session_id,omitempty"`
	Data      interface{} `json:"data,omitempty"`
	Error     string      `json:"error,omitempty"`
	Timestamp time.Time   `json:"timestamp"`
}

// WebSocketClient is one connection subscribed to a session.
type WebSocketClient struct {
	conn      WebSocketConnection
	sessionID string
	send      chan []byte
	createdAt time.Time

	mu     sync.Mutex
	closed bool
}

func newWebSocketClient(conn WebSocketConnection, sessionID string) *WebSocketClient {
	return &WebSocketClient{
		conn:      conn,
		sessionID: sessionID,
		send:      make(chan []byte, wsSendBuffer),
		createdAt: time.Now(),
	}
}

// trySend queues data without blocking; a full queue drops the frame.
func (client *WebSocketClient) trySend(data []byte) bool {
	client.mu.Lock()
	defer client.mu.Unlock()

	if client.closed {
		return false
	}
	select {
	case client.send <- data:
		return true
	default:
		utils.GetLogger().Warn("WebSocket send queue full, dropping frame", map[string]interface{}{
			"session_id": client.sessionID,
		})
		return false
	}
}

// close stops the write pump. Safe to call more than once.
func (client *WebSocketClient) close() {
	client.mu.Lock()
	defer client.mu.Unlock()

	if !client.closed {
		client.closed = true
		close(client.send)
	}
}

// IsClosed reports whether the client has been unregistered.
func (client *WebSocketClient) IsClosed() bool {
	client.mu.Lock()
	defer client.mu.Unlock()
	return client.closed
}

// SendMessage queues msg for the client.
func (client *WebSocketClient) SendMessage(msg WebSocketMessage) error {
	data, err := json.Marshal(msg)
	if err != nil {
		return err
	}
	client.trySend(data)
	return nil
}

// writePump drains the send queue and keeps the connection alive with pings.
func (client *WebSocketClient) writePump() {
	ticker := time.NewTicker(wsPingPeriod)
	defer func() {
		ticker.Stop()
		client.conn.Close()
	}()

	for {
		select {
		case data, ok := <-client.send:
			_ = client.conn.SetWriteDeadline(time.Now().Add(wsWriteWait))
			if !ok {
				_ = client.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := client.conn.WriteMessage(websocket.TextMessage, data); err != nil {
				return
			}
		case <-ticker.C:
			_ = client.conn.SetWriteDeadline(time.Now().Add(wsWriteWait))
			if err := client.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

// readPump blocks until the peer goes away. Text frames of type "ping" are
// answered with "pong"; everything else is ignored.
func (client *WebSocketClient) readPump() {
	client.conn.SetReadLimit(wsMaxMessage)
	_ = client.conn.SetReadDeadline(time.Now().Add(wsPongWait))
	client.conn.SetPongHandler(func(string) error {
		return client.conn.SetReadDeadline(time.Now().Add(wsPongWait))
	})

	for {
		_, data, err := client.conn.ReadMessage()
		if err != nil {
			return
		}
		_ = client.conn.SetReadDeadline(time.Now().Add(wsPongWait))

		var msg struct {
			Type string `json:"type"`
		}
		if json.Unmarshal(data, &msg) == nil && msg.Type == "ping" {
			_ = client.SendMessage(WebSocketMessage{
				Type:      MessagePong,
				SessionID: client.sessionID,
				Timestamp: time.Now(),
			})
		}
	}
}

// WebSocketManager tracks the clients of every session.
type WebSocketManager struct {
	mutex       sync.RWMutex
	connections map[string]map[*WebSocketClient]struct{} // sessionID -> clients
}

func NewWebSocketManager() *WebSocketManager {
	return &WebSocketManager{
		connections: make(map[string]map[*WebSocketClient]struct{}),
	}
}

// Register adds client to its session.
func (m *WebSocketManager) Register(client *WebSocketClient) {
	m.mutex.Lock()
	defer m.mutex.Unlock()

	clients, ok := m.connections[client.sessionID]
	if !ok {
		clients = make(map[*WebSocketClient]struct{})
		m.connections[client.sessionID] = clients
	}
	clients[client] = struct{}{}
}

// Unregister removes client and closes its queue.
func (m *WebSocketManager) Unregister(client *WebSocketClient) {
	m.mutex.Lock()
	if clients, ok := m.connections[client.sessionID]; ok {
		delete(clients, client)
		if len(clients) == 0 {
			delete(m.connections, client.sessionID)
		}
	}
	m.mutex.Unlock()

	client.close()
}

// BroadcastToSession sends msg to every client of sessionID.
func (m *WebSocketManager) BroadcastToSession(sessionID string, msg WebSocketMessage) int {
	data, err := json.Marshal(msg)
	if err != nil {
		utils.GetLogger().Error("Marshal WebSocket message", map[string]interface{}{
			"session_id": sessionID,
			"error":      err.Error(),
		})
		return 0
	}

	m.mutex.RLock()
	defer m.mutex.RUnlock()

	sent := 0
	for client := range m.connections[sessionID] {
		if client.trySend(data) {
			sent++
		}
	}
	return sent
}

// PublishSnapshot pushes a session snapshot to its subscribers.
func (m *WebSocketManager) PublishSnapshot(view models.SessionView) {
	m.BroadcastToSession(view.ID, snapshotMessage(view))
}

func snapshotMessage(view models.SessionView) WebSocketMessage {
	return WebSocketMessage{
		Type:      MessageSessionState,
		SessionID: view.ID,
		Data:      view,
		Timestamp: time.Now(),
	}
}

// ClientCount returns the number of clients watching sessionID.
func (m *WebSocketManager) ClientCount(sessionID string) int {
	m.mutex.RLock()
	defer m.mutex.RUnlock()
	return len(m.connections[sessionID])
}

// Stats summarises the open connections.
func (m *WebSocketManager) Stats() map[string]interface{} {
	m.mutex.RLock()
	defer m.mutex.RUnlock()

	total := 0
	for _, clients := range m.connections {
		total += len(clients)
	}
	return map[string]interface{}{
		"sessions":    len(m.connections),
		"connections": total,
	}
}

// CloseAll disconnects every client.
func (m *WebSocketManager) CloseAll() {
	m.mutex.Lock()
	all := m.connections
	m.connections = make(map[string]map[*WebSocketClient]struct{})
	m.mutex.Unlock()

	for _, clients := range all {
		for client := range clients {
			client.close()
		}
	}
}
