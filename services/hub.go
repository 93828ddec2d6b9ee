package services

import (
	"encoding/json"
	"log"
	"sync"

	"github.com/gofiber/contrib/websocket"
)

// Client wraps one websocket connection with its transport identity and a
// write lock (fasthttp websocket conns do not allow concurrent writers).
type Client struct {
	ID   string
	Conn *websocket.Conn

	writeMu sync.Mutex
}

// Envelope is the wire format for every outbound message.
type Envelope struct {
	Event string `json:"event"`
	Data  any    `json:"data,omitempty"`
}

// Send marshals and writes one event to this client.
func (c *Client) Send(event string, data any) {
	payload, err := json.Marshal(Envelope{Event: event, Data: data})
	if err != nil {
		log.Printf("❌ [HUB] Failed to marshal %s event: %v", event, err)
		return
	}
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	if err := c.Conn.WriteMessage(websocket.TextMessage, payload); err != nil {
		log.Printf("⚠️ [HUB] Write to %s failed: %v", c.ID, err)
	}
}

// Hub groups live connections by session key so the engine's notifications
// can be broadcast to every participant of a session.
type Hub struct {
	mu       sync.RWMutex
	sessions map[string]map[string]*Client
}

func NewHub() *Hub {
	return &Hub{sessions: make(map[string]map[string]*Client)}
}

// Register adds a connection to a session group.
func (h *Hub) Register(sessionID string, client *Client) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.sessions[sessionID] == nil {
		h.sessions[sessionID] = make(map[string]*Client)
	}
	h.sessions[sessionID][client.ID] = client
}

// Unregister drops a connection from its session group.
func (h *Hub) Unregister(sessionID, clientID string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	group := h.sessions[sessionID]
	if group == nil {
		return
	}
	delete(group, clientID)
	if len(group) == 0 {
		delete(h.sessions, sessionID)
	}
}

// Broadcast sends one event to every participant of a session.
func (h *Hub) Broadcast(sessionID, event string, data any) {
	h.mu.RLock()
	clients := make([]*Client, 0, len(h.sessions[sessionID]))
	for _, c := range h.sessions[sessionID] {
		clients = append(clients, c)
	}
	h.mu.RUnlock()

	for _, c := range clients {
		c.Send(event, data)
	}
}

// SendTo delivers one event to a single connection of a session, if it is
// still registered.
func (h *Hub) SendTo(sessionID, clientID, event string, data any) {
	h.mu.RLock()
	client := h.sessions[sessionID][clientID]
	h.mu.RUnlock()
	if client != nil {
		client.Send(event, data)
	}
}

// Deliver routes an engine notification: unicast when it names a target
// connection, broadcast otherwise.
func (h *Hub) Deliver(sessionID string, note Notification) {
	if note.ToConn != "" {
		h.SendTo(sessionID, note.ToConn, note.Event, note.Data)
		return
	}
	h.Broadcast(sessionID, note.Event, note.Data)
}
