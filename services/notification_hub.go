package services

import (
	"log"
	"sync"

	"github.com/google/uuid"
)

// NotificationConn is the write half of a live client connection. Satisfied by
// *websocket.Conn.
type NotificationConn interface {
	WriteJSON(v interface{}) error
	Close() error
}

// NotificationPayload is the wire shape of every pushed notification.
type NotificationPayload struct {
	Message string `json:"message"`
}

// lockedConn serializes writes to one connection. Websocket connections allow
// only a single concurrent writer, but notifications originate from arbitrary
// request goroutines.
type lockedConn struct {
	mu   sync.Mutex
	conn NotificationConn
}

func (c *lockedConn) writeJSON(v interface{}) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.conn.WriteJSON(v)
}

// NotificationHub is an explicit connection registry: connections are inserted
// on connect and removed on disconnect, keyed by user so decisions can be
// pushed to the applicant they concern. A user may hold several connections
// (multiple tabs). Delivery is best-effort; messages to absent users are
// dropped, and send failures only evict the dead connection.
type NotificationHub struct {
	mu    sync.RWMutex
	conns map[int]map[string]*lockedConn
}

func NewNotificationHub() *NotificationHub {
	return &NotificationHub{conns: make(map[int]map[string]*lockedConn)}
}

// Register adds a connection for a user and returns its connection id,
// needed to unregister on disconnect.
func (h *NotificationHub) Register(userID int, conn NotificationConn) string {
	connID := uuid.NewString()

	h.mu.Lock()
	if h.conns[userID] == nil {
		h.conns[userID] = make(map[string]*lockedConn)
	}
	h.conns[userID][connID] = &lockedConn{conn: conn}
	h.mu.Unlock()

	log.Printf("User %d connected (conn %s)", userID, connID)
	return connID
}

func (h *NotificationHub) Unregister(userID int, connID string) {
	h.mu.Lock()
	if userConns, ok := h.conns[userID]; ok {
		delete(userConns, connID)
		if len(userConns) == 0 {
			delete(h.conns, userID)
		}
	}
	h.mu.Unlock()

	log.Printf("User %d disconnected (conn %s)", userID, connID)
}

// Broadcast pushes a message to every connected client.
func (h *NotificationHub) Broadcast(message string) {
	payload := NotificationPayload{Message: message}
	for _, e := range h.snapshot() {
		if err := e.conn.writeJSON(payload); err != nil {
			log.Printf("Broadcast to user %d failed: %v", e.userID, err)
			h.drop(e.userID, e.connID, e.conn)
		}
	}
	log.Printf("Broadcasted message: %q", message)
}

// SendPersonalMessage pushes a message to one user if currently connected.
// There is no queueing: a message to a disconnected user is dropped.
func (h *NotificationHub) SendPersonalMessage(message string, userID int) {
	h.mu.RLock()
	userConns := make(map[string]*lockedConn, len(h.conns[userID]))
	for connID, conn := range h.conns[userID] {
		userConns[connID] = conn
	}
	h.mu.RUnlock()

	if len(userConns) == 0 {
		log.Printf("Could not send personal message: user %d is not connected", userID)
		return
	}

	payload := NotificationPayload{Message: message}
	for connID, conn := range userConns {
		if err := conn.writeJSON(payload); err != nil {
			log.Printf("Personal message to user %d failed: %v", userID, err)
			h.drop(userID, connID, conn)
		}
	}
	log.Printf("Sent personal message to user %d: %q", userID, message)
}

// ConnectedUsers reports how many distinct users hold live connections.
func (h *NotificationHub) ConnectedUsers() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.conns)
}

type hubEntry struct {
	userID int
	connID string
	conn   *lockedConn
}

func (h *NotificationHub) snapshot() []hubEntry {
	h.mu.RLock()
	defer h.mu.RUnlock()
	entries := make([]hubEntry, 0)
	for userID, userConns := range h.conns {
		for connID, conn := range userConns {
			entries = append(entries, hubEntry{userID, connID, conn})
		}
	}
	return entries
}

func (h *NotificationHub) drop(userID int, connID string, conn *lockedConn) {
	conn.conn.Close()
	h.Unregister(userID, connID)
}
