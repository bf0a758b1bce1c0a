package devserver

import (
	"log/slog"
	"sync"

	"github.com/google/uuid"
)

// directMessage carries one encoded push frame to every live session of a user.
type directMessage struct {
	TargetUserID uuid.UUID
	Payload      []byte
}

// Hub maintains the set of active push clients. A user may hold several
// connections at once (one per open session); a direct message fans out to
// all of them.
type Hub struct {
	clients map[uuid.UUID]map[*client]bool

	register   chan *client
	unregister chan *client
	sendDirect chan *directMessage

	logger *slog.Logger
	mu     sync.RWMutex
}

func NewHub(logger *slog.Logger) *Hub {
	return &Hub{
		clients:    make(map[uuid.UUID]map[*client]bool),
		register:   make(chan *client),
		unregister: make(chan *client),
		sendDirect: make(chan *directMessage),
		logger:     logger,
	}
}

// Run starts the hub's processing loop. Call once, in its own goroutine.
func (h *Hub) Run() {
	for {
		select {
		case c := <-h.register:
			h.mu.Lock()
			if _, ok := h.clients[c.userID]; !ok {
				h.clients[c.userID] = make(map[*client]bool)
			}
			h.clients[c.userID][c] = true
			h.logger.Debug("push client registered",
				"userId", c.userID, "connections", len(h.clients[c.userID]))
			h.mu.Unlock()

		case c := <-h.unregister:
			h.mu.Lock()
			if userClients, ok := h.clients[c.userID]; ok {
				if _, clientOk := userClients[c]; clientOk {
					delete(userClients, c)
					close(c.send)
					if len(userClients) == 0 {
						delete(h.clients, c.userID)
					}
					h.logger.Debug("push client unregistered",
						"userId", c.userID, "connections", len(userClients))
				}
			}
			h.mu.Unlock()

		case message := <-h.sendDirect:
			h.mu.RLock()
			for c := range h.clients[message.TargetUserID] {
				select {
				case c.send <- message.Payload:
				default:
					// Slow consumer: drop the frame rather than block the hub.
					// The client recovers the gap on its next history fetch.
					h.logger.Warn("push client send buffer full, dropping frame",
						"userId", message.TargetUserID)
				}
			}
			h.mu.RUnlock()
		}
	}
}

// SendToUser delivers one encoded frame to every connection of userID.
func (h *Hub) SendToUser(userID uuid.UUID, payload []byte) {
	h.sendDirect <- &directMessage{TargetUserID: userID, Payload: payload}
}
