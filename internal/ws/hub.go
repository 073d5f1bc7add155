// Package ws implements the realtime layer: a hub of websocket clients keyed
// by user id, plus in-process listeners used by the list and conversation
// reconcilers.
package ws

import (
	"sync"

	"github.com/chatdesk/internal/logger"
)

// Hub fans events out to every connection and listener of a user. Clients
// with a full send buffer are closed rather than blocking the hub.
type Hub struct {
	mu        sync.RWMutex
	clients   map[string]map[*Client]struct{}
	listeners map[string]map[chan OutgoingMessage]struct{}

	register   chan *Client
	unregister chan *Client
	done       chan struct{}
}

func NewHub() *Hub {
	return &Hub{
		clients:    make(map[string]map[*Client]struct{}),
		listeners:  make(map[string]map[chan OutgoingMessage]struct{}),
		register:   make(chan *Client),
		unregister: make(chan *Client),
		done:       make(chan struct{}),
	}
}

// Run processes register/unregister until Stop is called.
func (h *Hub) Run() {
	for {
		select {
		case c := <-h.register:
			h.mu.Lock()
			if h.clients[c.userID] == nil {
				h.clients[c.userID] = make(map[*Client]struct{})
			}
			h.clients[c.userID][c] = struct{}{}
			h.mu.Unlock()
			logger.Info("ws connected user=", c.userID)
		case c := <-h.unregister:
			h.mu.Lock()
			if set, ok := h.clients[c.userID]; ok {
				if _, ok := set[c]; ok {
					delete(set, c)
					close(c.send)
					if len(set) == 0 {
						delete(h.clients, c.userID)
					}
				}
			}
			h.mu.Unlock()
			logger.Info("ws disconnected user=", c.userID)
		case <-h.done:
			return
		}
	}
}

func (h *Hub) Stop() {
	close(h.done)
}

// SendToUser delivers an event to all of a user's connections and listeners.
func (h *Hub) SendToUser(userID string, msg OutgoingMessage) {
	h.mu.RLock()
	defer h.mu.RUnlock()

	for c := range h.clients[userID] {
		select {
		case c.send <- msg:
		default:
			// Slow consumer: drop the connection, the client reconnects.
			go c.conn.Close()
		}
	}
	for ch := range h.listeners[userID] {
		select {
		case ch <- msg:
		default:
		}
	}
}

// SendToUsers fans an event out to several users at once.
func (h *Hub) SendToUsers(userIDs []string, msg OutgoingMessage) {
	for _, id := range userIDs {
		h.SendToUser(id, msg)
	}
}

// Listen subscribes an in-process consumer to a user's event stream. The
// returned release func must be called when done.
func (h *Hub) Listen(userID string) (<-chan OutgoingMessage, func()) {
	ch := make(chan OutgoingMessage, 64)
	h.mu.Lock()
	if h.listeners[userID] == nil {
		h.listeners[userID] = make(map[chan OutgoingMessage]struct{})
	}
	h.listeners[userID][ch] = struct{}{}
	h.mu.Unlock()

	release := func() {
		h.mu.Lock()
		if set, ok := h.listeners[userID]; ok {
			if _, ok := set[ch]; ok {
				delete(set, ch)
				close(ch)
				if len(set) == 0 {
					delete(h.listeners, userID)
				}
			}
		}
		h.mu.Unlock()
	}
	return ch, release
}
