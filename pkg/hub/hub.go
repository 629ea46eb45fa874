package hub

import (
	"encoding/json"
	"log/slog"
	"sync"

	"github.com/teslashibe/go-ptzscan/internal/log"
)

// registration carries a new client and the messages it gets first.
type registration struct {
	client   *Client
	greeting []Message
}

// Hub maintains the set of active clients and broadcasts messages to them.
type Hub struct {
	name   string
	logger *slog.Logger

	clients    map[*Client]bool
	broadcast  chan Message
	register   chan registration
	unregister chan *Client
	done       chan struct{}
	closeOnce  sync.Once

	mu sync.RWMutex
}

// New creates a hub. Call Run to start it.
func New(name string) *Hub {
	return &Hub{
		name:       name,
		logger:     log.With("component", "hub", "hub", name),
		clients:    make(map[*Client]bool),
		broadcast:  make(chan Message, 256),
		register:   make(chan registration),
		unregister: make(chan *Client),
		done:       make(chan struct{}),
	}
}

// Run is the hub loop. It returns after Close.
func (h *Hub) Run() {
	for {
		select {
		case r := <-h.register:
			h.mu.Lock()
			h.clients[r.client] = true
			count := len(h.clients)
			h.mu.Unlock()
			for _, m := range r.greeting {
				select {
				case r.client.send <- m:
				default:
				}
			}
			h.logger.Debug("client connected", "clients", count)

		case c := <-h.unregister:
			h.mu.Lock()
			if _, ok := h.clients[c]; ok {
				delete(h.clients, c)
				close(c.send)
			}
			count := len(h.clients)
			h.mu.Unlock()
			h.logger.Debug("client disconnected", "clients", count)

		case m := <-h.broadcast:
			h.mu.Lock()
			for c := range h.clients {
				select {
				case c.send <- m:
				default:
					// Too slow; drop it rather than stall everyone else.
					close(c.send)
					delete(h.clients, c)
					h.logger.Warn("dropped slow client")
				}
			}
			h.mu.Unlock()

		case <-h.done:
			h.mu.Lock()
			for c := range h.clients {
				close(c.send)
				delete(h.clients, c)
			}
			h.mu.Unlock()
			return
		}
	}
}

// Close stops the loop and disconnects every client.
func (h *Hub) Close() {
	h.closeOnce.Do(func() { close(h.done) })
}

// Broadcast queues msg for every client. It never blocks; when the queue is
// full the message is dropped.
func (h *Hub) Broadcast(msg Message) {
	select {
	case h.broadcast <- msg:
	default:
		h.logger.Warn("broadcast queue full, dropping message")
	}
}

// BroadcastJSON encodes v and broadcasts it.
func (h *Hub) BroadcastJSON(v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return err
	}
	h.Broadcast(NewJSONMessage(data))
	return nil
}

// BroadcastBinary broadcasts binary data.
func (h *Hub) BroadcastBinary(data []byte) {
	h.Broadcast(NewBinaryMessage(data))
}

// ClientCount returns the number of connected clients.
func (h *Hub) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}
