package ws

import (
	"context"
	"encoding/json"
	"sync"

	"go.uber.org/zap"

	"github.com/dgnsrekt/helpdesk-livefeed/internal/data"
	fsync "github.com/dgnsrekt/helpdesk-livefeed/internal/sync"
)

// Hub manages WebSocket connections grouped by feed.
type Hub struct {
	clients    map[*Client]bool
	groups     map[data.FeedKey]map[*Client]bool // feed -> clients
	unregister chan *Client
	done       chan struct{}
	closed     bool
	mu         sync.RWMutex
	logger     *zap.Logger
}

// NewHub creates a new Hub.
func NewHub(logger *zap.Logger) *Hub {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Hub{
		clients:    make(map[*Client]bool),
		groups:     make(map[data.FeedKey]map[*Client]bool),
		unregister: make(chan *Client),
		done:       make(chan struct{}),
		logger:     logger,
	}
}

// Run processes hub events. Call this in a goroutine.
// Returns when context is cancelled.
func (h *Hub) Run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			h.logger.Info("hub shutting down")
			h.shutdown()
			return

		case client := <-h.unregister:
			h.mu.Lock()
			if _, ok := h.clients[client]; ok {
				delete(h.clients, client)
				if clients, ok := h.groups[client.key]; ok {
					delete(clients, client)
					if len(clients) == 0 {
						delete(h.groups, client.key)
					}
				}
				close(client.send)
			}
			h.mu.Unlock()
			h.logger.Debug("client unregistered",
				zap.String("feed", string(client.key)),
				zap.String("connID", client.connID),
			)
		}
	}
}

// register adds client to its feed group. Updates published from now on
// are held back until the client is primed. It reports false once the
// hub has shut down.
func (h *Hub) register(client *Client) bool {
	h.mu.Lock()
	defer h.mu.Unlock()

	if h.closed {
		return false
	}
	h.clients[client] = true
	if h.groups[client.key] == nil {
		h.groups[client.key] = make(map[*Client]bool)
	}
	h.groups[client.key][client] = true

	h.logger.Debug("client registered",
		zap.String("feed", string(client.key)),
		zap.String("connID", client.connID),
	)
	return true
}

// prime queues the snapshot ahead of every update held back since
// register.
func (h *Hub) prime(client *Client, snapshot []byte) {
	h.mu.RLock()
	defer h.mu.RUnlock()

	if !h.clients[client] {
		return
	}
	client.prime(snapshot)
}

// requestUnregister hands client to Run, or gives up once the hub is done.
func (h *Hub) requestUnregister(client *Client) {
	select {
	case h.unregister <- client:
	case <-h.done:
	}
}

// shutdown gracefully closes all client connections.
func (h *Hub) shutdown() {
	h.mu.Lock()
	defer h.mu.Unlock()

	h.closed = true
	close(h.done)
	for client := range h.clients {
		close(client.send)
		delete(h.clients, client)
	}
	h.groups = make(map[data.FeedKey]map[*Client]bool)
}

// Clients returns the number of clients subscribed to key.
func (h *Hub) Clients(key data.FeedKey) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.groups[key])
}

// Publish sends a store update to every client of its feed as one text
// frame.
func (h *Hub) Publish(u data.Update) {
	env := fsync.Envelope{Unread: u.Unread, Items: make([]json.RawMessage, len(u.Items))}
	for i, e := range u.Items {
		env.Items[i] = e.Raw
	}
	if u.Key != data.NotificationsKey {
		env.OK = fsync.OK()
	}
	payload, err := json.Marshal(env)
	if err != nil {
		return
	}
	h.broadcast(u.Key, payload)
}

func (h *Hub) broadcast(key data.FeedKey, payload []byte) {
	// Sends are non-blocking, so holding the read lock keeps unregister
	// from closing a channel mid-send.
	h.mu.RLock()
	defer h.mu.RUnlock()

	for client := range h.groups[key] {
		if !client.enqueue(payload) {
			// Buffer full, schedule disconnect
			go h.requestUnregister(client)
		}
	}
}
