package sync

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	gosync "sync"
	"time"

	"go.uber.org/zap"

	"github.com/dgnsrekt/helpdesk-livefeed/internal/data"
)

// Broadcaster streams feed updates to connected SSE clients.
type Broadcaster struct {
	retry    time.Duration
	interval time.Duration
	logger   *zap.Logger

	mu      gosync.RWMutex
	clients map[*sseClient]bool
}

// sseClient represents a connected SSE subscriber.
type sseClient struct {
	key     data.FeedKey
	dataCh  chan []byte
	doneCh  chan struct{}
	flusher http.Flusher
	writer  http.ResponseWriter
}

// NewBroadcaster creates a broadcaster. retry is advertised to clients as
// the reconnection delay; every interval each client gets an empty batch.
func NewBroadcaster(retry, interval time.Duration, logger *zap.Logger) *Broadcaster {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Broadcaster{
		retry:    retry,
		interval: interval,
		logger:   logger,
		clients:  make(map[*sseClient]bool),
	}
}

// Run sends periodic empty batches until ctx is cancelled.
func (b *Broadcaster) Run(ctx context.Context) {
	if b.interval <= 0 {
		return
	}
	b.logger.Info("sse broadcaster starting", zap.Duration("interval", b.interval))

	ticker := time.NewTicker(b.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			b.logger.Info("sse broadcaster stopping")
			return
		case <-ticker.C:
			b.heartbeat()
		}
	}
}

// Publish forwards a store update to every client of its feed.
func (b *Broadcaster) Publish(u data.Update) {
	env := Envelope{Unread: u.Unread, Items: make([]json.RawMessage, len(u.Items))}
	var lastID int64
	for i, e := range u.Items {
		env.Items[i] = e.Raw
		if e.ID > lastID {
			lastID = e.ID
		}
	}
	if u.Key != data.NotificationsKey {
		env.OK = OK()
	}

	eventData, err := formatEvent(lastID, env)
	if err != nil {
		return
	}
	b.fanOut(u.Key, eventData)
}

// HandleSSE streams one feed. The client resumes after the larger of the
// cursor and its Last-Event-ID.
func (b *Broadcaster) HandleSSE(w http.ResponseWriter, r *http.Request, key data.FeedKey, after int64, snapshot Snapshot) {
	// Check if SSE is supported
	flusher, ok := w.(http.Flusher)
	if !ok {
		http.Error(w, "SSE not supported", http.StatusInternalServerError)
		return
	}

	if id, err := strconv.ParseInt(r.Header.Get("Last-Event-ID"), 10, 64); err == nil && id > after {
		after = id
	}

	// Set SSE headers
	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")

	client := &sseClient{
		key:     key,
		dataCh:  make(chan []byte, 16),
		doneCh:  make(chan struct{}),
		flusher: flusher,
		writer:  w,
	}

	b.addClient(client)
	defer b.removeClient(client)

	b.logger.Debug("sse client connected",
		zap.String("feed", string(key)),
		zap.Int64("after", after),
		zap.String("remote_addr", r.RemoteAddr),
	)

	if b.retry > 0 {
		fmt.Fprintf(w, "retry: %d\n\n", b.retry.Milliseconds())
	}

	// Send initial snapshot
	env := snapshot(after)
	lastID := after
	for _, raw := range env.Items {
		if id := rawID(raw); id > lastID {
			lastID = id
		}
	}
	eventData, err := formatEvent(lastID, env)
	if err != nil {
		b.logger.Error("failed to encode snapshot", zap.Error(err))
		return
	}
	if _, err := w.Write(eventData); err != nil {
		return
	}
	flusher.Flush()

	// Stream events
	for {
		select {
		case <-r.Context().Done():
			b.logger.Debug("sse client disconnected", zap.String("feed", string(key)))
			return
		case <-client.doneCh:
			return
		case eventData := <-client.dataCh:
			if _, err := client.writer.Write(eventData); err != nil {
				b.logger.Debug("failed to write to client", zap.Error(err))
				return
			}
			client.flusher.Flush()
		}
	}
}

// Clients returns the number of connected clients.
func (b *Broadcaster) Clients() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.clients)
}

func (b *Broadcaster) addClient(client *sseClient) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.clients[client] = true
}

func (b *Broadcaster) removeClient(client *sseClient) {
	b.mu.Lock()
	defer b.mu.Unlock()
	delete(b.clients, client)
	close(client.doneCh)
}

func (b *Broadcaster) heartbeat() {
	b.mu.RLock()
	keys := make(map[data.FeedKey]bool)
	for client := range b.clients {
		keys[client.key] = true
	}
	b.mu.RUnlock()

	for key := range keys {
		env := Envelope{Items: []json.RawMessage{}}
		if key != data.NotificationsKey {
			env.OK = OK()
		}
		payload, err := json.Marshal(env)
		if err != nil {
			continue
		}
		b.fanOut(key, []byte(fmt.Sprintf("data: %s\n\n", payload)))
	}
}

func (b *Broadcaster) fanOut(key data.FeedKey, eventData []byte) {
	b.mu.RLock()
	clients := make([]*sseClient, 0, len(b.clients))
	for client := range b.clients {
		if client.key == key {
			clients = append(clients, client)
		}
	}
	b.mu.RUnlock()

	for _, client := range clients {
		select {
		case client.dataCh <- eventData:
		default:
			// Channel full, client is slow
			b.logger.Debug("client channel full, dropping event",
				zap.String("feed", string(key)),
			)
		}
	}
}

// formatEvent renders one SSE message. The id line is omitted while no
// item has been sent.
func formatEvent(id int64, env Envelope) ([]byte, error) {
	if env.Items == nil {
		env.Items = []json.RawMessage{}
	}
	jsonData, err := json.Marshal(env)
	if err != nil {
		return nil, err
	}

	if id <= 0 {
		return []byte(fmt.Sprintf("data: %s\n\n", jsonData)), nil
	}
	return []byte(fmt.Sprintf("id: %d\ndata: %s\n\n", id, jsonData)), nil
}

func rawID(raw json.RawMessage) int64 {
	var probe struct {
		ID int64 `json:"id"`
	}
	if err := json.Unmarshal(raw, &probe); err != nil {
		return 0
	}
	return probe.ID
}
