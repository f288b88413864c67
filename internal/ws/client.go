package ws

import (
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/dgnsrekt/helpdesk-livefeed/internal/data"
	fsync "github.com/dgnsrekt/helpdesk-livefeed/internal/sync"
)

const (
	// Time allowed to write a message to the peer.
	writeWait = 10 * time.Second

	// Time allowed to read the next pong message from the peer.
	pongWait = 60 * time.Second

	// Send pings to peer with this period. Must be less than pongWait.
	pingPeriod = (pongWait * 9) / 10

	// Maximum message size allowed from peer.
	maxMessageSize = 4 * 1024

	// Send buffer size per client.
	sendBufferSize = 256
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin:     func(r *http.Request) bool { return true },
}

// Client represents a WebSocket client connection subscribed to one feed.
type Client struct {
	hub    *Hub
	conn   *websocket.Conn
	send   chan []byte
	key    data.FeedKey
	connID string
	logger *zap.Logger

	// Updates that arrive before the snapshot is queued wait in pending.
	mu      sync.Mutex
	primed  bool
	pending [][]byte
}

// HandleWS upgrades the request and subscribes the connection to key. The
// first frame carries the items after the cursor.
func (h *Hub) HandleWS(w http.ResponseWriter, r *http.Request, key data.FeedKey, after int64, snapshot fsync.Snapshot) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Error("websocket upgrade failed", zap.Error(err))
		return
	}

	client := &Client{
		hub:    h,
		conn:   conn,
		send:   make(chan []byte, sendBufferSize),
		key:    key,
		connID: uuid.New().String(),
		logger: h.logger,
	}

	// Register before loading the snapshot so no update is missed, and
	// queue the snapshot ahead of anything published meanwhile.
	if !h.register(client) {
		conn.Close()
		return
	}

	payload, err := json.Marshal(snapshot(after))
	if err != nil {
		h.logger.Error("failed to encode snapshot", zap.Error(err))
		payload = nil
	}
	h.prime(client, payload)

	// Start read/write pumps
	go client.writePump()
	go client.readPump()
}

// enqueue queues payload without blocking. It reports false when the
// client cannot keep up.
func (c *Client) enqueue(payload []byte) bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	if !c.primed {
		if len(c.pending) >= sendBufferSize-1 {
			return false
		}
		c.pending = append(c.pending, payload)
		return true
	}
	select {
	case c.send <- payload:
		return true
	default:
		return false
	}
}

// prime queues the snapshot, then the held-back updates.
func (c *Client) prime(snapshot []byte) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if snapshot != nil {
		c.pending = append([][]byte{snapshot}, c.pending...)
	}
	for _, payload := range c.pending {
		select {
		case c.send <- payload:
		default:
		}
	}
	c.pending = nil
	c.primed = true
}

// readPump drains the connection so control frames are processed and a
// closed peer is noticed. Upstream messages are ignored.
func (c *Client) readPump() {
	defer func() {
		c.hub.requestUnregister(c)
		c.conn.Close()
	}()

	c.conn.SetReadLimit(maxMessageSize)
	c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		c.conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		if _, _, err := c.conn.ReadMessage(); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				c.logger.Debug("websocket read error",
					zap.String("connID", c.connID),
					zap.Error(err),
				)
			}
			break
		}
	}
}

// writePump writes messages to the WebSocket connection.
func (c *Client) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case message, ok := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				// Channel closed, send close message
				c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, message); err != nil {
				c.logger.Debug("websocket write error",
					zap.String("connID", c.connID),
					zap.Error(err),
				)
				return
			}

		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
