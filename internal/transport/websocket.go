package transport

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/dgnsrekt/helpdesk-livefeed/internal/feed"
)

const (
	// Maximum frame size accepted from the backend.
	maxMessageSize = 512 * 1024

	// Time allowed between frames (or pings) before the connection is
	// considered dead.
	pongWait = 60 * time.Second
)

// WebSocketTransport receives batches as websocket text frames, one JSON
// envelope per frame.
type WebSocketTransport struct {
	dialer   Dialer
	endpoint string
	retry    time.Duration
	logger   *zap.Logger

	mu     sync.Mutex
	conn   *websocket.Conn
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// NewWebSocketTransport creates a websocket transport. retry <= 0 selects
// DefaultRetry.
func NewWebSocketTransport(dialer Dialer, endpoint string, retry time.Duration, logger *zap.Logger) *WebSocketTransport {
	if retry <= 0 {
		retry = DefaultRetry
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &WebSocketTransport{
		dialer:   dialer,
		endpoint: endpoint,
		retry:    retry,
		logger:   logger,
	}
}

// Kind implements Transport.
func (t *WebSocketTransport) Kind() Kind { return KindWebSocket }

// Start dials the endpoint. A failed dial returns ErrTransportUnavailable.
func (t *WebSocketTransport) Start(ctx context.Context, onBatch func(feed.Batch)) error {
	ctx, cancel := context.WithCancel(ctx)

	conn, err := t.dialer.DialWebSocket(ctx, t.endpoint)
	if err != nil {
		cancel()
		return fmt.Errorf("%w: dialing websocket: %v", feed.ErrTransportUnavailable, err)
	}

	t.mu.Lock()
	t.cancel = cancel
	t.conn = conn
	t.mu.Unlock()

	t.wg.Add(1)
	go t.run(ctx, conn, onBatch)
	return nil
}

// Stop closes the connection and waits for the read loop to exit.
func (t *WebSocketTransport) Stop() {
	t.mu.Lock()
	cancel, conn := t.cancel, t.conn
	t.cancel, t.conn = nil, nil
	t.mu.Unlock()

	if cancel != nil {
		cancel()
	}
	if conn != nil {
		// Unblocks ReadMessage.
		_ = conn.Close()
	}
	t.wg.Wait()
}

func (t *WebSocketTransport) run(ctx context.Context, conn *websocket.Conn, onBatch func(feed.Batch)) {
	defer t.wg.Done()

	for {
		if conn != nil {
			err := t.readPump(ctx, conn, onBatch)
			_ = conn.Close()
			conn = nil

			if ctx.Err() != nil {
				return
			}
			t.logger.Debug("websocket disconnected",
				zap.String("endpoint", t.endpoint),
				zap.Error(err),
			)
		}

		if !sleepCtx(ctx, t.retry) {
			return
		}

		var err error
		conn, err = t.dialer.DialWebSocket(ctx, t.endpoint)
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			t.logger.Debug("websocket reconnect failed",
				zap.String("endpoint", t.endpoint),
				zap.Error(err),
			)
			conn = nil
			continue
		}

		t.mu.Lock()
		if t.cancel == nil {
			// Stopped while dialing.
			t.mu.Unlock()
			_ = conn.Close()
			return
		}
		t.conn = conn
		t.mu.Unlock()
	}
}

func (t *WebSocketTransport) readPump(ctx context.Context, conn *websocket.Conn, onBatch func(feed.Batch)) error {
	conn.SetReadLimit(maxMessageSize)
	_ = conn.SetReadDeadline(time.Now().Add(pongWait))
	conn.SetPingHandler(func(data string) error {
		_ = conn.SetReadDeadline(time.Now().Add(pongWait))
		return conn.WriteControl(websocket.PongMessage, []byte(data), time.Now().Add(time.Second))
	})

	for {
		msgType, data, err := conn.ReadMessage()
		if err != nil {
			return err
		}
		_ = conn.SetReadDeadline(time.Now().Add(pongWait))

		if msgType != websocket.TextMessage {
			continue
		}
		if ctx.Err() != nil {
			return ctx.Err()
		}
		onBatch(feed.ParseBatch(data))
	}
}
