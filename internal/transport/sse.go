package transport

import (
	"context"
	"fmt"
	"io"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/dgnsrekt/helpdesk-livefeed/internal/feed"
)

// SSETransport receives batches over a Server-Sent Events stream. The
// endpoint is fixed at construction; after a disconnect it reconnects to
// the same URL and relies on Last-Event-ID plus downstream filtering to
// skip replayed items.
type SSETransport struct {
	opener   StreamOpener
	endpoint string
	logger   *zap.Logger

	mu          sync.Mutex
	retry       time.Duration
	lastEventID string
	body        io.ReadCloser
	cancel      context.CancelFunc
	wg          sync.WaitGroup
}

// NewSSETransport creates an SSE transport. retry <= 0 selects DefaultRetry.
func NewSSETransport(opener StreamOpener, endpoint string, retry time.Duration, logger *zap.Logger) *SSETransport {
	if retry <= 0 {
		retry = DefaultRetry
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &SSETransport{
		opener:   opener,
		endpoint: endpoint,
		retry:    retry,
		logger:   logger,
	}
}

// Kind implements Transport.
func (t *SSETransport) Kind() Kind { return KindSSE }

// Start opens the stream. Failing to open it returns ErrTransportUnavailable.
func (t *SSETransport) Start(ctx context.Context, onBatch func(feed.Batch)) error {
	ctx, cancel := context.WithCancel(ctx)

	body, err := t.opener.OpenStream(ctx, t.endpoint, "")
	if err != nil {
		cancel()
		return fmt.Errorf("%w: opening event stream: %v", feed.ErrTransportUnavailable, err)
	}

	t.mu.Lock()
	t.cancel = cancel
	t.body = body
	t.mu.Unlock()

	t.logger.Debug("event stream opened", zap.String("endpoint", t.endpoint))

	t.wg.Add(1)
	go t.run(ctx, body, onBatch)
	return nil
}

// Stop closes the stream and waits for the reader to exit.
func (t *SSETransport) Stop() {
	t.mu.Lock()
	cancel, body := t.cancel, t.body
	t.cancel, t.body = nil, nil
	t.mu.Unlock()

	if cancel != nil {
		cancel()
	}
	if body != nil {
		// Unblocks a read that does not observe the context.
		_ = body.Close()
	}
	t.wg.Wait()
}

func (t *SSETransport) run(ctx context.Context, body io.ReadCloser, onBatch func(feed.Batch)) {
	defer t.wg.Done()

	for {
		if body != nil {
			err := t.consume(ctx, body, onBatch)
			_ = body.Close()
			body = nil

			t.mu.Lock()
			t.body = nil
			t.mu.Unlock()

			if ctx.Err() != nil {
				return
			}
			t.logger.Debug("event stream disconnected",
				zap.String("endpoint", t.endpoint),
				zap.Error(err),
			)
		}

		t.mu.Lock()
		delay, lastID := t.retry, t.lastEventID
		t.mu.Unlock()

		if !sleepCtx(ctx, delay) {
			return
		}

		var err error
		body, err = t.opener.OpenStream(ctx, t.endpoint, lastID)
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			t.logger.Debug("event stream reconnect failed",
				zap.String("endpoint", t.endpoint),
				zap.Duration("retry", delay),
				zap.Error(err),
			)
			body = nil
			continue
		}

		t.mu.Lock()
		if t.cancel == nil {
			t.mu.Unlock()
			_ = body.Close()
			return
		}
		t.body = body
		t.mu.Unlock()

		t.logger.Debug("event stream reconnected", zap.String("endpoint", t.endpoint))
	}
}

// consume reads events until the stream ends and returns the read error.
func (t *SSETransport) consume(ctx context.Context, body io.Reader, onBatch func(feed.Batch)) error {
	scanner := NewScanner(body)
	for scanner.Next() {
		ev := scanner.Event()

		t.mu.Lock()
		if r := scanner.Retry(); r > 0 {
			t.retry = r
		}
		// A connection whose events carry no id keeps the previous one.
		if id := scanner.LastEventID(); id != "" {
			t.lastEventID = id
		}
		t.mu.Unlock()

		if ev.Type != "" && ev.Type != "message" {
			continue
		}
		if ctx.Err() != nil {
			return ctx.Err()
		}
		onBatch(feed.ParseBatch([]byte(ev.Data)))
	}

	if err := scanner.Err(); err != nil {
		return fmt.Errorf("%w: %v", feed.ErrNetworkFailure, err)
	}
	return io.EOF
}
