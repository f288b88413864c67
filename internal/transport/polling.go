package transport

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/dgnsrekt/helpdesk-livefeed/internal/feed"
)

// PollingConfig configures a PollingTransport.
type PollingConfig struct {
	Endpoint string
	Interval time.Duration

	// CursorParam is the query parameter carrying the cursor ("after").
	CursorParam string

	// OmitZeroCursor drops the cursor parameter while the cursor is 0.
	OmitZeroCursor bool

	// Immediate issues one poll at Start instead of waiting a full interval.
	Immediate bool
}

// PollingTransport asks for "items after cursor" on a fixed interval.
// Ticks are not serialized: a slow response may arrive after the next
// tick has fired, and both are delivered.
type PollingTransport struct {
	poller Poller
	cfg    PollingConfig
	cursor func() int64
	logger *zap.Logger

	mu     sync.Mutex
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// NewPollingTransport creates a polling transport. cursor is read at every
// tick to build the request.
func NewPollingTransport(poller Poller, cfg PollingConfig, cursor func() int64, logger *zap.Logger) *PollingTransport {
	if cfg.CursorParam == "" {
		cfg.CursorParam = "after"
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &PollingTransport{
		poller: poller,
		cfg:    cfg,
		cursor: cursor,
		logger: logger,
	}
}

// Kind implements Transport.
func (t *PollingTransport) Kind() Kind { return KindPolling }

// Start begins polling. It only fails on an invalid interval.
func (t *PollingTransport) Start(ctx context.Context, onBatch func(feed.Batch)) error {
	if t.cfg.Interval <= 0 {
		return fmt.Errorf("%w: poll interval must be positive", feed.ErrTransportUnavailable)
	}

	ctx, cancel := context.WithCancel(ctx)
	t.mu.Lock()
	t.cancel = cancel
	t.mu.Unlock()

	t.logger.Debug("polling started",
		zap.String("endpoint", t.cfg.Endpoint),
		zap.Duration("interval", t.cfg.Interval),
	)

	t.wg.Add(1)
	go t.loop(ctx, onBatch)
	return nil
}

// Stop cancels pending requests and waits for in-flight ticks to return.
func (t *PollingTransport) Stop() {
	t.mu.Lock()
	cancel := t.cancel
	t.cancel = nil
	t.mu.Unlock()

	if cancel != nil {
		cancel()
	}
	t.wg.Wait()
}

func (t *PollingTransport) loop(ctx context.Context, onBatch func(feed.Batch)) {
	defer t.wg.Done()

	if t.cfg.Immediate {
		t.wg.Add(1)
		go t.tick(ctx, onBatch)
	}

	ticker := time.NewTicker(t.cfg.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			t.wg.Add(1)
			go t.tick(ctx, onBatch)
		}
	}
}

func (t *PollingTransport) tick(ctx context.Context, onBatch func(feed.Batch)) {
	defer t.wg.Done()

	endpoint := WithCursor(t.cfg.Endpoint, t.cfg.CursorParam, t.cursor(), t.cfg.OmitZeroCursor)
	body, err := t.poller.Poll(ctx, endpoint)
	if ctx.Err() != nil {
		return
	}

	if err != nil {
		if !errors.Is(err, feed.ErrNetworkFailure) {
			err = fmt.Errorf("%w: %v", feed.ErrNetworkFailure, err)
		}
		onBatch(feed.Batch{Err: err})
		return
	}
	onBatch(feed.ParseBatch(body))
}
