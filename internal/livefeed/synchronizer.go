// Package livefeed keeps a client-side view of an append-only helpdesk feed
// (ticket comments, chat messages, notifications) up to date. A Synchronizer
// receives batches from a streaming or polling transport, drops items it has
// already seen and hands the rest to the registered renderer.
package livefeed

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"sync"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/dgnsrekt/helpdesk-livefeed/internal/feed"
	"github.com/dgnsrekt/helpdesk-livefeed/internal/transport"
)

// State is the lifecycle state of a Synchronizer.
type State int

const (
	Stopped State = iota
	Running
)

func (s State) String() string {
	switch s {
	case Stopped:
		return "stopped"
	case Running:
		return "running"
	default:
		return fmt.Sprintf("State(%d)", int(s))
	}
}

// Stats are cumulative counters for one Synchronizer.
type Stats struct {
	Batches         uint64
	Delivered       uint64
	Filtered        uint64
	Malformed       uint64
	NetworkFailures uint64
	Fallbacks       uint64
	Transport       transport.Kind
}

// Option configures a Synchronizer.
type Option func(*Synchronizer)

// WithLogger sets the logger. The default discards everything.
func WithLogger(logger *zap.Logger) Option {
	return func(s *Synchronizer) {
		if logger != nil {
			s.logger = logger
		}
	}
}

// Synchronizer owns the cursor and the active transport of one feed.
type Synchronizer struct {
	id      string
	cfg     Config
	backend transport.Backend
	cursor  *feed.Cursor
	logger  *zap.Logger

	// mu guards lifecycle state, hooks and stats.
	mu         sync.Mutex
	state      State
	active     transport.Transport
	fellBack   bool
	renderers  []func([]feed.Item) error
	activities []func()
	unreads    []func(int)
	stats      Stats

	// deliverMu serializes batch processing.
	deliverMu sync.Mutex
}

// New creates a stopped Synchronizer for cfg. backend performs the network
// calls for every transport variant.
func New(cfg Config, backend transport.Backend, opts ...Option) (*Synchronizer, error) {
	if backend == nil {
		return nil, errors.New("livefeed: backend is required")
	}
	if err := cfg.validate(); err != nil {
		return nil, fmt.Errorf("livefeed: invalid config for %q: %w", cfg.Name, err)
	}
	if cfg.CursorParam == "" {
		cfg.CursorParam = "after"
	}

	s := &Synchronizer{
		id:      uuid.New().String(),
		cfg:     cfg,
		backend: backend,
		cursor:  feed.NewCursor(cfg.InitialLastSeenID),
		logger:  zap.NewNop(),
	}
	for _, opt := range opts {
		opt(s)
	}
	s.logger = s.logger.With(zap.String("feed", cfg.Name), zap.String("sync_id", s.id))
	return s, nil
}

// OnItems registers a renderer. It is called once per batch that contains
// new items, with those items in delivery order.
func (s *Synchronizer) OnItems(fn func([]feed.Item) error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.renderers = append(s.renderers, fn)
}

// OnActivity registers a side effect (sound cue, badge bump) run once per
// batch that contains new items, after the renderers.
func (s *Synchronizer) OnActivity(fn func()) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.activities = append(s.activities, fn)
}

// OnUnread registers a hook receiving the unread count carried by a batch.
// It runs for every well-formed batch that includes the count, even one
// without new items.
func (s *Synchronizer) OnUnread(fn func(int)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.unreads = append(s.unreads, fn)
}

// Start selects a transport and begins receiving batches. Streaming is
// tried first; if it cannot be opened the Synchronizer falls back to
// polling for the rest of its life, including later restarts. Start on a
// running Synchronizer is a no-op.
func (s *Synchronizer) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.state == Running {
		return nil
	}

	if t := s.streamTransport(); t != nil {
		err := t.Start(ctx, s.deliver)
		if err == nil {
			s.activate(t)
			return nil
		}
		s.fellBack = true
		s.stats.Fallbacks++
		s.logger.Info("streaming unavailable, falling back to polling",
			zap.String("endpoint", s.cfg.StreamEndpoint),
			zap.String("kind", string(feed.KindOf(err))),
			zap.Error(err),
		)
	}

	t := transport.NewPollingTransport(s.backend, transport.PollingConfig{
		Endpoint:       s.cfg.PollEndpoint,
		Interval:       s.cfg.PollInterval,
		CursorParam:    s.cfg.CursorParam,
		OmitZeroCursor: s.cfg.OmitZeroCursor,
		Immediate:      s.cfg.PollImmediately,
	}, s.cursor.LastSeen, s.logger)

	if err := t.Start(ctx, s.deliver); err != nil {
		return fmt.Errorf("livefeed: starting %s: %w", s.cfg.Name, err)
	}
	s.activate(t)
	return nil
}

// streamTransport must be called with mu held.
func (s *Synchronizer) streamTransport() transport.Transport {
	if s.fellBack || s.cfg.DisableStreaming || s.cfg.StreamEndpoint == "" {
		return nil
	}

	endpoint := transport.WithCursor(s.cfg.StreamEndpoint, s.cfg.CursorParam, s.cursor.LastSeen(), s.cfg.OmitZeroCursor)
	if transport.IsWebSocketURL(endpoint) {
		return transport.NewWebSocketTransport(s.backend, endpoint, s.cfg.StreamRetry, s.logger)
	}
	return transport.NewSSETransport(s.backend, endpoint, s.cfg.StreamRetry, s.logger)
}

// activate must be called with mu held.
func (s *Synchronizer) activate(t transport.Transport) {
	s.active = t
	s.state = Running
	s.stats.Transport = t.Kind()
	s.logger.Info("live feed started",
		zap.String("transport", string(t.Kind())),
		zap.Int64("last_seen_id", s.cursor.LastSeen()),
	)
}

// Stop halts the active transport. Once Stop returns no renderer or hook
// is invoked, even for responses that were already in flight. Stop is
// idempotent. Hooks must not call Stop.
func (s *Synchronizer) Stop() {
	s.mu.Lock()
	if s.state == Stopped {
		s.mu.Unlock()
		return
	}
	s.state = Stopped
	t := s.active
	s.active = nil
	s.mu.Unlock()

	if t != nil {
		t.Stop()
	}

	// Wait out a delivery that passed the state check before we flipped it.
	s.deliverMu.Lock()
	s.deliverMu.Unlock()

	s.logger.Info("live feed stopped", zap.Int64("last_seen_id", s.cursor.LastSeen()))
}

// State returns the lifecycle state.
func (s *Synchronizer) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// LastSeenID returns the cursor value.
func (s *Synchronizer) LastSeenID() int64 {
	return s.cursor.LastSeen()
}

// Transport returns the kind of the active transport, or KindNone when stopped.
func (s *Synchronizer) Transport() transport.Kind {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.active == nil {
		return transport.KindNone
	}
	return s.active.Kind()
}

// Stats returns a snapshot of the counters.
func (s *Synchronizer) Stats() Stats {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.stats
}

// deliver processes one batch from the active transport.
func (s *Synchronizer) deliver(b feed.Batch) {
	s.deliverMu.Lock()
	defer s.deliverMu.Unlock()

	s.mu.Lock()
	if s.state != Running {
		s.mu.Unlock()
		s.logger.Debug("dropping batch after stop", zap.Int("items", len(b.Items)))
		return
	}
	s.stats.Batches++
	if b.Err != nil {
		switch feed.KindOf(b.Err) {
		case feed.KindMalformedPayload:
			s.stats.Malformed++
		default:
			s.stats.NetworkFailures++
		}
	}
	renderers := slices.Clone(s.renderers)
	activities := slices.Clone(s.activities)
	unreads := slices.Clone(s.unreads)
	s.mu.Unlock()

	if b.Err != nil {
		s.logger.Debug("ignoring failed batch",
			zap.String("kind", string(feed.KindOf(b.Err))),
			zap.Error(b.Err),
		)
		return
	}

	if b.Unread != nil {
		for _, fn := range unreads {
			s.safeCall("unread hook", func() error { fn(*b.Unread); return nil })
		}
	}

	fresh := s.filter(b.Items)

	s.mu.Lock()
	s.stats.Filtered += uint64(len(b.Items) - len(fresh))
	s.stats.Delivered += uint64(len(fresh))
	s.mu.Unlock()

	if len(fresh) == 0 {
		return
	}

	s.logger.Debug("delivering items",
		zap.Int("count", len(fresh)),
		zap.Int64("last_seen_id", s.cursor.LastSeen()),
	)

	for _, fn := range renderers {
		s.safeCall("renderer", func() error { return fn(fresh) })
	}
	for _, fn := range activities {
		s.safeCall("activity hook", func() error { fn(); return nil })
	}
}

// filter keeps the items newer than the cursor value at batch start, in
// delivery order, skipping repeated ids, then advances the cursor.
func (s *Synchronizer) filter(items []feed.Item) []feed.Item {
	floor := s.cursor.LastSeen()
	seen := make(map[int64]struct{}, len(items))

	fresh := make([]feed.Item, 0, len(items))
	for _, it := range items {
		if it.ID <= floor {
			continue
		}
		if _, dup := seen[it.ID]; dup {
			continue
		}
		seen[it.ID] = struct{}{}
		fresh = append(fresh, it)
	}

	ids := make([]int64, len(fresh))
	for i, it := range fresh {
		ids[i] = it.ID
	}
	s.cursor.Advance(ids...)
	return fresh
}

// safeCall runs a callback, logging and swallowing errors and panics.
func (s *Synchronizer) safeCall(what string, fn func() error) {
	defer func() {
		if r := recover(); r != nil {
			s.logger.Warn(what+" panicked", zap.Any("panic", r))
		}
	}()
	if err := fn(); err != nil {
		s.logger.Warn(what+" failed", zap.Error(err))
	}
}
