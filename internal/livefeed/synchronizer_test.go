package livefeed

import (
	"context"
	"errors"
	"fmt"
	"io"
	"math/rand"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/dgnsrekt/helpdesk-livefeed/internal/feed"
	"github.com/dgnsrekt/helpdesk-livefeed/internal/transport"
)

// stubBackend serves scripted poll bodies; the last body repeats. Streaming
// always fails unless streamBody is set.
type stubBackend struct {
	mu         sync.Mutex
	bodies     []string
	polls      []string
	streamBody io.ReadCloser
	streamErr  error
}

func (b *stubBackend) Poll(_ context.Context, endpoint string) ([]byte, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.polls = append(b.polls, endpoint)
	if len(b.bodies) == 0 {
		return []byte(`{"ok":true,"items":[]}`), nil
	}
	body := b.bodies[0]
	if len(b.bodies) > 1 {
		b.bodies = b.bodies[1:]
	}
	return []byte(body), nil
}

func (b *stubBackend) OpenStream(context.Context, string, string) (io.ReadCloser, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.streamBody != nil {
		body := b.streamBody
		b.streamBody = nil
		return body, nil
	}
	if b.streamErr != nil {
		return nil, b.streamErr
	}
	return nil, errors.New("stream endpoint not found")
}

func (b *stubBackend) DialWebSocket(context.Context, string) (*websocket.Conn, error) {
	return nil, errors.New("websocket not supported")
}

func (b *stubBackend) pollCount() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.polls)
}

// recorder captures renderer and activity calls.
type recorder struct {
	mu       sync.Mutex
	renders  [][]int64
	activity int
	unread   []int
}

func (r *recorder) attach(s *Synchronizer) {
	s.OnItems(func(items []feed.Item) error {
		r.mu.Lock()
		defer r.mu.Unlock()
		ids := make([]int64, len(items))
		for i, it := range items {
			ids[i] = it.ID
		}
		r.renders = append(r.renders, ids)
		return nil
	})
	s.OnActivity(func() {
		r.mu.Lock()
		r.activity++
		r.mu.Unlock()
	})
	s.OnUnread(func(n int) {
		r.mu.Lock()
		r.unread = append(r.unread, n)
		r.mu.Unlock()
	})
}

func (r *recorder) renderCalls() [][]int64 {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([][]int64(nil), r.renders...)
}

func (r *recorder) activityCalls() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.activity
}

func newTestSync(t *testing.T, cfg Config, backend transport.Backend) (*Synchronizer, *recorder) {
	t.Helper()
	if cfg.Name == "" {
		cfg.Name = "comments"
	}
	if cfg.PollEndpoint == "" {
		cfg.PollEndpoint = "http://desk/tickets/1/comments/poll"
	}
	if cfg.PollInterval == 0 {
		cfg.PollInterval = time.Hour
	}
	s, err := New(cfg, backend, WithLogger(zap.NewNop()))
	require.NoError(t, err)

	rec := &recorder{}
	rec.attach(s)
	return s, rec
}

// started returns a running synchronizer whose polling transport never
// fires on its own, so tests drive deliver directly.
func started(t *testing.T, cfg Config) (*Synchronizer, *recorder) {
	t.Helper()
	s, rec := newTestSync(t, cfg, &stubBackend{})
	require.NoError(t, s.Start(context.Background()))
	t.Cleanup(s.Stop)
	return s, rec
}

func batch(ids ...int64) feed.Batch {
	items := make([]feed.Item, len(ids))
	for i, id := range ids {
		items[i] = feed.Item{ID: id, Payload: []byte(fmt.Sprintf(`{"id":%d}`, id))}
	}
	return feed.Batch{Items: items}
}

func TestDeliverIsIdempotent(t *testing.T) {
	s, rec := started(t, Config{})

	s.deliver(batch(1, 2))
	s.deliver(batch(1, 2))

	assert.Equal(t, [][]int64{{1, 2}}, rec.renderCalls())
	assert.Equal(t, 1, rec.activityCalls())
	assert.Equal(t, int64(2), s.LastSeenID())
}

func TestFilterKeepsNewerItemsInOrder(t *testing.T) {
	s, rec := started(t, Config{InitialLastSeenID: 10})

	s.deliver(batch(3, 11, 9, 15))

	assert.Equal(t, [][]int64{{11, 15}}, rec.renderCalls())
	assert.Equal(t, int64(15), s.LastSeenID())
}

func TestFilterUsesCursorAtBatchStart(t *testing.T) {
	s, rec := started(t, Config{InitialLastSeenID: 10})

	// 12 is below 15 but above the cursor when the batch arrived.
	s.deliver(batch(15, 12, 15))

	assert.Equal(t, [][]int64{{15, 12}}, rec.renderCalls())
	assert.Equal(t, int64(15), s.LastSeenID())

	stats := s.Stats()
	assert.Equal(t, uint64(2), stats.Delivered)
	assert.Equal(t, uint64(1), stats.Filtered)
}

func TestCursorIsMonotonicUnderInterleaving(t *testing.T) {
	s, _ := started(t, Config{})

	var (
		wg     sync.WaitGroup
		maxID  atomic.Int64
		broken atomic.Bool
	)
	for w := 0; w < 8; w++ {
		wg.Add(1)
		go func(seed int64) {
			defer wg.Done()
			rng := rand.New(rand.NewSource(seed))
			prev := s.LastSeenID()
			for i := 0; i < 200; i++ {
				ids := make([]int64, rng.Intn(5))
				for j := range ids {
					ids[j] = rng.Int63n(1000)
					for {
						cur := maxID.Load()
						if ids[j] <= cur || maxID.CompareAndSwap(cur, ids[j]) {
							break
						}
					}
				}
				s.deliver(batch(ids...))

				now := s.LastSeenID()
				if now < prev {
					broken.Store(true)
				}
				prev = now
			}
		}(int64(w))
	}
	wg.Wait()

	assert.False(t, broken.Load(), "cursor moved backwards")
	assert.GreaterOrEqual(t, s.LastSeenID(), maxID.Load())
}

func TestEmptyAndFailedBatchesAreSilent(t *testing.T) {
	s, rec := started(t, Config{InitialLastSeenID: 4})

	s.deliver(batch())
	s.deliver(feed.ParseBatch([]byte(`not json`)))
	s.deliver(feed.ParseBatch([]byte(`{"ok":false,"error":"ticket closed"}`)))
	s.deliver(batch(1, 4))

	assert.Empty(t, rec.renderCalls())
	assert.Equal(t, 0, rec.activityCalls())
	assert.Equal(t, int64(4), s.LastSeenID())

	stats := s.Stats()
	assert.Equal(t, uint64(4), stats.Batches)
	assert.Equal(t, uint64(1), stats.Malformed)
	assert.Equal(t, uint64(1), stats.NetworkFailures)
}

func TestUnreadHookRunsWithoutItems(t *testing.T) {
	s, rec := started(t, Config{Name: "notifications"})

	s.deliver(feed.ParseBatch([]byte(`{"ok":true,"unread":3,"items":[]}`)))
	s.deliver(feed.ParseBatch([]byte(`{"unread":4,"items":[{"id":"9","title":"Ticket #2"}]}`)))

	rec.mu.Lock()
	assert.Equal(t, []int{3, 4}, rec.unread)
	rec.mu.Unlock()
	assert.Equal(t, [][]int64{{9}}, rec.renderCalls())
}

func TestRendererFailuresAreSwallowed(t *testing.T) {
	s, rec := newTestSync(t, Config{}, &stubBackend{})
	s.OnItems(func([]feed.Item) error { panic("boom") })
	s.OnItems(func([]feed.Item) error { return errors.New("render failed") })
	require.NoError(t, s.Start(context.Background()))
	defer s.Stop()

	s.deliver(batch(7))

	assert.Equal(t, int64(7), s.LastSeenID())
	assert.Equal(t, [][]int64{{7}}, rec.renderCalls())
	assert.Equal(t, 1, rec.activityCalls())
}

func TestStartFallsBackToPolling(t *testing.T) {
	backend := &stubBackend{}
	s, _ := newTestSync(t, Config{
		StreamEndpoint: "http://desk/tickets/1/comments/stream",
		PollInterval:   20 * time.Millisecond,
	}, backend)

	require.NoError(t, s.Start(context.Background()))
	defer s.Stop()

	assert.Equal(t, Running, s.State())
	assert.Equal(t, transport.KindPolling, s.Transport())
	assert.Equal(t, uint64(1), s.Stats().Fallbacks)

	require.Eventually(t, func() bool { return backend.pollCount() >= 1 }, time.Second, 5*time.Millisecond)
}

func TestFallbackSurvivesRestart(t *testing.T) {
	backend := &stubBackend{}
	s, _ := newTestSync(t, Config{
		StreamEndpoint: "http://desk/tickets/1/comments/stream",
	}, backend)

	require.NoError(t, s.Start(context.Background()))
	assert.Equal(t, transport.KindPolling, s.Transport())
	s.Stop()

	// The stream would open now, but the synchronizer stays on polling.
	pr, pw := io.Pipe()
	defer pw.Close()
	backend.mu.Lock()
	backend.streamBody = pr
	backend.mu.Unlock()

	require.NoError(t, s.Start(context.Background()))
	defer s.Stop()

	assert.Equal(t, transport.KindPolling, s.Transport())
	assert.Equal(t, uint64(1), s.Stats().Fallbacks)
}

func TestStartUsesStreamWhenAvailable(t *testing.T) {
	pr, pw := io.Pipe()
	backend := &stubBackend{streamBody: pr}
	s, rec := newTestSync(t, Config{
		StreamEndpoint: "http://desk/notify/stream",
		CursorParam:    "after_id",
		OmitZeroCursor: true,
	}, backend)

	require.NoError(t, s.Start(context.Background()))
	assert.Equal(t, transport.KindSSE, s.Transport())

	_, err := io.WriteString(pw, "data: {\"unread\":1,\"items\":[{\"id\":3}]}\n\n")
	require.NoError(t, err)
	require.Eventually(t, func() bool { return len(rec.renderCalls()) == 1 }, time.Second, 5*time.Millisecond)

	// Closing the pipe ends the read loop so Stop does not block on it.
	_ = pw.Close()
	s.Stop()
	assert.Equal(t, int64(3), s.LastSeenID())
	assert.Equal(t, 0, backend.pollCount())
}

func TestStopGuard(t *testing.T) {
	s, rec := started(t, Config{})

	s.Stop()
	s.deliver(batch(1, 2, 3))

	assert.Empty(t, rec.renderCalls())
	assert.Equal(t, 0, rec.activityCalls())
	assert.Equal(t, int64(0), s.LastSeenID())
}

func TestLifecycle(t *testing.T) {
	backend := &stubBackend{}
	s, _ := newTestSync(t, Config{}, backend)

	assert.Equal(t, Stopped, s.State())
	assert.Equal(t, transport.KindNone, s.Transport())

	// Stop before Start is a no-op.
	s.Stop()

	require.NoError(t, s.Start(context.Background()))
	require.NoError(t, s.Start(context.Background()))
	assert.Equal(t, Running, s.State())

	s.Stop()
	s.Stop()
	assert.Equal(t, Stopped, s.State())
	assert.Equal(t, "stopped", s.State().String())
}

func TestPollingScenario(t *testing.T) {
	backend := &stubBackend{bodies: []string{
		`{"ok":true,"items":[{"id":1,"body":"hello"}]}`,
		`{"ok":true,"items":[]}`,
	}}
	s, rec := newTestSync(t, Config{PollInterval: 25 * time.Millisecond}, backend)

	require.NoError(t, s.Start(context.Background()))
	require.Eventually(t, func() bool { return backend.pollCount() >= 2 }, 2*time.Second, 5*time.Millisecond)
	s.Stop()

	assert.Equal(t, [][]int64{{1}}, rec.renderCalls())
	assert.Equal(t, int64(1), s.LastSeenID())
	assert.Equal(t, "http://desk/tickets/1/comments/poll?after=0", backend.polls[0])
}

func TestNewValidatesConfig(t *testing.T) {
	_, err := New(Config{Name: "chat"}, &stubBackend{})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "poll endpoint is required")
	assert.Contains(t, err.Error(), "poll interval must be positive")

	_, err = New(Config{PollEndpoint: "/chat/poll", PollInterval: time.Second}, nil)
	assert.Error(t, err)
}
