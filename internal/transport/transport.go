// Package transport delivers raw feed batches from a helpdesk backend,
// either over a persistent stream (Server-Sent Events or websocket) or by
// polling at a fixed interval.
package transport

import (
	"context"
	"io"
	"net/url"
	"strconv"
	"time"

	"github.com/gorilla/websocket"

	"github.com/dgnsrekt/helpdesk-livefeed/internal/feed"
)

// DefaultRetry is the reconnection delay used when the server does not
// send a "retry:" field.
const DefaultRetry = 3 * time.Second

// Kind names a transport variant.
type Kind string

const (
	KindNone      Kind = ""
	KindSSE       Kind = "sse"
	KindWebSocket Kind = "websocket"
	KindPolling   Kind = "polling"
)

// Transport delivers batches to onBatch until stopped. Start fails only
// when the transport cannot be opened at all; later network problems and
// malformed messages are delivered as batches with Err set.
// onBatch is never invoked after Stop returns.
type Transport interface {
	Start(ctx context.Context, onBatch func(feed.Batch)) error
	Stop()
	Kind() Kind
}

// Poller issues one poll request and returns the response body.
type Poller interface {
	Poll(ctx context.Context, endpoint string) ([]byte, error)
}

// StreamOpener opens a Server-Sent Events stream. lastEventID is empty on
// the first connection.
type StreamOpener interface {
	OpenStream(ctx context.Context, endpoint, lastEventID string) (io.ReadCloser, error)
}

// Dialer opens a websocket connection.
type Dialer interface {
	DialWebSocket(ctx context.Context, endpoint string) (*websocket.Conn, error)
}

// Backend is everything the transports need from the HTTP layer.
type Backend interface {
	Poller
	StreamOpener
	Dialer
}

// WithCursor sets the cursor query parameter on endpoint. When omitZero is
// set and cursor is 0, the parameter is removed instead.
func WithCursor(endpoint, param string, cursor int64, omitZero bool) string {
	u, err := url.Parse(endpoint)
	if err != nil {
		return endpoint
	}

	q := u.Query()
	if omitZero && cursor <= 0 {
		q.Del(param)
	} else {
		q.Set(param, strconv.FormatInt(cursor, 10))
	}
	u.RawQuery = q.Encode()
	return u.String()
}

// IsWebSocketURL reports whether endpoint uses a ws:// or wss:// scheme.
func IsWebSocketURL(endpoint string) bool {
	u, err := url.Parse(endpoint)
	if err != nil {
		return false
	}
	return u.Scheme == "ws" || u.Scheme == "wss"
}

// sleepCtx waits for d or until ctx is done. It reports whether the full
// delay elapsed.
func sleepCtx(ctx context.Context, d time.Duration) bool {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-t.C:
		return true
	}
}
