package transport

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dgnsrekt/helpdesk-livefeed/internal/feed"
)

type wsDialer struct{}

func (wsDialer) DialWebSocket(ctx context.Context, endpoint string) (*websocket.Conn, error) {
	conn, _, err := websocket.DefaultDialer.DialContext(ctx, endpoint, nil)
	return conn, err
}

func TestWebSocketDeliversTextFrames(t *testing.T) {
	upgrader := websocket.Upgrader{}
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		defer conn.Close()

		_ = conn.WriteMessage(websocket.TextMessage, []byte(`{"items":[{"id":1},{"id":2}]}`))
		_ = conn.WriteMessage(websocket.BinaryMessage, []byte{0x01})
		_ = conn.WriteMessage(websocket.TextMessage, []byte(`{"items":[{"id":3}]}`))

		// Hold the connection until the client goes away.
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}))
	defer server.Close()

	endpoint := "ws" + strings.TrimPrefix(server.URL, "http") + "/ws"
	require.True(t, IsWebSocketURL(endpoint))

	tr := NewWebSocketTransport(wsDialer{}, endpoint, 0, nil)
	sink := &batchSink{}
	require.NoError(t, tr.Start(context.Background(), sink.add))

	require.Eventually(t, func() bool { return sink.len() == 2 }, 2*time.Second, 5*time.Millisecond)
	tr.Stop()

	batches := sink.snapshot()
	assert.Equal(t, []int64{1, 2}, batches[0].IDs())
	assert.Equal(t, []int64{3}, batches[1].IDs())
	assert.Equal(t, KindWebSocket, tr.Kind())
}

type failingDialer struct{}

func (failingDialer) DialWebSocket(context.Context, string) (*websocket.Conn, error) {
	return nil, errors.New("bad handshake")
}

func TestWebSocketStartFailsWhenUnavailable(t *testing.T) {
	tr := NewWebSocketTransport(failingDialer{}, "ws://desk/ws", 0, nil)

	err := tr.Start(context.Background(), func(feed.Batch) {})
	assert.ErrorIs(t, err, feed.ErrTransportUnavailable)
	tr.Stop()
}
