package transport

import (
	"strings"
	"testing"
	"time"
)

func TestScannerBasic(t *testing.T) {
	t.Parallel()

	input := "data: {\"items\":[{\"id\":1}]}\n\nevent: ping\ndata: {}\n\n"
	scanner := NewScanner(strings.NewReader(input))

	if !scanner.Next() {
		t.Fatal("expected first event")
	}
	event := scanner.Event()
	if event.Type != "" {
		t.Errorf("event.Type = %q, want empty", event.Type)
	}
	if event.Data != `{"items":[{"id":1}]}` {
		t.Errorf("event.Data = %q, want JSON", event.Data)
	}

	if !scanner.Next() {
		t.Fatal("expected second event")
	}
	if scanner.Event().Type != "ping" {
		t.Errorf("event.Type = %q, want ping", scanner.Event().Type)
	}

	if scanner.Next() {
		t.Error("expected no more events")
	}
	if err := scanner.Err(); err != nil {
		t.Errorf("unexpected error: %v", err)
	}
}

func TestScannerMultipleDataLines(t *testing.T) {
	t.Parallel()

	scanner := NewScanner(strings.NewReader("data: line one\ndata: line two\n\n"))
	if !scanner.Next() {
		t.Fatal("expected event")
	}
	if got := scanner.Event().Data; got != "line one\nline two" {
		t.Errorf("event.Data = %q", got)
	}
}

func TestScannerCommentsAndCRLF(t *testing.T) {
	t.Parallel()

	input := ": keepalive\r\ndata: hello\r\n: another\r\n\r\n"
	scanner := NewScanner(strings.NewReader(input))

	if !scanner.Next() {
		t.Fatal("expected event")
	}
	if got := scanner.Event().Data; got != "hello" {
		t.Errorf("event.Data = %q, want hello", got)
	}
	if scanner.Next() {
		t.Error("expected no more events")
	}
}

func TestScannerIDAndRetry(t *testing.T) {
	t.Parallel()

	input := "retry: 1500\n\nid: 7\ndata: a\n\ndata: b\n\nid: 9\n\n"
	scanner := NewScanner(strings.NewReader(input))

	if !scanner.Next() {
		t.Fatal("expected first event")
	}
	if scanner.Event().ID != "7" {
		t.Errorf("event.ID = %q, want 7", scanner.Event().ID)
	}
	if scanner.Retry() != 1500*time.Millisecond {
		t.Errorf("Retry() = %v, want 1.5s", scanner.Retry())
	}

	if !scanner.Next() {
		t.Fatal("expected second event")
	}
	// The id persists until the server changes it.
	if scanner.Event().ID != "7" {
		t.Errorf("event.ID = %q, want 7", scanner.Event().ID)
	}

	if scanner.Next() {
		t.Error("expected no more events")
	}
	if scanner.LastEventID() != "9" {
		t.Errorf("LastEventID() = %q, want 9", scanner.LastEventID())
	}
}

func TestScannerTrailingEventWithoutBlankLine(t *testing.T) {
	t.Parallel()

	scanner := NewScanner(strings.NewReader("data: last"))
	if !scanner.Next() {
		t.Fatal("expected event")
	}
	if scanner.Event().Data != "last" {
		t.Errorf("event.Data = %q, want last", scanner.Event().Data)
	}
	if scanner.Next() {
		t.Error("expected no more events")
	}
}

func TestWithCursor(t *testing.T) {
	t.Parallel()

	cases := []struct {
		endpoint string
		cursor   int64
		omitZero bool
		want     string
	}{
		{"http://h/notifications/poll", 0, true, "http://h/notifications/poll"},
		{"http://h/notifications/poll", 12, true, "http://h/notifications/poll?after_id=12"},
		{"http://h/chat/poll?ticket_id=4", 0, false, "http://h/chat/poll?after_id=0&ticket_id=4"},
		{"http://h/chat/poll?after_id=3", 8, false, "http://h/chat/poll?after_id=8"},
	}
	for _, c := range cases {
		if got := WithCursor(c.endpoint, "after_id", c.cursor, c.omitZero); got != c.want {
			t.Errorf("WithCursor(%q, %d) = %q, want %q", c.endpoint, c.cursor, got, c.want)
		}
	}
}

func TestIsWebSocketURL(t *testing.T) {
	t.Parallel()

	if !IsWebSocketURL("wss://desk.example.com/ws") {
		t.Error("wss should be a websocket URL")
	}
	if IsWebSocketURL("https://desk.example.com/stream") {
		t.Error("https should not be a websocket URL")
	}
}
