package notify

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"go.uber.org/zap"

	"github.com/dgnsrekt/helpdesk-livefeed/internal/feed"
)

func TestClientSend(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/helpdesk" {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		if r.Header.Get("Title") != "Ticket #12" {
			t.Errorf("unexpected title %q", r.Header.Get("Title"))
		}
		if r.Header.Get("Click") != "https://desk.example.com/tickets/12" {
			t.Errorf("unexpected click %q", r.Header.Get("Click"))
		}
		if r.Header.Get("Authorization") != "Bearer secret" {
			t.Errorf("missing token")
		}
		body, _ := io.ReadAll(r.Body)
		if string(body) != "status changed" {
			t.Errorf("unexpected body %q", body)
		}
	}))
	defer server.Close()

	cfg := &Config{
		Enabled:  true,
		Server:   server.URL + "/",
		Topic:    "helpdesk",
		Priority: "default",
		Tags:     "bell",
		Token:    "secret",
		LinkBase: "https://desk.example.com/",
	}
	client := NewClient(cfg, zap.NewNop())

	err := client.Send(context.Background(), feed.Notification{ID: 1, Title: "Ticket #12", Body: "status changed", Link: "/tickets/12"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}

func TestClientSend_FailureStatus(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusForbidden)
	}))
	defer server.Close()

	client := NewClient(&Config{Enabled: true, Server: server.URL, Topic: "t", Priority: "default"}, zap.NewNop())
	if err := client.Send(context.Background(), feed.Notification{Title: "x"}); err == nil {
		t.Error("expected error for 403")
	}
}

func TestNewReturnsNoopWhenDisabled(t *testing.T) {
	n := New(&Config{}, zap.NewNop())
	if _, ok := n.(*NoopNotifier); !ok {
		t.Errorf("expected NoopNotifier, got %T", n)
	}
}

func TestConfigValidate(t *testing.T) {
	if err := (&Config{}).Validate(); err != nil {
		t.Errorf("disabled config should be valid: %v", err)
	}
	if err := (&Config{Enabled: true, Server: "https://ntfy.sh", Priority: "default"}).Validate(); err == nil {
		t.Error("expected error for missing topic")
	}
	if err := (&Config{Enabled: true, Server: "https://ntfy.sh", Topic: "t", Priority: "loud"}).Validate(); err == nil {
		t.Error("expected error for invalid priority")
	}
}
