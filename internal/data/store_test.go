package data

import (
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/dgnsrekt/helpdesk-livefeed/internal/feed"
)

func newTestStore() *Store {
	s := NewStore(nil)
	base := time.Date(2026, 3, 14, 9, 30, 0, 0, time.UTC)
	var mu sync.Mutex
	s.now = func() time.Time {
		mu.Lock()
		defer mu.Unlock()
		base = base.Add(time.Second)
		return base
	}
	return s
}

func TestCommentsAndChat(t *testing.T) {
	s := newTestStore()
	ticket := s.CreateTicket("printer on fire")

	c1, err := s.AddComment(ticket.ID, 1, "Ana", "hello", false)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if _, err := s.AddComment(ticket.ID, 2, "Bruno", "staff only", true); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	c3, _ := s.AddComment(ticket.ID, 1, "Ana", "any update?", false)

	all, _ := s.Comments(ticket.ID, 0, true)
	if len(all) != 3 {
		t.Fatalf("expected 3 comments, got %d", len(all))
	}
	if all[0].CreatedAt != "14/03/2026 09:30" {
		t.Errorf("unexpected created_at %q", all[0].CreatedAt)
	}

	public, _ := s.Comments(ticket.ID, 0, false)
	if len(public) != 2 {
		t.Errorf("expected 2 public comments, got %d", len(public))
	}

	after, _ := s.Comments(ticket.ID, c1.ID, true)
	if len(after) != 2 || after[0].ID != c1.ID+1 {
		t.Errorf("unexpected comments after %d: %+v", c1.ID, after)
	}

	chat, _ := s.ChatMessages(ticket.ID, c1.ID)
	if len(chat) != 1 || chat[0].ID != c3.ID {
		t.Errorf("expected only the public comment after %d, got %+v", c1.ID, chat)
	}

	if _, err := s.Comments(99, 0, true); !errors.Is(err, ErrTicketNotFound) {
		t.Errorf("expected ErrTicketNotFound, got %v", err)
	}
	if _, err := s.AddComment(ticket.ID, 1, "Ana", "   ", false); !errors.Is(err, ErrEmptyContent) {
		t.Errorf("expected ErrEmptyContent, got %v", err)
	}
}

func TestPublishesUpdates(t *testing.T) {
	s := newTestStore()
	ticket := s.CreateTicket("vpn")

	var updates []Update
	s.Subscribe(func(u Update) { updates = append(updates, u) })

	_, _ = s.AddComment(ticket.ID, 1, "Ana", "public", false)
	_, _ = s.AddComment(ticket.ID, 2, "Bruno", "internal", true)
	s.AddNotification("Ticket #1", "new reply", "/tickets/1")

	keys := make([]FeedKey, len(updates))
	for i, u := range updates {
		keys[i] = u.Key
	}
	want := []FeedKey{CommentsKey(ticket.ID), ChatKey(ticket.ID), CommentsKey(ticket.ID), NotificationsKey}
	if len(keys) != len(want) {
		t.Fatalf("expected updates %v, got %v", want, keys)
	}
	for i := range want {
		if keys[i] != want[i] {
			t.Errorf("update %d: expected %s, got %s", i, want[i], keys[i])
		}
	}

	last := updates[len(updates)-1]
	if last.Unread == nil || *last.Unread != 1 {
		t.Errorf("expected unread 1 on notification update")
	}
	n, err := feed.Decode[feed.Notification](feed.Item{ID: last.Items[0].ID, Payload: last.Items[0].Raw})
	if err != nil || n.Title != "Ticket #1" {
		t.Errorf("unexpected notification payload %s: %v", last.Items[0].Raw, err)
	}
}

func TestPollNotifications(t *testing.T) {
	s := newTestStore()
	for i := 0; i < 25; i++ {
		s.AddNotification("n", "", "")
	}

	// First load: unseen only, newest first, capped.
	items, unread := s.PollNotifications(0)
	if len(items) != NotificationPageSize {
		t.Fatalf("expected %d items, got %d", NotificationPageSize, len(items))
	}
	if items[0].ID != 25 {
		t.Errorf("expected newest first, got %d", items[0].ID)
	}
	if unread != 25 {
		t.Errorf("expected 25 unread, got %d", unread)
	}

	// The 5 oldest were never delivered.
	items, _ = s.PollNotifications(0)
	if len(items) != 5 {
		t.Errorf("expected 5 remaining unseen, got %d", len(items))
	}
	items, _ = s.PollNotifications(0)
	if len(items) != 0 {
		t.Errorf("expected nothing unseen, got %d", len(items))
	}

	items, _ = s.PollNotifications(22)
	if len(items) != 3 {
		t.Errorf("expected 3 items after 22, got %d", len(items))
	}
}

func TestMarkRead(t *testing.T) {
	s := newTestStore()
	n1 := s.AddNotification("a", "", "")
	s.AddNotification("b", "", "")

	if err := s.MarkRead(n1.ID); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if s.Unread() != 1 {
		t.Errorf("expected 1 unread, got %d", s.Unread())
	}
	if err := s.MarkRead(42); !errors.Is(err, ErrNotFound) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}

	s.MarkAllRead()
	if s.Unread() != 0 {
		t.Errorf("expected 0 unread, got %d", s.Unread())
	}
}

func TestMarkSeen(t *testing.T) {
	s := newTestStore()
	s.AddNotification("a", "", "")
	s.MarkSeen()

	items, unread := s.PollNotifications(0)
	if len(items) != 0 {
		t.Errorf("expected no unseen items, got %d", len(items))
	}
	if unread != 1 {
		t.Errorf("seen is not read: expected 1 unread, got %d", unread)
	}
}

func TestReactToggles(t *testing.T) {
	s := newTestStore()
	ticket := s.CreateTicket("keyboard")
	c, _ := s.AddComment(ticket.ID, 1, "Ana", "thanks", false)

	counts, err := s.React(ticket.ID, c.ID, 7, "👍")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if counts["👍"] != 1 {
		t.Errorf("expected 1 reaction, got %v", counts)
	}
	_, _ = s.React(ticket.ID, c.ID, 8, "👍")

	counts, _ = s.React(ticket.ID, c.ID, 7, "👍")
	if counts["👍"] != 1 {
		t.Errorf("expected toggle off for user 7, got %v", counts)
	}

	got, _ := s.Reactions(ticket.ID, c.ID)
	if got["👍"] != 1 {
		t.Errorf("unexpected reactions %v", got)
	}

	if _, err := s.React(ticket.ID, c.ID, 7, " "); !errors.Is(err, ErrEmojiMissing) {
		t.Errorf("expected ErrEmojiMissing, got %v", err)
	}
	if _, err := s.React(ticket.ID, 999, 7, "👍"); !errors.Is(err, ErrCommentNotFound) {
		t.Errorf("expected ErrCommentNotFound, got %v", err)
	}

	_ = s.CloseTicket(ticket.ID)
	if _, err := s.React(ticket.ID, c.ID, 7, "👍"); !errors.Is(err, ErrTicketClosed) {
		t.Errorf("expected ErrTicketClosed, got %v", err)
	}
}
