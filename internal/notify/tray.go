package notify

import (
	"strconv"
	"sync"

	"github.com/dgnsrekt/helpdesk-livefeed/internal/feed"
)

// DefaultTraySize is how many notifications the tray keeps.
const DefaultTraySize = 20

// Entry is a notification shown in the tray.
type Entry struct {
	feed.Notification
	Read bool
}

// Tray is the client-side notification list behind the bell: newest first,
// capped, with the unread count reported by the backend.
type Tray struct {
	mu      sync.RWMutex
	size    int
	entries []Entry
	unread  int
}

// NewTray creates a tray keeping at most size entries.
func NewTray(size int) *Tray {
	if size <= 0 {
		size = DefaultTraySize
	}
	return &Tray{size: size}
}

// Add prepends notifications in arrival order, so the last one of the
// batch ends up first, and drops the oldest beyond capacity.
func (t *Tray) Add(ns ...feed.Notification) {
	t.mu.Lock()
	defer t.mu.Unlock()

	for _, n := range ns {
		t.entries = append([]Entry{{Notification: n}}, t.entries...)
	}
	if len(t.entries) > t.size {
		t.entries = t.entries[:t.size]
	}
}

// SetUnread applies the count reported by the backend.
func (t *Tray) SetUnread(n int) {
	if n < 0 {
		n = 0
	}
	t.mu.Lock()
	t.unread = n
	t.mu.Unlock()
}

// MarkRead flags an unread entry as read and decrements the local unread
// count. It reports whether the entry was in the tray.
func (t *Tray) MarkRead(id int64) bool {
	t.mu.Lock()
	defer t.mu.Unlock()

	for i := range t.entries {
		if t.entries[i].ID != id {
			continue
		}
		if !t.entries[i].Read {
			t.entries[i].Read = true
			if t.unread > 0 {
				t.unread--
			}
		}
		return true
	}
	return false
}

// MarkAllRead flags every entry as read and clears the unread count.
func (t *Tray) MarkAllRead() {
	t.mu.Lock()
	defer t.mu.Unlock()

	t.unread = 0
	for i := range t.entries {
		t.entries[i].Read = true
	}
}

// Entries returns a copy of the tray, newest first.
func (t *Tray) Entries() []Entry {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return append([]Entry(nil), t.entries...)
}

// Unread returns the unread count.
func (t *Tray) Unread() int {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.unread
}

// Badge renders the unread count for the bell: empty when zero, "99+"
// above 99.
func (t *Tray) Badge() string {
	return FormatBadge(t.Unread())
}

// FormatBadge renders an unread count.
func FormatBadge(n int) string {
	switch {
	case n <= 0:
		return ""
	case n > 99:
		return "99+"
	default:
		return strconv.Itoa(n)
	}
}
