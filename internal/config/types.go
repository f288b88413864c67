package config

import (
	"sort"
	"strings"
	"time"
)

// FeedName identifies one of the helpdesk feeds
type FeedName string

const (
	FeedNotifications FeedName = "notifications"
	FeedComments      FeedName = "comments"
	FeedChat          FeedName = "chat"
)

// DefaultFeeds mirrors the routes served by the helpdesk backend
var DefaultFeeds = map[FeedName]FeedConfig{
	FeedNotifications: {
		PollPath:        "/notify/poll",
		StreamPath:      "/notify/stream",
		PollInterval:    20 * time.Second,
		CursorParam:     "after_id",
		PollImmediately: true,
		OmitZeroCursor:  true,
	},
	FeedComments: {
		PollPath:     "/tickets/{ticket}/comments/poll",
		StreamPath:   "/tickets/{ticket}/comments/stream",
		PollInterval: 5 * time.Second,
		CursorParam:  "after",
	},
	FeedChat: {
		PollPath:     "/chat/poll?ticket_id={ticket}",
		StreamPath:   "/chat/stream?ticket_id={ticket}",
		PollInterval: 4 * time.Second,
		CursorParam:  "after",
	},
}

// NeedsTicket reports whether the feed is scoped to a single ticket
func (n FeedName) NeedsTicket() bool {
	return n == FeedComments || n == FeedChat
}

func validFeedsList() string {
	names := make([]string, 0, len(DefaultFeeds))
	for n := range DefaultFeeds {
		names = append(names, string(n))
	}
	sort.Strings(names)
	return strings.Join(names, ", ")
}
