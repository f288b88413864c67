package data

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"
)

var (
	ErrTicketNotFound  = errors.New("ticket not found")
	ErrTicketClosed    = errors.New("ticket closed")
	ErrCommentNotFound = errors.New("comment not found")
	ErrNotFound        = errors.New("notification not found")
	ErrEmojiMissing    = errors.New("emoji missing")
	ErrEmptyContent    = errors.New("content is empty")
)

// FeedKey identifies one live feed served by the store
type FeedKey string

const NotificationsKey FeedKey = "notifications"

// CommentsKey is the comment thread of a ticket
func CommentsKey(ticketID int64) FeedKey {
	return FeedKey(fmt.Sprintf("tickets/%d/comments", ticketID))
}

// ChatKey is the chat view of a ticket: its public comments
func ChatKey(ticketID int64) FeedKey {
	return FeedKey(fmt.Sprintf("chat/%d", ticketID))
}

// Entry is one serialized feed item
type Entry struct {
	ID  int64
	Raw json.RawMessage
}

// Update is published whenever a feed gains items or the unread count changes
type Update struct {
	Key    FeedKey
	Items  []Entry
	Unread *int
}

// Ticket is the minimal ticket state the feeds depend on
type Ticket struct {
	ID      int64  `json:"id"`
	Subject string `json:"subject"`
	Closed  bool   `json:"closed"`
}

type commentRecord struct {
	TicketID  int64
	ID        int64
	UserID    int64
	UserName  string
	Content   string
	Internal  bool
	CreatedAt time.Time
	// reactions: emoji -> set of user ids
	reactions map[string]map[int64]bool
}

type notificationRecord struct {
	ID        int64
	Title     string
	Body      string
	Link      string
	CreatedAt time.Time
	SeenAt    *time.Time
	ReadAt    *time.Time
}

// Comment dates use the helpdesk's day-first display format
const commentTimeLayout = "02/01/2006 15:04"
