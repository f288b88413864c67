package data

import (
	"encoding/json"
	"slices"
	"sort"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/dgnsrekt/helpdesk-livefeed/internal/feed"
)

// NotificationPageSize caps a notification poll response
const NotificationPageSize = 20

// Store is an in-memory helpdesk backend: tickets, their comment threads
// and one user's notifications. Ids are global per kind and only grow.
type Store struct {
	mu            sync.RWMutex
	tickets       map[int64]*Ticket
	comments      []*commentRecord
	notifications []*notificationRecord
	nextTicket    int64
	nextComment   int64
	nextNotify    int64
	now           func() time.Time

	subMu       sync.RWMutex
	subscribers []func(Update)

	logger *zap.Logger
}

func NewStore(logger *zap.Logger) *Store {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Store{
		tickets: make(map[int64]*Ticket),
		now:     time.Now,
		logger:  logger,
	}
}

// Subscribe registers fn for every future update. fn runs on the
// goroutine of the mutating call and must not block.
func (s *Store) Subscribe(fn func(Update)) {
	s.subMu.Lock()
	defer s.subMu.Unlock()
	s.subscribers = append(s.subscribers, fn)
}

func (s *Store) publish(updates ...Update) {
	s.subMu.RLock()
	subs := slices.Clone(s.subscribers)
	s.subMu.RUnlock()

	for _, u := range updates {
		for _, fn := range subs {
			fn(u)
		}
	}
}

// CreateTicket opens a ticket.
func (s *Store) CreateTicket(subject string) Ticket {
	s.mu.Lock()
	s.nextTicket++
	t := &Ticket{ID: s.nextTicket, Subject: subject}
	s.tickets[t.ID] = t
	s.mu.Unlock()

	s.logger.Debug("ticket created", zap.Int64("ticket", t.ID))
	return *t
}

// Tickets returns all tickets ordered by id.
func (s *Store) Tickets() []Ticket {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]Ticket, 0, len(s.tickets))
	for _, t := range s.tickets {
		out = append(out, *t)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// CloseTicket marks a ticket closed. Reactions are refused afterwards.
func (s *Store) CloseTicket(id int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	t, ok := s.tickets[id]
	if !ok {
		return ErrTicketNotFound
	}
	t.Closed = true
	return nil
}

// AddComment appends to a ticket thread and publishes it to the comment
// feed, and to the chat feed unless it is internal.
func (s *Store) AddComment(ticketID, userID int64, userName, content string, internal bool) (feed.Comment, error) {
	content = strings.TrimSpace(content)
	if content == "" {
		return feed.Comment{}, ErrEmptyContent
	}

	s.mu.Lock()
	if _, ok := s.tickets[ticketID]; !ok {
		s.mu.Unlock()
		return feed.Comment{}, ErrTicketNotFound
	}
	s.nextComment++
	rec := &commentRecord{
		TicketID:  ticketID,
		ID:        s.nextComment,
		UserID:    userID,
		UserName:  userName,
		Content:   content,
		Internal:  internal,
		CreatedAt: s.now(),
		reactions: make(map[string]map[int64]bool),
	}
	s.comments = append(s.comments, rec)
	s.mu.Unlock()

	c := rec.comment()
	updates := []Update{{Key: CommentsKey(ticketID), Items: []Entry{entry(c.ID, c)}}}
	if !internal {
		updates = append(updates, Update{Key: ChatKey(ticketID), Items: []Entry{entry(c.ID, rec.chat())}})
	}
	s.publish(updates...)
	return c, nil
}

// Comments returns a ticket's comments with id > after, oldest first.
func (s *Store) Comments(ticketID, after int64, includeInternal bool) ([]feed.Comment, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if _, ok := s.tickets[ticketID]; !ok {
		return nil, ErrTicketNotFound
	}

	out := []feed.Comment{}
	for _, c := range s.comments {
		if c.TicketID != ticketID || c.ID <= after || (c.Internal && !includeInternal) {
			continue
		}
		out = append(out, c.comment())
	}
	return out, nil
}

// ChatMessages returns a ticket's public comments with id > after as chat
// messages, oldest first.
func (s *Store) ChatMessages(ticketID, after int64) ([]feed.ChatMessage, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if _, ok := s.tickets[ticketID]; !ok {
		return nil, ErrTicketNotFound
	}

	out := []feed.ChatMessage{}
	for _, c := range s.comments {
		if c.TicketID != ticketID || c.ID <= after || c.Internal {
			continue
		}
		out = append(out, c.chat())
	}
	return out, nil
}

// AddNotification appends a notification and publishes it together with
// the new unread count.
func (s *Store) AddNotification(title, body, link string) feed.Notification {
	s.mu.Lock()
	s.nextNotify++
	rec := &notificationRecord{
		ID:        s.nextNotify,
		Title:     title,
		Body:      body,
		Link:      link,
		CreatedAt: s.now(),
	}
	s.notifications = append(s.notifications, rec)
	unread := s.unreadLocked()
	s.mu.Unlock()

	n := rec.notification()
	s.publish(Update{Key: NotificationsKey, Items: []Entry{entry(n.ID, n)}, Unread: &unread})
	return n
}

// PollNotifications returns notifications newer than after, newest first
// and at most NotificationPageSize of them. With after == 0 it returns the
// ones never delivered before. Returned notifications are marked seen.
func (s *Store) PollNotifications(after int64) ([]feed.Notification, int) {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	out := []feed.Notification{}
	for i := len(s.notifications) - 1; i >= 0 && len(out) < NotificationPageSize; i-- {
		n := s.notifications[i]
		if after > 0 && n.ID <= after {
			continue
		}
		if after == 0 && n.SeenAt != nil {
			continue
		}
		if n.SeenAt == nil {
			n.SeenAt = &now
		}
		out = append(out, n.notification())
	}
	return out, s.unreadLocked()
}

// Unread returns the number of unread notifications.
func (s *Store) Unread() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.unreadLocked()
}

func (s *Store) unreadLocked() int {
	n := 0
	for _, rec := range s.notifications {
		if rec.ReadAt == nil {
			n++
		}
	}
	return n
}

// MarkRead marks one notification read.
func (s *Store) MarkRead(id int64) error {
	s.mu.Lock()
	var found *notificationRecord
	for _, n := range s.notifications {
		if n.ID == id {
			found = n
			break
		}
	}
	if found == nil {
		s.mu.Unlock()
		return ErrNotFound
	}
	now := s.now()
	found.ReadAt = &now
	if found.SeenAt == nil {
		found.SeenAt = &now
	}
	unread := s.unreadLocked()
	s.mu.Unlock()

	s.publish(Update{Key: NotificationsKey, Unread: &unread})
	return nil
}

// MarkAllRead marks every notification read and seen.
func (s *Store) MarkAllRead() {
	s.mu.Lock()
	now := s.now()
	for _, n := range s.notifications {
		if n.ReadAt == nil {
			n.ReadAt = &now
		}
		if n.SeenAt == nil {
			n.SeenAt = &now
		}
	}
	s.mu.Unlock()

	unread := 0
	s.publish(Update{Key: NotificationsKey, Unread: &unread})
}

// MarkSeen marks every notification delivered without reading it.
func (s *Store) MarkSeen() {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	for _, n := range s.notifications {
		if n.SeenAt == nil {
			n.SeenAt = &now
		}
	}
}

// React toggles userID's emoji reaction on a comment and returns the
// aggregated counts.
func (s *Store) React(ticketID, commentID, userID int64, emoji string) (map[string]int, error) {
	emoji = strings.TrimSpace(emoji)

	s.mu.Lock()
	defer s.mu.Unlock()

	t, ok := s.tickets[ticketID]
	if !ok {
		return nil, ErrTicketNotFound
	}
	if t.Closed {
		return nil, ErrTicketClosed
	}
	c := s.commentLocked(ticketID, commentID)
	if c == nil {
		return nil, ErrCommentNotFound
	}
	if emoji == "" {
		return nil, ErrEmojiMissing
	}

	users := c.reactions[emoji]
	if users == nil {
		users = make(map[int64]bool)
		c.reactions[emoji] = users
	}
	if users[userID] {
		delete(users, userID)
		if len(users) == 0 {
			delete(c.reactions, emoji)
		}
	} else {
		users[userID] = true
	}
	return c.counts(), nil
}

// Reactions returns the aggregated reaction counts of a comment.
func (s *Store) Reactions(ticketID, commentID int64) (map[string]int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if _, ok := s.tickets[ticketID]; !ok {
		return nil, ErrTicketNotFound
	}
	c := s.commentLocked(ticketID, commentID)
	if c == nil {
		return nil, ErrCommentNotFound
	}
	return c.counts(), nil
}

func (s *Store) commentLocked(ticketID, commentID int64) *commentRecord {
	for _, c := range s.comments {
		if c.ID == commentID && c.TicketID == ticketID {
			return c
		}
	}
	return nil
}

func (c *commentRecord) counts() map[string]int {
	out := make(map[string]int, len(c.reactions))
	for emoji, users := range c.reactions {
		out[emoji] = len(users)
	}
	return out
}

func (c *commentRecord) comment() feed.Comment {
	return feed.Comment{
		ID:        c.ID,
		UserID:    c.UserID,
		UserName:  c.UserName,
		Content:   c.Content,
		CreatedAt: c.CreatedAt.Format(commentTimeLayout),
		Internal:  c.Internal,
	}
}

func (c *commentRecord) chat() feed.ChatMessage {
	return feed.ChatMessage{
		ID:        c.ID,
		UserID:    c.UserID,
		UserName:  c.UserName,
		Content:   c.Content,
		CreatedAt: c.CreatedAt.Format(commentTimeLayout),
	}
}

func (n *notificationRecord) notification() feed.Notification {
	created := n.CreatedAt.UTC().Format(time.RFC3339)
	return feed.Notification{
		ID:        n.ID,
		Title:     n.Title,
		Body:      n.Body,
		Link:      n.Link,
		CreatedAt: &created,
	}
}

func entry(id int64, v any) Entry {
	raw, _ := json.Marshal(v)
	return Entry{ID: id, Raw: raw}
}

// Entries serializes feed items for a response body.
func Entries[T any](items []T, id func(T) int64) []Entry {
	out := make([]Entry, len(items))
	for i, it := range items {
		out[i] = entry(id(it), it)
	}
	return out
}
