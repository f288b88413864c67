package main

import (
	"context"
	"fmt"
	"io"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/dgnsrekt/helpdesk-livefeed/internal/feed"
	"github.com/dgnsrekt/helpdesk-livefeed/internal/livefeed"
	"github.com/dgnsrekt/helpdesk-livefeed/internal/notify"
)

// forwardTimeout bounds how long exit waits for pending ntfy forwards and
// acknowledgements.
const forwardTimeout = 5 * time.Second

// acker marks a notification read on the backend.
type acker interface {
	MarkRead(ctx context.Context, id int64) error
}

// notificationView keeps the tray for a notification watch. It forwards
// new entries to ntfy and optionally acknowledges them.
type notificationView struct {
	tray    *notify.Tray
	forward notify.Notifier
	ack     acker
	status  io.Writer
	logger  *zap.Logger

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// newNotificationView derives its background context from ctx without its
// cancellation, so forwards already started can finish after interrupt.
// ack may be nil.
func newNotificationView(ctx context.Context, tray *notify.Tray, forward notify.Notifier, ack acker, status io.Writer, logger *zap.Logger) *notificationView {
	bg, cancel := context.WithCancel(context.WithoutCancel(ctx))
	return &notificationView{
		tray:    tray,
		forward: forward,
		ack:     ack,
		status:  status,
		logger:  logger,
		ctx:     bg,
		cancel:  cancel,
	}
}

// attach registers the view's hooks on a notification synchronizer.
func (v *notificationView) attach(s *livefeed.Synchronizer, bell bool) {
	s.OnItems(v.render)
	s.OnUnread(v.unread)
	if bell {
		s.OnActivity(notify.Ring)
	}
}

func (v *notificationView) render(items []feed.Item) error {
	ns := make([]feed.Notification, 0, len(items))
	for _, it := range items {
		n, err := feed.Decode[feed.Notification](it)
		if err != nil {
			v.logger.Warn("skipping undecodable notification", zap.Int64("id", it.ID), zap.Error(err))
			continue
		}
		ns = append(ns, n)
	}
	if len(ns) == 0 {
		return nil
	}
	v.tray.Add(ns...)

	// Forwarding never blocks the feed.
	v.wg.Add(1)
	go func() {
		defer v.wg.Done()
		for _, n := range ns {
			if err := v.forward.Send(v.ctx, n); err != nil {
				v.logger.Warn("ntfy forward failed", zap.Int64("id", n.ID), zap.Error(err))
			}
			if v.ack == nil {
				continue
			}
			if err := v.ack.MarkRead(v.ctx, n.ID); err != nil {
				v.logger.Warn("acknowledging notification failed", zap.Int64("id", n.ID), zap.Error(err))
				continue
			}
			v.tray.MarkRead(n.ID)
		}
	}()
	return nil
}

func (v *notificationView) unread(n int) {
	if n == 0 {
		v.tray.MarkAllRead()
	} else {
		v.tray.SetUnread(n)
	}
	fmt.Fprintf(v.status, "\runread: %-4s", v.tray.Badge())
}

// wait blocks until pending forwards finish or timeout passes, in which
// case they are cancelled.
func (v *notificationView) wait(timeout time.Duration) bool {
	done := make(chan struct{})
	go func() {
		v.wg.Wait()
		close(done)
	}()

	defer v.cancel()
	select {
	case <-done:
		return true
	case <-time.After(timeout):
		v.logger.Warn("abandoning pending notification forwards", zap.Duration("timeout", timeout))
		return false
	}
}

// summary prints the tray, newest first, followed by the badge.
func (v *notificationView) summary() {
	entries := v.tray.Entries()
	if len(entries) == 0 {
		return
	}
	fmt.Fprintln(v.status)
	for _, e := range entries {
		mark := "*"
		if e.Read {
			mark = " "
		}
		fmt.Fprintf(v.status, "%s #%d %s\n", mark, e.ID, e.Title)
	}
	if badge := v.tray.Badge(); badge != "" {
		fmt.Fprintf(v.status, "unread: %s\n", badge)
	}
}
