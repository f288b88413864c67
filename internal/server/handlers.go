package server

import (
	"encoding/json"
	"errors"
	"fmt"
	"html"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/dgnsrekt/helpdesk-livefeed/internal/config"
	"github.com/dgnsrekt/helpdesk-livefeed/internal/data"
	"github.com/dgnsrekt/helpdesk-livefeed/internal/feed"
	fsync "github.com/dgnsrekt/helpdesk-livefeed/internal/sync"
	"github.com/dgnsrekt/helpdesk-livefeed/internal/ws"
)

// devUserID is the session user of the development backend.
const devUserID = 1

type Server struct {
	store       *data.Store
	broadcaster *fsync.Broadcaster
	hub         *ws.Hub
	config      *config.DevServerConfig
	logger      *zap.Logger
}

// NewServer subscribes the stream fan-outs to the store. hub may be nil
// when websockets are disabled.
func NewServer(store *data.Store, broadcaster *fsync.Broadcaster, hub *ws.Hub, cfg *config.DevServerConfig, logger *zap.Logger) *Server {
	s := &Server{
		store:       store,
		broadcaster: broadcaster,
		hub:         hub,
		config:      cfg,
		logger:      logger,
	}
	store.Subscribe(broadcaster.Publish)
	if hub != nil {
		store.Subscribe(hub.Publish)
	}
	return s
}

func (s *Server) indexHandler(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	fmt.Fprintf(w, `<!DOCTYPE html>
<html>
<head>
    <title>Helpdesk</title>
    <meta name="csrf-token" content="%s">
</head>
<body></body>
</html>`, html.EscapeString(s.config.CSRFToken))
}

func (s *Server) listTickets(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{"ok": true, "items": s.store.Tickets()})
}

// Notifications

func (s *Server) notificationSnapshot(after int64) fsync.Envelope {
	items, unread := s.store.PollNotifications(after)
	return fsync.Envelope{
		Unread: &unread,
		Items:  raws(data.Entries(items, func(n feed.Notification) int64 { return n.ID })),
	}
}

func (s *Server) pollNotifications(w http.ResponseWriter, r *http.Request) {
	env := s.notificationSnapshot(queryInt(r, "after_id"))
	env.OK = fsync.OK()
	writeJSON(w, http.StatusOK, env)
}

func (s *Server) notificationStream(w http.ResponseWriter, r *http.Request) {
	s.broadcaster.HandleSSE(w, r, data.NotificationsKey, queryInt(r, "after_id"), s.notificationSnapshot)
}

func (s *Server) notificationWS(w http.ResponseWriter, r *http.Request) {
	s.hub.HandleWS(w, r, data.NotificationsKey, queryInt(r, "after_id"), s.notificationSnapshot)
}

func (s *Server) markRead(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil {
		writeError(w, http.StatusNotFound, "not found")
		return
	}
	if err := s.store.MarkRead(id); err != nil {
		s.writeStoreError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"ok": true})
}

func (s *Server) markAllRead(w http.ResponseWriter, r *http.Request) {
	s.store.MarkAllRead()
	writeJSON(w, http.StatusOK, map[string]any{"ok": true})
}

func (s *Server) markSeen(w http.ResponseWriter, r *http.Request) {
	s.store.MarkSeen()
	writeJSON(w, http.StatusOK, map[string]any{"ok": true})
}

func (s *Server) pushNotification(w http.ResponseWriter, r *http.Request) {
	title := r.PostFormValue("title")
	if title == "" {
		writeError(w, http.StatusBadRequest, "title missing")
		return
	}
	n := s.store.AddNotification(title, r.PostFormValue("body"), r.PostFormValue("link"))
	writeJSON(w, http.StatusOK, map[string]any{"ok": true, "id": n.ID})
}

// Comments

func (s *Server) commentSnapshot(ticketID int64) fsync.Snapshot {
	return func(after int64) fsync.Envelope {
		items, err := s.store.Comments(ticketID, after, true)
		if err != nil {
			return fsync.Envelope{OK: fsync.OK()}
		}
		return fsync.Envelope{
			OK:    fsync.OK(),
			Items: raws(data.Entries(items, func(c feed.Comment) int64 { return c.ID })),
		}
	}
}

func (s *Server) pollComments(w http.ResponseWriter, r *http.Request) {
	ticketID, ok := s.ticketParam(w, r)
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, s.commentSnapshot(ticketID)(queryInt(r, "after")))
}

func (s *Server) commentStream(w http.ResponseWriter, r *http.Request) {
	ticketID, ok := s.ticketParam(w, r)
	if !ok {
		return
	}
	s.broadcaster.HandleSSE(w, r, data.CommentsKey(ticketID), queryInt(r, "after"), s.commentSnapshot(ticketID))
}

func (s *Server) commentWS(w http.ResponseWriter, r *http.Request) {
	ticketID, ok := s.ticketParam(w, r)
	if !ok {
		return
	}
	s.hub.HandleWS(w, r, data.CommentsKey(ticketID), queryInt(r, "after"), s.commentSnapshot(ticketID))
}

func (s *Server) addComment(w http.ResponseWriter, r *http.Request) {
	ticketID, ok := s.ticketParam(w, r)
	if !ok {
		return
	}
	internal := r.PostFormValue("internal") != ""
	c, err := s.store.AddComment(ticketID, devUserID, "Dev User", r.PostFormValue("content"), internal)
	if err != nil {
		s.writeStoreError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"ok": true, "id": c.ID})
}

func (s *Server) react(w http.ResponseWriter, r *http.Request) {
	ticketID, commentID, ok := s.commentParams(w, r)
	if !ok {
		return
	}
	counts, err := s.store.React(ticketID, commentID, devUserID, r.PostFormValue("emoji"))
	if err != nil {
		s.writeStoreError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"ok": true, "counts": counts})
}

func (s *Server) reactions(w http.ResponseWriter, r *http.Request) {
	ticketID, commentID, ok := s.commentParams(w, r)
	if !ok {
		return
	}
	counts, err := s.store.Reactions(ticketID, commentID)
	if err != nil {
		s.writeStoreError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"ok": true, "counts": counts})
}

func (s *Server) closeTicket(w http.ResponseWriter, r *http.Request) {
	ticketID, ok := s.ticketParam(w, r)
	if !ok {
		return
	}
	if err := s.store.CloseTicket(ticketID); err != nil {
		s.writeStoreError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"ok": true})
}

// Chat

func (s *Server) chatSnapshot(ticketID int64) fsync.Snapshot {
	return func(after int64) fsync.Envelope {
		items, err := s.store.ChatMessages(ticketID, after)
		if err != nil {
			return fsync.Envelope{OK: fsync.OK()}
		}
		return fsync.Envelope{
			OK:    fsync.OK(),
			Items: raws(data.Entries(items, func(m feed.ChatMessage) int64 { return m.ID })),
		}
	}
}

// chatTicket reads ticket_id. A missing ticket answers an empty batch.
func (s *Server) chatTicket(w http.ResponseWriter, r *http.Request) (int64, bool) {
	ticketID := queryInt(r, "ticket_id")
	if ticketID <= 0 {
		writeJSON(w, http.StatusOK, fsync.Envelope{OK: fsync.OK(), Items: []json.RawMessage{}})
		return 0, false
	}
	return ticketID, true
}

func (s *Server) pollChat(w http.ResponseWriter, r *http.Request) {
	ticketID, ok := s.chatTicket(w, r)
	if !ok {
		return
	}
	if _, err := s.store.ChatMessages(ticketID, 0); err != nil {
		s.writeStoreError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, s.chatSnapshot(ticketID)(queryInt(r, "after")))
}

func (s *Server) chatStream(w http.ResponseWriter, r *http.Request) {
	ticketID, ok := s.chatTicket(w, r)
	if !ok {
		return
	}
	s.broadcaster.HandleSSE(w, r, data.ChatKey(ticketID), queryInt(r, "after"), s.chatSnapshot(ticketID))
}

func (s *Server) chatWS(w http.ResponseWriter, r *http.Request) {
	ticketID, ok := s.chatTicket(w, r)
	if !ok {
		return
	}
	s.hub.HandleWS(w, r, data.ChatKey(ticketID), queryInt(r, "after"), s.chatSnapshot(ticketID))
}

func (s *Server) sendChat(w http.ResponseWriter, r *http.Request) {
	ticketID, err := strconv.ParseInt(r.PostFormValue("ticket_id"), 10, 64)
	if err != nil {
		writeError(w, http.StatusBadRequest, "ticket_id missing")
		return
	}
	c, err := s.store.AddComment(ticketID, devUserID, "Dev User", r.PostFormValue("content"), false)
	if err != nil {
		s.writeStoreError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"ok": true, "id": c.ID})
}

// Helpers

func (s *Server) ticketParam(w http.ResponseWriter, r *http.Request) (int64, bool) {
	id, err := strconv.ParseInt(chi.URLParam(r, "ticket"), 10, 64)
	if err != nil {
		writeError(w, http.StatusNotFound, "not found")
		return 0, false
	}
	return id, true
}

func (s *Server) commentParams(w http.ResponseWriter, r *http.Request) (int64, int64, bool) {
	ticketID, ok := s.ticketParam(w, r)
	if !ok {
		return 0, 0, false
	}
	commentID, err := strconv.ParseInt(chi.URLParam(r, "comment"), 10, 64)
	if err != nil {
		writeError(w, http.StatusNotFound, "not found")
		return 0, 0, false
	}
	return ticketID, commentID, true
}

func (s *Server) writeStoreError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, data.ErrTicketNotFound), errors.Is(err, data.ErrCommentNotFound), errors.Is(err, data.ErrNotFound):
		writeError(w, http.StatusNotFound, err.Error())
	case errors.Is(err, data.ErrTicketClosed), errors.Is(err, data.ErrEmojiMissing), errors.Is(err, data.ErrEmptyContent):
		writeError(w, http.StatusBadRequest, err.Error())
	default:
		s.logger.Error("store error", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "internal error")
	}
}

// queryInt reads a non-negative integer parameter; anything else is 0.
func queryInt(r *http.Request, name string) int64 {
	v, err := strconv.ParseInt(r.URL.Query().Get(name), 10, 64)
	if err != nil || v < 0 {
		return 0
	}
	return v
}

func raws(entries []data.Entry) []json.RawMessage {
	out := make([]json.RawMessage, len(entries))
	for i, e := range entries {
		out[i] = e.Raw
	}
	return out
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]any{"ok": false, "error": msg})
}
