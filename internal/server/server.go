package server

import (
	"net/http"
	"net/url"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"go.uber.org/zap"
)

// NewRouter wires the helpdesk routes consumed by the live feed client.
func NewRouter(srv *Server, logger *zap.Logger) http.Handler {
	r := chi.NewRouter()

	// Global middleware
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(zapLoggerMiddleware(logger))

	r.Get("/login", loginHandler)

	r.Group(func(r chi.Router) {
		r.Use(srv.requireSession)

		r.Get("/", srv.indexHandler)
		r.Get("/tickets", srv.listTickets)

		// Long-lived streams stay uncompressed so every event is flushed as is.
		r.Get("/notify/stream", srv.notificationStream)
		r.Get("/tickets/{ticket}/comments/stream", srv.commentStream)
		r.Get("/chat/stream", srv.chatStream)
		if srv.hub != nil {
			r.Get("/notify/ws", srv.notificationWS)
			r.Get("/tickets/{ticket}/comments/ws", srv.commentWS)
			r.Get("/chat/ws", srv.chatWS)
		}

		r.Group(func(r chi.Router) {
			r.Use(middleware.Compress(5))

			r.Get("/notify/poll", srv.pollNotifications)
			r.Get("/tickets/{ticket}/comments/poll", srv.pollComments)
			r.Get("/chat/poll", srv.pollChat)
			r.Get("/tickets/{ticket}/comments/{comment}/reactions", srv.reactions)

			r.Group(func(r chi.Router) {
				r.Use(srv.requireCSRF)

				r.Post("/notify/read/{id}", srv.markRead)
				r.Post("/notify/read_all", srv.markAllRead)
				r.Post("/notify/seen", srv.markSeen)
				r.Post("/notify/push", srv.pushNotification)
				r.Post("/tickets/{ticket}/comments", srv.addComment)
				r.Post("/tickets/{ticket}/comments/{comment}/react", srv.react)
				r.Post("/tickets/{ticket}/close", srv.closeTicket)
				r.Post("/chat/send", srv.sendChat)
			})
		})
	})

	return r
}

// requireSession redirects requests without the configured session cookie
// to the login page.
func (s *Server) requireSession(next http.Handler) http.Handler {
	name, value, _ := strings.Cut(s.config.SessionCookie, "=")
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if name != "" {
			c, err := r.Cookie(name)
			if err != nil || c.Value != value {
				http.Redirect(w, r, "/login?next="+url.QueryEscape(r.URL.RequestURI()), http.StatusFound)
				return
			}
		}
		next.ServeHTTP(w, r)
	})
}

// requireCSRF rejects form posts whose token matches neither the form field
// nor the header.
func (s *Server) requireCSRF(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		token := r.Header.Get("X-CSRFToken")
		if token == "" {
			token = r.PostFormValue("csrf_token")
		}
		if token != s.config.CSRFToken {
			writeError(w, http.StatusBadRequest, "The CSRF token is missing.")
			return
		}
		next.ServeHTTP(w, r)
	})
}

func zapLoggerMiddleware(logger *zap.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			logger.Debug("request",
				zap.String("method", r.Method),
				zap.String("path", r.URL.Path),
				zap.String("query", r.URL.RawQuery),
				zap.String("request_id", middleware.GetReqID(r.Context())),
			)
			next.ServeHTTP(w, r)
		})
	}
}

func loginHandler(w http.ResponseWriter, r *http.Request) {
	html := `<!DOCTYPE html>
<html>
<head>
    <title>Helpdesk - Login</title>
</head>
<body>
    <form method="post" action="/login">
        <input name="email" type="email">
        <input name="password" type="password">
        <button type="submit">Sign in</button>
    </form>
</body>
</html>`
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.Write([]byte(html))
}
