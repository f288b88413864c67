package notify

import (
	"strings"

	"github.com/dgnsrekt/helpdesk-livefeed/internal/feed"
)

const defaultTitle = "Notification"

// FormatNotification renders a notification as a single toast line.
func FormatNotification(n feed.Notification) string {
	title := strings.TrimSpace(n.Title)
	if title == "" {
		title = defaultTitle
	}

	var sb strings.Builder
	sb.WriteString(title)
	if body := strings.TrimSpace(n.Body); body != "" {
		sb.WriteString(" — ")
		sb.WriteString(body)
	}
	return sb.String()
}
