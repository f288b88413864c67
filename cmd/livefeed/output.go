package main

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"strings"
	"sync"

	"github.com/dgnsrekt/helpdesk-livefeed/internal/config"
	"github.com/dgnsrekt/helpdesk-livefeed/internal/feed"
	"github.com/dgnsrekt/helpdesk-livefeed/internal/notify"
)

const (
	formatText  = "text"
	formatJSONL = "jsonl"
)

// itemWriter renders delivered items, one line each.
type itemWriter struct {
	mu     sync.Mutex
	out    io.Writer
	format string
	feed   config.FeedName
}

func newItemWriter(out io.Writer, format string, name config.FeedName) (*itemWriter, error) {
	switch format {
	case formatText, formatJSONL:
	default:
		return nil, fmt.Errorf("invalid --format %q (valid: %s, %s)", format, formatText, formatJSONL)
	}
	return &itemWriter{out: out, format: format, feed: name}, nil
}

// Write is a livefeed renderer.
func (w *itemWriter) Write(items []feed.Item) error {
	w.mu.Lock()
	defer w.mu.Unlock()

	for _, it := range items {
		var line string
		if w.format == formatJSONL {
			// Compact the JSON (remove whitespace)
			var buf bytes.Buffer
			if err := json.Compact(&buf, it.Payload); err != nil {
				return fmt.Errorf("compacting item %d: %w", it.ID, err)
			}
			line = buf.String()
		} else {
			line = w.text(it)
		}
		if _, err := fmt.Fprintln(w.out, line); err != nil {
			return fmt.Errorf("writing line: %w", err)
		}
	}
	return nil
}

func (w *itemWriter) text(it feed.Item) string {
	switch w.feed {
	case config.FeedNotifications:
		n, err := feed.Decode[feed.Notification](it)
		if err != nil {
			break
		}
		line := fmt.Sprintf("#%d %s", n.ID, notify.FormatNotification(n))
		if n.Link != "" {
			line += " <" + n.Link + ">"
		}
		return line
	case config.FeedComments:
		c, err := feed.Decode[feed.Comment](it)
		if err != nil {
			break
		}
		prefix := ""
		if c.Internal {
			prefix = "[internal] "
		}
		return fmt.Sprintf("#%d %s%s %s: %s", c.ID, prefix, c.CreatedAt, c.UserName, oneLine(c.Content))
	case config.FeedChat:
		m, err := feed.Decode[feed.ChatMessage](it)
		if err != nil {
			break
		}
		return fmt.Sprintf("#%d %s %s: %s", m.ID, m.CreatedAt, m.UserName, oneLine(m.Content))
	}
	return fmt.Sprintf("#%d %s", it.ID, it.Payload)
}

func oneLine(s string) string {
	return strings.Join(strings.Fields(s), " ")
}
