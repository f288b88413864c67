package notify

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/dgnsrekt/helpdesk-livefeed/internal/feed"
)

// Notifier forwards helpdesk notifications to an external channel.
type Notifier interface {
	Send(ctx context.Context, n feed.Notification) error
}

// Client implements the ntfy notification client.
type Client struct {
	httpClient *http.Client
	config     *Config
	logger     *zap.Logger
}

// NewClient creates a new ntfy client.
func NewClient(cfg *Config, logger *zap.Logger) *Client {
	return &Client{
		httpClient: &http.Client{
			Timeout: 30 * time.Second,
		},
		config: cfg,
		logger: logger,
	}
}

// Send publishes one helpdesk notification to the ntfy topic. The
// notification link becomes the click action.
func (c *Client) Send(ctx context.Context, n feed.Notification) error {
	if !c.config.Enabled {
		return nil
	}

	title := strings.TrimSpace(n.Title)
	if title == "" {
		title = defaultTitle
	}
	return c.send(ctx, title, n.Body, n.Link)
}

func (c *Client) send(ctx context.Context, title, message, link string) error {
	url := fmt.Sprintf("%s/%s", strings.TrimSuffix(c.config.Server, "/"), c.config.Topic)

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, strings.NewReader(message))
	if err != nil {
		return fmt.Errorf("creating request: %w", err)
	}

	req.Header.Set("Title", title)
	req.Header.Set("Priority", c.config.Priority)
	req.Header.Set("Tags", c.config.Tags)
	if link != "" {
		req.Header.Set("Click", c.absoluteLink(link))
	}

	if c.config.Token != "" {
		req.Header.Set("Authorization", "Bearer "+c.config.Token)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		c.logger.Warn("failed to send notification", zap.Error(err))
		return fmt.Errorf("sending notification: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	// Drain response body to allow connection reuse
	_, _ = io.Copy(io.Discard, resp.Body)

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		c.logger.Warn("notification failed",
			zap.Int("status", resp.StatusCode),
			zap.String("url", url),
		)
		return fmt.Errorf("notification failed with status: %d", resp.StatusCode)
	}

	c.logger.Debug("notification sent", zap.String("title", title))
	return nil
}

// absoluteLink prefixes relative helpdesk links with the configured base URL.
func (c *Client) absoluteLink(link string) string {
	if strings.HasPrefix(link, "http://") || strings.HasPrefix(link, "https://") || c.config.LinkBase == "" {
		return link
	}
	return strings.TrimSuffix(c.config.LinkBase, "/") + "/" + strings.TrimPrefix(link, "/")
}

// NoopNotifier is a no-op implementation for when forwarding is disabled.
type NoopNotifier struct{}

// Send is a no-op.
func (n *NoopNotifier) Send(_ context.Context, _ feed.Notification) error {
	return nil
}

// New creates the appropriate notifier based on config.
func New(cfg *Config, logger *zap.Logger) Notifier {
	if !cfg.Enabled {
		return &NoopNotifier{}
	}
	return NewClient(cfg, logger)
}
