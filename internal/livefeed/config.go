package livefeed

import (
	"errors"
	"fmt"
	"time"
)

// Config describes one feed. Endpoints may be absolute URLs or paths
// resolved by the backend client.
type Config struct {
	// Name identifies the feed in logs ("notifications", "comments", "chat").
	Name string

	PollEndpoint string

	// StreamEndpoint is an http(s) URL for Server-Sent Events or a ws(s)
	// URL for websockets. Empty disables streaming.
	StreamEndpoint string

	PollInterval time.Duration

	// InitialLastSeenID is the highest id already rendered, 0 if none.
	InitialLastSeenID int64

	// CursorParam names the cursor query parameter. Defaults to "after".
	CursorParam string

	PollImmediately bool
	OmitZeroCursor  bool

	// StreamRetry is the reconnect delay used when the server sends none.
	StreamRetry time.Duration

	DisableStreaming bool
}

func (c *Config) validate() error {
	var errs []error
	if c.PollEndpoint == "" {
		errs = append(errs, errors.New("poll endpoint is required"))
	}
	if c.PollInterval <= 0 {
		errs = append(errs, fmt.Errorf("poll interval must be positive, got %s", c.PollInterval))
	}
	if c.InitialLastSeenID < 0 {
		errs = append(errs, fmt.Errorf("initial last seen id must be >= 0, got %d", c.InitialLastSeenID))
	}
	return errors.Join(errs...)
}
