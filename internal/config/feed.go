package config

import (
	"strconv"
	"strings"

	"github.com/dgnsrekt/helpdesk-livefeed/internal/livefeed"
)

// Resolve builds the synchronizer configuration for one feed instance.
// ticketID fills the "{ticket}" placeholder; after seeds the cursor.
func (f FeedConfig) Resolve(name FeedName, ticketID, after int64, streaming StreamingConfig) livefeed.Config {
	ticket := strconv.FormatInt(ticketID, 10)

	return livefeed.Config{
		Name:              string(name),
		PollEndpoint:      strings.ReplaceAll(f.PollPath, "{ticket}", ticket),
		StreamEndpoint:    strings.ReplaceAll(f.StreamPath, "{ticket}", ticket),
		PollInterval:      f.PollInterval,
		InitialLastSeenID: after,
		CursorParam:       f.CursorParam,
		PollImmediately:   f.PollImmediately,
		OmitZeroCursor:    f.OmitZeroCursor,
		StreamRetry:       streaming.Retry,
		DisableStreaming:  !streaming.Enabled,
	}
}
