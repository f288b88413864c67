package notify

import (
	"errors"
	"fmt"
)

// Config holds ntfy forwarding configuration.
type Config struct {
	Enabled  bool   // Whether new helpdesk notifications are forwarded
	Server   string // ntfy server URL (default: https://ntfy.sh)
	Topic    string // Topic name (required if enabled)
	Priority string // Message priority: min, low, default, high, urgent
	Tags     string // Comma-separated emoji tags (e.g., "bell,ticket")
	Token    string // Optional access token for private topics
	LinkBase string // Prefix for relative notification links, usually the helpdesk base URL
}

var validPriorities = map[string]bool{
	"min": true, "low": true, "default": true, "high": true, "urgent": true,
}

// Validate checks configuration is valid when enabled.
func (c *Config) Validate() error {
	if !c.Enabled {
		return nil
	}

	if c.Topic == "" {
		return errors.New("ntfy.topic is required when ntfy.enabled=true")
	}
	if c.Server == "" {
		return errors.New("ntfy.server is required when ntfy.enabled=true")
	}
	if !validPriorities[c.Priority] {
		return fmt.Errorf("invalid ntfy.priority: %s (valid: min, low, default, high, urgent)", c.Priority)
	}

	return nil
}
