package config

import (
	"fmt"
	"net/url"
	"strings"
)

// InvalidValue represents a setting with an unusable value
type InvalidValue struct {
	Key    string
	Value  string
	Reason string
}

// ValidationErrors collects all validation errors
type ValidationErrors struct {
	MissingKeys   []string
	InvalidValues []InvalidValue
}

// HasErrors returns true if any validation errors exist
func (e *ValidationErrors) HasErrors() bool {
	return len(e.MissingKeys) > 0 || len(e.InvalidValues) > 0
}

// Error formats all validation errors into a clear message
func (e *ValidationErrors) Error() string {
	var sb strings.Builder
	sb.WriteString("configuration validation failed:\n")

	if len(e.MissingKeys) > 0 {
		sb.WriteString("\nMissing settings:\n")
		for _, k := range e.MissingKeys {
			sb.WriteString(fmt.Sprintf("  - %s\n", k))
		}
	}

	if len(e.InvalidValues) > 0 {
		sb.WriteString("\nInvalid settings:\n")
		for _, iv := range e.InvalidValues {
			sb.WriteString(fmt.Sprintf("  - %s=%q (%s)\n", iv.Key, iv.Value, iv.Reason))
		}
	}

	return sb.String()
}

var validLevels = map[string]bool{"debug": true, "info": true, "warn": true, "error": true}

var validPriorities = map[string]bool{
	"min": true, "low": true, "default": true, "high": true, "urgent": true,
}

// Validate checks every section and reports all problems at once
func (c *Config) Validate() error {
	errs := &ValidationErrors{}

	if c.Server.BaseURL == "" {
		errs.MissingKeys = append(errs.MissingKeys, "server.base_url")
	} else if u, err := url.Parse(c.Server.BaseURL); err != nil || u.Scheme == "" || u.Host == "" {
		errs.invalid("server.base_url", c.Server.BaseURL, "must be an absolute URL")
	}
	if c.Server.SessionCookie != "" && !strings.Contains(c.Server.SessionCookie, "=") {
		errs.invalid("server.session_cookie", "<redacted>", "must be name=value")
	}
	if c.Server.RatePerSecond < 1 {
		errs.invalid("server.rate_per_second", fmt.Sprint(c.Server.RatePerSecond), "must be >= 1")
	}
	if c.Server.RetryCount < 0 {
		errs.invalid("server.retry_count", fmt.Sprint(c.Server.RetryCount), "must be >= 0")
	}

	validateFeed(errs, FeedNotifications, c.Feeds.Notifications)
	validateFeed(errs, FeedComments, c.Feeds.Comments)
	validateFeed(errs, FeedChat, c.Feeds.Chat)

	if c.Notify.TraySize < 1 {
		errs.invalid("notify.tray_size", fmt.Sprint(c.Notify.TraySize), "must be >= 1")
	}
	if c.Notify.Ntfy.Enabled {
		if c.Notify.Ntfy.Topic == "" {
			errs.MissingKeys = append(errs.MissingKeys, "notify.ntfy.topic")
		}
		if !validPriorities[c.Notify.Ntfy.Priority] {
			errs.invalid("notify.ntfy.priority", c.Notify.Ntfy.Priority, "valid: min, low, default, high, urgent")
		}
	}

	if !validLevels[c.Logging.Level] {
		errs.invalid("logging.level", c.Logging.Level, "valid: debug, info, warn, error")
	}

	if errs.HasErrors() {
		return errs
	}
	return nil
}

func validateFeed(errs *ValidationErrors, name FeedName, f FeedConfig) {
	prefix := "feeds." + string(name) + "."

	if f.PollPath == "" {
		errs.MissingKeys = append(errs.MissingKeys, prefix+"poll_path")
	}
	if f.PollInterval <= 0 {
		errs.invalid(prefix+"poll_interval", f.PollInterval.String(), "must be positive")
	}
	if f.CursorParam == "" {
		errs.MissingKeys = append(errs.MissingKeys, prefix+"cursor_param")
	}
}

func (e *ValidationErrors) invalid(key, value, reason string) {
	e.InvalidValues = append(e.InvalidValues, InvalidValue{Key: key, Value: value, Reason: reason})
}
