package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

type Config struct {
	Server    ServerConfig    `mapstructure:"server"`
	Feeds     FeedsConfig     `mapstructure:"feeds"`
	Streaming StreamingConfig `mapstructure:"streaming"`
	Notify    NotifyConfig    `mapstructure:"notify"`
	Logging   LoggingConfig   `mapstructure:"logging"`
}

type ServerConfig struct {
	BaseURL       string `mapstructure:"base_url"`
	SessionCookie string `mapstructure:"session_cookie"`
	CSRFToken     string `mapstructure:"csrf_token"`
	CSRFPage      string `mapstructure:"csrf_page"`
	RatePerSecond int    `mapstructure:"rate_per_second"`
	TimeoutSec    int    `mapstructure:"timeout_sec"`
	RetryCount    int    `mapstructure:"retry_count"`
	RetryDelay    int    `mapstructure:"retry_delay_sec"`
}

type FeedsConfig struct {
	Notifications FeedConfig `mapstructure:"notifications"`
	Comments      FeedConfig `mapstructure:"comments"`
	Chat          FeedConfig `mapstructure:"chat"`
}

// FeedConfig describes one feed's endpoints. Paths may contain a
// "{ticket}" placeholder.
type FeedConfig struct {
	PollPath        string        `mapstructure:"poll_path"`
	StreamPath      string        `mapstructure:"stream_path"`
	PollInterval    time.Duration `mapstructure:"poll_interval"`
	CursorParam     string        `mapstructure:"cursor_param"`
	PollImmediately bool          `mapstructure:"poll_immediately"`
	OmitZeroCursor  bool          `mapstructure:"omit_zero_cursor"`
}

type StreamingConfig struct {
	Enabled bool          `mapstructure:"enabled"`
	Retry   time.Duration `mapstructure:"retry"`
}

type NotifyConfig struct {
	TraySize int        `mapstructure:"tray_size"`
	Bell     bool       `mapstructure:"bell"`
	Ntfy     NtfyConfig `mapstructure:"ntfy"`
}

type NtfyConfig struct {
	Enabled  bool   `mapstructure:"enabled"`
	Server   string `mapstructure:"server"`
	Topic    string `mapstructure:"topic"`
	Priority string `mapstructure:"priority"`
	Tags     string `mapstructure:"tags"`
	Token    string `mapstructure:"token"`
}

type LoggingConfig struct {
	Enabled   bool   `mapstructure:"enabled"`
	Directory string `mapstructure:"directory"`
	Level     string `mapstructure:"level"`
}

func Load(configPath string) (*Config, error) {
	v := viper.New()

	// Set defaults
	v.SetDefault("server.base_url", "http://localhost:5000")
	v.SetDefault("server.csrf_page", "/")
	v.SetDefault("server.rate_per_second", 5)
	v.SetDefault("server.timeout_sec", 30)
	v.SetDefault("server.retry_count", 3)
	v.SetDefault("server.retry_delay_sec", 1)
	for name, feed := range DefaultFeeds {
		prefix := "feeds." + string(name) + "."
		v.SetDefault(prefix+"poll_path", feed.PollPath)
		v.SetDefault(prefix+"stream_path", feed.StreamPath)
		v.SetDefault(prefix+"poll_interval", feed.PollInterval)
		v.SetDefault(prefix+"cursor_param", feed.CursorParam)
		v.SetDefault(prefix+"poll_immediately", feed.PollImmediately)
		v.SetDefault(prefix+"omit_zero_cursor", feed.OmitZeroCursor)
	}
	v.SetDefault("streaming.enabled", true)
	v.SetDefault("streaming.retry", "3s")
	v.SetDefault("notify.tray_size", 20)
	v.SetDefault("notify.bell", true)
	v.SetDefault("notify.ntfy.enabled", false)
	v.SetDefault("notify.ntfy.server", "https://ntfy.sh")
	v.SetDefault("notify.ntfy.priority", "default")
	v.SetDefault("notify.ntfy.tags", "bell")
	v.SetDefault("logging.enabled", false)
	v.SetDefault("logging.directory", "logs")
	v.SetDefault("logging.level", "info")

	// Environment variable support
	v.SetEnvPrefix("LIVEFEED")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_", "-", "_"))
	v.AutomaticEnv()

	// Explicitly bind secrets to env vars
	_ = v.BindEnv("server.session_cookie", "LIVEFEED_SESSION_COOKIE")
	_ = v.BindEnv("server.csrf_token", "LIVEFEED_CSRF_TOKEN")
	_ = v.BindEnv("notify.ntfy.topic", "NTFY_TOPIC")
	_ = v.BindEnv("notify.ntfy.token", "NTFY_TOKEN")

	// Load config file
	if configPath != "" {
		v.SetConfigFile(configPath)
	} else {
		v.SetConfigName("livefeed")
		v.SetConfigType("yaml")
		v.AddConfigPath("./configs")
		v.AddConfigPath(".")
	}

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("reading config: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unmarshaling config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return &cfg, nil
}

// Feed returns the configuration of the named feed.
func (c *Config) Feed(name FeedName) (FeedConfig, error) {
	switch name {
	case FeedNotifications:
		return c.Feeds.Notifications, nil
	case FeedComments:
		return c.Feeds.Comments, nil
	case FeedChat:
		return c.Feeds.Chat, nil
	default:
		return FeedConfig{}, fmt.Errorf("unknown feed %q (valid: %s)", name, validFeedsList())
	}
}
