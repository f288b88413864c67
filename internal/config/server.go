package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
)

// DevServerConfig configures the development helpdesk backend.
type DevServerConfig struct {
	Port string
	// SessionCookie is the only accepted session ("name=value"). Empty
	// disables the session check.
	SessionCookie string
	// CSRFToken is embedded in the page meta tag and required on POSTs.
	CSRFToken string
	// Tickets is the number of tickets seeded at startup.
	Tickets int
	// SimulateInterval paces synthetic activity; 0 disables it.
	SimulateInterval time.Duration
	// SSE configuration
	SSERetry     time.Duration
	SSEHeartbeat time.Duration
	// WebSocket configuration
	WSEnabled bool
}

func LoadDevServerConfig() (*DevServerConfig, error) {
	csrf := getEnvOrDefault("DEV_CSRF_TOKEN", "")
	if csrf == "" {
		csrf = strings.ReplaceAll(uuid.New().String(), "-", "")
	}

	tickets, err := strconv.Atoi(getEnvOrDefault("DEV_TICKETS", "3"))
	if err != nil || tickets < 1 {
		return nil, fmt.Errorf("invalid DEV_TICKETS: must be a positive integer")
	}

	simulate, err := parseDurationEnv("DEV_SIMULATE_INTERVAL", "10s")
	if err != nil {
		return nil, err
	}
	retry, err := parseDurationEnv("DEV_SSE_RETRY", "3s")
	if err != nil {
		return nil, err
	}
	heartbeat, err := parseDurationEnv("DEV_SSE_HEARTBEAT", "5s")
	if err != nil {
		return nil, err
	}

	cfg := &DevServerConfig{
		Port:             getEnvOrDefault("PORT", "5000"),
		SessionCookie:    getEnvOrDefault("DEV_SESSION_COOKIE", "session=dev"),
		CSRFToken:        csrf,
		Tickets:          tickets,
		SimulateInterval: simulate,
		SSERetry:         retry,
		SSEHeartbeat:     heartbeat,
		WSEnabled:        getEnvOrDefault("WS_ENABLED", "true") == "true",
	}

	if cfg.SessionCookie != "" && !strings.Contains(cfg.SessionCookie, "=") {
		return nil, fmt.Errorf("invalid DEV_SESSION_COOKIE: must be name=value")
	}

	return cfg, nil
}

func parseDurationEnv(key, defaultVal string) (time.Duration, error) {
	d, err := time.ParseDuration(getEnvOrDefault(key, defaultVal))
	if err != nil || d < 0 {
		return 0, fmt.Errorf("invalid %s: must be a non-negative duration", key)
	}
	return d, nil
}

func getEnvOrDefault(key, defaultVal string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}
	return defaultVal
}
