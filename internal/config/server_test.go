package config

import (
	"testing"
	"time"
)

func TestLoadDevServerConfigDefaults(t *testing.T) {
	cfg, err := LoadDevServerConfig()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if cfg.Port != "5000" {
		t.Errorf("expected port 5000, got %s", cfg.Port)
	}
	if cfg.SessionCookie != "session=dev" {
		t.Errorf("unexpected session cookie %s", cfg.SessionCookie)
	}
	if len(cfg.CSRFToken) != 32 {
		t.Errorf("expected generated 32 char csrf token, got %q", cfg.CSRFToken)
	}
	if cfg.SSEHeartbeat != 5*time.Second {
		t.Errorf("expected 5s heartbeat, got %s", cfg.SSEHeartbeat)
	}
	if !cfg.WSEnabled {
		t.Error("expected websocket enabled by default")
	}
}

func TestLoadDevServerConfigOverrides(t *testing.T) {
	t.Setenv("DEV_CSRF_TOKEN", "fixed")
	t.Setenv("DEV_SIMULATE_INTERVAL", "0s")
	t.Setenv("WS_ENABLED", "false")

	cfg, err := LoadDevServerConfig()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.CSRFToken != "fixed" {
		t.Errorf("expected fixed csrf token, got %s", cfg.CSRFToken)
	}
	if cfg.SimulateInterval != 0 {
		t.Errorf("expected simulation disabled, got %s", cfg.SimulateInterval)
	}
	if cfg.WSEnabled {
		t.Error("expected websocket disabled")
	}
}

func TestLoadDevServerConfigInvalid(t *testing.T) {
	t.Setenv("DEV_SSE_RETRY", "soon")

	if _, err := LoadDevServerConfig(); err == nil {
		t.Error("expected error for invalid duration")
	}
}
