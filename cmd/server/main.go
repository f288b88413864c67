package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"

	"github.com/dgnsrekt/helpdesk-livefeed/internal/config"
	"github.com/dgnsrekt/helpdesk-livefeed/internal/data"
	"github.com/dgnsrekt/helpdesk-livefeed/internal/server"
	fsync "github.com/dgnsrekt/helpdesk-livefeed/internal/sync"
	"github.com/dgnsrekt/helpdesk-livefeed/internal/ws"
)

func main() {
	os.Exit(run())
}

func run() int {
	// Setup logger
	logger, err := zap.NewDevelopment()
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to create logger: %v\n", err)
		return 1
	}
	defer logger.Sync()

	// Load config
	cfg, err := config.LoadDevServerConfig()
	if err != nil {
		logger.Error("failed to load config", zap.Error(err))
		return 1
	}

	logger.Info("configuration loaded",
		zap.String("port", cfg.Port),
		zap.Int("tickets", cfg.Tickets),
		zap.Duration("simulateInterval", cfg.SimulateInterval),
		zap.Duration("sseRetry", cfg.SSERetry),
		zap.Duration("sseHeartbeat", cfg.SSEHeartbeat),
		zap.Bool("wsEnabled", cfg.WSEnabled),
	)
	logger.Info("session",
		zap.String("cookie", cfg.SessionCookie),
		zap.String("csrfToken", cfg.CSRFToken),
	)

	// Seed data
	store := data.NewStore(logger)
	for i := 1; i <= cfg.Tickets; i++ {
		store.CreateTicket(fmt.Sprintf("Sample ticket %d", i))
	}

	// Create context for graceful shutdown
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	broadcaster := fsync.NewBroadcaster(cfg.SSERetry, cfg.SSEHeartbeat, logger)
	go broadcaster.Run(ctx)

	// WebSocket hub (optional)
	var hub *ws.Hub
	if cfg.WSEnabled {
		hub = ws.NewHub(logger)
		go hub.Run(ctx)
		logger.Info("WebSocket enabled")
	}

	srv := server.NewServer(store, broadcaster, hub, cfg, logger)
	go server.NewSimulator(store, cfg.SimulateInterval, logger).Run(ctx)

	// Setup HTTP server. Streams are long-lived, so no write timeout.
	httpServer := &http.Server{
		Addr:        ":" + cfg.Port,
		Handler:     server.NewRouter(srv, logger),
		ReadTimeout: 30 * time.Second,
	}

	// Start server in goroutine
	go func() {
		logger.Info("starting server", zap.String("addr", httpServer.Addr))
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("server error", zap.Error(err))
		}
	}()

	// Wait for interrupt
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("shutting down server...")

	// Cancel context to stop streams and the simulator
	cancel()

	// Graceful HTTP server shutdown
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()

	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		logger.Error("server shutdown error", zap.Error(err))
		return 1
	}

	logger.Info("server stopped")
	return 0
}
