package main

import (
	"context"
	"errors"
	"flag"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/benbjohnson/clock"
	"golang.org/x/sync/errgroup"

	"github.com/coview/sync-agent/internal/config"
	"github.com/coview/sync-agent/internal/gateway"
	"github.com/coview/sync-agent/internal/relay"
	"github.com/coview/sync-agent/internal/router"
	"github.com/coview/sync-agent/internal/session"
	"github.com/coview/sync-agent/internal/tabs"
	"github.com/coview/sync-agent/internal/version"
)

func main() {
	configPath := flag.String("config", "configs/agent.example.yaml", "path to config file")
	flag.Parse()

	// Load configuration
	cfg, err := config.LoadAndValidate(*configPath)
	if err != nil {
		slog.Error("failed to load config", "error", err)
		os.Exit(1)
	}

	// Set up structured logging
	logger := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{
		Level: logLevel(cfg.Logging.Level),
	}))
	slog.SetDefault(logger)

	logger.Info("starting sync agent",
		"version", version.Version,
		"commit", version.Commit,
		"instance_id", cfg.Instance.ID,
		"relay_url", cfg.Relay.URL,
	)

	// Create context with cancellation
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Handle shutdown signals
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		sig := <-sigCh
		logger.Info("received shutdown signal", "signal", sig)
		cancel()
	}()

	// Wire the relay dialer, popup hub, sessions, router and gateway
	dialer := relay.NewDialer(relay.Config{
		URL:                   cfg.Relay.URL,
		HandshakeTimeout:      cfg.Relay.HandshakeTimeout,
		WriteTimeout:          cfg.Relay.WriteTimeout,
		EventBuffer:           cfg.Relay.EventBuffer,
		EnablePollingFallback: cfg.Relay.PollingFallbackEnabled(),
	}, logger)

	hub := router.NewPopupHub(logger)

	sessionCfg := session.Config{
		ConnectTimeout:       cfg.Relay.ConnectTimeout,
		HeartbeatInterval:    cfg.Session.HeartbeatInterval,
		ReconnectBaseDelay:   cfg.Session.ReconnectBaseDelay,
		MaxReconnectAttempts: cfg.Session.MaxReconnectAttempts,
	}
	factory := func(tabID string, content session.ContentPort) tabs.Session {
		sc := sessionCfg
		sc.TabID = tabID
		return session.New(sc, dialer, content, hub, clock.New(), logger)
	}

	registry := tabs.NewRegistry(factory, hub, logger)
	rt := router.New(registry, hub, logger)

	gw := gateway.New(gateway.Config{
		AllowedOrigins: cfg.Gateway.AllowedOrigins,
		SendBuffer:     cfg.Gateway.SendBuffer,
		WriteTimeout:   cfg.Gateway.WriteTimeout,
	}, registry, rt, hub, logger)

	server := &http.Server{
		Addr:    cfg.Gateway.ListenAddr,
		Handler: gw.Handler(),
	}

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		logger.Info("gateway listening", "addr", cfg.Gateway.ListenAddr)
		if err := server.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})

	g.Go(func() error {
		<-gctx.Done()
		logger.Info("shutting down...")

		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer shutdownCancel()

		// Stop accepting collaborators first, then wind down sessions.
		if err := server.Shutdown(shutdownCtx); err != nil {
			logger.Warn("gateway shutdown", "error", err)
		}
		return registry.Shutdown(shutdownCtx)
	})

	if err := g.Wait(); err != nil {
		logger.Error("agent exited with error", "error", err)
		os.Exit(1)
	}

	logger.Info("agent stopped")
}

func logLevel(level string) slog.Level {
	switch level {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
