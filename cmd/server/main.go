package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/Connectlite/cl/internal/config"
	"github.com/Connectlite/cl/internal/directory"
	"github.com/Connectlite/cl/internal/dispatch"
	"github.com/Connectlite/cl/internal/domain"
	"github.com/Connectlite/cl/internal/feed"
	"github.com/Connectlite/cl/internal/httpserver"
	"github.com/Connectlite/cl/internal/session"
	"github.com/Connectlite/cl/internal/store"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: slog.LevelInfo,
	}))

	cfg := config.Load(logger)

	// Pick the directory backend. With the gate closed dir stays nil; every
	// component checks the gate before touching it.
	var dir domain.Directory
	switch {
	case cfg.DemoMode:
		mem := directory.NewMemory()
		mem.SeedDemo(25)
		dir = mem
		logger.Info("demo mode: using in-process directory")
	case cfg.Enabled:
		dir = directory.NewClient(cfg, logger)
		logger.Info("directory service configured", "service", cfg.ServiceURL)
	default:
		logger.Warn("running offline: interactive actions will be rejected")
	}

	var cache *store.Store
	if cfg.CachePath != "" {
		var err error
		cache, err = store.Open(cfg.CachePath)
		if err != nil {
			logger.Warn("snapshot cache unavailable", "path", cfg.CachePath, "error", err)
			cache = nil
		} else {
			defer cache.Close()
		}
	}

	sessions := session.NewManager(cfg, dir, logger)
	feedManager := feed.NewManager(cfg, dir, sessions, cache, logger)
	dispatcher := dispatch.NewDispatcher(cfg, dir, sessions, logger)

	// Set up graceful shutdown
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	// Track the session and keep the feed subscription in step with it:
	// signing in (re)subscribes the current filter, signing out empties the
	// feed.
	changes, stop := sessions.Start(ctx)
	defer stop()
	go func() {
		for range changes {
			feedManager.Subscribe(ctx, feedManager.Filter())
		}
	}()

	server := httpserver.NewServer(ctx, cfg, sessions, feedManager, dispatcher, logger)
	go func() {
		if err := server.Start(); err != nil && err != http.ErrServerClosed {
			logger.Error("http server exited with error", "error", err)
		}
	}()

	logger.Info("server started", "port", cfg.Port, "enabled", cfg.Enabled)

	// Wait for shutdown signal
	sig := <-sigCh
	logger.Info("received signal, shutting down", "signal", sig)
	cancel()

	if err := server.Shutdown(context.Background()); err != nil {
		logger.Error("error shutting down http server", "error", err)
	}

	return nil
}
