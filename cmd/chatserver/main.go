package main

import (
	"context"
	"flag"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"golang.org/x/sync/errgroup"

	"github.com/beamhq/beam-realtime/internal/auth"
	"github.com/beamhq/beam-realtime/internal/config"
	"github.com/beamhq/beam-realtime/internal/database"
	"github.com/beamhq/beam-realtime/internal/fanout"
	"github.com/beamhq/beam-realtime/internal/ratelimit"
	"github.com/beamhq/beam-realtime/internal/receipt"
	"github.com/beamhq/beam-realtime/internal/registry"
	"github.com/beamhq/beam-realtime/internal/room"
	"github.com/beamhq/beam-realtime/internal/router"
	"github.com/beamhq/beam-realtime/internal/server"
	"github.com/beamhq/beam-realtime/internal/store"
	"github.com/beamhq/beam-realtime/internal/version"
)

func main() {
	configPath := flag.String("config", "configs/chatserver.local.yaml", "path to config file")
	flag.Parse()

	// Set up structured logging
	logger := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{
		Level: slog.LevelDebug,
	}))
	slog.SetDefault(logger)

	logger.Info("starting chatserver",
		"version", version.Version,
		"commit", version.Commit,
		"config", *configPath,
	)

	// Load configuration
	cfg, err := config.LoadAndValidate(*configPath)
	if err != nil {
		logger.Error("failed to load config", "error", err)
		os.Exit(1)
	}

	logger.Info("configuration loaded",
		"instance_id", cfg.Instance.ID,
		"addr", cfg.Server.Addr,
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

	// Connect to database
	logger.Info("connecting to database",
		"host", cfg.Database.Messages.Host,
		"port", cfg.Database.Messages.Port,
		"database", cfg.Database.Messages.Name,
	)

	pool, err := database.Connect(ctx, cfg.Database.Messages)
	if err != nil {
		logger.Error("failed to connect to database", "error", err)
		os.Exit(1)
	}
	defer pool.Close()

	messageStore := store.NewPostgres(pool, logger)
	if err := messageStore.EnsureSchema(ctx); err != nil {
		logger.Error("failed to ensure schema", "error", err)
		os.Exit(1)
	}

	logger.Info("database connected")

	// Wire the core
	reg := registry.New(logger)
	rooms := room.NewDirectory(cfg.Rooms.DefaultMaxMembers, logger)
	fan := fanout.New(reg, rooms, logger)
	receipts := receipt.NewTracker(rooms, fan, logger)

	messageLimiter := ratelimit.NewKeyed(ratelimit.Config{
		Capacity:       cfg.Limits.Message.Capacity,
		RefillTokens:   cfg.Limits.Message.RefillTokens,
		RefillInterval: cfg.Limits.Message.RefillInterval,
	})
	requestLimiter := ratelimit.NewKeyed(ratelimit.Config{
		Capacity:       cfg.Limits.Request.Capacity,
		RefillTokens:   cfg.Limits.Request.RefillTokens,
		RefillInterval: cfg.Limits.Request.RefillInterval,
	})

	rt := router.New(reg, rooms, messageLimiter, messageStore, receipts, fan, cfg.Rooms.HistoryLimit, logger)

	edge := server.New(
		cfg.Server,
		cfg.Instance.ID,
		auth.NewVerifier(cfg.Auth.JWTSecret),
		reg,
		rooms,
		rt,
		requestLimiter,
		pool,
		logger,
	)

	httpServer := &http.Server{
		Addr:        cfg.Server.Addr,
		Handler:     edge.Routes(),
		ReadTimeout: cfg.Server.ReadTimeout,
	}

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		logger.Info("listening", "addr", cfg.Server.Addr)
		if err := httpServer.ListenAndServe(); err != http.ErrServerClosed {
			return err
		}
		return nil
	})

	g.Go(func() error {
		<-gctx.Done()
		logger.Info("shutting down...")
		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
		defer shutdownCancel()
		return httpServer.Shutdown(shutdownCtx)
	})

	if err := g.Wait(); err != nil {
		logger.Error("server error", "error", err)
		os.Exit(1)
	}

	logger.Info("chatserver stopped")
}
