package main

import (
	"context"
	"flag"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/MikeSquared-Agency/herald/internal/api"
	"github.com/MikeSquared-Agency/herald/internal/campaign"
	"github.com/MikeSquared-Agency/herald/internal/config"
	"github.com/MikeSquared-Agency/herald/internal/hermes"
	"github.com/MikeSquared-Agency/herald/internal/session"
	"github.com/MikeSquared-Agency/herald/internal/store"
	"github.com/MikeSquared-Agency/herald/internal/streamapi"
)

func main() {
	handoffPath := flag.String("handoff", "", "path to a one-shot {query, toggles} handoff file")
	envFile := flag.String("env", ".env", "dotenv file loaded before the environment is read")
	flag.Parse()

	if err := config.LoadDotenv(*envFile); err != nil {
		slog.Error("failed to load env file", "path", *envFile, "error", err)
		os.Exit(1)
	}
	cfg := config.Load()
	setupLogging(cfg.LogLevel)
	logger := slog.Default()

	logger.Info("herald starting", "port", cfg.Port, "stream_url", cfg.StreamURL)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// Launch audit (optional)
	var recorder session.Recorder
	var audit api.AuditReader
	if cfg.DatabaseURL != "" {
		connectCtx, cancel := context.WithTimeout(ctx, 15*time.Second)
		db, err := store.New(connectCtx, cfg.DatabaseURL)
		cancel()
		if err != nil {
			logger.Error("failed to connect to database", "error", err)
			os.Exit(1)
		}
		defer db.Close()
		recorder, audit = db, db
		logger.Info("database connected")
	} else {
		logger.Warn("DATABASE_URL not set, launch audit disabled")
	}

	// NATS/Hermes (optional)
	var hermesClient *hermes.Client
	var publisher session.Publisher
	if cfg.NatsURL != "" {
		connectCtx, cancel := context.WithTimeout(ctx, 15*time.Second)
		c, err := hermes.NewClient(connectCtx, cfg.NatsURL, cfg.NatsToken, logger)
		cancel()
		if err != nil {
			logger.Error("failed to connect to NATS", "error", err)
			os.Exit(1)
		}
		defer c.Close()
		hermesClient, publisher = c, c
		logger.Info("NATS connected", "url", cfg.NatsURL)
	} else {
		logger.Warn("NATS_URL not set, running without event bus")
	}

	router := campaign.NewRouter(cfg.EmailURL, cfg.SMSURL, cfg.WhatsAppURL, cfg.StrictChannels, logger)
	dispatcher := campaign.NewDispatcher(router, cfg.DispatchTimeout, logger)
	streams := streamapi.NewClient(cfg.StreamURL, logger)

	sessions := session.NewRegistry(streams, dispatcher, publisher, recorder, logger)
	defer sessions.CloseAll()

	if hermesClient != nil {
		if err := hermesClient.Subscribe(hermes.SubjectLaunchRequested, sessions.HandleLaunchRequest); err != nil {
			logger.Error("failed to subscribe to launch requests", "error", err)
			os.Exit(1)
		}
	}

	if *handoffPath != "" {
		h, err := session.LoadHandoff(*handoffPath)
		if err != nil {
			logger.Error("failed to load handoff", "path", *handoffPath, "error", err)
			os.Exit(1)
		}
		c, ex, err := sessions.Create(h)
		if err != nil {
			logger.Error("handoff rejected", "session_id", c.ID(), "error", err)
		} else if ex != nil {
			logger.Info("handoff submitted", "session_id", c.ID(), "message_id", ex.AssistantMessageID)
		}
	}

	srv := api.NewServer(cfg.Port, cfg.APIToken, sessions, audit, logger)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(srv.Start)
	g.Go(func() error {
		<-gctx.Done()
		logger.Info("shutting down")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})

	if publisher != nil {
		if err := publisher.Publish(hermes.SubjectRegistered, map[string]any{
			"timestamp": time.Now().UTC().Format(time.RFC3339),
			"port":      cfg.Port,
		}); err != nil {
			logger.Warn("failed to publish registration", "error", err)
		}
	}

	logger.Info("herald ready", "port", cfg.Port)

	if err := g.Wait(); err != nil {
		logger.Error("herald exited with error", "error", err)
		sessions.CloseAll()
		os.Exit(1)
	}
	logger.Info("herald stopped")
}

func setupLogging(level string) {
	var lvl slog.Level
	switch level {
	case "debug":
		lvl = slog.LevelDebug
	case "warn":
		lvl = slog.LevelWarn
	case "error":
		lvl = slog.LevelError
	default:
		lvl = slog.LevelInfo
	}
	handler := slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: lvl})
	slog.SetDefault(slog.New(handler))
}
