// Package main provides the entry point for the tanktalk dialogue service.
package main

import (
	"context"
	"log"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/tanklab/tanktalk/internal/backend"
	"github.com/tanklab/tanktalk/internal/config"
	"github.com/tanklab/tanktalk/internal/playback"
	"github.com/tanklab/tanktalk/internal/session"
	"github.com/tanklab/tanktalk/internal/tank"
)

// defaultConfigPath is used when TANKTALK_CONFIG is unset.
const defaultConfigPath = "tanktalk.yaml"

func main() {
	os.Exit(runMain())
}

func runMain() int {
	if os.Getenv("DEBUG_TANKTALK") == "1" {
		slog.SetLogLoggerLevel(slog.LevelDebug)
		log.Println("Debug logging enabled")
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		<-sigChan
		log.Println("Shutting down gracefully...")
		cancel()
	}()

	configPath := os.Getenv("TANKTALK_CONFIG")
	if configPath == "" {
		configPath = defaultConfigPath
	}

	cfg, err := config.Load(configPath)
	if err != nil {
		slog.Error("Failed to load configuration", slog.Any("error", err))
		return 1
	}

	if err := run(ctx, cfg); err != nil {
		slog.Error("Fatal error", slog.Any("error", err))
		return 1
	}
	return 0
}

func run(ctx context.Context, cfg *config.Config) error {
	client, err := backend.NewClient(backend.Config{
		BaseURL:         cfg.Backend.BaseURL,
		APIKey:          cfg.Backend.APIKey,
		Model:           cfg.Backend.Model,
		RequestTimeout:  cfg.Backend.RequestTimeout.Std(),
		PollInterval:    cfg.Backend.PollInterval.Std(),
		MaxPollAttempts: cfg.Backend.MaxPollAttempts,
	})
	if err != nil {
		return err
	}

	store, closeStore, err := openStore(cfg.Store)
	if err != nil {
		return err
	}
	defer closeStore()

	roster := tank.NewStaticRoster(cfg.Tank)
	languages := &tank.DefaultLanguages{Language: session.DefaultLanguage}
	manager := session.NewManager(client, store, roster, languages)

	cleanup := session.NewCleanupServiceWithOptions(store,
		cfg.Session.CleanupInterval.Std(), cfg.Session.Retention.Std())
	if err := cleanup.Start(ctx); err != nil {
		return err
	}
	defer cleanup.Stop()

	scheduler := playback.NewScheduler(playback.Config{
		OwnerID:           cfg.Scheduler.OwnerID,
		GroupInterval:     cfg.Scheduler.GroupInterval.Std(),
		MonologueInterval: cfg.Scheduler.MonologueInterval.Std(),
		MessageInterval:   cfg.Scheduler.MessageInterval.Std(),
		CheckInterval:     cfg.Scheduler.CheckInterval.Std(),
		MaxInactive:       cfg.Scheduler.MaxInactive.Std(),
		MaxRun:            cfg.Scheduler.MaxRun.Std(),
		MaxParticipants:   cfg.Scheduler.MaxParticipants,
		UpgradeCooldown:   cfg.Scheduler.UpgradeCooldown.Std(),
		Topics:            cfg.Scheduler.Topics,
	}, manager, roster, nil, tank.NewLogSink(), tank.NewLogNotifier())

	if err := scheduler.Start(ctx); err != nil {
		return err
	}
	defer scheduler.Stop()

	scheduler.SetGroupChatEnabled(true)
	scheduler.SetMonologueEnabled(true)

	slog.Info("tanktalk running",
		slog.Int("fish", len(cfg.Tank.Fish)),
		slog.String("backend", cfg.Backend.BaseURL),
	)

	<-ctx.Done()
	return nil
}

func openStore(cfg config.StoreConfig) (session.Store, func(), error) {
	if cfg.Driver == "sqlite" {
		store, err := session.NewSQLiteStore(cfg.DSN)
		if err != nil {
			return nil, nil, err
		}
		return store, func() { _ = store.Close() }, nil
	}
	return session.NewMemoryStore(), func() {}, nil
}
