package main

import (
	"context"
	"io"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"booksync/internal/alert"
	"booksync/internal/api"
	"booksync/internal/cache"
	"booksync/internal/config"
	"booksync/internal/connectivity"
	"booksync/internal/database"
	"booksync/internal/export"
	"booksync/internal/logging"
	"booksync/internal/metrics"
	"booksync/internal/notify"
	"booksync/internal/queue"
	"booksync/internal/remote"
	"booksync/internal/repository"
	"booksync/internal/sync"

	"github.com/rs/zerolog"
)

func main() {
	if err := run(); err != nil {
		log.Fatalf("Fatal error: %v", err)
	}
}

func run() error {
	cfg, logger, closer, loadErr := loadConfigAndLogger()
	if loadErr != nil {
		return loadErr
	}
	if closer != nil {
		defer (func(c io.Closer) { _ = c.Close() })(closer)
	}

	metrics.Register()

	db, err := database.NewDB(cfg.Database.Path)
	if err != nil {
		logger.Error().Err(err).Msg("database init failed")
		return err
	}
	defer db.Close()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	bookingCache := cache.New(db, &logger)
	defer bookingCache.Close()
	if err := bookingCache.Load(ctx); err != nil {
		logger.Error().Err(err).Msg("cache load failed")
		return err
	}

	actionQueue := queue.New(db, &logger)
	if err := actionQueue.Load(ctx); err != nil {
		logger.Error().Err(err).Msg("queue load failed")
		return err
	}
	metrics.SetQueueDepth(actionQueue.UnsyncedCount())

	alerter := initAlerter(cfg, &logger)
	dispatcher := notify.NewDispatcher(db, alerter, cfg.Notifications.Cap, &logger)
	if err := dispatcher.Load(ctx); err != nil {
		logger.Error().Err(err).Msg("notification load failed")
		return err
	}

	stateRepo := initStateRepository(ctx, cfg, &logger)

	probe := connectivity.NewHTTPProbe(cfg.Remote.BaseURL)
	monitor := connectivity.NewMonitor(probe, cfg.Sync.PollInterval, cfg.Sync.DebounceCount, &logger)

	client := remote.NewClient(cfg.Remote, &logger)

	engine := sync.NewEngine(sync.Options{
		Cache:      bookingCache,
		Queue:      actionQueue,
		Dispatcher: dispatcher,
		Network:    monitor,
		Committer:  client,
		Fetcher:    client,
		Meta:       db,
		States:     stateRepo,
		DeviceID:   cfg.App.DeviceID,
		Retry: sync.RetryPolicy{
			MaxAttempts:   cfg.Sync.MaxAttempts,
			InitialDelay:  cfg.Sync.InitialDelay,
			MaxDelay:      cfg.Sync.MaxDelay,
			BackoffFactor: cfg.Sync.BackoffFactor,
		},
		PruneAge:     cfg.Sync.PruneAge,
		RefreshEvery: cfg.Sync.RefreshEvery,
		Logger:       &logger,
	})

	unsubscribe := monitor.OnTransition(func(online bool) {
		engine.HandleConnectivityChange(ctx, online)
	})
	defer unsubscribe()

	go monitor.Start(ctx)
	go engine.Run(ctx)

	if cfg.API.Enabled {
		var exporter api.Exporter
		if cfg.Exports.Path != "" {
			exporter = export.NewExporter(cfg.Exports, bookingCache, &logger)
		}
		apiServer := api.NewHTTPServer(cfg.API, engine, dispatcher, exporter, &logger)
		go func() {
			if err := apiServer.Start(); err != nil && err != http.ErrServerClosed {
				logger.Error().Err(err).Msg("API server error")
			}
		}()
		defer func() {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			_ = apiServer.Shutdown(shutdownCtx)
		}()
	}

	logger.Info().
		Str("device", cfg.App.DeviceID).
		Int("pending_actions", actionQueue.UnsyncedCount()).
		Msg("booksync started")

	<-ctx.Done()
	logger.Info().Msg("Shutdown complete.")
	return nil
}

func loadConfigAndLogger() (*config.Config, zerolog.Logger, io.Closer, error) {
	configPath := os.Getenv("CONFIG_PATH")
	if configPath == "" {
		configPath = "configs/config.yaml"
	}

	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, zerolog.Logger{}, nil, err
	}

	baseLogger, closer, err := logging.New(cfg.Logging, cfg.App)
	if err != nil {
		return nil, zerolog.Logger{}, nil, err
	}
	logger := baseLogger.With().Str("component", "main").Logger()

	return cfg, logger, closer, nil
}

func initAlerter(cfg *config.Config, logger *zerolog.Logger) notify.Alerter {
	if !cfg.Telegram.Enabled || cfg.Notifications.AlertChatID == 0 {
		return nil
	}

	alerter, err := alert.NewTelegramAlerter(cfg.Telegram.BotToken, cfg.Notifications.AlertChatID, cfg.Telegram.Debug, logger)
	if err != nil {
		logger.Warn().Err(err).Msg("telegram alerter unavailable, alerts disabled")
		return nil
	}
	return alerter
}

func initStateRepository(ctx context.Context, cfg *config.Config, logger *zerolog.Logger) repository.StateRepository {
	fallback := repository.NewMemoryStateRepository()
	if !cfg.Redis.Enabled {
		return fallback
	}

	redisClient := repository.NewRedisClient(cfg.Redis)
	if err := repository.Ping(ctx, redisClient); err != nil {
		logger.Warn().Err(err).Msg("Redis unavailable")
	}

	primary := repository.NewRedisStateRepository(redisClient, 30*24*time.Hour)
	return repository.NewFailoverStateRepository(primary, fallback, logger)
}
