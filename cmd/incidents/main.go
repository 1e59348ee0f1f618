package main

import (
	"context"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"github.com/signalshift-data/internal/common/config"
	"github.com/signalshift-data/internal/common/db"
	"github.com/signalshift-data/internal/common/logger"
	"github.com/signalshift-data/internal/common/maintenance"
	"github.com/signalshift-data/internal/common/metrics"
	"github.com/signalshift-data/internal/incidents"
	"github.com/signalshift-data/internal/incidents/feed"
	"github.com/signalshift-data/internal/incidents/notifier"
	"github.com/signalshift-data/internal/incidents/reconciler"
	"github.com/signalshift-data/internal/incidents/store"
)

func main() {
	// .env is optional; real deployments set the environment directly
	_ = godotenv.Load()

	cfg, err := config.Load()
	if err != nil {
		panic("Failed to load configuration: " + err.Error())
	}

	log := logger.InitLogger(logger.LoggerConfig{
		Level:           logger.ParseLogLevel(cfg.Logging.Level),
		Console:         true,
		File:            cfg.Logging.FilePath != "",
		FilePath:        cfg.Logging.FilePath,
		MaxSizeMB:       10,
		MaxBackups:      5,
		MaxAgeDays:      30,
		Compress:        true,
		TimeFieldFormat: "2006-01-02T15:04:05Z07:00",
		DiscordURL:      cfg.Logging.DiscordURL,
	})

	if err := cfg.Validate(); err != nil {
		log.Fatal("Invalid configuration", "error", err)
	}

	log.Info("Signal Shift incident pipeline starting",
		"version", "1.0.0",
		"log_level", cfg.Logging.Level,
		"feed", cfg.Feed.Address(),
		"topic", cfg.Feed.Destination(),
		"notify_channel", cfg.Notify.Channel,
	)

	if err := run(cfg, log); err != nil {
		// Fatal reaches the Discord hook before the process exits
		log.Fatal("Incident pipeline stopped with error", "error", err)
	}

	log.Info("Signal Shift incident pipeline stopped")
}

func run(cfg *config.Config, log logger.Logger) error {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Handle shutdown signals
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		select {
		case <-sigChan:
			log.Info("Shutdown signal received")
			cancel()
		case <-ctx.Done():
		}
	}()

	database, err := db.New(ctx, cfg.Database.ConnectionString(), db.Options{
		MaxOpenConns:    cfg.Database.MaxOpenConns,
		ConnMaxLifetime: cfg.Database.ConnMaxLifetime,
	}, log)
	if err != nil {
		return err
	}
	defer database.Close()

	if err := db.NewSchemaChecker(database).Verify(ctx); err != nil {
		return err
	}

	channel, closeChannel, err := notifier.NewChannel(ctx, cfg.Notify, log)
	if err != nil {
		return err
	}
	defer func() {
		if err := closeChannel(); err != nil {
			log.Warn("Error closing notification channel", "error", err)
		}
	}()

	listener := feed.NewListener(cfg.Feed, log)
	if err := listener.Start(ctx); err != nil {
		return err
	}
	defer listener.Stop()

	incidentStore := store.New(database, log)
	manager := incidents.NewManager(
		cfg.Pipeline,
		listener,
		reconciler.New(incidentStore, log),
		notifier.New(incidentStore, channel, log, notifier.WithBreakerTimeout(cfg.Notify.BreakerTimeout)),
		log,
	)

	scheduler := maintenance.NewScheduler(database, log, maintenance.SchedulerConfig{
		HealthInterval:  cfg.Maintenance.HealthInterval,
		PingTimeout:     5 * time.Second,
		MaxPingFailures: cfg.Maintenance.MaxPingFailures,
		AnalyzeInterval: cfg.Maintenance.AnalyzeInterval,
	})
	if err := scheduler.Start(ctx); err != nil {
		return err
	}
	defer scheduler.Stop()

	var wg sync.WaitGroup
	if cfg.Metrics.Addr != "" {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := metrics.Serve(ctx, cfg.Metrics.Addr, listener, log); err != nil {
				log.Error("Metrics server error", "error", err)
			}
		}()
	}
	defer wg.Wait()

	pipelineErr := make(chan error, 1)
	go func() {
		pipelineErr <- manager.Run(ctx)
	}()

	select {
	case err := <-pipelineErr:
		cancel()
		return err
	case err := <-scheduler.Err():
		cancel()
		<-pipelineErr
		return err
	}
}
