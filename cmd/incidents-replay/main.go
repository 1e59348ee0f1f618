package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"sort"
	"syscall"

	"github.com/joho/godotenv"

	"github.com/signalshift-data/internal/common/config"
	"github.com/signalshift-data/internal/common/db"
	"github.com/signalshift-data/internal/common/logger"
	"github.com/signalshift-data/internal/incidents"
	"github.com/signalshift-data/internal/incidents/feed"
	"github.com/signalshift-data/internal/incidents/notifier"
	"github.com/signalshift-data/internal/incidents/reconciler"
	"github.com/signalshift-data/internal/incidents/store"
)

func main() {
	dir := flag.String("dir", "", "directory of archived feed messages (*.json)")
	notify := flag.Bool("notify", false, "publish alerts for replayed incidents")
	ensureSchema := flag.Bool("ensure-schema", false, "create missing tables before replaying")
	flag.Parse()

	if *dir == "" {
		fmt.Fprintln(os.Stderr, "usage: incidents-replay -dir <archive dir> [-notify] [-ensure-schema]")
		os.Exit(2)
	}

	_ = godotenv.Load()

	cfg, err := config.Load()
	if err != nil {
		panic("Failed to load configuration: " + err.Error())
	}

	log := logger.InitLogger(logger.LoggerConfig{
		Level:           logger.ParseLogLevel(cfg.Logging.Level),
		Console:         true,
		TimeFieldFormat: "2006-01-02T15:04:05Z07:00",
	})

	if err := cfg.Database.Validate(); err != nil {
		log.Fatal("Invalid database configuration", "error", err)
	}

	if err := replay(cfg, log, *dir, *notify, *ensureSchema); err != nil {
		log.Fatal("Replay failed", "error", err)
	}
}

func replay(cfg *config.Config, log logger.Logger, dir string, notify, ensureSchema bool) error {
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	files, err := filepath.Glob(filepath.Join(dir, "*.json"))
	if err != nil {
		return fmt.Errorf("listing archive: %w", err)
	}
	sort.Strings(files)
	if len(files) == 0 {
		log.Warn("No archived messages found", "dir", dir)
		return nil
	}

	database, err := db.New(ctx, cfg.Database.ConnectionString(), db.Options{
		MaxOpenConns:    cfg.Database.MaxOpenConns,
		ConnMaxLifetime: cfg.Database.ConnMaxLifetime,
	}, log)
	if err != nil {
		return err
	}
	defer database.Close()

	if ensureSchema {
		if err := database.EnsureSchema(ctx); err != nil {
			return err
		}
	} else if err := db.NewSchemaChecker(database).Verify(ctx); err != nil {
		return err
	}

	incidentStore := store.New(database, log)

	// Backfills persist only; a typed nil would defeat the manager's nil check.
	var alerts incidents.Notifier
	if notify {
		channel, closeChannel, err := notifier.NewChannel(ctx, cfg.Notify, log)
		if err != nil {
			return err
		}
		defer closeChannel()
		alerts = notifier.New(incidentStore, channel, log, notifier.WithBreakerTimeout(cfg.Notify.BreakerTimeout))
	}

	manager := incidents.NewManager(cfg.Pipeline, nil, reconciler.New(incidentStore, log), alerts, log)

	log.Info("Replaying archived messages", "dir", dir, "files", len(files), "notify", notify)

	counts := make(map[incidents.Outcome]int)
	skipped := 0
	for _, path := range files {
		if ctx.Err() != nil {
			log.Info("Replay interrupted",
				"persisted", counts[incidents.OutcomePersisted]+counts[incidents.OutcomeNotified],
				"notified", counts[incidents.OutcomeNotified],
				"dropped", counts[incidents.OutcomeDropped],
				"unreadable", skipped)
			return nil
		}

		inc, err := feed.ReadArchived(path)
		if err != nil {
			log.Warn("Skipping unreadable archive file", "file", path, "error", err)
			skipped++
			continue
		}

		outcome, err := manager.Process(ctx, filepath.Base(path), inc)
		if err != nil {
			return fmt.Errorf("replaying %s: %w", path, err)
		}
		counts[outcome]++
	}

	log.Info("Replay complete",
		"persisted", counts[incidents.OutcomePersisted]+counts[incidents.OutcomeNotified],
		"notified", counts[incidents.OutcomeNotified],
		"dropped", counts[incidents.OutcomeDropped],
		"unreadable", skipped)
	return nil
}
