package maintenance

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/signalshift-data/internal/common/db"
	"github.com/signalshift-data/internal/common/logger"
)

// Scheduler watches database connectivity and runs periodic upkeep
type Scheduler struct {
	maintenance *Maintenance
	logger      logger.Logger
	config      SchedulerConfig
	isRunning   bool
	mu          sync.RWMutex
	cancelFn    context.CancelFunc
	errCh       chan error
}

// SchedulerConfig contains configuration for the scheduler
type SchedulerConfig struct {
	HealthInterval  time.Duration // How often to ping the database
	PingTimeout     time.Duration // Per-ping deadline
	MaxPingFailures int           // Consecutive failed pings before the connection is declared lost
	AnalyzeInterval time.Duration // How often to refresh planner statistics
}

// DefaultSchedulerConfig returns sensible defaults
func DefaultSchedulerConfig() SchedulerConfig {
	return SchedulerConfig{
		HealthInterval:  30 * time.Second,
		PingTimeout:     5 * time.Second,
		MaxPingFailures: 3,
		AnalyzeInterval: 24 * time.Hour,
	}
}

// NewScheduler creates a new scheduler
func NewScheduler(database *db.DB, logger logger.Logger, config SchedulerConfig) *Scheduler {
	return &Scheduler{
		maintenance: New(database, logger),
		logger:      logger,
		config:      config,
		errCh:       make(chan error, 1),
	}
}

// Start begins the health and analyze loops
func (s *Scheduler) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.isRunning {
		return fmt.Errorf("maintenance scheduler is already running")
	}

	ctx, cancel := context.WithCancel(ctx)
	s.cancelFn = cancel
	s.isRunning = true

	s.logger.Info("Starting maintenance scheduler",
		"health_interval", s.config.HealthInterval,
		"analyze_interval", s.config.AnalyzeInterval)

	go s.healthLoop(ctx)
	go s.analyzeLoop(ctx)

	return nil
}

// Stop stops the scheduler
func (s *Scheduler) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.isRunning {
		return
	}

	if s.cancelFn != nil {
		s.cancelFn()
	}

	s.isRunning = false
	s.logger.Info("Maintenance scheduler stopped")
}

// IsRunning returns whether the scheduler is active
func (s *Scheduler) IsRunning() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.isRunning
}

// Err delivers a single error once the database is considered unreachable
func (s *Scheduler) Err() <-chan error {
	return s.errCh
}

func (s *Scheduler) healthLoop(ctx context.Context) {
	ticker := time.NewTicker(s.config.HealthInterval)
	defer ticker.Stop()

	failures := 0
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			err := s.maintenance.Ping(ctx, s.config.PingTimeout)
			if err == nil {
				failures = 0
				continue
			}
			if ctx.Err() != nil {
				return
			}

			failures++
			s.logger.Warn("Database ping failed", "consecutive_failures", failures, "error", err)
			if failures >= s.config.MaxPingFailures {
				s.errCh <- fmt.Errorf("database unreachable after %d pings: %w", failures, err)
				return
			}
		}
	}
}

func (s *Scheduler) analyzeLoop(ctx context.Context) {
	ticker := time.NewTicker(s.config.AnalyzeInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.performAnalyze(ctx)
		}
	}
}

func (s *Scheduler) performAnalyze(ctx context.Context) {
	start := time.Now()
	if err := s.maintenance.AnalyzeTables(ctx); err != nil {
		s.logger.Error("Scheduled analyze failed", "error", err, "duration", time.Since(start))
		return
	}

	stats, err := s.maintenance.TableStats(ctx)
	if err != nil {
		s.logger.Warn("Failed to read table stats", "error", err)
		return
	}
	for _, stat := range stats {
		s.logger.Info("Table statistics refreshed",
			"table", stat.TableName,
			"live_rows", stat.LiveRows,
			"dead_rows", stat.DeadRows)
	}
}
