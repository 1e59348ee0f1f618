// Package incidents runs the incident pipeline loop: pop a feed message,
// normalize it, reconcile it into the store and publish an alert.
package incidents

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/signalshift-data/internal/common/config"
	"github.com/signalshift-data/internal/common/logger"
	"github.com/signalshift-data/internal/common/metrics"
	"github.com/signalshift-data/internal/incidents/feed"
	"github.com/signalshift-data/internal/incidents/normalizer"
	"github.com/signalshift-data/internal/incidents/reconciler"
	"github.com/signalshift-data/pkg/incidents/models"
)

// Source is the queue side of the feed listener
type Source interface {
	Pop() (*feed.Message, bool)
	Err() <-chan error
	MarkProcessed(t time.Time)
}

type Reconciler interface {
	Reconcile(ctx context.Context, inc *models.Incident) (*models.PersistedIncident, error)
}

type Notifier interface {
	Notify(ctx context.Context, incidentID int) error
}

type Manager struct {
	config     config.PipelineConfig
	source     Source
	reconciler Reconciler
	notifier   Notifier
	logger     logger.Logger
	mu         sync.Mutex
	isRunning  bool
}

// NewManager wires the pipeline. A nil notifier persists without alerting.
func NewManager(cfg config.PipelineConfig, source Source, rec Reconciler, notifier Notifier, log logger.Logger) *Manager {
	return &Manager{
		config:     cfg,
		source:     source,
		reconciler: rec,
		notifier:   notifier,
		logger:     log,
	}
}

// Run polls the source once per interval until ctx is cancelled (returns nil)
// or a fatal error occurs (returned). Fatal means the feed subscription or the
// database connection is gone; the process is expected to exit and be
// restarted.
func (m *Manager) Run(ctx context.Context) error {
	m.mu.Lock()
	if m.isRunning {
		m.mu.Unlock()
		return fmt.Errorf("incident pipeline is already running")
	}
	m.isRunning = true
	m.mu.Unlock()

	defer func() {
		m.mu.Lock()
		m.isRunning = false
		m.mu.Unlock()
	}()

	interval := m.config.PollInterval
	if interval <= 0 {
		interval = time.Second
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	m.logger.Info("Incident pipeline started", "poll_interval", interval)

	for {
		select {
		case <-ctx.Done():
			m.logger.Info("Incident pipeline stopped")
			return nil
		case err := <-m.source.Err():
			return fmt.Errorf("feed listener: %w", err)
		case <-ticker.C:
			if err := m.ProcessNext(ctx); err != nil {
				return err
			}
		}
	}
}

// Outcome is what happened to one message
type Outcome string

const (
	// OutcomeDropped: nothing was written
	OutcomeDropped Outcome = "dropped"
	// OutcomePersisted: the incident was stored but no alert went out
	OutcomePersisted Outcome = "persisted"
	// OutcomeNotified: the incident was stored and its alert published
	OutcomeNotified Outcome = "notified"
)

// ProcessNext handles at most one queued message
func (m *Manager) ProcessNext(ctx context.Context) error {
	msg, ok := m.source.Pop()
	if !ok {
		return nil
	}
	m.source.MarkProcessed(time.Now())

	_, err := m.Process(ctx, msg.Sequence, msg.Incident)
	return err
}

// Process runs one decoded incident through the pipeline. Only fatal errors
// are returned; everything else is logged and reflected in the Outcome.
func (m *Manager) Process(ctx context.Context, sequence string, raw *feed.PtIncident) (Outcome, error) {
	inc, err := normalizer.Normalize(raw)
	if err != nil {
		metrics.NormalizeFailures.WithLabelValues(failedField(err)).Inc()
		m.logger.Warn("Dropping incident that failed normalization",
			"sequence", sequence,
			"error", err)
		return OutcomeDropped, nil
	}

	persisted, err := m.reconciler.Reconcile(ctx, inc)
	if err != nil {
		if reconciler.IsFatal(err) {
			outcome := OutcomeDropped
			if persisted != nil {
				outcome = OutcomePersisted
			}
			return outcome, fmt.Errorf("reconciling incident: %w", err)
		}
		m.logger.Error("Failed to reconcile incident",
			"sequence", sequence,
			"summary", inc.Summary,
			"error", err)
		if persisted == nil {
			return OutcomeDropped, nil
		}
	}

	if m.notifier == nil {
		return OutcomePersisted, nil
	}

	if err := m.notifier.Notify(ctx, persisted.ID); err != nil {
		if reconciler.IsFatal(err) {
			return OutcomePersisted, fmt.Errorf("notifying incident %d: %w", persisted.ID, err)
		}
		m.logger.Error("Failed to publish incident alert",
			"incident_id", persisted.ID,
			"error", err)
		return OutcomePersisted, nil
	}

	return OutcomeNotified, nil
}

func failedField(err error) string {
	var missing *normalizer.MissingFieldError
	if errors.As(err, &missing) {
		return missing.Field
	}
	var invalid *normalizer.InvalidFieldError
	if errors.As(err, &invalid) {
		return invalid.Field
	}
	return "unknown"
}
