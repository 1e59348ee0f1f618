// Package reconciler resolves normalized incidents against the service
// reference tables and persists them with their service assignments.
package reconciler

import (
	"context"
	"fmt"
	"time"

	"github.com/signalshift-data/internal/common/logger"
	"github.com/signalshift-data/internal/common/metrics"
	"github.com/signalshift-data/pkg/incidents/models"
)

type Store interface {
	ResolveServices(ctx context.Context, route models.ServiceRoute, operators []string) ([]int, error)
	InsertIncident(ctx context.Context, inc *models.Incident) (int, error)
	InsertAssignments(ctx context.Context, incidentID int, serviceIDs []int) (int, error)
}

type Engine struct {
	store  Store
	logger logger.Logger
}

func New(store Store, log logger.Logger) *Engine {
	return &Engine{
		store:  store,
		logger: log,
	}
}

// Reconcile persists inc and assigns it to every service its routes resolve
// to. Every call creates a new incident row; identical input is not merged.
func (e *Engine) Reconcile(ctx context.Context, inc *models.Incident) (*models.PersistedIncident, error) {
	startTime := time.Now()
	defer func() {
		metrics.ReconcileDuration.Observe(time.Since(startTime).Seconds())
	}()

	serviceIDs, err := e.resolve(ctx, inc)
	if err != nil {
		return nil, err
	}

	incidentID, err := e.store.InsertIncident(ctx, inc)
	if err != nil {
		return nil, fmt.Errorf("persisting incident: %w", err)
	}
	metrics.IncidentsPersisted.Inc()

	persisted := &models.PersistedIncident{ID: incidentID, Incident: *inc}

	if len(serviceIDs) == 0 {
		e.logger.Info("Incident persisted without service assignments", "incident_id", incidentID)
		return persisted, nil
	}

	inserted, err := e.store.InsertAssignments(ctx, incidentID, serviceIDs)
	if err != nil {
		if IsFatal(err) {
			return persisted, fmt.Errorf("assigning services to incident %d: %w", incidentID, err)
		}
		e.logger.Error("Failed to assign services to incident",
			"incident_id", incidentID,
			"services", len(serviceIDs),
			"error", err)
		return persisted, nil
	}
	metrics.AssignmentsCreated.Add(float64(inserted))

	e.logger.Info("Incident persisted",
		"incident_id", incidentID,
		"assignments", inserted,
		"duration", time.Since(startTime))

	return persisted, nil
}

// resolve looks up every route before anything is written. Unmatched routes
// are expected and only logged.
func (e *Engine) resolve(ctx context.Context, inc *models.Incident) ([]int, error) {
	seen := make(map[int]struct{})
	var serviceIDs []int

	for _, route := range inc.ServicesAffected {
		ids, err := e.store.ResolveServices(ctx, route, inc.Operators)
		if err != nil {
			return nil, fmt.Errorf("resolving route %s -> %s: %w", route.Origin, route.Destination, err)
		}

		if len(ids) == 0 {
			metrics.RoutesResolved.WithLabelValues("unmatched").Inc()
			e.logger.Debug("No service matches route",
				"origin", route.Origin,
				"destination", route.Destination,
				"operators", inc.Operators)
			continue
		}
		metrics.RoutesResolved.WithLabelValues("matched").Inc()

		for _, id := range ids {
			if _, ok := seen[id]; ok {
				continue
			}
			seen[id] = struct{}{}
			serviceIDs = append(serviceIDs, id)
		}
	}

	return serviceIDs, nil
}
