// Package notifier publishes one alert per newly persisted incident.
package notifier

import (
	"context"
	"errors"
	"fmt"
	"time"

	gobreaker "github.com/sony/gobreaker/v2"

	"github.com/signalshift-data/internal/common/logger"
	"github.com/signalshift-data/internal/common/metrics"
	"github.com/signalshift-data/pkg/incidents/models"
)

const defaultBreakerTimeout = time.Minute

// IncidentReader is the read side of the incident store
type IncidentReader interface {
	GetIncident(ctx context.Context, incidentID int) (*models.PersistedIncident, error)
	ServiceDetails(ctx context.Context, incidentID int) ([]models.ServiceDetail, error)
	StationsAffected(ctx context.Context, incidentID int) ([]string, error)
}

// Channel delivers a notification to every subscriber interested in its
// stations. Filtering happens on the channel side.
type Channel interface {
	Name() string
	Publish(ctx context.Context, n models.Notification) error
}

type Notifier struct {
	reader  IncidentReader
	channel Channel
	breaker *gobreaker.CircuitBreaker[any]
	logger  logger.Logger
}

type Option func(*options)

type options struct {
	breakerTimeout time.Duration
}

// WithBreakerTimeout sets how long the breaker stays open before a trial publish
func WithBreakerTimeout(d time.Duration) Option {
	return func(o *options) {
		if d > 0 {
			o.breakerTimeout = d
		}
	}
}

func New(reader IncidentReader, ch Channel, log logger.Logger, opts ...Option) *Notifier {
	o := options{breakerTimeout: defaultBreakerTimeout}
	for _, opt := range opts {
		opt(&o)
	}

	return &Notifier{
		reader:  reader,
		channel: ch,
		breaker: newBreaker("notify-"+ch.Name(), o.breakerTimeout, log),
		logger:  log,
	}
}

// Notify composes and publishes the alert for incidentID. The publish is
// attempted at most once; a failure is returned, not retried.
func (n *Notifier) Notify(ctx context.Context, incidentID int) error {
	inc, err := n.reader.GetIncident(ctx, incidentID)
	if err != nil {
		return fmt.Errorf("loading incident: %w", err)
	}

	details, err := n.reader.ServiceDetails(ctx, incidentID)
	if err != nil {
		return fmt.Errorf("loading service details: %w", err)
	}

	stations, err := n.reader.StationsAffected(ctx, incidentID)
	if err != nil {
		return fmt.Errorf("loading affected stations: %w", err)
	}

	subject, body := Compose(inc, details)
	note := models.Notification{
		IncidentID: incidentID,
		Subject:    subject,
		Body:       body,
		Stations:   stations,
	}

	_, err = n.breaker.Execute(func() (any, error) {
		return nil, n.channel.Publish(ctx, note)
	})
	if err != nil {
		status := "failure"
		if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
			status = "rejected"
		}
		metrics.NotificationsPublished.WithLabelValues(n.channel.Name(), status).Inc()
		return fmt.Errorf("publishing incident %d to %s: %w", incidentID, n.channel.Name(), err)
	}

	metrics.NotificationsPublished.WithLabelValues(n.channel.Name(), "success").Inc()
	n.logger.Info("Incident alert published",
		"incident_id", incidentID,
		"channel", n.channel.Name(),
		"stations", len(stations),
		"services", len(details))

	return nil
}

func newBreaker(name string, timeout time.Duration, log logger.Logger) *gobreaker.CircuitBreaker[any] {
	metrics.CircuitBreakerState.WithLabelValues(name).Set(0)

	return gobreaker.NewCircuitBreaker[any](gobreaker.Settings{
		Name:        name,
		MaxRequests: 1,
		Timeout:     timeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= 3
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			log.Warn("Notification circuit breaker changed state",
				"breaker", name,
				"from", from.String(),
				"to", to.String())
			metrics.CircuitBreakerState.WithLabelValues(name).Set(stateValue(to))
		},
	})
}

func stateValue(s gobreaker.State) float64 {
	switch s {
	case gobreaker.StateHalfOpen:
		return 1
	case gobreaker.StateOpen:
		return 2
	default:
		return 0
	}
}
