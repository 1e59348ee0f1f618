package metrics

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/goccy/go-json"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/signalshift-data/internal/common/logger"
)

// HealthReporter exposes pipeline liveness to /healthz
type HealthReporter interface {
	Connected() bool
	LastProcessed() time.Time
}

type healthResponse struct {
	Status        string    `json:"status"`
	FeedConnected bool      `json:"feed_connected"`
	LastProcessed *time.Time `json:"last_processed,omitempty"`
}

// NewRouter serves /metrics and /healthz
func NewRouter(health HealthReporter) http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.Recoverer)

	r.Handle("/metrics", promhttp.Handler())
	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		resp := healthResponse{Status: "ok"}
		code := http.StatusOK
		if health != nil {
			resp.FeedConnected = health.Connected()
			if last := health.LastProcessed(); !last.IsZero() {
				resp.LastProcessed = &last
			}
			if !resp.FeedConnected {
				resp.Status = "degraded"
				code = http.StatusServiceUnavailable
			}
		}
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(code)
		_ = json.NewEncoder(w).Encode(resp)
	})

	return r
}

// Serve runs the ops server until ctx is cancelled
func Serve(ctx context.Context, addr string, health HealthReporter, log logger.Logger) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           NewRouter(health),
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
	}()

	log.Info("Metrics server listening", "addr", addr)
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}
