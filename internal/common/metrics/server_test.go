package metrics

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"
)

type fakeHealth struct {
	connected bool
	last      time.Time
}

func (f fakeHealth) Connected() bool          { return f.connected }
func (f fakeHealth) LastProcessed() time.Time { return f.last }

func TestHealthzReportsFeedState(t *testing.T) {
	tests := []struct {
		name      string
		connected bool
		wantCode  int
		wantBody  string
	}{
		{"connected", true, http.StatusOK, `"status":"ok"`},
		{"disconnected", false, http.StatusServiceUnavailable, `"status":"degraded"`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			router := NewRouter(fakeHealth{connected: tt.connected})
			rec := httptest.NewRecorder()
			router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/healthz", nil))

			if rec.Code != tt.wantCode {
				t.Errorf("expected %d, got %d", tt.wantCode, rec.Code)
			}
			if !strings.Contains(rec.Body.String(), tt.wantBody) {
				t.Errorf("expected body to contain %s, got %s", tt.wantBody, rec.Body.String())
			}
		})
	}
}

func TestHealthzLastProcessed(t *testing.T) {
	serve := func(h fakeHealth) string {
		rec := httptest.NewRecorder()
		NewRouter(h).ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/healthz", nil))
		return rec.Body.String()
	}

	if body := serve(fakeHealth{connected: true}); strings.Contains(body, "last_processed") {
		t.Errorf("expected no last_processed before the first message, got %s", body)
	}

	last := time.Date(2026, 2, 3, 14, 5, 0, 0, time.UTC)
	if body := serve(fakeHealth{connected: true, last: last}); !strings.Contains(body, `"last_processed":"2026-02-03T14:05:00Z"`) {
		t.Errorf("expected last_processed timestamp, got %s", body)
	}
}

func TestMetricsEndpointExposesPipelineCounters(t *testing.T) {
	IncidentsPersisted.Inc()

	rec := httptest.NewRecorder()
	NewRouter(nil).ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	if !strings.Contains(rec.Body.String(), "incidents_persisted_total") {
		t.Error("expected incidents_persisted_total in /metrics output")
	}
}
