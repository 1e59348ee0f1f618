package incidents

import (
	"context"
	"database/sql/driver"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/signalshift-data/internal/common/config"
	"github.com/signalshift-data/internal/common/logger"
	"github.com/signalshift-data/internal/incidents/feed"
	"github.com/signalshift-data/pkg/incidents/models"
)

type fakeSource struct {
	mu       sync.Mutex
	messages []*feed.Message
	errCh    chan error
	marked   int
}

func newFakeSource(msgs ...*feed.Message) *fakeSource {
	return &fakeSource{messages: msgs, errCh: make(chan error, 1)}
}

func (s *fakeSource) Pop() (*feed.Message, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.messages) == 0 {
		return nil, false
	}
	msg := s.messages[0]
	s.messages = s.messages[1:]
	return msg, true
}

func (s *fakeSource) Err() <-chan error { return s.errCh }

func (s *fakeSource) MarkProcessed(time.Time) {
	s.mu.Lock()
	s.marked++
	s.mu.Unlock()
}

func (s *fakeSource) remaining() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.messages)
}

type fakeReconciler struct {
	mu     sync.Mutex
	nextID int
	calls  int
	err    error
}

func (r *fakeReconciler) Reconcile(_ context.Context, inc *models.Incident) (*models.PersistedIncident, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.calls++
	if r.err != nil {
		return nil, r.err
	}
	r.nextID++
	return &models.PersistedIncident{ID: r.nextID, Incident: *inc}, nil
}

type fakeNotifier struct {
	mu  sync.Mutex
	ids []int
	err error
}

func (n *fakeNotifier) Notify(_ context.Context, id int) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.ids = append(n.ids, id)
	return n.err
}

func validMessage(seq string) *feed.Message {
	return &feed.Message{
		Sequence: seq,
		Incident: &feed.PtIncident{
			Summary:        "Points failure at Clapham Junction",
			ValidityPeriod: feed.ValidityPeriod{StartTime: "2026-02-03T14:05:00.000Z"},
			Planned:        "false",
			Affects: feed.Affects{
				RoutesAffected: "<p>Between London Waterloo and Woking</p>",
			},
		},
	}
}

func TestProcessNextNotifiesOncePerIncident(t *testing.T) {
	source := newFakeSource(validMessage("1"), validMessage("2"))
	rec := &fakeReconciler{}
	notif := &fakeNotifier{}
	m := NewManager(config.PipelineConfig{}, source, rec, notif, logger.Nop())

	for i := 0; i < 3; i++ {
		if err := m.ProcessNext(context.Background()); err != nil {
			t.Fatalf("ProcessNext: %v", err)
		}
	}

	if rec.calls != 2 {
		t.Errorf("expected 2 reconciles, got %d", rec.calls)
	}
	if fmt.Sprint(notif.ids) != "[1 2]" {
		t.Errorf("expected one alert per new incident id, got %v", notif.ids)
	}
	if source.marked != 2 {
		t.Errorf("expected 2 processed marks, got %d", source.marked)
	}
}

func TestProcessSkipsInvalidMessages(t *testing.T) {
	bad := validMessage("1")
	bad.Incident.Summary = ""
	source := newFakeSource(bad)
	rec := &fakeReconciler{}
	m := NewManager(config.PipelineConfig{}, source, rec, &fakeNotifier{}, logger.Nop())

	if err := m.ProcessNext(context.Background()); err != nil {
		t.Fatalf("invalid message should not be fatal: %v", err)
	}
	if rec.calls != 0 {
		t.Error("invalid message should not be reconciled")
	}
}

func TestProcessTransientErrorsContinue(t *testing.T) {
	rec := &fakeReconciler{err: errors.New("check constraint violated")}
	notif := &fakeNotifier{}
	m := NewManager(config.PipelineConfig{}, newFakeSource(), rec, notif, logger.Nop())

	outcome, err := m.Process(context.Background(), "1", validMessage("1").Incident)
	if err != nil {
		t.Fatalf("non-fatal reconcile error should be swallowed: %v", err)
	}
	if outcome != OutcomeDropped {
		t.Errorf("expected %s, got %s", OutcomeDropped, outcome)
	}
	if len(notif.ids) != 0 {
		t.Error("nothing should be published without a persisted incident")
	}

	rec.err = nil
	notif.err = errors.New("sns throttled")
	outcome, err = m.Process(context.Background(), "2", validMessage("2").Incident)
	if err != nil {
		t.Fatalf("publish failure should be swallowed: %v", err)
	}
	if outcome != OutcomePersisted {
		t.Errorf("expected %s, got %s", OutcomePersisted, outcome)
	}
	if len(notif.ids) != 1 {
		t.Errorf("expected a single publish attempt, got %d", len(notif.ids))
	}
}

func TestProcessFatalDatabaseError(t *testing.T) {
	rec := &fakeReconciler{err: fmt.Errorf("persisting incident: %w", driver.ErrBadConn)}
	m := NewManager(config.PipelineConfig{}, newFakeSource(), rec, nil, logger.Nop())

	outcome, err := m.Process(context.Background(), "1", validMessage("1").Incident)
	if !errors.Is(err, driver.ErrBadConn) {
		t.Errorf("expected fatal connection error, got %v", err)
	}
	if outcome != OutcomeDropped {
		t.Errorf("expected %s, got %s", OutcomeDropped, outcome)
	}
}

func TestProcessWithoutNotifier(t *testing.T) {
	rec := &fakeReconciler{}
	m := NewManager(config.PipelineConfig{}, newFakeSource(), rec, nil, logger.Nop())

	outcome, err := m.Process(context.Background(), "1", validMessage("1").Incident)
	if err != nil {
		t.Fatalf("Process: %v", err)
	}
	if outcome != OutcomePersisted {
		t.Errorf("expected %s, got %s", OutcomePersisted, outcome)
	}
	if rec.calls != 1 {
		t.Errorf("expected 1 reconcile, got %d", rec.calls)
	}
}

func TestProcessOutcomes(t *testing.T) {
	invalid := validMessage("1").Incident
	invalid.ValidityPeriod.StartTime = "yesterday"

	tests := []struct {
		name     string
		raw      *feed.PtIncident
		notifier Notifier
		want     Outcome
	}{
		{"normalization failure", invalid, &fakeNotifier{}, OutcomeDropped},
		{"persisted without notifier", validMessage("2").Incident, nil, OutcomePersisted},
		{"notified", validMessage("3").Incident, &fakeNotifier{}, OutcomeNotified},
		{"publish failed", validMessage("4").Incident, &fakeNotifier{err: errors.New("sns throttled")}, OutcomePersisted},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m := NewManager(config.PipelineConfig{}, nil, &fakeReconciler{}, tt.notifier, logger.Nop())
			got, err := m.Process(context.Background(), "1", tt.raw)
			if err != nil {
				t.Fatalf("Process: %v", err)
			}
			if got != tt.want {
				t.Errorf("expected %s, got %s", tt.want, got)
			}
		})
	}
}

func TestRunStopsOnCancel(t *testing.T) {
	source := newFakeSource(validMessage("1"))
	m := NewManager(config.PipelineConfig{PollInterval: 5 * time.Millisecond}, source, &fakeReconciler{}, &fakeNotifier{}, logger.Nop())

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- m.Run(ctx) }()

	deadline := time.Now().Add(2 * time.Second)
	for source.remaining() > 0 && time.Now().Before(deadline) {
		time.Sleep(5 * time.Millisecond)
	}
	cancel()

	select {
	case err := <-done:
		if err != nil {
			t.Errorf("expected nil on cancel, got %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("Run did not return after cancel")
	}
	if source.remaining() != 0 {
		t.Error("queued message was not processed")
	}
}

func TestRunReturnsListenerError(t *testing.T) {
	source := newFakeSource()
	m := NewManager(config.PipelineConfig{PollInterval: time.Hour}, source, &fakeReconciler{}, nil, logger.Nop())

	source.errCh <- feed.ErrSubscriptionClosed

	err := m.Run(context.Background())
	if !errors.Is(err, feed.ErrSubscriptionClosed) {
		t.Errorf("expected subscription error, got %v", err)
	}
}
