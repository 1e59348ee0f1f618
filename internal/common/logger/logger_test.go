package logger

import (
	"bytes"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/rs/zerolog"
)

func TestParseLogLevel(t *testing.T) {
	tests := map[string]zerolog.Level{
		"debug":   zerolog.DebugLevel,
		"DEBUG":   zerolog.DebugLevel,
		"warn":    zerolog.WarnLevel,
		"warning": zerolog.WarnLevel,
		"error":   zerolog.ErrorLevel,
		"fatal":   zerolog.FatalLevel,
		"":        zerolog.InfoLevel,
		"bogus":   zerolog.InfoLevel,
	}

	for input, want := range tests {
		if got := ParseLogLevel(input); got != want {
			t.Errorf("ParseLogLevel(%q) = %v, want %v", input, got, want)
		}
	}
}

func TestNewWritesKeyValueFields(t *testing.T) {
	var buf bytes.Buffer
	log := New(&buf)

	log.Info("Incident persisted", "incident_id", 42, "error", errors.New("boom"))

	out := buf.String()
	if !strings.Contains(out, `"incident_id":42`) {
		t.Errorf("expected incident_id field, got %s", out)
	}
	if !strings.Contains(out, `"error":"boom"`) {
		t.Errorf("expected error field, got %s", out)
	}
	if !strings.Contains(out, `"message":"Incident persisted"`) {
		t.Errorf("expected message, got %s", out)
	}
}

func TestNewWithOnlyNilWritersIsNop(t *testing.T) {
	log := New(nil)
	if log == nil {
		t.Fatal("Logger should be created successfully")
	}
	// must not panic
	log.Info("discarded")
}

type sentAlert struct {
	level   string
	message string
	fields  map[string]interface{}
}

type recordingSender struct {
	sent chan sentAlert
}

func newRecordingSender() *recordingSender {
	return &recordingSender{sent: make(chan sentAlert, 10)}
}

func (r *recordingSender) SendLogMessage(level, message string, fields map[string]interface{}) error {
	r.sent <- sentAlert{level: level, message: message, fields: fields}
	return nil
}

func TestDiscordHookForwardsErrorsOnly(t *testing.T) {
	sender := newRecordingSender()
	zl := zerolog.New(&bytes.Buffer{}).Hook(NewDiscordHook(sender))
	log := FromZerolog(zl)

	log.Info("ignored")
	log.Warn("ignored")
	log.Error("Feed connection lost", "error", errors.New("connection refused"), "attempt", 3)

	select {
	case alert := <-sender.sent:
		if alert.level != "ERROR" || alert.message != "Feed connection lost" {
			t.Errorf("unexpected alert %+v", alert)
		}
		if alert.fields["error"] != "connection refused" {
			t.Errorf("expected error field, got %v", alert.fields)
		}
		if alert.fields["attempt"] != 3 {
			t.Errorf("expected attempt field, got %v", alert.fields)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("no alert forwarded")
	}

	select {
	case alert := <-sender.sent:
		t.Errorf("expected a single forward, also got %+v", alert)
	case <-time.After(20 * time.Millisecond):
	}
}

func TestDiscordHookSendsFatalBeforeReturning(t *testing.T) {
	sender := newRecordingSender()
	zl := zerolog.New(&bytes.Buffer{}).Hook(NewDiscordHook(sender))

	// WithLevel logs at fatal level without exiting
	zl.WithLevel(zerolog.FatalLevel).Msg("Incident pipeline stopped with error")

	select {
	case alert := <-sender.sent:
		if alert.level != "FATAL" {
			t.Errorf("expected FATAL, got %s", alert.level)
		}
	default:
		t.Fatal("fatal alert was not sent synchronously")
	}
}

func TestFieldMap(t *testing.T) {
	got := fieldMap([]interface{}{"error", errors.New("boom"), 7, "skipped", "sequence", "42"})
	if got["error"] != "boom" || got["sequence"] != "42" || len(got) != 2 {
		t.Errorf("unexpected field map %v", got)
	}

	m := map[string]interface{}{"incident_id": 1}
	if got := fieldMap([]interface{}{m}); got["incident_id"] != 1 {
		t.Errorf("expected map passthrough, got %v", got)
	}
}
