// Package normalizer turns decoded feed incidents into flat, typed records.
// Everything here is a pure function of its input.
package normalizer

import (
	"strings"
	"time"

	"github.com/signalshift-data/internal/incidents/feed"
	"github.com/signalshift-data/pkg/incidents/models"
)

// Field names used in errors and failure metrics
const (
	FieldIncident = "incident"
	FieldSummary  = "summary"
	FieldStart    = "incident_start"
)

func Normalize(msg *feed.PtIncident) (*models.Incident, error) {
	if msg == nil {
		return nil, &MissingFieldError{Field: FieldIncident}
	}

	summary := strings.TrimSpace(msg.Summary)
	if summary == "" {
		return nil, &MissingFieldError{Field: FieldSummary}
	}

	startRaw := strings.TrimSpace(msg.ValidityPeriod.StartTime)
	if startRaw == "" {
		return nil, &MissingFieldError{Field: FieldStart}
	}
	start, err := models.ParseFeedTime(startRaw)
	if err != nil {
		return nil, &InvalidFieldError{Field: FieldStart, Value: startRaw, Err: err}
	}

	return &models.Incident{
		Summary:          summary,
		Operators:        Operators(msg.Affects.Operators.AffectedOperator),
		Start:            start,
		End:              endTime(msg.ValidityPeriod.EndTime, start),
		URL:              msg.FirstURI(),
		Planned:          ParsePlanned(msg.Planned),
		ServicesAffected: ParseRoutes(string(msg.Affects.RoutesAffected)),
	}, nil
}

// Operators returns the operator names in feed order, never nil
func Operators(affected []feed.AffectedOperator) []string {
	names := make([]string, 0, len(affected))
	for _, op := range affected {
		if name := strings.TrimSpace(op.OperatorName); name != "" {
			names = append(names, name)
		}
	}
	return names
}

// ParsePlanned maps "true"/"false" in any case to a bool and anything else to nil
func ParsePlanned(s string) *bool {
	var v bool
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "true":
		v = true
	case "false":
		v = false
	default:
		return nil
	}
	return &v
}

// endTime drops end times that are unparseable or before the start
func endTime(raw string, start time.Time) *time.Time {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return nil
	}
	end, err := models.ParseFeedTime(raw)
	if err != nil || end.Before(start) {
		return nil
	}
	return &end
}
