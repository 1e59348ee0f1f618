package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/signalshift-data/pkg/incidents/models"
)

// GetIncident loads the stored scalar fields of an incident. Operators and
// routes are not persisted on the incident row and come back empty.
func (s *Store) GetIncident(ctx context.Context, incidentID int) (*models.PersistedIncident, error) {
	var (
		inc     models.PersistedIncident
		end     sql.NullTime
		url     sql.NullString
		planned sql.NullBool
	)

	err := s.db.DB().QueryRowContext(ctx, `
		SELECT incident_id, summary, incident_start, incident_end, url, planned
		FROM incident
		WHERE incident_id = $1
	`, incidentID).Scan(&inc.ID, &inc.Summary, &inc.Start, &end, &url, &planned)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("incident %d: %w", incidentID, ErrIncidentNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("querying incident %d: %w", incidentID, err)
	}

	inc.Start = inc.Start.UTC()
	if end.Valid {
		t := end.Time.UTC()
		inc.End = &t
	}
	if planned.Valid {
		v := planned.Bool
		inc.Planned = &v
	}
	inc.URL = url.String
	inc.Operators = []string{}
	inc.ServicesAffected = []models.ServiceRoute{}

	return &inc, nil
}

// ServiceDetails lists operator and terminus names of every assigned service
func (s *Store) ServiceDetails(ctx context.Context, incidentID int) ([]models.ServiceDetail, error) {
	rows, err := s.db.DB().QueryContext(ctx, `
		SELECT op.operator_name, os.station_name, ds.station_name
		FROM service_assignment sa
		JOIN service s ON s.service_id = sa.service_id
		JOIN operator op ON op.operator_id = s.operator_id
		JOIN station os ON os.station_id = s.origin_station_id
		JOIN station ds ON ds.station_id = s.destination_station_id
		WHERE sa.incident_id = $1
		ORDER BY sa.service_id
	`, incidentID)
	if err != nil {
		return nil, fmt.Errorf("querying service details: %w", err)
	}
	defer rows.Close()

	details := []models.ServiceDetail{}
	for rows.Next() {
		var d models.ServiceDetail
		if err := rows.Scan(&d.OperatorName, &d.OriginStation, &d.DestinationStation); err != nil {
			return nil, fmt.Errorf("scanning service detail: %w", err)
		}
		details = append(details, d)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating service details: %w", err)
	}

	return details, nil
}

// StationsAffected returns the distinct stations called at today or later by
// services assigned to the incident
func (s *Store) StationsAffected(ctx context.Context, incidentID int) ([]string, error) {
	rows, err := s.db.DB().QueryContext(ctx, `
		SELECT DISTINCT st.station_name
		FROM service_assignment sa
		JOIN arrival a ON a.service_id = sa.service_id
		JOIN station st ON st.station_id = a.arrival_station_id
		WHERE sa.incident_id = $1
		  AND a.arrival_date >= CURRENT_DATE
		ORDER BY st.station_name
	`, incidentID)
	if err != nil {
		return nil, fmt.Errorf("querying affected stations: %w", err)
	}
	defer rows.Close()

	stations := []string{}
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, fmt.Errorf("scanning station name: %w", err)
		}
		stations = append(stations, name)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating affected stations: %w", err)
	}

	return stations, nil
}
