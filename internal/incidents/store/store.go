// Package store is the PostgreSQL side of the incident pipeline.
package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/lib/pq"

	"github.com/signalshift-data/internal/common/db"
	"github.com/signalshift-data/internal/common/logger"
	"github.com/signalshift-data/pkg/incidents/models"
)

var ErrIncidentNotFound = errors.New("incident not found")

type Store struct {
	db     *db.DB
	logger logger.Logger
}

func New(database *db.DB, log logger.Logger) *Store {
	return &Store{
		db:     database,
		logger: log,
	}
}

// ResolveServices returns the ids of services running between the named
// stations for any of the given operators. An empty operator list matches
// every operator. Station names must match exactly.
func (s *Store) ResolveServices(ctx context.Context, route models.ServiceRoute, operators []string) ([]int, error) {
	if operators == nil {
		operators = []string{}
	}

	rows, err := s.db.DB().QueryContext(ctx, `
		SELECT s.service_id
		FROM service s
		JOIN station o ON o.station_id = s.origin_station_id
		JOIN station d ON d.station_id = s.destination_station_id
		JOIN operator op ON op.operator_id = s.operator_id
		WHERE o.station_name = $1
		  AND d.station_name = $2
		  AND (cardinality($3::text[]) = 0 OR op.operator_name = ANY($3::text[]))
		ORDER BY s.service_id
	`, route.Origin, route.Destination, pq.Array(operators))
	if err != nil {
		return nil, fmt.Errorf("querying services for %s -> %s: %w", route.Origin, route.Destination, err)
	}
	defer rows.Close()

	var ids []int
	for rows.Next() {
		var id int
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("scanning service id: %w", err)
		}
		ids = append(ids, id)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating services: %w", err)
	}

	return ids, nil
}

// InsertIncident writes the scalar incident fields and returns the new id
func (s *Store) InsertIncident(ctx context.Context, inc *models.Incident) (int, error) {
	var end sql.NullTime
	if inc.End != nil {
		end = sql.NullTime{Time: *inc.End, Valid: true}
	}
	var planned sql.NullBool
	if inc.Planned != nil {
		planned = sql.NullBool{Bool: *inc.Planned, Valid: true}
	}
	url := sql.NullString{String: inc.URL, Valid: inc.URL != ""}

	var incidentID int
	err := s.db.DB().QueryRowContext(ctx, `
		INSERT INTO incident (summary, incident_start, incident_end, url, planned)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING incident_id
	`, inc.Summary, inc.Start, end, url, planned).Scan(&incidentID)
	if err != nil {
		return 0, fmt.Errorf("inserting incident: %w", err)
	}

	return incidentID, nil
}

// InsertAssignments links serviceIDs to the incident. Rows are bulk loaded
// into a transaction-scoped staging table and merged so that repeated ids
// never violate the primary key. Returns the number of rows inserted.
func (s *Store) InsertAssignments(ctx context.Context, incidentID int, serviceIDs []int) (int, error) {
	if len(serviceIDs) == 0 {
		return 0, nil
	}

	tx, err := s.db.BeginTx(ctx)
	if err != nil {
		return 0, fmt.Errorf("beginning transaction: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, `
		CREATE TEMP TABLE service_assignment_staging (
			service_id  INT NOT NULL,
			incident_id INT NOT NULL
		) ON COMMIT DROP
	`); err != nil {
		return 0, fmt.Errorf("creating staging table: %w", err)
	}

	stmt, err := tx.PrepareContext(ctx, pq.CopyIn("service_assignment_staging", "service_id", "incident_id"))
	if err != nil {
		return 0, fmt.Errorf("preparing assignment copy: %w", err)
	}

	for _, serviceID := range serviceIDs {
		if _, err := stmt.ExecContext(ctx, serviceID, incidentID); err != nil {
			stmt.Close()
			return 0, fmt.Errorf("copying assignment for service %d: %w", serviceID, err)
		}
	}

	if _, err := stmt.ExecContext(ctx); err != nil {
		stmt.Close()
		return 0, fmt.Errorf("flushing assignment copy: %w", err)
	}
	if err := stmt.Close(); err != nil {
		return 0, fmt.Errorf("closing assignment copy: %w", err)
	}

	res, err := tx.ExecContext(ctx, `
		MERGE INTO service_assignment sa
		USING (SELECT DISTINCT service_id, incident_id FROM service_assignment_staging) st
		ON sa.service_id = st.service_id AND sa.incident_id = st.incident_id
		WHEN NOT MATCHED THEN
			INSERT (service_id, incident_id) VALUES (st.service_id, st.incident_id)
	`)
	if err != nil {
		return 0, fmt.Errorf("merging assignments: %w", err)
	}

	inserted, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("reading merge result: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("committing assignments: %w", err)
	}

	return int(inserted), nil
}
