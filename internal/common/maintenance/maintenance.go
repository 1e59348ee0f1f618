package maintenance

import (
	"context"
	"fmt"
	"time"

	"github.com/lib/pq"

	"github.com/signalshift-data/internal/common/db"
	"github.com/signalshift-data/internal/common/logger"
)

// OwnedTables are the tables the incident pipeline writes to
var OwnedTables = []string{"incident", "service_assignment"}

// TableStat is a planner statistics snapshot for one table
type TableStat struct {
	TableName    string
	LiveRows     int64
	DeadRows     int64
	LastAnalyzed *time.Time
}

// Maintenance handles database upkeep for the pipeline's own tables
type Maintenance struct {
	db     *db.DB
	logger logger.Logger
}

// New creates a new Maintenance instance
func New(database *db.DB, logger logger.Logger) *Maintenance {
	return &Maintenance{
		db:     database,
		logger: logger,
	}
}

// Ping checks the database is reachable within timeout
func (m *Maintenance) Ping(ctx context.Context, timeout time.Duration) error {
	pingCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	if err := m.db.Ping(pingCtx); err != nil {
		return fmt.Errorf("pinging database: %w", err)
	}
	return nil
}

// AnalyzeTables refreshes planner statistics for the pipeline's tables.
// Service resolution joins against service_assignment, so stale statistics
// show up as slow reconciles.
func (m *Maintenance) AnalyzeTables(ctx context.Context) error {
	for _, table := range OwnedTables {
		start := time.Now()
		if _, err := m.db.DB().ExecContext(ctx, "ANALYZE "+pq.QuoteIdentifier(table)); err != nil {
			return fmt.Errorf("analyzing %s: %w", table, err)
		}
		m.logger.Debug("Analyzed table", "table", table, "duration", time.Since(start))
	}
	return nil
}

// TableStats reports row counts for the pipeline's tables
func (m *Maintenance) TableStats(ctx context.Context) ([]TableStat, error) {
	rows, err := m.db.DB().QueryContext(ctx, `
		SELECT relname, n_live_tup, n_dead_tup, GREATEST(last_analyze, last_autoanalyze)
		FROM pg_stat_user_tables
		WHERE relname = ANY($1)
		ORDER BY relname
	`, pq.Array(OwnedTables))
	if err != nil {
		return nil, fmt.Errorf("querying table stats: %w", err)
	}
	defer rows.Close()

	var stats []TableStat
	for rows.Next() {
		var (
			stat     TableStat
			analyzed pq.NullTime
		)
		if err := rows.Scan(&stat.TableName, &stat.LiveRows, &stat.DeadRows, &analyzed); err != nil {
			return nil, fmt.Errorf("scanning table stats: %w", err)
		}
		if analyzed.Valid {
			t := analyzed.Time
			stat.LastAnalyzed = &t
		}
		stats = append(stats, stat)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating table stats: %w", err)
	}

	return stats, nil
}
