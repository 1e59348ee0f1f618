package db

import (
	"context"
	"fmt"
	"strings"

	"github.com/lib/pq"
)

// RequiredTables are the tables the incident pipeline reads or writes
var RequiredTables = []string{
	"incident",
	"service_assignment",
	"service",
	"station",
	"operator",
	"arrival",
}

type SchemaChecker struct {
	db *DB
}

func NewSchemaChecker(db *DB) *SchemaChecker {
	return &SchemaChecker{db: db}
}

// MissingTables returns the required tables absent from the current search_path
func (sc *SchemaChecker) MissingTables(ctx context.Context, tables []string) ([]string, error) {
	query := `
		SELECT table_name
		FROM information_schema.tables
		WHERE table_schema = ANY(current_schemas(false))
		AND table_name = ANY($1)
	`

	rows, err := sc.db.conn.QueryContext(ctx, query, pq.Array(tables))
	if err != nil {
		return nil, fmt.Errorf("querying information_schema: %w", err)
	}
	defer rows.Close()

	found := make(map[string]bool, len(tables))
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, fmt.Errorf("scanning table name: %w", err)
		}
		found[name] = true
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating tables: %w", err)
	}

	var missing []string
	for _, t := range tables {
		if !found[t] {
			missing = append(missing, t)
		}
	}
	return missing, nil
}

// Verify fails when any of RequiredTables is missing
func (sc *SchemaChecker) Verify(ctx context.Context) error {
	missing, err := sc.MissingTables(ctx, RequiredTables)
	if err != nil {
		return err
	}
	if len(missing) > 0 {
		return fmt.Errorf("database schema is missing tables: %s", strings.Join(missing, ", "))
	}

	sc.db.logger.Debug("Schema check passed", "tables", len(RequiredTables))
	return nil
}
