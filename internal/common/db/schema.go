package db

import (
	"context"
	_ "embed"
	"fmt"
)

//go:embed schema.sql
var Schema string

// EnsureSchema creates any missing tables. Used by the replay tool against
// fresh databases; the live pipeline only verifies.
func (db *DB) EnsureSchema(ctx context.Context) error {
	if _, err := db.conn.ExecContext(ctx, Schema); err != nil {
		return fmt.Errorf("applying schema: %w", err)
	}
	db.logger.Info("Database schema applied")
	return nil
}
