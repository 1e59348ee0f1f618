package db

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	_ "github.com/lib/pq"
	"github.com/signalshift-data/internal/common/logger"
)

type DB struct {
	conn   *sql.DB
	logger logger.Logger
}

// Options tunes the connection pool
type Options struct {
	MaxOpenConns    int
	ConnMaxLifetime time.Duration
}

func New(ctx context.Context, connStr string, opts Options, logger logger.Logger) (*DB, error) {
	conn, err := sql.Open("postgres", connStr)
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}

	if opts.MaxOpenConns > 0 {
		conn.SetMaxOpenConns(opts.MaxOpenConns)
		conn.SetMaxIdleConns(opts.MaxOpenConns)
	}
	if opts.ConnMaxLifetime > 0 {
		conn.SetConnMaxLifetime(opts.ConnMaxLifetime)
	}

	pingCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	if err := conn.PingContext(pingCtx); err != nil {
		conn.Close()
		return nil, fmt.Errorf("pinging database: %w", err)
	}

	logger.Info("Database connection established")

	return Wrap(conn, logger), nil
}

// Wrap adopts an already opened pool
func Wrap(conn *sql.DB, logger logger.Logger) *DB {
	return &DB{
		conn:   conn,
		logger: logger,
	}
}

func (db *DB) Close() error {
	return db.conn.Close()
}

// DB returns the underlying pool
func (db *DB) DB() *sql.DB {
	return db.conn
}

func (db *DB) BeginTx(ctx context.Context) (*sql.Tx, error) {
	return db.conn.BeginTx(ctx, nil)
}

// Ping checks the pool can still reach the server
func (db *DB) Ping(ctx context.Context) error {
	return db.conn.PingContext(ctx)
}

// Logger returns the logger instance
func (db *DB) Logger() logger.Logger {
	return db.logger
}
