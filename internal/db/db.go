// Package db owns the relational store connection: a pgx pool for Postgres or
// an embedded SQLite file, both exposed through sqlx so stores share one SQL
// surface.
package db

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/jackc/pgx/v5/stdlib"
	"github.com/jmoiron/sqlx"
	_ "modernc.org/sqlite"
)

// Dialect names the SQL engine behind a DB.
type Dialect string

const (
	Postgres Dialect = "postgres"
	SQLite   Dialect = "sqlite"
)

// Options configures Connect.
type Options struct {
	Driver         Dialect
	URL            string
	MaxConns       int
	ConnectTimeout time.Duration
	IdleTimeout    time.Duration
}

// DB is an open relational store. Queries are written with ? placeholders and
// rebound per dialect.
type DB struct {
	*sqlx.DB
	Dialect Dialect

	pool *pgxpool.Pool
}

// Connect opens the store described by opts and verifies it is reachable.
func Connect(ctx context.Context, opts Options) (*DB, error) {
	switch opts.Driver {
	case Postgres:
		return connectPostgres(ctx, opts)
	case SQLite:
		return OpenSQLite(ctx, opts.URL)
	default:
		return nil, fmt.Errorf("unknown database driver %q", opts.Driver)
	}
}

func connectPostgres(ctx context.Context, opts Options) (*DB, error) {
	cfg, err := pgxpool.ParseConfig(opts.URL)
	if err != nil {
		return nil, fmt.Errorf("parse database url: %w", err)
	}
	if opts.MaxConns > 0 {
		cfg.MaxConns = int32(opts.MaxConns)
	}
	if opts.IdleTimeout > 0 {
		cfg.MaxConnIdleTime = opts.IdleTimeout
	}
	if opts.ConnectTimeout > 0 {
		cfg.ConnConfig.ConnectTimeout = opts.ConnectTimeout
	}

	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("create pool: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping postgres: %w", err)
	}

	return &DB{
		DB:      sqlx.NewDb(stdlib.OpenDBFromPool(pool), "pgx"),
		Dialect: Postgres,
		pool:    pool,
	}, nil
}

// OpenSQLite opens (or creates) a SQLite database at path. ":memory:" gives a
// private in-memory database. Foreign keys are enforced.
func OpenSQLite(ctx context.Context, path string) (*DB, error) {
	x, err := sqlx.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open sqlite %s: %w", path, err)
	}
	// One connection: an in-memory database lives only as long as its
	// connection, and SQLite serializes writers anyway.
	x.SetMaxOpenConns(1)
	x.SetConnMaxLifetime(0)

	pragmas := []string{"PRAGMA foreign_keys = ON", "PRAGMA busy_timeout = 5000"}
	if path != ":memory:" {
		pragmas = append(pragmas, "PRAGMA journal_mode = WAL")
	}
	for _, p := range pragmas {
		if _, err := x.ExecContext(ctx, p); err != nil {
			x.Close()
			return nil, fmt.Errorf("%s: %w", p, err)
		}
	}

	return &DB{DB: x, Dialect: SQLite}, nil
}

// Close releases the store. The pgx pool, when present, is closed after the
// database/sql handle that wraps it.
func (d *DB) Close() error {
	err := d.DB.Close()
	if d.pool != nil {
		d.pool.Close()
	}
	return err
}

// Now returns the database clock, used by health checks.
func (d *DB) Now(ctx context.Context) (string, error) {
	var now string
	if err := d.QueryRowxContext(ctx, "SELECT CURRENT_TIMESTAMP").Scan(&now); err != nil {
		return "", fmt.Errorf("query database time: %w", err)
	}
	return now, nil
}

// LockClause returns the row-lock suffix for SELECTs inside a transaction.
// SQLite has no row locks; its single writer already serializes.
func (d Dialect) LockClause() string {
	if d == Postgres {
		return " FOR UPDATE"
	}
	return ""
}

// Timestamp normalizes t for storage: UTC, microsecond precision, no
// monotonic reading.
func Timestamp(t time.Time) time.Time {
	return t.UTC().Truncate(time.Microsecond)
}
