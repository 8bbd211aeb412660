// Package database opens the pooled connection the query executor runs on.
package database

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib"
	_ "github.com/marcboeker/go-duckdb/v2"
)

const (
	DriverPgx    = "pgx"
	DriverDuckDB = "duckdb"
)

type DBConfig struct {
	Driver          string
	DSN             string
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxIdleTime time.Duration
	ConnMaxLifetime time.Duration
	PingTimeout     time.Duration
}

// Open connects with the pgx driver for PostgreSQL, or with DuckDB for a
// local database file. DuckDB files are opened read-only unless the DSN sets
// access_mode itself. An empty DuckDB DSN opens an in-memory database.
func Open(ctx context.Context, cfg DBConfig) (*sql.DB, error) {
	driver := strings.ToLower(strings.TrimSpace(cfg.Driver))
	if driver == "" {
		driver = DriverPgx
	}
	switch driver {
	case DriverPgx:
		if strings.TrimSpace(cfg.DSN) == "" {
			return nil, fmt.Errorf("database dsn is required")
		}
	case DriverDuckDB:
		cfg.DSN = duckDBReadOnly(cfg.DSN)
	default:
		return nil, fmt.Errorf("unsupported database driver %q", cfg.Driver)
	}

	db, err := sql.Open(driver, cfg.DSN)
	if err != nil {
		return nil, fmt.Errorf("open %s db: %w", driver, err)
	}

	if cfg.MaxOpenConns > 0 {
		db.SetMaxOpenConns(cfg.MaxOpenConns)
	}
	if cfg.MaxIdleConns > 0 {
		db.SetMaxIdleConns(cfg.MaxIdleConns)
	}
	if cfg.ConnMaxIdleTime > 0 {
		db.SetConnMaxIdleTime(cfg.ConnMaxIdleTime)
	}
	if cfg.ConnMaxLifetime > 0 {
		db.SetConnMaxLifetime(cfg.ConnMaxLifetime)
	}

	pingTimeout := cfg.PingTimeout
	if pingTimeout <= 0 {
		pingTimeout = 5 * time.Second
	}
	pingCtx, cancel := context.WithTimeout(ctx, pingTimeout)
	defer cancel()
	if err := db.PingContext(pingCtx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping %s db: %w", driver, err)
	}

	return db, nil
}

func duckDBReadOnly(dsn string) string {
	path := strings.TrimSpace(dsn)
	if path == "" || strings.HasPrefix(path, ":memory:") {
		return dsn
	}
	if strings.Contains(strings.ToLower(path), "access_mode=") {
		return path
	}
	if strings.Contains(path, "?") {
		return path + "&access_mode=READ_ONLY"
	}
	return path + "?access_mode=READ_ONLY"
}
