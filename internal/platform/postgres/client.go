// Package postgres opens the optional audit database.
package postgres

import (
	"context"
	"database/sql"
	"fmt"

	_ "github.com/lib/pq" // registers the "postgres" driver

	"mfrid/internal/platform/config"
	"mfrid/pkg/platform/sentinel"
)

// DB wraps the pooled handle used by the audit table store.
type DB struct {
	*sql.DB
}

// Open connects to the configured database. It returns (nil, nil) when no URL
// is set.
func Open(ctx context.Context, cfg config.Postgres) (*DB, error) {
	if cfg.URL == "" {
		return nil, nil
	}

	db, err := sql.Open("postgres", cfg.URL)
	if err != nil {
		return nil, fmt.Errorf("open postgres: %w", err)
	}
	db.SetMaxOpenConns(cfg.MaxOpenConns)
	db.SetMaxIdleConns(cfg.MaxIdleConns)
	db.SetConnMaxLifetime(cfg.ConnMaxLifetime)

	pingCtx, cancel := context.WithTimeout(ctx, cfg.ConnectTimeout)
	defer cancel()
	if err := db.PingContext(pingCtx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("postgres ping: %w: %w", sentinel.ErrUnavailable, err)
	}
	return &DB{DB: db}, nil
}

// Health is used by the readiness check.
func (d *DB) Health(ctx context.Context) error {
	if err := d.PingContext(ctx); err != nil {
		return fmt.Errorf("%w: %w", sentinel.ErrUnavailable, err)
	}
	return nil
}
