// Package postgres keeps audit events in a PostgreSQL table for sites that
// already retain records in a database.
package postgres

import (
	"context"
	"database/sql"
	"fmt"
	"slices"

	"github.com/google/uuid"

	audit "mfrid/pkg/platform/audit"
)

const schema = `
CREATE TABLE IF NOT EXISTS audit_events (
	id                 UUID PRIMARY KEY,
	category           TEXT        NOT NULL,
	action             TEXT        NOT NULL,
	timestamp          TIMESTAMPTZ NOT NULL,
	request_id         TEXT        NOT NULL DEFAULT '',
	client_ip          TEXT        NOT NULL DEFAULT '',
	decision           TEXT        NOT NULL DEFAULT '',
	reason             TEXT        NOT NULL DEFAULT '',
	subject_id_hash    TEXT        NOT NULL DEFAULT '',
	branch             TEXT        NOT NULL DEFAULT '',
	directory_enriched BOOLEAN     NOT NULL DEFAULT FALSE,
	duration_ms        BIGINT      NOT NULL DEFAULT 0
);
CREATE INDEX IF NOT EXISTS audit_events_timestamp_idx ON audit_events (timestamp DESC);
`

// Store implements audit.Store on the audit_events table.
type Store struct {
	db *sql.DB
}

func New(db *sql.DB) *Store {
	return &Store{db: db}
}

// Migrate creates the table and index when missing.
func (s *Store) Migrate(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, schema); err != nil {
		return fmt.Errorf("migrate audit_events: %w", err)
	}
	return nil
}

// Append inserts the event. Replays of the same ID are ignored.
func (s *Store) Append(ctx context.Context, event audit.Event) error {
	id, err := uuid.Parse(event.ID)
	if err != nil {
		id = uuid.New()
	}
	category := event.Category
	if category == "" {
		category = event.Action.Category()
	}

	const query = `
		INSERT INTO audit_events (
			id, category, action, timestamp, request_id, client_ip,
			decision, reason, subject_id_hash, branch, directory_enriched, duration_ms
		)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
		ON CONFLICT (id) DO NOTHING
	`
	_, err = s.db.ExecContext(ctx, query,
		id,
		string(category),
		string(event.Action),
		event.Timestamp,
		event.RequestID,
		event.ClientIP,
		event.Decision,
		event.Reason,
		event.SubjectIDHash,
		event.Branch,
		event.DirectoryEnriched,
		event.DurationMS,
	)
	if err != nil {
		return fmt.Errorf("insert audit event: %w", err)
	}
	return nil
}

// ListRecent returns the newest limit events, oldest first.
func (s *Store) ListRecent(ctx context.Context, limit int) ([]audit.Event, error) {
	query := `
		SELECT id, category, action, timestamp, request_id, client_ip,
			decision, reason, subject_id_hash, branch, directory_enriched, duration_ms
		FROM audit_events
		ORDER BY timestamp DESC
	`
	var args []any
	if limit > 0 {
		query += " LIMIT $1"
		args = append(args, limit)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query audit events: %w", err)
	}
	defer rows.Close()

	var events []audit.Event
	for rows.Next() {
		var (
			e        audit.Event
			id       uuid.UUID
			category string
			action   string
		)
		if err := rows.Scan(&id, &category, &action, &e.Timestamp, &e.RequestID, &e.ClientIP,
			&e.Decision, &e.Reason, &e.SubjectIDHash, &e.Branch, &e.DirectoryEnriched, &e.DurationMS); err != nil {
			return nil, fmt.Errorf("scan audit event: %w", err)
		}
		e.ID = id.String()
		e.Category = audit.EventCategory(category)
		e.Action = audit.AuditEvent(action)
		events = append(events, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate audit events: %w", err)
	}
	slices.Reverse(events)
	return events, nil
}
