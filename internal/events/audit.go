package events

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	_ "github.com/lib/pq"
	"go.uber.org/zap"

	"github.com/fruitsalade/filemanager/internal/logging"
)

const auditSchema = `
CREATE TABLE IF NOT EXISTS file_events (
	id         BIGSERIAL PRIMARY KEY,
	type       TEXT        NOT NULL,
	disk       TEXT        NOT NULL,
	path       TEXT        NOT NULL,
	created_at TIMESTAMPTZ NOT NULL
);
CREATE INDEX IF NOT EXISTS file_events_created_at_idx ON file_events (created_at DESC);
`

// writeTimeout bounds a single audit insert so Emit never stalls a request.
const writeTimeout = 5 * time.Second

// AuditLog is a Sink that persists events to PostgreSQL.
type AuditLog struct {
	db *sql.DB
}

// OpenAuditLog connects to PostgreSQL and ensures the file_events table exists.
func OpenAuditLog(ctx context.Context, databaseURL string) (*AuditLog, error) {
	db, err := sql.Open("postgres", databaseURL)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	db.SetMaxOpenConns(10)
	db.SetMaxIdleConns(2)
	db.SetConnMaxLifetime(5 * time.Minute)

	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}
	if _, err := db.ExecContext(ctx, auditSchema); err != nil {
		db.Close()
		return nil, fmt.Errorf("create file_events: %w", err)
	}

	return &AuditLog{db: db}, nil
}

// NewAuditLog wraps an existing connection. The schema must already exist.
func NewAuditLog(db *sql.DB) *AuditLog {
	return &AuditLog{db: db}
}

// Emit inserts the event. Failures are logged, never returned.
func (a *AuditLog) Emit(e Event) {
	ts := time.Now()
	if e.Timestamp != 0 {
		ts = time.Unix(e.Timestamp, 0)
	}

	ctx, cancel := context.WithTimeout(context.Background(), writeTimeout)
	defer cancel()

	_, err := a.db.ExecContext(ctx,
		`INSERT INTO file_events (type, disk, path, created_at) VALUES ($1, $2, $3, $4)`,
		e.Type, e.Disk, e.Path, ts)
	if err != nil {
		logging.Warn("audit log insert failed",
			zap.String("type", e.Type),
			zap.String("path", e.Path),
			zap.Error(err))
	}
}

// Recent returns the newest events, newest first.
func (a *AuditLog) Recent(ctx context.Context, limit int) ([]Event, error) {
	if limit <= 0 || limit > 1000 {
		limit = 100
	}

	rows, err := a.db.QueryContext(ctx,
		`SELECT type, disk, path, created_at FROM file_events ORDER BY created_at DESC, id DESC LIMIT $1`, limit)
	if err != nil {
		return nil, fmt.Errorf("query file_events: %w", err)
	}
	defer rows.Close()

	var out []Event
	for rows.Next() {
		var e Event
		var created time.Time
		if err := rows.Scan(&e.Type, &e.Disk, &e.Path, &created); err != nil {
			return nil, fmt.Errorf("scan file_event: %w", err)
		}
		e.Timestamp = created.Unix()
		out = append(out, e)
	}
	return out, rows.Err()
}

// Close closes the database connection.
func (a *AuditLog) Close() error {
	return a.db.Close()
}
