// Package history persists resolved approval requests in SQLite so
// operators can audit past decisions through the gateway.
package history

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite" // SQLite driver registration

	"github.com/flemzord/toolgate/internal/broker"
)

const defaultBusyTimeout = 5000 // milliseconds

// Store records and queries resolved approvals. It implements
// broker.History.
type Store struct {
	db *sql.DB
}

// Compile-time interface guard.
var _ broker.History = (*Store)(nil)

// Open opens (and creates if needed) the SQLite database at path.
// The database uses WAL mode, a 5 s busy timeout, and a single connection
// (SQLite serialises writes). The schema is migrated automatically.
func Open(path string) (*Store, error) {
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o700); err != nil {
			return nil, fmt.Errorf("history: create directory %s: %w", dir, err)
		}
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("history: open %s: %w", path, err)
	}

	db.SetMaxOpenConns(1)

	ctx := context.Background()
	if _, err := db.ExecContext(ctx, "PRAGMA journal_mode=WAL"); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("history: enable WAL: %w", err)
	}
	if _, err := db.ExecContext(ctx, fmt.Sprintf("PRAGMA busy_timeout=%d", defaultBusyTimeout)); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("history: set busy_timeout: %w", err)
	}

	if err := migrate(ctx, db); err != nil {
		_ = db.Close()
		return nil, err
	}

	return &Store{db: db}, nil
}

// Close closes the underlying database.
func (s *Store) Close() error {
	return s.db.Close()
}

// Record implements broker.History.
func (s *Store) Record(ctx context.Context, rec broker.HistoryRecord) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO approvals (id, tool_name, channel, user_id, outcome, message, created_at, resolved_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		rec.ID, rec.ToolName, rec.Channel, rec.UserID, rec.Outcome, rec.Message,
		rec.CreatedAt.UTC().Format(time.RFC3339Nano),
		rec.ResolvedAt.UTC().Format(time.RFC3339Nano),
	)
	if err != nil {
		return fmt.Errorf("history: insert %s: %w", rec.ID, err)
	}
	return nil
}

// Recent returns the most recently resolved approvals, newest first.
func (s *Store) Recent(ctx context.Context, limit int) ([]broker.HistoryRecord, error) {
	if limit <= 0 {
		limit = 50
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT id, tool_name, channel, user_id, outcome, message, created_at, resolved_at
		FROM approvals ORDER BY resolved_at DESC LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("history: query recent: %w", err)
	}
	defer rows.Close()

	var recs []broker.HistoryRecord
	for rows.Next() {
		var rec broker.HistoryRecord
		var createdAt, resolvedAt string
		if err := rows.Scan(&rec.ID, &rec.ToolName, &rec.Channel, &rec.UserID,
			&rec.Outcome, &rec.Message, &createdAt, &resolvedAt); err != nil {
			return nil, fmt.Errorf("history: scan: %w", err)
		}
		rec.CreatedAt, _ = time.Parse(time.RFC3339Nano, createdAt)
		rec.ResolvedAt, _ = time.Parse(time.RFC3339Nano, resolvedAt)
		recs = append(recs, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("history: iterate: %w", err)
	}
	return recs, nil
}
