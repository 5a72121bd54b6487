package history

import (
	"context"
	"database/sql"
	"fmt"
)

// schemaVersion is bumped whenever migrations gains a new entry.
const schemaVersion = 1

// migrations are applied in order; user_version tracks progress.
var migrations = []string{
	`CREATE TABLE IF NOT EXISTS approvals (
		id          TEXT PRIMARY KEY,
		tool_name   TEXT NOT NULL,
		channel     TEXT NOT NULL,
		user_id     TEXT NOT NULL,
		outcome     TEXT NOT NULL,
		message     TEXT NOT NULL DEFAULT '',
		created_at  TEXT NOT NULL,
		resolved_at TEXT NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_approvals_resolved_at ON approvals(resolved_at);`,
}

func migrate(ctx context.Context, db *sql.DB) error {
	var version int
	if err := db.QueryRowContext(ctx, "PRAGMA user_version").Scan(&version); err != nil {
		return fmt.Errorf("history: read schema version: %w", err)
	}

	for i := version; i < len(migrations) && i < schemaVersion; i++ {
		if _, err := db.ExecContext(ctx, migrations[i]); err != nil {
			return fmt.Errorf("history: migration %d: %w", i+1, err)
		}
		if _, err := db.ExecContext(ctx, fmt.Sprintf("PRAGMA user_version=%d", i+1)); err != nil {
			return fmt.Errorf("history: set schema version: %w", err)
		}
	}
	return nil
}
