package history

import (
	"database/sql"
	"fmt"
)

func migrate(db *sql.DB) error {
	_, err := db.Exec(`CREATE TABLE IF NOT EXISTS runs (
		id         TEXT PRIMARY KEY,
		mode       TEXT NOT NULL CHECK(mode IN ('analyze','optimize')),
		term       TEXT NOT NULL,
		model      TEXT NOT NULL,
		found      INTEGER NOT NULL DEFAULT 0,
		output     TEXT NOT NULL DEFAULT '',
		report     TEXT NOT NULL DEFAULT '',
		status     TEXT NOT NULL CHECK(status IN ('ok','failed')),
		error      TEXT NOT NULL DEFAULT '',
		created_at TEXT NOT NULL
	)`)
	if err != nil {
		return fmt.Errorf("create runs table: %w", err)
	}

	if _, err := db.Exec(`CREATE INDEX IF NOT EXISTS runs_created_at ON runs(created_at)`); err != nil {
		return fmt.Errorf("create runs index: %w", err)
	}

	return nil
}
