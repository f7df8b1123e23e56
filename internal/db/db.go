package db

import (
	"database/sql"
	"fmt"
	"strings"

	sq "github.com/Masterminds/squirrel"
	_ "github.com/mattn/go-sqlite3"
)

// DB wraps sql.DB for the save journal.
type DB struct {
	*sql.DB
	builder sq.StatementBuilderType
}

// NewDB opens database at path and runs migrations.
func NewDB(path string) (*DB, error) {
	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("open db: %w", err)
	}
	// sqlite serialises writers; one connection avoids "database is locked".
	db.SetMaxOpenConns(1)
	if _, err := db.Exec("PRAGMA journal_mode = WAL"); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("enable wal: %w", err)
	}
	if err := createTables(db); err != nil {
		_ = db.Close()
		return nil, err
	}
	return &DB{DB: db, builder: sq.StatementBuilder.PlaceholderFormat(sq.Question)}, nil
}

func createTables(db *sql.DB) error {
	queries := []string{
		`CREATE TABLE IF NOT EXISTS save_snapshots (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			run_id TEXT NOT NULL,
			calendar_id TEXT NOT NULL,
			service_item_id TEXT NOT NULL DEFAULT '',
			encoded_name TEXT NOT NULL,
			is_active BOOLEAN NOT NULL DEFAULT 1,
			rules_count INTEGER NOT NULL DEFAULT 0,
			blackouts_count INTEGER NOT NULL DEFAULT 0,
			source TEXT NOT NULL DEFAULT 'console',
			saved_at INTEGER NOT NULL
		)`,

		`CREATE INDEX IF NOT EXISTS idx_snapshots_calendar ON save_snapshots(calendar_id, saved_at)`,
		`CREATE INDEX IF NOT EXISTS idx_snapshots_saved_at ON save_snapshots(saved_at)`,
	}

	for _, q := range queries {
		if _, err := db.Exec(q); err != nil {
			return fmt.Errorf("exec migration %s: %w", trimSQL(q), err)
		}
	}
	return nil
}

func trimSQL(s string) string {
	s = strings.Join(strings.Fields(s), " ")
	if len(s) > 60 {
		return s[:60] + "..."
	}
	return s
}
