package storage

import (
	"database/sql"
	"fmt"
	"os"
	"path/filepath"

	_ "modernc.org/sqlite" // Pure Go SQLite driver
)

// InitSQLite opens (creating if needed) the archive database at dbPath and
// makes sure the schema exists.
func InitSQLite(dbPath string) (*sql.DB, error) {
	dir := filepath.Dir(dbPath)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create archive directory: %w", err)
	}

	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open sqlite database: %w", err)
	}
	// One writer; the dispatcher is the only caller anyway.
	db.SetMaxOpenConns(1)

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to ping sqlite database: %w", err)
	}

	if err := createSchemas(db); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to create schemas: %w", err)
	}

	return db, nil
}

func createSchemas(db *sql.DB) error {
	schemas := []string{
		`CREATE TABLE IF NOT EXISTS records (
			id TEXT PRIMARY KEY,
			session_id TEXT NOT NULL,
			observed_at DATETIME NOT NULL,
			observed_day TEXT NOT NULL,
			kind TEXT NOT NULL,
			speaker TEXT NOT NULL DEFAULT '',
			message TEXT NOT NULL,
			parameters TEXT NOT NULL,
			rendered TEXT NOT NULL DEFAULT ''
		);`,
		`CREATE INDEX IF NOT EXISTS idx_records_day ON records(observed_day);`,
		`CREATE INDEX IF NOT EXISTS idx_records_kind ON records(kind);`,
		`CREATE INDEX IF NOT EXISTS idx_records_session ON records(session_id);`,
	}

	for _, query := range schemas {
		if _, err := db.Exec(query); err != nil {
			return err
		}
	}

	return nil
}
