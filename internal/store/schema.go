package store

import (
	"context"
	"database/sql"
	"fmt"
)

// schemaVersion is recorded in PRAGMA user_version after migrate succeeds.
const schemaVersion = 1

var schema = []string{
	`CREATE TABLE IF NOT EXISTS versions (
		id           TEXT PRIMARY KEY,
		name         TEXT NOT NULL,
		code         TEXT NOT NULL,
		last_updated INTEGER NOT NULL,
		size_bytes   INTEGER NOT NULL,
		source_hash  TEXT NOT NULL DEFAULT ''
	)`,
	`CREATE INDEX IF NOT EXISTS idx_versions_code ON versions(code)`,

	`CREATE TABLE IF NOT EXISTS books (
		version      TEXT NOT NULL,
		id           TEXT NOT NULL,
		name         TEXT NOT NULL,
		abbreviation TEXT NOT NULL DEFAULT '',
		chapters     INTEGER NOT NULL,
		position     INTEGER NOT NULL DEFAULT 0,
		PRIMARY KEY (version, id)
	)`,
	`CREATE INDEX IF NOT EXISTS idx_books_version ON books(version)`,
	`CREATE INDEX IF NOT EXISTS idx_books_id ON books(id)`,
	`CREATE INDEX IF NOT EXISTS idx_books_name ON books(name)`,

	`CREATE TABLE IF NOT EXISTS verses (
		version   TEXT NOT NULL,
		book_id   TEXT NOT NULL,
		book_name TEXT NOT NULL,
		chapter   INTEGER NOT NULL CHECK (chapter > 0),
		verse     INTEGER NOT NULL CHECK (verse > 0),
		text      TEXT NOT NULL,
		PRIMARY KEY (version, book_id, chapter, verse)
	)`,
	`CREATE INDEX IF NOT EXISTS idx_verses_chapter ON verses(version, book_id, chapter)`,
}

// migrate creates the tables and indexes if they do not exist yet.
func migrate(ctx context.Context, db *sql.DB) error {
	var current int
	if err := db.QueryRowContext(ctx, `PRAGMA user_version`).Scan(&current); err != nil {
		return fmt.Errorf("read schema version: %w", err)
	}
	if current > schemaVersion {
		return fmt.Errorf("database schema version %d is newer than supported version %d", current, schemaVersion)
	}

	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin migration: %w", err)
	}
	defer tx.Rollback()

	for _, stmt := range schema {
		if _, err := tx.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("apply schema: %w", err)
		}
	}
	if _, err := tx.ExecContext(ctx, fmt.Sprintf(`PRAGMA user_version = %d`, schemaVersion)); err != nil {
		return fmt.Errorf("record schema version: %w", err)
	}
	return tx.Commit()
}
