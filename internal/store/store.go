// Package store persists Bible versions, books and verses in SQLite.
//
// The layout has three tables: versions keyed by id, books keyed by
// (version, id) and verses keyed by (version, book_id, chapter, verse) with a
// compound index on (version, book_id, chapter). Every lookup is a prefix
// scan over that triple.
package store

import (
	"context"
	"database/sql"
	"fmt"
	"strconv"
	"time"

	"github.com/FocuswithJustin/JuniperScripture/core/errors"
	"github.com/FocuswithJustin/JuniperScripture/core/sqlite"
)

// DefaultBatchSize is the number of verses inserted between progress reports.
const DefaultBatchSize = 500

// Version is an installed Bible translation.
type Version struct {
	ID          string    `json:"id"`
	Name        string    `json:"name"`
	Code        string    `json:"code"`
	LastUpdated time.Time `json:"last_updated"`
	SizeBytes   int64     `json:"size_bytes"`
	SourceHash  string    `json:"source_hash,omitempty"`
}

// Book is one book of one installed version. The same canonical book has a
// separate row per version.
type Book struct {
	Version      string `json:"version"`
	ID           string `json:"id"`
	Name         string `json:"name"`
	Abbreviation string `json:"abbreviation,omitempty"`
	Chapters     int    `json:"chapters"`
	Position     int    `json:"position"`
}

// PK returns the composite key "version|id".
func (b Book) PK() string {
	return b.Version + "|" + b.ID
}

// Verse is the normalized storage unit.
type Verse struct {
	Version  string `json:"version"`
	BookID   string `json:"book_id"`
	BookName string `json:"book_name"`
	Chapter  int    `json:"chapter"`
	Verse    int    `json:"verse"`
	Text     string `json:"text"`
}

// PK returns the composite key "version|bookId|chapter|verse".
func (v Verse) PK() string {
	return v.Version + "|" + v.BookID + "|" + strconv.Itoa(v.Chapter) + "|" + strconv.Itoa(v.Verse)
}

// BatchFunc is called after each committed-to-transaction verse batch.
// batch is 1-based.
type BatchFunc func(batch, totalBatches int)

// Store is an explicitly constructed verse store. Nothing in this package
// holds global state, so tests can open as many isolated stores as they need.
type Store struct {
	db *sql.DB
}

// Open opens (or creates) the store at path and applies the schema.
func Open(ctx context.Context, path string) (*Store, error) {
	db, err := sqlite.Open(path)
	if err != nil {
		return nil, err
	}
	return newStore(ctx, db)
}

// OpenMemory opens a private in-memory store.
func OpenMemory(ctx context.Context) (*Store, error) {
	db, err := sqlite.OpenMemory()
	if err != nil {
		return nil, err
	}
	return newStore(ctx, db)
}

func newStore(ctx context.Context, db *sql.DB) (*Store, error) {
	if err := migrate(ctx, db); err != nil {
		db.Close()
		return nil, fmt.Errorf("store: %w", err)
	}
	return &Store{db: db}, nil
}

// Close releases the underlying database.
func (s *Store) Close() error {
	return s.db.Close()
}

// Versions returns all installed versions ordered by id.
func (s *Store) Versions(ctx context.Context) ([]Version, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, name, code, last_updated, size_bytes, source_hash FROM versions ORDER BY id`)
	if err != nil {
		return nil, fmt.Errorf("store: list versions: %w", err)
	}
	defer rows.Close()

	var out []Version
	for rows.Next() {
		v, err := scanVersion(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, v)
	}
	return out, rows.Err()
}

// Version returns the version with the given id.
func (s *Store) Version(ctx context.Context, id string) (*Version, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT id, name, code, last_updated, size_bytes, source_hash FROM versions WHERE id = ?`, id)
	v, err := scanVersion(row)
	if err == sql.ErrNoRows {
		return nil, errors.NewNotFound("version", id)
	}
	if err != nil {
		return nil, err
	}
	return &v, nil
}

type scanner interface {
	Scan(dest ...any) error
}

func scanVersion(sc scanner) (Version, error) {
	var v Version
	var updated int64
	if err := sc.Scan(&v.ID, &v.Name, &v.Code, &updated, &v.SizeBytes, &v.SourceHash); err != nil {
		if err == sql.ErrNoRows {
			return v, err
		}
		return v, fmt.Errorf("store: scan version: %w", err)
	}
	v.LastUpdated = time.UnixMilli(updated).UTC()
	return v, nil
}

// Books returns the books of every installed version, grouped by version in
// import order.
func (s *Store) Books(ctx context.Context) ([]Book, error) {
	return s.queryBooks(ctx,
		`SELECT version, id, name, abbreviation, chapters, position FROM books ORDER BY version, position, id`)
}

// BooksByVersion returns the books of one version in import order.
func (s *Store) BooksByVersion(ctx context.Context, version string) ([]Book, error) {
	return s.queryBooks(ctx,
		`SELECT version, id, name, abbreviation, chapters, position FROM books WHERE version = ? ORDER BY position, id`,
		version)
}

func (s *Store) queryBooks(ctx context.Context, query string, args ...any) ([]Book, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("store: list books: %w", err)
	}
	defer rows.Close()

	var out []Book
	for rows.Next() {
		var b Book
		if err := rows.Scan(&b.Version, &b.ID, &b.Name, &b.Abbreviation, &b.Chapters, &b.Position); err != nil {
			return nil, fmt.Errorf("store: scan book: %w", err)
		}
		out = append(out, b)
	}
	return out, rows.Err()
}

// ChapterVerses returns every verse of one chapter, ascending by verse number.
func (s *Store) ChapterVerses(ctx context.Context, version, bookID string, chapter int) ([]Verse, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT version, book_id, book_name, chapter, verse, text FROM verses
		 WHERE version = ? AND book_id = ? AND chapter = ? ORDER BY verse`,
		version, bookID, chapter)
	if err != nil {
		return nil, fmt.Errorf("store: query chapter: %w", err)
	}
	defer rows.Close()

	var out []Verse
	for rows.Next() {
		var v Verse
		if err := rows.Scan(&v.Version, &v.BookID, &v.BookName, &v.Chapter, &v.Verse, &v.Text); err != nil {
			return nil, fmt.Errorf("store: scan verse: %w", err)
		}
		out = append(out, v)
	}
	return out, rows.Err()
}

// CountVerses returns the number of verses stored for a version.
func (s *Store) CountVerses(ctx context.Context, version string) (int, error) {
	var n int
	err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM verses WHERE version = ?`, version).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("store: count verses: %w", err)
	}
	return n, nil
}

// CountBooks returns the number of books stored for a version.
func (s *Store) CountBooks(ctx context.Context, version string) (int, error) {
	var n int
	err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM books WHERE version = ?`, version).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("store: count books: %w", err)
	}
	return n, nil
}

// ReplaceVersion writes a complete version in one transaction: existing books
// and verses for v.ID are deleted, the version row is replaced, books are
// inserted, then verses in batches of batchSize. onBatch may be nil.
//
// Any failure rolls the transaction back and is returned as *errors.ImportError,
// leaving the store exactly as it was.
func (s *Store) ReplaceVersion(ctx context.Context, v Version, books []Book, verses []Verse, batchSize int, onBatch BatchFunc) error {
	if batchSize <= 0 {
		batchSize = DefaultBatchSize
	}
	if err := checkConsistency(books, verses); err != nil {
		return errors.NewImport(v.ID, "validate", err)
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return errors.NewImport(v.ID, "begin", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, `DELETE FROM verses WHERE version = ?`, v.ID); err != nil {
		return errors.NewImport(v.ID, "delete", err)
	}
	if _, err := tx.ExecContext(ctx, `DELETE FROM books WHERE version = ?`, v.ID); err != nil {
		return errors.NewImport(v.ID, "delete", err)
	}
	if _, err := tx.ExecContext(ctx,
		`INSERT OR REPLACE INTO versions (id, name, code, last_updated, size_bytes, source_hash) VALUES (?, ?, ?, ?, ?, ?)`,
		v.ID, v.Name, v.Code, v.LastUpdated.UnixMilli(), v.SizeBytes, v.SourceHash); err != nil {
		return errors.NewImport(v.ID, "version", err)
	}

	if len(books) > 0 {
		stmt, err := tx.PrepareContext(ctx,
			`INSERT INTO books (version, id, name, abbreviation, chapters, position) VALUES (?, ?, ?, ?, ?, ?)`)
		if err != nil {
			return errors.NewImport(v.ID, "books", err)
		}
		for _, b := range books {
			if _, err := stmt.ExecContext(ctx, v.ID, b.ID, b.Name, b.Abbreviation, b.Chapters, b.Position); err != nil {
				stmt.Close()
				return errors.NewImport(v.ID, "books", fmt.Errorf("book %s: %w", b.ID, err))
			}
		}
		stmt.Close()
	}

	stmt, err := tx.PrepareContext(ctx,
		`INSERT INTO verses (version, book_id, book_name, chapter, verse, text) VALUES (?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return errors.NewImport(v.ID, "verses", err)
	}
	defer stmt.Close()

	totalBatches := (len(verses) + batchSize - 1) / batchSize
	for batch := 0; batch < totalBatches; batch++ {
		end := (batch + 1) * batchSize
		if end > len(verses) {
			end = len(verses)
		}
		for _, vs := range verses[batch*batchSize : end] {
			if _, err := stmt.ExecContext(ctx, v.ID, vs.BookID, vs.BookName, vs.Chapter, vs.Verse, vs.Text); err != nil {
				return errors.NewImport(v.ID, "verses", fmt.Errorf("verse %s: %w", vs.PK(), err))
			}
		}
		if onBatch != nil {
			onBatch(batch+1, totalBatches)
		}
	}

	if err := tx.Commit(); err != nil {
		return errors.NewImport(v.ID, "commit", err)
	}
	return nil
}

// checkConsistency verifies that every verse belongs to a listed book and
// does not exceed that book's chapter count.
func checkConsistency(books []Book, verses []Verse) error {
	chapters := make(map[string]int, len(books))
	for _, b := range books {
		chapters[b.ID] = b.Chapters
	}
	for _, v := range verses {
		max, ok := chapters[v.BookID]
		if !ok {
			return fmt.Errorf("verse %s has no book row", v.PK())
		}
		if v.Chapter > max {
			return fmt.Errorf("verse %s exceeds %d chapters", v.PK(), max)
		}
	}
	return nil
}

// DeleteVersion removes a version with all of its books and verses in one
// transaction. It reports whether the version existed.
func (s *Store) DeleteVersion(ctx context.Context, id string) (bool, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return false, fmt.Errorf("store: begin delete: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, `DELETE FROM verses WHERE version = ?`, id); err != nil {
		return false, fmt.Errorf("store: delete verses: %w", err)
	}
	if _, err := tx.ExecContext(ctx, `DELETE FROM books WHERE version = ?`, id); err != nil {
		return false, fmt.Errorf("store: delete books: %w", err)
	}
	res, err := tx.ExecContext(ctx, `DELETE FROM versions WHERE id = ?`, id)
	if err != nil {
		return false, fmt.Errorf("store: delete version: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("store: delete version: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return false, fmt.Errorf("store: commit delete: %w", err)
	}
	return n > 0, nil
}
