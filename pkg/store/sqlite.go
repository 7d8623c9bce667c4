package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	_ "modernc.org/sqlite"
)

// SQLiteDocs is the file-backed implementation used for development
// and tests. The schema is created on construction.
type SQLiteDocs struct {
	db *sql.DB
}

// NewSQLiteDocs wraps an open sqlite connection and migrates it.
func NewSQLiteDocs(db *sql.DB) (*SQLiteDocs, error) {
	s := &SQLiteDocs{db: db}
	if err := s.migrate(); err != nil {
		return nil, err
	}
	return s, nil
}

// OpenSQLiteDocs opens (creating if needed) the database at path.
func OpenSQLiteDocs(path string) (*SQLiteDocs, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open sqlite %s: %w", path, err)
	}
	return NewSQLiteDocs(db)
}

func (s *SQLiteDocs) migrate() error {
	query := `
	CREATE TABLE IF NOT EXISTS clients (
		id TEXT PRIMARY KEY,
		password_hash TEXT NOT NULL
	);`
	if _, err := s.db.ExecContext(context.Background(), query); err != nil {
		return fmt.Errorf("migrate clients table: %w", err)
	}
	return nil
}

func (s *SQLiteDocs) FindClient(ctx context.Context, id string) (*ClientRecord, error) {
	query := `
		SELECT id, password_hash
		FROM clients
		WHERE id = ?
	`
	var rec ClientRecord
	err := s.db.QueryRowContext(ctx, query, id).Scan(&rec.ID, &rec.PasswordHash)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("find client %s: %w", id, err)
	}
	return &rec, nil
}

func (s *SQLiteDocs) InsertClient(ctx context.Context, rec ClientRecord) error {
	query := `
		INSERT INTO clients (id, password_hash)
		VALUES (?, ?)
		ON CONFLICT (id) DO NOTHING
	`
	if _, err := s.db.ExecContext(ctx, query, rec.ID, rec.PasswordHash); err != nil {
		return fmt.Errorf("insert client %s: %w", rec.ID, err)
	}
	return nil
}

// Close closes the underlying database.
func (s *SQLiteDocs) Close() error {
	return s.db.Close()
}
