package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/lib/pq"
)

// PostgresDocs is the durable SQL-based implementation. The clients
// table lives in a dedicated schema so several deployments can share
// one database.
type PostgresDocs struct {
	db     *sql.DB
	schema string
}

// NewPostgresDocs wraps an open connection. schema selects the schema
// holding the clients table (the original system's database name).
func NewPostgresDocs(db *sql.DB, schema string) *PostgresDocs {
	return &PostgresDocs{db: db, schema: schema}
}

// Migrate creates the schema and table if missing.
func (s *PostgresDocs) Migrate(ctx context.Context) error {
	stmts := []string{
		fmt.Sprintf(`CREATE SCHEMA IF NOT EXISTS %s`, pq.QuoteIdentifier(s.schema)),
		fmt.Sprintf(`
			CREATE TABLE IF NOT EXISTS %s.clients (
				id TEXT PRIMARY KEY,
				password_hash TEXT NOT NULL
			)`, pq.QuoteIdentifier(s.schema)),
	}
	for _, stmt := range stmts {
		if _, err := s.db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("migrate clients table: %w", err)
		}
	}
	return nil
}

func (s *PostgresDocs) FindClient(ctx context.Context, id string) (*ClientRecord, error) {
	query := fmt.Sprintf(`
		SELECT id, password_hash
		FROM %s.clients
		WHERE id = $1
	`, pq.QuoteIdentifier(s.schema))

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

func (s *PostgresDocs) InsertClient(ctx context.Context, rec ClientRecord) error {
	query := fmt.Sprintf(`
		INSERT INTO %s.clients (id, password_hash)
		VALUES ($1, $2)
		ON CONFLICT (id) DO NOTHING
	`, pq.QuoteIdentifier(s.schema))

	if _, err := s.db.ExecContext(ctx, query, rec.ID, rec.PasswordHash); err != nil {
		return fmt.Errorf("insert client %s: %w", rec.ID, err)
	}
	return nil
}
