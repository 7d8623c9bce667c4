// Package store persists client account records. Two backends are
// provided: Postgres for production and SQLite for development and
// tests. CachedDocs layers the read-through cache on top of either.
package store

import "context"

// ClientRecord is the durable per-client record. PasswordHash is an
// argon2id PHC string; the JSON form is what the cache stores keyed
// by id.
type ClientRecord struct {
	ID           string `json:"id"`
	PasswordHash string `json:"password"`
}

// Docs is the document-store capability. FindClient returns
// (nil, nil) when no record exists.
type Docs interface {
	FindClient(ctx context.Context, id string) (*ClientRecord, error)
	InsertClient(ctx context.Context, rec ClientRecord) error
}
