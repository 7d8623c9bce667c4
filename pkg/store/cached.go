package store

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/syncx-labs/syncx/pkg/cache"
)

// CachedDocs layers the read-through cache over a Docs backend. Reads
// consult the cache first; a miss falls through to the backend and
// warms the cache with the JSON-serialized record keyed by id.
type CachedDocs struct {
	docs  Docs
	cache cache.Cache
}

// NewCachedDocs wraps docs with c.
func NewCachedDocs(docs Docs, c cache.Cache) *CachedDocs {
	return &CachedDocs{docs: docs, cache: c}
}

func (s *CachedDocs) FindClient(ctx context.Context, id string) (*ClientRecord, error) {
	cached, ok, err := s.cache.Get(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("cache lookup for %s: %w", id, err)
	}
	if ok {
		var rec ClientRecord
		if err := json.Unmarshal([]byte(cached), &rec); err != nil {
			return nil, fmt.Errorf("decode cached client %s: %w", id, err)
		}
		return &rec, nil
	}

	rec, err := s.docs.FindClient(ctx, id)
	if err != nil || rec == nil {
		return rec, err
	}

	encoded, err := json.Marshal(rec)
	if err != nil {
		return nil, fmt.Errorf("encode client %s: %w", id, err)
	}
	if err := s.cache.Set(ctx, id, string(encoded)); err != nil {
		return nil, fmt.Errorf("warm cache for %s: %w", id, err)
	}
	return rec, nil
}

func (s *CachedDocs) InsertClient(ctx context.Context, rec ClientRecord) error {
	return s.docs.InsertClient(ctx, rec)
}
