package memory

import (
	"context"
	"time"

	gocache "github.com/patrickmn/go-cache"

	"github.com/kailas-cloud/fundmatch/internal/db"
)

// Compile-time check: Store implements db.Store.
var _ db.Store = (*Store)(nil)

// Store is an in-process db.Store for local runs and tests. Values do not
// survive a restart.
type Store struct {
	cache *gocache.Cache
}

// NewStore creates an in-memory store. cleanupInterval controls how often
// expired keys are purged.
func NewStore(cleanupInterval time.Duration) *Store {
	return &Store{cache: gocache.New(gocache.NoExpiration, cleanupInterval)}
}

// Ping always succeeds.
func (s *Store) Ping(_ context.Context) error { return nil }

// Close is a no-op.
func (s *Store) Close() {}

// WaitForReady returns immediately.
func (s *Store) WaitForReady(_ context.Context, _ time.Duration) error { return nil }

// Get retrieves a copy of the stored value.
func (s *Store) Get(_ context.Context, key string) ([]byte, error) {
	v, ok := s.cache.Get(key)
	if !ok {
		return nil, db.ErrKeyNotFound
	}
	b := v.([]byte)
	out := make([]byte, len(b))
	copy(out, b)
	return out, nil
}

// Set stores a copy of value without expiry.
func (s *Store) Set(ctx context.Context, key string, value []byte) error {
	return s.SetWithTTL(ctx, key, value, 0)
}

// SetWithTTL stores a copy of value. ttl <= 0 stores without expiry.
func (s *Store) SetWithTTL(_ context.Context, key string, value []byte, ttl time.Duration) error {
	b := make([]byte, len(value))
	copy(b, value)
	if ttl <= 0 {
		ttl = gocache.NoExpiration
	}
	s.cache.Set(key, b, ttl)
	return nil
}

// Del removes a key.
func (s *Store) Del(_ context.Context, key string) error {
	s.cache.Delete(key)
	return nil
}

// Exists reports whether a key is present and unexpired.
func (s *Store) Exists(_ context.Context, key string) (bool, error) {
	_, ok := s.cache.Get(key)
	return ok, nil
}
