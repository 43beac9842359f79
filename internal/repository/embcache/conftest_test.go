package embcache

import (
	"context"
	"sync"
	"testing"
	"time"

	"go.uber.org/zap"

	"github.com/kailas-cloud/fundmatch/internal/db"
)

// mockKVStore implements the consumer interface for tests.
type mockKVStore struct {
	mu    sync.Mutex
	data  map[string][]byte
	gets  int
	sets  int
	dels  int
	getFn func(ctx context.Context, key string) ([]byte, error)
}

func newMockKVStore() *mockKVStore {
	return &mockKVStore{data: make(map[string][]byte)}
}

func (m *mockKVStore) Get(ctx context.Context, key string) ([]byte, error) {
	m.mu.Lock()
	m.gets++
	fn := m.getFn
	v, ok := m.data[key]
	m.mu.Unlock()
	if fn != nil {
		return fn(ctx, key)
	}
	if !ok {
		return nil, db.ErrKeyNotFound
	}
	return v, nil
}

func (m *mockKVStore) SetWithTTL(_ context.Context, key string, value []byte, _ time.Duration) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.sets++
	m.data[key] = value
	return nil
}

func (m *mockKVStore) Del(_ context.Context, key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.dels++
	delete(m.data, key)
	return nil
}

func newTestCache(t *testing.T, s store, model string, dims int) *Cache {
	t.Helper()
	return New(Config{Store: s, ModelVersion: model, Dimensions: dims, Logger: zap.NewNop()})
}
