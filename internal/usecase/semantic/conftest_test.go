package semantic

import (
	"context"
	"sync"
	"testing"
	"time"

	"go.uber.org/zap"

	"github.com/kailas-cloud/fundmatch/internal/domain"
	"github.com/kailas-cloud/fundmatch/internal/repository/embcache"
)

// mockEmbedder returns fixed vectors for known texts and a deterministic
// text-derived vector otherwise.
type mockEmbedder struct {
	mu      sync.Mutex
	dims    int
	vectors map[string][]float32
	err     error
	delay   time.Duration
	calls   map[string]int
}

func newMockEmbedder(dims int) *mockEmbedder {
	return &mockEmbedder{dims: dims, vectors: make(map[string][]float32), calls: make(map[string]int)}
}

func (m *mockEmbedder) Embed(ctx context.Context, text string) (domain.EmbeddingResult, error) {
	m.mu.Lock()
	m.calls[text]++
	err, delay := m.err, m.delay
	vec, ok := m.vectors[text]
	m.mu.Unlock()

	if delay > 0 {
		select {
		case <-time.After(delay):
		case <-ctx.Done():
			return domain.EmbeddingResult{}, ctx.Err()
		}
	}
	if err != nil {
		return domain.EmbeddingResult{}, err
	}
	if !ok {
		vec = make([]float32, m.dims)
		for i := range vec {
			vec[i] = float32((len(text)+i)%7) + 1
		}
	}
	return domain.EmbeddingResult{Embedding: vec}, nil
}

func (m *mockEmbedder) CallsFor(text string) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.calls[text]
}

func (m *mockEmbedder) TotalCalls() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	n := 0
	for _, c := range m.calls {
		n += c
	}
	return n
}

func newTestService(t *testing.T, emb Embedder, model string, dims int, cfg Config) *Service {
	t.Helper()
	cache := embcache.New(embcache.Config{ModelVersion: model, Dimensions: dims})
	svc, err := New(emb, cache, cfg, zap.NewNop())
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	return svc
}
