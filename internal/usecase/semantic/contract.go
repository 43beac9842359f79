package semantic

import (
	"context"

	"github.com/kailas-cloud/fundmatch/internal/domain"
)

// Embedder vectorizes text into embeddings.
type Embedder interface {
	Embed(ctx context.Context, text string) (domain.EmbeddingResult, error)
}

// Cache stores content-addressed embeddings for the current model.
type Cache interface {
	ModelVersion() string
	Dimensions() int
	Get(ctx context.Context, text string) (domain.Embedding, bool)
	Put(ctx context.Context, text string, vec []float32) domain.Embedding
	Invalidate(ctx context.Context, text string)
}
