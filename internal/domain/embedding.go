package domain

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"math"
)

// Embedder is the text vectorization contract between layers.
type Embedder interface {
	Embed(ctx context.Context, text string) (EmbeddingResult, error)
}

// HealthChecker verifies embedding provider availability.
type HealthChecker interface {
	HealthCheck(ctx context.Context) error
}

// EmbeddingResult carries the vector and token usage through the decorator chain.
type EmbeddingResult struct {
	Embedding    []float32
	PromptTokens int
	TotalTokens  int
}

// Embedding is a content-addressed vector. Identical text under one model
// version always maps to the same ContentHash.
type Embedding struct {
	ContentHash  string    `json:"content_hash"`
	Vector       []float32 `json:"vector"`
	Dimension    int       `json:"dimension"`
	ModelVersion string    `json:"model_version"`
}

// ContentHash returns the hex sha256 of text.
func ContentHash(text string) string {
	h := sha256.Sum256([]byte(text))
	return hex.EncodeToString(h[:])
}

// NewEmbedding wraps a vector for text.
func NewEmbedding(text string, vec []float32, modelVersion string) Embedding {
	return Embedding{
		ContentHash:  ContentHash(text),
		Vector:       vec,
		Dimension:    len(vec),
		ModelVersion: modelVersion,
	}
}

// Current reports whether e was produced for text by the given model and dimension.
// dims <= 0 accepts any dimension.
func (e *Embedding) Current(text, modelVersion string, dims int) bool {
	if e == nil || len(e.Vector) == 0 {
		return false
	}
	if e.ContentHash != "" && e.ContentHash != ContentHash(text) {
		return false
	}
	if modelVersion != "" && e.ModelVersion != modelVersion {
		return false
	}
	return dims <= 0 || len(e.Vector) == dims
}

// ValidateVector rejects empty, wrong-sized, non-finite and zero-magnitude vectors.
// dims <= 0 skips the dimension check.
func ValidateVector(vec []float32, dims int) error {
	if len(vec) == 0 {
		return fmt.Errorf("%w: empty vector", ErrEmbeddingProviderError)
	}
	if dims > 0 && len(vec) != dims {
		return fmt.Errorf("%w: dimension %d, want %d", ErrEmbeddingProviderError, len(vec), dims)
	}
	var norm float64
	for i, v := range vec {
		f := float64(v)
		if math.IsNaN(f) || math.IsInf(f, 0) {
			return fmt.Errorf("%w: non-finite component at %d", ErrEmbeddingProviderError, i)
		}
		norm += f * f
	}
	if norm == 0 {
		return fmt.Errorf("%w: zero-magnitude vector", ErrEmbeddingProviderError)
	}
	return nil
}

// Cosine returns the cosine similarity of equal-length non-zero vectors.
func Cosine(a, b []float32) (float64, error) {
	if len(a) != len(b) {
		return 0, fmt.Errorf("cosine: dimension mismatch %d vs %d", len(a), len(b))
	}
	var dot, na, nb float64
	for i := range a {
		x, y := float64(a[i]), float64(b[i])
		dot += x * y
		na += x * x
		nb += y * y
	}
	if na == 0 || nb == 0 {
		return 0, fmt.Errorf("cosine: zero-magnitude vector")
	}
	c := dot / (math.Sqrt(na) * math.Sqrt(nb))
	// rounding can push |c| slightly past 1
	return math.Max(-1, math.Min(1, c)), nil
}
