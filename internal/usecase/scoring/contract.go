package scoring

import (
	"context"

	"github.com/kailas-cloud/fundmatch/internal/domain"
	"github.com/kailas-cloud/fundmatch/internal/usecase/semantic"
)

// Semantic compares a fund thesis with an LP mandate.
type Semantic interface {
	Compare(ctx context.Context, fundText, lpText string, lpCached *domain.Embedding) (semantic.Score, error)
}
