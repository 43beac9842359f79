package explain

import (
	"context"

	"github.com/kailas-cloud/fundmatch/internal/domain"
)

// Generator produces narrative text for a scored match.
type Generator interface {
	Generate(ctx context.Context, match domain.MatchResult) (string, error)
}
