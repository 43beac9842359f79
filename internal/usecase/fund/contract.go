package fund

import (
	"context"

	"github.com/kailas-cloud/fundmatch/internal/domain"
)

// Repository defines the storage contract for funds.
type Repository interface {
	Get(ctx context.Context, id string) (domain.FundProfile, error)
	Save(ctx context.Context, f domain.FundProfile) (domain.FundProfile, *domain.FundProfile, error)
	ListByTenant(ctx context.Context, tenant string) []domain.FundProfile
}

// ResultInvalidator drops cached match results of a fund.
type ResultInvalidator interface {
	InvalidateFund(fundID string)
}

// ReverseIndex mirrors active funds into LP-perspective lists. MirrorFund
// must not depend on ctx staying alive.
type ReverseIndex interface {
	MirrorFund(ctx context.Context, fund domain.FundProfile)
	FundWithdrawn(fundID string)
}

// EmbeddingInvalidator drops the cached embedding of a text.
type EmbeddingInvalidator interface {
	Invalidate(ctx context.Context, text string)
}
