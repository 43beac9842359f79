package reverse

import (
	"context"

	"github.com/kailas-cloud/fundmatch/internal/domain"
	"github.com/kailas-cloud/fundmatch/internal/repository/corpus"
	"github.com/kailas-cloud/fundmatch/internal/usecase/filter"
)

// FundLister enumerates matchable funds.
type FundLister interface {
	ListActive(ctx context.Context) []domain.FundProfile
}

// CorpusReader exposes the current LP corpus snapshot.
type CorpusReader interface {
	Snapshot() *corpus.Snapshot
}

// Evaluator applies the hard filter to one pair.
type Evaluator interface {
	Evaluate(fund *domain.FundProfile, lp *domain.LPProfile) filter.Verdict
}

// Scorer computes a breakdown for one pair.
type Scorer interface {
	Score(ctx context.Context, fund *domain.FundProfile, lp *domain.LPProfile, w domain.Weights) (domain.ScoreBreakdown, error)
}

// WeightsSource resolves the weights of a fund.
type WeightsSource interface {
	Weights(fundID string) domain.Weights
}

// Notifier delivers LP notifications.
type Notifier interface {
	Notify(ctx context.Context, n domain.Notification) error
}

// Pool runs scoring batches. Satisfied by *ants.Pool.
type Pool interface {
	Submit(task func()) error
}
