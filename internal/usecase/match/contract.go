package match

import (
	"context"

	"github.com/kailas-cloud/fundmatch/internal/domain"
	"github.com/kailas-cloud/fundmatch/internal/repository/corpus"
	"github.com/kailas-cloud/fundmatch/internal/usecase/filter"
)

// FundReader loads fund profiles.
type FundReader interface {
	Get(ctx context.Context, id string) (domain.FundProfile, error)
}

// CorpusReader exposes the current LP corpus snapshot.
type CorpusReader interface {
	Snapshot() *corpus.Snapshot
}

// Filter eliminates incompatible LPs.
type Filter interface {
	Filter(ctx context.Context, fund *domain.FundProfile, snap filter.Snapshot) (filter.CandidateSet, error)
}

// Scorer computes a breakdown for one (fund, LP) pair.
type Scorer interface {
	Score(ctx context.Context, fund *domain.FundProfile, lp *domain.LPProfile, w domain.Weights) (domain.ScoreBreakdown, error)
	Weights() domain.Weights
}

// Pool runs scoring batches. Satisfied by *ants.Pool.
type Pool interface {
	Submit(task func()) error
}
