package fund

import (
	"context"
	"sync"

	"go.uber.org/zap"

	"github.com/kailas-cloud/fundmatch/internal/domain"
	fundrepo "github.com/kailas-cloud/fundmatch/internal/repository/fund"
)

type mockInvalidator struct {
	mu    sync.Mutex
	funds []string
}

func (m *mockInvalidator) InvalidateFund(fundID string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.funds = append(m.funds, fundID)
}

type mockReverse struct {
	activated []domain.FundProfile
	withdrawn []string
}

func (m *mockReverse) MirrorFund(_ context.Context, f domain.FundProfile) {
	m.activated = append(m.activated, f)
}

func (m *mockReverse) FundWithdrawn(fundID string) {
	m.withdrawn = append(m.withdrawn, fundID)
}

type mockEmbeddings struct {
	invalidated []string
}

func (m *mockEmbeddings) Invalidate(_ context.Context, text string) {
	m.invalidated = append(m.invalidated, text)
}

type testEnv struct {
	svc        *Service
	results    *mockInvalidator
	reverse    *mockReverse
	embeddings *mockEmbeddings
}

func newTestEnv() *testEnv {
	env := &testEnv{results: &mockInvalidator{}, reverse: &mockReverse{}, embeddings: &mockEmbeddings{}}
	env.svc = New(fundrepo.New(), env.results, env.reverse, env.embeddings, zap.NewNop())
	return env
}

func draftFund(id string) domain.FundProfile {
	return domain.FundProfile{
		ID:          id,
		Name:        "Growth Fund II",
		Strategy:    "Private Equity - Growth",
		Geographies: []string{"US"},
		TargetSize:  200,
		TrackRecord: domain.TrackRecord{TeamYears: 6, FundNumber: 2},
		Thesis:      "B2B software growth equity",
	}
}

// constScorer scores every pair 60.
type constScorer struct{}

func (constScorer) Score(
	_ context.Context, _ *domain.FundProfile, _ *domain.LPProfile, _ domain.Weights,
) (domain.ScoreBreakdown, error) {
	return domain.ScoreBreakdown{Total: 60, Unclamped: 60}, nil
}

type defaultWeights struct{}

func (defaultWeights) Weights(string) domain.Weights { return domain.DefaultWeights() }

func matchableLP(id string) domain.LPProfile {
	lo, hi := 100.0, 500.0
	return domain.LPProfile{
		ID:                   id,
		StrategyPreferences:  []string{"Private Equity"},
		GeographyPreferences: []string{"US"},
		MinSize:              &lo,
		MaxSize:              &hi,
		Status:               domain.LPActive,
		DataQuality:          1,
	}
}
