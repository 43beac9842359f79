package match

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/panjf2000/ants/v2"
	"go.uber.org/zap"

	"github.com/kailas-cloud/fundmatch/internal/domain"
	"github.com/kailas-cloud/fundmatch/internal/repository/corpus"
	"github.com/kailas-cloud/fundmatch/internal/usecase/filter"
)

type mockFunds struct {
	mu    sync.Mutex
	funds map[string]domain.FundProfile
}

func (m *mockFunds) Get(_ context.Context, id string) (domain.FundProfile, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	f, ok := m.funds[id]
	if !ok {
		return domain.FundProfile{}, fmt.Errorf("fund %s: %w", id, domain.ErrNotFound)
	}
	return f.Clone(), nil
}

func (m *mockFunds) put(f domain.FundProfile) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.funds[f.ID] = f
}

// mockScorer scores deterministically from the LP ID, optionally slowly.
type mockScorer struct {
	delay time.Duration
	err   error

	mu    sync.Mutex
	calls int
}

func (m *mockScorer) Score(
	ctx context.Context, _ *domain.FundProfile, lp *domain.LPProfile, w domain.Weights,
) (domain.ScoreBreakdown, error) {
	m.mu.Lock()
	m.calls++
	m.mu.Unlock()

	if m.delay > 0 {
		select {
		case <-time.After(m.delay):
		case <-ctx.Done():
			return domain.ScoreBreakdown{}, ctx.Err()
		}
	}
	if m.err != nil {
		return domain.ScoreBreakdown{}, m.err
	}
	sum := 0
	for _, c := range lp.ID {
		sum += int(c)
	}
	raw := float64(sum*7%50) + 40
	b := domain.ScoreBreakdown{}
	for _, f := range domain.Factors {
		b.Factors = append(b.Factors, domain.FactorScore{Factor: f, Raw: raw, Weight: w[f], Contribution: raw * w[f]})
		b.Unclamped += raw * w[f]
	}
	b.Total = domain.ClampScore(b.Unclamped)
	return b, nil
}

func (m *mockScorer) Weights() domain.Weights { return domain.DefaultWeights() }

func (m *mockScorer) Calls() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.calls
}

type testEnv struct {
	svc    *Service
	funds  *mockFunds
	corpus *corpus.Store
	scorer *mockScorer
}

func newTestEnv(t *testing.T, cfg Config, scorer *mockScorer, lps int) *testEnv {
	t.Helper()
	pool, err := ants.NewPool(4)
	if err != nil {
		t.Fatalf("ants.NewPool: %v", err)
	}
	t.Cleanup(pool.Release)

	store := corpus.New()
	records := make([]domain.LPProfile, 0, lps)
	for i := 0; i < lps; i++ {
		records = append(records, testLP(fmt.Sprintf("lp-%04d", i)))
	}
	store.Import(context.Background(), records)

	funds := &mockFunds{funds: map[string]domain.FundProfile{}}
	funds.put(activeFund("fund-1", "tenant-a"))

	tax := domain.MustTaxonomy(domain.DefaultTaxonomyNodes())
	f := filter.New(tax, filter.Config{}, zap.NewNop())

	if cfg.RatePerSecond == 0 {
		cfg.RatePerSecond = 1000
		cfg.RateBurst = 1000
	}
	svc := New(funds, store, f, scorer, pool, cfg, zap.NewNop())
	return &testEnv{svc: svc, funds: funds, corpus: store, scorer: scorer}
}

func activeFund(id, tenant string) domain.FundProfile {
	return domain.FundProfile{
		ID:          id,
		TenantID:    tenant,
		Strategy:    "Private Equity - Growth",
		Sectors:     []string{"software"},
		Geographies: []string{"US"},
		TargetSize:  200,
		TrackRecord: domain.TrackRecord{TeamYears: 6, FundNumber: 2},
		Status:      domain.FundActive,
		Version:     1,
	}
}

func testLP(id string) domain.LPProfile {
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

func waitJob(t *testing.T, svc *Service, tenant, jobID string) domain.MatchJob {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	job, err := svc.Wait(ctx, tenant, jobID)
	if err != nil {
		t.Fatalf("Wait: %v", err)
	}
	return job
}
