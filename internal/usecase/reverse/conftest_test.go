package reverse

import (
	"context"
	"errors"
	"sort"
	"sync"
	"sync/atomic"

	"go.uber.org/zap"

	"github.com/kailas-cloud/fundmatch/internal/domain"
	"github.com/kailas-cloud/fundmatch/internal/repository/corpus"
	"github.com/kailas-cloud/fundmatch/internal/usecase/filter"
)

type mockFunds struct {
	funds map[string]domain.FundProfile
}

func (m *mockFunds) ListActive(_ context.Context) []domain.FundProfile {
	out := make([]domain.FundProfile, 0, len(m.funds))
	for _, f := range m.funds {
		if f.Status == domain.FundActive {
			out = append(out, f)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// mockScorer returns a fixed total per (fund, LP), default 60.
type mockScorer struct {
	totals map[string]float64
	err    error
}

func (m *mockScorer) Score(
	_ context.Context, fund *domain.FundProfile, lp *domain.LPProfile, _ domain.Weights,
) (domain.ScoreBreakdown, error) {
	if m.err != nil {
		return domain.ScoreBreakdown{}, m.err
	}
	total, ok := m.totals[fund.ID+"|"+lp.ID]
	if !ok {
		total = 60
	}
	return domain.ScoreBreakdown{Total: total, Unclamped: total}, nil
}

type defaultWeights struct{}

func (defaultWeights) Weights(string) domain.Weights { return domain.DefaultWeights() }

type mockNotifier struct {
	mu   sync.Mutex
	sent []domain.Notification
	err  error
}

func (m *mockNotifier) Notify(_ context.Context, n domain.Notification) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return m.err
	}
	m.sent = append(m.sent, n)
	return nil
}

func (m *mockNotifier) count() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.sent)
}

var errDeliveryDown = errors.New("smtp unavailable")

// goPool runs each task on its own goroutine and counts submissions.
type goPool struct {
	submitted atomic.Int32
}

func (p *goPool) Submit(task func()) error {
	p.submitted.Add(1)
	go task()
	return nil
}

type testEnv struct {
	svc      *Service
	funds    *mockFunds
	corpus   *corpus.Store
	scorer   *mockScorer
	notifier *mockNotifier
	pool     *goPool
}

func newTestEnv(lps ...domain.LPProfile) *testEnv {
	store := corpus.New()
	store.Import(context.Background(), lps)

	env := &testEnv{
		funds:    &mockFunds{funds: map[string]domain.FundProfile{}},
		corpus:   store,
		scorer:   &mockScorer{totals: map[string]float64{}},
		notifier: &mockNotifier{},
		pool:     &goPool{},
	}
	eval := filter.New(domain.MustTaxonomy(domain.DefaultTaxonomyNodes()), filter.Config{}, zap.NewNop())
	env.svc = New(env.funds, store, eval, env.scorer, defaultWeights{}, env.notifier, env.pool,
		Config{BatchSize: 1}, zap.NewNop())
	return env
}

func peLP(id string, notifyMin float64) domain.LPProfile {
	lo, hi := 100.0, 500.0
	return domain.LPProfile{
		ID:                   id,
		StrategyPreferences:  []string{"Private Equity"},
		GeographyPreferences: []string{"US"},
		MinSize:              &lo,
		MaxSize:              &hi,
		NotifyMinScore:       notifyMin,
		Status:               domain.LPActive,
		DataQuality:          1,
	}
}

func vcLP(id string) domain.LPProfile {
	lp := peLP(id, 0)
	lp.StrategyPreferences = []string{"Venture Capital"}
	return lp
}

func growthFund(id string, version int) domain.FundProfile {
	return domain.FundProfile{
		ID:          id,
		TenantID:    "tenant-a",
		Strategy:    "Private Equity - Growth",
		Geographies: []string{"US"},
		TargetSize:  200,
		TrackRecord: domain.TrackRecord{TeamYears: 5, FundNumber: 2},
		Status:      domain.FundActive,
		Version:     version,
	}
}
