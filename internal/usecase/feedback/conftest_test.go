package feedback

import (
	"context"
	"errors"
	"sync"

	"go.uber.org/zap"

	"github.com/kailas-cloud/fundmatch/internal/domain"
)

type mockResults struct {
	results map[string]domain.MatchResult
}

func (m *mockResults) Latest(fundID, lpID string) (domain.MatchResult, bool) {
	r, ok := m.results[fundID+"|"+lpID]
	return r, ok
}

type mockJournal struct {
	mu   sync.Mutex
	sets map[string][]byte
	err  error
}

func (m *mockJournal) Set(_ context.Context, key string, value []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return m.err
	}
	m.sets[key] = value
	return nil
}

var errJournalDown = errors.New("connection refused")

func newTestService(minTenants int) (*Service, *mockJournal) {
	j := &mockJournal{sets: map[string][]byte{}}
	return New(nil, j, Config{MinTenants: minTenants}, zap.NewNop()), j
}

func fb(tenant, user, fund, lp string, p domain.Polarity) domain.FeedbackRecord {
	return domain.FeedbackRecord{TenantID: tenant, UserID: user, FundID: fund, LPID: lp, Polarity: p}
}

func breakdown(raw map[domain.Factor]float64) *domain.ScoreBreakdown {
	b := &domain.ScoreBreakdown{}
	for _, f := range domain.Factors {
		b.Factors = append(b.Factors, domain.FactorScore{Factor: f, Raw: raw[f]})
	}
	return b
}
