package filter

import (
	"sort"
	"sync"

	"github.com/kailas-cloud/fundmatch/internal/domain"
)

type fakeSnapshot struct {
	version uint64
	lps     []domain.LPProfile

	mu      sync.Mutex
	derived map[any]any
	builds  int
}

func newFakeSnapshot(version uint64, lps ...domain.LPProfile) *fakeSnapshot {
	sort.Slice(lps, func(i, j int) bool { return lps[i].ID < lps[j].ID })
	return &fakeSnapshot{version: version, lps: lps, derived: make(map[any]any)}
}

func (s *fakeSnapshot) Version() uint64            { return s.version }
func (s *fakeSnapshot) Len() int                   { return len(s.lps) }
func (s *fakeSnapshot) At(i int) *domain.LPProfile { return &s.lps[i] }

func (s *fakeSnapshot) Derived(key any, build func() any) any {
	s.mu.Lock()
	defer s.mu.Unlock()
	if v, ok := s.derived[key]; ok {
		return v
	}
	s.builds++
	v := build()
	s.derived[key] = v
	return v
}

func f64(v float64) *float64 { return &v }
func iptr(v int) *int        { return &v }

// validLP returns an LP that passes every predicate for growthFund.
func validLP(id string) domain.LPProfile {
	return domain.LPProfile{
		ID:                   id,
		StrategyPreferences:  []string{"Private Equity"},
		GeographyPreferences: []string{"US"},
		MinSize:              f64(100),
		MaxSize:              f64(500),
		Status:               domain.LPActive,
		DataQuality:          1,
	}
}

func growthFund() *domain.FundProfile {
	return &domain.FundProfile{
		ID:          "fund-1",
		TenantID:    "t1",
		Strategy:    "Private Equity - Growth",
		Sectors:     []string{"software"},
		Geographies: []string{"US", "UK"},
		TargetSize:  200,
		TrackRecord: domain.TrackRecord{TeamYears: 8, FundNumber: 3},
		ESGPolicy:   domain.ESGCommitted,
		Status:      domain.FundActive,
	}
}
