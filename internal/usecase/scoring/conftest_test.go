package scoring

import (
	"context"
	"testing"

	"go.uber.org/zap"

	"github.com/kailas-cloud/fundmatch/internal/domain"
	"github.com/kailas-cloud/fundmatch/internal/usecase/semantic"
)

type mockSemantic struct {
	score semantic.Score
	err   error
	calls int
}

func (m *mockSemantic) Compare(context.Context, string, string, *domain.Embedding) (semantic.Score, error) {
	m.calls++
	return m.score, m.err
}

func newTestEngine(t *testing.T, sem Semantic) *Engine {
	t.Helper()
	e, err := New(sem, Config{Taxonomy: domain.MustTaxonomy(domain.DefaultTaxonomyNodes())}, zap.NewNop())
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	return e
}

func f64(v float64) *float64 { return &v }
func iptr(v int) *int        { return &v }

func testFund() *domain.FundProfile {
	return &domain.FundProfile{
		ID:          "fund-1",
		Strategy:    "Private Equity - Growth",
		Sectors:     []string{"software", "healthcare"},
		Geographies: []string{"US"},
		TargetSize:  300,
		TrackRecord: domain.TrackRecord{TeamYears: 10, FundNumber: 3},
		ESGPolicy:   domain.ESGCommitted,
		Thesis:      "B2B software growth equity",
		Status:      domain.FundActive,
	}
}

func testLP() *domain.LPProfile {
	return &domain.LPProfile{
		ID:                   "lp-1",
		StrategyPreferences:  []string{"Private Equity"},
		SectorPreferences:    []string{"software"},
		GeographyPreferences: []string{"US"},
		MinSize:              f64(100),
		MaxSize:              f64(500),
		MinTeamYears:         iptr(5),
		MinFundNumber:        iptr(2),
		ESGRequirement:       domain.ESGBasic,
		Mandate:              "growth-stage technology",
		Status:               domain.LPActive,
	}
}
