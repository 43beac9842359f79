package domain

import (
	"math"
	"sort"
	"time"
)

// NeutralScore is used for any factor whose inputs are missing or unusable.
const NeutralScore = 50.0

// FactorScore is one row of a ScoreBreakdown.
type FactorScore struct {
	Factor       Factor  `json:"factor"`
	Raw          float64 `json:"raw"`
	Weight       float64 `json:"weight"`
	Contribution float64 `json:"contribution"`
	Defaulted    bool    `json:"defaulted,omitempty"`
	Note         string  `json:"note,omitempty"`
}

// ScoreBreakdown holds per-factor scores. Contributions sum to Total within WeightTolerance.
type ScoreBreakdown struct {
	Factors   []FactorScore `json:"factors"`
	Total     float64       `json:"total"`
	Unclamped float64       `json:"-"`
}

// Raw returns the raw sub-score of a factor, or NeutralScore if absent.
func (b *ScoreBreakdown) Raw(f Factor) float64 {
	for _, fs := range b.Factors {
		if fs.Factor == f {
			return fs.Raw
		}
	}
	return NeutralScore
}

// ContributionSum adds up the weighted contributions.
func (b *ScoreBreakdown) ContributionSum() float64 {
	var s float64
	for _, fs := range b.Factors {
		s += fs.Contribution
	}
	return s
}

// MatchResult is an immutable scored pairing. Recomputation supersedes it.
type MatchResult struct {
	FundID        string         `json:"fund_id"`
	LPID          string         `json:"lp_id"`
	TotalScore    float64        `json:"total_score"`
	Breakdown     ScoreBreakdown `json:"breakdown"`
	ComputedAt    time.Time      `json:"computed_at"`
	CorpusVersion uint64         `json:"corpus_version"`
}

// ClampScore bounds a score to [0,100]. NaN maps to 0.
func ClampScore(v float64) float64 {
	switch {
	case math.IsNaN(v) || v < 0:
		return 0
	case v > 100:
		return 100
	default:
		return v
	}
}

// RankResults sorts by unclamped total desc, then semantic raw desc, then LP ID asc.
// For reverse-direction lists keyed on the same LP, ties fall through to fund ID.
func RankResults(results []MatchResult) {
	sort.SliceStable(results, func(i, j int) bool {
		a, b := &results[i], &results[j]
		if a.Breakdown.Unclamped != b.Breakdown.Unclamped {
			return a.Breakdown.Unclamped > b.Breakdown.Unclamped
		}
		sa, sb := a.Breakdown.Raw(FactorSemantic), b.Breakdown.Raw(FactorSemantic)
		if sa != sb {
			return sa > sb
		}
		if a.LPID != b.LPID {
			return a.LPID < b.LPID
		}
		return a.FundID < b.FundID
	})
}
