package filter

import (
	"github.com/kailas-cloud/fundmatch/internal/domain"
)

type indexKey struct{}

// index is the columnar form of a snapshot. Positions follow snapshot order,
// which is LP ID order, so iterating a bitset yields deterministic output.
type index struct {
	n int
	// eligible marks active LPs with every field the predicates need.
	eligible bitset
	// structural holds the exclusion of ineligible LPs, keyed by position.
	structural map[int]Exclusion

	strategy  map[string]bitset
	geography map[string]bitset

	minSize   []float64
	maxSize   []float64
	minYears  []int // -1 = no requirement
	minFundNo []int // -1 = no requirement

	// hard holds high-confidence constraints; nil for most LPs.
	hard map[int][]domain.Constraint
}

func buildIndex(snap Snapshot, threshold float64) *index {
	n := snap.Len()
	idx := &index{
		n:          n,
		eligible:   newBitset(n),
		structural: make(map[int]Exclusion),
		strategy:   make(map[string]bitset),
		geography:  make(map[string]bitset),
		minSize:    make([]float64, n),
		maxSize:    make([]float64, n),
		minYears:   make([]int, n),
		minFundNo:  make([]int, n),
		hard:       make(map[int][]domain.Constraint),
	}

	for i := 0; i < n; i++ {
		lp := snap.At(i)
		if ex, ok := structuralCheck(lp); !ok {
			idx.structural[i] = ex
			continue
		}
		idx.eligible.set(i)

		for _, code := range lp.StrategyPreferences {
			idx.column(idx.strategy, domain.NormalizeCode(code)).set(i)
		}
		for _, code := range lp.GeographyPreferences {
			idx.column(idx.geography, domain.NormalizeCode(code)).set(i)
		}

		idx.minSize[i] = *lp.MinSize
		idx.maxSize[i] = *lp.MaxSize
		idx.minYears[i] = optInt(lp.MinTeamYears)
		idx.minFundNo[i] = optInt(lp.MinFundNumber)

		if hard := hardConstraints(lp, threshold); len(hard) > 0 {
			idx.hard[i] = hard
		}
	}
	return idx
}

func (idx *index) column(m map[string]bitset, code string) bitset {
	b, ok := m[code]
	if !ok {
		b = newBitset(idx.n)
		m[code] = b
	}
	return b
}

// union returns the LPs holding any of codes in m.
func (idx *index) union(m map[string]bitset, codes []string) bitset {
	out := newBitset(idx.n)
	for _, c := range codes {
		if b, ok := m[domain.NormalizeCode(c)]; ok {
			out.or(b)
		}
	}
	return out
}

func optInt(p *int) int {
	if p == nil {
		return -1
	}
	return *p
}
