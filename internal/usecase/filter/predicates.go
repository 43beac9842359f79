package filter

import (
	"fmt"
	"math"

	"github.com/kailas-cloud/fundmatch/internal/domain"
)

// Predicate names, also used as exclusion metric labels.
const (
	PredicateStatus      = "status"
	PredicateDataQuality = "data_quality"
	PredicateStrategy    = "strategy"
	PredicateGeography   = "geography"
	PredicateSize        = "size"
	PredicateTrack       = "track_record"
	PredicateConstraint  = "constraint"
)

// structuralCheck rejects LPs that cannot be evaluated at all. Missing
// required fields are never defaulted.
func structuralCheck(lp *domain.LPProfile) (Exclusion, bool) {
	ex := Exclusion{LPID: lp.ID}
	switch {
	case lp.Status != domain.LPActive:
		ex.Predicate, ex.Reason = PredicateStatus, fmt.Sprintf("lp is %s", lp.Status)
	case len(lp.StrategyPreferences) == 0:
		ex.Predicate, ex.Reason = PredicateDataQuality, "missing strategy preferences"
	case len(lp.GeographyPreferences) == 0:
		ex.Predicate, ex.Reason = PredicateDataQuality, "missing geography preferences"
	case lp.MinSize == nil || lp.MaxSize == nil:
		ex.Predicate, ex.Reason = PredicateDataQuality, "missing fund size range"
	case !finite(*lp.MinSize) || !finite(*lp.MaxSize) || *lp.MinSize < 0:
		ex.Predicate, ex.Reason = PredicateDataQuality, "non-finite or negative fund size range"
	case *lp.MinSize > *lp.MaxSize:
		ex.Predicate = PredicateDataQuality
		ex.Reason = fmt.Sprintf("size range inverted: min %.2f > max %.2f", *lp.MinSize, *lp.MaxSize)
	default:
		return Exclusion{}, true
	}
	ex.Defect = ex.Predicate == PredicateDataQuality
	return ex, false
}

func hardConstraints(lp *domain.LPProfile, threshold float64) []domain.Constraint {
	var out []domain.Constraint
	for _, c := range lp.Constraints {
		if c.Confidence >= threshold {
			out = append(out, c)
		}
	}
	return out
}

func strategyAligned(tax *domain.Taxonomy, fund *domain.FundProfile, lp *domain.LPProfile) bool {
	for _, pref := range lp.StrategyPreferences {
		if tax.Covers(pref, fund.Strategy) {
			return true
		}
	}
	return false
}

func geographyOverlaps(fund *domain.FundProfile, lp *domain.LPProfile) bool {
	for _, g := range fund.Geographies {
		want := domain.NormalizeCode(g)
		for _, p := range lp.GeographyPreferences {
			if domain.NormalizeCode(p) == want {
				return true
			}
		}
	}
	return false
}

func sizeContains(size, lo, hi float64) bool {
	return size >= lo && size <= hi
}

func trackMeets(fund *domain.FundProfile, minYears, minFundNo int) (bool, string) {
	if minYears >= 0 && fund.TrackRecord.TeamYears < minYears {
		return false, fmt.Sprintf("team years %d below minimum %d", fund.TrackRecord.TeamYears, minYears)
	}
	if minFundNo >= 0 && fund.TrackRecord.FundNumber < minFundNo {
		return false, fmt.Sprintf("fund number %d below minimum %d", fund.TrackRecord.FundNumber, minFundNo)
	}
	return true, ""
}

func constraintsHold(tax *domain.Taxonomy, fund *domain.FundProfile, hard []domain.Constraint) (bool, string) {
	for _, c := range hard {
		if ok, why := c.Evaluate(fund, tax); !ok {
			return false, fmt.Sprintf("%s=%s (confidence %.2f): %s", c.Type, c.Value, c.Confidence, why)
		}
	}
	return true, ""
}

func finite(v float64) bool {
	return !math.IsNaN(v) && !math.IsInf(v, 0)
}
