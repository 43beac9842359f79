package scoring

import (
	"fmt"
	"math"

	"github.com/kailas-cloud/fundmatch/internal/domain"
)

// Track-record excess scales: the excess at which ~63% of the headroom above 50 is earned.
const (
	teamYearsScale  = 5.0
	fundNumberScale = 2.0
)

// esgStepPenalty is subtracted per ESG level the fund falls short by.
const esgStepPenalty = 40.0

// softPenaltyScale converts a failing low-confidence constraint into points.
const softPenaltyScale = 50.0

func neutral(f domain.Factor, note string) domain.FactorScore {
	return domain.FactorScore{Factor: f, Raw: domain.NeutralScore, Defaulted: true, Note: note}
}

func sectorOverlap(fund *domain.FundProfile, lp *domain.LPProfile) domain.FactorScore {
	if len(fund.Sectors) == 0 {
		return neutral(domain.FactorSectorOverlap, "fund has no sectors")
	}
	if len(lp.SectorPreferences) == 0 {
		return neutral(domain.FactorSectorOverlap, "lp has no sector preferences")
	}
	prefs := make(map[string]struct{}, len(lp.SectorPreferences))
	for _, s := range lp.SectorPreferences {
		prefs[domain.NormalizeCode(s)] = struct{}{}
	}
	seen := make(map[string]struct{}, len(fund.Sectors))
	var hit int
	for _, s := range fund.Sectors {
		c := domain.NormalizeCode(s)
		if _, dup := seen[c]; dup {
			continue
		}
		seen[c] = struct{}{}
		if _, ok := prefs[c]; ok {
			hit++
		}
	}
	return domain.FactorScore{
		Factor: domain.FactorSectorOverlap,
		Raw:    float64(hit) / float64(len(seen)) * 100,
	}
}

// sizeFit is 100 at the sweet spot (midpoint unless stated) and falls
// linearly to 0 at either range bound.
func sizeFit(fund *domain.FundProfile, lp *domain.LPProfile) domain.FactorScore {
	if lp.MinSize == nil || lp.MaxSize == nil {
		return neutral(domain.FactorSizeFit, "lp has no size range")
	}
	lo, hi, size := *lp.MinSize, *lp.MaxSize, fund.TargetSize
	if hi-lo <= 0 {
		return domain.FactorScore{Factor: domain.FactorSizeFit, Raw: 0, Note: "zero-width size range"}
	}
	if size < lo || size > hi {
		return domain.FactorScore{Factor: domain.FactorSizeFit, Raw: 0, Note: "target size outside range"}
	}

	sweet := (lo + hi) / 2
	if lp.SweetSpot != nil {
		sweet = math.Max(lo, math.Min(hi, *lp.SweetSpot))
	}

	var d float64
	switch {
	case size == sweet:
		d = 0
	case size < sweet:
		d = (sweet - size) / (sweet - lo)
	default:
		d = (size - sweet) / (hi - sweet)
	}
	return domain.FactorScore{Factor: domain.FactorSizeFit, Raw: 100 * (1 - d)}
}

// trackRecord rewards excess over the LP minimums with diminishing returns.
// Meeting a minimum exactly scores 50.
func trackRecord(fund *domain.FundProfile, lp *domain.LPProfile) domain.FactorScore {
	var sum float64
	var n int
	if lp.MinTeamYears != nil {
		sum += excessScore(float64(fund.TrackRecord.TeamYears-*lp.MinTeamYears), teamYearsScale)
		n++
	}
	if lp.MinFundNumber != nil {
		sum += excessScore(float64(fund.TrackRecord.FundNumber-*lp.MinFundNumber), fundNumberScale)
		n++
	}
	if n == 0 {
		return neutral(domain.FactorTrackRecord, "lp states no track-record minimums")
	}
	return domain.FactorScore{Factor: domain.FactorTrackRecord, Raw: sum / float64(n)}
}

func excessScore(excess, scale float64) float64 {
	if excess < 0 {
		return 0
	}
	return 50 + 50*(1-math.Exp(-excess/scale))
}

func esgAlignment(fund *domain.FundProfile, lp *domain.LPProfile) domain.FactorScore {
	want, ok := lp.ESGRequirement.Rank()
	if !ok {
		return neutral(domain.FactorESG, "lp esg requirement unknown")
	}
	if want == 0 {
		return domain.FactorScore{Factor: domain.FactorESG, Raw: 100}
	}
	have, ok := fund.ESGPolicy.Rank()
	if !ok {
		return neutral(domain.FactorESG, "fund esg policy unknown")
	}
	if have >= want {
		return domain.FactorScore{Factor: domain.FactorESG, Raw: 100}
	}
	return domain.FactorScore{
		Factor: domain.FactorESG,
		Raw:    math.Max(0, 100-esgStepPenalty*float64(want-have)),
		Note:   fmt.Sprintf("esg %s below required %s", fund.ESGPolicy, lp.ESGRequirement),
	}
}
