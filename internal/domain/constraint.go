package domain

import (
	"fmt"
	"strconv"
)

// ConstraintType names an interpreted mandate constraint.
type ConstraintType string

// Supported constraint types.
const (
	ConstraintExcludeSector    ConstraintType = "exclude_sector"
	ConstraintExcludeStrategy  ConstraintType = "exclude_strategy"
	ConstraintExcludeGeography ConstraintType = "exclude_geography"
	ConstraintRequireGeography ConstraintType = "require_geography"
	ConstraintRequireESG       ConstraintType = "require_esg"
	ConstraintMinIRR           ConstraintType = "min_irr"
	ConstraintMinTVPI          ConstraintType = "min_tvpi"
	ConstraintMaxFundSize      ConstraintType = "max_fund_size"
	ConstraintMinFundSize      ConstraintType = "min_fund_size"
)

// DefaultConfidenceThreshold separates hard constraints from soft penalties.
const DefaultConfidenceThreshold = 0.80

// Constraint is one (type, value, confidence) triple interpreted from mandate text.
type Constraint struct {
	Type       ConstraintType `json:"type"`
	Value      string         `json:"value"`
	Confidence float64        `json:"confidence"`
}

// Validate checks type, value shape and confidence range.
func (c Constraint) Validate() error {
	if c.Confidence < 0 || c.Confidence > 1 {
		return fmt.Errorf("confidence %.3f outside [0,1]", c.Confidence)
	}
	if c.Value == "" {
		return fmt.Errorf("%s: empty value", c.Type)
	}
	switch c.Type {
	case ConstraintExcludeSector, ConstraintExcludeStrategy, ConstraintExcludeGeography, ConstraintRequireGeography:
		return nil
	case ConstraintRequireESG:
		if _, ok := ESGLevel(c.Value).Rank(); !ok {
			return fmt.Errorf("%s: unknown esg level %q", c.Type, c.Value)
		}
		return nil
	case ConstraintMinIRR, ConstraintMinTVPI, ConstraintMaxFundSize, ConstraintMinFundSize:
		if _, err := strconv.ParseFloat(c.Value, 64); err != nil {
			return fmt.Errorf("%s: value %q is not numeric", c.Type, c.Value)
		}
		return nil
	default:
		return fmt.Errorf("unknown constraint type %q", c.Type)
	}
}

// Factor returns the scoring factor a soft (low-confidence) violation penalizes.
func (c Constraint) Factor() Factor {
	switch c.Type {
	case ConstraintRequireESG:
		return FactorESG
	case ConstraintMinIRR, ConstraintMinTVPI:
		return FactorTrackRecord
	case ConstraintMaxFundSize, ConstraintMinFundSize:
		return FactorSizeFit
	default:
		return FactorSectorOverlap
	}
}

// Evaluate reports whether the fund satisfies the constraint, and why not.
// A fund missing the data a constraint needs does not satisfy it.
func (c Constraint) Evaluate(f *FundProfile, tax *Taxonomy) (bool, string) {
	switch c.Type {
	case ConstraintExcludeSector:
		if containsCode(f.Sectors, c.Value) {
			return false, fmt.Sprintf("excluded sector %q", c.Value)
		}
	case ConstraintExcludeStrategy:
		if tax.Covers(c.Value, f.Strategy) {
			return false, fmt.Sprintf("excluded strategy %q", c.Value)
		}
	case ConstraintExcludeGeography:
		if containsCode(f.Geographies, c.Value) {
			return false, fmt.Sprintf("excluded geography %q", c.Value)
		}
	case ConstraintRequireGeography:
		if !containsCode(f.Geographies, c.Value) {
			return false, fmt.Sprintf("required geography %q missing", c.Value)
		}
	case ConstraintRequireESG:
		want, _ := ESGLevel(c.Value).Rank()
		have, ok := f.ESGPolicy.Rank()
		if !ok {
			return false, "fund esg policy unknown"
		}
		if have < want {
			return false, fmt.Sprintf("esg %s below required %s", f.ESGPolicy, c.Value)
		}
	case ConstraintMinIRR:
		return minMetric("irr", f.TrackRecord.IRR, c.Value)
	case ConstraintMinTVPI:
		return minMetric("tvpi", f.TrackRecord.TVPI, c.Value)
	case ConstraintMaxFundSize:
		limit, _ := strconv.ParseFloat(c.Value, 64)
		if f.TargetSize > limit {
			return false, fmt.Sprintf("target size %.2f above max %.2f", f.TargetSize, limit)
		}
	case ConstraintMinFundSize:
		limit, _ := strconv.ParseFloat(c.Value, 64)
		if f.TargetSize < limit {
			return false, fmt.Sprintf("target size %.2f below min %.2f", f.TargetSize, limit)
		}
	}
	return true, ""
}

func minMetric(name string, have *float64, raw string) (bool, string) {
	limit, _ := strconv.ParseFloat(raw, 64)
	if have == nil {
		return false, fmt.Sprintf("fund %s unknown", name)
	}
	if *have < limit {
		return false, fmt.Sprintf("%s %.2f below min %.2f", name, *have, limit)
	}
	return true, ""
}

func containsCode(set []string, code string) bool {
	want := NormalizeCode(code)
	for _, s := range set {
		if NormalizeCode(s) == want {
			return true
		}
	}
	return false
}
