package domain

import "fmt"

// LPStatus is the investor lifecycle status.
type LPStatus string

const (
	// LPActive investors participate in matching.
	LPActive LPStatus = "active"
	// LPDeleted investors are retained for history only.
	LPDeleted LPStatus = "deleted"
)

// LPProfile is an investor. Shared across tenants and read-only to the matching engine.
// Pointer fields distinguish "not stated" from zero.
type LPProfile struct {
	ID                   string       `json:"id"`
	Name                 string       `json:"name"`
	StrategyPreferences  []string     `json:"strategy_preferences"`
	SectorPreferences    []string     `json:"sector_preferences,omitempty"`
	GeographyPreferences []string     `json:"geography_preferences"`
	MinSize              *float64     `json:"min_size,omitempty"`
	MaxSize              *float64     `json:"max_size,omitempty"`
	SweetSpot            *float64     `json:"sweet_spot,omitempty"`
	MinTeamYears         *int         `json:"min_team_years,omitempty"`
	MinFundNumber        *int         `json:"min_fund_number,omitempty"`
	ESGRequirement       ESGLevel     `json:"esg_requirement,omitempty"`
	Mandate              string       `json:"mandate,omitempty"`
	MandateEmbedding     *Embedding   `json:"mandate_embedding,omitempty"`
	Constraints          []Constraint `json:"constraints,omitempty"`
	DataQuality          float64      `json:"data_quality"`
	NotifyMinScore       float64      `json:"notify_min_score,omitempty"`
	Status               LPStatus     `json:"status"`
	Version              int          `json:"version"`
}

// Validate rejects records that cannot be stored at all. Records that are storable
// but unusable for a given predicate are excluded by the filter instead.
func (lp *LPProfile) Validate() error {
	if lp.ID == "" || len(lp.ID) > 256 || !idRegex.MatchString(lp.ID) {
		return fmt.Errorf("%w: lp id %q is malformed", ErrDataQuality, lp.ID)
	}
	switch lp.Status {
	case LPActive, LPDeleted:
	default:
		return fmt.Errorf("%w: lp %s has unknown status %q", ErrDataQuality, lp.ID, lp.Status)
	}
	if lp.DataQuality < 0 || lp.DataQuality > 1 {
		return fmt.Errorf("%w: lp %s data quality %.2f outside [0,1]", ErrDataQuality, lp.ID, lp.DataQuality)
	}
	if _, ok := lp.ESGRequirement.Rank(); !ok && lp.ESGRequirement != ESGUnknown {
		return fmt.Errorf("%w: lp %s has unknown esg requirement %q", ErrDataQuality, lp.ID, lp.ESGRequirement)
	}
	for i, c := range lp.Constraints {
		if err := c.Validate(); err != nil {
			return fmt.Errorf("%w: lp %s constraint %d: %v", ErrDataQuality, lp.ID, i, err)
		}
	}
	return nil
}

// MaterialEqual reports whether two versions of an LP would match identically.
// Version, name and data quality changes are not material.
func (lp *LPProfile) MaterialEqual(other *LPProfile) bool {
	if other == nil {
		return false
	}
	return lp.Status == other.Status &&
		equalStrings(lp.StrategyPreferences, other.StrategyPreferences) &&
		equalStrings(lp.SectorPreferences, other.SectorPreferences) &&
		equalStrings(lp.GeographyPreferences, other.GeographyPreferences) &&
		equalFloatPtr(lp.MinSize, other.MinSize) &&
		equalFloatPtr(lp.MaxSize, other.MaxSize) &&
		equalFloatPtr(lp.SweetSpot, other.SweetSpot) &&
		equalIntPtr(lp.MinTeamYears, other.MinTeamYears) &&
		equalIntPtr(lp.MinFundNumber, other.MinFundNumber) &&
		lp.ESGRequirement == other.ESGRequirement &&
		lp.Mandate == other.Mandate &&
		equalEmbedding(lp.MandateEmbedding, other.MandateEmbedding) &&
		lp.NotifyMinScore == other.NotifyMinScore &&
		equalConstraints(lp.Constraints, other.Constraints)
}

func equalStrings(a, b []string) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

// equalEmbedding compares embedding identity, not vector contents.
func equalEmbedding(a, b *Embedding) bool {
	if a == nil || b == nil {
		return a == b
	}
	return a.ContentHash == b.ContentHash && a.ModelVersion == b.ModelVersion && a.Dimension == b.Dimension
}

func equalFloatPtr(a, b *float64) bool {
	if a == nil || b == nil {
		return a == b
	}
	return *a == *b
}

func equalIntPtr(a, b *int) bool {
	if a == nil || b == nil {
		return a == b
	}
	return *a == *b
}

func equalConstraints(a, b []Constraint) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}
