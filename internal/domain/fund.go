package domain

import (
	"fmt"
	"regexp"
)

var idRegex = regexp.MustCompile(`^[a-zA-Z0-9_.:-]+$`)

// FundStatus is the fund lifecycle status.
type FundStatus string

const (
	// FundDraft funds are editable but cannot be matched.
	FundDraft FundStatus = "draft"
	// FundActive funds are matchable and mirrored into the reverse index.
	FundActive FundStatus = "active"
	// FundArchived funds are withdrawn from matching.
	FundArchived FundStatus = "archived"
)

// ESGLevel is an ordered ESG commitment grade.
type ESGLevel string

// ESG levels, ordered from weakest to strongest.
const (
	ESGUnknown   ESGLevel = ""
	ESGNone      ESGLevel = "none"
	ESGBasic     ESGLevel = "basic"
	ESGCommitted ESGLevel = "committed"
	ESGImpact    ESGLevel = "impact"
)

// Rank returns the ordinal of the level and false for unknown levels.
func (l ESGLevel) Rank() (int, bool) {
	switch l {
	case ESGNone:
		return 0, true
	case ESGBasic:
		return 1, true
	case ESGCommitted:
		return 2, true
	case ESGImpact:
		return 3, true
	default:
		return 0, false
	}
}

// TrackRecord summarizes the GP's history.
type TrackRecord struct {
	TeamYears  int      `json:"team_years"`
	FundNumber int      `json:"fund_number"`
	IRR        *float64 `json:"irr,omitempty"`
	TVPI       *float64 `json:"tvpi,omitempty"`
}

// FundProfile is an investable fund issued by one tenant. Sizes are in millions.
type FundProfile struct {
	ID           string      `json:"id"`
	TenantID     string      `json:"tenant_id"`
	Name         string      `json:"name"`
	Strategy     string      `json:"strategy"`
	Sectors      []string    `json:"sectors,omitempty"`
	Geographies  []string    `json:"geographies"`
	TargetSize   float64     `json:"target_size"`
	HardCap      float64     `json:"hard_cap,omitempty"`
	CheckSizeMin float64     `json:"check_size_min,omitempty"`
	CheckSizeMax float64     `json:"check_size_max,omitempty"`
	TrackRecord  TrackRecord `json:"track_record"`
	ESGPolicy    ESGLevel    `json:"esg_policy,omitempty"`
	Thesis       string      `json:"thesis,omitempty"`
	Status       FundStatus  `json:"status"`
	Version      int         `json:"version"`
}

// ValidateShape checks fields independent of lifecycle status.
func (f *FundProfile) ValidateShape() error {
	if f.ID == "" || len(f.ID) > 256 || !idRegex.MatchString(f.ID) {
		return Validationf("fund id %q must be 1-256 chars of [a-zA-Z0-9_.:-]", f.ID)
	}
	if f.TenantID == "" {
		return Validationf("fund %s: tenant is required", f.ID)
	}
	switch f.Status {
	case FundDraft, FundActive, FundArchived:
	default:
		return Validationf("fund %s: unknown status %q", f.ID, f.Status)
	}
	if f.TargetSize < 0 || f.HardCap < 0 {
		return Validationf("fund %s: sizes must be non-negative", f.ID)
	}
	if f.HardCap > 0 && f.HardCap < f.TargetSize {
		return Validationf("fund %s: hard cap %.2f below target %.2f", f.ID, f.HardCap, f.TargetSize)
	}
	if f.CheckSizeMax > 0 && f.CheckSizeMin > f.CheckSizeMax {
		return Validationf("fund %s: check size range inverted", f.ID)
	}
	if _, ok := f.ESGPolicy.Rank(); !ok && f.ESGPolicy != ESGUnknown {
		return Validationf("fund %s: unknown esg policy %q", f.ID, f.ESGPolicy)
	}
	return nil
}

// ValidateMatchable checks that the fund can be submitted to the matching pipeline.
func (f *FundProfile) ValidateMatchable() error {
	if err := f.ValidateShape(); err != nil {
		return err
	}
	if f.Status != FundActive {
		return Validationf("fund %s is %s, only active funds can be matched", f.ID, f.Status)
	}
	if NormalizeCode(f.Strategy) == "" {
		return Validationf("fund %s: strategy is required", f.ID)
	}
	if len(f.Geographies) == 0 {
		return Validationf("fund %s: at least one geography is required", f.ID)
	}
	if f.TargetSize <= 0 {
		return Validationf("fund %s: target size is required", f.ID)
	}
	if f.TrackRecord.FundNumber < 1 {
		return Validationf("fund %s: fund number must be at least 1", f.ID)
	}
	if f.TrackRecord.TeamYears < 0 {
		return Validationf("fund %s: team years must be non-negative", f.ID)
	}
	return nil
}

// Clone returns a deep copy.
func (f FundProfile) Clone() FundProfile {
	f.Sectors = cloneStrings(f.Sectors)
	f.Geographies = cloneStrings(f.Geographies)
	if f.TrackRecord.IRR != nil {
		v := *f.TrackRecord.IRR
		f.TrackRecord.IRR = &v
	}
	if f.TrackRecord.TVPI != nil {
		v := *f.TrackRecord.TVPI
		f.TrackRecord.TVPI = &v
	}
	return f
}

func cloneStrings(in []string) []string {
	if in == nil {
		return nil
	}
	out := make([]string, len(in))
	copy(out, in)
	return out
}

func (f *FundProfile) String() string {
	return fmt.Sprintf("fund(%s v%d %s)", f.ID, f.Version, f.Status)
}
