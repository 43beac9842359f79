package domain

import "time"

// Polarity is the direction of a feedback signal.
type Polarity string

const (
	// PolarityPositive marks a match the user found useful.
	PolarityPositive Polarity = "positive"
	// PolarityNegative marks a match the user rejected.
	PolarityNegative Polarity = "negative"
)

// FeedbackRecord is one user's verdict on a match. Unique per (FundID, LPID, UserID).
type FeedbackRecord struct {
	TenantID  string          `json:"tenant_id"`
	UserID    string          `json:"user_id"`
	FundID    string          `json:"fund_id"`
	LPID      string          `json:"lp_id"`
	Polarity  Polarity        `json:"polarity"`
	Reason    string          `json:"reason,omitempty"`
	Breakdown *ScoreBreakdown `json:"breakdown,omitempty"`
	CreatedAt time.Time       `json:"created_at"`
	UpdatedAt time.Time       `json:"updated_at"`
}

// Validate checks required fields.
func (r *FeedbackRecord) Validate() error {
	if r.TenantID == "" || r.UserID == "" {
		return Validationf("feedback requires tenant and user")
	}
	if r.FundID == "" || r.LPID == "" {
		return Validationf("feedback requires fund_id and lp_id")
	}
	if r.Polarity != PolarityPositive && r.Polarity != PolarityNegative {
		return Validationf("unknown polarity %q", r.Polarity)
	}
	if len(r.Reason) > 2000 {
		return Validationf("reason too long (max 2000)")
	}
	return nil
}

// Statistic is a privacy-gated aggregate. An unpublished statistic carries
// only its key.
type Statistic struct {
	Key          string  `json:"key"`
	Value        float64 `json:"value,omitempty"`
	Samples      int     `json:"samples,omitempty"`
	Contributors int     `json:"contributors,omitempty"`
	Published    bool    `json:"published"`
}
