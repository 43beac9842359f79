package chi

import (
	"github.com/kailas-cloud/fundmatch/internal/domain"
	healthuc "github.com/kailas-cloud/fundmatch/internal/usecase/health"
)

// Error codes returned in errorResponse.Code.
const (
	codeBadRequest            = "bad_request"
	codeUnauthorized          = "unauthorized"
	codeValidationFailed      = "validation_failed"
	codeDataQuality           = "data_quality"
	codeNotFound              = "not_found"
	codeConflict              = "version_conflict"
	codeRateLimited           = "rate_limited"
	codeNotReady              = "not_ready"
	codeInvalidTransition     = "invalid_transition"
	codeGenerationFailed      = "generation_failed"
	codeDependencyUnavailable = "dependency_unavailable"
	codeTimeout               = "timeout"
	codeInternal              = "internal_error"
)

type errorResponse struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

type conflictResponse struct {
	Code           string `json:"code"`
	Message        string `json:"message"`
	CurrentVersion int    `json:"current_version"`
}

type healthResponse struct {
	Status string                          `json:"status"`
	Checks map[string]healthuc.CheckResult `json:"checks"`
}

type listResponse[T any] struct {
	Items []T `json:"items"`
	Count int `json:"count"`
}

func newList[T any](items []T) listResponse[T] {
	if items == nil {
		items = []T{}
	}
	return listResponse[T]{Items: items, Count: len(items)}
}

type weightsResponse struct {
	FundID string         `json:"fund_id"`
	Hash   string         `json:"hash"`
	Values domain.Weights `json:"weights"`
}

type jobResultsResponse struct {
	Job     domain.MatchJob      `json:"job"`
	Results []domain.MatchResult `json:"results"`
}

type importRequest struct {
	Records []domain.LPProfile `json:"records"`
}

type corpusResponse struct {
	Version uint64 `json:"version"`
	Size    int    `json:"size"`
}

type feedbackRequest struct {
	UserID   string          `json:"user_id"`
	LPID     string          `json:"lp_id"`
	Polarity domain.Polarity `json:"polarity"`
	Reason   string          `json:"reason,omitempty"`
}
