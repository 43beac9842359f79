package chi

import (
	"net/http"

	gochi "github.com/go-chi/chi/v5"

	"github.com/kailas-cloud/fundmatch/internal/domain"
)

// RecordFeedback handles POST /funds/{fundID}/feedback. Repeating a verdict
// for the same user and LP replaces it (200); a first verdict returns 201.
func (s *Server) RecordFeedback(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	tenant := TenantFromContext(ctx)

	var req feedbackRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	f, err := s.funds.Get(ctx, tenant, gochi.URLParam(r, "fundID"))
	if err != nil {
		s.handleDomainError(w, r, err)
		return
	}

	rec, created, err := s.feedback.Record(ctx, domain.FeedbackRecord{
		TenantID: tenant,
		UserID:   req.UserID,
		FundID:   f.ID,
		LPID:     req.LPID,
		Polarity: req.Polarity,
		Reason:   req.Reason,
	})
	if err != nil {
		s.handleDomainError(w, r, err)
		return
	}

	status := http.StatusOK
	if created {
		status = http.StatusCreated
	}
	writeJSON(w, status, rec)
}

// ListFeedback handles GET /funds/{fundID}/feedback.
func (s *Server) ListFeedback(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	tenant := TenantFromContext(ctx)

	f, err := s.funds.Get(ctx, tenant, gochi.URLParam(r, "fundID"))
	if err != nil {
		s.handleDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, newList(s.feedback.List(ctx, tenant, f.ID)))
}
