package chi

import (
	"net/http"

	gochi "github.com/go-chi/chi/v5"
)

// GetJob handles GET /jobs/{jobID}.
func (s *Server) GetJob(w http.ResponseWriter, r *http.Request) {
	job, err := s.matches.Get(r.Context(), TenantFromContext(r.Context()), gochi.URLParam(r, "jobID"))
	if err != nil {
		s.handleDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, job)
}

// CancelJob handles POST /jobs/{jobID}/cancel.
func (s *Server) CancelJob(w http.ResponseWriter, r *http.Request) {
	job, err := s.matches.Cancel(r.Context(), TenantFromContext(r.Context()), gochi.URLParam(r, "jobID"))
	if err != nil {
		s.handleDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusAccepted, job)
}

// JobResults handles GET /jobs/{jobID}/results.
func (s *Server) JobResults(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	tenant := TenantFromContext(ctx)
	jobID := gochi.URLParam(r, "jobID")

	results, err := s.matches.Results(ctx, tenant, jobID)
	if err != nil {
		s.handleDomainError(w, r, err)
		return
	}
	job, err := s.matches.Get(ctx, tenant, jobID)
	if err != nil {
		s.handleDomainError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, jobResultsResponse{Job: job, Results: results})
}

// JobResult handles GET /jobs/{jobID}/results/{lpID}.
func (s *Server) JobResult(w http.ResponseWriter, r *http.Request) {
	res, err := s.matches.Result(r.Context(), TenantFromContext(r.Context()),
		gochi.URLParam(r, "jobID"), gochi.URLParam(r, "lpID"))
	if err != nil {
		s.handleDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

// Explanation handles GET /jobs/{jobID}/results/{lpID}/explanation.
func (s *Server) Explanation(w http.ResponseWriter, r *http.Request) {
	s.serveExplanation(w, r, false)
}

// RefreshExplanation handles POST /jobs/{jobID}/results/{lpID}/explanation/refresh.
func (s *Server) RefreshExplanation(w http.ResponseWriter, r *http.Request) {
	s.serveExplanation(w, r, true)
}

func (s *Server) serveExplanation(w http.ResponseWriter, r *http.Request, refresh bool) {
	ctx := r.Context()
	res, err := s.matches.Result(ctx, TenantFromContext(ctx), gochi.URLParam(r, "jobID"), gochi.URLParam(r, "lpID"))
	if err != nil {
		s.handleDomainError(w, r, err)
		return
	}

	explain := s.explain.Explain
	if refresh {
		explain = s.explain.Refresh
	}
	exp, err := explain(ctx, res)
	if err != nil {
		s.handleDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, exp)
}
