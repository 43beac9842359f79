package chi

import (
	"net/http"
	"strconv"

	gochi "github.com/go-chi/chi/v5"

	"github.com/kailas-cloud/fundmatch/internal/domain"
)

const defaultLearningRate = 0.1

// CreateFund handles POST /funds.
func (s *Server) CreateFund(w http.ResponseWriter, r *http.Request) {
	var req domain.FundProfile
	if !decodeJSON(w, r, &req) {
		return
	}

	f, err := s.funds.Create(r.Context(), TenantFromContext(r.Context()), req)
	if err != nil {
		s.handleDomainError(w, r, err)
		return
	}

	setETag(w, f.Version)
	writeJSON(w, http.StatusCreated, f)
}

// ListFunds handles GET /funds.
func (s *Server) ListFunds(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, newList(s.funds.List(r.Context(), TenantFromContext(r.Context()))))
}

// GetFund handles GET /funds/{fundID}.
func (s *Server) GetFund(w http.ResponseWriter, r *http.Request) {
	f, err := s.funds.Get(r.Context(), TenantFromContext(r.Context()), gochi.URLParam(r, "fundID"))
	if err != nil {
		s.handleDomainError(w, r, err)
		return
	}

	setETag(w, f.Version)
	writeJSON(w, http.StatusOK, f)
}

// UpdateFund handles PUT /funds/{fundID}. The expected version comes from
// If-Match or the body.
func (s *Server) UpdateFund(w http.ResponseWriter, r *http.Request) {
	var req domain.FundProfile
	if !decodeJSON(w, r, &req) {
		return
	}
	version, err := expectedVersion(r, req.Version)
	if err != nil {
		writeError(w, http.StatusBadRequest, codeBadRequest, err.Error())
		return
	}
	req.ID = gochi.URLParam(r, "fundID")

	f, err := s.funds.Update(r.Context(), TenantFromContext(r.Context()), req, version)
	if err != nil {
		s.handleDomainError(w, r, err)
		return
	}

	setETag(w, f.Version)
	writeJSON(w, http.StatusOK, f)
}

// ActivateFund handles POST /funds/{fundID}/activate.
func (s *Server) ActivateFund(w http.ResponseWriter, r *http.Request) {
	s.transitionFund(w, r, domain.FundActive)
}

// ArchiveFund handles POST /funds/{fundID}/archive.
func (s *Server) ArchiveFund(w http.ResponseWriter, r *http.Request) {
	s.transitionFund(w, r, domain.FundArchived)
}

func (s *Server) transitionFund(w http.ResponseWriter, r *http.Request, to domain.FundStatus) {
	ctx := r.Context()
	tenant := TenantFromContext(ctx)
	id := gochi.URLParam(r, "fundID")

	version, err := expectedVersion(r, -1)
	if err != nil {
		writeError(w, http.StatusBadRequest, codeBadRequest, err.Error())
		return
	}
	if version < 0 {
		writeError(w, http.StatusPreconditionRequired, codeBadRequest, "If-Match header with the fund version is required")
		return
	}

	var f domain.FundProfile
	if to == domain.FundActive {
		f, err = s.funds.Activate(ctx, tenant, id, version)
	} else {
		f, err = s.funds.Archive(ctx, tenant, id, version)
	}
	if err != nil {
		s.handleDomainError(w, r, err)
		return
	}

	setETag(w, f.Version)
	writeJSON(w, http.StatusOK, f)
}

// GetWeights handles GET /funds/{fundID}/weights.
func (s *Server) GetWeights(w http.ResponseWriter, r *http.Request) {
	f, err := s.funds.Get(r.Context(), TenantFromContext(r.Context()), gochi.URLParam(r, "fundID"))
	if err != nil {
		s.handleDomainError(w, r, err)
		return
	}

	weights := s.matches.Weights(f.ID)
	writeJSON(w, http.StatusOK, weightsResponse{FundID: f.ID, Hash: weights.Hash(), Values: weights})
}

// SetWeights handles PUT /funds/{fundID}/weights.
func (s *Server) SetWeights(w http.ResponseWriter, r *http.Request) {
	var req domain.Weights
	if !decodeJSON(w, r, &req) {
		return
	}
	if req == nil {
		writeError(w, http.StatusBadRequest, codeValidationFailed, "weights are required")
		return
	}
	s.putWeights(w, r, req)
}

// ResetWeights handles DELETE /funds/{fundID}/weights, restoring the defaults.
func (s *Server) ResetWeights(w http.ResponseWriter, r *http.Request) {
	s.putWeights(w, r, nil)
}

func (s *Server) putWeights(w http.ResponseWriter, r *http.Request, weights domain.Weights) {
	fundID := gochi.URLParam(r, "fundID")
	if err := s.matches.SetWeights(r.Context(), TenantFromContext(r.Context()), fundID, weights); err != nil {
		s.handleDomainError(w, r, err)
		return
	}

	current := s.matches.Weights(fundID)
	writeJSON(w, http.StatusOK, weightsResponse{FundID: fundID, Hash: current.Hash(), Values: current})
}

// SuggestWeights handles GET /funds/{fundID}/weights/suggestion?lr=0.1.
// The suggestion is derived from the tenant's feedback and is not applied.
func (s *Server) SuggestWeights(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	tenant := TenantFromContext(ctx)

	lr := defaultLearningRate
	if raw := r.URL.Query().Get("lr"); raw != "" {
		v, err := strconv.ParseFloat(raw, 64)
		if err != nil {
			writeError(w, http.StatusBadRequest, codeBadRequest, "lr must be a number")
			return
		}
		lr = v
	}

	f, err := s.funds.Get(ctx, tenant, gochi.URLParam(r, "fundID"))
	if err != nil {
		s.handleDomainError(w, r, err)
		return
	}

	suggested, err := s.feedback.SuggestWeights(ctx, tenant, s.matches.Weights(f.ID), lr)
	if err != nil {
		s.handleDomainError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, weightsResponse{FundID: f.ID, Hash: suggested.Hash(), Values: suggested})
}

// SubmitMatch handles POST /funds/{fundID}/match.
func (s *Server) SubmitMatch(w http.ResponseWriter, r *http.Request) {
	job, err := s.matches.Submit(r.Context(), TenantFromContext(r.Context()), gochi.URLParam(r, "fundID"))
	if err != nil {
		s.handleDomainError(w, r, err)
		return
	}

	w.Header().Set("Location", "/jobs/"+job.ID)
	writeJSON(w, http.StatusAccepted, job)
}
