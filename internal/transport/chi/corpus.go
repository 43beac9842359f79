package chi

import (
	"fmt"
	"net/http"

	gochi "github.com/go-chi/chi/v5"

	"github.com/kailas-cloud/fundmatch/internal/domain"
)

// CorpusVersion handles GET /lps.
func (s *Server) CorpusVersion(w http.ResponseWriter, _ *http.Request) {
	version, size := s.corpus.Version()
	writeJSON(w, http.StatusOK, corpusResponse{Version: version, Size: size})
}

// ImportLPs handles POST /lps/import. Malformed records are reported, not fatal.
func (s *Server) ImportLPs(w http.ResponseWriter, r *http.Request) {
	var req importRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	if len(req.Records) > maxImportSize {
		writeError(w, http.StatusBadRequest, codeBadRequest,
			fmt.Sprintf("Import size %d exceeds maximum %d", len(req.Records), maxImportSize))
		return
	}

	writeJSON(w, http.StatusOK, s.corpus.Import(r.Context(), req.Records))
}

// GetLP handles GET /lps/{lpID}.
func (s *Server) GetLP(w http.ResponseWriter, r *http.Request) {
	lp, err := s.corpus.Get(r.Context(), gochi.URLParam(r, "lpID"))
	if err != nil {
		s.handleDomainError(w, r, err)
		return
	}

	setETag(w, lp.Version)
	writeJSON(w, http.StatusOK, lp)
}

// UpsertLP handles PUT /lps/{lpID}. A new record is created with version 0.
func (s *Server) UpsertLP(w http.ResponseWriter, r *http.Request) {
	var req domain.LPProfile
	if !decodeJSON(w, r, &req) {
		return
	}
	version, err := expectedVersion(r, req.Version)
	if err != nil {
		writeError(w, http.StatusBadRequest, codeBadRequest, err.Error())
		return
	}
	req.ID = gochi.URLParam(r, "lpID")

	lp, err := s.corpus.Upsert(r.Context(), req, version)
	if err != nil {
		s.handleDomainError(w, r, err)
		return
	}

	setETag(w, lp.Version)
	writeJSON(w, http.StatusOK, lp)
}

// DeleteLP handles DELETE /lps/{lpID}. If-Match is required.
func (s *Server) DeleteLP(w http.ResponseWriter, r *http.Request) {
	version, err := expectedVersion(r, -1)
	if err != nil {
		writeError(w, http.StatusBadRequest, codeBadRequest, err.Error())
		return
	}
	if version < 0 {
		writeError(w, http.StatusPreconditionRequired, codeBadRequest, "If-Match header with the lp version is required")
		return
	}

	if err := s.corpus.Delete(r.Context(), gochi.URLParam(r, "lpID"), version); err != nil {
		s.handleDomainError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// LPMatches handles GET /lps/{lpID}/matches: the funds matching this LP.
func (s *Server) LPMatches(w http.ResponseWriter, r *http.Request) {
	lpID := gochi.URLParam(r, "lpID")
	if _, err := s.corpus.Get(r.Context(), lpID); err != nil {
		s.handleDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, newList(s.reverse.ForLP(lpID)))
}

// LPResponseRate handles GET /lps/{lpID}/response-rate.
func (s *Server) LPResponseRate(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.feedback.LPResponseRate(gochi.URLParam(r, "lpID")))
}
