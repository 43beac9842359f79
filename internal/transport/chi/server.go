package chi

import (
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"net/http"
	"strconv"
	"strings"

	gochi "github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/kailas-cloud/fundmatch/internal/domain"
	logpkg "github.com/kailas-cloud/fundmatch/internal/logger"
	corpusuc "github.com/kailas-cloud/fundmatch/internal/usecase/corpus"
	explainuc "github.com/kailas-cloud/fundmatch/internal/usecase/explain"
	feedbackuc "github.com/kailas-cloud/fundmatch/internal/usecase/feedback"
	funduc "github.com/kailas-cloud/fundmatch/internal/usecase/fund"
	healthuc "github.com/kailas-cloud/fundmatch/internal/usecase/health"
	matchuc "github.com/kailas-cloud/fundmatch/internal/usecase/match"
	reverseuc "github.com/kailas-cloud/fundmatch/internal/usecase/reverse"
)

const maxImportSize = 10000

// errorHandler tries to handle a domain error. Returns true if handled.
type errorHandler func(w http.ResponseWriter, err error, msg string) bool

// Services bundles the use cases served over HTTP.
type Services struct {
	Funds    *funduc.Service
	Corpus   *corpusuc.Service
	Matches  *matchuc.Service
	Explain  *explainuc.Service
	Feedback *feedbackuc.Service
	Reverse  *reverseuc.Service
	Health   *healthuc.Service
}

// Server is the fundmatch HTTP API.
type Server struct {
	funds         *funduc.Service
	corpus        *corpusuc.Service
	matches       *matchuc.Service
	explain       *explainuc.Service
	feedback      *feedbackuc.Service
	reverse       *reverseuc.Service
	health        *healthuc.Service
	logger        *zap.Logger
	errorHandlers []errorHandler
}

// NewServer creates an HTTP API server.
func NewServer(svc Services, logger *zap.Logger) *Server {
	s := &Server{
		funds:    svc.Funds,
		corpus:   svc.Corpus,
		matches:  svc.Matches,
		explain:  svc.Explain,
		feedback: svc.Feedback,
		reverse:  svc.Reverse,
		health:   svc.Health,
		logger:   logger,
	}
	s.errorHandlers = []errorHandler{
		conflictHandler,
		rateLimitHandler,
		sentinelHandler(domain.ErrValidation, http.StatusBadRequest, codeValidationFailed),
		sentinelHandler(domain.ErrDataQuality, http.StatusBadRequest, codeDataQuality),
		sentinelHandler(domain.ErrNotFound, http.StatusNotFound, codeNotFound),
		sentinelHandler(domain.ErrNotReady, http.StatusConflict, codeNotReady),
		sentinelHandler(domain.ErrInvalidTransition, http.StatusConflict, codeInvalidTransition),
		sentinelHandler(domain.ErrGenerationFailed, http.StatusServiceUnavailable, codeGenerationFailed),
		sentinelHandler(domain.ErrCircuitOpen, http.StatusServiceUnavailable, codeDependencyUnavailable),
		sentinelHandler(domain.ErrDependencyUnavailable, http.StatusServiceUnavailable, codeDependencyUnavailable),
		sentinelHandler(domain.ErrTimeout, http.StatusGatewayTimeout, codeTimeout),
	}
	return s
}

// Mount registers every route on r.
func (s *Server) Mount(r gochi.Router) {
	r.Get("/health", s.HealthCheck)
	r.Get("/metrics", s.Metrics)

	r.Route("/funds", func(r gochi.Router) {
		r.Post("/", s.CreateFund)
		r.Get("/", s.ListFunds)
		r.Route("/{fundID}", func(r gochi.Router) {
			r.Get("/", s.GetFund)
			r.Put("/", s.UpdateFund)
			r.Post("/activate", s.ActivateFund)
			r.Post("/archive", s.ArchiveFund)
			r.Get("/weights", s.GetWeights)
			r.Put("/weights", s.SetWeights)
			r.Delete("/weights", s.ResetWeights)
			r.Get("/weights/suggestion", s.SuggestWeights)
			r.Post("/match", s.SubmitMatch)
			r.Get("/feedback", s.ListFeedback)
			r.Post("/feedback", s.RecordFeedback)
		})
	})

	r.Route("/jobs/{jobID}", func(r gochi.Router) {
		r.Get("/", s.GetJob)
		r.Post("/cancel", s.CancelJob)
		r.Get("/results", s.JobResults)
		r.Get("/results/{lpID}", s.JobResult)
		r.Get("/results/{lpID}/explanation", s.Explanation)
		r.Post("/results/{lpID}/explanation/refresh", s.RefreshExplanation)
	})

	r.Route("/lps", func(r gochi.Router) {
		r.Get("/", s.CorpusVersion)
		r.Post("/import", s.ImportLPs)
		r.Route("/{lpID}", func(r gochi.Router) {
			r.Get("/", s.GetLP)
			r.Put("/", s.UpsertLP)
			r.Delete("/", s.DeleteLP)
			r.Get("/matches", s.LPMatches)
			r.Get("/response-rate", s.LPResponseRate)
		})
	})
}

// HealthCheck handles GET /health.
func (s *Server) HealthCheck(w http.ResponseWriter, r *http.Request) {
	report := s.health.Check(r.Context())

	httpStatus := http.StatusOK
	if report.Status == healthuc.Unhealthy {
		httpStatus = http.StatusServiceUnavailable
	}

	writeJSON(w, httpStatus, healthResponse{
		Status: string(report.Status),
		Checks: report.Checks,
	})
}

// Metrics handles GET /metrics.
func (s *Server) Metrics(w http.ResponseWriter, r *http.Request) {
	promhttp.Handler().ServeHTTP(w, r)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, code, message string) {
	writeJSON(w, status, errorResponse{
		Code:    code,
		Message: message,
	})
}

// decodeJSON decodes the request body into v, writing a 400 on failure.
func decodeJSON(w http.ResponseWriter, r *http.Request, v any) bool {
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		writeError(w, http.StatusBadRequest, codeBadRequest, "Invalid request body: "+err.Error())
		return false
	}
	return true
}

// expectedVersion reads the optimistic version from If-Match, falling back to
// the version carried in the body.
func expectedVersion(r *http.Request, fallback int) (int, error) {
	h := strings.TrimSpace(r.Header.Get("If-Match"))
	if h == "" {
		return fallback, nil
	}
	h = strings.TrimPrefix(h, "W/")
	if unq, err := strconv.Unquote(h); err == nil {
		h = unq
	}
	v, err := strconv.Atoi(h)
	if err != nil || v < 0 {
		return 0, fmt.Errorf("If-Match must carry a version number, got %q", r.Header.Get("If-Match"))
	}
	return v, nil
}

func setETag(w http.ResponseWriter, version int) {
	w.Header().Set("ETag", strconv.Quote(strconv.Itoa(version)))
}

// safeDomainMessage returns a client-safe message. Caller-fixable errors keep
// their detail; everything else is reduced to the sentinel text.
func safeDomainMessage(err error) string {
	if errors.Is(err, domain.ErrValidation) || errors.Is(err, domain.ErrDataQuality) {
		return err.Error()
	}
	sentinels := []error{
		domain.ErrNotFound,
		domain.ErrConflict,
		domain.ErrRateLimited,
		domain.ErrNotReady,
		domain.ErrInvalidTransition,
		domain.ErrGenerationFailed,
		domain.ErrCircuitOpen,
		domain.ErrDependencyUnavailable,
		domain.ErrTimeout,
	}
	for _, s := range sentinels {
		if errors.Is(err, s) {
			return s.Error()
		}
	}
	return "internal error"
}

// sentinelHandler returns an errorHandler that matches a single sentinel error.
func sentinelHandler(sentinel error, status int, code string) errorHandler {
	return func(w http.ResponseWriter, err error, msg string) bool {
		if !errors.Is(err, sentinel) {
			return false
		}
		writeError(w, status, code, msg)
		return true
	}
}

// conflictHandler handles ErrConflict with ETag header and the current version.
func conflictHandler(w http.ResponseWriter, err error, msg string) bool {
	if !errors.Is(err, domain.ErrConflict) {
		return false
	}
	var ce *domain.ConflictError
	if errors.As(err, &ce) {
		setETag(w, ce.CurrentVersion)
		writeJSON(w, http.StatusConflict, conflictResponse{
			Code:           codeConflict,
			Message:        msg,
			CurrentVersion: ce.CurrentVersion,
		})
		return true
	}
	writeError(w, http.StatusConflict, codeConflict, msg)
	return true
}

// rateLimitHandler handles ErrRateLimited with a Retry-After header.
func rateLimitHandler(w http.ResponseWriter, err error, msg string) bool {
	if !errors.Is(err, domain.ErrRateLimited) {
		return false
	}
	var rle *domain.RateLimitError
	if errors.As(err, &rle) {
		secs := int(math.Ceil(rle.RetryAfter.Seconds()))
		if secs < 1 {
			secs = 1
		}
		w.Header().Set("Retry-After", strconv.Itoa(secs))
	}
	writeError(w, http.StatusTooManyRequests, codeRateLimited, msg)
	return true
}

func (s *Server) handleDomainError(w http.ResponseWriter, r *http.Request, err error) {
	log := logpkg.FromContextOr(r.Context(), s.logger)
	log.Warn("domain error", zap.Error(err))
	msg := safeDomainMessage(err)
	for _, h := range s.errorHandlers {
		if h(w, err, msg) {
			return
		}
	}
	log.Error("unhandled error", zap.Error(err))
	writeError(w, http.StatusInternalServerError, codeInternal, msg)
}
