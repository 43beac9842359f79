package chi

import (
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"go.uber.org/zap"

	"github.com/kailas-cloud/fundmatch/internal/domain"
	corpusrepo "github.com/kailas-cloud/fundmatch/internal/repository/corpus"
	matchuc "github.com/kailas-cloud/fundmatch/internal/usecase/match"
)

func TestMatchFlow(t *testing.T) {
	env := newTestEnv(t, matchuc.Config{})
	env.seed(t, "fund-1", 5)

	job := env.completedJob(t, "fund-1")
	if job.Candidates != 5 {
		t.Fatalf("expected 5 candidates, got %d", job.Candidates)
	}

	rr := env.do(t, http.MethodGet, "/jobs/"+job.ID, keyAcme, nil)
	if rr.Code != http.StatusOK {
		t.Fatalf("get job: status %d", rr.Code)
	}
	if got := decode[domain.MatchJob](t, rr); got.State != domain.JobCompleted {
		t.Fatalf("expected completed job, got %s", got.State)
	}

	rr = env.do(t, http.MethodGet, "/jobs/"+job.ID+"/results", keyAcme, nil)
	if rr.Code != http.StatusOK {
		t.Fatalf("results: status %d: %s", rr.Code, rr.Body.String())
	}
	res := decode[jobResultsResponse](t, rr)
	if len(res.Results) != 5 {
		t.Fatalf("expected 5 results, got %d", len(res.Results))
	}
	for i := 1; i < len(res.Results); i++ {
		if res.Results[i-1].TotalScore < res.Results[i].TotalScore {
			t.Fatalf("results not ranked at %d", i)
		}
	}

	lpID := res.Results[0].LPID
	rr = env.do(t, http.MethodGet, "/jobs/"+job.ID+"/results/"+lpID, keyAcme, nil)
	if rr.Code != http.StatusOK {
		t.Fatalf("single result: status %d", rr.Code)
	}

	rr = env.do(t, http.MethodGet, "/jobs/"+job.ID+"/results/"+lpID+"/explanation", keyAcme, nil)
	if rr.Code != http.StatusOK {
		t.Fatalf("explanation: status %d: %s", rr.Code, rr.Body.String())
	}
	if exp := decode[domain.Explanation](t, rr); exp.Text == "" || exp.LPID != lpID {
		t.Fatalf("unexpected explanation: %+v", exp)
	}

	rr = env.do(t, http.MethodGet, "/lps/"+lpID+"/matches", keyAcme, nil)
	if rr.Code != http.StatusOK {
		t.Fatalf("lp matches: status %d", rr.Code)
	}
	if list := decode[listResponse[domain.MatchResult]](t, rr); list.Count != 1 || list.Items[0].FundID != "fund-1" {
		t.Fatalf("expected fund-1 in reverse index, got %+v", list)
	}
}

func TestSubmitDraftFund_400(t *testing.T) {
	env := newTestEnv(t, matchuc.Config{})
	if rr := env.do(t, http.MethodPost, "/funds", keyAcme, testFund("draft-1")); rr.Code != http.StatusCreated {
		t.Fatalf("create: status %d", rr.Code)
	}

	rr := env.do(t, http.MethodPost, "/funds/draft-1/match", keyAcme, nil)
	if rr.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 for draft fund, got %d", rr.Code)
	}
	if e := decode[errorResponse](t, rr); e.Code != codeValidationFailed {
		t.Errorf("expected %s, got %s", codeValidationFailed, e.Code)
	}
}

func TestUpdateFund_Conflict(t *testing.T) {
	env := newTestEnv(t, matchuc.Config{})
	env.seed(t, "fund-1", 1)

	f := testFund("fund-1")
	f.Name = "Renamed"
	rr := env.do(t, http.MethodPut, "/funds/fund-1", keyAcme, f, "If-Match", `"1"`)
	if rr.Code != http.StatusConflict {
		t.Fatalf("expected 409, got %d", rr.Code)
	}
	if got := rr.Header().Get("ETag"); got != `"2"` {
		t.Errorf("expected ETag \"2\", got %q", got)
	}
	if c := decode[conflictResponse](t, rr); c.CurrentVersion != 2 || c.Code != codeConflict {
		t.Errorf("unexpected conflict body: %+v", c)
	}

	f.Status = domain.FundActive
	rr = env.do(t, http.MethodPut, "/funds/fund-1", keyAcme, f, "If-Match", `"2"`)
	if rr.Code != http.StatusOK {
		t.Fatalf("update with current version: status %d: %s", rr.Code, rr.Body.String())
	}
	if got := rr.Header().Get("ETag"); got != `"3"` {
		t.Errorf("expected ETag \"3\", got %q", got)
	}
}

func TestActivate_RequiresIfMatch(t *testing.T) {
	env := newTestEnv(t, matchuc.Config{})
	env.do(t, http.MethodPost, "/funds", keyAcme, testFund("fund-1"))

	if rr := env.do(t, http.MethodPost, "/funds/fund-1/activate", keyAcme, nil); rr.Code != http.StatusPreconditionRequired {
		t.Fatalf("expected 428, got %d", rr.Code)
	}
	if rr := env.do(t, http.MethodPost, "/funds/fund-1/activate", keyAcme, nil, "If-Match", "abc"); rr.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 for malformed If-Match, got %d", rr.Code)
	}
}

func TestTenantIsolation(t *testing.T) {
	env := newTestEnv(t, matchuc.Config{})
	env.seed(t, "fund-1", 2)
	job := env.completedJob(t, "fund-1")

	paths := []string{
		"/funds/fund-1",
		"/funds/fund-1/weights",
		"/funds/fund-1/feedback",
		"/jobs/" + job.ID,
		"/jobs/" + job.ID + "/results",
	}
	for _, p := range paths {
		if rr := env.do(t, http.MethodGet, p, keyGlobex, nil); rr.Code != http.StatusNotFound {
			t.Errorf("GET %s as foreign tenant: got %d, want 404", p, rr.Code)
		}
	}
	if rr := env.do(t, http.MethodPost, "/funds/fund-1/match", keyGlobex, nil); rr.Code != http.StatusNotFound {
		t.Errorf("foreign submit: got %d, want 404", rr.Code)
	}

	rr := env.do(t, http.MethodGet, "/funds", keyGlobex, nil)
	if list := decode[listResponse[domain.FundProfile]](t, rr); list.Count != 0 {
		t.Errorf("expected no funds for globex, got %d", list.Count)
	}
}

func TestSubmit_RateLimited(t *testing.T) {
	env := newTestEnv(t, matchuc.Config{RatePerSecond: 0.01, RateBurst: 1})
	env.seed(t, "fund-1", 1)

	if rr := env.do(t, http.MethodPost, "/funds/fund-1/match", keyAcme, nil); rr.Code != http.StatusAccepted {
		t.Fatalf("first submit: status %d", rr.Code)
	}
	rr := env.do(t, http.MethodPost, "/funds/fund-1/match", keyAcme, nil)
	if rr.Code != http.StatusTooManyRequests {
		t.Fatalf("expected 429, got %d", rr.Code)
	}
	if rr.Header().Get("Retry-After") == "" {
		t.Error("expected Retry-After header")
	}
}

func TestWeights_SetResetSuggest(t *testing.T) {
	env := newTestEnv(t, matchuc.Config{})
	env.seed(t, "fund-1", 1)

	bad := domain.Weights{domain.FactorSemantic: 1}
	if rr := env.do(t, http.MethodPut, "/funds/fund-1/weights", keyAcme, bad); rr.Code != http.StatusBadRequest {
		t.Fatalf("invalid weights: expected 400, got %d", rr.Code)
	}

	custom := domain.Weights{
		domain.FactorSectorOverlap: 0.4, domain.FactorSizeFit: 0.2, domain.FactorTrackRecord: 0.2,
		domain.FactorESG: 0.1, domain.FactorSemantic: 0.1,
	}
	rr := env.do(t, http.MethodPut, "/funds/fund-1/weights", keyAcme, custom)
	if rr.Code != http.StatusOK {
		t.Fatalf("set weights: status %d: %s", rr.Code, rr.Body.String())
	}
	if got := decode[weightsResponse](t, rr); got.Hash != custom.Hash() {
		t.Fatalf("expected custom hash, got %s", got.Hash)
	}

	rr = env.do(t, http.MethodDelete, "/funds/fund-1/weights", keyAcme, nil)
	if got := decode[weightsResponse](t, rr); got.Hash != domain.DefaultWeights().Hash() {
		t.Fatalf("expected default weights after reset, got %v", got.Values)
	}

	rr = env.do(t, http.MethodGet, "/funds/fund-1/weights/suggestion?lr=0.5", keyAcme, nil)
	if rr.Code != http.StatusOK {
		t.Fatalf("suggest: status %d: %s", rr.Code, rr.Body.String())
	}
	if rr := env.do(t, http.MethodGet, "/funds/fund-1/weights/suggestion?lr=2", keyAcme, nil); rr.Code != http.StatusBadRequest {
		t.Fatalf("lr out of range: expected 400, got %d", rr.Code)
	}
}

func TestFeedback_CreateThenReplace(t *testing.T) {
	env := newTestEnv(t, matchuc.Config{})
	env.seed(t, "fund-1", 2)
	env.completedJob(t, "fund-1")

	req := feedbackRequest{UserID: "u1", LPID: "lp-00", Polarity: domain.PolarityPositive}
	rr := env.do(t, http.MethodPost, "/funds/fund-1/feedback", keyAcme, req)
	if rr.Code != http.StatusCreated {
		t.Fatalf("first verdict: expected 201, got %d: %s", rr.Code, rr.Body.String())
	}
	if rec := decode[domain.FeedbackRecord](t, rr); rec.Breakdown == nil {
		t.Error("expected the score breakdown to be attached")
	}

	req.Polarity = domain.PolarityNegative
	if rr := env.do(t, http.MethodPost, "/funds/fund-1/feedback", keyAcme, req); rr.Code != http.StatusOK {
		t.Fatalf("replacement verdict: expected 200, got %d", rr.Code)
	}

	rr = env.do(t, http.MethodGet, "/funds/fund-1/feedback", keyAcme, nil)
	list := decode[listResponse[domain.FeedbackRecord]](t, rr)
	if list.Count != 1 || list.Items[0].Polarity != domain.PolarityNegative {
		t.Fatalf("expected one negative record, got %+v", list)
	}

	req.Polarity = "maybe"
	if rr := env.do(t, http.MethodPost, "/funds/fund-1/feedback", keyAcme, req); rr.Code != http.StatusBadRequest {
		t.Fatalf("bad polarity: expected 400, got %d", rr.Code)
	}

	rr = env.do(t, http.MethodGet, "/lps/lp-00/response-rate", keyAcme, nil)
	if stat := decode[domain.Statistic](t, rr); stat.Published || stat.Contributors != 0 || stat.Samples != 0 {
		t.Fatalf("single-tenant statistic must not be published or counted: %+v", stat)
	}
}

func TestExplanation_GenerationFailed_503(t *testing.T) {
	env := newTestEnv(t, matchuc.Config{})
	env.seed(t, "fund-1", 1)
	job := env.completedJob(t, "fund-1")
	env.gen.err = errBoom

	rr := env.do(t, http.MethodGet, "/jobs/"+job.ID+"/results/lp-00/explanation", keyAcme, nil)
	if rr.Code != http.StatusServiceUnavailable {
		t.Fatalf("expected 503, got %d", rr.Code)
	}
	if e := decode[errorResponse](t, rr); e.Code != codeGenerationFailed {
		t.Errorf("expected %s, got %s", codeGenerationFailed, e.Code)
	}

	env.gen.err = nil
	rr = env.do(t, http.MethodPost, "/jobs/"+job.ID+"/results/lp-00/explanation/refresh", keyAcme, nil)
	if rr.Code != http.StatusOK {
		t.Fatalf("refresh after recovery: expected 200, got %d", rr.Code)
	}
}

func TestCorpus_ImportUpsertDelete(t *testing.T) {
	env := newTestEnv(t, matchuc.Config{})

	bad := testLP("bad id!")
	rr := env.do(t, http.MethodPost, "/lps/import", keyAcme, importRequest{
		Records: []domain.LPProfile{testLP("lp-a"), bad},
	})
	if rr.Code != http.StatusOK {
		t.Fatalf("import: status %d", rr.Code)
	}
	report := decode[corpusrepo.ImportReport](t, rr)
	if report.Inserted != 1 || len(report.Rejected) != 1 || report.Rejected[0].Index != 1 {
		t.Fatalf("unexpected report: %+v", report)
	}

	rr = env.do(t, http.MethodGet, "/lps/lp-a", keyAcme, nil)
	if rr.Code != http.StatusOK || rr.Header().Get("ETag") != `"1"` {
		t.Fatalf("get lp: status %d etag %q", rr.Code, rr.Header().Get("ETag"))
	}

	if rr := env.do(t, http.MethodPut, "/lps/lp-b", keyAcme, testLP("lp-b")); rr.Code != http.StatusOK {
		t.Fatalf("insert via upsert: status %d: %s", rr.Code, rr.Body.String())
	}
	if rr := env.do(t, http.MethodPut, "/lps/lp-a", keyAcme, testLP("lp-a")); rr.Code != http.StatusConflict {
		t.Fatalf("stale upsert: expected 409, got %d", rr.Code)
	}
	if rr := env.do(t, http.MethodDelete, "/lps/lp-a", keyAcme, nil); rr.Code != http.StatusPreconditionRequired {
		t.Fatalf("delete without If-Match: expected 428, got %d", rr.Code)
	}
	if rr := env.do(t, http.MethodDelete, "/lps/lp-a", keyAcme, nil, "If-Match", `"1"`); rr.Code != http.StatusNoContent {
		t.Fatalf("delete: expected 204, got %d", rr.Code)
	}

	rr = env.do(t, http.MethodGet, "/lps", keyAcme, nil)
	if c := decode[corpusResponse](t, rr); c.Size != 2 || c.Version == 0 {
		t.Fatalf("unexpected corpus state: %+v", c)
	}
}

func TestHealthCheck(t *testing.T) {
	env := newTestEnv(t, matchuc.Config{})

	rr := env.do(t, http.MethodGet, "/health", "", nil)
	if rr.Code != http.StatusOK {
		t.Fatalf("healthy: got %d", rr.Code)
	}

	env.pinger.err = errBoom
	rr = env.do(t, http.MethodGet, "/health", "", nil)
	if rr.Code != http.StatusServiceUnavailable {
		t.Fatalf("db down: got %d, want 503", rr.Code)
	}
	if h := decode[healthResponse](t, rr); h.Status != "error" || h.Checks["database"] != "error" {
		t.Fatalf("unexpected health body: %+v", h)
	}
}

func TestHandleDomainError_Table(t *testing.T) {
	s := NewServer(Services{}, zap.NewNop())
	req := httptest.NewRequest(http.MethodGet, "/", http.NoBody)

	tests := []struct {
		name   string
		err    error
		status int
		code   string
		header string
	}{
		{"validation", domain.Validationf("bad"), http.StatusBadRequest, codeValidationFailed, ""},
		{"not found", fmt.Errorf("x: %w", domain.ErrNotFound), http.StatusNotFound, codeNotFound, ""},
		{"conflict", domain.NewConflict(4), http.StatusConflict, codeConflict, "ETag"},
		{"rate limited", domain.NewRateLimited(1500 * time.Millisecond), http.StatusTooManyRequests, codeRateLimited, "Retry-After"},
		{"not ready", domain.ErrNotReady, http.StatusConflict, codeNotReady, ""},
		{"transition", domain.ErrInvalidTransition, http.StatusConflict, codeInvalidTransition, ""},
		{"generation", fmt.Errorf("%w: %w", domain.ErrGenerationFailed, domain.ErrDependencyUnavailable),
			http.StatusServiceUnavailable, codeGenerationFailed, ""},
		{"dependency", domain.ErrDependencyUnavailable, http.StatusServiceUnavailable, codeDependencyUnavailable, ""},
		{"circuit", domain.ErrCircuitOpen, http.StatusServiceUnavailable, codeDependencyUnavailable, ""},
		{"timeout", domain.ErrTimeout, http.StatusGatewayTimeout, codeTimeout, ""},
		{"unknown", errBoom, http.StatusInternalServerError, codeInternal, ""},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			rr := httptest.NewRecorder()
			s.handleDomainError(rr, req, tc.err)
			if rr.Code != tc.status {
				t.Fatalf("status: got %d, want %d", rr.Code, tc.status)
			}
			if e := decode[errorResponse](t, rr); e.Code != tc.code {
				t.Errorf("code: got %s, want %s", e.Code, tc.code)
			}
			if tc.header != "" && rr.Header().Get(tc.header) == "" {
				t.Errorf("expected %s header", tc.header)
			}
		})
	}

	rr := httptest.NewRecorder()
	s.handleDomainError(rr, req, domain.NewRateLimited(1500*time.Millisecond))
	if got := rr.Header().Get("Retry-After"); got != "2" {
		t.Errorf("Retry-After: got %q, want \"2\"", got)
	}
	rr = httptest.NewRecorder()
	s.handleDomainError(rr, req, fmt.Errorf("internal detail: %w", errBoom))
	if e := decode[errorResponse](t, rr); e.Message != "internal error" {
		t.Errorf("internal detail leaked: %q", e.Message)
	}
}
