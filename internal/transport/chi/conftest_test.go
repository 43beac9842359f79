package chi

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	gochi "github.com/go-chi/chi/v5"
	"github.com/panjf2000/ants/v2"
	"go.uber.org/zap"

	"github.com/kailas-cloud/fundmatch/internal/domain"
	corpusrepo "github.com/kailas-cloud/fundmatch/internal/repository/corpus"
	fundrepo "github.com/kailas-cloud/fundmatch/internal/repository/fund"
	corpusuc "github.com/kailas-cloud/fundmatch/internal/usecase/corpus"
	explainuc "github.com/kailas-cloud/fundmatch/internal/usecase/explain"
	feedbackuc "github.com/kailas-cloud/fundmatch/internal/usecase/feedback"
	"github.com/kailas-cloud/fundmatch/internal/usecase/filter"
	funduc "github.com/kailas-cloud/fundmatch/internal/usecase/fund"
	healthuc "github.com/kailas-cloud/fundmatch/internal/usecase/health"
	matchuc "github.com/kailas-cloud/fundmatch/internal/usecase/match"
	reverseuc "github.com/kailas-cloud/fundmatch/internal/usecase/reverse"
	"github.com/kailas-cloud/fundmatch/internal/usecase/scoring"
	"github.com/kailas-cloud/fundmatch/internal/usecase/semantic"
)

const (
	keyAcme   = "acme-key"
	keyGlobex = "globex-key"
)

// stubSemantic returns a fixed similarity for every pair.
type stubSemantic struct{}

func (stubSemantic) Compare(_ context.Context, _, _ string, _ *domain.Embedding) (semantic.Score, error) {
	return semantic.Score{Value: 70}, nil
}

type mockGenerator struct {
	err error
}

func (m *mockGenerator) Generate(_ context.Context, r domain.MatchResult) (string, error) {
	if m.err != nil {
		return "", m.err
	}
	return fmt.Sprintf("%s fits %s with %.1f", r.LPID, r.FundID, r.TotalScore), nil
}

type mockPinger struct {
	err error
}

func (m *mockPinger) Ping(_ context.Context) error { return m.err }

type testEnv struct {
	handler http.Handler
	matches *matchuc.Service
	reverse *reverseuc.Service
	gen     *mockGenerator
	pinger  *mockPinger
}

func newTestEnv(t *testing.T, matchCfg matchuc.Config) *testEnv {
	t.Helper()
	logger := zap.NewNop()

	pool, err := ants.NewPool(4)
	if err != nil {
		t.Fatalf("ants.NewPool: %v", err)
	}
	t.Cleanup(pool.Release)

	tax := domain.MustTaxonomy(domain.DefaultTaxonomyNodes())
	funds := fundrepo.New()
	lps := corpusrepo.New()
	filterEngine := filter.New(tax, filter.Config{}, logger)
	scorer, err := scoring.New(stubSemantic{}, scoring.Config{Taxonomy: tax}, logger)
	if err != nil {
		t.Fatalf("scoring.New: %v", err)
	}

	if matchCfg.RatePerSecond == 0 {
		matchCfg.RatePerSecond = 1000
		matchCfg.RateBurst = 1000
	}
	matches := matchuc.New(funds, lps, filterEngine, scorer, pool, matchCfg, logger)
	reverse := reverseuc.New(funds, lps, filterEngine, scorer, matches, reverseuc.NewLogNotifier(logger), pool,
		reverseuc.Config{}, logger)
	gen := &mockGenerator{}
	pinger := &mockPinger{}

	srv := NewServer(Services{
		Funds:    funduc.New(funds, matches, reverse, nil, logger),
		Corpus:   corpusuc.New(lps, matches, reverse, nil, logger),
		Matches:  matches,
		Explain:  explainuc.New(gen, explainuc.Config{}, logger),
		Feedback: feedbackuc.New(matches, nil, feedbackuc.Config{MinTenants: 2}, logger),
		Reverse:  reverse,
		Health:   healthuc.New(pinger, nil, nil),
	}, logger)

	r := gochi.NewRouter()
	r.Use(BearerAuthMiddleware(map[string]string{keyAcme: "acme", keyGlobex: "globex"}))
	srv.Mount(r)

	return &testEnv{handler: r, matches: matches, reverse: reverse, gen: gen, pinger: pinger}
}

func (e *testEnv) do(t *testing.T, method, path, key string, body any, headers ...string) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			t.Fatalf("encode body: %v", err)
		}
	}
	req := httptest.NewRequest(method, path, &buf)
	if key != "" {
		req.Header.Set("Authorization", "Bearer "+key)
	}
	for i := 0; i+1 < len(headers); i += 2 {
		req.Header.Set(headers[i], headers[i+1])
	}
	rr := httptest.NewRecorder()
	e.handler.ServeHTTP(rr, req)
	return rr
}

func decode[T any](t *testing.T, rr *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	if err := json.NewDecoder(rr.Body).Decode(&v); err != nil {
		t.Fatalf("decode response (status %d): %v", rr.Code, err)
	}
	return v
}

func testFund(id string) domain.FundProfile {
	return domain.FundProfile{
		ID:          id,
		Name:        "Growth Fund II",
		Strategy:    "Private Equity - Growth",
		Sectors:     []string{"software"},
		Geographies: []string{"US"},
		TargetSize:  200,
		TrackRecord: domain.TrackRecord{TeamYears: 6, FundNumber: 2},
		Thesis:      "B2B software growth equity",
	}
}

func testLP(id string) domain.LPProfile {
	lo, hi := 100.0, 500.0
	return domain.LPProfile{
		ID:                   id,
		Name:                 "LP " + id,
		StrategyPreferences:  []string{"Private Equity"},
		SectorPreferences:    []string{"software"},
		GeographyPreferences: []string{"US"},
		MinSize:              &lo,
		MaxSize:              &hi,
		Mandate:              "growth software",
		Status:               domain.LPActive,
		DataQuality:          1,
	}
}

// seed imports n LPs and creates and activates fund id for acme.
func (e *testEnv) seed(t *testing.T, id string, n int) {
	t.Helper()
	records := make([]domain.LPProfile, 0, n)
	for i := 0; i < n; i++ {
		records = append(records, testLP(fmt.Sprintf("lp-%02d", i)))
	}
	if rr := e.do(t, http.MethodPost, "/lps/import", keyAcme, importRequest{Records: records}); rr.Code != http.StatusOK {
		t.Fatalf("import: status %d: %s", rr.Code, rr.Body.String())
	}
	if rr := e.do(t, http.MethodPost, "/funds", keyAcme, testFund(id)); rr.Code != http.StatusCreated {
		t.Fatalf("create fund: status %d: %s", rr.Code, rr.Body.String())
	}
	if rr := e.do(t, http.MethodPost, "/funds/"+id+"/activate", keyAcme, nil, "If-Match", `"1"`); rr.Code != http.StatusOK {
		t.Fatalf("activate fund: status %d: %s", rr.Code, rr.Body.String())
	}
	e.reverse.Drain()
}

// completedJob submits a match for fund id and waits for it to finish.
func (e *testEnv) completedJob(t *testing.T, id string) domain.MatchJob {
	t.Helper()
	rr := e.do(t, http.MethodPost, "/funds/"+id+"/match", keyAcme, nil)
	if rr.Code != http.StatusAccepted {
		t.Fatalf("submit: status %d: %s", rr.Code, rr.Body.String())
	}
	job := decode[domain.MatchJob](t, rr)
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	done, err := e.matches.Wait(ctx, "acme", job.ID)
	if err != nil {
		t.Fatalf("wait: %v", err)
	}
	if done.State != domain.JobCompleted {
		t.Fatalf("job state %s (%s)", done.State, done.Reason)
	}
	return done
}

var errBoom = errors.New("boom")
