package match

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	gocache "github.com/patrickmn/go-cache"
	"go.uber.org/zap"

	"github.com/kailas-cloud/fundmatch/internal/domain"
	"github.com/kailas-cloud/fundmatch/internal/metrics"
	"github.com/kailas-cloud/fundmatch/internal/repository/corpus"
)

// Config configures the orchestrator.
type Config struct {
	// JobTimeout is the wall-clock deadline of one job.
	JobTimeout time.Duration
	// BatchSize is the number of candidates scored per pool task.
	BatchSize int
	// MaxInFlightBatches bounds how many batches of one job run at once, and
	// so how much work can still complete after a cancel request.
	MaxInFlightBatches int
	// ResultTTL bounds how long a published result set is served from cache.
	ResultTTL time.Duration
	// JobRetention is how long finished jobs stay pollable.
	JobRetention time.Duration
	// RatePerSecond and RateBurst configure per-tenant submission limiting.
	RatePerSecond float64
	RateBurst     int
}

// DefaultConfig returns the stock orchestrator settings.
func DefaultConfig() Config {
	return Config{
		JobTimeout:         90 * time.Second,
		BatchSize:          64,
		MaxInFlightBatches: 4,
		ResultTTL:          time.Hour,
		JobRetention:       time.Hour,
		RatePerSecond:      1,
		RateBurst:          10,
	}
}

func (c *Config) applyDefaults() {
	def := DefaultConfig()
	if c.JobTimeout <= 0 {
		c.JobTimeout = def.JobTimeout
	}
	if c.BatchSize <= 0 {
		c.BatchSize = def.BatchSize
	}
	if c.MaxInFlightBatches <= 0 {
		c.MaxInFlightBatches = def.MaxInFlightBatches
	}
	if c.ResultTTL <= 0 {
		c.ResultTTL = def.ResultTTL
	}
	if c.JobRetention <= 0 {
		c.JobRetention = def.JobRetention
	}
}

type jobEntry struct {
	mu      sync.Mutex
	job     domain.MatchJob
	results []domain.MatchResult
	cancel  context.CancelFunc
	done    chan struct{}
}

func (e *jobEntry) snapshot() domain.MatchJob {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.job
}

type publishedSet struct {
	fundVersion int
	byLP        map[string]domain.MatchResult
}

// Service runs matching jobs and owns their lifecycle.
type Service struct {
	funds   FundReader
	corpus  CorpusReader
	filter  Filter
	scorer  Scorer
	pool    Pool
	limiter *TenantLimiter
	cfg     Config
	logger  *zap.Logger
	now     func() time.Time

	jobs    *gocache.Cache // job ID -> *jobEntry
	results *gocache.Cache // cache key -> []domain.MatchResult

	// epoch is the corpus version of the last material change. Result cache
	// keys use it so non-material corpus edits keep cached rankings valid.
	epoch atomic.Uint64

	mu        sync.RWMutex
	weights   map[string]domain.Weights // fund ID -> override
	published map[string]*publishedSet  // fund ID -> latest completed set
}

// New creates the orchestrator.
func New(
	funds FundReader, corpusReader CorpusReader, f Filter, scorer Scorer, pool Pool,
	cfg Config, logger *zap.Logger,
) *Service {
	cfg.applyDefaults()
	s := &Service{
		funds:     funds,
		corpus:    corpusReader,
		filter:    f,
		scorer:    scorer,
		pool:      pool,
		limiter:   NewTenantLimiter(cfg.RatePerSecond, cfg.RateBurst),
		cfg:       cfg,
		logger:    logger,
		now:       time.Now,
		jobs:      gocache.New(cfg.JobTimeout+cfg.JobRetention, 10*time.Minute),
		results:   gocache.New(cfg.ResultTTL, 10*time.Minute),
		weights:   make(map[string]domain.Weights),
		published: make(map[string]*publishedSet),
	}
	s.epoch.Store(corpusReader.Snapshot().Version())
	return s
}

// Submit starts a matching job for an active fund owned by tenant. A cached
// result set for the same fund version, corpus and weights completes the job
// immediately.
func (s *Service) Submit(ctx context.Context, tenant, fundID string) (domain.MatchJob, error) {
	if wait := s.limiter.Reserve(tenant, s.now()); wait > 0 {
		metrics.RateLimitedTotal.Inc()
		return domain.MatchJob{}, domain.NewRateLimited(wait)
	}

	fund, err := s.funds.Get(ctx, fundID)
	if err != nil {
		return domain.MatchJob{}, fmt.Errorf("submit: %w", err)
	}
	if fund.TenantID != tenant {
		return domain.MatchJob{}, fmt.Errorf("submit: fund %s: %w", fundID, domain.ErrNotFound)
	}
	if err := fund.ValidateMatchable(); err != nil {
		return domain.MatchJob{}, fmt.Errorf("submit: %w", err)
	}

	w := s.Weights(fund.ID)
	snap := s.corpus.Snapshot()
	key := resultKey(fund.ID, fund.Version, s.epoch.Load(), w.Hash())

	entry := &jobEntry{
		job: domain.MatchJob{
			ID:            uuid.NewString(),
			TenantID:      tenant,
			FundID:        fund.ID,
			FundVersion:   fund.Version,
			CorpusVersion: snap.Version(),
			WeightsHash:   w.Hash(),
			State:         domain.JobPending,
			SubmittedAt:   s.now(),
		},
		done: make(chan struct{}),
	}
	if cached, ok := s.results.Get(key); ok {
		metrics.ResultCacheTotal.WithLabelValues("hit").Inc()
		results := cached.([]domain.MatchResult)
		entry.results = results
		entry.job.CacheHit = true
		entry.job.Candidates = len(results)
		entry.job.CorpusVersion = corpusVersionOf(results, entry.job.CorpusVersion)
		now := s.now()
		_ = entry.job.Transition(domain.JobRunning, "", now)
		_ = entry.job.Transition(domain.JobCompleted, "", now)
		close(entry.done)
		s.jobs.SetDefault(entry.job.ID, entry)
		metrics.MatchJobsTotal.WithLabelValues(string(domain.JobCompleted)).Inc()
		return entry.job, nil
	}
	metrics.ResultCacheTotal.WithLabelValues("miss").Inc()

	// the job outlives the request that submitted it
	jobCtx, cancel := context.WithTimeout(context.Background(), s.cfg.JobTimeout)
	entry.cancel = cancel
	job := entry.job
	s.jobs.SetDefault(job.ID, entry)

	go s.run(jobCtx, entry, fund, snap, w, key)

	s.logger.Info("Match job submitted",
		zap.String("job_id", job.ID),
		zap.String("tenant_id", tenant),
		zap.String("fund_id", fund.ID),
		zap.Int("fund_version", fund.Version),
		zap.Uint64("corpus_version", snap.Version()),
	)
	return job, nil
}

func (s *Service) run(
	ctx context.Context, e *jobEntry, fund domain.FundProfile, snap *corpus.Snapshot, w domain.Weights, key string,
) {
	defer e.cancel()

	e.mu.Lock()
	if err := e.job.Transition(domain.JobRunning, "", s.now()); err != nil {
		// cancelled while pending
		e.mu.Unlock()
		return
	}
	e.mu.Unlock()

	metrics.MatchJobsInFlight.Inc()
	defer metrics.MatchJobsInFlight.Dec()
	start := time.Now()

	results, candidates, excluded, err := s.execute(ctx, &fund, snap, w)

	state, reason := domain.JobCompleted, ""
	switch {
	case errors.Is(ctx.Err(), context.DeadlineExceeded) || errors.Is(err, domain.ErrTimeout):
		state, reason = domain.JobTimedOut, fmt.Sprintf("exceeded %s deadline", s.cfg.JobTimeout)
	case errors.Is(ctx.Err(), context.Canceled):
		state, reason = domain.JobCancelled, "cancelled by request"
	case err != nil:
		state, reason = domain.JobFailed, err.Error()
	}

	e.mu.Lock()
	if e.job.State.Terminal() {
		e.mu.Unlock()
		return
	}
	e.job.Candidates, e.job.Excluded = candidates, excluded
	if state == domain.JobCompleted {
		// only complete sets are ever published
		e.results = results
		s.publish(fund, key, results)
	}
	_ = e.job.Transition(state, reason, s.now())
	job := e.job
	e.mu.Unlock()
	close(e.done)

	metrics.MatchJobsTotal.WithLabelValues(string(state)).Inc()
	metrics.MatchJobDuration.Observe(time.Since(start).Seconds())

	fields := []zap.Field{
		zap.String("job_id", job.ID),
		zap.String("fund_id", job.FundID),
		zap.String("state", string(state)),
		zap.Int("candidates", candidates),
		zap.Int("excluded", excluded),
		zap.Duration("duration", time.Since(start)),
	}
	if state == domain.JobCompleted {
		s.logger.Info("Match job finished", fields...)
	} else {
		s.logger.Warn("Match job finished", append(fields, zap.String("reason", reason))...)
	}
}

// execute filters and scores. Any error or context expiry discards all results.
func (s *Service) execute(
	ctx context.Context, fund *domain.FundProfile, snap *corpus.Snapshot, w domain.Weights,
) ([]domain.MatchResult, int, int, error) {
	cs, err := s.filter.Filter(ctx, fund, snap)
	if err != nil {
		return nil, 0, 0, fmt.Errorf("filter: %w", err)
	}

	n := len(cs.Candidates)
	results := make([]domain.MatchResult, n)
	computedAt := s.now()

	var (
		wg       sync.WaitGroup
		errOnce  sync.Once
		scoreErr error
		sem      = make(chan struct{}, s.cfg.MaxInFlightBatches)
	)
	setErr := func(err error) { errOnce.Do(func() { scoreErr = err }) }

dispatch:
	for lo := 0; lo < n; lo += s.cfg.BatchSize {
		// cooperative cancellation between batch dispatches
		select {
		case <-ctx.Done():
			break dispatch
		case sem <- struct{}{}:
		}
		hi := min(lo+s.cfg.BatchSize, n)

		wg.Add(1)
		task := func() {
			defer wg.Done()
			defer func() { <-sem }()
			for i := lo; i < hi; i++ {
				if ctx.Err() != nil {
					return
				}
				lp := cs.Candidates[i]
				b, err := s.scorer.Score(ctx, fund, lp, w)
				if err != nil {
					setErr(err)
					return
				}
				results[i] = domain.MatchResult{
					FundID:        fund.ID,
					LPID:          lp.ID,
					TotalScore:    b.Total,
					Breakdown:     b,
					ComputedAt:    computedAt,
					CorpusVersion: snap.Version(),
				}
			}
		}
		if err := s.pool.Submit(task); err != nil {
			wg.Done()
			<-sem
			setErr(fmt.Errorf("submit batch: %w", err))
			break
		}
	}
	wg.Wait()

	if ctx.Err() != nil {
		return nil, n, len(cs.Excluded), fmt.Errorf("score: %w", ctx.Err())
	}
	if scoreErr != nil {
		return nil, n, len(cs.Excluded), fmt.Errorf("score: %w", scoreErr)
	}

	domain.RankResults(results)
	return results, n, len(cs.Excluded), nil
}

func (s *Service) publish(fund domain.FundProfile, key string, results []domain.MatchResult) {
	s.results.SetDefault(key, results)

	byLP := make(map[string]domain.MatchResult, len(results))
	for _, r := range results {
		byLP[r.LPID] = r
	}
	s.mu.Lock()
	s.published[fund.ID] = &publishedSet{fundVersion: fund.Version, byLP: byLP}
	s.mu.Unlock()
}

// Get returns the job if it belongs to tenant.
func (s *Service) Get(_ context.Context, tenant, jobID string) (domain.MatchJob, error) {
	e, err := s.entry(tenant, jobID)
	if err != nil {
		return domain.MatchJob{}, err
	}
	return e.snapshot(), nil
}

// Wait blocks until the job is terminal or ctx ends.
func (s *Service) Wait(ctx context.Context, tenant, jobID string) (domain.MatchJob, error) {
	e, err := s.entry(tenant, jobID)
	if err != nil {
		return domain.MatchJob{}, err
	}
	select {
	case <-e.done:
		return e.snapshot(), nil
	case <-ctx.Done():
		return e.snapshot(), fmt.Errorf("wait job %s: %w", jobID, ctx.Err())
	}
}

// Cancel requests cooperative cancellation. A pending job is cancelled at
// once; a running one stops at its next batch boundary.
func (s *Service) Cancel(_ context.Context, tenant, jobID string) (domain.MatchJob, error) {
	e, err := s.entry(tenant, jobID)
	if err != nil {
		return domain.MatchJob{}, err
	}

	e.mu.Lock()
	switch e.job.State {
	case domain.JobPending:
		_ = e.job.Transition(domain.JobCancelled, "cancelled by request", s.now())
		job := e.job
		e.mu.Unlock()
		if e.cancel != nil {
			e.cancel()
		}
		close(e.done)
		metrics.MatchJobsTotal.WithLabelValues(string(domain.JobCancelled)).Inc()
		return job, nil
	case domain.JobRunning:
		job := e.job
		e.mu.Unlock()
		e.cancel()
		return job, nil
	default:
		job := e.job
		e.mu.Unlock()
		return job, fmt.Errorf("%w: job %s is already %s", domain.ErrInvalidTransition, jobID, job.State)
	}
}

// Results returns the ranked results of a completed job.
func (s *Service) Results(_ context.Context, tenant, jobID string) ([]domain.MatchResult, error) {
	e, err := s.entry(tenant, jobID)
	if err != nil {
		return nil, err
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.job.State != domain.JobCompleted {
		if e.job.State.Terminal() {
			return nil, fmt.Errorf("%w: job %s %s: %s", domain.ErrNotReady, jobID, e.job.State, e.job.Reason)
		}
		return nil, fmt.Errorf("%w: job %s is %s", domain.ErrNotReady, jobID, e.job.State)
	}
	out := make([]domain.MatchResult, len(e.results))
	copy(out, e.results)
	return out, nil
}

// Result returns one LP's result from a completed job.
func (s *Service) Result(ctx context.Context, tenant, jobID, lpID string) (domain.MatchResult, error) {
	results, err := s.Results(ctx, tenant, jobID)
	if err != nil {
		return domain.MatchResult{}, err
	}
	for _, r := range results {
		if r.LPID == lpID {
			return r, nil
		}
	}
	return domain.MatchResult{}, fmt.Errorf("lp %s in job %s: %w", lpID, jobID, domain.ErrNotFound)
}

// Weights returns the fund's weights override, or the engine defaults.
func (s *Service) Weights(fundID string) domain.Weights {
	s.mu.RLock()
	w, ok := s.weights[fundID]
	s.mu.RUnlock()
	if ok {
		return w.Clone()
	}
	return s.scorer.Weights()
}

// SetWeights validates and stores a per-fund weights override, invalidating
// cached results for the fund. nil restores the defaults.
func (s *Service) SetWeights(ctx context.Context, tenant, fundID string, w domain.Weights) error {
	fund, err := s.funds.Get(ctx, fundID)
	if err != nil {
		return fmt.Errorf("set weights: %w", err)
	}
	if fund.TenantID != tenant {
		return fmt.Errorf("set weights: fund %s: %w", fundID, domain.ErrNotFound)
	}
	if w != nil {
		if err := w.Validate(); err != nil {
			return fmt.Errorf("set weights: %w", err)
		}
	}

	s.mu.Lock()
	if w == nil {
		delete(s.weights, fundID)
	} else {
		s.weights[fundID] = w.Clone()
	}
	s.mu.Unlock()

	s.InvalidateFund(fundID)
	return nil
}

// InvalidateFund drops every cached result set of the fund.
func (s *Service) InvalidateFund(fundID string) {
	prefix := fundID + "|"
	for k := range s.results.Items() {
		if strings.HasPrefix(k, prefix) {
			s.results.Delete(k)
		}
	}
	s.mu.Lock()
	delete(s.published, fundID)
	s.mu.Unlock()
}

// CorpusChanged records a published corpus version. Material changes
// invalidate every cached result set.
func (s *Service) CorpusChanged(version uint64, material bool) {
	if !material {
		return
	}
	s.epoch.Store(version)
	s.results.Flush()
	s.logger.Info("Result cache flushed after material corpus change", zap.Uint64("corpus_version", version))
}

// Latest returns the most recently published result for a pair.
func (s *Service) Latest(fundID, lpID string) (domain.MatchResult, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	set, ok := s.published[fundID]
	if !ok {
		return domain.MatchResult{}, false
	}
	r, ok := set.byLP[lpID]
	return r, ok
}

func (s *Service) entry(tenant, jobID string) (*jobEntry, error) {
	v, ok := s.jobs.Get(jobID)
	if !ok {
		return nil, fmt.Errorf("job %s: %w", jobID, domain.ErrNotFound)
	}
	e := v.(*jobEntry)
	if e.job.TenantID != tenant {
		return nil, fmt.Errorf("job %s: %w", jobID, domain.ErrNotFound)
	}
	return e, nil
}

func resultKey(fundID string, fundVersion int, epoch uint64, weightsHash string) string {
	return strings.Join([]string{
		fundID, strconv.Itoa(fundVersion), strconv.FormatUint(epoch, 10), weightsHash,
	}, "|")
}

func corpusVersionOf(results []domain.MatchResult, fallback uint64) uint64 {
	if len(results) == 0 {
		return fallback
	}
	return results[0].CorpusVersion
}
