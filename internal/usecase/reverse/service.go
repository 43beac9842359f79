package reverse

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/kailas-cloud/fundmatch/internal/domain"
	"github.com/kailas-cloud/fundmatch/internal/metrics"
)

type sentKey struct {
	lpID, fundID string
	fundVersion  int
}

// Config tunes background mirroring.
type Config struct {
	// MirrorTimeout bounds one fund mirror, independent of the caller.
	MirrorTimeout time.Duration
	// BatchSize is the number of LPs scored per pool task.
	BatchSize int
}

// DefaultConfig returns the mirroring defaults.
func DefaultConfig() Config {
	return Config{MirrorTimeout: 2 * time.Minute, BatchSize: 64}
}

// Service maintains LP-perspective match lists. It reuses the forward filter
// and scorer with the fund as the query, updated as funds activate, withdraw
// and LPs change.
type Service struct {
	funds    FundLister
	corpus   CorpusReader
	eval     Evaluator
	scorer   Scorer
	weights  WeightsSource
	notifier Notifier
	pool     Pool
	cfg      Config
	logger   *zap.Logger
	now      func() time.Time

	mu     sync.RWMutex
	byLP   map[string]map[string]domain.MatchResult // lp ID -> fund ID -> result
	sent   map[sentKey]struct{}
	gen    map[string]uint64   // fund ID -> latest mirror generation
	failed map[string]struct{} // fund IDs whose latest mirror failed

	inflight sync.WaitGroup
}

// New creates a reverse index. notifier and pool may be nil; without a pool
// scoring runs on the calling goroutine.
func New(
	funds FundLister, corpusReader CorpusReader, eval Evaluator, scorer Scorer,
	weights WeightsSource, notifier Notifier, pool Pool, cfg Config, logger *zap.Logger,
) *Service {
	def := DefaultConfig()
	if cfg.MirrorTimeout <= 0 {
		cfg.MirrorTimeout = def.MirrorTimeout
	}
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = def.BatchSize
	}
	return &Service{
		funds:    funds,
		corpus:   corpusReader,
		eval:     eval,
		scorer:   scorer,
		weights:  weights,
		notifier: notifier,
		pool:     pool,
		cfg:      cfg,
		logger:   logger,
		now:      time.Now,
		byLP:     make(map[string]map[string]domain.MatchResult),
		sent:     make(map[sentKey]struct{}),
		gen:      make(map[string]uint64),
		failed:   make(map[string]struct{}),
	}
}

// MirrorFund schedules FundActivated in the background. The mirror keeps the
// caller's values but not its cancellation, so a dropped request cannot leave
// an active fund out of the LP lists. A failed mirror is kept for RetryFailed.
func (s *Service) MirrorFund(ctx context.Context, fund domain.FundProfile) {
	gen := s.claim(fund.ID)
	detached := context.WithoutCancel(ctx)

	s.inflight.Add(1)
	go func() {
		defer s.inflight.Done()
		mctx, cancel := context.WithTimeout(detached, s.cfg.MirrorTimeout)
		defer cancel()
		if _, err := s.activate(mctx, fund, gen); err != nil {
			s.markFailed(fund.ID, gen)
			s.logger.Warn("Reverse index mirror failed, queued for retry",
				zap.String("fund_id", fund.ID),
				zap.Int("fund_version", fund.Version),
				zap.Error(err),
			)
		}
	}()
}

// Drain blocks until every scheduled mirror has finished.
func (s *Service) Drain() {
	s.inflight.Wait()
}

// Failed returns the IDs of funds awaiting a mirror retry, sorted.
func (s *Service) Failed() []string {
	s.mu.RLock()
	out := make([]string, 0, len(s.failed))
	for id := range s.failed {
		out = append(out, id)
	}
	s.mu.RUnlock()
	sort.Strings(out)
	return out
}

// RetryFailed re-mirrors the current version of every failed fund that is
// still active. It returns the number mirrored successfully.
func (s *Service) RetryFailed(ctx context.Context) int {
	pending := s.Failed()
	if len(pending) == 0 {
		return 0
	}
	active := make(map[string]domain.FundProfile)
	for _, f := range s.funds.ListActive(ctx) {
		active[f.ID] = f
	}

	ok := 0
	for _, id := range pending {
		fund, isActive := active[id]
		if !isActive {
			s.mu.Lock()
			delete(s.failed, id)
			s.mu.Unlock()
			continue
		}
		mctx, cancel := context.WithTimeout(ctx, s.cfg.MirrorTimeout)
		_, err := s.FundActivated(mctx, fund)
		cancel()
		if err != nil {
			s.logger.Warn("Reverse index retry failed", zap.String("fund_id", id), zap.Error(err))
			continue
		}
		ok++
	}
	return ok
}

// Run retries failed mirrors every interval until ctx is done.
func (s *Service) Run(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if n := s.RetryFailed(ctx); n > 0 {
				s.logger.Info("Reverse index mirrors recovered", zap.Int("funds", n))
			}
		}
	}
}

// FundActivated scores an active fund against every LP and publishes the
// pairs that pass the hard filter. It returns the number of LPs matched.
func (s *Service) FundActivated(ctx context.Context, fund domain.FundProfile) (int, error) {
	gen := s.claim(fund.ID)
	n, err := s.activate(ctx, fund, gen)
	if err != nil {
		s.markFailed(fund.ID, gen)
	}
	return n, err
}

// claim starts a new mirror generation for a fund. Only the latest
// generation may publish.
func (s *Service) claim(fundID string) uint64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.gen[fundID]++
	return s.gen[fundID]
}

func (s *Service) markFailed(fundID string, gen uint64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.gen[fundID] == gen {
		s.failed[fundID] = struct{}{}
	}
}

func (s *Service) activate(ctx context.Context, fund domain.FundProfile, gen uint64) (int, error) {
	if err := fund.ValidateMatchable(); err != nil {
		return 0, fmt.Errorf("reverse index: %w", err)
	}
	snap := s.corpus.Snapshot()
	w := s.weights.Weights(fund.ID)

	candidates := make([]*domain.LPProfile, 0, snap.Len())
	for i := 0; i < snap.Len(); i++ {
		lp := snap.At(i)
		if s.eval.Evaluate(&fund, lp).Pass {
			candidates = append(candidates, lp)
		}
	}

	results, err := s.scoreAll(ctx, &fund, candidates, w, snap.Version())
	if err != nil {
		return 0, fmt.Errorf("reverse index: fund %s: %w", fund.ID, err)
	}
	matched := make(map[string]domain.MatchResult, len(results))
	for _, r := range results {
		matched[r.LPID] = r
	}

	// publish all-or-nothing so a cancelled rebuild leaves the old lists
	s.mu.Lock()
	if s.gen[fund.ID] != gen {
		s.mu.Unlock()
		s.logger.Debug("Reverse index mirror superseded", zap.String("fund_id", fund.ID))
		return len(matched), nil
	}
	for lpID, lists := range s.byLP {
		if _, ok := matched[lpID]; !ok {
			delete(lists, fund.ID)
		}
	}
	for lpID, r := range matched {
		s.put(lpID, r)
	}
	delete(s.failed, fund.ID)
	s.mu.Unlock()

	for _, lp := range candidates {
		s.maybeNotify(ctx, lp, fund.Version, matched[lp.ID])
	}

	s.logger.Info("Reverse index updated for fund",
		zap.String("fund_id", fund.ID),
		zap.Int("fund_version", fund.Version),
		zap.Int("matched_lps", len(matched)),
		zap.Uint64("corpus_version", snap.Version()),
	)
	return len(matched), nil
}

// scoreAll scores candidates in batches on the pool. Any error or context
// expiry discards every result.
func (s *Service) scoreAll(
	ctx context.Context, fund *domain.FundProfile, lps []*domain.LPProfile, w domain.Weights, version uint64,
) ([]domain.MatchResult, error) {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	results := make([]domain.MatchResult, len(lps))
	var (
		wg       sync.WaitGroup
		errOnce  sync.Once
		firstErr error
	)
	fail := func(err error) {
		errOnce.Do(func() {
			firstErr = err
			cancel()
		})
	}

	for lo := 0; lo < len(lps); lo += s.cfg.BatchSize {
		if err := ctx.Err(); err != nil {
			fail(err)
			break
		}
		hi := min(lo+s.cfg.BatchSize, len(lps))
		task := func() {
			defer wg.Done()
			for i := lo; i < hi; i++ {
				if err := ctx.Err(); err != nil {
					fail(err)
					return
				}
				r, err := s.score(ctx, fund, lps[i], w, version)
				if err != nil {
					fail(fmt.Errorf("lp %s: %w", lps[i].ID, err))
					return
				}
				results[i] = r
			}
		}

		wg.Add(1)
		if s.pool == nil {
			task()
			continue
		}
		if err := s.pool.Submit(task); err != nil {
			// pool closed or overloaded: score inline
			task()
		}
	}
	wg.Wait()

	if firstErr != nil {
		return nil, firstErr
	}
	return results, nil
}

// FundWithdrawn removes the fund from every LP list and supersedes any
// mirror still in flight.
func (s *Service) FundWithdrawn(fundID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.gen[fundID]++
	delete(s.failed, fundID)
	for lpID, lists := range s.byLP {
		delete(lists, fundID)
		if len(lists) == 0 {
			delete(s.byLP, lpID)
		}
	}
}

// RebuildLP recomputes one LP's list against all active funds. A deleted or
// missing LP has its list dropped.
func (s *Service) RebuildLP(ctx context.Context, lpID string) (int, error) {
	snap := s.corpus.Snapshot()
	lp, ok := snap.Get(lpID)
	if !ok || lp.Status != domain.LPActive {
		s.mu.Lock()
		delete(s.byLP, lpID)
		s.mu.Unlock()
		return 0, nil
	}

	funds := s.funds.ListActive(ctx)
	matched := make(map[string]domain.MatchResult)
	versions := make(map[string]int)
	for i := range funds {
		if err := ctx.Err(); err != nil {
			return 0, fmt.Errorf("rebuild lp %s: %w", lpID, err)
		}
		f := &funds[i]
		if !s.eval.Evaluate(f, lp).Pass {
			continue
		}
		r, err := s.score(ctx, f, lp, s.weights.Weights(f.ID), snap.Version())
		if err != nil {
			return 0, fmt.Errorf("rebuild lp %s: fund %s: %w", lpID, f.ID, err)
		}
		matched[f.ID] = r
		versions[f.ID] = f.Version
	}

	s.mu.Lock()
	s.byLP[lpID] = matched
	s.mu.Unlock()

	for i := range funds {
		if r, ok := matched[funds[i].ID]; ok {
			s.maybeNotify(ctx, lp, versions[funds[i].ID], r)
		}
	}
	return len(matched), nil
}

// ForLP returns the LP's fund matches ranked like forward results, ties
// broken by fund ID.
func (s *Service) ForLP(lpID string) []domain.MatchResult {
	s.mu.RLock()
	lists := s.byLP[lpID]
	out := make([]domain.MatchResult, 0, len(lists))
	for _, r := range lists {
		out = append(out, r)
	}
	s.mu.RUnlock()

	domain.RankResults(out)
	return out
}

func (s *Service) score(
	ctx context.Context, fund *domain.FundProfile, lp *domain.LPProfile, w domain.Weights, version uint64,
) (domain.MatchResult, error) {
	b, err := s.scorer.Score(ctx, fund, lp, w)
	if err != nil {
		return domain.MatchResult{}, err
	}
	return domain.MatchResult{
		FundID:        fund.ID,
		LPID:          lp.ID,
		TotalScore:    b.Total,
		Breakdown:     b,
		ComputedAt:    s.now(),
		CorpusVersion: version,
	}, nil
}

// put requires s.mu.
func (s *Service) put(lpID string, r domain.MatchResult) {
	lists, ok := s.byLP[lpID]
	if !ok {
		lists = make(map[string]domain.MatchResult)
		s.byLP[lpID] = lists
	}
	lists[r.FundID] = r
}

// maybeNotify sends at most one notification per (lp, fund, fund version),
// judged against the LP's threshold at publish time.
func (s *Service) maybeNotify(ctx context.Context, lp *domain.LPProfile, fundVersion int, r domain.MatchResult) {
	if s.notifier == nil || lp.NotifyMinScore <= 0 || r.TotalScore < lp.NotifyMinScore {
		return
	}
	key := sentKey{lpID: lp.ID, fundID: r.FundID, fundVersion: fundVersion}

	s.mu.Lock()
	if _, done := s.sent[key]; done {
		s.mu.Unlock()
		metrics.NotificationsTotal.WithLabelValues("suppressed").Inc()
		return
	}
	s.sent[key] = struct{}{}
	s.mu.Unlock()

	n := domain.Notification{
		LPID:          lp.ID,
		FundID:        r.FundID,
		FundVersion:   fundVersion,
		Score:         r.TotalScore,
		CorpusVersion: r.CorpusVersion,
	}
	if err := s.notifier.Notify(ctx, n); err != nil {
		// allow a retry on the next publish
		s.mu.Lock()
		delete(s.sent, key)
		s.mu.Unlock()
		metrics.NotificationsTotal.WithLabelValues("failed").Inc()
		s.logger.Warn("LP notification failed",
			zap.String("lp_id", lp.ID),
			zap.String("fund_id", r.FundID),
			zap.Error(err),
		)
		return
	}
	metrics.NotificationsTotal.WithLabelValues("sent").Inc()
}
