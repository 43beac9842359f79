package filter

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/kailas-cloud/fundmatch/internal/domain"
	"github.com/kailas-cloud/fundmatch/internal/metrics"
)

// deadlineCheckEvery is how many rows the columnar scan processes between deadline checks.
const deadlineCheckEvery = 4096

// Exclusion records why an LP did not pass. Defect marks data-quality problems.
type Exclusion struct {
	LPID      string `json:"lp_id"`
	Predicate string `json:"predicate"`
	Reason    string `json:"reason"`
	Defect    bool   `json:"defect,omitempty"`
}

// CandidateSet is the deterministic outcome of one filter pass.
type CandidateSet struct {
	CorpusVersion uint64
	// Candidates point into the snapshot and must not be mutated. Ordered by LP ID.
	Candidates []*domain.LPProfile
	// Excluded is ordered by LP ID.
	Excluded []Exclusion
}

// Verdict is the outcome of evaluating one (fund, LP) pair.
type Verdict struct {
	Pass      bool
	Exclusion Exclusion
}

// Config configures the filter.
type Config struct {
	// ConfidenceThreshold separates hard constraints from soft penalties.
	ConfidenceThreshold float64
	// Timeout bounds one Filter call. Zero disables the deadline.
	Timeout time.Duration
}

// Engine applies the hard-filter predicates.
type Engine struct {
	tax    *domain.Taxonomy
	cfg    Config
	logger *zap.Logger
}

// New creates a filter engine.
func New(tax *domain.Taxonomy, cfg Config, logger *zap.Logger) *Engine {
	if cfg.ConfidenceThreshold <= 0 {
		cfg.ConfidenceThreshold = domain.DefaultConfidenceThreshold
	}
	return &Engine{tax: tax, cfg: cfg, logger: logger}
}

// ConfidenceThreshold returns the hard/soft constraint boundary.
func (e *Engine) ConfidenceThreshold() float64 { return e.cfg.ConfidenceThreshold }

// Filter eliminates incompatible LPs from snap. It either returns the complete
// candidate set or fails; a deadline overrun yields ErrTimeout, never a partial set.
func (e *Engine) Filter(ctx context.Context, fund *domain.FundProfile, snap Snapshot) (CandidateSet, error) {
	if e.cfg.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, e.cfg.Timeout)
		defer cancel()
	}
	start := time.Now()
	defer func() { metrics.FilterDuration.Observe(time.Since(start).Seconds()) }()

	idx := snap.Derived(indexKey{}, func() any {
		return buildIndex(snap, e.cfg.ConfidenceThreshold)
	}).(*index)
	if err := checkDeadline(ctx); err != nil {
		return CandidateSet{}, err
	}

	excluded := make(map[int]Exclusion, len(idx.structural))
	for i, ex := range idx.structural {
		excluded[i] = ex
	}

	alive := idx.eligible.clone()

	strategyOK := idx.union(idx.strategy, e.tax.Ancestors(fund.Strategy))
	alive.andInto(strategyOK).each(func(i int) {
		excluded[i] = Exclusion{
			LPID:      snap.At(i).ID,
			Predicate: PredicateStrategy,
			Reason:    fmt.Sprintf("strategy %q not covered by preferences", fund.Strategy),
		}
	})

	geoOK := idx.union(idx.geography, fund.Geographies)
	alive.andInto(geoOK).each(func(i int) {
		excluded[i] = Exclusion{
			LPID:      snap.At(i).ID,
			Predicate: PredicateGeography,
			Reason:    "no geography overlap",
		}
	})

	var (
		candidates = make([]*domain.LPProfile, 0, alive.count())
		scanned    int
		scanErr    error
	)
	alive.each(func(i int) {
		if scanErr != nil {
			return
		}
		scanned++
		if scanned%deadlineCheckEvery == 0 {
			if scanErr = checkDeadline(ctx); scanErr != nil {
				return
			}
		}
		lp := snap.At(i)
		if !sizeContains(fund.TargetSize, idx.minSize[i], idx.maxSize[i]) {
			excluded[i] = Exclusion{
				LPID:      lp.ID,
				Predicate: PredicateSize,
				Reason: fmt.Sprintf("target size %.2f outside [%.2f, %.2f]",
					fund.TargetSize, idx.minSize[i], idx.maxSize[i]),
			}
			return
		}
		if ok, why := trackMeets(fund, idx.minYears[i], idx.minFundNo[i]); !ok {
			excluded[i] = Exclusion{LPID: lp.ID, Predicate: PredicateTrack, Reason: why}
			return
		}
		if hard, ok := idx.hard[i]; ok {
			if pass, why := constraintsHold(e.tax, fund, hard); !pass {
				excluded[i] = Exclusion{LPID: lp.ID, Predicate: PredicateConstraint, Reason: why}
				return
			}
		}
		candidates = append(candidates, lp)
	})
	if scanErr != nil {
		return CandidateSet{}, scanErr
	}
	if err := checkDeadline(ctx); err != nil {
		return CandidateSet{}, err
	}

	out := CandidateSet{
		CorpusVersion: snap.Version(),
		Candidates:    candidates,
		Excluded:      make([]Exclusion, 0, len(excluded)),
	}
	for i := 0; i < idx.n; i++ {
		ex, ok := excluded[i]
		if !ok {
			continue
		}
		out.Excluded = append(out.Excluded, ex)
		metrics.FilterExcludedTotal.WithLabelValues(ex.Predicate).Inc()
		if ex.Defect {
			e.logger.Warn("LP excluded: data quality defect",
				zap.String("lp_id", ex.LPID),
				zap.String("reason", ex.Reason),
			)
		}
	}

	e.logger.Debug("Hard filter completed",
		zap.String("fund_id", fund.ID),
		zap.Uint64("corpus_version", out.CorpusVersion),
		zap.Int("candidates", len(out.Candidates)),
		zap.Int("excluded", len(out.Excluded)),
		zap.Duration("duration", time.Since(start)),
	)
	return out, nil
}

// Evaluate applies the same predicates to a single pair, in the same order.
// Used by the reverse index where the corpus is funds, not LPs.
func (e *Engine) Evaluate(fund *domain.FundProfile, lp *domain.LPProfile) Verdict {
	if ex, ok := structuralCheck(lp); !ok {
		return Verdict{Exclusion: ex}
	}
	fail := func(pred, reason string) Verdict {
		return Verdict{Exclusion: Exclusion{LPID: lp.ID, Predicate: pred, Reason: reason}}
	}
	if !strategyAligned(e.tax, fund, lp) {
		return fail(PredicateStrategy, fmt.Sprintf("strategy %q not covered by preferences", fund.Strategy))
	}
	if !geographyOverlaps(fund, lp) {
		return fail(PredicateGeography, "no geography overlap")
	}
	if !sizeContains(fund.TargetSize, *lp.MinSize, *lp.MaxSize) {
		return fail(PredicateSize, fmt.Sprintf("target size %.2f outside [%.2f, %.2f]",
			fund.TargetSize, *lp.MinSize, *lp.MaxSize))
	}
	if ok, why := trackMeets(fund, optInt(lp.MinTeamYears), optInt(lp.MinFundNumber)); !ok {
		return fail(PredicateTrack, why)
	}
	if ok, why := constraintsHold(e.tax, fund, hardConstraints(lp, e.cfg.ConfidenceThreshold)); !ok {
		return fail(PredicateConstraint, why)
	}
	return Verdict{Pass: true}
}

func checkDeadline(ctx context.Context) error {
	err := ctx.Err()
	switch {
	case err == nil:
		return nil
	case errors.Is(err, context.DeadlineExceeded):
		return fmt.Errorf("hard filter: %w", domain.ErrTimeout)
	default:
		return fmt.Errorf("hard filter: %w", err)
	}
}
