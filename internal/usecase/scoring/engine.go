package scoring

import (
	"context"
	"fmt"
	"math"
	"strings"

	"go.uber.org/zap"

	"github.com/kailas-cloud/fundmatch/internal/domain"
	"github.com/kailas-cloud/fundmatch/internal/metrics"
)

// Config configures the scoring engine.
type Config struct {
	Weights             domain.Weights
	ConfidenceThreshold float64
	Taxonomy            *domain.Taxonomy
}

// Engine computes weighted composite scores for filter survivors.
type Engine struct {
	semantic  Semantic
	tax       *domain.Taxonomy
	weights   domain.Weights
	threshold float64
	logger    *zap.Logger
}

// New validates the default weights and creates an engine. Invalid weights
// are rejected here, before any scoring happens.
func New(sem Semantic, cfg Config, logger *zap.Logger) (*Engine, error) {
	w := cfg.Weights
	if w == nil {
		w = domain.DefaultWeights()
	}
	if err := w.Validate(); err != nil {
		return nil, fmt.Errorf("scoring weights: %w", err)
	}
	threshold := cfg.ConfidenceThreshold
	if threshold <= 0 {
		threshold = domain.DefaultConfidenceThreshold
	}
	return &Engine{
		semantic:  sem,
		tax:       cfg.Taxonomy,
		weights:   w.Clone(),
		threshold: threshold,
		logger:    logger,
	}, nil
}

// Weights returns a copy of the default weights.
func (e *Engine) Weights() domain.Weights { return e.weights.Clone() }

// Score computes the breakdown for one pair. w must already be validated;
// nil means the engine defaults. Missing data never fails a score; only
// context cancellation is returned as an error.
func (e *Engine) Score(
	ctx context.Context, fund *domain.FundProfile, lp *domain.LPProfile, w domain.Weights,
) (domain.ScoreBreakdown, error) {
	if w == nil {
		w = e.weights
	}

	sem, err := e.semantic.Compare(ctx, fund.Thesis, lp.Mandate, lp.MandateEmbedding)
	if err != nil {
		return domain.ScoreBreakdown{}, fmt.Errorf("score %s/%s: %w", fund.ID, lp.ID, err)
	}
	semScore := domain.FactorScore{Factor: domain.FactorSemantic, Raw: sem.Value, Defaulted: sem.Defaulted, Note: sem.Reason}

	factors := []domain.FactorScore{
		sectorOverlap(fund, lp),
		sizeFit(fund, lp),
		trackRecord(fund, lp),
		esgAlignment(fund, lp),
		semScore,
	}
	e.applySoftConstraints(fund, lp, factors)

	for i := range factors {
		f := &factors[i]
		if math.IsNaN(f.Raw) || math.IsInf(f.Raw, 0) {
			e.logger.Warn("Non-finite sub-score replaced with default",
				zap.String("fund_id", fund.ID),
				zap.String("lp_id", lp.ID),
				zap.String("factor", string(f.Factor)),
			)
			*f = neutral(f.Factor, "non-finite sub-score")
		}
		if f.Defaulted {
			metrics.ScoreDefaultedTotal.WithLabelValues(string(f.Factor)).Inc()
		}
	}

	return Combine(factors, w), nil
}

// applySoftConstraints subtracts confidence-weighted penalties for failing
// constraints below the hard threshold from the factor each one maps to.
func (e *Engine) applySoftConstraints(fund *domain.FundProfile, lp *domain.LPProfile, factors []domain.FactorScore) {
	for _, c := range lp.Constraints {
		if c.Confidence >= e.threshold {
			continue
		}
		ok, why := c.Evaluate(fund, e.tax)
		if ok {
			continue
		}
		for i := range factors {
			if factors[i].Factor != c.Factor() {
				continue
			}
			f := &factors[i]
			f.Raw = math.Max(0, f.Raw-c.Confidence*softPenaltyScale)
			note := fmt.Sprintf("soft %s: %s", c.Type, why)
			if f.Note == "" {
				f.Note = note
			} else {
				f.Note = strings.Join([]string{f.Note, note}, "; ")
			}
		}
	}
}

// Combine weights raw sub-scores into a breakdown. Weights are renormalized to
// sum exactly to 1 so contributions always add up to the clamped total.
func Combine(factors []domain.FactorScore, w domain.Weights) domain.ScoreBreakdown {
	var sum float64
	for _, f := range domain.Factors {
		sum += w[f]
	}

	out := domain.ScoreBreakdown{Factors: make([]domain.FactorScore, len(factors))}
	for i, fs := range factors {
		fs.Weight = w[fs.Factor]
		if sum > 0 {
			fs.Weight /= sum
		}
		fs.Contribution = fs.Raw * fs.Weight
		out.Unclamped += fs.Contribution
		out.Factors[i] = fs
	}
	out.Total = domain.ClampScore(out.Unclamped)
	return out
}

// Rank orders results by unclamped total, then semantic sub-score, then LP ID.
func Rank(results []domain.MatchResult) {
	domain.RankResults(results)
}
