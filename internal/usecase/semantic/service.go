package semantic

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"

	"github.com/kailas-cloud/fundmatch/internal/domain"
	"github.com/kailas-cloud/fundmatch/internal/metrics"
)

// Score is a calibrated semantic sub-score. Defaulted scores carry the reason
// the neutral value was used.
type Score struct {
	Value     float64
	Defaulted bool
	Reason    string
}

// Service compares free-text theses and mandates by embedding similarity.
type Service struct {
	embedder Embedder
	cache    Cache
	cfg      Config
	group    singleflight.Group
	logger   *zap.Logger
}

// New creates a semantic similarity service.
func New(embedder Embedder, cache Cache, cfg Config, logger *zap.Logger) (*Service, error) {
	cfg.applyDefaults()
	if err := cfg.validate(); err != nil {
		return nil, fmt.Errorf("%w: %w", domain.ErrValidation, err)
	}
	return &Service{
		embedder: embedder,
		cache:    cache,
		cfg:      cfg,
		logger:   logger,
	}, nil
}

// Embed returns the current-model embedding of text, from cache when possible.
// Concurrent misses for the same text share one provider call.
func (s *Service) Embed(ctx context.Context, text string) (domain.Embedding, error) {
	if strings.TrimSpace(text) == "" {
		return domain.Embedding{}, domain.Validationf("cannot embed empty text")
	}
	if emb, ok := s.cache.Get(ctx, text); ok {
		return emb, nil
	}

	// detached so one waiter's cancellation does not fail the others;
	// the provider call is bounded by the embedder's own timeout
	ch := s.group.DoChan(domain.ContentHash(text), func() (any, error) {
		return s.embedMiss(context.WithoutCancel(ctx), text)
	})
	select {
	case r := <-ch:
		if r.Err != nil {
			return domain.Embedding{}, r.Err
		}
		return r.Val.(domain.Embedding), nil
	case <-ctx.Done():
		return domain.Embedding{}, fmt.Errorf("embed: %w", ctx.Err())
	}
}

func (s *Service) embedMiss(ctx context.Context, text string) (domain.Embedding, error) {
	res, err := s.embedder.Embed(ctx, text)
	if err != nil {
		return domain.Embedding{}, fmt.Errorf("embed: %w", err)
	}
	if err := domain.ValidateVector(res.Embedding, s.cache.Dimensions()); err != nil {
		return domain.Embedding{}, fmt.Errorf("%w: %w", domain.ErrDependencyUnavailable, err)
	}
	return s.cache.Put(ctx, text, res.Embedding), nil
}

// Similarity returns the calibrated similarity of two texts. Unlike Compare it
// surfaces provider errors.
func (s *Service) Similarity(ctx context.Context, a, b string) (float64, error) {
	ea, err := s.Embed(ctx, a)
	if err != nil {
		return 0, err
	}
	eb, err := s.Embed(ctx, b)
	if err != nil {
		return 0, err
	}
	cos, err := domain.Cosine(ea.Vector, eb.Vector)
	if err != nil {
		return 0, fmt.Errorf("similarity: %w", err)
	}
	return s.cfg.calibrate(cos), nil
}

// Compare scores a fund thesis against an LP mandate. lpCached is the
// mandate's stored embedding, reused only when it is current for this model
// and dimension; otherwise the mandate is re-embedded first.
//
// Missing text or an unavailable provider yields the neutral score; only
// caller cancellation is returned as an error.
func (s *Service) Compare(
	ctx context.Context, fundText, lpText string, lpCached *domain.Embedding,
) (Score, error) {
	if strings.TrimSpace(fundText) == "" {
		return s.neutral("no_thesis", "fund has no thesis text"), nil
	}
	if strings.TrimSpace(lpText) == "" {
		return s.neutral("no_mandate", "lp has no mandate text"), nil
	}

	fundEmb, err := s.Embed(ctx, fundText)
	if err != nil {
		return s.fallback(ctx, err)
	}

	var lpEmb domain.Embedding
	if lpCached.Current(lpText, s.cache.ModelVersion(), len(fundEmb.Vector)) {
		lpEmb = *lpCached
	} else {
		if lpCached != nil && len(lpCached.Vector) > 0 {
			s.logger.Debug("Re-embedding stale mandate",
				zap.String("cached_model", lpCached.ModelVersion),
				zap.Int("cached_dimension", len(lpCached.Vector)),
				zap.String("model", s.cache.ModelVersion()),
				zap.Int("dimension", len(fundEmb.Vector)),
			)
		}
		lpEmb, err = s.Embed(ctx, lpText)
		if err != nil {
			return s.fallback(ctx, err)
		}
	}

	cos, err := domain.Cosine(fundEmb.Vector, lpEmb.Vector)
	if err != nil {
		// both sides came from the current model, so this is a provider defect
		return s.neutral("incomparable", err.Error()), nil
	}
	return Score{Value: s.cfg.calibrate(cos)}, nil
}

// Invalidate drops the cached embedding for text.
func (s *Service) Invalidate(ctx context.Context, text string) {
	if strings.TrimSpace(text) == "" {
		return
	}
	s.cache.Invalidate(ctx, text)
}

func (s *Service) fallback(ctx context.Context, err error) (Score, error) {
	if ctx.Err() != nil {
		return Score{}, fmt.Errorf("semantic compare: %w", ctx.Err())
	}
	reason := "provider_error"
	if errors.Is(err, domain.ErrCircuitOpen) {
		reason = "circuit_open"
	}
	s.logger.Warn("Semantic similarity unavailable, using neutral score",
		zap.String("reason", reason),
		zap.Error(err),
	)
	return s.neutral(reason, err.Error()), nil
}

func (s *Service) neutral(reason, note string) Score {
	metrics.SemanticFallbackTotal.WithLabelValues(reason).Inc()
	return Score{Value: domain.NeutralScore, Defaulted: true, Reason: note}
}
