package embedding

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/kailas-cloud/fundmatch/internal/domain"
	"github.com/kailas-cloud/fundmatch/internal/metrics"
)

// GuardConfig describes the provider behind a GuardedEmbedder.
type GuardConfig struct {
	Provider   string
	Model      string
	Dimensions int
	Timeout    time.Duration
}

// GuardedEmbedder wraps an Embedder with a circuit breaker, a per-call timeout
// and response validation. Transport metrics (requests, duration, tokens) are
// recorded in transport/openai; this layer owns failure classification.
type GuardedEmbedder struct {
	inner   domain.Embedder
	breaker *CircuitBreaker
	cfg     GuardConfig
	logger  *zap.Logger
}

// NewGuardedEmbedder wraps inner. A nil breaker disables short-circuiting.
func NewGuardedEmbedder(
	inner domain.Embedder, breaker *CircuitBreaker, cfg GuardConfig, logger *zap.Logger,
) *GuardedEmbedder {
	return &GuardedEmbedder{
		inner:   inner,
		breaker: breaker,
		cfg:     cfg,
		logger:  logger,
	}
}

// Embed delegates to the provider. Every failure is reported as
// ErrDependencyUnavailable so callers can fall back to a neutral score.
func (g *GuardedEmbedder) Embed(ctx context.Context, text string) (domain.EmbeddingResult, error) {
	if g.breaker != nil {
		if err := g.breaker.Allow(); err != nil {
			g.countError("circuit_open")
			return domain.EmbeddingResult{}, fmt.Errorf("%w: %w", domain.ErrDependencyUnavailable, err)
		}
	}

	callCtx := ctx
	if g.cfg.Timeout > 0 {
		var cancel context.CancelFunc
		callCtx, cancel = context.WithTimeout(ctx, g.cfg.Timeout)
		defer cancel()
	}

	start := time.Now()
	result, err := g.inner.Embed(callCtx, text)
	duration := time.Since(start)

	if err != nil {
		if ctx.Err() != nil {
			// caller cancelled; says nothing about provider health
			g.abandon()
			return domain.EmbeddingResult{}, fmt.Errorf("embed: %w", ctx.Err())
		}
		errType := "provider"
		if errors.Is(callCtx.Err(), context.DeadlineExceeded) {
			errType = "timeout"
		}
		g.fail(errType, duration, err)
		return domain.EmbeddingResult{}, fmt.Errorf("%w: embed: %w", domain.ErrDependencyUnavailable, err)
	}

	if err := domain.ValidateVector(result.Embedding, g.cfg.Dimensions); err != nil {
		g.fail("invalid_vector", duration, err)
		return domain.EmbeddingResult{}, fmt.Errorf("%w: %w", domain.ErrDependencyUnavailable, err)
	}

	if g.breaker != nil {
		g.breaker.RecordSuccess()
	}

	g.logger.Debug("Embedding request completed",
		zap.String("provider", g.cfg.Provider),
		zap.String("model", g.cfg.Model),
		zap.Duration("duration", duration),
		zap.Int("dimensions", len(result.Embedding)),
		zap.Int("total_tokens", result.TotalTokens),
	)
	return result, nil
}

// HealthCheck delegates to the provider when it supports health checks.
func (g *GuardedEmbedder) HealthCheck(ctx context.Context) error {
	hc, ok := g.inner.(domain.HealthChecker)
	if !ok {
		return nil
	}
	if err := hc.HealthCheck(ctx); err != nil {
		return fmt.Errorf("embedding provider: %w", err)
	}
	return nil
}

func (g *GuardedEmbedder) fail(errType string, duration time.Duration, err error) {
	if g.breaker != nil {
		g.breaker.RecordFailure()
	}
	g.countError(errType)
	g.logger.Error("Embedding request failed",
		zap.String("provider", g.cfg.Provider),
		zap.String("model", g.cfg.Model),
		zap.String("error_type", errType),
		zap.Duration("duration", duration),
		zap.Error(err),
	)
}

func (g *GuardedEmbedder) abandon() {
	if g.breaker != nil {
		g.breaker.Abandon()
	}
}

func (g *GuardedEmbedder) countError(errType string) {
	metrics.EmbeddingErrorsTotal.WithLabelValues(g.cfg.Provider, g.cfg.Model, errType).Inc()
}
