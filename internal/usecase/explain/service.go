package explain

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	gocache "github.com/patrickmn/go-cache"
	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"

	"github.com/kailas-cloud/fundmatch/internal/domain"
	"github.com/kailas-cloud/fundmatch/internal/metrics"
)

// Config configures explanation caching.
type Config struct {
	// Timeout bounds one generation call.
	Timeout time.Duration
	// StaleAfter is the age after which a cached explanation is flagged stale.
	StaleAfter time.Duration
	// TTL evicts explanations nobody asked for in a long time.
	TTL time.Duration
}

func (c *Config) applyDefaults() {
	if c.Timeout <= 0 {
		c.Timeout = 20 * time.Second
	}
	if c.StaleAfter <= 0 {
		c.StaleAfter = 7 * 24 * time.Hour
	}
	if c.TTL <= 0 {
		c.TTL = 30 * 24 * time.Hour
	}
}

// Service serves cached narratives and fills misses from a Generator.
type Service struct {
	gen    Generator
	cache  *gocache.Cache
	group  singleflight.Group
	cfg    Config
	logger *zap.Logger
	now    func() time.Time
}

// New creates an explanation service.
func New(gen Generator, cfg Config, logger *zap.Logger) *Service {
	cfg.applyDefaults()
	return &Service{
		gen:    gen,
		cache:  gocache.New(cfg.TTL, time.Hour),
		cfg:    cfg,
		logger: logger,
		now:    time.Now,
	}
}

// Explain returns the narrative for m, generating it on a miss. Cached
// explanations are returned as-is with Stale set once they age out.
func (s *Service) Explain(ctx context.Context, m domain.MatchResult) (domain.Explanation, error) {
	key := cacheKey(m)
	if v, ok := s.cache.Get(key); ok {
		exp := v.(domain.Explanation)
		exp.Stale = s.now().Sub(exp.GeneratedAt) > s.cfg.StaleAfter
		if exp.Stale {
			metrics.ExplanationsTotal.WithLabelValues("stale").Inc()
		} else {
			metrics.ExplanationsTotal.WithLabelValues("hit").Inc()
		}
		return exp, nil
	}
	return s.generate(ctx, key, m)
}

// Refresh regenerates the narrative for m and replaces the cached one. On
// failure the previous explanation, if any, stays cached.
func (s *Service) Refresh(ctx context.Context, m domain.MatchResult) (domain.Explanation, error) {
	return s.generate(ctx, cacheKey(m), m)
}

// generate deduplicates concurrent misses for one key.
func (s *Service) generate(ctx context.Context, key string, m domain.MatchResult) (domain.Explanation, error) {
	ch := s.group.DoChan(key, func() (any, error) {
		return s.call(context.WithoutCancel(ctx), key, m)
	})
	select {
	case r := <-ch:
		if r.Err != nil {
			return domain.Explanation{}, r.Err
		}
		return r.Val.(domain.Explanation), nil
	case <-ctx.Done():
		return domain.Explanation{}, fmt.Errorf("explain: %w", ctx.Err())
	}
}

func (s *Service) call(ctx context.Context, key string, m domain.MatchResult) (domain.Explanation, error) {
	ctx, cancel := context.WithTimeout(ctx, s.cfg.Timeout)
	defer cancel()

	start := time.Now()
	text, err := s.gen.Generate(ctx, m)
	if err == nil && strings.TrimSpace(text) == "" {
		err = fmt.Errorf("empty narrative")
	}
	if err != nil {
		metrics.ExplanationsTotal.WithLabelValues("failed").Inc()
		s.logger.Warn("Explanation generation failed",
			zap.String("fund_id", m.FundID),
			zap.String("lp_id", m.LPID),
			zap.Duration("duration", time.Since(start)),
			zap.Error(err),
		)
		return domain.Explanation{}, fmt.Errorf("%w: %w: %w",
			domain.ErrGenerationFailed, domain.ErrDependencyUnavailable, err)
	}

	exp := domain.Explanation{
		FundID:        m.FundID,
		LPID:          m.LPID,
		CorpusVersion: m.CorpusVersion,
		Text:          text,
		GeneratedAt:   s.now(),
	}
	s.cache.SetDefault(key, exp)
	metrics.ExplanationsTotal.WithLabelValues("generated").Inc()
	s.logger.Debug("Explanation generated",
		zap.String("fund_id", m.FundID),
		zap.String("lp_id", m.LPID),
		zap.Uint64("corpus_version", m.CorpusVersion),
		zap.Duration("duration", time.Since(start)),
	)
	return exp, nil
}

func cacheKey(m domain.MatchResult) string {
	return m.FundID + ":" + m.LPID + ":" + strconv.FormatUint(m.CorpusVersion, 10)
}
