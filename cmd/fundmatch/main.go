package main

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	chiMiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/panjf2000/ants/v2"
	"go.uber.org/zap"

	"github.com/kailas-cloud/fundmatch/internal/config"
	"github.com/kailas-cloud/fundmatch/internal/db"
	dbMemory "github.com/kailas-cloud/fundmatch/internal/db/memory"
	dbRedis "github.com/kailas-cloud/fundmatch/internal/db/redis"
	"github.com/kailas-cloud/fundmatch/internal/domain"
	logpkg "github.com/kailas-cloud/fundmatch/internal/logger"
	"github.com/kailas-cloud/fundmatch/internal/metrics"
	corpusrepo "github.com/kailas-cloud/fundmatch/internal/repository/corpus"
	"github.com/kailas-cloud/fundmatch/internal/repository/embcache"
	fundrepo "github.com/kailas-cloud/fundmatch/internal/repository/fund"
	chiTransport "github.com/kailas-cloud/fundmatch/internal/transport/chi"
	openaiTransport "github.com/kailas-cloud/fundmatch/internal/transport/openai"
	corpusuc "github.com/kailas-cloud/fundmatch/internal/usecase/corpus"
	embeddinguc "github.com/kailas-cloud/fundmatch/internal/usecase/embedding"
	explainuc "github.com/kailas-cloud/fundmatch/internal/usecase/explain"
	feedbackuc "github.com/kailas-cloud/fundmatch/internal/usecase/feedback"
	"github.com/kailas-cloud/fundmatch/internal/usecase/filter"
	funduc "github.com/kailas-cloud/fundmatch/internal/usecase/fund"
	healthuc "github.com/kailas-cloud/fundmatch/internal/usecase/health"
	matchuc "github.com/kailas-cloud/fundmatch/internal/usecase/match"
	reverseuc "github.com/kailas-cloud/fundmatch/internal/usecase/reverse"
	"github.com/kailas-cloud/fundmatch/internal/usecase/scoring"
	"github.com/kailas-cloud/fundmatch/internal/usecase/semantic"
	"github.com/kailas-cloud/fundmatch/internal/version"
)

func main() {
	// Load configuration based on ENV
	env := config.GetEnv()

	cfg, err := config.Load(env)
	if err != nil {
		panic("failed to load config: " + err.Error())
	}

	logger, err := logpkg.NewLogger(env, cfg.Logging.Level)
	if err != nil {
		panic("failed to create logger: " + err.Error())
	}
	defer func() { _ = logger.Sync() }()

	logger.Info("Starting fundmatch API server",
		zap.String("version", version.Version),
		zap.String("commit", version.Commit),
		zap.String("env", env),
		zap.Int("http_port", cfg.HTTP.Port),
		zap.String("db_driver", cfg.Database.Driver),
		zap.Strings("db_addrs", cfg.Database.Addrs),
	)

	// Embedding cache and feedback journal store
	var store db.Store
	switch cfg.Database.Driver {
	case "valkey", "redis":
		store, err = dbRedis.NewStore(dbRedis.Config{
			Addrs:    cfg.Database.Addrs,
			Username: cfg.Database.Username,
			Password: cfg.Database.Password,
			DB:       cfg.Database.DB,
		})
	case "memory":
		store = dbMemory.NewStore(time.Minute)
	default:
		logger.Fatal("Unknown database driver", zap.String("driver", cfg.Database.Driver))
	}
	if err != nil {
		logger.Fatal("Failed to create database store", zap.Error(err))
	}
	defer store.Close()

	ctx := context.Background()
	if err := store.WaitForReady(ctx, time.Duration(cfg.Database.ReadinessTimeout)*time.Second); err != nil {
		logger.Fatal("Database not ready", zap.Error(err))
	}
	logger.Info("Connected to database")

	// Register metrics explicitly (no init())
	metrics.RegisterEmbeddingMetrics()
	metrics.RegisterMatchingMetrics()
	metrics.RegisterHTTPMetrics()

	tax, err := domain.NewTaxonomy(cfg.Taxonomy)
	if err != nil {
		logger.Fatal("Invalid taxonomy", zap.Error(err))
	}
	weights, err := cfg.Weights()
	if err != nil {
		logger.Fatal("Invalid weights", zap.Error(err))
	}

	// Embedding chain: OpenAI -> Guarded (breaker, timeout, validation) -> semantic (cache, singleflight)
	breaker := embeddinguc.NewCircuitBreaker(cfg.Embedding.Provider, embeddinguc.BreakerConfig{
		Threshold: cfg.Embedding.Breaker.Threshold,
		Window:    time.Duration(cfg.Embedding.Breaker.WindowSec) * time.Second,
		OpenFor:   time.Duration(cfg.Embedding.Breaker.OpenForSec) * time.Second,
	})
	embedder, semanticSvc := buildSemantic(cfg.Embedding, store, breaker, logger)
	logger.Info("Embedder created",
		zap.String("provider", cfg.Embedding.Provider),
		zap.String("model", cfg.Embedding.Model),
		zap.Int("dimensions", cfg.Embedding.Dimensions),
		zap.String("calibration", cfg.Embedding.Calibration),
	)

	scorer, err := scoring.New(semanticSvc, scoring.Config{
		Weights:             weights,
		ConfidenceThreshold: cfg.Matching.ConfidenceThreshold,
		Taxonomy:            tax,
	}, logger)
	if err != nil {
		logger.Fatal("Failed to create scoring engine", zap.Error(err))
	}
	filterEngine := filter.New(tax, filter.Config{
		ConfidenceThreshold: cfg.Matching.ConfidenceThreshold,
		Timeout:             time.Duration(cfg.Matching.FilterTimeoutMs) * time.Millisecond,
	}, logger)

	pool, err := ants.NewPool(cfg.Matching.WorkerPoolSize)
	if err != nil {
		logger.Fatal("Failed to create worker pool", zap.Error(err))
	}
	defer pool.Release()

	// Repositories
	funds := fundrepo.New()
	lps := corpusrepo.New()

	// Use case services
	matchSvc := matchuc.New(funds, lps, filterEngine, scorer, pool, matchuc.Config{
		JobTimeout:         time.Duration(cfg.Matching.JobTimeoutSec) * time.Second,
		BatchSize:          cfg.Matching.BatchSize,
		MaxInFlightBatches: cfg.Matching.MaxInFlightBatches,
		ResultTTL:          time.Duration(cfg.Matching.ResultTTLMin) * time.Minute,
		JobRetention:       time.Duration(cfg.Matching.JobRetentionMin) * time.Minute,
		RatePerSecond:      cfg.Matching.RatePerSecond,
		RateBurst:          cfg.Matching.RateBurst,
	}, logger)
	reverseSvc := reverseuc.New(funds, lps, filterEngine, scorer, matchSvc, reverseuc.NewLogNotifier(logger), pool,
		reverseuc.Config{
			MirrorTimeout: time.Duration(cfg.Matching.ReverseTimeoutSec) * time.Second,
			BatchSize:     cfg.Matching.BatchSize,
		}, logger)
	retryCtx, stopRetry := context.WithCancel(ctx)
	defer stopRetry()
	go reverseSvc.Run(retryCtx, time.Duration(cfg.Matching.ReverseRetrySec)*time.Second)
	fundSvc := funduc.New(funds, matchSvc, reverseSvc, semanticSvc, logger)
	corpusSvc := corpusuc.New(lps, matchSvc, reverseSvc, semanticSvc, logger)

	narrator := openaiTransport.NewNarrator(&openaiTransport.NarratorConfig{
		APIKey:      cfg.Narrative.APIKey,
		BaseURL:     cfg.Narrative.BaseURL,
		Model:       cfg.Narrative.Model,
		MaxTokens:   cfg.Narrative.MaxTokens,
		Temperature: cfg.Narrative.Temperature,
		Logger:      logger,
	})
	explainSvc := explainuc.New(narrator, explainuc.Config{
		Timeout:    time.Duration(cfg.Narrative.TimeoutSec) * time.Second,
		StaleAfter: time.Duration(cfg.Narrative.StaleAfterDays) * 24 * time.Hour,
		TTL:        time.Duration(cfg.Narrative.CacheTTLDays) * 24 * time.Hour,
	}, logger)
	feedbackSvc := feedbackuc.New(matchSvc, store, feedbackuc.Config{MinTenants: cfg.Feedback.MinTenants}, logger)
	healthSvc := healthuc.New(store, embedder, breaker)

	server := chiTransport.NewServer(chiTransport.Services{
		Funds:    fundSvc,
		Corpus:   corpusSvc,
		Matches:  matchSvc,
		Explain:  explainSvc,
		Feedback: feedbackSvc,
		Reverse:  reverseSvc,
		Health:   healthSvc,
	}, logger)

	r := chi.NewRouter()
	r.Use(jsonRecoverer(logger))
	r.Use(chiMiddleware.RequestID)
	r.Use(wideEventMiddleware(logger))
	r.Use(chiTransport.BearerAuthMiddleware(cfg.Auth.APIKeys))
	r.Use(metrics.Middleware(chiTransport.TenantFromContext))
	r.NotFound(jsonStatus(http.StatusNotFound, "not_found", "route not found"))
	r.MethodNotAllowed(jsonStatus(http.StatusMethodNotAllowed, "bad_request", "method not allowed"))
	server.Mount(r)

	addr := fmt.Sprintf(":%d", cfg.HTTP.Port)
	srv := &http.Server{
		Addr:         addr,
		Handler:      r,
		ReadTimeout:  time.Duration(cfg.HTTP.ReadTimeoutSec) * time.Second,
		WriteTimeout: time.Duration(cfg.HTTP.WriteTimeoutSec) * time.Second,
	}

	// Graceful shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, os.Interrupt, syscall.SIGTERM)

	go func() {
		logger.Info("Starting HTTP server", zap.String("addr", addr))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal("HTTP server error", zap.Error(err))
		}
	}()

	<-quit
	logger.Info("Received shutdown signal")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), time.Duration(cfg.HTTP.ShutdownSec)*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("Error during shutdown", zap.Error(err))
	}
	stopRetry()
	reverseSvc.Drain()

	logger.Info("Server stopped gracefully")
}

// buildSemantic assembles the embedding chain: OpenAI -> Guarded -> semantic service with cache.
func buildSemantic(
	embCfg config.EmbeddingConfig,
	store db.Store,
	breaker *embeddinguc.CircuitBreaker,
	logger *zap.Logger,
) (*embeddinguc.GuardedEmbedder, *semantic.Service) {
	// Base provider (with transport metrics built-in)
	base := openaiTransport.NewEmbedder(&openaiTransport.Config{
		APIKey:     embCfg.APIKey,
		BaseURL:    embCfg.BaseURL,
		Model:      embCfg.Model,
		Dimensions: embCfg.Dimensions,
		Provider:   embCfg.Provider,
		Logger:     logger,
	})

	guarded := embeddinguc.NewGuardedEmbedder(base, breaker, embeddinguc.GuardConfig{
		Provider:   embCfg.Provider,
		Model:      embCfg.Model,
		Dimensions: embCfg.Dimensions,
		Timeout:    time.Duration(embCfg.TimeoutSec) * time.Second,
	}, logger)

	cache := embcache.New(embcache.Config{
		Store:        store,
		TTL:          time.Duration(embCfg.CacheTTLHours) * time.Hour,
		ModelVersion: base.ModelVersion(),
		Dimensions:   embCfg.Dimensions,
		CacheTotal:   metrics.EmbeddingCacheTotal,
		Logger:       logger,
	})

	svc, err := semantic.New(guarded, cache, semantic.Config{
		Calibration:     semantic.Calibration(embCfg.Calibration),
		SigmoidK:        embCfg.SigmoidK,
		SigmoidMidpoint: embCfg.SigmoidMidpoint,
	}, logger)
	if err != nil {
		logger.Fatal("Invalid semantic configuration", zap.Error(err))
	}
	return guarded, svc
}

// jsonStatus returns a handler writing a fixed JSON error.
func jsonStatus(status int, code, message string) http.HandlerFunc {
	return func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(status)
		_ = json.NewEncoder(w).Encode(map[string]string{
			"code":    code,
			"message": message,
		})
	}
}

// jsonRecoverer is a recovery middleware that returns JSON instead of a plain text stacktrace.
func jsonRecoverer(logger *zap.Logger) func(next http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			defer func() {
				if rvr := recover(); rvr != nil {
					logger.Error("panic recovered",
						zap.Any("panic", rvr),
						zap.Stack("stacktrace"),
					)
					jsonStatus(http.StatusInternalServerError, "internal_error", "internal error")(w, r)
				}
			}()
			next.ServeHTTP(w, r)
		})
	}
}

// wideEventMiddleware emits a canonical log line per request and propagates X-Request-ID.
func wideEventMiddleware(logger *zap.Logger) func(next http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()

			// chi.middleware.RequestID already placed request_id in context
			requestID := chiMiddleware.GetReqID(r.Context())
			if requestID != "" {
				w.Header().Set("X-Request-ID", requestID)
			}

			reqLogger := logger.With(zap.String("request_id", requestID))
			ctx := logpkg.ContextWithLogger(r.Context(), reqLogger)

			ww := chiMiddleware.NewWrapResponseWriter(w, r.ProtoMajor)
			next.ServeHTTP(ww, r.WithContext(ctx))

			// Canonical log line, one per request.
			reqLogger.Info("http_request",
				zap.String("method", r.Method),
				zap.String("path", r.URL.Path),
				zap.String("route", chi.RouteContext(r.Context()).RoutePattern()),
				zap.Int("status", ww.Status()),
				zap.Duration("latency", time.Since(start)),
				zap.String("ip", r.RemoteAddr),
				zap.Int64("content_length", r.ContentLength),
				zap.String("user_agent", r.UserAgent()),
				zap.Int("response_bytes", ww.BytesWritten()),
			)
		})
	}
}
