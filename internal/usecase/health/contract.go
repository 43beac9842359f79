package health

import (
	"context"

	"github.com/kailas-cloud/fundmatch/internal/usecase/embedding"
)

// DBPinger checks database availability.
type DBPinger interface {
	Ping(ctx context.Context) error
}

// EmbeddingChecker checks embedding provider availability.
type EmbeddingChecker interface {
	HealthCheck(ctx context.Context) error
}

// CircuitReporter exposes the embedding circuit breaker state.
type CircuitReporter interface {
	State() embedding.CircuitState
}
