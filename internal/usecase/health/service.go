package health

import (
	"context"

	"github.com/kailas-cloud/fundmatch/internal/usecase/embedding"
)

// Status represents the aggregated health status.
type Status string

const (
	// Healthy indicates all components are operational.
	Healthy Status = "ok"
	// Degraded indicates partial failure. Matching still runs with neutral
	// semantic scores.
	Degraded Status = "degraded"
	// Unhealthy indicates total failure.
	Unhealthy Status = "error"
)

// CheckResult represents an individual component health check outcome.
type CheckResult string

const (
	// CheckOK indicates a passing health check.
	CheckOK CheckResult = "ok"
	// CheckError indicates a failing health check.
	CheckError CheckResult = "error"
)

// Report aggregates health check results.
type Report struct {
	Status Status
	Checks map[string]CheckResult
}

// Service coordinates health checks.
type Service struct {
	db        DBPinger
	embedding EmbeddingChecker
	circuit   CircuitReporter
}

// New creates a Service. embedding and circuit can be nil.
func New(db DBPinger, emb EmbeddingChecker, circuit CircuitReporter) *Service {
	return &Service{db: db, embedding: emb, circuit: circuit}
}

// Check runs health checks against all components. Only a database failure
// makes the service unhealthy; provider trouble degrades it.
func (s *Service) Check(ctx context.Context) Report {
	checks := make(map[string]CheckResult)

	dbOK := s.db.Ping(ctx) == nil
	checks["database"] = result(dbOK)

	if s.embedding != nil {
		checks["embedding"] = result(s.embedding.HealthCheck(ctx) == nil)
	}
	if s.circuit != nil {
		checks["embedding_circuit"] = result(s.circuit.State() != embedding.CircuitOpen)
	}

	status := Healthy
	for _, v := range checks {
		if v == CheckError {
			status = Degraded
			break
		}
	}
	if !dbOK {
		status = Unhealthy
	}

	return Report{Status: status, Checks: checks}
}

func result(ok bool) CheckResult {
	if ok {
		return CheckOK
	}
	return CheckError
}
