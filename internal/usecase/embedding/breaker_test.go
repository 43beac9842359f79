package embedding

import (
	"errors"
	"testing"
	"time"

	"github.com/kailas-cloud/fundmatch/internal/domain"
)

func TestBreaker_TripsAfterThresholdWithinWindow(t *testing.T) {
	clock := newFakeClock()
	cb := newTestBreaker(clock, 3, 10*time.Second, 30*time.Second)

	cb.RecordFailure()
	cb.RecordFailure()
	if cb.State() != CircuitClosed {
		t.Fatalf("expected closed after 2 failures, got %s", cb.State())
	}
	cb.RecordFailure()
	if cb.State() != CircuitOpen {
		t.Fatalf("expected open after 3 failures, got %s", cb.State())
	}
	if err := cb.Allow(); !errors.Is(err, domain.ErrCircuitOpen) {
		t.Fatalf("expected ErrCircuitOpen, got %v", err)
	}
}

func TestBreaker_FailuresOutsideWindowDoNotCount(t *testing.T) {
	clock := newFakeClock()
	cb := newTestBreaker(clock, 3, 10*time.Second, 30*time.Second)

	cb.RecordFailure()
	cb.RecordFailure()
	clock.Advance(11 * time.Second)
	cb.RecordFailure()

	if cb.State() != CircuitClosed {
		t.Fatalf("expected closed, old failures should have expired; got %s", cb.State())
	}
}

func TestBreaker_HalfOpenSingleProbe(t *testing.T) {
	clock := newFakeClock()
	cb := newTestBreaker(clock, 1, time.Minute, 30*time.Second)

	cb.RecordFailure()
	clock.Advance(31 * time.Second)

	if err := cb.Allow(); err != nil {
		t.Fatalf("expected probe to be admitted, got %v", err)
	}
	if cb.State() != CircuitHalfOpen {
		t.Fatalf("expected half-open, got %s", cb.State())
	}
	if err := cb.Allow(); !errors.Is(err, domain.ErrCircuitOpen) {
		t.Fatalf("expected second caller rejected during probe, got %v", err)
	}

	cb.RecordSuccess()
	if cb.State() != CircuitClosed {
		t.Fatalf("expected closed after successful probe, got %s", cb.State())
	}
	if err := cb.Allow(); err != nil {
		t.Fatalf("expected closed breaker to allow, got %v", err)
	}
}

func TestBreaker_FailedProbeReopens(t *testing.T) {
	clock := newFakeClock()
	cb := newTestBreaker(clock, 1, time.Minute, 30*time.Second)

	cb.RecordFailure()
	clock.Advance(31 * time.Second)
	if err := cb.Allow(); err != nil {
		t.Fatal(err)
	}
	cb.RecordFailure()

	if cb.State() != CircuitOpen {
		t.Fatalf("expected open after failed probe, got %s", cb.State())
	}
	clock.Advance(10 * time.Second)
	if err := cb.Allow(); !errors.Is(err, domain.ErrCircuitOpen) {
		t.Fatalf("expected open interval to restart, got %v", err)
	}
}

func TestBreaker_AbandonedProbeCanBeRetried(t *testing.T) {
	clock := newFakeClock()
	cb := newTestBreaker(clock, 1, time.Minute, time.Second)

	cb.RecordFailure()
	clock.Advance(2 * time.Second)
	if err := cb.Allow(); err != nil {
		t.Fatal(err)
	}
	cb.Abandon()
	if err := cb.Allow(); err != nil {
		t.Fatalf("expected a new probe after abandon, got %v", err)
	}
}

func TestCircuitState_String(t *testing.T) {
	tests := map[CircuitState]string{
		CircuitClosed:    "closed",
		CircuitOpen:      "open",
		CircuitHalfOpen:  "half-open",
		CircuitState(99): "unknown",
	}
	for s, want := range tests {
		if got := s.String(); got != want {
			t.Errorf("%d.String() = %q, want %q", s, got, want)
		}
	}
}
