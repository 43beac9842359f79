package domain

import (
	"fmt"
	"time"
)

// JobState is a MatchJob lifecycle state.
type JobState string

// Job states. Completed, Failed, Cancelled and TimedOut are terminal.
const (
	JobPending   JobState = "pending"
	JobRunning   JobState = "running"
	JobCompleted JobState = "completed"
	JobFailed    JobState = "failed"
	JobCancelled JobState = "cancelled"
	JobTimedOut  JobState = "timed_out"
)

// Terminal reports whether no transition can leave the state.
func (s JobState) Terminal() bool {
	switch s {
	case JobCompleted, JobFailed, JobCancelled, JobTimedOut:
		return true
	default:
		return false
	}
}

// CanTransition reports whether s -> to is legal.
func (s JobState) CanTransition(to JobState) bool {
	switch s {
	case JobPending:
		return to == JobRunning || to == JobCancelled
	case JobRunning:
		return to.Terminal()
	default:
		return false
	}
}

// MatchJob is the orchestration record of one matching run.
type MatchJob struct {
	ID            string     `json:"id"`
	TenantID      string     `json:"tenant_id"`
	FundID        string     `json:"fund_id"`
	FundVersion   int        `json:"fund_version"`
	CorpusVersion uint64     `json:"corpus_version"`
	WeightsHash   string     `json:"weights_hash"`
	State         JobState   `json:"state"`
	Reason        string     `json:"reason,omitempty"`
	CacheHit      bool       `json:"cache_hit,omitempty"`
	Candidates    int        `json:"candidates"`
	Excluded      int        `json:"excluded"`
	SubmittedAt   time.Time  `json:"submitted_at"`
	StartedAt     *time.Time `json:"started_at,omitempty"`
	FinishedAt    *time.Time `json:"finished_at,omitempty"`
}

// Transition moves the job to a new state, stamping timestamps.
func (j *MatchJob) Transition(to JobState, reason string, now time.Time) error {
	if !j.State.CanTransition(to) {
		return fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, j.State, to)
	}
	j.State = to
	j.Reason = reason
	switch {
	case to == JobRunning:
		j.StartedAt = &now
	case to.Terminal():
		j.FinishedAt = &now
	}
	return nil
}
