package runlog

import "time"

// Status is the lifecycle state of a run.
type Status string

const (
	StatusRunning Status = "running"
	StatusSuccess Status = "success"
	StatusPartial Status = "partial"
	StatusFailed  Status = "failed"
)

// InterruptedReason is recorded on runs that never reached a terminal state.
const InterruptedReason = "interrupted before completion"

// Terminal reports whether the status ends a run.
func (s Status) Terminal() bool {
	switch s {
	case StatusSuccess, StatusPartial, StatusFailed:
		return true
	}
	return false
}

// Run is one pipeline invocation.
type Run struct {
	ID           string
	EpisodeID    string
	Status       Status
	Stage        string
	IssueCount   int
	ErrorMessage string
	ReportPath   string
	StartedAt    time.Time
	UpdatedAt    time.Time
	FinishedAt   *time.Time
}

// Duration is the wall time of a finished run, or zero while running.
func (r *Run) Duration() time.Duration {
	if r == nil || r.FinishedAt == nil {
		return 0
	}
	return r.FinishedAt.Sub(r.StartedAt)
}

// Event records a stage transition.
type Event struct {
	ID        int64
	RunID     string
	Stage     string
	Outcome   string
	Detail    string
	CreatedAt time.Time
}

// Outcome values for stage events.
const (
	OutcomeStarted   = "started"
	OutcomeOK        = "ok"
	OutcomeRecovered = "recovered"
	OutcomeFailed    = "failed"
)
