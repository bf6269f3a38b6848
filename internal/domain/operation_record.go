package domain

import (
	"time"
)

// OperationRecord is the persisted history entry of a finished operation.
type OperationRecord struct {
	ID             string         `json:"id"`
	Name           string         `json:"name"`
	Description    string         `json:"description"`
	Runner         CommandRunner  `json:"runner"`
	TrackEventName TrackEventName `json:"track_event_name"`
	State          OperationState `json:"state"`
	QueuedAt       time.Time      `json:"queued_at"`
	StartedAt      *time.Time     `json:"started_at,omitempty"`
	CompletedAt    *time.Time     `json:"completed_at,omitempty"`
	ExitCode       int            `json:"exit_code"`
	Error          string         `json:"error,omitempty"`
}

// NewOperationRecord creates a queued record for op.
func NewOperationRecord(op Operation, queuedAt time.Time) *OperationRecord {
	return &OperationRecord{
		ID:             op.ID(),
		Name:           op.Name(),
		Description:    Describe(op).Description,
		Runner:         op.Runner(),
		TrackEventName: op.TrackEventName(),
		State:          OperationStateQueued,
		QueuedAt:       queuedAt,
	}
}

// MarkStarted marks the record as running.
func (r *OperationRecord) MarkStarted(at time.Time) {
	r.State = OperationStateRunning
	r.StartedAt = &at
}

// MarkFinished records a terminal state.
func (r *OperationRecord) MarkFinished(state OperationState, at time.Time, exitCode int, err error) {
	r.State = state
	r.CompletedAt = &at
	r.ExitCode = exitCode
	if err != nil {
		r.Error = err.Error()
	}
}

// Duration returns how long the operation ran, or zero if it never started
// or has not finished.
func (r *OperationRecord) Duration() time.Duration {
	if r.StartedAt == nil || r.CompletedAt == nil {
		return 0
	}
	return r.CompletedAt.Sub(*r.StartedAt)
}
