package domain

import "time"

// OperationState is the lifecycle state of a submitted operation.
type OperationState string

const (
	OperationStateQueued    OperationState = "queued"
	OperationStateRunning   OperationState = "running"
	OperationStateSucceeded OperationState = "succeeded"
	OperationStateFailed    OperationState = "failed"
	OperationStateCancelled OperationState = "cancelled"
)

// Terminal reports whether no further transition can happen.
func (s OperationState) Terminal() bool {
	switch s {
	case OperationStateSucceeded, OperationStateFailed, OperationStateCancelled:
		return true
	}
	return false
}

// ProgressKind identifies a ProgressEvent.
type ProgressKind string

const (
	ProgressQueued         ProgressKind = "queued"
	ProgressSpawn          ProgressKind = "spawn"
	ProgressStdout         ProgressKind = "stdout"
	ProgressStderr         ProgressKind = "stderr"
	ProgressPercent        ProgressKind = "progress"
	ProgressInlineProgress ProgressKind = "inline_progress"
	ProgressExit           ProgressKind = "exit"
	ProgressError          ProgressKind = "error"
	ProgressCancelled      ProgressKind = "cancelled"
)

// ProgressEvent is emitted by the runner and keyed by operation id.
type ProgressEvent struct {
	ID       string       `json:"id"`
	Kind     ProgressKind `json:"kind"`
	Message  string       `json:"message,omitempty"`
	Hash     string       `json:"hash,omitempty"`
	Percent  int          `json:"percent,omitempty"`
	ExitCode int          `json:"exit_code,omitempty"`
	Time     time.Time    `json:"time"`
}

// ProgressFunc receives events as an executor produces them.
type ProgressFunc func(ProgressEvent)
