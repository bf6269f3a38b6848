package domain

import (
	"slices"

	"github.com/google/uuid"
)

// OptimisticPrefix prefixes hashes invented by optimistic projections.
const OptimisticPrefix = "OPTIMISTIC_"

// CommandRunner selects which executor handles an operation.
type CommandRunner string

const (
	// RunnerPrimary spawns the configured source-control tool.
	RunnerPrimary CommandRunner = "primary"
	// RunnerInternal runs the operation in-process against the working copy.
	RunnerInternal CommandRunner = "internal"
)

// TrackEventName tags an operation kind for telemetry.
type TrackEventName string

const (
	TrackCommit     TrackEventName = "CommitOperation"
	TrackAmend      TrackEventName = "AmendOperation"
	TrackRebase     TrackEventName = "RebaseOperation"
	TrackGoto       TrackEventName = "GotoOperation"
	TrackHide       TrackEventName = "HideOperation"
	TrackDiscard    TrackEventName = "DiscardOperation"
	TrackRevert     TrackEventName = "RevertOperation"
	TrackResolve    TrackEventName = "ResolveOperation"
	TrackContinue   TrackEventName = "ContinueOperation"
	TrackAbortMerge TrackEventName = "AbortMergeOperation"
	TrackPull       TrackEventName = "PullOperation"
)

// IDGenerator produces process-unique operation ids.
type IDGenerator func() string

// DefaultIDGenerator returns random UUIDs.
func DefaultIDGenerator() string { return uuid.NewString() }

// InlineProgress is a progress label shown next to a commit.
type InlineProgress struct {
	Hash    string `json:"hash"`
	Message string `json:"message"`
}

// OperationDescription overrides how an operation is shown.
type OperationDescription struct {
	// Description replaces the argument-derived summary when set.
	Description string `json:"description,omitempty"`
	// Tooltip replaces the command shown in the output tooltip. Setting it
	// also signals that output lines may be structured data (JSON).
	Tooltip string `json:"tooltip,omitempty"`
}

// StructuredOutput reports whether output should be rendered as data.
func (d OperationDescription) StructuredOutput() bool { return d.Tooltip != "" }

// Operation is a mutating command against the repository together with its
// speculative effects. Embed Base to get the neutral defaults and implement
// Args; override any hook the operation needs.
type Operation interface {
	ID() string
	// Name is the per-kind name, e.g. "rebase". It is shared by every
	// instance of a kind, unlike ID.
	Name() string
	TrackEventName() TrackEventName
	Runner() CommandRunner

	// Args must be deterministic and must not fail; validation belongs in
	// the constructor.
	Args() []CommandArg
	Stdin() (string, bool)
	DescriptionForDisplay() *OperationDescription
	// InitialInlineProgress seeds per-commit progress labels the moment the
	// operation starts running.
	InitialInlineProgress() []InlineProgress

	MakeOptimisticUncommittedChangesApplier(ctx UncommittedChangesPreviewContext) ApplyUncommittedChangesFunc
	MakeOptimisticMergeConflictsApplier(ctx MergeConflictsPreviewContext) ApplyMergeConflictsFunc

	// PreviewDag shows the anticipated result before the user confirms.
	PreviewDag(dag Dag) Dag
	// OptimisticDag shows the anticipated result while queued or running.
	OptimisticDag(dag Dag) Dag
}

// Base carries the identity of an operation and the default hooks.
type Base struct {
	id     string
	name   string
	event  TrackEventName
	runner CommandRunner
}

// NewBase creates the shared part of an operation. A nil gen falls back to
// DefaultIDGenerator.
func NewBase(name string, event TrackEventName, runner CommandRunner, gen IDGenerator) Base {
	if gen == nil {
		gen = DefaultIDGenerator
	}
	if runner == "" {
		runner = RunnerPrimary
	}
	return Base{id: gen(), name: name, event: event, runner: runner}
}

func (b Base) ID() string                     { return b.id }
func (b Base) Name() string                   { return b.name }
func (b Base) TrackEventName() TrackEventName { return b.event }
func (b Base) Runner() CommandRunner          { return b.runner }

func (Base) Stdin() (string, bool)                        { return "", false }
func (Base) DescriptionForDisplay() *OperationDescription { return nil }
func (Base) InitialInlineProgress() []InlineProgress      { return nil }

func (Base) MakeOptimisticUncommittedChangesApplier(UncommittedChangesPreviewContext) ApplyUncommittedChangesFunc {
	return nil
}

func (Base) MakeOptimisticMergeConflictsApplier(MergeConflictsPreviewContext) ApplyMergeConflictsFunc {
	return nil
}

func (Base) PreviewDag(dag Dag) Dag    { return dag }
func (Base) OptimisticDag(dag Dag) Dag { return dag }

// RunnableOperation is the frozen descriptor handed to the queue.
type RunnableOperation struct {
	ID             string         `json:"id"`
	Args           []CommandArg   `json:"args"`
	Stdin          *string        `json:"stdin,omitempty"`
	Runner         CommandRunner  `json:"runner"`
	TrackEventName TrackEventName `json:"track_event_name"`
}

// ToRunnable freezes op into a descriptor. Later changes to op do not affect
// the returned value.
func ToRunnable(op Operation) RunnableOperation {
	r := RunnableOperation{
		ID:             op.ID(),
		Args:           slices.Clone(op.Args()),
		Runner:         op.Runner(),
		TrackEventName: op.TrackEventName(),
	}
	if stdin, ok := op.Stdin(); ok {
		r.Stdin = &stdin
	}
	return r
}

// OpName returns the per-kind name of op.
func OpName(op Operation) string { return op.Name() }

// Describe returns the display description of op, deriving it from the
// arguments when the operation has no override.
func Describe(op Operation) OperationDescription {
	if d := op.DescriptionForDisplay(); d != nil {
		out := *d
		if out.Description == "" {
			out.Description = DescribeArgs(op.Args())
		}
		return out
	}
	return OperationDescription{Description: DescribeArgs(op.Args())}
}
