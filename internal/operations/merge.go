package operations

import (
	"fmt"
	"slices"
	"strings"

	"github.com/compozy/stackops/internal/domain"
)

// ContinueOperation resumes the command that stopped on merge conflicts.
type ContinueOperation struct {
	domain.Base
}

func NewContinue(opts ...Option) *ContinueOperation {
	o := buildOptions(opts)
	return &ContinueOperation{Base: newBase("continue", domain.TrackContinue, o)}
}

func (op *ContinueOperation) Args() []domain.CommandArg { return domain.Lits("continue") }

// The conflict view disappears once every file is resolved and the command
// continues.
func (op *ContinueOperation) MakeOptimisticMergeConflictsApplier(
	ctx domain.MergeConflictsPreviewContext,
) domain.ApplyMergeConflictsFunc {
	if ctx.Conflicts == nil || !ctx.Conflicts.Resolved() {
		return nil
	}
	return clearConflicts
}

// AbortMergeOperation abandons the command that stopped on merge conflicts.
type AbortMergeOperation struct {
	domain.Base
	command []string
}

// DefaultAbortCommand is used when the conflict state does not say how to abort.
const DefaultAbortCommand = "rebase --abort"

// NewAbortMerge aborts using toAbort, the command reported alongside the
// conflicts (e.g. "rebase --abort"). An empty toAbort uses DefaultAbortCommand.
func NewAbortMerge(toAbort string, opts ...Option) (*AbortMergeOperation, error) {
	if toAbort == "" {
		toAbort = DefaultAbortCommand
	}
	fields := strings.Fields(toAbort)
	for _, f := range fields {
		if strings.ContainsAny(f, ";&|`$<>") {
			return nil, fmt.Errorf("%w: invalid abort command %q", ErrInvalidParameter, toAbort)
		}
	}
	o := buildOptions(opts)
	return &AbortMergeOperation{
		Base:    newBase("abort", domain.TrackAbortMerge, o),
		command: fields,
	}, nil
}

func (op *AbortMergeOperation) Args() []domain.CommandArg { return domain.Lits(op.command...) }

func (op *AbortMergeOperation) MakeOptimisticMergeConflictsApplier(
	ctx domain.MergeConflictsPreviewContext,
) domain.ApplyMergeConflictsFunc {
	if ctx.Conflicts == nil {
		return nil
	}
	return clearConflicts
}

// Files left in conflict by the interrupted command return to their prior
// state.
func (op *AbortMergeOperation) MakeOptimisticUncommittedChangesApplier(
	ctx domain.UncommittedChangesPreviewContext,
) domain.ApplyUncommittedChangesFunc {
	if !slices.ContainsFunc(ctx.UncommittedChanges, conflicted) {
		return nil
	}
	return func(changes domain.UncommittedChanges) domain.UncommittedChanges {
		out := domain.UncommittedChanges{}
		for _, f := range changes {
			if !conflicted(f) {
				out = append(out, f)
			}
		}
		return out
	}
}

func conflicted(f domain.ChangedFile) bool {
	return f.Status == domain.FileUnresolved || f.Status == domain.FileResolved
}

func clearConflicts(*domain.MergeConflicts) *domain.MergeConflicts { return nil }
