package operations

import (
	"slices"

	"github.com/compozy/stackops/internal/domain"
)

// DiscardOperation throws away all tracked uncommitted changes. Untracked
// files are kept.
type DiscardOperation struct {
	domain.Base
}

func NewDiscard(opts ...Option) *DiscardOperation {
	o := buildOptions(opts)
	return &DiscardOperation{Base: newBase("discard", domain.TrackDiscard, o)}
}

func (op *DiscardOperation) Args() []domain.CommandArg {
	return domain.Lits("goto", "--clean", ".")
}

func (op *DiscardOperation) MakeOptimisticUncommittedChangesApplier(
	ctx domain.UncommittedChangesPreviewContext,
) domain.ApplyUncommittedChangesFunc {
	tracked := func(f domain.ChangedFile) bool { return f.Status != domain.FileUntracked }
	if !slices.ContainsFunc(ctx.UncommittedChanges, tracked) {
		return nil
	}
	return func(changes domain.UncommittedChanges) domain.UncommittedChanges {
		out := domain.UncommittedChanges{}
		for _, f := range changes {
			if !tracked(f) {
				out = append(out, f)
			}
		}
		return out
	}
}
