package operations

import (
	"fmt"
	"slices"

	"github.com/compozy/stackops/internal/domain"
)

// RevertOperation restores files to their content in a revision, by default
// the working-copy parent.
type RevertOperation struct {
	domain.Base
	files []string
	rev   string
}

// NewRevert reverts files. rev may be empty.
func NewRevert(files []string, rev string, opts ...Option) (*RevertOperation, error) {
	if len(files) == 0 {
		return nil, fmt.Errorf("%w: revert needs at least one file", ErrInvalidParameter)
	}
	if err := ValidatePaths(files); err != nil {
		return nil, err
	}
	if rev != "" {
		if err := ValidateHash(rev); err != nil {
			return nil, err
		}
	}
	o := buildOptions(opts)
	return &RevertOperation{
		Base:  newBase("revert", domain.TrackRevert, o),
		files: slices.Clone(files),
		rev:   rev,
	}, nil
}

func (op *RevertOperation) Args() []domain.CommandArg {
	args := domain.Lits("revert")
	if op.rev != "" {
		args = append(args, domain.Lit("--rev"), domain.SucceedableRevset(op.rev))
	}
	return append(args, fileArgs(op.files)...)
}

func (op *RevertOperation) MakeOptimisticUncommittedChangesApplier(
	ctx domain.UncommittedChangesPreviewContext,
) domain.ApplyUncommittedChangesFunc {
	// Reverting to another revision may introduce changes we cannot predict.
	if op.rev != "" {
		return nil
	}
	return removeChangesApplier(ctx, op.files)
}
