package operations

import (
	"slices"

	"github.com/compozy/stackops/internal/domain"
)

// AmendOperation folds working-copy changes, and optionally a new message,
// into the working-copy parent.
type AmendOperation struct {
	domain.Base
	target  string
	message string
	files   []string
}

// NewAmend amends target, which must be the working-copy parent when the
// command runs. An empty message keeps the existing one.
func NewAmend(target, message string, files []string, opts ...Option) (*AmendOperation, error) {
	if err := ValidateHash(target); err != nil {
		return nil, err
	}
	if err := ValidatePaths(files); err != nil {
		return nil, err
	}
	o := buildOptions(opts)
	return &AmendOperation{
		Base:    newBase("amend", domain.TrackAmend, o),
		target:  target,
		message: message,
		files:   slices.Clone(files),
	}, nil
}

func (op *AmendOperation) Args() []domain.CommandArg {
	args := domain.Lits("amend", "--addremove")
	if op.message != "" {
		args = append(args, domain.Lits("--message", op.message)...)
	}
	return append(args, fileArgs(op.files)...)
}

// Target is the commit being amended.
func (op *AmendOperation) Target() string { return op.target }

// OptimisticHash is the placeholder identity of the amended commit.
func (op *AmendOperation) OptimisticHash() string {
	return domain.OptimisticPrefix + "AMEND_" + op.target
}

func (op *AmendOperation) InitialInlineProgress() []domain.InlineProgress {
	return []domain.InlineProgress{{Hash: op.target, Message: "amending..."}}
}

func (op *AmendOperation) OptimisticDag(dag domain.Dag) domain.Dag {
	current := dag.Resolve(op.target)
	if current == op.OptimisticHash() {
		return dag
	}
	c, ok := dag.Get(current)
	if !ok {
		return dag
	}
	c.Hash = op.OptimisticHash()
	if op.message != "" {
		c.Title, c.Description = splitMessage(op.message)
	}
	c.Optimistic = true
	c.PreviewType = domain.PreviewOptimistic
	return dag.Replace(current, c)
}

func (op *AmendOperation) MakeOptimisticUncommittedChangesApplier(
	ctx domain.UncommittedChangesPreviewContext,
) domain.ApplyUncommittedChangesFunc {
	return removeChangesApplier(ctx, op.files)
}
