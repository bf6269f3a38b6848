package operations

import (
	"slices"
	"strings"
	"time"

	"github.com/compozy/stackops/internal/domain"
)

// CommitOperation creates a new commit on top of the working-copy parent.
type CommitOperation struct {
	domain.Base
	message   string
	files     []string
	createdAt time.Time
}

// NewCommit commits files, or every change when files is empty.
func NewCommit(message string, files []string, opts ...Option) (*CommitOperation, error) {
	if err := ValidateMessage(message); err != nil {
		return nil, err
	}
	if err := ValidatePaths(files); err != nil {
		return nil, err
	}
	o := buildOptions(opts)
	return &CommitOperation{
		Base:      newBase("commit", domain.TrackCommit, o),
		message:   message,
		files:     slices.Clone(files),
		createdAt: o.now(),
	}, nil
}

// Multi-line messages are piped through stdin so they survive intact.
func (op *CommitOperation) multiline() bool { return strings.Contains(op.message, "\n") }

func (op *CommitOperation) Args() []domain.CommandArg {
	args := domain.Lits("commit", "--addremove")
	if op.multiline() {
		args = append(args, domain.Lits("--logfile", "-")...)
	} else {
		args = append(args, domain.Lits("--message", op.message)...)
	}
	return append(args, fileArgs(op.files)...)
}

func (op *CommitOperation) Stdin() (string, bool) {
	if op.multiline() {
		return op.message, true
	}
	return "", false
}

// OptimisticHash is the placeholder hash of the commit being created.
func (op *CommitOperation) OptimisticHash() string {
	return domain.OptimisticPrefix + "COMMIT_" + op.ID()
}

func (op *CommitOperation) PreviewDag(dag domain.Dag) domain.Dag { return op.OptimisticDag(dag) }

func (op *CommitOperation) OptimisticDag(dag domain.Dag) domain.Dag {
	hash := op.OptimisticHash()
	if dag.Has(hash) {
		return dag
	}
	dot, ok := dag.Dot()
	if !ok {
		return dag
	}
	title, description := splitMessage(op.message)
	return dag.Add(domain.CommitInfo{
		Hash:        hash,
		Parents:     []string{dot.Hash},
		Title:       title,
		Description: description,
		Author:      dot.Author,
		Date:        op.createdAt,
		Phase:       domain.PhaseDraft,
		Optimistic:  true,
		PreviewType: domain.PreviewOptimistic,
	}).SetDot(hash)
}

func (op *CommitOperation) MakeOptimisticUncommittedChangesApplier(
	ctx domain.UncommittedChangesPreviewContext,
) domain.ApplyUncommittedChangesFunc {
	return removeChangesApplier(ctx, op.files)
}

// removeChangesApplier drops files (or all changes when files is empty) from
// the uncommitted view. It returns nil once none of them are left, which is
// how the projection retires itself after a refresh shows the real result.
func removeChangesApplier(
	ctx domain.UncommittedChangesPreviewContext,
	files []string,
) domain.ApplyUncommittedChangesFunc {
	if len(files) == 0 {
		if len(ctx.UncommittedChanges) == 0 {
			return nil
		}
		return func(domain.UncommittedChanges) domain.UncommittedChanges {
			return domain.UncommittedChanges{}
		}
	}
	if !slices.ContainsFunc(files, ctx.UncommittedChanges.Contains) {
		return nil
	}
	files = slices.Clone(files)
	return func(changes domain.UncommittedChanges) domain.UncommittedChanges {
		return changes.Without(files...)
	}
}
