// Package preview composes the speculative effects of operations on top of
// the authoritative repository state.
package preview

import (
	"go.uber.org/zap"

	"github.com/compozy/stackops/internal/domain"
)

// FoldDag applies each operation's optimistic projection in queue order. Each
// projection sees the graph already transformed by the operations before it.
func FoldDag(logger *zap.Logger, base domain.Dag, ops []domain.Operation) domain.Dag {
	dag := base
	for _, op := range ops {
		dag = applyDag(logger, op, "optimistic", op.OptimisticDag, dag)
	}
	return dag
}

// PreviewDag applies op's preview projection to the raw base graph. A nil op
// leaves base untouched.
func PreviewDag(logger *zap.Logger, base domain.Dag, op domain.Operation) domain.Dag {
	if op == nil {
		return base
	}
	return applyDag(logger, op, "preview", op.PreviewDag, base)
}

// FoldUncommittedChanges applies each operation's uncommitted-changes applier
// in queue order. Appliers are rebuilt from the current folded state on every
// call.
func FoldUncommittedChanges(
	logger *zap.Logger,
	base domain.UncommittedChanges,
	ops []domain.Operation,
) domain.UncommittedChanges {
	state := base.Clone()
	for _, op := range ops {
		state = guard(logger, op, "uncommitted_changes", state, func() domain.UncommittedChanges {
			apply := op.MakeOptimisticUncommittedChangesApplier(
				domain.UncommittedChangesPreviewContext{UncommittedChanges: state.Clone()},
			)
			if apply == nil {
				return state
			}
			return apply(state.Clone())
		})
	}
	return state
}

// FoldMergeConflicts applies each operation's merge-conflict applier in
// queue order.
func FoldMergeConflicts(
	logger *zap.Logger,
	base *domain.MergeConflicts,
	ops []domain.Operation,
) *domain.MergeConflicts {
	state := base.Clone()
	for _, op := range ops {
		state = guard(logger, op, "merge_conflicts", state, func() *domain.MergeConflicts {
			apply := op.MakeOptimisticMergeConflictsApplier(
				domain.MergeConflictsPreviewContext{Conflicts: state.Clone()},
			)
			if apply == nil {
				return state
			}
			return apply(state.Clone())
		})
	}
	return state
}

func applyDag(
	logger *zap.Logger,
	op domain.Operation,
	phase string,
	fn func(domain.Dag) domain.Dag,
	in domain.Dag,
) domain.Dag {
	return guard(logger, op, phase, in, func() domain.Dag { return fn(in) })
}

// guard runs fn and falls back to in when the projection panics, so a broken
// projection costs the operation its speculative effect and nothing else.
func guard[T any](logger *zap.Logger, op domain.Operation, phase string, in T, fn func() T) (out T) {
	defer func() {
		if r := recover(); r != nil {
			if logger == nil {
				logger = zap.NewNop()
			}
			logger.Warn("projection failed, showing state without it",
				zap.String("operation", domain.OpName(op)),
				zap.String("operation_id", op.ID()),
				zap.String("phase", phase),
				zap.Any("panic", r),
			)
			out = in
		}
	}()
	return fn()
}
