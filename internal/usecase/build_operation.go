package usecase

import (
	"fmt"
	"slices"

	"github.com/compozy/stackops/internal/domain"
	"github.com/compozy/stackops/internal/operations"
)

// Operation kinds accepted by BuildOperationUseCase.
const (
	KindCommit   = "commit"
	KindAmend    = "amend"
	KindRebase   = "rebase"
	KindGoto     = "goto"
	KindHide     = "hide"
	KindDiscard  = "discard"
	KindRevert   = "revert"
	KindResolve  = "resolve"
	KindContinue = "continue"
	KindAbort    = "abort"
	KindPull     = "pull"
)

// Kinds lists every operation kind in display order.
var Kinds = []string{
	KindCommit, KindAmend, KindRebase, KindGoto, KindHide, KindDiscard,
	KindRevert, KindResolve, KindContinue, KindAbort, KindPull,
}

// OperationParams carries the user input for any operation kind. Each kind
// reads only the fields it needs.
type OperationParams struct {
	Message     string
	Files       []string
	Target      string
	Source      string
	Destination string
	Rev         string
	Path        string
	Mode        string
	ToAbort     string
	Runner      domain.CommandRunner
}

// BuildOperationUseCase turns a kind and its parameters into an operation.
// Missing targets default from the snapshot: amend uses the working-copy
// parent and abort uses the command reported with the conflicts.
type BuildOperationUseCase struct {
	Snapshot domain.Snapshot
	Options  []operations.Option
}

// Execute runs the use case.
func (uc *BuildOperationUseCase) Execute(kind string, p OperationParams) (domain.Operation, error) {
	opts := slices.Clone(uc.Options)
	if p.Runner != "" {
		opts = append(opts, operations.WithRunner(p.Runner))
	}
	switch kind {
	case KindCommit:
		return operations.NewCommit(p.Message, p.Files, opts...)
	case KindAmend:
		target := p.Target
		if target == "" {
			dot, ok := uc.Snapshot.Dag.Dot()
			if !ok {
				return nil, fmt.Errorf("%w: no working-copy parent to amend", operations.ErrInvalidParameter)
			}
			target = dot.Hash
		}
		return operations.NewAmend(target, p.Message, p.Files, opts...)
	case KindRebase:
		return operations.NewRebase(p.Source, p.Destination, opts...)
	case KindGoto:
		return operations.NewGoto(p.Destination, opts...)
	case KindHide:
		return operations.NewHide(p.Target, opts...)
	case KindDiscard:
		return operations.NewDiscard(opts...), nil
	case KindRevert:
		return operations.NewRevert(p.Files, p.Rev, opts...)
	case KindResolve:
		mode := operations.ResolveMode(p.Mode)
		if mode == "" {
			mode = operations.ResolveMark
		}
		return operations.NewResolve(p.Path, mode, opts...)
	case KindContinue:
		return operations.NewContinue(opts...), nil
	case KindAbort:
		toAbort := p.ToAbort
		if toAbort == "" && uc.Snapshot.MergeConflicts != nil {
			toAbort = uc.Snapshot.MergeConflicts.ToAbort
		}
		return operations.NewAbortMerge(toAbort, opts...)
	case KindPull:
		return operations.NewPull(opts...), nil
	}
	return nil, fmt.Errorf("%w: unknown operation kind %q", operations.ErrInvalidParameter, kind)
}
