package operations

import (
	"fmt"
	"slices"

	"github.com/compozy/stackops/internal/domain"
)

// RebaseOperation moves a commit and its descendants onto a new parent.
type RebaseOperation struct {
	domain.Base
	source      string
	destination string
}

// NewRebase rebases source (with descendants) onto destination.
func NewRebase(source, destination string, opts ...Option) (*RebaseOperation, error) {
	if err := ValidateHash(source); err != nil {
		return nil, fmt.Errorf("invalid source: %w", err)
	}
	if err := ValidateHash(destination); err != nil {
		return nil, fmt.Errorf("invalid destination: %w", err)
	}
	if source == destination {
		return nil, fmt.Errorf("%w: cannot rebase %s onto itself", ErrInvalidParameter, source)
	}
	o := buildOptions(opts)
	return &RebaseOperation{
		Base:        newBase("rebase", domain.TrackRebase, o),
		source:      source,
		destination: destination,
	}, nil
}

func (op *RebaseOperation) Args() []domain.CommandArg {
	return []domain.CommandArg{
		domain.Lit("rebase"),
		domain.Lit("-s"), domain.SucceedableRevset(op.source),
		domain.Lit("-d"), domain.SucceedableRevset(op.destination),
	}
}

func (op *RebaseOperation) Source() string      { return op.source }
func (op *RebaseOperation) Destination() string { return op.destination }

func (op *RebaseOperation) InitialInlineProgress() []domain.InlineProgress {
	return []domain.InlineProgress{{Hash: op.source, Message: "rebasing..."}}
}

func (op *RebaseOperation) PreviewDag(dag domain.Dag) domain.Dag {
	return op.project(dag, domain.PreviewRebaseRoot)
}

func (op *RebaseOperation) OptimisticDag(dag domain.Dag) domain.Dag {
	return op.project(dag, domain.PreviewRebaseOptimisticRoot)
}

// project resolves both ends through recorded successors, so a rebase queued
// behind an amend targets the amended commit.
func (op *RebaseOperation) project(dag domain.Dag, mark domain.PreviewType) domain.Dag {
	src := dag.Resolve(op.source)
	dest := dag.Resolve(op.destination)
	if !dag.Has(src) || !dag.Has(dest) || src == dest {
		return dag
	}
	if slices.Contains(dag.Descendants(src), dest) {
		return dag
	}
	return dag.Rebase(src, dest).Mark(mark, src)
}
