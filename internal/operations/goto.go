package operations

import (
	"github.com/compozy/stackops/internal/domain"
)

// GotoOperation updates the working copy to another commit.
type GotoOperation struct {
	domain.Base
	destination string
}

// NewGoto checks out destination.
func NewGoto(destination string, opts ...Option) (*GotoOperation, error) {
	if err := ValidateHash(destination); err != nil {
		return nil, err
	}
	o := buildOptions(opts)
	return &GotoOperation{
		Base:        newBase("goto", domain.TrackGoto, o),
		destination: destination,
	}, nil
}

func (op *GotoOperation) Args() []domain.CommandArg {
	return []domain.CommandArg{
		domain.Lit("goto"), domain.Lit("--rev"), domain.SucceedableRevset(op.destination),
	}
}

func (op *GotoOperation) Destination() string { return op.destination }

func (op *GotoOperation) InitialInlineProgress() []domain.InlineProgress {
	return []domain.InlineProgress{{Hash: op.destination, Message: "moving..."}}
}

func (op *GotoOperation) PreviewDag(dag domain.Dag) domain.Dag {
	dest := dag.Resolve(op.destination)
	if !dag.Has(dest) {
		return dag
	}
	out := dag.Mark(domain.PreviewGotoDestination, dest)
	if dot, ok := dag.Dot(); ok && dot.Hash != dest {
		out = out.Mark(domain.PreviewGotoPrevious, dot.Hash)
	}
	return out
}

func (op *GotoOperation) OptimisticDag(dag domain.Dag) domain.Dag {
	return dag.SetDot(dag.Resolve(op.destination))
}
