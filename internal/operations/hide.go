package operations

import (
	"github.com/compozy/stackops/internal/domain"
)

// HideOperation hides a commit and all of its descendants.
type HideOperation struct {
	domain.Base
	hash string
}

// NewHide hides hash and its descendants.
func NewHide(hash string, opts ...Option) (*HideOperation, error) {
	if err := ValidateHash(hash); err != nil {
		return nil, err
	}
	o := buildOptions(opts)
	return &HideOperation{
		Base: newBase("hide", domain.TrackHide, o),
		hash: hash,
	}, nil
}

func (op *HideOperation) Args() []domain.CommandArg {
	return []domain.CommandArg{
		domain.Lit("hide"), domain.Lit("--rev"), domain.SucceedableRevset(op.hash),
	}
}

func (op *HideOperation) InitialInlineProgress() []domain.InlineProgress {
	return []domain.InlineProgress{{Hash: op.hash, Message: "hiding..."}}
}

func (op *HideOperation) PreviewDag(dag domain.Dag) domain.Dag {
	root := dag.Resolve(op.hash)
	if !dag.Has(root) {
		return dag
	}
	return dag.Mark(domain.PreviewHiddenRoot, root).
		Mark(domain.PreviewHiddenDescendant, dag.Descendants(root)...)
}

func (op *HideOperation) OptimisticDag(dag domain.Dag) domain.Dag {
	root := dag.Resolve(op.hash)
	c, ok := dag.Get(root)
	if !ok {
		return dag
	}
	hidden := append([]string{root}, dag.Descendants(root)...)
	out := dag.Remove(hidden...)
	// The working copy moves to the first surviving parent when its commit is hidden.
	if dot, ok := dag.Dot(); ok && !out.Has(dot.Hash) && len(c.Parents) > 0 {
		out = out.SetDot(c.Parents[0])
	}
	return out
}
