package operations

import (
	"github.com/compozy/stackops/internal/domain"
)

// PullOperation fetches new commits from the default remote. Its effect is
// unknown until the refresh, so it projects nothing.
type PullOperation struct {
	domain.Base
}

func NewPull(opts ...Option) *PullOperation {
	o := buildOptions(opts)
	return &PullOperation{Base: newBase("pull", domain.TrackPull, o)}
}

func (op *PullOperation) Args() []domain.CommandArg { return domain.Lits("pull") }

func (op *PullOperation) DescriptionForDisplay() *domain.OperationDescription {
	return &domain.OperationDescription{Description: "pull latest commits"}
}
