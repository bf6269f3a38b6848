package usecase

import (
	"context"
	"fmt"

	"github.com/compozy/stackops/internal/domain"
	"github.com/compozy/stackops/internal/preview"
	"github.com/compozy/stackops/internal/repository"
)

// RefreshSnapshotUseCase reads the repository and reconciles tracked
// operations against what it found.
type RefreshSnapshotUseCase struct {
	GitRepo   repository.GitRepository
	Projector *preview.Projector
	DagLimit  int
}

// Execute runs the use case.
func (uc *RefreshSnapshotUseCase) Execute(ctx context.Context) (domain.Snapshot, preview.View, error) {
	snap, err := uc.GitRepo.Snapshot(ctx, uc.DagLimit)
	if err != nil {
		return domain.Snapshot{}, preview.View{}, fmt.Errorf("failed to read repository: %w", err)
	}
	return snap, uc.Projector.Apply(snap), nil
}
