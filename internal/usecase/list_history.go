package usecase

import (
	"context"
	"fmt"

	"github.com/samber/lo"

	"github.com/compozy/stackops/internal/domain"
	"github.com/compozy/stackops/internal/repository"
)

// ListHistoryUseCase returns recent operations, optionally filtered by state.
type ListHistoryUseCase struct {
	History repository.HistoryRepository
}

// Execute runs the use case.
func (uc *ListHistoryUseCase) Execute(
	ctx context.Context,
	limit int,
	states ...domain.OperationState,
) ([]*domain.OperationRecord, error) {
	if len(states) == 0 {
		records, err := uc.History.List(ctx, limit)
		if err != nil {
			return nil, fmt.Errorf("failed to list history: %w", err)
		}
		return records, nil
	}
	records, err := uc.History.List(ctx, 0)
	if err != nil {
		return nil, fmt.Errorf("failed to list history: %w", err)
	}
	records = lo.Filter(records, func(r *domain.OperationRecord, _ int) bool {
		return lo.Contains(states, r.State)
	})
	if limit > 0 && len(records) > limit {
		records = records[:limit]
	}
	return records, nil
}
