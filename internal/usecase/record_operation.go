package usecase

import (
	"context"
	"errors"
	"fmt"

	"github.com/compozy/stackops/internal/domain"
	"github.com/compozy/stackops/internal/preview"
	"github.com/compozy/stackops/internal/repository"
)

// RecordOperationUseCase persists a finished operation to the history and
// trims old entries.
type RecordOperationUseCase struct {
	History repository.HistoryRepository
	// Keep bounds the history size. Zero keeps everything.
	Keep int
}

// Execute runs the use case.
func (uc *RecordOperationUseCase) Execute(ctx context.Context, entry preview.Entry) (*domain.OperationRecord, error) {
	if !entry.State.Terminal() {
		return nil, fmt.Errorf("operation %s is still %s", entry.Operation.ID(), entry.State)
	}
	record := domain.NewOperationRecord(entry.Operation, entry.QueuedAt)
	if !entry.StartedAt.IsZero() {
		record.MarkStarted(entry.StartedAt)
	}
	var runErr error
	if entry.Error != "" {
		runErr = errors.New(entry.Error)
	}
	record.MarkFinished(entry.State, entry.EndedAt, entry.ExitCode, runErr)
	if err := uc.History.Save(ctx, record); err != nil {
		return nil, fmt.Errorf("failed to save operation record: %w", err)
	}
	if uc.Keep > 0 {
		if _, err := uc.History.Prune(ctx, uc.Keep); err != nil {
			return record, fmt.Errorf("failed to prune history: %w", err)
		}
	}
	return record, nil
}
