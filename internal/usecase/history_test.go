package usecase

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/compozy/stackops/internal/domain"
	"github.com/compozy/stackops/internal/operations"
	"github.com/compozy/stackops/internal/preview"
)

// Mock for HistoryRepository
type mockHistoryRepository struct {
	mock.Mock
}

func (m *mockHistoryRepository) Save(ctx context.Context, record *domain.OperationRecord) error {
	args := m.Called(ctx, record)
	return args.Error(0)
}

func (m *mockHistoryRepository) Load(ctx context.Context, id string) (*domain.OperationRecord, error) {
	args := m.Called(ctx, id)
	if r := args.Get(0); r != nil {
		return r.(*domain.OperationRecord), args.Error(1)
	}
	return nil, args.Error(1)
}

func (m *mockHistoryRepository) LoadLatest(ctx context.Context) (*domain.OperationRecord, error) {
	args := m.Called(ctx)
	if r := args.Get(0); r != nil {
		return r.(*domain.OperationRecord), args.Error(1)
	}
	return nil, args.Error(1)
}

func (m *mockHistoryRepository) List(ctx context.Context, limit int) ([]*domain.OperationRecord, error) {
	args := m.Called(ctx, limit)
	if r := args.Get(0); r != nil {
		return r.([]*domain.OperationRecord), args.Error(1)
	}
	return nil, args.Error(1)
}

func (m *mockHistoryRepository) Prune(ctx context.Context, keep int) (int, error) {
	args := m.Called(ctx, keep)
	return args.Int(0), args.Error(1)
}

func finishedEntry(t *testing.T) preview.Entry {
	t.Helper()
	op, err := operations.NewGoto("abc123", operations.WithIDGenerator(func() string { return "op-1" }))
	require.NoError(t, err)
	queued := time.Date(2024, 1, 1, 10, 0, 0, 0, time.UTC)
	return preview.Entry{
		Operation: op,
		State:     domain.OperationStateFailed,
		QueuedAt:  queued,
		StartedAt: queued.Add(time.Second),
		EndedAt:   queued.Add(3 * time.Second),
		ExitCode:  255,
		Error:     "exited with code 255",
	}
}

func TestRecordOperationUseCase(t *testing.T) {
	ctx := context.Background()

	t.Run("Should save a record of the finished operation", func(t *testing.T) {
		// Arrange
		history := new(mockHistoryRepository)
		history.On("Save", ctx, mock.MatchedBy(func(r *domain.OperationRecord) bool {
			return r.ID == "op-1" && r.State == domain.OperationStateFailed && r.ExitCode == 255
		})).Return(nil)
		history.On("Prune", ctx, 50).Return(0, nil)
		uc := &RecordOperationUseCase{History: history, Keep: 50}
		// Act
		record, err := uc.Execute(ctx, finishedEntry(t))
		// Assert
		require.NoError(t, err)
		assert.Equal(t, "goto", record.Name)
		assert.Equal(t, "goto --rev abc123", record.Description)
		assert.Equal(t, "exited with code 255", record.Error)
		assert.Equal(t, 2*time.Second, record.Duration())
		history.AssertExpectations(t)
	})

	t.Run("Should not prune without a limit", func(t *testing.T) {
		history := new(mockHistoryRepository)
		history.On("Save", ctx, mock.Anything).Return(nil)
		uc := &RecordOperationUseCase{History: history}
		_, err := uc.Execute(ctx, finishedEntry(t))
		require.NoError(t, err)
		history.AssertNotCalled(t, "Prune", mock.Anything, mock.Anything)
	})

	t.Run("Should refuse operations that are still running", func(t *testing.T) {
		entry := finishedEntry(t)
		entry.State = domain.OperationStateRunning
		uc := &RecordOperationUseCase{History: new(mockHistoryRepository)}
		_, err := uc.Execute(ctx, entry)
		assert.ErrorContains(t, err, "still running")
	})

	t.Run("Should wrap save failures", func(t *testing.T) {
		history := new(mockHistoryRepository)
		history.On("Save", ctx, mock.Anything).Return(errors.New("disk full"))
		uc := &RecordOperationUseCase{History: history}
		_, err := uc.Execute(ctx, finishedEntry(t))
		assert.ErrorContains(t, err, "failed to save operation record: disk full")
	})
}

func TestListHistoryUseCase(t *testing.T) {
	ctx := context.Background()
	records := []*domain.OperationRecord{
		{ID: "c", State: domain.OperationStateFailed},
		{ID: "b", State: domain.OperationStateSucceeded},
		{ID: "a", State: domain.OperationStateFailed},
	}

	t.Run("Should pass the limit through without filters", func(t *testing.T) {
		history := new(mockHistoryRepository)
		history.On("List", ctx, 2).Return(records[:2], nil)
		uc := &ListHistoryUseCase{History: history}
		got, err := uc.Execute(ctx, 2)
		require.NoError(t, err)
		assert.Len(t, got, 2)
		history.AssertExpectations(t)
	})

	t.Run("Should filter by state before limiting", func(t *testing.T) {
		history := new(mockHistoryRepository)
		history.On("List", ctx, 0).Return(records, nil)
		uc := &ListHistoryUseCase{History: history}
		got, err := uc.Execute(ctx, 1, domain.OperationStateFailed)
		require.NoError(t, err)
		require.Len(t, got, 1)
		assert.Equal(t, "c", got[0].ID)
	})

	t.Run("Should wrap list failures", func(t *testing.T) {
		history := new(mockHistoryRepository)
		history.On("List", ctx, 5).Return(nil, errors.New("permission denied"))
		uc := &ListHistoryUseCase{History: history}
		_, err := uc.Execute(ctx, 5)
		assert.ErrorContains(t, err, "failed to list history")
	})
}
