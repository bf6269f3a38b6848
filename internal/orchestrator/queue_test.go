package orchestrator

import (
	"context"
	"errors"
	"path/filepath"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/gofrs/flock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/compozy/stackops/internal/domain"
	"github.com/compozy/stackops/internal/service"
)

func runnable(id string) domain.RunnableOperation {
	return domain.RunnableOperation{ID: id, Args: domain.Lits("pull"), Runner: domain.RunnerPrimary}
}

func startQueue(t *testing.T, exec Executor, rec *eventRecorder) *Queue {
	t.Helper()
	q := NewQueue(QueueConfig{
		Executors: map[domain.CommandRunner]Executor{domain.RunnerPrimary: exec},
	}, rec.emit)
	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(func() {
		cancel()
		<-q.Done()
	})
	q.Start(ctx)
	return q
}

func waitIdle(t *testing.T, q *Queue) {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	require.NoError(t, q.Wait(ctx))
}

func TestQueue_Order(t *testing.T) {
	t.Run("Should run operations one at a time in FIFO order", func(t *testing.T) {
		// Arrange
		var (
			mu      sync.Mutex
			order   []string
			active  atomic.Int32
			overlap atomic.Bool
		)
		exec := executorFunc(func(_ context.Context, op domain.RunnableOperation, emit domain.ProgressFunc) error {
			if active.Add(1) > 1 {
				overlap.Store(true)
			}
			defer active.Add(-1)
			emit(domain.ProgressEvent{ID: op.ID, Kind: domain.ProgressSpawn})
			time.Sleep(10 * time.Millisecond)
			mu.Lock()
			order = append(order, op.ID)
			mu.Unlock()
			return nil
		})
		rec := &eventRecorder{}
		q := startQueue(t, exec, rec)
		// Act
		for _, id := range []string{"a", "b", "c"} {
			require.NoError(t, q.Enqueue(runnable(id)))
		}
		waitIdle(t, q)
		// Assert
		assert.Equal(t, []string{"a", "b", "c"}, order)
		assert.False(t, overlap.Load())
		for _, id := range []string{"a", "b", "c"} {
			assert.Equal(t, []domain.ProgressKind{domain.ProgressQueued, domain.ProgressSpawn, domain.ProgressExit}, rec.kinds(id))
		}
	})

	t.Run("Should stamp events without a time", func(t *testing.T) {
		exec := new(mockExecutor)
		exec.On("Execute", mock.Anything, mock.Anything, mock.Anything).Return(nil)
		rec := &eventRecorder{}
		q := startQueue(t, exec, rec)
		require.NoError(t, q.Enqueue(runnable("a")))
		waitIdle(t, q)
		for _, ev := range rec.all() {
			assert.False(t, ev.Time.IsZero())
		}
		exec.AssertExpectations(t)
	})
}

func TestQueue_Outcomes(t *testing.T) {
	t.Run("Should report the exit code of failed commands", func(t *testing.T) {
		exec := new(mockExecutor)
		exec.On("Execute", mock.Anything, mock.Anything, mock.Anything).
			Return(&service.ExitError{Code: 2, Stderr: "conflict"})
		rec := &eventRecorder{}
		q := startQueue(t, exec, rec)
		require.NoError(t, q.Enqueue(runnable("a")))
		waitIdle(t, q)
		ev, ok := rec.last("a")
		require.True(t, ok)
		assert.Equal(t, domain.ProgressExit, ev.Kind)
		assert.Equal(t, 2, ev.ExitCode)
		assert.Equal(t, "conflict", ev.Message)
	})

	t.Run("Should report other failures as errors", func(t *testing.T) {
		exec := new(mockExecutor)
		exec.On("Execute", mock.Anything, mock.Anything, mock.Anything).Return(errors.New("tool not found"))
		rec := &eventRecorder{}
		q := startQueue(t, exec, rec)
		require.NoError(t, q.Enqueue(runnable("a")))
		waitIdle(t, q)
		ev, ok := rec.last("a")
		require.True(t, ok)
		assert.Equal(t, domain.ProgressError, ev.Kind)
		assert.Equal(t, "tool not found", ev.Message)
	})

	t.Run("Should fail operations without an executor", func(t *testing.T) {
		rec := &eventRecorder{}
		q := startQueue(t, new(mockExecutor), rec)
		op := runnable("a")
		op.Runner = domain.RunnerInternal
		require.NoError(t, q.Enqueue(op))
		waitIdle(t, q)
		ev, ok := rec.last("a")
		require.True(t, ok)
		assert.Equal(t, domain.ProgressError, ev.Kind)
		assert.Contains(t, ev.Message, ErrNoExecutor.Error())
	})
}

func TestQueue_Cancel(t *testing.T) {
	t.Run("Should drop a queued operation without spawning it", func(t *testing.T) {
		// Arrange
		release := make(chan struct{})
		var ran sync.Map
		exec := executorFunc(func(_ context.Context, op domain.RunnableOperation, _ domain.ProgressFunc) error {
			ran.Store(op.ID, true)
			if op.ID == "a" {
				<-release
			}
			return nil
		})
		rec := &eventRecorder{}
		q := startQueue(t, exec, rec)
		require.NoError(t, q.Enqueue(runnable("a")))
		require.NoError(t, q.Enqueue(runnable("b")))
		// Act
		require.NoError(t, q.Cancel("b"))
		close(release)
		waitIdle(t, q)
		// Assert
		_, ok := ran.Load("b")
		assert.False(t, ok)
		assert.Equal(t, []domain.ProgressKind{domain.ProgressQueued, domain.ProgressCancelled}, rec.kinds("b"))
		assert.Equal(t, domain.ProgressExit, rec.kinds("a")[len(rec.kinds("a"))-1])
	})

	t.Run("Should stop a running operation", func(t *testing.T) {
		started := make(chan struct{})
		exec := executorFunc(func(ctx context.Context, op domain.RunnableOperation, emit domain.ProgressFunc) error {
			emit(domain.ProgressEvent{ID: op.ID, Kind: domain.ProgressSpawn})
			close(started)
			<-ctx.Done()
			return ctx.Err()
		})
		rec := &eventRecorder{}
		q := startQueue(t, exec, rec)
		require.NoError(t, q.Enqueue(runnable("a")))
		<-started
		id, running := q.Running()
		require.True(t, running)
		assert.Equal(t, "a", id)
		require.NoError(t, q.Cancel("a"))
		waitIdle(t, q)
		assert.Equal(t, []domain.ProgressKind{domain.ProgressQueued, domain.ProgressSpawn, domain.ProgressCancelled}, rec.kinds("a"))
	})

	t.Run("Should reject unknown ids", func(t *testing.T) {
		q := startQueue(t, new(mockExecutor), &eventRecorder{})
		assert.ErrorIs(t, q.Cancel("nope"), ErrUnknownOperation)
	})
}

func TestQueue_Lifecycle(t *testing.T) {
	t.Run("Should reject duplicate ids", func(t *testing.T) {
		q := NewQueue(QueueConfig{}, nil)
		require.NoError(t, q.Enqueue(runnable("a")))
		assert.ErrorIs(t, q.Enqueue(runnable("a")), ErrDuplicateOperation)
		assert.Equal(t, []string{"a"}, q.Pending())
	})

	t.Run("Should cancel queued operations on close", func(t *testing.T) {
		rec := &eventRecorder{}
		q := NewQueue(QueueConfig{}, rec.emit)
		require.NoError(t, q.Enqueue(runnable("a")))
		q.Close()
		assert.ErrorIs(t, q.Enqueue(runnable("b")), ErrQueueClosed)
		assert.Equal(t, []domain.ProgressKind{domain.ProgressQueued, domain.ProgressCancelled}, rec.kinds("a"))
		assert.Empty(t, q.Pending())
		waitIdle(t, q)
	})

	t.Run("Should stop the worker when the context ends", func(t *testing.T) {
		q := NewQueue(QueueConfig{}, nil)
		ctx, cancel := context.WithCancel(context.Background())
		q.Start(ctx)
		cancel()
		select {
		case <-q.Done():
		case <-time.After(5 * time.Second):
			t.Fatal("worker did not stop")
		}
		assert.ErrorIs(t, q.Enqueue(runnable("a")), ErrQueueClosed)
	})
}

func TestQueue_WorkingCopyLock(t *testing.T) {
	t.Run("Should fail when another process holds the lock", func(t *testing.T) {
		// Arrange
		lockPath := filepath.Join(t.TempDir(), WorkingCopyLockName)
		other := flock.New(lockPath)
		locked, err := other.TryLock()
		require.NoError(t, err)
		require.True(t, locked)
		t.Cleanup(func() { _ = other.Unlock() })
		exec := new(mockExecutor)
		rec := &eventRecorder{}
		q := NewQueue(QueueConfig{
			Executors:   map[domain.CommandRunner]Executor{domain.RunnerPrimary: exec},
			LockPath:    lockPath,
			LockTimeout: 200 * time.Millisecond,
		}, rec.emit)
		ctx, cancel := context.WithCancel(context.Background())
		defer func() {
			cancel()
			<-q.Done()
		}()
		q.Start(ctx)
		// Act
		require.NoError(t, q.Enqueue(runnable("a")))
		waitIdle(t, q)
		// Assert
		ev, ok := rec.last("a")
		require.True(t, ok)
		assert.Equal(t, domain.ProgressError, ev.Kind)
		assert.Contains(t, ev.Message, "failed to lock working copy")
		exec.AssertNotCalled(t, "Execute", mock.Anything, mock.Anything, mock.Anything)
	})

	t.Run("Should run with the lock held", func(t *testing.T) {
		lockPath := filepath.Join(t.TempDir(), WorkingCopyLockName)
		var heldByUs bool
		exec := executorFunc(func(_ context.Context, _ domain.RunnableOperation, _ domain.ProgressFunc) error {
			other := flock.New(lockPath)
			locked, err := other.TryLock()
			if err != nil {
				return err
			}
			if locked {
				_ = other.Unlock()
			}
			heldByUs = !locked
			return nil
		})
		rec := &eventRecorder{}
		q := NewQueue(QueueConfig{
			Executors: map[domain.CommandRunner]Executor{domain.RunnerPrimary: exec},
			LockPath:  lockPath,
		}, rec.emit)
		ctx, cancel := context.WithCancel(context.Background())
		defer func() {
			cancel()
			<-q.Done()
		}()
		q.Start(ctx)
		require.NoError(t, q.Enqueue(runnable("a")))
		waitIdle(t, q)
		assert.True(t, heldByUs)
	})
}

func TestPrepareStateDir(t *testing.T) {
	t.Run("Should reject an empty directory", func(t *testing.T) {
		_, err := PrepareStateDir(nil, "")
		assert.Error(t, err)
	})
}
