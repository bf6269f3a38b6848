package orchestrator

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/spf13/afero"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/compozy/stackops/internal/domain"
	"github.com/compozy/stackops/internal/operations"
	"github.com/compozy/stackops/internal/repository"
	"github.com/compozy/stackops/internal/service"
)

func sessionDag() domain.Dag {
	base := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	return domain.NewDag(
		domain.CommitInfo{Hash: "aaaa00", Title: "main", Date: base, Phase: domain.PhasePublic},
		domain.CommitInfo{Hash: "abc123", Parents: []string{"aaaa00"}, Title: "feature", Date: base.Add(time.Hour), IsDot: true},
		domain.CommitInfo{Hash: "def456", Parents: []string{"aaaa00"}, Title: "other", Date: base.Add(2 * time.Hour)},
	)
}

type sessionFixture struct {
	session *Session
	repo    *fakeGitRepository
	history *repository.JSONHistoryRepository
}

func newSessionFixture(t *testing.T, exec Executor) sessionFixture {
	t.Helper()
	repo := &fakeGitRepository{dag: sessionDag()}
	history := repository.NewJSONHistoryRepository(afero.NewMemMapFs(), "", 0, nil)
	cfg := SessionConfig{
		GitRepo:   repo,
		History:   history,
		Executors: map[domain.CommandRunner]Executor{domain.RunnerPrimary: exec},
	}
	require.NoError(t, ValidateSessionConfig(cfg, domain.RunnerPrimary))
	s := NewSession(cfg)
	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(func() {
		cancel()
		<-s.queue.Done()
	})
	_, err := s.Start(ctx)
	require.NoError(t, err)
	return sessionFixture{session: s, repo: repo, history: history}
}

func dotHash(t *testing.T, dag domain.Dag) string {
	t.Helper()
	dot, ok := dag.Dot()
	require.True(t, ok)
	return dot.Hash
}

func TestSession_Lifecycle(t *testing.T) {
	t.Run("Should project a running operation until the refresh covers it", func(t *testing.T) {
		// Arrange
		release := make(chan struct{})
		started := make(chan struct{})
		var f sessionFixture
		exec := executorFunc(func(_ context.Context, op domain.RunnableOperation, emit domain.ProgressFunc) error {
			emit(domain.ProgressEvent{ID: op.ID, Kind: domain.ProgressSpawn})
			close(started)
			<-release
			// The repository now reflects the checkout.
			f.repo.setDag(sessionDag().SetDot("def456"))
			return nil
		})
		f = newSessionFixture(t, exec)
		op, err := operations.NewGoto("def456")
		require.NoError(t, err)
		// Act
		require.NoError(t, f.session.Submit(op))
		<-started
		running := f.session.View()
		label, hasLabel := f.session.Tracker().InlineProgress("def456")
		close(release)
		require.NoError(t, f.session.Wait(context.Background()))
		// Assert
		assert.Equal(t, "def456", dotHash(t, running.Dag))
		assert.True(t, hasLabel)
		assert.Equal(t, "moving...", label)

		entry, ok := f.session.Tracker().Get(op.ID())
		require.True(t, ok)
		assert.Equal(t, domain.OperationStateSucceeded, entry.State)
		assert.True(t, entry.Reconciled)
		assert.Empty(t, f.session.Tracker().Projecting())
		assert.Equal(t, "def456", dotHash(t, f.session.View().Dag))
		assert.GreaterOrEqual(t, f.repo.snapshotCalls(), 2)
	})

	t.Run("Should retract failed operations and record them", func(t *testing.T) {
		exec := executorFunc(func(_ context.Context, op domain.RunnableOperation, emit domain.ProgressFunc) error {
			emit(domain.ProgressEvent{ID: op.ID, Kind: domain.ProgressSpawn})
			return &service.ExitError{Code: 1, Stderr: "abort: conflicts"}
		})
		f := newSessionFixture(t, exec)
		op, err := operations.NewHide("def456")
		require.NoError(t, err)
		require.NoError(t, f.session.Submit(op))
		require.NoError(t, f.session.Wait(context.Background()))

		assert.True(t, f.session.View().Dag.Has("def456"))
		record, err := f.history.Load(context.Background(), op.ID())
		require.NoError(t, err)
		assert.Equal(t, domain.OperationStateFailed, record.State)
		assert.Equal(t, 1, record.ExitCode)
		assert.Equal(t, "hide", record.Name)
	})

	t.Run("Should preview over the raw graph while operations are queued", func(t *testing.T) {
		release := make(chan struct{})
		exec := executorFunc(func(_ context.Context, op domain.RunnableOperation, emit domain.ProgressFunc) error {
			emit(domain.ProgressEvent{ID: op.ID, Kind: domain.ProgressSpawn})
			<-release
			return nil
		})
		f := newSessionFixture(t, exec)
		hide, err := operations.NewHide("def456")
		require.NoError(t, err)
		require.NoError(t, f.session.Submit(hide))
		gotoOp, err := operations.NewGoto("def456")
		require.NoError(t, err)

		view := f.session.Preview(gotoOp)
		optimistic := f.session.View()
		close(release)
		require.NoError(t, f.session.Wait(context.Background()))

		assert.True(t, view.Previewing)
		assert.True(t, view.Dag.Has("def456"))
		assert.False(t, optimistic.Dag.Has("def456"))
	})

	t.Run("Should cancel a queued operation", func(t *testing.T) {
		release := make(chan struct{})
		exec := executorFunc(func(_ context.Context, op domain.RunnableOperation, emit domain.ProgressFunc) error {
			emit(domain.ProgressEvent{ID: op.ID, Kind: domain.ProgressSpawn})
			<-release
			return nil
		})
		f := newSessionFixture(t, exec)
		first := operations.NewPull()
		second, err := operations.NewHide("def456")
		require.NoError(t, err)
		require.NoError(t, f.session.Submit(first))
		require.NoError(t, f.session.Submit(second))

		require.NoError(t, f.session.Cancel(second.ID()))
		assert.True(t, f.session.View().Dag.Has("def456"))
		close(release)
		require.NoError(t, f.session.Wait(context.Background()))

		entry, ok := f.session.Tracker().Get(second.ID())
		require.True(t, ok)
		assert.Equal(t, domain.OperationStateCancelled, entry.State)
		assert.True(t, entry.StartedAt.IsZero())
	})

	t.Run("Should fail submissions after close", func(t *testing.T) {
		f := newSessionFixture(t, new(mockExecutor))
		require.NoError(t, f.session.Close(context.Background()))
		op := operations.NewPull()
		err := f.session.Submit(op)
		assert.ErrorIs(t, err, ErrQueueClosed)
		entry, ok := f.session.Tracker().Get(op.ID())
		require.True(t, ok)
		assert.Equal(t, domain.OperationStateFailed, entry.State)
	})

	t.Run("Should forward events to the observer after tracking them", func(t *testing.T) {
		rec := &eventRecorder{}
		var s *Session
		var stateAtExit domain.OperationState
		exec := executorFunc(func(_ context.Context, op domain.RunnableOperation, emit domain.ProgressFunc) error {
			emit(domain.ProgressEvent{ID: op.ID, Kind: domain.ProgressSpawn})
			emit(domain.ProgressEvent{ID: op.ID, Kind: domain.ProgressStdout, Message: "pulled"})
			return nil
		})
		s = NewSession(SessionConfig{
			GitRepo:   &fakeGitRepository{dag: sessionDag()},
			Executors: map[domain.CommandRunner]Executor{domain.RunnerPrimary: exec},
			OnEvent: func(ev domain.ProgressEvent) {
				rec.emit(ev)
				if ev.Kind == domain.ProgressExit {
					entry, _ := s.Tracker().Get(ev.ID)
					stateAtExit = entry.State
				}
			},
		})
		ctx, cancel := context.WithCancel(context.Background())
		defer func() {
			cancel()
			<-s.queue.Done()
		}()
		_, err := s.Start(ctx)
		require.NoError(t, err)
		op := operations.NewPull()
		require.NoError(t, s.Submit(op))
		require.NoError(t, s.Wait(context.Background()))

		assert.Equal(t, []domain.ProgressKind{
			domain.ProgressQueued, domain.ProgressSpawn, domain.ProgressStdout, domain.ProgressExit,
		}, rec.kinds(op.ID()))
		assert.Equal(t, domain.OperationStateSucceeded, stateAtExit)
	})

	t.Run("Should return the kept snapshot when a refresh is older", func(t *testing.T) {
		// Arrange
		f := newSessionFixture(t, executorFunc(func(context.Context, domain.RunnableOperation, domain.ProgressFunc) error {
			return nil
		}))
		newer := domain.Snapshot{
			Dag: domain.NewDag(
				domain.CommitInfo{Hash: "aaaa00", Title: "main", Phase: domain.PhasePublic},
				domain.CommitInfo{Hash: "def456", Parents: []string{"aaaa00"}, Title: "other", IsDot: true},
			),
			FetchedAt: time.Now().Add(time.Hour),
		}
		f.session.mu.Lock()
		f.session.snapshot = newer
		f.session.mu.Unlock()
		// Act
		view, err := f.session.Refresh(context.Background())
		// Assert
		require.NoError(t, err)
		assert.Equal(t, "def456", dotHash(t, view.Dag))
		assert.False(t, view.Dag.Has("abc123"))
		assert.Equal(t, newer.FetchedAt, f.session.Snapshot().FetchedAt)
	})

	t.Run("Should surface refresh failures on start", func(t *testing.T) {
		repo := &fakeGitRepository{err: errors.New("not a repository")}
		s := NewSession(SessionConfig{GitRepo: repo})
		_, err := s.Start(context.Background())
		assert.ErrorContains(t, err, "not a repository")
	})
}

func TestValidateSessionConfig(t *testing.T) {
	t.Run("Should require an executor per runner", func(t *testing.T) {
		cfg := SessionConfig{
			GitRepo:   &fakeGitRepository{},
			Executors: map[domain.CommandRunner]Executor{domain.RunnerPrimary: new(mockExecutor)},
		}
		err := ValidateSessionConfig(cfg, domain.RunnerPrimary, domain.RunnerInternal)
		assert.ErrorContains(t, err, "internal")
	})

	t.Run("Should require a repository", func(t *testing.T) {
		assert.Error(t, ValidateSessionConfig(SessionConfig{}))
	})
}
