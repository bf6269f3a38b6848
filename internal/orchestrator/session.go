package orchestrator

import (
	"context"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/compozy/stackops/internal/domain"
	"github.com/compozy/stackops/internal/preview"
	"github.com/compozy/stackops/internal/repository"
	"github.com/compozy/stackops/internal/usecase"
)

// SessionConfig contains the collaborators of a Session.
type SessionConfig struct {
	GitRepo   repository.GitRepository
	History   repository.HistoryRepository
	Executors map[domain.CommandRunner]Executor
	// LockPath is the cross-process working-copy lock. Empty disables it.
	LockPath    string
	LockTimeout time.Duration
	DagLimit    int
	// HistoryKeep bounds the number of persisted records. Zero keeps all.
	HistoryKeep int
	Logger      *zap.Logger
	Now         func() time.Time
	// OnEvent observes every event after the tracker has applied it.
	OnEvent domain.ProgressFunc
}

// Session ties the pieces together: operations are tracked for projection,
// queued for execution, recorded once finished, and every terminal state
// triggers a refresh so succeeded operations get reconciled.
type Session struct {
	tracker   *preview.Tracker
	projector *preview.Projector
	queue     *Queue
	refresh   *usecase.RefreshSnapshotUseCase
	record    *usecase.RecordOperationUseCase
	onEvent   domain.ProgressFunc
	logger    *zap.Logger

	mu       sync.RWMutex
	snapshot domain.Snapshot
	ctx      context.Context
}

// NewSession creates a session. Call Start before submitting operations.
func NewSession(cfg SessionConfig) *Session {
	if cfg.Logger == nil {
		cfg.Logger = zap.NewNop()
	}
	var trackerOpts []preview.TrackerOption
	if cfg.Now != nil {
		trackerOpts = append(trackerOpts, preview.WithTrackerClock(cfg.Now))
	}
	s := &Session{
		tracker: preview.NewTracker(cfg.Logger, trackerOpts...),
		onEvent: cfg.OnEvent,
		logger:  cfg.Logger,
		ctx:     context.Background(),
	}
	s.projector = preview.NewProjector(s.tracker, cfg.Logger)
	s.refresh = &usecase.RefreshSnapshotUseCase{GitRepo: cfg.GitRepo, Projector: s.projector, DagLimit: cfg.DagLimit}
	if cfg.History != nil {
		s.record = &usecase.RecordOperationUseCase{History: cfg.History, Keep: cfg.HistoryKeep}
	}
	s.queue = NewQueue(QueueConfig{
		Executors:   cfg.Executors,
		LockPath:    cfg.LockPath,
		LockTimeout: cfg.LockTimeout,
		Logger:      cfg.Logger,
		Now:         cfg.Now,
	}, s.handleEvent)
	s.tracker.OnChange(s.onChange)
	return s
}

// Start loads the first snapshot and starts the queue.
func (s *Session) Start(ctx context.Context) (preview.View, error) {
	s.mu.Lock()
	s.ctx = ctx
	s.mu.Unlock()
	view, err := s.Refresh(ctx)
	if err != nil {
		return preview.View{}, err
	}
	s.queue.Start(ctx)
	return view, nil
}

// Submit tracks op and queues it for execution.
func (s *Session) Submit(op domain.Operation) error {
	runnable, err := s.tracker.Submit(op)
	if err != nil {
		return err
	}
	if err := s.queue.Enqueue(runnable); err != nil {
		s.handleEvent(domain.ProgressEvent{ID: op.ID(), Kind: domain.ProgressError, Message: err.Error()})
		return fmt.Errorf("failed to queue %s: %w", domain.OpName(op), err)
	}
	return nil
}

// Cancel cancels a queued or running operation.
func (s *Session) Cancel(id string) error { return s.queue.Cancel(id) }

// Wait blocks until every submitted operation has finished.
func (s *Session) Wait(ctx context.Context) error { return s.queue.Wait(ctx) }

// Close drops queued operations and waits for the running one to finish.
func (s *Session) Close(ctx context.Context) error {
	s.queue.Close()
	return s.queue.Wait(ctx)
}

// Refresh reads the repository, reconciles finished operations and returns
// the optimistic view.
func (s *Session) Refresh(ctx context.Context) (preview.View, error) {
	snap, view, err := s.refresh.Execute(ctx)
	if err != nil {
		return preview.View{}, err
	}
	s.mu.Lock()
	stale := snap.FetchedAt.Before(s.snapshot.FetchedAt)
	if stale {
		// A slower, older read must not replace a newer one.
		snap = s.snapshot
	}
	s.snapshot = snap
	s.mu.Unlock()
	if stale {
		return s.projector.Optimistic(snap), nil
	}
	return view, nil
}

// View returns the optimistic view over the latest snapshot.
func (s *Session) View() preview.View {
	return s.projector.Optimistic(s.Snapshot())
}

// Preview returns the view with op previewed over the raw graph.
func (s *Session) Preview(op domain.Operation) preview.View {
	return s.projector.Render(s.Snapshot(), op)
}

// Snapshot returns the latest repository snapshot.
func (s *Session) Snapshot() domain.Snapshot {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.snapshot
}

// Tracker exposes the lifecycle of submitted operations.
func (s *Session) Tracker() *preview.Tracker { return s.tracker }

func (s *Session) handleEvent(ev domain.ProgressEvent) {
	// The tracker logs rejected events itself.
	_ = s.tracker.HandleEvent(ev)
	if s.onEvent != nil {
		s.onEvent(ev)
	}
}

func (s *Session) onChange(e preview.Entry) {
	if !e.State.Terminal() {
		return
	}
	s.mu.RLock()
	parent := s.ctx
	s.mu.RUnlock()
	// Recording must survive the cancellation that may have ended the operation.
	ctx, cancel := context.WithTimeout(context.WithoutCancel(parent), RecordTimeout)
	defer cancel()
	if s.record != nil {
		if _, err := s.record.Execute(ctx, e); err != nil {
			s.logger.Warn("failed to record operation",
				zap.String("operation_id", e.Operation.ID()),
				zap.Error(err),
			)
		}
	}
	if _, err := s.Refresh(ctx); err != nil {
		s.logger.Warn("failed to refresh after operation",
			zap.String("operation_id", e.Operation.ID()),
			zap.Error(err),
		)
	}
}
