package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"sync"
	"time"

	"github.com/gofrs/flock"
	"go.uber.org/zap"

	"github.com/compozy/stackops/internal/domain"
	"github.com/compozy/stackops/internal/repository"
	"github.com/compozy/stackops/internal/service"
)

var (
	// ErrQueueClosed is returned when enqueueing after Close.
	ErrQueueClosed = errors.New("operation queue is closed")
	// ErrDuplicateOperation is returned when an id is already queued or running.
	ErrDuplicateOperation = errors.New("operation already queued")
	// ErrUnknownOperation is returned when cancelling an id that is neither
	// queued nor running.
	ErrUnknownOperation = errors.New("operation is not queued or running")
	// ErrNoExecutor is reported when no executor handles an operation's runner.
	ErrNoExecutor = errors.New("no executor for command runner")
)

// Executor runs a single operation, emitting spawn, output and progress
// events. The queue reports the outcome.
type Executor interface {
	Execute(ctx context.Context, op domain.RunnableOperation, emit domain.ProgressFunc) error
}

// QueueConfig configures a Queue.
type QueueConfig struct {
	Executors map[domain.CommandRunner]Executor
	// LockPath is the working-copy lock shared with other processes. Empty
	// disables cross-process locking.
	LockPath    string
	LockTimeout time.Duration
	Logger      *zap.Logger
	// Now is used to stamp events. Defaults to time.Now.
	Now func() time.Time
}

type runningOp struct {
	op        domain.RunnableOperation
	cancel    context.CancelFunc
	cancelled bool
}

// Queue runs operations one at a time in submission order. Every event it
// produces, including those of its executors, goes to a single ProgressFunc
// in a consistent order. The ProgressFunc must not call back into the queue.
type Queue struct {
	cfg  QueueConfig
	emit domain.ProgressFunc

	mu      sync.Mutex
	pending []domain.RunnableOperation
	running *runningOp
	closed  bool
	idle    chan struct{}

	// sendMu orders emitted events.
	sendMu sync.Mutex
	wake   chan struct{}
	done   chan struct{}
	once   sync.Once
}

// NewQueue creates a queue that reports events to emit.
func NewQueue(cfg QueueConfig, emit domain.ProgressFunc) *Queue {
	if cfg.Logger == nil {
		cfg.Logger = zap.NewNop()
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	if cfg.LockTimeout <= 0 {
		cfg.LockTimeout = repository.LockTimeout
	}
	if emit == nil {
		emit = func(domain.ProgressEvent) {}
	}
	idle := make(chan struct{})
	close(idle)
	return &Queue{
		cfg:  cfg,
		emit: emit,
		idle: idle,
		wake: make(chan struct{}, 1),
		done: make(chan struct{}),
	}
}

// Start launches the worker. Cancelling ctx stops the running operation and
// drops the queued ones.
func (q *Queue) Start(ctx context.Context) {
	q.once.Do(func() {
		go q.loop(ctx)
	})
}

// Done is closed once the worker has exited.
func (q *Queue) Done() <-chan struct{} { return q.done }

// Enqueue appends op to the queue.
func (q *Queue) Enqueue(op domain.RunnableOperation) error {
	q.sendMu.Lock()
	defer q.sendMu.Unlock()
	q.mu.Lock()
	if q.closed {
		q.mu.Unlock()
		return ErrQueueClosed
	}
	if q.indexLocked(op.ID) >= 0 || (q.running != nil && q.running.op.ID == op.ID) {
		q.mu.Unlock()
		return fmt.Errorf("%w: %s", ErrDuplicateOperation, op.ID)
	}
	q.pending = append(q.pending, op)
	select {
	case <-q.idle:
		q.idle = make(chan struct{})
	default:
	}
	position := len(q.pending)
	q.mu.Unlock()

	q.cfg.Logger.Debug("operation enqueued",
		zap.String("operation_id", op.ID),
		zap.String("runner", string(op.Runner)),
		zap.Int("position", position),
	)
	q.sendLocked(domain.ProgressEvent{ID: op.ID, Kind: domain.ProgressQueued})
	select {
	case q.wake <- struct{}{}:
	default:
	}
	return nil
}

// Cancel stops a running operation or drops a queued one. Either way a
// cancelled event is emitted; a dropped operation never spawns.
func (q *Queue) Cancel(id string) error {
	q.mu.Lock()
	if q.running != nil && q.running.op.ID == id {
		q.running.cancelled = true
		q.running.cancel()
		q.mu.Unlock()
		q.cfg.Logger.Info("cancelling running operation", zap.String("operation_id", id))
		return nil
	}
	i := q.indexLocked(id)
	if i < 0 {
		q.mu.Unlock()
		return fmt.Errorf("%w: %s", ErrUnknownOperation, id)
	}
	q.pending = slices.Delete(q.pending, i, i+1)
	q.markIdleLocked()
	q.mu.Unlock()
	q.cfg.Logger.Info("dropped queued operation", zap.String("operation_id", id))
	q.send(domain.ProgressEvent{ID: id, Kind: domain.ProgressCancelled})
	return nil
}

// Pending returns the ids waiting to run, in order.
func (q *Queue) Pending() []string {
	q.mu.Lock()
	defer q.mu.Unlock()
	ids := make([]string, 0, len(q.pending))
	for _, op := range q.pending {
		ids = append(ids, op.ID)
	}
	return ids
}

// Running returns the id of the running operation.
func (q *Queue) Running() (string, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.running == nil {
		return "", false
	}
	return q.running.op.ID, true
}

// Wait blocks until nothing is queued or running.
func (q *Queue) Wait(ctx context.Context) error {
	q.mu.Lock()
	idle := q.idle
	q.mu.Unlock()
	select {
	case <-idle:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Close stops accepting operations and drops the queued ones. The running
// operation is allowed to finish.
func (q *Queue) Close() {
	q.mu.Lock()
	if q.closed {
		q.mu.Unlock()
		return
	}
	q.closed = true
	dropped := q.pending
	q.pending = nil
	q.markIdleLocked()
	q.mu.Unlock()
	for _, op := range dropped {
		q.send(domain.ProgressEvent{ID: op.ID, Kind: domain.ProgressCancelled})
	}
	select {
	case q.wake <- struct{}{}:
	default:
	}
}

func (q *Queue) loop(ctx context.Context) {
	defer close(q.done)
	for {
		op, runCtx, ok := q.next(ctx)
		if !ok {
			return
		}
		q.execute(ctx, runCtx, op)
	}
}

// next pops the head of the queue, blocking until one is available.
func (q *Queue) next(ctx context.Context) (domain.RunnableOperation, context.Context, bool) {
	for {
		if ctx.Err() != nil {
			q.Close()
			return domain.RunnableOperation{}, nil, false
		}
		q.mu.Lock()
		if len(q.pending) > 0 {
			op := q.pending[0]
			q.pending = q.pending[1:]
			runCtx, cancel := context.WithCancel(ctx)
			q.running = &runningOp{op: op, cancel: cancel}
			q.mu.Unlock()
			return op, runCtx, true
		}
		closed := q.closed
		q.mu.Unlock()
		if closed {
			return domain.RunnableOperation{}, nil, false
		}
		select {
		case <-q.wake:
		case <-ctx.Done():
			q.Close()
			return domain.RunnableOperation{}, nil, false
		}
	}
}

func (q *Queue) execute(ctx, runCtx context.Context, op domain.RunnableOperation) {
	start := q.cfg.Now()
	logger := q.cfg.Logger.With(zap.String("operation_id", op.ID), zap.String("runner", string(op.Runner)))
	err := q.run(runCtx, op, logger)

	q.mu.Lock()
	cancelled := q.running.cancelled
	q.running.cancel()
	q.running = nil
	q.mu.Unlock()

	ev := domain.ProgressEvent{ID: op.ID}
	var exitErr *service.ExitError
	switch {
	case err != nil && (cancelled || ctx.Err() != nil):
		ev.Kind = domain.ProgressCancelled
		logger.Info("operation cancelled", zap.Duration("duration", q.cfg.Now().Sub(start)))
	case err == nil:
		ev.Kind = domain.ProgressExit
		logger.Info("operation finished", zap.Duration("duration", q.cfg.Now().Sub(start)))
	case errors.As(err, &exitErr):
		ev.Kind = domain.ProgressExit
		ev.ExitCode = exitErr.Code
		ev.Message = exitErr.Stderr
		logger.Warn("operation exited with error", zap.Int("exit_code", exitErr.Code))
	default:
		ev.Kind = domain.ProgressError
		ev.Message = err.Error()
		logger.Error("operation failed", zap.Error(err))
	}
	q.send(ev)

	q.mu.Lock()
	q.markIdleLocked()
	q.mu.Unlock()
}

func (q *Queue) run(ctx context.Context, op domain.RunnableOperation, logger *zap.Logger) error {
	executor, ok := q.cfg.Executors[op.Runner]
	if !ok {
		return fmt.Errorf("%w: %s", ErrNoExecutor, op.Runner)
	}
	if q.cfg.LockPath != "" {
		lock := flock.New(q.cfg.LockPath)
		if err := repository.AcquireLock(ctx, lock, false, q.cfg.LockTimeout); err != nil {
			return fmt.Errorf("failed to lock working copy: %w", err)
		}
		defer func() {
			if err := lock.Unlock(); err != nil {
				logger.Warn("failed to release working copy lock", zap.Error(err))
			}
		}()
	}
	logger.Debug("operation starting")
	return executor.Execute(ctx, op, func(ev domain.ProgressEvent) {
		if ev.ID == "" {
			ev.ID = op.ID
		}
		q.send(ev)
	})
}

func (q *Queue) send(ev domain.ProgressEvent) {
	q.sendMu.Lock()
	defer q.sendMu.Unlock()
	q.sendLocked(ev)
}

func (q *Queue) sendLocked(ev domain.ProgressEvent) {
	if ev.Time.IsZero() {
		ev.Time = q.cfg.Now()
	}
	q.emit(ev)
}

func (q *Queue) indexLocked(id string) int {
	return slices.IndexFunc(q.pending, func(op domain.RunnableOperation) bool { return op.ID == id })
}

func (q *Queue) markIdleLocked() {
	if q.running != nil || len(q.pending) > 0 {
		return
	}
	select {
	case <-q.idle:
	default:
		close(q.idle)
	}
}
