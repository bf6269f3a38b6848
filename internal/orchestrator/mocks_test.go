package orchestrator

import (
	"context"
	"sync"
	"time"

	"github.com/stretchr/testify/mock"

	"github.com/compozy/stackops/internal/domain"
)

// Mock for Executor
type mockExecutor struct{ mock.Mock }

func (m *mockExecutor) Execute(ctx context.Context, op domain.RunnableOperation, emit domain.ProgressFunc) error {
	args := m.Called(ctx, op, emit)
	return args.Error(0)
}

// executorFunc adapts a function to Executor for tests that need to block or
// emit events.
type executorFunc func(ctx context.Context, op domain.RunnableOperation, emit domain.ProgressFunc) error

func (f executorFunc) Execute(ctx context.Context, op domain.RunnableOperation, emit domain.ProgressFunc) error {
	return f(ctx, op, emit)
}

// Mock for WorkingCopyRepository
type mockWorkingCopyRepository struct{ mock.Mock }

func (m *mockWorkingCopyRepository) Checkout(ctx context.Context, rev string) error {
	args := m.Called(ctx, rev)
	return args.Error(0)
}

func (m *mockWorkingCopyRepository) DiscardChanges(ctx context.Context) error {
	args := m.Called(ctx)
	return args.Error(0)
}

func (m *mockWorkingCopyRepository) RestoreFiles(ctx context.Context, rev string, paths []string) error {
	args := m.Called(ctx, rev, paths)
	return args.Error(0)
}

// fakeGitRepository returns a fresh snapshot, fetched now, on every call.
type fakeGitRepository struct {
	mu    sync.Mutex
	dag   domain.Dag
	calls int
	err   error
}

func (f *fakeGitRepository) Snapshot(_ context.Context, _ int) (domain.Snapshot, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	if f.err != nil {
		return domain.Snapshot{}, f.err
	}
	return domain.Snapshot{Dag: f.dag, FetchedAt: time.Now()}, nil
}

func (f *fakeGitRepository) Root() string { return "/repo" }

func (f *fakeGitRepository) setDag(dag domain.Dag) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.dag = dag
}

func (f *fakeGitRepository) snapshotCalls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls
}

// eventRecorder collects emitted events.
type eventRecorder struct {
	mu     sync.Mutex
	events []domain.ProgressEvent
}

func (r *eventRecorder) emit(ev domain.ProgressEvent) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, ev)
}

func (r *eventRecorder) all() []domain.ProgressEvent {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]domain.ProgressEvent(nil), r.events...)
}

// kinds returns the event kinds emitted for id, in order.
func (r *eventRecorder) kinds(id string) []domain.ProgressKind {
	var out []domain.ProgressKind
	for _, ev := range r.all() {
		if ev.ID == id {
			out = append(out, ev.Kind)
		}
	}
	return out
}

func (r *eventRecorder) last(id string) (domain.ProgressEvent, bool) {
	events := r.all()
	for i := len(events) - 1; i >= 0; i-- {
		if events[i].ID == id {
			return events[i], true
		}
	}
	return domain.ProgressEvent{}, false
}
