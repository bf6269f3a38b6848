package preview

import (
	"errors"
	"fmt"
	"maps"
	"slices"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/compozy/stackops/internal/domain"
)

var (
	ErrOperationNotFound  = errors.New("operation not found")
	ErrDuplicateOperation = errors.New("operation already submitted")
	ErrInvalidTransition  = errors.New("invalid operation state transition")
)

const (
	// MaxOutputLines bounds the output kept per operation.
	MaxOutputLines = 1000
	// MaxFinishedEntries bounds the finished operations kept for lookup once
	// they no longer project.
	MaxFinishedEntries = 100
)

// Entry is the UI-side view of one submitted operation.
type Entry struct {
	Operation       domain.Operation
	State           domain.OperationState
	QueuedAt        time.Time
	StartedAt       time.Time
	EndedAt         time.Time
	ExitCode        int
	Error           string
	Output          []string
	Percent         int
	ProgressMessage string
	InlineProgress  map[string]string
	// Reconciled is set once a refreshed snapshot covering a successful run
	// has been applied; the operation then stops projecting.
	Reconciled bool
}

func (e *Entry) clone() Entry {
	out := *e
	out.Output = slices.Clone(e.Output)
	out.InlineProgress = maps.Clone(e.InlineProgress)
	return out
}

// projecting reports whether the entry still contributes optimistic state.
func (e *Entry) projecting() bool {
	switch e.State {
	case domain.OperationStateQueued, domain.OperationStateRunning:
		return true
	case domain.OperationStateSucceeded:
		return !e.Reconciled
	}
	return false
}

// Tracker follows submitted operations through their lifecycle as reported
// by the runner. It is safe for concurrent use.
type Tracker struct {
	mu        sync.RWMutex
	entries   []*Entry
	byID      map[string]*Entry
	now       func() time.Time
	logger    *zap.Logger
	listeners []func(Entry)
	// finishedLimit caps entries that are terminal and no longer projecting.
	finishedLimit int
}

// TrackerOption customises a Tracker.
type TrackerOption func(*Tracker)

// WithFinishedLimit sets how many finished operations are kept after they
// stop projecting. The oldest are dropped first.
func WithFinishedLimit(n int) TrackerOption {
	return func(t *Tracker) {
		if n >= 0 {
			t.finishedLimit = n
		}
	}
}

// WithTrackerClock sets the clock used to timestamp transitions that arrive
// without an event time.
func WithTrackerClock(now func() time.Time) TrackerOption {
	return func(t *Tracker) { t.now = now }
}

func NewTracker(logger *zap.Logger, opts ...TrackerOption) *Tracker {
	if logger == nil {
		logger = zap.NewNop()
	}
	t := &Tracker{
		byID:          map[string]*Entry{},
		now:           time.Now,
		logger:        logger,
		finishedLimit: MaxFinishedEntries,
	}
	for _, opt := range opts {
		opt(t)
	}
	return t
}

// OnChange registers fn to be called with a copy of an entry after each state
// change. Listeners run synchronously, outside the tracker lock.
func (t *Tracker) OnChange(fn func(Entry)) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.listeners = append(t.listeners, fn)
}

// Submit starts tracking op as queued and returns its frozen descriptor.
func (t *Tracker) Submit(op domain.Operation) (domain.RunnableOperation, error) {
	t.mu.Lock()
	if _, ok := t.byID[op.ID()]; ok {
		t.mu.Unlock()
		return domain.RunnableOperation{}, fmt.Errorf("%w: %s", ErrDuplicateOperation, op.ID())
	}
	e := &Entry{
		Operation: op,
		State:     domain.OperationStateQueued,
		QueuedAt:  t.now(),
	}
	t.entries = append(t.entries, e)
	t.byID[op.ID()] = e
	snapshot := e.clone()
	t.mu.Unlock()
	t.logger.Debug("operation queued",
		zap.String("operation", domain.OpName(op)),
		zap.String("operation_id", op.ID()),
	)
	t.notify(snapshot)
	return domain.ToRunnable(op), nil
}

// HandleEvent applies a runner event to the matching entry.
func (t *Tracker) HandleEvent(ev domain.ProgressEvent) error {
	t.mu.Lock()
	e, ok := t.byID[ev.ID]
	if !ok {
		t.mu.Unlock()
		return fmt.Errorf("%w: %s", ErrOperationNotFound, ev.ID)
	}
	at := ev.Time
	if at.IsZero() {
		at = t.now()
	}
	before := e.State
	err := t.apply(e, ev, at)
	snapshot := e.clone()
	if err == nil && snapshot.State != before {
		t.prune()
	}
	t.mu.Unlock()
	if err != nil {
		t.logger.Warn("ignoring progress event",
			zap.String("operation_id", ev.ID),
			zap.String("kind", string(ev.Kind)),
			zap.String("state", string(before)),
			zap.Error(err),
		)
		return err
	}
	if snapshot.State != before {
		t.logger.Info("operation state changed",
			zap.String("operation", domain.OpName(snapshot.Operation)),
			zap.String("operation_id", ev.ID),
			zap.String("from", string(before)),
			zap.String("to", string(snapshot.State)),
		)
		t.notify(snapshot)
	}
	return nil
}

func (t *Tracker) apply(e *Entry, ev domain.ProgressEvent, at time.Time) error {
	if e.State.Terminal() {
		return fmt.Errorf("%w: %s event after %s", ErrInvalidTransition, ev.Kind, e.State)
	}
	switch ev.Kind {
	case domain.ProgressQueued:
		return nil
	case domain.ProgressSpawn:
		if e.State != domain.OperationStateQueued {
			return fmt.Errorf("%w: spawn while %s", ErrInvalidTransition, e.State)
		}
		e.State = domain.OperationStateRunning
		e.StartedAt = at
		e.InlineProgress = map[string]string{}
		for _, p := range e.Operation.InitialInlineProgress() {
			e.InlineProgress[p.Hash] = p.Message
		}
	case domain.ProgressStdout, domain.ProgressStderr:
		e.Output = append(e.Output, ev.Message)
		if extra := len(e.Output) - MaxOutputLines; extra > 0 {
			e.Output = slices.Clone(e.Output[extra:])
		}
	case domain.ProgressPercent:
		e.Percent = ev.Percent
		e.ProgressMessage = ev.Message
	case domain.ProgressInlineProgress:
		if e.InlineProgress == nil {
			e.InlineProgress = map[string]string{}
		}
		if ev.Message == "" {
			delete(e.InlineProgress, ev.Hash)
		} else {
			e.InlineProgress[ev.Hash] = ev.Message
		}
	case domain.ProgressExit:
		if e.State != domain.OperationStateRunning {
			return fmt.Errorf("%w: exit while %s", ErrInvalidTransition, e.State)
		}
		e.ExitCode = ev.ExitCode
		if ev.ExitCode == 0 {
			e.State = domain.OperationStateSucceeded
		} else {
			e.State = domain.OperationStateFailed
			e.Error = fmt.Sprintf("exited with code %d", ev.ExitCode)
		}
		e.EndedAt = at
		e.InlineProgress = nil
	case domain.ProgressError:
		e.State = domain.OperationStateFailed
		e.Error = ev.Message
		e.EndedAt = at
		e.InlineProgress = nil
	case domain.ProgressCancelled:
		e.State = domain.OperationStateCancelled
		e.EndedAt = at
		e.InlineProgress = nil
	default:
		return fmt.Errorf("%w: unknown event kind %q", ErrInvalidTransition, ev.Kind)
	}
	return nil
}

// Projecting returns, in submission order, the operations whose optimistic
// effects must still be shown.
func (t *Tracker) Projecting() []domain.Operation {
	t.mu.RLock()
	defer t.mu.RUnlock()
	var out []domain.Operation
	for _, e := range t.entries {
		if e.projecting() {
			out = append(out, e.Operation)
		}
	}
	return out
}

// Reconcile retires successful operations that finished no later than
// fetchedAt, the moment the newly applied snapshot started fetching. It
// returns the ids of the retired operations.
func (t *Tracker) Reconcile(fetchedAt time.Time) []string {
	t.mu.Lock()
	var retired []string
	for _, e := range t.entries {
		if e.State == domain.OperationStateSucceeded && !e.Reconciled && !fetchedAt.Before(e.EndedAt) {
			e.Reconciled = true
			retired = append(retired, e.Operation.ID())
		}
	}
	if len(retired) > 0 {
		t.prune()
	}
	t.mu.Unlock()
	if len(retired) > 0 {
		t.logger.Debug("reconciled operations", zap.Strings("operation_ids", retired))
	}
	return retired
}

// prune drops the oldest finished entries beyond the limit. Entries that still
// project are never dropped. The caller must hold t.mu.
func (t *Tracker) prune() {
	finished := 0
	for _, e := range t.entries {
		if !e.projecting() {
			finished++
		}
	}
	extra := finished - t.finishedLimit
	if extra <= 0 {
		return
	}
	kept := t.entries[:0]
	for _, e := range t.entries {
		if extra > 0 && !e.projecting() {
			delete(t.byID, e.Operation.ID())
			extra--
			continue
		}
		kept = append(kept, e)
	}
	clear(t.entries[len(kept):])
	t.entries = kept
}

// InlineProgress returns the progress label shown next to hash by any
// running operation.
func (t *Tracker) InlineProgress(hash string) (string, bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	for _, e := range t.entries {
		if e.State != domain.OperationStateRunning {
			continue
		}
		if msg, ok := e.InlineProgress[hash]; ok {
			return msg, true
		}
	}
	return "", false
}

// InlineProgressFor returns a label lookup for the commits of dag. A label
// seeded on a commit that a projection has since rewritten follows the
// recorded successors to the commit dag actually shows.
func (t *Tracker) InlineProgressFor(dag domain.Dag) func(hash string) (string, bool) {
	t.mu.RLock()
	labels := map[string]string{}
	moved := map[string]string{}
	for _, e := range t.entries {
		if e.State != domain.OperationStateRunning {
			continue
		}
		for _, hash := range slices.Sorted(maps.Keys(e.InlineProgress)) {
			msg := e.InlineProgress[hash]
			if _, ok := labels[hash]; !ok {
				labels[hash] = msg
			}
			if current := dag.Resolve(hash); current != hash {
				if _, ok := moved[current]; !ok {
					moved[current] = msg
				}
			}
		}
	}
	for hash, msg := range moved {
		if _, ok := labels[hash]; !ok {
			labels[hash] = msg
		}
	}
	t.mu.RUnlock()
	return func(hash string) (string, bool) {
		msg, ok := labels[hash]
		return msg, ok
	}
}

// Get returns a copy of the entry for id.
func (t *Tracker) Get(id string) (Entry, bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	e, ok := t.byID[id]
	if !ok {
		return Entry{}, false
	}
	return e.clone(), true
}

// Entries returns copies of all entries in submission order.
func (t *Tracker) Entries() []Entry {
	t.mu.RLock()
	defer t.mu.RUnlock()
	out := make([]Entry, 0, len(t.entries))
	for _, e := range t.entries {
		out = append(out, e.clone())
	}
	return out
}

// Pending reports whether any operation is queued or running.
func (t *Tracker) Pending() bool {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return slices.ContainsFunc(t.entries, func(e *Entry) bool { return !e.State.Terminal() })
}

func (t *Tracker) notify(e Entry) {
	t.mu.RLock()
	listeners := slices.Clone(t.listeners)
	t.mu.RUnlock()
	for _, fn := range listeners {
		fn(e)
	}
}
