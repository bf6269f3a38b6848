package preview

import (
	"go.uber.org/zap"

	"github.com/compozy/stackops/internal/domain"
)

// View is the state the UI renders.
type View struct {
	Dag                domain.Dag
	UncommittedChanges domain.UncommittedChanges
	MergeConflicts     *domain.MergeConflicts
	// Previewing is set when Dag shows an unconfirmed operation.
	Previewing bool
}

// Projector combines the latest snapshot with the tracked operations.
// Nothing is cached: every call recomputes the view from its inputs.
type Projector struct {
	tracker *Tracker
	logger  *zap.Logger
}

func NewProjector(tracker *Tracker, logger *zap.Logger) *Projector {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Projector{tracker: tracker, logger: logger}
}

// Optimistic returns snap with every projecting operation applied in queue
// order.
func (p *Projector) Optimistic(snap domain.Snapshot) View {
	ops := p.tracker.Projecting()
	return View{
		Dag:                FoldDag(p.logger, snap.Dag, ops),
		UncommittedChanges: FoldUncommittedChanges(p.logger, snap.UncommittedChanges, ops),
		MergeConflicts:     FoldMergeConflicts(p.logger, snap.MergeConflicts, ops),
	}
}

// Render returns the view to draw. With a preview operation the graph shows
// its preview over the raw snapshot graph, independent of queued operations;
// the uncommitted and conflict views stay optimistic.
func (p *Projector) Render(snap domain.Snapshot, previewOp domain.Operation) View {
	v := p.Optimistic(snap)
	if previewOp == nil {
		return v
	}
	v.Dag = PreviewDag(p.logger, snap.Dag, previewOp)
	v.Previewing = true
	return v
}

// Apply reconciles the tracker against a freshly fetched snapshot and
// returns the resulting optimistic view.
func (p *Projector) Apply(snap domain.Snapshot) View {
	p.tracker.Reconcile(snap.FetchedAt)
	return p.Optimistic(snap)
}
