package repository

import (
	"context"

	"github.com/compozy/stackops/internal/domain"
)

// GitRepository defines the interface for reading repository state.
type GitRepository interface {
	// Snapshot loads the commit graph (at most limit commits), the
	// uncommitted changes and any in-progress merge conflicts.
	Snapshot(ctx context.Context, limit int) (domain.Snapshot, error)
	Root() string
}

// WorkingCopyRepository defines the in-process working copy mutations.
type WorkingCopyRepository interface {
	Checkout(ctx context.Context, rev string) error
	DiscardChanges(ctx context.Context) error
	RestoreFiles(ctx context.Context, rev string, paths []string) error
}
