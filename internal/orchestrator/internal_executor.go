package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"strings"
	"time"

	"github.com/compozy/stackops/internal/domain"
	"github.com/compozy/stackops/internal/repository"
)

// ErrUnsupportedInternalCommand is returned for commands the in-process
// runner cannot perform.
var ErrUnsupportedInternalCommand = errors.New("command not supported by the internal runner")

// InternalExecutor performs working-copy operations in-process instead of
// spawning the source-control tool. It understands goto, discard and revert.
type InternalExecutor struct {
	repo repository.WorkingCopyRepository
	now  func() time.Time
}

func NewInternalExecutor(repo repository.WorkingCopyRepository) *InternalExecutor {
	return &InternalExecutor{repo: repo, now: time.Now}
}

func (e *InternalExecutor) Execute(ctx context.Context, op domain.RunnableOperation, emit domain.ProgressFunc) error {
	// Revisions are passed verbatim and files stay repository-relative.
	args, err := domain.ResolveArgs(op.Args, domain.ResolveEnv{})
	if err != nil {
		return fmt.Errorf("failed to resolve arguments: %w", err)
	}
	run, err := e.plan(args)
	if err != nil {
		return err
	}
	emit(domain.ProgressEvent{ID: op.ID, Kind: domain.ProgressSpawn, Message: strings.Join(args, " "), Time: e.now()})
	msg, err := run(ctx)
	if err != nil {
		return err
	}
	emit(domain.ProgressEvent{ID: op.ID, Kind: domain.ProgressStdout, Message: msg, Time: e.now()})
	return nil
}

type internalCommand func(ctx context.Context) (string, error)

func (e *InternalExecutor) plan(args []string) (internalCommand, error) {
	switch {
	case slices.Equal(args, []string{"goto", "--clean", "."}):
		return func(ctx context.Context) (string, error) {
			if err := e.repo.DiscardChanges(ctx); err != nil {
				return "", err
			}
			return "discarded uncommitted changes", nil
		}, nil
	case len(args) == 3 && args[0] == "goto" && args[1] == "--rev":
		rev := args[2]
		return func(ctx context.Context) (string, error) {
			if err := e.repo.Checkout(ctx, rev); err != nil {
				return "", err
			}
			return "moved to " + domain.ShortHash(rev), nil
		}, nil
	case len(args) > 1 && args[0] == "revert":
		rev, files := "", args[1:]
		if files[0] == "--rev" {
			if len(files) < 2 {
				return nil, fmt.Errorf("%w: revert --rev without a revision", ErrUnsupportedInternalCommand)
			}
			rev, files = files[1], files[2:]
		}
		if len(files) == 0 {
			return nil, fmt.Errorf("%w: revert without files", ErrUnsupportedInternalCommand)
		}
		return func(ctx context.Context) (string, error) {
			if err := e.repo.RestoreFiles(ctx, rev, files); err != nil {
				return "", err
			}
			return fmt.Sprintf("reverted %d file(s)", len(files)), nil
		}, nil
	}
	return nil, fmt.Errorf("%w: %s", ErrUnsupportedInternalCommand, strings.Join(args, " "))
}
