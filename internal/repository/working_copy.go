package repository

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/go-git/go-billy/v5/util"
	"github.com/go-git/go-git/v5"
	"github.com/go-git/go-git/v5/plumbing"
	"github.com/go-git/go-git/v5/plumbing/object"
)

// workingCopyRepository mutates the working copy through go-git, without
// spawning the source-control tool.
type workingCopyRepository struct {
	repo *git.Repository
}

// NewWorkingCopyRepository opens the repository containing path.
func NewWorkingCopyRepository(path string) (WorkingCopyRepository, error) {
	repo, _, err := openRepository(path)
	if err != nil {
		return nil, err
	}
	return &workingCopyRepository{repo: repo}, nil
}

func (r *workingCopyRepository) resolve(rev string) (*object.Commit, error) {
	if rev == "" {
		rev = "HEAD"
	}
	hash, err := r.repo.ResolveRevision(plumbing.Revision(rev))
	if err != nil {
		return nil, fmt.Errorf("failed to resolve revision %s: %w", rev, err)
	}
	commit, err := r.repo.CommitObject(*hash)
	if err != nil {
		return nil, fmt.Errorf("failed to get commit %s: %w", rev, err)
	}
	return commit, nil
}

// Checkout moves the working copy to rev. Like the tool's own goto it
// refuses to run over unstaged changes.
func (r *workingCopyRepository) Checkout(ctx context.Context, rev string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	commit, err := r.resolve(rev)
	if err != nil {
		return err
	}
	w, err := r.repo.Worktree()
	if err != nil {
		return fmt.Errorf("failed to get worktree: %w", err)
	}
	if err := w.Checkout(&git.CheckoutOptions{Hash: commit.Hash}); err != nil {
		return fmt.Errorf("failed to check out %s: %w", rev, err)
	}
	return nil
}

// DiscardChanges hard-resets tracked files to HEAD. Untracked files stay.
func (r *workingCopyRepository) DiscardChanges(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	w, err := r.repo.Worktree()
	if err != nil {
		return fmt.Errorf("failed to get worktree: %w", err)
	}
	if err := w.Reset(&git.ResetOptions{Mode: git.HardReset}); err != nil {
		return fmt.Errorf("failed to reset working copy: %w", err)
	}
	return nil
}

// RestoreFiles restores paths to their content in rev, by default HEAD.
// Paths that do not exist in rev are removed.
func (r *workingCopyRepository) RestoreFiles(ctx context.Context, rev string, paths []string) error {
	commit, err := r.resolve(rev)
	if err != nil {
		return err
	}
	w, err := r.repo.Worktree()
	if err != nil {
		return fmt.Errorf("failed to get worktree: %w", err)
	}
	for _, path := range paths {
		if err := ctx.Err(); err != nil {
			return err
		}
		path = filepath.ToSlash(path)
		file, err := commit.File(path)
		if errors.Is(err, object.ErrFileNotFound) {
			if err := w.Filesystem.Remove(path); err != nil && !os.IsNotExist(err) {
				return fmt.Errorf("failed to remove %s: %w", path, err)
			}
			continue
		}
		if err != nil {
			return fmt.Errorf("failed to get file %s from %s: %w", path, commit.Hash, err)
		}
		contents, err := file.Contents()
		if err != nil {
			return fmt.Errorf("failed to get file contents: %w", err)
		}
		mode, err := file.Mode.ToOSFileMode()
		if err != nil {
			mode = 0o644
		}
		if err := util.WriteFile(w.Filesystem, path, []byte(contents), mode.Perm()); err != nil {
			return fmt.Errorf("failed to restore file %s: %w", path, err)
		}
	}
	return nil
}
