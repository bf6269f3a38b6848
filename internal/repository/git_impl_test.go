package repository

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/go-git/go-git/v5"
	"github.com/go-git/go-git/v5/plumbing"
	"github.com/go-git/go-git/v5/plumbing/object"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/compozy/stackops/internal/domain"
)

func setupTestRepo(t *testing.T) (string, *git.Repository) {
	t.Helper()
	dir := t.TempDir()
	repo, err := git.PlainInit(dir, false)
	require.NoError(t, err)
	commitFile(t, dir, repo, "test.txt", "test content", "Initial commit")
	return dir, repo
}

func commitFile(t *testing.T, dir string, repo *git.Repository, name, content, message string) plumbing.Hash {
	t.Helper()
	wt, err := repo.Worktree()
	require.NoError(t, err)
	require.NoError(t, os.WriteFile(filepath.Join(dir, name), []byte(content), 0o644))
	_, err = wt.Add(name)
	require.NoError(t, err)
	hash, err := wt.Commit(message, &git.CommitOptions{
		Author: &object.Signature{
			Name:  "Test User",
			Email: "test@example.com",
			When:  time.Now(),
		},
	})
	require.NoError(t, err)
	return hash
}

func headHash(t *testing.T, repo *git.Repository) plumbing.Hash {
	t.Helper()
	head, err := repo.Head()
	require.NoError(t, err)
	return head.Hash()
}

func TestNewGitRepository(t *testing.T) {
	t.Run("Should open a repository from a subdirectory", func(t *testing.T) {
		dir, _ := setupTestRepo(t)
		sub := filepath.Join(dir, "nested")
		require.NoError(t, os.Mkdir(sub, 0o755))
		gitRepo, err := NewGitRepository(sub)
		require.NoError(t, err)
		assert.Equal(t, dir, gitRepo.Root())
	})

	t.Run("Should return error for non-git directory", func(t *testing.T) {
		gitRepo, err := NewGitRepository(t.TempDir())
		assert.Error(t, err)
		assert.Nil(t, gitRepo)
	})
}

func TestGitRepository_Snapshot(t *testing.T) {
	t.Run("Should load the commit graph with the working copy parent", func(t *testing.T) {
		// Arrange
		dir, repo := setupTestRepo(t)
		first := headHash(t, repo)
		second := commitFile(t, dir, repo, "b.txt", "b", "Add b\n\nLonger description")
		gitRepo, err := NewGitRepository(dir)
		require.NoError(t, err)
		// Act
		snap, err := gitRepo.Snapshot(context.Background(), 0)
		// Assert
		require.NoError(t, err)
		assert.Equal(t, 2, snap.Dag.Len())
		dot, ok := snap.Dag.Dot()
		require.True(t, ok)
		assert.Equal(t, second.String(), dot.Hash)
		assert.Equal(t, "Add b", dot.Title)
		assert.Equal(t, "Longer description", dot.Description)
		assert.Equal(t, []string{first.String()}, dot.Parents)
		assert.Equal(t, []string{"master"}, dot.Bookmarks)
		assert.Equal(t, domain.PhaseDraft, dot.Phase)
		assert.Equal(t, []string{second.String()}, snap.Dag.Children(first.String()))
		assert.Nil(t, snap.MergeConflicts)
		assert.Empty(t, snap.UncommittedChanges)
	})

	t.Run("Should mark commits reachable from remotes as public", func(t *testing.T) {
		dir, repo := setupTestRepo(t)
		first := headHash(t, repo)
		second := commitFile(t, dir, repo, "b.txt", "b", "Add b")
		ref := plumbing.NewHashReference(plumbing.NewRemoteReferenceName("origin", "main"), first)
		require.NoError(t, repo.Storer.SetReference(ref))
		gitRepo, err := NewGitRepository(dir)
		require.NoError(t, err)
		snap, err := gitRepo.Snapshot(context.Background(), 0)
		require.NoError(t, err)
		base, ok := snap.Dag.Get(first.String())
		require.True(t, ok)
		assert.Equal(t, domain.PhasePublic, base.Phase)
		assert.Contains(t, base.Bookmarks, "origin/main")
		top, ok := snap.Dag.Get(second.String())
		require.True(t, ok)
		assert.Equal(t, domain.PhaseDraft, top.Phase)
	})

	t.Run("Should stop at the commit limit", func(t *testing.T) {
		dir, repo := setupTestRepo(t)
		commitFile(t, dir, repo, "b.txt", "b", "Add b")
		commitFile(t, dir, repo, "c.txt", "c", "Add c")
		gitRepo, err := NewGitRepository(dir)
		require.NoError(t, err)
		snap, err := gitRepo.Snapshot(context.Background(), 2)
		require.NoError(t, err)
		assert.Equal(t, 2, snap.Dag.Len())
	})

	t.Run("Should report uncommitted changes", func(t *testing.T) {
		dir, repo := setupTestRepo(t)
		commitFile(t, dir, repo, "gone.txt", "x", "Add gone")
		require.NoError(t, os.WriteFile(filepath.Join(dir, "test.txt"), []byte("changed"), 0o644))
		require.NoError(t, os.WriteFile(filepath.Join(dir, "new.txt"), []byte("new"), 0o644))
		require.NoError(t, os.Remove(filepath.Join(dir, "gone.txt")))
		gitRepo, err := NewGitRepository(dir)
		require.NoError(t, err)
		snap, err := gitRepo.Snapshot(context.Background(), 0)
		require.NoError(t, err)
		assert.Equal(t, domain.UncommittedChanges{
			{Path: "gone.txt", Status: domain.FileMissing},
			{Path: "new.txt", Status: domain.FileUntracked},
			{Path: "test.txt", Status: domain.FileModified},
		}, snap.UncommittedChanges)
	})

	t.Run("Should detect an interrupted merge", func(t *testing.T) {
		dir, repo := setupTestRepo(t)
		head := headHash(t, repo)
		require.NoError(t, os.WriteFile(filepath.Join(dir, ".git", "MERGE_HEAD"), []byte(head.String()+"\n"), 0o644))
		gitRepo, err := NewGitRepository(dir)
		require.NoError(t, err)
		snap, err := gitRepo.Snapshot(context.Background(), 0)
		require.NoError(t, err)
		require.NotNil(t, snap.MergeConflicts)
		assert.Equal(t, "merge", snap.MergeConflicts.Command)
		assert.Equal(t, "continue", snap.MergeConflicts.ToContinue)
		assert.Equal(t, snap.FetchedAt, snap.MergeConflicts.FetchedAt)
	})

	t.Run("Should take the fetch time before reading", func(t *testing.T) {
		dir, _ := setupTestRepo(t)
		gitRepo, err := NewGitRepository(dir)
		require.NoError(t, err)
		fixed := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
		gitRepo.(*gitRepository).now = func() time.Time { return fixed }
		snap, err := gitRepo.Snapshot(context.Background(), 0)
		require.NoError(t, err)
		assert.Equal(t, fixed, snap.FetchedAt)
	})

	t.Run("Should honor cancellation", func(t *testing.T) {
		dir, _ := setupTestRepo(t)
		gitRepo, err := NewGitRepository(dir)
		require.NoError(t, err)
		ctx, cancel := context.WithCancel(context.Background())
		cancel()
		_, err = gitRepo.Snapshot(ctx, 0)
		assert.ErrorIs(t, err, context.Canceled)
	})
}

func TestWorkingCopyRepository(t *testing.T) {
	t.Run("Should discard tracked changes", func(t *testing.T) {
		// Arrange
		dir, _ := setupTestRepo(t)
		require.NoError(t, os.WriteFile(filepath.Join(dir, "test.txt"), []byte("changed"), 0o644))
		wc, err := NewWorkingCopyRepository(dir)
		require.NoError(t, err)
		// Act
		err = wc.DiscardChanges(context.Background())
		// Assert
		require.NoError(t, err)
		data, err := os.ReadFile(filepath.Join(dir, "test.txt"))
		require.NoError(t, err)
		assert.Equal(t, "test content", string(data))
	})

	t.Run("Should restore selected files from a revision", func(t *testing.T) {
		dir, repo := setupTestRepo(t)
		first := headHash(t, repo)
		commitFile(t, dir, repo, "test.txt", "second", "Change test")
		require.NoError(t, os.WriteFile(filepath.Join(dir, "extra.txt"), []byte("x"), 0o644))
		wc, err := NewWorkingCopyRepository(dir)
		require.NoError(t, err)
		err = wc.RestoreFiles(context.Background(), first.String(), []string{"test.txt", "extra.txt"})
		require.NoError(t, err)
		data, err := os.ReadFile(filepath.Join(dir, "test.txt"))
		require.NoError(t, err)
		assert.Equal(t, "test content", string(data))
		_, err = os.Stat(filepath.Join(dir, "extra.txt"))
		assert.True(t, os.IsNotExist(err))
	})

	t.Run("Should check out another commit", func(t *testing.T) {
		dir, repo := setupTestRepo(t)
		first := headHash(t, repo)
		commitFile(t, dir, repo, "b.txt", "b", "Add b")
		wc, err := NewWorkingCopyRepository(dir)
		require.NoError(t, err)
		require.NoError(t, wc.Checkout(context.Background(), first.String()))
		assert.Equal(t, first, headHash(t, repo))
		_, err = os.Stat(filepath.Join(dir, "b.txt"))
		assert.True(t, os.IsNotExist(err))
	})

	t.Run("Should fail for unknown revisions", func(t *testing.T) {
		dir, _ := setupTestRepo(t)
		wc, err := NewWorkingCopyRepository(dir)
		require.NoError(t, err)
		err = wc.Checkout(context.Background(), "does-not-exist")
		assert.ErrorContains(t, err, "failed to resolve revision")
	})
}
