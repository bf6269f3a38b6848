package repository

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"strings"
	"time"

	"github.com/go-git/go-billy/v5"
	"github.com/go-git/go-git/v5"
	"github.com/go-git/go-git/v5/plumbing"
	"github.com/go-git/go-git/v5/plumbing/object"
	"github.com/go-git/go-git/v5/storage/filesystem"
	"github.com/samber/lo"

	"github.com/compozy/stackops/internal/domain"
)

// DefaultDagLimit bounds how many commits a snapshot loads.
const DefaultDagLimit = 2000

// gitRepository is the implementation of the GitRepository interface.
type gitRepository struct {
	repo *git.Repository
	root string
	now  func() time.Time
}

// NewGitRepository opens the repository containing path.
func NewGitRepository(path string) (GitRepository, error) {
	repo, root, err := openRepository(path)
	if err != nil {
		return nil, err
	}
	return &gitRepository{repo: repo, root: root, now: time.Now}, nil
}

func openRepository(path string) (*git.Repository, string, error) {
	if path == "" {
		path = "."
	}
	repo, err := git.PlainOpenWithOptions(path, &git.PlainOpenOptions{DetectDotGit: true})
	if err != nil {
		return nil, "", fmt.Errorf("failed to open git repository: %w", err)
	}
	w, err := repo.Worktree()
	if err != nil {
		return nil, "", fmt.Errorf("failed to get worktree: %w", err)
	}
	return repo, w.Filesystem.Root(), nil
}

func (r *gitRepository) Root() string { return r.root }

// Snapshot reads the repository. FetchedAt is taken before anything is read
// so that operations finishing during the read are not reconciled early.
func (r *gitRepository) Snapshot(ctx context.Context, limit int) (domain.Snapshot, error) {
	snap := domain.Snapshot{FetchedAt: r.now()}
	dag, err := r.loadDag(ctx, limit)
	if err != nil {
		return domain.Snapshot{}, err
	}
	snap.Dag = dag
	changes, unmerged, err := r.uncommittedChanges()
	if err != nil {
		return domain.Snapshot{}, err
	}
	snap.UncommittedChanges = changes
	snap.MergeConflicts = r.mergeConflicts(unmerged, snap.FetchedAt)
	return snap, nil
}

type refTips struct {
	head      plumbing.Hash
	hasHead   bool
	local     []plumbing.Hash
	remote    []plumbing.Hash
	bookmarks map[plumbing.Hash][]string
}

func (r *gitRepository) collectTips() (refTips, error) {
	tips := refTips{bookmarks: map[plumbing.Hash][]string{}}
	head, err := r.repo.Head()
	switch {
	case err == nil:
		tips.head, tips.hasHead = head.Hash(), true
	case errors.Is(err, plumbing.ErrReferenceNotFound):
	default:
		return tips, fmt.Errorf("failed to get HEAD: %w", err)
	}
	refs, err := r.repo.References()
	if err != nil {
		return tips, fmt.Errorf("failed to list references: %w", err)
	}
	err = refs.ForEach(func(ref *plumbing.Reference) error {
		if ref.Type() != plumbing.HashReference {
			return nil
		}
		switch {
		case ref.Name().IsBranch():
			tips.local = append(tips.local, ref.Hash())
			tips.bookmarks[ref.Hash()] = append(tips.bookmarks[ref.Hash()], ref.Name().Short())
		case ref.Name().IsRemote():
			tips.remote = append(tips.remote, ref.Hash())
			tips.bookmarks[ref.Hash()] = append(tips.bookmarks[ref.Hash()], ref.Name().Short())
		}
		return nil
	})
	if err != nil {
		return tips, fmt.Errorf("failed to iterate references: %w", err)
	}
	return tips, nil
}

// loadDag walks parents breadth-first from HEAD and every branch tip.
func (r *gitRepository) loadDag(ctx context.Context, limit int) (domain.Dag, error) {
	if limit <= 0 {
		limit = DefaultDagLimit
	}
	tips, err := r.collectTips()
	if err != nil {
		return domain.Dag{}, err
	}
	var queue []plumbing.Hash
	if tips.hasHead {
		queue = append(queue, tips.head)
	}
	queue = append(queue, tips.local...)
	queue = append(queue, tips.remote...)

	commits := map[plumbing.Hash]*object.Commit{}
	for len(queue) > 0 && len(commits) < limit {
		if err := ctx.Err(); err != nil {
			return domain.Dag{}, err
		}
		h := queue[0]
		queue = queue[1:]
		if _, ok := commits[h]; ok {
			continue
		}
		c, err := r.repo.CommitObject(h)
		if err != nil {
			if errors.Is(err, plumbing.ErrObjectNotFound) {
				continue
			}
			return domain.Dag{}, fmt.Errorf("failed to read commit %s: %w", h, err)
		}
		commits[h] = c
		queue = append(queue, c.ParentHashes...)
	}

	public := reachable(commits, tips.remote)
	infos := make([]domain.CommitInfo, 0, len(commits))
	for h, c := range commits {
		title, description, _ := strings.Cut(strings.TrimSpace(c.Message), "\n")
		bookmarks := slices.Clone(tips.bookmarks[h])
		slices.Sort(bookmarks)
		phase := domain.PhaseDraft
		if public[h] {
			phase = domain.PhasePublic
		}
		infos = append(infos, domain.CommitInfo{
			Hash:        h.String(),
			Parents:     lo.Map(c.ParentHashes, func(p plumbing.Hash, _ int) string { return p.String() }),
			Title:       strings.TrimSpace(title),
			Description: strings.TrimSpace(description),
			Author:      c.Author.Name,
			Date:        c.Committer.When,
			Phase:       phase,
			IsDot:       tips.hasHead && h == tips.head,
			Bookmarks:   bookmarks,
		})
	}
	return domain.NewDag(infos...), nil
}

// reachable returns the loaded commits reachable from tips.
func reachable(commits map[plumbing.Hash]*object.Commit, tips []plumbing.Hash) map[plumbing.Hash]bool {
	seen := map[plumbing.Hash]bool{}
	queue := slices.Clone(tips)
	for len(queue) > 0 {
		h := queue[0]
		queue = queue[1:]
		c, ok := commits[h]
		if !ok || seen[h] {
			continue
		}
		seen[h] = true
		queue = append(queue, c.ParentHashes...)
	}
	return seen
}

// uncommittedChanges maps the worktree status onto changed files. Unmerged
// paths are returned separately as well.
func (r *gitRepository) uncommittedChanges() (domain.UncommittedChanges, []string, error) {
	w, err := r.repo.Worktree()
	if err != nil {
		return nil, nil, fmt.Errorf("failed to get worktree: %w", err)
	}
	status, err := w.Status()
	if err != nil {
		return nil, nil, fmt.Errorf("failed to get status: %w", err)
	}
	changes := domain.UncommittedChanges{}
	var unmerged []string
	for _, path := range lo.Keys(status) {
		fs := status[path]
		st, ok := fileStatus(fs)
		if !ok {
			continue
		}
		if st == domain.FileUnresolved {
			unmerged = append(unmerged, path)
		}
		changes = append(changes, domain.ChangedFile{Path: path, Status: st})
	}
	slices.SortFunc(changes, func(a, b domain.ChangedFile) int { return strings.Compare(a.Path, b.Path) })
	slices.Sort(unmerged)
	return changes, unmerged, nil
}

func fileStatus(fs *git.FileStatus) (domain.FileStatus, bool) {
	switch {
	case fs.Staging == git.UpdatedButUnmerged || fs.Worktree == git.UpdatedButUnmerged:
		return domain.FileUnresolved, true
	case fs.Staging == git.Untracked || fs.Worktree == git.Untracked:
		return domain.FileUntracked, true
	case fs.Staging == git.Deleted:
		return domain.FileRemoved, true
	case fs.Worktree == git.Deleted:
		return domain.FileMissing, true
	case fs.Staging == git.Added, fs.Staging == git.Copied, fs.Staging == git.Renamed:
		return domain.FileAdded, true
	case fs.Staging == git.Modified || fs.Worktree == git.Modified:
		return domain.FileModified, true
	}
	return "", false
}

type interruptedCommand struct {
	marker     string
	command    string
	toContinue string
	toAbort    string
}

// interruptedCommands lists the state files git leaves behind when a command
// stops on conflicts.
var interruptedCommands = []interruptedCommand{
	{marker: "rebase-merge", command: "rebase", toContinue: "rebase --continue", toAbort: "rebase --abort"},
	{marker: "rebase-apply", command: "rebase", toContinue: "rebase --continue", toAbort: "rebase --abort"},
	{marker: "CHERRY_PICK_HEAD", command: "graft", toContinue: "graft --continue", toAbort: "graft --abort"},
	{marker: "REVERT_HEAD", command: "backout", toContinue: "continue", toAbort: "backout --abort"},
	{marker: "MERGE_HEAD", command: "merge", toContinue: "continue", toAbort: "goto --clean ."},
}

func (r *gitRepository) mergeConflicts(unmerged []string, fetchedAt time.Time) *domain.MergeConflicts {
	var gitDir billy.Filesystem
	if storage, ok := r.repo.Storer.(*filesystem.Storage); ok {
		gitDir = storage.Filesystem()
	}
	var found *interruptedCommand
	if gitDir != nil {
		for i := range interruptedCommands {
			if _, err := gitDir.Stat(interruptedCommands[i].marker); err == nil {
				found = &interruptedCommands[i]
				break
			}
		}
	}
	if found == nil && len(unmerged) == 0 {
		return nil
	}
	if found == nil {
		found = &interruptedCommands[len(interruptedCommands)-1]
	}
	return &domain.MergeConflicts{
		Command:    found.command,
		ToContinue: found.toContinue,
		ToAbort:    found.toAbort,
		Files: lo.Map(unmerged, func(p string, _ int) domain.ChangedFile {
			return domain.ChangedFile{Path: p, Status: domain.FileUnresolved}
		}),
		FetchedAt: fetchedAt,
	}
}
