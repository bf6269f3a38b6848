package domain

import (
	"maps"
	"slices"
	"time"

	"github.com/samber/lo"
)

// Phase describes whether a commit has been published.
type Phase string

const (
	PhasePublic Phase = "public"
	PhaseDraft  Phase = "draft"
)

// PreviewType marks how a commit should be highlighted while a preview or
// optimistic projection is shown.
type PreviewType string

const (
	PreviewNone                 PreviewType = ""
	PreviewRebaseRoot           PreviewType = "rebase_root"
	PreviewRebaseOptimisticRoot PreviewType = "rebase_optimistic_root"
	PreviewHiddenRoot           PreviewType = "hidden_root"
	PreviewHiddenDescendant     PreviewType = "hidden_descendant"
	PreviewGotoDestination      PreviewType = "goto_destination"
	PreviewGotoPrevious         PreviewType = "goto_previous_location"
	PreviewOptimistic           PreviewType = "optimistic"
)

// CommitInfo is a single node of the commit graph.
type CommitInfo struct {
	Hash        string      `json:"hash"`
	Parents     []string    `json:"parents"`
	Title       string      `json:"title"`
	Description string      `json:"description,omitempty"`
	Author      string      `json:"author,omitempty"`
	Date        time.Time   `json:"date"`
	Phase       Phase       `json:"phase"`
	IsDot       bool        `json:"is_dot"`
	Bookmarks   []string    `json:"bookmarks,omitempty"`
	Optimistic  bool        `json:"optimistic,omitempty"`
	PreviewType PreviewType `json:"preview_type,omitempty"`
}

func (c CommitInfo) clone() CommitInfo {
	c.Parents = slices.Clone(c.Parents)
	c.Bookmarks = slices.Clone(c.Bookmarks)
	return c
}

// Dag is an immutable snapshot of the commit graph. Every mutator returns a
// new Dag; the receiver is never modified, so snapshots can be shared freely
// between the repository store, projections and renderers.
type Dag struct {
	commits    map[string]CommitInfo
	successors map[string]string
}

// NewDag builds a snapshot from the given commits. Later duplicates win.
func NewDag(commits ...CommitInfo) Dag {
	d := Dag{commits: make(map[string]CommitInfo, len(commits))}
	for _, c := range commits {
		d.commits[c.Hash] = c.clone()
	}
	return d
}

func (d Dag) copy() Dag {
	return Dag{
		commits:    maps.Clone(d.commits),
		successors: maps.Clone(d.successors),
	}
}

// Len returns the number of commits in the snapshot.
func (d Dag) Len() int { return len(d.commits) }

// Has reports whether hash is present.
func (d Dag) Has(hash string) bool {
	_, ok := d.commits[hash]
	return ok
}

// Get returns a copy of the commit with the given hash.
func (d Dag) Get(hash string) (CommitInfo, bool) {
	c, ok := d.commits[hash]
	if !ok {
		return CommitInfo{}, false
	}
	return c.clone(), true
}

// Hashes returns all hashes in sorted order.
func (d Dag) Hashes() []string {
	keys := lo.Keys(d.commits)
	slices.Sort(keys)
	return keys
}

// Commits returns all commits sorted by date, newest first, ties broken by hash.
func (d Dag) Commits() []CommitInfo {
	out := lo.Map(lo.Values(d.commits), func(c CommitInfo, _ int) CommitInfo { return c.clone() })
	slices.SortFunc(out, func(a, b CommitInfo) int {
		if c := b.Date.Compare(a.Date); c != 0 {
			return c
		}
		if a.Hash < b.Hash {
			return -1
		}
		if a.Hash > b.Hash {
			return 1
		}
		return 0
	})
	return out
}

// Children returns the sorted hashes of direct children of hash.
func (d Dag) Children(hash string) []string {
	var out []string
	for h, c := range d.commits {
		if slices.Contains(c.Parents, hash) {
			out = append(out, h)
		}
	}
	slices.Sort(out)
	return out
}

// Descendants returns the sorted hashes of all commits reachable from hash
// through child edges, excluding hash itself.
func (d Dag) Descendants(hash string) []string {
	seen := map[string]bool{}
	queue := d.Children(hash)
	for len(queue) > 0 {
		h := queue[0]
		queue = queue[1:]
		if seen[h] {
			continue
		}
		seen[h] = true
		queue = append(queue, d.Children(h)...)
	}
	out := lo.Keys(seen)
	slices.Sort(out)
	return out
}

// IsAncestor reports whether ancestor is reachable from hash via parent edges.
// A commit is its own ancestor.
func (d Dag) IsAncestor(ancestor, hash string) bool {
	if ancestor == hash {
		return true
	}
	return slices.Contains(d.Descendants(ancestor), hash)
}

// Dot returns the working-copy parent, if it is part of the snapshot. When
// several commits are marked, the smallest hash wins.
func (d Dag) Dot() (CommitInfo, bool) {
	for _, h := range d.Hashes() {
		if c := d.commits[h]; c.IsDot {
			return c.clone(), true
		}
	}
	return CommitInfo{}, false
}

func (d Dag) dotCount() int {
	return lo.CountBy(lo.Values(d.commits), func(c CommitInfo) bool { return c.IsDot })
}

// Resolve follows recorded successors starting at hash and returns the latest
// identity. Hashes without successors resolve to themselves.
func (d Dag) Resolve(hash string) string {
	seen := map[string]bool{}
	for {
		next, ok := d.successors[hash]
		if !ok || seen[hash] {
			return hash
		}
		seen[hash] = true
		hash = next
	}
}

// Successors returns a copy of the old-to-new hash mapping.
func (d Dag) Successors() map[string]string {
	return maps.Clone(d.successors)
}

// Add inserts or overwrites commits.
func (d Dag) Add(commits ...CommitInfo) Dag {
	out := d.copy()
	if out.commits == nil {
		out.commits = make(map[string]CommitInfo, len(commits))
	}
	for _, c := range commits {
		out.commits[c.Hash] = c.clone()
	}
	return out
}

// Remove deletes the given hashes. Unknown hashes are ignored.
func (d Dag) Remove(hashes ...string) Dag {
	if !lo.SomeBy(hashes, d.Has) {
		return d
	}
	out := d.copy()
	for _, h := range hashes {
		delete(out.commits, h)
	}
	return out
}

// Replace swaps the commit old for next, rewiring children that pointed at
// old and recording next as the successor of old. It is a no-op when old is
// missing.
func (d Dag) Replace(old string, next CommitInfo) Dag {
	if !d.Has(old) {
		return d
	}
	out := d.copy()
	delete(out.commits, old)
	out.commits[next.Hash] = next.clone()
	for h, c := range out.commits {
		if !slices.Contains(c.Parents, old) {
			continue
		}
		c = c.clone()
		c.Parents = lo.Map(c.Parents, func(p string, _ int) string {
			if p == old {
				return next.Hash
			}
			return p
		})
		out.commits[h] = c
	}
	if old != next.Hash {
		if out.successors == nil {
			out.successors = map[string]string{}
		}
		out.successors[old] = next.Hash
	}
	return out
}

// Reparent sets the parents of hash. It is a no-op when hash is missing.
func (d Dag) Reparent(hash string, parents ...string) Dag {
	c, ok := d.commits[hash]
	if !ok {
		return d
	}
	out := d.copy()
	c = c.clone()
	c.Parents = slices.Clone(parents)
	out.commits[hash] = c
	return out
}

// Rebase moves src, and implicitly its descendants, onto dest. It returns the
// receiver unchanged when either commit is missing, when src is already a
// child of dest only, or when dest is a descendant of src.
func (d Dag) Rebase(src, dest string) Dag {
	c, ok := d.commits[src]
	if !ok || !d.Has(dest) || src == dest {
		return d
	}
	if len(c.Parents) == 1 && c.Parents[0] == dest {
		return d
	}
	if slices.Contains(d.Descendants(src), dest) {
		return d
	}
	return d.Reparent(src, dest)
}

// SetDot moves the working-copy marker to hash. Afterwards hash is the only
// commit marked as dot.
func (d Dag) SetDot(hash string) Dag {
	if !d.Has(hash) {
		return d
	}
	if d.commits[hash].IsDot && d.dotCount() == 1 {
		return d
	}
	out := d.copy()
	for h, c := range out.commits {
		want := h == hash
		if c.IsDot != want {
			c = c.clone()
			c.IsDot = want
			out.commits[h] = c
		}
	}
	return out
}

// Mark sets the preview type of the given commits.
func (d Dag) Mark(t PreviewType, hashes ...string) Dag {
	out := d
	copied := false
	for _, h := range hashes {
		c, ok := out.commits[h]
		if !ok || c.PreviewType == t {
			continue
		}
		if !copied {
			out = d.copy()
			copied = true
		}
		c = c.clone()
		c.PreviewType = t
		out.commits[h] = c
	}
	return out
}
