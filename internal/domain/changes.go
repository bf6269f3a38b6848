package domain

import (
	"slices"
	"time"
)

// FileStatus is the working-copy status of a changed file.
type FileStatus string

const (
	FileModified   FileStatus = "M"
	FileAdded      FileStatus = "A"
	FileRemoved    FileStatus = "R"
	FileMissing    FileStatus = "!"
	FileUntracked  FileStatus = "?"
	FileUnresolved FileStatus = "U"
	FileResolved   FileStatus = "Resolved"
)

// ChangedFile is one entry of the uncommitted changes view.
type ChangedFile struct {
	Path   string     `json:"path"`
	Status FileStatus `json:"status"`
}

// UncommittedChanges is the list of changed files in the working copy.
type UncommittedChanges []ChangedFile

// Clone returns an independent copy.
func (u UncommittedChanges) Clone() UncommittedChanges {
	if u == nil {
		return nil
	}
	return slices.Clone(u)
}

// Paths returns the changed paths in order.
func (u UncommittedChanges) Paths() []string {
	out := make([]string, 0, len(u))
	for _, f := range u {
		out = append(out, f.Path)
	}
	return out
}

// Contains reports whether path has uncommitted changes.
func (u UncommittedChanges) Contains(path string) bool {
	return slices.ContainsFunc(u, func(f ChangedFile) bool { return f.Path == path })
}

// Without returns a copy without the given paths.
func (u UncommittedChanges) Without(paths ...string) UncommittedChanges {
	out := make(UncommittedChanges, 0, len(u))
	for _, f := range u {
		if !slices.Contains(paths, f.Path) {
			out = append(out, f)
		}
	}
	return out
}

// MergeConflicts describes an in-progress command that stopped on conflicts.
type MergeConflicts struct {
	// Command is the command that produced the conflicts, e.g. "rebase".
	Command    string        `json:"command"`
	ToContinue string        `json:"to_continue"`
	ToAbort    string        `json:"to_abort"`
	Files      []ChangedFile `json:"files"`
	FetchedAt  time.Time     `json:"fetched_at"`
}

// Clone returns an independent copy. A nil receiver yields nil.
func (m *MergeConflicts) Clone() *MergeConflicts {
	if m == nil {
		return nil
	}
	out := *m
	out.Files = slices.Clone(m.Files)
	return &out
}

// Resolved reports whether every conflicted file has been marked resolved.
func (m *MergeConflicts) Resolved() bool {
	if m == nil {
		return true
	}
	return !slices.ContainsFunc(m.Files, func(f ChangedFile) bool { return f.Status == FileUnresolved })
}

// UncommittedChangesPreviewContext exposes the current speculative
// uncommitted-changes state to an operation building its applier.
type UncommittedChangesPreviewContext struct {
	UncommittedChanges UncommittedChanges
}

// MergeConflictsPreviewContext exposes the current speculative merge-conflict
// state. Conflicts is nil when no command is stopped on conflicts.
type MergeConflictsPreviewContext struct {
	Conflicts *MergeConflicts
}

// ApplyUncommittedChangesFunc projects the uncommitted changes view. It must
// not modify its argument.
type ApplyUncommittedChangesFunc func(changes UncommittedChanges) UncommittedChanges

// ApplyMergeConflictsFunc projects the merge-conflict view. It must not
// modify its argument.
type ApplyMergeConflictsFunc func(conflicts *MergeConflicts) *MergeConflicts

// Snapshot is the authoritative repository state fetched at FetchedAt.
type Snapshot struct {
	Dag                Dag
	UncommittedChanges UncommittedChanges
	MergeConflicts     *MergeConflicts
	FetchedAt          time.Time
}
