// Package output renders views, events and history for the terminal.
// Colors are disabled when the destination is not a TTY.
package output

import (
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/fatih/color"
	"github.com/mattn/go-isatty"

	"github.com/compozy/stackops/internal/domain"
	"github.com/compozy/stackops/internal/preview"
)

type fder interface {
	Fd() uintptr
}

// IsTerminal reports whether w is a terminal.
func IsTerminal(w io.Writer) bool {
	f, ok := w.(fder)
	if !ok {
		return false
	}
	return isatty.IsTerminal(f.Fd()) || isatty.IsCygwinTerminal(f.Fd())
}

// Writer renders stackops data to w.
type Writer struct {
	w io.Writer

	dot, hash, bookmark, optimistic, muted, warn, fail, ok *color.Color
}

// New creates a writer. Colors follow IsTerminal(w).
func New(w io.Writer) *Writer {
	return newWriter(w, IsTerminal(w))
}

func newWriter(w io.Writer, colored bool) *Writer {
	mk := func(attrs ...color.Attribute) *color.Color {
		c := color.New(attrs...)
		if colored {
			c.EnableColor()
		} else {
			c.DisableColor()
		}
		return c
	}
	return &Writer{
		w:          w,
		dot:        mk(color.FgGreen, color.Bold),
		hash:       mk(color.FgYellow),
		bookmark:   mk(color.FgCyan),
		optimistic: mk(color.FgMagenta),
		muted:      mk(color.Faint),
		warn:       mk(color.FgYellow),
		fail:       mk(color.FgRed),
		ok:         mk(color.FgGreen),
	}
}

// InlineProgressFunc looks up the progress label of a commit.
type InlineProgressFunc func(hash string) (string, bool)

// View prints the commit graph newest first, then the uncommitted changes and
// any merge conflicts.
func (o *Writer) View(v preview.View, progress InlineProgressFunc) {
	for _, c := range v.Dag.Commits() {
		o.commit(c, progress)
	}
	if len(v.UncommittedChanges) > 0 {
		_, _ = fmt.Fprintln(o.w)
		_, _ = fmt.Fprintln(o.w, "Uncommitted changes:")
		for _, f := range v.UncommittedChanges {
			_, _ = fmt.Fprintf(o.w, "  %-8s %s\n", f.Status, f.Path)
		}
	}
	if mc := v.MergeConflicts; mc != nil {
		_, _ = fmt.Fprintln(o.w)
		_, _ = fmt.Fprintln(o.w, o.warn.Sprintf("Unresolved %s conflicts:", mc.Command))
		for _, f := range mc.Files {
			_, _ = fmt.Fprintf(o.w, "  %-8s %s\n", f.Status, f.Path)
		}
		if mc.Resolved() {
			_, _ = fmt.Fprintf(o.w, "All conflicts resolved. Continue with: %s\n", mc.ToContinue)
		} else {
			_, _ = fmt.Fprintf(o.w, "Abort with: %s\n", mc.ToAbort)
		}
	}
}

func (o *Writer) commit(c domain.CommitInfo, progress InlineProgressFunc) {
	marker := "o"
	switch {
	case c.IsDot:
		marker = o.dot.Sprint("@")
	case c.Phase == domain.PhasePublic:
		marker = o.muted.Sprint(".")
	}
	parts := []string{marker, o.hash.Sprint(domain.ShortHash(c.Hash)), c.Title}
	if len(c.Bookmarks) > 0 {
		parts = append(parts, o.bookmark.Sprintf("(%s)", strings.Join(c.Bookmarks, ", ")))
	}
	if c.PreviewType != domain.PreviewNone {
		parts = append(parts, o.optimistic.Sprintf("[%s]", strings.ReplaceAll(string(c.PreviewType), "_", " ")))
	} else if c.Optimistic {
		parts = append(parts, o.optimistic.Sprint("[pending]"))
	}
	if progress != nil {
		if label, ok := progress(c.Hash); ok {
			parts = append(parts, o.muted.Sprint(label))
		}
	}
	_, _ = fmt.Fprintln(o.w, strings.Join(parts, "  "))
}

// Event prints a runner event as it streams in.
func (o *Writer) Event(ev domain.ProgressEvent) {
	switch ev.Kind {
	case domain.ProgressSpawn:
		_, _ = fmt.Fprintln(o.w, o.muted.Sprintf("$ %s", ev.Message))
	case domain.ProgressStdout:
		_, _ = fmt.Fprintln(o.w, ev.Message)
	case domain.ProgressStderr:
		_, _ = fmt.Fprintln(o.w, o.warn.Sprint(ev.Message))
	case domain.ProgressPercent:
		_, _ = fmt.Fprintln(o.w, o.muted.Sprintf("[%3d%%] %s", ev.Percent, ev.Message))
	case domain.ProgressInlineProgress:
		if ev.Message != "" {
			_, _ = fmt.Fprintln(o.w, o.muted.Sprintf("%s: %s", domain.ShortHash(ev.Hash), ev.Message))
		}
	case domain.ProgressExit:
		if ev.ExitCode == 0 {
			_, _ = fmt.Fprintln(o.w, o.ok.Sprint("✓ done"))
		} else {
			_, _ = fmt.Fprintln(o.w, o.fail.Sprintf("✗ exited with code %d", ev.ExitCode))
		}
	case domain.ProgressError:
		_, _ = fmt.Fprintln(o.w, o.fail.Sprintf("✗ %s", ev.Message))
	case domain.ProgressCancelled:
		_, _ = fmt.Fprintln(o.w, o.warn.Sprint("cancelled"))
	}
}

// History prints operation records, one per line.
func (o *Writer) History(records []*domain.OperationRecord) {
	if len(records) == 0 {
		_, _ = fmt.Fprintln(o.w, "No operations recorded.")
		return
	}
	for _, r := range records {
		state := string(r.State)
		switch r.State {
		case domain.OperationStateSucceeded:
			state = o.ok.Sprint(state)
		case domain.OperationStateFailed:
			state = o.fail.Sprint(state)
		case domain.OperationStateCancelled:
			state = o.warn.Sprint(state)
		}
		line := fmt.Sprintf("%s  %-9s  %-10s  %s",
			o.muted.Sprint(r.QueuedAt.Local().Format(time.DateTime)), state, r.Name, r.Description)
		if d := r.Duration(); d > 0 {
			line += o.muted.Sprintf("  (%s)", d.Round(time.Millisecond))
		}
		if r.Error != "" {
			line += "  " + o.fail.Sprint(r.Error)
		}
		_, _ = fmt.Fprintln(o.w, line)
	}
}
