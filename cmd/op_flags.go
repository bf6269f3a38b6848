package cmd

import (
	"fmt"
	"strings"

	"github.com/samber/lo"
	"github.com/spf13/cobra"

	"github.com/compozy/stackops/internal/domain"
	"github.com/compozy/stackops/internal/usecase"
)

// opFlags holds the flags shared by preview and run.
type opFlags struct {
	message     string
	files       []string
	target      string
	source      string
	destination string
	rev         string
	path        string
	mode        string
	toAbort     string
	runner      string
}

func (f *opFlags) register(cmd *cobra.Command) {
	flags := cmd.Flags()
	flags.StringVarP(&f.message, "message", "m", "", "Commit message (commit, amend)")
	flags.StringSliceVar(&f.files, "file", nil, "Repository-relative files to include (commit, amend, revert)")
	flags.StringVar(&f.target, "target", "", "Commit to operate on (amend, hide)")
	flags.StringVarP(&f.source, "source", "s", "", "Commit to move (rebase)")
	flags.StringVarP(&f.destination, "dest", "d", "", "Destination commit (rebase, goto)")
	flags.StringVarP(&f.rev, "rev", "r", "", "Revision to restore files from (revert)")
	flags.StringVar(&f.path, "path", "", "Conflicted file (resolve)")
	flags.StringVar(&f.mode, "mode", "", "Resolve mode: mark, unmark, local, other, merge (resolve)")
	flags.StringVar(&f.toAbort, "abort-command", "", "Command that aborts the conflicted operation (abort)")
	flags.StringVar(&f.runner, "runner", "", "Executor to use: primary or internal (defaults to config)")
}

func (f *opFlags) params(defaultRunner string) usecase.OperationParams {
	runner := f.runner
	if runner == "" {
		runner = defaultRunner
	}
	return usecase.OperationParams{
		Message:     f.message,
		Files:       f.files,
		Target:      f.target,
		Source:      f.source,
		Destination: f.destination,
		Rev:         f.rev,
		Path:        f.path,
		Mode:        f.mode,
		ToAbort:     f.toAbort,
		Runner:      domain.CommandRunner(runner),
	}
}

// kindArg validates the operation kind positional argument.
func kindArg(_ *cobra.Command, args []string) error {
	if len(args) != 1 {
		return fmt.Errorf("expected one operation kind: %s", strings.Join(usecase.Kinds, ", "))
	}
	if lo.Contains(usecase.Kinds, args[0]) {
		return nil
	}
	return fmt.Errorf("unknown operation kind %q, expected one of: %s", args[0], strings.Join(usecase.Kinds, ", "))
}
