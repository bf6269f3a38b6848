package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/compozy/stackops/internal/domain"
	"github.com/compozy/stackops/internal/orchestrator"
	"github.com/compozy/stackops/internal/output"
	"github.com/compozy/stackops/internal/usecase"
)

func newPreviewCmd() *cobra.Command {
	var flags opFlags
	cmd := &cobra.Command{
		Use:   "preview <kind>",
		Short: "Show the graph as it would look after an operation, without running it",
		Example: `  stackops preview rebase -s abc123 -d main
  stackops preview hide --target abc123`,
		Args: kindArg,
		RunE: withContainer(func(cmd *cobra.Command, c *container, args []string) error {
			cfg, err := c.sessionConfig(nil)
			if err != nil {
				return err
			}
			session := orchestrator.NewSession(cfg)
			if _, err := session.Refresh(cmd.Context()); err != nil {
				return err
			}
			build := &usecase.BuildOperationUseCase{Snapshot: session.Snapshot()}
			op, err := build.Execute(args[0], flags.params(c.cfg.Runner))
			if err != nil {
				return err
			}
			desc := domain.Describe(op)
			fmt.Fprintf(cmd.OutOrStdout(), "Preview of: %s\n\n", desc.Description)
			output.New(cmd.OutOrStdout()).View(session.Preview(op), nil)
			return nil
		}),
	}
	flags.register(cmd)
	return cmd
}
