package cmd

import (
	"github.com/spf13/cobra"

	"github.com/compozy/stackops/internal/orchestrator"
	"github.com/compozy/stackops/internal/output"
)

func newLogCmd() *cobra.Command {
	var limit int
	cmd := &cobra.Command{
		Use:   "log",
		Short: "Show the commit graph, uncommitted changes and conflicts",
		Args:  cobra.NoArgs,
		RunE: withContainer(func(cmd *cobra.Command, c *container, _ []string) error {
			if limit > 0 {
				c.cfg.DagLimit = limit
			}
			cfg, err := c.sessionConfig(nil)
			if err != nil {
				return err
			}
			session := orchestrator.NewSession(cfg)
			view, err := session.Refresh(cmd.Context())
			if err != nil {
				return err
			}
			output.New(cmd.OutOrStdout()).View(view, nil)
			return nil
		}),
	}
	cmd.Flags().IntVarP(&limit, "limit", "l", 0, "Maximum number of commits to load (defaults to dag_limit)")
	return cmd
}
