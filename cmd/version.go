package cmd

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/compozy/stackops/internal/service"
	"github.com/compozy/stackops/pkg/version"
)

func newVersionCmd() *cobra.Command {
	var queryTool bool
	cmd := &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		RunE: func(cmd *cobra.Command, _ []string) error {
			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "Version:\t%s\n", safeValue(version.Version, "dev"))
			fmt.Fprintf(out, "Commit:\t%s\n", safeValue(version.CommitHash, "unknown"))
			fmt.Fprintf(out, "Built:\t%s\n", safeValue(version.BuildDate, "unknown"))
			if !queryTool {
				return nil
			}
			return withContainer(func(cmd *cobra.Command, c *container, _ []string) error {
				v, err := service.CheckToolVersion(cmd.Context(), c.toolSvc, c.cfg.MinToolVersion)
				if v != nil {
					fmt.Fprintf(out, "Tool:\t%s %s\n", c.cfg.Command, v)
				}
				return err
			})(cmd, nil)
		},
	}
	cmd.Flags().BoolVar(&queryTool, "tool", false, "Also query the configured source-control tool")
	return cmd
}

func safeValue(value, fallback string) string {
	trimmed := strings.TrimSpace(value)
	if trimmed == "" {
		return fallback
	}
	return trimmed
}
