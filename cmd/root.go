package cmd

import (
	"context"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/compozy/stackops/pkg/version"
)

var rootCmd = &cobra.Command{
	Use:   "stackops",
	Short: "Run source-control operations with optimistic previews",
	Long: `stackops queues source-control operations against a working copy and
shows the commit graph as it will look once they finish.

Operations run one at a time in submission order. While they are queued or
running, the graph is drawn with their expected effect applied; failed or
cancelled operations drop out of the view.`,
	SilenceUsage: true,
}

func init() {
	rootCmd.Version = version.Summary()
	flags := rootCmd.PersistentFlags()
	flags.String("repo", "", "Path inside the repository (defaults to the current directory)")
	flags.String("state-dir", "", "Directory for history and lock files")
	flags.String("command", "", "Source-control executable to run")
	flags.String("log-level", "", "Log level (debug, info, warn, error)")
	flags.String("log-format", "", "Log format (console, json)")
	bindFlag("repo_path", "repo")
	bindFlag("state_dir", "state-dir")
	bindFlag("command", "command")
	bindFlag("log_level", "log-level")
	bindFlag("log_format", "log-format")
}

func bindFlag(key, name string) {
	if err := viper.BindPFlag(key, rootCmd.PersistentFlags().Lookup(name)); err != nil {
		panic(err)
	}
}

func Execute(ctx context.Context) error {
	return rootCmd.ExecuteContext(ctx)
}
