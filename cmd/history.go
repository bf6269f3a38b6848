package cmd

import (
	"fmt"

	"github.com/samber/lo"
	"github.com/spf13/cobra"

	"github.com/compozy/stackops/internal/domain"
	"github.com/compozy/stackops/internal/output"
	"github.com/compozy/stackops/internal/usecase"
)

func newHistoryCmd() *cobra.Command {
	var (
		limit  int
		states []string
		prune  int
	)
	cmd := &cobra.Command{
		Use:   "history",
		Short: "List finished operations, newest first",
		Args:  cobra.NoArgs,
		RunE: withContainer(func(cmd *cobra.Command, c *container, _ []string) error {
			if prune >= 0 {
				removed, err := c.historyRepo.Prune(cmd.Context(), prune)
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Removed %d records\n", removed)
				return nil
			}
			filter, err := parseStates(states)
			if err != nil {
				return err
			}
			list := &usecase.ListHistoryUseCase{History: c.historyRepo}
			records, err := list.Execute(cmd.Context(), limit, filter...)
			if err != nil {
				return err
			}
			output.New(cmd.OutOrStdout()).History(records)
			return nil
		}),
	}
	cmd.Flags().IntVarP(&limit, "limit", "n", 20, "Maximum number of records to show (0 shows all)")
	cmd.Flags().StringSliceVar(&states, "state", nil, "Only show records in these states (succeeded, failed, cancelled)")
	cmd.Flags().IntVar(&prune, "prune", -1, "Delete all but the newest N records instead of listing")
	return cmd
}

func parseStates(values []string) ([]domain.OperationState, error) {
	states := lo.Map(values, func(v string, _ int) domain.OperationState { return domain.OperationState(v) })
	for _, s := range states {
		if !s.Terminal() {
			return nil, fmt.Errorf("invalid state %q: history only holds succeeded, failed or cancelled operations", s)
		}
	}
	return states, nil
}
