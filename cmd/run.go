package cmd

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"sync"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/compozy/stackops/internal/domain"
	"github.com/compozy/stackops/internal/orchestrator"
	"github.com/compozy/stackops/internal/output"
	"github.com/compozy/stackops/internal/service"
	"github.com/compozy/stackops/internal/usecase"
)

// ErrOperationCancelled is returned when run is interrupted.
var ErrOperationCancelled = errors.New("operation cancelled")

func newRunCmd() *cobra.Command {
	var (
		flags     opFlags
		showGraph bool
	)
	cmd := &cobra.Command{
		Use:   "run <kind>",
		Short: "Run an operation and stream its output",
		Long: `Run an operation against the working copy and stream its output.

The working copy is locked while the operation runs, so concurrent stackops
processes take turns. Interrupting the command cancels the operation. With
--graph the optimistic graph is printed before the operation starts and the
refreshed graph once it has finished.`,
		Example: `  stackops run goto -d abc123
  stackops run commit -m "Fix parser" --file parser.go
  stackops run discard --runner internal`,
		Args: kindArg,
		RunE: withContainer(func(cmd *cobra.Command, c *container, args []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			return runOperation(ctx, cmd, c, args[0], flags.params(c.cfg.Runner), showGraph)
		}),
	}
	flags.register(cmd)
	cmd.Flags().BoolVar(&showGraph, "graph", false, "Print the graph before and after the operation")
	return cmd
}

func runOperation(
	ctx context.Context,
	cmd *cobra.Command,
	c *container,
	kind string,
	params usecase.OperationParams,
	showGraph bool,
) error {
	if params.Runner == domain.RunnerPrimary && c.cfg.MinToolVersion != "" {
		v, err := service.CheckToolVersion(ctx, c.toolSvc, c.cfg.MinToolVersion)
		if err != nil {
			return err
		}
		c.logger.Debug("tool version accepted", zap.String("version", v.String()))
	}

	out := output.New(cmd.OutOrStdout())
	var outMu sync.Mutex
	cfg, err := c.sessionConfig(func(ev domain.ProgressEvent) {
		outMu.Lock()
		defer outMu.Unlock()
		out.Event(ev)
	})
	if err != nil {
		return err
	}
	session := orchestrator.NewSession(cfg)
	if _, err := session.Start(ctx); err != nil {
		return err
	}
	// Waiting must outlive the interrupt that cancels the operation.
	shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), orchestrator.ShutdownTimeout)
	defer cancel()
	defer func() {
		if err := session.Close(shutdownCtx); err != nil {
			c.logger.Warn("failed to stop operation queue", zap.Error(err))
		}
	}()

	build := &usecase.BuildOperationUseCase{Snapshot: session.Snapshot()}
	op, err := build.Execute(kind, params)
	if err != nil {
		return err
	}
	if err := session.Submit(op); err != nil {
		return err
	}
	if showGraph {
		outMu.Lock()
		view := session.View()
		out.View(view, session.Tracker().InlineProgressFor(view.Dag))
		outMu.Unlock()
	}
	if err := session.Wait(shutdownCtx); err != nil {
		return fmt.Errorf("failed to wait for %s: %w", domain.OpName(op), err)
	}

	entry, ok := session.Tracker().Get(op.ID())
	if !ok {
		return fmt.Errorf("%w: %s", orchestrator.ErrUnknownOperation, op.ID())
	}
	if showGraph {
		outMu.Lock()
		out.View(session.View(), nil)
		outMu.Unlock()
	}
	switch entry.State {
	case domain.OperationStateSucceeded:
		return nil
	case domain.OperationStateCancelled:
		return ErrOperationCancelled
	default:
		return fmt.Errorf("%s failed: %s", domain.OpName(op), entry.Error)
	}
}
