// cmd/run.go
package cmd

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/xkilldash9x/seeclaw/internal/agent"
	"github.com/xkilldash9x/seeclaw/internal/executor"
	"github.com/xkilldash9x/seeclaw/internal/observability"
	"github.com/xkilldash9x/seeclaw/internal/perception"
)

type runOptions struct {
	dryRun      bool
	autoApprove bool
	grid        int
	stream      bool
}

func newRunCmd() *cobra.Command {
	var opts runOptions

	cmd := &cobra.Command{
		Use:   "run <goal>",
		Short: "Work on a goal until it is done, fails or is interrupted",
		Long: `Runs the agent loop against the live desktop. Actions that need approval
are confirmed on stdin. Press Ctrl-C to stop the current goal.`,
		Example: `  seeclaw run "open a terminal and list the home directory"
  seeclaw run --dry-run --grid 16 "close the browser window"`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := configFrom(cmd)
			if err != nil {
				return err
			}
			if opts.dryRun {
				cfg.ExecutorCfg.Driver = executor.DriverDryRun
			}
			if cmd.Flags().Changed("grid") {
				cfg.SetGridSize(perception.ClampGridSize(opts.grid))
			}

			ctx := cmd.Context()
			logger := observability.Component("cli.run")
			c, err := buildComponents(ctx, cfg, logger)
			if err != nil {
				return err
			}
			defer func() {
				if err := c.Close(); err != nil {
					logger.Warn("Cleanup failed.", zap.Error(err))
				}
			}()

			goal := strings.TrimSpace(strings.Join(args, " "))
			return runGoal(ctx, c, goal, cmd.InOrStdin(), cmd.OutOrStdout(), opts)
		},
	}

	cmd.Flags().BoolVar(&opts.dryRun, "dry-run", false, "log input events instead of injecting them")
	cmd.Flags().BoolVarP(&opts.autoApprove, "yes", "y", false, "approve every action that asks for confirmation")
	cmd.Flags().IntVar(&opts.grid, "grid", 0, "grid density used when no elements are detected")
	cmd.Flags().BoolVar(&opts.stream, "stream", true, "print model output as it streams")
	return cmd
}

// runGoal runs one goal on a fresh engine and follows it on the console.
func runGoal(ctx context.Context, c *components, goal string, in io.Reader, out io.Writer, opts runOptions) error {
	bufSize := c.cfg.Agent().EventBuffer * 4
	bus := agent.NewEventBus(c.logger, bufSize)
	defer bus.Shutdown()
	notices, unsubscribe := bus.Subscribe()
	defer unsubscribe()

	deps := c.deps
	deps.Notifier = agent.MultiNotifier{bus, agent.NewLogNotifier(c.logger)}
	engine := agent.NewEngine(deps, c.cfg.Agent(), c.logger)

	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()
	g, gctx := errgroup.WithContext(runCtx)
	g.Go(func() error { return engine.Run(gctx) })

	if err := engine.SubmitGoal(goal); err != nil {
		cancel()
		_ = g.Wait()
		return fmt.Errorf("failed to submit goal: %w", err)
	}

	con := &console{
		out:         out,
		engine:      engine,
		answers:     readLines(in),
		autoApprove: opts.autoApprove,
		showStream:  opts.stream,
		logger:      c.logger,
	}
	outcome := con.follow(gctx, notices)

	cancel()
	if err := g.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	if outcome == nil {
		c.logger.Info("Goal completed.", zap.String("goal", goal))
	}
	return outcome
}
