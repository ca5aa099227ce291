// cmd/serve.go
package cmd

import (
	"context"
	"errors"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/xkilldash9x/seeclaw/internal/agent"
	"github.com/xkilldash9x/seeclaw/internal/executor"
	"github.com/xkilldash9x/seeclaw/internal/observability"
	"github.com/xkilldash9x/seeclaw/internal/server"
)

func newServeCmd() *cobra.Command {
	var (
		listen string
		dryRun bool
	)

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Host the agent for a frontend over HTTP and WebSocket",
		Long: `Starts the agent engine and a local bridge. Frontends connect to
/ws/v1/events for live state, activity, approvals and stream chunks, and send
start_task, stop_task, confirm_action and chat commands over the same socket
or POST /api/v1/command.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := configFrom(cmd)
			if err != nil {
				return err
			}
			if listen != "" {
				cfg.ServerCfg.ListenAddr = listen
			}
			if dryRun {
				cfg.ExecutorCfg.Driver = executor.DriverDryRun
			}

			ctx := cmd.Context()
			logger := observability.Component("cli.serve")
			c, err := buildComponents(ctx, cfg, logger)
			if err != nil {
				return err
			}
			defer func() {
				if err := c.Close(); err != nil {
					logger.Warn("Cleanup failed.", zap.Error(err))
				}
			}()

			bus := agent.NewEventBus(logger, cfg.Agent().EventBuffer*4)
			defer bus.Shutdown()

			deps := c.deps
			deps.Notifier = agent.MultiNotifier{bus, agent.NewLogNotifier(logger)}
			engine := agent.NewEngine(deps, cfg.Agent(), logger)
			srv := server.New(cfg, engine, bus, Version, logger)

			g, gctx := errgroup.WithContext(ctx)
			g.Go(func() error { return engine.Run(gctx) })
			g.Go(func() error { return srv.Start(gctx) })

			if err := g.Wait(); err != nil && !errors.Is(err, context.Canceled) {
				return err
			}
			return nil
		},
	}

	cmd.Flags().StringVar(&listen, "listen", "", "override server.listen_addr")
	cmd.Flags().BoolVar(&dryRun, "dry-run", false, "log input events instead of injecting them")
	return cmd
}
