// cmd/app.go
package cmd

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"github.com/xkilldash9x/seeclaw/internal/agent"
	"github.com/xkilldash9x/seeclaw/internal/config"
	"github.com/xkilldash9x/seeclaw/internal/executor"
	"github.com/xkilldash9x/seeclaw/internal/history"
	"github.com/xkilldash9x/seeclaw/internal/llmclient"
	"github.com/xkilldash9x/seeclaw/internal/mcp"
	"github.com/xkilldash9x/seeclaw/internal/perception"
	"github.com/xkilldash9x/seeclaw/internal/skills"
)

// components holds everything an engine needs plus the resources that must
// be released when the command exits.
type components struct {
	cfg    *config.Config
	logger *zap.Logger
	deps   agent.Deps

	closers []func() error
}

// buildComponents wires the live collaborators described by cfg.
func buildComponents(ctx context.Context, cfg *config.Config, logger *zap.Logger) (*components, error) {
	c := &components{cfg: cfg, logger: logger}

	registry, err := llmclient.NewRegistryFromConfig(ctx, cfg.LLM(), logger)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize LLM providers: %w", err)
	}

	pc := cfg.Perception()
	detector, err := perception.LoadDetector(pc.Detector, logger)
	if err != nil {
		return nil, fmt.Errorf("failed to load element detector: %w", err)
	}
	if detector != nil {
		c.closers = append(c.closers, detector.Close)
	} else {
		logger.Info("No detector model configured; perception falls back to the grid.")
	}
	// No accessibility backend is available on this platform yet.
	pipeline := perception.NewPipeline(perception.NewScreenCapturer(pc.MonitorIndex), detector, nil, pc, logger)

	driver, err := executor.New(cfg.Executor(), logger)
	if err != nil {
		c.Close()
		return nil, fmt.Errorf("failed to initialize input driver: %w", err)
	}

	ac := cfg.Agent()
	c.deps = agent.Deps{
		Providers:  registry,
		Perceiver:  pipeline,
		Input:      driver,
		Terminal:   executor.NewTerminal(ac.TerminalTimeout, ac.MaxTerminalOutput, logger),
		Safety:     cfg.Safety(),
		LoopConfig: cfg.Loop(),
		Perception: pc,
	}

	skillRegistry, err := skills.NewRegistryFromConfig(cfg.Skills(), logger)
	if err != nil {
		c.Close()
		return nil, fmt.Errorf("failed to load skills: %w", err)
	}
	c.deps.Skills = skillRegistry

	if len(cfg.MCP().Servers) > 0 {
		manager := mcp.NewManager(cfg.MCP(), logger)
		c.deps.Tools = manager
		c.closers = append(c.closers, manager.Close)
	}

	if hc := cfg.History(); hc.Enabled {
		session, err := history.Open(hc.Dir, logger)
		if err != nil {
			c.Close()
			return nil, fmt.Errorf("failed to open session history: %w", err)
		}
		logger.Info("Recording session history.", zap.String("session_id", session.ID()), zap.String("path", session.Path()))
		c.deps.History = session
		c.closers = append(c.closers, session.Close)
	}

	return c, nil
}

// Close releases resources in reverse order of acquisition.
func (c *components) Close() error {
	var errs []error
	for i := len(c.closers) - 1; i >= 0; i-- {
		if err := c.closers[i](); err != nil {
			errs = append(errs, err)
		}
	}
	c.closers = nil
	return errors.Join(errs...)
}
