// internal/agent/interfaces.go
package agent

import (
	"context"

	"github.com/xkilldash9x/seeclaw/internal/config"
	"github.com/xkilldash9x/seeclaw/internal/executor"
	"github.com/xkilldash9x/seeclaw/internal/history"
	"github.com/xkilldash9x/seeclaw/internal/llmclient"
	"github.com/xkilldash9x/seeclaw/internal/perception"
)

// ProviderResolver maps a model role to a provider and its call parameters.
type ProviderResolver interface {
	CallConfigForRole(role llmclient.ModelRole) (llmclient.Provider, llmclient.CallConfig, error)
}

// InputExecutor injects mouse and keyboard input at physical coordinates.
type InputExecutor interface {
	MouseClick(ctx context.Context, x, y int) error
	MouseDoubleClick(ctx context.Context, x, y int) error
	MouseRightClick(ctx context.Context, x, y int) error
	Scroll(ctx context.Context, x, y int, direction string, amount int) error
	TypeText(ctx context.Context, text string) error
	Hotkey(ctx context.Context, keys []string) error
	KeyPress(ctx context.Context, key string) error
}

var _ InputExecutor = executor.Driver(nil)

// TerminalRunner runs a shell command under the engine's limits.
type TerminalRunner interface {
	Run(ctx context.Context, command string) (executor.TerminalResult, error)
}

// ToolCaller invokes a tool on a named MCP server.
type ToolCaller interface {
	CallTool(ctx context.Context, server, tool string, args map[string]any) (string, error)
}

// SkillInvoker renders a named skill for the planner.
type SkillInvoker interface {
	Invoke(name string, inputs map[string]any) (string, error)
}

// plannerContexter is implemented by skill sources that can describe
// themselves in the system prompt.
type plannerContexter interface {
	PlannerContext() string
}

// serverLister is implemented by tool callers that can name their servers.
type serverLister interface {
	Servers() []string
}

// Deps bundles the engine's collaborators. Tools, Skills, History, Notifier,
// Policy and Loop are optional.
type Deps struct {
	Providers ProviderResolver
	Catalog   *llmclient.Catalog
	Perceiver perception.Perceiver
	Input     InputExecutor
	Terminal  TerminalRunner
	Tools     ToolCaller
	Skills    SkillInvoker
	History   history.Recorder
	Notifier  Notifier
	Policy    *ApprovalPolicy
	Loop      *LoopController

	Safety     config.SafetyConfig
	LoopConfig config.LoopConfig
	Perception config.PerceptionConfig
}
