// cmd/run_test.go
package cmd

import (
	"bytes"
	"context"
	"fmt"
	"strings"
	"sync"
	"testing"

	json "github.com/json-iterator/go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
	"go.uber.org/zap/zaptest"

	"github.com/xkilldash9x/seeclaw/internal/agent"
	"github.com/xkilldash9x/seeclaw/internal/config"
	"github.com/xkilldash9x/seeclaw/internal/executor"
	"github.com/xkilldash9x/seeclaw/internal/llmclient"
	"github.com/xkilldash9x/seeclaw/internal/perception"
)

// queueProvider answers planner calls from a fixed queue of tool calls.
type queueProvider struct {
	mu    sync.Mutex
	calls []llmclient.ToolCall
	seen  int
}

func (q *queueProvider) Name() string { return "queue" }

func (q *queueProvider) Chat(ctx context.Context, _ []llmclient.Message, _ []llmclient.ToolDef, _ llmclient.CallConfig, _ llmclient.ChunkSink) (*llmclient.Response, error) {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.seen++
	if len(q.calls) == 0 {
		return &llmclient.Response{Content: "nothing left to do"}, nil
	}
	next := q.calls[0]
	q.calls = q.calls[1:]
	return &llmclient.Response{ToolCalls: []llmclient.ToolCall{next}, FinishReason: "tool_calls"}, nil
}

func (q *queueProvider) CallConfigForRole(llmclient.ModelRole) (llmclient.Provider, llmclient.CallConfig, error) {
	return q, llmclient.CallConfig{Model: "test"}, nil
}

func call(id, name string, args map[string]any) llmclient.ToolCall {
	raw, err := json.Marshal(args)
	if err != nil {
		panic(err)
	}
	return llmclient.ToolCall{ID: id, Name: name, Arguments: string(raw)}
}

type stillScreen struct{}

func (stillScreen) Perceive(context.Context, perception.PerceiveOptions) (*perception.Snapshot, error) {
	return &perception.Snapshot{
		Image:  []byte("png"),
		Meta:   perception.ScreenshotMeta{PhysicalWidth: 800, PhysicalHeight: 600, ScaleFactor: 1, LogicalWidth: 800, LogicalHeight: 600},
		GridN:  8,
		Source: perception.SourceGrid,
	}, nil
}

func (stillScreen) Capturer() perception.Capturer { return nil }

type mockTerminal struct {
	mock.Mock
}

func (m *mockTerminal) Run(ctx context.Context, command string) (executor.TerminalResult, error) {
	args := m.Called(ctx, command)
	return args.Get(0).(executor.TerminalResult), args.Error(1)
}

func testComponents(t *testing.T, provider *queueProvider, terminal agent.TerminalRunner) *components {
	cfg := config.NewDefaultConfig()
	cfg.SafetyCfg.AllowTerminalCommands = true
	cfg.AgentCfg.SettleDelay = 0
	input, err := executor.New(config.ExecutorConfig{Driver: executor.DriverDryRun}, zaptest.NewLogger(t))
	require.NoError(t, err)
	return &components{
		cfg:    cfg,
		logger: zaptest.NewLogger(t),
		deps: agent.Deps{
			Providers:  provider,
			Perceiver:  stillScreen{},
			Input:      input,
			Terminal:   terminal,
			Safety:     cfg.Safety(),
			LoopConfig: cfg.Loop(),
			Perception: cfg.Perception(),
		},
	}
}

func TestRunGoal_ApprovedTerminalThenDone(t *testing.T) {
	defer goleak.VerifyNone(t)

	term := &mockTerminal{}
	term.On("Run", mock.Anything, "ls ~").Return(executor.TerminalResult{Stdout: "notes.txt\n"}, nil).Once()
	provider := &queueProvider{calls: []llmclient.ToolCall{
		call("c1", llmclient.ToolExecuteTerminal, map[string]any{"command": "ls ~", "reason": "list files"}),
		call("c2", llmclient.ToolFinishTask, map[string]any{"summary": "Listed the home directory."}),
	}}
	c := testComponents(t, provider, term)

	out := new(bytes.Buffer)
	err := runGoal(context.Background(), c, "list my files", strings.NewReader("y\n"), out, runOptions{})
	require.NoError(t, err)

	text := out.String()
	assert.Contains(t, text, "[planning] planning: list my files")
	assert.Contains(t, text, "Approval required for execute_terminal")
	assert.Contains(t, text, "[done] done: Listed the home directory.")
	term.AssertExpectations(t)
}

func TestRunGoal_RejectedTerminal(t *testing.T) {
	defer goleak.VerifyNone(t)

	term := &mockTerminal{}
	provider := &queueProvider{calls: []llmclient.ToolCall{
		call("c1", llmclient.ToolExecuteTerminal, map[string]any{"command": "rm -rf /tmp/x"}),
	}}
	c := testComponents(t, provider, term)

	out := new(bytes.Buffer)
	err := runGoal(context.Background(), c, "clean up", strings.NewReader("n\n"), out, runOptions{})
	assert.ErrorIs(t, err, errGoalAbandoned)
	term.AssertNotCalled(t, "Run", mock.Anything, mock.Anything)
}

func TestRunGoal_ReportFailure(t *testing.T) {
	defer goleak.VerifyNone(t)

	provider := &queueProvider{calls: []llmclient.ToolCall{
		call("c1", llmclient.ToolKeyPress, map[string]any{"key": "Return"}),
		call("c2", llmclient.ToolReportFailure, map[string]any{"reason": "dialog never appeared"}),
	}}
	c := testComponents(t, provider, &mockTerminal{})

	out := new(bytes.Buffer)
	err := runGoal(context.Background(), c, "confirm the dialog", strings.NewReader(""), out, runOptions{autoApprove: true})
	require.Error(t, err)
	assert.Equal(t, "goal failed: dialog never appeared", err.Error())
	assert.Equal(t, 2, provider.seen)
}

func TestRunGoal_EmptyGoal(t *testing.T) {
	defer goleak.VerifyNone(t)

	c := testComponents(t, &queueProvider{}, &mockTerminal{})
	err := runGoal(context.Background(), c, "   ", strings.NewReader(""), new(bytes.Buffer), runOptions{})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to submit goal")
}

func TestComponentsClose(t *testing.T) {
	var order []string
	failing := fmt.Errorf("detector busy")
	c := &components{closers: []func() error{
		func() error { order = append(order, "detector"); return failing },
		func() error { order = append(order, "history"); return nil },
	}}

	err := c.Close()
	assert.ErrorIs(t, err, failing)
	assert.Equal(t, []string{"history", "detector"}, order)
	assert.NoError(t, c.Close(), "second close is a no-op")
}
