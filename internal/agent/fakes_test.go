// internal/agent/fakes_test.go
package agent

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	json "github.com/json-iterator/go"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/xkilldash9x/seeclaw/internal/config"
	"github.com/xkilldash9x/seeclaw/internal/executor"
	"github.com/xkilldash9x/seeclaw/internal/llmclient"
	"github.com/xkilldash9x/seeclaw/internal/perception"
)

// -- LLM fakes --

type scripted struct {
	resp *llmclient.Response
	err  error
}

// scriptedProvider replays canned replies in order. Once the script runs out
// it blocks until the call context ends, like a model that never answers.
type scriptedProvider struct {
	name string

	mu     sync.Mutex
	script []scripted
	calls  [][]llmclient.Message
}

func newScriptedProvider(name string, replies ...scripted) *scriptedProvider {
	return &scriptedProvider{name: name, script: replies}
}

func (p *scriptedProvider) Name() string { return p.name }

func (p *scriptedProvider) Chat(ctx context.Context, msgs []llmclient.Message, _ []llmclient.ToolDef, _ llmclient.CallConfig, sink llmclient.ChunkSink) (*llmclient.Response, error) {
	p.mu.Lock()
	p.calls = append(p.calls, append([]llmclient.Message(nil), msgs...))
	var next *scripted
	if len(p.script) > 0 {
		next = &p.script[0]
		p.script = p.script[1:]
	}
	p.mu.Unlock()

	if next == nil {
		<-ctx.Done()
		return nil, ctx.Err()
	}
	if next.resp != nil && sink != nil {
		sink(llmclient.StreamChunk{Kind: llmclient.ChunkContent, Content: next.resp.Content})
	}
	return next.resp, next.err
}

func (p *scriptedProvider) callCount() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.calls)
}

// lastMessage returns the final message of call i (zero based).
func (p *scriptedProvider) lastMessage(i int) llmclient.Message {
	p.mu.Lock()
	defer p.mu.Unlock()
	msgs := p.calls[i]
	return msgs[len(msgs)-1]
}

func (p *scriptedProvider) call(i int) []llmclient.Message {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.calls[i]
}

func toolReply(calls ...llmclient.ToolCall) scripted {
	return scripted{resp: &llmclient.Response{ToolCalls: calls, FinishReason: "tool_calls"}}
}

func textReply(content string) scripted {
	return scripted{resp: &llmclient.Response{Content: content, FinishReason: "stop"}}
}

var callSeq int

func toolCall(name string, args map[string]any) llmclient.ToolCall {
	callSeq++
	raw, err := json.Marshal(args)
	if err != nil {
		panic(err)
	}
	return llmclient.ToolCall{ID: fmt.Sprintf("call_%d", callSeq), Name: name, Arguments: string(raw)}
}

type fakeProviders struct {
	planner llmclient.Provider
	vision  llmclient.Provider
	chat    llmclient.Provider
}

func (f fakeProviders) CallConfigForRole(role llmclient.ModelRole) (llmclient.Provider, llmclient.CallConfig, error) {
	var p llmclient.Provider
	switch role {
	case llmclient.RoleVision:
		p = f.vision
	case llmclient.RoleChat:
		p = f.chat
	default:
		p = f.planner
	}
	if p == nil {
		return nil, llmclient.CallConfig{}, fmt.Errorf("no provider for role %s", role)
	}
	return p, llmclient.CallConfig{Model: "test-" + string(role)}, nil
}

// -- Perception fake --

type fakePerceiver struct {
	mu    sync.Mutex
	snap  perception.Snapshot
	count int
}

func newGridPerceiver(w, h, n int) *fakePerceiver {
	return &fakePerceiver{snap: perception.Snapshot{
		Image:  []byte("png"),
		Meta:   perception.ScreenshotMeta{PhysicalWidth: w, PhysicalHeight: h, ScaleFactor: 1, LogicalWidth: w, LogicalHeight: h},
		GridN:  n,
		Source: perception.SourceGrid,
	}}
}

func (f *fakePerceiver) Perceive(ctx context.Context, opts perception.PerceiveOptions) (*perception.Snapshot, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.count++
	snap := f.snap
	return &snap, nil
}

func (f *fakePerceiver) Capturer() perception.Capturer { return nil }

// -- Input fake --

// recordingInput logs every injected event as a short string.
type recordingInput struct {
	mu         sync.Mutex
	events     []string
	panicOnKey bool
	failClicks bool
}

func (r *recordingInput) add(format string, a ...any) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, fmt.Sprintf(format, a...))
}

func (r *recordingInput) Events() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]string(nil), r.events...)
}

func (r *recordingInput) MouseClick(_ context.Context, x, y int) error {
	r.add("click %d,%d", x, y)
	if r.failClicks {
		return errors.New("pointer is stuck")
	}
	return nil
}

func (r *recordingInput) MouseDoubleClick(_ context.Context, x, y int) error {
	r.add("double %d,%d", x, y)
	return nil
}

func (r *recordingInput) MouseRightClick(_ context.Context, x, y int) error {
	r.add("right %d,%d", x, y)
	return nil
}

func (r *recordingInput) Scroll(_ context.Context, x, y int, direction string, amount int) error {
	r.add("scroll %s %d at %d,%d", direction, amount, x, y)
	return nil
}

func (r *recordingInput) TypeText(_ context.Context, text string) error {
	r.add("type %s", text)
	return nil
}

func (r *recordingInput) Hotkey(_ context.Context, keys []string) error {
	r.add("hotkey %v", keys)
	return nil
}

func (r *recordingInput) KeyPress(_ context.Context, key string) error {
	if r.panicOnKey {
		panic("keyboard on fire")
	}
	r.add("key %s", key)
	return nil
}

// -- Terminal mock --

type mockTerminal struct {
	mock.Mock
}

func (m *mockTerminal) Run(ctx context.Context, command string) (executor.TerminalResult, error) {
	args := m.Called(ctx, command)
	return args.Get(0).(executor.TerminalResult), args.Error(1)
}

// -- Notifier fake --

type recordingNotifier struct {
	mu        sync.Mutex
	states    []State
	approvals []ApprovalRequest
	viewports int
	cancelled int
	chunks    int
}

func (n *recordingNotifier) StateChanged(s State) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.states = append(n.states, s)
	return nil
}

func (n *recordingNotifier) Activity(string) error { return nil }

func (n *recordingNotifier) ApprovalRequired(req ApprovalRequest) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.approvals = append(n.approvals, req)
	return nil
}

func (n *recordingNotifier) ViewportCaptured(ViewportInfo) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.viewports++
	return nil
}

func (n *recordingNotifier) StreamChunk(llmclient.StreamChunk) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.chunks++
	return nil
}

func (n *recordingNotifier) TaskCancelled() error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.cancelled++
	return nil
}

// last returns the most recent state of the given kind.
func (n *recordingNotifier) last(kind StateKind) (State, bool) {
	n.mu.Lock()
	defer n.mu.Unlock()
	for i := len(n.states) - 1; i >= 0; i-- {
		if n.states[i].Kind() == kind {
			return n.states[i], true
		}
	}
	return nil, false
}

func (n *recordingNotifier) cancelCount() int {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.cancelled
}

func (n *recordingNotifier) approvalRequests() []ApprovalRequest {
	n.mu.Lock()
	defer n.mu.Unlock()
	return append([]ApprovalRequest(nil), n.approvals...)
}

// -- Harness --

const (
	waitFor = 2 * time.Second
	tick    = 5 * time.Millisecond
)

type harness struct {
	engine   *Engine
	planner  *scriptedProvider
	vision   *scriptedProvider
	input    *recordingInput
	notifier *recordingNotifier
	stop     func()
}

type harnessOption func(*Deps, *config.AgentConfig)

func withLoop(loop config.LoopConfig) harnessOption {
	return func(d *Deps, _ *config.AgentConfig) { d.LoopConfig = loop }
}

func withSafety(s config.SafetyConfig) harnessOption {
	return func(d *Deps, _ *config.AgentConfig) { d.Safety = s }
}

func withTerminal(r TerminalRunner) harnessOption {
	return func(d *Deps, _ *config.AgentConfig) { d.Terminal = r }
}

func withLoopController(lc *LoopController) harnessOption {
	return func(d *Deps, _ *config.AgentConfig) { d.Loop = lc }
}

func withAgentConfig(fn func(*config.AgentConfig)) harnessOption {
	return func(_ *Deps, c *config.AgentConfig) { fn(c) }
}

// startHarness builds an engine over fakes and runs it until the test ends.
func startHarness(t *testing.T, planner, vision *scriptedProvider, opts ...harnessOption) *harness {
	t.Helper()
	h := &harness{
		planner:  planner,
		vision:   vision,
		input:    &recordingInput{},
		notifier: &recordingNotifier{},
	}
	deps := Deps{
		Providers:  fakeProviders{planner: planner, vision: vision},
		Perceiver:  newGridPerceiver(1200, 800, 12),
		Input:      h.input,
		Notifier:   h.notifier,
		Perception: config.PerceptionConfig{GridSize: 12},
	}
	cfg := config.AgentConfig{VisionTimeout: time.Minute, MaxEvalCycles: 3}
	for _, opt := range opts {
		opt(&deps, &cfg)
	}
	h.engine = NewEngine(deps, cfg, zaptest.NewLogger(t))

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- h.engine.Run(ctx) }()

	var once sync.Once
	h.stop = func() {
		once.Do(func() {
			cancel()
			select {
			case err := <-done:
				require.True(t, errors.Is(err, context.Canceled), "Run returned %v", err)
			case <-time.After(waitFor):
				t.Fatal("engine did not stop")
			}
		})
	}
	t.Cleanup(h.stop)
	return h
}

func (h *harness) waitState(t *testing.T, kind StateKind) {
	t.Helper()
	require.Eventually(t, func() bool { return h.engine.State().Kind() == kind }, waitFor, tick,
		"engine never reached %s (now %s)", kind, h.engine.State().Kind())
}

func (h *harness) waitPlannerCalls(t *testing.T, n int) {
	t.Helper()
	require.Eventually(t, func() bool { return h.planner.callCount() >= n }, waitFor, tick,
		"planner called %d times, want %d", h.planner.callCount(), n)
}

func (h *harness) waitNotified(t *testing.T, kind StateKind) State {
	t.Helper()
	var got State
	require.Eventually(t, func() bool {
		s, ok := h.notifier.last(kind)
		got = s
		return ok
	}, waitFor, tick, "no %s state was notified", kind)
	return got
}
