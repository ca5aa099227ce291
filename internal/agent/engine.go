// internal/agent/engine.go
package agent

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"github.com/xkilldash9x/seeclaw/internal/config"
	"github.com/xkilldash9x/seeclaw/internal/history"
	"github.com/xkilldash9x/seeclaw/internal/llmclient"
	"github.com/xkilldash9x/seeclaw/internal/perception"
)

const (
	defaultVisionTimeout = 60 * time.Second
	defaultMaxEvalCycles = 3
	defaultEventBuffer   = 16
)

// ErrNoPendingApproval is returned by Approve and Reject when nothing is waiting.
var ErrNoPendingApproval = errors.New("no action is waiting for approval")

// goalState is everything that belongs to one goal. Only the run loop
// touches it.
type goalState struct {
	ctx    context.Context
	cancel context.CancelFunc
	goal   string

	steps      []TodoStep
	index      int
	stepLog    []string
	planActive bool
	evalCycles int

	// pendingCall is the single-shot tool call whose result is still owed.
	pendingCall *llmclient.ToolCall
	snapshot    *perception.Snapshot
}

// Engine drives goals through the planning and execution state machine.
// Run owns all state transitions; the control methods may be called from
// any goroutine.
type Engine struct {
	deps   Deps
	cfg    config.AgentConfig
	logger *zap.Logger

	events      chan Event
	stopFlag    atomic.Bool
	busy        atomic.Bool
	running     atomic.Bool
	approvalSeq atomic.Uint64
	stopSeq     atomic.Uint64

	mu    sync.RWMutex
	state State

	goalMu     sync.Mutex
	goalCancel context.CancelFunc

	conv     Conversation
	handlers map[string]actionHandler
	g        *goalState
	// queued is a goal that survived a stop drain and still has to start.
	queued *Event
}

// NewEngine wires an engine. Optional dependencies left nil get inert or
// config-derived defaults.
func NewEngine(deps Deps, cfg config.AgentConfig, logger *zap.Logger) *Engine {
	logger = logger.Named("agent")
	if deps.Catalog == nil {
		deps.Catalog = llmclient.MustBuiltinCatalog()
	}
	if deps.Notifier == nil {
		deps.Notifier = NopNotifier{}
	}
	if deps.History == nil {
		deps.History = history.Nop{}
	}
	if deps.Policy == nil {
		deps.Policy = NewApprovalPolicy(deps.Safety, logger)
	}
	if deps.Loop == nil {
		deps.Loop = NewLoopController(deps.LoopConfig, deps.Safety)
	}
	if cfg.VisionTimeout <= 0 {
		cfg.VisionTimeout = defaultVisionTimeout
	}
	if cfg.MaxEvalCycles <= 0 {
		cfg.MaxEvalCycles = defaultMaxEvalCycles
	}
	if cfg.EventBuffer <= 0 {
		cfg.EventBuffer = defaultEventBuffer
	}
	if cfg.SettleDelay < 0 {
		cfg.SettleDelay = 0
	}

	e := &Engine{
		deps:   deps,
		cfg:    cfg,
		logger: logger,
		events: make(chan Event, cfg.EventBuffer),
		state:  StateIdle{},
	}
	e.registerHandlers()
	return e
}

// State returns the current state.
func (e *Engine) State() State {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.state
}

// Conversation returns a snapshot of the planner conversation.
func (e *Engine) Conversation() []llmclient.Message {
	return e.conv.Messages()
}

// Loop exposes the loop controller for inspection.
func (e *Engine) Loop() *LoopController { return e.deps.Loop }

// SubmitGoal queues a new goal. It fails with ErrEngineBusy unless the
// engine is idle.
func (e *Engine) SubmitGoal(goal string) error {
	goal = strings.TrimSpace(goal)
	if goal == "" {
		return fmt.Errorf("%w: goal must not be empty", ErrInvalidParameters)
	}
	if !e.busy.CompareAndSwap(false, true) {
		return ErrEngineBusy
	}
	select {
	case e.events <- Event{Kind: EventGoalReceived, Goal: goal, Seq: e.stopSeq.Load()}:
		return nil
	default:
		e.busy.Store(false)
		return fmt.Errorf("agent event queue is full")
	}
}

// Stop cancels the current goal and drops a goal that was submitted before
// it but not yet started. It is safe to call at any time; stopping an idle
// engine does nothing, and goals submitted after Stop returns are kept.
func (e *Engine) Stop() {
	seq := e.stopSeq.Add(1)
	e.stopFlag.Store(true)
	e.goalMu.Lock()
	if e.goalCancel != nil {
		e.goalCancel()
	}
	e.goalMu.Unlock()
	e.post(Event{Kind: EventStop, Seq: seq})
}

// Approve lets the pending action run.
func (e *Engine) Approve() error { return e.decide(EventUserApproved) }

// Reject drops the pending action and abandons the goal.
func (e *Engine) Reject() error { return e.decide(EventUserRejected) }

func (e *Engine) decide(kind EventKind) error {
	if e.State().Kind() != KindWaitingForUser {
		return ErrNoPendingApproval
	}
	e.post(Event{Kind: kind, Seq: e.approvalSeq.Load()})
	return nil
}

func (e *Engine) post(ev Event) {
	select {
	case e.events <- ev:
	default:
		e.logger.Warn("Event queue full, dropping event.", zap.Stringer("event", ev.Kind))
	}
}

// Run executes the state machine until ctx is cancelled.
func (e *Engine) Run(ctx context.Context) error {
	if !e.running.CompareAndSwap(false, true) {
		return errors.New("agent engine is already running")
	}
	defer e.running.Store(false)

	e.logger.Info("Agent engine started.")
	defer e.logger.Info("Agent engine stopped.")

	for {
		if e.stopFlag.CompareAndSwap(true, false) {
			e.handleStop()
		}
		if err := ctx.Err(); err != nil {
			if e.g != nil {
				e.cancelGoal("engine shutting down")
			}
			return err
		}
		if e.g != nil && e.g.ctx.Err() != nil {
			e.cancelGoal("goal context cancelled")
			continue
		}

		st := e.State()
		if e.g != nil && IsActive(st) {
			if reason, hit := e.deps.Loop.Exceeded(); hit {
				e.setState(StateDone{Summary: e.limitSummary(reason)})
				continue
			}
		}

		switch s := st.(type) {
		case StateIdle:
			e.waitForGoal(ctx)
		case StatePlanning:
			e.plan(e.g)
		case StateExecuting:
			e.execute(e.g, s.Action)
		case StateWaitingForUser:
			e.awaitApproval(ctx, e.g, s.PendingAction)
		case StateEvaluating:
			e.evaluate(e.g, s)
		case StateDone, StateError:
			e.closeGoal(s)
		}
	}
}

func (e *Engine) waitForGoal(ctx context.Context) {
	if ev := e.queued; ev != nil {
		e.queued = nil
		e.startGoal(ctx, ev.Goal)
		return
	}
	select {
	case <-ctx.Done():
	case ev := <-e.events:
		if ev.Kind == EventGoalReceived {
			e.startGoal(ctx, ev.Goal)
			return
		}
		e.logger.Debug("Ignoring event while idle.", zap.Stringer("event", ev.Kind))
	}
}

func (e *Engine) startGoal(parent context.Context, goal string) {
	gctx, cancel := context.WithCancel(parent)
	e.goalMu.Lock()
	e.goalCancel = cancel
	e.goalMu.Unlock()

	e.busy.Store(true)
	e.g = &goalState{ctx: gctx, cancel: cancel, goal: goal}
	e.conv.Reset(llmclient.SystemMessage(e.systemPrompt()), llmclient.UserMessage(goal))
	e.deps.Loop.Start()

	e.logger.Info("Goal received.", zap.String("goal", goal))
	e.record(history.RoleUser, goal, nil)
	e.setState(StatePlanning{Goal: goal})
}

// handleStop runs once per consumed stop request.
func (e *Engine) handleStop() {
	if e.g != nil {
		e.cancelGoal("stopped by user")
		return
	}
	// A goal submitted before the latest stop but not yet picked up is
	// dropped too. One submitted after it is kept for waitForGoal.
	latest := e.stopSeq.Load()
	if e.queued != nil && e.queued.Seq < latest {
		e.dropQueued(*e.queued)
		e.queued = nil
	}
	for {
		select {
		case ev := <-e.events:
			if ev.Kind != EventGoalReceived {
				continue
			}
			if ev.Seq >= latest {
				e.queued = &ev
				continue
			}
			e.dropQueued(ev)
		default:
			return
		}
	}
}

func (e *Engine) dropQueued(ev Event) {
	e.logger.Info("Dropping queued goal after stop.", zap.String("goal", ev.Goal))
	e.busy.Store(false)
	e.notify("task_cancelled", func(n Notifier) error { return n.TaskCancelled() })
}

// cancelGoal abandons the current goal without counting a failure.
func (e *Engine) cancelGoal(reason string) {
	goal := e.g.goal
	e.logger.Info("Goal cancelled.", zap.String("goal", goal), zap.String("reason", reason))
	e.record(history.RoleState, "cancelled: "+reason, nil)
	e.clearGoal()
	e.conv.Reset()
	e.notify("task_cancelled", func(n Notifier) error { return n.TaskCancelled() })
	e.setIdle()
}

// closeGoal handles the terminal Done and Error states.
func (e *Engine) closeGoal(s State) {
	switch v := s.(type) {
	case StateDone:
		e.logger.Info("Goal completed.", zap.String("summary", v.Summary))
		e.record(history.RoleState, "done: "+v.Summary, nil)
	case StateError:
		e.logger.Error("Goal failed.", zap.String("message", v.Message))
		e.record(history.RoleState, "error: "+v.Message, nil)
	}
	e.deps.Loop.Reset()
	e.clearGoal()
	e.setIdle()
}

// abandonGoal returns to Idle without a terminal state, as after a
// content-only reply or a rejected approval.
func (e *Engine) abandonGoal(reason string) {
	e.logger.Info("Goal ended without completion.", zap.String("reason", reason))
	e.record(history.RoleState, "idle: "+reason, nil)
	e.clearGoal()
	e.setIdle()
}

func (e *Engine) clearGoal() {
	e.goalMu.Lock()
	e.goalCancel = nil
	e.goalMu.Unlock()
	if e.g != nil {
		e.g.cancel()
		e.g = nil
	}
}

func (e *Engine) setIdle() {
	e.setState(StateIdle{})
	e.busy.Store(false)
}

func (e *Engine) awaitApproval(ctx context.Context, g *goalState, pending Action) {
	seq := e.approvalSeq.Load()

	// The loop budget keeps running while the user decides.
	var deadline <-chan time.Time
	if remaining, ok := e.deps.Loop.Remaining(); ok {
		timer := time.NewTimer(remaining)
		defer timer.Stop()
		deadline = timer.C
	}

	for {
		select {
		case <-ctx.Done():
			return
		case <-g.ctx.Done():
			return
		case <-deadline:
			e.logger.Info("Loop time budget ran out while waiting for approval.", zap.String("action", ActionType(pending)))
			return
		case ev := <-e.events:
			switch ev.Kind {
			case EventStop:
				return
			case EventUserApproved, EventUserRejected:
				if ev.Seq != seq {
					e.logger.Debug("Ignoring stale approval decision.", zap.Uint64("seq", ev.Seq), zap.Uint64("want", seq))
					continue
				}
				if ev.Kind == EventUserApproved {
					e.logger.Info("Action approved.", zap.String("action", ActionType(pending)))
					e.setState(StateExecuting{Action: pending})
					return
				}
				e.logger.Info("Action rejected.", zap.String("action", ActionType(pending)))
				e.record(history.RoleResult, fmt.Sprintf("Error [%s]: rejected by user", ErrCodeApprovalDenied), actionDoc(pending))
				e.abandonGoal("user rejected " + ActionType(pending))
				return
			default:
				e.logger.Debug("Ignoring event while waiting for approval.", zap.Stringer("event", ev.Kind))
			}
		}
	}
}

func (e *Engine) setState(s State) {
	e.mu.Lock()
	prev := e.state
	e.state = s
	e.mu.Unlock()

	e.logger.Debug("State transition.", zap.String("from", string(prev.Kind())), zap.String("to", string(s.Kind())))
	e.notify("state_changed", func(n Notifier) error { return n.StateChanged(s) })
}

func (e *Engine) notify(what string, fn func(Notifier) error) {
	if err := fn(e.deps.Notifier); err != nil {
		e.logger.Debug("Notifier call failed.", zap.String("event", what), zap.Error(err))
	}
}

func (e *Engine) activity(label string) {
	e.notify("activity", func(n Notifier) error { return n.Activity(label) })
}

func (e *Engine) sink() llmclient.ChunkSink {
	return func(c llmclient.StreamChunk) {
		e.notify("stream_chunk", func(n Notifier) error { return n.StreamChunk(c) })
	}
}

func (e *Engine) record(role, content string, action any) {
	if err := e.deps.History.Append(history.NewEntry(role, content, action)); err != nil {
		e.logger.Warn("Failed to append history entry.", zap.String("role", role), zap.Error(err))
	}
}

func (e *Engine) limitSummary(reason string) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Stopped early: %s.", reason)
	if e.g != nil && len(e.g.stepLog) > 0 {
		b.WriteString("\n")
		b.WriteString(strings.Join(e.g.stepLog, "\n"))
	}
	return b.String()
}
