// internal/agent/planning.go
package agent

import (
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/xkilldash9x/seeclaw/internal/history"
	"github.com/xkilldash9x/seeclaw/internal/llmclient"
)

const skippedCallResult = "Skipped: only the first tool call of a reply is executed."

// plan asks the planner for the next move and acts on its reply.
func (e *Engine) plan(g *goalState) {
	provider, cc, err := e.deps.Providers.CallConfigForRole(llmclient.RoleTools)
	if err != nil {
		e.setState(StateError{Message: fmt.Sprintf("no planner model available: %v", err)})
		return
	}

	e.activity("Planning")
	resp, err := provider.Chat(g.ctx, e.conv.Messages(), e.deps.Catalog.Tools(), cc, e.sink())
	if err != nil {
		if g.ctx.Err() != nil {
			return
		}
		e.logger.Error("Planner call failed.", zap.String("provider", provider.Name()), zap.Error(err))
		e.setState(StateError{Message: fmt.Sprintf("planner call failed: %v", err)})
		return
	}
	e.handlePlannerReply(g, resp)
}

func (e *Engine) handlePlannerReply(g *goalState, resp *llmclient.Response) {
	e.conv.Append(llmclient.AssistantMessage(resp.Content, resp.ToolCalls))
	var calls any
	if resp.HasToolCalls() {
		calls = resp.ToolCalls
	}
	e.record(history.RoleAssistant, resp.Content, calls)

	if !resp.HasToolCalls() {
		if resp.Content != "" {
			e.activity(resp.Content)
		}
		e.abandonGoal("planner replied without a tool call")
		return
	}

	call := resp.ToolCalls[0]
	for _, extra := range resp.ToolCalls[1:] {
		e.conv.Append(llmclient.ToolResultMessage(extra.ID, extra.Name, skippedCallResult))
	}
	if len(resp.ToolCalls) > 1 {
		e.logger.Debug("Planner issued several tool calls; running the first.", zap.Int("calls", len(resp.ToolCalls)))
	}

	args := call.Args()
	switch call.Name {
	case llmclient.ToolPlanTask:
		steps, notes := ParseSteps(args["steps"])
		g.steps, g.index, g.stepLog, g.planActive = steps, 0, nil, true
		g.pendingCall = nil

		ack := fmt.Sprintf("Plan accepted with %d step(s).", len(steps))
		if len(notes) > 0 {
			ack += "\n" + strings.Join(notes, "\n")
		}
		e.conv.Append(llmclient.ToolResultMessage(call.ID, call.Name, ack))
		e.logger.Info("Plan accepted.", zap.Int("steps", len(steps)), zap.Strings("skipped", notes))
		e.advance(g)
		return

	case llmclient.ToolEvaluateCompletion:
		e.conv.Append(llmclient.ToolResultMessage(call.ID, call.Name, "Evaluating."))
		e.setState(StateEvaluating{Goal: g.goal, StepsSummary: strings.Join(g.stepLog, "\n")})
		return
	}

	if !e.deps.Catalog.Has(call.Name) {
		e.rejectCall(g, call, fmt.Sprintf("Error: unknown tool %q. Available tools: %s.", call.Name, e.toolNames()))
		return
	}
	if err := e.deps.Catalog.Validate(call.Name, args); err != nil {
		e.logger.Debug("Tool arguments do not match the schema, coercing.", zap.String("tool", call.Name), zap.Error(err))
	}
	action, err := ActionFromToolCall(call.Name, args)
	if err != nil {
		e.rejectCall(g, call, fmt.Sprintf("Error: invalid arguments for %s: %v", call.Name, err))
		return
	}

	g.planActive = false
	g.pendingCall = &call
	e.dispatch(g, action)
}

// rejectCall answers a tool call the engine cannot run and keeps planning.
func (e *Engine) rejectCall(g *goalState, call llmclient.ToolCall, msg string) {
	n := e.deps.Loop.RecordFailure()
	e.logger.Warn("Rejected planner tool call.", zap.String("tool", call.Name), zap.String("reason", msg), zap.Int("failures", n))
	e.conv.Append(llmclient.ToolResultMessage(call.ID, call.Name, msg))
	e.record(history.RoleTool, msg, nil)
	if e.State().Kind() != KindPlanning {
		e.setState(StatePlanning{Goal: g.goal})
	}
}

// dispatch sends action to execution, or to the user first when the policy
// gates it.
func (e *Engine) dispatch(g *goalState, action Action) {
	if gated, reason := e.deps.Policy.RequiresApproval(action); gated {
		seq := e.approvalSeq.Add(1)
		e.setState(StateWaitingForUser{PendingAction: action})
		req := ApprovalRequest{Seq: seq, Action: action, Reason: reason}
		e.notify("approval_required", func(n Notifier) error { return n.ApprovalRequired(req) })
		return
	}
	e.setState(StateExecuting{Action: action})
}

// evaluate re-enters planning with the evaluation prompt, bounded by
// MaxEvalCycles.
func (e *Engine) evaluate(g *goalState, s StateEvaluating) {
	g.evalCycles++
	if g.evalCycles > e.cfg.MaxEvalCycles {
		summary := fmt.Sprintf("Evaluation limit reached (%d cycles) without a final answer.", e.cfg.MaxEvalCycles)
		if s.StepsSummary != "" {
			summary += "\n" + s.StepsSummary
		}
		e.setState(StateDone{Summary: summary})
		return
	}
	e.logger.Debug("Evaluating completion.", zap.Int("cycle", g.evalCycles))
	e.conv.Append(llmclient.UserMessage(evaluationPrompt(s.Goal, s.StepsSummary)))
	e.plan(g)
}

func (e *Engine) toolNames() string {
	tools := e.deps.Catalog.Tools()
	names := make([]string, len(tools))
	for i, t := range tools {
		names[i] = t.Name
	}
	return strings.Join(names, ", ")
}
