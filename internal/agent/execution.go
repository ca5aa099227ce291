// internal/agent/execution.go
package agent

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/xkilldash9x/seeclaw/internal/history"
	"github.com/xkilldash9x/seeclaw/internal/llmclient"
	"github.com/xkilldash9x/seeclaw/internal/perception"
)

// execute runs action and moves the machine on.
func (e *Engine) execute(g *goalState, action Action) {
	switch a := action.(type) {
	case FinishTask:
		summary := a.Summary
		if summary == "" {
			summary = "Task finished."
		}
		e.record(history.RoleAction, summary, actionDoc(a))
		e.setState(StateDone{Summary: summary})
		return
	case ReportFailure:
		msg := a.Reason
		if a.LastAttemptedAction != "" {
			msg += fmt.Sprintf(" (last attempted: %s)", a.LastAttemptedAction)
		}
		e.record(history.RoleAction, msg, actionDoc(a))
		e.setState(StateError{Message: msg})
		return
	}

	e.record(history.RoleAction, "", actionDoc(action))
	result := e.runAction(g, action)
	if g.ctx.Err() != nil {
		e.logger.Debug("Action interrupted by cancellation.", zap.String("action", ActionType(action)))
		return
	}

	e.record(history.RoleResult, result.ToolContent(), map[string]any{
		"type":       ActionType(action),
		"success":    result.Success,
		"error_code": result.ErrorCode,
	})
	if !result.Success {
		n := e.deps.Loop.RecordFailure()
		e.logger.Warn("Action failed.",
			zap.String("action", ActionType(action)),
			zap.String("error_code", string(result.ErrorCode)),
			zap.String("error", result.Error),
			zap.Int("failures", n),
		)
	}

	if g.planActive && g.index < len(g.steps) {
		g.stepLog = append(g.stepLog, result.StepLine(g.steps[g.index]))
		g.index++
		e.advance(g)
		return
	}

	if call := g.pendingCall; call != nil {
		e.conv.Append(llmclient.ToolResultMessage(call.ID, call.Name, result.ToolContent()))
		g.pendingCall = nil
	}
	if len(result.Image) > 0 {
		e.conv.Append(llmclient.UserMessage("Current screen:", result.Image))
	}
	e.setState(StatePlanning{Goal: g.goal})
}

// advance walks the plan from the current index until a step is dispatched
// or the plan runs out.
func (e *Engine) advance(g *goalState) {
	for {
		if g.ctx.Err() != nil {
			return
		}
		if reason, hit := e.deps.Loop.Exceeded(); hit {
			e.setState(StateDone{Summary: e.limitSummary(reason)})
			return
		}
		if g.index >= len(g.steps) {
			g.planActive = false
			e.setState(StateEvaluating{Goal: g.goal, StepsSummary: strings.Join(g.stepLog, "\n")})
			return
		}

		step := g.steps[g.index]
		if g.index > 0 {
			if err := e.settle(g); err != nil {
				return
			}
		}
		e.activity(fmt.Sprintf("Step %d/%d: %s", step.Index+1, len(g.steps), step.Label()))

		action := step.Action
		if t, ok := action.(Targetable); ok && step.NeedsViewport {
			ref, err := e.resolveVisually(g, step.Target)
			switch {
			case g.ctx.Err() != nil:
				return
			case errors.Is(err, ErrTargetNotFound), errors.Is(err, ErrVisionTimeout):
				line := fmt.Sprintf("Step %d (%s): FAILED [%s] %v", step.Index+1, step.Label(), ErrCodeElementNotFound, err)
				g.stepLog = append(g.stepLog, line)
				n := e.deps.Loop.RecordFailure()
				e.logger.Warn("Step target not found, skipping.", zap.Int("step", step.Index+1), zap.String("target", step.Target), zap.Int("failures", n))
				e.record(history.RoleResult, line, nil)
				g.index++
				continue
			case err != nil:
				e.setState(StateError{Message: fmt.Sprintf("step %d (%s): %v", step.Index+1, step.Label(), err)})
				return
			}
			action = t.WithTarget(ref)
		}
		e.dispatch(g, action)
		return
	}
}

// settle gives the previous action time to render. Only cancellation is
// reported as an error.
func (e *Engine) settle(g *goalState) error {
	if d := e.cfg.SettleDelay; d > 0 {
		t := time.NewTimer(d)
		select {
		case <-g.ctx.Done():
			t.Stop()
			return g.ctx.Err()
		case <-t.C:
		}
	}

	stability := e.deps.Perception.Stability
	if !stability.Enabled || e.deps.Perceiver == nil || e.deps.Perceiver.Capturer() == nil {
		return nil
	}
	stable, err := perception.WaitForStability(g.ctx, perception.Frame(e.deps.Perceiver.Capturer()), stability, e.logger)
	if err != nil {
		if g.ctx.Err() != nil {
			return g.ctx.Err()
		}
		e.logger.Warn("Stability check failed, continuing.", zap.Error(err))
		return nil
	}
	if !stable {
		e.logger.Debug("Screen did not settle before the stability timeout.")
	}
	return nil
}

// perceive runs a perception cycle and remembers the snapshot for target
// resolution.
func (e *Engine) perceive(g *goalState, opts perception.PerceiveOptions) (*perception.Snapshot, error) {
	if e.deps.Perceiver == nil {
		return nil, errors.New("no perception pipeline configured")
	}
	if opts.GridSize == 0 {
		opts.GridSize = e.deps.Perception.GridSize
	}
	e.activity("Capturing screen")
	snap, err := e.deps.Perceiver.Perceive(g.ctx, opts)
	if err != nil {
		return nil, err
	}
	g.snapshot = snap
	info := ViewportInfo{
		ImagePNG:     snap.Image,
		GridN:        snap.GridN,
		Width:        snap.Meta.PhysicalWidth,
		Height:       snap.Meta.PhysicalHeight,
		ElementCount: len(snap.Elements),
		Source:       string(snap.Source),
	}
	e.notify("viewport_captured", func(n Notifier) error { return n.ViewportCaptured(info) })
	return snap, nil
}
