// internal/agent/handlers.go
package agent

import (
	"context"
	"errors"
	"fmt"
	"image"
	"time"

	"go.uber.org/zap"

	"github.com/xkilldash9x/seeclaw/internal/executor"
	"github.com/xkilldash9x/seeclaw/internal/llmclient"
	"github.com/xkilldash9x/seeclaw/internal/perception"
)

// actionHandler performs one action type. It fills res.Output (and res.Image)
// and returns an error on failure.
type actionHandler func(g *goalState, a Action, res *ActionResult) error

func (e *Engine) registerHandlers() {
	e.handlers = map[string]actionHandler{
		llmclient.ToolMouseClick:       e.pointer(InputExecutor.MouseClick),
		llmclient.ToolMouseDoubleClick: e.pointer(InputExecutor.MouseDoubleClick),
		llmclient.ToolMouseRightClick:  e.pointer(InputExecutor.MouseRightClick),
		llmclient.ToolScroll:           e.handleScroll,
		llmclient.ToolTypeText:         e.handleTypeText,
		llmclient.ToolHotkey:           e.handleHotkey,
		llmclient.ToolKeyPress:         e.handleKeyPress,
		llmclient.ToolGetViewport:      e.handleGetViewport,
		llmclient.ToolExecuteTerminal:  e.handleExecuteTerminal,
		llmclient.ToolMCPCall:          e.handleMCPCall,
		llmclient.ToolInvokeSkill:      e.handleInvokeSkill,
		llmclient.ToolWait:             e.handleWait,
	}
}

// runAction dispatches to the registered handler and turns its outcome into
// a structured result. A panicking handler yields a failed result.
func (e *Engine) runAction(g *goalState, action Action) (res ActionResult) {
	name := ActionType(action)
	res = ActionResult{Action: action, Timestamp: time.Now().UTC()}

	defer func() {
		if r := recover(); r != nil {
			e.logger.Error("Panic recovered during action execution.",
				zap.String("action", name),
				zap.Any("panic_value", r),
				zap.Stack("stack"),
			)
			res.Success = false
			res.ErrorCode = ErrCodeExecutorPanic
			res.Error = fmt.Sprintf("action panicked: %v", r)
		}
	}()

	handler, ok := e.handlers[name]
	if !ok {
		res.ErrorCode = ErrCodeUnknownAction
		res.Error = fmt.Sprintf("no handler registered for action type: %s", name)
		return res
	}
	if e.deps.Input == nil && isInputAction(name) {
		res.ErrorCode = ErrCodeExecutionFailure
		res.Error = "no input driver configured"
		return res
	}

	e.activity(fmt.Sprintf("Running %s", name))
	if err := handler(g, action, &res); err != nil {
		res.ErrorCode = classifyError(err)
		res.Error = err.Error()
		return res
	}
	res.Success = true
	return res
}

func isInputAction(name string) bool {
	switch name {
	case llmclient.ToolMouseClick, llmclient.ToolMouseDoubleClick, llmclient.ToolMouseRightClick,
		llmclient.ToolScroll, llmclient.ToolTypeText, llmclient.ToolHotkey, llmclient.ToolKeyPress:
		return true
	}
	return false
}

func classifyError(err error) ErrorCode {
	var ae *actionError
	if errors.As(err, &ae) {
		return ae.code
	}
	switch {
	case errors.Is(err, ErrElementNotFound):
		return ErrCodeElementNotFound
	case errors.Is(err, ErrInvalidParameters), errors.Is(err, executor.ErrInvalidDirection), errors.Is(err, executor.ErrEmptyKeys):
		return ErrCodeInvalidParameters
	case errors.Is(err, executor.ErrCommandTimeout), errors.Is(err, context.DeadlineExceeded):
		return ErrCodeTimeoutError
	}
	return ErrCodeExecutionFailure
}

// locate resolves ref against the latest snapshot, capturing one first if
// the goal has none yet.
func (e *Engine) locate(g *goalState, ref string) (image.Point, error) {
	if g.snapshot == nil {
		if _, err := e.perceive(g, perception.PerceiveOptions{}); err != nil {
			return image.Point{}, fmt.Errorf("screen capture failed: %w", err)
		}
	}
	return ResolveTarget(ref, g.snapshot)
}

func (e *Engine) pointer(click func(InputExecutor, context.Context, int, int) error) actionHandler {
	return func(g *goalState, a Action, res *ActionResult) error {
		t, ok := a.(Targetable)
		if !ok {
			return withCode(ErrCodeInvalidParameters, fmt.Errorf("%s is not a pointer action", ActionType(a)))
		}
		pt, err := e.locate(g, t.TargetRef())
		if err != nil {
			return err
		}
		if err := click(e.deps.Input, g.ctx, pt.X, pt.Y); err != nil {
			return err
		}
		res.Output = fmt.Sprintf("%s on %s at (%d, %d).", ActionType(a), t.TargetRef(), pt.X, pt.Y)
		return nil
	}
}

func (e *Engine) handleScroll(g *goalState, a Action, res *ActionResult) error {
	s := a.(Scroll)
	x, y := executor.NoPosition, executor.NoPosition
	if s.ElementID != "" {
		pt, err := e.locate(g, s.ElementID)
		if err != nil {
			return err
		}
		x, y = pt.X, pt.Y
	}
	dist := s.Distance
	if dist < 1 {
		dist = defaultScrollDistance
	}
	if err := e.deps.Input.Scroll(g.ctx, x, y, s.Direction, dist); err != nil {
		return err
	}
	res.Output = fmt.Sprintf("Scrolled %s by %d.", s.Direction, dist)
	return nil
}

func (e *Engine) handleTypeText(g *goalState, a Action, res *ActionResult) error {
	t := a.(TypeText)
	if t.ClearFirst {
		if err := e.deps.Input.Hotkey(g.ctx, []string{"ctrl", "a"}); err != nil {
			return err
		}
		if err := e.deps.Input.KeyPress(g.ctx, "Delete"); err != nil {
			return err
		}
	}
	if err := e.deps.Input.TypeText(g.ctx, t.Text); err != nil {
		return err
	}
	res.Output = fmt.Sprintf("Typed %d characters.", len([]rune(t.Text)))
	return nil
}

func (e *Engine) handleHotkey(g *goalState, a Action, res *ActionResult) error {
	h := a.(Hotkey)
	keys := executor.SplitHotkey(h.Keys)
	if len(keys) == 0 {
		return withCode(ErrCodeInvalidParameters, fmt.Errorf("hotkey %q names no keys", h.Keys))
	}
	if err := e.deps.Input.Hotkey(g.ctx, keys); err != nil {
		return err
	}
	res.Output = fmt.Sprintf("Pressed %s.", h.Keys)
	return nil
}

func (e *Engine) handleKeyPress(g *goalState, a Action, res *ActionResult) error {
	k := a.(KeyPress)
	if err := e.deps.Input.KeyPress(g.ctx, k.Key); err != nil {
		return err
	}
	res.Output = fmt.Sprintf("Pressed %s.", k.Key)
	return nil
}

func (e *Engine) handleGetViewport(g *goalState, a Action, res *ActionResult) error {
	v := a.(GetViewport)
	snap, err := e.perceive(g, perception.PerceiveOptions{SkipAnnotation: !v.Annotate})
	if err != nil {
		return fmt.Errorf("screen capture failed: %w", err)
	}
	res.Image = snap.Image
	res.Output = describeSnapshot(snap)
	return nil
}

func describeSnapshot(snap *perception.Snapshot) string {
	w, h := snap.Meta.PhysicalWidth, snap.Meta.PhysicalHeight
	if snap.GridN > 0 {
		last := perception.CellLabel(snap.GridN-1, snap.GridN-1)
		return fmt.Sprintf("Screen %dx%d. No elements were detected; the screenshot carries a %dx%d grid "+
			"(A1 top-left, %s bottom-right). Use a cell label as element_id.", w, h, snap.GridN, snap.GridN, last)
	}
	return fmt.Sprintf("Screen %dx%d. %d elements:\n%s", w, h, len(snap.Elements), snap.ElementList)
}

func (e *Engine) handleExecuteTerminal(g *goalState, a Action, res *ActionResult) error {
	t := a.(ExecuteTerminal)
	if !e.deps.Safety.AllowTerminalCommands {
		return withCode(ErrCodeTerminalDisabled, errors.New("terminal commands are disabled (safety.allow_terminal_commands is false)"))
	}
	if e.deps.Terminal == nil {
		return errors.New("no terminal runner configured")
	}
	out, err := e.deps.Terminal.Run(g.ctx, t.Command)
	res.Output = out.Output()
	if err != nil {
		return err
	}
	if out.ExitCode != 0 {
		return fmt.Errorf("command exited with code %d", out.ExitCode)
	}
	return nil
}

func (e *Engine) handleMCPCall(g *goalState, a Action, res *ActionResult) error {
	c := a.(MCPCall)
	if e.deps.Tools == nil {
		return errors.New("no MCP servers are configured")
	}
	out, err := e.deps.Tools.CallTool(g.ctx, c.ServerName, c.ToolName, c.Arguments)
	res.Output = out
	return err
}

func (e *Engine) handleInvokeSkill(g *goalState, a Action, res *ActionResult) error {
	s := a.(InvokeSkill)
	if e.deps.Skills == nil {
		return errors.New("no skills are registered")
	}
	out, err := e.deps.Skills.Invoke(s.SkillName, s.Inputs)
	if err != nil {
		return withCode(ErrCodeInvalidParameters, err)
	}
	res.Output = out
	return nil
}

func (e *Engine) handleWait(g *goalState, a Action, res *ActionResult) error {
	w := a.(Wait)
	d := time.Duration(w.Milliseconds) * time.Millisecond
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-g.ctx.Done():
		return g.ctx.Err()
	case <-t.C:
	}
	res.Output = fmt.Sprintf("Waited %d ms.", w.Milliseconds)
	return nil
}
