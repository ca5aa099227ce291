// internal/agent/prompts.go
package agent

import (
	"fmt"
	"strings"

	"github.com/xkilldash9x/seeclaw/internal/perception"
)

const defaultSystemPrompt = `You are SeeClaw, an agent that operates a desktop computer on the user's behalf.

You act only through the tools you are given. Each reply should call exactly one tool.

How to work:
- Call get_viewport to see the screen. The screenshot either shows numbered boxes around
  detected elements, with an element list, or a lettered coordinate grid (A1 is top-left).
- Pointer tools take an element_id: a detected element id such as "3" or "btn_2", a grid
  cell such as "D4", or "@x,y" physical pixel coordinates.
- For anything longer than a single action, call plan_task with ordered steps. A step that
  must find something on screen first sets needs_viewport and describes it in target; the
  element is then located visually just before the step runs.
- After a plan finishes you will be asked to evaluate. Call finish_task with a summary when
  the goal is met, plan_task again if it is not, or report_failure if it cannot be done.
- execute_terminal and mcp_call are shown to the user for approval before they run.`

// systemPrompt assembles the planner's system message.
func (e *Engine) systemPrompt() string {
	var b strings.Builder
	if e.cfg.SystemPrompt != "" {
		b.WriteString(e.cfg.SystemPrompt)
	} else {
		b.WriteString(defaultSystemPrompt)
	}

	if pc, ok := e.deps.Skills.(plannerContexter); ok {
		if ctx := pc.PlannerContext(); ctx != "" {
			b.WriteString("\n\n")
			b.WriteString(ctx)
		}
	}
	if sl, ok := e.deps.Tools.(serverLister); ok {
		if servers := sl.Servers(); len(servers) > 0 {
			b.WriteString("\n\n# MCP Servers\n\nmcp_call accepts these server_name values: ")
			b.WriteString(strings.Join(servers, ", "))
			b.WriteString(".")
		}
	}
	if !e.deps.Safety.AllowTerminalCommands {
		b.WriteString("\n\nTerminal commands are disabled on this machine; do not call execute_terminal.")
	}
	return b.String()
}

func evaluationPrompt(goal, summary string) string {
	if strings.TrimSpace(summary) == "" {
		summary = "(no steps were executed)"
	}
	return fmt.Sprintf("The plan has finished. Goal: %s\n\nStep results:\n%s\n\n"+
		"Did you achieve the goal? Call get_viewport if you need to check the screen, then "+
		"call finish_task with a summary, plan_task with a new plan, or report_failure.", goal, summary)
}

const visionSystemPrompt = "You locate user interface elements in screenshots. Reply with a single JSON object and nothing else."

// visionPrompt asks the vision model to pick the element matching target.
func visionPrompt(target string, snap *perception.Snapshot) string {
	if snap.GridN > 0 {
		return perception.GridPrompt(target, snap.GridN)
	}
	return fmt.Sprintf("The screenshot shows numbered boxes around detected UI elements.\n\n"+
		"Elements:\n%s\n\nTask: %s\n\n"+
		"Identify the element matching the task and reply with JSON only: "+
		`{"element_id":"3","found":true}, or {"found":false} if it is not visible.`, snap.ElementList, target)
}

func focusPrompt(target string, w, h int) string {
	return fmt.Sprintf("This is a zoomed crop of the screen, %dx%d pixels. Task: %s\n\n"+
		`Reply with JSON only: {"x":120,"y":45} giving the pixel position of the center of the `+
		`matching element inside this image, or {"found":false} if it is not in the crop.`, w, h, target)
}

const chatSystemPrompt = "You are SeeClaw, a helpful desktop assistant. Answer the user directly and concisely."
