// internal/agent/models.go
package agent

import (
	"fmt"
	"strings"
	"time"
)

// ActionResult is the outcome of one executed action.
type ActionResult struct {
	Action    Action    `json:"-"`
	Success   bool      `json:"success"`
	Output    string    `json:"output,omitempty"`
	Error     string    `json:"error,omitempty"`
	ErrorCode ErrorCode `json:"error_code,omitempty"`
	Timestamp time.Time `json:"timestamp"`
	// Image is a viewport PNG produced by get_viewport.
	Image []byte `json:"-"`
}

// ToolContent renders r as the text of a tool-result message.
func (r ActionResult) ToolContent() string {
	if r.Success {
		if r.Output == "" {
			return "OK"
		}
		return r.Output
	}
	var b strings.Builder
	fmt.Fprintf(&b, "Error [%s]: %s", r.ErrorCode, r.Error)
	if r.Output != "" {
		b.WriteString("\n")
		b.WriteString(r.Output)
	}
	return b.String()
}

// StepLine renders r as one line of the plan's step log.
func (r ActionResult) StepLine(step TodoStep) string {
	if r.Success {
		return fmt.Sprintf("Step %d (%s): OK", step.Index+1, step.Label())
	}
	return fmt.Sprintf("Step %d (%s): FAILED [%s] %s", step.Index+1, step.Label(), r.ErrorCode, r.Error)
}

// actionError pins an error code on a handler failure.
type actionError struct {
	code ErrorCode
	err  error
}

func (e *actionError) Error() string { return e.err.Error() }
func (e *actionError) Unwrap() error { return e.err }

func withCode(code ErrorCode, err error) error {
	return &actionError{code: code, err: err}
}
