// internal/agent/errors.go
package agent

import "errors"

// ErrorCode is a string type used for structured error reporting from action executors.
type ErrorCode string

const (
	// -- General Execution Errors --
	ErrCodeExecutionFailure  ErrorCode = "EXECUTION_FAILURE"
	ErrCodeInvalidParameters ErrorCode = "INVALID_PARAMETERS"
	ErrCodeUnknownAction     ErrorCode = "UNKNOWN_ACTION"
	ErrCodeTimeoutError      ErrorCode = "TIMEOUT_ERROR"

	// -- Targeting Errors --
	// ErrCodeElementNotFound means the target reference matched no element,
	// grid cell or point on the current snapshot.
	ErrCodeElementNotFound ErrorCode = "ELEMENT_NOT_FOUND"

	// -- Safety Errors --
	ErrCodeApprovalDenied   ErrorCode = "APPROVAL_DENIED"
	ErrCodeTerminalDisabled ErrorCode = "TERMINAL_DISABLED"

	// -- Internal System Errors --
	ErrCodeExecutorPanic ErrorCode = "EXECUTOR_PANIC"
)

var (
	// ErrEngineBusy is returned by SubmitGoal unless the engine is idle.
	ErrEngineBusy = errors.New("agent is busy with another goal")
	// ErrVisionTimeout marks a vision call that ran past agent.vision_timeout.
	// It is never used for user cancellation.
	ErrVisionTimeout = errors.New("vision model timed out")
	// ErrTargetNotFound means the vision model reported the target is not visible.
	ErrTargetNotFound = errors.New("target not found on screen")
	// ErrElementNotFound means a reference could not be resolved to a point.
	ErrElementNotFound = errors.New("element not found")
	// ErrInvalidParameters flags tool-call arguments that cannot form an action.
	ErrInvalidParameters = errors.New("invalid action parameters")
	// ErrUnknownTool flags a tool name outside the catalog.
	ErrUnknownTool = errors.New("unknown tool")
)
