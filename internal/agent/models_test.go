// internal/agent/models_test.go
package agent

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/xkilldash9x/seeclaw/internal/executor"
)

func TestActionResult_ToolContent(t *testing.T) {
	assert.Equal(t, "OK", ActionResult{Success: true}.ToolContent())
	assert.Equal(t, "Pressed ctrl+s.", ActionResult{Success: true, Output: "Pressed ctrl+s."}.ToolContent())

	failed := ActionResult{ErrorCode: ErrCodeExecutionFailure, Error: "command exited with code 2", Output: "exit code: 2"}
	assert.Equal(t, "Error [EXECUTION_FAILURE]: command exited with code 2\nexit code: 2", failed.ToolContent())
}

func TestActionResult_StepLine(t *testing.T) {
	step := TodoStep{Index: 1, Description: "open menu", Action: MouseClick{}}
	assert.Equal(t, "Step 2 (open menu): OK", ActionResult{Success: true}.StepLine(step))
	assert.Equal(t, "Step 2 (open menu): FAILED [ELEMENT_NOT_FOUND] gone",
		ActionResult{ErrorCode: ErrCodeElementNotFound, Error: "gone"}.StepLine(step))
}

func TestClassifyError(t *testing.T) {
	tests := []struct {
		err  error
		want ErrorCode
	}{
		{withCode(ErrCodeTerminalDisabled, errors.New("off")), ErrCodeTerminalDisabled},
		{ErrElementNotFound, ErrCodeElementNotFound},
		{executor.ErrInvalidDirection, ErrCodeInvalidParameters},
		{executor.ErrCommandTimeout, ErrCodeTimeoutError},
		{errors.New("boom"), ErrCodeExecutionFailure},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, classifyError(tt.err), tt.err.Error())
	}
}

func TestMarshalState(t *testing.T) {
	data, err := MarshalState(StateExecuting{Action: Hotkey{Keys: "ctrl+c"}})
	require.NoError(t, err)
	assert.JSONEq(t, `{"state":"executing","action":{"type":"hotkey","keys":"ctrl+c"}}`, string(data))

	data, err = MarshalState(StateIdle{})
	require.NoError(t, err)
	assert.JSONEq(t, `{"state":"idle"}`, string(data))

	assert.True(t, IsActive(StateWaitingForUser{}))
	assert.False(t, IsActive(StateDone{}))
}
