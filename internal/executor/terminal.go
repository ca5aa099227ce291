// internal/executor/terminal.go
package executor

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os/exec"
	"time"
	"unicode/utf8"

	"go.uber.org/zap"
)

const (
	defaultTerminalTimeout = 2 * time.Minute
	defaultMaxOutput       = 4000
	truncationMarker       = "\n... [output truncated]"
)

// ErrCommandTimeout is returned when a command outlives the terminal timeout.
var ErrCommandTimeout = errors.New("terminal command timed out")

// TerminalResult describes a finished shell command.
type TerminalResult struct {
	ExitCode  int           `json:"exit_code"`
	Stdout    string        `json:"stdout"`
	Stderr    string        `json:"stderr"`
	Truncated bool          `json:"truncated,omitempty"`
	Duration  time.Duration `json:"duration"`
}

// Output renders stdout and stderr for the planner.
func (r TerminalResult) Output() string {
	var b bytes.Buffer
	fmt.Fprintf(&b, "exit code: %d\n", r.ExitCode)
	if r.Stdout != "" {
		b.WriteString("stdout:\n")
		b.WriteString(r.Stdout)
		b.WriteByte('\n')
	}
	if r.Stderr != "" {
		b.WriteString("stderr:\n")
		b.WriteString(r.Stderr)
		b.WriteByte('\n')
	}
	return b.String()
}

// Terminal runs shell commands in their own process group so that a timeout
// or cancellation takes any children down with the shell.
type Terminal struct {
	timeout   time.Duration
	maxOutput int
	logger    *zap.Logger
}

// NewTerminal creates a runner. Zero values select the defaults.
func NewTerminal(timeout time.Duration, maxOutput int, logger *zap.Logger) *Terminal {
	if timeout <= 0 {
		timeout = defaultTerminalTimeout
	}
	if maxOutput <= 0 {
		maxOutput = defaultMaxOutput
	}
	return &Terminal{timeout: timeout, maxOutput: maxOutput, logger: logger.Named("terminal")}
}

// Run executes command through the platform shell. A non-zero exit status is
// reported in the result, not as an error. Errors cover start failures,
// cancellation of ctx and ErrCommandTimeout.
func (t *Terminal) Run(ctx context.Context, command string) (TerminalResult, error) {
	runCtx, cancel := context.WithTimeout(ctx, t.timeout)
	defer cancel()

	cmd := shellCommand(runCtx, command)
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	start := time.Now()
	t.logger.Info("Running terminal command", zap.String("command", command))
	err := cmd.Run()

	res := TerminalResult{Duration: time.Since(start)}
	var truncOut, truncErr bool
	res.Stdout, truncOut = truncate(stdout.String(), t.maxOutput)
	res.Stderr, truncErr = truncate(stderr.String(), t.maxOutput)
	res.Truncated = truncOut || truncErr

	if err != nil {
		// Context errors take precedence over the kill-induced exit status.
		if ctxErr := ctx.Err(); ctxErr != nil {
			res.ExitCode = -1
			return res, ctxErr
		}
		if errors.Is(runCtx.Err(), context.DeadlineExceeded) {
			res.ExitCode = -1
			return res, fmt.Errorf("%w after %s", ErrCommandTimeout, t.timeout)
		}
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) {
			res.ExitCode = exitErr.ExitCode()
			t.logger.Info("Terminal command exited with non-zero status", zap.Int("exit_code", res.ExitCode))
			return res, nil
		}
		return res, fmt.Errorf("failed to run command: %w", err)
	}
	return res, nil
}

// truncate caps s at max bytes without splitting a UTF-8 sequence.
func truncate(s string, max int) (string, bool) {
	if len(s) <= max {
		return s, false
	}
	cut := max
	for cut > 0 && !utf8.RuneStart(s[cut]) {
		cut--
	}
	return s[:cut] + truncationMarker, true
}
