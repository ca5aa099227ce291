// internal/agent/loop_controller.go
package agent

import (
	"fmt"
	"sync"
	"time"

	"github.com/xkilldash9x/seeclaw/internal/config"
)

// LoopController bounds how long and how badly a goal may run.
//
// The failure count survives goal intake and is only cleared by Reset, which
// the engine calls when a goal ends in Done or Error. The timer restarts with
// every goal.
type LoopController struct {
	mu sync.Mutex

	mode        string
	maxDuration time.Duration
	maxFailures int
	// safetyFailures caps failures in every mode.
	safetyFailures int

	startedAt time.Time
	failures  int
	now       func() time.Time
}

// NewLoopController resolves limits from the loop section, falling back to
// the safety section for modes whose own limit is unset.
func NewLoopController(loop config.LoopConfig, safety config.SafetyConfig) *LoopController {
	lc := &LoopController{
		mode:           loop.Mode,
		safetyFailures: safety.MaxConsecutiveFailures,
		now:            time.Now,
	}
	if lc.mode == "" {
		lc.mode = config.LoopModeUntilDone
	}

	minutes := loop.MaxDurationMinutes
	if minutes <= 0 {
		minutes = safety.MaxLoopDurationMinutes
	}
	lc.maxDuration = time.Duration(minutes) * time.Minute

	lc.maxFailures = loop.MaxFailures
	if lc.maxFailures <= 0 {
		lc.maxFailures = safety.MaxConsecutiveFailures
	}
	return lc
}

// Start restarts the duration timer for a new goal.
func (lc *LoopController) Start() {
	lc.mu.Lock()
	defer lc.mu.Unlock()
	lc.startedAt = lc.now()
}

// Reset clears the failure count and the timer.
func (lc *LoopController) Reset() {
	lc.mu.Lock()
	defer lc.mu.Unlock()
	lc.failures = 0
	lc.startedAt = time.Time{}
}

// RecordFailure counts one failed action.
func (lc *LoopController) RecordFailure() int {
	lc.mu.Lock()
	defer lc.mu.Unlock()
	lc.failures++
	return lc.failures
}

func (lc *LoopController) Failures() int {
	lc.mu.Lock()
	defer lc.mu.Unlock()
	return lc.failures
}

// Remaining reports how much of the time budget is left. The second result
// is false when no time budget applies.
func (lc *LoopController) Remaining() (time.Duration, bool) {
	lc.mu.Lock()
	defer lc.mu.Unlock()
	if lc.mode != config.LoopModeTimed || lc.maxDuration <= 0 || lc.startedAt.IsZero() {
		return 0, false
	}
	left := lc.maxDuration - lc.now().Sub(lc.startedAt)
	if left < 0 {
		left = 0
	}
	return left, true
}

// Exceeded reports whether a limit has been hit and, if so, why.
func (lc *LoopController) Exceeded() (string, bool) {
	lc.mu.Lock()
	defer lc.mu.Unlock()

	switch lc.mode {
	case config.LoopModeTimed:
		if lc.maxDuration > 0 && !lc.startedAt.IsZero() {
			if elapsed := lc.now().Sub(lc.startedAt); elapsed >= lc.maxDuration {
				return fmt.Sprintf("time limit reached (%s elapsed, limit %s)", elapsed.Round(time.Second), lc.maxDuration), true
			}
		}
	case config.LoopModeFailureLimit:
		if lc.maxFailures > 0 && lc.failures >= lc.maxFailures {
			return fmt.Sprintf("failure limit reached (%d failures)", lc.failures), true
		}
	}

	if lc.safetyFailures > 0 && lc.failures >= lc.safetyFailures {
		return fmt.Sprintf("failure limit reached (%d failures, safety cap %d)", lc.failures, lc.safetyFailures), true
	}
	return "", false
}
