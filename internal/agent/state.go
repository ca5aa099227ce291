// internal/agent/state.go
package agent

import (
	"fmt"

	json "github.com/json-iterator/go"
)

// StateKind is the wire name of a state.
type StateKind string

const (
	KindIdle           StateKind = "idle"
	KindPlanning       StateKind = "planning"
	KindExecuting      StateKind = "executing"
	KindWaitingForUser StateKind = "waiting_for_user"
	KindEvaluating     StateKind = "evaluating"
	KindDone           StateKind = "done"
	KindError          StateKind = "error"
)

// State is a node of the engine's state machine.
type State interface {
	Kind() StateKind
}

type StateIdle struct{}

type StatePlanning struct {
	Goal string `json:"goal"`
}

type StateExecuting struct {
	Action Action `json:"-"`
}

type StateWaitingForUser struct {
	PendingAction Action `json:"-"`
}

type StateEvaluating struct {
	Goal         string `json:"goal"`
	StepsSummary string `json:"steps_summary"`
}

type StateDone struct {
	Summary string `json:"summary"`
}

type StateError struct {
	Message string `json:"message"`
}

func (StateIdle) Kind() StateKind           { return KindIdle }
func (StatePlanning) Kind() StateKind       { return KindPlanning }
func (StateExecuting) Kind() StateKind      { return KindExecuting }
func (StateWaitingForUser) Kind() StateKind { return KindWaitingForUser }
func (StateEvaluating) Kind() StateKind     { return KindEvaluating }
func (StateDone) Kind() StateKind           { return KindDone }
func (StateError) Kind() StateKind          { return KindError }

// IsActive reports whether s belongs to a running goal.
func IsActive(s State) bool {
	switch s.Kind() {
	case KindPlanning, KindExecuting, KindWaitingForUser, KindEvaluating:
		return true
	}
	return false
}

// MarshalState encodes s as {"state": kind, ...fields}.
func MarshalState(s State) ([]byte, error) {
	doc := map[string]any{"state": s.Kind()}
	switch v := s.(type) {
	case StatePlanning:
		doc["goal"] = v.Goal
	case StateExecuting:
		doc["action"] = actionDoc(v.Action)
	case StateWaitingForUser:
		doc["pending_action"] = actionDoc(v.PendingAction)
	case StateEvaluating:
		doc["goal"] = v.Goal
		doc["steps_summary"] = v.StepsSummary
	case StateDone:
		doc["summary"] = v.Summary
	case StateError:
		doc["message"] = v.Message
	}
	return json.ConfigCompatibleWithStandardLibrary.Marshal(doc)
}

// DescribeState is a one-line rendering for logs and consoles.
func DescribeState(s State) string {
	switch v := s.(type) {
	case StatePlanning:
		return fmt.Sprintf("planning: %s", v.Goal)
	case StateExecuting:
		return fmt.Sprintf("executing %s", ActionType(v.Action))
	case StateWaitingForUser:
		return fmt.Sprintf("waiting for approval of %s", ActionType(v.PendingAction))
	case StateEvaluating:
		return "evaluating completion"
	case StateDone:
		return fmt.Sprintf("done: %s", v.Summary)
	case StateError:
		return fmt.Sprintf("error: %s", v.Message)
	}
	return string(s.Kind())
}

// EventKind identifies an input to the state machine.
type EventKind int

const (
	EventGoalReceived EventKind = iota
	EventStop
	EventUserApproved
	EventUserRejected
)

func (k EventKind) String() string {
	switch k {
	case EventGoalReceived:
		return "goal_received"
	case EventStop:
		return "stop"
	case EventUserApproved:
		return "user_approved"
	case EventUserRejected:
		return "user_rejected"
	}
	return fmt.Sprintf("event(%d)", int(k))
}

// Event is delivered to the engine through its event channel. Seq ties an
// approval decision to the request it answers. For stops and goals it is the
// stop generation: a goal carries the number of stops issued before it was
// submitted.
type Event struct {
	Kind EventKind
	Goal string
	Seq  uint64
}
