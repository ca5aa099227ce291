// internal/agent/steps.go
package agent

import (
	"fmt"
	"sort"
	"strings"

	json "github.com/json-iterator/go"
	"github.com/spf13/cast"

	"github.com/xkilldash9x/seeclaw/internal/llmclient"
)

// TodoStep is one entry of a plan produced by plan_task.
type TodoStep struct {
	Index       int
	Description string
	// NeedsViewport asks for a fresh capture and a vision lookup of Target
	// before the action runs. Only targetable actions use it.
	NeedsViewport bool
	Target        string
	Action        Action
}

type todoStepJSON struct {
	Index         int             `json:"index"`
	Description   string          `json:"description"`
	NeedsViewport bool            `json:"needs_viewport"`
	Target        string          `json:"target,omitempty"`
	Action        json.RawMessage `json:"action"`
}

func (s TodoStep) MarshalJSON() ([]byte, error) {
	action, err := MarshalAction(s.Action)
	if err != nil {
		return nil, err
	}
	return json.Marshal(todoStepJSON{
		Index:         s.Index,
		Description:   s.Description,
		NeedsViewport: s.NeedsViewport,
		Target:        s.Target,
		Action:        action,
	})
}

func (s *TodoStep) UnmarshalJSON(data []byte) error {
	var raw todoStepJSON
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	a, err := UnmarshalAction(raw.Action)
	if err != nil {
		return err
	}
	*s = TodoStep{
		Index:         raw.Index,
		Description:   raw.Description,
		NeedsViewport: raw.NeedsViewport,
		Target:        raw.Target,
		Action:        a,
	}
	return nil
}

// Label is the short text used in step logs.
func (s TodoStep) Label() string {
	if s.Description != "" {
		return s.Description
	}
	return ActionType(s.Action)
}

type indexedStep struct {
	order int
	step  TodoStep
}

// ParseSteps turns the planner's steps argument into an ordered plan. It
// accepts a list or a JSON string holding one. Entries that cannot become an
// executable step are dropped and described in the returned notes; the
// remaining steps are renumbered from zero.
func ParseSteps(raw any) ([]TodoStep, []string) {
	items, ok := stepItems(raw)
	if !ok {
		return nil, []string{fmt.Sprintf("steps must be a list (got %T)", raw)}
	}

	var notes []string
	parsed := make([]indexedStep, 0, len(items))
	for i, item := range items {
		step, err := parseStep(item)
		if err != nil {
			notes = append(notes, fmt.Sprintf("step %d skipped: %v", i+1, err))
			continue
		}
		order := i
		if m, ok := item.(map[string]any); ok {
			if v, err := cast.ToIntE(m["index"]); err == nil && m["index"] != nil {
				order = v
			}
		}
		parsed = append(parsed, indexedStep{order: order, step: step})
	}

	sort.SliceStable(parsed, func(i, j int) bool { return parsed[i].order < parsed[j].order })
	steps := make([]TodoStep, len(parsed))
	for i, p := range parsed {
		p.step.Index = i
		steps[i] = p.step
	}
	return steps, notes
}

func stepItems(raw any) ([]any, bool) {
	switch v := raw.(type) {
	case []any:
		return v, true
	case []map[string]any:
		out := make([]any, len(v))
		for i := range v {
			out[i] = v[i]
		}
		return out, true
	case string:
		var items []any
		if err := json.Unmarshal([]byte(strings.TrimSpace(v)), &items); err != nil {
			return nil, false
		}
		return items, true
	case nil:
		return nil, true
	}
	return nil, false
}

func parseStep(item any) (TodoStep, error) {
	m, ok := item.(map[string]any)
	if !ok {
		return TodoStep{}, fmt.Errorf("not an object")
	}

	step := TodoStep{
		Description:   strings.TrimSpace(cast.ToString(m["description"])),
		NeedsViewport: cast.ToBool(m["needs_viewport"]),
		Target:        strings.TrimSpace(cast.ToString(m["target"])),
	}

	var (
		kind string
		args map[string]any
	)
	switch a := m["action"].(type) {
	case map[string]any:
		kind, args = cast.ToString(a["type"]), a
	case string:
		// A bare type name with the arguments inlined on the step.
		kind, args = a, m
	default:
		return TodoStep{}, fmt.Errorf("missing action")
	}
	kind = strings.TrimSpace(kind)

	switch kind {
	case "":
		return TodoStep{}, fmt.Errorf("action has no type")
	case llmclient.ToolPlanTask, llmclient.ToolEvaluateCompletion:
		return TodoStep{}, fmt.Errorf("%s cannot be a plan step", kind)
	}

	action, err := actionFromArgs(kind, args, true)
	if err != nil {
		return TodoStep{}, err
	}
	step.Action = action

	t, targetable := action.(Targetable)
	if !targetable || t.TargetRef() != "" {
		step.NeedsViewport = false
		return step, nil
	}
	if _, isScroll := action.(Scroll); isScroll && step.Target == "" && !step.NeedsViewport {
		// Scroll without a target scrolls wherever the pointer is.
		return step, nil
	}
	if step.Target == "" {
		step.Target = step.Description
	}
	if step.Target == "" {
		return TodoStep{}, fmt.Errorf("%s has neither element_id nor target", kind)
	}
	step.NeedsViewport = true
	return step, nil
}
