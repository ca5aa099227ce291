// internal/agent/actions.go
package agent

import (
	"fmt"
	"strings"

	json "github.com/json-iterator/go"
	"github.com/spf13/cast"

	"github.com/xkilldash9x/seeclaw/internal/llmclient"
)

// Action is one operation the planner can ask for. The set of variants is
// closed; ActionType names each one by its tool name.
type Action interface {
	actionType() string
}

// Targetable actions address a UI element through a reference string: a
// detected element id, a grid label or "@x,y".
type Targetable interface {
	Action
	TargetRef() string
	WithTarget(ref string) Action
}

type MouseClick struct {
	ElementID string `json:"element_id"`
}

type MouseDoubleClick struct {
	ElementID string `json:"element_id"`
}

type MouseRightClick struct {
	ElementID string `json:"element_id"`
}

type Scroll struct {
	Direction string `json:"direction"`
	Distance  int    `json:"distance"`
	ElementID string `json:"element_id,omitempty"`
}

type TypeText struct {
	Text       string `json:"text"`
	ClearFirst bool   `json:"clear_first"`
}

type Hotkey struct {
	Keys string `json:"keys"`
}

type KeyPress struct {
	Key string `json:"key"`
}

type GetViewport struct {
	Annotate bool `json:"annotate"`
}

type ExecuteTerminal struct {
	Command string `json:"command"`
	Reason  string `json:"reason"`
}

type MCPCall struct {
	ServerName string         `json:"server_name"`
	ToolName   string         `json:"tool_name"`
	Arguments  map[string]any `json:"arguments"`
}

type InvokeSkill struct {
	SkillName string         `json:"skill_name"`
	Inputs    map[string]any `json:"inputs"`
}

type Wait struct {
	Milliseconds int `json:"milliseconds"`
}

type FinishTask struct {
	Summary string `json:"summary"`
}

type ReportFailure struct {
	Reason              string `json:"reason"`
	LastAttemptedAction string `json:"last_attempted_action,omitempty"`
}

// PlanTask carries an ordered step list.
type PlanTask struct {
	Steps []TodoStep `json:"steps"`
}

func (MouseClick) actionType() string       { return llmclient.ToolMouseClick }
func (MouseDoubleClick) actionType() string { return llmclient.ToolMouseDoubleClick }
func (MouseRightClick) actionType() string  { return llmclient.ToolMouseRightClick }
func (Scroll) actionType() string           { return llmclient.ToolScroll }
func (TypeText) actionType() string         { return llmclient.ToolTypeText }
func (Hotkey) actionType() string           { return llmclient.ToolHotkey }
func (KeyPress) actionType() string         { return llmclient.ToolKeyPress }
func (GetViewport) actionType() string      { return llmclient.ToolGetViewport }
func (ExecuteTerminal) actionType() string  { return llmclient.ToolExecuteTerminal }
func (MCPCall) actionType() string          { return llmclient.ToolMCPCall }
func (InvokeSkill) actionType() string      { return llmclient.ToolInvokeSkill }
func (Wait) actionType() string             { return llmclient.ToolWait }
func (FinishTask) actionType() string       { return llmclient.ToolFinishTask }
func (ReportFailure) actionType() string    { return llmclient.ToolReportFailure }
func (PlanTask) actionType() string         { return llmclient.ToolPlanTask }

func (a MouseClick) TargetRef() string       { return a.ElementID }
func (a MouseDoubleClick) TargetRef() string { return a.ElementID }
func (a MouseRightClick) TargetRef() string  { return a.ElementID }
func (a Scroll) TargetRef() string           { return a.ElementID }

func (a MouseClick) WithTarget(ref string) Action       { a.ElementID = ref; return a }
func (a MouseDoubleClick) WithTarget(ref string) Action { a.ElementID = ref; return a }
func (a MouseRightClick) WithTarget(ref string) Action  { a.ElementID = ref; return a }
func (a Scroll) WithTarget(ref string) Action           { a.ElementID = ref; return a }

// ActionType returns the tool name of a, or "" for nil.
func ActionType(a Action) string {
	if a == nil {
		return ""
	}
	return a.actionType()
}

// MarshalAction encodes a with a leading "type" discriminant.
func MarshalAction(a Action) ([]byte, error) {
	if a == nil {
		return nil, fmt.Errorf("cannot marshal nil action")
	}
	body, err := json.Marshal(a)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal %s: %w", ActionType(a), err)
	}
	head := fmt.Sprintf(`{"type":%q`, ActionType(a))
	if len(body) <= 2 {
		return []byte(head + "}"), nil
	}
	return append([]byte(head+","), body[1:]...), nil
}

func decodeAs[T Action](data []byte) (Action, error) {
	var v T
	if err := json.Unmarshal(data, &v); err != nil {
		return nil, err
	}
	return v, nil
}

var actionDecoders = map[string]func([]byte) (Action, error){
	llmclient.ToolMouseClick:       decodeAs[MouseClick],
	llmclient.ToolMouseDoubleClick: decodeAs[MouseDoubleClick],
	llmclient.ToolMouseRightClick:  decodeAs[MouseRightClick],
	llmclient.ToolScroll:           decodeAs[Scroll],
	llmclient.ToolTypeText:         decodeAs[TypeText],
	llmclient.ToolHotkey:           decodeAs[Hotkey],
	llmclient.ToolKeyPress:         decodeAs[KeyPress],
	llmclient.ToolGetViewport:      decodeAs[GetViewport],
	llmclient.ToolExecuteTerminal:  decodeAs[ExecuteTerminal],
	llmclient.ToolMCPCall:          decodeAs[MCPCall],
	llmclient.ToolInvokeSkill:      decodeAs[InvokeSkill],
	llmclient.ToolWait:             decodeAs[Wait],
	llmclient.ToolFinishTask:       decodeAs[FinishTask],
	llmclient.ToolReportFailure:    decodeAs[ReportFailure],
	llmclient.ToolPlanTask:         decodeAs[PlanTask],
}

// UnmarshalAction decodes the tagged form produced by MarshalAction.
func UnmarshalAction(data []byte) (Action, error) {
	var head struct {
		Type string `json:"type"`
	}
	if err := json.Unmarshal(data, &head); err != nil {
		return nil, fmt.Errorf("malformed action: %w", err)
	}
	decode, ok := actionDecoders[head.Type]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownTool, head.Type)
	}
	a, err := decode(data)
	if err != nil {
		return nil, fmt.Errorf("malformed %s action: %w", head.Type, err)
	}
	return a, nil
}

// actionDoc renders a as a generic map for logs and history.
func actionDoc(a Action) map[string]any {
	b, err := MarshalAction(a)
	if err != nil {
		return map[string]any{"type": ActionType(a)}
	}
	var m map[string]any
	if err := json.Unmarshal(b, &m); err != nil {
		return map[string]any{"type": ActionType(a)}
	}
	return m
}

// ActionFromToolCall builds an action from a planner tool call. Arguments
// are coerced leniently: numbers where strings are expected, lists for key
// combos and so on.
func ActionFromToolCall(name string, args map[string]any) (Action, error) {
	return actionFromArgs(name, args, false)
}

func invalid(format string, a ...any) error {
	return fmt.Errorf("%w: %s", ErrInvalidParameters, fmt.Sprintf(format, a...))
}

// actionFromArgs converts arguments into an action. allowEmptyTarget lets plan
// steps omit element_id when the target is resolved visually later.
func actionFromArgs(name string, args map[string]any, allowEmptyTarget bool) (Action, error) {
	if args == nil {
		args = map[string]any{}
	}
	str := func(key string) string { return strings.TrimSpace(cast.ToString(args[key])) }

	target := func() (string, error) {
		id := str("element_id")
		if id == "" && !allowEmptyTarget {
			return "", invalid("%s requires an 'element_id'", name)
		}
		return id, nil
	}

	switch name {
	case llmclient.ToolMouseClick:
		id, err := target()
		return MouseClick{ElementID: id}, err
	case llmclient.ToolMouseDoubleClick:
		id, err := target()
		return MouseDoubleClick{ElementID: id}, err
	case llmclient.ToolMouseRightClick:
		id, err := target()
		return MouseRightClick{ElementID: id}, err

	case llmclient.ToolScroll:
		dir := strings.ToLower(str("direction"))
		if dir == "" {
			dir = "down"
		}
		switch dir {
		case "up", "down", "left", "right":
		default:
			return nil, invalid("scroll direction must be up, down, left or right (got %q)", dir)
		}
		dist, err := cast.ToIntE(args["distance"])
		if err != nil || dist < 1 {
			dist = defaultScrollDistance
		}
		return Scroll{Direction: dir, Distance: dist, ElementID: str("element_id")}, nil

	case llmclient.ToolTypeText:
		text, ok := args["text"]
		if !ok {
			return nil, invalid("type_text requires 'text'")
		}
		return TypeText{Text: cast.ToString(text), ClearFirst: cast.ToBool(args["clear_first"])}, nil

	case llmclient.ToolHotkey:
		var keys string
		switch v := args["keys"].(type) {
		case []any:
			keys = strings.Join(cast.ToStringSlice(v), "+")
		default:
			keys = cast.ToString(v)
		}
		keys = strings.TrimSpace(keys)
		if keys == "" {
			return nil, invalid("hotkey requires 'keys'")
		}
		return Hotkey{Keys: keys}, nil

	case llmclient.ToolKeyPress:
		key := str("key")
		if key == "" {
			return nil, invalid("key_press requires a 'key'")
		}
		return KeyPress{Key: key}, nil

	case llmclient.ToolGetViewport:
		annotate := true
		if v, ok := args["annotate"]; ok && v != nil {
			annotate = cast.ToBool(v)
		}
		return GetViewport{Annotate: annotate}, nil

	case llmclient.ToolExecuteTerminal:
		cmd := str("command")
		if cmd == "" {
			return nil, invalid("execute_terminal requires a 'command'")
		}
		return ExecuteTerminal{Command: cmd, Reason: str("reason")}, nil

	case llmclient.ToolMCPCall:
		server, tool := str("server_name"), str("tool_name")
		if server == "" || tool == "" {
			return nil, invalid("mcp_call requires 'server_name' and 'tool_name'")
		}
		return MCPCall{ServerName: server, ToolName: tool, Arguments: objectArg(args["arguments"])}, nil

	case llmclient.ToolInvokeSkill:
		skill := str("skill_name")
		if skill == "" {
			return nil, invalid("invoke_skill requires a 'skill_name'")
		}
		return InvokeSkill{SkillName: skill, Inputs: objectArg(args["inputs"])}, nil

	case llmclient.ToolWait:
		ms, err := cast.ToIntE(args["milliseconds"])
		if err != nil {
			return nil, invalid("wait requires integer 'milliseconds'")
		}
		return Wait{Milliseconds: min(max(ms, 0), maxWaitMillis)}, nil

	case llmclient.ToolFinishTask:
		return FinishTask{Summary: str("summary")}, nil

	case llmclient.ToolReportFailure:
		reason := str("reason")
		if reason == "" {
			reason = "no reason given"
		}
		return ReportFailure{Reason: reason, LastAttemptedAction: str("last_attempted_action")}, nil

	case llmclient.ToolPlanTask:
		steps, _ := ParseSteps(args["steps"])
		return PlanTask{Steps: steps}, nil
	}
	return nil, fmt.Errorf("%w: %q", ErrUnknownTool, name)
}

// objectArg accepts an object or a JSON string holding one.
func objectArg(v any) map[string]any {
	switch t := v.(type) {
	case nil:
		return map[string]any{}
	case map[string]any:
		return t
	case string:
		return llmclient.ParseArguments(t)
	}
	m, err := cast.ToStringMapE(v)
	if err != nil {
		return map[string]any{}
	}
	return m
}

const (
	defaultScrollDistance = 3
	maxWaitMillis         = 60000
)
