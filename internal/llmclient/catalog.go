// internal/llmclient/catalog.go
package llmclient

import (
	"fmt"

	"github.com/santhosh-tekuri/jsonschema/v6"
)

// Built-in tool names.
const (
	ToolMouseClick         = "mouse_click"
	ToolMouseDoubleClick   = "mouse_double_click"
	ToolMouseRightClick    = "mouse_right_click"
	ToolScroll             = "scroll"
	ToolTypeText           = "type_text"
	ToolHotkey             = "hotkey"
	ToolKeyPress           = "key_press"
	ToolGetViewport        = "get_viewport"
	ToolExecuteTerminal    = "execute_terminal"
	ToolMCPCall            = "mcp_call"
	ToolInvokeSkill        = "invoke_skill"
	ToolWait               = "wait"
	ToolFinishTask         = "finish_task"
	ToolReportFailure      = "report_failure"
	ToolPlanTask           = "plan_task"
	ToolEvaluateCompletion = "evaluate_completion"
)

func obj(required []string, props map[string]any) map[string]any {
	s := map[string]any{
		"type":       "object",
		"properties": props,
	}
	if len(required) > 0 {
		req := make([]any, len(required))
		for i, r := range required {
			req[i] = r
		}
		s["required"] = req
	}
	return s
}

func str(desc string) map[string]any {
	return map[string]any{"type": "string", "description": desc}
}

var elementIDProp = str("Target reference: a detected element id (e.g. \"3\" or \"btn_2\"), a grid cell label (e.g. \"D4\"), or \"@x,y\" physical pixels.")

// BuiltinTools returns the fixed tool catalog offered to the planner.
func BuiltinTools() []ToolDef {
	return []ToolDef{
		{
			Name:        ToolMouseClick,
			Description: "Left-click a UI element.",
			Parameters:  obj([]string{"element_id"}, map[string]any{"element_id": elementIDProp}),
		},
		{
			Name:        ToolMouseDoubleClick,
			Description: "Double-click a UI element.",
			Parameters:  obj([]string{"element_id"}, map[string]any{"element_id": elementIDProp}),
		},
		{
			Name:        ToolMouseRightClick,
			Description: "Right-click a UI element to open its context menu.",
			Parameters:  obj([]string{"element_id"}, map[string]any{"element_id": elementIDProp}),
		},
		{
			Name:        ToolScroll,
			Description: "Scroll the view, optionally over a specific element.",
			Parameters: obj([]string{"direction"}, map[string]any{
				"direction":  map[string]any{"type": "string", "enum": []any{"up", "down", "left", "right"}},
				"distance":   map[string]any{"type": "integer", "minimum": 1, "description": "Wheel notches, default 3."},
				"element_id": elementIDProp,
			}),
		},
		{
			Name:        ToolTypeText,
			Description: "Type text into the focused control.",
			Parameters: obj([]string{"text"}, map[string]any{
				"text":        str("Literal text to type."),
				"clear_first": map[string]any{"type": "boolean", "description": "Select all and delete before typing."},
			}),
		},
		{
			Name:        ToolHotkey,
			Description: "Press a key combination such as ctrl+s.",
			Parameters:  obj([]string{"keys"}, map[string]any{"keys": str("Keys joined by '+', e.g. \"ctrl+shift+t\".")}),
		},
		{
			Name:        ToolKeyPress,
			Description: "Press a single key such as Enter or Escape.",
			Parameters:  obj([]string{"key"}, map[string]any{"key": str("Key name.")}),
		},
		{
			Name:        ToolGetViewport,
			Description: "Capture the screen and return the detected elements or a labeled grid.",
			Parameters: obj(nil, map[string]any{
				"annotate": map[string]any{"type": "boolean", "description": "Return the annotated image (default true)."},
			}),
		},
		{
			Name:        ToolExecuteTerminal,
			Description: "Run a shell command. Always requires user approval.",
			Parameters: obj([]string{"command"}, map[string]any{
				"command": str("Shell command line."),
				"reason":  str("Why the command is needed."),
			}),
		},
		{
			Name:        ToolMCPCall,
			Description: "Call a tool on a configured MCP server.",
			Parameters: obj([]string{"server_name", "tool_name"}, map[string]any{
				"server_name": str("Configured MCP server name."),
				"tool_name":   str("Tool exposed by the server."),
				"arguments":   map[string]any{"type": "object", "description": "Tool arguments."},
			}),
		},
		{
			Name:        ToolInvokeSkill,
			Description: "Load a registered skill's instructions.",
			Parameters: obj([]string{"skill_name"}, map[string]any{
				"skill_name": str("Registered skill name."),
				"inputs":     map[string]any{"type": "object", "description": "Skill inputs."},
			}),
		},
		{
			Name:        ToolWait,
			Description: "Pause before the next action.",
			Parameters: obj([]string{"milliseconds"}, map[string]any{
				"milliseconds": map[string]any{"type": "integer", "minimum": 0, "maximum": 60000},
			}),
		},
		{
			Name:        ToolFinishTask,
			Description: "Declare the goal achieved.",
			Parameters:  obj([]string{"summary"}, map[string]any{"summary": str("What was done.")}),
		},
		{
			Name:        ToolReportFailure,
			Description: "Give up on the goal and explain why.",
			Parameters: obj([]string{"reason"}, map[string]any{
				"reason":                str("Why the goal cannot be achieved."),
				"last_attempted_action": str("The last action that was tried."),
			}),
		},
		{
			Name:        ToolPlanTask,
			Description: "Break the goal into ordered steps. Each step wraps one action.",
			Parameters: obj([]string{"steps"}, map[string]any{
				"steps": map[string]any{
					"type": "array",
					"items": obj([]string{"description", "action"}, map[string]any{
						"description":    str("Human-readable step description."),
						"needs_viewport": map[string]any{"type": "boolean", "description": "Resolve the target visually before acting."},
						"target":         str("What to look for on screen, e.g. \"Save button\"."),
						"action": map[string]any{
							"type":        "object",
							"description": "An action object with a \"type\" field naming a built-in tool and that tool's arguments.",
							"properties":  map[string]any{"type": str("Built-in tool name.")},
							"required":    []any{"type"},
						},
					}),
				},
			}),
		},
		{
			Name:        ToolEvaluateCompletion,
			Description: "Ask for an evaluation of whether the goal has been achieved.",
			Parameters:  obj(nil, map[string]any{"notes": str("Observations so far.")}),
		},
	}
}

// Catalog is the compiled tool catalog. Every parameters schema is compiled
// once so argument payloads can be checked cheaply.
type Catalog struct {
	tools   []ToolDef
	schemas map[string]*jsonschema.Schema
}

// NewCatalog compiles the schemas of tools. A schema that does not compile
// is a programming error and is reported as such.
func NewCatalog(tools []ToolDef) (*Catalog, error) {
	c := &Catalog{tools: tools, schemas: make(map[string]*jsonschema.Schema, len(tools))}
	compiler := jsonschema.NewCompiler()
	for _, t := range tools {
		if _, dup := c.schemas[t.Name]; dup {
			return nil, fmt.Errorf("duplicate tool %q in catalog", t.Name)
		}
		url := "https://seeclaw.local/tools/" + t.Name + ".json"
		if err := compiler.AddResource(url, t.Parameters); err != nil {
			return nil, fmt.Errorf("add schema for tool %q: %w", t.Name, err)
		}
		schema, err := compiler.Compile(url)
		if err != nil {
			return nil, fmt.Errorf("compile schema for tool %q: %w", t.Name, err)
		}
		c.schemas[t.Name] = schema
	}
	return c, nil
}

// MustBuiltinCatalog compiles BuiltinTools and panics on failure.
func MustBuiltinCatalog() *Catalog {
	c, err := NewCatalog(BuiltinTools())
	if err != nil {
		panic(err)
	}
	return c
}

// Tools returns the definitions in declaration order.
func (c *Catalog) Tools() []ToolDef { return c.tools }

// Has reports whether name is a catalog tool.
func (c *Catalog) Has(name string) bool {
	_, ok := c.schemas[name]
	return ok
}

// Validate checks decoded arguments against the tool's schema.
func (c *Catalog) Validate(name string, args map[string]any) error {
	schema, ok := c.schemas[name]
	if !ok {
		return fmt.Errorf("unknown tool %q", name)
	}
	return schema.Validate(normalizeForSchema(args))
}

// normalizeForSchema converts the decoded map into the plain types the
// validator understands.
func normalizeForSchema(v any) any {
	switch t := v.(type) {
	case map[string]any:
		out := make(map[string]any, len(t))
		for k, val := range t {
			out[k] = normalizeForSchema(val)
		}
		return out
	case []any:
		out := make([]any, len(t))
		for i, val := range t {
			out[i] = normalizeForSchema(val)
		}
		return out
	case int:
		return float64(t)
	case int64:
		return float64(t)
	default:
		return v
	}
}
