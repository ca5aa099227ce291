// internal/server/commands.go
package server

import (
	"context"
	"errors"
	"fmt"
	"strings"

	json "github.com/json-iterator/go"
	"github.com/spf13/cast"

	"github.com/xkilldash9x/seeclaw/internal/agent"
)

// Command names accepted over HTTP and the WebSocket.
const (
	CmdPing          = "ping"
	CmdGetVersion    = "get_version"
	CmdGetState      = "get_state"
	CmdGetConfig     = "get_config"
	CmdStartTask     = "start_task"
	CmdStopTask      = "stop_task"
	CmdConfirmAction = "confirm_action"
	CmdChat          = "chat"
)

// errBadCommand marks requests the caller can fix.
var errBadCommand = errors.New("bad command")

// CommandRequest is the body of POST /api/v1/command.
type CommandRequest struct {
	Command string         `json:"command"`
	Params  map[string]any `json:"params"`
}

// CommandResponse is the reply to a command.
type CommandResponse struct {
	Status string `json:"status"` // "success" or "error"
	Data   any    `json:"data,omitempty"`
	Error  string `json:"error,omitempty"`
}

// configJSON renders config structs by their yaml names so the frontend sees
// the same keys as the config file.
var configJSON = json.Config{TagKey: "yaml", EscapeHTML: true, SortMapKeys: true}.Froze()

// execute runs one command against the engine. It blocks for chat.
func (s *Server) execute(ctx context.Context, name string, params map[string]any) (map[string]any, error) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case CmdPing:
		return map[string]any{"message": "pong"}, nil

	case CmdGetVersion:
		return map[string]any{"version": s.version}, nil

	case CmdGetState:
		return stateDoc(s.engine.State()), nil

	case CmdGetConfig:
		if s.cfg == nil {
			return nil, errors.New("configuration is not available")
		}
		raw, err := configJSON.Marshal(s.cfg.Redacted())
		if err != nil {
			return nil, fmt.Errorf("failed to encode configuration: %w", err)
		}
		var doc map[string]any
		if err := json.Unmarshal(raw, &doc); err != nil {
			return nil, fmt.Errorf("failed to encode configuration: %w", err)
		}
		return doc, nil

	case CmdStartTask:
		task := strings.TrimSpace(cast.ToString(params["task"]))
		if task == "" {
			return nil, fmt.Errorf("%w: start_task requires a non-empty 'task'", errBadCommand)
		}
		if err := s.engine.SubmitGoal(task); err != nil {
			return nil, err
		}
		return map[string]any{"accepted": true, "task": task}, nil

	case CmdStopTask:
		s.engine.Stop()
		return map[string]any{"stopping": true}, nil

	case CmdConfirmAction:
		raw, ok := params["approved"]
		if !ok {
			return nil, fmt.Errorf("%w: confirm_action requires 'approved'", errBadCommand)
		}
		approved, err := cast.ToBoolE(raw)
		if err != nil {
			return nil, fmt.Errorf("%w: 'approved' must be a boolean: %v", errBadCommand, err)
		}
		if approved {
			err = s.engine.Approve()
		} else {
			err = s.engine.Reject()
		}
		if err != nil {
			return nil, err
		}
		return map[string]any{"approved": approved}, nil

	case CmdChat:
		reply, err := s.engine.Chat(ctx, cast.ToString(params["message"]))
		if err != nil {
			return nil, err
		}
		return map[string]any{"content": reply}, nil
	}
	return nil, fmt.Errorf("%w: unknown command %q", errBadCommand, name)
}

// stateDoc renders s in the same shape the history file uses.
func stateDoc(s agent.State) map[string]any {
	doc := map[string]any{"state": s.Kind()}
	if raw, err := agent.MarshalState(s); err == nil {
		_ = json.Unmarshal(raw, &doc)
	}
	doc["description"] = agent.DescribeState(s)
	return doc
}
