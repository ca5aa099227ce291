// internal/llmclient/types.go
package llmclient

import (
	"context"
	"errors"
)

var (
	// ErrUnknownProvider is returned when a role or SetActive names a provider
	// that is not registered.
	ErrUnknownProvider = errors.New("unknown LLM provider")
	// ErrEmptyResponse is returned when a provider answers with neither content nor tool calls
	// and no finish reason.
	ErrEmptyResponse = errors.New("LLM provider returned an empty response")
)

// ModelRole names a logical use of the model. Each role can be routed to a
// different provider and model through the llm.roles configuration section.
type ModelRole string

const (
	RoleRouting ModelRole = "routing"
	RoleChat    ModelRole = "chat"
	RoleTools   ModelRole = "tools"
	RoleVision  ModelRole = "vision"
)

// Conversation message roles.
const (
	MessageSystem    = "system"
	MessageUser      = "user"
	MessageAssistant = "assistant"
	MessageTool      = "tool"
)

// Message is one entry of a chat conversation. Images are PNG bytes attached
// to a user message.
type Message struct {
	Role       string     `json:"role"`
	Content    string     `json:"content,omitempty"`
	Images     [][]byte   `json:"-"`
	ToolCalls  []ToolCall `json:"tool_calls,omitempty"`
	ToolCallID string     `json:"tool_call_id,omitempty"`
	// Name is the tool name on tool-result messages.
	Name string `json:"name,omitempty"`
}

// SystemMessage builds a system prompt message.
func SystemMessage(text string) Message {
	return Message{Role: MessageSystem, Content: text}
}

// UserMessage builds a user message with optional PNG attachments.
func UserMessage(text string, images ...[]byte) Message {
	return Message{Role: MessageUser, Content: text, Images: images}
}

// AssistantMessage records a model reply, including the tool calls it made.
func AssistantMessage(content string, calls []ToolCall) Message {
	return Message{Role: MessageAssistant, Content: content, ToolCalls: calls}
}

// ToolResultMessage answers a tool call.
func ToolResultMessage(callID, name, content string) Message {
	return Message{Role: MessageTool, ToolCallID: callID, Name: name, Content: content}
}

// ToolCall is a complete function call requested by the model. Arguments is
// the raw JSON argument payload as emitted by the provider.
type ToolCall struct {
	ID        string `json:"id"`
	Name      string `json:"name"`
	Arguments string `json:"arguments"`
}

// Args decodes the argument payload, degrading to an empty object.
func (tc ToolCall) Args() map[string]any {
	return ParseArguments(tc.Arguments)
}

// ToolDef describes a tool offered to the model.
type ToolDef struct {
	Name        string         `json:"name"`
	Description string         `json:"description"`
	Parameters  map[string]any `json:"parameters"`
}

// CallConfig carries the per-call model parameters resolved for a role.
type CallConfig struct {
	Model       string
	Stream      bool
	Temperature float64
	MaxTokens   int
}

// Usage reports token accounting when the provider returns it.
type Usage struct {
	PromptTokens     int
	CompletionTokens int
	TotalTokens      int
}

// Response is a complete model reply.
type Response struct {
	Content      string
	Reasoning    string
	ToolCalls    []ToolCall
	FinishReason string
	Usage        Usage
}

// HasToolCalls reports whether the model requested at least one tool.
func (r *Response) HasToolCalls() bool {
	return r != nil && len(r.ToolCalls) > 0
}

// ChunkKind classifies a streamed fragment.
type ChunkKind string

const (
	ChunkReasoning ChunkKind = "reasoning"
	ChunkContent   ChunkKind = "content"
	ChunkToolCall  ChunkKind = "tool_call"
	ChunkDone      ChunkKind = "done"
	ChunkError     ChunkKind = "error"
)

// StreamChunk is one incremental piece of a streamed reply. For tool-call
// chunks Content holds the raw JSON fragment list; for done chunks it holds
// the finish reason, if any.
type StreamChunk struct {
	Kind    ChunkKind `json:"kind"`
	Content string    `json:"content"`
}

// ChunkSink receives streamed chunks. It must not block.
type ChunkSink func(StreamChunk)

func (s ChunkSink) emit(c StreamChunk) {
	if s != nil {
		s(c)
	}
}

// Provider is the contract every model backend implements. When cfg.Stream is
// set the provider emits chunks to sink as they arrive and still returns the
// reassembled response.
type Provider interface {
	Name() string
	Chat(ctx context.Context, messages []Message, tools []ToolDef, cfg CallConfig, sink ChunkSink) (*Response, error)
}
