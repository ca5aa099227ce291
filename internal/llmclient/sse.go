// internal/llmclient/sse.go
package llmclient

import (
	"fmt"
	"strings"

	json "github.com/json-iterator/go"
)

type sseDelta struct {
	Choices []struct {
		Delta struct {
			ReasoningContent string            `json:"reasoning_content"`
			Content          string            `json:"content"`
			ToolCalls        []json.RawMessage `json:"tool_calls"`
		} `json:"delta"`
		FinishReason *string `json:"finish_reason"`
	} `json:"choices"`
}

// ParseSSELine converts one line of an OpenAI-compatible event stream into a
// chunk. Keep-alives, comments and non-data lines yield (nil, nil). Within a
// delta, reasoning wins over tool calls, tool calls over content, and a bare
// finish_reason ends the stream.
func ParseSSELine(line string) (*StreamChunk, error) {
	if line == "" || strings.HasPrefix(line, ":") {
		return nil, nil
	}
	data, ok := strings.CutPrefix(line, "data: ")
	if !ok {
		return nil, nil
	}
	data = strings.TrimSpace(data)
	if data == "[DONE]" {
		return &StreamChunk{Kind: ChunkDone}, nil
	}

	var ev sseDelta
	if err := json.Unmarshal([]byte(data), &ev); err != nil {
		return nil, fmt.Errorf("failed to parse SSE data: %w", err)
	}
	if len(ev.Choices) == 0 {
		return nil, nil
	}
	first := ev.Choices[0]
	delta := first.Delta

	if delta.ReasoningContent != "" {
		return &StreamChunk{Kind: ChunkReasoning, Content: delta.ReasoningContent}, nil
	}
	if len(delta.ToolCalls) > 0 {
		raw, err := json.Marshal(delta.ToolCalls)
		if err != nil {
			return nil, fmt.Errorf("failed to re-encode tool call delta: %w", err)
		}
		return &StreamChunk{Kind: ChunkToolCall, Content: string(raw)}, nil
	}
	if delta.Content != "" {
		return &StreamChunk{Kind: ChunkContent, Content: delta.Content}, nil
	}
	if first.FinishReason != nil {
		return &StreamChunk{Kind: ChunkDone, Content: *first.FinishReason}, nil
	}
	return nil, nil
}
