// internal/llmclient/accumulator.go
package llmclient

import (
	"fmt"
	"sort"

	"github.com/google/uuid"
	json "github.com/json-iterator/go"
)

type toolCallFragment struct {
	Index    int    `json:"index"`
	ID       string `json:"id"`
	Function struct {
		Name      string `json:"name"`
		Arguments string `json:"arguments"`
	} `json:"function"`
}

// ToolCallAccumulator reassembles streamed tool-call fragments keyed by their
// index. The first fragment for an index normally carries the id and name;
// later fragments append argument text.
type ToolCallAccumulator struct {
	calls map[int]*ToolCall
}

// NewToolCallAccumulator creates an empty accumulator.
func NewToolCallAccumulator() *ToolCallAccumulator {
	return &ToolCallAccumulator{calls: make(map[int]*ToolCall)}
}

// Add folds one fragment into the call at index.
func (a *ToolCallAccumulator) Add(index int, id, name, arguments string) {
	tc, ok := a.calls[index]
	if !ok {
		tc = &ToolCall{}
		a.calls[index] = tc
	}
	if id != "" {
		tc.ID = id
	}
	if name != "" && tc.Name == "" {
		tc.Name = name
	}
	tc.Arguments += arguments
}

// AddJSON folds a raw tool_calls delta array, as carried by a tool-call chunk.
func (a *ToolCallAccumulator) AddJSON(raw string) error {
	var frags []toolCallFragment
	if err := json.Unmarshal([]byte(raw), &frags); err != nil {
		return fmt.Errorf("failed to decode tool call fragments: %w", err)
	}
	for _, f := range frags {
		a.Add(f.Index, f.ID, f.Function.Name, f.Function.Arguments)
	}
	return nil
}

// Len is the number of distinct calls seen so far.
func (a *ToolCallAccumulator) Len() int { return len(a.calls) }

// Calls returns the assembled calls in index order. Calls without a name are
// dropped; calls without an id get a generated one.
func (a *ToolCallAccumulator) Calls() []ToolCall {
	indices := make([]int, 0, len(a.calls))
	for i := range a.calls {
		indices = append(indices, i)
	}
	sort.Ints(indices)

	out := make([]ToolCall, 0, len(indices))
	for _, i := range indices {
		tc := *a.calls[i]
		if tc.Name == "" {
			continue
		}
		if tc.ID == "" {
			tc.ID = "call_" + uuid.NewString()
		}
		out = append(out, tc)
	}
	return out
}
