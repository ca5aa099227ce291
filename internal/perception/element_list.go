// internal/perception/element_list.go
package perception

import (
	"fmt"
	"math"
	"strings"
)

const maxChainDepth = 10

// ElementList renders the textual companion of an annotated image. Each line
// carries the element's containment chain, e.g. "3>7>12".
func ElementList(elements []UIElement) string {
	if len(elements) == 0 {
		return "No UI elements detected."
	}

	byID := make(map[string]UIElement, len(elements))
	for _, el := range elements {
		byID[el.ID] = el
	}

	var sb strings.Builder
	sb.WriteString("Detected elements:")
	for _, el := range elements {
		fmt.Fprintf(&sb, "\n  - [%s] %s (%d%%)", containmentChain(el.ID, byID), el.NodeType.DisplayName(),
			int(math.Round(el.Confidence*100)))
		if el.Content != "" {
			fmt.Fprintf(&sb, " \"%s\"", el.Content)
		}
	}
	return sb.String()
}

func containmentChain(id string, byID map[string]UIElement) string {
	chain := []string{id}
	current := id
	for i := 0; i < maxChainDepth; i++ {
		el, ok := byID[current]
		if !ok || el.ParentID == "" {
			break
		}
		chain = append(chain, el.ParentID)
		current = el.ParentID
	}
	for i, j := 0, len(chain)-1; i < j; i, j = i+1, j-1 {
		chain[i], chain[j] = chain[j], chain[i]
	}
	return strings.Join(chain, ">")
}
