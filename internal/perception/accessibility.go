// internal/perception/accessibility.go
package perception

import (
	"context"
	"fmt"
	"image"
	"sort"

	"github.com/xkilldash9x/seeclaw/internal/config"
)

const (
	accessibilityMaxDepth    = 7
	accessibilityMaxElements = 500
	accessibilityConfidence  = 0.9

	minEdge           = 0.008
	maxAreaRatio      = 0.25
	taskbarYThreshold = 0.96
)

// AccessibilityNode exposes the properties the collector reads from one native node.
type AccessibilityNode interface {
	// Rect is the bounding rectangle in screen coordinates, treated as physical pixels.
	Rect() image.Rectangle
	Name() string
	// ControlType is the native control-type id (UIA numbering).
	ControlType() int
	Offscreen() bool
}

// AccessibilityTree is a tree-walker over an OS accessibility API.
type AccessibilityTree interface {
	Root(ctx context.Context) (AccessibilityNode, error)
	FirstChild(node AccessibilityNode) (AccessibilityNode, bool)
	NextSibling(node AccessibilityNode) (AccessibilityNode, bool)
}

// ControlTypeToElement maps UIA control-type ids onto ElementType.
func ControlTypeToElement(ct int) ElementType {
	switch ct {
	case 50000:
		return ElementButton
	case 50002:
		return ElementCheckbox
	case 50003, 50014:
		return ElementSelect
	case 50004:
		return ElementInput
	case 50005:
		return ElementLink
	case 50006:
		return ElementImage
	case 50007, 50011:
		return ElementMenuItem
	case 50009, 50010:
		return ElementMenu
	case 50013:
		return ElementRadio
	case 50020, 50033:
		return ElementText
	case 50008, 50012, 50015, 50018, 50019, 50021, 50032:
		return ElementContainer
	default:
		return ElementUnknown
	}
}

var accessibilityPrefixes = map[ElementType]string{
	ElementButton:    "btn",
	ElementInput:     "input",
	ElementLink:      "link",
	ElementIcon:      "icon",
	ElementCheckbox:  "chk",
	ElementRadio:     "radio",
	ElementSelect:    "sel",
	ElementMenu:      "menu",
	ElementMenuItem:  "mi",
	ElementText:      "txt",
	ElementImage:     "img",
	ElementContainer: "cont",
	ElementUnknown:   "unk",
}

type accessibilityWalk struct {
	ctx      context.Context
	tree     AccessibilityTree
	meta     ScreenshotMeta
	out      []UIElement
	counters map[string]int
}

// CollectAccessibility walks tree depth-first from the desktop root and returns
// the filtered, de-duplicated set of named and interactive controls.
func CollectAccessibility(ctx context.Context, tree AccessibilityTree, meta ScreenshotMeta, cfg config.PerceptionConfig) ([]UIElement, error) {
	if meta.PhysicalWidth <= 0 || meta.PhysicalHeight <= 0 {
		return nil, fmt.Errorf("invalid capture dimensions %dx%d", meta.PhysicalWidth, meta.PhysicalHeight)
	}
	root, err := tree.Root(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to get accessibility root: %w", err)
	}

	w := &accessibilityWalk{ctx: ctx, tree: tree, meta: meta, counters: make(map[string]int)}
	w.visit(root, "", 0)
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	iou := cfg.AccessibilityNMSIoU
	if iou <= 0 {
		iou = 0.5
	}
	return SuppressAccessibility(w.out, iou), nil
}

func (w *accessibilityWalk) visit(node AccessibilityNode, parentID string, depth int) {
	if depth > accessibilityMaxDepth || len(w.out) >= accessibilityMaxElements || w.ctx.Err() != nil {
		return
	}

	childParent := parentID
	if el, ok := w.extract(node); ok && keepAccessibilityElement(el) {
		el.ParentID = parentID
		w.out = append(w.out, el)
		childParent = el.ID
	}

	child, ok := w.tree.FirstChild(node)
	for ok {
		w.visit(child, childParent, depth+1)
		child, ok = w.tree.NextSibling(child)
	}
}

func (w *accessibilityWalk) extract(node AccessibilityNode) (UIElement, bool) {
	if node.Offscreen() {
		return UIElement{}, false
	}
	nodeType := ControlTypeToElement(node.ControlType())
	prefix := accessibilityPrefixes[nodeType]
	w.counters[prefix]++

	r := node.Rect()
	pw, ph := float64(w.meta.PhysicalWidth), float64(w.meta.PhysicalHeight)
	return UIElement{
		ID:       fmt.Sprintf("uia_%s_%d", prefix, w.counters[prefix]),
		NodeType: nodeType,
		BBox: BBox{
			clamp01(float64(r.Min.X) / pw),
			clamp01(float64(r.Min.Y) / ph),
			clamp01(float64(r.Max.X) / pw),
			clamp01(float64(r.Max.Y) / ph),
		},
		Content:    node.Name(),
		Confidence: accessibilityConfidence,
	}, true
}

func keepAccessibilityElement(el UIElement) bool {
	bw, bh := el.BBox.Width(), el.BBox.Height()
	named := el.Content != ""

	if bw < minEdge || bh < minEdge {
		return false
	}
	if bw*bh > maxAreaRatio && !(el.NodeType.IsInteractive() && named) {
		return false
	}
	if !named {
		switch el.NodeType {
		case ElementContainer, ElementUnknown, ElementText, ElementMenuItem, ElementMenu, ElementImage:
			return false
		}
	}
	if el.BBox[1] >= taskbarYThreshold {
		return false
	}
	return bw < 1 && bh < 1
}

// SuppressAccessibility runs containment suppression followed by IoU NMS.
// A box that fully contains another is dropped unless it is interactive; among
// overlapping survivors the smaller, interactive and named boxes win. The
// surviving elements keep their input order.
func SuppressAccessibility(elems []UIElement, iouThreshold float64) []UIElement {
	if len(elems) == 0 {
		return elems
	}

	scores := make([]float64, len(elems))
	for i, e := range elems {
		scores[i] = 1 - e.BBox.Area()
		if e.NodeType.IsInteractive() {
			scores[i] += 0.5
		}
		if e.Content != "" {
			scores[i] += 0.3
		}
	}
	order := make([]int, len(elems))
	for i := range order {
		order[i] = i
	}
	sort.SliceStable(order, func(a, b int) bool { return scores[order[a]] > scores[order[b]] })

	suppressed := make([]bool, len(elems))
	for i := range elems {
		if suppressed[i] || elems[i].NodeType.IsInteractive() {
			continue
		}
		for j := range elems {
			if i == j || suppressed[j] {
				continue
			}
			if elems[i].BBox.Contains(elems[j].BBox, 0) {
				suppressed[i] = true
				break
			}
		}
	}

	for _, i := range order {
		if suppressed[i] {
			continue
		}
		for _, j := range order {
			if j == i || suppressed[j] {
				continue
			}
			if IoU(elems[i].BBox, elems[j].BBox) > iouThreshold {
				suppressed[j] = true
			}
		}
	}

	kept := make([]UIElement, 0, len(elems))
	for i, e := range elems {
		if !suppressed[i] {
			kept = append(kept, e)
		}
	}
	return kept
}

// StaticNode is an in-memory accessibility node. A tree of them satisfies
// AccessibilityTree through StaticTree and is used wherever a pre-captured
// hierarchy stands in for a live OS walk.
type StaticNode struct {
	Bounds      image.Rectangle `json:"bounds"`
	Label       string          `json:"name"`
	Type        int             `json:"control_type"`
	Hidden      bool            `json:"offscreen"`
	Children    []*StaticNode   `json:"children,omitempty"`
	parent      *StaticNode
	indexInPeer int
}

func (n *StaticNode) Rect() image.Rectangle { return n.Bounds }
func (n *StaticNode) Name() string          { return n.Label }
func (n *StaticNode) ControlType() int      { return n.Type }
func (n *StaticNode) Offscreen() bool       { return n.Hidden }

// StaticTree walks a StaticNode hierarchy.
type StaticTree struct {
	root *StaticNode
}

// NewStaticTree links parent pointers under root.
func NewStaticTree(root *StaticNode) *StaticTree {
	var link func(n *StaticNode)
	link = func(n *StaticNode) {
		for i, c := range n.Children {
			c.parent = n
			c.indexInPeer = i
			link(c)
		}
	}
	link(root)
	return &StaticTree{root: root}
}

func (t *StaticTree) Root(ctx context.Context) (AccessibilityNode, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return t.root, nil
}

func (t *StaticTree) FirstChild(node AccessibilityNode) (AccessibilityNode, bool) {
	n, ok := node.(*StaticNode)
	if !ok || len(n.Children) == 0 {
		return nil, false
	}
	return n.Children[0], true
}

func (t *StaticTree) NextSibling(node AccessibilityNode) (AccessibilityNode, bool) {
	n, ok := node.(*StaticNode)
	if !ok || n.parent == nil || n.indexInPeer+1 >= len(n.parent.Children) {
		return nil, false
	}
	return n.parent.Children[n.indexInPeer+1], true
}
