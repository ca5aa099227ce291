// internal/perception/types.go
package perception

import (
	"errors"
	"math"
)

// ErrCaptureFailed wraps any failure to grab a frame from the display.
var ErrCaptureFailed = errors.New("screen capture failed")

// ElementType is the coarse classification shared by the detector and the
// accessibility collector.
type ElementType string

const (
	ElementButton    ElementType = "button"
	ElementInput     ElementType = "input"
	ElementLink      ElementType = "link"
	ElementText      ElementType = "text"
	ElementImage     ElementType = "image"
	ElementCheckbox  ElementType = "checkbox"
	ElementRadio     ElementType = "radio"
	ElementSelect    ElementType = "select"
	ElementMenu      ElementType = "menu"
	ElementMenuItem  ElementType = "menu_item"
	ElementIcon      ElementType = "icon"
	ElementContainer ElementType = "container"
	ElementUnknown   ElementType = "unknown"
)

var displayNames = map[ElementType]string{
	ElementButton:    "Button",
	ElementInput:     "Input",
	ElementLink:      "Link",
	ElementText:      "Text",
	ElementImage:     "Image",
	ElementCheckbox:  "Checkbox",
	ElementRadio:     "Radio",
	ElementSelect:    "Select",
	ElementMenu:      "Menu",
	ElementMenuItem:  "MenuItem",
	ElementIcon:      "Icon",
	ElementContainer: "Container",
	ElementUnknown:   "Unknown",
}

// DisplayName is the form used in the element list shown to the model.
func (t ElementType) DisplayName() string {
	if name, ok := displayNames[t]; ok {
		return name
	}
	return displayNames[ElementUnknown]
}

// IsInteractive reports whether the type is something a user acts on directly.
func (t ElementType) IsInteractive() bool {
	switch t {
	case ElementButton, ElementInput, ElementLink, ElementCheckbox, ElementRadio, ElementSelect, ElementIcon:
		return true
	}
	return false
}

// BBox is a normalized [x1, y1, x2, y2] box in [0,1]x[0,1].
type BBox [4]float64

// UIElement is one addressable target produced by a perception cycle.
type UIElement struct {
	ID         string      `json:"id"`
	NodeType   ElementType `json:"node_type"`
	BBox       BBox        `json:"bbox"`
	Content    string      `json:"content,omitempty"`
	Confidence float64     `json:"confidence"`
	ParentID   string      `json:"parent_id,omitempty"`
}

// CenterPhysical maps the box center into physical pixels.
func (e UIElement) CenterPhysical(meta ScreenshotMeta) (int, int) {
	cx := (e.BBox[0] + e.BBox[2]) / 2 * float64(meta.PhysicalWidth)
	cy := (e.BBox[1] + e.BBox[3]) / 2 * float64(meta.PhysicalHeight)
	return int(math.Round(cx)), int(math.Round(cy))
}

// ScreenshotMeta describes one capture. Physical dimensions are authoritative
// for every coordinate translation.
type ScreenshotMeta struct {
	MonitorIndex   int     `json:"monitor_index"`
	ScaleFactor    float64 `json:"scale_factor"`
	PhysicalWidth  int     `json:"physical_width"`
	PhysicalHeight int     `json:"physical_height"`
	LogicalWidth   int     `json:"logical_width"`
	LogicalHeight  int     `json:"logical_height"`
}

// Source records how a snapshot's targets were produced.
type Source string

const (
	SourceGrid          Source = "som_grid"
	SourceAnnotated     Source = "yolo_annotated"
	SourceAccessibility Source = "accessibility"
)
