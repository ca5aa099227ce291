// internal/perception/classes.go
package perception

import "strings"

// DefaultClassNames is the single-class GUI detector preset.
func DefaultClassNames() []string { return []string{"icon"} }

// LegacyClassNames is the multi-class UI preset.
func LegacyClassNames() []string {
	return []string{
		"button", "input", "link", "icon", "checkbox", "radio", "menu",
		"menuitem", "scrollbar", "tab", "toolbar", "window", "text",
		"image", "container",
	}
}

// COCOClassNames lets a stock YOLOv8n model run for smoke testing.
func COCOClassNames() []string {
	return []string{
		"person", "bicycle", "car", "motorcycle", "airplane", "bus", "train", "truck",
		"boat", "traffic light", "fire hydrant", "stop sign", "parking meter", "bench",
		"bird", "cat", "dog", "horse", "sheep", "cow", "elephant", "bear", "zebra",
		"giraffe", "backpack", "umbrella", "handbag", "tie", "suitcase", "frisbee",
		"skis", "snowboard", "sports ball", "kite", "baseball bat", "baseball glove",
		"skateboard", "surfboard", "tennis racket", "bottle", "wine glass", "cup",
		"fork", "knife", "spoon", "bowl", "banana", "apple", "sandwich", "orange",
		"broccoli", "carrot", "hot dog", "pizza", "donut", "cake", "chair", "couch",
		"potted plant", "bed", "dining table", "toilet", "tv", "laptop", "mouse",
		"remote", "keyboard", "cell phone", "microwave", "oven", "toaster", "sink",
		"refrigerator", "book", "clock", "vase", "scissors", "teddy bear",
		"hair drier", "toothbrush",
	}
}

// ClassNamesFor resolves the configured class list. Explicit names win over the preset.
func ClassNamesFor(set string, explicit []string) []string {
	if len(explicit) > 0 {
		return explicit
	}
	switch strings.ToLower(set) {
	case "legacy":
		return LegacyClassNames()
	case "coco":
		return COCOClassNames()
	default:
		return DefaultClassNames()
	}
}

type classInfo struct {
	prefix   string
	nodeType ElementType
}

var knownClasses = map[string]classInfo{
	"button":    {"btn", ElementButton},
	"input":     {"input", ElementInput},
	"link":      {"link", ElementLink},
	"icon":      {"ui", ElementIcon},
	"checkbox":  {"chk", ElementCheckbox},
	"radio":     {"radio", ElementRadio},
	"menu":      {"menu", ElementMenu},
	"menuitem":  {"mi", ElementMenuItem},
	"scrollbar": {"scroll", ElementSelect},
	"tab":       {"tab", ElementContainer},
	"toolbar":   {"tb", ElementContainer},
	"window":    {"win", ElementContainer},
	"text":      {"txt", ElementText},
	"image":     {"img", ElementImage},
	"container": {"cont", ElementContainer},
}

func classify(classNames []string, classID int) classInfo {
	if classID < 0 || classID >= len(classNames) {
		return classInfo{"obj", ElementUnknown}
	}
	name := classNames[classID]
	if info, ok := knownClasses[name]; ok {
		return info
	}
	return classInfo{name, ElementUnknown}
}
