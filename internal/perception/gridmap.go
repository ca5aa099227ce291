// internal/perception/gridmap.go
package perception

import (
	"fmt"
	"image"
	"math"
	"strconv"
	"strings"
)

const (
	MinGridSize     = 4
	MaxGridSize     = 26
	DefaultGridSize = 12
)

// ColumnLabel converts a zero-based column to its letter form, spreadsheet
// style: 0=A ... 25=Z, 26=AA, 51=AZ, 52=BA, 702=AAA. Negative columns give "".
func ColumnLabel(col int) string {
	if col < 0 {
		return ""
	}
	var buf [16]byte
	i := len(buf)
	for n := col + 1; n > 0; n = (n - 1) / 26 {
		i--
		buf[i] = byte('A' + (n-1)%26)
	}
	return string(buf[i:])
}

// CellLabel joins a column label and a one-based row, e.g. (3, 3) -> "D4".
func CellLabel(col, row int) string {
	return ColumnLabel(col) + strconv.Itoa(row+1)
}

// maxLabelLetters bounds the column part accepted by ParseGridLabel.
const maxLabelLetters = 3

// ParseGridLabel parses "C4" style labels into zero-based (col, row).
// Case and surrounding whitespace are ignored; up to three column letters are accepted.
func ParseGridLabel(label string) (col, row int, ok bool) {
	label = strings.ToUpper(strings.TrimSpace(label))

	split := 0
	for split < len(label) && label[split] >= 'A' && label[split] <= 'Z' {
		split++
	}
	letters, digits := label[:split], label[split:]
	if letters == "" || digits == "" {
		return 0, 0, false
	}

	if len(letters) > maxLabelLetters {
		return 0, 0, false
	}
	for i := 0; i < len(letters); i++ {
		col = col*26 + int(letters[i]-'A') + 1
	}
	col--

	n, err := strconv.Atoi(digits)
	if err != nil || n < 1 {
		return 0, 0, false
	}
	return col, n - 1, true
}

// GridCellToPhysical returns the pixel center of a cell on a w x h image split
// into an n x n grid. The result always lies inside [0,w) x [0,h).
func GridCellToPhysical(col, row, w, h, n int) image.Point {
	cellW := float64(w) / float64(n)
	cellH := float64(h) / float64(n)
	x := int(math.Round(float64(col)*cellW + cellW/2))
	y := int(math.Round(float64(row)*cellH + cellH/2))
	return image.Point{X: clampInt(x, 0, w-1), Y: clampInt(y, 0, h-1)}
}

// ElementToPhysical maps an element's normalized center onto the capture.
func ElementToPhysical(el UIElement, meta ScreenshotMeta) image.Point {
	x, y := el.CenterPhysical(meta)
	return image.Point{X: x, Y: y}
}

// ClampGridSize bounds n to the supported range; non-positive values pick the default.
func ClampGridSize(n int) int {
	if n <= 0 {
		return DefaultGridSize
	}
	return clampInt(n, MinGridSize, MaxGridSize)
}

// GridPrompt explains the overlay's coordinate scheme to a vision model.
func GridPrompt(task string, n int) string {
	last := ColumnLabel(n - 1)
	return fmt.Sprintf("The screenshot has a %[1]dx%[1]d coordinate grid overlay (cyan lines).\n"+
		"Columns are labeled A-%[2]s (left to right), rows are 1-%[1]d (top to bottom). "+
		"Every cell shows its own label in its top-left corner.\n"+
		"Example cell labels: A1 (top-left), %[2]s%[1]d (bottom-right).\n\n"+
		"Task: %[3]s\n\n"+
		"Identify the UI element matching the task and reply with JSON only: "+
		`{"cell":"C4","found":true}, or {"found":false} if it is not visible.`, n, last, task)
}

func clampInt(v, lo, hi int) int {
	if hi < lo {
		return lo
	}
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
