// internal/agent/resolve.go
package agent

import (
	"fmt"
	"image"
	"strconv"
	"strings"

	"github.com/xkilldash9x/seeclaw/internal/perception"
)

// ResolveTarget maps a target reference onto physical pixels of snap.
// References are tried in order: "@x,y" coordinates, a detected element id,
// then a grid label when the snapshot carries a grid.
func ResolveTarget(ref string, snap *perception.Snapshot) (image.Point, error) {
	ref = strings.TrimSpace(ref)
	if ref == "" {
		return image.Point{}, fmt.Errorf("%w: empty reference", ErrElementNotFound)
	}
	if snap == nil {
		return image.Point{}, fmt.Errorf("%w: no screen snapshot", ErrElementNotFound)
	}
	w, h := snap.Meta.PhysicalWidth, snap.Meta.PhysicalHeight

	if rest, ok := strings.CutPrefix(ref, "@"); ok {
		xs, ys, found := strings.Cut(rest, ",")
		x, errX := strconv.Atoi(strings.TrimSpace(xs))
		y, errY := strconv.Atoi(strings.TrimSpace(ys))
		if !found || errX != nil || errY != nil {
			return image.Point{}, fmt.Errorf("%w: malformed coordinates %q", ErrElementNotFound, ref)
		}
		if x < 0 || y < 0 || (w > 0 && x >= w) || (h > 0 && y >= h) {
			return image.Point{}, fmt.Errorf("%w: %q is outside the %dx%d screen", ErrElementNotFound, ref, w, h)
		}
		return image.Pt(x, y), nil
	}

	if el, ok := snap.Element(ref); ok {
		return perception.ElementToPhysical(el, snap.Meta), nil
	}

	if snap.GridN > 0 {
		if col, row, ok := perception.ParseGridLabel(ref); ok && col < snap.GridN && row < snap.GridN {
			return perception.GridCellToPhysical(col, row, w, h, snap.GridN), nil
		}
	}
	return image.Point{}, fmt.Errorf("%w: %q", ErrElementNotFound, ref)
}
