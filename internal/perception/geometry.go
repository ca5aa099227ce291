// internal/perception/geometry.go
package perception

// Width of the box.
func (b BBox) Width() float64 { return b[2] - b[0] }

// Height of the box.
func (b BBox) Height() float64 { return b[3] - b[1] }

// Area is zero for inverted boxes.
func (b BBox) Area() float64 {
	w, h := b.Width(), b.Height()
	if w <= 0 || h <= 0 {
		return 0
	}
	return w * h
}

// Contains reports whether b encloses other, allowing eps of slack on each edge.
func (b BBox) Contains(other BBox, eps float64) bool {
	return b[0] <= other[0]+eps &&
		b[1] <= other[1]+eps &&
		b[2] >= other[2]-eps &&
		b[3] >= other[3]-eps
}

// IoU is the intersection-over-union of two boxes. Degenerate unions give 0.
func IoU(a, b BBox) float64 {
	ix1 := max(a[0], b[0])
	iy1 := max(a[1], b[1])
	ix2 := min(a[2], b[2])
	iy2 := min(a[3], b[3])

	inter := 0.0
	if ix2 > ix1 && iy2 > iy1 {
		inter = (ix2 - ix1) * (iy2 - iy1)
	}
	union := a.Area() + b.Area() - inter
	if union <= 0 {
		return 0
	}
	return inter / union
}

func clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}
