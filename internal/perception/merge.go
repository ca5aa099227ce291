// internal/perception/merge.go
package perception

import "strconv"

// MergeDetections folds accessibility elements into the detector's output.
// An accessibility element matching a detection above iouThreshold lends it
// its name when the detection has none; unmatched ones are appended.
func MergeDetections(detected, accessible []UIElement, iouThreshold float64) []UIElement {
	merged := make([]UIElement, len(detected), len(detected)+len(accessible))
	copy(merged, detected)
	base := len(merged)

	for _, a := range accessible {
		best, bestIoU := -1, 0.0
		for i := 0; i < base; i++ {
			v := IoU(merged[i].BBox, a.BBox)
			if v > iouThreshold && v > bestIoU {
				best, bestIoU = i, v
			}
		}
		if best < 0 {
			merged = append(merged, a)
			continue
		}
		if merged[best].Content == "" {
			merged[best].Content = a.Content
		}
	}
	return merged
}

// BuildHierarchy renumbers elements "1".."N" in input order and points each
// one at its smallest enclosing neighbour. Containment tolerates eps of slack
// per edge. A parent always has a strictly larger area than its child, or the
// same area and an earlier position, so the result has no cycles.
func BuildHierarchy(elements []UIElement, eps float64) []UIElement {
	out := make([]UIElement, len(elements))
	copy(out, elements)

	areas := make([]float64, len(out))
	for i, e := range out {
		areas[i] = e.BBox.Area()
	}

	parents := make([]int, len(out))
	for i := range out {
		parents[i] = -1
		for j := range out {
			if i == j || !out[j].BBox.Contains(out[i].BBox, eps) {
				continue
			}
			if areas[j] < areas[i] || (areas[j] == areas[i] && j > i) {
				continue
			}
			if p := parents[i]; p < 0 || areas[j] < areas[p] {
				parents[i] = j
			}
		}
	}

	for i := range out {
		out[i].ID = strconv.Itoa(i + 1)
		out[i].ParentID = ""
		if p := parents[i]; p >= 0 {
			out[i].ParentID = strconv.Itoa(p + 1)
		}
	}
	return out
}
