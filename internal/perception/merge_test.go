// internal/perception/merge_test.go
package perception

import (
	"strconv"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestIoU(t *testing.T) {
	a := BBox{0, 0, 0.5, 0.5}
	assert.InDelta(t, 1.0, IoU(a, a), 1e-9)
	assert.InDelta(t, 0.0, IoU(a, BBox{0.6, 0.6, 0.9, 0.9}), 1e-9)
	assert.InDelta(t, 1.0/7.0, IoU(a, BBox{0.25, 0.25, 0.75, 0.75}), 1e-9)
	assert.Equal(t, 0.0, IoU(BBox{0.2, 0.2, 0.2, 0.2}, BBox{0.2, 0.2, 0.2, 0.2}), "degenerate union")
}

func TestMergeDetections(t *testing.T) {
	detected := []UIElement{
		{ID: "ui_1", NodeType: ElementIcon, BBox: BBox{0.1, 0.1, 0.2, 0.2}, Confidence: 0.8},
		{ID: "ui_2", NodeType: ElementIcon, BBox: BBox{0.5, 0.5, 0.6, 0.6}, Confidence: 0.7, Content: "kept"},
	}
	accessible := []UIElement{
		{ID: "uia_btn_1", NodeType: ElementButton, BBox: BBox{0.1, 0.1, 0.21, 0.2}, Content: "Save", Confidence: 0.9},
		{ID: "uia_btn_2", NodeType: ElementButton, BBox: BBox{0.5, 0.5, 0.6, 0.6}, Content: "Other", Confidence: 0.9},
		{ID: "uia_link_1", NodeType: ElementLink, BBox: BBox{0.8, 0.8, 0.9, 0.85}, Content: "Help", Confidence: 0.9},
	}

	merged := MergeDetections(detected, accessible, 0.3)
	require.Len(t, merged, 3)
	assert.Equal(t, "Save", merged[0].Content, "unnamed detection takes the accessibility name")
	assert.Equal(t, "kept", merged[1].Content, "existing content is not overwritten")
	assert.Equal(t, "uia_link_1", merged[2].ID, "unmatched element is appended")
	assert.Empty(t, detected[0].Content, "input slice is not mutated")
}

func TestMergePicksBestMatch(t *testing.T) {
	detected := []UIElement{
		{ID: "a", BBox: BBox{0, 0, 0.5, 0.5}},
		{ID: "b", BBox: BBox{0.05, 0.05, 0.5, 0.5}},
	}
	accessible := []UIElement{{ID: "x", BBox: BBox{0.05, 0.05, 0.5, 0.5}, Content: "exact"}}
	merged := MergeDetections(detected, accessible, 0.3)
	require.Len(t, merged, 2)
	assert.Empty(t, merged[0].Content)
	assert.Equal(t, "exact", merged[1].Content)
}

func TestBuildHierarchy(t *testing.T) {
	in := []UIElement{
		{ID: "win", NodeType: ElementContainer, BBox: BBox{0, 0, 1, 1}},
		{ID: "panel", NodeType: ElementContainer, BBox: BBox{0.1, 0.1, 0.6, 0.6}},
		{ID: "btn", NodeType: ElementButton, BBox: BBox{0.2, 0.2, 0.3, 0.3}},
		{ID: "edge", NodeType: ElementButton, BBox: BBox{0.098, 0.3, 0.2, 0.4}},
		{ID: "loose", NodeType: ElementLink, BBox: BBox{0.7, 0.7, 0.8, 0.8}},
	}

	out := BuildHierarchy(in, 0.005)
	got := map[string]string{}
	for _, el := range out {
		got[el.ID] = el.ParentID
	}
	want := map[string]string{"1": "", "2": "1", "3": "2", "4": "2", "5": "1"}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("hierarchy mismatch (-want +got):\n%s", diff)
	}
	assert.Equal(t, "win", in[0].ID, "input slice is not mutated")
	assert.Equal(t, "Detected elements:\n"+
		"  - [1] Container (0%)\n"+
		"  - [1>2] Container (0%)\n"+
		"  - [1>2>3] Button (0%)\n"+
		"  - [1>2>4] Button (0%)\n"+
		"  - [1>5] Link (0%)", ElementList(out))
}

func TestBuildHierarchyIdenticalBoxes(t *testing.T) {
	box := BBox{0.2, 0.2, 0.4, 0.4}
	out := BuildHierarchy([]UIElement{{BBox: box}, {BBox: box}}, 0.005)
	assert.Equal(t, "", out[0].ParentID)
	assert.Equal(t, "1", out[1].ParentID)
}

func genBox() gopter.Gen {
	return gopter.CombineGens(
		gen.Float64Range(0, 0.9), gen.Float64Range(0, 0.9),
		gen.Float64Range(0.01, 0.5), gen.Float64Range(0.01, 0.5),
	).Map(func(v []interface{}) BBox {
		x, y := v[0].(float64), v[1].(float64)
		return BBox{x, y, clamp01(x + v[2].(float64)), clamp01(y + v[3].(float64))}
	})
}

func TestHierarchyProperties(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 100
	properties := gopter.NewProperties(parameters)

	properties.Property("parents enclose children with no self reference or cycle", prop.ForAll(
		func(boxes []BBox) bool {
			in := make([]UIElement, len(boxes))
			for i, b := range boxes {
				in[i] = UIElement{BBox: b}
			}
			out := BuildHierarchy(in, 0.005)
			byID := map[string]UIElement{}
			for i, el := range out {
				if el.ID != strconv.Itoa(i+1) {
					return false
				}
				byID[el.ID] = el
			}
			for _, el := range out {
				if el.ParentID == el.ID {
					return false
				}
				if el.ParentID != "" && !byID[el.ParentID].BBox.Contains(el.BBox, 0.005) {
					return false
				}
				seen := map[string]bool{}
				for cur := el.ID; cur != ""; cur = byID[cur].ParentID {
					if seen[cur] {
						return false
					}
					seen[cur] = true
				}
			}
			return true
		},
		gen.SliceOfN(12, genBox()),
	))

	properties.TestingRun(t)
}
