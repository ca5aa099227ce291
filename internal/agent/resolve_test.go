// internal/agent/resolve_test.go
package agent

import (
	"image"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/xkilldash9x/seeclaw/internal/perception"
)

func gridSnapshot(w, h, n int) *perception.Snapshot {
	return &perception.Snapshot{
		Meta:   perception.ScreenshotMeta{PhysicalWidth: w, PhysicalHeight: h},
		GridN:  n,
		Source: perception.SourceGrid,
	}
}

func TestResolveTarget(t *testing.T) {
	detected := &perception.Snapshot{
		Meta: perception.ScreenshotMeta{PhysicalWidth: 1000, PhysicalHeight: 500},
		Elements: []perception.UIElement{
			{ID: "btn_1", NodeType: perception.ElementButton, BBox: perception.BBox{0.1, 0.2, 0.3, 0.4}},
		},
		Source: perception.SourceAnnotated,
	}

	tests := []struct {
		name string
		ref  string
		snap *perception.Snapshot
		want image.Point
	}{
		{"grid cell", "D4", gridSnapshot(1200, 800, 12), image.Pt(350, 233)},
		{"grid cell lower case", " d4 ", gridSnapshot(1200, 800, 12), image.Pt(350, 233)},
		{"coordinates", "@640,360", gridSnapshot(1280, 720, 8), image.Pt(640, 360)},
		{"coordinates with spaces", "@ 10 , 20", detected, image.Pt(10, 20)},
		{"element id", "btn_1", detected, image.Pt(200, 150)},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ResolveTarget(tt.ref, tt.snap)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestResolveTarget_NotFound(t *testing.T) {
	tests := []struct {
		name string
		ref  string
		snap *perception.Snapshot
	}{
		{"empty", "", gridSnapshot(100, 100, 4)},
		{"no snapshot", "A1", nil},
		{"cell outside grid", "M1", gridSnapshot(1200, 800, 12)},
		{"grid label without grid", "A1", &perception.Snapshot{Meta: perception.ScreenshotMeta{PhysicalWidth: 10, PhysicalHeight: 10}}},
		{"coordinates off screen", "@1280,10", gridSnapshot(1280, 720, 8)},
		{"negative coordinates", "@-1,10", gridSnapshot(1280, 720, 8)},
		{"malformed coordinates", "@abc", gridSnapshot(1280, 720, 8)},
		{"unknown id", "btn_9", gridSnapshot(100, 100, 0)},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ResolveTarget(tt.ref, tt.snap)
			assert.ErrorIs(t, err, ErrElementNotFound)
		})
	}
}
