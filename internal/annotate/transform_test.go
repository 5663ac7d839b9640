package annotate

import (
	"testing"

	"hazard-reporter/internal/exifmeta"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
)

func TestTransformBox(t *testing.T) {
	// 400x200 stored image
	const w, h = 400.0, 200.0
	box := Box{X1: 10, Y1: 20, X2: 50, Y2: 80}
	swapped := Box{X1: 50, Y1: 80, X2: 10, Y2: 20}

	tests := []struct {
		name string
		rot  exifmeta.Rotation
		want Box
	}{
		{"upright", exifmeta.Rotate0, Box{10, 20, 50, 80}},
		{"90 clockwise", exifmeta.Rotate90, Box{120, 10, 180, 50}},
		{"180", exifmeta.Rotate180, Box{350, 120, 390, 180}},
		{"270 clockwise", exifmeta.Rotate270, Box{20, 350, 80, 390}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if diff := cmp.Diff(tt.want, TransformBox(box, tt.rot, w, h)); diff != "" {
				t.Errorf("TransformBox() mismatch (-want +got):\n%s", diff)
			}
			if diff := cmp.Diff(tt.want, TransformBox(swapped, tt.rot, w, h)); diff != "" {
				t.Errorf("TransformBox() with swapped corners mismatch (-want +got):\n%s", diff)
			}
		})
	}
}

func TestTransformBox_StaysInsideCanvas(t *testing.T) {
	const w, h = 640.0, 480.0
	full := Box{X1: 0, Y1: 0, X2: w, Y2: h}

	for _, rot := range []exifmeta.Rotation{exifmeta.Rotate0, exifmeta.Rotate90, exifmeta.Rotate180, exifmeta.Rotate270} {
		cw, ch := RotatedSize(rot, int(w), int(h))
		got := TransformBox(full, rot, w, h)
		assert.Equal(t, Box{0, 0, float64(cw), float64(ch)}, got, "rotation %d", rot)
	}
}

func TestNormalize(t *testing.T) {
	got := Box{X1: 30, Y1: 5, X2: 10, Y2: 40}.Normalize()
	assert.Equal(t, Box{X1: 10, Y1: 5, X2: 30, Y2: 40}, got)
	assert.LessOrEqual(t, got.X1, got.X2)
	assert.LessOrEqual(t, got.Y1, got.Y2)
}

func TestRotatedSize(t *testing.T) {
	w, h := RotatedSize(exifmeta.Rotate90, 400, 200)
	assert.Equal(t, []int{200, 400}, []int{w, h})
	w, h = RotatedSize(exifmeta.Rotate180, 400, 200)
	assert.Equal(t, []int{400, 200}, []int{w, h})
}

func TestColorFor(t *testing.T) {
	tests := []struct {
		label string
		want  string
	}{
		{"pothole", "red"},
		{" Pothole ", "red"},
		{"potholes", "red"},
		{"crack", "yellow"},
		{"Cracks", "yellow"},
		{"manhole", "cyan"},
		{"debris", "cyan"},
		{"", "cyan"},
	}
	names := map[string]any{"red": colorPothole, "yellow": colorCrack, "cyan": colorOther}

	for _, tt := range tests {
		assert.Equal(t, names[tt.want], ColorFor(tt.label), "label %q", tt.label)
	}
}
