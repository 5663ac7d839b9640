package annotate

import (
	"math"

	"hazard-reporter/internal/exifmeta"
)

// Box is an axis-aligned rectangle in pixel space
type Box struct {
	X1, Y1, X2, Y2 float64
}

// BoxFromBBox converts the detection wire format
func BoxFromBBox(b [4]float64) Box {
	return Box{X1: b[0], Y1: b[1], X2: b[2], Y2: b[3]}
}

// Normalize orders the corners so that X1<=X2 and Y1<=Y2
func (b Box) Normalize() Box {
	return Box{
		X1: math.Min(b.X1, b.X2),
		Y1: math.Min(b.Y1, b.Y2),
		X2: math.Max(b.X1, b.X2),
		Y2: math.Max(b.Y1, b.Y2),
	}
}

// TransformBox maps a box from the stored (unrotated) image into the upright
// canvas. w and h are the dimensions before rotation. The result is normalized.
func TransformBox(b Box, rot exifmeta.Rotation, w, h float64) Box {
	x1, y1 := transformPoint(b.X1, b.Y1, rot, w, h)
	x2, y2 := transformPoint(b.X2, b.Y2, rot, w, h)
	return Box{X1: x1, Y1: y1, X2: x2, Y2: y2}.Normalize()
}

func transformPoint(x, y float64, rot exifmeta.Rotation, w, h float64) (float64, float64) {
	switch rot {
	case exifmeta.Rotate90:
		return h - y, x
	case exifmeta.Rotate180:
		return w - x, h - y
	case exifmeta.Rotate270:
		return y, w - x
	default:
		return x, y
	}
}

// RotatedSize returns the canvas size after applying rot to a w×h image
func RotatedSize(rot exifmeta.Rotation, w, h int) (int, int) {
	if rot == exifmeta.Rotate90 || rot == exifmeta.Rotate270 {
		return h, w
	}
	return w, h
}
