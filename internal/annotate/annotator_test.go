package annotate

import (
	"bytes"
	"image"
	"image/color"
	_ "image/jpeg"
	"os"
	"testing"

	apperrors "hazard-reporter/internal/errors"
	"hazard-reporter/internal/exifmeta/exiftest"
	"hazard-reporter/pkg/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/image/font"
	"golang.org/x/image/font/gofont/gobold"
	"golang.org/x/image/font/opentype"
)

func newTestAnnotator(t *testing.T, format string) *Annotator {
	t.Helper()
	a, err := NewAnnotator(Options{ScratchDir: t.TempDir(), Format: format, Quality: 90})
	require.NoError(t, err)
	return a
}

func testStyle(t *testing.T, size float64) labelStyle {
	t.Helper()
	f, err := opentype.Parse(gobold.TTF)
	require.NoError(t, err)
	face, err := opentype.NewFace(f, &opentype.FaceOptions{Size: size, DPI: 72, Hinting: font.HintingFull})
	require.NoError(t, err)
	t.Cleanup(func() { face.Close() })
	return labelStyle{stroke: 4, padding: 6, face: face}
}

func grey(w, h int) *image.NRGBA {
	img := image.NewNRGBA(image.Rect(0, 0, w, h))
	for i := 0; i < len(img.Pix); i += 4 {
		img.Pix[i], img.Pix[i+1], img.Pix[i+2], img.Pix[i+3] = 120, 120, 120, 255
	}
	return img
}

func isRed(c color.Color) bool {
	r, g, b, _ := c.RGBA()
	return r>>8 > 150 && g>>8 < 100 && b>>8 < 100
}

func TestRender_RotatesCanvasAndBoxes(t *testing.T) {
	// Stored 1000x600 landscape, orientation 6 means it displays as 600x1000 portrait.
	src := exiftest.JPEG(1000, 600, exiftest.Options{Orientation: 6})
	result := &models.DetectionResult{
		Detections:  []models.Detection{{BBox: [4]float64{100, 100, 400, 300}, Label: "pothole", Confidence: 0.92}},
		ImageWidth:  1000,
		ImageHeight: 600,
	}

	artifact, err := newTestAnnotator(t, FormatJPEG).Render(src, result)
	require.NoError(t, err)
	defer artifact.Release()

	assert.Equal(t, 600, artifact.Width)
	assert.Equal(t, 1000, artifact.Height)
	assert.Equal(t, "image/jpeg", artifact.ContentType)

	data, err := artifact.Bytes()
	require.NoError(t, err)
	img, format, err := image.Decode(bytes.NewReader(data))
	require.NoError(t, err)
	assert.Equal(t, "jpeg", format)
	assert.Equal(t, image.Rect(0, 0, 600, 1000), img.Bounds())

	// The box lands at (300,100)-(500,400) on the upright canvas.
	assert.True(t, isRed(img.At(300, 250)), "left edge should be stroked")
	assert.True(t, isRed(img.At(500, 250)), "right edge should be stroked")
	assert.False(t, isRed(img.At(400, 250)), "box interior stays untouched")
}

func TestRender_NoDetectionsStillWritesImage(t *testing.T) {
	artifact, err := newTestAnnotator(t, FormatJPEG).Render(exiftest.SolidJPEG(64, 48), &models.DetectionResult{})
	require.NoError(t, err)
	defer artifact.Release()
	assert.Equal(t, 64, artifact.Width)
	assert.Equal(t, 48, artifact.Height)
}

func TestRender_WebP(t *testing.T) {
	result := &models.DetectionResult{Detections: []models.Detection{{BBox: [4]float64{5, 5, 40, 40}, Label: "crack", Confidence: 0.5}}}
	artifact, err := newTestAnnotator(t, FormatWebP).Render(exiftest.SolidJPEG(120, 80), result)
	require.NoError(t, err)
	defer artifact.Release()

	assert.Equal(t, "image/webp", artifact.ContentType)
	data, err := artifact.Bytes()
	require.NoError(t, err)
	cfg, format, err := image.DecodeConfig(bytes.NewReader(data))
	require.NoError(t, err)
	assert.Equal(t, "webp", format)
	assert.Equal(t, 120, cfg.Width)
}

func TestRender_DecodeFailure(t *testing.T) {
	_, err := newTestAnnotator(t, FormatJPEG).Render([]byte("definitely not an image"), &models.DetectionResult{})
	require.Error(t, err)
	assert.True(t, apperrors.IsType(err, apperrors.ErrorTypeDecode))
}

func TestDrawDetection_LabelAboveBox(t *testing.T) {
	img := grey(400, 400)
	style := testStyle(t, 28)
	drawDetection(img, Box{X1: 100, Y1: 200, X2: 300, Y2: 350}, models.Detection{Label: "pothole", Confidence: 0.92}, style)

	// padding column of the chip, just above the top edge
	assert.Equal(t, colorPothole, img.NRGBAAt(104, 190))
	// stroke
	assert.Equal(t, colorPothole, img.NRGBAAt(100, 300))
	assert.Equal(t, colorPothole, img.NRGBAAt(300, 300))
	// interior
	assert.Equal(t, color.NRGBA{120, 120, 120, 255}, img.NRGBAAt(200, 300))
}

func TestDrawDetection_LabelInsideWhenBoxTouchesTop(t *testing.T) {
	img := grey(400, 400)
	style := testStyle(t, 28)
	drawDetection(img, Box{X1: 50, Y1: 10, X2: 300, Y2: 300}, models.Detection{Label: "crack", Confidence: 0.4}, style)

	// No room above: the chip starts at the box's top edge instead of being cut off.
	assert.Equal(t, color.NRGBA{120, 120, 120, 255}, img.NRGBAAt(54, 4))
	assert.Equal(t, colorCrack, img.NRGBAAt(54, 30))
}

func TestDrawDetection_ChipClampedToRightEdge(t *testing.T) {
	img := grey(300, 300)
	style := testStyle(t, 28)
	drawDetection(img, Box{X1: 280, Y1: 150, X2: 299, Y2: 200}, models.Detection{Label: "pothole", Confidence: 0.99}, style)

	chipW := font.MeasureString(style.face, "pothole 99%").Ceil() + 2*style.padding
	left := 300 - chipW

	// the chip is pulled left so it ends on the last column
	assert.Equal(t, colorPothole, img.NRGBAAt(297, 140))
	assert.Equal(t, colorPothole, img.NRGBAAt(left+2, 140))
	assert.Equal(t, color.NRGBA{120, 120, 120, 255}, img.NRGBAAt(left-2, 140))
}

func TestLabelText(t *testing.T) {
	assert.Equal(t, "pothole 92%", labelText(models.Detection{Label: "pothole", Confidence: 0.92}))
	assert.Equal(t, "crack 100%", labelText(models.Detection{Label: "crack", Confidence: 0.999}))
}

func TestArtifact_Release(t *testing.T) {
	f, err := os.CreateTemp(t.TempDir(), "artifact-*.jpg")
	require.NoError(t, err)
	f.Write([]byte("x"))
	f.Close()

	a := &Artifact{Path: f.Name(), ContentType: "image/jpeg"}
	data, err := a.Bytes()
	require.NoError(t, err)
	assert.Equal(t, []byte("x"), data)

	require.NoError(t, a.Release())
	require.NoError(t, a.Release())
	assert.True(t, a.Released())
	_, statErr := os.Stat(f.Name())
	assert.True(t, os.IsNotExist(statErr))

	_, err = a.Bytes()
	assert.ErrorIs(t, err, ErrReleased)

	var nilArtifact *Artifact
	assert.NoError(t, nilArtifact.Release())
}
