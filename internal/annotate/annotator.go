// Package annotate burns detection boxes and labels into the submitted photo,
// rotated upright according to its EXIF orientation.
package annotate

import (
	"bytes"
	"fmt"
	"image"
	"image/color"
	"math"
	"os"
	"strings"

	apperrors "hazard-reporter/internal/errors"
	"hazard-reporter/internal/exifmeta"
	"hazard-reporter/internal/logger"
	"hazard-reporter/pkg/models"

	"github.com/chai2010/webp"
	"github.com/disintegration/imaging"
	"github.com/sirupsen/logrus"
	"golang.org/x/image/font"
	"golang.org/x/image/font/gofont/gobold"
	"golang.org/x/image/font/opentype"
	"golang.org/x/image/math/fixed"
	_ "golang.org/x/image/webp"
)

// Sizes at a 1000px reference canvas; they scale with the longer side.
const (
	referenceSide = 1000.0
	baseStroke    = 4.0
	baseFontSize  = 28.0
	basePadding   = 6.0
)

const (
	FormatJPEG = "jpeg"
	FormatWebP = "webp"
)

// Options controls how artifacts are encoded and where they are written
type Options struct {
	ScratchDir string
	Format     string
	Quality    int
}

// DefaultOptions matches the upload format expected by the image store
func DefaultOptions() Options {
	return Options{
		ScratchDir: os.TempDir(),
		Format:     FormatJPEG,
		Quality:    90,
	}
}

// Renderer produces annotated artifacts
type Renderer interface {
	Render(src []byte, result *models.DetectionResult) (*Artifact, error)
}

// Annotator draws detections with the Go Bold typeface
type Annotator struct {
	opts Options
	font *opentype.Font
}

// NewAnnotator parses the embedded font once
func NewAnnotator(opts Options) (*Annotator, error) {
	f, err := opentype.Parse(gobold.TTF)
	if err != nil {
		return nil, fmt.Errorf("parse label font: %w", err)
	}
	if opts.Format == "" {
		opts.Format = FormatJPEG
	}
	if opts.Quality <= 0 || opts.Quality > 100 {
		opts.Quality = 90
	}
	return &Annotator{opts: opts, font: f}, nil
}

// Render decodes src, rotates it upright and draws every detection onto it.
// A decode failure is returned as a decode error; nothing is retried.
func (a *Annotator) Render(src []byte, result *models.DetectionResult) (*Artifact, error) {
	img, err := imaging.Decode(bytes.NewReader(src))
	if err != nil {
		return nil, apperrors.NewDecodeError("failed to decode image", err)
	}

	rot := exifmeta.ReadOrientation(bytes.NewReader(src))
	w, h := img.Bounds().Dx(), img.Bounds().Dy()
	canvas := rotateUpright(img, rot)
	cw, ch := canvas.Bounds().Dx(), canvas.Bounds().Dy()

	scale := math.Max(float64(cw), float64(ch)) / referenceSide
	face, err := opentype.NewFace(a.font, &opentype.FaceOptions{
		Size:    math.Max(1, baseFontSize*scale),
		DPI:     72,
		Hinting: font.HintingFull,
	})
	if err != nil {
		return nil, apperrors.NewProcessingError("failed to load label font", err)
	}
	defer face.Close()

	style := labelStyle{
		stroke:  int(math.Max(1, math.Round(baseStroke*scale))),
		padding: int(math.Round(basePadding * scale)),
		face:    face,
	}

	if result != nil {
		for _, d := range result.Detections {
			box := TransformBox(BoxFromBBox(d.BBox), rot, float64(w), float64(h))
			drawDetection(canvas, box, d, style)
		}
	}

	logger.WithFields(logrus.Fields{
		"rotation":   int(rot),
		"width":      cw,
		"height":     ch,
		"detections": len(resultDetections(result)),
	}).Debug("Rendered annotation")

	return a.write(canvas)
}

func resultDetections(result *models.DetectionResult) []models.Detection {
	if result == nil {
		return nil
	}
	return result.Detections
}

// rotateUpright turns the stored pixels into the upright view. imaging rotates
// counter-clockwise, so a 90° clockwise correction is Rotate270.
func rotateUpright(img image.Image, rot exifmeta.Rotation) *image.NRGBA {
	switch rot {
	case exifmeta.Rotate90:
		return imaging.Rotate270(img)
	case exifmeta.Rotate180:
		return imaging.Rotate180(img)
	case exifmeta.Rotate270:
		return imaging.Rotate90(img)
	default:
		return imaging.Clone(img)
	}
}

type labelStyle struct {
	stroke  int
	padding int
	face    font.Face
}

func drawDetection(img *image.NRGBA, box Box, d models.Detection, style labelStyle) {
	c := ColorFor(d.Label)
	x1, y1 := int(math.Round(box.X1)), int(math.Round(box.Y1))
	x2, y2 := int(math.Round(box.X2)), int(math.Round(box.Y2))

	// stroke straddles the edge
	half := style.stroke / 2
	for s := -half; s < style.stroke-half; s++ {
		drawHLine(img, y1+s, x1-half, x2+half+1, c)
		drawHLine(img, y2+s, x1-half, x2+half+1, c)
		drawVLine(img, x1+s, y1-half, y2+half+1, c)
		drawVLine(img, x2+s, y1-half, y2+half+1, c)
	}

	drawLabel(img, x1, y1, labelText(d), c, style)
}

func labelText(d models.Detection) string {
	return fmt.Sprintf("%s %.0f%%", strings.TrimSpace(d.Label), d.Confidence*100)
}

// drawLabel places a filled chip above the box's top-left corner. When the box
// touches the top edge the chip moves inside the box instead.
func drawLabel(img *image.NRGBA, x, y int, text string, bg color.NRGBA, style labelStyle) {
	metrics := style.face.Metrics()
	textW := font.MeasureString(style.face, text).Ceil()
	ascent := metrics.Ascent.Ceil()
	textH := ascent + metrics.Descent.Ceil()

	chipW := textW + 2*style.padding
	chipH := textH + 2*style.padding
	cw, ch := img.Bounds().Dx(), img.Bounds().Dy()

	left := clampInt(x, 0, cw-chipW)
	top := y - chipH
	if top < 0 {
		top = y
	}
	top = clampInt(top, 0, ch-chipH)

	fillRect(img, left, top, left+chipW, top+chipH, bg)

	drawer := &font.Drawer{
		Dst:  img,
		Src:  image.NewUniform(colorText),
		Face: style.face,
		Dot:  fixed.P(left+style.padding, top+style.padding+ascent),
	}
	drawer.DrawString(text)
}

func (a *Annotator) write(img *image.NRGBA) (*Artifact, error) {
	ext, contentType := ".jpg", "image/jpeg"
	if a.opts.Format == FormatWebP {
		ext, contentType = ".webp", "image/webp"
	}

	f, err := os.CreateTemp(a.opts.ScratchDir, "hazard-annotated-*"+ext)
	if err != nil {
		return nil, apperrors.NewInternalError("failed to create scratch file", err)
	}

	var encodeErr error
	if a.opts.Format == FormatWebP {
		encodeErr = webp.Encode(f, img, &webp.Options{Quality: float32(a.opts.Quality)})
	} else {
		encodeErr = imaging.Encode(f, img, imaging.JPEG, imaging.JPEGQuality(a.opts.Quality))
	}
	closeErr := f.Close()
	if encodeErr == nil {
		encodeErr = closeErr
	}
	if encodeErr != nil {
		os.Remove(f.Name())
		return nil, apperrors.NewProcessingError("failed to encode annotated image", encodeErr)
	}

	return &Artifact{
		Path:        f.Name(),
		ContentType: contentType,
		Width:       img.Bounds().Dx(),
		Height:      img.Bounds().Dy(),
	}, nil
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

func fillRect(img *image.NRGBA, x0, y0, x1, y1 int, c color.NRGBA) {
	for y := y0; y < y1; y++ {
		drawHLine(img, y, x0, x1, c)
	}
}

func drawHLine(img *image.NRGBA, y, x0, x1 int, c color.NRGBA) {
	if y < 0 || y >= img.Bounds().Dy() {
		return
	}
	if x0 > x1 {
		x0, x1 = x1, x0
	}
	if x1 <= 0 || x0 >= img.Bounds().Dx() {
		return
	}
	if x0 < 0 {
		x0 = 0
	}
	if x1 > img.Bounds().Dx() {
		x1 = img.Bounds().Dx()
	}
	i := y*img.Stride + x0*4
	for x := x0; x < x1; x++ {
		img.Pix[i+0] = c.R
		img.Pix[i+1] = c.G
		img.Pix[i+2] = c.B
		img.Pix[i+3] = c.A
		i += 4
	}
}

func drawVLine(img *image.NRGBA, x, y0, y1 int, c color.NRGBA) {
	if x < 0 || x >= img.Bounds().Dx() {
		return
	}
	if y0 > y1 {
		y0, y1 = y1, y0
	}
	if y1 <= 0 || y0 >= img.Bounds().Dy() {
		return
	}
	if y0 < 0 {
		y0 = 0
	}
	if y1 > img.Bounds().Dy() {
		y1 = img.Bounds().Dy()
	}
	i := y0*img.Stride + x*4
	for y := y0; y < y1; y++ {
		img.Pix[i+0] = c.R
		img.Pix[i+1] = c.G
		img.Pix[i+2] = c.B
		img.Pix[i+3] = c.A
		i += img.Stride
	}
}
