package annotate

import (
	"image/color"
	"strings"

	"github.com/arbovm/levenshtein"
)

var (
	colorPothole = color.NRGBA{R: 255, A: 255}
	colorCrack   = color.NRGBA{R: 255, G: 255, A: 255}
	colorOther   = color.NRGBA{G: 255, B: 255, A: 255}
	colorText    = color.NRGBA{R: 255, G: 255, B: 255, A: 255}
)

var hazardPalette = []struct {
	label string
	color color.NRGBA
}{
	{"pothole", colorPothole},
	{"crack", colorCrack},
}

// maxLabelDistance tolerates plurals and single-letter typos from the model labels
const maxLabelDistance = 1

// ColorFor picks the box colour for a hazard label
func ColorFor(label string) color.NRGBA {
	normalized := strings.ToLower(strings.TrimSpace(label))
	for _, entry := range hazardPalette {
		if normalized == entry.label {
			return entry.color
		}
	}
	for _, entry := range hazardPalette {
		if levenshtein.Distance(normalized, entry.label) <= maxLabelDistance {
			return entry.color
		}
	}
	return colorOther
}
