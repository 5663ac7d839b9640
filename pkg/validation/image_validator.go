package validation

import (
	"bytes"
	"fmt"
	"image"
	_ "image/jpeg"
	_ "image/png"
	"net/http"
	"slices"

	apperrors "hazard-reporter/internal/errors"

	_ "golang.org/x/image/webp"
)

// ImageThresholds defines what an uploaded road photo must satisfy
type ImageThresholds struct {
	MaxBytes     int64
	MinWidth     int
	MinHeight    int
	AllowedTypes []string
}

// DefaultImageThresholds returns the default upload limits
func DefaultImageThresholds() ImageThresholds {
	return ImageThresholds{
		MaxBytes:     10 * 1024 * 1024, // 10MB
		MinWidth:     32,
		MinHeight:    32,
		AllowedTypes: []string{"image/jpeg", "image/png", "image/webp"},
	}
}

// ImageValidator rejects uploads that cannot be sent to inference
type ImageValidator struct {
	thresholds ImageThresholds
}

func NewImageValidator() *ImageValidator {
	return &ImageValidator{thresholds: DefaultImageThresholds()}
}

func NewImageValidatorWithThresholds(thresholds ImageThresholds) *ImageValidator {
	return &ImageValidator{thresholds: thresholds}
}

// Validate sniffs the content type and reads only the image header for dimensions.
// It returns the detected content type.
func (v *ImageValidator) Validate(data []byte) (string, error) {
	if len(data) == 0 {
		return "", apperrors.NewValidationError("image is empty", nil)
	}
	if v.thresholds.MaxBytes > 0 && int64(len(data)) > v.thresholds.MaxBytes {
		return "", apperrors.NewValidationError(
			fmt.Sprintf("image exceeds %d bytes", v.thresholds.MaxBytes), nil)
	}

	contentType := http.DetectContentType(data)
	if !slices.Contains(v.thresholds.AllowedTypes, contentType) {
		return "", apperrors.NewValidationError(
			fmt.Sprintf("unsupported image type %q", contentType), nil)
	}

	cfg, _, err := image.DecodeConfig(bytes.NewReader(data))
	if err != nil {
		return "", apperrors.NewDecodeError("image header could not be decoded", err)
	}
	if cfg.Width < v.thresholds.MinWidth || cfg.Height < v.thresholds.MinHeight {
		return "", apperrors.NewValidationError(
			fmt.Sprintf("image too small: %dx%d (minimum %dx%d)",
				cfg.Width, cfg.Height, v.thresholds.MinWidth, v.thresholds.MinHeight), nil)
	}
	return contentType, nil
}
