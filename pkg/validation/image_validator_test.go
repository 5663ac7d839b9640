package validation

import (
	"bytes"
	"image"
	"image/color"
	"image/jpeg"
	"image/png"
	"testing"

	apperrors "hazard-reporter/internal/errors"
)

func encodeJPEG(t *testing.T, w, h int) []byte {
	t.Helper()
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			img.Set(x, y, color.RGBA{90, 90, 90, 255})
		}
	}
	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, img, &jpeg.Options{Quality: 80}); err != nil {
		t.Fatalf("encode: %v", err)
	}
	return buf.Bytes()
}

func TestImageValidator_AcceptsJPEGAndPNG(t *testing.T) {
	validator := NewImageValidator()

	contentType, err := validator.Validate(encodeJPEG(t, 64, 48))
	if err != nil {
		t.Fatalf("Expected valid jpeg, got: %v", err)
	}
	if contentType != "image/jpeg" {
		t.Errorf("Expected image/jpeg, got %s", contentType)
	}

	var buf bytes.Buffer
	if err := png.Encode(&buf, image.NewGray(image.Rect(0, 0, 40, 40))); err != nil {
		t.Fatalf("encode: %v", err)
	}
	contentType, err = validator.Validate(buf.Bytes())
	if err != nil {
		t.Fatalf("Expected valid png, got: %v", err)
	}
	if contentType != "image/png" {
		t.Errorf("Expected image/png, got %s", contentType)
	}
}

func TestImageValidator_Rejects(t *testing.T) {
	validator := NewImageValidatorWithThresholds(ImageThresholds{
		MaxBytes:     4096,
		MinWidth:     32,
		MinHeight:    32,
		AllowedTypes: []string{"image/jpeg"},
	})

	tests := []struct {
		name     string
		data     []byte
		wantType apperrors.ErrorType
	}{
		{"empty", nil, apperrors.ErrorTypeValidation},
		{"text", []byte("definitely not an image"), apperrors.ErrorTypeValidation},
		{"too small", encodeJPEG(t, 16, 16), apperrors.ErrorTypeValidation},
		{"too large", append(encodeJPEG(t, 32, 32), make([]byte, 8192)...), apperrors.ErrorTypeValidation},
		{"truncated", encodeJPEG(t, 64, 64)[:12], apperrors.ErrorTypeDecode},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := validator.Validate(tt.data)
			if err == nil {
				t.Fatal("Expected validation error")
			}
			if !apperrors.IsType(err, tt.wantType) {
				t.Errorf("Expected %s error, got: %v", tt.wantType, err)
			}
		})
	}
}
