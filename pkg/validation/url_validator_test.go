package validation

import (
	"testing"

	apperrors "hazard-reporter/internal/errors"
)

func messageOf(t *testing.T, err error) string {
	t.Helper()
	appErr, ok := err.(*apperrors.AppError)
	if !ok {
		t.Fatalf("Expected AppError, got: %T", err)
	}
	return appErr.Message
}

func TestURLValidator_Valid(t *testing.T) {
	validator := NewURLValidator()

	for _, raw := range []string{
		"http://10.0.2.2:8000",
		"https://api.example.com/predict",
		"https://res.cloudinary.com/demo/image/upload/v1/road_hazard_reports/abc.jpg",
		"https://acct.blob.core.windows.net/reports/road_hazard_reports/abc.jpg",
	} {
		if err := validator.Validate(raw); err != nil {
			t.Errorf("Expected %s to be valid, got: %v", raw, err)
		}
	}
}

func TestURLValidator_Invalid(t *testing.T) {
	validator := NewURLValidator()

	tests := []struct {
		raw     string
		message string
	}{
		{"", "URL cannot be empty"},
		{"   ", "URL cannot be empty"},
		{"ftp://example.com/a.jpg", "URL scheme not allowed"},
		{"not-a-url", "URL scheme not allowed"},
		{"http://", "URL must have a valid host"},
		{"https:///path", "URL must have a valid host"},
		{"://missing-scheme", "Invalid URL format"},
	}

	for _, tt := range tests {
		err := validator.Validate(tt.raw)
		if err == nil {
			t.Errorf("Expected %q to fail validation", tt.raw)
			continue
		}
		if got := messageOf(t, err); got != tt.message {
			t.Errorf("Validate(%q) message = %q, want %q", tt.raw, got, tt.message)
		}
	}
}

func TestURLValidator_RestrictedHosts(t *testing.T) {
	validator := NewURLValidatorWithOptions([]string{"https"}, []string{"res.cloudinary.com"})

	if err := validator.Validate("https://res.cloudinary.com:443/x.jpg"); err != nil {
		t.Errorf("Expected allowed host with port to pass, got: %v", err)
	}
	err := validator.Validate("https://evil.example.com/x.jpg")
	if err == nil || messageOf(t, err) != "URL host not allowed" {
		t.Errorf("Expected host rejection, got: %v", err)
	}
	err = validator.Validate("http://res.cloudinary.com/x.jpg")
	if err == nil || messageOf(t, err) != "URL scheme not allowed" {
		t.Errorf("Expected scheme rejection, got: %v", err)
	}
}
