package exifmeta

import (
	"bytes"
	"errors"
	"testing"

	"hazard-reporter/internal/exifmeta/exiftest"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestReadGPS(t *testing.T) {
	tests := []struct {
		name     string
		lat, lon float64
	}{
		{"north east", 32.05, 34.78},
		{"south west", -33.8688, -151.2093},
		{"equator", 0.5, 0.25},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			data := exiftest.JPEG(64, 64, exiftest.Options{GPS: exiftest.GPS(tt.lat, tt.lon)})

			coord, err := ReadGPS(bytes.NewReader(data))
			require.NoError(t, err)
			assert.InDelta(t, tt.lat, coord.Latitude, 1e-6)
			assert.InDelta(t, tt.lon, coord.Longitude, 1e-6)
		})
	}
}

func TestReadGPS_Missing(t *testing.T) {
	t.Run("exif without gps", func(t *testing.T) {
		data := exiftest.JPEG(64, 64, exiftest.Options{Orientation: 6})
		_, err := ReadGPS(bytes.NewReader(data))
		require.Error(t, err)
		assert.True(t, errors.Is(err, ErrNoGPS))
	})

	t.Run("no exif at all", func(t *testing.T) {
		_, err := ReadGPS(bytes.NewReader(exiftest.SolidJPEG(64, 64)))
		assert.Error(t, err)
	})

	t.Run("garbage", func(t *testing.T) {
		_, err := ReadGPS(bytes.NewReader([]byte("not an image")))
		assert.Error(t, err)
	})
}

func TestReadOrientation(t *testing.T) {
	tests := []struct {
		tag  int
		want Rotation
	}{
		{1, Rotate0},
		{3, Rotate180},
		{6, Rotate90},
		{8, Rotate270},
		{2, Rotate0}, // mirrored variants are not handled
		{5, Rotate0},
	}

	for _, tt := range tests {
		data := exiftest.JPEG(32, 16, exiftest.Options{Orientation: tt.tag})
		assert.Equal(t, tt.want, ReadOrientation(bytes.NewReader(data)), "orientation tag %d", tt.tag)
	}

	assert.Equal(t, Rotate0, ReadOrientation(bytes.NewReader(exiftest.SolidJPEG(8, 8))))
}
