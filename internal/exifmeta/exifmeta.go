// Package exifmeta reads the two EXIF facts the pipeline relies on: the embedded
// GPS position and the orientation tag.
package exifmeta

import (
	"errors"
	"fmt"
	"io"

	"hazard-reporter/pkg/models"

	"github.com/rwcarlsen/goexif/exif"
)

// ErrNoGPS is returned when the EXIF block exists but carries no usable position
var ErrNoGPS = errors.New("exif: no gps position")

// Rotation is the clockwise rotation needed to display an image upright
type Rotation int

const (
	Rotate0   Rotation = 0
	Rotate90  Rotation = 90
	Rotate180 Rotation = 180
	Rotate270 Rotation = 270
)

func decode(r io.Reader) (*exif.Exif, error) {
	x, err := exif.Decode(r)
	if x == nil {
		if err == nil {
			err = errors.New("exif: empty metadata")
		}
		return nil, err
	}
	if err != nil && exif.IsCriticalError(err) {
		return nil, err
	}
	return x, nil
}

// ReadGPS returns the embedded GPS coordinate
func ReadGPS(r io.Reader) (*models.GeoCoordinate, error) {
	x, err := decode(r)
	if err != nil {
		return nil, fmt.Errorf("read exif: %w", err)
	}
	lat, lon, err := x.LatLong()
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrNoGPS, err)
	}
	if lat < -90 || lat > 90 || lon < -180 || lon > 180 {
		return nil, fmt.Errorf("%w: out of range %f,%f", ErrNoGPS, lat, lon)
	}
	return &models.GeoCoordinate{Latitude: lat, Longitude: lon}, nil
}

// ReadOrientation maps the orientation tag onto one of the four axis-aligned
// rotations. Missing metadata and the mirrored orientations map to Rotate0.
func ReadOrientation(r io.Reader) Rotation {
	x, err := decode(r)
	if err != nil {
		return Rotate0
	}
	tag, err := x.Get(exif.Orientation)
	if err != nil {
		return Rotate0
	}
	v, err := tag.Int(0)
	if err != nil {
		return Rotate0
	}
	return RotationFromTag(v)
}

// RotationFromTag converts a raw EXIF orientation value
func RotationFromTag(orientation int) Rotation {
	switch orientation {
	case 3:
		return Rotate180
	case 6:
		return Rotate90
	case 8:
		return Rotate270
	default:
		return Rotate0
	}
}
