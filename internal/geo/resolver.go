// Package geo finds where a hazard photo was taken and turns that position
// into a street address.
package geo

import (
	"io"

	"hazard-reporter/internal/exifmeta"
	"hazard-reporter/internal/logger"
	"hazard-reporter/pkg/models"

	"github.com/sirupsen/logrus"
)

// GPSReader extracts an embedded position from image bytes
type GPSReader func(r io.Reader) (*models.GeoCoordinate, error)

// Resolver reads the EXIF position of a submitted image. Only the embedded
// position is trusted; the device's current location is never used.
type Resolver struct {
	readGPS GPSReader
}

// NewResolver creates a resolver backed by the EXIF reader
func NewResolver() *Resolver {
	return &Resolver{readGPS: exifmeta.ReadGPS}
}

// NewResolverWithReader swaps the GPS reader, mainly for tests
func NewResolverWithReader(read GPSReader) *Resolver {
	return &Resolver{readGPS: read}
}

// Resolve tries the original image first and then the given copy. Every failure
// is treated as "no coordinate", so a nil result is a normal outcome.
func (r *Resolver) Resolve(ref ImageRef) *models.GeoCoordinate {
	if ref == nil {
		return nil
	}
	if coord := r.attempt("original", ref.OpenOriginal); coord != nil {
		return coord
	}
	return r.attempt("given", ref.Open)
}

func (r *Resolver) attempt(source string, open func() (io.ReadCloser, error)) *models.GeoCoordinate {
	rc, err := open()
	if err != nil {
		logger.WithError(err).WithField("source", source).Debug("Image not readable for GPS lookup")
		return nil
	}
	defer rc.Close()

	coord, err := r.readGPS(rc)
	if err != nil {
		logger.WithError(err).WithField("source", source).Debug("No GPS position in image")
		return nil
	}

	logger.WithFields(logrus.Fields{
		"source":    source,
		"latitude":  coord.Latitude,
		"longitude": coord.Longitude,
	}).Debug("Resolved GPS position")
	return coord
}
