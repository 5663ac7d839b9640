package models

import "fmt"

const (
	// ReportStatusNew is the status every freshly persisted report starts with
	ReportStatusNew = "New"

	// DateLayout formats Report.Date as yyyy-MM-dd HH:mm in local time
	DateLayout = "2006-01-02 15:04"

	AnonymousReporter = "Anonymous"
	UnknownLocation   = "Unknown location"
)

// Defaults applied when reading records written by other clients
const (
	fallbackHazardType = "Unknown"
	fallbackLocation   = "Unknown Location"
	fallbackStatus     = "Open"
)

// GeoCoordinate is a WGS84 latitude/longitude pair in degrees.
type GeoCoordinate struct {
	Latitude  float64 `json:"latitude"`
	Longitude float64 `json:"longitude"`
}

func (c GeoCoordinate) String() string {
	return fmt.Sprintf("%.6f,%.6f", c.Latitude, c.Longitude)
}

// Report is the durable hazard record.
type Report struct {
	ID          string         `json:"id"`
	HazardType  string         `json:"hazardType"`
	Location    string         `json:"location"`
	Coordinates *GeoCoordinate `json:"coordinates"`
	Date        string         `json:"date"`
	ImageURL    string         `json:"imageUrl"`
	Status      string         `json:"status"`
	ReportedBy  string         `json:"reportedBy"`
}

// Persistable reports whether the record satisfies the minimum required to be stored:
// an ID, coordinates and an image URL.
func (r *Report) Persistable() error {
	switch {
	case r.ID == "":
		return fmt.Errorf("report has no id")
	case r.Coordinates == nil:
		return fmt.Errorf("report %s has no coordinates", r.ID)
	case r.ImageURL == "":
		return fmt.Errorf("report %s has no image url", r.ID)
	}
	return nil
}

// ApplyReadDefaults fills empty fields of a record read back from the store.
func (r *Report) ApplyReadDefaults() {
	if r.HazardType == "" {
		r.HazardType = fallbackHazardType
	}
	if r.Location == "" {
		r.Location = fallbackLocation
	}
	if r.Status == "" {
		r.Status = fallbackStatus
	}
	if r.ReportedBy == "" {
		r.ReportedBy = AnonymousReporter
	}
}

// ReporterName picks the display name, then the email, then "Anonymous".
func ReporterName(displayName, email string) string {
	if displayName != "" {
		return displayName
	}
	if email != "" {
		return email
	}
	return AnonymousReporter
}
