package models

// ErrorResponse represents an error response
type ErrorResponse struct {
	Error   string `json:"error"`
	Type    string `json:"type,omitempty"`
	Message string `json:"message,omitempty"`
}

// SubmissionView is the tagged state of one submission as shown to a client.
type SubmissionView struct {
	ID          string           `json:"id"`
	State       string           `json:"state"`
	ReportedBy  string           `json:"reported_by"`
	Detections  *DetectionResult `json:"detection_result,omitempty"`
	Coordinates *GeoCoordinate   `json:"coordinates,omitempty"`
	HasArtifact bool             `json:"has_artifact"`
	Report      *Report          `json:"report,omitempty"`
	Error       string           `json:"error,omitempty"`
}

// ReportListResponse wraps the dashboard report feed.
type ReportListResponse struct {
	Reports []Report `json:"reports"`
	Count   int      `json:"count"`
}
