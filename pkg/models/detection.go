package models

// Detection is a single hazard finding returned by the inference service.
// BBox holds x1, y1, x2, y2 in source-image pixels; corner ordering is not guaranteed.
type Detection struct {
	BBox       [4]float64 `json:"bbox"`
	Label      string     `json:"label"`
	Confidence float64    `json:"confidence"`
}

// DetectionResult is the ordered list of detections plus the image size the
// inference service measured.
type DetectionResult struct {
	Detections  []Detection `json:"detections"`
	ImageWidth  int         `json:"image_width"`
	ImageHeight int         `json:"image_height"`
}

// Empty reports whether no hazards were detected.
func (r *DetectionResult) Empty() bool {
	return r == nil || len(r.Detections) == 0
}

// Primary returns the detection with the highest confidence. The first one wins on ties.
func (r *DetectionResult) Primary() (Detection, bool) {
	if r.Empty() {
		return Detection{}, false
	}
	best := r.Detections[0]
	for _, d := range r.Detections[1:] {
		if d.Confidence > best.Confidence {
			best = d
		}
	}
	return best, true
}

// UploadResult is what an artifact store hands back after a successful upload.
// PublicID is the handle used to delete the artifact again.
type UploadResult struct {
	URL      string `json:"image_url"`
	PublicID string `json:"public_id"`
}
