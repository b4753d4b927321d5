package model

// VerdictStatus is the helmet compliance state assigned to one rider.
type VerdictStatus string

const (
	StatusHelmet        VerdictStatus = "helmet"
	StatusNoHelmet      VerdictStatus = "no_helmet"
	StatusHelmetNotWorn VerdictStatus = "helmet_not_worn"
	StatusUnknown       VerdictStatus = "unknown"
)

// Unsafe reports whether the status should trigger a safety warning.
func (s VerdictStatus) Unsafe() bool {
	return s == StatusNoHelmet || s == StatusHelmetNotWorn
}

// HelmetVerdict is the aggregated outcome for a single rider crop.
// Immutable after creation; Evidence keeps the raw crop detections (already
// mapped back to source-image coordinates) for auditing and rendering.
type HelmetVerdict struct {
	Status             VerdictStatus `json:"status"`
	Message            string        `json:"message"`
	HelmetConfidence   float64       `json:"helmet_confidence"`
	NoHelmetConfidence float64       `json:"no_helmet_confidence"`
	Evidence           []Detection   `json:"evidence"`
}

// PairResult is one rider/motorcycle pair together with its verdict, in the
// wire shape returned to clients.
type PairResult struct {
	Rider              Detection     `json:"rider"`
	Motorcycle         Detection     `json:"motorcycle"`
	Status             VerdictStatus `json:"status"`
	Message            string        `json:"message"`
	HelmetConfidence   float64       `json:"helmet_confidence"`
	NoHelmetConfidence float64       `json:"no_helmet_confidence"`
	PairConfidence     float64       `json:"pair_confidence"`
	Evidence           []Detection   `json:"evidence,omitempty"`
}

// FrameResult is everything produced for one processed frame.
type FrameResult struct {
	Timestamp     string       `json:"timestamp"`
	Detections    []Detection  `json:"detections"`
	Pairs         []PairResult `json:"pairs"`
	Warning       string       `json:"warning"`
	HasMotorcycle bool         `json:"has_motorcycle"`
	HasPerson     bool         `json:"has_person"`
	HasHelmet     bool         `json:"has_helmet"`
	// Image is the annotated frame as a base64 JPEG, set when annotation
	// is requested.
	Image string `json:"image,omitempty"`
}
