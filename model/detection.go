package model

// DetectorSource identifies which model produced a detection.
type DetectorSource string

const (
	SourcePrimary   DetectorSource = "primary"
	SourceHelmet    DetectorSource = "helmet"
	SourceAuxiliary DetectorSource = "auxiliary"
)

// Detection is a single normalized detector output in source-image pixel
// coordinates. Box is (x1, y1, x2, y2) with x1 < x2 and y1 < y2. Confidence
// is the raw detector score and is never renormalized.
type Detection struct {
	Box        [4]float64     `json:"bbox"`
	Confidence float64        `json:"confidence"`
	Class      string         `json:"class"`
	Source     DetectorSource `json:"source,omitempty"`
}

func (d Detection) Width() float64 {
	return d.Box[2] - d.Box[0]
}

func (d Detection) Height() float64 {
	return d.Box[3] - d.Box[1]
}

// LongerSide returns the longer of the two box dimensions, used by the
// small-object relaxations in the normalizer and associator.
func (d Detection) LongerSide() float64 {
	if w, h := d.Width(), d.Height(); w > h {
		return w
	}
	return d.Height()
}

// Center returns the box center point.
func (d Detection) Center() (float64, float64) {
	return (d.Box[0] + d.Box[2]) / 2, (d.Box[1] + d.Box[3]) / 2
}

// RiderPair associates one rider with the motorcycle they are riding.
// A rider appears in at most one pair per frame.
type RiderPair struct {
	Rider          Detection `json:"rider"`
	Vehicle        Detection `json:"motorcycle"`
	PairConfidence float64   `json:"pair_confidence"`
	CenterDistance float64   `json:"center_distance"`
}
