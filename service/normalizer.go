package service

import (
	"strings"

	"github.com/joyzh1029/ALG/model"
)

// Semantic roles resolved against detector class labels. Models in the wild
// disagree on naming, so each role accepts an ordered list of synonyms,
// matched case-insensitively. Exact role names always win; synonyms are a
// recall fallback only.
var roleSynonyms = map[string][]string{
	"person":     {"person", "rider", "pedestrian", "people", "human"},
	"motorcycle": {"motorcycle", "motorbike", "moto", "bike", "scooter"},
	"helmet":     {"helmet", "with helmet", "with_helmet", "hardhat"},
	"no_helmet":  {"no_helmet", "no-helmet", "without helmet", "without_helmet", "head"},
}

// matchesRole reports whether a class label belongs to a semantic role via
// the synonym table.
func matchesRole(class, role string) bool {
	for _, syn := range roleSynonyms[role] {
		if strings.EqualFold(class, syn) {
			return true
		}
	}
	return false
}

// selectRole returns the detections whose class is exactly the role name,
// falling back to the synonym list when the exact label never appears.
func selectRole(dets []model.Detection, role string) []model.Detection {
	var exact []model.Detection
	for _, d := range dets {
		if strings.EqualFold(d.Class, role) {
			exact = append(exact, d)
		}
	}
	if len(exact) > 0 {
		return exact
	}
	var loose []model.Detection
	for _, d := range dets {
		if matchesRole(d.Class, role) {
			loose = append(loose, d)
		}
	}
	return loose
}

// Normalizer converts raw detector output into Detection records and applies
// the confidence filter. Pure; no error path beyond an empty result.
type Normalizer struct {
	// Threshold drops boxes with confidence at or below this value.
	Threshold float64
	// SmallRelaxFactor scales Threshold down for boxes whose longer side is
	// under SmallCutoff pixels, compensating for weaker recall on distant
	// subjects.
	SmallRelaxFactor float64
	SmallCutoff      float64
}

// Normalize maps raw boxes through the class-name function, filters by the
// (possibly relaxed) confidence threshold, and tags the surviving records
// with their originating detector. Retained boxes pass through unmodified.
func (n *Normalizer) Normalize(boxes []RawBox, className func(int) string, source model.DetectorSource) []model.Detection {
	dets := make([]model.Detection, 0, len(boxes))
	for _, b := range boxes {
		d := model.Detection{
			Box:        b.Box,
			Confidence: b.Score,
			Class:      className(b.ClassID),
			Source:     source,
		}
		threshold := n.Threshold
		if n.SmallRelaxFactor > 0 && d.LongerSide() < n.SmallCutoff {
			threshold *= n.SmallRelaxFactor
		}
		if d.Confidence <= threshold {
			continue
		}
		dets = append(dets, d)
	}
	return dets
}

// Offset shifts detections from crop space back into source-image space by
// adding the crop origin.
func Offset(dets []model.Detection, dx, dy float64) []model.Detection {
	out := make([]model.Detection, len(dets))
	for i, d := range dets {
		d.Box[0] += dx
		d.Box[1] += dy
		d.Box[2] += dx
		d.Box[3] += dy
		out[i] = d
	}
	return out
}
