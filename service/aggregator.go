package service

import (
	"fmt"
	"image"

	"github.com/joyzh1029/ALG/model"
)

// Aggregator resolves the (possibly empty, possibly contradictory) evidence
// found inside a rider crop into a single verdict. It is a pure function of
// its inputs: identical evidence always yields the identical verdict.
//
// The dominant invariant is the unsafe default: any unresolved or
// low-confidence case classifies as no_helmet rather than passing the rider
// as safe. UnknownAsUnsafe=false softens only the final fallback branch to
// unknown, for integrators that want uncertainty surfaced.
type Aggregator struct {
	// Threshold is the minimum confidence for helmet/no_helmet evidence to
	// decide the verdict on its own.
	Threshold       float64
	UnknownAsUnsafe bool
	// ItemReclassify enables the shape heuristic below; when off, unlabeled
	// evidence resolves straight to no_helmet.
	ItemReclassify bool

	// Shape-heuristic tuning for ambiguous "item" classes.
	ItemConfidence float64 // minimum item confidence, ~0.65
	ItemAspectMax  float64 // maximum width/height ratio, ~1.3
	ItemMinArea    float64 // minimum item area in px², relaxed for distant items
	ItemMinHeight  float64 // minimum item height in px, relaxed for distant items
	DistantCutoff  float64 // longer-side size below which an item counts as distant
}

// DefaultAggregator returns an Aggregator with the tuning used in production.
func DefaultAggregator(threshold float64, unknownAsUnsafe bool) *Aggregator {
	return &Aggregator{
		Threshold:       threshold,
		UnknownAsUnsafe: unknownAsUnsafe,
		ItemReclassify:  true,
		ItemConfidence:  0.65,
		ItemAspectMax:   1.3,
		ItemMinArea:     900,
		ItemMinHeight:   20,
		DistantCutoff:   100,
	}
}

// Aggregate turns the crop evidence (already in source-image coordinates)
// into one verdict. crop is the rider crop's bounds in the source image,
// used for vertical-placement checks. Resolution is deterministic, first
// match wins:
//
//  1. evidence with no helmet/no_helmet classes at all → shape heuristic on
//     the ambiguous items, helmet only if every shape test holds;
//  2. strongest helmet above Threshold → helmet if plausibly on-head, else
//     helmet_not_worn;
//  3. strongest no_helmet above Threshold → no_helmet;
//  4. otherwise the policy default (no_helmet, or unknown when configured).
func (a *Aggregator) Aggregate(evidence []model.Detection, crop image.Rectangle) model.HelmetVerdict {
	var bestHelmet, bestNoHelmet *model.Detection
	hasLabeled := false
	for i := range evidence {
		d := &evidence[i]
		switch {
		case matchesRole(d.Class, "helmet"):
			hasLabeled = true
			if bestHelmet == nil || d.Confidence > bestHelmet.Confidence {
				bestHelmet = d
			}
		case matchesRole(d.Class, "no_helmet"):
			hasLabeled = true
			if bestNoHelmet == nil || d.Confidence > bestNoHelmet.Confidence {
				bestNoHelmet = d
			}
		}
	}

	verdict := model.HelmetVerdict{Evidence: evidence}
	if bestHelmet != nil {
		verdict.HelmetConfidence = bestHelmet.Confidence
	}
	if bestNoHelmet != nil {
		verdict.NoHelmetConfidence = bestNoHelmet.Confidence
	}

	// 1. Only ambiguous classes present: reclassify by shape.
	if len(evidence) > 0 && !hasLabeled {
		if a.ItemReclassify {
			if item := a.itemAsHelmet(evidence, crop); item != nil {
				verdict.Status = model.StatusHelmet
				verdict.HelmetConfidence = item.Confidence
				verdict.Message = fmt.Sprintf("Helmet inferred from headwear-shaped object (confidence %.2f)", item.Confidence)
				return verdict
			}
		}
		verdict.Status = model.StatusNoHelmet
		verdict.Message = "No confirmed helmet among detected objects"
		return verdict
	}

	// 2. Confident helmet evidence: verify it sits on the head.
	if bestHelmet != nil && bestHelmet.Confidence > a.Threshold {
		if !onHead(*bestHelmet, crop) {
			verdict.Status = model.StatusHelmetNotWorn
			verdict.Message = fmt.Sprintf("Helmet detected but not worn on head (confidence %.2f)", bestHelmet.Confidence)
			return verdict
		}
		verdict.Status = model.StatusHelmet
		verdict.Message = fmt.Sprintf("Rider is wearing a helmet (confidence %.2f)", bestHelmet.Confidence)
		return verdict
	}

	// 3. Confident no-helmet evidence.
	if bestNoHelmet != nil && bestNoHelmet.Confidence > a.Threshold {
		verdict.Status = model.StatusNoHelmet
		verdict.Message = fmt.Sprintf("Rider is not wearing a helmet (confidence %.2f)", bestNoHelmet.Confidence)
		return verdict
	}

	// 4. Unresolved: unsafe default unless configured otherwise.
	if a.UnknownAsUnsafe {
		verdict.Status = model.StatusNoHelmet
		verdict.Message = "No helmet detected on rider"
	} else {
		verdict.Status = model.StatusUnknown
		verdict.Message = "Unable to determine helmet status"
	}
	return verdict
}

// onHead checks that a helmet's top edge lies within 1.5× the helmet's own
// height from the crop top, i.e. plausibly on the rider's head rather than
// carried or strapped to the vehicle.
func onHead(helmet model.Detection, crop image.Rectangle) bool {
	return helmet.Box[1]-float64(crop.Min.Y) <= 1.5*helmet.Height()
}

// itemAsHelmet applies the shape heuristic to ambiguous evidence: an item
// counts as a worn helmet only if ALL hold — near the crop top, roughly
// round, big enough, tall enough, confident enough. Area and height minima
// are halved for distant (small) items.
func (a *Aggregator) itemAsHelmet(evidence []model.Detection, crop image.Rectangle) *model.Detection {
	cropH := float64(crop.Dy())
	for i := range evidence {
		item := &evidence[i]
		if item.Confidence <= a.ItemConfidence {
			continue
		}
		if cropH > 0 && (item.Box[1]-float64(crop.Min.Y))/cropH > 0.30 {
			continue
		}
		if h := item.Height(); h <= 0 || item.Width()/h >= a.ItemAspectMax {
			continue
		}
		minArea, minHeight := a.ItemMinArea, a.ItemMinHeight
		if item.LongerSide() < a.DistantCutoff {
			minArea /= 2
			minHeight /= 2
		}
		if item.Width()*item.Height() <= minArea {
			continue
		}
		if item.Height() <= minHeight {
			continue
		}
		return item
	}
	return nil
}
