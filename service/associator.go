package service

import (
	"fmt"
	"math"
	"sort"

	"github.com/joyzh1029/ALG/model"
)

// AssociationStrategy maps riders to the motorcycles they are riding.
// Implementations must never assign the same rider twice; a vehicle may
// carry zero or more riders depending on policy.
type AssociationStrategy interface {
	Associate(riders, vehicles []model.Detection) []model.RiderPair
}

// NewAssociator builds the strategy named by policy.
func NewAssociator(policy string, ratio, distantCutoff, distantScale float64) (AssociationStrategy, error) {
	switch policy {
	case "greedy":
		return &GreedyAssociator{Ratio: ratio, DistantCutoff: distantCutoff, DistantScale: distantScale}, nil
	case "nearest":
		return &NearestAssociator{Ratio: ratio, DistantCutoff: distantCutoff, DistantScale: distantScale}, nil
	default:
		return nil, fmt.Errorf("unknown association policy %q", policy)
	}
}

// AssociateByRole picks riders and vehicles out of a mixed detection list
// (with synonym fallback per role) and runs the strategy over them. Zero
// riders or zero vehicles yields an empty pairing, not an error.
func AssociateByRole(dets []model.Detection, strategy AssociationStrategy) []model.RiderPair {
	riders := selectRole(dets, "person")
	vehicles := selectRole(dets, "motorcycle")
	if len(riders) == 0 || len(vehicles) == 0 {
		return nil
	}
	return strategy.Associate(riders, vehicles)
}

// pairingThreshold is the maximum center distance at which a rider is
// considered to belong to a vehicle: a ratio of the vehicle's longer side,
// widened for distant (small) vehicles where apparent proximity tightens.
func pairingThreshold(vehicle model.Detection, ratio, distantCutoff, distantScale float64) float64 {
	threshold := ratio * vehicle.LongerSide()
	if vehicle.LongerSide() < distantCutoff {
		threshold *= distantScale
	}
	return threshold
}

func centerDistance(a, b model.Detection) float64 {
	ax, ay := a.Center()
	bx, by := b.Center()
	return math.Hypot(ax-bx, ay-by)
}

// pairConfidence is a secondary plausibility signal, never a gate.
func pairConfidence(distance float64, vehicle model.Detection) float64 {
	if vehicle.Width() <= 0 {
		return 0
	}
	conf := 1 - distance/vehicle.Width()
	if conf < 0 {
		return 0
	}
	if conf > 1 {
		return 1
	}
	return conf
}

// GreedyAssociator assigns riders per vehicle: every not-yet-assigned rider
// within the vehicle's pairing threshold is claimed in ascending distance
// order. One vehicle may take several riders (passengers), each rider is
// consumed at most once.
type GreedyAssociator struct {
	Ratio         float64
	DistantCutoff float64
	DistantScale  float64
}

func (g *GreedyAssociator) Associate(riders, vehicles []model.Detection) []model.RiderPair {
	assigned := make([]bool, len(riders))
	var pairs []model.RiderPair

	for _, vehicle := range vehicles {
		threshold := pairingThreshold(vehicle, g.Ratio, g.DistantCutoff, g.DistantScale)

		type candidate struct {
			idx  int
			dist float64
		}
		var candidates []candidate
		for i, rider := range riders {
			if assigned[i] {
				continue
			}
			if dist := centerDistance(rider, vehicle); dist <= threshold {
				candidates = append(candidates, candidate{idx: i, dist: dist})
			}
		}
		sort.Slice(candidates, func(a, b int) bool {
			return candidates[a].dist < candidates[b].dist
		})

		for _, c := range candidates {
			assigned[c.idx] = true
			pairs = append(pairs, model.RiderPair{
				Rider:          riders[c.idx],
				Vehicle:        vehicle,
				PairConfidence: pairConfidence(c.dist, vehicle),
				CenterDistance: c.dist,
			})
		}
	}
	return pairs
}

// NearestAssociator pairs each rider with its single nearest vehicle and
// accepts the pair only when the distance falls within that vehicle's
// threshold. Simpler than greedy; yields different pairings when several
// riders crowd one vehicle.
type NearestAssociator struct {
	Ratio         float64
	DistantCutoff float64
	DistantScale  float64
}

func (n *NearestAssociator) Associate(riders, vehicles []model.Detection) []model.RiderPair {
	var pairs []model.RiderPair
	for _, rider := range riders {
		bestDist := math.Inf(1)
		bestIdx := -1
		for i, vehicle := range vehicles {
			if dist := centerDistance(rider, vehicle); dist < bestDist {
				bestDist = dist
				bestIdx = i
			}
		}
		if bestIdx < 0 {
			continue
		}
		vehicle := vehicles[bestIdx]
		if bestDist > pairingThreshold(vehicle, n.Ratio, n.DistantCutoff, n.DistantScale) {
			continue
		}
		pairs = append(pairs, model.RiderPair{
			Rider:          rider,
			Vehicle:        vehicle,
			PairConfidence: pairConfidence(bestDist, vehicle),
			CenterDistance: bestDist,
		})
	}
	return pairs
}
