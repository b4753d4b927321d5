package service

import (
	"testing"

	"github.com/joyzh1029/ALG/model"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testNames(names ...string) func(int) string {
	return func(id int) string {
		if id < 0 || id >= len(names) {
			return ""
		}
		return names[id]
	}
}

func TestNormalizeFiltersByThreshold(t *testing.T) {
	n := &Normalizer{Threshold: 0.5}
	names := testNames("motorcycle", "person")

	boxes := []RawBox{
		{Box: [4]float64{0, 0, 200, 200}, ClassID: 0, Score: 0.9},
		{Box: [4]float64{10, 10, 210, 210}, ClassID: 1, Score: 0.5},  // at threshold: dropped
		{Box: [4]float64{20, 20, 220, 220}, ClassID: 1, Score: 0.49}, // below: dropped
		{Box: [4]float64{30, 30, 230, 230}, ClassID: 1, Score: 0.51},
	}

	dets := n.Normalize(boxes, names, model.SourcePrimary)
	require.Len(t, dets, 2)

	// Retained entries pass through unmodified.
	assert.Equal(t, [4]float64{0, 0, 200, 200}, dets[0].Box)
	assert.Equal(t, 0.9, dets[0].Confidence)
	assert.Equal(t, "motorcycle", dets[0].Class)
	assert.Equal(t, model.SourcePrimary, dets[0].Source)
	assert.Equal(t, 0.51, dets[1].Confidence)
}

func TestNormalizeRelaxesThresholdForSmallBoxes(t *testing.T) {
	n := &Normalizer{Threshold: 0.5, SmallRelaxFactor: 0.8, SmallCutoff: 100}
	names := testNames("person")

	boxes := []RawBox{
		// Longer side 50px: effective threshold 0.4, so 0.45 survives.
		{Box: [4]float64{0, 0, 50, 40}, ClassID: 0, Score: 0.45},
		// Longer side 200px: full threshold applies, 0.45 dropped.
		{Box: [4]float64{0, 0, 200, 100}, ClassID: 0, Score: 0.45},
	}

	dets := n.Normalize(boxes, names, model.SourcePrimary)
	require.Len(t, dets, 1)
	assert.Equal(t, [4]float64{0, 0, 50, 40}, dets[0].Box)
}

func TestNormalizeEmptyInput(t *testing.T) {
	n := &Normalizer{Threshold: 0.5}
	dets := n.Normalize(nil, testNames(), model.SourceHelmet)
	assert.Empty(t, dets)
}

func TestOffsetRemapsToSourceSpace(t *testing.T) {
	dets := []model.Detection{
		{Box: [4]float64{10, 20, 30, 40}},
	}
	shifted := Offset(dets, 100, 200)
	assert.Equal(t, [4]float64{110, 220, 130, 240}, shifted[0].Box)
	// Input is untouched.
	assert.Equal(t, [4]float64{10, 20, 30, 40}, dets[0].Box)
}

func TestSelectRoleSynonymFallback(t *testing.T) {
	dets := []model.Detection{
		{Class: "Rider"},
		{Class: "Motorbike"},
		{Class: "dog"},
	}

	riders := selectRole(dets, "person")
	require.Len(t, riders, 1)
	assert.Equal(t, "Rider", riders[0].Class)

	vehicles := selectRole(dets, "motorcycle")
	require.Len(t, vehicles, 1)
	assert.Equal(t, "Motorbike", vehicles[0].Class)

	assert.Empty(t, selectRole(dets, "helmet"))
}

func TestSelectRoleExactWinsOverSynonym(t *testing.T) {
	dets := []model.Detection{
		{Class: "person", Confidence: 0.9},
		{Class: "rider", Confidence: 0.8},
	}
	// When the exact label exists, synonyms are ignored.
	out := selectRole(dets, "person")
	require.Len(t, out, 1)
	assert.Equal(t, "person", out[0].Class)
}
