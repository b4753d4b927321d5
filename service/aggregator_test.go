package service

import (
	"image"
	"testing"

	"github.com/joyzh1029/ALG/model"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func evidence(class string, conf float64, x1, y1, x2, y2 float64) model.Detection {
	return model.Detection{
		Class:      class,
		Confidence: conf,
		Box:        [4]float64{x1, y1, x2, y2},
		Source:     model.SourceHelmet,
	}
}

func TestAggregateConfidentHelmetOnHead(t *testing.T) {
	a := DefaultAggregator(0.5, true)
	crop := image.Rect(80, 60, 220, 340)

	// Helmet near the crop top, well above threshold.
	ev := []model.Detection{evidence("helmet", 0.9, 120, 70, 170, 120)}
	v := a.Aggregate(ev, crop)

	assert.Equal(t, model.StatusHelmet, v.Status)
	assert.Equal(t, 0.9, v.HelmetConfidence)
	assert.NotEmpty(t, v.Message)
	assert.Equal(t, ev, v.Evidence)
}

func TestAggregateLowConfidenceHelmetDefaultsUnsafe(t *testing.T) {
	a := DefaultAggregator(0.5, true)
	crop := image.Rect(80, 60, 220, 340)

	ev := []model.Detection{evidence("helmet", 0.3, 120, 70, 170, 120)}
	v := a.Aggregate(ev, crop)

	assert.Equal(t, model.StatusNoHelmet, v.Status)
	assert.Equal(t, 0.3, v.HelmetConfidence)
}

func TestAggregateHelmetNotWorn(t *testing.T) {
	a := DefaultAggregator(0.5, true)
	crop := image.Rect(0, 0, 200, 400)

	// Confident helmet but far down the crop: top edge at 300, more than
	// 1.5x its own 60px height from the crop top.
	ev := []model.Detection{evidence("helmet", 0.9, 50, 300, 120, 360)}
	v := a.Aggregate(ev, crop)

	assert.Equal(t, model.StatusHelmetNotWorn, v.Status)
}

func TestAggregateConfidentNoHelmet(t *testing.T) {
	a := DefaultAggregator(0.5, true)
	crop := image.Rect(0, 0, 200, 400)

	ev := []model.Detection{
		evidence("no_helmet", 0.8, 60, 20, 140, 100),
		evidence("helmet", 0.4, 60, 20, 140, 100),
	}
	v := a.Aggregate(ev, crop)

	assert.Equal(t, model.StatusNoHelmet, v.Status)
	assert.Equal(t, 0.8, v.NoHelmetConfidence)
	assert.Equal(t, 0.4, v.HelmetConfidence)
}

func TestAggregateEmptyEvidence(t *testing.T) {
	crop := image.Rect(0, 0, 200, 400)

	strict := DefaultAggregator(0.5, true)
	assert.Equal(t, model.StatusNoHelmet, strict.Aggregate(nil, crop).Status)

	lenient := DefaultAggregator(0.5, false)
	assert.Equal(t, model.StatusUnknown, lenient.Aggregate(nil, crop).Status)
}

func TestAggregateItemShapeHeuristic(t *testing.T) {
	a := DefaultAggregator(0.5, true)
	crop := image.Rect(0, 0, 200, 400)

	tests := []struct {
		name string
		item model.Detection
		want model.VerdictStatus
	}{
		{
			// Round, high, big, confident: reclassified as a worn helmet.
			"helmet-shaped item near top",
			evidence("item", 0.8, 60, 20, 140, 120),
			model.StatusHelmet,
		},
		{
			"too wide",
			evidence("item", 0.8, 20, 20, 180, 120),
			model.StatusNoHelmet,
		},
		{
			"too low in crop",
			evidence("item", 0.8, 60, 200, 140, 300),
			model.StatusNoHelmet,
		},
		{
			"not confident enough",
			evidence("item", 0.6, 60, 20, 140, 120),
			model.StatusNoHelmet,
		},
		{
			"too small",
			evidence("item", 0.8, 60, 20, 75, 38),
			model.StatusNoHelmet,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			v := a.Aggregate([]model.Detection{tt.item}, crop)
			assert.Equal(t, tt.want, v.Status)
		})
	}
}

func TestAggregateItemHeuristicRelaxedForDistantItems(t *testing.T) {
	a := DefaultAggregator(0.5, true)
	// Small, distant crop.
	crop := image.Rect(0, 0, 60, 120)

	// 28x32 item: area 896 fails the full 900 minimum but passes the halved
	// distant one.
	item := evidence("item", 0.8, 16, 4, 44, 36)
	v := a.Aggregate([]model.Detection{item}, crop)
	assert.Equal(t, model.StatusHelmet, v.Status)
}

func TestAggregateItemReclassifyDisabled(t *testing.T) {
	a := DefaultAggregator(0.5, true)
	a.ItemReclassify = false
	crop := image.Rect(0, 0, 200, 400)

	// Would qualify as a helmet under the shape heuristic.
	item := evidence("item", 0.8, 60, 20, 140, 120)
	v := a.Aggregate([]model.Detection{item}, crop)
	assert.Equal(t, model.StatusNoHelmet, v.Status)
}

func TestAggregateLabeledEvidenceSkipsShapeHeuristic(t *testing.T) {
	a := DefaultAggregator(0.5, true)
	crop := image.Rect(0, 0, 200, 400)

	// A low-confidence labeled detection disables the item path even though
	// the item alone would qualify.
	ev := []model.Detection{
		evidence("helmet", 0.2, 60, 300, 140, 360),
		evidence("item", 0.8, 60, 20, 140, 120),
	}
	v := a.Aggregate(ev, crop)
	assert.Equal(t, model.StatusNoHelmet, v.Status)
}

func TestAggregateDeterministic(t *testing.T) {
	a := DefaultAggregator(0.5, true)
	crop := image.Rect(0, 0, 200, 400)
	ev := []model.Detection{
		evidence("helmet", 0.7, 50, 10, 120, 80),
		evidence("no_helmet", 0.6, 50, 10, 120, 80),
	}

	first := a.Aggregate(ev, crop)
	for i := 0; i < 5; i++ {
		require.Equal(t, first, a.Aggregate(ev, crop))
	}
}
