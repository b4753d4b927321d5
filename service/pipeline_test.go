package service

import (
	"context"
	"errors"
	"testing"

	"github.com/joyzh1029/ALG/config"
	"github.com/joyzh1029/ALG/model"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gocv.io/x/gocv"
)

// stubDetector returns canned boxes, standing in for a loaded model.
type stubDetector struct {
	boxes []RawBox
	names []string
	err   error
}

func (s *stubDetector) Detect(img gocv.Mat) ([]RawBox, error) {
	if s.err != nil {
		return nil, s.err
	}
	return s.boxes, nil
}

func (s *stubDetector) ClassName(id int) string {
	if id < 0 || id >= len(s.names) {
		return ""
	}
	return s.names[id]
}

func (s *stubDetector) Close() error { return nil }

var primaryNames = []string{"motorcycle", "person"}
var helmetNames = []string{"helmet", "no_helmet"}

func pipelineConfig() *config.Config {
	cfg := config.New()
	cfg.Pipeline.ConfidenceThreshold = 0.5
	cfg.Pipeline.AggregationThreshold = 0.5
	cfg.Pipeline.PaddingRatio = 0.2
	return cfg
}

func newTestPipeline(t *testing.T, primary, helmet Detector) *Pipeline {
	t.Helper()
	p, err := NewPipeline(pipelineConfig(), primary, helmet)
	require.NoError(t, err)
	return p
}

func testFrame(t *testing.T) gocv.Mat {
	t.Helper()
	img := gocv.NewMatWithSize(480, 640, gocv.MatTypeCV8UC3)
	t.Cleanup(func() { img.Close() })
	return img
}

func TestProcessFrameHelmetScenario(t *testing.T) {
	primary := &stubDetector{
		names: primaryNames,
		boxes: []RawBox{
			{Box: [4]float64{100, 100, 200, 300}, ClassID: 1, Score: 0.85}, // person
			{Box: [4]float64{90, 200, 230, 400}, ClassID: 0, Score: 0.9},   // motorcycle
		},
	}
	// One confident helmet near the crop top, in crop coordinates.
	helmet := &stubDetector{
		names: helmetNames,
		boxes: []RawBox{
			{Box: [4]float64{40, 10, 90, 60}, ClassID: 0, Score: 0.9},
		},
	}

	p := newTestPipeline(t, primary, helmet)
	result, err := p.ProcessFrame(context.Background(), testFrame(t), false)
	require.NoError(t, err)

	require.Len(t, result.Pairs, 1)
	pair := result.Pairs[0]
	assert.Equal(t, model.StatusHelmet, pair.Status)
	assert.Equal(t, 0.9, pair.HelmetConfidence)
	assert.True(t, result.HasPerson)
	assert.True(t, result.HasMotorcycle)
	assert.True(t, result.HasHelmet)
	assert.Equal(t, pair.Message, result.Warning)

	// Evidence is remapped into source-image coordinates: the rider crop
	// starts at (80, 60), so the helmet box shifts by that origin.
	require.Len(t, pair.Evidence, 1)
	assert.Equal(t, [4]float64{120, 70, 170, 120}, pair.Evidence[0].Box)
	assert.Equal(t, model.SourceHelmet, pair.Evidence[0].Source)
}

func TestProcessFrameLowConfidenceHelmetIsUnsafe(t *testing.T) {
	primary := &stubDetector{
		names: primaryNames,
		boxes: []RawBox{
			{Box: [4]float64{100, 100, 200, 300}, ClassID: 1, Score: 0.85},
			{Box: [4]float64{90, 200, 230, 400}, ClassID: 0, Score: 0.9},
		},
	}
	// 0.3 is below the normalizer threshold, so the evidence set comes out
	// empty and the unsafe default applies.
	helmet := &stubDetector{
		names: helmetNames,
		boxes: []RawBox{
			{Box: [4]float64{40, 10, 90, 60}, ClassID: 0, Score: 0.3},
		},
	}

	p := newTestPipeline(t, primary, helmet)
	result, err := p.ProcessFrame(context.Background(), testFrame(t), false)
	require.NoError(t, err)

	require.Len(t, result.Pairs, 1)
	assert.Equal(t, model.StatusNoHelmet, result.Pairs[0].Status)
	assert.False(t, result.HasHelmet)
	assert.Equal(t, result.Pairs[0].Message, result.Warning)
}

func TestProcessFrameNoMotorcycle(t *testing.T) {
	primary := &stubDetector{
		names: primaryNames,
		boxes: []RawBox{
			{Box: [4]float64{100, 100, 200, 300}, ClassID: 1, Score: 0.85},
		},
	}
	helmet := &stubDetector{names: helmetNames}

	p := newTestPipeline(t, primary, helmet)
	result, err := p.ProcessFrame(context.Background(), testFrame(t), false)
	require.NoError(t, err)

	assert.Empty(t, result.Pairs)
	assert.Empty(t, result.Warning)
	assert.True(t, result.HasPerson)
	assert.False(t, result.HasMotorcycle)
	assert.Len(t, result.Detections, 1)
}

func TestProcessFrameSkipsRiderWithDegenerateCrop(t *testing.T) {
	primary := &stubDetector{
		names: primaryNames,
		boxes: []RawBox{
			// Rider fully right of the 640px frame: crop clamps to nothing.
			{Box: [4]float64{660, 150, 720, 350}, ClassID: 1, Score: 0.85},
			// Healthy rider.
			{Box: [4]float64{100, 100, 200, 300}, ClassID: 1, Score: 0.85},
			// One motorcycle close enough to claim both riders.
			{Box: [4]float64{90, 200, 560, 420}, ClassID: 0, Score: 0.9},
		},
	}
	helmet := &stubDetector{
		names: helmetNames,
		boxes: []RawBox{
			{Box: [4]float64{40, 10, 90, 60}, ClassID: 0, Score: 0.9},
		},
	}

	p := newTestPipeline(t, primary, helmet)
	result, err := p.ProcessFrame(context.Background(), testFrame(t), false)
	require.NoError(t, err)

	// The degenerate rider is dropped, the other one still gets a verdict.
	require.Len(t, result.Pairs, 1)
	assert.Equal(t, [4]float64{100, 100, 200, 300}, result.Pairs[0].Rider.Box)
	assert.Equal(t, model.StatusHelmet, result.Pairs[0].Status)
}

func TestProcessFramePrimaryFailureFailsFrame(t *testing.T) {
	primary := &stubDetector{names: primaryNames, err: errors.New("inference backend down")}
	helmet := &stubDetector{names: helmetNames}

	p := newTestPipeline(t, primary, helmet)
	_, err := p.ProcessFrame(context.Background(), testFrame(t), false)
	require.Error(t, err)
}

func TestProcessFrameEmptyImage(t *testing.T) {
	p := newTestPipeline(t, &stubDetector{names: primaryNames}, &stubDetector{names: helmetNames})
	empty := gocv.NewMat()
	defer empty.Close()
	_, err := p.ProcessFrame(context.Background(), empty, false)
	require.Error(t, err)
}
