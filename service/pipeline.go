package service

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"image/color"
	"time"

	"github.com/joyzh1029/ALG/config"
	"github.com/joyzh1029/ALG/model"
	"github.com/joyzh1029/ALG/utils"
	"go.uber.org/zap"
	"gocv.io/x/gocv"
)

// Pipeline sequences the detection-fusion stages for one frame: primary
// detection → rider/vehicle association → per-rider crop → helmet detection
// → evidence aggregation → frame document. Detector models are shared
// mutable state, so frames are admitted through a semaphore and processed
// start to finish.
type Pipeline struct {
	primary Detector
	helmet  Detector

	normalizer *Normalizer
	associator AssociationStrategy
	aggregator *Aggregator

	paddingRatio float64
	colors       map[string]color.RGBA

	semaphore    chan struct{}
	queueTimeout time.Duration
}

// NewPipeline wires the pipeline from config and the two externally-owned
// detector handles.
func NewPipeline(cfg *config.Config, primary, helmet Detector) (*Pipeline, error) {
	if primary == nil || helmet == nil {
		return nil, errors.New("pipeline requires both a primary and a helmet detector")
	}

	p := cfg.Pipeline
	associator, err := NewAssociator(p.AssociationPolicy, p.PairingRatio, p.DistantSizeCutoff, p.DistantPairingScale)
	if err != nil {
		return nil, err
	}

	maxConcurrent := p.MaxConcurrent
	if maxConcurrent < 1 {
		maxConcurrent = 1
	}

	return &Pipeline{
		primary: primary,
		helmet:  helmet,
		normalizer: &Normalizer{
			Threshold:        p.ConfidenceThreshold,
			SmallRelaxFactor: p.SmallRelaxFactor,
			SmallCutoff:      p.DistantSizeCutoff,
		},
		associator:   associator,
		aggregator:   newAggregatorFromConfig(p),
		paddingRatio: p.PaddingRatio,
		colors:       ParseColors(p.Colors),
		semaphore:    make(chan struct{}, maxConcurrent),
		queueTimeout: time.Duration(p.QueueTimeout) * time.Second,
	}, nil
}

func newAggregatorFromConfig(p config.PipelineConfig) *Aggregator {
	a := DefaultAggregator(p.AggregationThreshold, p.UnknownAsUnsafe)
	a.ItemReclassify = p.ItemReclassify
	a.DistantCutoff = p.DistantSizeCutoff
	return a
}

// ProcessFrame runs the full pipeline on one decoded frame. Per-rider
// failures (degenerate crops, helmet-stage errors) are logged and that rider
// is dropped; a primary-detector failure fails the whole frame. When
// annotate is set the result carries the overlaid image as base64 JPEG.
func (p *Pipeline) ProcessFrame(ctx context.Context, img gocv.Mat, annotate bool) (*model.FrameResult, error) {
	if img.Empty() {
		return nil, errors.New("cannot process an empty image")
	}

	waitCtx, cancel := context.WithTimeout(ctx, p.queueTimeout)
	defer cancel()
	select {
	case p.semaphore <- struct{}{}:
		defer func() { <-p.semaphore }()
	case <-waitCtx.Done():
		return nil, errors.New("processing queue is full, try again later")
	}

	startTime := time.Now()

	raw, err := p.primary.Detect(img)
	if err != nil {
		return nil, fmt.Errorf("primary detection failed: %w", err)
	}
	detections := p.normalizer.Normalize(raw, p.primary.ClassName, model.SourcePrimary)

	result := &model.FrameResult{
		Timestamp:     time.Now().Format(time.RFC3339),
		Detections:    detections,
		HasPerson:     len(selectRole(detections, "person")) > 0,
		HasMotorcycle: len(selectRole(detections, "motorcycle")) > 0,
	}

	pairs := AssociateByRole(detections, p.associator)
	for _, pair := range pairs {
		verdict, err := p.inspectRider(img, pair)
		if err != nil {
			utils.Logger.Warn("rider skipped",
				zap.Float64s("rider_box", pair.Rider.Box[:]),
				zap.Error(err))
			continue
		}
		if verdict.Status == model.StatusHelmet {
			result.HasHelmet = true
		}
		result.Pairs = append(result.Pairs, model.PairResult{
			Rider:              pair.Rider,
			Motorcycle:         pair.Vehicle,
			Status:             verdict.Status,
			Message:            verdict.Message,
			HelmetConfidence:   verdict.HelmetConfidence,
			NoHelmetConfidence: verdict.NoHelmetConfidence,
			PairConfidence:     pair.PairConfidence,
			Evidence:           verdict.Evidence,
		})
	}

	result.Warning = frameWarning(result.Pairs)

	if annotate {
		annotated := RenderOverlay(img, result, p.colors)
		defer annotated.Close()
		buf, err := gocv.IMEncode(".jpg", annotated)
		if err != nil {
			utils.Logger.Error("failed to encode annotated frame", zap.Error(err))
		} else {
			result.Image = base64.StdEncoding.EncodeToString(buf.GetBytes())
			buf.Close()
		}
	}

	utils.Logger.Info("frame processed",
		zap.Int("detections", len(result.Detections)),
		zap.Int("pairs", len(result.Pairs)),
		zap.String("warning", result.Warning),
		zap.Duration("duration", time.Since(startTime)))

	return result, nil
}

// inspectRider runs the helmet stage for one rider: padded crop, helmet
// detection on the crop, coordinate remap back to the source image, then
// evidence aggregation.
func (p *Pipeline) inspectRider(img gocv.Mat, pair model.RiderPair) (model.HelmetVerdict, error) {
	crop, bounds, err := CropRegion(img, pair.Rider, p.paddingRatio)
	if err != nil {
		return model.HelmetVerdict{}, err
	}
	defer crop.Close()

	raw, err := p.helmet.Detect(crop)
	if err != nil {
		return model.HelmetVerdict{}, fmt.Errorf("helmet detection failed: %w", err)
	}

	evidence := p.normalizer.Normalize(raw, p.helmet.ClassName, model.SourceHelmet)
	evidence = Offset(evidence, float64(bounds.Min.X), float64(bounds.Min.Y))

	return p.aggregator.Aggregate(evidence, bounds), nil
}

// frameWarning picks the frame-level message: the first unsafe verdict wins,
// else the first helmet verdict, else empty.
func frameWarning(pairs []model.PairResult) string {
	for _, p := range pairs {
		if p.Status.Unsafe() {
			return p.Message
		}
	}
	for _, p := range pairs {
		if p.Status == model.StatusHelmet {
			return p.Message
		}
	}
	return ""
}
