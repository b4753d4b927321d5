package service

import (
	"bufio"
	"fmt"
	"image"
	"os"
	"sync"

	"github.com/joyzh1029/ALG/config"
	"github.com/joyzh1029/ALG/utils"
	"go.uber.org/zap"
	"gocv.io/x/gocv"
)

// RawBox is one unfiltered detector output before normalization.
// Box is (x1, y1, x2, y2) in the coordinate space of the image that was
// passed to Detect.
type RawBox struct {
	Box     [4]float64
	ClassID int
	Score   float64
}

// Detector is the inference boundary of the pipeline. Implementations own
// the model weights; callers must treat a Detector as a shared resource and
// may not assume concurrent Detect calls are safe unless documented.
type Detector interface {
	Detect(img gocv.Mat) ([]RawBox, error)
	// ClassName maps a class index to its label; unknown indices yield "".
	ClassName(id int) string
	Close() error
}

// YOLODetector runs an ONNX YOLO model through the gocv DNN module.
// A mutex serializes Detect calls: the underlying net is mutable state
// shared across requests.
type YOLODetector struct {
	net          gocv.Net
	names        []string
	inputSize    int
	nmsThreshold float32

	mu sync.Mutex
}

// NewYOLODetector loads the model at cfg.ModelPath, falling back to
// cfg.FallbackPath when the primary weights cannot be read.
func NewYOLODetector(cfg config.ModelConfig) (*YOLODetector, error) {
	names, err := loadClassNames(cfg)
	if err != nil {
		return nil, err
	}

	net := gocv.ReadNet(cfg.ModelPath, "")
	if net.Empty() {
		if cfg.FallbackPath == "" {
			return nil, fmt.Errorf("failed to load model %s", cfg.ModelPath)
		}
		utils.Logger.Warn("primary model failed to load, using fallback",
			zap.String("model", cfg.ModelPath),
			zap.String("fallback", cfg.FallbackPath))
		net = gocv.ReadNet(cfg.FallbackPath, "")
		if net.Empty() {
			return nil, fmt.Errorf("failed to load model %s and fallback %s", cfg.ModelPath, cfg.FallbackPath)
		}
	}

	inputSize := cfg.InputSize
	if inputSize <= 0 {
		inputSize = 640
	}

	return &YOLODetector{
		net:          net,
		names:        names,
		inputSize:    inputSize,
		nmsThreshold: float32(cfg.NMSThreshold),
	}, nil
}

func loadClassNames(cfg config.ModelConfig) ([]string, error) {
	if cfg.NamesFile == "" {
		if len(cfg.Names) == 0 {
			return nil, fmt.Errorf("model %s has neither names nor names_file configured", cfg.ModelPath)
		}
		return cfg.Names, nil
	}

	f, err := os.Open(cfg.NamesFile)
	if err != nil {
		return nil, fmt.Errorf("failed to open names file: %w", err)
	}
	defer f.Close()

	var names []string
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		if line := scanner.Text(); line != "" {
			names = append(names, line)
		}
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("failed to read names file: %w", err)
	}
	return names, nil
}

func (d *YOLODetector) ClassName(id int) string {
	if id < 0 || id >= len(d.names) {
		return ""
	}
	return d.names[id]
}

// Detect runs one forward pass and decodes the YOLO output tensor
// [1, 4+numClasses, N] into boxes in the input image's coordinate space.
// Score filtering is left to the normalizer; only a minimal floor is applied
// here to keep the NMS input small.
func (d *YOLODetector) Detect(img gocv.Mat) ([]RawBox, error) {
	if img.Empty() {
		return nil, fmt.Errorf("cannot run inference on an empty image")
	}

	d.mu.Lock()
	defer d.mu.Unlock()

	blob := gocv.BlobFromImage(img, 1.0/255.0,
		image.Pt(d.inputSize, d.inputSize),
		gocv.NewScalar(0, 0, 0, 0), true, false)
	defer blob.Close()

	d.net.SetInput(blob, "")
	output := d.net.Forward("")
	defer output.Close()

	dims := output.Size()
	if len(dims) != 3 {
		return nil, fmt.Errorf("unexpected output tensor rank %d", len(dims))
	}
	rows, cols := dims[1], dims[2]
	numClasses := rows - 4
	if numClasses <= 0 {
		return nil, fmt.Errorf("output tensor has no class scores (rows=%d)", rows)
	}

	data, err := output.DataPtrFloat32()
	if err != nil {
		return nil, fmt.Errorf("failed to read output tensor: %w", err)
	}

	xScale := float64(img.Cols()) / float64(d.inputSize)
	yScale := float64(img.Rows()) / float64(d.inputSize)

	var (
		rects   []image.Rectangle
		scores  []float32
		classes []int
	)
	// Columns are candidates; rows 0..3 are cx, cy, w, h, the rest are
	// per-class scores.
	const scoreFloor = 0.05
	for c := 0; c < cols; c++ {
		bestScore := float32(0)
		bestClass := 0
		for k := 0; k < numClasses; k++ {
			if s := data[(4+k)*cols+c]; s > bestScore {
				bestScore = s
				bestClass = k
			}
		}
		if bestScore < scoreFloor {
			continue
		}
		cx := float64(data[0*cols+c]) * xScale
		cy := float64(data[1*cols+c]) * yScale
		w := float64(data[2*cols+c]) * xScale
		h := float64(data[3*cols+c]) * yScale

		rects = append(rects, image.Rect(
			int(cx-w/2), int(cy-h/2), int(cx+w/2), int(cy+h/2)))
		scores = append(scores, bestScore)
		classes = append(classes, bestClass)
	}
	if len(rects) == 0 {
		return nil, nil
	}

	keep := gocv.NMSBoxes(rects, scores, scoreFloor, d.nmsThreshold)
	boxes := make([]RawBox, 0, len(keep))
	for _, i := range keep {
		r := rects[i]
		boxes = append(boxes, RawBox{
			Box:     [4]float64{float64(r.Min.X), float64(r.Min.Y), float64(r.Max.X), float64(r.Max.Y)},
			ClassID: classes[i],
			Score:   float64(scores[i]),
		})
	}
	return boxes, nil
}

func (d *YOLODetector) Close() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.net.Close()
}
