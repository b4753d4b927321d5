package service

import (
	"errors"
	"fmt"
	"image"
	"math"

	"github.com/joyzh1029/ALG/model"
	"gocv.io/x/gocv"
)

// ErrDegenerateCrop is returned when a rider's padded crop collapses to zero
// width or height after clamping to the image bounds.
var ErrDegenerateCrop = errors.New("crop region is empty after clamping")

// CropBounds computes the padded crop rectangle for a rider detection,
// clamped to the image. Padding is paddingRatio of the box's own width and
// height, added symmetrically. The result always satisfies
// 0 <= x1 < x2 <= imgW and 0 <= y1 < y2 <= imgH, or ErrDegenerateCrop.
func CropBounds(rider model.Detection, imgW, imgH int, paddingRatio float64) (image.Rectangle, error) {
	padX := paddingRatio * rider.Width()
	padY := paddingRatio * rider.Height()

	x1 := int(math.Floor(rider.Box[0] - padX))
	y1 := int(math.Floor(rider.Box[1] - padY))
	x2 := int(math.Ceil(rider.Box[2] + padX))
	y2 := int(math.Ceil(rider.Box[3] + padY))

	if x1 < 0 {
		x1 = 0
	}
	if y1 < 0 {
		y1 = 0
	}
	if x2 > imgW {
		x2 = imgW
	}
	if y2 > imgH {
		y2 = imgH
	}

	if x1 >= x2 || y1 >= y2 {
		return image.Rectangle{}, fmt.Errorf("rider at (%v,%v): %w", rider.Box[0], rider.Box[1], ErrDegenerateCrop)
	}
	return image.Rect(x1, y1, x2, y2), nil
}

// CropRegion extracts the padded rider crop from the source image. The
// returned Mat is a clone owning its own pixels; the caller must Close it.
func CropRegion(img gocv.Mat, rider model.Detection, paddingRatio float64) (gocv.Mat, image.Rectangle, error) {
	bounds, err := CropBounds(rider, img.Cols(), img.Rows(), paddingRatio)
	if err != nil {
		return gocv.Mat{}, image.Rectangle{}, err
	}

	region := img.Region(bounds)
	defer region.Close()
	crop := region.Clone()
	return crop, bounds, nil
}
