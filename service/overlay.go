package service

import (
	"fmt"
	"image"
	"image/color"
	"strconv"
	"strings"

	"github.com/joyzh1029/ALG/model"
	"gocv.io/x/gocv"
)

var defaultColor = color.RGBA{R: 200, G: 200, B: 200, A: 255}

// ParseColors converts the config's "#RRGGBB" strings into render colors.
// Unparseable entries are skipped.
func ParseColors(raw map[string]string) map[string]color.RGBA {
	colors := make(map[string]color.RGBA, len(raw))
	for name, hex := range raw {
		c, err := parseHexColor(hex)
		if err != nil {
			continue
		}
		colors[name] = c
	}
	return colors
}

func parseHexColor(s string) (color.RGBA, error) {
	s = strings.TrimPrefix(s, "#")
	if len(s) != 6 {
		return color.RGBA{}, fmt.Errorf("invalid color %q", s)
	}
	v, err := strconv.ParseUint(s, 16, 32)
	if err != nil {
		return color.RGBA{}, fmt.Errorf("invalid color %q: %w", s, err)
	}
	return color.RGBA{R: uint8(v >> 16), G: uint8(v >> 8), B: uint8(v), A: 255}, nil
}

// RenderOverlay draws the frame result onto a copy of the source image:
// boxes color-coded by class, rider boxes recolored by verdict, a label per
// box, and a summary line with the unsafe-rider count. The source Mat is
// never modified. The caller owns the returned Mat.
func RenderOverlay(src gocv.Mat, result *model.FrameResult, colors map[string]color.RGBA) gocv.Mat {
	out := src.Clone()

	for _, d := range result.Detections {
		drawBox(&out, d, colorFor(colors, d.Class))
	}

	unsafe := 0
	for _, p := range result.Pairs {
		if p.Status.Unsafe() {
			unsafe++
		}
		// Rider box carries the verdict color on top of the class box.
		drawBox(&out, p.Rider, colorFor(colors, string(p.Status)))
		for _, ev := range p.Evidence {
			drawBox(&out, ev, colorFor(colors, ev.Class))
		}
	}

	summary := fmt.Sprintf("riders: %d  unsafe: %d", len(result.Pairs), unsafe)
	summaryColor := colorFor(colors, "helmet")
	if unsafe > 0 {
		summaryColor = colorFor(colors, "no_helmet")
	}
	gocv.PutText(&out, summary, image.Pt(10, 30),
		gocv.FontHersheySimplex, 0.8, summaryColor, 2)

	return out
}

func drawBox(img *gocv.Mat, d model.Detection, c color.RGBA) {
	rect := image.Rect(int(d.Box[0]), int(d.Box[1]), int(d.Box[2]), int(d.Box[3]))
	gocv.Rectangle(img, rect, c, 2)

	label := fmt.Sprintf("%s %.2f", d.Class, d.Confidence)
	org := image.Pt(rect.Min.X, rect.Min.Y-6)
	if org.Y < 12 {
		org.Y = rect.Min.Y + 16
	}
	gocv.PutText(img, label, org, gocv.FontHersheySimplex, 0.5, c, 1)
}

func colorFor(colors map[string]color.RGBA, name string) color.RGBA {
	if c, ok := colors[name]; ok {
		return c
	}
	return defaultColor
}
