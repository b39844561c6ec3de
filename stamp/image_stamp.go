package stamp

import (
	"fmt"
	"math"

	"github.com/georgepadayatti/pdfflatten/pdf/content"
	"github.com/georgepadayatti/pdfflatten/pdf/generic"
)

// ImageScaleMode specifies how an image is sized within a box.
type ImageScaleMode int

const (
	// ImageScaleFit scales the image to fit within the box while maintaining aspect ratio.
	ImageScaleFit ImageScaleMode = iota
	// ImageScaleStretch stretches the image to exactly fill the box.
	ImageScaleStretch
	// ImageScaleNone uses the image's natural size.
	ImageScaleNone
)

func (m ImageScaleMode) String() string {
	switch m {
	case ImageScaleFit:
		return "fit"
	case ImageScaleStretch:
		return "stretch"
	case ImageScaleNone:
		return "none"
	default:
		return "unknown"
	}
}

// ParseImageScaleMode parses a string to ImageScaleMode.
func ParseImageScaleMode(s string) (ImageScaleMode, error) {
	switch s {
	case "fit":
		return ImageScaleFit, nil
	case "stretch":
		return ImageScaleStretch, nil
	case "none":
		return ImageScaleNone, nil
	default:
		return ImageScaleFit, fmt.Errorf("invalid scale mode: %s (valid: fit, stretch, none)", s)
	}
}

// ImageSize returns the size of an image of natural size (w, h) placed in
// a box of (boxW, boxH). In fit mode the scale never exceeds maxScale
// when maxScale is positive.
func ImageSize(mode ImageScaleMode, w, h, boxW, boxH, maxScale float64) (float64, float64) {
	switch mode {
	case ImageScaleStretch:
		return boxW, boxH
	case ImageScaleNone:
		return w, h
	}
	if w <= 0 || h <= 0 {
		return 0, 0
	}
	scale := math.Min(boxW/w, boxH/h)
	if maxScale > 0 && scale > maxScale {
		scale = maxScale
	}
	return w * scale, h * scale
}

// ImageMark paints an image XObject with its top-left corner on the
// anchor, extending right and down.
type ImageMark struct {
	// Name is the XObject resource name.
	Name   string
	Width  float64
	Height float64
}

func (m *ImageMark) Draw(cb *content.ContentBuilder) {
	cb.Transform(m.Width, 0, 0, m.Height, 0, -m.Height).
		PaintXObject(m.Name)
}

func (m *ImageMark) Bounds() generic.Rectangle {
	return generic.Rectangle{LLX: 0, LLY: -m.Height, URX: m.Width, URY: 0}
}
