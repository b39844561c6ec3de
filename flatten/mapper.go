package flatten

import (
	"fmt"
	"math"

	"github.com/georgepadayatti/pdfflatten/pdf/reader"
)

// Placement is an annotation mapped to PDF user space. X and Y are the
// anchor in page coordinates. Sizes are in display units, to be drawn in
// a frame rotated by Rotation so that they read upright.
type Placement struct {
	X, Y     float64
	Rotation int

	FontSize      float64
	Width, Height float64

	// DisplayWidth and DisplayHeight are the page size as it is shown.
	DisplayWidth, DisplayHeight float64
}

// Map converts an annotation from client space to the page's user space.
// Client space has its origin at the top-left of the displayed (rotated)
// page, y growing downwards, scaled by a.Scale.
func Map(a Annotation, page *reader.PageInfo) (Placement, error) {
	if a.Scale <= 0 || math.IsNaN(a.Scale) || math.IsInf(a.Scale, 0) {
		return Placement{}, &GeometryError{Page: page.Index, Reason: fmt.Sprintf("scale %v", a.Scale), Err: ErrInvalidScale}
	}
	box := page.Box
	if box == nil || box.Width() <= 0 || box.Height() <= 0 {
		return Placement{}, &GeometryError{Page: page.Index, Reason: "empty page box", Err: ErrEmptyPageBox}
	}

	u, v := a.X/a.Scale, a.Y/a.Scale
	w, h := box.Width(), box.Height()
	p := Placement{
		Rotation: page.Rotate,
		FontSize: a.FontSize / a.Scale,
		Width:    a.Width / a.Scale,
		Height:   a.Height / a.Scale,
	}
	p.DisplayWidth, p.DisplayHeight = page.DisplaySize()

	switch page.Rotate {
	case 90:
		p.X, p.Y = box.LLX+v, box.LLY+u
	case 180:
		p.X, p.Y = box.LLX+w-u, box.LLY+v
	case 270:
		p.X, p.Y = box.LLX+w-v, box.LLY+h-u
	default:
		p.X, p.Y = box.LLX+u, box.LLY+h-v
	}
	return p, nil
}
