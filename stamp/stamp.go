// Package stamp draws the marks an overlay is made of: lines of text,
// shaped glyph runs and images, each placed in its own local frame.
package stamp

import (
	"math"

	"github.com/georgepadayatti/pdfflatten/pdf/content"
	"github.com/georgepadayatti/pdfflatten/pdf/fonts"
	"github.com/georgepadayatti/pdfflatten/pdf/generic"
)

// Mark is something drawn relative to an anchor point. Marks draw in a
// frame whose origin is the anchor, x to the right and y up.
type Mark interface {
	// Draw appends the mark's operators.
	Draw(cb *content.ContentBuilder)
	// Bounds returns the area the mark covers in its frame.
	Bounds() generic.Rectangle
}

// Frame is an affine matrix [A B C D E F] from a mark's frame to page space.
type Frame struct {
	A, B, C, D, E, F float64
}

// NewFrame returns a frame anchored at (x, y) whose axes are turned by
// rotation degrees counterclockwise. Quarter turns are exact.
func NewFrame(x, y float64, rotation int) Frame {
	var sin, cos float64
	switch ((rotation % 360) + 360) % 360 {
	case 0:
		cos = 1
	case 90:
		sin = 1
	case 180:
		cos = -1
	case 270:
		sin = -1
	default:
		sin, cos = math.Sincos(float64(rotation) * math.Pi / 180)
	}
	return Frame{A: cos, B: sin, C: -sin, D: cos, E: x, F: y}
}

// Point maps a point of the frame to page space.
func (f Frame) Point(x, y float64) (float64, float64) {
	return f.A*x + f.C*y + f.E, f.B*x + f.D*y + f.F
}

// Rect maps a rectangle of the frame to its page space bounding box.
func (f Frame) Rect(r generic.Rectangle) generic.Rectangle {
	out := generic.Rectangle{LLX: math.Inf(1), LLY: math.Inf(1), URX: math.Inf(-1), URY: math.Inf(-1)}
	for _, c := range [4][2]float64{{r.LLX, r.LLY}, {r.URX, r.LLY}, {r.URX, r.URY}, {r.LLX, r.URY}} {
		x, y := f.Point(c[0], c[1])
		out.LLX, out.LLY = math.Min(out.LLX, x), math.Min(out.LLY, y)
		out.URX, out.URY = math.Max(out.URX, x), math.Max(out.URY, y)
	}
	return out
}

// Apply draws m in frame f, isolated in its own graphics state.
func Apply(cb *content.ContentBuilder, f Frame, m Mark) {
	cb.SaveState()
	cb.Transform(f.A, f.B, f.C, f.D, f.E, f.F)
	m.Draw(cb)
	cb.RestoreState()
}

// TextMark is a single line of text with its baseline on the anchor.
type TextMark struct {
	// FontName is the resource name the font is registered under.
	FontName string
	Font     fonts.Font
	Size     float64
	Text     string
}

func (m *TextMark) Draw(cb *content.ContentBuilder) {
	cb.SetFillGray(0).
		BeginText().
		SetFont(m.FontName, m.Size).
		TextPosition(0, 0).
		ShowText(m.Font.Encode(m.Text)).
		EndText()
}

func (m *TextMark) Bounds() generic.Rectangle {
	metrics := m.Font.Metrics()
	return generic.Rectangle{
		LLX: 0,
		LLY: metrics.Descender * m.Size / 1000,
		URX: metrics.GetStringWidth(m.Text, m.Size),
		URY: metrics.Ascender * m.Size / 1000,
	}
}

// GlyphMark is a shaped glyph run of a composite font with its baseline
// on the anchor.
type GlyphMark struct {
	FontName string
	Metrics  *fonts.FontMetrics
	Size     float64
	Glyphs   []fonts.Glyph
}

func (m *GlyphMark) Draw(cb *content.ContentBuilder) {
	cb.SetFillGray(0).
		BeginText().
		SetFont(m.FontName, m.Size).
		TextPosition(0, 0).
		ShowTextArray(fonts.ShowGlyphs(m.Glyphs)).
		EndText()
}

func (m *GlyphMark) Bounds() generic.Rectangle {
	var advance float64
	for _, g := range m.Glyphs {
		advance += g.Advance
	}
	return generic.Rectangle{
		LLX: 0,
		LLY: m.Metrics.Descender * m.Size / 1000,
		URX: advance * m.Size / 1000,
		URY: m.Metrics.Ascender * m.Size / 1000,
	}
}
