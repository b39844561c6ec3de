// Package fonts provides the fonts the flattener draws with: the standard
// Type 1 fonts every viewer carries, and embedded TrueType programs shaped
// with HarfBuzz and written as Type0/Identity-H composite fonts.
package fonts

import (
	"errors"

	"github.com/georgepadayatti/pdfflatten/pdf/generic"
)

// Common errors
var (
	ErrInvalidFont       = errors.New("invalid font data")
	ErrFontNotFound      = errors.New("font not found")
	ErrUnsupportedFormat = errors.New("unsupported font format")
	ErrNotShapeable      = errors.New("font cannot be shaped")
)

// FontType represents the type of a PDF font.
type FontType string

const (
	FontTypeType1   FontType = "Type1"
	FontTypeType0   FontType = "Type0"
	FontTypeCIDFont FontType = "CIDFontType2"
)

// StandardFont represents a PDF standard font name.
type StandardFont string

// Standard 14 fonts available in all PDF readers
const (
	Helvetica            StandardFont = "Helvetica"
	HelveticaBold        StandardFont = "Helvetica-Bold"
	HelveticaOblique     StandardFont = "Helvetica-Oblique"
	HelveticaBoldOblique StandardFont = "Helvetica-BoldOblique"
	Times                StandardFont = "Times-Roman"
	TimesBold            StandardFont = "Times-Bold"
	TimesItalic          StandardFont = "Times-Italic"
	TimesBoldItalic      StandardFont = "Times-BoldItalic"
	Courier              StandardFont = "Courier"
	CourierBold          StandardFont = "Courier-Bold"
	CourierOblique       StandardFont = "Courier-Oblique"
	CourierBoldOblique   StandardFont = "Courier-BoldOblique"
	Symbol               StandardFont = "Symbol"
	ZapfDingbats         StandardFont = "ZapfDingbats"
)

// IsStandardFont checks if a font name is a standard font.
func IsStandardFont(name string) bool {
	switch StandardFont(name) {
	case Helvetica, HelveticaBold, HelveticaOblique, HelveticaBoldOblique,
		Times, TimesBold, TimesItalic, TimesBoldItalic,
		Courier, CourierBold, CourierOblique, CourierBoldOblique,
		Symbol, ZapfDingbats:
		return true
	}
	return false
}

// FontMetrics holds font metrics in glyph space (1000 units per em).
type FontMetrics struct {
	Ascender     float64
	Descender    float64
	LineGap      float64
	UnitsPerEm   float64
	Widths       map[rune]float64
	DefaultWidth float64
	BBox         [4]float64
	ItalicAngle  float64
	CapHeight    float64
	StemV        float64
	// Flags is the FontDescriptor /Flags value.
	Flags int
}

// NewFontMetrics creates new font metrics with defaults.
func NewFontMetrics() *FontMetrics {
	return &FontMetrics{
		Ascender:     800,
		Descender:    -200,
		UnitsPerEm:   1000,
		Widths:       make(map[rune]float64),
		DefaultWidth: 600,
		BBox:         [4]float64{0, -200, 1000, 800},
		CapHeight:    700,
		StemV:        80,
	}
}

// GetWidth returns the width of a character.
func (m *FontMetrics) GetWidth(r rune) float64 {
	if w, ok := m.Widths[r]; ok {
		return w
	}
	return m.DefaultWidth
}

// GetStringWidth calculates the width of a string at a given font size.
func (m *FontMetrics) GetStringWidth(s string, fontSize float64) float64 {
	var width float64
	for _, r := range s {
		width += m.GetWidth(r)
	}
	return width * fontSize / m.UnitsPerEm
}

// GetLineHeight returns the line height at a given font size.
func (m *FontMetrics) GetLineHeight(fontSize float64) float64 {
	return (m.Ascender - m.Descender + m.LineGap) * fontSize / m.UnitsPerEm
}

// Font represents a font that can be used in PDF documents.
type Font interface {
	// Name returns the PostScript name.
	Name() string
	Type() FontType
	Metrics() *FontMetrics
	// Encode encodes a string as the bytes of a content stream string.
	Encode(s string) []byte
}

// StandardType1Font represents a standard Type 1 font.
type StandardType1Font struct {
	name    StandardFont
	metrics *FontMetrics
}

// NewStandardFont creates a new standard font.
func NewStandardFont(name StandardFont) *StandardType1Font {
	return &StandardType1Font{
		name:    name,
		metrics: getStandardFontMetrics(name),
	}
}

func (f *StandardType1Font) Name() string { return string(f.name) }

func (f *StandardType1Font) Type() FontType { return FontTypeType1 }

func (f *StandardType1Font) Metrics() *FontMetrics { return f.metrics }

// Encode encodes s in WinAnsiEncoding, the encoding Dictionary declares.
// Symbol and ZapfDingbats use their built-in encodings and are passed
// through byte-wise.
func (f *StandardType1Font) Encode(s string) []byte {
	if f.symbolic() {
		out := make([]byte, 0, len(s))
		for _, r := range s {
			if r < 256 {
				out = append(out, byte(r))
			}
		}
		return out
	}
	return EncodeWinAnsi(s)
}

func (f *StandardType1Font) symbolic() bool {
	return f.name == Symbol || f.name == ZapfDingbats
}

// Dictionary returns the font dictionary referencing the standard font.
// Viewers supply the program, so nothing is embedded.
func (f *StandardType1Font) Dictionary() *generic.DictionaryObject {
	d := generic.NewDictionary()
	d.Set("Type", generic.NameObject("Font"))
	d.Set("Subtype", generic.NameObject("Type1"))
	d.Set("BaseFont", generic.NameObject(f.name))
	if !f.symbolic() {
		d.Set("Encoding", generic.NameObject("WinAnsiEncoding"))
	}
	return d
}

// helveticaASCII holds the Helvetica AFM widths for 0x20..0x7E.
var helveticaASCII = [95]float64{
	278, 278, 355, 556, 556, 889, 667, 191, 333, 333, 389, 584, 278, 333, 278, 278, // space../
	556, 556, 556, 556, 556, 556, 556, 556, 556, 556, 278, 278, 584, 584, 584, 556, // 0..?
	1015, 667, 667, 722, 722, 667, 611, 778, 722, 278, 500, 667, 556, 833, 722, 778, // @..O
	667, 778, 722, 667, 611, 722, 667, 944, 667, 667, 611, 278, 278, 278, 469, 556, // P.._
	333, 556, 556, 500, 556, 556, 278, 556, 556, 222, 222, 500, 222, 833, 556, 556, // `..o
	556, 556, 333, 500, 278, 556, 500, 722, 500, 500, 500, 334, 260, 334, 584, // p..~
}

// helveticaBoldASCII holds the Helvetica-Bold AFM widths for 0x20..0x7E.
var helveticaBoldASCII = [95]float64{
	278, 333, 474, 556, 556, 889, 722, 238, 333, 333, 389, 584, 278, 333, 278, 278,
	556, 556, 556, 556, 556, 556, 556, 556, 556, 556, 333, 333, 584, 584, 584, 611,
	975, 722, 722, 722, 722, 667, 611, 778, 722, 278, 556, 722, 611, 833, 722, 778,
	667, 778, 722, 667, 611, 722, 667, 944, 667, 667, 611, 333, 278, 333, 584, 556,
	333, 556, 611, 556, 611, 556, 333, 611, 611, 278, 278, 556, 278, 889, 611, 611,
	611, 611, 389, 556, 333, 611, 556, 778, 556, 556, 500, 389, 280, 389, 584,
}

// getStandardFontMetrics returns metrics for standard fonts. Only the
// Helvetica and Courier families carry per-glyph widths; the others fall
// back to a 600 unit advance.
func getStandardFontMetrics(name StandardFont) *FontMetrics {
	metrics := NewFontMetrics()

	switch name {
	case Helvetica, HelveticaBold, HelveticaOblique, HelveticaBoldOblique:
		bold := name == HelveticaBold || name == HelveticaBoldOblique
		metrics.Ascender = 718
		metrics.Descender = -207
		metrics.BBox = [4]float64{-166, -225, 1000, 931}
		metrics.CapHeight = 718
		metrics.StemV = 88
		metrics.DefaultWidth = 556
		table := &helveticaASCII
		if bold {
			metrics.StemV = 140
			table = &helveticaBoldASCII
		}
		for i, w := range table {
			metrics.Widths[rune(0x20+i)] = w
		}
		if name == HelveticaOblique || name == HelveticaBoldOblique {
			metrics.ItalicAngle = -12
		}

	case Times, TimesBold, TimesItalic, TimesBoldItalic:
		metrics.Ascender = 683
		metrics.Descender = -217
		metrics.BBox = [4]float64{-168, -218, 1000, 898}
		metrics.CapHeight = 662
		metrics.StemV = 84

	case Courier, CourierBold, CourierOblique, CourierBoldOblique:
		metrics.Ascender = 629
		metrics.Descender = -157
		metrics.BBox = [4]float64{-23, -250, 715, 805}
		metrics.CapHeight = 562
		metrics.StemV = 51
		metrics.Flags |= 1 // FixedPitch

	case Symbol, ZapfDingbats:
		metrics.Flags |= 4 // Symbolic
	}

	return metrics
}
