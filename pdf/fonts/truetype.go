package fonts

import (
	"bytes"
	"fmt"
	"math"
	"sort"
	"sync"

	"github.com/go-text/typesetting/di"
	gofont "github.com/go-text/typesetting/font"
	"github.com/go-text/typesetting/language"
	"github.com/go-text/typesetting/shaping"
	xfont "golang.org/x/image/font"
	"golang.org/x/image/font/sfnt"
	"golang.org/x/image/math/fixed"
	"golang.org/x/text/unicode/norm"
)

// shapingSize is the size text is shaped at, so advances come out in
// glyph space (1000 units per em).
const shapingSize = 1000

// Glyph is one shaped glyph. Widths are in glyph space.
type Glyph struct {
	ID uint16
	// Runes is the text the glyph stands for. It is empty for the second
	// and later glyphs of a cluster.
	Runes []rune
	// Advance is the shaped advance, kerning included.
	Advance float64
	// Width is the glyph's nominal advance, the value written to /W.
	Width float64
}

// TrueTypeFont is a TrueType font program prepared for embedding as a
// composite font. It is safe for concurrent use.
type TrueTypeFont struct {
	name    string
	data    []byte
	metrics *FontMetrics
	widths  []float64

	mu     sync.Mutex
	face   *gofont.Face
	shaper shaping.HarfbuzzShaper
}

// LoadTrueTypeFont parses a TrueType font program. Fonts with CFF outlines
// are rejected because they cannot be embedded as FontFile2.
func LoadTrueTypeFont(data []byte) (*TrueTypeFont, error) {
	if len(data) < 12 {
		return nil, ErrInvalidFont
	}
	switch string(data[:4]) {
	case "\x00\x01\x00\x00", "true":
	case "OTTO":
		return nil, fmt.Errorf("%w: CFF outlines", ErrUnsupportedFormat)
	default:
		return nil, ErrUnsupportedFormat
	}

	f, err := sfnt.Parse(data)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidFont, err)
	}
	upem := f.UnitsPerEm()
	if upem == 0 {
		return nil, fmt.Errorf("%w: zero units per em", ErrInvalidFont)
	}
	face, err := gofont.ParseTTF(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidFont, err)
	}

	var buf sfnt.Buffer
	ppem := fixed.Int26_6(upem) << 6
	scale := func(v fixed.Int26_6) float64 {
		return math.Round(float64(v)*1000/(64*float64(upem))*100) / 100
	}

	t := &TrueTypeFont{
		data:    data,
		face:    face,
		metrics: NewFontMetrics(),
		widths:  make([]float64, f.NumGlyphs()),
	}
	if ps, err := f.Name(&buf, sfnt.NameIDPostScript); err == nil && ps != "" {
		t.name = ps
	} else if full, err := f.Name(&buf, sfnt.NameIDFull); err == nil && full != "" {
		t.name = full
	} else {
		t.name = "EmbeddedFont"
	}

	for i := range t.widths {
		adv, err := f.GlyphAdvance(&buf, sfnt.GlyphIndex(i), ppem, xfont.HintingNone)
		if err != nil {
			continue
		}
		t.widths[i] = scale(adv)
	}

	m := t.metrics
	if len(t.widths) > 0 && t.widths[0] > 0 {
		m.DefaultWidth = t.widths[0]
	}
	if fm, err := f.Metrics(&buf, ppem, xfont.HintingNone); err == nil {
		// sfnt measures y downwards; PDF descent is negative.
		m.Ascender = scale(fm.Ascent)
		m.Descender = -scale(fm.Descent)
		m.LineGap = scale(fm.Height) - m.Ascender + m.Descender
		m.CapHeight = scale(fm.CapHeight)
		if m.CapHeight == 0 {
			m.CapHeight = m.Ascender
		}
	}
	if b, err := f.Bounds(&buf, ppem, xfont.HintingNone); err == nil {
		m.BBox = [4]float64{scale(b.Min.X), -scale(b.Max.Y), scale(b.Max.X), -scale(b.Min.Y)}
	}
	if post := f.PostTable(); post != nil {
		m.ItalicAngle = post.ItalicAngle
	}
	m.Flags = 32 // Nonsymbolic
	if m.ItalicAngle != 0 {
		m.Flags |= 64
	}

	glyphs, err := t.Shape("Aa")
	if err != nil {
		return nil, err
	}
	for _, g := range glyphs {
		if g.ID == 0 {
			return nil, fmt.Errorf("%w: no glyphs for basic Latin", ErrNotShapeable)
		}
	}
	return t, nil
}

func (t *TrueTypeFont) Name() string { return t.name }

func (t *TrueTypeFont) Type() FontType { return FontTypeType0 }

func (t *TrueTypeFont) Metrics() *FontMetrics { return t.metrics }

// Data returns the raw font program.
func (t *TrueTypeFont) Data() []byte { return t.data }

// NumGlyphs returns the number of glyphs in the font.
func (t *TrueTypeFont) NumGlyphs() int { return len(t.widths) }

// GlyphWidth returns the nominal advance of a glyph in glyph space.
func (t *TrueTypeFont) GlyphWidth(id uint16) float64 {
	if int(id) < len(t.widths) {
		return t.widths[id]
	}
	return t.metrics.DefaultWidth
}

// Encode shapes s and returns the two byte glyph codes Identity-H expects.
func (t *TrueTypeFont) Encode(s string) ([]byte, error) {
	glyphs, err := t.Shape(s)
	if err != nil {
		return nil, err
	}
	out := make([]byte, 0, 2*len(glyphs))
	for _, g := range glyphs {
		out = append(out, byte(g.ID>>8), byte(g.ID))
	}
	return out, nil
}

// TextWidth returns the shaped width of s at the given size.
func (t *TrueTypeFont) TextWidth(s string, size float64) (float64, error) {
	glyphs, err := t.Shape(s)
	if err != nil {
		return 0, err
	}
	var w float64
	for _, g := range glyphs {
		w += g.Advance
	}
	return w * size / 1000, nil
}

// Shape runs HarfBuzz over s, left to right, and returns the glyph run.
func (t *TrueTypeFont) Shape(s string) ([]Glyph, error) {
	runes := []rune(norm.NFC.String(s))
	if len(runes) == 0 {
		return nil, nil
	}

	t.mu.Lock()
	out := t.shaper.Shape(shaping.Input{
		Text:      runes,
		RunStart:  0,
		RunEnd:    len(runes),
		Direction: di.DirectionLTR,
		Face:      t.face,
		Size:      fixed.I(shapingSize),
		Script:    language.Latin,
		Language:  language.DefaultLanguage(),
	})
	t.mu.Unlock()

	if len(out.Glyphs) == 0 {
		return nil, fmt.Errorf("%w: empty glyph run for %q", ErrNotShapeable, s)
	}
	missing := 0
	for _, g := range out.Glyphs {
		if g.GlyphID == 0 {
			missing++
		}
	}
	if missing == len(out.Glyphs) {
		return nil, fmt.Errorf("%w: no glyphs for %q", ErrNotShapeable, s)
	}

	// Each cluster's text belongs to its first glyph.
	starts := make([]int, 0, len(out.Glyphs))
	for _, g := range out.Glyphs {
		starts = append(starts, g.ClusterIndex)
	}
	sort.Ints(starts)

	glyphs := make([]Glyph, 0, len(out.Glyphs))
	seen := make(map[int]bool, len(out.Glyphs))
	for _, g := range out.Glyphs {
		id := uint16(g.GlyphID)
		glyph := Glyph{
			ID:      id,
			Advance: float64(g.XAdvance) / 64,
			Width:   t.GlyphWidth(id),
		}
		if c := g.ClusterIndex; !seen[c] {
			seen[c] = true
			end := len(runes)
			if i := sort.SearchInts(starts, c+1); i < len(starts) {
				end = starts[i]
			}
			if c < end && end <= len(runes) {
				glyph.Runes = runes[c:end]
			}
		}
		glyphs = append(glyphs, glyph)
	}
	return glyphs, nil
}
