package fonts

import (
	"bytes"
	"fmt"
	"math"
	"sort"

	"github.com/georgepadayatti/pdfflatten/pdf/filters"
	"github.com/georgepadayatti/pdfflatten/pdf/generic"
)

// ObjectAdder adds an indirect object to a document under construction.
type ObjectAdder interface {
	AddObject(obj generic.PdfObject) generic.Reference
}

// GlyphSet records the glyphs drawn with an embedded font and the text
// each one stands for.
type GlyphSet map[uint16][]rune

// Add records a glyph run.
func (s GlyphSet) Add(glyphs []Glyph) {
	for _, g := range glyphs {
		if prev, ok := s[g.ID]; ok && len(prev) > 0 {
			continue
		}
		s[g.ID] = g.Runes
	}
}

// IDs returns the recorded glyph IDs in ascending order.
func (s GlyphSet) IDs() []uint16 {
	ids := make([]uint16, 0, len(s))
	for id := range s {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids
}

// Embedder writes a TrueType font into a document as a Type0 font with
// Identity-H encoding. The font program and its descriptor are written
// once; every Embed call adds a font dictionary with widths and a
// ToUnicode map covering the glyphs it is given.
type Embedder struct {
	font       *TrueTypeFont
	objects    ObjectAdder
	descriptor generic.Reference
}

// NewEmbedder returns an embedder writing through objects.
func NewEmbedder(font *TrueTypeFont, objects ObjectAdder) *Embedder {
	return &Embedder{font: font, objects: objects}
}

// Embed adds a Type0 font covering used and returns its reference.
func (e *Embedder) Embed(used GlyphSet) (generic.Reference, error) {
	if len(used) == 0 {
		return generic.Reference{}, fmt.Errorf("%w: no glyphs to embed", ErrInvalidFont)
	}
	if e.descriptor.IsZero() {
		ref, err := e.writeDescriptor()
		if err != nil {
			return generic.Reference{}, err
		}
		e.descriptor = ref
	}

	ids := used.IDs()
	name := generic.NameObject(e.font.Name())

	sysInfo := generic.NewDictionary()
	sysInfo.Set("Registry", generic.NewLiteralString("Adobe"))
	sysInfo.Set("Ordering", generic.NewLiteralString("Identity"))
	sysInfo.Set("Supplement", generic.IntegerObject(0))

	cid := generic.NewDictionary()
	cid.Set("Type", generic.NameObject("Font"))
	cid.Set("Subtype", generic.NameObject(FontTypeCIDFont))
	cid.Set("BaseFont", name)
	cid.Set("CIDSystemInfo", sysInfo)
	cid.Set("FontDescriptor", e.descriptor)
	cid.Set("DW", generic.IntegerObject(int64(math.Round(e.font.Metrics().DefaultWidth))))
	cid.Set("W", e.widthArray(ids))
	cid.Set("CIDToGIDMap", generic.NameObject("Identity"))
	cidRef := e.objects.AddObject(cid)

	toUnicode, err := filters.NewFlateStream(nil, ToUnicodeCMap(used))
	if err != nil {
		return generic.Reference{}, fmt.Errorf("compress ToUnicode: %w", err)
	}

	font := generic.NewDictionary()
	font.Set("Type", generic.NameObject("Font"))
	font.Set("Subtype", generic.NameObject(FontTypeType0))
	font.Set("BaseFont", name)
	font.Set("Encoding", generic.NameObject("Identity-H"))
	font.Set("DescendantFonts", generic.NewArray(cidRef))
	font.Set("ToUnicode", e.objects.AddObject(toUnicode))
	return e.objects.AddObject(font), nil
}

func (e *Embedder) writeDescriptor() (generic.Reference, error) {
	program := generic.NewDictionary()
	program.Set("Length1", generic.IntegerObject(len(e.font.Data())))
	stream, err := filters.NewFlateStream(program, e.font.Data())
	if err != nil {
		return generic.Reference{}, fmt.Errorf("compress font program: %w", err)
	}
	fileRef := e.objects.AddObject(stream)

	m := e.font.Metrics()
	d := generic.NewDictionary()
	d.Set("Type", generic.NameObject("FontDescriptor"))
	d.Set("FontName", generic.NameObject(e.font.Name()))
	d.Set("Flags", generic.IntegerObject(m.Flags))
	d.Set("FontBBox", generic.NewNumberArray(m.BBox[:]...))
	d.Set("ItalicAngle", generic.RealObject(m.ItalicAngle))
	d.Set("Ascent", generic.RealObject(m.Ascender))
	d.Set("Descent", generic.RealObject(m.Descender))
	d.Set("CapHeight", generic.RealObject(m.CapHeight))
	d.Set("StemV", generic.RealObject(m.StemV))
	d.Set("FontFile2", fileRef)
	return e.objects.AddObject(d), nil
}

// widthArray builds a /W array, one bracketed run per stretch of
// consecutive glyph IDs.
func (e *Embedder) widthArray(ids []uint16) generic.ArrayObject {
	var w generic.ArrayObject
	var run generic.ArrayObject
	for i, id := range ids {
		if i == 0 || id != ids[i-1]+1 {
			if run != nil {
				w = append(w, run)
			}
			w = append(w, generic.IntegerObject(id))
			run = generic.ArrayObject{}
		}
		run = append(run, generic.RealObject(e.font.GlyphWidth(id)))
	}
	if run != nil {
		w = append(w, run)
	}
	return w
}

// ToUnicodeCMap returns a ToUnicode CMap mapping two byte glyph codes to
// the text recorded for them. Glyphs without text are left out.
func ToUnicodeCMap(used GlyphSet) []byte {
	var b bytes.Buffer
	b.WriteString("/CIDInit /ProcSet findresource begin\n12 dict begin\nbegincmap\n")
	b.WriteString("/CIDSystemInfo << /Registry (Adobe) /Ordering (UCS) /Supplement 0 >> def\n")
	b.WriteString("/CMapName /Adobe-Identity-UCS def\n/CMapType 2 def\n")
	b.WriteString("1 begincodespacerange\n<0000> <FFFF>\nendcodespacerange\n")

	var entries []uint16
	for _, id := range used.IDs() {
		if len(used[id]) > 0 {
			entries = append(entries, id)
		}
	}
	// At most 100 entries per block.
	for start := 0; start < len(entries); start += 100 {
		end := min(start+100, len(entries))
		fmt.Fprintf(&b, "%d beginbfchar\n", end-start)
		for _, id := range entries[start:end] {
			fmt.Fprintf(&b, "<%04X> <%s>\n", id, utf16Hex(used[id]))
		}
		b.WriteString("endbfchar\n")
	}
	b.WriteString("endcmap\nCMapName currentdict /CMap defineresource pop\nend\nend\n")
	return b.Bytes()
}

// ShowGlyphs returns the operand of a TJ operator drawing glyphs with
// their shaped advances. A glyph whose shaped advance differs from its
// nominal width is followed by the correcting adjustment.
func ShowGlyphs(glyphs []Glyph) generic.ArrayObject {
	var arr generic.ArrayObject
	var run []byte
	for _, g := range glyphs {
		run = append(run, byte(g.ID>>8), byte(g.ID))
		if adj := g.Width - g.Advance; math.Abs(adj) >= 0.01 {
			arr = append(arr, generic.NewHexString(run), generic.RealObject(math.Round(adj*100)/100))
			run = nil
		}
	}
	if len(run) > 0 {
		arr = append(arr, generic.NewHexString(run))
	}
	return arr
}
