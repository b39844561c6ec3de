package flatten

import (
	"bytes"
	"encoding/base64"
	"errors"
	"image"
	"image/color"
	"image/png"
	"testing"

	"github.com/georgepadayatti/pdfflatten/pdf/generic"
	"github.com/georgepadayatti/pdfflatten/pdf/reader"
	"github.com/georgepadayatti/pdfflatten/pdf/writer"
)

// buildPDF writes a document of n 600x800 pages. Every page shows one
// line of text in a Times font registered as /F1. configure may adjust
// the writer and each page before it is added.
func buildPDF(t *testing.T, n int, configure func(w *writer.PdfFileWriter, i int, spec *writer.PageSpec)) []byte {
	t.Helper()
	w := writer.NewPdfFileWriter("1.7")
	font := generic.NewDictionary()
	font.Set("Type", generic.NameObject("Font"))
	font.Set("Subtype", generic.NameObject("Type1"))
	font.Set("BaseFont", generic.NameObject("Times-Roman"))
	fontRef := w.AddObject(font)

	for i := 0; i < n; i++ {
		res := generic.NewDictionary()
		fonts := generic.NewDictionary()
		fonts.Set("F1", fontRef)
		res.Set("Font", fonts)
		spec := writer.PageSpec{
			MediaBox:  &generic.Rectangle{URX: 600, URY: 800},
			Resources: res,
			Contents:  [][]byte{[]byte("BT /F1 24 Tf 72 700 Td (Original) Tj ET")},
		}
		if configure != nil {
			configure(w, i, &spec)
		}
		if _, err := w.AddPage(spec); err != nil {
			t.Fatalf("AddPage failed: %v", err)
		}
	}
	data, err := w.Bytes()
	if err != nil {
		t.Fatalf("Bytes failed: %v", err)
	}
	return data
}

func mustRead(t *testing.T, data []byte) *reader.PdfFileReader {
	t.Helper()
	r, err := reader.NewPdfFileReaderFromBytes(data)
	if err != nil {
		t.Fatalf("NewPdfFileReaderFromBytes failed: %v", err)
	}
	return r
}

func mustPage(t *testing.T, r *reader.PdfFileReader, i int) *reader.PageInfo {
	t.Helper()
	page, err := r.GetPage(i)
	if err != nil {
		t.Fatalf("GetPage(%d) failed: %v", i, err)
	}
	return page
}

// lastContent returns the decoded last content stream of a page.
func lastContent(t *testing.T, r *reader.PdfFileReader, page *reader.PageInfo) string {
	t.Helper()
	return contentAt(t, r, page, -1)
}

// contentAt returns the decoded content stream i of a page; negative
// indices count from the end.
func contentAt(t *testing.T, r *reader.PdfFileReader, page *reader.PageInfo, i int) string {
	t.Helper()
	contents := page.Dict.GetArray("Contents")
	if len(contents) == 0 {
		t.Fatalf("page %d has no content array: %v", page.Index, page.Dict.Get("Contents"))
	}
	if i < 0 {
		i += len(contents)
	}
	obj, err := r.ResolveReference(contents[i])
	if err != nil {
		t.Fatalf("resolve content: %v", err)
	}
	stream, ok := obj.(*generic.StreamObject)
	if !ok {
		t.Fatalf("content is %T, not a stream", obj)
	}
	if err := r.DecodeStream(stream); err != nil {
		t.Fatalf("DecodeStream failed: %v", err)
	}
	return string(stream.GetDecodedData())
}

// pngBytes encodes a w x h half-transparent red image.
func pngBytes(t *testing.T, w, h int) []byte {
	t.Helper()
	img := image.NewNRGBA(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			img.Set(x, y, color.NRGBA{R: 255, A: 128})
		}
	}
	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		t.Fatalf("png.Encode failed: %v", err)
	}
	return buf.Bytes()
}

func dataURL(data []byte) string {
	return "data:image/png;base64," + base64.StdEncoding.EncodeToString(data)
}

// objectList collects added objects in place of a document writer.
type objectList struct {
	objects []generic.PdfObject
}

func (l *objectList) AddObject(obj generic.PdfObject) generic.Reference {
	l.objects = append(l.objects, obj)
	return generic.NewReference(len(l.objects), 0)
}

func (l *objectList) get(ref generic.PdfObject) generic.PdfObject {
	r, ok := ref.(generic.Reference)
	if !ok || r.ObjectNumber < 1 || r.ObjectNumber > len(l.objects) {
		return nil
	}
	return l.objects[r.ObjectNumber-1]
}

var errNoSuchSignature = errors.New("no such signature")

// signatureMap is a SignatureSource over a map.
type signatureMap map[string][]byte

func (m signatureMap) Open(name string) ([]byte, error) {
	data, ok := m[name]
	if !ok {
		return nil, errNoSuchSignature
	}
	return data, nil
}
