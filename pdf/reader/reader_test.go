package reader

import (
	"bytes"
	"errors"
	"fmt"
	"strings"
	"testing"

	"github.com/georgepadayatti/pdfflatten/pdf/generic"
)

// buildPDF lays out bodies as objects 1..n followed by a classic xref
// table and a trailer with the given extra entries.
func buildPDF(bodies []string, trailerExtra string) []byte {
	var buf bytes.Buffer
	buf.WriteString("%PDF-1.7\n%\xE2\xE3\xCF\xD3\n")
	entries := []*XRefEntry{{ObjectNumber: 0, Type: XRefTypeFree, Generation: 65535}}
	for i, body := range bodies {
		entries = append(entries, &XRefEntry{ObjectNumber: i + 1, Type: XRefTypeStandard, Offset: int64(buf.Len())})
		fmt.Fprintf(&buf, "%d 0 obj\n%s\nendobj\n", i+1, body)
	}
	xref := buf.Len()
	WriteXRefTable(&buf, entries)
	fmt.Fprintf(&buf, "trailer\n<< /Size %d /Root 1 0 R %s >>\nstartxref\n%d\n%%%%EOF\n", len(bodies)+1, trailerExtra, xref)
	return buf.Bytes()
}

func twoPageTree() []string {
	return []string{
		"<< /Type /Catalog /Pages 2 0 R >>",
		"<< /Type /Pages /Kids [3 0 R 4 0 R] /Count 2 /MediaBox [0 0 600 800] /Resources << /Font << /F1 5 0 R >> >> /Rotate 90 >>",
		"<< /Type /Page /Parent 2 0 R /Contents 6 0 R >>",
		"<< /Type /Page /Parent 2 0 R /MediaBox [10 20 310 420] /CropBox [0 0 200 300] /Rotate -90 /Resources << >> >>",
		"<< /Type /Font /Subtype /Type1 /BaseFont /Helvetica >>",
		"<< /Length 7 0 R >>\nstream\nq Q\nendstream",
		"3",
	}
}

func TestReadPagesWithInheritance(t *testing.T) {
	r, err := NewPdfFileReaderFromBytes(buildPDF(twoPageTree(), ""))
	if err != nil {
		t.Fatalf("NewPdfFileReaderFromBytes failed: %v", err)
	}
	if r.Version != "1.7" {
		t.Errorf("Version = %q", r.Version)
	}
	if r.GetPageCount() != 2 {
		t.Fatalf("GetPageCount = %d, want 2", r.GetPageCount())
	}

	p0, _ := r.GetPage(0)
	if p0.Ref != generic.NewReference(3, 0) {
		t.Errorf("page 0 ref = %v", p0.Ref)
	}
	if *p0.Box != (generic.Rectangle{URX: 600, URY: 800}) {
		t.Errorf("page 0 box = %+v", *p0.Box)
	}
	if p0.Rotate != 90 {
		t.Errorf("page 0 rotate = %d, want inherited 90", p0.Rotate)
	}
	if w, h := p0.DisplaySize(); w != 800 || h != 600 {
		t.Errorf("page 0 display size = %vx%v", w, h)
	}
	if _, ok := p0.Resources.GetDict("Font").GetReference("F1"); !ok {
		t.Errorf("page 0 did not inherit Font resources")
	}

	p1, _ := r.GetPage(1)
	if p1.Rotate != 270 {
		t.Errorf("page 1 rotate = %d, want 270", p1.Rotate)
	}
	want := generic.Rectangle{LLX: 10, LLY: 20, URX: 200, URY: 300}
	if *p1.Box != want {
		t.Errorf("page 1 box = %+v, want crop box clipped to media box %+v", *p1.Box, want)
	}
	if p1.Resources.Len() != 0 {
		t.Errorf("page 1 resources should be its own empty dictionary")
	}

	if _, err := r.GetPage(2); !errors.Is(err, ErrPageOutOfRange) {
		t.Errorf("GetPage(2) error = %v", err)
	}
}

func TestIndirectStreamLength(t *testing.T) {
	r, err := NewPdfFileReaderFromBytes(buildPDF(twoPageTree(), ""))
	if err != nil {
		t.Fatalf("NewPdfFileReaderFromBytes failed: %v", err)
	}
	obj, err := r.GetObject(6)
	if err != nil {
		t.Fatalf("GetObject(6) failed: %v", err)
	}
	stream, ok := obj.(*generic.StreamObject)
	if !ok {
		t.Fatalf("object 6 is %T", obj)
	}
	if string(stream.Data) != "q Q" {
		t.Errorf("stream data = %q", stream.Data)
	}
}

func TestEncryptedDocumentRejected(t *testing.T) {
	_, err := NewPdfFileReaderFromBytes(buildPDF(twoPageTree(), "/Encrypt 5 0 R"))
	if !errors.Is(err, ErrEncrypted) {
		t.Fatalf("expected ErrEncrypted, got %v", err)
	}
}

func TestMissingHeader(t *testing.T) {
	_, err := NewPdfFileReaderFromBytes([]byte("not a pdf at all, really"))
	if !errors.Is(err, ErrInvalidPDF) {
		t.Fatalf("expected ErrInvalidPDF, got %v", err)
	}
}

func TestReconstructBrokenXRef(t *testing.T) {
	data := buildPDF(twoPageTree(), "")
	idx := bytes.LastIndex(data, []byte("startxref\n"))
	broken := append(bytes.Clone(data[:idx]), []byte("startxref\n17\n%%EOF\n")...)

	r, err := NewPdfFileReaderFromBytes(broken)
	if err != nil {
		t.Fatalf("NewPdfFileReaderFromBytes failed: %v", err)
	}
	if !r.Repaired {
		t.Errorf("expected Repaired to be set")
	}
	if r.GetPageCount() != 2 {
		t.Errorf("GetPageCount = %d, want 2", r.GetPageCount())
	}
	if r.MaxObjectNumber() != 7 {
		t.Errorf("MaxObjectNumber = %d, want 7", r.MaxObjectNumber())
	}
}

func TestXRefStreamAndObjectStream(t *testing.T) {
	var buf bytes.Buffer
	buf.WriteString("%PDF-1.5\n")
	entries := []*XRefEntry{{ObjectNumber: 0, Type: XRefTypeFree, Generation: 65535}}

	add := func(num int, body string) {
		entries = append(entries, &XRefEntry{ObjectNumber: num, Type: XRefTypeStandard, Offset: int64(buf.Len())})
		fmt.Fprintf(&buf, "%d 0 obj\n%s\nendobj\n", num, body)
	}
	add(1, "<< /Type /Catalog /Pages 2 0 R >>")
	add(2, "<< /Type /Pages /Kids [3 0 R] /Count 1 >>")

	member := "<< /Type /Page /Parent 2 0 R /MediaBox [0 0 300 400] >>"
	header := "3 0 "
	objStm := header + member
	add(4, fmt.Sprintf("<< /Type /ObjStm /N 1 /First %d /Length %d >>\nstream\n%s\nendstream", len(header), len(objStm), objStm))
	entries = append(entries, &XRefEntry{ObjectNumber: 3, Type: XRefTypeInObjStream, ObjStream: 4})

	xrefOffset := int64(buf.Len())
	entries = append(entries, &XRefEntry{ObjectNumber: 5, Type: XRefTypeStandard, Offset: xrefOffset})
	sorted := []*XRefEntry{entries[0], entries[1], entries[2], entries[4], entries[3], entries[5]}
	stream := NewXRefStream(sorted)
	stream.Dictionary.Set("Size", generic.IntegerObject(6))
	stream.Dictionary.Set("Root", generic.NewReference(1, 0))
	generic.NewIndirectObject(5, 0, stream).Write(&buf)
	fmt.Fprintf(&buf, "\nstartxref\n%d\n%%%%EOF\n", xrefOffset)

	r, err := NewPdfFileReaderFromBytes(buf.Bytes())
	if err != nil {
		t.Fatalf("NewPdfFileReaderFromBytes failed: %v", err)
	}
	if !r.HasXRefStream {
		t.Errorf("HasXRefStream not set")
	}
	if r.Repaired {
		t.Errorf("xref stream should not need repair")
	}
	if len(r.XRefOffsets) != 1 || r.XRefOffsets[0] != xrefOffset {
		t.Errorf("XRefOffsets = %v", r.XRefOffsets)
	}
	page, err := r.GetPage(0)
	if err != nil {
		t.Fatalf("GetPage(0) failed: %v", err)
	}
	if page.Box.Width() != 300 || page.Box.Height() != 400 {
		t.Errorf("page box = %+v", *page.Box)
	}
}

func TestXRefTableRoundTrip(t *testing.T) {
	entries := []*XRefEntry{
		{ObjectNumber: 0, Type: XRefTypeFree, Generation: 65535},
		{ObjectNumber: 1, Type: XRefTypeStandard, Offset: 15},
		{ObjectNumber: 7, Type: XRefTypeStandard, Offset: 900, Generation: 2},
	}
	var buf bytes.Buffer
	WriteXRefTable(&buf, entries)
	buf.WriteString("trailer\n<< /Size 8 >>")

	if !strings.Contains(buf.String(), "0 2\n") || !strings.Contains(buf.String(), "7 1\n") {
		t.Fatalf("expected two subsections, got:\n%s", buf.String())
	}
	section, err := parseXRefTable(buf.Bytes(), 0)
	if err != nil {
		t.Fatalf("parseXRefTable failed: %v", err)
	}
	if len(section.Entries) != 3 {
		t.Fatalf("got %d entries", len(section.Entries))
	}
	last := section.Entries[2]
	if last.ObjectNumber != 7 || last.Offset != 900 || last.Generation != 2 || !last.InUse() {
		t.Errorf("last entry = %+v", *last)
	}
	if section.Entries[0].InUse() {
		t.Errorf("entry 0 should be free")
	}
}

func TestNormalizeRotation(t *testing.T) {
	cases := map[int]int{0: 0, 90: 90, 180: 180, 270: 270, 360: 0, 450: 90, -90: 270, -180: 180, 45: 0, 100: 90}
	for in, want := range cases {
		if got := NormalizeRotation(in); got != want {
			t.Errorf("NormalizeRotation(%d) = %d, want %d", in, got, want)
		}
	}
}
