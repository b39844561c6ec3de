package generic

import (
	"bytes"
	"testing"
)

func TestFormatReal(t *testing.T) {
	tests := []struct {
		in   float64
		want string
	}{
		{0, "0"},
		{12, "12"},
		{700.0000001, "700"},
		{0.5, "0.5"},
		{-0.00001, "0"},
		{1.23456, "1.2346"},
	}
	for _, tt := range tests {
		if got := FormatReal(tt.in); got != tt.want {
			t.Errorf("FormatReal(%v) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestNameEscaping(t *testing.T) {
	var buf bytes.Buffer
	if err := NameObject("A B#").Write(&buf); err != nil {
		t.Fatalf("Write failed: %v", err)
	}
	if buf.String() != "/A#20B#23" {
		t.Errorf("Got %q", buf.String())
	}
}

func TestTextString(t *testing.T) {
	latin := NewTextString("Café")
	if len(latin.Value) != 4 || latin.Value[3] != 0xE9 {
		t.Errorf("Latin-1 text string = %v", latin.Value)
	}
	if latin.Text() != "Café" {
		t.Errorf("Text() = %q", latin.Text())
	}

	uni := NewTextString("J. Doe ✓")
	if uni.Value[0] != 0xFE || uni.Value[1] != 0xFF {
		t.Errorf("Expected UTF-16BE BOM, got %v", uni.Value[:2])
	}
	if uni.Text() != "J. Doe ✓" {
		t.Errorf("Text() = %q", uni.Text())
	}
}

func TestDictionaryOrderAndCopy(t *testing.T) {
	d := NewDictionary()
	d.Set("B", IntegerObject(1))
	d.Set("A", IntegerObject(2))
	d.Set("B", IntegerObject(3))
	if keys := d.Keys(); len(keys) != 2 || keys[0] != "B" || keys[1] != "A" {
		t.Errorf("Keys = %v", keys)
	}

	c := d.Copy()
	c.Set("C", NullObject{})
	if d.Has("C") {
		t.Error("Copy must not share the key set")
	}
	d.Delete("B")
	if d.Len() != 1 || !c.Has("B") {
		t.Errorf("Delete affected the copy or failed: %v / %v", d.Keys(), c.Keys())
	}
}

func TestRectangleNormalisedAndIntersect(t *testing.T) {
	r, err := NewRectangle(NewArray(IntegerObject(600), IntegerObject(800), IntegerObject(0), RealObject(0)))
	if err != nil {
		t.Fatalf("NewRectangle failed: %v", err)
	}
	if r.LLX != 0 || r.URY != 800 {
		t.Errorf("Rectangle not normalised: %+v", r)
	}
	crop := &Rectangle{LLX: 50, LLY: 50, URX: 700, URY: 700}
	got := r.Intersect(crop)
	want := &Rectangle{LLX: 50, LLY: 50, URX: 600, URY: 700}
	if *got != *want {
		t.Errorf("Intersect = %+v, want %+v", got, want)
	}
	if r.Intersect(&Rectangle{LLX: 900, LLY: 900, URX: 950, URY: 950}) != nil {
		t.Error("Disjoint rectangles must not intersect")
	}
}

func TestStreamWriteSetsLength(t *testing.T) {
	s := NewStream(nil, []byte("q Q"))
	var buf bytes.Buffer
	if err := s.Write(&buf); err != nil {
		t.Fatalf("Write failed: %v", err)
	}
	if !bytes.Contains(buf.Bytes(), []byte("/Length 3")) {
		t.Errorf("Missing Length in %q", buf.String())
	}
	if !bytes.HasSuffix(buf.Bytes(), []byte("q Q\nendstream")) {
		t.Errorf("Unexpected stream body %q", buf.String())
	}
}
