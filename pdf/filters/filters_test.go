package filters

import (
	"bytes"
	"compress/zlib"
	"errors"
	"testing"

	"github.com/georgepadayatti/pdfflatten/pdf/generic"
)

func deflate(t *testing.T, data []byte) []byte {
	t.Helper()
	var buf bytes.Buffer
	w := zlib.NewWriter(&buf)
	if _, err := w.Write(data); err != nil {
		t.Fatalf("zlib write: %v", err)
	}
	w.Close()
	return buf.Bytes()
}

func TestFlateRoundTrip(t *testing.T) {
	original := []byte("q 1 0 0 1 72 720 cm BT /F1 12 Tf (Hello) Tj ET Q")

	encoded, err := FlateEncode(original)
	if err != nil {
		t.Fatalf("FlateEncode failed: %v", err)
	}
	dict := generic.NewDictionary()
	dict.Set("Filter", generic.NameObject("FlateDecode"))

	decoded, err := Decode(encoded, dict)
	if err != nil {
		t.Fatalf("Decode failed: %v", err)
	}
	if !bytes.Equal(decoded, original) {
		t.Errorf("got %q, want %q", decoded, original)
	}
}

func TestNewFlateStream(t *testing.T) {
	s, err := NewFlateStream(nil, []byte("0 0 m 10 10 l S"))
	if err != nil {
		t.Fatalf("NewFlateStream failed: %v", err)
	}
	if s.Dictionary.GetName("Filter") != "FlateDecode" {
		t.Errorf("Filter = %q", s.Dictionary.GetName("Filter"))
	}
	if string(s.GetDecodedData()) != "0 0 m 10 10 l S" {
		t.Errorf("decoded view = %q", s.GetDecodedData())
	}
	back, err := Decode(s.Data, s.Dictionary)
	if err != nil || string(back) != "0 0 m 10 10 l S" {
		t.Errorf("Decode = %q, %v", back, err)
	}
}

func TestASCIIHexDecode(t *testing.T) {
	f, _ := GetFilter("AHx")
	out, err := f.Decode([]byte("48 65 6C\n6C 6F 7>"), nil)
	if err != nil {
		t.Fatalf("Decode failed: %v", err)
	}
	if string(out) != "Hellop" {
		t.Errorf("got %q", out)
	}
}

func TestASCII85Decode(t *testing.T) {
	f, _ := GetFilter("ASCII85Decode")
	out, err := f.Decode([]byte("<~87cURD]i,\"Ebo80~>"), nil)
	if err != nil {
		t.Fatalf("Decode failed: %v", err)
	}
	if string(out) != "Hello World" {
		t.Errorf("got %q", out)
	}
}

func TestRunLengthDecode(t *testing.T) {
	f, _ := GetFilter("RL")
	// literal "ab", then 'c' repeated 3 times, then EOD
	out, err := f.Decode([]byte{1, 'a', 'b', 254, 'c', 128}, nil)
	if err != nil {
		t.Fatalf("Decode failed: %v", err)
	}
	if string(out) != "abccc" {
		t.Errorf("got %q", out)
	}

	if _, err := f.Decode([]byte{5, 'a'}, nil); !errors.Is(err, ErrDecodeFailed) {
		t.Errorf("expected ErrDecodeFailed for truncated literal, got %v", err)
	}
}

func TestGetFilterUnknown(t *testing.T) {
	if _, err := GetFilter("JBIG2Decode"); !errors.Is(err, ErrUnsupportedFilter) {
		t.Errorf("expected ErrUnsupportedFilter, got %v", err)
	}
}

func TestDecodeChained(t *testing.T) {
	payload := []byte("chained payload")
	hexed := []byte("")
	for _, b := range deflate(t, payload) {
		hexed = append(hexed, "0123456789ABCDEF"[b>>4], "0123456789ABCDEF"[b&0xF])
	}
	hexed = append(hexed, '>')

	dict := generic.NewDictionary()
	dict.Set("Filter", generic.NewArray(generic.NameObject("ASCIIHexDecode"), generic.NameObject("FlateDecode")))

	out, err := Decode(hexed, dict)
	if err != nil {
		t.Fatalf("Decode failed: %v", err)
	}
	if !bytes.Equal(out, payload) {
		t.Errorf("got %q", out)
	}
}

func TestDecodeWithoutFilter(t *testing.T) {
	out, err := Decode([]byte("raw"), generic.NewDictionary())
	if err != nil || string(out) != "raw" {
		t.Errorf("Decode = %q, %v", out, err)
	}
}

func TestPNGUpPredictor(t *testing.T) {
	// Two rows of three columns, the second encoded with the Up filter.
	raw := []byte{
		0, 1, 2, 3,
		2, 1, 1, 1,
	}
	dict := generic.NewDictionary()
	dict.Set("Filter", generic.NameObject("FlateDecode"))
	parms := generic.NewDictionary()
	parms.Set("Predictor", generic.IntegerObject(12))
	parms.Set("Columns", generic.IntegerObject(3))
	dict.Set("DecodeParms", parms)

	out, err := Decode(deflate(t, raw), dict)
	if err != nil {
		t.Fatalf("Decode failed: %v", err)
	}
	want := []byte{1, 2, 3, 2, 3, 4}
	if !bytes.Equal(out, want) {
		t.Errorf("got %v, want %v", out, want)
	}
}

func TestPNGPredictorUnknownRowFilter(t *testing.T) {
	params := generic.NewDictionary()
	params.Set("Predictor", generic.IntegerObject(12))
	params.Set("Columns", generic.IntegerObject(1))
	if _, err := applyPredictor([]byte{9, 0}, params); !errors.Is(err, ErrInvalidPredictor) {
		t.Errorf("expected ErrInvalidPredictor, got %v", err)
	}
}
