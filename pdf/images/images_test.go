package images

import (
	"bytes"
	"encoding/base64"
	"encoding/binary"
	"errors"
	"hash/crc32"
	"image"
	"image/color"
	"image/gif"
	"image/jpeg"
	"image/png"
	"testing"

	"golang.org/x/image/bmp"

	"github.com/georgepadayatti/pdfflatten/pdf/filters"
)

func createTestImage(width, height int) *image.NRGBA {
	img := image.NewNRGBA(image.Rect(0, 0, width, height))
	for y := 0; y < height; y++ {
		for x := 0; x < width; x++ {
			img.Set(x, y, color.NRGBA{R: uint8(x % 256), G: uint8(y % 256), B: 128, A: 255})
		}
	}
	return img
}

func createTestPNG(t *testing.T, img image.Image) []byte {
	t.Helper()
	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		t.Fatalf("png.Encode failed: %v", err)
	}
	return buf.Bytes()
}

func TestDetectFormat(t *testing.T) {
	img := createTestImage(4, 4)
	var jpg, gf, bm bytes.Buffer
	jpeg.Encode(&jpg, img, &jpeg.Options{Quality: 85})
	gif.Encode(&gf, img, nil)
	bmp.Encode(&bm, img)

	tests := []struct {
		name string
		data []byte
		want ImageFormat
	}{
		{"png", createTestPNG(t, img), FormatPNG},
		{"jpeg", jpg.Bytes(), FormatJPEG},
		{"gif", gf.Bytes(), FormatGIF},
		{"bmp", bm.Bytes(), FormatBMP},
		{"webp", []byte("RIFF\x00\x00\x00\x00WEBPVP8 "), FormatWebP},
		{"short", []byte{0x89, 'P'}, ""},
		{"text", []byte("hello, world"), ""},
	}
	for _, tt := range tests {
		if got := DetectFormat(tt.data); got != tt.want {
			t.Errorf("%s: DetectFormat = %q, want %q", tt.name, got, tt.want)
		}
	}
}

func TestDecodeDataURL(t *testing.T) {
	payload := createTestPNG(t, createTestImage(2, 2))
	url := "data:image/png;base64," + base64.StdEncoding.EncodeToString(payload)

	got, err := DecodeDataURL(url)
	if err != nil {
		t.Fatalf("DecodeDataURL failed: %v", err)
	}
	if !bytes.Equal(got, payload) {
		t.Errorf("payload mismatch")
	}

	unpadded := "data:image/png;base64," + base64.RawStdEncoding.EncodeToString(payload)
	if _, err := DecodeDataURL(unpadded); err != nil {
		t.Errorf("unpadded data URL: %v", err)
	}

	for _, bad := range []string{"", "image/png;base64,AAAA", "data:image/png,AAAA", "data:image/png;base64,", "data:image/png;base64,!!!"} {
		if _, err := DecodeDataURL(bad); !errors.Is(err, ErrInvalidDataURL) {
			t.Errorf("DecodeDataURL(%q) error = %v", bad, err)
		}
	}
}

func TestDecodeErrors(t *testing.T) {
	if _, _, err := Decode(nil, 0); !errors.Is(err, ErrInvalidImage) {
		t.Errorf("empty data error = %v", err)
	}
	if _, _, err := Decode([]byte("definitely not an image"), 0); !errors.Is(err, ErrUnsupportedFormat) {
		t.Errorf("unknown data error = %v", err)
	}
	corrupt := createTestPNG(t, createTestImage(8, 8))[:40]
	if _, format, err := Decode(corrupt, 0); !errors.Is(err, ErrDecodeFailed) || format != FormatPNG {
		t.Errorf("corrupt png: format %q, error %v", format, err)
	}
}

// oversizedPNG returns a 1x1 gray PNG whose header claims w x h pixels.
func oversizedPNG(t *testing.T, w, h uint32) []byte {
	t.Helper()
	data := createTestPNG(t, image.NewGray(image.Rect(0, 0, 1, 1)))
	binary.BigEndian.PutUint32(data[16:20], w)
	binary.BigEndian.PutUint32(data[20:24], h)
	binary.BigEndian.PutUint32(data[29:33], crc32.ChecksumIEEE(data[12:29]))
	return data
}

func TestDecodeRejectsOversizedHeader(t *testing.T) {
	data := oversizedPNG(t, 20000, 20000)
	if len(data) > 1024 {
		t.Fatalf("test image is %d bytes", len(data))
	}
	if _, format, err := Decode(data, 0); !errors.Is(err, ErrImageTooLarge) || !errors.Is(err, ErrInvalidDimensions) || format != FormatPNG {
		t.Errorf("format %q, error %v", format, err)
	}
	if _, err := Prepare(data, 1200, 0); !errors.Is(err, ErrImageTooLarge) {
		t.Errorf("Prepare error = %v", err)
	}

	small := createTestPNG(t, createTestImage(100, 100))
	if _, _, err := Decode(small, 9999); !errors.Is(err, ErrImageTooLarge) {
		t.Errorf("limit 9999: error = %v", err)
	}
	if _, _, err := Decode(small, 10000); err != nil {
		t.Errorf("limit 10000: %v", err)
	}
}

func TestFlattenOnWhite(t *testing.T) {
	img := image.NewNRGBA(image.Rect(0, 0, 3, 1))
	img.Set(0, 0, color.NRGBA{A: 0})
	img.Set(1, 0, color.NRGBA{A: 255})
	img.Set(2, 0, color.NRGBA{A: 128})

	out := FlattenOnWhite(img)
	want := []color.RGBA{
		{255, 255, 255, 255},
		{0, 0, 0, 255},
	}
	for x, c := range want {
		if got := out.RGBAAt(x, 0); got != c {
			t.Errorf("pixel %d = %v, want %v", x, got, c)
		}
	}
	if half := out.RGBAAt(2, 0); half.A != 255 || half.R < 120 || half.R > 135 {
		t.Errorf("half transparent black over white = %v", half)
	}
}

func TestDownsample(t *testing.T) {
	img := createTestImage(2400, 100)
	got := Downsample(img, 1200)
	if b := got.Bounds(); b.Dx() != 1200 || b.Dy() != 50 {
		t.Errorf("downsampled to %dx%d, want 1200x50", b.Dx(), b.Dy())
	}

	tall := Downsample(createTestImage(10, 40), 20)
	if b := tall.Bounds(); b.Dx() != 5 || b.Dy() != 20 {
		t.Errorf("tall image downsampled to %dx%d", b.Dx(), b.Dy())
	}

	small := createTestImage(10, 10)
	if Downsample(small, 1200) != image.Image(small) {
		t.Errorf("small image should be returned unchanged")
	}
	if Downsample(img, 0) != image.Image(img) {
		t.Errorf("a zero limit disables downsampling")
	}
}

func TestNewPDFImageFromImage(t *testing.T) {
	img := image.NewRGBA(image.Rect(5, 5, 7, 6))
	img.Set(5, 5, color.RGBA{R: 10, G: 20, B: 30, A: 255})
	img.Set(6, 5, color.RGBA{R: 40, G: 50, B: 60, A: 255})

	p, err := NewPDFImageFromImage(img)
	if err != nil {
		t.Fatalf("NewPDFImageFromImage failed: %v", err)
	}
	if p.Width != 2 || p.Height != 1 || p.ColorSpace != ColorSpaceRGB {
		t.Errorf("image = %dx%d %s", p.Width, p.Height, p.ColorSpace)
	}
	if !bytes.Equal(p.Pixels, []byte{10, 20, 30, 40, 50, 60}) {
		t.Errorf("pixels = %v", p.Pixels)
	}

	gray := image.NewGray(image.Rect(0, 0, 2, 2))
	gray.SetGray(1, 1, color.Gray{Y: 200})
	g, err := NewPDFImageFromImage(gray)
	if err != nil {
		t.Fatalf("NewPDFImageFromImage(gray) failed: %v", err)
	}
	if g.ColorSpace != ColorSpaceGray || !bytes.Equal(g.Pixels, []byte{0, 0, 0, 200}) {
		t.Errorf("gray image = %s %v", g.ColorSpace, g.Pixels)
	}

	if _, err := NewPDFImageFromImage(image.NewRGBA(image.Rectangle{})); !errors.Is(err, ErrInvalidDimensions) {
		t.Errorf("empty image error = %v", err)
	}
}

func TestPrepareAndXObject(t *testing.T) {
	src := image.NewNRGBA(image.Rect(0, 0, 300, 150))
	src.Set(0, 0, color.NRGBA{A: 255})

	p, err := Prepare(createTestPNG(t, src), 100, 0)
	if err != nil {
		t.Fatalf("Prepare failed: %v", err)
	}
	if p.Width != 100 || p.Height != 50 || p.Format != FormatPNG {
		t.Errorf("prepared image = %dx%d %s", p.Width, p.Height, p.Format)
	}
	if p.SourceWidth != 300 || p.SourceHeight != 150 {
		t.Errorf("source size = %dx%d", p.SourceWidth, p.SourceHeight)
	}

	xobj, err := p.XObject()
	if err != nil {
		t.Fatalf("XObject failed: %v", err)
	}
	d := xobj.Dictionary
	if d.GetName("Subtype") != "Image" || d.GetName("ColorSpace") != "DeviceRGB" || d.GetName("Filter") != "FlateDecode" {
		t.Errorf("XObject dictionary = %v", d.Keys())
	}
	if w, _ := d.GetInt("Width"); w != 100 {
		t.Errorf("Width = %d", w)
	}
	decoded, err := filters.Decode(xobj.Data, d)
	if err != nil {
		t.Fatalf("decode image stream: %v", err)
	}
	if len(decoded) != 100*50*3 {
		t.Errorf("decoded %d bytes, want %d", len(decoded), 100*50*3)
	}
	// The transparent background became white.
	if decoded[len(decoded)-1] != 255 {
		t.Errorf("background sample = %d, want 255", decoded[len(decoded)-1])
	}
}
