package flatten

import (
	"bytes"
	"errors"
	"log/slog"
	"strings"
	"testing"

	"golang.org/x/image/font/gofont/goregular"

	"github.com/georgepadayatti/pdfflatten/pdf/fonts"
	"github.com/georgepadayatti/pdfflatten/pdf/generic"
	"github.com/georgepadayatti/pdfflatten/pdf/images"
	"github.com/georgepadayatti/pdfflatten/pdf/reader"
	"github.com/georgepadayatti/pdfflatten/stamp"
)

func letterPage() *reader.PageInfo {
	return pageWithBox(generic.Rectangle{URX: 600, URY: 800}, 0)
}

func render(t *testing.T, objects *objectList, page *reader.PageInfo, anns []Annotation, font FontResource) *OverlayPage {
	t.Helper()
	ov, err := NewRenderer(objects, DefaultRenderOptions(), nil, nil).Render(page, anns, font)
	if err != nil {
		t.Fatalf("Render failed: %v", err)
	}
	return ov
}

func TestRenderText(t *testing.T) {
	objects := &objectList{}
	ov := render(t, objects, letterPage(), []Annotation{
		{Kind: KindText, X: 72, Y: 100, Scale: 1, Text: "Hello"},
	}, FontResource{})

	want := "q\n0 0 600 800 re\nW\nn\n" +
		"q\n1 0 0 1 72 700 cm\n0 g\nBT\n/F1 12 Tf\n0 0 Td\n(Hello) Tj\nET\nQ\n" +
		"Q\n"
	if got := string(ov.Content.Render()); got != want {
		t.Errorf("overlay mismatch:\ngot:\n%s\nwant:\n%s", got, want)
	}
	if ov.Marks != 1 || len(ov.Warnings) != 0 {
		t.Errorf("marks = %d, warnings = %v", ov.Marks, ov.Warnings)
	}
	font, ok := objects.get(ov.Resources.GetDict("Font").Get("F1")).(*generic.DictionaryObject)
	if !ok || font.GetName("BaseFont") != "Helvetica" {
		t.Errorf("F1 = %v", font)
	}
}

func TestRenderTextUsesScaledFontSize(t *testing.T) {
	ov := render(t, &objectList{}, letterPage(), []Annotation{
		{Kind: KindText, X: 144, Y: 200, Scale: 2, FontSize: 36, Text: "Big"},
	}, FontResource{})
	got := string(ov.Content.Render())
	if !strings.Contains(got, "1 0 0 1 72 700 cm") || !strings.Contains(got, "/F1 18 Tf") {
		t.Errorf("unexpected overlay:\n%s", got)
	}
}

func TestRenderSharesStandardFontAcrossPages(t *testing.T) {
	objects := &objectList{}
	r := NewRenderer(objects, DefaultRenderOptions(), nil, nil)
	ann := []Annotation{{Kind: KindText, X: 1, Y: 1, Scale: 1, Text: "a"}}
	for range 2 {
		if _, err := r.Render(letterPage(), ann, FontResource{}); err != nil {
			t.Fatalf("Render failed: %v", err)
		}
	}
	if len(objects.objects) != 1 {
		t.Errorf("added %d objects, want a single font dictionary", len(objects.objects))
	}
}

func TestRenderRotatedPage(t *testing.T) {
	ov := render(t, &objectList{}, pageWithBox(generic.Rectangle{URX: 600, URY: 800}, 90), []Annotation{
		{Kind: KindText, X: 100, Y: 50, Scale: 1, Text: "Up"},
	}, FontResource{})
	if got := string(ov.Content.Render()); !strings.Contains(got, "0 1 -1 0 50 100 cm") {
		t.Errorf("text is not drawn in a rotated frame:\n%s", got)
	}
}

func TestRenderImageTargetSize(t *testing.T) {
	objects := &objectList{}
	ov := render(t, objects, letterPage(), []Annotation{
		{Kind: KindSignatureImage, X: 100, Y: 100, Scale: 2, Width: 300, Height: 150, Image: pngBytes(t, 200, 100)},
	}, FontResource{})

	got := string(ov.Content.Render())
	if !strings.Contains(got, "1 0 0 1 50 750 cm\n150 0 0 75 0 -75 cm\n/Im1 Do") {
		t.Errorf("unexpected overlay:\n%s", got)
	}
	xobj, ok := objects.get(ov.Resources.GetDict("XObject").Get("Im1")).(*generic.StreamObject)
	if !ok {
		t.Fatalf("Im1 is not a stream")
	}
	// 150/200 horizontally, 75/100 vertically.
	if w, _ := xobj.Dictionary.GetInt("Width"); w != 200 {
		t.Errorf("image width = %d", w)
	}
	if xobj.Dictionary.GetName("ColorSpace") != string(images.ColorSpaceRGB) {
		t.Errorf("ColorSpace = %s", xobj.Dictionary.GetName("ColorSpace"))
	}
}

func TestRenderImageDefaultFit(t *testing.T) {
	tests := []struct {
		name       string
		w, h       int
		wantMatrix string
	}{
		// 40% of 600 wide bounds it.
		{"wide", 1000, 100, "240 0 0 24 0 -24 cm"},
		// 20% of 800 high bounds it.
		{"tall", 100, 400, "40 0 0 160 0 -160 cm"},
		// Never enlarged.
		{"small", 50, 20, "50 0 0 20 0 -20 cm"},
	}
	for _, tt := range tests {
		ov := render(t, &objectList{}, letterPage(), []Annotation{
			{Kind: KindSignatureImage, X: 10, Y: 10, Scale: 1, DataURL: dataURL(pngBytes(t, tt.w, tt.h))},
		}, FontResource{})
		if got := string(ov.Content.Render()); !strings.Contains(got, tt.wantMatrix) {
			t.Errorf("%s: want %q in\n%s", tt.name, tt.wantMatrix, got)
		}
	}
}

func TestRenderImageFitModes(t *testing.T) {
	tests := []struct {
		fit        stamp.ImageScaleMode
		wantMatrix string
	}{
		{stamp.ImageScaleFit, "40 0 0 160 0 -160 cm"},
		// The whole 240x160 default box.
		{stamp.ImageScaleStretch, "240 0 0 160 0 -160 cm"},
		// One point per pixel.
		{stamp.ImageScaleNone, "100 0 0 400 0 -400 cm"},
	}
	for _, tt := range tests {
		opts := DefaultRenderOptions()
		opts.ImageFit = tt.fit
		ov, err := NewRenderer(&objectList{}, opts, nil, nil).Render(letterPage(), []Annotation{
			{Kind: KindSignatureImage, X: 10, Y: 10, Scale: 1, Image: pngBytes(t, 100, 400)},
		}, FontResource{})
		if err != nil {
			t.Fatalf("%s: Render failed: %v", tt.fit, err)
		}
		if got := string(ov.Content.Render()); !strings.Contains(got, tt.wantMatrix) {
			t.Errorf("%s: want %q in\n%s", tt.fit, tt.wantMatrix, got)
		}
	}
}

func TestRenderSkipsOversizedImage(t *testing.T) {
	opts := DefaultRenderOptions()
	opts.MaxDecodePixels = 100
	r := NewRenderer(&objectList{}, opts, nil, nil)
	ov, err := r.Render(letterPage(), []Annotation{
		{Kind: KindSignatureImage, X: 10, Y: 10, Scale: 1, Image: pngBytes(t, 20, 10)},
		{Kind: KindSignatureImage, X: 10, Y: 50, Scale: 1, Image: pngBytes(t, 10, 10)},
	}, FontResource{})
	if err != nil {
		t.Fatalf("Render failed: %v", err)
	}
	if ov.Marks != 1 || len(ov.Warnings) != 1 {
		t.Fatalf("marks = %d, warnings = %v", ov.Marks, ov.Warnings)
	}
	if w := ov.Warnings[0]; w.Index != 0 || !errors.Is(w, images.ErrImageTooLarge) {
		t.Errorf("warning = %+v", w)
	}
}

func TestRenderSavedSignature(t *testing.T) {
	store := signatureMap{"a.png": pngBytes(t, 20, 10)}
	r := NewRenderer(&objectList{}, DefaultRenderOptions(), store, nil)
	ov, err := r.Render(letterPage(), []Annotation{
		{Kind: KindSignatureImage, Scale: 1, SavedName: "a.png"},
		{Kind: KindSignatureImage, Scale: 1, SavedName: "missing.png"},
	}, FontResource{})
	if err != nil {
		t.Fatalf("Render failed: %v", err)
	}
	if ov.Marks != 1 || len(ov.Warnings) != 1 || !errors.Is(ov.Warnings[0], errNoSuchSignature) {
		t.Errorf("marks = %d, warnings = %v", ov.Marks, ov.Warnings)
	}

	ov = render(t, &objectList{}, letterPage(), []Annotation{
		{Kind: KindSignatureImage, Scale: 1, SavedName: "a.png"},
	}, FontResource{})
	if len(ov.Warnings) != 1 || !errors.Is(ov.Warnings[0], ErrNoSignatureSource) {
		t.Errorf("warnings without a store = %v", ov.Warnings)
	}
}

func TestRenderSkipsCorruptAnnotation(t *testing.T) {
	var logs bytes.Buffer
	logger := slog.New(slog.NewTextHandler(&logs, nil))
	r := NewRenderer(&objectList{}, DefaultRenderOptions(), nil, logger)
	ov, err := r.Render(letterPage(), []Annotation{
		{Kind: KindText, X: 10, Y: 10, Scale: 1, Text: "first"},
		{Kind: KindSignatureImage, X: 10, Y: 30, Scale: 1, DataURL: dataURL([]byte("\x89PNG\r\n\x1a\ntruncated"))},
		{Kind: KindText, X: 10, Y: 50, Scale: 1, Text: "third"},
	}, FontResource{})
	if err != nil {
		t.Fatalf("Render failed: %v", err)
	}
	if ov.Marks != 2 || len(ov.Warnings) != 1 {
		t.Fatalf("marks = %d, warnings = %v", ov.Marks, ov.Warnings)
	}
	w := ov.Warnings[0]
	if w.Index != 1 || w.Kind != KindSignatureImage || !errors.Is(w, images.ErrDecodeFailed) {
		t.Errorf("warning = %+v", w)
	}
	got := string(ov.Content.Render())
	if !strings.Contains(got, "(first) Tj") || !strings.Contains(got, "(third) Tj") {
		t.Errorf("valid annotations missing:\n%s", got)
	}
	if !strings.Contains(logs.String(), "level=WARN") || !strings.Contains(logs.String(), "annotation skipped") {
		t.Errorf("no warning logged: %s", logs.String())
	}
}

func TestRenderEmptyPayloads(t *testing.T) {
	ov := render(t, &objectList{}, letterPage(), []Annotation{
		{Kind: KindText, Scale: 1},
		{Kind: KindSignatureText, Scale: 1, Text: "  "},
		{Kind: KindSignatureImage, Scale: 1},
	}, FontResource{})
	if ov.Marks != 0 || len(ov.Warnings) != 3 {
		t.Fatalf("marks = %d, warnings = %v", ov.Marks, ov.Warnings)
	}
	for i, cause := range []error{ErrEmptyText, ErrEmptyText, ErrNoBitmap} {
		if !errors.Is(ov.Warnings[i], cause) {
			t.Errorf("warning %d = %v, want %v", i, ov.Warnings[i], cause)
		}
	}
	if ov.Resources.Len() != 0 {
		t.Errorf("resources = %v", ov.Resources.Keys())
	}
}

func TestRenderGeometryErrorAborts(t *testing.T) {
	_, err := NewRenderer(&objectList{}, DefaultRenderOptions(), nil, nil).Render(letterPage(), []Annotation{
		{Kind: KindText, Scale: 1, Text: "ok"},
		{Kind: KindText, Scale: 0, Text: "bad"},
	}, FontResource{})
	var geomErr *GeometryError
	if !errors.As(err, &geomErr) {
		t.Fatalf("error = %v, want a GeometryError", err)
	}
}

func TestRenderTypedSignatureFallback(t *testing.T) {
	objects := &objectList{}
	font := FontResource{Fallback: fonts.NewStandardFont(fonts.HelveticaOblique)}
	ov := render(t, objects, letterPage(), []Annotation{
		{Kind: KindSignatureText, X: 100, Y: 100, Scale: 1, Text: "Jane Roe"},
		{Kind: KindSignatureText, X: 100, Y: 200, Scale: 1, Height: 40, Text: "J.R."},
	}, font)

	got := string(ov.Content.Render())
	if !strings.Contains(got, "/F2 32 Tf\n0 0 Td\n(Jane Roe) Tj") || !strings.Contains(got, "/F2 30 Tf") {
		t.Errorf("unexpected overlay:\n%s", got)
	}
	f2, ok := objects.get(ov.Resources.GetDict("Font").Get("F2")).(*generic.DictionaryObject)
	if !ok || f2.GetName("BaseFont") != "Helvetica-Oblique" {
		t.Errorf("F2 = %v", f2)
	}
}

func TestRenderTypedSignatureEmbedded(t *testing.T) {
	ttf, err := fonts.LoadTrueTypeFont(goregular.TTF)
	if err != nil {
		t.Fatalf("LoadTrueTypeFont failed: %v", err)
	}
	objects := &objectList{}
	ov := render(t, objects, letterPage(), []Annotation{
		{Kind: KindSignatureText, X: 100, Y: 100, Scale: 1, Text: "Sign"},
	}, FontResource{Embedded: ttf})

	got := string(ov.Content.Render())
	if !strings.Contains(got, "/F2 32 Tf") || !strings.Contains(got, "TJ") {
		t.Errorf("unexpected overlay:\n%s", got)
	}
	f2, ok := objects.get(ov.Resources.GetDict("Font").Get("F2")).(*generic.DictionaryObject)
	if !ok || f2.GetName("Subtype") != "Type0" || f2.GetName("Encoding") != "Identity-H" {
		t.Fatalf("F2 = %v", f2)
	}
	if f2.GetName("BaseFont") != "GoRegular" {
		t.Errorf("BaseFont = %s", f2.GetName("BaseFont"))
	}
}

func TestRenderWithoutClip(t *testing.T) {
	opts := DefaultRenderOptions()
	opts.ClipToPage = false
	ov, err := NewRenderer(&objectList{}, opts, nil, nil).Render(letterPage(), []Annotation{
		{Kind: KindText, X: 590, Y: 10, Scale: 1, Text: "edge"},
	}, FontResource{})
	if err != nil {
		t.Fatalf("Render failed: %v", err)
	}
	if got := string(ov.Content.Render()); strings.Contains(got, " re\n") {
		t.Errorf("overlay clipped although clipping is off:\n%s", got)
	}
}
