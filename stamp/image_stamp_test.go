package stamp

import (
	"testing"

	"github.com/georgepadayatti/pdfflatten/pdf/content"
	"github.com/georgepadayatti/pdfflatten/pdf/generic"
)

func TestImageScaleModeString(t *testing.T) {
	tests := []struct {
		mode     ImageScaleMode
		expected string
	}{
		{ImageScaleFit, "fit"},
		{ImageScaleStretch, "stretch"},
		{ImageScaleNone, "none"},
		{ImageScaleMode(99), "unknown"},
	}
	for _, tc := range tests {
		if got := tc.mode.String(); got != tc.expected {
			t.Errorf("%d.String() = %q, want %q", tc.mode, got, tc.expected)
		}
		if tc.expected == "unknown" {
			continue
		}
		parsed, err := ParseImageScaleMode(tc.expected)
		if err != nil || parsed != tc.mode {
			t.Errorf("ParseImageScaleMode(%q) = %v, %v", tc.expected, parsed, err)
		}
	}
	if _, err := ParseImageScaleMode("fill"); err == nil {
		t.Errorf("expected an error for an unknown mode")
	}
}

func TestImageSize(t *testing.T) {
	tests := []struct {
		name             string
		mode             ImageScaleMode
		w, h, bw, bh, ms float64
		wantW, wantH     float64
	}{
		{"fit shrinks by the tighter side", ImageScaleFit, 400, 100, 200, 200, 1, 200, 50},
		{"fit never enlarges past max scale", ImageScaleFit, 100, 50, 400, 400, 1, 100, 50},
		{"fit without a cap enlarges", ImageScaleFit, 100, 50, 400, 400, 0, 400, 200},
		{"stretch", ImageScaleStretch, 100, 50, 30, 90, 1, 30, 90},
		{"none", ImageScaleNone, 100, 50, 30, 90, 1, 100, 50},
		{"empty image", ImageScaleFit, 0, 50, 30, 90, 1, 0, 0},
	}
	for _, tt := range tests {
		w, h := ImageSize(tt.mode, tt.w, tt.h, tt.bw, tt.bh, tt.ms)
		if w != tt.wantW || h != tt.wantH {
			t.Errorf("%s: got %vx%v, want %vx%v", tt.name, w, h, tt.wantW, tt.wantH)
		}
	}
}

func TestImageMarkHangsFromAnchor(t *testing.T) {
	mark := &ImageMark{Name: "Im1", Width: 150, Height: 50}
	cb := content.NewContentBuilder()
	Apply(cb, NewFrame(100, 700, 0), mark)

	want := "q\n1 0 0 1 100 700 cm\n150 0 0 50 0 -50 cm\n/Im1 Do\nQ\n"
	if got := string(cb.Render()); got != want {
		t.Errorf("Render mismatch:\ngot:\n%s\nwant:\n%s", got, want)
	}
	if b := NewFrame(100, 700, 0).Rect(mark.Bounds()); b != (generic.Rectangle{LLX: 100, LLY: 650, URX: 250, URY: 700}) {
		t.Errorf("page bounds = %+v", b)
	}
}
