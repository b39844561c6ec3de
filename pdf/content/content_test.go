package content

import (
	"errors"
	"strings"
	"testing"

	"github.com/georgepadayatti/pdfflatten/pdf/generic"
)

func TestContentBuilderRender(t *testing.T) {
	cb := NewContentBuilder()
	cb.SaveState().
		Transform(1, 0, 0, 1, 72.5, 700).
		BeginText().
		SetFont("F1", 12).
		SetTextMatrix(1, 0, 0, 1, 0, 0).
		ShowText([]byte("Hi (there)")).
		EndText().
		RestoreState()

	got := string(cb.Render())
	want := "q\n1 0 0 1 72.5 700 cm\nBT\n/F1 12 Tf\n1 0 0 1 0 0 Tm\n(Hi \\(there\\)) Tj\nET\nQ\n"
	if got != want {
		t.Errorf("Render mismatch:\ngot:\n%s\nwant:\n%s", got, want)
	}
}

func TestRotateUsesExactTrigonometry(t *testing.T) {
	got := string(NewContentBuilder().Rotate(90).Render())
	if got != "0 1 -1 0 0 0 cm\n" {
		t.Errorf("Rotate(90) = %q", got)
	}
}

func TestClipRect(t *testing.T) {
	got := string(NewContentBuilder().ClipRect(0, 0, 600, 800).Render())
	if got != "0 0 600 800 re\nW\nn\n" {
		t.Errorf("ClipRect = %q", got)
	}
}

func TestParseOperands(t *testing.T) {
	src := []byte(`q 0.5 0 0 .5 10 -20 cm
BT /F1 9 Tf [(A) -120 <0041>] TJ ET % trailing comment
/Im1 Do
/OC /MC0 BDC EMC
Q`)
	cs, err := NewParser(src).Parse()
	if err != nil {
		t.Fatalf("Parse failed: %v", err)
	}

	var ops []string
	for _, op := range cs.Operations {
		ops = append(ops, string(op.Operator))
	}
	if got := strings.Join(ops, " "); got != "q cm BT Tf TJ ET Do BDC EMC Q" {
		t.Fatalf("operators = %s", got)
	}

	cm := cs.Operations[1]
	if v, ok := generic.NumberValue(cm.Operands[3]); !ok || v != 0.5 {
		t.Errorf("cm operand 3 = %v", cm.Operands[3])
	}
	tj, ok := cs.Operations[4].Operands[0].(generic.ArrayObject)
	if !ok || len(tj) != 3 {
		t.Fatalf("TJ operand = %v", cs.Operations[4].Operands)
	}
	if s, ok := tj[2].(*generic.StringObject); !ok || !s.IsHex || string(s.Value) != "\x00A" {
		t.Errorf("hex string operand = %v", tj[2])
	}
}

func TestParseInlineImage(t *testing.T) {
	src := []byte("q BI /W 1 /H 1 /CS /G /BPC 8 ID \xffEI x EI Q")
	cs, err := NewParser(src).Parse()
	if err != nil {
		t.Fatalf("Parse failed: %v", err)
	}
	if len(cs.Operations) != 3 {
		t.Fatalf("got %d operations", len(cs.Operations))
	}
	inline := cs.Operations[1]
	if inline.Operator != OpBeginInlineImage || !strings.HasSuffix(string(inline.Inline), " EI") {
		t.Errorf("inline image = %q", inline.Inline)
	}
	if !strings.Contains(string(cs.Render()), "\xffEI x EI") {
		t.Errorf("inline data not preserved")
	}
}

func TestParseErrors(t *testing.T) {
	for _, src := range []string{"1 2", "q ] Q", "(unterminated Tj"} {
		if _, err := NewParser([]byte(src)).Parse(); !errors.Is(err, ErrInvalidContent) {
			t.Errorf("Parse(%q) error = %v, want ErrInvalidContent", src, err)
		}
	}
}

func TestRenameResources(t *testing.T) {
	src := []byte("/GS0 gs /F1 12 Tf /Im1 Do /DeviceRGB cs /CS0 CS /P0 scn /Sh0 sh /OC /MC0 BDC EMC")
	cs, err := NewParser(src).Parse()
	if err != nil {
		t.Fatalf("Parse failed: %v", err)
	}
	var seen []string
	cs.RenameResources(func(category, name string) string {
		seen = append(seen, category+":"+name)
		return name + "_1"
	})

	want := "ExtGState:GS0 Font:F1 XObject:Im1 ColorSpace:CS0 Pattern:P0 Shading:Sh0 Properties:MC0"
	if got := strings.Join(seen, " "); got != want {
		t.Errorf("lookups = %s\nwant %s", got, want)
	}
	out := string(cs.Render())
	for _, frag := range []string{"/F1_1 12 Tf", "/Im1_1 Do", "/DeviceRGB cs", "/OC /MC0_1 BDC"} {
		if !strings.Contains(out, frag) {
			t.Errorf("rendered stream lacks %q:\n%s", frag, out)
		}
	}
}
