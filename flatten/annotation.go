// Package flatten burns client-side annotations (text, typed signatures and
// signature images) into the page content of a PDF.
//
// Annotations arrive in the coordinate space of the page as the browser
// rendered it: origin top-left, y down, multiplied by a render scale. The
// mapper converts them to PDF user space, the renderer draws each page's
// annotations into an overlay, the compositor appends the overlay to the
// page and the assembler writes all of it as an incremental update.
package flatten

import (
	"encoding/json"
	"fmt"
	"strings"
)

// Kind discriminates the annotation variants.
type Kind int

const (
	// KindText is plain text in Helvetica.
	KindText Kind = iota
	// KindSignatureText is a typed signature in the cursive font.
	KindSignatureText
	// KindSignatureImage is a drawn or saved signature bitmap.
	KindSignatureImage
)

func (k Kind) String() string {
	switch k {
	case KindText:
		return "text"
	case KindSignatureText:
		return "typed signature"
	case KindSignatureImage:
		return "signature image"
	default:
		return "unknown"
	}
}

// Annotation is one client-side mark. Coordinates and sizes are in client
// units: display space multiplied by Scale.
type Annotation struct {
	Kind Kind
	// Page is the 0-based page index.
	Page  int
	X, Y  float64
	Scale float64

	// Text is the content of KindText and KindSignatureText.
	Text string
	// FontSize applies to KindText. Zero selects the default size.
	FontSize float64

	// Width and Height are the optional target box. Both must be positive
	// to take effect.
	Width, Height float64

	// A KindSignatureImage takes its bitmap from the first of Image,
	// DataURL and SavedName that is set.
	Image     []byte
	DataURL   string
	SavedName string

	// Removed annotations were deleted in the editor and are not drawn.
	Removed bool
}

// SignatureSource opens saved signature bitmaps by name.
type SignatureSource interface {
	Open(name string) ([]byte, error)
}

type wireAnnotation struct {
	Type      string          `json:"type"`
	PageIndex int             `json:"pageIndex"`
	X         float64         `json:"x"`
	Y         float64         `json:"y"`
	Width     float64         `json:"width"`
	Height    float64         `json:"height"`
	Scale     *float64        `json:"scale"`
	FontSize  float64         `json:"fontSize"`
	Removed   bool            `json:"removed"`
	Value     json.RawMessage `json:"value"`
}

type wireSignature struct {
	Type     string `json:"type"`
	Text     string `json:"text"`
	Filename string `json:"filename"`
	DataURL  string `json:"dataURL"`
}

// DecodeAnnotations decodes the editor's JSON annotation list. A missing
// scale means 1. Payloads are not validated here: an empty text or a
// broken data URL reaches the renderer, which skips it with a warning.
func DecodeAnnotations(data []byte) ([]Annotation, error) {
	var wire []wireAnnotation
	if err := json.Unmarshal(data, &wire); err != nil {
		return nil, fmt.Errorf("decode annotations: %w", err)
	}
	out := make([]Annotation, 0, len(wire))
	for i, w := range wire {
		a := Annotation{
			Page:     w.PageIndex,
			X:        w.X,
			Y:        w.Y,
			Scale:    1,
			Width:    w.Width,
			Height:   w.Height,
			FontSize: w.FontSize,
			Removed:  w.Removed,
		}
		if w.Scale != nil {
			a.Scale = *w.Scale
		}

		switch strings.ToLower(w.Type) {
		case "text":
			a.Kind = KindText
			if len(w.Value) > 0 && string(w.Value) != "null" {
				if err := json.Unmarshal(w.Value, &a.Text); err != nil {
					return nil, fmt.Errorf("annotation %d: text value: %w", i, err)
				}
			}
		case "signature":
			var sig wireSignature
			if len(w.Value) > 0 && string(w.Value) != "null" {
				if err := json.Unmarshal(w.Value, &sig); err != nil {
					return nil, fmt.Errorf("annotation %d: signature value: %w", i, err)
				}
			}
			switch sig.Type {
			case "typed":
				a.Kind = KindSignatureText
				a.Text = sig.Text
			case "saved":
				a.Kind = KindSignatureImage
				a.SavedName = sig.Filename
			case "drawn", "":
				a.Kind = KindSignatureImage
				a.DataURL = sig.DataURL
			default:
				return nil, fmt.Errorf("annotation %d: %w: signature %q", i, ErrUnknownAnnotation, sig.Type)
			}
		default:
			return nil, fmt.Errorf("annotation %d: %w: %q", i, ErrUnknownAnnotation, w.Type)
		}
		out = append(out, a)
	}
	return out, nil
}
