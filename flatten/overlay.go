package flatten

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/georgepadayatti/pdfflatten/pdf/content"
	"github.com/georgepadayatti/pdfflatten/pdf/fonts"
	"github.com/georgepadayatti/pdfflatten/pdf/generic"
	"github.com/georgepadayatti/pdfflatten/pdf/images"
	"github.com/georgepadayatti/pdfflatten/pdf/reader"
	"github.com/georgepadayatti/pdfflatten/stamp"
)

// Resource names used by overlays. Collisions with the page's own names
// are resolved when compositing.
const (
	textFontName      = "F1"
	signatureFontName = "F2"
	imageNamePrefix   = "Im"
)

// Size of an image signature without a target box, as a fraction of the
// displayed page.
const (
	imageFitWidth  = 0.4
	imageFitHeight = 0.2
)

// RenderOptions controls how annotations are drawn.
type RenderOptions struct {
	// TextFontSize is used for text annotations without a font size.
	TextFontSize float64
	// SignatureFontSize is used for typed signatures without a height.
	SignatureFontSize float64
	// MaxImagePixels bounds the longer side of signature bitmaps.
	// Zero keeps the bitmap as is.
	MaxImagePixels int
	// MaxDecodePixels bounds the area of signature bitmaps before they
	// are decoded. Zero uses the images package default.
	MaxDecodePixels int
	// ImageFit sizes image signatures that have no target box.
	ImageFit stamp.ImageScaleMode
	// ClipToPage clips the overlay to the page's effective box.
	ClipToPage bool
}

// DefaultRenderOptions returns the options used when none are configured.
func DefaultRenderOptions() RenderOptions {
	return RenderOptions{
		TextFontSize:      12,
		SignatureFontSize: 32,
		MaxImagePixels:    1200,
		MaxDecodePixels:   images.DefaultMaxDecodePixels,
		ImageFit:          stamp.ImageScaleFit,
		ClipToPage:        true,
	}
}

// OverlayPage is the drawing for one page, ready to be composited.
type OverlayPage struct {
	Page int
	// Content holds the overlay operators, balanced in q/Q.
	Content *content.ContentStream
	// Resources names the objects Content uses. The objects themselves
	// have already been added to the document.
	Resources *generic.DictionaryObject
	Box       generic.Rectangle
	Rotation  int
	// Marks is the number of annotations drawn.
	Marks    int
	Warnings []*AnnotationDecodeError
}

// Renderer draws annotations into page overlays. A Renderer belongs to
// one export: fonts and images are added to that export's document, and
// the standard fonts and the embedded font program are written once.
type Renderer struct {
	objects    fonts.ObjectAdder
	opts       RenderOptions
	signatures SignatureSource
	logger     *slog.Logger

	textFont     *fonts.StandardType1Font
	textFontRef  generic.Reference
	fallbackRefs map[string]generic.Reference
	embedders    map[*fonts.TrueTypeFont]*fonts.Embedder
}

// NewRenderer returns a renderer adding objects through objects. signatures
// may be nil when no saved signatures are used.
func NewRenderer(objects fonts.ObjectAdder, opts RenderOptions, signatures SignatureSource, logger *slog.Logger) *Renderer {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &Renderer{
		objects:      objects,
		opts:         opts,
		signatures:   signatures,
		logger:       logger,
		textFont:     fonts.NewStandardFont(fonts.Helvetica),
		fallbackRefs: make(map[string]generic.Reference),
		embedders:    make(map[*fonts.TrueTypeFont]*fonts.Embedder),
	}
}

// pageOverlay collects the resources of the overlay being drawn.
type pageOverlay struct {
	fonts    *generic.DictionaryObject
	xobjects *generic.DictionaryObject
	glyphs   fonts.GlyphSet
}

// Render draws anns, in order, on page. Annotations whose payload cannot
// be used are skipped and recorded as warnings; a geometry error aborts.
func (r *Renderer) Render(page *reader.PageInfo, anns []Annotation, font FontResource) (*OverlayPage, error) {
	if page.Box == nil {
		return nil, &GeometryError{Page: page.Index, Reason: "page has no box", Err: ErrEmptyPageBox}
	}
	box := *page.Box
	ov := &OverlayPage{
		Page:      page.Index,
		Resources: generic.NewDictionary(),
		Box:       box,
		Rotation:  page.Rotate,
	}
	po := &pageOverlay{
		fonts:    generic.NewDictionary(),
		xobjects: generic.NewDictionary(),
		glyphs:   fonts.GlyphSet{},
	}

	cb := content.NewContentBuilder()
	cb.SaveState()
	if r.opts.ClipToPage {
		cb.ClipRect(box.LLX, box.LLY, box.Width(), box.Height())
	}
	for i, a := range anns {
		p, err := Map(a, page)
		if err != nil {
			return nil, err
		}
		mark, err := r.mark(a, p, font, po)
		if err != nil {
			warning := &AnnotationDecodeError{Page: page.Index, Index: i, Kind: a.Kind, Err: err}
			ov.Warnings = append(ov.Warnings, warning)
			r.logger.LogAttrs(context.Background(), slog.LevelWarn, "annotation skipped",
				slog.Int("page", page.Index),
				slog.Int("index", i),
				slog.String("kind", a.Kind.String()),
				slog.Any("error", err))
			continue
		}

		frame := stamp.NewFrame(p.X, p.Y, p.Rotation)
		if bounds := frame.Rect(mark.Bounds()); !inside(bounds, box) {
			r.logger.Debug("annotation extends past the page box",
				"page", page.Index, "index", i, "clipped", r.opts.ClipToPage)
		}
		stamp.Apply(cb, frame, mark)
		ov.Marks++
	}
	cb.RestoreState()

	if len(po.glyphs) > 0 {
		ref, err := r.embedder(font.Embedded).Embed(po.glyphs)
		if err != nil {
			return nil, fmt.Errorf("embed %s: %w", font.Name(), err)
		}
		po.fonts.Set(signatureFontName, ref)
	}
	if po.fonts.Len() > 0 {
		ov.Resources.Set("Font", po.fonts)
	}
	if po.xobjects.Len() > 0 {
		ov.Resources.Set("XObject", po.xobjects)
	}
	ov.Content = cb.Build()
	return ov, nil
}

func (r *Renderer) mark(a Annotation, p Placement, font FontResource, po *pageOverlay) (stamp.Mark, error) {
	switch a.Kind {
	case KindText:
		if strings.TrimSpace(a.Text) == "" {
			return nil, ErrEmptyText
		}
		size := p.FontSize
		if size <= 0 {
			size = r.opts.TextFontSize
		}
		if !po.fonts.Has(textFontName) {
			po.fonts.Set(textFontName, r.standardFont(r.textFont))
		}
		return &stamp.TextMark{FontName: textFontName, Font: r.textFont, Size: size, Text: a.Text}, nil

	case KindSignatureText:
		if strings.TrimSpace(a.Text) == "" {
			return nil, ErrEmptyText
		}
		size := r.opts.SignatureFontSize
		if p.Height > 0 {
			size = 0.75 * p.Height
		}
		if font.Embedded == nil {
			fallback := font.Fallback
			if fallback == nil {
				fallback = fonts.NewStandardFont(fonts.HelveticaOblique)
			}
			po.fonts.Set(signatureFontName, r.standardFont(fallback))
			return &stamp.TextMark{FontName: signatureFontName, Font: fallback, Size: size, Text: a.Text}, nil
		}
		glyphs, err := font.Embedded.Shape(a.Text)
		if err != nil {
			return nil, err
		}
		po.glyphs.Add(glyphs)
		return &stamp.GlyphMark{FontName: signatureFontName, Metrics: font.Embedded.Metrics(), Size: size, Glyphs: glyphs}, nil

	case KindSignatureImage:
		data, err := r.bitmap(a)
		if err != nil {
			return nil, err
		}
		img, err := images.Prepare(data, r.opts.MaxImagePixels, r.opts.MaxDecodePixels)
		if err != nil {
			return nil, err
		}
		xobj, err := img.XObject()
		if err != nil {
			return nil, err
		}
		w, h := p.Width, p.Height
		if w <= 0 || h <= 0 {
			w, h = stamp.ImageSize(r.opts.ImageFit,
				float64(img.SourceWidth), float64(img.SourceHeight),
				imageFitWidth*p.DisplayWidth, imageFitHeight*p.DisplayHeight, 1)
		}
		name := fmt.Sprintf("%s%d", imageNamePrefix, po.xobjects.Len()+1)
		po.xobjects.Set(name, r.objects.AddObject(xobj))
		return &stamp.ImageMark{Name: name, Width: w, Height: h}, nil
	}
	return nil, fmt.Errorf("%w: kind %d", ErrUnknownAnnotation, int(a.Kind))
}

// bitmap returns the encoded signature image of a.
func (r *Renderer) bitmap(a Annotation) ([]byte, error) {
	switch {
	case len(a.Image) > 0:
		return a.Image, nil
	case a.DataURL != "":
		return images.DecodeDataURL(a.DataURL)
	case a.SavedName != "":
		if r.signatures == nil {
			return nil, ErrNoSignatureSource
		}
		data, err := r.signatures.Open(a.SavedName)
		if err != nil {
			return nil, fmt.Errorf("saved signature %q: %w", a.SavedName, err)
		}
		return data, nil
	}
	return nil, ErrNoBitmap
}

// standardFont returns the reference of a standard font dictionary,
// adding it on first use.
func (r *Renderer) standardFont(f *fonts.StandardType1Font) generic.Reference {
	if f == r.textFont {
		if r.textFontRef.IsZero() {
			r.textFontRef = r.objects.AddObject(f.Dictionary())
		}
		return r.textFontRef
	}
	ref, ok := r.fallbackRefs[f.Name()]
	if !ok {
		ref = r.objects.AddObject(f.Dictionary())
		r.fallbackRefs[f.Name()] = ref
	}
	return ref
}

func (r *Renderer) embedder(font *fonts.TrueTypeFont) *fonts.Embedder {
	e, ok := r.embedders[font]
	if !ok {
		e = fonts.NewEmbedder(font, r.objects)
		r.embedders[font] = e
	}
	return e
}

// inside reports whether a lies within b, allowing for rounding.
func inside(a, b generic.Rectangle) bool {
	const eps = 1e-6
	return a.LLX >= b.LLX-eps && a.LLY >= b.LLY-eps && a.URX <= b.URX+eps && a.URY <= b.URY+eps
}
