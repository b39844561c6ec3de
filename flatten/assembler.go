package flatten

import (
	"context"
	"fmt"
	"log/slog"
	"slices"
	"time"

	"github.com/georgepadayatti/pdfflatten/pdf/fonts"
	"github.com/georgepadayatti/pdfflatten/pdf/form"
	"github.com/georgepadayatti/pdfflatten/pdf/metadata"
	"github.com/georgepadayatti/pdfflatten/pdf/reader"
	"github.com/georgepadayatti/pdfflatten/pdf/writer"
)

// Options configures a Flattener.
type Options struct {
	Render RenderOptions

	// FontFile is the TrueType font for typed signatures.
	FontFile string
	// FallbackFont replaces FontFile when it cannot be used.
	FallbackFont fonts.StandardFont

	// NeedAppearances sets /NeedAppearances on the interactive form of
	// changed documents.
	NeedAppearances bool
	// UpdateInfo stamps /ModDate and /Producer into the information
	// dictionary of changed documents.
	UpdateInfo bool
	Producer   string
	// VerifyOutput validates the output before returning it.
	VerifyOutput bool
}

// DefaultOptions returns the options used when none are configured.
func DefaultOptions() Options {
	return Options{
		Render:          DefaultRenderOptions(),
		FontFile:        "GreatVibes-Regular.ttf",
		FallbackFont:    fonts.HelveticaOblique,
		NeedAppearances: true,
		UpdateInfo:      true,
		Producer:        metadata.Vendor,
	}
}

// Result is the outcome of an export.
type Result struct {
	Output []byte
	// ChangedPages lists the indices of the pages that received an
	// overlay, in ascending order.
	ChangedPages []int
	Warnings     []*AnnotationDecodeError
}

// Flattener runs exports. It holds only configuration and is safe for
// concurrent use; every export owns its reader, writer and overlays.
type Flattener struct {
	opts       Options
	signatures SignatureSource
	logger     *slog.Logger

	// now and readFile are replaced in tests.
	now      func() time.Time
	readFile func(string) ([]byte, error)
}

// New returns a Flattener. signatures resolves saved signatures and may be
// nil.
func New(opts Options, signatures SignatureSource, logger *slog.Logger) *Flattener {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &Flattener{
		opts:       opts,
		signatures: signatures,
		logger:     logger,
		now:        time.Now,
	}
}

// Assemble burns anns into src and returns the new document. The source
// bytes are kept as the prefix of the output and the changes are written
// as an incremental update. Without live annotations the output is src.
func (f *Flattener) Assemble(ctx context.Context, src []byte, anns []Annotation) (*Result, error) {
	r, err := reader.NewPdfFileReaderFromBytes(src)
	if err != nil {
		return nil, &AssemblyError{Page: -1, Err: fmt.Errorf("read source: %w", err)}
	}

	pageCount := r.GetPageCount()
	byPage := make(map[int][]Annotation)
	needFont := false
	for _, a := range anns {
		if a.Removed {
			continue
		}
		if a.Page < 0 || a.Page >= pageCount {
			return nil, &AssemblyError{Page: a.Page, Err: fmt.Errorf("%w: document has %d pages", ErrPageOutOfRange, pageCount)}
		}
		byPage[a.Page] = append(byPage[a.Page], a)
		if a.Kind == KindSignatureText {
			needFont = true
		}
	}
	if len(byPage) == 0 {
		return &Result{Output: src}, nil
	}
	f.inspectForm(r)

	var font FontResource
	if needFont {
		resolver := &FontResolver{
			Path:     f.opts.FontFile,
			Fallback: f.opts.FallbackFont,
			Logger:   f.logger,
			ReadFile: f.readFile,
		}
		font = resolver.Resolve()
	}

	w := writer.NewIncrementalPdfFileWriter(r)
	renderer := NewRenderer(w, f.opts.Render, f.signatures, f.logger)
	result := &Result{}

	pages := make([]int, 0, len(byPage))
	for idx := range byPage {
		pages = append(pages, idx)
	}
	slices.Sort(pages)

	for _, idx := range pages {
		if err := ctx.Err(); err != nil {
			return nil, &AssemblyError{Page: idx, Err: err}
		}
		page, err := r.GetPage(idx)
		if err != nil {
			return nil, &AssemblyError{Page: idx, Err: err}
		}
		ov, err := renderer.Render(page, byPage[idx], font)
		if err != nil {
			return nil, &AssemblyError{Page: idx, Err: err}
		}
		result.Warnings = append(result.Warnings, ov.Warnings...)
		if ov.Marks == 0 {
			continue
		}
		if err := Composite(w, page, ov); err != nil {
			return nil, &AssemblyError{Page: idx, Err: err}
		}
		result.ChangedPages = append(result.ChangedPages, idx)
	}

	if len(result.ChangedPages) == 0 {
		result.Output = src
		return result, nil
	}

	if f.opts.NeedAppearances {
		if err := w.SetNeedAppearances(); err != nil {
			return nil, &AssemblyError{Page: -1, Err: fmt.Errorf("set NeedAppearances: %w", err)}
		}
	}
	if f.opts.UpdateInfo {
		metadata.Touch(w, f.opts.Producer, f.now())
	}

	out, err := w.Bytes()
	if err != nil {
		return nil, &AssemblyError{Page: -1, Err: fmt.Errorf("write: %w", err)}
	}
	if f.opts.VerifyOutput {
		if err := Verify(out, pageCount); err != nil {
			return nil, &AssemblyError{Page: -1, Err: err}
		}
	}
	result.Output = out

	attrs := []any{
		"pages", pageCount,
		"changed", len(result.ChangedPages),
		"warnings", len(result.Warnings),
		"bytes", len(out),
		"image_fit", f.opts.Render.ImageFit.String(),
	}
	if needFont {
		attrs = append(attrs, "font", font.Name(), "fallback_font", font.IsFallback())
	}
	f.logger.Info("document flattened", attrs...)
	return result, nil
}

// inspectForm logs what an export does to the interactive form. Fields
// are left in place; existing signatures stop verifying once pages change.
func (f *Flattener) inspectForm(r *reader.PdfFileReader) {
	if r.AcroForm == nil {
		return
	}
	acro, err := form.Read(r, r.AcroForm)
	if err != nil {
		f.logger.Warn("form unreadable", "error", err)
		return
	}
	if acro.HasSignatures() {
		f.logger.Warn("document is signed, flattening invalidates its signatures",
			"fields", len(acro.Fields))
		return
	}
	f.logger.Debug("form preserved", "fields", len(acro.Fields))
}
