package flatten

import (
	"bytes"
	"errors"
	"fmt"

	"github.com/georgepadayatti/pdfflatten/pdf/content"
	"github.com/georgepadayatti/pdfflatten/pdf/filters"
	"github.com/georgepadayatti/pdfflatten/pdf/generic"
	"github.com/georgepadayatti/pdfflatten/pdf/reader"
	"github.com/georgepadayatti/pdfflatten/pdf/writer"
)

// Composite appends ov to page in w. The existing content streams are
// wrapped in q ... Q and left untouched; the overlay follows them. The
// page gets a fresh resource dictionary holding its own resources and the
// overlay's, with clashing overlay names renamed.
func Composite(w *writer.IncrementalPdfFileWriter, page *reader.PageInfo, ov *OverlayPage) error {
	if page == nil {
		return &CompositeError{Page: -1, Err: writer.ErrPageNotFound}
	}
	if ov == nil || ov.Content == nil {
		return &CompositeError{Page: page.Index, Err: errors.New("empty overlay")}
	}

	merged, renames, err := writer.MergeResources(page.Resources, ov.Resources, w.Reader)
	if err != nil {
		return &CompositeError{Page: page.Index, Err: fmt.Errorf("merge resources: %w", err)}
	}

	overlay := ov.Content.Render()
	if !renames.Empty() {
		cs, err := content.NewParser(overlay).Parse()
		if err != nil {
			return &CompositeError{Page: page.Index, Err: fmt.Errorf("reparse overlay: %w", err)}
		}
		cs.RenameResources(renames.Lookup)
		overlay = cs.Render()
	}

	// The previous stream may end mid-line.
	var after bytes.Buffer
	after.WriteString("\nQ\n")
	after.Write(overlay)
	afterStream, err := filters.NewFlateStream(nil, after.Bytes())
	if err != nil {
		return &CompositeError{Page: page.Index, Err: err}
	}
	beforeRef := w.AddObject(generic.NewStream(nil, []byte("q\n")))
	afterRef := w.AddObject(afterStream)

	if err := w.WrapPageContents(page, beforeRef, afterRef, merged); err != nil {
		return &CompositeError{Page: page.Index, Err: err}
	}
	return nil
}
