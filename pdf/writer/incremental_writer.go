// Package writer provides PDF file writing and incremental update support.
// This file contains the IncrementalPdfFileWriter for incremental updates.
package writer

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"slices"

	"golang.org/x/crypto/blake2b"

	"github.com/georgepadayatti/pdfflatten/pdf/generic"
	"github.com/georgepadayatti/pdfflatten/pdf/reader"
)

// Common errors for incremental writer
var (
	ErrNoRoot       = errors.New("document has no catalog")
	ErrPageNotFound = errors.New("page object not found")
)

// trailerKeys are the trailer entries carried into a new section. Keys
// that only make sense for the section they appear in (/XRefStm, /W,
// /Index, /Filter, ...) are dropped.
var trailerKeys = []string{"Size", "Root", "Info", "ID"}

// IncrementalPdfFileWriter handles incremental updates to existing PDFs.
// Incremental updates append modifications to the end of the file, so
// the original bytes are preserved exactly.
type IncrementalPdfFileWriter struct {
	// Reader is the underlying PDF reader
	Reader *reader.PdfFileReader

	// objects contains modified and new objects, by object number
	objects map[int]*generic.IndirectObject

	nextObjNum   int
	originalData []byte
	rootRef      generic.Reference
	infoRef      *generic.Reference

	// streamXRefs writes the new section as a cross-reference stream
	streamXRefs bool
}

// NewIncrementalPdfFileWriter creates an incremental writer from an existing PDF.
func NewIncrementalPdfFileWriter(r *reader.PdfFileReader) *IncrementalPdfFileWriter {
	return &IncrementalPdfFileWriter{
		Reader:       r,
		objects:      make(map[int]*generic.IndirectObject),
		nextObjNum:   r.MaxObjectNumber() + 1,
		originalData: r.Data(),
		rootRef:      r.RootRef,
		infoRef:      r.Trailer.GetInfo(),
		streamXRefs:  r.HasXRefStream,
	}
}

// GetObject retrieves an object by number, preferring modified versions.
func (w *IncrementalPdfFileWriter) GetObject(objNum int) (generic.PdfObject, error) {
	if obj, ok := w.objects[objNum]; ok {
		return obj.Object, nil
	}
	return w.Reader.GetObject(objNum)
}

// GetRoot returns the current document catalog.
func (w *IncrementalPdfFileWriter) GetRoot() (*generic.DictionaryObject, error) {
	if w.rootRef.IsZero() {
		return nil, ErrNoRoot
	}
	obj, err := w.GetObject(w.rootRef.ObjectNumber)
	if err != nil {
		return nil, err
	}
	if dict, ok := obj.(*generic.DictionaryObject); ok {
		return dict, nil
	}
	return nil, fmt.Errorf("%w: root is not a dictionary", ErrNoRoot)
}

// AddObject adds a new object and returns its reference.
func (w *IncrementalPdfFileWriter) AddObject(obj generic.PdfObject) generic.Reference {
	objNum := w.nextObjNum
	w.nextObjNum++
	w.objects[objNum] = generic.NewIndirectObject(objNum, 0, obj)
	return generic.NewReference(objNum, 0)
}

// UpdateObject replaces an existing object in the update section.
func (w *IncrementalPdfFileWriter) UpdateObject(ref generic.Reference, obj generic.PdfObject) {
	w.objects[ref.ObjectNumber] = generic.NewIndirectObject(ref.ObjectNumber, ref.GenerationNumber, obj)
}

// UpdateRoot replaces the document catalog.
func (w *IncrementalPdfFileWriter) UpdateRoot(root *generic.DictionaryObject) {
	w.UpdateObject(w.rootRef, root)
}

// SetInfo writes info as the document information dictionary, replacing
// the existing one in place when there is one.
func (w *IncrementalPdfFileWriter) SetInfo(info *generic.DictionaryObject) generic.Reference {
	if w.infoRef != nil {
		w.UpdateObject(*w.infoRef, info)
		return *w.infoRef
	}
	ref := w.AddObject(info)
	w.infoRef = &ref
	return ref
}

// GetInfo returns the current info dictionary, or nil.
func (w *IncrementalPdfFileWriter) GetInfo() *generic.DictionaryObject {
	if w.infoRef == nil {
		return nil
	}
	obj, err := w.GetObject(w.infoRef.ObjectNumber)
	if err != nil {
		return nil
	}
	dict, _ := obj.(*generic.DictionaryObject)
	return dict
}

// HasChanges reports whether any object has been added or updated.
func (w *IncrementalPdfFileWriter) HasChanges() bool {
	return len(w.objects) > 0
}

// WrapPageContents rewrites a page so that its content array becomes
// [before, original contents..., after] and its /Resources entry becomes
// resources. The original content streams are referenced, not copied.
func (w *IncrementalPdfFileWriter) WrapPageContents(page *reader.PageInfo, before, after generic.Reference, resources *generic.DictionaryObject) error {
	if page == nil || page.Ref.IsZero() {
		return ErrPageNotFound
	}
	obj, err := w.GetObject(page.Ref.ObjectNumber)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrPageNotFound, err)
	}
	current, ok := obj.(*generic.DictionaryObject)
	if !ok {
		return fmt.Errorf("%w: object %d is not a dictionary", ErrPageNotFound, page.Ref.ObjectNumber)
	}

	var contents generic.ArrayObject
	switch c := current.Get("Contents").(type) {
	case nil, generic.NullObject:
	case generic.ArrayObject:
		contents = slices.Clone(c)
	case generic.Reference:
		// The reference may name a stream or an array of streams.
		resolved, err := w.GetObject(c.ObjectNumber)
		if err != nil {
			return fmt.Errorf("page %d contents: %w", page.Index, err)
		}
		if arr, isArray := resolved.(generic.ArrayObject); isArray {
			contents = slices.Clone(arr)
		} else {
			contents = generic.ArrayObject{c}
		}
	default:
		return fmt.Errorf("page %d: unexpected /Contents type %T", page.Index, c)
	}

	updated := current.Copy()
	wrapped := make(generic.ArrayObject, 0, len(contents)+2)
	wrapped = append(wrapped, before)
	wrapped = append(wrapped, contents...)
	wrapped = append(wrapped, after)
	updated.Set("Contents", wrapped)
	updated.Set("Resources", resources)
	w.UpdateObject(page.Ref, updated)
	return nil
}

// SetNeedAppearances sets /NeedAppearances true on the interactive form,
// if the document has one.
func (w *IncrementalPdfFileWriter) SetNeedAppearances() error {
	if w.Reader.AcroForm == nil {
		return nil
	}
	if ref := w.Reader.AcroFormRef; !ref.IsZero() {
		obj, err := w.GetObject(ref.ObjectNumber)
		if err != nil {
			return err
		}
		form, ok := obj.(*generic.DictionaryObject)
		if !ok {
			return fmt.Errorf("AcroForm object %d is not a dictionary", ref.ObjectNumber)
		}
		updated := form.Copy()
		updated.Set("NeedAppearances", generic.BooleanObject(true))
		w.UpdateObject(ref, updated)
		return nil
	}

	root, err := w.GetRoot()
	if err != nil {
		return err
	}
	form := root.GetDict("AcroForm")
	if form == nil {
		return nil
	}
	updatedForm := form.Copy()
	updatedForm.Set("NeedAppearances", generic.BooleanObject(true))
	updatedRoot := root.Copy()
	updatedRoot.Set("AcroForm", updatedForm)
	w.UpdateRoot(updatedRoot)
	return nil
}

// Write writes the document. Without changes the original bytes are
// written unchanged.
func (w *IncrementalPdfFileWriter) Write(out io.Writer) error {
	if !w.HasChanges() {
		_, err := out.Write(w.originalData)
		return err
	}
	data, err := w.Bytes()
	if err != nil {
		return err
	}
	_, err = out.Write(data)
	return err
}

// Bytes returns the original bytes followed by the update section.
func (w *IncrementalPdfFileWriter) Bytes() ([]byte, error) {
	if !w.HasChanges() {
		return bytes.Clone(w.originalData), nil
	}

	var buf bytes.Buffer
	buf.Grow(len(w.originalData) + 4096)
	buf.Write(w.originalData)
	if n := len(w.originalData); n > 0 && w.originalData[n-1] != '\n' && w.originalData[n-1] != '\r' {
		buf.WriteByte('\n')
	}

	nums := make([]int, 0, len(w.objects))
	for num := range w.objects {
		nums = append(nums, num)
	}
	slices.Sort(nums)

	entries := make([]*reader.XRefEntry, 0, len(nums)+1)
	for _, num := range nums {
		obj := w.objects[num]
		entries = append(entries, &reader.XRefEntry{
			ObjectNumber: num,
			Type:         reader.XRefTypeStandard,
			Offset:       int64(buf.Len()),
			Generation:   obj.GenerationNumber,
		})
		if err := obj.Write(&buf); err != nil {
			return nil, generic.NewPdfWriteError(fmt.Sprintf("failed to write object %d", num), err)
		}
	}

	if w.Reader.Repaired {
		// The old xref data cannot be chained to, so this section has to
		// describe every object.
		entries = w.withReaderEntries(entries)
	}

	trailer := w.buildTrailer(buf.Bytes())
	xrefOffset := int64(buf.Len())

	streamForm := w.streamXRefs || hasObjStreamEntries(entries)
	if streamForm {
		if err := w.writeXRefStream(&buf, entries, trailer, xrefOffset); err != nil {
			return nil, err
		}
	} else {
		if err := reader.WriteXRefTable(&buf, entries); err != nil {
			return nil, generic.NewPdfWriteError("failed to write xref table", err)
		}
		buf.WriteString("trailer\n")
		if err := trailer.Write(&buf); err != nil {
			return nil, generic.NewPdfWriteError("failed to write trailer", err)
		}
		buf.WriteByte('\n')
	}
	fmt.Fprintf(&buf, "startxref\n%d\n%%%%EOF\n", xrefOffset)
	return buf.Bytes(), nil
}

func (w *IncrementalPdfFileWriter) withReaderEntries(entries []*reader.XRefEntry) []*reader.XRefEntry {
	have := make(map[int]bool, len(entries))
	for _, e := range entries {
		have[e.ObjectNumber] = true
	}
	all := append([]*reader.XRefEntry{{ObjectNumber: 0, Type: reader.XRefTypeFree, Generation: 65535}}, entries...)
	for num, e := range w.Reader.XRef {
		if !have[num] && num != 0 && e.InUse() {
			all = append(all, e)
		}
	}
	slices.SortFunc(all, func(a, b *reader.XRefEntry) int { return a.ObjectNumber - b.ObjectNumber })
	return all
}

func hasObjStreamEntries(entries []*reader.XRefEntry) bool {
	for _, e := range entries {
		if e.Type == reader.XRefTypeInObjStream {
			return true
		}
	}
	return false
}

// buildTrailer assembles the new trailer from the whitelisted keys of the
// newest existing one. The second /ID element is a digest of the output,
// so identical inputs produce identical files.
func (w *IncrementalPdfFileWriter) buildTrailer(body []byte) *generic.DictionaryObject {
	trailer := generic.NewDictionary()
	for _, key := range trailerKeys {
		if v := w.Reader.Trailer.Get(key); v != nil {
			trailer.Set(key, v)
		}
	}
	trailer.Set("Size", generic.IntegerObject(w.nextObjNum))
	trailer.Set("Root", w.rootRef)
	if w.infoRef != nil {
		trailer.Set("Info", *w.infoRef)
	}

	sum := blake2b.Sum256(body)
	first := sum[:16]
	if ids := w.Reader.Trailer.GetArray("ID"); len(ids) > 0 {
		if s, ok := ids[0].(*generic.StringObject); ok && len(s.Value) > 0 {
			first = s.Value
		}
	}
	trailer.Set("ID", generic.NewArray(generic.NewHexString(first), generic.NewHexString(sum[16:])))

	if !w.Reader.Repaired && len(w.Reader.XRefOffsets) > 0 {
		trailer.Set("Prev", generic.IntegerObject(w.Reader.XRefOffsets[0]))
	}
	return trailer
}

func (w *IncrementalPdfFileWriter) writeXRefStream(buf *bytes.Buffer, entries []*reader.XRefEntry, trailer *generic.DictionaryObject, offset int64) error {
	// The stream describes itself.
	selfNum := w.nextObjNum
	entries = append(entries, &reader.XRefEntry{ObjectNumber: selfNum, Type: reader.XRefTypeStandard, Offset: offset})

	stream := reader.NewXRefStream(entries)
	for _, key := range trailer.Keys() {
		stream.Dictionary.Set(key, trailer.Get(key))
	}
	stream.Dictionary.Set("Size", generic.IntegerObject(selfNum+1))

	if err := generic.NewIndirectObject(selfNum, 0, stream).Write(buf); err != nil {
		return generic.NewPdfWriteError("failed to write xref stream", err)
	}
	return nil
}
