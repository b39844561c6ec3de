// Package reader provides PDF file reading and parsing.
package reader

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"regexp"
	"strconv"

	"github.com/georgepadayatti/pdfflatten/pdf/filters"
	"github.com/georgepadayatti/pdfflatten/pdf/generic"
)

// Common errors
var (
	ErrInvalidPDF     = errors.New("invalid PDF file")
	ErrNoXRef         = errors.New("no xref found")
	ErrObjectNotFound = errors.New("object not found")
	ErrInvalidXRef    = errors.New("invalid xref")
	ErrEncrypted      = errors.New("PDF is encrypted")
	ErrPageOutOfRange = errors.New("page index out of range")
)

var (
	headerRegex = regexp.MustCompile(`%PDF-(\d+\.\d+)`)
	objRegex    = regexp.MustCompile(`(?m)(\d+)[ \t\r\n]+(\d+)[ \t\r\n]+obj\b`)
)

// PdfFileReader reads and parses PDF files. The reader never modifies the
// input bytes; it is meant to be used by a single goroutine.
type PdfFileReader struct {
	data    []byte
	Version string
	Trailer *generic.TrailerDictionary
	XRef    map[int]*XRefEntry

	// XRefOffsets lists the xref section offsets, newest first.
	XRefOffsets   []int64
	HasXRefStream bool

	// Repaired is set when the xref data was unusable and the object
	// table was rebuilt by scanning the file.
	Repaired bool

	Root        *generic.DictionaryObject
	RootRef     generic.Reference
	Info        *generic.DictionaryObject
	Pages       []*PageInfo
	AcroForm    *generic.DictionaryObject
	AcroFormRef generic.Reference

	objects    map[int]generic.PdfObject
	objStreams map[int]*objectStream
	loading    map[int]bool
}

// NewPdfFileReader creates a new PDF reader.
func NewPdfFileReader(r io.Reader) (*PdfFileReader, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("failed to read PDF data: %w", err)
	}
	return NewPdfFileReaderFromBytes(data)
}

// NewPdfFileReaderFromBytes creates a new PDF reader from bytes.
func NewPdfFileReaderFromBytes(data []byte) (*PdfFileReader, error) {
	r := &PdfFileReader{
		data:       data,
		XRef:       make(map[int]*XRefEntry),
		objects:    make(map[int]generic.PdfObject),
		objStreams: make(map[int]*objectStream),
		loading:    make(map[int]bool),
	}
	if err := r.parse(); err != nil {
		return nil, err
	}
	return r, nil
}

func (r *PdfFileReader) parse() error {
	if err := r.parseHeader(); err != nil {
		return err
	}

	err := r.findAndParseXRef()
	if err == nil {
		err = r.load()
	}
	if err == nil || errors.Is(err, ErrEncrypted) {
		return err
	}

	if rerr := r.reconstructXRef(); rerr != nil {
		return fmt.Errorf("%w: %v", ErrInvalidPDF, err)
	}
	return r.load()
}

func (r *PdfFileReader) load() error {
	if r.Trailer.Has("Encrypt") {
		return ErrEncrypted
	}
	return r.loadDocumentStructure()
}

func (r *PdfFileReader) parseHeader() error {
	if len(r.data) < 8 {
		return ErrInvalidPDF
	}
	match := headerRegex.FindSubmatch(r.data[:min(1024, len(r.data))])
	if match == nil {
		return fmt.Errorf("%w: missing PDF header", ErrInvalidPDF)
	}
	r.Version = string(match[1])
	return nil
}

func (r *PdfFileReader) findAndParseXRef() error {
	tail := r.data[max(0, len(r.data)-2048):]
	idx := bytes.LastIndex(tail, []byte("startxref"))
	if idx == -1 {
		return ErrNoXRef
	}
	pos := skipSpace(tail, idx+len("startxref"))
	offset, _, err := readUint(tail, pos)
	if err != nil {
		return fmt.Errorf("%w: invalid startxref: %v", ErrInvalidXRef, err)
	}
	return r.parseXRefChain(int64(offset))
}

// parseXRefChain follows /Prev links from the newest section backwards.
// Entries from newer sections take precedence.
func (r *PdfFileReader) parseXRefChain(offset int64) error {
	visited := make(map[int64]bool)
	for {
		if visited[offset] {
			return nil
		}
		visited[offset] = true

		section, err := r.readXRefSection(offset)
		if err != nil {
			return err
		}
		r.XRefOffsets = append(r.XRefOffsets, offset)
		if r.Trailer == nil {
			r.Trailer = section.Trailer
		}
		r.addEntries(section)

		// Hybrid files carry a supplementary xref stream.
		if stm, ok := section.Trailer.GetInt("XRefStm"); ok && !visited[stm] {
			visited[stm] = true
			if extra, err := r.readXRefSection(stm); err == nil {
				r.addEntries(extra)
			}
		}

		prev, ok := section.Trailer.GetPrev()
		if !ok {
			return nil
		}
		offset = prev
	}
}

func (r *PdfFileReader) addEntries(section *XRefSection) {
	for _, e := range section.Entries {
		if _, exists := r.XRef[e.ObjectNumber]; !exists {
			r.XRef[e.ObjectNumber] = e
		}
	}
}

func (r *PdfFileReader) readXRefSection(offset int64) (*XRefSection, error) {
	if offset < 0 || offset >= int64(len(r.data)) {
		return nil, fmt.Errorf("%w: xref offset %d out of bounds", ErrInvalidXRef, offset)
	}
	pos := skipSpace(r.data, int(offset))
	if bytes.HasPrefix(r.data[pos:], []byte("xref")) {
		return parseXRefTable(r.data, int64(pos))
	}

	obj, err := generic.NewParserFromBytes(r.data[pos:]).ParseIndirectObject()
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidXRef, err)
	}
	stream, ok := obj.Object.(*generic.StreamObject)
	if !ok || stream.Dictionary.GetName("Type") != "XRef" {
		return nil, fmt.Errorf("%w: no xref table or stream at offset %d", ErrInvalidXRef, offset)
	}
	decoded, err := filters.Decode(stream.Data, stream.Dictionary)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidXRef, err)
	}
	stream.Decoded = decoded
	r.HasXRefStream = true
	return parseXRefStream(stream, offset)
}

// reconstructXRef rebuilds the object table by scanning for object
// headers, later definitions winning, and takes the last trailer found.
func (r *PdfFileReader) reconstructXRef() error {
	r.XRef = make(map[int]*XRefEntry)
	r.XRefOffsets = nil
	r.Trailer = nil
	r.HasXRefStream = false
	r.Pages = nil
	clear(r.objects)
	clear(r.objStreams)

	for _, m := range objRegex.FindAllSubmatchIndex(r.data, -1) {
		if m[0] > 0 && !generic.IsWhitespace(r.data[m[0]-1]) && !generic.IsDelimiter(r.data[m[0]-1]) {
			continue
		}
		num, err1 := strconv.Atoi(string(r.data[m[2]:m[3]]))
		gen, err2 := strconv.Atoi(string(r.data[m[4]:m[5]]))
		if err1 != nil || err2 != nil {
			continue
		}
		r.XRef[num] = &XRefEntry{ObjectNumber: num, Type: XRefTypeStandard, Offset: int64(m[0]), Generation: gen}
	}
	if len(r.XRef) == 0 {
		return fmt.Errorf("%w: no objects found", ErrInvalidPDF)
	}

	// Members of object streams have no header of their own.
	top := make([]int, 0, len(r.XRef))
	for num := range r.XRef {
		top = append(top, num)
	}
	for _, num := range top {
		obj, err := r.GetObject(num)
		if err != nil {
			continue
		}
		stream, ok := obj.(*generic.StreamObject)
		if !ok || stream.Dictionary.GetName("Type") != "ObjStm" || r.DecodeStream(stream) != nil {
			continue
		}
		os, err := parseObjectStream(stream)
		if err != nil {
			continue
		}
		r.objStreams[num] = os
		for i, member := range os.numbers {
			if _, exists := r.XRef[member]; !exists {
				r.XRef[member] = &XRefEntry{ObjectNumber: member, Type: XRefTypeInObjStream, ObjStream: num, IndexInStream: i}
			}
		}
	}

	if idx := bytes.LastIndex(r.data, []byte("trailer")); idx >= 0 {
		p := generic.NewParserFromBytes(r.data[idx+len("trailer"):])
		if obj, err := p.ParseObjectOrReference(); err == nil {
			if dict, ok := obj.(*generic.DictionaryObject); ok {
				r.Trailer = &generic.TrailerDictionary{DictionaryObject: dict}
			}
		}
	}
	if r.Trailer == nil {
		r.Trailer = generic.NewTrailer()
	}
	if r.Trailer.GetRoot() == nil {
		for num := range r.XRef {
			obj, err := r.GetObject(num)
			if err != nil {
				continue
			}
			if dict, ok := obj.(*generic.DictionaryObject); ok && dict.GetName("Type") == "Catalog" {
				r.Trailer.Set("Root", generic.NewReference(num, r.XRef[num].Generation))
				break
			}
		}
	}
	if r.Trailer.GetRoot() == nil {
		return fmt.Errorf("%w: no document catalog", ErrInvalidPDF)
	}

	highest := 0
	for num := range r.XRef {
		highest = max(highest, num)
	}
	r.Trailer.Set("Size", generic.IntegerObject(highest+1))
	r.Trailer.Delete("Prev")
	r.Repaired = true
	return nil
}

func (r *PdfFileReader) loadDocumentStructure() error {
	rootRef := r.Trailer.GetRoot()
	if rootRef == nil {
		return fmt.Errorf("%w: missing Root", ErrInvalidPDF)
	}
	root, err := r.GetDict(*rootRef)
	if err != nil {
		return fmt.Errorf("failed to load Root: %w", err)
	}
	r.Root = root
	r.RootRef = *rootRef

	if infoRef := r.Trailer.GetInfo(); infoRef != nil {
		if info, err := r.GetDict(*infoRef); err == nil {
			r.Info = info
		}
	}

	if err := r.loadPages(); err != nil {
		return fmt.Errorf("failed to load pages: %w", err)
	}

	switch v := r.Root.Get("AcroForm").(type) {
	case generic.Reference:
		if form, err := r.GetDict(v); err == nil {
			r.AcroForm = form
			r.AcroFormRef = v
		}
	case *generic.DictionaryObject:
		r.AcroForm = v
	}
	return nil
}

// GetObject retrieves an object by object number. Objects are cached.
func (r *PdfFileReader) GetObject(objNum int) (generic.PdfObject, error) {
	if obj, ok := r.objects[objNum]; ok {
		return obj, nil
	}
	entry, ok := r.XRef[objNum]
	if !ok || !entry.InUse() {
		return nil, fmt.Errorf("%w: object %d", ErrObjectNotFound, objNum)
	}
	if r.loading[objNum] {
		return nil, fmt.Errorf("%w: object %d refers to itself", ErrInvalidPDF, objNum)
	}
	r.loading[objNum] = true
	defer delete(r.loading, objNum)

	var obj generic.PdfObject
	var err error
	if entry.Type == XRefTypeInObjStream {
		obj, err = r.getObjectFromStream(objNum, entry.ObjStream, entry.IndexInStream)
	} else {
		obj, err = r.getObjectAtOffset(objNum, entry.Offset)
	}
	if err != nil {
		return nil, err
	}
	r.objects[objNum] = obj
	return obj, nil
}

func (r *PdfFileReader) getObjectAtOffset(objNum int, offset int64) (generic.PdfObject, error) {
	if offset < 0 || offset >= int64(len(r.data)) {
		return nil, fmt.Errorf("%w: object %d offset out of bounds", ErrObjectNotFound, objNum)
	}
	p := generic.NewParserFromBytes(r.data[offset:])
	p.ResolveLength = r.resolveLength
	indirect, err := p.ParseIndirectObject()
	if err != nil {
		return nil, fmt.Errorf("object %d: %w", objNum, err)
	}
	if indirect.ObjectNumber != objNum {
		return nil, fmt.Errorf("%w: expected object %d at offset %d, found %d", ErrInvalidXRef, objNum, offset, indirect.ObjectNumber)
	}
	return indirect.Object, nil
}

func (r *PdfFileReader) resolveLength(ref generic.Reference) (int64, error) {
	obj, err := r.GetObject(ref.ObjectNumber)
	if err != nil {
		return 0, err
	}
	n, ok := generic.NumberValue(obj)
	if !ok {
		return 0, fmt.Errorf("%w: stream length is not a number", ErrInvalidPDF)
	}
	return int64(n), nil
}

func (r *PdfFileReader) getObjectFromStream(objNum, streamNum, index int) (generic.PdfObject, error) {
	os, ok := r.objStreams[streamNum]
	if !ok {
		obj, err := r.GetObject(streamNum)
		if err != nil {
			return nil, err
		}
		stream, ok := obj.(*generic.StreamObject)
		if !ok {
			return nil, fmt.Errorf("%w: object stream %d is not a stream", ErrInvalidPDF, streamNum)
		}
		if err := r.DecodeStream(stream); err != nil {
			return nil, err
		}
		os, err = parseObjectStream(stream)
		if err != nil {
			return nil, err
		}
		r.objStreams[streamNum] = os
	}
	return os.object(objNum, index)
}

// DecodeStream fills in the decoded view of a stream.
func (r *PdfFileReader) DecodeStream(stream *generic.StreamObject) error {
	if stream.Decoded != nil {
		return nil
	}
	decoded, err := filters.Decode(stream.Data, stream.Dictionary)
	if err != nil {
		return generic.NewPdfStreamError("failed to decode stream", err)
	}
	stream.Decoded = decoded
	return nil
}

// ResolveReference resolves a reference to its actual object. Direct
// objects are returned unchanged.
func (r *PdfFileReader) ResolveReference(obj generic.PdfObject) (generic.PdfObject, error) {
	for range 32 {
		ref, ok := obj.(generic.Reference)
		if !ok {
			return obj, nil
		}
		var err error
		if obj, err = r.GetObject(ref.ObjectNumber); err != nil {
			return nil, err
		}
	}
	return nil, fmt.Errorf("%w: reference chain too long", ErrInvalidPDF)
}

// GetDict resolves ref and requires a dictionary.
func (r *PdfFileReader) GetDict(ref generic.Reference) (*generic.DictionaryObject, error) {
	obj, err := r.GetObject(ref.ObjectNumber)
	if err != nil {
		return nil, err
	}
	dict, ok := obj.(*generic.DictionaryObject)
	if !ok {
		return nil, fmt.Errorf("%w: object %d is not a dictionary", ErrInvalidPDF, ref.ObjectNumber)
	}
	return dict, nil
}

// ResolveDict resolves obj to a dictionary, or nil.
func (r *PdfFileReader) ResolveDict(obj generic.PdfObject) *generic.DictionaryObject {
	resolved, err := r.ResolveReference(obj)
	if err != nil {
		return nil
	}
	dict, _ := resolved.(*generic.DictionaryObject)
	return dict
}

// MaxObjectNumber returns the highest object number the file defines or
// declares through /Size.
func (r *PdfFileReader) MaxObjectNumber() int {
	highest := int(r.Trailer.GetSize()) - 1
	for num := range r.XRef {
		highest = max(highest, num)
	}
	return highest
}

// GetPageCount returns the number of pages.
func (r *PdfFileReader) GetPageCount() int {
	return len(r.Pages)
}

// GetPage returns a page by index (0-based).
func (r *PdfFileReader) GetPage(index int) (*PageInfo, error) {
	if index < 0 || index >= len(r.Pages) {
		return nil, fmt.Errorf("%w: %d of %d", ErrPageOutOfRange, index, len(r.Pages))
	}
	return r.Pages[index], nil
}

// Data returns the original file bytes.
func (r *PdfFileReader) Data() []byte {
	return r.data
}
