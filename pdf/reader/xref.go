package reader

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"io"
	"slices"
	"strconv"

	"github.com/georgepadayatti/pdfflatten/pdf/generic"
)

// XRefType represents different types of cross-reference entries.
type XRefType int

const (
	// XRefTypeFree represents a freeing instruction.
	XRefTypeFree XRefType = iota
	// XRefTypeStandard represents a regular top-level object.
	XRefTypeStandard
	// XRefTypeInObjStream represents an object that's part of an object stream.
	XRefTypeInObjStream
)

// String returns the string representation of the XRef type.
func (t XRefType) String() string {
	switch t {
	case XRefTypeFree:
		return "free"
	case XRefTypeStandard:
		return "standard"
	case XRefTypeInObjStream:
		return "in_obj_stream"
	default:
		return "unknown"
	}
}

// XRefEntry is one row of a cross-reference section.
type XRefEntry struct {
	ObjectNumber int
	Type         XRefType

	// Offset is the byte offset for standard entries and the next free
	// object number for free entries.
	Offset     int64
	Generation int

	// Set for objects stored in an object stream.
	ObjStream     int
	IndexInStream int
}

// InUse reports whether the entry points at a live object.
func (e *XRefEntry) InUse() bool {
	return e.Type != XRefTypeFree
}

// XRefSection is one cross-reference table or stream together with its
// trailer.
type XRefSection struct {
	Offset   int64
	IsStream bool
	Entries  []*XRefEntry
	Trailer  *generic.TrailerDictionary
}

// parseXRefTable parses a classic table starting at the "xref" keyword.
func parseXRefTable(data []byte, offset int64) (*XRefSection, error) {
	pos := int(offset) + len("xref")
	section := &XRefSection{Offset: offset}

	for {
		pos = skipSpace(data, pos)
		if bytes.HasPrefix(data[pos:], []byte("trailer")) {
			pos += len("trailer")
			break
		}

		startObj, next, err := readUint(data, pos)
		if err != nil {
			return nil, fmt.Errorf("%w: subsection start: %v", ErrInvalidXRef, err)
		}
		count, next, err := readUint(data, skipSpace(data, next))
		if err != nil {
			return nil, fmt.Errorf("%w: subsection count: %v", ErrInvalidXRef, err)
		}
		pos = next

		for i := 0; i < count; i++ {
			pos = skipSpace(data, pos)
			// nnnnnnnnnn ggggg n
			if pos+18 > len(data) {
				return nil, fmt.Errorf("%w: truncated entry", ErrInvalidXRef)
			}
			off, err := strconv.ParseInt(string(data[pos:pos+10]), 10, 64)
			if err != nil {
				return nil, fmt.Errorf("%w: entry offset: %v", ErrInvalidXRef, err)
			}
			gen, err := strconv.Atoi(string(data[pos+11 : pos+16]))
			if err != nil {
				return nil, fmt.Errorf("%w: entry generation: %v", ErrInvalidXRef, err)
			}
			entry := &XRefEntry{ObjectNumber: startObj + i, Offset: off, Generation: gen}
			switch data[pos+17] {
			case 'n':
				entry.Type = XRefTypeStandard
			case 'f':
				entry.Type = XRefTypeFree
			default:
				return nil, fmt.Errorf("%w: entry type %q", ErrInvalidXRef, data[pos+17])
			}
			section.Entries = append(section.Entries, entry)
			pos += 18
		}
	}

	p := generic.NewParserFromBytes(data[pos:])
	obj, err := p.ParseObjectOrReference()
	if err != nil {
		return nil, fmt.Errorf("failed to parse trailer: %w", err)
	}
	dict, ok := obj.(*generic.DictionaryObject)
	if !ok {
		return nil, fmt.Errorf("%w: trailer must be dictionary", ErrInvalidXRef)
	}
	section.Trailer = &generic.TrailerDictionary{DictionaryObject: dict}
	return section, nil
}

// parseXRefStream reads the entries of a decoded cross-reference stream.
func parseXRefStream(stream *generic.StreamObject, offset int64) (*XRefSection, error) {
	dict := stream.Dictionary
	data := stream.GetDecodedData()

	wArray := dict.GetArray("W")
	if len(wArray) != 3 {
		return nil, fmt.Errorf("%w: invalid W array", ErrInvalidXRef)
	}
	var w [3]int
	for i, v := range wArray {
		n, ok := v.(generic.IntegerObject)
		if !ok || n < 0 || n > 8 {
			return nil, fmt.Errorf("%w: invalid W array", ErrInvalidXRef)
		}
		w[i] = int(n)
	}
	entrySize := w[0] + w[1] + w[2]
	if entrySize == 0 {
		return nil, fmt.Errorf("%w: zero entry size", ErrInvalidXRef)
	}

	var index []int
	if arr := dict.GetArray("Index"); arr != nil {
		for _, v := range arr {
			if n, ok := v.(generic.IntegerObject); ok {
				index = append(index, int(n))
			}
		}
	} else if size, ok := dict.GetInt("Size"); ok {
		index = []int{0, int(size)}
	}

	section := &XRefSection{
		Offset:   offset,
		IsStream: true,
		Trailer:  &generic.TrailerDictionary{DictionaryObject: dict},
	}
	pos := 0
	for i := 0; i+1 < len(index); i += 2 {
		for j := 0; j < index[i+1]; j++ {
			if pos+entrySize > len(data) {
				return section, nil
			}
			row := data[pos : pos+entrySize]
			pos += entrySize

			typ := int64(1)
			if w[0] > 0 {
				typ = readXRefField(row, 0, w[0])
			}
			f2 := readXRefField(row, w[0], w[1])
			f3 := readXRefField(row, w[0]+w[1], w[2])

			entry := &XRefEntry{ObjectNumber: index[i] + j}
			switch typ {
			case 0:
				entry.Type = XRefTypeFree
				entry.Offset, entry.Generation = f2, int(f3)
			case 1:
				entry.Type = XRefTypeStandard
				entry.Offset, entry.Generation = f2, int(f3)
			case 2:
				entry.Type = XRefTypeInObjStream
				entry.ObjStream, entry.IndexInStream = int(f2), int(f3)
			default:
				// Unknown types are treated as null references.
				entry.Type = XRefTypeFree
			}
			section.Entries = append(section.Entries, entry)
		}
	}
	return section, nil
}

func readXRefField(data []byte, offset, width int) int64 {
	var value int64
	for i := 0; i < width; i++ {
		value = value<<8 | int64(data[offset+i])
	}
	return value
}

// objectStream is a parsed /Type /ObjStm stream.
type objectStream struct {
	data    []byte
	first   int
	numbers []int
	offsets []int
}

func parseObjectStream(stream *generic.StreamObject) (*objectStream, error) {
	n, ok := stream.Dictionary.GetInt("N")
	if !ok {
		return nil, fmt.Errorf("%w: object stream missing /N", ErrInvalidPDF)
	}
	first, ok := stream.Dictionary.GetInt("First")
	data := stream.GetDecodedData()
	if !ok || first < 0 || int(first) > len(data) {
		return nil, fmt.Errorf("%w: object stream missing /First", ErrInvalidPDF)
	}

	os := &objectStream{data: data, first: int(first)}
	p := generic.NewParserFromBytes(data[:first])
	for i := int64(0); i < n; i++ {
		num, err1 := p.ParseObject()
		off, err2 := p.ParseObject()
		numInt, ok1 := num.(generic.IntegerObject)
		offInt, ok2 := off.(generic.IntegerObject)
		if err1 != nil || err2 != nil || !ok1 || !ok2 {
			return nil, fmt.Errorf("%w: object stream header entry %d", ErrInvalidPDF, i)
		}
		os.numbers = append(os.numbers, int(numInt))
		os.offsets = append(os.offsets, int(offInt))
	}
	return os, nil
}

// object parses the object at index, checking it has the expected number.
func (os *objectStream) object(objNum, index int) (generic.PdfObject, error) {
	if index < 0 || index >= len(os.offsets) || os.numbers[index] != objNum {
		// Some writers get the index wrong; fall back to a lookup.
		index = slices.Index(os.numbers, objNum)
		if index < 0 {
			return nil, fmt.Errorf("%w: object %d not in object stream", ErrObjectNotFound, objNum)
		}
	}
	start := os.first + os.offsets[index]
	if start >= len(os.data) {
		return nil, fmt.Errorf("%w: object %d data out of bounds", ErrInvalidPDF, objNum)
	}
	return generic.NewParserFromBytes(os.data[start:]).ParseObjectOrReference()
}

// WriteXRefTable writes a classic cross-reference table. Entries must be
// sorted by object number; consecutive runs become subsections.
func WriteXRefTable(w io.Writer, entries []*XRefEntry) error {
	if _, err := io.WriteString(w, "xref\n"); err != nil {
		return err
	}
	for start := 0; start < len(entries); {
		end := start + 1
		for end < len(entries) && entries[end].ObjectNumber == entries[end-1].ObjectNumber+1 {
			end++
		}
		if _, err := fmt.Fprintf(w, "%d %d\n", entries[start].ObjectNumber, end-start); err != nil {
			return err
		}
		for _, e := range entries[start:end] {
			kind := 'n'
			if e.Type == XRefTypeFree {
				kind = 'f'
			}
			if _, err := fmt.Fprintf(w, "%010d %05d %c\r\n", e.Offset, e.Generation, kind); err != nil {
				return err
			}
		}
		start = end
	}
	return nil
}

// NewXRefStream builds the stream form of a cross-reference section.
// Entries must be sorted by object number. The caller sets /Size, /Root
// and the other trailer keys on the returned dictionary.
func NewXRefStream(entries []*XRefEntry) *generic.StreamObject {
	var maxField2, maxField3 int64
	for _, e := range entries {
		switch e.Type {
		case XRefTypeInObjStream:
			maxField2 = max(maxField2, int64(e.ObjStream))
			maxField3 = max(maxField3, int64(e.IndexInStream))
		default:
			maxField2 = max(maxField2, e.Offset)
			maxField3 = max(maxField3, int64(e.Generation))
		}
	}
	w2, w3 := bytesNeeded(maxField2), bytesNeeded(maxField3)

	var buf bytes.Buffer
	var index generic.ArrayObject
	for start := 0; start < len(entries); {
		end := start + 1
		for end < len(entries) && entries[end].ObjectNumber == entries[end-1].ObjectNumber+1 {
			end++
		}
		index = append(index, generic.IntegerObject(entries[start].ObjectNumber), generic.IntegerObject(end-start))
		for _, e := range entries[start:end] {
			buf.WriteByte(byte(e.Type))
			if e.Type == XRefTypeInObjStream {
				writeField(&buf, int64(e.ObjStream), w2)
				writeField(&buf, int64(e.IndexInStream), w3)
			} else {
				writeField(&buf, e.Offset, w2)
				writeField(&buf, int64(e.Generation), w3)
			}
		}
		start = end
	}

	dict := generic.NewDictionary()
	dict.Set("Type", generic.NameObject("XRef"))
	dict.Set("W", generic.NewArray(generic.IntegerObject(1), generic.IntegerObject(w2), generic.IntegerObject(w3)))
	dict.Set("Index", index)
	return generic.NewStream(dict, buf.Bytes())
}

func bytesNeeded(n int64) int {
	width := 1
	for n > 0xFF {
		width++
		n >>= 8
	}
	return width
}

func writeField(w *bytes.Buffer, value int64, width int) {
	var data [8]byte
	binary.BigEndian.PutUint64(data[:], uint64(value))
	w.Write(data[8-width:])
}

func skipSpace(data []byte, pos int) int {
	for pos < len(data) && generic.IsWhitespace(data[pos]) {
		pos++
	}
	return pos
}

func readUint(data []byte, pos int) (int, int, error) {
	start := pos
	for pos < len(data) && data[pos] >= '0' && data[pos] <= '9' {
		pos++
	}
	if start == pos {
		return 0, pos, fmt.Errorf("expected number at offset %d", start)
	}
	n, err := strconv.Atoi(string(data[start:pos]))
	return n, pos, err
}
