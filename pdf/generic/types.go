// Package generic provides the PDF object model shared by the reader and
// the incremental writer.
package generic

import (
	"bytes"
	"encoding/hex"
	"fmt"
	"io"
	"strconv"
	"strings"
	"unicode/utf16"
)

// PdfObject is the base interface for all PDF objects.
type PdfObject interface {
	// Write serializes the object in PDF syntax.
	Write(w io.Writer) error
	// Clone creates a deep copy of the object. References are copied as
	// references, the objects they point to are not followed.
	Clone() PdfObject
}

// Reference is an indirect reference ("12 0 R").
type Reference struct {
	ObjectNumber     int
	GenerationNumber int
}

// NewReference creates a new reference.
func NewReference(objNum, genNum int) Reference {
	return Reference{ObjectNumber: objNum, GenerationNumber: genNum}
}

func (r Reference) Write(w io.Writer) error {
	_, err := fmt.Fprintf(w, "%d %d R", r.ObjectNumber, r.GenerationNumber)
	return err
}

func (r Reference) Clone() PdfObject { return r }

// IsZero reports whether r is the zero reference.
func (r Reference) IsZero() bool { return r.ObjectNumber == 0 }

func (r Reference) String() string {
	return fmt.Sprintf("%d %d R", r.ObjectNumber, r.GenerationNumber)
}

// IndirectObject is an object definition ("12 0 obj ... endobj").
type IndirectObject struct {
	ObjectNumber     int
	GenerationNumber int
	Object           PdfObject
}

// NewIndirectObject creates a new indirect object.
func NewIndirectObject(objNum, genNum int, obj PdfObject) *IndirectObject {
	return &IndirectObject{ObjectNumber: objNum, GenerationNumber: genNum, Object: obj}
}

func (i *IndirectObject) Write(w io.Writer) error {
	if _, err := fmt.Fprintf(w, "%d %d obj\n", i.ObjectNumber, i.GenerationNumber); err != nil {
		return err
	}
	if i.Object != nil {
		if err := i.Object.Write(w); err != nil {
			return err
		}
	} else if _, err := io.WriteString(w, "null"); err != nil {
		return err
	}
	_, err := io.WriteString(w, "\nendobj\n")
	return err
}

func (i *IndirectObject) Clone() PdfObject {
	var obj PdfObject
	if i.Object != nil {
		obj = i.Object.Clone()
	}
	return &IndirectObject{ObjectNumber: i.ObjectNumber, GenerationNumber: i.GenerationNumber, Object: obj}
}

// Reference returns a reference to this object.
func (i *IndirectObject) Reference() Reference {
	return Reference{ObjectNumber: i.ObjectNumber, GenerationNumber: i.GenerationNumber}
}

// NullObject is the PDF null value.
type NullObject struct{}

func (NullObject) Write(w io.Writer) error {
	_, err := io.WriteString(w, "null")
	return err
}

func (NullObject) Clone() PdfObject { return NullObject{} }

// BooleanObject is a PDF boolean.
type BooleanObject bool

func (b BooleanObject) Write(w io.Writer) error {
	_, err := io.WriteString(w, strconv.FormatBool(bool(b)))
	return err
}

func (b BooleanObject) Clone() PdfObject { return b }

// IntegerObject is a PDF integer.
type IntegerObject int64

func (i IntegerObject) Write(w io.Writer) error {
	_, err := io.WriteString(w, strconv.FormatInt(int64(i), 10))
	return err
}

func (i IntegerObject) Clone() PdfObject { return i }

// RealObject is a PDF real number.
type RealObject float64

func (r RealObject) Write(w io.Writer) error {
	_, err := io.WriteString(w, FormatReal(float64(r)))
	return err
}

func (r RealObject) Clone() PdfObject { return r }

// FormatReal formats a number the way PDF writers conventionally do:
// fixed point, at most four decimals, no trailing zeros.
func FormatReal(v float64) string {
	s := strconv.FormatFloat(v, 'f', 4, 64)
	if strings.ContainsRune(s, '.') {
		s = strings.TrimRight(s, "0")
		s = strings.TrimSuffix(s, ".")
	}
	if s == "-0" {
		return "0"
	}
	return s
}

// NameObject is a PDF name without the leading slash.
type NameObject string

func (n NameObject) Write(w io.Writer) error {
	var buf bytes.Buffer
	buf.WriteByte('/')
	for i := 0; i < len(n); i++ {
		c := n[i]
		if c < '!' || c > '~' || c == '#' || IsDelimiter(c) {
			fmt.Fprintf(&buf, "#%02X", c)
			continue
		}
		buf.WriteByte(c)
	}
	_, err := w.Write(buf.Bytes())
	return err
}

func (n NameObject) Clone() PdfObject { return n }

func (n NameObject) String() string { return string(n) }

// StringObject is a PDF string, literal or hexadecimal.
type StringObject struct {
	Value []byte
	IsHex bool
}

// NewLiteralString creates a literal string.
func NewLiteralString(s string) *StringObject {
	return &StringObject{Value: []byte(s)}
}

// NewHexString creates a hex string.
func NewHexString(data []byte) *StringObject {
	return &StringObject{Value: data, IsHex: true}
}

// NewTextString creates a text string, UTF-16BE with a byte order mark
// when the text is not representable in Latin-1.
func NewTextString(s string) *StringObject {
	for _, r := range s {
		if r > 0xFF {
			units := utf16.Encode([]rune(s))
			data := make([]byte, 2, 2+2*len(units))
			data[0], data[1] = 0xFE, 0xFF
			for _, u := range units {
				data = append(data, byte(u>>8), byte(u))
			}
			return &StringObject{Value: data}
		}
	}
	data := make([]byte, 0, len(s))
	for _, r := range s {
		data = append(data, byte(r))
	}
	return &StringObject{Value: data}
}

func (s *StringObject) Write(w io.Writer) error {
	if s.IsHex {
		_, err := fmt.Fprintf(w, "<%s>", strings.ToUpper(hex.EncodeToString(s.Value)))
		return err
	}
	_, err := w.Write(EscapeLiteral(s.Value))
	return err
}

func (s *StringObject) Clone() PdfObject {
	return &StringObject{Value: bytes.Clone(s.Value), IsHex: s.IsHex}
}

// Text decodes the string as a PDF text string.
func (s *StringObject) Text() string {
	if len(s.Value) >= 2 && s.Value[0] == 0xFE && s.Value[1] == 0xFF {
		units := make([]uint16, 0, (len(s.Value)-2)/2)
		for i := 2; i+1 < len(s.Value); i += 2 {
			units = append(units, uint16(s.Value[i])<<8|uint16(s.Value[i+1]))
		}
		return string(utf16.Decode(units))
	}
	runes := make([]rune, len(s.Value))
	for i, b := range s.Value {
		runes[i] = rune(b)
	}
	return string(runes)
}

// EscapeLiteral renders data as a parenthesised literal string.
func EscapeLiteral(data []byte) []byte {
	var buf bytes.Buffer
	buf.WriteByte('(')
	for _, b := range data {
		switch b {
		case '\\', '(', ')':
			buf.WriteByte('\\')
			buf.WriteByte(b)
		case '\n':
			buf.WriteString(`\n`)
		case '\r':
			buf.WriteString(`\r`)
		case '\t':
			buf.WriteString(`\t`)
		default:
			if b < 32 || b > 126 {
				fmt.Fprintf(&buf, "\\%03o", b)
			} else {
				buf.WriteByte(b)
			}
		}
	}
	buf.WriteByte(')')
	return buf.Bytes()
}

// ArrayObject is a PDF array.
type ArrayObject []PdfObject

// NewArray creates a new array.
func NewArray(items ...PdfObject) ArrayObject {
	return ArrayObject(items)
}

// NewNumberArray creates an array of reals.
func NewNumberArray(values ...float64) ArrayObject {
	arr := make(ArrayObject, len(values))
	for i, v := range values {
		arr[i] = RealObject(v)
	}
	return arr
}

func (a ArrayObject) Write(w io.Writer) error {
	if _, err := io.WriteString(w, "["); err != nil {
		return err
	}
	for i, item := range a {
		if i > 0 {
			if _, err := io.WriteString(w, " "); err != nil {
				return err
			}
		}
		if item == nil {
			item = NullObject{}
		}
		if err := item.Write(w); err != nil {
			return err
		}
	}
	_, err := io.WriteString(w, "]")
	return err
}

func (a ArrayObject) Clone() PdfObject {
	result := make(ArrayObject, len(a))
	for i, item := range a {
		if item != nil {
			result[i] = item.Clone()
		}
	}
	return result
}

// DictionaryObject is a PDF dictionary that keeps insertion order so
// that serialization is deterministic.
type DictionaryObject struct {
	entries map[string]PdfObject
	order   []string
}

// NewDictionary creates an empty dictionary.
func NewDictionary() *DictionaryObject {
	return &DictionaryObject{entries: make(map[string]PdfObject)}
}

func (d *DictionaryObject) Write(w io.Writer) error {
	if _, err := io.WriteString(w, "<<"); err != nil {
		return err
	}
	for _, key := range d.order {
		if _, err := io.WriteString(w, "\n"); err != nil {
			return err
		}
		if err := NameObject(key).Write(w); err != nil {
			return err
		}
		if _, err := io.WriteString(w, " "); err != nil {
			return err
		}
		val := d.entries[key]
		if val == nil {
			val = NullObject{}
		}
		if err := val.Write(w); err != nil {
			return err
		}
	}
	_, err := io.WriteString(w, "\n>>")
	return err
}

func (d *DictionaryObject) Clone() PdfObject {
	result := NewDictionary()
	for _, key := range d.order {
		var v PdfObject
		if d.entries[key] != nil {
			v = d.entries[key].Clone()
		}
		result.Set(key, v)
	}
	return result
}

// Copy returns a shallow copy: the entries are shared, the key set is not.
func (d *DictionaryObject) Copy() *DictionaryObject {
	result := NewDictionary()
	for _, key := range d.order {
		result.Set(key, d.entries[key])
	}
	return result
}

// Set sets a key, appending it to the key order if new.
func (d *DictionaryObject) Set(key string, value PdfObject) {
	if _, exists := d.entries[key]; !exists {
		d.order = append(d.order, key)
	}
	d.entries[key] = value
}

// Get returns the value for a key, or nil.
func (d *DictionaryObject) Get(key string) PdfObject {
	if d == nil {
		return nil
	}
	return d.entries[key]
}

// GetName returns a name value, or "".
func (d *DictionaryObject) GetName(key string) string {
	if name, ok := d.Get(key).(NameObject); ok {
		return string(name)
	}
	return ""
}

// GetInt returns an integer value.
func (d *DictionaryObject) GetInt(key string) (int64, bool) {
	if i, ok := d.Get(key).(IntegerObject); ok {
		return int64(i), true
	}
	return 0, false
}

// GetNumber returns an integer or real value as float64.
func (d *DictionaryObject) GetNumber(key string) (float64, bool) {
	return NumberValue(d.Get(key))
}

// GetArray returns a direct array value.
func (d *DictionaryObject) GetArray(key string) ArrayObject {
	if arr, ok := d.Get(key).(ArrayObject); ok {
		return arr
	}
	return nil
}

// GetDict returns a direct dictionary value.
func (d *DictionaryObject) GetDict(key string) *DictionaryObject {
	if dict, ok := d.Get(key).(*DictionaryObject); ok {
		return dict
	}
	return nil
}

// GetReference returns the value for key when it is an indirect reference.
func (d *DictionaryObject) GetReference(key string) (Reference, bool) {
	ref, ok := d.Get(key).(Reference)
	return ref, ok
}

// Delete removes a key.
func (d *DictionaryObject) Delete(key string) {
	if _, exists := d.entries[key]; !exists {
		return
	}
	delete(d.entries, key)
	for i, k := range d.order {
		if k == key {
			d.order = append(d.order[:i], d.order[i+1:]...)
			break
		}
	}
}

// Has reports whether the key exists.
func (d *DictionaryObject) Has(key string) bool {
	if d == nil {
		return false
	}
	_, exists := d.entries[key]
	return exists
}

// Keys returns the keys in insertion order.
func (d *DictionaryObject) Keys() []string {
	if d == nil {
		return nil
	}
	return d.order
}

// Len returns the number of entries.
func (d *DictionaryObject) Len() int {
	if d == nil {
		return 0
	}
	return len(d.entries)
}

// StreamObject is a PDF stream. Data holds the bytes exactly as they are
// (or will be) stored in the file; Decoded holds the unfiltered bytes when
// known.
type StreamObject struct {
	Dictionary *DictionaryObject
	Data       []byte
	Decoded    []byte
}

// NewStream creates an unfiltered stream.
func NewStream(dict *DictionaryObject, data []byte) *StreamObject {
	if dict == nil {
		dict = NewDictionary()
	}
	return &StreamObject{Dictionary: dict, Data: data, Decoded: data}
}

func (s *StreamObject) Write(w io.Writer) error {
	s.Dictionary.Set("Length", IntegerObject(len(s.Data)))
	if err := s.Dictionary.Write(w); err != nil {
		return err
	}
	if _, err := io.WriteString(w, "\nstream\n"); err != nil {
		return err
	}
	if _, err := w.Write(s.Data); err != nil {
		return err
	}
	_, err := io.WriteString(w, "\nendstream")
	return err
}

func (s *StreamObject) Clone() PdfObject {
	return &StreamObject{
		Dictionary: s.Dictionary.Clone().(*DictionaryObject),
		Data:       bytes.Clone(s.Data),
		Decoded:    bytes.Clone(s.Decoded),
	}
}

// GetDecodedData returns the decoded bytes, falling back to the raw data.
func (s *StreamObject) GetDecodedData() []byte {
	if s.Decoded != nil {
		return s.Decoded
	}
	return s.Data
}

// NumberValue converts an integer or real object to float64.
func NumberValue(obj PdfObject) (float64, bool) {
	switch v := obj.(type) {
	case IntegerObject:
		return float64(v), true
	case RealObject:
		return float64(v), true
	}
	return 0, false
}

// Rectangle is a PDF rectangle.
type Rectangle struct {
	LLX, LLY float64
	URX, URY float64
}

// NewRectangle creates a normalised rectangle from a four element array.
func NewRectangle(arr ArrayObject) (*Rectangle, error) {
	if len(arr) != 4 {
		return nil, fmt.Errorf("%w: rectangle must have 4 elements, got %d", ErrInvalidObject, len(arr))
	}
	var v [4]float64
	for i, obj := range arr {
		n, ok := NumberValue(obj)
		if !ok {
			return nil, fmt.Errorf("%w: rectangle element %d must be numeric", ErrInvalidObject, i)
		}
		v[i] = n
	}
	r := &Rectangle{
		LLX: min(v[0], v[2]),
		LLY: min(v[1], v[3]),
		URX: max(v[0], v[2]),
		URY: max(v[1], v[3]),
	}
	return r, nil
}

// ToArray converts the rectangle to a PDF array.
func (r *Rectangle) ToArray() ArrayObject {
	return NewNumberArray(r.LLX, r.LLY, r.URX, r.URY)
}

// Width returns the rectangle width.
func (r *Rectangle) Width() float64 { return r.URX - r.LLX }

// Height returns the rectangle height.
func (r *Rectangle) Height() float64 { return r.URY - r.LLY }

// Intersect returns the overlap of r and o, or nil when they are disjoint.
func (r *Rectangle) Intersect(o *Rectangle) *Rectangle {
	res := &Rectangle{
		LLX: max(r.LLX, o.LLX),
		LLY: max(r.LLY, o.LLY),
		URX: min(r.URX, o.URX),
		URY: min(r.URY, o.URY),
	}
	if res.Width() <= 0 || res.Height() <= 0 {
		return nil
	}
	return res
}

// TrailerDictionary is the trailer of one xref section.
type TrailerDictionary struct {
	*DictionaryObject
}

// NewTrailer creates an empty trailer.
func NewTrailer() *TrailerDictionary {
	return &TrailerDictionary{DictionaryObject: NewDictionary()}
}

// GetRoot returns the catalog reference.
func (t *TrailerDictionary) GetRoot() *Reference {
	if ref, ok := t.Get("Root").(Reference); ok {
		return &ref
	}
	return nil
}

// GetInfo returns the info dictionary reference.
func (t *TrailerDictionary) GetInfo() *Reference {
	if ref, ok := t.Get("Info").(Reference); ok {
		return &ref
	}
	return nil
}

// GetSize returns /Size.
func (t *TrailerDictionary) GetSize() int64 {
	size, _ := t.GetInt("Size")
	return size
}

// GetPrev returns the previous xref offset.
func (t *TrailerDictionary) GetPrev() (int64, bool) {
	return t.GetInt("Prev")
}
