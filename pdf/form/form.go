// Package form reads the interactive form of a document. Flattening never
// touches form fields; this package reports what is there so callers can
// confirm the form survives an export.
package form

import (
	"errors"
	"fmt"

	"github.com/georgepadayatti/pdfflatten/pdf/generic"
)

// Common errors
var (
	ErrNoAcroForm        = errors.New("no AcroForm present in document")
	ErrCircularReference = errors.New("circular reference in form tree")
)

// FieldType represents the type of a form field.
type FieldType string

// Field types
const (
	FieldTypeButton    FieldType = "/Btn"
	FieldTypeText      FieldType = "/Tx"
	FieldTypeChoice    FieldType = "/Ch"
	FieldTypeSignature FieldType = "/Sig"
)

// FieldFlags represents form field flags.
type FieldFlags uint32

// Common field flags
const (
	FieldFlagReadOnly FieldFlags = 1 << 0
	FieldFlagRequired FieldFlags = 1 << 1
	FieldFlagNoExport FieldFlags = 1 << 2
)

// SigFlags values
const (
	SigFlagSignaturesExist = 1 << 0
	SigFlagAppendOnly      = 1 << 1
)

// Resolver dereferences indirect objects.
type Resolver interface {
	ResolveReference(obj generic.PdfObject) (generic.PdfObject, error)
}

// Field is a terminal form field.
type Field struct {
	FullName string
	Type     FieldType
	Flags    FieldFlags
	// Filled reports whether the field has a /V entry.
	Filled bool
	// Ref is the field's object, zero for direct fields.
	Ref generic.Reference
}

// IsReadOnly returns true if the field is read-only.
func (f *Field) IsReadOnly() bool {
	return f.Flags&FieldFlagReadOnly != 0
}

// AcroForm is a parsed interactive form.
type AcroForm struct {
	Fields          []Field
	NeedAppearances bool
	SigFlags        int
}

// HasSignatures returns true if the form has existing signatures.
func (f *AcroForm) HasSignatures() bool {
	return f.SigFlags&SigFlagSignaturesExist != 0
}

// IsAppendOnly returns true if the document is append-only.
func (f *AcroForm) IsAppendOnly() bool {
	return f.SigFlags&SigFlagAppendOnly != 0
}

// Read parses the AcroForm dictionary dict and walks its field tree.
func Read(r Resolver, dict *generic.DictionaryObject) (*AcroForm, error) {
	if dict == nil {
		return nil, ErrNoAcroForm
	}
	form := &AcroForm{}
	if na, ok := resolve(r, dict.Get("NeedAppearances")).(generic.BooleanObject); ok {
		form.NeedAppearances = bool(na)
	}
	if sf, ok := resolve(r, dict.Get("SigFlags")).(generic.IntegerObject); ok {
		form.SigFlags = int(sf)
	}

	fields, _ := resolve(r, dict.Get("Fields")).(generic.ArrayObject)
	w := &walker{r: r, seen: make(map[generic.Reference]bool)}
	if err := w.walk(fields, "", "", 0); err != nil {
		return nil, err
	}
	form.Fields = w.fields
	return form, nil
}

type walker struct {
	r      Resolver
	seen   map[generic.Reference]bool
	fields []Field
}

// walk visits a /Fields or /Kids array. Type and flags are inheritable.
func (w *walker) walk(list generic.ArrayObject, parentName string, parentType FieldType, parentFlags FieldFlags) error {
	for _, item := range list {
		ref, isRef := item.(generic.Reference)
		if isRef {
			if w.seen[ref] {
				return fmt.Errorf("%w: object %d", ErrCircularReference, ref.ObjectNumber)
			}
			w.seen[ref] = true
		}
		field, ok := resolve(w.r, item).(*generic.DictionaryObject)
		if !ok {
			continue
		}

		name := parentName
		if t, ok := field.Get("T").(*generic.StringObject); ok {
			if name != "" {
				name += "."
			}
			name += t.Text()
		}
		ft := parentType
		if n := field.GetName("FT"); n != "" {
			ft = FieldType("/" + n)
		}
		flags := parentFlags
		if ff, ok := field.GetInt("Ff"); ok {
			flags = FieldFlags(ff)
		}

		kids, _ := resolve(w.r, field.Get("Kids")).(generic.ArrayObject)
		if w.hasNamedKid(kids) {
			if err := w.walk(kids, name, ft, flags); err != nil {
				return err
			}
			continue
		}
		// Kids without /T are widget annotations of this field.
		f := Field{FullName: name, Type: ft, Flags: flags, Filled: field.Has("V")}
		if isRef {
			f.Ref = ref
		}
		w.fields = append(w.fields, f)
	}
	return nil
}

func (w *walker) hasNamedKid(kids generic.ArrayObject) bool {
	for _, k := range kids {
		if d, ok := resolve(w.r, k).(*generic.DictionaryObject); ok && d.Has("T") {
			return true
		}
	}
	return false
}

func resolve(r Resolver, obj generic.PdfObject) generic.PdfObject {
	if obj == nil {
		return nil
	}
	if _, ok := obj.(generic.Reference); !ok {
		return obj
	}
	out, err := r.ResolveReference(obj)
	if err != nil {
		return nil
	}
	return out
}
