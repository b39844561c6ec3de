// Package metadata reads and updates the document information dictionary.
package metadata

import (
	"fmt"
	"strings"
	"time"

	"github.com/georgepadayatti/pdfflatten/pdf/generic"
)

// Vendor is the default /Producer value.
const Vendor = "pdfflatten"

// DocumentMetadata represents the entries of an information dictionary.
type DocumentMetadata struct {
	Title    string
	Author   string
	Subject  string
	Keywords []string
	// Creator is the software that authored the document.
	Creator string
	// Producer is the software that produced the PDF.
	Producer     string
	Created      *time.Time
	LastModified *time.Time
}

// NewDocumentMetadata creates a new DocumentMetadata with default values.
func NewDocumentMetadata() *DocumentMetadata {
	now := time.Now()
	return &DocumentMetadata{
		Producer:     Vendor,
		LastModified: &now,
	}
}

// ViewOver returns m with the fields it leaves empty taken from base.
// The modification date always comes from m.
func (m *DocumentMetadata) ViewOver(base *DocumentMetadata) *DocumentMetadata {
	if base == nil {
		base = &DocumentMetadata{}
	}
	pick := func(a, b string) string {
		if a != "" {
			return a
		}
		return b
	}
	result := &DocumentMetadata{
		Title:        pick(m.Title, base.Title),
		Author:       pick(m.Author, base.Author),
		Subject:      pick(m.Subject, base.Subject),
		Creator:      pick(m.Creator, base.Creator),
		Producer:     pick(m.Producer, base.Producer),
		Created:      base.Created,
		LastModified: m.LastModified,
	}
	if m.Created != nil {
		result.Created = m.Created
	}
	if len(m.Keywords) > 0 {
		result.Keywords = append([]string{}, m.Keywords...)
	} else {
		result.Keywords = append([]string{}, base.Keywords...)
	}
	return result
}

// FromInfoDict reads metadata from an information dictionary. Unparsable
// dates are ignored.
func FromInfoDict(d *generic.DictionaryObject) *DocumentMetadata {
	m := &DocumentMetadata{}
	if d == nil {
		return m
	}
	text := func(key string) string {
		if s, ok := d.Get(key).(*generic.StringObject); ok {
			return s.Text()
		}
		return ""
	}
	m.Title = text("Title")
	m.Author = text("Author")
	m.Subject = text("Subject")
	m.Creator = text("Creator")
	m.Producer = text("Producer")
	if kw := text("Keywords"); kw != "" {
		for _, k := range strings.Split(kw, ",") {
			if k = strings.TrimSpace(k); k != "" {
				m.Keywords = append(m.Keywords, k)
			}
		}
	}
	if t, err := ParsePDFDate(text("CreationDate")); err == nil {
		m.Created = t
	}
	if t, err := ParsePDFDate(text("ModDate")); err == nil {
		m.LastModified = t
	}
	return m
}

// ApplyToInfoDict writes the non-empty fields of m into d, leaving other
// entries in place.
func (m *DocumentMetadata) ApplyToInfoDict(d *generic.DictionaryObject) {
	set := func(key, value string) {
		if value != "" {
			d.Set(key, generic.NewTextString(value))
		}
	}
	set("Title", m.Title)
	set("Author", m.Author)
	set("Subject", m.Subject)
	set("Keywords", strings.Join(m.Keywords, ", "))
	set("Creator", m.Creator)
	set("Producer", m.Producer)
	if m.Created != nil {
		set("CreationDate", FormatPDFDate(*m.Created))
	}
	if m.LastModified != nil {
		set("ModDate", FormatPDFDate(*m.LastModified))
	}
}

// InfoWriter is the part of a document writer that owns the information
// dictionary.
type InfoWriter interface {
	GetInfo() *generic.DictionaryObject
	SetInfo(info *generic.DictionaryObject) generic.Reference
}

// Touch records a modification: the information dictionary gets a new
// /ModDate and, when producer is not empty, a new /Producer. The existing
// dictionary is copied, never modified in place.
func Touch(w InfoWriter, producer string, now time.Time) generic.Reference {
	info := generic.NewDictionary()
	if current := w.GetInfo(); current != nil {
		info = current.Clone().(*generic.DictionaryObject)
	}
	update := &DocumentMetadata{Producer: producer, LastModified: &now}
	update.ApplyToInfoDict(info)
	return w.SetInfo(info)
}

// FormatPDFDate formats a time as a PDF date string (D:YYYYMMDDHHmmSSOHH'mm').
func FormatPDFDate(t time.Time) string {
	_, offset := t.Zone()
	if offset == 0 {
		return t.Format("D:20060102150405Z")
	}
	sign := '+'
	if offset < 0 {
		sign = '-'
		offset = -offset
	}
	return fmt.Sprintf("%s%c%02d'%02d'", t.Format("D:20060102150405"), sign, offset/3600, offset%3600/60)
}

// ParsePDFDate parses a PDF date string. Trailing fields may be omitted.
func ParsePDFDate(s string) (*time.Time, error) {
	if !strings.HasPrefix(s, "D:") {
		return nil, fmt.Errorf("invalid PDF date: missing D: prefix")
	}
	s = strings.ReplaceAll(s[2:], "'", "")
	if i := strings.IndexByte(s, 'Z'); i >= 0 {
		s = s[:i+1]
	}

	formats := []string{
		"20060102150405-0700",
		"20060102150405Z",
		"20060102150405",
		"200601021504",
		"2006010215",
		"20060102",
		"200601",
		"2006",
	}
	for _, format := range formats {
		if t, err := time.Parse(format, s); err == nil {
			return &t, nil
		}
	}
	return nil, fmt.Errorf("unable to parse PDF date: %s", s)
}
