package writer

import (
	"bytes"
	"fmt"
	"io"

	"golang.org/x/crypto/blake2b"

	"github.com/georgepadayatti/pdfflatten/pdf/filters"
	"github.com/georgepadayatti/pdfflatten/pdf/generic"
	"github.com/georgepadayatti/pdfflatten/pdf/reader"
)

// PageSpec describes a page for PdfFileWriter.AddPage.
type PageSpec struct {
	MediaBox *generic.Rectangle
	CropBox  *generic.Rectangle
	Rotate   int
	// Resources is written as a direct dictionary on the page. Leave it
	// nil to inherit the page tree's resources.
	Resources *generic.DictionaryObject
	// Contents holds one content stream per element.
	Contents [][]byte
}

// PdfFileWriter creates new PDF files. The output is deterministic: the
// same calls produce the same bytes.
type PdfFileWriter struct {
	Version string
	// Compress stores content streams with FlateDecode.
	Compress bool
	// XRefStream writes a cross-reference stream instead of a table.
	XRefStream bool

	Root     *generic.DictionaryObject
	Info     *generic.DictionaryObject
	Pages    *generic.DictionaryObject
	AcroForm *generic.DictionaryObject

	objects    map[int]*generic.IndirectObject
	nextObjNum int
	pagesRef   generic.Reference
	pageRefs   []generic.Reference
}

// NewPdfFileWriter creates a new PDF writer.
func NewPdfFileWriter(version string) *PdfFileWriter {
	if version == "" {
		version = "1.7"
	}
	w := &PdfFileWriter{
		Version:    version,
		objects:    make(map[int]*generic.IndirectObject),
		nextObjNum: 1,
	}

	w.Root = generic.NewDictionary()
	w.Root.Set("Type", generic.NameObject("Catalog"))

	w.Pages = generic.NewDictionary()
	w.Pages.Set("Type", generic.NameObject("Pages"))
	w.Pages.Set("Kids", generic.ArrayObject{})
	w.Pages.Set("Count", generic.IntegerObject(0))
	w.pagesRef = w.AddObject(w.Pages)
	w.Root.Set("Pages", w.pagesRef)

	w.Info = generic.NewDictionary()
	w.Info.Set("Producer", generic.NewTextString("pdfflatten"))
	return w
}

// AddObject adds an object and returns its reference.
func (w *PdfFileWriter) AddObject(obj generic.PdfObject) generic.Reference {
	objNum := w.nextObjNum
	w.nextObjNum++
	w.objects[objNum] = generic.NewIndirectObject(objNum, 0, obj)
	return generic.NewReference(objNum, 0)
}

// AddPage appends a page and returns its reference.
func (w *PdfFileWriter) AddPage(spec PageSpec) (generic.Reference, error) {
	page := generic.NewDictionary()
	page.Set("Type", generic.NameObject("Page"))
	page.Set("Parent", w.pagesRef)
	if spec.MediaBox != nil {
		page.Set("MediaBox", spec.MediaBox.ToArray())
	}
	if spec.CropBox != nil {
		page.Set("CropBox", spec.CropBox.ToArray())
	}
	if spec.Rotate != 0 {
		page.Set("Rotate", generic.IntegerObject(spec.Rotate))
	}
	if spec.Resources != nil {
		page.Set("Resources", spec.Resources)
	}

	var contents generic.ArrayObject
	for _, data := range spec.Contents {
		stream := generic.NewStream(nil, data)
		if w.Compress {
			var err error
			if stream, err = filters.NewFlateStream(nil, data); err != nil {
				return generic.Reference{}, err
			}
		}
		contents = append(contents, w.AddObject(stream))
	}
	switch len(contents) {
	case 0:
	case 1:
		page.Set("Contents", contents[0])
	default:
		page.Set("Contents", contents)
	}

	ref := w.AddObject(page)
	w.pageRefs = append(w.pageRefs, ref)
	w.Pages.Set("Kids", append(w.Pages.GetArray("Kids"), ref))
	w.Pages.Set("Count", generic.IntegerObject(len(w.pageRefs)))
	return ref, nil
}

// AddAcroForm creates or returns the AcroForm dictionary.
func (w *PdfFileWriter) AddAcroForm() *generic.DictionaryObject {
	if w.AcroForm == nil {
		w.AcroForm = generic.NewDictionary()
		w.AcroForm.Set("Fields", generic.ArrayObject{})
		w.Root.Set("AcroForm", w.AddObject(w.AcroForm))
	}
	return w.AcroForm
}

// Write writes the PDF to the given writer.
func (w *PdfFileWriter) Write(out io.Writer) error {
	var buf bytes.Buffer
	fmt.Fprintf(&buf, "%%PDF-%s\n", w.Version)
	buf.Write([]byte{0x25, 0xE2, 0xE3, 0xCF, 0xD3, 0x0A})

	rootRef := w.AddObject(w.Root)
	infoRef := w.AddObject(w.Info)
	defer func() {
		// Keep the writer reusable: catalog and info are re-added per call.
		delete(w.objects, rootRef.ObjectNumber)
		delete(w.objects, infoRef.ObjectNumber)
		w.nextObjNum -= 2
	}()

	entries := []*reader.XRefEntry{{ObjectNumber: 0, Type: reader.XRefTypeFree, Generation: 65535}}
	for objNum := 1; objNum < w.nextObjNum; objNum++ {
		entries = append(entries, &reader.XRefEntry{
			ObjectNumber: objNum,
			Type:         reader.XRefTypeStandard,
			Offset:       int64(buf.Len()),
		})
		if err := w.objects[objNum].Write(&buf); err != nil {
			return generic.NewPdfWriteError(fmt.Sprintf("failed to write object %d", objNum), err)
		}
	}

	sum := blake2b.Sum256(buf.Bytes())
	trailer := generic.NewDictionary()
	trailer.Set("Size", generic.IntegerObject(w.nextObjNum))
	trailer.Set("Root", rootRef)
	trailer.Set("Info", infoRef)
	trailer.Set("ID", generic.NewArray(generic.NewHexString(sum[:16]), generic.NewHexString(sum[:16])))

	xrefOffset := int64(buf.Len())
	if w.XRefStream {
		selfNum := w.nextObjNum
		entries = append(entries, &reader.XRefEntry{ObjectNumber: selfNum, Type: reader.XRefTypeStandard, Offset: xrefOffset})
		stream := reader.NewXRefStream(entries)
		for _, key := range trailer.Keys() {
			stream.Dictionary.Set(key, trailer.Get(key))
		}
		stream.Dictionary.Set("Size", generic.IntegerObject(selfNum+1))
		if err := generic.NewIndirectObject(selfNum, 0, stream).Write(&buf); err != nil {
			return err
		}
	} else {
		if err := reader.WriteXRefTable(&buf, entries); err != nil {
			return err
		}
		buf.WriteString("trailer\n")
		if err := trailer.Write(&buf); err != nil {
			return err
		}
		buf.WriteByte('\n')
	}
	fmt.Fprintf(&buf, "startxref\n%d\n%%%%EOF\n", xrefOffset)

	_, err := out.Write(buf.Bytes())
	return err
}

// Bytes returns the serialized document.
func (w *PdfFileWriter) Bytes() ([]byte, error) {
	var buf bytes.Buffer
	if err := w.Write(&buf); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}
