package reader

import (
	"fmt"

	"github.com/georgepadayatti/pdfflatten/pdf/generic"
)

// DefaultMediaBox is used for pages that declare no MediaBox anywhere in
// their ancestry (US Letter).
var DefaultMediaBox = generic.Rectangle{URX: 612, URY: 792}

// PageInfo is the resolved geometry and resources of one page. Inherited
// attributes have already been looked up through the page tree.
type PageInfo struct {
	Index int
	Ref   generic.Reference
	Dict  *generic.DictionaryObject

	MediaBox *generic.Rectangle
	// CropBox is nil when the page has none.
	CropBox *generic.Rectangle
	// Box is the effective (visible) box: the CropBox clipped to the
	// MediaBox, or the MediaBox.
	Box *generic.Rectangle
	// Rotate is normalised to 0, 90, 180 or 270.
	Rotate int

	// Resources is the page's resource dictionary, possibly inherited or
	// shared with other pages. It must be treated as read-only.
	Resources *generic.DictionaryObject
}

// DisplaySize returns the page size as a viewer shows it, with width and
// height swapped for quarter-turn rotations.
func (p *PageInfo) DisplaySize() (float64, float64) {
	if p.Rotate == 90 || p.Rotate == 270 {
		return p.Box.Height(), p.Box.Width()
	}
	return p.Box.Width(), p.Box.Height()
}

// inherited holds the page attributes that descend through /Pages nodes.
type inherited struct {
	mediaBox  *generic.Rectangle
	cropBox   *generic.Rectangle
	rotate    int
	resources *generic.DictionaryObject
}

func (r *PdfFileReader) loadPages() error {
	r.Pages = nil
	ref, ok := r.Root.GetReference("Pages")
	if !ok {
		return fmt.Errorf("%w: missing Pages reference", ErrInvalidPDF)
	}
	return r.walkPageTree(ref, inherited{}, make(map[int]bool))
}

func (r *PdfFileReader) walkPageTree(ref generic.Reference, attrs inherited, visited map[int]bool) error {
	if visited[ref.ObjectNumber] {
		return fmt.Errorf("%w: page tree cycle at object %d", ErrInvalidPDF, ref.ObjectNumber)
	}
	visited[ref.ObjectNumber] = true

	node, err := r.GetDict(ref)
	if err != nil {
		return err
	}
	attrs = r.inherit(node, attrs)

	kids := node.Get("Kids")
	if node.GetName("Type") == "Page" || (kids == nil && node.GetName("Type") != "Pages") {
		return r.addPage(ref, node, attrs)
	}

	arr, _ := r.ResolveReference(kids)
	kidArray, ok := arr.(generic.ArrayObject)
	if !ok {
		return fmt.Errorf("%w: Kids of object %d is not an array", ErrInvalidPDF, ref.ObjectNumber)
	}
	for _, kid := range kidArray {
		kidRef, ok := kid.(generic.Reference)
		if !ok {
			return fmt.Errorf("%w: page tree node %d has a direct kid", ErrInvalidPDF, ref.ObjectNumber)
		}
		if err := r.walkPageTree(kidRef, attrs, visited); err != nil {
			return err
		}
	}
	return nil
}

func (r *PdfFileReader) inherit(node *generic.DictionaryObject, attrs inherited) inherited {
	if box := r.rectangle(node.Get("MediaBox")); box != nil {
		attrs.mediaBox = box
	}
	if box := r.rectangle(node.Get("CropBox")); box != nil {
		attrs.cropBox = box
	}
	if obj, err := r.ResolveReference(node.Get("Rotate")); err == nil {
		if rot, ok := generic.NumberValue(obj); ok {
			attrs.rotate = NormalizeRotation(int(rot))
		}
	}
	if res := r.ResolveDict(node.Get("Resources")); res != nil {
		attrs.resources = res
	}
	return attrs
}

func (r *PdfFileReader) rectangle(obj generic.PdfObject) *generic.Rectangle {
	resolved, err := r.ResolveReference(obj)
	if err != nil {
		return nil
	}
	arr, ok := resolved.(generic.ArrayObject)
	if !ok {
		return nil
	}
	resolvedArr := make(generic.ArrayObject, len(arr))
	for i, item := range arr {
		if resolvedArr[i], err = r.ResolveReference(item); err != nil {
			return nil
		}
	}
	rect, err := generic.NewRectangle(resolvedArr)
	if err != nil {
		return nil
	}
	return rect
}

func (r *PdfFileReader) addPage(ref generic.Reference, dict *generic.DictionaryObject, attrs inherited) error {
	media := attrs.mediaBox
	if media == nil {
		def := DefaultMediaBox
		media = &def
	}
	box := media
	if attrs.cropBox != nil {
		// A crop box outside the media box is ignored, as viewers do.
		if clipped := attrs.cropBox.Intersect(media); clipped != nil {
			box = clipped
		}
	}
	resources := attrs.resources
	if resources == nil {
		resources = generic.NewDictionary()
	}
	r.Pages = append(r.Pages, &PageInfo{
		Index:     len(r.Pages),
		Ref:       ref,
		Dict:      dict,
		MediaBox:  media,
		CropBox:   attrs.cropBox,
		Box:       box,
		Rotate:    attrs.rotate,
		Resources: resources,
	})
	return nil
}

// NormalizeRotation maps any /Rotate value onto 0, 90, 180 or 270.
// Values that are not multiples of 90 are rounded down to one.
func NormalizeRotation(rot int) int {
	rot %= 360
	if rot < 0 {
		rot += 360
	}
	return rot / 90 * 90
}
