package flatten

import (
	"errors"
	"fmt"
)

// Common errors
var (
	ErrInvalidScale       = errors.New("scale must be positive")
	ErrEmptyPageBox       = errors.New("page box has no area")
	ErrPageOutOfRange     = errors.New("page index out of range")
	ErrEmptyText          = errors.New("annotation has no text")
	ErrNoBitmap           = errors.New("signature has no bitmap")
	ErrNoSignatureSource  = errors.New("no signature store configured")
	ErrUnknownAnnotation  = errors.New("unknown annotation type")
	ErrVerificationFailed = errors.New("output verification failed")
)

// GeometryError reports a scale or page geometry that cannot be mapped.
// It aborts the export.
type GeometryError struct {
	Page   int
	Reason string
	Err    error
}

func (e *GeometryError) Error() string {
	return fmt.Sprintf("page %d: bad geometry: %s", e.Page, e.Reason)
}

func (e *GeometryError) Unwrap() error {
	return e.Err
}

// AnnotationDecodeError reports an annotation that was skipped because its
// payload could not be used. The rest of the page still renders.
type AnnotationDecodeError struct {
	Page int
	// Index is the annotation's position in the page's list.
	Index int
	Kind  Kind
	Err   error
}

func (e *AnnotationDecodeError) Error() string {
	return fmt.Sprintf("page %d: %s annotation %d skipped: %v", e.Page, e.Kind, e.Index, e.Err)
}

func (e *AnnotationDecodeError) Unwrap() error {
	return e.Err
}

// FontResolutionError reports a custom font that could not be used. The
// export continues with the fallback font.
type FontResolutionError struct {
	Path string
	Err  error
}

func (e *FontResolutionError) Error() string {
	return fmt.Sprintf("font %q unusable: %v", e.Path, e.Err)
}

func (e *FontResolutionError) Unwrap() error {
	return e.Err
}

// CompositeError reports a failure to merge an overlay into its page.
type CompositeError struct {
	Page int
	Err  error
}

func (e *CompositeError) Error() string {
	return fmt.Sprintf("page %d: composite overlay: %v", e.Page, e.Err)
}

func (e *CompositeError) Unwrap() error {
	return e.Err
}

// AssemblyError wraps a fatal failure with the page it occurred on. Page
// is -1 for failures that concern the whole document.
type AssemblyError struct {
	Page int
	Err  error
}

func (e *AssemblyError) Error() string {
	if e.Page < 0 {
		return fmt.Sprintf("assemble document: %v", e.Err)
	}
	return fmt.Sprintf("assemble page %d: %v", e.Page, e.Err)
}

func (e *AssemblyError) Unwrap() error {
	return e.Err
}
