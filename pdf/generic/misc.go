package generic

import (
	"fmt"
)

// PdfError is the base error type for PDF operations.
type PdfError struct {
	Message string
	Cause   error
}

func (e *PdfError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Cause)
	}
	return e.Message
}

func (e *PdfError) Unwrap() error {
	return e.Cause
}

// NewPdfError creates a new PdfError.
func NewPdfError(msg string) *PdfError {
	return &PdfError{Message: msg}
}

// PdfReadError is returned when a file cannot be read.
type PdfReadError struct {
	PdfError
}

// NewPdfReadError creates a new PdfReadError wrapping cause.
func NewPdfReadError(msg string, cause error) *PdfReadError {
	return &PdfReadError{PdfError: PdfError{Message: msg, Cause: cause}}
}

// PdfStreamError is returned when stream data cannot be decoded.
type PdfStreamError struct {
	PdfError
}

// NewPdfStreamError creates a new PdfStreamError wrapping cause.
func NewPdfStreamError(msg string, cause error) *PdfStreamError {
	return &PdfStreamError{PdfError: PdfError{Message: msg, Cause: cause}}
}

// PdfWriteError is returned when output cannot be produced.
type PdfWriteError struct {
	PdfError
}

// NewPdfWriteError creates a new PdfWriteError wrapping cause.
func NewPdfWriteError(msg string, cause error) *PdfWriteError {
	return &PdfWriteError{PdfError: PdfError{Message: msg, Cause: cause}}
}

// IsWhitespace reports whether b is PDF whitespace.
func IsWhitespace(b byte) bool {
	return b == ' ' || b == '\t' || b == '\n' || b == '\r' || b == '\x00' || b == '\x0c'
}

// IsDelimiter reports whether b is a PDF delimiter.
func IsDelimiter(b byte) bool {
	switch b {
	case '(', ')', '<', '>', '[', ']', '{', '}', '/', '%':
		return true
	}
	return false
}
