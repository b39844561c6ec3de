// Package content parses, rewrites and builds PDF content streams.
package content

import (
	"bytes"
	"errors"
	"fmt"
	"math"

	"github.com/georgepadayatti/pdfflatten/pdf/generic"
)

// ErrInvalidContent is returned for content that cannot be tokenised.
var ErrInvalidContent = errors.New("invalid content stream")

// Operator represents a PDF content stream operator.
type Operator string

// Operators produced or rewritten by this package.
const (
	OpSaveState    Operator = "q"
	OpRestoreState Operator = "Q"
	OpSetCTM       Operator = "cm"
	OpSetLineWidth Operator = "w"
	OpSetGState    Operator = "gs"

	OpMoveTo    Operator = "m"
	OpLineTo    Operator = "l"
	OpClosePath Operator = "h"
	OpRectangle Operator = "re"

	OpStroke  Operator = "S"
	OpFill    Operator = "f"
	OpEndPath Operator = "n"
	OpClip    Operator = "W"

	OpBeginText     Operator = "BT"
	OpEndText       Operator = "ET"
	OpSetFont       Operator = "Tf"
	OpTextMove      Operator = "Td"
	OpSetTextMatrix Operator = "Tm"
	OpShowText      Operator = "Tj"
	OpShowTextArray Operator = "TJ"

	OpSetFillGray Operator = "g"
	OpSetFillRGB  Operator = "rg"

	OpSetStrokeColorSpace Operator = "CS"
	OpSetFillColorSpace   Operator = "cs"
	OpSetStrokeColorN     Operator = "SCN"
	OpSetFillColorN       Operator = "scn"
	OpShading             Operator = "sh"

	OpPaintXObject Operator = "Do"

	OpBeginMarkedContentDict Operator = "BDC"
	OpMarkPointDict          Operator = "DP"

	OpBeginInlineImage Operator = "BI"
)

// ContentStream represents a parsed PDF content stream.
type ContentStream struct {
	Operations []Operation
}

// Operation is one operator with its operands. For inline images
// (BI ... ID ... EI) Inline holds the raw bytes from BI to EI and
// Operands is empty.
type Operation struct {
	Operator Operator
	Operands []generic.PdfObject
	Inline   []byte
}

// NewContentStream creates a new empty content stream.
func NewContentStream() *ContentStream {
	return &ContentStream{}
}

// AddOperation adds an operation to the content stream.
func (cs *ContentStream) AddOperation(op Operator, operands ...generic.PdfObject) {
	cs.Operations = append(cs.Operations, Operation{Operator: op, Operands: operands})
}

// Render serializes the content stream, one operation per line.
func (cs *ContentStream) Render() []byte {
	var buf bytes.Buffer
	for _, op := range cs.Operations {
		if op.Inline != nil {
			buf.Write(op.Inline)
			buf.WriteByte('\n')
			continue
		}
		for _, operand := range op.Operands {
			if operand == nil {
				operand = generic.NullObject{}
			}
			operand.Write(&buf)
			buf.WriteByte(' ')
		}
		buf.WriteString(string(op.Operator))
		buf.WriteByte('\n')
	}
	return buf.Bytes()
}

// RenameResources rewrites the resource names used by the operations.
// lookup receives the resource category (Font, XObject, ...) and the
// current name, and returns the name to use.
func (cs *ContentStream) RenameResources(lookup func(category, name string) string) {
	rename := func(op *Operation, idx int, category string) {
		if idx < 0 || idx >= len(op.Operands) {
			return
		}
		if name, ok := op.Operands[idx].(generic.NameObject); ok {
			op.Operands[idx] = generic.NameObject(lookup(category, string(name)))
		}
	}
	for i := range cs.Operations {
		op := &cs.Operations[i]
		switch op.Operator {
		case OpSetFont:
			rename(op, 0, "Font")
		case OpPaintXObject:
			rename(op, 0, "XObject")
		case OpSetGState:
			rename(op, 0, "ExtGState")
		case OpShading:
			rename(op, 0, "Shading")
		case OpSetFillColorSpace, OpSetStrokeColorSpace:
			if len(op.Operands) == 0 {
				continue
			}
			if name, ok := op.Operands[0].(generic.NameObject); ok && !isDeviceColorSpace(string(name)) {
				rename(op, 0, "ColorSpace")
			}
		case OpSetFillColorN, OpSetStrokeColorN:
			rename(op, len(op.Operands)-1, "Pattern")
		case OpBeginMarkedContentDict, OpMarkPointDict:
			rename(op, 1, "Properties")
		}
	}
}

func isDeviceColorSpace(name string) bool {
	switch name {
	case "DeviceGray", "DeviceRGB", "DeviceCMYK", "Pattern":
		return true
	}
	return false
}

// Parser parses PDF content streams.
type Parser struct {
	data []byte
	pos  int
}

// NewParser creates a new content stream parser.
func NewParser(data []byte) *Parser {
	return &Parser{data: data}
}

// Parse parses the whole content stream. Operands left over at the end
// of the stream are an error.
func (p *Parser) Parse() (*ContentStream, error) {
	cs := NewContentStream()
	var operands []generic.PdfObject

	for {
		p.skipSpace()
		if p.pos >= len(p.data) {
			break
		}
		b := p.data[p.pos]
		switch {
		case b == '/' || b == '(' || b == '[' || b == '<' || b == '-' || b == '+' || b == '.' || (b >= '0' && b <= '9'):
			sub := generic.NewParserFromBytes(p.data[p.pos:])
			obj, err := sub.ParseObject()
			if err != nil {
				return nil, fmt.Errorf("%w: operand at offset %d: %v", ErrInvalidContent, p.pos, err)
			}
			p.pos += sub.Pos()
			operands = append(operands, obj)
			continue
		case b == ']' || b == ')' || b == '>' || b == '{' || b == '}':
			return nil, fmt.Errorf("%w: unexpected %q at offset %d", ErrInvalidContent, b, p.pos)
		}

		start := p.pos
		for p.pos < len(p.data) && !generic.IsWhitespace(p.data[p.pos]) && !generic.IsDelimiter(p.data[p.pos]) {
			p.pos++
		}
		token := string(p.data[start:p.pos])
		switch token {
		case "true":
			operands = append(operands, generic.BooleanObject(true))
		case "false":
			operands = append(operands, generic.BooleanObject(false))
		case "null":
			operands = append(operands, generic.NullObject{})
		case string(OpBeginInlineImage):
			raw, err := p.inlineImage(start)
			if err != nil {
				return nil, err
			}
			cs.Operations = append(cs.Operations, Operation{Operator: OpBeginInlineImage, Inline: raw})
			operands = nil
		default:
			cs.AddOperation(Operator(token), operands...)
			operands = nil
		}
	}

	if len(operands) > 0 {
		return nil, fmt.Errorf("%w: %d trailing operands", ErrInvalidContent, len(operands))
	}
	return cs, nil
}

func (p *Parser) skipSpace() {
	for p.pos < len(p.data) {
		b := p.data[p.pos]
		if b == '%' {
			for p.pos < len(p.data) && p.data[p.pos] != '\n' && p.data[p.pos] != '\r' {
				p.pos++
			}
			continue
		}
		if !generic.IsWhitespace(b) {
			return
		}
		p.pos++
	}
}

// inlineImage consumes an inline image through its EI keyword.
func (p *Parser) inlineImage(start int) ([]byte, error) {
	id := bytes.Index(p.data[p.pos:], []byte("ID"))
	if id < 0 {
		return nil, fmt.Errorf("%w: inline image without ID", ErrInvalidContent)
	}
	search := p.pos + id + 2
	for {
		ei := bytes.Index(p.data[search:], []byte("EI"))
		if ei < 0 {
			return nil, fmt.Errorf("%w: inline image without EI", ErrInvalidContent)
		}
		end := search + ei
		before := end == 0 || generic.IsWhitespace(p.data[end-1])
		after := end+2 == len(p.data) || generic.IsWhitespace(p.data[end+2])
		if before && after {
			p.pos = end + 2
			return p.data[start:p.pos], nil
		}
		search = end + 2
	}
}

// ContentBuilder provides a fluent interface for building content streams.
type ContentBuilder struct {
	stream *ContentStream
}

// NewContentBuilder creates a new content builder.
func NewContentBuilder() *ContentBuilder {
	return &ContentBuilder{stream: NewContentStream()}
}

func nums(values ...float64) []generic.PdfObject {
	out := make([]generic.PdfObject, len(values))
	for i, v := range values {
		out[i] = generic.RealObject(v)
	}
	return out
}

// SaveState saves the graphics state.
func (cb *ContentBuilder) SaveState() *ContentBuilder {
	cb.stream.AddOperation(OpSaveState)
	return cb
}

// RestoreState restores the graphics state.
func (cb *ContentBuilder) RestoreState() *ContentBuilder {
	cb.stream.AddOperation(OpRestoreState)
	return cb
}

// Transform concatenates a matrix to the CTM.
func (cb *ContentBuilder) Transform(a, b, c, d, e, f float64) *ContentBuilder {
	cb.stream.AddOperation(OpSetCTM, nums(a, b, c, d, e, f)...)
	return cb
}

// Translate moves the origin.
func (cb *ContentBuilder) Translate(tx, ty float64) *ContentBuilder {
	return cb.Transform(1, 0, 0, 1, tx, ty)
}

// Scale scales the coordinate system.
func (cb *ContentBuilder) Scale(sx, sy float64) *ContentBuilder {
	return cb.Transform(sx, 0, 0, sy, 0, 0)
}

// Rotate rotates the coordinate system counterclockwise by degrees.
func (cb *ContentBuilder) Rotate(degrees float64) *ContentBuilder {
	sin, cos := math.Sincos(degrees * math.Pi / 180)
	return cb.Transform(cos, sin, -sin, cos, 0, 0)
}

// MoveTo moves to a point.
func (cb *ContentBuilder) MoveTo(x, y float64) *ContentBuilder {
	cb.stream.AddOperation(OpMoveTo, nums(x, y)...)
	return cb
}

// LineTo draws a line to a point.
func (cb *ContentBuilder) LineTo(x, y float64) *ContentBuilder {
	cb.stream.AddOperation(OpLineTo, nums(x, y)...)
	return cb
}

// Rectangle appends a rectangle to the path.
func (cb *ContentBuilder) Rectangle(x, y, width, height float64) *ContentBuilder {
	cb.stream.AddOperation(OpRectangle, nums(x, y, width, height)...)
	return cb
}

// ClosePath closes the current path.
func (cb *ContentBuilder) ClosePath() *ContentBuilder {
	cb.stream.AddOperation(OpClosePath)
	return cb
}

// Stroke strokes the path.
func (cb *ContentBuilder) Stroke() *ContentBuilder {
	cb.stream.AddOperation(OpStroke)
	return cb
}

// Fill fills the path.
func (cb *ContentBuilder) Fill() *ContentBuilder {
	cb.stream.AddOperation(OpFill)
	return cb
}

// Clip intersects the clipping path with the current path.
func (cb *ContentBuilder) Clip() *ContentBuilder {
	cb.stream.AddOperation(OpClip)
	return cb
}

// EndPath ends the path without painting it.
func (cb *ContentBuilder) EndPath() *ContentBuilder {
	cb.stream.AddOperation(OpEndPath)
	return cb
}

// ClipRect restricts all further drawing to a rectangle.
func (cb *ContentBuilder) ClipRect(x, y, width, height float64) *ContentBuilder {
	return cb.Rectangle(x, y, width, height).Clip().EndPath()
}

// BeginText begins a text object.
func (cb *ContentBuilder) BeginText() *ContentBuilder {
	cb.stream.AddOperation(OpBeginText)
	return cb
}

// EndText ends a text object.
func (cb *ContentBuilder) EndText() *ContentBuilder {
	cb.stream.AddOperation(OpEndText)
	return cb
}

// SetFont sets the font and size.
func (cb *ContentBuilder) SetFont(font string, size float64) *ContentBuilder {
	cb.stream.AddOperation(OpSetFont, generic.NameObject(font), generic.RealObject(size))
	return cb
}

// TextPosition moves to the start of the next line.
func (cb *ContentBuilder) TextPosition(x, y float64) *ContentBuilder {
	cb.stream.AddOperation(OpTextMove, nums(x, y)...)
	return cb
}

// SetTextMatrix sets the text matrix and text line matrix.
func (cb *ContentBuilder) SetTextMatrix(a, b, c, d, e, f float64) *ContentBuilder {
	cb.stream.AddOperation(OpSetTextMatrix, nums(a, b, c, d, e, f)...)
	return cb
}

// ShowText shows a string of already-encoded character codes.
func (cb *ContentBuilder) ShowText(codes []byte) *ContentBuilder {
	cb.stream.AddOperation(OpShowText, &generic.StringObject{Value: codes})
	return cb
}

// ShowHex shows encoded character codes written as a hex string.
func (cb *ContentBuilder) ShowHex(codes []byte) *ContentBuilder {
	cb.stream.AddOperation(OpShowText, generic.NewHexString(codes))
	return cb
}

// ShowTextArray shows strings with individual positioning, TJ style:
// numbers move the next glyph left by thousandths of text space.
func (cb *ContentBuilder) ShowTextArray(items generic.ArrayObject) *ContentBuilder {
	cb.stream.AddOperation(OpShowTextArray, items)
	return cb
}

// SetFillColor sets the fill color (RGB).
func (cb *ContentBuilder) SetFillColor(r, g, b float64) *ContentBuilder {
	cb.stream.AddOperation(OpSetFillRGB, nums(r, g, b)...)
	return cb
}

// SetFillGray sets the fill color (grayscale).
func (cb *ContentBuilder) SetFillGray(gray float64) *ContentBuilder {
	cb.stream.AddOperation(OpSetFillGray, nums(gray)...)
	return cb
}

// SetLineWidth sets the line width.
func (cb *ContentBuilder) SetLineWidth(width float64) *ContentBuilder {
	cb.stream.AddOperation(OpSetLineWidth, nums(width)...)
	return cb
}

// SetGState applies a named graphics state parameter dictionary.
func (cb *ContentBuilder) SetGState(name string) *ContentBuilder {
	cb.stream.AddOperation(OpSetGState, generic.NameObject(name))
	return cb
}

// PaintXObject paints an XObject.
func (cb *ContentBuilder) PaintXObject(name string) *ContentBuilder {
	cb.stream.AddOperation(OpPaintXObject, generic.NameObject(name))
	return cb
}

// Append adds all operations of another stream.
func (cb *ContentBuilder) Append(other *ContentStream) *ContentBuilder {
	cb.stream.Operations = append(cb.stream.Operations, other.Operations...)
	return cb
}

// Build returns the content stream.
func (cb *ContentBuilder) Build() *ContentStream {
	return cb.stream
}

// Render renders the content stream to bytes.
func (cb *ContentBuilder) Render() []byte {
	return cb.stream.Render()
}
