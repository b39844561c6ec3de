package generic

import (
	"bytes"
	"encoding/hex"
	"errors"
	"fmt"
	"strconv"
)

// Common errors
var (
	ErrUnexpectedEOF     = errors.New("unexpected end of data")
	ErrInvalidObject     = errors.New("invalid PDF object")
	ErrInvalidStream     = errors.New("invalid PDF stream")
	ErrInvalidDictionary = errors.New("invalid PDF dictionary")
	ErrInvalidArray      = errors.New("invalid PDF array")
	ErrInvalidString     = errors.New("invalid PDF string")
	ErrInvalidName       = errors.New("invalid PDF name")
	ErrInvalidNumber     = errors.New("invalid PDF number")
)

// LengthResolver resolves an indirect /Length of a stream.
type LengthResolver func(ref Reference) (int64, error)

// Parser parses PDF objects from an in-memory buffer.
type Parser struct {
	data []byte
	pos  int

	// ResolveLength is consulted when a stream's /Length is an indirect
	// reference. When nil or failing, the stream ends at "endstream".
	ResolveLength LengthResolver
}

// NewParserFromBytes creates a parser over data.
func NewParserFromBytes(data []byte) *Parser {
	return &Parser{data: data}
}

// Pos returns the current offset.
func (p *Parser) Pos() int { return p.pos }

func (p *Parser) eof() bool { return p.pos >= len(p.data) }

func (p *Parser) peek() (byte, bool) {
	if p.eof() {
		return 0, false
	}
	return p.data[p.pos], true
}

// skipWhitespace skips whitespace and comments.
func (p *Parser) skipWhitespace() {
	for !p.eof() {
		b := p.data[p.pos]
		switch {
		case IsWhitespace(b):
			p.pos++
		case b == '%':
			for !p.eof() && p.data[p.pos] != '\n' && p.data[p.pos] != '\r' {
				p.pos++
			}
		default:
			return
		}
	}
}

// readToken reads a run of regular characters.
func (p *Parser) readToken() string {
	p.skipWhitespace()
	start := p.pos
	for !p.eof() && !IsWhitespace(p.data[p.pos]) && !IsDelimiter(p.data[p.pos]) {
		p.pos++
	}
	return string(p.data[start:p.pos])
}

// ParseObject parses one direct object. Indirect references are not
// recognised; use ParseObjectOrReference for that.
func (p *Parser) ParseObject() (PdfObject, error) {
	p.skipWhitespace()
	b, ok := p.peek()
	if !ok {
		return nil, ErrUnexpectedEOF
	}
	switch {
	case b == '(':
		return p.parseString()
	case b == '<':
		if p.pos+1 < len(p.data) && p.data[p.pos+1] == '<' {
			p.pos += 2
			return p.parseDictionary()
		}
		return p.parseHexString()
	case b == '[':
		return p.parseArray()
	case b == '/':
		return p.parseName()
	case b == '-' || b == '+' || b == '.' || (b >= '0' && b <= '9'):
		return p.parseNumber()
	}
	switch tok := p.readToken(); tok {
	case "true":
		return BooleanObject(true), nil
	case "false":
		return BooleanObject(false), nil
	case "null":
		return NullObject{}, nil
	default:
		return nil, fmt.Errorf("%w: unexpected token %q at offset %d", ErrInvalidObject, tok, p.pos)
	}
}

func (p *Parser) parseString() (*StringObject, error) {
	p.pos++ // (
	var buf bytes.Buffer
	depth := 1
	for {
		if p.eof() {
			return nil, fmt.Errorf("%w: unterminated string", ErrInvalidString)
		}
		b := p.data[p.pos]
		p.pos++
		switch b {
		case '(':
			depth++
			buf.WriteByte(b)
		case ')':
			depth--
			if depth == 0 {
				return &StringObject{Value: buf.Bytes()}, nil
			}
			buf.WriteByte(b)
		case '\\':
			if p.eof() {
				return nil, fmt.Errorf("%w: unterminated escape", ErrInvalidString)
			}
			e := p.data[p.pos]
			p.pos++
			switch e {
			case 'n':
				buf.WriteByte('\n')
			case 'r':
				buf.WriteByte('\r')
			case 't':
				buf.WriteByte('\t')
			case 'b':
				buf.WriteByte('\b')
			case 'f':
				buf.WriteByte('\f')
			case '\r':
				if c, ok := p.peek(); ok && c == '\n' {
					p.pos++
				}
			case '\n':
			default:
				if e >= '0' && e <= '7' {
					val := int(e - '0')
					for i := 0; i < 2; i++ {
						c, ok := p.peek()
						if !ok || c < '0' || c > '7' {
							break
						}
						val = val*8 + int(c-'0')
						p.pos++
					}
					buf.WriteByte(byte(val))
				} else {
					buf.WriteByte(e)
				}
			}
		default:
			buf.WriteByte(b)
		}
	}
}

func (p *Parser) parseHexString() (*StringObject, error) {
	p.pos++ // <
	end := bytes.IndexByte(p.data[p.pos:], '>')
	if end < 0 {
		return nil, fmt.Errorf("%w: unterminated hex string", ErrInvalidString)
	}
	digits := make([]byte, 0, end)
	for _, b := range p.data[p.pos : p.pos+end] {
		if !IsWhitespace(b) {
			digits = append(digits, b)
		}
	}
	p.pos += end + 1
	if len(digits)%2 != 0 {
		digits = append(digits, '0')
	}
	data := make([]byte, len(digits)/2)
	if _, err := hex.Decode(data, digits); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidString, err)
	}
	return &StringObject{Value: data, IsHex: true}, nil
}

// parseDictionary parses entries after "<<" up to and including ">>".
func (p *Parser) parseDictionary() (*DictionaryObject, error) {
	dict := NewDictionary()
	for {
		p.skipWhitespace()
		b, ok := p.peek()
		if !ok {
			return nil, fmt.Errorf("%w: unterminated dictionary", ErrInvalidDictionary)
		}
		if b == '>' {
			if p.pos+1 >= len(p.data) || p.data[p.pos+1] != '>' {
				return nil, fmt.Errorf("%w: expected '>>'", ErrInvalidDictionary)
			}
			p.pos += 2
			return dict, nil
		}
		key, err := p.parseName()
		if err != nil {
			return nil, fmt.Errorf("%w: invalid key: %v", ErrInvalidDictionary, err)
		}
		value, err := p.ParseObjectOrReference()
		if err != nil {
			return nil, fmt.Errorf("%w: invalid value for /%s: %v", ErrInvalidDictionary, key, err)
		}
		dict.Set(string(key), value)
	}
}

func (p *Parser) parseArray() (ArrayObject, error) {
	p.pos++ // [
	arr := ArrayObject{}
	for {
		p.skipWhitespace()
		b, ok := p.peek()
		if !ok {
			return nil, fmt.Errorf("%w: unterminated array", ErrInvalidArray)
		}
		if b == ']' {
			p.pos++
			return arr, nil
		}
		obj, err := p.ParseObjectOrReference()
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrInvalidArray, err)
		}
		arr = append(arr, obj)
	}
}

func (p *Parser) parseName() (NameObject, error) {
	p.skipWhitespace()
	if b, ok := p.peek(); !ok || b != '/' {
		return "", ErrInvalidName
	}
	p.pos++
	var buf bytes.Buffer
	for !p.eof() {
		b := p.data[p.pos]
		if IsWhitespace(b) || IsDelimiter(b) {
			break
		}
		p.pos++
		if b == '#' && p.pos+1 < len(p.data) {
			v, err := strconv.ParseUint(string(p.data[p.pos:p.pos+2]), 16, 8)
			if err == nil {
				buf.WriteByte(byte(v))
				p.pos += 2
				continue
			}
		}
		buf.WriteByte(b)
	}
	return NameObject(buf.String()), nil
}

func (p *Parser) parseNumber() (PdfObject, error) {
	p.skipWhitespace()
	start := p.pos
	isReal := false
	for !p.eof() {
		b := p.data[p.pos]
		if b == '.' {
			isReal = true
		} else if (b == '-' || b == '+') && p.pos != start {
			break
		} else if b != '-' && b != '+' && (b < '0' || b > '9') {
			break
		}
		p.pos++
	}
	s := string(p.data[start:p.pos])
	if isReal {
		v, err := strconv.ParseFloat(s, 64)
		if err != nil {
			return nil, fmt.Errorf("%w: %q", ErrInvalidNumber, s)
		}
		return RealObject(v), nil
	}
	v, err := strconv.ParseInt(s, 10, 64)
	if err != nil {
		return nil, fmt.Errorf("%w: %q", ErrInvalidNumber, s)
	}
	return IntegerObject(v), nil
}

// ParseObjectOrReference parses an object, recognising "n g R".
func (p *Parser) ParseObjectOrReference() (PdfObject, error) {
	p.skipWhitespace()
	b, ok := p.peek()
	if !ok {
		return nil, ErrUnexpectedEOF
	}
	if b < '0' || b > '9' {
		return p.ParseObject()
	}
	first, err := p.parseNumber()
	if err != nil {
		return nil, err
	}
	objNum, isInt := first.(IntegerObject)
	if !isInt {
		return first, nil
	}
	afterFirst := p.pos
	if gen, ok := p.tryReferenceTail(); ok {
		return Reference{ObjectNumber: int(objNum), GenerationNumber: gen}, nil
	}
	p.pos = afterFirst
	return first, nil
}

// tryReferenceTail consumes "g R" when present.
func (p *Parser) tryReferenceTail() (int, bool) {
	p.skipWhitespace()
	b, ok := p.peek()
	if !ok || b < '0' || b > '9' {
		return 0, false
	}
	genObj, err := p.parseNumber()
	if err != nil {
		return 0, false
	}
	gen, ok := genObj.(IntegerObject)
	if !ok {
		return 0, false
	}
	p.skipWhitespace()
	if p.pos < len(p.data) && p.data[p.pos] == 'R' &&
		(p.pos+1 == len(p.data) || IsWhitespace(p.data[p.pos+1]) || IsDelimiter(p.data[p.pos+1])) {
		p.pos++
		return int(gen), true
	}
	return 0, false
}

// ParseIndirectObject parses "n g obj ... endobj", including stream data.
func (p *Parser) ParseIndirectObject() (*IndirectObject, error) {
	numObj, err := p.parseNumber()
	if err != nil {
		return nil, fmt.Errorf("%w: invalid object number: %v", ErrInvalidObject, err)
	}
	genObj, err := p.parseNumber()
	if err != nil {
		return nil, fmt.Errorf("%w: invalid generation number: %v", ErrInvalidObject, err)
	}
	objNum, ok1 := numObj.(IntegerObject)
	genNum, ok2 := genObj.(IntegerObject)
	if !ok1 || !ok2 {
		return nil, fmt.Errorf("%w: object header must be integers", ErrInvalidObject)
	}
	if tok := p.readToken(); tok != "obj" {
		return nil, fmt.Errorf("%w: expected 'obj', got %q", ErrInvalidObject, tok)
	}

	obj, err := p.ParseObjectOrReference()
	if err != nil {
		return nil, err
	}

	if dict, ok := obj.(*DictionaryObject); ok {
		p.skipWhitespace()
		if bytes.HasPrefix(p.data[p.pos:], []byte("stream")) {
			p.pos += len("stream")
			data, err := p.readStreamData(dict)
			if err != nil {
				return nil, err
			}
			obj = &StreamObject{Dictionary: dict, Data: data}
		}
	}

	// Some writers omit endobj; tolerate it.
	save := p.pos
	if p.readToken() != "endobj" {
		p.pos = save
	}
	return NewIndirectObject(int(objNum), int(genNum), obj), nil
}

// readStreamData reads the bytes after the "stream" keyword.
func (p *Parser) readStreamData(dict *DictionaryObject) ([]byte, error) {
	if p.pos < len(p.data) && p.data[p.pos] == '\r' {
		p.pos++
	}
	if p.pos < len(p.data) && p.data[p.pos] == '\n' {
		p.pos++
	}
	start := p.pos

	length := int64(-1)
	switch l := dict.Get("Length").(type) {
	case IntegerObject:
		length = int64(l)
	case Reference:
		if p.ResolveLength != nil {
			if n, err := p.ResolveLength(l); err == nil {
				length = n
			}
		}
	}

	if length >= 0 && start+int(length) <= len(p.data) {
		end := start + int(length)
		rest := p.data[end:]
		trimmed := bytes.TrimLeft(rest, " \r\n\t\x00\x0c")
		if bytes.HasPrefix(trimmed, []byte("endstream")) {
			p.pos = end + (len(rest) - len(trimmed)) + len("endstream")
			return p.data[start:end], nil
		}
	}

	// Length missing or wrong: scan for the keyword.
	idx := bytes.Index(p.data[start:], []byte("endstream"))
	if idx < 0 {
		return nil, fmt.Errorf("%w: missing endstream", ErrInvalidStream)
	}
	end := start + idx
	if end > start && p.data[end-1] == '\n' {
		end--
		if end > start && p.data[end-1] == '\r' {
			end--
		}
	} else if end > start && p.data[end-1] == '\r' {
		end--
	}
	p.pos = start + idx + len("endstream")
	return p.data[start:end], nil
}
