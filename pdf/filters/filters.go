// Package filters implements the PDF stream filters needed to read the
// structural streams of a document (object streams, cross-reference
// streams) and to compress the streams the flattener appends.
package filters

import (
	"bytes"
	"compress/zlib"
	"encoding/ascii85"
	"encoding/hex"
	"errors"
	"fmt"
	"io"

	"github.com/hhrutter/lzw"

	"github.com/georgepadayatti/pdfflatten/pdf/generic"
)

// Common errors
var (
	ErrUnsupportedFilter = errors.New("unsupported filter")
	ErrDecodeFailed      = errors.New("decode failed")
	ErrInvalidPredictor  = errors.New("invalid predictor")
)

// Filter decodes one stage of a stream's filter pipeline. Params is the
// matching /DecodeParms dictionary and may be nil.
type Filter interface {
	Name() string
	Decode(data []byte, params *generic.DictionaryObject) ([]byte, error)
}

var registry = map[string]Filter{}

func register(f Filter, aliases ...string) {
	registry[f.Name()] = f
	for _, a := range aliases {
		registry[a] = f
	}
}

func init() {
	register(flateDecode{}, "Fl")
	register(asciiHexDecode{}, "AHx")
	register(ascii85Decode{}, "A85")
	register(lzwDecode{}, "LZW")
	register(runLengthDecode{}, "RL")
}

// GetFilter returns the filter registered under name (full or abbreviated).
func GetFilter(name string) (Filter, error) {
	f, ok := registry[name]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnsupportedFilter, name)
	}
	return f, nil
}

// Decode applies the /Filter chain of a stream dictionary to data. Only
// direct /Filter and /DecodeParms values are honoured.
func Decode(data []byte, dict *generic.DictionaryObject) ([]byte, error) {
	names, parms := pipeline(dict)
	for i, name := range names {
		f, err := GetFilter(name)
		if err != nil {
			return nil, err
		}
		data, err = f.Decode(data, parms[i])
		if err != nil {
			return nil, fmt.Errorf("%s: %w", name, err)
		}
	}
	return data, nil
}

func pipeline(dict *generic.DictionaryObject) ([]string, []*generic.DictionaryObject) {
	var names []string
	switch v := dict.Get("Filter").(type) {
	case generic.NameObject:
		names = []string{string(v)}
	case generic.ArrayObject:
		for _, item := range v {
			if n, ok := item.(generic.NameObject); ok {
				names = append(names, string(n))
			}
		}
	}
	parms := make([]*generic.DictionaryObject, len(names))
	switch v := dict.Get("DecodeParms").(type) {
	case *generic.DictionaryObject:
		if len(parms) > 0 {
			parms[0] = v
		}
	case generic.ArrayObject:
		for i, item := range v {
			if d, ok := item.(*generic.DictionaryObject); ok && i < len(parms) {
				parms[i] = d
			}
		}
	}
	return names, parms
}

// FlateEncode compresses data with zlib at the best compression level.
func FlateEncode(data []byte) ([]byte, error) {
	var buf bytes.Buffer
	w, err := zlib.NewWriterLevel(&buf, zlib.BestCompression)
	if err != nil {
		return nil, err
	}
	if _, err := w.Write(data); err != nil {
		return nil, err
	}
	if err := w.Close(); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// NewFlateStream builds a FlateDecode stream for data, keeping the
// uncompressed bytes as the decoded view.
func NewFlateStream(dict *generic.DictionaryObject, data []byte) (*generic.StreamObject, error) {
	encoded, err := FlateEncode(data)
	if err != nil {
		return nil, err
	}
	s := generic.NewStream(dict, encoded)
	s.Decoded = data
	s.Dictionary.Set("Filter", generic.NameObject("FlateDecode"))
	return s, nil
}

func intParam(params *generic.DictionaryObject, key string, def int) int {
	if v, ok := params.GetInt(key); ok {
		return int(v)
	}
	return def
}

type flateDecode struct{}

func (flateDecode) Name() string { return "FlateDecode" }

func (flateDecode) Decode(data []byte, params *generic.DictionaryObject) ([]byte, error) {
	r, err := zlib.NewReader(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrDecodeFailed, err)
	}
	defer r.Close()

	out, err := io.ReadAll(r)
	// Truncated zlib trailers are common; keep what inflated cleanly.
	if err != nil && len(out) == 0 {
		return nil, fmt.Errorf("%w: %v", ErrDecodeFailed, err)
	}
	return applyPredictor(out, params)
}

func applyPredictor(data []byte, params *generic.DictionaryObject) ([]byte, error) {
	predictor := intParam(params, "Predictor", 1)
	if predictor == 1 {
		return data, nil
	}
	colors := intParam(params, "Colors", 1)
	bpc := intParam(params, "BitsPerComponent", 8)
	columns := intParam(params, "Columns", 1)

	switch {
	case predictor == 2:
		return tiffPredictor(data, colors, bpc, columns)
	case predictor >= 10 && predictor <= 15:
		return pngPredictor(data, colors, bpc, columns)
	}
	return nil, fmt.Errorf("%w: %d", ErrInvalidPredictor, predictor)
}

func tiffPredictor(data []byte, colors, bpc, columns int) ([]byte, error) {
	if bpc != 8 {
		return nil, fmt.Errorf("%w: TIFF predictor with %d bits per component", ErrInvalidPredictor, bpc)
	}
	rowLen := colors * columns
	if rowLen <= 0 {
		return nil, ErrInvalidPredictor
	}
	out := bytes.Clone(data)
	for row := 0; row*rowLen < len(out); row++ {
		start := row * rowLen
		end := min(start+rowLen, len(out))
		for i := start + colors; i < end; i++ {
			out[i] += out[i-colors]
		}
	}
	return out, nil
}

func pngPredictor(data []byte, colors, bpc, columns int) ([]byte, error) {
	bpp := max(1, (colors*bpc+7)/8)
	rowLen := (colors*bpc*columns + 7) / 8
	if rowLen <= 0 {
		return nil, ErrInvalidPredictor
	}

	out := make([]byte, 0, len(data))
	prev := make([]byte, rowLen)
	row := make([]byte, rowLen)
	for pos := 0; pos < len(data); pos += rowLen + 1 {
		filterType := data[pos]
		n := copy(row, data[pos+1:min(pos+1+rowLen, len(data))])
		clear(row[n:])

		for i := 0; i < rowLen; i++ {
			var left, upLeft byte
			if i >= bpp {
				left = row[i-bpp]
				upLeft = prev[i-bpp]
			}
			up := prev[i]
			switch filterType {
			case 0:
			case 1:
				row[i] += left
			case 2:
				row[i] += up
			case 3:
				row[i] += byte((int(left) + int(up)) / 2)
			case 4:
				row[i] += paeth(left, up, upLeft)
			default:
				return nil, fmt.Errorf("%w: PNG row filter %d", ErrInvalidPredictor, filterType)
			}
		}
		out = append(out, row[:n]...)
		prev, row = row, prev
	}
	return out, nil
}

func paeth(a, b, c byte) byte {
	p := int(a) + int(b) - int(c)
	pa := abs(p - int(a))
	pb := abs(p - int(b))
	pc := abs(p - int(c))
	if pa <= pb && pa <= pc {
		return a
	}
	if pb <= pc {
		return b
	}
	return c
}

func abs(x int) int {
	if x < 0 {
		return -x
	}
	return x
}

type asciiHexDecode struct{}

func (asciiHexDecode) Name() string { return "ASCIIHexDecode" }

func (asciiHexDecode) Decode(data []byte, _ *generic.DictionaryObject) ([]byte, error) {
	cleaned := make([]byte, 0, len(data))
	for _, b := range data {
		if b == '>' {
			break
		}
		if !generic.IsWhitespace(b) {
			cleaned = append(cleaned, b)
		}
	}
	if len(cleaned)%2 != 0 {
		cleaned = append(cleaned, '0')
	}
	out := make([]byte, hex.DecodedLen(len(cleaned)))
	if _, err := hex.Decode(out, cleaned); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrDecodeFailed, err)
	}
	return out, nil
}

type ascii85Decode struct{}

func (ascii85Decode) Name() string { return "ASCII85Decode" }

func (ascii85Decode) Decode(data []byte, _ *generic.DictionaryObject) ([]byte, error) {
	if end := bytes.Index(data, []byte("~>")); end != -1 {
		data = data[:end]
	}
	data = bytes.TrimPrefix(bytes.TrimSpace(data), []byte("<~"))
	cleaned := make([]byte, 0, len(data))
	for _, b := range data {
		if !generic.IsWhitespace(b) {
			cleaned = append(cleaned, b)
		}
	}
	out, err := io.ReadAll(ascii85.NewDecoder(bytes.NewReader(cleaned)))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrDecodeFailed, err)
	}
	return out, nil
}

type lzwDecode struct{}

func (lzwDecode) Name() string { return "LZWDecode" }

func (lzwDecode) Decode(data []byte, params *generic.DictionaryObject) ([]byte, error) {
	earlyChange := intParam(params, "EarlyChange", 1) == 1
	rc := lzw.NewReader(bytes.NewReader(data), earlyChange)
	defer rc.Close()
	out, err := io.ReadAll(rc)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrDecodeFailed, err)
	}
	return applyPredictor(out, params)
}

type runLengthDecode struct{}

func (runLengthDecode) Name() string { return "RunLengthDecode" }

func (runLengthDecode) Decode(data []byte, _ *generic.DictionaryObject) ([]byte, error) {
	var out bytes.Buffer
	for i := 0; i < len(data); {
		n := int(data[i])
		i++
		switch {
		case n == 128:
			return out.Bytes(), nil
		case n < 128:
			end := i + n + 1
			if end > len(data) {
				return nil, fmt.Errorf("%w: run length literal overruns data", ErrDecodeFailed)
			}
			out.Write(data[i:end])
			i = end
		default:
			if i >= len(data) {
				return nil, fmt.Errorf("%w: run length repeat overruns data", ErrDecodeFailed)
			}
			out.Write(bytes.Repeat(data[i:i+1], 257-n))
			i++
		}
	}
	return out.Bytes(), nil
}
