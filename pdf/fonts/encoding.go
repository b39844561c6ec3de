package fonts

import (
	"unicode/utf16"

	"golang.org/x/text/encoding/charmap"
	"golang.org/x/text/unicode/norm"
)

// EncodeWinAnsi encodes s in Windows-1252, which is what PDF's
// WinAnsiEncoding amounts to for every printable code. The input is NFC
// normalised first so decomposed accents still find their Latin-1 code;
// characters outside the code page become '?'.
func EncodeWinAnsi(s string) []byte {
	s = norm.NFC.String(s)
	out := make([]byte, 0, len(s))
	for _, r := range s {
		if b, ok := charmap.Windows1252.EncodeRune(r); ok {
			out = append(out, b)
		} else {
			out = append(out, '?')
		}
	}
	return out
}

// DecodeWinAnsi is the inverse of EncodeWinAnsi.
func DecodeWinAnsi(data []byte) string {
	runes := make([]rune, len(data))
	for i, b := range data {
		runes[i] = charmap.Windows1252.DecodeByte(b)
	}
	return string(runes)
}

// utf16Hex renders runes as big-endian UTF-16 hex digits for a CMap.
func utf16Hex(runes []rune) string {
	const digits = "0123456789ABCDEF"
	units := utf16.Encode(runes)
	out := make([]byte, 0, len(units)*4)
	for _, u := range units {
		out = append(out, digits[u>>12], digits[u>>8&0xF], digits[u>>4&0xF], digits[u&0xF])
	}
	return string(out)
}
