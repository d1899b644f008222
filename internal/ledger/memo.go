package ledger

import (
	"encoding/base64"
	"strings"
	"unicode/utf8"
)

// Encoding names the strategy that produced a decoded memo.
type Encoding string

const (
	EncodingHex    Encoding = "hex"
	EncodingBase64 Encoding = "base64"
	EncodingRaw    Encoding = "raw"
)

// Decoded is the text of one memo and the strategy that decoded it.
type Decoded struct {
	Text     string
	Encoding Encoding
}

type memoDecoder struct {
	encoding Encoding
	decode   func(string) (string, bool)
}

// decoders returns the strategies in priority order. The last one always
// succeeds.
func decoders() []memoDecoder {
	return []memoDecoder{
		{encoding: EncodingHex, decode: decodeHex},
		{encoding: EncodingBase64, decode: decodeBase64},
		{encoding: EncodingRaw, decode: func(s string) (string, bool) { return s, true }},
	}
}

// DecodeMemoData decodes a MemoData field: hex first, then base64, then the
// input unchanged. It never fails.
func DecodeMemoData(data string) Decoded {
	if data == "" {
		return Decoded{Encoding: EncodingRaw}
	}
	for _, d := range decoders() {
		if text, ok := d.decode(data); ok {
			return Decoded{Text: text, Encoding: d.encoding}
		}
	}
	return Decoded{Text: data, Encoding: EncodingRaw}
}

// DecodeMemos decodes every memo's data field and joins the results with
// newlines. No memos decode to the empty string.
func DecodeMemos(memos []MemoWrapper) string {
	if len(memos) == 0 {
		return ""
	}
	parts := make([]string, 0, len(memos))
	for _, wrapper := range memos {
		parts = append(parts, DecodeMemoData(wrapper.Memo.MemoData).Text)
	}
	return strings.Join(parts, "\n")
}

// decodeHex accepts ASCII whitespace between byte pairs but not inside one.
func decodeHex(s string) (string, bool) {
	raw := make([]byte, 0, len(s)/2)
	for i := 0; i < len(s); {
		if isASCIISpace(s[i]) {
			i++
			continue
		}
		if i+1 >= len(s) {
			return "", false
		}
		hi, ok := hexNibble(s[i])
		if !ok {
			return "", false
		}
		lo, ok := hexNibble(s[i+1])
		if !ok {
			return "", false
		}
		raw = append(raw, hi<<4|lo)
		i += 2
	}
	return replaceInvalidUTF8(raw), true
}

// decodeBase64 skips characters outside the standard alphabet and stops at
// the first completed padding group. Input with no alphabet characters at
// all is left to the raw strategy.
func decodeBase64(s string) (string, bool) {
	cleaned, ok := cleanBase64(s)
	if !ok || cleaned == "" {
		return "", false
	}
	raw, err := base64.StdEncoding.DecodeString(cleaned)
	if err != nil {
		return "", false
	}
	return replaceInvalidUTF8(raw), true
}

func cleanBase64(s string) (string, bool) {
	var b strings.Builder
	b.Grow(len(s))
	quad, pads := 0, 0
	for i := 0; i < len(s); i++ {
		c := s[i]
		if c == '=' {
			pads++
			if quad >= 2 && quad+pads >= 4 {
				b.WriteString(strings.Repeat("=", 4-quad))
				return b.String(), true
			}
			continue
		}
		if !isBase64Char(c) {
			continue
		}
		b.WriteByte(c)
		quad = (quad + 1) % 4
	}
	return b.String(), quad == 0
}

func isBase64Char(c byte) bool {
	return c >= 'A' && c <= 'Z' || c >= 'a' && c <= 'z' || c >= '0' && c <= '9' || c == '+' || c == '/'
}

func isASCIISpace(c byte) bool {
	switch c {
	case ' ', '\t', '\n', '\r', '\v', '\f':
		return true
	}
	return false
}

func hexNibble(c byte) (byte, bool) {
	switch {
	case c >= '0' && c <= '9':
		return c - '0', true
	case c >= 'a' && c <= 'f':
		return c - 'a' + 10, true
	case c >= 'A' && c <= 'F':
		return c - 'A' + 10, true
	}
	return 0, false
}

// replaceInvalidUTF8 substitutes one U+FFFD for each maximal prefix of an
// ill-formed sequence, so a truncated multi-byte character becomes a single
// replacement rune.
func replaceInvalidUTF8(raw []byte) string {
	if utf8.Valid(raw) {
		return string(raw)
	}
	var b strings.Builder
	b.Grow(len(raw) + 8)
	for len(raw) > 0 {
		r, size := utf8.DecodeRune(raw)
		if r == utf8.RuneError && size <= 1 {
			b.WriteRune(utf8.RuneError)
			raw = raw[invalidPrefixLen(raw):]
			continue
		}
		b.WriteRune(r)
		raw = raw[size:]
	}
	return b.String()
}

// invalidPrefixLen reports how many bytes at the start of p form the maximal
// subpart of an ill-formed sequence.
func invalidPrefixLen(p []byte) int {
	lo, hi := byte(0x80), byte(0xBF)
	var need int
	switch lead := p[0]; {
	case lead >= 0xC2 && lead <= 0xDF:
		need = 1
	case lead == 0xE0:
		need, lo = 2, 0xA0
	case lead == 0xED:
		need, hi = 2, 0x9F
	case lead >= 0xE1 && lead <= 0xEF:
		need = 2
	case lead == 0xF0:
		need, lo = 3, 0x90
	case lead == 0xF4:
		need, hi = 3, 0x8F
	case lead >= 0xF1 && lead <= 0xF3:
		need = 3
	default:
		return 1
	}
	n := 1
	for n <= need && n < len(p) {
		if p[n] < lo || p[n] > hi {
			break
		}
		lo, hi = 0x80, 0xBF
		n++
	}
	return n
}
