package position

import (
	"unicode/utf16"
)

// Encoding identifies the unit a language server counts column offsets in.
// The host side of this package always works in UTF-8 byte offsets, which is
// what Go string indexing gives us for free.
type Encoding string

const (
	EncodingUTF8  Encoding = "utf-8"
	EncodingUTF16 Encoding = "utf-16"
	EncodingUTF32 Encoding = "utf-32"
)

// ParseEncoding maps an LSP position-encoding kind onto an Encoding.
func ParseEncoding(kind string) (Encoding, bool) {
	switch Encoding(kind) {
	case EncodingUTF8, EncodingUTF16, EncodingUTF32:
		return Encoding(kind), true
	}
	return "", false
}

// ConvertOffset maps unitOffset, counted in enc units from the start of
// lineText, onto a byte offset into lineText.
//
// A zero offset and UTF-8 offsets are returned without scanning the line.
// Everything else walks the line rune by rune, consuming enc units until
// unitOffset of them have been spent.
//
// Returns -1 when unitOffset overruns the line or lands inside a surrogate
// pair. That happens with stale line content or malformed server offsets;
// callers are expected to skip the affected span, not to fail the decode.
func ConvertOffset(lineText string, unitOffset int, enc Encoding) int {
	if unitOffset < 0 {
		return -1
	}
	if unitOffset == 0 {
		return 0
	}
	if enc == EncodingUTF8 {
		if unitOffset > len(lineText) {
			return -1
		}
		return unitOffset
	}

	units := 0
	for i, r := range lineText {
		if units == unitOffset {
			return i
		}
		switch enc {
		case EncodingUTF16:
			if n := utf16.RuneLen(r); n > 0 {
				units += n
			} else {
				units++
			}
		default: // EncodingUTF32 counts codepoints
			units++
		}
		if units > unitOffset {
			// target sits between the two halves of a surrogate pair
			return -1
		}
	}
	if units == unitOffset {
		return len(lineText)
	}
	return -1
}
