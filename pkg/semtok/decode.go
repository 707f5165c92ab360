package semtok

import (
	"github.com/walteh/semsync/pkg/position"
)

// LineReader supplies the current content of a document line. The second
// return is false when the line does not exist, which happens when the
// server's stream is stale relative to the document.
type LineReader interface {
	LineText(line int) (string, bool)
}

// Decode folds a flat token stream into absolute highlight spans.
//
// A running (line, col) cursor in server column units is threaded through
// the whole stream. Converted byte offsets never feed back into the cursor;
// conversion failures only affect the record they happen on. A malformed
// record (missing line, unresolvable type index, column past the end of the
// line, trailing partial record) is skipped and the fold continues as if its
// highlight had been attempted.
//
// Spans come out in input order. Within one full payload that order is also
// position order, but delta-patched streams make no such promise and callers
// must not rely on it.
func Decode(stream TokenStream, legend Legend, lines LineReader, enc position.Encoding, server string) []Span {
	spans := make([]Span, 0, stream.Records())

	line, col := 0, 0
	for i := 0; i+RecordSize <= len(stream); i += RecordSize {
		deltaLine := int(stream[i])
		deltaStart := int(stream[i+1])
		length := int(stream[i+2])
		typeIdx := int(stream[i+3])
		mask := stream[i+4]

		if deltaLine != 0 {
			line += deltaLine
			col = deltaStart
		} else {
			col += deltaStart
		}
		startCol := col
		endCol := col + length

		text, ok := lines.LineText(line)
		if !ok {
			continue
		}
		typeName := legend.TypeName(typeIdx)
		if typeName == "" {
			continue
		}
		startByte := position.ConvertOffset(text, startCol, enc)
		endByte := position.ConvertOffset(text, endCol, enc)
		if startByte < 0 || endByte < 0 || endByte < startByte {
			continue
		}

		spans = append(spans, Span{
			Line:      line,
			StartByte: startByte,
			EndByte:   endByte,
			Type:      typeName,
			Modifiers: legend.ModifierNames(mask),
			Server:    server,
			Text:      text[startByte:endByte],
		})
	}
	return spans
}
