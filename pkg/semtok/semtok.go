/*
Package semtok models the semantic-token stream a language server delivers
and turns it into renderable highlight spans.

Data flow:

	 +----------------+     +-------------+
	 | flat uint32    | --> | ApplyEdits  |   (delta responses only)
	 | token stream   |     +-------------+
	 +----------------+            |
	         |                     v
	         +------------> +-------------+
	                        |   Decode    |
	                        +-------------+
	                               |
	                               v
	                        +-------------+
	                        |   []Span    |
	                        +-------------+

The stream is five integers per token, each token positioned relative to the
one before it. Decoding is therefore a strict left-to-right fold: a record's
absolute position depends on every record in front of it, and a delta-patched
stream always has to be re-decoded from the top.
*/
package semtok

// RecordSize is the number of integers one token occupies in the wire stream:
// deltaLine, deltaStartCol, length, typeIndex, modifierMask.
const RecordSize = 5

// TokenStream is the flat relative-position integer encoding of a document's
// semantic tokens, exactly as delivered by the server.
type TokenStream []uint32

// Records returns the number of whole token records in the stream.
func (s TokenStream) Records() int {
	return len(s) / RecordSize
}

// Legend is the server-negotiated name table for token types and modifiers.
// It is fixed for the lifetime of one capability negotiation.
type Legend struct {
	Types     []string
	Modifiers []string
}

// Span is one decoded highlight: an absolute byte range on one line, with
// the token's resolved type and modifier names, the server that produced it,
// and the text it covered at decode time.
type Span struct {
	Line      int
	StartByte int
	EndByte   int
	Type      string
	Modifiers []string
	Server    string
	Text      string
}

// Contains reports whether the span covers the given line and byte column.
func (sp Span) Contains(line, byteCol int) bool {
	return sp.Line == line && byteCol >= sp.StartByte && byteCol < sp.EndByte
}
