package syncer

import (
	"context"

	"github.com/walteh/semsync/pkg/lsp/protocol"
	"github.com/walteh/semsync/pkg/position"
	"github.com/walteh/semsync/pkg/semtok"
)

// Host is the editing surface the engine reconciles highlights against.
// Implementations must tolerate being called from the engine's timer and
// response goroutines.
type Host interface {
	// LineText returns the current content of one line, false when the
	// line does not exist at the document's current revision.
	LineText(doc protocol.DocumentURI, line int) (string, bool)

	// CurrentRevision is the document's edit generation, monotonically
	// increasing with every change.
	CurrentRevision(doc protocol.DocumentURI) int

	// RenderSpans replaces the visual annotation group for (doc, server).
	// The swap must be atomic from the renderer's point of view.
	RenderSpans(doc protocol.DocumentURI, server string, spans []semtok.Span)

	// CursorPosition returns the cursor's (line, byte column) for point
	// queries.
	CursorPosition(doc protocol.DocumentURI) (line, col int)
}

// Advertisement is the distilled outcome of capability negotiation with one
// server. When Supported is false the engine never creates sync contexts
// for the server and every refresh is a no-op.
type Advertisement struct {
	Supported bool
	Delta     bool
	Legend    semtok.Legend
	Encoding  position.Encoding
}

// TokenResult is one server response to a token request. IsDelta selects
// which half of the union is meaningful: Data for a full payload, Edits for
// an incremental one. An empty Edits with IsDelta set is a valid response
// and still triggers a re-decode of the cached stream.
type TokenResult struct {
	ResultID string
	Data     semtok.TokenStream
	Edits    []semtok.Edit
	IsDelta  bool
}

// Transport issues semantic-token requests against one language server.
// Request cancellation is not assumed: a transport may let a stale request
// run to completion, the engine makes late responses harmless on its own.
type Transport interface {
	Negotiate(ctx context.Context, offer protocol.ClientCapabilities) (Advertisement, error)
	TokensFull(ctx context.Context, doc protocol.DocumentURI) (TokenResult, error)
	TokensDelta(ctx context.Context, doc protocol.DocumentURI, previousResultID string) (TokenResult, error)
}

// hostLines adapts the host surface to the decoder's line access.
type hostLines struct {
	host Host
	doc  protocol.DocumentURI
}

func (h hostLines) LineText(line int) (string, bool) {
	return h.host.LineText(h.doc, line)
}
