package protocol

import (
	"encoding/json"
)

// Method names for the two request modes the engine speaks. Range-scoped
// requests are deliberately not offered.
const (
	MethodInitialize               = "initialize"
	MethodInitialized              = "initialized"
	MethodShutdown                 = "shutdown"
	MethodExit                     = "exit"
	MethodSemanticTokensFull       = "textDocument/semanticTokens/full"
	MethodSemanticTokensFullDelta  = "textDocument/semanticTokens/full/delta"
	MethodWorkspaceTokensRefreshed = "workspace/semanticTokens/refresh"
)

type DocumentURI string

type TextDocumentIdentifier struct {
	URI DocumentURI `json:"uri"`
}

type SemanticTokensParams struct {
	TextDocument TextDocumentIdentifier `json:"textDocument"`
}

type SemanticTokensDeltaParams struct {
	TextDocument     TextDocumentIdentifier `json:"textDocument"`
	PreviousResultID string                 `json:"previousResultId"`
}

// SemanticTokens is a full token payload: the whole relative-position integer
// stream, plus an opaque result id the server will accept in a later delta
// request.
type SemanticTokens struct {
	ResultID string   `json:"resultId,omitempty"`
	Data     []uint32 `json:"data"`
}

// SemanticTokensEdit is one wire-level splice against a previously delivered
// data array. Start and DeleteCount count raw integers, not whole tokens;
// conversion to record units happens at the transport boundary.
type SemanticTokensEdit struct {
	Start       uint32   `json:"start"`
	DeleteCount uint32   `json:"deleteCount"`
	Data        []uint32 `json:"data,omitempty"`
}

type SemanticTokensDelta struct {
	ResultID string               `json:"resultId,omitempty"`
	Edits    []SemanticTokensEdit `json:"edits"`
}

// SemanticTokensResponse is the union a full/delta request can answer with:
// servers return either a fresh full payload or a set of edits, never both.
type SemanticTokensResponse struct {
	Tokens *SemanticTokens
	Delta  *SemanticTokensDelta
}

// UnmarshalJSON disambiguates the union on the presence of an "edits" key.
func (r *SemanticTokensResponse) UnmarshalJSON(data []byte) error {
	var probe struct {
		Edits json.RawMessage `json:"edits"`
	}
	if err := json.Unmarshal(data, &probe); err != nil {
		return err
	}
	if probe.Edits != nil {
		r.Delta = &SemanticTokensDelta{}
		return json.Unmarshal(data, r.Delta)
	}
	r.Tokens = &SemanticTokens{}
	return json.Unmarshal(data, r.Tokens)
}

type SemanticTokensLegend struct {
	TokenTypes     []string `json:"tokenTypes"`
	TokenModifiers []string `json:"tokenModifiers"`
}
