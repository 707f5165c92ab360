package protocol

import (
	"encoding/json"
)

// TokenFormatRelative is the only token encoding the engine understands.
const TokenFormatRelative = "relative"

// Standard token type and modifier names from the LSP 3.17 registry. These
// are the fixed name lists the client offers during negotiation; servers may
// answer with any legend, known names or not.
var (
	StandardTokenTypes = []string{
		"namespace", "type", "class", "enum", "interface", "struct",
		"typeParameter", "parameter", "variable", "property", "enumMember",
		"event", "function", "method", "macro", "keyword", "modifier",
		"comment", "string", "number", "regexp", "operator", "decorator",
	}
	StandardTokenModifiers = []string{
		"declaration", "definition", "readonly", "static", "deprecated",
		"abstract", "async", "modification", "documentation", "defaultLibrary",
	}
)

type ClientCapabilities struct {
	TextDocument TextDocumentClientCapabilities `json:"textDocument"`
	General      GeneralClientCapabilities      `json:"general"`
}

type TextDocumentClientCapabilities struct {
	SemanticTokens SemanticTokensClientCapabilities `json:"semanticTokens"`
}

type GeneralClientCapabilities struct {
	PositionEncodings []string `json:"positionEncodings,omitempty"`
}

// SemanticTokensClientCapabilities is the offer the engine makes: full and
// full-with-delta requests only, relative token format only, no multiline or
// overlapping tokens, no server-initiated cancellation.
type SemanticTokensClientCapabilities struct {
	Requests                SemanticTokensRequests `json:"requests"`
	TokenTypes              []string               `json:"tokenTypes"`
	TokenModifiers          []string               `json:"tokenModifiers"`
	Formats                 []string               `json:"formats"`
	OverlappingTokenSupport bool                   `json:"overlappingTokenSupport"`
	MultilineTokenSupport   bool                   `json:"multilineTokenSupport"`
	ServerCancelSupport     bool                   `json:"serverCancelSupport"`
}

type SemanticTokensRequests struct {
	Range bool                 `json:"range"`
	Full  *SemanticTokensOptIn `json:"full,omitempty"`
}

// SemanticTokensOptIn appears in capability payloads as either a bare bool
// or an object with a delta flag. Both mean "supported"; the object form can
// additionally opt into deltas.
type SemanticTokensOptIn struct {
	Supported bool
	Delta     bool
}

func (o *SemanticTokensOptIn) UnmarshalJSON(data []byte) error {
	var flag bool
	if err := json.Unmarshal(data, &flag); err == nil {
		o.Supported = flag
		o.Delta = false
		return nil
	}
	var obj struct {
		Delta bool `json:"delta"`
	}
	if err := json.Unmarshal(data, &obj); err != nil {
		return err
	}
	o.Supported = true
	o.Delta = obj.Delta
	return nil
}

func (o SemanticTokensOptIn) MarshalJSON() ([]byte, error) {
	if !o.Supported {
		return []byte("false"), nil
	}
	if !o.Delta {
		return []byte("true"), nil
	}
	return json.Marshal(struct {
		Delta bool `json:"delta"`
	}{Delta: o.Delta})
}

// NewClientCapabilities builds the engine's capability offer.
func NewClientCapabilities() ClientCapabilities {
	return ClientCapabilities{
		TextDocument: TextDocumentClientCapabilities{
			SemanticTokens: SemanticTokensClientCapabilities{
				Requests: SemanticTokensRequests{
					Range: false,
					Full:  &SemanticTokensOptIn{Supported: true, Delta: true},
				},
				TokenTypes:              StandardTokenTypes,
				TokenModifiers:          StandardTokenModifiers,
				Formats:                 []string{TokenFormatRelative},
				OverlappingTokenSupport: false,
				MultilineTokenSupport:   false,
				ServerCancelSupport:     false,
			},
		},
		General: GeneralClientCapabilities{
			PositionEncodings: []string{"utf-16", "utf-8", "utf-32"},
		},
	}
}

type InitializeParams struct {
	ProcessID    int                `json:"processId"`
	ClientInfo   *ClientInfo        `json:"clientInfo,omitempty"`
	Capabilities ClientCapabilities `json:"capabilities"`
}

type ClientInfo struct {
	Name    string `json:"name"`
	Version string `json:"version,omitempty"`
}

type InitializeResult struct {
	Capabilities ServerCapabilities `json:"capabilities"`
	ServerInfo   *ServerInfo        `json:"serverInfo,omitempty"`
}

type ServerInfo struct {
	Name    string `json:"name"`
	Version string `json:"version,omitempty"`
}

type ServerCapabilities struct {
	PositionEncoding       string                 `json:"positionEncoding,omitempty"`
	SemanticTokensProvider *SemanticTokensOptions `json:"semanticTokensProvider,omitempty"`
}

// SemanticTokensOptions is the server's advertisement: its legend and which
// request modes it will answer.
type SemanticTokensOptions struct {
	Legend SemanticTokensLegend `json:"legend"`
	Range  *SemanticTokensOptIn `json:"range,omitempty"`
	Full   *SemanticTokensOptIn `json:"full,omitempty"`
}
