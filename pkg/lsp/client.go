// Package lsp is the transport half of the engine: a jrpc2-backed client
// that speaks the two semantic-token request modes against a real language
// server over LSP-framed JSON-RPC.
package lsp

import (
	"context"
	"io"
	"os"
	"os/exec"

	"github.com/creachadair/jrpc2"
	"github.com/creachadair/jrpc2/channel"
	"github.com/rs/zerolog"
	"github.com/walteh/semsync/pkg/lsp/protocol"
	"github.com/walteh/semsync/pkg/position"
	"github.com/walteh/semsync/pkg/semtok"
	"github.com/walteh/semsync/pkg/syncer"
	"gitlab.com/tozd/go/errors"
)

// Client implements syncer.Transport over one JSON-RPC connection.
type Client struct {
	rpc *jrpc2.Client
	cmd *exec.Cmd
}

// NewClient wraps an established connection: server output is read from r,
// client requests are written to w.
func NewClient(ctx context.Context, r io.Reader, w io.WriteCloser) *Client {
	copts := &jrpc2.ClientOptions{
		Logger: func(msg string) {
			zerolog.Ctx(ctx).Trace().Msgf("lsp client: %s", msg)
		},
		OnNotify: func(req *jrpc2.Request) {
			// push diagnostics etc. are outside this engine's scope
			zerolog.Ctx(ctx).Debug().Str("method", req.Method()).Msg("ignoring server notification")
		},
	}
	return &Client{rpc: jrpc2.NewClient(channel.LSP(r, w), copts)}
}

// NewCmdClient spawns the server binary and connects over its stdio.
func NewCmdClient(ctx context.Context, cmd *exec.Cmd) (*Client, error) {
	out, err := cmd.StdoutPipe()
	if err != nil {
		return nil, errors.Errorf("getting stdout pipe: %w", err)
	}
	in, err := cmd.StdinPipe()
	if err != nil {
		return nil, errors.Errorf("getting stdin pipe: %w", err)
	}
	if err := cmd.Start(); err != nil {
		return nil, errors.Errorf("starting %s: %w", cmd.Path, err)
	}

	c := NewClient(ctx, out, in)
	c.cmd = cmd
	return c, nil
}

// Negotiate runs the initialize handshake and distills the server's
// semantic-token advertisement out of its capability set.
func (c *Client) Negotiate(ctx context.Context, offer protocol.ClientCapabilities) (syncer.Advertisement, error) {
	params := protocol.InitializeParams{
		ProcessID:    os.Getpid(),
		ClientInfo:   &protocol.ClientInfo{Name: "semsync"},
		Capabilities: offer,
	}
	var result protocol.InitializeResult
	if err := c.call(ctx, protocol.MethodInitialize, params, &result); err != nil {
		return syncer.Advertisement{}, errors.Errorf("initialize: %w", err)
	}
	if err := c.rpc.Notify(ctx, protocol.MethodInitialized, struct{}{}); err != nil {
		return syncer.Advertisement{}, errors.Errorf("initialized notification: %w", err)
	}
	return DistillAdvertisement(result.Capabilities), nil
}

// DistillAdvertisement reduces a server capability set to the parts the
// engine acts on. Missing or range-only token support comes back as
// Supported == false, which turns every refresh into a no-op.
func DistillAdvertisement(caps protocol.ServerCapabilities) syncer.Advertisement {
	provider := caps.SemanticTokensProvider
	if provider == nil || provider.Full == nil || !provider.Full.Supported {
		return syncer.Advertisement{}
	}
	adv := syncer.Advertisement{
		Supported: true,
		Delta:     provider.Full.Delta,
		Legend: semtok.Legend{
			Types:     provider.Legend.TokenTypes,
			Modifiers: provider.Legend.TokenModifiers,
		},
		Encoding: position.EncodingUTF16,
	}
	if enc, ok := position.ParseEncoding(caps.PositionEncoding); ok {
		adv.Encoding = enc
	}
	return adv
}

func (c *Client) TokensFull(ctx context.Context, doc protocol.DocumentURI) (syncer.TokenResult, error) {
	params := protocol.SemanticTokensParams{
		TextDocument: protocol.TextDocumentIdentifier{URI: doc},
	}
	var tokens protocol.SemanticTokens
	if err := c.call(ctx, protocol.MethodSemanticTokensFull, params, &tokens); err != nil {
		return syncer.TokenResult{}, errors.Errorf("semanticTokens/full: %w", err)
	}
	return syncer.TokenResult{
		ResultID: tokens.ResultID,
		Data:     semtok.TokenStream(tokens.Data),
	}, nil
}

func (c *Client) TokensDelta(ctx context.Context, doc protocol.DocumentURI, previousResultID string) (syncer.TokenResult, error) {
	params := protocol.SemanticTokensDeltaParams{
		TextDocument:     protocol.TextDocumentIdentifier{URI: doc},
		PreviousResultID: previousResultID,
	}
	var res protocol.SemanticTokensResponse
	if err := c.call(ctx, protocol.MethodSemanticTokensFullDelta, params, &res); err != nil {
		return syncer.TokenResult{}, errors.Errorf("semanticTokens/full/delta: %w", err)
	}

	// the server is free to answer a delta request with a fresh full payload
	if res.Delta == nil {
		if res.Tokens == nil {
			return syncer.TokenResult{}, errors.Errorf("empty semanticTokens/full/delta response")
		}
		return syncer.TokenResult{
			ResultID: res.Tokens.ResultID,
			Data:     semtok.TokenStream(res.Tokens.Data),
		}, nil
	}

	edits, err := RecordEdits(res.Delta.Edits)
	if err != nil {
		return syncer.TokenResult{}, err
	}
	return syncer.TokenResult{
		ResultID: res.Delta.ResultID,
		Edits:    edits,
		IsDelta:  true,
	}, nil
}

// RecordEdits converts wire-level edits, which index raw integers, into the
// engine's record-indexed form. An offset that is not a whole number of
// records would splice through the middle of a token; that is a protocol
// violation and fails the conversion.
func RecordEdits(edits []protocol.SemanticTokensEdit) ([]semtok.Edit, error) {
	out := make([]semtok.Edit, 0, len(edits))
	for _, e := range edits {
		if e.Start%semtok.RecordSize != 0 || e.DeleteCount%semtok.RecordSize != 0 {
			return nil, errors.Errorf("token edit [%d,+%d) is not record aligned", e.Start, e.DeleteCount)
		}
		out = append(out, semtok.Edit{
			Start:       int(e.Start) / semtok.RecordSize,
			DeleteCount: int(e.DeleteCount) / semtok.RecordSize,
			Data:        semtok.TokenStream(e.Data),
		})
	}
	return out, nil
}

func (c *Client) call(ctx context.Context, method string, params, result any) error {
	resp, err := c.rpc.Call(ctx, method, params)
	if err != nil {
		return err
	}
	if result == nil {
		return nil
	}
	return resp.UnmarshalResult(result)
}

// Close shuts the server down politely, then tears the connection down and
// reaps the spawned process, if this client owns one.
func (c *Client) Close() error {
	ctx := context.Background()
	if _, err := c.rpc.Call(ctx, protocol.MethodShutdown, nil); err == nil {
		_ = c.rpc.Notify(ctx, protocol.MethodExit, nil)
	}
	err := c.rpc.Close()
	if c.cmd != nil {
		if werr := c.cmd.Wait(); werr != nil && err == nil {
			err = werr
		}
	}
	return err
}
