package syncer_test

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/walteh/semsync/pkg/document"
	"github.com/walteh/semsync/pkg/lsp/protocol"
	"github.com/walteh/semsync/pkg/position"
	"github.com/walteh/semsync/pkg/semtok"
	"github.com/walteh/semsync/pkg/syncer"
	"gitlab.com/tozd/go/errors"
)

const docURI = protocol.DocumentURI("/test/main.go")

var testLegend = semtok.Legend{
	Types:     []string{"keyword", "variable"},
	Modifiers: []string{"readonly"},
}

// letStream tokenizes "let x = 1": keyword at 0-3, readonly variable at 4-5.
var letStream = semtok.TokenStream{0, 0, 3, 0, 0, 0, 4, 1, 1, 1}

func adv(delta bool) syncer.Advertisement {
	return syncer.Advertisement{
		Supported: true,
		Delta:     delta,
		Legend:    testLegend,
		Encoding:  position.EncodingUTF16,
	}
}

type fakeTransport struct {
	adv syncer.Advertisement

	full  func(doc protocol.DocumentURI) (syncer.TokenResult, error)
	delta func(doc protocol.DocumentURI, prev string) (syncer.TokenResult, error)

	mu         sync.Mutex
	fullCalls  int
	deltaCalls int
	lastPrev   string
	closed     bool
	gate       chan struct{}
}

func (f *fakeTransport) Negotiate(ctx context.Context, offer protocol.ClientCapabilities) (syncer.Advertisement, error) {
	return f.adv, nil
}

func (f *fakeTransport) TokensFull(ctx context.Context, doc protocol.DocumentURI) (syncer.TokenResult, error) {
	f.mu.Lock()
	f.fullCalls++
	gate := f.gate
	f.mu.Unlock()
	if gate != nil {
		<-gate
	}
	return f.full(doc)
}

func (f *fakeTransport) TokensDelta(ctx context.Context, doc protocol.DocumentURI, prev string) (syncer.TokenResult, error) {
	f.mu.Lock()
	f.deltaCalls++
	f.lastPrev = prev
	gate := f.gate
	f.mu.Unlock()
	if gate != nil {
		<-gate
	}
	return f.delta(doc, prev)
}

func (f *fakeTransport) Close() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.closed = true
	return nil
}

func (f *fakeTransport) calls() (full, delta int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.fullCalls, f.deltaCalls
}

// newEngine wires a document manager, a syncer, and one registered server
// named "srv" together the way a host would.
func newEngine(t *testing.T, ft *fakeTransport, debounce time.Duration, selector ...string) (*document.Manager, *syncer.Syncer) {
	t.Helper()
	mgr := document.NewManager()
	s := syncer.New(mgr, syncer.WithDebounce(debounce))
	require.NoError(t, s.RegisterServer(context.Background(), "srv", ft, selector...))
	mgr.OnChange(s.DocumentChanged)
	mgr.OnClose(s.DocumentClosed)
	t.Cleanup(func() { _ = s.Close() })
	return mgr, s
}

func eventually(t *testing.T, cond func() bool, msg string) {
	t.Helper()
	require.Eventually(t, cond, 2*time.Second, 5*time.Millisecond, msg)
}

func TestFullRefresh(t *testing.T) {
	ft := &fakeTransport{
		adv: adv(false),
		full: func(protocol.DocumentURI) (syncer.TokenResult, error) {
			return syncer.TokenResult{ResultID: "r1", Data: letStream}, nil
		},
	}
	mgr, s := newEngine(t, ft, 10*time.Millisecond)

	mgr.Open(docURI, "let x = 1")

	eventually(t, func() bool {
		return len(s.Store().Group(docURI, "srv")) == 2
	}, "spans never appeared")

	spans := s.Store().Group(docURI, "srv")
	assert.Equal(t, "keyword", spans[0].Type)
	assert.Equal(t, "let", spans[0].Text)
	assert.Equal(t, "variable", spans[1].Type)
	assert.Equal(t, "x", spans[1].Text)
	assert.Equal(t, []string{"readonly"}, spans[1].Modifiers)
	assert.Equal(t, "srv", spans[1].Server)

	// host rendering saw the same atomic group
	assert.Equal(t, spans, mgr.Rendered(docURI, "srv"))
}

func TestFullRefreshIsIdempotent(t *testing.T) {
	ft := &fakeTransport{
		adv: adv(false),
		full: func(protocol.DocumentURI) (syncer.TokenResult, error) {
			return syncer.TokenResult{ResultID: "r1", Data: letStream}, nil
		},
	}
	mgr, s := newEngine(t, ft, 5*time.Millisecond)

	mgr.Open(docURI, "let x = 1")
	eventually(t, func() bool { return len(s.Store().Group(docURI, "srv")) == 2 }, "first refresh")
	first := s.Store().Group(docURI, "srv")

	s.Refresh(docURI)
	eventually(t, func() bool {
		full, _ := ft.calls()
		return full == 2
	}, "second refresh")
	eventually(t, func() bool { return len(s.Store().Group(docURI, "srv")) == 2 }, "second group")

	assert.Equal(t, first, s.Store().Group(docURI, "srv"))
}

func TestDebounceCoalescesBursts(t *testing.T) {
	ft := &fakeTransport{
		adv: adv(false),
		full: func(protocol.DocumentURI) (syncer.TokenResult, error) {
			return syncer.TokenResult{ResultID: "r1", Data: letStream}, nil
		},
	}
	mgr, _ := newEngine(t, ft, 60*time.Millisecond)

	mgr.Open(docURI, "let x = 1")
	for range 4 {
		require.NoError(t, mgr.Update(docURI, "let x = 1"))
	}

	eventually(t, func() bool {
		full, _ := ft.calls()
		return full == 1
	}, "request never issued")

	// let any stragglers surface
	time.Sleep(150 * time.Millisecond)
	full, delta := ft.calls()
	assert.Equal(t, 1, full, "burst of 5 changes must coalesce into one request")
	assert.Equal(t, 0, delta)
}

func TestInFlightRequestIsExclusive(t *testing.T) {
	gate := make(chan struct{})
	ft := &fakeTransport{
		adv:  adv(false),
		gate: gate,
		full: func(protocol.DocumentURI) (syncer.TokenResult, error) {
			return syncer.TokenResult{ResultID: "r1", Data: letStream}, nil
		},
	}
	mgr, _ := newEngine(t, ft, 10*time.Millisecond)

	mgr.Open(docURI, "let x = 1")
	eventually(t, func() bool {
		full, _ := ft.calls()
		return full == 1
	}, "first request")

	// a change while the request hangs must not spawn a second request
	require.NoError(t, mgr.Update(docURI, "let y = 1"))
	time.Sleep(80 * time.Millisecond)
	full, _ := ft.calls()
	assert.Equal(t, 1, full, "second request issued while first still in flight")

	// once the first completes, the superseded change is served
	close(gate)
	eventually(t, func() bool {
		full, _ := ft.calls()
		return full == 2
	}, "superseded change never refreshed")
}

func TestRequestErrorKeepsPreviousHighlights(t *testing.T) {
	ft := &fakeTransport{adv: adv(false)}
	ft.full = func(protocol.DocumentURI) (syncer.TokenResult, error) {
		ft.mu.Lock()
		n := ft.fullCalls
		ft.mu.Unlock()
		if n > 1 {
			return syncer.TokenResult{}, errors.New("server fell over")
		}
		return syncer.TokenResult{ResultID: "r1", Data: letStream}, nil
	}
	mgr, s := newEngine(t, ft, 10*time.Millisecond)

	mgr.Open(docURI, "let x = 1")
	eventually(t, func() bool { return len(s.Store().Group(docURI, "srv")) == 2 }, "initial refresh")
	before := s.Store().Group(docURI, "srv")

	require.NoError(t, mgr.Update(docURI, "zzz"))
	eventually(t, func() bool {
		full, _ := ft.calls()
		return full == 2
	}, "retry request")
	time.Sleep(50 * time.Millisecond)

	assert.Equal(t, before, s.Store().Group(docURI, "srv"),
		"failed refresh must not touch rendered spans")
}

func TestDeltaRequestPatchesAndRedecodes(t *testing.T) {
	ft := &fakeTransport{adv: adv(true)}
	ft.full = func(protocol.DocumentURI) (syncer.TokenResult, error) {
		return syncer.TokenResult{ResultID: "r1", Data: letStream}, nil
	}
	ft.delta = func(_ protocol.DocumentURI, prev string) (syncer.TokenResult, error) {
		// replace the variable record with one three columns long
		return syncer.TokenResult{
			ResultID: "r2",
			IsDelta:  true,
			Edits: []semtok.Edit{
				{Start: 1, DeleteCount: 1, Data: semtok.TokenStream{0, 4, 3, 1, 1}},
			},
		}, nil
	}
	mgr, s := newEngine(t, ft, 10*time.Millisecond)

	mgr.Open(docURI, "let x = 1")
	eventually(t, func() bool { return len(s.Store().Group(docURI, "srv")) == 2 }, "initial refresh")

	require.NoError(t, mgr.Update(docURI, "let xyz = 1"))
	eventually(t, func() bool {
		_, delta := ft.calls()
		return delta == 1
	}, "delta request")
	eventually(t, func() bool {
		g := s.Store().Group(docURI, "srv")
		return len(g) == 2 && g[1].Text == "xyz"
	}, "patched span never rendered")

	ft.mu.Lock()
	prev := ft.lastPrev
	ft.mu.Unlock()
	assert.Equal(t, "r1", prev, "delta request must carry the cached result id")

	full, _ := ft.calls()
	assert.Equal(t, 1, full, "delta-capable flow must not fall back to full")
}

func TestDeltaWithEmptyEditsRedecodesAgainstFreshText(t *testing.T) {
	ft := &fakeTransport{adv: adv(true)}
	ft.full = func(protocol.DocumentURI) (syncer.TokenResult, error) {
		return syncer.TokenResult{ResultID: "r1", Data: letStream}, nil
	}
	ft.delta = func(protocol.DocumentURI, string) (syncer.TokenResult, error) {
		return syncer.TokenResult{ResultID: "r2", IsDelta: true}, nil
	}
	mgr, s := newEngine(t, ft, 10*time.Millisecond)

	mgr.Open(docURI, "let x = 1")
	eventually(t, func() bool { return len(s.Store().Group(docURI, "srv")) == 2 }, "initial refresh")

	// same token positions, different text underneath
	require.NoError(t, mgr.Update(docURI, "for i = 1"))
	eventually(t, func() bool {
		g := s.Store().Group(docURI, "srv")
		return len(g) == 2 && g[0].Text == "for"
	}, "empty delta must still re-decode the cached stream")
}

func TestStaleTimerIsDropped(t *testing.T) {
	ft := &fakeTransport{
		adv: adv(false),
		full: func(protocol.DocumentURI) (syncer.TokenResult, error) {
			return syncer.TokenResult{ResultID: "r1", Data: letStream}, nil
		},
	}
	// change notifications are delivered by hand here
	mgr := document.NewManager()
	s := syncer.New(mgr, syncer.WithDebounce(20*time.Millisecond))
	require.NoError(t, s.RegisterServer(context.Background(), "srv", ft))
	t.Cleanup(func() { _ = s.Close() })

	mgr.Open(docURI, "let x = 1")
	s.DocumentChanged(docURI, 1)
	// the document moves on before the timer fires; the engine never hears
	// about revision 2, so the stale timer must drop silently
	require.NoError(t, mgr.Update(docURI, "let y = 1"))

	time.Sleep(100 * time.Millisecond)
	full, delta := ft.calls()
	assert.Zero(t, full)
	assert.Zero(t, delta)
}

func TestDocumentCloseDiscardsEverything(t *testing.T) {
	gate := make(chan struct{})
	ft := &fakeTransport{
		adv:  adv(false),
		gate: gate,
		full: func(protocol.DocumentURI) (syncer.TokenResult, error) {
			return syncer.TokenResult{ResultID: "r1", Data: letStream}, nil
		},
	}
	mgr, s := newEngine(t, ft, 10*time.Millisecond)

	mgr.Open(docURI, "let x = 1")
	eventually(t, func() bool {
		full, _ := ft.calls()
		return full == 1
	}, "request issued")

	// close while the response is still in flight
	mgr.Close(docURI)
	close(gate)

	time.Sleep(50 * time.Millisecond)
	assert.Empty(t, s.Store().Group(docURI, "srv"),
		"late response for a closed document must be discarded")
	assert.Empty(t, s.QueryAt(docURI, 0, 1))
}

func TestServerWithoutTokenSupportIsNoop(t *testing.T) {
	ft := &fakeTransport{adv: syncer.Advertisement{Supported: false}}
	mgr, s := newEngine(t, ft, 5*time.Millisecond)

	mgr.Open(docURI, "let x = 1")
	time.Sleep(50 * time.Millisecond)

	full, delta := ft.calls()
	assert.Zero(t, full)
	assert.Zero(t, delta)
	assert.Empty(t, s.Store().Group(docURI, "srv"))
}

func TestDocumentSelectorFiltersServers(t *testing.T) {
	ft := &fakeTransport{
		adv: adv(false),
		full: func(protocol.DocumentURI) (syncer.TokenResult, error) {
			return syncer.TokenResult{ResultID: "r1", Data: letStream}, nil
		},
	}
	mgr, _ := newEngine(t, ft, 5*time.Millisecond, "**/*.go")

	mgr.Open("/test/script.py", "let x = 1")
	time.Sleep(50 * time.Millisecond)
	full, _ := ft.calls()
	assert.Zero(t, full, "python document must not reach a go-only server")

	mgr.Open(docURI, "let x = 1")
	eventually(t, func() bool {
		full, _ := ft.calls()
		return full == 1
	}, "go document never refreshed")
}

func TestQueryAtCursor(t *testing.T) {
	ft := &fakeTransport{
		adv: adv(false),
		full: func(protocol.DocumentURI) (syncer.TokenResult, error) {
			return syncer.TokenResult{ResultID: "r1", Data: letStream}, nil
		},
	}
	mgr, s := newEngine(t, ft, 5*time.Millisecond)

	mgr.Open(docURI, "let x = 1")
	eventually(t, func() bool { return len(s.Store().Group(docURI, "srv")) == 2 }, "refresh")

	mgr.SetCursor(docURI, 0, 4)
	hits := s.QueryAtCursor(docURI)
	require.Len(t, hits, 1)
	assert.Equal(t, "variable", hits[0].Span.Type)
}

func TestCloseClosesTransports(t *testing.T) {
	ft := &fakeTransport{adv: adv(false)}
	_, s := newEngine(t, ft, 5*time.Millisecond)

	require.NoError(t, s.Close())
	ft.mu.Lock()
	closed := ft.closed
	ft.mu.Unlock()
	assert.True(t, closed)
}

func TestRegisterServerRejectsBadSelector(t *testing.T) {
	mgr := document.NewManager()
	s := syncer.New(mgr)
	t.Cleanup(func() { _ = s.Close() })

	err := s.RegisterServer(context.Background(), "srv", &fakeTransport{adv: adv(false)}, "[")
	require.Error(t, err)
}
