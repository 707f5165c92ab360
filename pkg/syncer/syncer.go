/*
Package syncer keeps rendered semantic highlights in step with document
edits and server updates.

One sync context exists per (document, server) pair and moves between three
states:

	            change                  timer fires
	  Idle  ------------> DebouncedPending ------------> RequestInFlight
	   ^                        |    ^                        |
	   |     stale / dropped    |    |  change reschedules    |
	   +------------------------+    +------------------------+
	   |                                                      |
	   +------------------- response handled -----------------+

Rapid edits only rearm the debounce timer, and at most one request is in
flight per context at any time. That pair of rules is the engine's whole
backpressure story: a typing burst costs one server request, not one per
keystroke.
*/
package syncer

import (
	"context"
	"io"
	"strings"
	"sync"
	"time"

	"github.com/bmatcuk/doublestar/v4"
	"github.com/rs/zerolog"
	"github.com/walteh/semsync/pkg/highlight"
	"github.com/walteh/semsync/pkg/lsp/protocol"
	"github.com/walteh/semsync/pkg/position"
	"gitlab.com/tozd/go/errors"
	"go.uber.org/multierr"
)

type ctxKey struct {
	doc    protocol.DocumentURI
	server string
}

type serverEntry struct {
	name      string
	transport Transport
	selector  []string
	adv       Advertisement
}

// matches reports whether the server is interested in the document. An
// empty selector matches everything.
func (e *serverEntry) matches(doc protocol.DocumentURI) bool {
	if len(e.selector) == 0 {
		return true
	}
	path := strings.TrimPrefix(string(doc), "file://")
	for _, pattern := range e.selector {
		if ok, err := doublestar.Match(pattern, path); err == nil && ok {
			return true
		}
	}
	return false
}

// Syncer drives the per-(document, server) sync contexts. Cross-context
// operations are independent; the syncer's own lock only guards the server
// list and the context map.
type Syncer struct {
	host  Host
	store *highlight.Store
	log   zerolog.Logger

	debounce       time.Duration
	requestTimeout time.Duration

	mu       sync.Mutex
	servers  []*serverEntry
	contexts map[ctxKey]*syncContext
	closed   bool
}

type Option func(*Syncer)

// WithDebounce sets how long a burst of document changes must quiet down
// before a refresh is issued.
func WithDebounce(d time.Duration) Option {
	return func(s *Syncer) {
		s.debounce = d
	}
}

// WithRequestTimeout bounds how long one token request may take.
func WithRequestTimeout(d time.Duration) Option {
	return func(s *Syncer) {
		s.requestTimeout = d
	}
}

// WithLogger sets the logger request correlation events are written to.
func WithLogger(log zerolog.Logger) Option {
	return func(s *Syncer) {
		s.log = log
	}
}

func New(host Host, opts ...Option) *Syncer {
	s := &Syncer{
		host:           host,
		store:          highlight.NewStore(),
		log:            zerolog.Nop(),
		debounce:       300 * time.Millisecond,
		requestTimeout: 10 * time.Second,
		contexts:       make(map[ctxKey]*syncContext),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Store exposes the highlight store for point queries.
func (s *Syncer) Store() *highlight.Store {
	return s.store
}

// RegisterServer negotiates capabilities with the server and attaches it to
// documents matched by the selector globs (all documents when empty). A
// server that advertises no token streaming at all is still registered, but
// refreshes against it are permanent no-ops rather than errors.
func (s *Syncer) RegisterServer(ctx context.Context, name string, transport Transport, selector ...string) error {
	for _, pattern := range selector {
		if !doublestar.ValidatePattern(pattern) {
			return errors.Errorf("invalid document selector %q for server %s", pattern, name)
		}
	}

	adv, err := transport.Negotiate(ctx, protocol.NewClientCapabilities())
	if err != nil {
		return errors.Errorf("negotiating capabilities with %s: %w", name, err)
	}
	if adv.Encoding == "" {
		adv.Encoding = position.EncodingUTF16
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return errors.Errorf("syncer is closed")
	}
	for _, e := range s.servers {
		if e.name == name {
			return errors.Errorf("server already registered: %s", name)
		}
	}
	s.servers = append(s.servers, &serverEntry{
		name:      name,
		transport: transport,
		selector:  selector,
		adv:       adv,
	})
	s.store.RegisterServer(name)

	s.log.Debug().
		Str("server", name).
		Bool("tokens", adv.Supported).
		Bool("delta", adv.Delta).
		Str("encoding", string(adv.Encoding)).
		Msg("server registered")
	return nil
}

// DocumentChanged is the host's change notification. It debounces a refresh
// per attached server, coalescing bursts onto the latest revision.
func (s *Syncer) DocumentChanged(doc protocol.DocumentURI, revision int) {
	for _, sc := range s.contextsFor(doc) {
		sc.schedule(revision)
	}
}

// Refresh issues an immediate refresh for the document, skipping the
// debounce window. In-flight exclusivity still applies.
func (s *Syncer) Refresh(doc protocol.DocumentURI) {
	revision := s.host.CurrentRevision(doc)
	for _, sc := range s.contextsFor(doc) {
		sc.fire(revision)
	}
}

// DocumentClosed tears down every sync context and highlight group attached
// to the document, whatever state they are in.
func (s *Syncer) DocumentClosed(doc protocol.DocumentURI) {
	s.mu.Lock()
	var victims []*syncContext
	for k, sc := range s.contexts {
		if k.doc == doc {
			victims = append(victims, sc)
			delete(s.contexts, k)
		}
	}
	s.mu.Unlock()

	for _, sc := range victims {
		sc.teardown()
	}
	s.store.Drop(doc)
}

// QueryAt returns the spans covering (line, byteCol), one per server, in
// server registration order.
func (s *Syncer) QueryAt(doc protocol.DocumentURI, line, byteCol int) []highlight.Hit {
	return s.store.QueryAt(doc, line, byteCol)
}

// QueryAtCursor is QueryAt at the host's cursor.
func (s *Syncer) QueryAtCursor(doc protocol.DocumentURI) []highlight.Hit {
	line, col := s.host.CursorPosition(doc)
	return s.store.QueryAt(doc, line, col)
}

// Close tears down all contexts and closes every transport that supports
// closing. The syncer is unusable afterwards.
func (s *Syncer) Close() error {
	s.mu.Lock()
	s.closed = true
	victims := make([]*syncContext, 0, len(s.contexts))
	for _, sc := range s.contexts {
		victims = append(victims, sc)
	}
	s.contexts = make(map[ctxKey]*syncContext)
	servers := append([]*serverEntry(nil), s.servers...)
	s.mu.Unlock()

	for _, sc := range victims {
		sc.teardown()
	}
	var err error
	for _, e := range servers {
		if closer, ok := e.transport.(io.Closer); ok {
			err = multierr.Append(err, closer.Close())
		}
	}
	return err
}

// contextsFor returns the sync contexts for every capable server attached
// to the document, creating them on first use.
func (s *Syncer) contextsFor(doc protocol.DocumentURI) []*syncContext {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil
	}
	var out []*syncContext
	for _, e := range s.servers {
		if !e.adv.Supported || !e.matches(doc) {
			continue
		}
		k := ctxKey{doc: doc, server: e.name}
		sc, ok := s.contexts[k]
		if !ok {
			sc = &syncContext{syncer: s, doc: doc, entry: e}
			s.contexts[k] = sc
		}
		out = append(out, sc)
	}
	return out
}
