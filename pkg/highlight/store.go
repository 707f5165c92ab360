// Package highlight holds the rendered highlight spans for every
// (document, server) pair and answers point queries against them.
package highlight

import (
	"sync"

	"github.com/walteh/semsync/pkg/lsp/protocol"
	"github.com/walteh/semsync/pkg/semtok"
)

// Hit is one query result: the server a span came from plus the span itself.
type Hit struct {
	Server string
	Span   semtok.Span
}

// Store keeps one span group per (document, server) pair. A group is only
// ever swapped whole, so readers never observe a half-finished decode.
type Store struct {
	mu     sync.RWMutex
	order  []string
	groups map[protocol.DocumentURI]map[string][]semtok.Span
}

func NewStore() *Store {
	return &Store{
		groups: make(map[protocol.DocumentURI]map[string][]semtok.Span),
	}
}

// RegisterServer fixes the server's slot in query iteration order. Calling
// it again for a known server is a no-op, so query results stay stable for
// the lifetime of the store.
func (s *Store) RegisterServer(name string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, n := range s.order {
		if n == name {
			return
		}
	}
	s.order = append(s.order, name)
}

// Replace atomically swaps the span group for (doc, server).
func (s *Store) Replace(doc protocol.DocumentURI, server string, spans []semtok.Span) {
	s.mu.Lock()
	defer s.mu.Unlock()
	byServer, ok := s.groups[doc]
	if !ok {
		byServer = make(map[string][]semtok.Span)
		s.groups[doc] = byServer
	}
	byServer[server] = spans
}

// Group returns the current span group for (doc, server).
func (s *Store) Group(doc protocol.DocumentURI, server string) []semtok.Span {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.groups[doc][server]
}

// QueryAt returns, for every server with spans on the document, the first
// span covering (line, byteCol). Servers are visited in registration order
// so multi-server results are stable across calls.
func (s *Store) QueryAt(doc protocol.DocumentURI, line, byteCol int) []Hit {
	s.mu.RLock()
	defer s.mu.RUnlock()

	byServer, ok := s.groups[doc]
	if !ok {
		return nil
	}
	var hits []Hit
	for _, server := range s.order {
		for _, sp := range byServer[server] {
			if sp.Contains(line, byteCol) {
				hits = append(hits, Hit{Server: server, Span: sp})
				break
			}
		}
	}
	return hits
}

// Drop discards every span group attached to the document.
func (s *Store) Drop(doc protocol.DocumentURI) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.groups, doc)
}

// DropGroup discards one (document, server) group.
func (s *Store) DropGroup(doc protocol.DocumentURI, server string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if byServer, ok := s.groups[doc]; ok {
		delete(byServer, server)
		if len(byServer) == 0 {
			delete(s.groups, doc)
		}
	}
}
