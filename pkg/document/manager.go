// Package document is an in-memory reference implementation of the host
// editing surface the synchronization engine runs against. Real hosts plug
// in their own buffer storage; this one backs the CLI and the tests.
package document

import (
	"strings"
	"sync"

	"github.com/walteh/semsync/pkg/lsp/protocol"
	"github.com/walteh/semsync/pkg/semtok"
	"gitlab.com/tozd/go/errors"
)

// normalizeURI keeps document keys consistent whether callers pass a plain
// path or a file:// URI.
func normalizeURI(uri protocol.DocumentURI) protocol.DocumentURI {
	s := strings.TrimPrefix(string(uri), "file://")
	s = strings.TrimPrefix(s, "file:")
	return protocol.DocumentURI(s)
}

// Document is one open text document plus the state the engine observes
// through the host interface: revision, cursor, rendered spans.
type Document struct {
	URI      protocol.DocumentURI
	Content  string
	Revision int

	lines      []string
	cursorLine int
	cursorCol  int
	rendered   map[string][]semtok.Span
}

// ChangeHandler fires after a document's content moved to a new revision.
type ChangeHandler func(uri protocol.DocumentURI, revision int)

// CloseHandler fires when a document is closed.
type CloseHandler func(uri protocol.DocumentURI)

// Manager owns the open documents. All access goes through the manager's
// lock; handlers are invoked outside of it so they can call back in.
type Manager struct {
	mu       sync.RWMutex
	docs     map[protocol.DocumentURI]*Document
	onChange []ChangeHandler
	onClose  []CloseHandler
}

func NewManager() *Manager {
	return &Manager{
		docs: make(map[protocol.DocumentURI]*Document),
	}
}

// OnChange registers a handler for content changes on any document.
func (m *Manager) OnChange(h ChangeHandler) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.onChange = append(m.onChange, h)
}

// OnClose registers a handler for document closes.
func (m *Manager) OnClose(h CloseHandler) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.onClose = append(m.onClose, h)
}

// Open stores a new document at revision 1. Opening fires the change
// handlers so a freshly attached document gets an initial refresh.
func (m *Manager) Open(uri protocol.DocumentURI, content string) {
	uri = normalizeURI(uri)
	m.mu.Lock()
	doc := &Document{
		URI:      uri,
		Content:  content,
		Revision: 1,
		lines:    strings.Split(content, "\n"),
		rendered: make(map[string][]semtok.Span),
	}
	m.docs[uri] = doc
	handlers := append([]ChangeHandler(nil), m.onChange...)
	m.mu.Unlock()

	for _, h := range handlers {
		h(uri, doc.Revision)
	}
}

// Update replaces a document's content, bumps its revision, and fires the
// change handlers with the new revision.
func (m *Manager) Update(uri protocol.DocumentURI, content string) error {
	uri = normalizeURI(uri)
	m.mu.Lock()
	doc, ok := m.docs[uri]
	if !ok {
		m.mu.Unlock()
		return errors.Errorf("document not open: %s", uri)
	}
	doc.Content = content
	doc.Revision++
	doc.lines = strings.Split(content, "\n")
	rev := doc.Revision
	handlers := append([]ChangeHandler(nil), m.onChange...)
	m.mu.Unlock()

	for _, h := range handlers {
		h(uri, rev)
	}
	return nil
}

// Close drops the document and fires the close handlers.
func (m *Manager) Close(uri protocol.DocumentURI) {
	uri = normalizeURI(uri)
	m.mu.Lock()
	_, ok := m.docs[uri]
	delete(m.docs, uri)
	handlers := append([]CloseHandler(nil), m.onClose...)
	m.mu.Unlock()

	if !ok {
		return
	}
	for _, h := range handlers {
		h(uri)
	}
}

// Get returns the document, if open.
func (m *Manager) Get(uri protocol.DocumentURI) (*Document, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	doc, ok := m.docs[normalizeURI(uri)]
	return doc, ok
}

// SetCursor moves the tracked cursor for point queries.
func (m *Manager) SetCursor(uri protocol.DocumentURI, line, col int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if doc, ok := m.docs[normalizeURI(uri)]; ok {
		doc.cursorLine = line
		doc.cursorCol = col
	}
}

// Rendered returns the last span group rendered for (doc, server).
func (m *Manager) Rendered(uri protocol.DocumentURI, server string) []semtok.Span {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if doc, ok := m.docs[normalizeURI(uri)]; ok {
		return doc.rendered[server]
	}
	return nil
}

// The methods below implement the host surface the syncer consumes.

func (m *Manager) LineText(uri protocol.DocumentURI, line int) (string, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	doc, ok := m.docs[normalizeURI(uri)]
	if !ok || line < 0 || line >= len(doc.lines) {
		return "", false
	}
	return doc.lines[line], true
}

func (m *Manager) CurrentRevision(uri protocol.DocumentURI) int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if doc, ok := m.docs[normalizeURI(uri)]; ok {
		return doc.Revision
	}
	return 0
}

// RenderSpans swaps the annotation group for (doc, server) in one step;
// there is never a point where a reader sees part of the new group.
func (m *Manager) RenderSpans(uri protocol.DocumentURI, server string, spans []semtok.Span) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if doc, ok := m.docs[normalizeURI(uri)]; ok {
		doc.rendered[server] = spans
	}
}

func (m *Manager) CursorPosition(uri protocol.DocumentURI) (line, col int) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if doc, ok := m.docs[normalizeURI(uri)]; ok {
		return doc.cursorLine, doc.cursorCol
	}
	return 0, 0
}
