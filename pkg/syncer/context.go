package syncer

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/walteh/semsync/pkg/lsp/protocol"
	"github.com/walteh/semsync/pkg/semtok"
)

// syncContext is the per-(document, server) state machine. Its states map
// onto two flags guarded by mu: a pending debounce timer (DebouncedPending)
// and an in-flight request (RequestInFlight); neither set means Idle. The
// flags can overlap: a change arriving mid-request rearms the timer so the
// response's completion is followed by a fresh refresh.
//
// All mutation happens under mu. The host may dispatch notifications from
// any goroutine; contexts for different (document, server) pairs never
// share state.
type syncContext struct {
	syncer *Syncer
	doc    protocol.DocumentURI
	entry  *serverEntry

	mu        sync.Mutex
	stream    semtok.TokenStream
	resultID  string
	streamRev int
	inFlight  bool
	timer     *time.Timer
	closed    bool
}

// schedule (re)arms the debounce timer, tagged with the revision that
// triggered it. A pending timer is replaced, never stacked: a burst of
// changes collapses onto the latest revision.
func (sc *syncContext) schedule(revision int) {
	sc.mu.Lock()
	defer sc.mu.Unlock()
	sc.scheduleLocked(revision)
}

func (sc *syncContext) scheduleLocked(revision int) {
	if sc.closed {
		return
	}
	if sc.timer != nil {
		sc.timer.Stop()
	}
	sc.timer = time.AfterFunc(sc.syncer.debounce, func() {
		sc.fire(revision)
	})
}

// fire runs when a debounce window closes (or on a manual refresh). It
// drops silently when the tagged revision has been superseded or a request
// is already pending; otherwise it issues the request synchronously in the
// calling goroutine.
func (sc *syncContext) fire(revision int) {
	sc.mu.Lock()
	if sc.closed {
		sc.mu.Unlock()
		return
	}
	if current := sc.syncer.host.CurrentRevision(sc.doc); current != revision {
		// a newer change owns a newer timer; this one is stale
		sc.mu.Unlock()
		return
	}
	if sc.inFlight {
		// the pending response will reconcile, and the rearmed timer
		// covers anything it misses
		sc.mu.Unlock()
		return
	}
	sc.inFlight = true
	useDelta := sc.entry.adv.Delta && sc.resultID != ""
	previous := sc.resultID
	sc.mu.Unlock()

	sc.request(revision, useDelta, previous)
}

func (sc *syncContext) request(revision int, useDelta bool, previousResultID string) {
	s := sc.syncer
	logger := s.log.With().
		Str("request_id", uuid.NewString()).
		Str("server", sc.entry.name).
		Str("doc", string(sc.doc)).
		Int("revision", revision).
		Logger()

	ctx, cancel := context.WithTimeout(logger.WithContext(context.Background()), s.requestTimeout)
	defer cancel()

	var res TokenResult
	var err error
	if useDelta {
		logger.Debug().Str("previous_result_id", previousResultID).Msg("requesting token delta")
		res, err = sc.entry.transport.TokensDelta(ctx, sc.doc, previousResultID)
	} else {
		logger.Debug().Msg("requesting full tokens")
		res, err = sc.entry.transport.TokensFull(ctx, sc.doc)
	}
	sc.complete(logger, res, err, revision)
}

// complete reconciles one response into the cached stream and the rendered
// highlights. Errors leave both untouched: stale highlights beat corrupt
// ones, and the next document change retries naturally.
func (sc *syncContext) complete(logger zerolog.Logger, res TokenResult, err error, revision int) {
	sc.mu.Lock()
	defer sc.mu.Unlock()
	sc.inFlight = false
	if sc.closed {
		return
	}
	if err != nil {
		logger.Debug().Err(err).Msg("token request failed, keeping cached stream")
		return
	}

	if res.IsDelta {
		patched, perr := semtok.ApplyEdits(sc.stream, res.Edits)
		if perr != nil {
			logger.Warn().Err(perr).Msg("token delta did not apply, keeping previous highlights")
			return
		}
		sc.stream = patched
	} else {
		sc.stream = res.Data
	}
	sc.resultID = res.ResultID
	sc.streamRev = revision

	// re-decode the whole stream even after a one-record delta: absolute
	// positions are a running fold over everything before them
	spans := semtok.Decode(
		sc.stream,
		sc.entry.adv.Legend,
		hostLines{host: sc.syncer.host, doc: sc.doc},
		sc.entry.adv.Encoding,
		sc.entry.name,
	)
	sc.syncer.store.Replace(sc.doc, sc.entry.name, spans)
	sc.syncer.host.RenderSpans(sc.doc, sc.entry.name, spans)
	logger.Debug().Int("spans", len(spans)).Bool("delta", res.IsDelta).Msg("highlights replaced")

	// changes that landed mid-request were dropped by fire; pick them up
	// now that the context is idle again
	if current := sc.syncer.host.CurrentRevision(sc.doc); current != sc.streamRev {
		sc.scheduleLocked(current)
	}
}

// teardown retires the context: the timer is stopped and any in-flight
// response is discarded when it lands.
func (sc *syncContext) teardown() {
	sc.mu.Lock()
	defer sc.mu.Unlock()
	sc.closed = true
	if sc.timer != nil {
		sc.timer.Stop()
		sc.timer = nil
	}
}
