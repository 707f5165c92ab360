package semtok

import (
	"sort"

	"gitlab.com/tozd/go/errors"
)

// Edit replaces a run of records in a cached token stream: delete DeleteCount
// records starting at record index Start, then insert Data's records there.
// Start and DeleteCount are whole-record units, not raw integer offsets.
type Edit struct {
	Start       int
	DeleteCount int
	Data        TokenStream
}

// ApplyEdits returns a new stream equivalent to cached with all edits
// applied. The caller's slices are left untouched.
//
// Edits are applied in descending Start order. The server does not promise
// any ordering, and applying an edit shifts every record behind it, so any
// other order silently corrupts records that a later edit still refers to by
// index. An empty edit list is a valid no-op: the result is a copy of the
// cached stream and the caller still re-decodes it.
//
// An edit that refers past the end of the stream, or carries a partial
// record, fails the whole application. That is an invariant violation, not
// recoverable data noise: the caller should abandon the refresh and keep its
// previous highlights.
func ApplyEdits(cached TokenStream, edits []Edit) (TokenStream, error) {
	out := append(TokenStream(nil), cached...)
	if len(edits) == 0 {
		return out, nil
	}

	sorted := make([]Edit, len(edits))
	copy(sorted, edits)
	sort.SliceStable(sorted, func(i, j int) bool {
		return sorted[i].Start > sorted[j].Start
	})

	for _, e := range sorted {
		if e.Start < 0 || e.DeleteCount < 0 {
			return nil, errors.Errorf("edit has negative bounds: start=%d delete=%d", e.Start, e.DeleteCount)
		}
		if len(e.Data)%RecordSize != 0 {
			return nil, errors.Errorf("edit data of %d integers is not whole records", len(e.Data))
		}
		from := e.Start * RecordSize
		to := from + e.DeleteCount*RecordSize
		if to > len(out) {
			return nil, errors.Errorf("edit [%d,%d) out of range for stream of %d records",
				e.Start, e.Start+e.DeleteCount, out.Records())
		}

		next := make(TokenStream, 0, len(out)-(to-from)+len(e.Data))
		next = append(next, out[:from]...)
		next = append(next, e.Data...)
		next = append(next, out[to:]...)
		out = next
	}
	return out, nil
}
