// Package pagination walks the events API cursor stream one page at a time.
//
// The API issues an opaque cursor with every page. Cursors can be invalidated
// server-side at any time; the Paginator absorbs that by restarting from the
// beginning of the stream, relying on idempotent storage to discard the
// replayed events.
//
// Example usage:
//
//	p := pagination.New(apiClient, pagination.Config{StartCursor: cp.Cursor, PageSize: 1000}, logger)
//	for {
//		res, ok, err := p.Next(ctx)
//		if err != nil || !ok {
//			break
//		}
//		// persist res.Events, then save res.Cursor
//	}
//
// The paginator:
//   - Restarts from the empty cursor on cursor expiry (never surfaced)
//   - Skips empty pages that still carry a continuation cursor
//   - Stops without another request once a page ends the stream
package pagination
