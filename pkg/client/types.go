package client

import (
	"github.com/Sternrassler/event-ingest/pkg/event"
)

// Cursor is an opaque continuation token issued by the API. The zero value is the
// start of the stream; any other value must come from a prior Page.NextCursor.
type Cursor string

// IsZero reports whether the cursor points at the start of the stream.
func (c Cursor) IsZero() bool {
	return c == ""
}

// String returns the raw token.
func (c Cursor) String() string {
	return string(c)
}

// Page is one page of the event stream.
type Page struct {
	// Events in API order. May be empty.
	Events []event.Event

	// NextCursor continues after this page. Empty means the stream is exhausted.
	NextCursor Cursor

	// HasMore is the API's "more data" flag.
	HasMore bool

	// Total is the dataset size when the API reports it.
	Total *int64
}

// EndOfStream reports the definitive end-of-stream signal: no events and no more data.
func (p *Page) EndOfStream() bool {
	return len(p.Events) == 0 && !p.HasMore
}

// eventsResponse is the wire shape of GET /events:
//
//	{"data": [...], "pagination": {"nextCursor": "..", "hasMore": true, "limit": 100},
//	 "meta": {"total": 3000000, "returned": 100}}
type eventsResponse struct {
	Data       []event.Event `json:"data"`
	Pagination struct {
		NextCursor *string `json:"nextCursor"`
		HasMore    *bool   `json:"hasMore"`
		Limit      int     `json:"limit"`
	} `json:"pagination"`
	Meta struct {
		Total    *int64 `json:"total"`
		Returned int    `json:"returned"`
	} `json:"meta"`
}

// toPage converts the wire response. An empty page without more data forces the
// cursor empty regardless of what the payload claims.
func (r *eventsResponse) toPage() *Page {
	page := &Page{
		Events: r.Data,
		Total:  r.Meta.Total,
	}
	if page.Events == nil {
		page.Events = []event.Event{}
	}
	if r.Pagination.NextCursor != nil {
		page.NextCursor = Cursor(*r.Pagination.NextCursor)
	}
	if r.Pagination.HasMore != nil {
		page.HasMore = *r.Pagination.HasMore
	} else {
		page.HasMore = !page.NextCursor.IsZero()
	}

	if page.EndOfStream() {
		page.NextCursor = ""
	}
	return page
}
