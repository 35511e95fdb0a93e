// Package testutil provides testing utilities for the events API client and pipeline.
package testutil

import (
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"time"
)

// APIPrefix is the path prefix the mock serves under; URL() includes it.
const APIPrefix = "/api/v1"

// MockResponse defines the behavior for one mock API response.
type MockResponse struct {
	StatusCode int
	Body       string
	Headers    map[string]string
	Delay      time.Duration
}

// RecordedRequest captures what the client sent.
type RecordedRequest struct {
	Path   string
	Cursor string
	Limit  string
	APIKey string
}

// MockAPI is a configurable mock events API for testing. Queued responses are served
// first, in order; after that requests go to the handler (a healthy empty
// end-of-stream page by default).
type MockAPI struct {
	server  *httptest.Server
	mu      sync.Mutex
	queue   []MockResponse
	handler http.HandlerFunc

	requests []RecordedRequest
}

// NewMockAPI creates a new mock events API server.
func NewMockAPI() *MockAPI {
	mock := &MockAPI{}

	mock.server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		q := r.URL.Query()

		mock.mu.Lock()
		mock.requests = append(mock.requests, RecordedRequest{
			Path:   r.URL.Path,
			Cursor: q.Get("cursor"),
			Limit:  q.Get("limit"),
			APIKey: r.Header.Get("X-API-Key"),
		})

		var next *MockResponse
		if len(mock.queue) > 0 {
			resp := mock.queue[0]
			mock.queue = mock.queue[1:]
			next = &resp
		}
		handler := mock.handler
		mock.mu.Unlock()

		if next != nil {
			writeResponse(w, *next)
			return
		}
		if handler != nil {
			handler(w, r)
			return
		}
		writeResponse(w, NewPageResponse(nil, "", false))
	}))

	return mock
}

// URL returns the API base URL (server URL plus APIPrefix).
func (m *MockAPI) URL() string {
	return m.server.URL + APIPrefix
}

// Close shuts down the mock server.
func (m *MockAPI) Close() {
	m.server.Close()
}

// Enqueue appends responses served before the handler.
func (m *MockAPI) Enqueue(responses ...MockResponse) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.queue = append(m.queue, responses...)
}

// SetHandler sets the handler used once the queue is empty.
func (m *MockAPI) SetHandler(handler http.HandlerFunc) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.handler = handler
}

// Requests returns a copy of the recorded requests.
func (m *MockAPI) Requests() []RecordedRequest {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]RecordedRequest, len(m.requests))
	copy(out, m.requests)
	return out
}

// RequestCount returns the number of requests made to the server.
func (m *MockAPI) RequestCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.requests)
}

func writeResponse(w http.ResponseWriter, resp MockResponse) {
	if resp.Delay > 0 {
		time.Sleep(resp.Delay)
	}
	for key, value := range resp.Headers {
		w.Header().Set(key, value)
	}
	w.WriteHeader(resp.StatusCode)
	if resp.Body != "" {
		_, _ = w.Write([]byte(resp.Body))
	}
}

func healthyHeaders() map[string]string {
	return map[string]string{
		"X-RateLimit-Limit":     "10",
		"X-RateLimit-Remaining": "9",
		"X-RateLimit-Reset":     "60",
		"Content-Type":          "application/json",
	}
}

// EventJSON renders a minimal API event with the given id and timestamp value.
func EventJSON(id string, timestamp any) string {
	body, _ := json.Marshal(map[string]any{
		"id":        id,
		"type":      "page_view",
		"sessionId": "sess-" + id,
		"userId":    "user-" + id,
		"name":      "view",
		"timestamp": timestamp,
	})
	return string(body)
}

// EventIDs returns n ids formatted prefix-0001, prefix-0002, ...
func EventIDs(prefix string, n int) []string {
	ids := make([]string, n)
	for i := range ids {
		ids[i] = fmt.Sprintf("%s-%04d", prefix, i+1)
	}
	return ids
}

// NewPageResponse creates a 200 page response. An empty nextCursor encodes null.
func NewPageResponse(ids []string, nextCursor string, hasMore bool) MockResponse {
	events := make([]string, len(ids))
	for i, id := range ids {
		events[i] = EventJSON(id, int64(1_700_000_000_000+i))
	}

	cursor := "null"
	if nextCursor != "" {
		cursor = fmt.Sprintf("%q", nextCursor)
	}

	body := fmt.Sprintf(`{"data":[%s],"pagination":{"nextCursor":%s,"hasMore":%t,"limit":%d},"meta":{"total":null,"returned":%d}}`,
		strings.Join(events, ","), cursor, hasMore, len(ids), len(ids))

	return MockResponse{
		StatusCode: http.StatusOK,
		Body:       body,
		Headers:    healthyHeaders(),
	}
}

// NewRateLimitResponse creates a 429 Too Many Requests response. An empty
// retryAfter omits the Retry-After header.
func NewRateLimitResponse(retryAfter string) MockResponse {
	headers := map[string]string{
		"X-RateLimit-Limit":     "10",
		"X-RateLimit-Remaining": "0",
		"X-RateLimit-Reset":     "30",
		"Content-Type":          "application/json",
	}
	if retryAfter != "" {
		headers["Retry-After"] = retryAfter
	}
	return MockResponse{
		StatusCode: http.StatusTooManyRequests,
		Body:       `{"error":"Rate limit exceeded"}`,
		Headers:    headers,
	}
}

// NewServerErrorResponse creates a 5xx response.
func NewServerErrorResponse(status int) MockResponse {
	return MockResponse{
		StatusCode: status,
		Body:       `{"error":"Internal server error"}`,
		Headers:    healthyHeaders(),
	}
}

// NewCursorExpiredResponse creates the 400 the API sends for an invalid cursor.
func NewCursorExpiredResponse() MockResponse {
	return MockResponse{
		StatusCode: http.StatusBadRequest,
		Body:       `{"error":"Invalid or expired cursor"}`,
		Headers:    healthyHeaders(),
	}
}

// NewUnauthorizedResponse creates a 401 response.
func NewUnauthorizedResponse() MockResponse {
	return MockResponse{
		StatusCode: http.StatusUnauthorized,
		Body:       `{"error":"Invalid API key"}`,
		Headers:    healthyHeaders(),
	}
}

// DatasetPage is one page of a Dataset: its event ids and the cursor that follows it.
type DatasetPage struct {
	IDs        []string
	NextCursor string
}

// Dataset serves a fixed, cursor-paginated event stream. The request without a
// cursor gets page 0; a cursor equal to page i's NextCursor gets page i+1; any other
// cursor is rejected as expired.
type Dataset struct {
	Pages []DatasetPage
}

// Handler returns the http.HandlerFunc serving the dataset.
func (d *Dataset) Handler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		cursor := r.URL.Query().Get("cursor")

		idx := -1
		if cursor == "" {
			idx = 0
		} else {
			for i, p := range d.Pages {
				if p.NextCursor == cursor {
					idx = i + 1
					break
				}
			}
		}

		if idx < 0 || idx > len(d.Pages) {
			writeResponse(w, NewCursorExpiredResponse())
			return
		}
		if idx == len(d.Pages) {
			writeResponse(w, NewPageResponse(nil, "", false))
			return
		}

		page := d.Pages[idx]
		writeResponse(w, NewPageResponse(page.IDs, page.NextCursor, page.NextCursor != ""))
	}
}
