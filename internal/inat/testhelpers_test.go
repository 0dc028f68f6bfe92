package inat

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strconv"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/lox/inatfetch/internal/store"
)

func newTestStore(t *testing.T) *store.Store {
	t.Helper()
	db, err := sql.Open("sqlite", ":memory:")
	require.NoError(t, err)
	db.SetMaxOpenConns(1)
	t.Cleanup(func() { db.Close() })

	st := store.New(db)
	require.NoError(t, st.Migrate())
	return st
}

// fakeTransport serves canned responses keyed by endpoint and records calls.
type fakeTransport struct {
	mu        sync.Mutex
	responses map[string]*Response
	cached    map[string]bool
	fetches   []Request
	lookups   int
	fetchErr  error
}

func newFakeTransport() *fakeTransport {
	return &fakeTransport{responses: map[string]*Response{}, cached: map[string]bool{}}
}

func (f *fakeTransport) set(endpoint string, status int, body string) {
	f.responses[endpoint] = &Response{URL: "https://example.test/" + endpoint, StatusCode: status, Body: []byte(body)}
}

func (f *fakeTransport) Lookup(ctx context.Context, req Request) (*Response, bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.lookups++
	if !f.cached[req.Endpoint] {
		return nil, false, nil
	}
	resp := *f.responses[req.Endpoint]
	resp.FromCache = true
	return &resp, true, nil
}

func (f *fakeTransport) Fetch(ctx context.Context, req Request) (*Response, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.fetches = append(f.fetches, req)
	if f.fetchErr != nil {
		return nil, f.fetchErr
	}
	resp, ok := f.responses[req.Endpoint]
	if !ok {
		return &Response{StatusCode: http.StatusNotFound, Body: []byte(`{"error":"not found"}`)}, nil
	}
	return resp, nil
}

func (f *fakeTransport) fetchCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.fetches)
}

// observationServer simulates /observations with fixed page sizes.
type observationServer struct {
	*httptest.Server
	mu       sync.Mutex
	requests []map[string]string
}

// newObservationServer returns a server whose page i (1-based) holds
// pageSizes[i-1] observations and reports total as total_results. A status
// in failOn makes that page fail with the given HTTP status.
func newObservationServer(t *testing.T, total int, pageSizes []int, failOn map[int]int) *observationServer {
	t.Helper()
	s := &observationServer{}
	s.Server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		q := r.URL.Query()
		s.mu.Lock()
		req := map[string]string{"path": r.URL.Path}
		for k := range q {
			req[k] = q.Get(k)
		}
		s.requests = append(s.requests, req)
		s.mu.Unlock()

		page, _ := strconv.Atoi(q.Get("page"))
		if status, ok := failOn[page]; ok {
			w.WriteHeader(status)
			w.Write([]byte(`{"error":"boom"}`))
			return
		}

		offset := 0
		for i := 0; i < page-1 && i < len(pageSizes); i++ {
			offset += pageSizes[i]
		}
		n := 0
		if page >= 1 && page <= len(pageSizes) {
			n = pageSizes[page-1]
		}

		results := make([]map[string]any, 0, n)
		for i := 0; i < n; i++ {
			results = append(results, fakeObservation(int64(offset+i+1)))
		}
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(map[string]any{
			"total_results": total,
			"page":          page,
			"per_page":      q.Get("per_page"),
			"results":       results,
		})
	}))
	t.Cleanup(s.Close)
	return s
}

func (s *observationServer) requestCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.requests)
}

func fakeObservation(id int64) map[string]any {
	return map[string]any{
		"id":               id,
		"observed_on":      "2025-07-14",
		"time_observed_at": "2025-07-14T10:30:00-07:00",
		"quality_grade":    "research",
		"uri":              fmt.Sprintf("https://www.inaturalist.org/observations/%d", id),
		"location":         "41.7,-122.6",
		"annotations": []map[string]any{
			{"controlled_attribute_id": 12, "controlled_value_id": 14},
		},
	}
}
