package main

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strconv"
	"strings"
	"sync"
	"testing"
)

// fakeTracker is an in-memory tracker API used by gateway, resolver and
// report tests. Listings are served per board in pageSize chunks; detail
// fetches come from the cards map.
type fakeTracker struct {
	t *testing.T

	boards       map[string][]cardPayload // listing payloads per board
	cards        map[string]cardPayload   // detail payloads by id
	users        []userPayload
	deniedBoards map[string]bool
	failStatus   map[string]int // path suffix -> forced HTTP status
	pageSize     int
	affinity     string // sent on every response when non-empty

	mu       sync.Mutex
	requests []string
}

func newFakeTracker(t *testing.T) *fakeTracker {
	t.Helper()
	return &fakeTracker{
		t:            t,
		boards:       make(map[string][]cardPayload),
		cards:        make(map[string]cardPayload),
		deniedBoards: make(map[string]bool),
		failStatus:   make(map[string]int),
		pageSize:     100,
	}
}

func (f *fakeTracker) start(t *testing.T) (*httptest.Server, *TrackerGateway) {
	t.Helper()
	server := httptest.NewServer(http.HandlerFunc(f.handle))
	t.Cleanup(server.Close)

	gw := NewTrackerGateway(Config{
		TrackerURL:   server.URL,
		TrackerToken: "tracker-test",
		TrackerOrgID: "org-1",
	})
	return server, gw
}

func (f *fakeTracker) recordRequest(r *http.Request) {
	f.mu.Lock()
	f.requests = append(f.requests, r.URL.Path+"?"+r.URL.RawQuery)
	f.mu.Unlock()
}

func (f *fakeTracker) requestLog() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.requests...)
}

func (f *fakeTracker) handle(w http.ResponseWriter, r *http.Request) {
	f.recordRequest(r)

	if got := r.Header.Get("Authorization"); got != "Bearer tracker-test" {
		f.t.Errorf("unexpected Authorization header: %q", got)
	}
	if got := r.Header.Get(orgIDHeader); got != "org-1" {
		f.t.Errorf("unexpected %s header: %q", orgIDHeader, got)
	}
	if f.affinity != "" {
		w.Header().Set(routeAffinityHeader, f.affinity)
	}

	for suffix, status := range f.failStatus {
		if strings.HasSuffix(r.URL.Path, suffix) {
			http.Error(w, `{"error":"forced failure"}`, status)
			return
		}
	}

	switch {
	case r.URL.Path == "/api/v1/cards":
		board := r.URL.Query().Get("boardId")
		if f.deniedBoards[board] {
			http.Error(w, `{"error":"forbidden"}`, http.StatusForbidden)
			return
		}
		f.servePage(w, r, f.boards[board])
	case strings.HasPrefix(r.URL.Path, "/api/v1/cards/"):
		id := strings.TrimPrefix(r.URL.Path, "/api/v1/cards/")
		card, ok := f.cards[id]
		if !ok {
			http.Error(w, `{"error":"not found"}`, http.StatusNotFound)
			return
		}
		writeJSON(w, card)
	case r.URL.Path == "/api/v1/users":
		f.servePage(w, r, f.users)
	default:
		http.Error(w, `{"error":"no such resource"}`, http.StatusNotFound)
	}
}

func (f *fakeTracker) servePage(w http.ResponseWriter, r *http.Request, all any) {
	page, _ := strconv.Atoi(r.URL.Query().Get("page"))
	if page < 1 {
		page = 1
	}

	var raws []json.RawMessage
	switch entities := all.(type) {
	case []cardPayload:
		for _, e := range entities {
			raws = append(raws, mustMarshal(f.t, e))
		}
	case []userPayload:
		for _, e := range entities {
			raws = append(raws, mustMarshal(f.t, e))
		}
	}

	pageCount := (len(raws) + f.pageSize - 1) / f.pageSize
	if pageCount == 0 {
		pageCount = 1
	}
	start := (page - 1) * f.pageSize
	end := start + f.pageSize
	if start > len(raws) {
		start = len(raws)
	}
	if end > len(raws) {
		end = len(raws)
	}

	writeJSON(w, map[string]any{
		"content":   raws[start:end],
		"pageCount": pageCount,
	})
}

func mustMarshal(t *testing.T, v any) json.RawMessage {
	t.Helper()
	data, err := json.Marshal(v)
	if err != nil {
		t.Fatalf("marshal failed: %v", err)
	}
	return data
}

func writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(v)
}

// listingCard builds a listing payload without timer fields; key may be "".
func listingCard(id, key string, number int64, title string) cardPayload {
	return cardPayload{ID: id, Title: title, Number: number, Key: key}
}

// detailCard builds a full detail payload with one timer field.
func detailCard(id, key string, number int64, title, fieldID string, records ...timerRecordPayload) cardPayload {
	card := cardPayload{ID: id, Title: title, Number: number, Key: key}
	if fieldID != "" {
		card.Fields = map[string]fieldPayload{fieldID: {Records: records}}
	}
	return card
}

func requestCount(log []string, pathPrefix string) int {
	n := 0
	for _, req := range log {
		if strings.HasPrefix(req, pathPrefix) {
			n++
		}
	}
	return n
}
