package integration

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"sync/atomic"
)

var jpegBytes = append([]byte{0xFF, 0xD8, 0xFF, 0xE0, 0x00, 0x10, 'J', 'F', 'I', 'F', 0x00}, bytes.Repeat([]byte{0x07}, 64)...)

// FeedPost is one post served by the mock feed
type FeedPost struct {
	Code  string
	ID    string
	Likes int
	Time  int64
}

// MockInstagramServer serves an account's media feed page by page and the
// media files those pages reference
type MockInstagramServer struct {
	server *httptest.Server

	mu        sync.RWMutex
	pages     map[string][]byte // by max_id, "" is the first page
	errors    map[string]int    // status to return for a cursor
	raw       map[string]string // non-JSON body to return for a cursor
	cursors   []string
	mediaHits int32
}

// NewMockInstagramServer creates a server answering /<account>/media/ and /cdn/<file>
func NewMockInstagramServer(account string) *MockInstagramServer {
	m := &MockInstagramServer{
		pages:  make(map[string][]byte),
		errors: make(map[string]int),
		raw:    make(map[string]string),
	}

	mux := http.NewServeMux()
	mux.HandleFunc("/"+account+"/media/", m.handleFeed)
	mux.HandleFunc("/cdn/", m.handleMedia)
	m.server = httptest.NewServer(mux)
	return m
}

// SetPage registers the page served for cursor
func (m *MockInstagramServer) SetPage(cursor string, more bool, posts ...FeedPost) {
	items := make([]map[string]interface{}, 0, len(posts))
	for _, p := range posts {
		ts := p.Time
		if ts == 0 {
			ts = 1500000000
		}
		items = append(items, map[string]interface{}{
			"id":           p.ID,
			"code":         p.Code,
			"type":         "image",
			"created_time": fmt.Sprintf("%d", ts),
			"likes":        map[string]interface{}{"count": p.Likes},
			"caption":      map[string]interface{}{"text": "caption of " + p.Code},
			"images": map[string]interface{}{
				"standard_resolution": map[string]interface{}{
					"url": m.server.URL + "/cdn/s640x640/" + p.Code + ".jpg",
				},
			},
		})
	}
	body, _ := json.Marshal(map[string]interface{}{
		"status":         "ok",
		"more_available": more,
		"items":          items,
	})

	m.mu.Lock()
	defer m.mu.Unlock()
	m.pages[cursor] = body
}

// SetError makes the page for cursor answer with status
func (m *MockInstagramServer) SetError(cursor string, status int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.errors[cursor] = status
}

// ClearError removes an injected status
func (m *MockInstagramServer) ClearError(cursor string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.errors, cursor)
}

// SetRawBody makes the page for cursor answer 200 with body
func (m *MockInstagramServer) SetRawBody(cursor, body string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.raw[cursor] = body
}

func (m *MockInstagramServer) handleFeed(w http.ResponseWriter, r *http.Request) {
	cursor := r.URL.Query().Get("max_id")

	m.mu.Lock()
	m.cursors = append(m.cursors, cursor)
	status := m.errors[cursor]
	raw, hasRaw := m.raw[cursor]
	page, ok := m.pages[cursor]
	m.mu.Unlock()

	switch {
	case status != 0:
		w.WriteHeader(status)
		return
	case hasRaw:
		w.Write([]byte(raw))
		return
	case !ok:
		w.WriteHeader(http.StatusNotFound)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.Write(page)
}

func (m *MockInstagramServer) handleMedia(w http.ResponseWriter, r *http.Request) {
	atomic.AddInt32(&m.mediaHits, 1)
	if strings.Contains(r.URL.Path, "640x640") {
		// full-size URLs never carry the resize directory
		w.WriteHeader(http.StatusNotFound)
		return
	}
	w.Header().Set("Content-Type", "image/jpeg")
	w.Write(jpegBytes)
}

// GetURL returns the server's base URL
func (m *MockInstagramServer) GetURL() string {
	return m.server.URL
}

// Cursors returns the max_id of every feed request in order
func (m *MockInstagramServer) Cursors() []string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return append([]string(nil), m.cursors...)
}

// ResetCounters forgets recorded requests
func (m *MockInstagramServer) ResetCounters() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.cursors = nil
	atomic.StoreInt32(&m.mediaHits, 0)
}

// MediaHits returns the number of media requests
func (m *MockInstagramServer) MediaHits() int {
	return int(atomic.LoadInt32(&m.mediaHits))
}

// Close shuts the server down
func (m *MockInstagramServer) Close() {
	m.server.Close()
}
