package testutil

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"net/url"
	"sync"
	"testing"
)

// MockServer routes requests by URL path to Handlers and records every
// request it sees. Unknown paths return 404.
type MockServer struct {
	*httptest.Server
	Handlers map[string]http.HandlerFunc

	mu       sync.Mutex
	requests []*url.URL
}

func newMockServer(t *testing.T) *MockServer {
	t.Helper()
	m := &MockServer{Handlers: make(map[string]http.HandlerFunc)}
	m.Server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		m.mu.Lock()
		u := *r.URL
		m.requests = append(m.requests, &u)
		handler, ok := m.Handlers[r.URL.Path]
		m.mu.Unlock()
		if ok {
			handler(w, r)
			return
		}
		w.WriteHeader(http.StatusNotFound)
	}))
	t.Cleanup(m.Close)
	return m
}

// Handle sets the handler for path.
func (m *MockServer) Handle(path string, h http.HandlerFunc) {
	m.mu.Lock()
	m.Handlers[path] = h
	m.mu.Unlock()
}

// Requests returns the URLs of all requests received so far.
func (m *MockServer) Requests() []*url.URL {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]*url.URL(nil), m.requests...)
}

// RequestsTo returns received request URLs whose path is path.
func (m *MockServer) RequestsTo(path string) []*url.URL {
	var out []*url.URL
	for _, u := range m.Requests() {
		if u.Path == path {
			out = append(out, u)
		}
	}
	return out
}

func writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(v) //nolint:errcheck // test mock response
}

// MockYouTubeServer mocks the YouTube Data API v3 live chat endpoints.
type MockYouTubeServer struct{ *MockServer }

const (
	YouTubeSearchPath   = "/youtube/v3/search"
	YouTubeVideosPath   = "/youtube/v3/videos"
	YouTubeMessagesPath = "/youtube/v3/liveChat/messages"
)

func NewMockYouTubeServer(t *testing.T) *MockYouTubeServer {
	t.Helper()
	return &MockYouTubeServer{newMockServer(t)}
}

// Endpoint is the value to pass as the client endpoint override.
func (m *MockYouTubeServer) Endpoint() string { return m.URL + "/" }

// MockLiveSearch answers search.list with the given live video ids.
func (m *MockYouTubeServer) MockLiveSearch(videoIDs ...string) {
	m.Handle(YouTubeSearchPath, func(w http.ResponseWriter, r *http.Request) {
		items := make([]map[string]any, 0, len(videoIDs))
		for _, id := range videoIDs {
			items = append(items, map[string]any{"id": map[string]string{"kind": "youtube#video", "videoId": id}})
		}
		writeJSON(w, map[string]any{"kind": "youtube#searchListResponse", "items": items})
	})
}

// MockLiveChatID answers videos.list with liveChatID for every video.
func (m *MockYouTubeServer) MockLiveChatID(liveChatID string) {
	m.Handle(YouTubeVideosPath, func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, map[string]any{"items": []map[string]any{{
			"id":                   r.URL.Query().Get("id"),
			"liveStreamingDetails": map[string]string{"activeLiveChatId": liveChatID},
		}}})
	})
}

// YouTubeChatMessage is one liveChatMessages item.
type YouTubeChatMessage struct {
	Type   string
	Author string
	Text   string
}

// MockChatPages answers liveChatMessages.list, serving pages[i] for the i-th
// request. Requests past the last page get an empty page.
func (m *MockYouTubeServer) MockChatPages(pages ...YouTubeChatPage) {
	var mu sync.Mutex
	n := 0
	m.Handle(YouTubeMessagesPath, func(w http.ResponseWriter, r *http.Request) {
		mu.Lock()
		i := n
		n++
		mu.Unlock()
		if i >= len(pages) {
			writeJSON(w, map[string]any{"items": []any{}})
			return
		}
		p := pages[i]
		if p.Status != 0 {
			w.WriteHeader(p.Status)
			writeJSON(w, map[string]any{"error": map[string]any{"code": p.Status, "message": "mock failure"}})
			return
		}
		items := make([]map[string]any, 0, len(p.Messages))
		for _, msg := range p.Messages {
			snippet := map[string]any{"type": msg.Type, "displayMessage": msg.Text}
			if msg.Type == "textMessageEvent" {
				snippet["textMessageDetails"] = map[string]string{"messageText": msg.Text}
			}
			items = append(items, map[string]any{
				"snippet":       snippet,
				"authorDetails": map[string]string{"displayName": msg.Author},
			})
		}
		writeJSON(w, map[string]any{"nextPageToken": p.NextToken, "items": items})
	})
}

// YouTubeChatPage is one scripted liveChatMessages response. A non-zero
// Status makes the mock fail with that HTTP status.
type YouTubeChatPage struct {
	NextToken string
	Messages  []YouTubeChatMessage
	Status    int
}

// MockRelayServer mocks the generic chat relay API.
type MockRelayServer struct{ *MockServer }

func NewMockRelayServer(t *testing.T) *MockRelayServer {
	t.Helper()
	return &MockRelayServer{newMockServer(t)}
}

// MockSessions answers GET /sessions with ids.
func (m *MockRelayServer) MockSessions(ids ...string) {
	m.Handle("/sessions", func(w http.ResponseWriter, r *http.Request) {
		if ids == nil {
			ids = []string{}
		}
		writeJSON(w, map[string]any{"sessions": ids})
	})
}

// MockMessages answers GET /sessions/{id}/messages with the raw JSON bodies in
// order. Requests past the last body repeat the final one.
func (m *MockRelayServer) MockMessages(sessionID string, bodies ...string) {
	var mu sync.Mutex
	n := 0
	m.Handle("/sessions/"+sessionID+"/messages", func(w http.ResponseWriter, r *http.Request) {
		mu.Lock()
		i := n
		if n < len(bodies)-1 {
			n++
		}
		mu.Unlock()
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(bodies[i])) //nolint:errcheck // test mock response
	})
}
