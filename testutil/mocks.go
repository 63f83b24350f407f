package testutil

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
)

// YouTube Data API paths as seen by a server passed to option.WithEndpoint(URL + "/").
const (
	PathSearch   = "/youtube/v3/search"
	PathVideos   = "/youtube/v3/videos"
	PathLiveChat = "/youtube/v3/liveChat/messages"
)

// KeyedHandler answers one request; key is the API key the client attached.
type KeyedHandler func(w http.ResponseWriter, r *http.Request, key string)

// MockYouTubeServer is a test server that mocks YouTube Data API v3 responses and records
// which API key every request carried.
type MockYouTubeServer struct {
	*httptest.Server

	mu       sync.Mutex
	handlers map[string]KeyedHandler
	keys     []string
}

// NewMockYouTubeServer creates a new mock YouTube API server.
func NewMockYouTubeServer(t *testing.T) *MockYouTubeServer {
	t.Helper()
	m := &MockYouTubeServer{handlers: make(map[string]KeyedHandler)}
	m.Server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		key := r.URL.Query().Get("key")
		m.mu.Lock()
		m.keys = append(m.keys, key)
		h, ok := m.handlers[r.URL.Path]
		m.mu.Unlock()
		if !ok {
			WriteAPIError(w, http.StatusNotFound, "notFound")
			return
		}
		h(w, r, key)
	}))
	t.Cleanup(m.Close)
	return m
}

// Endpoint is the value to pass to option.WithEndpoint.
func (m *MockYouTubeServer) Endpoint() string { return m.URL + "/" }

// Handle installs h for path, replacing any previous handler.
func (m *MockYouTubeServer) Handle(path string, h KeyedHandler) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.handlers[path] = h
}

// Keys returns the API keys of every request received so far, in order.
func (m *MockYouTubeServer) Keys() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]string(nil), m.keys...)
}

// Requests returns how many requests were received.
func (m *MockYouTubeServer) Requests() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.keys)
}

// MockSearchLive answers search.list with a single live video (or none if videoID is empty).
func (m *MockYouTubeServer) MockSearchLive(videoID, title, channel string) {
	m.Handle(PathSearch, func(w http.ResponseWriter, r *http.Request, _ string) {
		items := []map[string]any{}
		if videoID != "" {
			items = append(items, map[string]any{
				"id":      map[string]string{"kind": "youtube#video", "videoId": videoID},
				"snippet": map[string]string{"title": title, "channelTitle": channel},
			})
		}
		WriteJSON(w, map[string]any{"items": items})
	})
}

// MockVideo answers videos.list with the given video resource.
func (m *MockYouTubeServer) MockVideo(video map[string]any) {
	m.Handle(PathVideos, func(w http.ResponseWriter, r *http.Request, _ string) {
		WriteJSON(w, map[string]any{"items": []map[string]any{video}})
	})
}

// LiveVideo builds a video resource in the shape videos.list returns.
func LiveVideo(id, title, channel, chatID, started, ended string) map[string]any {
	details := map[string]any{
		"actualStartTime":   started,
		"activeLiveChatId":  chatID,
		"concurrentViewers": "42",
	}
	if ended != "" {
		details["actualEndTime"] = ended
	}
	return map[string]any{
		"id": id,
		"snippet": map[string]any{
			"title":        title,
			"description":  "descrição",
			"channelTitle": channel,
			"channelId":    "UC" + id,
			"publishedAt":  started,
		},
		"liveStreamingDetails": details,
		"statistics":           map[string]string{"likeCount": "7", "viewCount": "100", "commentCount": "0"},
	}
}

// ChatItem builds a liveChatMessage resource.
func ChatItem(author, text, published string) map[string]any {
	return map[string]any{
		"snippet":       map[string]any{"displayMessage": text, "publishedAt": published, "hasDisplayContent": text != ""},
		"authorDetails": map[string]any{"displayName": author},
	}
}

// WriteJSON writes v as a 200 JSON response.
func WriteJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(v) //nolint:errcheck // test mock response
}

// WriteAPIError writes a googleapi-style error body with one reason.
func WriteAPIError(w http.ResponseWriter, code int, reason string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(map[string]any{ //nolint:errcheck // test mock response
		"error": map[string]any{
			"code":    code,
			"message": reason,
			"errors":  []map[string]string{{"reason": reason, "domain": "youtube"}},
		},
	})
}

// WriteQuotaExceeded writes the 403 YouTube returns once a key's daily quota is spent.
func WriteQuotaExceeded(w http.ResponseWriter) {
	WriteAPIError(w, http.StatusForbidden, "quotaExceeded")
}
