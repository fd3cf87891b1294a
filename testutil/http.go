package testutil

import (
	"io"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
)

// Response is one scripted HTTP reply
type Response struct {
	Status int
	Body   string
}

// JSONServer plays back responses in order; the last one repeats.
// Thread-safe for concurrent use.
type JSONServer struct {
	*httptest.Server

	mu        sync.Mutex
	responses []Response
	hits      int
	paths     []string
}

// NewJSONServer starts a server and registers its shutdown with t
func NewJSONServer(t testing.TB, responses ...Response) *JSONServer {
	t.Helper()

	s := &JSONServer{responses: responses}
	s.Server = httptest.NewServer(http.HandlerFunc(s.serve))
	t.Cleanup(s.Close)
	return s
}

func (s *JSONServer) serve(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	i := s.hits
	s.hits++
	s.paths = append(s.paths, r.URL.Path)
	s.mu.Unlock()

	resp := Response{Status: http.StatusOK, Body: `{}`}
	if len(s.responses) > 0 {
		if i >= len(s.responses) {
			i = len(s.responses) - 1
		}
		resp = s.responses[i]
	}
	if resp.Status == 0 {
		resp.Status = http.StatusOK
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(resp.Status)
	_, _ = io.WriteString(w, resp.Body)
}

// Hits returns the number of requests served
func (s *JSONServer) Hits() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.hits
}

// Paths returns the request paths in the order they arrived
func (s *JSONServer) Paths() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.paths...)
}
