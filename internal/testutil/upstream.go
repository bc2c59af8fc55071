// Package testutil provides testing utilities for the guard library.
package testutil

import (
	"net/http"
	"net/http/httptest"
	"sync"
	"time"
)

// Response defines the behavior of a mock upstream endpoint.
type Response struct {
	StatusCode int
	Body       string
	Headers    map[string]string
	Delay      time.Duration
}

// Upstream is a configurable mock metadata server for exercising the
// resilience stack against real HTTP calls. Endpoints can be scripted to
// fail a number of times before recovering, which is the shape most
// breaker and retry tests need.
type Upstream struct {
	server   *httptest.Server
	mu       sync.RWMutex
	handlers map[string]func(w http.ResponseWriter, r *http.Request)

	// RequestCount tracks every request the server received.
	RequestCount int
}

// NewUpstream creates a mock upstream server. Unscripted paths return
// 200 with a minimal JSON body.
func NewUpstream() *Upstream {
	u := &Upstream{
		handlers: make(map[string]func(w http.ResponseWriter, r *http.Request)),
	}

	u.server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		u.mu.Lock()
		u.RequestCount++
		handler, exists := u.handlers[r.URL.Path]
		u.mu.Unlock()

		if exists {
			handler(w, r)
			return
		}

		w.Header().Set("Content-Type", "application/json; charset=utf-8")
		w.WriteHeader(http.StatusOK)
		w.Write([]byte(`{"status": "ok"}`))
	}))

	return u
}

// URL returns the mock server URL.
func (u *Upstream) URL() string {
	return u.server.URL
}

// Close shuts down the mock server.
func (u *Upstream) Close() {
	u.server.Close()
}

// Reset clears the request counter.
func (u *Upstream) Reset() {
	u.mu.Lock()
	defer u.mu.Unlock()
	u.RequestCount = 0
}

// SetHandler sets a custom handler for a specific path.
func (u *Upstream) SetHandler(path string, handler func(w http.ResponseWriter, r *http.Request)) {
	u.mu.Lock()
	defer u.mu.Unlock()
	u.handlers[path] = handler
}

// SetResponse configures a static response for a path.
func (u *Upstream) SetResponse(path string, resp Response) {
	u.SetHandler(path, func(w http.ResponseWriter, r *http.Request) {
		if resp.Delay > 0 {
			time.Sleep(resp.Delay)
		}
		for key, value := range resp.Headers {
			w.Header().Set(key, value)
		}
		w.WriteHeader(resp.StatusCode)
		if resp.Body != "" {
			w.Write([]byte(resp.Body))
		}
	})
}

// FailThenSucceed scripts a path to return 503 for the first n requests
// and 200 with body afterwards.
func (u *Upstream) FailThenSucceed(path string, n int, body string) {
	var mu sync.Mutex
	remaining := n
	u.SetHandler(path, func(w http.ResponseWriter, r *http.Request) {
		mu.Lock()
		fail := remaining > 0
		if fail {
			remaining--
		}
		mu.Unlock()

		w.Header().Set("Content-Type", "application/json; charset=utf-8")
		if fail {
			w.WriteHeader(http.StatusServiceUnavailable)
			w.Write([]byte(`{"error": "upstream unavailable"}`))
			return
		}
		w.WriteHeader(http.StatusOK)
		w.Write([]byte(body))
	})
}

// GetRequestCount returns the number of requests made to the server.
func (u *Upstream) GetRequestCount() int {
	u.mu.RLock()
	defer u.mu.RUnlock()
	return u.RequestCount
}

// ServerErrorResponse creates a 500 Internal Server Error response.
func ServerErrorResponse() Response {
	return Response{
		StatusCode: http.StatusInternalServerError,
		Body:       `{"error": "internal server error"}`,
		Headers: map[string]string{
			"Content-Type": "application/json; charset=utf-8",
		},
	}
}
