// Package testutil provides testing utilities for the firehose client.
package testutil

import (
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync"
)

// TokenPath is where the mock serves the token endpoint.
const TokenPath = "/api/v1/access_token"

// MockResponse defines the behavior of a mock upstream endpoint.
type MockResponse struct {
	StatusCode int
	Body       string
	Headers    map[string]string
}

// MockUpstream is a configurable mock of the upstream API: a token
// endpoint plus arbitrary data endpoints with rate-limit headers.
type MockUpstream struct {
	server   *httptest.Server
	mu       sync.RWMutex
	handlers map[string]func(w http.ResponseWriter, r *http.Request)

	// Tracking
	RequestCount      int
	TokenRequestCount int
	LastRequestHeader http.Header
}

// NewMockUpstream creates a mock upstream serving a healthy token
// endpoint by default.
func NewMockUpstream() *MockUpstream {
	mock := &MockUpstream{
		handlers: make(map[string]func(w http.ResponseWriter, r *http.Request)),
	}

	mock.server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		mock.mu.Lock()
		mock.RequestCount++
		if r.URL.Path == TokenPath {
			mock.TokenRequestCount++
		}
		mock.LastRequestHeader = r.Header.Clone()
		mock.mu.Unlock()

		mock.mu.RLock()
		handler, exists := mock.handlers[r.URL.Path]
		mock.mu.RUnlock()

		if exists {
			handler(w, r)
			return
		}

		if r.URL.Path == TokenPath {
			mock.defaultTokenHandler(w, r)
			return
		}

		mock.defaultHandler(w, r)
	}))

	return mock
}

// URL returns the mock server URL.
func (m *MockUpstream) URL() string {
	return m.server.URL
}

// TokenURL returns the full URL of the mock token endpoint.
func (m *MockUpstream) TokenURL() string {
	return m.server.URL + TokenPath
}

// Close shuts down the mock server.
func (m *MockUpstream) Close() {
	m.server.Close()
}

// Reset clears all tracking counters.
func (m *MockUpstream) Reset() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.RequestCount = 0
	m.TokenRequestCount = 0
	m.LastRequestHeader = nil
}

// SetHandler sets a custom handler for a specific path.
func (m *MockUpstream) SetHandler(path string, handler func(w http.ResponseWriter, r *http.Request)) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.handlers[path] = handler
}

// SetResponse configures a simple response for a path.
func (m *MockUpstream) SetResponse(path string, resp MockResponse) {
	m.SetHandler(path, func(w http.ResponseWriter, r *http.Request) {
		for key, value := range resp.Headers {
			w.Header().Set(key, value)
		}
		w.WriteHeader(resp.StatusCode)
		if resp.Body != "" {
			w.Write([]byte(resp.Body))
		}
	})
}

// SetTokenResponse overrides the token endpoint behavior.
func (m *MockUpstream) SetTokenResponse(resp MockResponse) {
	m.SetResponse(TokenPath, resp)
}

// GetRequestCount returns the total number of requests served.
func (m *MockUpstream) GetRequestCount() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.RequestCount
}

// GetTokenRequestCount returns the number of token endpoint hits.
func (m *MockUpstream) GetTokenRequestCount() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.TokenRequestCount
}

// GetLastRequestHeader returns the headers of the most recent request.
func (m *MockUpstream) GetLastRequestHeader() http.Header {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.LastRequestHeader
}

// defaultTokenHandler issues a long-lived token.
func (m *MockUpstream) defaultTokenHandler(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	fmt.Fprint(w, `{"access_token": "mock-token", "token_type": "bearer", "expires_in": 3600}`)
}

// defaultHandler serves an empty listing with healthy rate headers.
func (m *MockUpstream) defaultHandler(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("X-Ratelimit-Remaining", "599.0")
	w.Header().Set("X-Ratelimit-Reset", "600")
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	w.Write([]byte(`{"data": {"children": []}}`))
}

// NewListingResponse creates a 200 listing response with healthy rate
// headers. Each child is raw JSON for one listing entry.
func NewListingResponse(children ...string) MockResponse {
	body := `{"data": {"children": [`
	for i, c := range children {
		if i > 0 {
			body += ","
		}
		body += c
	}
	body += `]}}`

	return MockResponse{
		StatusCode: http.StatusOK,
		Body:       body,
		Headers: map[string]string{
			"X-Ratelimit-Remaining": "599.0",
			"X-Ratelimit-Reset":     "600",
			"Content-Type":          "application/json; charset=utf-8",
		},
	}
}

// NewChild builds one listing child payload.
func NewChild(kind, id, author string) string {
	return fmt.Sprintf(`{"kind": %q, "data": {"id": %q, "author": %q}}`, kind, id, author)
}

// NewThrottledResponse creates a 200 response whose headers signal that
// the allowance is nearly exhausted.
func NewThrottledResponse(body string) MockResponse {
	return MockResponse{
		StatusCode: http.StatusOK,
		Body:       body,
		Headers: map[string]string{
			"X-Ratelimit-Remaining": "0.0",
			"X-Ratelimit-Reset":     "30",
			"Content-Type":          "application/json; charset=utf-8",
		},
	}
}

// NewServerErrorResponse creates a 500 response.
func NewServerErrorResponse() MockResponse {
	return MockResponse{
		StatusCode: http.StatusInternalServerError,
		Body:       `{"error": "internal server error"}`,
		Headers: map[string]string{
			"X-Ratelimit-Remaining": "590.0",
			"X-Ratelimit-Reset":     "600",
			"Content-Type":          "application/json; charset=utf-8",
		},
	}
}
