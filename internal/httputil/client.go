// Package httputil wraps the pipeline's HTTP edges: the small client
// interface the OSRM matcher depends on, a scriptable fake for tests,
// and the JSON response helpers shared by the API handlers.
package httputil

import (
	"bytes"
	"io"
	"net/http"
	"sync"
)

// HTTPClient is the outbound surface map-matching calls go through.
// Production code wraps *http.Client with NewStandardClient; tests
// substitute a MockHTTPClient scripted with canned replies.
type HTTPClient interface {
	Do(req *http.Request) (*http.Response, error)
	Get(url string) (*http.Response, error)
}

// StandardClient adapts *http.Client to HTTPClient.
type StandardClient struct {
	*http.Client
}

// NewStandardClient wraps c, falling back to http.DefaultClient when c
// is nil.
func NewStandardClient(c *http.Client) *StandardClient {
	if c == nil {
		c = http.DefaultClient
	}
	return &StandardClient{Client: c}
}

func (c *StandardClient) Do(req *http.Request) (*http.Response, error) {
	return c.Client.Do(req)
}

func (c *StandardClient) Get(url string) (*http.Response, error) {
	return c.Client.Get(url)
}

// MockHTTPClient plays back a scripted sequence of replies and records
// every request it saw. Safe for concurrent use.
type MockHTTPClient struct {
	mu       sync.Mutex
	requests []*http.Request
	script   []mockReply
	next     int
}

type mockReply struct {
	status int
	body   string
	err    error
}

// NewMockHTTPClient returns an empty mock. With nothing scripted it
// answers 200 with an empty body.
func NewMockHTTPClient() *MockHTTPClient {
	return &MockHTTPClient{}
}

// AddResponse appends a canned reply with the given status and body.
func (m *MockHTTPClient) AddResponse(statusCode int, body string) *MockHTTPClient {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.script = append(m.script, mockReply{status: statusCode, body: body})
	return m
}

// AddErrorResponse appends a transport-level failure.
func (m *MockHTTPClient) AddErrorResponse(err error) *MockHTTPClient {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.script = append(m.script, mockReply{err: err})
	return m
}

// Do records req and plays the next scripted reply.
func (m *MockHTTPClient) Do(req *http.Request) (*http.Response, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.requests = append(m.requests, req)

	reply := mockReply{status: http.StatusOK}
	if m.next < len(m.script) {
		reply = m.script[m.next]
		m.next++
	}
	if reply.err != nil {
		return nil, reply.err
	}

	return &http.Response{
		StatusCode: reply.status,
		Body:       io.NopCloser(bytes.NewBufferString(reply.body)),
		Header:     make(http.Header),
		Request:    req,
	}, nil
}

// Get issues a GET through Do.
func (m *MockHTTPClient) Get(url string) (*http.Response, error) {
	req, err := http.NewRequest(http.MethodGet, url, nil)
	if err != nil {
		return nil, err
	}
	return m.Do(req)
}

// GetRequest returns the nth recorded request, or nil when out of
// range.
func (m *MockHTTPClient) GetRequest(n int) *http.Request {
	m.mu.Lock()
	defer m.mu.Unlock()
	if n < 0 || n >= len(m.requests) {
		return nil
	}
	return m.requests[n]
}

// RequestCount reports how many requests the mock has seen.
func (m *MockHTTPClient) RequestCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.requests)
}
