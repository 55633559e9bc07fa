package nmea

import (
	"io"
	"strings"
	"sync"
)

// MockSource is an in-memory Source for tests. Reads block until a
// sentence is added or the source is closed, mimicking a quiet serial
// port between fixes.
type MockSource struct {
	mu       sync.Mutex
	pending  string
	closed   bool
	readCond *sync.Cond
}

// NewMockSource creates an empty MockSource.
func NewMockSource() *MockSource {
	m := &MockSource{}
	m.readCond = sync.NewCond(&m.mu)
	return m
}

// NewMockFeed returns a Feed over a MockSource preloaded with the
// given sentences. The source is returned too so tests can push more
// lines or end the feed's read loop.
func NewMockFeed(sentences ...string) (*Feed[*MockSource], *MockSource) {
	src := NewMockSource()
	for _, s := range sentences {
		src.AddSentence(s)
	}
	return NewFeed(src), src
}

// AddSentence appends one line, waking a blocked reader. The CRLF
// terminator is added if missing.
func (m *MockSource) AddSentence(line string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.pending += line
	if !strings.HasSuffix(line, "\n") {
		m.pending += "\r\n"
	}
	m.readCond.Signal()
}

// Read blocks until data is available or the source is closed.
// Pending data is still readable after Close so a drained source ends
// in a clean EOF.
func (m *MockSource) Read(p []byte) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	for !m.closed && len(m.pending) == 0 {
		m.readCond.Wait()
	}
	if len(m.pending) == 0 {
		return 0, io.EOF
	}

	n := copy(p, m.pending)
	m.pending = m.pending[n:]
	return n, nil
}

// Close wakes any blocked readers. It is safe to call more than once.
func (m *MockSource) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.closed = true
	m.readCond.Broadcast()
	return nil
}
