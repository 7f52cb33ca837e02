// Package testutil provides shared fakes and helpers for tests.
package testutil

import (
	"context"
	"sync"

	"github.com/resumind/resumind/internal/llm"
)

// MockStreamer implements llm.Streamer for testing. Each Stream call
// consumes the next scripted stream; calls beyond the script get a
// single-fragment default.
type MockStreamer struct {
	name      string
	scripts   []*ScriptedStream
	streamErr error

	mu       sync.Mutex
	requests []llm.Request
	calls    int
}

// NewMockStreamer creates a mock streamer with the given provider name.
func NewMockStreamer(name string) *MockStreamer {
	if name == "" {
		name = "mock"
	}
	return &MockStreamer{name: name}
}

// WithScripts queues one scripted stream per upcoming Stream call.
func (m *MockStreamer) WithScripts(scripts ...*ScriptedStream) *MockStreamer {
	m.scripts = append(m.scripts, scripts...)
	return m
}

// WithStreamError makes Stream itself fail before anything is read.
func (m *MockStreamer) WithStreamError(err error) *MockStreamer {
	m.streamErr = err
	return m
}

// Name returns the mock provider name.
func (m *MockStreamer) Name() string {
	return m.name
}

// Stream records the request and returns the next scripted stream.
func (m *MockStreamer) Stream(_ context.Context, req llm.Request) (llm.Stream, error) {
	m.mu.Lock()
	m.requests = append(m.requests, req)
	call := m.calls
	m.calls++
	m.mu.Unlock()

	if m.streamErr != nil {
		return nil, m.streamErr
	}
	if call < len(m.scripts) {
		return m.scripts[call], nil
	}
	return &ScriptedStream{Fragments: []string{"mock analysis"}}, nil
}

// Requests returns a copy of the recorded requests, one per Stream call.
func (m *MockStreamer) Requests() []llm.Request {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]llm.Request{}, m.requests...)
}

// Calls returns the number of Stream calls so far.
func (m *MockStreamer) Calls() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.calls
}

// ScriptedStream plays back Fragments one Next call at a time. After
// the fragments are drained it blocks on Hold when set, then ends the
// stream with Fault as its error when set. The zero value is an empty
// successful stream.
type ScriptedStream struct {
	Fragments []string
	Fault     error
	Hold      <-chan struct{}

	mu     sync.Mutex
	pos    int
	err    error
	closed bool
}

// Next returns the next scripted fragment.
func (s *ScriptedStream) Next(ctx context.Context) (string, bool) {
	s.mu.Lock()
	if s.err != nil {
		s.mu.Unlock()
		return "", false
	}
	if err := ctx.Err(); err != nil {
		s.err = err
		s.mu.Unlock()
		return "", false
	}
	if s.pos < len(s.Fragments) {
		fragment := s.Fragments[s.pos]
		s.pos++
		s.mu.Unlock()
		return fragment, true
	}
	hold := s.Hold
	s.Hold = nil
	s.mu.Unlock()

	if hold != nil {
		select {
		case <-hold:
		case <-ctx.Done():
			s.mu.Lock()
			s.err = ctx.Err()
			s.mu.Unlock()
			return "", false
		}
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.Fault != nil && s.err == nil {
		s.err = s.Fault
	}
	return "", false
}

// Err returns the scripted fault or the context error that ended the
// stream, if any.
func (s *ScriptedStream) Err() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.err
}

// Close marks the stream closed.
func (s *ScriptedStream) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	return nil
}

// Closed reports whether Close was called.
func (s *ScriptedStream) Closed() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closed
}

// Ensure interfaces are implemented
var _ llm.Streamer = (*MockStreamer)(nil)
var _ llm.Stream = (*ScriptedStream)(nil)
