package llm

import (
	"context"
	"sync"
)

// Mock is a scripted Client for tests and offline development.
// Responses are returned in order and cycle when exhausted.
// Mock is safe for concurrent use.
type Mock struct {
	mu        sync.Mutex
	responses []string
	err       error
	calls     []CompletionRequest
	next      int
}

// NewMock creates a mock client that always returns fixed.
func NewMock(fixed string) *Mock {
	return &Mock{responses: []string{fixed}}
}

// WithResponses replaces the scripted responses. They are returned in
// order, cycling back to the first when exhausted.
func (m *Mock) WithResponses(responses ...string) *Mock {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.responses = responses
	m.next = 0
	return m
}

// WithError makes every Complete call fail with err.
func (m *Mock) WithError(err error) *Mock {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.err = err
	return m
}

// Complete implements Client.
func (m *Mock) Complete(ctx context.Context, req CompletionRequest) (*CompletionResponse, error) {
	if err := ctx.Err(); err != nil {
		return nil, NewError("complete", err, false)
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	m.calls = append(m.calls, req)

	if m.err != nil {
		return nil, m.err
	}

	content := ""
	if len(m.responses) > 0 {
		content = m.responses[m.next%len(m.responses)]
		m.next++
	}

	return &CompletionResponse{
		Content:      content,
		Model:        "mock",
		FinishReason: "stop",
	}, nil
}

// Calls returns a copy of all requests seen so far.
func (m *Mock) Calls() []CompletionRequest {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]CompletionRequest, len(m.calls))
	copy(out, m.calls)
	return out
}

// CallCount returns the number of Complete calls made.
func (m *Mock) CallCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.calls)
}
