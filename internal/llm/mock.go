package llm

import (
	"context"
	"sync"
)

// MockProvider records calls and replays canned responses. Other packages
// use it in their tests.
type MockProvider struct {
	mu        sync.Mutex
	Calls     []CompletionRequest
	Responses []string
	Err       error
	ProvName  string
}

// NewMockProvider returns a mock that answers with responses in order,
// repeating the last one when exhausted.
func NewMockProvider(name string, responses ...string) *MockProvider {
	if len(responses) == 0 {
		responses = []string{"mock response"}
	}
	return &MockProvider{ProvName: name, Responses: responses}
}

func (m *MockProvider) Name() string {
	return m.ProvName
}

func (m *MockProvider) Complete(ctx context.Context, req CompletionRequest) (*CompletionResponse, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Calls = append(m.Calls, req)
	if m.Err != nil {
		return nil, m.Err
	}
	i := len(m.Calls) - 1
	if i >= len(m.Responses) {
		i = len(m.Responses) - 1
	}
	return &CompletionResponse{
		Content:      m.Responses[i],
		InputTokens:  10,
		OutputTokens: 20,
		Model:        "mock-model",
		FinishReason: "stop",
	}, nil
}

// CallCount returns the number of Complete calls so far.
func (m *MockProvider) CallCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.Calls)
}

// LastRequest returns the most recent request, or a zero value.
func (m *MockProvider) LastRequest() CompletionRequest {
	m.mu.Lock()
	defer m.mu.Unlock()
	if len(m.Calls) == 0 {
		return CompletionRequest{}
	}
	return m.Calls[len(m.Calls)-1]
}
