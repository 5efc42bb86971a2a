package generator

import (
	"context"
	"errors"
	"sync"
)

// MockLLM replays scripted responses in order. Useful in tests and for dry
// runs without a provider key.
type MockLLM struct {
	mu        sync.Mutex
	Responses []string
	Errs      []error
	Calls     []Request
}

func (m *MockLLM) Generate(ctx context.Context, req Request) (string, Usage, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	i := len(m.Calls)
	m.Calls = append(m.Calls, req)
	if i < len(m.Errs) && m.Errs[i] != nil {
		return "", Usage{}, m.Errs[i]
	}
	if i >= len(m.Responses) {
		return "", Usage{}, errors.New("mock llm: script exhausted")
	}
	return m.Responses[i], Usage{InputTokens: 10, OutputTokens: 5}, nil
}
