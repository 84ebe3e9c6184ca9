package chat_test

import (
	"context"
	"strings"
	"sync"

	"github.com/m-mizutani/cryptochat/pkg/adapter"
	"github.com/m-mizutani/cryptochat/pkg/model"
)

// mockLLM answers extraction prompts with extractOutput and every other prompt
// with respond. Requests are recorded in call order.
type mockLLM struct {
	mu            sync.Mutex
	extractOutput string
	extractErr    error
	respond       func(req *adapter.CompletionRequest) (string, error)
	requests      []*adapter.CompletionRequest
}

func isExtractRequest(req *adapter.CompletionRequest) bool {
	return len(req.Messages) == 2 && strings.Contains(req.Messages[0].Content, "currencies_mentioned")
}

func (m *mockLLM) Complete(ctx context.Context, req *adapter.CompletionRequest) (string, error) {
	m.mu.Lock()
	m.requests = append(m.requests, req)
	m.mu.Unlock()

	if isExtractRequest(req) {
		return m.extractOutput, m.extractErr
	}
	if m.respond != nil {
		return m.respond(req)
	}
	return "generated answer", nil
}

func (m *mockLLM) extractRequests() []*adapter.CompletionRequest {
	var out []*adapter.CompletionRequest
	for _, r := range m.requests {
		if isExtractRequest(r) {
			out = append(out, r)
		}
	}
	return out
}

func (m *mockLLM) responseRequests() []*adapter.CompletionRequest {
	var out []*adapter.CompletionRequest
	for _, r := range m.requests {
		if !isExtractRequest(r) {
			out = append(out, r)
		}
	}
	return out
}

type mockFetcher struct {
	data  map[model.CoinID]model.CoinData
	calls []model.CoinID
}

func (m *mockFetcher) Fetch(ctx context.Context, id model.CoinID) (model.CoinData, bool) {
	m.calls = append(m.calls, id)
	d, ok := m.data[id]
	return d, ok
}

type mockTranslator struct {
	output string
	err    error
	calls  int
}

func (m *mockTranslator) Translate(ctx context.Context, text, to string) (string, error) {
	m.calls++
	return m.output, m.err
}

// keywordEmbedder gives every text containing the same coin keywords the same vector
type keywordEmbedder struct{}

func (keywordEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	words := []string{"bitcoin", "ethereum", "dogecoin", "weather", "price"}
	vec := make([]float32, len(words)+1)
	lower := strings.ToLower(text)
	for i, w := range words {
		if strings.Contains(lower, w) {
			vec[i] = 1
		}
	}
	vec[len(words)] = 0.01
	return vec, nil
}
