package providers

import (
	"context"
	"fmt"
	"sync/atomic"
	"time"
)

const MockClientName = "mock"

// MockClient is an LLMClient for testing.
type MockClient struct {
	Latency      time.Duration
	ShouldFail   bool
	FailAfter    int // fail every request after the first N (0 = never)
	ResponseText string

	// Respond, when set, produces the content for each request.
	Respond func(req *ChatRequest) (string, error)

	PromptTokens     int
	CompletionTokens int
	Pricing          Pricing
	RPS              float64

	requestCount atomic.Int64
}

// NewMockClient creates a new mock client with sensible defaults.
func NewMockClient() *MockClient {
	return &MockClient{
		Latency:          time.Millisecond,
		ResponseText:     `{"bullets":[]}`,
		PromptTokens:     1000,
		CompletionTokens: 200,
		Pricing:          DefaultPricing,
		RPS:              100,
	}
}

// Name returns the client identifier.
func (c *MockClient) Name() string {
	return MockClientName
}

// RequestsPerSecond returns the configured dispatch rate.
func (c *MockClient) RequestsPerSecond() float64 {
	return c.RPS
}

// MaxRetries returns zero; the mock never retries.
func (c *MockClient) MaxRetries() int {
	return 0
}

// RequestCount returns the number of Chat calls made.
func (c *MockClient) RequestCount() int64 {
	return c.requestCount.Load()
}

// Chat returns the configured response after Latency.
func (c *MockClient) Chat(ctx context.Context, req *ChatRequest) (*ChatResult, error) {
	start := time.Now()
	count := c.requestCount.Add(1)

	result := &ChatResult{
		RequestID: fmt.Sprintf("mock-%d", count),
		Provider:  MockClientName,
		ModelUsed: req.Model,
		Attempts:  1,
	}

	if c.Latency > 0 {
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(c.Latency):
		}
	}
	result.ExecutionTime = time.Since(start)

	if c.ShouldFail || (c.FailAfter > 0 && count > int64(c.FailAfter)) {
		result.ErrorType = ErrorTypeHTTP
		result.ErrorMessage = "mock failure"
		return result, fmt.Errorf("mock failure on request %d", count)
	}

	content := c.ResponseText
	if c.Respond != nil {
		var err error
		content, err = c.Respond(req)
		if err != nil {
			result.ErrorType = ErrorTypeHTTP
			result.ErrorMessage = err.Error()
			return result, err
		}
	}

	result.PromptTokens = c.PromptTokens
	result.CompletionTokens = c.CompletionTokens
	result.TotalTokens = c.PromptTokens + c.CompletionTokens
	result.CostUSD = c.Pricing.Cost(c.PromptTokens, c.CompletionTokens)

	if content == "" {
		result.ErrorType = ErrorTypeEmptyResponse
		result.ErrorMessage = "no content in response"
		return result, nil
	}
	result.Content = content
	finishStructured(result, req.ResponseFormat)
	return result, nil
}

var _ LLMClient = (*MockClient)(nil)
