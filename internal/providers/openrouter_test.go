package providers

import (
	"context"
	"encoding/json"
	"math"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"
)

func chatResponse(content string) map[string]any {
	return map[string]any{
		"id":      "gen-1",
		"object":  "chat.completion",
		"created": 1700000000,
		"model":   "google/gemini-2.5-pro",
		"choices": []map[string]any{
			{
				"index": 0,
				"message": map[string]any{
					"role":    "assistant",
					"content": content,
				},
				"finish_reason": "stop",
			},
		},
		"usage": map[string]int{
			"prompt_tokens":     2000000,
			"completion_tokens": 100000,
			"total_tokens":      2100000,
		},
	}
}

func newTestClient(url string) *OpenRouterClient {
	return NewOpenRouterClient(OpenRouterConfig{
		APIKey:     "test-key",
		BaseURL:    url,
		RetryDelay: time.Millisecond,
	})
}

func TestOpenRouterClient_Chat(t *testing.T) {
	t.Run("successful chat", func(t *testing.T) {
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if r.URL.Path != "/chat/completions" {
				t.Errorf("unexpected path: %s", r.URL.Path)
			}
			if r.Method != http.MethodPost {
				t.Errorf("unexpected method: %s", r.Method)
			}
			if auth := r.Header.Get("Authorization"); auth != "Bearer test-key" {
				t.Errorf("unexpected authorization: %s", auth)
			}

			var body map[string]any
			if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
				t.Errorf("failed to decode request: %v", err)
			}
			if body["model"] != OpenRouterDefaultModel {
				t.Errorf("expected default model, got %v", body["model"])
			}

			w.Header().Set("Content-Type", "application/json")
			json.NewEncoder(w).Encode(chatResponse("Hello!"))
		}))
		defer server.Close()

		client := newTestClient(server.URL)
		result, err := client.Chat(context.Background(), &ChatRequest{
			Messages: []Message{{Role: "user", Content: "Hello"}},
		})
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if !result.Success {
			t.Fatalf("expected success, got error: %s", result.ErrorMessage)
		}
		if result.Content != "Hello!" {
			t.Errorf("expected content Hello!, got %s", result.Content)
		}
		if result.PromptTokens != 2000000 || result.CompletionTokens != 100000 {
			t.Errorf("unexpected token counts: %d/%d", result.PromptTokens, result.CompletionTokens)
		}
		// 2M input at 1.25/M plus 0.1M output at 10/M
		if math.Abs(result.CostUSD-3.5) > 1e-9 {
			t.Errorf("expected cost 3.5, got %f", result.CostUSD)
		}
		if result.RequestID == "" {
			t.Error("expected generated request id")
		}
	})

	t.Run("retries server errors", func(t *testing.T) {
		var calls atomic.Int32
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if calls.Add(1) <= 2 {
				w.WriteHeader(http.StatusBadGateway)
				w.Write([]byte(`{"error":{"message":"upstream"}}`))
				return
			}
			w.Header().Set("Content-Type", "application/json")
			json.NewEncoder(w).Encode(chatResponse("ok"))
		}))
		defer server.Close()

		client := newTestClient(server.URL)
		result, err := client.Chat(context.Background(), &ChatRequest{
			Messages: []Message{{Role: "user", Content: "Hello"}},
		})
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if result.Attempts != 3 {
			t.Errorf("expected 3 attempts, got %d", result.Attempts)
		}
		if !result.Success {
			t.Errorf("expected success after retries")
		}
	})

	t.Run("does not retry client errors", func(t *testing.T) {
		var calls atomic.Int32
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			calls.Add(1)
			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(http.StatusBadRequest)
			w.Write([]byte(`{"error":{"message":"bad request"}}`))
		}))
		defer server.Close()

		client := newTestClient(server.URL)
		result, err := client.Chat(context.Background(), &ChatRequest{
			Messages: []Message{{Role: "user", Content: "Hello"}},
		})
		if err == nil {
			t.Fatal("expected error")
		}
		if calls.Load() != 1 {
			t.Errorf("expected 1 call, got %d", calls.Load())
		}
		if result.ErrorType != ErrorTypeHTTP {
			t.Errorf("expected error type %s, got %s", ErrorTypeHTTP, result.ErrorType)
		}
	})

	t.Run("structured output is parsed and validated", func(t *testing.T) {
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			var body map[string]any
			json.NewDecoder(r.Body).Decode(&body)
			rf, _ := body["response_format"].(map[string]any)
			if rf["type"] != "json_schema" {
				t.Errorf("expected json_schema response format, got %v", rf["type"])
			}
			js, _ := rf["json_schema"].(map[string]any)
			if js["name"] != "test_schema" || js["strict"] != true {
				t.Errorf("unexpected json_schema block: %v", js)
			}

			w.Header().Set("Content-Type", "application/json")
			json.NewEncoder(w).Encode(chatResponse("```json\n{\"level\": 2,}\n```"))
		}))
		defer server.Close()

		client := newTestClient(server.URL)
		result, err := client.Chat(context.Background(), &ChatRequest{
			Messages: []Message{{Role: "user", Content: "Hello"}},
			ResponseFormat: &ResponseFormat{
				Name:   "test_schema",
				Strict: true,
				Schema: json.RawMessage(`{"type":"object","properties":{"level":{"type":"integer"}},"required":["level"]}`),
			},
		})
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if !result.Success {
			t.Fatalf("expected success, got %s: %s", result.ErrorType, result.ErrorMessage)
		}
		if string(result.ParsedJSON) != `{"level":2}` {
			t.Errorf("unexpected parsed JSON: %s", result.ParsedJSON)
		}
	})

	t.Run("schema mismatch is reported on the result", func(t *testing.T) {
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.Header().Set("Content-Type", "application/json")
			json.NewEncoder(w).Encode(chatResponse(`{"level":"two"}`))
		}))
		defer server.Close()

		client := newTestClient(server.URL)
		result, err := client.Chat(context.Background(), &ChatRequest{
			Messages: []Message{{Role: "user", Content: "Hello"}},
			ResponseFormat: &ResponseFormat{
				Name:   "test_schema",
				Schema: json.RawMessage(`{"type":"object","properties":{"level":{"type":"integer"}}}`),
			},
		})
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if result.Success {
			t.Fatal("expected failure")
		}
		if result.ErrorType != ErrorTypeSchemaValidation {
			t.Errorf("expected %s, got %s", ErrorTypeSchemaValidation, result.ErrorType)
		}
	})

	t.Run("empty content", func(t *testing.T) {
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.Header().Set("Content-Type", "application/json")
			json.NewEncoder(w).Encode(chatResponse(""))
		}))
		defer server.Close()

		result, err := newTestClient(server.URL).Chat(context.Background(), &ChatRequest{
			Messages: []Message{{Role: "user", Content: "Hello"}},
		})
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if result.ErrorType != ErrorTypeEmptyResponse {
			t.Errorf("expected %s, got %s", ErrorTypeEmptyResponse, result.ErrorType)
		}
	})
}

func TestNewOpenRouterClient_Defaults(t *testing.T) {
	client := NewOpenRouterClient(OpenRouterConfig{APIKey: "k"})
	if client.Name() != OpenRouterName {
		t.Errorf("expected name %s, got %s", OpenRouterName, client.Name())
	}
	if client.DefaultModel() != OpenRouterDefaultModel {
		t.Errorf("expected model %s, got %s", OpenRouterDefaultModel, client.DefaultModel())
	}
	if client.MaxRetries() != 3 {
		t.Errorf("expected 3 retries, got %d", client.MaxRetries())
	}
	if client.Pricing() != DefaultPricing {
		t.Errorf("expected default pricing, got %+v", client.Pricing())
	}
}

func TestPricing_Cost(t *testing.T) {
	p := Pricing{InputPerMillion: 1.25, OutputPerMillion: 10}
	got := p.Cost(1_000_000, 500_000)
	if math.Abs(got-6.25) > 1e-9 {
		t.Errorf("expected 6.25, got %f", got)
	}
}
