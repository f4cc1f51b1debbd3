package providers

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/avast/retry-go/v4"
	"github.com/google/uuid"
	"github.com/openai/openai-go/v3"
	"github.com/openai/openai-go/v3/option"
	"github.com/openai/openai-go/v3/shared"
)

const (
	OpenRouterName         = "openrouter"
	OpenRouterBaseURL      = "https://openrouter.ai/api/v1"
	OpenRouterDefaultModel = "google/gemini-2.5-pro"
)

// DefaultPricing is the list price of the default model.
var DefaultPricing = Pricing{InputPerMillion: 1.25, OutputPerMillion: 10.00}

// OpenRouterConfig holds configuration for the OpenRouter client.
type OpenRouterConfig struct {
	APIKey       string
	BaseURL      string
	DefaultModel string
	Timeout      time.Duration
	RPS          float64       // dispatch rate (default: 2)
	MaxRetries   int           // in-call retries for transient errors (default: 3)
	RetryDelay   time.Duration // base backoff delay (default: 1s)
	Pricing      Pricing
	Logger       *slog.Logger
}

// OpenRouterClient implements LLMClient against OpenRouter's
// OpenAI-compatible chat completions API.
type OpenRouterClient struct {
	client       openai.Client
	defaultModel string
	rps          float64
	maxRetries   int
	retryDelay   time.Duration
	pricing      Pricing
	logger       *slog.Logger
}

// NewOpenRouterClient creates a new OpenRouter client.
func NewOpenRouterClient(cfg OpenRouterConfig) *OpenRouterClient {
	if cfg.BaseURL == "" {
		cfg.BaseURL = OpenRouterBaseURL
	}
	if cfg.DefaultModel == "" {
		cfg.DefaultModel = OpenRouterDefaultModel
	}
	if cfg.Timeout == 0 {
		cfg.Timeout = 300 * time.Second
	}
	if cfg.RPS == 0 {
		cfg.RPS = 2.0
	}
	if cfg.MaxRetries == 0 {
		cfg.MaxRetries = 3
	}
	if cfg.RetryDelay == 0 {
		cfg.RetryDelay = time.Second
	}
	if cfg.Pricing == (Pricing{}) {
		cfg.Pricing = DefaultPricing
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	client := openai.NewClient(
		option.WithAPIKey(cfg.APIKey),
		option.WithBaseURL(cfg.BaseURL),
		option.WithHTTPClient(&http.Client{Timeout: cfg.Timeout}),
		option.WithMaxRetries(0),
		option.WithHeader("X-Title", "speclog"),
	)

	return &OpenRouterClient{
		client:       client,
		defaultModel: cfg.DefaultModel,
		rps:          cfg.RPS,
		maxRetries:   cfg.MaxRetries,
		retryDelay:   cfg.RetryDelay,
		pricing:      cfg.Pricing,
		logger:       logger.With("provider", OpenRouterName),
	}
}

// Name returns the client identifier.
func (c *OpenRouterClient) Name() string {
	return OpenRouterName
}

// RequestsPerSecond returns the dispatch rate.
func (c *OpenRouterClient) RequestsPerSecond() float64 {
	return c.rps
}

// MaxRetries returns the in-call retry budget.
func (c *OpenRouterClient) MaxRetries() int {
	return c.maxRetries
}

// DefaultModel returns the model used when a request does not name one.
func (c *OpenRouterClient) DefaultModel() string {
	return c.defaultModel
}

// Pricing returns the pricing used for cost accounting.
func (c *OpenRouterClient) Pricing() Pricing {
	return c.pricing
}

// Chat sends a chat completion request, retrying transient failures.
func (c *OpenRouterClient) Chat(ctx context.Context, req *ChatRequest) (*ChatResult, error) {
	start := time.Now()

	requestID := req.RequestID
	if requestID == "" {
		requestID = uuid.New().String()
	}
	model := req.Model
	if model == "" {
		model = c.defaultModel
	}

	params, err := c.buildParams(model, req)
	if err != nil {
		return nil, err
	}

	result := &ChatResult{
		Provider:  OpenRouterName,
		ModelUsed: model,
		RequestID: requestID,
	}

	var completion *openai.ChatCompletion
	err = retry.Do(
		func() error {
			result.Attempts++
			resp, err := c.client.Chat.Completions.New(ctx, params, option.WithHeader("X-Request-ID", requestID))
			if err != nil {
				return err
			}
			completion = resp
			return nil
		},
		retry.Context(ctx),
		retry.Attempts(uint(c.maxRetries+1)),
		retry.Delay(c.retryDelay),
		retry.MaxJitter(c.retryDelay),
		retry.MaxDelay(30*time.Second),
		retry.DelayType(retry.CombineDelay(retry.BackOffDelay, retry.RandomDelay)),
		retry.RetryIf(shouldRetry),
		retry.LastErrorOnly(true),
		retry.OnRetry(func(n uint, err error) {
			c.logger.Debug("chat request failed, retrying",
				"request_id", requestID,
				"attempt", n+1,
				"error", describeError(err))
		}),
	)
	result.ExecutionTime = time.Since(start)
	if err != nil {
		result.ErrorType = ErrorTypeHTTP
		result.ErrorMessage = describeError(err)
		return result, fmt.Errorf("openrouter chat failed after %d attempt(s): %w", result.Attempts, err)
	}

	if completion.Model != "" {
		result.ModelUsed = completion.Model
	}
	result.PromptTokens = int(completion.Usage.PromptTokens)
	result.CompletionTokens = int(completion.Usage.CompletionTokens)
	result.TotalTokens = int(completion.Usage.TotalTokens)
	result.CostUSD = c.pricing.Cost(result.PromptTokens, result.CompletionTokens)

	if len(completion.Choices) == 0 || completion.Choices[0].Message.Content == "" {
		result.ErrorType = ErrorTypeEmptyResponse
		result.ErrorMessage = "no content in response"
		return result, nil
	}
	result.Content = completion.Choices[0].Message.Content

	finishStructured(result, req.ResponseFormat)
	return result, nil
}

func (c *OpenRouterClient) buildParams(model string, req *ChatRequest) (openai.ChatCompletionNewParams, error) {
	params := openai.ChatCompletionNewParams{
		Model:    shared.ChatModel(model),
		Messages: make([]openai.ChatCompletionMessageParamUnion, 0, len(req.Messages)),
	}

	for _, m := range req.Messages {
		switch m.Role {
		case "system":
			params.Messages = append(params.Messages, openai.SystemMessage(m.Content))
		case "assistant":
			params.Messages = append(params.Messages, openai.AssistantMessage(m.Content))
		default:
			params.Messages = append(params.Messages, openai.UserMessage(m.Content))
		}
	}

	if req.Temperature != nil {
		params.Temperature = openai.Float(*req.Temperature)
	}
	if req.MaxTokens > 0 {
		params.MaxTokens = openai.Int(int64(req.MaxTokens))
	}

	if rf := req.ResponseFormat; rf != nil {
		schema, err := extractValidationSchema(rf.Schema)
		if err != nil {
			return params, err
		}
		var schemaDoc map[string]any
		if err := json.Unmarshal(schema, &schemaDoc); err != nil {
			return params, fmt.Errorf("invalid response schema: %w", err)
		}
		params.ResponseFormat = openai.ChatCompletionNewParamsResponseFormatUnion{
			OfJSONSchema: &shared.ResponseFormatJSONSchemaParam{
				JSONSchema: shared.ResponseFormatJSONSchemaJSONSchemaParam{
					Name:   rf.Name,
					Schema: schemaDoc,
					Strict: openai.Bool(rf.Strict),
				},
			},
		}
	}

	return params, nil
}

// finishStructured parses and validates structured content, marking the
// result successful only when both pass.
func finishStructured(result *ChatResult, rf *ResponseFormat) {
	if rf == nil {
		result.Success = true
		return
	}

	parsed, err := ParseStructuredJSON(result.Content)
	if err != nil {
		result.ErrorType = ErrorTypeJSONParse
		result.ErrorMessage = err.Error()
		return
	}
	if err := ValidateStructuredJSON(rf.Schema, parsed); err != nil {
		result.ErrorType = ErrorTypeSchemaValidation
		result.ErrorMessage = err.Error()
		return
	}
	result.ParsedJSON = parsed
	result.Success = true
}

// shouldRetry reports whether err is worth another attempt.
func shouldRetry(err error) bool {
	if errors.Is(err, context.Canceled) {
		return false
	}
	var apiErr *openai.Error
	if errors.As(err, &apiErr) {
		code := apiErr.StatusCode
		return code == http.StatusRequestTimeout ||
			code == http.StatusTooManyRequests ||
			code >= 500
	}
	return true
}

func describeError(err error) string {
	var apiErr *openai.Error
	if errors.As(err, &apiErr) {
		if apiErr.Message != "" {
			return fmt.Sprintf("HTTP %d: %s", apiErr.StatusCode, apiErr.Message)
		}
		return fmt.Sprintf("HTTP %d", apiErr.StatusCode)
	}
	return err.Error()
}

var _ LLMClient = (*OpenRouterClient)(nil)
