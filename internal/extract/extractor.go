// Package extract turns one chunk of a specification PDF into submittal
// entries by sending its text to an LLM with a structured output schema.
package extract

import (
	"context"
	_ "embed"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/jackzampolin/speclog/internal/chunk"
	"github.com/jackzampolin/speclog/internal/providers"
)

// SchemaName is the structured output name sent with every request.
const SchemaName = "submittal_extraction"

var (
	//go:embed schema.json
	defaultSchema []byte

	//go:embed prompt.md
	defaultPrompt string
)

// DefaultSchema returns the built-in extraction schema.
func DefaultSchema() json.RawMessage {
	return json.RawMessage(defaultSchema)
}

// DefaultSystemPrompt returns the built-in system prompt.
func DefaultSystemPrompt() string {
	return defaultPrompt
}

// LoadSchema reads a schema file, or returns the default when path is empty.
func LoadSchema(path string) (json.RawMessage, error) {
	if path == "" {
		return DefaultSchema(), nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read schema file: %w", err)
	}
	if !json.Valid(data) {
		return nil, fmt.Errorf("schema file %s is not valid JSON", path)
	}
	return json.RawMessage(data), nil
}

// LoadSystemPrompt reads a prompt file, or returns the default when path is empty.
func LoadSystemPrompt(path string) (string, error) {
	if path == "" {
		return DefaultSystemPrompt(), nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return "", fmt.Errorf("failed to read system prompt file: %w", err)
	}
	return string(data), nil
}

// TextSource returns the text of a chunk file.
type TextSource interface {
	ExtractText(ctx context.Context, path string) (string, error)
}

// Config configures a SubmittalExtractor.
type Config struct {
	LLM  providers.LLMClient
	Text TextSource

	Model       string
	Temperature float64
	MaxTokens   int

	// Schema and SystemPrompt fall back to the built-in defaults.
	Schema       json.RawMessage
	SystemPrompt string

	// ResponsesDir, when set, receives the raw content of every response.
	ResponsesDir string

	Logger *slog.Logger
}

// SubmittalExtractor implements chunk.Extractor.
type SubmittalExtractor struct {
	llm          providers.LLMClient
	text         TextSource
	model        string
	temperature  float64
	maxTokens    int
	schema       json.RawMessage
	systemPrompt string
	responsesDir string
	logger       *slog.Logger
}

// New creates a SubmittalExtractor.
func New(cfg Config) (*SubmittalExtractor, error) {
	if cfg.LLM == nil {
		return nil, fmt.Errorf("LLM client is required")
	}
	if cfg.Text == nil {
		return nil, fmt.Errorf("text source is required")
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	schema := cfg.Schema
	if len(schema) == 0 {
		schema = DefaultSchema()
	}
	prompt := cfg.SystemPrompt
	if prompt == "" {
		prompt = DefaultSystemPrompt()
	}

	return &SubmittalExtractor{
		llm:          cfg.LLM,
		text:         cfg.Text,
		model:        cfg.Model,
		temperature:  cfg.Temperature,
		maxTokens:    cfg.MaxTokens,
		schema:       schema,
		systemPrompt: prompt,
		responsesDir: cfg.ResponsesDir,
		logger:       logger.With("component", "extractor", "provider", cfg.LLM.Name()),
	}, nil
}

// Extract reads d's chunk file, asks the LLM for its submittal bullets and
// converts them to entries. A chunk without text yields no entries.
func (e *SubmittalExtractor) Extract(ctx context.Context, d chunk.Descriptor) (*chunk.Extraction, error) {
	start := time.Now()

	text, err := e.text.ExtractText(ctx, d.SourceRef)
	if err != nil {
		return nil, err
	}
	if strings.TrimSpace(text) == "" {
		e.logger.Warn("chunk has no extractable text",
			"chunk_id", d.ID,
			"pages", fmt.Sprintf("%d-%d", d.StartPage, d.EndPage))
		return &chunk.Extraction{Entries: []chunk.Entry{}, Model: e.model}, nil
	}

	req := &providers.ChatRequest{
		Messages: []providers.Message{
			{Role: "system", Content: e.systemPrompt},
			{Role: "user", Content: userMessage(d, text)},
		},
		Model:       e.model,
		Temperature: providers.Float(e.temperature),
		MaxTokens:   e.maxTokens,
		ResponseFormat: &providers.ResponseFormat{
			Name:   SchemaName,
			Schema: e.schema,
			Strict: true,
		},
		RequestID: uuid.New().String(),
	}

	result, err := e.llm.Chat(ctx, req)
	if result != nil {
		e.saveRaw(d, result)
	}
	if err != nil {
		return nil, err
	}
	if !result.Success {
		return nil, fmt.Errorf("%s: %s", result.ErrorType, result.ErrorMessage)
	}

	entries, err := DecodeEntries(result.ParsedJSON)
	if err != nil {
		return nil, err
	}

	e.logger.Info("chunk extracted",
		"chunk_id", d.ID,
		"entries", len(entries),
		"tokens", result.TotalTokens,
		"cost_usd", result.CostUSD,
		"attempts", result.Attempts,
		"duration", time.Since(start))

	return &chunk.Extraction{
		Entries: entries,
		Usage: chunk.Usage{
			PromptTokens:     result.PromptTokens,
			CompletionTokens: result.CompletionTokens,
			TotalTokens:      result.TotalTokens,
			CostUSD:          result.CostUSD,
		},
		Model: result.ModelUsed,
	}, nil
}

func userMessage(d chunk.Descriptor, text string) string {
	return fmt.Sprintf(
		"Extract submittal requirements from this construction specification document (pages %d-%d):\n\n%s",
		d.StartPage, d.EndPage, text)
}

func (e *SubmittalExtractor) saveRaw(d chunk.Descriptor, result *providers.ChatResult) {
	if e.responsesDir == "" || result.Content == "" {
		return
	}
	if err := os.MkdirAll(e.responsesDir, 0o755); err != nil {
		e.logger.Warn("could not create responses directory", "error", err)
		return
	}
	name := fmt.Sprintf("chunk_%02d_%s.json", d.ID, result.RequestID)
	if err := os.WriteFile(filepath.Join(e.responsesDir, name), []byte(result.Content), 0o644); err != nil {
		e.logger.Warn("could not save raw response", "chunk_id", d.ID, "error", err)
	}
}

// bullet is the wire shape of one extracted item. id and level arrive as
// either strings or numbers depending on the model.
type bullet struct {
	ID             json.RawMessage `json:"id"`
	Level          json.RawMessage `json:"level"`
	SpecSection    string          `json:"spec_section"`
	SectionTitle   string          `json:"section_title"`
	ArticleNumber  string          `json:"article_number"`
	SubmittalType  string          `json:"submittal_type"`
	SubmittalTitle string          `json:"submittal_title"`
	Text           string          `json:"text"`
}

// DecodeEntries converts a {"bullets": [...]} document into entries.
// Missing fields become empty strings and a missing level becomes 0.
func DecodeEntries(data json.RawMessage) ([]chunk.Entry, error) {
	var payload struct {
		Bullets []bullet `json:"bullets"`
	}
	if err := json.Unmarshal(data, &payload); err != nil {
		return nil, fmt.Errorf("failed to decode bullets: %w", err)
	}

	entries := make([]chunk.Entry, 0, len(payload.Bullets))
	for _, b := range payload.Bullets {
		entries = append(entries, chunk.Entry{
			ID:             flexString(b.ID),
			Level:          flexInt(b.Level),
			SpecSection:    strings.TrimSpace(b.SpecSection),
			SectionTitle:   strings.TrimSpace(b.SectionTitle),
			ArticleNumber:  strings.TrimSpace(b.ArticleNumber),
			SubmittalType:  strings.TrimSpace(b.SubmittalType),
			SubmittalTitle: strings.TrimSpace(b.SubmittalTitle),
			Text:           strings.TrimSpace(b.Text),
		})
	}
	return entries, nil
}

func flexString(raw json.RawMessage) string {
	if len(raw) == 0 || string(raw) == "null" {
		return ""
	}
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		return strings.TrimSpace(s)
	}
	return strings.TrimSpace(string(raw))
}

func flexInt(raw json.RawMessage) int {
	s := flexString(raw)
	if s == "" {
		return 0
	}
	if n, err := strconv.Atoi(s); err == nil {
		return n
	}
	if f, err := strconv.ParseFloat(s, 64); err == nil {
		return int(f)
	}
	return 0
}

var _ chunk.Extractor = (*SubmittalExtractor)(nil)
