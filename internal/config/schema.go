package config

import (
	"fmt"
	"os"
	"sort"
)

// Config holds speclog configuration.
// Stored at: {home}/config.yaml
type Config struct {
	LLMProviders map[string]LLMProviderCfg `mapstructure:"llm_providers" yaml:"llm_providers"`
	Defaults     DefaultsCfg               `mapstructure:"defaults" yaml:"defaults"`
	Chunking     ChunkingCfg               `mapstructure:"chunking" yaml:"chunking"`
	Processing   ProcessingCfg             `mapstructure:"processing" yaml:"processing"`
	Output       OutputCfg                 `mapstructure:"output" yaml:"output"`
	Watch        WatchCfg                  `mapstructure:"watch" yaml:"watch"`
}

// LLMProviderCfg configures an LLM provider.
type LLMProviderCfg struct {
	Type                 string  `mapstructure:"type" yaml:"type"`                       // "openrouter"
	Model                string  `mapstructure:"model" yaml:"model"`                     // Model name
	APIKey               string  `mapstructure:"api_key" yaml:"api_key"`                 // API key (supports ${ENV_VAR} syntax)
	BaseURL              string  `mapstructure:"base_url" yaml:"base_url"`               // API base URL
	RateLimit            float64 `mapstructure:"rate_limit" yaml:"rate_limit"`           // Requests per second
	TimeoutSeconds       int     `mapstructure:"timeout_seconds" yaml:"timeout_seconds"` // Per-request timeout
	MaxRetries           int     `mapstructure:"max_retries" yaml:"max_retries"`         // In-call retries for transient errors
	Temperature          float64 `mapstructure:"temperature" yaml:"temperature"`
	MaxTokens            int     `mapstructure:"max_tokens" yaml:"max_tokens"`
	InputCostPerMillion  float64 `mapstructure:"input_cost_per_million" yaml:"input_cost_per_million"`
	OutputCostPerMillion float64 `mapstructure:"output_cost_per_million" yaml:"output_cost_per_million"`
	Enabled              bool    `mapstructure:"enabled" yaml:"enabled"`
}

// DefaultsCfg specifies default provider selections.
type DefaultsCfg struct {
	LLMProvider string `mapstructure:"llm_provider" yaml:"llm_provider"`
}

// ChunkingCfg sizes the page-range chunks.
type ChunkingCfg struct {
	TokensPerPage     int `mapstructure:"tokens_per_page" yaml:"tokens_per_page"`
	MaxTokensPerChunk int `mapstructure:"max_tokens_per_chunk" yaml:"max_tokens_per_chunk"`
	MinChunkPages     int `mapstructure:"min_chunk_pages" yaml:"min_chunk_pages"`
}

// ProcessingCfg controls concurrency, retries and extraction behavior.
type ProcessingCfg struct {
	MaxWorkers            int     `mapstructure:"max_workers" yaml:"max_workers"`
	MaxRetries            int     `mapstructure:"max_retries" yaml:"max_retries"` // Retry rounds after the first pass
	SchemaFile            string  `mapstructure:"schema_file" yaml:"schema_file"` // Empty uses the built-in schema
	SystemPromptFile      string  `mapstructure:"system_prompt_file" yaml:"system_prompt_file"`
	SaveRawResponses      bool    `mapstructure:"save_raw_responses" yaml:"save_raw_responses"`
	EnableValidation      bool    `mapstructure:"enable_validation" yaml:"enable_validation"`
	ExcludeHeadersFooters bool    `mapstructure:"exclude_headers_footers" yaml:"exclude_headers_footers"`
	CostAlertThreshold    float64 `mapstructure:"cost_alert_threshold" yaml:"cost_alert_threshold"`
	RunCostLimit          float64 `mapstructure:"run_cost_limit" yaml:"run_cost_limit"`
	KeepChunks            bool    `mapstructure:"keep_chunks" yaml:"keep_chunks"`
}

// OutputCfg controls where results are written.
type OutputCfg struct {
	Dir            string `mapstructure:"dir" yaml:"dir"` // Empty uses {home}/output
	JSONBackup     bool   `mapstructure:"json_backup" yaml:"json_backup"`
	TimestampFiles bool   `mapstructure:"timestamp_files" yaml:"timestamp_files"`
}

// WatchCfg configures the inbox watcher.
type WatchCfg struct {
	Inbox      string `mapstructure:"inbox" yaml:"inbox"` // Empty uses {home}/inbox
	DebounceMS int    `mapstructure:"debounce_ms" yaml:"debounce_ms"`
}

// DefaultConfig returns configuration with sensible defaults.
func DefaultConfig() *Config {
	return &Config{
		LLMProviders: map[string]LLMProviderCfg{
			"openrouter": {
				Type:                 "openrouter",
				Model:                "google/gemini-2.5-pro",
				APIKey:               "${OPENROUTER_API_KEY}",
				BaseURL:              "https://openrouter.ai/api/v1",
				RateLimit:            2.0,
				TimeoutSeconds:       300,
				MaxRetries:           3,
				Temperature:          0.1,
				MaxTokens:            100000,
				InputCostPerMillion:  1.25,
				OutputCostPerMillion: 10.00,
				Enabled:              true,
			},
		},
		Defaults: DefaultsCfg{
			LLMProvider: "openrouter",
		},
		Chunking: ChunkingCfg{
			TokensPerPage:     530,
			MaxTokensPerChunk: 100000,
			MinChunkPages:     200,
		},
		Processing: ProcessingCfg{
			MaxWorkers:         12,
			MaxRetries:         3,
			SaveRawResponses:   true,
			EnableValidation:   true,
			CostAlertThreshold: 10.00,
			RunCostLimit:       50.00,
		},
		Output: OutputCfg{
			JSONBackup:     true,
			TimestampFiles: true,
		},
		Watch: WatchCfg{
			DebounceMS: 750,
		},
	}
}

// GetLLMProvider returns an LLM provider config by name.
func (c *Config) GetLLMProvider(name string) (LLMProviderCfg, bool) {
	cfg, ok := c.LLMProviders[name]
	return cfg, ok
}

// EnabledLLMProviders returns names of enabled LLM providers in sorted order.
func (c *Config) EnabledLLMProviders() []string {
	var names []string
	for name, cfg := range c.LLMProviders {
		if cfg.Enabled {
			names = append(names, name)
		}
	}
	sort.Strings(names)
	return names
}

// DefaultLLM returns the default provider's name and config.
func (c *Config) DefaultLLM() (string, LLMProviderCfg, error) {
	name := c.Defaults.LLMProvider
	cfg, ok := c.GetLLMProvider(name)
	if !ok {
		return name, cfg, fmt.Errorf("defaults.llm_provider: unknown provider %q", name)
	}
	return name, cfg, nil
}

// Validate checks that the configuration can run an extraction.
func (c *Config) Validate() error {
	name, llm, err := c.DefaultLLM()
	if err != nil {
		return err
	}
	if !llm.Enabled {
		return fmt.Errorf("llm_providers.%s: provider is disabled", name)
	}
	if ResolveEnvVars(llm.APIKey) == "" {
		return fmt.Errorf("llm_providers.%s.api_key: not set (export the referenced environment variable)", name)
	}

	positive := []struct {
		key string
		val int
	}{
		{"chunking.tokens_per_page", c.Chunking.TokensPerPage},
		{"chunking.max_tokens_per_chunk", c.Chunking.MaxTokensPerChunk},
		{"processing.max_workers", c.Processing.MaxWorkers},
	}
	for _, p := range positive {
		if p.val <= 0 {
			return fmt.Errorf("%s: must be positive, got %d", p.key, p.val)
		}
	}
	if c.Chunking.MinChunkPages < 0 {
		return fmt.Errorf("chunking.min_chunk_pages: must not be negative, got %d", c.Chunking.MinChunkPages)
	}
	if c.Processing.MaxRetries < 0 {
		return fmt.Errorf("processing.max_retries: must not be negative, got %d", c.Processing.MaxRetries)
	}

	for key, path := range map[string]string{
		"processing.schema_file":        c.Processing.SchemaFile,
		"processing.system_prompt_file": c.Processing.SystemPromptFile,
	} {
		if path == "" {
			continue
		}
		if _, err := os.Stat(path); err != nil {
			return fmt.Errorf("%s: %w", key, err)
		}
	}
	return nil
}
