package config

import (
	"errors"
	"fmt"
	"os"
	"regexp"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/spf13/viper"
	"gopkg.in/yaml.v2"

	"github.com/jackzampolin/speclog/internal/providers"
)

// EnvPrefix prefixes environment overrides, e.g. SPECLOG_PROCESSING_MAX_WORKERS.
const EnvPrefix = "SPECLOG"

// Manager handles loading and hot-reloading configuration.
type Manager struct {
	mu        sync.RWMutex
	v         *viper.Viper
	config    *Config
	callbacks []func(*Config)
}

// NewManager creates a new config manager and loads initial config. When
// cfgFile is empty, config.yaml is looked up in the working directory and
// then in searchDirs.
func NewManager(cfgFile string, searchDirs ...string) (*Manager, error) {
	cm := &Manager{
		v:         viper.New(),
		callbacks: make([]func(*Config), 0),
	}

	if err := cm.initViper(cfgFile, searchDirs); err != nil {
		return nil, err
	}

	cfg, err := cm.load()
	if err != nil {
		return nil, err
	}
	cm.config = cfg

	return cm, nil
}

// initViper sets up viper with defaults, env overrides and config file.
func (cm *Manager) initViper(cfgFile string, searchDirs []string) error {
	v := cm.v
	setDefaults(v, DefaultConfig())

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if cfgFile != "" {
		v.SetConfigFile(cfgFile)
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		for _, dir := range searchDirs {
			v.AddConfigPath(dir)
		}
	}

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return fmt.Errorf("error reading config file: %w", err)
		}
	}

	return nil
}

// setDefaults registers leaf keys so env overrides apply to nested values.
func setDefaults(v *viper.Viper, d *Config) {
	v.SetDefault("llm_providers", d.LLMProviders)
	v.SetDefault("defaults.llm_provider", d.Defaults.LLMProvider)

	v.SetDefault("chunking.tokens_per_page", d.Chunking.TokensPerPage)
	v.SetDefault("chunking.max_tokens_per_chunk", d.Chunking.MaxTokensPerChunk)
	v.SetDefault("chunking.min_chunk_pages", d.Chunking.MinChunkPages)

	v.SetDefault("processing.max_workers", d.Processing.MaxWorkers)
	v.SetDefault("processing.max_retries", d.Processing.MaxRetries)
	v.SetDefault("processing.schema_file", d.Processing.SchemaFile)
	v.SetDefault("processing.system_prompt_file", d.Processing.SystemPromptFile)
	v.SetDefault("processing.save_raw_responses", d.Processing.SaveRawResponses)
	v.SetDefault("processing.enable_validation", d.Processing.EnableValidation)
	v.SetDefault("processing.exclude_headers_footers", d.Processing.ExcludeHeadersFooters)
	v.SetDefault("processing.cost_alert_threshold", d.Processing.CostAlertThreshold)
	v.SetDefault("processing.run_cost_limit", d.Processing.RunCostLimit)
	v.SetDefault("processing.keep_chunks", d.Processing.KeepChunks)

	v.SetDefault("output.dir", d.Output.Dir)
	v.SetDefault("output.json_backup", d.Output.JSONBackup)
	v.SetDefault("output.timestamp_files", d.Output.TimestampFiles)

	v.SetDefault("watch.inbox", d.Watch.Inbox)
	v.SetDefault("watch.debounce_ms", d.Watch.DebounceMS)
}

// load parses the current viper state into a Config struct.
func (cm *Manager) load() (*Config, error) {
	var cfg Config
	if err := cm.v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}
	return &cfg, nil
}

// Get returns the current configuration (thread-safe).
func (cm *Manager) Get() *Config {
	cm.mu.RLock()
	defer cm.mu.RUnlock()
	return cm.config
}

// ConfigFile returns the path of the loaded config file, or "" if none.
func (cm *Manager) ConfigFile() string {
	return cm.v.ConfigFileUsed()
}

// OnChange registers a callback for config changes.
func (cm *Manager) OnChange(fn func(*Config)) {
	cm.mu.Lock()
	defer cm.mu.Unlock()
	cm.callbacks = append(cm.callbacks, fn)
}

// WatchConfig enables hot-reloading of configuration.
func (cm *Manager) WatchConfig() {
	cm.v.OnConfigChange(func(e fsnotify.Event) {
		cfg, err := cm.load()
		if err != nil {
			return
		}

		cm.mu.Lock()
		cm.config = cfg
		callbacks := make([]func(*Config), len(cm.callbacks))
		copy(callbacks, cm.callbacks)
		cm.mu.Unlock()

		for _, fn := range callbacks {
			fn(cfg)
		}
	})
	cm.v.WatchConfig()
}

var envRef = regexp.MustCompile(`\$\{([^}]+)\}`)

// ResolveEnvVars expands ${ENV_VAR} references in a string.
func ResolveEnvVars(value string) string {
	if value == "" {
		return value
	}
	return envRef.ReplaceAllStringFunc(value, func(match string) string {
		return os.Getenv(match[2 : len(match)-1])
	})
}

// ToProviderRegistryConfig converts the config to a format suitable for
// providers.Registry, resolving ${ENV_VAR} references in API keys.
func (c *Config) ToProviderRegistryConfig() providers.RegistryConfig {
	cfg := providers.RegistryConfig{
		LLMProviders: make(map[string]providers.LLMProviderConfig),
	}

	for name, llm := range c.LLMProviders {
		cfg.LLMProviders[name] = providers.LLMProviderConfig{
			Type:       llm.Type,
			Model:      llm.Model,
			APIKey:     ResolveEnvVars(llm.APIKey),
			BaseURL:    llm.BaseURL,
			RateLimit:  llm.RateLimit,
			MaxRetries: llm.MaxRetries,
			Timeout:    time.Duration(llm.TimeoutSeconds) * time.Second,
			Pricing: providers.Pricing{
				InputPerMillion:  llm.InputCostPerMillion,
				OutputPerMillion: llm.OutputCostPerMillion,
			},
			Enabled: llm.Enabled,
		}
	}

	return cfg
}

// WriteDefault writes the default configuration to the specified path.
func WriteDefault(path string) error {
	cfg := DefaultConfig()
	data, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	header := []byte(`# speclog configuration
# API keys use ${ENV_VAR} syntax to reference environment variables
# Set this in your shell or a .env file: OPENROUTER_API_KEY=xxx
# Any key can be overridden with SPECLOG_<SECTION>_<KEY>, e.g. SPECLOG_PROCESSING_MAX_WORKERS=8

`)
	return os.WriteFile(path, append(header, data...), 0o644)
}
