package main

import (
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/jackzampolin/speclog/internal/config"
)

type validateResult struct {
	ConfigFile string   `json:"config_file" yaml:"config_file"`
	Provider   string   `json:"provider" yaml:"provider"`
	Model      string   `json:"model" yaml:"model"`
	APIKeySet  bool     `json:"api_key_set" yaml:"api_key_set"`
	Enabled    []string `json:"enabled_providers" yaml:"enabled_providers"`
	Valid      bool     `json:"valid" yaml:"valid"`
	Error      string   `json:"error,omitempty" yaml:"error,omitempty"`
}

func (r validateResult) WriteText(w io.Writer) error {
	src := r.ConfigFile
	if src == "" {
		src = "(defaults)"
	}
	fmt.Fprintf(w, "Config:   %s\n", src)
	fmt.Fprintf(w, "Provider: %s (%s)\n", r.Provider, r.Model)
	fmt.Fprintf(w, "API key:  %t\n", r.APIKeySet)
	if r.Valid {
		_, err := fmt.Fprintln(w, "Configuration is valid")
		return err
	}
	_, err := fmt.Fprintf(w, "Configuration is invalid: %s\n", r.Error)
	return err
}

var validateCmd = &cobra.Command{
	Use:   "validate",
	Short: "Check configuration and API key presence",
	RunE: func(cmd *cobra.Command, args []string) error {
		_, mgr, err := loadEnv()
		if err != nil {
			return err
		}
		cfg := mgr.Get()

		res := validateResult{
			ConfigFile: mgr.ConfigFile(),
			Provider:   cfg.Defaults.LLMProvider,
			Enabled:    cfg.EnabledLLMProviders(),
		}
		if llm, ok := cfg.GetLLMProvider(cfg.Defaults.LLMProvider); ok {
			res.Model = llm.Model
			res.APIKeySet = config.ResolveEnvVars(llm.APIKey) != ""
		}
		verr := cfg.Validate()
		res.Valid = verr == nil
		if verr != nil {
			res.Error = verr.Error()
		}

		if err := printer.Print(res); err != nil {
			return err
		}
		return verr
	},
}
