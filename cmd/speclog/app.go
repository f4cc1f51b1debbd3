package main

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/jackzampolin/speclog/internal/chunk"
	"github.com/jackzampolin/speclog/internal/config"
	"github.com/jackzampolin/speclog/internal/extract"
	"github.com/jackzampolin/speclog/internal/home"
	"github.com/jackzampolin/speclog/internal/pdf"
	"github.com/jackzampolin/speclog/internal/pipeline"
	"github.com/jackzampolin/speclog/internal/providers"
)

// settingsFromConfig maps configuration onto pipeline settings.
func settingsFromConfig(cfg *config.Config) (pipeline.Settings, error) {
	_, llm, err := cfg.DefaultLLM()
	if err != nil {
		return pipeline.Settings{}, err
	}
	return pipeline.Settings{
		Plan: chunk.PlanConfig{
			TokensPerPage:     cfg.Chunking.TokensPerPage,
			MaxTokensPerChunk: cfg.Chunking.MaxTokensPerChunk,
			MinChunkPages:     cfg.Chunking.MinChunkPages,
		},
		MaxWorkers: cfg.Processing.MaxWorkers,
		MaxRetries: cfg.Processing.MaxRetries,
		RPS:        llm.RateLimit,
		Model:      llm.Model,
		Pricing: providers.Pricing{
			InputPerMillion:  llm.InputCostPerMillion,
			OutputPerMillion: llm.OutputCostPerMillion,
		},
		KeepChunks:         cfg.Processing.KeepChunks,
		Validate:           cfg.Processing.EnableValidation,
		CostAlertThreshold: cfg.Processing.CostAlertThreshold,
		RunCostLimit:       cfg.Processing.RunCostLimit,
	}, nil
}

// newPipeline wires a pipeline to PDF tooling and the default LLM provider
// in reg. A nil reg yields a pipeline that can only Preview.
func newPipeline(cfg *config.Config, h *home.Dir, reg *providers.Registry, logger *slog.Logger) (*pipeline.Pipeline, error) {
	settings, err := settingsFromConfig(cfg)
	if err != nil {
		return nil, err
	}

	newExtractor := func(runID string) (chunk.Extractor, error) {
		return nil, fmt.Errorf("no LLM provider configured")
	}
	if reg != nil {
		name, llm, _ := cfg.DefaultLLM()
		client, err := reg.GetLLM(name)
		if err != nil {
			return nil, fmt.Errorf("%w (is the provider enabled and its API key set?)", err)
		}
		settings.RPS = client.RequestsPerSecond()

		schema, err := extract.LoadSchema(cfg.Processing.SchemaFile)
		if err != nil {
			return nil, err
		}
		prompt, err := extract.LoadSystemPrompt(cfg.Processing.SystemPromptFile)
		if err != nil {
			return nil, err
		}
		text := pdf.NewTextExtractor(cfg.Processing.ExcludeHeadersFooters, logger)

		newExtractor = func(runID string) (chunk.Extractor, error) {
			responsesDir := ""
			if cfg.Processing.SaveRawResponses {
				responsesDir = h.ResponsesDir(runID)
			}
			return extract.New(extract.Config{
				LLM:          client,
				Text:         text,
				Model:        llm.Model,
				Temperature:  llm.Temperature,
				MaxTokens:    llm.MaxTokens,
				Schema:       schema,
				SystemPrompt: prompt,
				ResponsesDir: responsesDir,
				Logger:       logger,
			})
		}
	}

	return pipeline.New(pipeline.Config{
		Settings: settings,
		Home:     h,
		Pages:    pdf.PageCount,
		NewSplitter: func(dir string) pipeline.Splitter {
			return pdf.NewSplitter(dir, logger)
		},
		NewExtractor: newExtractor,
		Logger:       logger,
	})
}

// outputDir returns the directory results are written to.
func outputDir(flag string, cfg *config.Config, h *home.Dir) string {
	switch {
	case flag != "":
		return flag
	case cfg.Output.Dir != "":
		return cfg.Output.Dir
	default:
		return h.OutputDir()
	}
}

// process runs one document end to end and writes its outputs.
func process(ctx context.Context, p *pipeline.Pipeline, src, dir string, cfg *config.Config) (*pipeline.Summary, error) {
	res, err := p.Run(ctx, src)
	if err != nil {
		return nil, err
	}
	return pipeline.Publish(res, pipeline.PublishOptions{
		Dir:         dir,
		Timestamped: cfg.Output.TimestampFiles,
		JSONBackup:  cfg.Output.JSONBackup,
		Logger:      logger,
	})
}

func withLogger(cfg providers.RegistryConfig) providers.RegistryConfig {
	cfg.Logger = logger
	return cfg
}
