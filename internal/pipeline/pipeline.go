// Package pipeline runs a specification PDF through planning, splitting,
// concurrent extraction and merging.
package pipeline

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/jackzampolin/speclog/internal/chunk"
	"github.com/jackzampolin/speclog/internal/extract"
	"github.com/jackzampolin/speclog/internal/home"
	"github.com/jackzampolin/speclog/internal/jobs"
	"github.com/jackzampolin/speclog/internal/merge"
	"github.com/jackzampolin/speclog/internal/providers"
)

// PageCounter returns the number of pages in a PDF.
type PageCounter func(path string) (int, error)

// Splitter writes one chunk's page range to its own file.
type Splitter interface {
	Split(ctx context.Context, src string, d chunk.Descriptor) (string, error)
}

// Settings are the run parameters taken from configuration.
type Settings struct {
	Plan       chunk.PlanConfig
	MaxWorkers int
	MaxRetries int
	RPS        float64

	Model   string
	Pricing providers.Pricing

	KeepChunks         bool
	Validate           bool
	CostAlertThreshold float64
	RunCostLimit       float64
}

// Config wires a Pipeline to its collaborators.
type Config struct {
	Settings Settings
	Home     *home.Dir

	Pages PageCounter
	// NewSplitter returns a splitter writing into dir.
	NewSplitter func(dir string) Splitter
	// NewExtractor returns the extractor for a run. Descriptors passed to it
	// carry the chunk file path in SourceRef.
	NewExtractor func(runID string) (chunk.Extractor, error)

	Logger *slog.Logger
}

// Pipeline processes one document per Run call. It is safe to reuse.
type Pipeline struct {
	settings     Settings
	home         *home.Dir
	pages        PageCounter
	newSplitter  func(dir string) Splitter
	newExtractor func(runID string) (chunk.Extractor, error)
	logger       *slog.Logger
}

// New creates a Pipeline.
func New(cfg Config) (*Pipeline, error) {
	if cfg.Home == nil {
		return nil, fmt.Errorf("home directory is required")
	}
	if cfg.Pages == nil || cfg.NewSplitter == nil || cfg.NewExtractor == nil {
		return nil, fmt.Errorf("page counter, splitter and extractor are required")
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Pipeline{
		settings:     cfg.Settings,
		home:         cfg.Home,
		pages:        cfg.Pages,
		newSplitter:  cfg.NewSplitter,
		newExtractor: cfg.NewExtractor,
		logger:       logger.With("component", "pipeline"),
	}, nil
}

// Result is the output of a run: the merged bullets plus run metadata.
type Result struct {
	Bullets  []chunk.Entry `json:"bullets" yaml:"bullets"`
	Metadata Metadata      `json:"metadata" yaml:"metadata"`
}

// Metadata describes a run.
type Metadata struct {
	RunID     string    `json:"run_id" yaml:"run_id"`
	Source    string    `json:"source" yaml:"source"`
	Model     string    `json:"model" yaml:"model"`
	Timestamp time.Time `json:"timestamp" yaml:"timestamp"`

	TotalPages       int   `json:"total_pages" yaml:"total_pages"`
	NumChunks        int   `json:"num_chunks" yaml:"num_chunks"`
	SuccessfulChunks int   `json:"successful_chunks" yaml:"successful_chunks"`
	FailedChunks     int   `json:"failed_chunks" yaml:"failed_chunks"`
	FailedChunkIDs   []int `json:"failed_chunk_ids" yaml:"failed_chunk_ids"`
	TotalRetries     int   `json:"total_retries" yaml:"total_retries"`

	ProcessingTimeSeconds float64     `json:"processing_time_seconds" yaml:"processing_time_seconds"`
	WallTimeSeconds       float64     `json:"wall_time_seconds" yaml:"wall_time_seconds"`
	UsageStats            chunk.Usage `json:"usage_stats" yaml:"usage_stats"`

	EntriesBeforeDedup int `json:"entries_before_dedup" yaml:"entries_before_dedup"`
	EntriesAfterDedup  int `json:"entries_after_dedup" yaml:"entries_after_dedup"`
	DuplicatesRemoved  int `json:"duplicates_removed" yaml:"duplicates_removed"`
	ValidationWarnings int `json:"validation_warnings" yaml:"validation_warnings"`

	Rounds []jobs.RoundStats `json:"rounds" yaml:"rounds"`
}

// Run processes the PDF at src. Chunks that exhaust their retries are listed
// in the metadata; if every chunk fails, Run returns a chunk.TotalFailureError.
func (p *Pipeline) Run(ctx context.Context, src string) (*Result, error) {
	start := time.Now()
	runID := uuid.New().String()
	logger := p.logger.With("run_id", runID)

	total, err := p.pages(src)
	if err != nil {
		return nil, err
	}
	plan, err := chunk.Plan(total, p.settings.Plan, src)
	if err != nil {
		return nil, err
	}
	logger.Info("planned chunks",
		"source", src,
		"pages", total,
		"estimated_tokens", p.settings.Plan.EstimatedTokens(total),
		"chunks", len(plan))

	if len(plan) > 1 {
		chunksDir := p.home.ChunksDir(runID)
		if !p.settings.KeepChunks {
			defer p.cleanup(logger, chunksDir)
		}
		if err := p.split(ctx, src, plan, chunksDir); err != nil {
			return nil, err
		}
	}

	ex, err := p.newExtractor(runID)
	if err != nil {
		return nil, err
	}

	orch := jobs.NewOrchestrator(jobs.Config{
		MaxWorkers: p.settings.MaxWorkers,
		MaxRetries: p.settings.MaxRetries,
		RPS:        p.settings.RPS,
		Logger:     logger,
	})
	outcome, err := orch.Run(ctx, plan, ex)
	if err != nil {
		return nil, err
	}
	if outcome.AllFailed() {
		return nil, &chunk.TotalFailureError{
			FailedChunkIDs: outcome.FailedChunkIDs,
			LastErrors:     outcome.LastErrors,
		}
	}

	agg := merge.Merge(outcome.Successful)
	agg.FailedChunkIDs = outcome.FailedChunkIDs
	agg.TotalRetries = outcome.TotalRetries

	meta := Metadata{
		RunID:                 runID,
		Source:                src,
		Model:                 p.model(outcome),
		Timestamp:             start,
		TotalPages:            total,
		NumChunks:             outcome.NumChunks,
		SuccessfulChunks:      len(agg.SuccessfulChunkIDs),
		FailedChunks:          len(agg.FailedChunkIDs),
		FailedChunkIDs:        agg.FailedChunkIDs,
		TotalRetries:          agg.TotalRetries,
		ProcessingTimeSeconds: agg.ProcessingTime.Seconds(),
		UsageStats:            agg.Usage,
		EntriesBeforeDedup:    agg.EntriesBeforeDedup,
		EntriesAfterDedup:     agg.EntriesAfterDedup,
		DuplicatesRemoved:     agg.DuplicatesRemoved,
		Rounds:                outcome.Rounds,
	}
	if meta.FailedChunkIDs == nil {
		meta.FailedChunkIDs = []int{}
	}

	if p.settings.Validate {
		report := extract.Validate(agg.Entries)
		meta.ValidationWarnings = report.Warnings()
		if meta.ValidationWarnings > 0 {
			logger.Warn("validation found incomplete bullets",
				"checked", report.Checked,
				"missing_section", report.MissingSection,
				"missing_title", report.MissingTitle,
				"missing_text", report.MissingText)
		}
	}
	p.checkCost(logger, agg.Usage.CostUSD)

	meta.WallTimeSeconds = time.Since(start).Seconds()
	if agg.Partial() {
		logger.Warn("run completed with failed chunks",
			"failed_chunk_ids", agg.FailedChunkIDs,
			"entries", len(agg.Entries))
	} else {
		logger.Info("run completed",
			"entries", len(agg.Entries),
			"duplicates_removed", agg.DuplicatesRemoved,
			"cost_usd", agg.Usage.CostUSD,
			"wall_time", time.Since(start))
	}

	return &Result{Bullets: agg.Entries, Metadata: meta}, nil
}

// split writes every chunk to chunksDir and points its SourceRef at the file.
func (p *Pipeline) split(ctx context.Context, src string, plan []chunk.Descriptor, chunksDir string) error {
	splitter := p.newSplitter(chunksDir)

	g, gctx := errgroup.WithContext(ctx)
	limit := p.settings.MaxWorkers
	if limit <= 0 {
		limit = jobs.DefaultMaxWorkers
	}
	g.SetLimit(limit)

	for i := range plan {
		g.Go(func() error {
			path, err := splitter.Split(gctx, src, plan[i])
			if err != nil {
				return fmt.Errorf("split chunk %d: %w", plan[i].ID, err)
			}
			plan[i].SourceRef = path
			return nil
		})
	}
	return g.Wait()
}

func (p *Pipeline) cleanup(logger *slog.Logger, dir string) {
	if err := os.RemoveAll(dir); err != nil {
		logger.Warn("failed to remove chunk files", "dir", dir, "error", err)
	}
}

func (p *Pipeline) model(outcome *jobs.Outcome) string {
	for _, r := range outcome.Successful {
		if r.Model != "" {
			return r.Model
		}
	}
	return p.settings.Model
}

func (p *Pipeline) checkCost(logger *slog.Logger, cost float64) {
	s := p.settings
	switch {
	case s.RunCostLimit > 0 && cost > s.RunCostLimit:
		logger.Error("run cost exceeded limit",
			"cost_usd", cost,
			"limit_usd", s.RunCostLimit)
	case s.CostAlertThreshold > 0 && cost > s.CostAlertThreshold:
		logger.Warn("run cost above alert threshold",
			"cost_usd", cost,
			"threshold_usd", s.CostAlertThreshold)
	}
}
