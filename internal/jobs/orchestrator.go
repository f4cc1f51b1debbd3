// Package jobs runs chunk extractions concurrently and recovers failed chunks
// with sequential retry rounds.
package jobs

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"time"

	"github.com/jackzampolin/speclog/internal/chunk"
)

// DefaultMaxRetries is the retry round budget used when none is configured.
const DefaultMaxRetries = 3

// Config configures an Orchestrator.
type Config struct {
	MaxWorkers int
	// MaxRetries is the number of retry rounds after round 0. Negative
	// values are treated as zero.
	MaxRetries int
	RPS        float64
	Logger     *slog.Logger
}

// RoundStats summarizes one dispatch round.
type RoundStats struct {
	Round      int           `json:"round" yaml:"round"`
	Dispatched int           `json:"dispatched" yaml:"dispatched"`
	Succeeded  int           `json:"succeeded" yaml:"succeeded"`
	Failed     int           `json:"failed" yaml:"failed"`
	Duration   time.Duration `json:"-" yaml:"-"`
	Seconds    float64       `json:"duration_seconds" yaml:"duration_seconds"`
}

// Outcome is what a run hands to the merger and the caller.
type Outcome struct {
	// Successful holds one result per succeeded chunk, sorted by chunk id.
	Successful []chunk.Result
	// FailedChunkIDs lists exhausted chunks in ascending order.
	FailedChunkIDs []int
	// LastErrors maps each exhausted chunk to its final error.
	LastErrors   map[int]error
	NumChunks    int
	TotalRetries int
	TotalTime    time.Duration
	Rounds       []RoundStats
	PeakInFlight int
}

// AllFailed reports whether chunks were planned and none succeeded.
func (o *Outcome) AllFailed() bool {
	return o.NumChunks > 0 && len(o.Successful) == 0
}

// Orchestrator drives a chunk plan through a bounded pool.
type Orchestrator struct {
	maxWorkers int
	maxRetries int
	rps        float64
	logger     *slog.Logger
}

// NewOrchestrator creates an orchestrator from cfg, applying defaults.
func NewOrchestrator(cfg Config) *Orchestrator {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	workers := cfg.MaxWorkers
	if workers <= 0 {
		workers = DefaultMaxWorkers
	}
	retries := cfg.MaxRetries
	if retries < 0 {
		retries = 0
	}
	return &Orchestrator{
		maxWorkers: workers,
		maxRetries: retries,
		rps:        cfg.RPS,
		logger:     logger.With("component", "orchestrator"),
	}
}

// Run extracts every descriptor. Round 0 dispatches all of them; each later
// round re-dispatches only the chunks still failing, until none fail or the
// retry budget is spent. Exhausted chunks are reported in the outcome, not
// returned as an error. Cancelling ctx prevents further rounds from starting.
func (o *Orchestrator) Run(ctx context.Context, descs []chunk.Descriptor, ex chunk.Extractor) (*Outcome, error) {
	if ex == nil {
		return nil, fmt.Errorf("extractor is required")
	}
	seen := make(map[int]struct{}, len(descs))
	for _, d := range descs {
		if _, dup := seen[d.ID]; dup {
			return nil, fmt.Errorf("%w: duplicate chunk id %d", chunk.ErrInvalidPlan, d.ID)
		}
		seen[d.ID] = struct{}{}
	}

	start := time.Now()
	out := &Outcome{
		NumChunks:  len(descs),
		LastErrors: make(map[int]error),
	}
	if len(descs) == 0 {
		return out, nil
	}

	pool, err := NewPool(PoolConfig{
		Name:     "chunks",
		Logger:   o.logger,
		Workers:  o.maxWorkers,
		RPS:      o.rps,
		Capacity: len(descs),
	}, ex)
	if err != nil {
		return nil, err
	}
	pool.Start(ctx)
	defer pool.Close()

	o.logger.Info("starting extraction",
		"chunks", len(descs),
		"workers", o.maxWorkers,
		"max_retries", o.maxRetries)

	pending := descs
	for round := 0; round <= o.maxRetries && len(pending) > 0; round++ {
		if round > 0 {
			if err := ctx.Err(); err != nil {
				o.logger.Warn("run cancelled, skipping remaining retry rounds",
					"round", round,
					"failed", len(pending),
					"error", err)
				break
			}
			out.TotalRetries += len(pending)
			o.logger.Info("retrying failed chunks", "round", round, "chunks", len(pending))
		}

		succeeded, failed, stats := o.runRound(pool, pending, round)
		out.Rounds = append(out.Rounds, stats)
		out.Successful = append(out.Successful, succeeded...)
		for _, r := range failed {
			out.LastErrors[r.ChunkID] = r.Err
		}
		for _, r := range succeeded {
			delete(out.LastErrors, r.ChunkID)
		}

		pending = failedDescriptors(pending, failed)
		o.logger.Info("round complete",
			"round", round,
			"succeeded", stats.Succeeded,
			"failed", stats.Failed,
			"duration", stats.Duration)
	}

	for _, d := range pending {
		out.FailedChunkIDs = append(out.FailedChunkIDs, d.ID)
	}
	sort.Ints(out.FailedChunkIDs)
	sort.SliceStable(out.Successful, func(i, j int) bool {
		return out.Successful[i].ChunkID < out.Successful[j].ChunkID
	})
	out.TotalTime = time.Since(start)
	out.PeakInFlight = pool.Status().PeakInFlight

	if len(out.FailedChunkIDs) > 0 {
		o.logger.Warn("chunks exhausted retries",
			"failed_chunk_ids", out.FailedChunkIDs,
			"successful", len(out.Successful))
	}
	o.logger.Info("extraction finished",
		"successful", len(out.Successful),
		"failed", len(out.FailedChunkIDs),
		"total_retries", out.TotalRetries,
		"duration", out.TotalTime)

	return out, nil
}

// runRound dispatches every descriptor and waits for all of their results.
func (o *Orchestrator) runRound(pool *Pool, descs []chunk.Descriptor, round int) (succeeded, failed []chunk.Result, stats RoundStats) {
	start := time.Now()
	for _, d := range descs {
		if err := pool.Submit(d, round); err != nil {
			failed = append(failed, chunk.Result{
				ChunkID:    d.ID,
				RetryRound: round,
				Err:        &chunk.ExtractionError{ChunkID: d.ID, Round: round, Reason: "submit failed", Err: err},
			})
		}
	}

	for received := len(failed); received < len(descs); received++ {
		r := <-pool.Results()
		if r.Succeeded() {
			succeeded = append(succeeded, r)
		} else {
			failed = append(failed, r)
		}
	}

	stats = RoundStats{
		Round:      round,
		Dispatched: len(descs),
		Succeeded:  len(succeeded),
		Failed:     len(failed),
		Duration:   time.Since(start),
	}
	stats.Seconds = stats.Duration.Seconds()
	return succeeded, failed, stats
}

// failedDescriptors returns the descriptors whose ids appear in failed,
// preserving plan order.
func failedDescriptors(descs []chunk.Descriptor, failed []chunk.Result) []chunk.Descriptor {
	ids := make(map[int]struct{}, len(failed))
	for _, r := range failed {
		ids[r.ChunkID] = struct{}{}
	}
	next := make([]chunk.Descriptor, 0, len(failed))
	for _, d := range descs {
		if _, ok := ids[d.ID]; ok {
			next = append(next, d)
		}
	}
	return next
}
