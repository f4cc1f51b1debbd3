package jobs

import (
	"context"
	"fmt"
	"log/slog"
	"runtime/debug"
	"sync"
	"sync/atomic"
	"time"

	"github.com/jackzampolin/speclog/internal/chunk"
	"github.com/jackzampolin/speclog/internal/providers"
)

// DefaultMaxWorkers is the pool size used when none is configured.
const DefaultMaxWorkers = 12

// workUnit is one attempt at one chunk.
type workUnit struct {
	desc  chunk.Descriptor
	round int
}

// Pool runs chunk extractions on a fixed set of workers.
// Uses the dispatcher pattern: a single dispatcher goroutine owns the
// optional rate limiter and hands units to N workers that execute without
// rate limit awareness. Every submitted unit produces exactly one result.
type Pool struct {
	name      string
	extractor chunk.Extractor

	rateLimiter *providers.RateLimiter
	logger      *slog.Logger

	// queue receives submitted units; work carries them to workers.
	queue   chan workUnit
	work    chan workUnit
	results chan chunk.Result

	workerCount int
	inFlight    atomic.Int32
	peak        atomic.Int32

	wg      sync.WaitGroup
	started atomic.Bool
	closed  atomic.Bool
}

// PoolConfig configures a new Pool.
type PoolConfig struct {
	Name   string
	Logger *slog.Logger

	// Workers bounds simultaneous extractor calls. 0 uses DefaultMaxWorkers.
	Workers int

	// RPS limits dispatch rate. 0 disables rate limiting.
	RPS float64

	// Capacity is the largest number of units that will be outstanding at
	// once. Submit never blocks while within it.
	Capacity int
}

// PoolStatus is a snapshot of pool activity.
type PoolStatus struct {
	Name         string                       `json:"name"`
	Workers      int                          `json:"workers"`
	InFlight     int                          `json:"in_flight"`
	PeakInFlight int                          `json:"peak_in_flight"`
	RateLimiter  *providers.RateLimiterStatus `json:"rate_limiter,omitempty"`
}

// NewPool creates a pool that runs ex for every submitted descriptor.
func NewPool(cfg PoolConfig, ex chunk.Extractor) (*Pool, error) {
	if ex == nil {
		return nil, fmt.Errorf("extractor is required")
	}

	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	workers := cfg.Workers
	if workers <= 0 {
		workers = DefaultMaxWorkers
	}
	capacity := cfg.Capacity
	if capacity < workers {
		capacity = workers
	}
	name := cfg.Name
	if name == "" {
		name = "chunks"
	}

	p := &Pool{
		name:        name,
		extractor:   ex,
		queue:       make(chan workUnit, capacity),
		work:        make(chan workUnit),
		results:     make(chan chunk.Result, capacity),
		workerCount: workers,
	}
	if cfg.RPS > 0 {
		p.rateLimiter = providers.NewRateLimiter(cfg.RPS)
	}
	p.logger = logger.With("pool", name, "workers", workers, "rps", cfg.RPS)
	return p, nil
}

// Start launches the dispatcher and workers. The pool runs until Close.
func (p *Pool) Start(ctx context.Context) {
	if !p.started.CompareAndSwap(false, true) {
		return
	}
	p.logger.Debug("chunk pool started")

	p.wg.Add(1)
	go p.dispatcher(ctx)

	for i := 0; i < p.workerCount; i++ {
		p.wg.Add(1)
		go p.worker(ctx, i)
	}
}

// Close stops accepting work and waits for outstanding units to finish.
func (p *Pool) Close() {
	if !p.closed.CompareAndSwap(false, true) {
		return
	}
	close(p.queue)
	p.wg.Wait()
	p.logger.Debug("chunk pool stopped")
}

// Submit queues one attempt at d.
func (p *Pool) Submit(d chunk.Descriptor, round int) error {
	if !p.started.Load() {
		return fmt.Errorf("pool %s not started", p.name)
	}
	if p.closed.Load() {
		return fmt.Errorf("pool %s closed", p.name)
	}
	p.queue <- workUnit{desc: d, round: round}
	return nil
}

// Results returns the channel every submitted unit reports on.
func (p *Pool) Results() <-chan chunk.Result {
	return p.results
}

// Status returns current pool status.
func (p *Pool) Status() PoolStatus {
	status := PoolStatus{
		Name:         p.name,
		Workers:      p.workerCount,
		InFlight:     int(p.inFlight.Load()),
		PeakInFlight: int(p.peak.Load()),
	}
	if p.rateLimiter != nil {
		rl := p.rateLimiter.Status()
		status.RateLimiter = &rl
	}
	return status
}

// dispatcher owns the rate limiter. Pulls from the queue, waits for a token,
// sends to the work channel.
func (p *Pool) dispatcher(ctx context.Context) {
	defer p.wg.Done()
	defer close(p.work)

	for unit := range p.queue {
		if p.rateLimiter != nil {
			if err := p.rateLimiter.Wait(ctx); err != nil {
				p.results <- chunk.Result{
					ChunkID:    unit.desc.ID,
					RetryRound: unit.round,
					Err: &chunk.ExtractionError{
						ChunkID: unit.desc.ID,
						Round:   unit.round,
						Reason:  "rate limit wait cancelled",
						Err:     err,
					},
				}
				continue
			}
		}
		p.work <- unit
	}
}

// worker processes units until the work channel closes.
func (p *Pool) worker(ctx context.Context, id int) {
	defer p.wg.Done()

	for unit := range p.work {
		n := p.inFlight.Add(1)
		for {
			peak := p.peak.Load()
			if n <= peak || p.peak.CompareAndSwap(peak, n) {
				break
			}
		}

		result := p.process(ctx, unit)
		p.inFlight.Add(-1)

		if result.Err != nil {
			p.logger.Warn("chunk attempt failed",
				"chunk_id", unit.desc.ID,
				"round", unit.round,
				"worker", id,
				"error", result.Err)
		} else {
			p.logger.Debug("chunk attempt succeeded",
				"chunk_id", unit.desc.ID,
				"round", unit.round,
				"worker", id,
				"entries", len(result.Entries),
				"duration", result.ProcessingTime)
		}
		p.results <- result
	}
}

// process runs the extractor for one unit and converts every failure,
// including a panic, into a failed Result.
func (p *Pool) process(ctx context.Context, unit workUnit) (result chunk.Result) {
	start := time.Now()
	result = chunk.Result{ChunkID: unit.desc.ID, RetryRound: unit.round}

	defer func() {
		if r := recover(); r != nil {
			p.logger.Error("extractor panic",
				"chunk_id", unit.desc.ID,
				"panic", r,
				"stack", string(debug.Stack()))
			result.Entries = nil
			result.Usage = chunk.Usage{}
			result.Err = &chunk.ExtractionError{
				ChunkID: unit.desc.ID,
				Round:   unit.round,
				Reason:  fmt.Sprintf("extractor panic: %v", r),
			}
		}
		result.ProcessingTime = time.Since(start)
	}()

	ext, err := p.extractor.Extract(ctx, unit.desc)
	switch {
	case err != nil:
		result.Err = &chunk.ExtractionError{
			ChunkID: unit.desc.ID,
			Round:   unit.round,
			Reason:  "extraction failed",
			Err:     err,
		}
	case ext == nil:
		result.Err = &chunk.ExtractionError{
			ChunkID: unit.desc.ID,
			Round:   unit.round,
			Reason:  "extractor returned no result",
		}
	default:
		result.Entries = ext.Entries
		result.Usage = ext.Usage
		result.Model = ext.Model
	}
	return result
}
