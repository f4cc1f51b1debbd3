package jobs

import (
	"context"
	"testing"

	"github.com/jackzampolin/speclog/internal/chunk"
)

func TestPool_SubmitLifecycle(t *testing.T) {
	ex := chunk.ExtractorFunc(func(ctx context.Context, d chunk.Descriptor) (*chunk.Extraction, error) {
		return &chunk.Extraction{Entries: []chunk.Entry{{ID: "A"}}, Model: "m"}, nil
	})

	pool, err := NewPool(PoolConfig{Workers: 2, Capacity: 4, RPS: 1000}, ex)
	if err != nil {
		t.Fatalf("NewPool() error = %v", err)
	}

	if err := pool.Submit(chunk.Descriptor{ID: 1}, 0); err == nil {
		t.Error("expected error submitting before Start")
	}

	pool.Start(context.Background())
	for i := 1; i <= 4; i++ {
		if err := pool.Submit(chunk.Descriptor{ID: i}, 0); err != nil {
			t.Fatalf("Submit() error = %v", err)
		}
	}

	seen := make(map[int]bool)
	for i := 0; i < 4; i++ {
		r := <-pool.Results()
		if !r.Succeeded() {
			t.Errorf("chunk %d failed: %v", r.ChunkID, r.Err)
		}
		if r.Model != "m" {
			t.Errorf("expected model m, got %s", r.Model)
		}
		seen[r.ChunkID] = true
	}
	if len(seen) != 4 {
		t.Errorf("expected 4 distinct results, got %d", len(seen))
	}

	status := pool.Status()
	if status.Workers != 2 || status.RateLimiter == nil {
		t.Errorf("unexpected status: %+v", status)
	}

	pool.Close()
	if err := pool.Submit(chunk.Descriptor{ID: 5}, 0); err == nil {
		t.Error("expected error submitting after Close")
	}
}

func TestNewPool_RequiresExtractor(t *testing.T) {
	if _, err := NewPool(PoolConfig{}, nil); err == nil {
		t.Error("expected error for nil extractor")
	}
}
