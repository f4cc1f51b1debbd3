package providers

import (
	"context"
	"testing"
	"time"
)

func TestRateLimiter_Burst(t *testing.T) {
	rl := NewRateLimiter(3)
	for i := 0; i < 3; i++ {
		if !rl.TryConsume() {
			t.Fatalf("expected token %d to be available", i+1)
		}
	}
	if rl.TryConsume() {
		t.Error("expected bucket to be empty after burst")
	}
}

func TestRateLimiter_WaitRefills(t *testing.T) {
	rl := NewRateLimiter(50)
	for rl.TryConsume() {
	}

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()

	start := time.Now()
	if err := rl.Wait(ctx); err != nil {
		t.Fatalf("Wait() error = %v", err)
	}
	if time.Since(start) > 500*time.Millisecond {
		t.Errorf("expected refill within 500ms, took %v", time.Since(start))
	}
	if rl.Status().TotalConsumed < 51 {
		t.Errorf("expected at least 51 consumed, got %d", rl.Status().TotalConsumed)
	}
}

func TestRateLimiter_WaitCancelled(t *testing.T) {
	rl := NewRateLimiter(0.01)
	rl.TryConsume()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if err := rl.Wait(ctx); err == nil {
		t.Error("expected error from cancelled context")
	}
}
