package ratelimit

import (
	"context"
	"testing"
	"time"
)

func TestWaitAcquiresImmediatelyWhenTokensAvailable(t *testing.T) {
	l := NewLimiter(2, time.Hour)
	ctx := context.Background()

	if err := l.Wait(ctx); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if l.Stats().AvailableTokens != 1 {
		t.Fatalf("expected 1 token remaining, got %d", l.Stats().AvailableTokens)
	}
}

func TestWaitBlocksUntilRefill(t *testing.T) {
	l := NewLimiter(1, 20*time.Millisecond)
	ctx := context.Background()

	if err := l.Wait(ctx); err != nil {
		t.Fatalf("unexpected error on first acquire: %v", err)
	}

	start := time.Now()
	if err := l.Wait(ctx); err != nil {
		t.Fatalf("unexpected error on second acquire: %v", err)
	}
	if time.Since(start) < 15*time.Millisecond {
		t.Fatal("expected the second acquire to block until a refill occurred")
	}
}

func TestWaitRespectsContextCancellation(t *testing.T) {
	l := NewLimiter(1, time.Hour)
	_ = l.Wait(context.Background())

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	if err := l.Wait(ctx); err == nil {
		t.Fatal("expected a context deadline error while the bucket is empty")
	}
}

func TestReleaseReturnsTokenUpToMax(t *testing.T) {
	l := NewLimiter(1, time.Hour)
	_ = l.Wait(context.Background())
	if l.Stats().AvailableTokens != 0 {
		t.Fatalf("expected 0 tokens after acquiring the only one, got %d", l.Stats().AvailableTokens)
	}

	l.Release()
	if l.Stats().AvailableTokens != 1 {
		t.Fatalf("expected 1 token after release, got %d", l.Stats().AvailableTokens)
	}

	l.Release()
	if l.Stats().AvailableTokens != 1 {
		t.Fatalf("expected release to never exceed maxTokens, got %d", l.Stats().AvailableTokens)
	}
}

func TestNewLimiterAppliesDefaults(t *testing.T) {
	l := NewLimiter(0, 0)
	if l.maxTokens != 2 {
		t.Fatalf("expected default maxTokens=2, got %d", l.maxTokens)
	}
	if l.refillRate != 30*time.Second {
		t.Fatalf("expected default refillRate=30s, got %v", l.refillRate)
	}
}
