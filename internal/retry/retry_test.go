package retry

import (
	"context"
	"errors"
	"testing"
	"time"
)

func TestDoSucceedsOnFirstAttempt(t *testing.T) {
	r := New(Config{MaxRetries: 3, InitialDelay: time.Millisecond, MaxDelay: 10 * time.Millisecond, Multiplier: 2, JitterFraction: 0})
	calls := 0
	err := r.Do(context.Background(), func(ctx context.Context) error {
		calls++
		return nil
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if calls != 1 {
		t.Fatalf("expected exactly 1 call, got %d", calls)
	}
}

func TestDoRetriesRetryableErrorsUntilSuccess(t *testing.T) {
	r := New(Config{MaxRetries: 3, InitialDelay: time.Millisecond, MaxDelay: 10 * time.Millisecond, Multiplier: 2, JitterFraction: 0})
	calls := 0
	err := r.Do(context.Background(), func(ctx context.Context) error {
		calls++
		if calls < 3 {
			return errors.New("server error (500)")
		}
		return nil
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if calls != 3 {
		t.Fatalf("expected 3 calls, got %d", calls)
	}
}

func TestDoStopsImmediatelyOnNonRetryableError(t *testing.T) {
	r := New(Config{MaxRetries: 5, InitialDelay: time.Millisecond, MaxDelay: 10 * time.Millisecond, Multiplier: 2, JitterFraction: 0})
	calls := 0
	nonRetryable := errors.New("invalid argument")
	err := r.Do(context.Background(), func(ctx context.Context) error {
		calls++
		return nonRetryable
	})
	if !errors.Is(err, nonRetryable) {
		t.Fatalf("expected the original non-retryable error, got %v", err)
	}
	if calls != 1 {
		t.Fatalf("expected a single attempt for a non-retryable error, got %d", calls)
	}
}

func TestDoReturnsErrMaxRetriesAfterExhaustingAttempts(t *testing.T) {
	r := New(Config{MaxRetries: 2, InitialDelay: time.Millisecond, MaxDelay: 10 * time.Millisecond, Multiplier: 2, JitterFraction: 0})
	calls := 0
	err := r.Do(context.Background(), func(ctx context.Context) error {
		calls++
		return errors.New("rate limit exceeded")
	})
	if !errors.Is(err, ErrMaxRetries) {
		t.Fatalf("expected ErrMaxRetries, got %v", err)
	}
	if calls != 3 {
		t.Fatalf("expected MaxRetries+1=3 calls, got %d", calls)
	}
}

func TestDoRespectsContextCancellationDuringBackoff(t *testing.T) {
	r := New(Config{MaxRetries: 5, InitialDelay: time.Second, MaxDelay: time.Second, Multiplier: 2, JitterFraction: 0})
	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	err := r.Do(ctx, func(ctx context.Context) error {
		return errors.New("connection reset")
	})
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("expected context deadline exceeded, got %v", err)
	}
}

func TestIsRetryableClassifiesKnownPatterns(t *testing.T) {
	r := NewWithDefaults()
	retryable := []error{
		errors.New("429 too many requests"),
		errors.New("500 internal server error"),
		errors.New("request timeout"),
		errors.New("connection refused"),
		errors.New("model overloaded"),
	}
	for _, err := range retryable {
		if !r.isRetryable(err) {
			t.Fatalf("expected %q to be retryable", err)
		}
	}

	if r.isRetryable(errors.New("invalid input")) {
		t.Fatal("expected an unrelated error to be non-retryable")
	}
}
