package circuitbreaker

import (
	"errors"
	"testing"
	"time"
)

var errBoom = errors.New("boom")

func TestCircuitBreakerOpensAfterFailureThreshold(t *testing.T) {
	cb := New(Config{Name: "test", FailureThreshold: 2, SuccessThreshold: 1, Timeout: time.Hour})

	_ = cb.Execute(func() error { return errBoom })
	if cb.State() != StateClosed {
		t.Fatalf("expected closed after 1 failure, got %s", cb.State())
	}

	_ = cb.Execute(func() error { return errBoom })
	if cb.State() != StateOpen {
		t.Fatalf("expected open after reaching the failure threshold, got %s", cb.State())
	}
}

func TestCircuitBreakerRejectsWhileOpen(t *testing.T) {
	cb := New(Config{Name: "test", FailureThreshold: 1, SuccessThreshold: 1, Timeout: time.Hour})
	_ = cb.Execute(func() error { return errBoom })

	called := false
	err := cb.Execute(func() error { called = true; return nil })
	if !errors.Is(err, ErrCircuitOpen) {
		t.Fatalf("expected ErrCircuitOpen, got %v", err)
	}
	if called {
		t.Fatal("expected the wrapped function not to run while open")
	}
}

func TestCircuitBreakerHalfOpensAfterTimeoutAndCloses(t *testing.T) {
	cb := New(Config{Name: "test", FailureThreshold: 1, SuccessThreshold: 1, Timeout: 10 * time.Millisecond})
	_ = cb.Execute(func() error { return errBoom })
	if cb.State() != StateOpen {
		t.Fatalf("expected open, got %s", cb.State())
	}

	time.Sleep(20 * time.Millisecond)

	err := cb.Execute(func() error { return nil })
	if err != nil {
		t.Fatalf("expected the half-open probe to succeed, got %v", err)
	}
	if cb.State() != StateClosed {
		t.Fatalf("expected closed after enough half-open successes, got %s", cb.State())
	}
}

func TestCircuitBreakerHalfOpenFailureReopens(t *testing.T) {
	cb := New(Config{Name: "test", FailureThreshold: 1, SuccessThreshold: 2, Timeout: 10 * time.Millisecond})
	_ = cb.Execute(func() error { return errBoom })
	time.Sleep(20 * time.Millisecond)

	_ = cb.Execute(func() error { return errBoom })
	if cb.State() != StateOpen {
		t.Fatalf("expected a half-open failure to reopen the circuit, got %s", cb.State())
	}
}

func TestCircuitBreakerClosedStateResetsFailureCountOnSuccess(t *testing.T) {
	cb := New(Config{Name: "test", FailureThreshold: 3, SuccessThreshold: 1, Timeout: time.Hour})
	_ = cb.Execute(func() error { return errBoom })
	_ = cb.Execute(func() error { return nil })

	stats := cb.Stats()
	if stats.FailureCount != 0 {
		t.Fatalf("expected failure count reset after a success, got %d", stats.FailureCount)
	}
}

func TestResetReturnsToClosedState(t *testing.T) {
	cb := New(Config{Name: "test", FailureThreshold: 1, Timeout: time.Hour})
	_ = cb.Execute(func() error { return errBoom })
	if cb.State() != StateOpen {
		t.Fatalf("expected open, got %s", cb.State())
	}

	cb.Reset()
	if cb.State() != StateClosed {
		t.Fatalf("expected closed after reset, got %s", cb.State())
	}
}
