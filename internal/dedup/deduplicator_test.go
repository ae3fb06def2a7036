package dedup

import (
	"context"
	"testing"
	"time"
)

func TestCheckAndMarkFirstRequestIsNotDuplicate(t *testing.T) {
	d := New(Config{TTL: time.Minute, CleanupInterval: time.Hour})
	isDup, waitCh := d.CheckAndMark("key1")
	if isDup {
		t.Fatal("first request should not be a duplicate")
	}
	if waitCh != nil {
		t.Fatal("expected nil wait channel for a fresh request")
	}
}

func TestCheckAndMarkSecondRequestIsDuplicate(t *testing.T) {
	d := New(Config{TTL: time.Minute, CleanupInterval: time.Hour})
	d.CheckAndMark("key1")

	isDup, waitCh := d.CheckAndMark("key1")
	if !isDup {
		t.Fatal("second request within TTL should be a duplicate")
	}
	if waitCh == nil {
		t.Fatal("expected a wait channel for a duplicate request")
	}
}

func TestCompleteUnblocksWaiters(t *testing.T) {
	d := New(Config{TTL: time.Minute, CleanupInterval: time.Hour})
	d.CheckAndMark("key1")
	_, waitCh := d.CheckAndMark("key1")

	d.Complete("key1", "result-value")

	select {
	case <-waitCh:
	case <-time.After(time.Second):
		t.Fatal("expected wait channel to close after Complete")
	}

	result, err, ok := d.GetResult("key1")
	if !ok {
		t.Fatal("expected a result to be available")
	}
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if result != "result-value" {
		t.Fatalf("got %v", result)
	}
}

func TestGetResultPendingReturnsNotOK(t *testing.T) {
	d := New(Config{TTL: time.Minute, CleanupInterval: time.Hour})
	d.CheckAndMark("key1")

	if _, _, ok := d.GetResult("key1"); ok {
		t.Fatal("expected ok=false while request is still pending")
	}
}

func TestCheckAndMarkAllowsNewRequestAfterExpiry(t *testing.T) {
	d := New(Config{TTL: 10 * time.Millisecond, CleanupInterval: time.Hour})
	d.CheckAndMark("key1")

	time.Sleep(30 * time.Millisecond)

	isDup, _ := d.CheckAndMark("key1")
	if isDup {
		t.Fatal("expected the expired entry to allow a new request through")
	}
}

func TestWaitForResultRespectsContextCancellation(t *testing.T) {
	d := New(Config{TTL: time.Minute, CleanupInterval: time.Hour})
	d.CheckAndMark("key1")

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()

	_, err, ok := d.WaitForResult(ctx, "key1")
	if ok {
		t.Fatal("expected ok=false on context cancellation")
	}
	if err == nil {
		t.Fatal("expected context deadline error")
	}
}

func TestRemoveDropsEntry(t *testing.T) {
	d := New(Config{TTL: time.Minute, CleanupInterval: time.Hour})
	d.CheckAndMark("key1")
	d.Remove("key1")

	isDup, _ := d.CheckAndMark("key1")
	if isDup {
		t.Fatal("expected removed key to allow a fresh request")
	}
}

func TestRequestKeyIsStableForSameInputs(t *testing.T) {
	a := RequestKey("octocat", "hello-world", 7, "abc123")
	b := RequestKey("octocat", "hello-world", 7, "abc123")
	if a != b {
		t.Fatalf("expected stable key, got %q vs %q", a, b)
	}

	c := RequestKey("octocat", "hello-world", 8, "abc123")
	if a == c {
		t.Fatal("expected different pr numbers to produce different keys")
	}
}
