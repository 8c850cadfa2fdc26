package waitqueue_test

import (
	"context"
	"testing"
	"time"

	"github.com/xeptore/spotd/waitqueue"
)

func TestRunSingleHonorsCapacity(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	wq := waitqueue.New(ctx, 200*time.Millisecond, time.Millisecond, 2)
	defer wq.Close()

	start := time.Now()
	var ran int
	for range 3 {
		if err := wq.RunSingle(ctx, func() error { ran++; return nil }); nil != err {
			t.Fatalf("unexpected error: %v", err)
		}
	}
	if ran != 3 {
		t.Fatalf("expected 3 runs, got %d", ran)
	}
	// Third run must have waited for the next interval.
	if elapsed := time.Since(start); elapsed < 100*time.Millisecond {
		t.Errorf("expected third run to be delayed to the next interval, finished in %s", elapsed)
	}
}

func TestRunSingleCanceledContext(t *testing.T) {
	t.Parallel()

	wq := waitqueue.New(context.Background(), time.Hour, time.Millisecond, 0)
	defer wq.Close()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if err := wq.RunSingle(ctx, func() error { return nil }); nil == err {
		t.Fatal("expected context cancellation error")
	}
}
