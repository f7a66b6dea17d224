package ingest

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/yisiliu2005/masiv2025/internal/dataset"
)

type countingRefresher struct {
	n    atomic.Int32
	fail bool
}

func (c *countingRefresher) Refresh(ctx context.Context) (*dataset.Snapshot, error) {
	c.n.Add(1)
	if c.fail {
		return nil, errors.New("boom")
	}
	return &dataset.Snapshot{Version: uint64(c.n.Load())}, nil
}

func TestNextDailyAt(t *testing.T) {
	loc := time.UTC
	now := time.Date(2024, 5, 10, 2, 30, 0, 0, loc)
	if got := nextDailyAt(now, loc, 3); !got.Equal(time.Date(2024, 5, 10, 3, 0, 0, 0, loc)) {
		t.Fatalf("same day: %v", got)
	}
	if got := nextDailyAt(now, loc, 2); !got.Equal(time.Date(2024, 5, 11, 2, 0, 0, 0, loc)) {
		t.Fatalf("next day: %v", got)
	}
	at := time.Date(2024, 5, 10, 3, 0, 0, 0, loc)
	if got := nextDailyAt(at, loc, 3); !got.After(at) {
		t.Fatalf("must be strictly later: %v", got)
	}
}

func TestStartIntervalRunsAndStops(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	r := &countingRefresher{}
	var seen atomic.Int32
	StartInterval(ctx, r, 10*time.Millisecond, func(ctx context.Context, s *dataset.Snapshot) { seen.Add(1) })

	deadline := time.Now().Add(2 * time.Second)
	for r.n.Load() < 2 && time.Now().Before(deadline) {
		time.Sleep(5 * time.Millisecond)
	}
	cancel()
	if r.n.Load() < 2 || seen.Load() < 2 {
		t.Fatalf("refresh calls = %d, callbacks = %d", r.n.Load(), seen.Load())
	}
	time.Sleep(30 * time.Millisecond)
	stopped := r.n.Load()
	time.Sleep(50 * time.Millisecond)
	if r.n.Load() != stopped {
		t.Fatalf("loop kept running after cancel")
	}
}

func TestRunOnceSkipsCallbackOnError(t *testing.T) {
	r := &countingRefresher{fail: true}
	called := false
	runOnce(context.Background(), r, func(context.Context, *dataset.Snapshot) { called = true })
	if called || r.n.Load() != 1 {
		t.Fatalf("called=%v n=%d", called, r.n.Load())
	}
}

func TestStartDisabled(t *testing.T) {
	r := &countingRefresher{}
	StartInterval(context.Background(), r, 0, nil)
	StartDaily(context.Background(), r, "UTC", -1, nil)
	time.Sleep(20 * time.Millisecond)
	if r.n.Load() != 0 {
		t.Fatalf("disabled schedulers ran")
	}
}
