package binance

import (
	"context"
	"sync"
	"testing"
	"time"
)

// fakeClock is a manually advanced clock for budget tests.
type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{now: time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)}
}

func (f *fakeClock) Now() time.Time {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.now
}

func (f *fakeClock) Advance(d time.Duration) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.now = f.now.Add(d)
}

// testBudget returns a budget whose sleeps advance the fake clock
// instead of blocking.
func testBudget(maxRequests, maxWeight int) (*RateBudget, *fakeClock) {
	clock := newFakeClock()
	b := NewRateBudget(maxRequests, maxWeight)
	b.now = clock.Now
	b.sleep = func(_ context.Context, d time.Duration) error {
		clock.Advance(d)
		return nil
	}
	return b, clock
}

func TestRateBudget_AdmitsUpToRequestQuota(t *testing.T) {
	b, _ := testBudget(3, 1000)
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		waited, err := b.Acquire(ctx, 1)
		if err != nil {
			t.Fatalf("Acquire %d failed: %v", i, err)
		}
		if waited != 0 {
			t.Errorf("Acquire %d waited %v, want 0", i, waited)
		}
	}

	// Fourth request must wait for the window to roll.
	waited, err := b.Acquire(ctx, 1)
	if err != nil {
		t.Fatalf("Acquire failed: %v", err)
	}
	if waited == 0 {
		t.Error("fourth Acquire should have waited, got 0")
	}

	requests, _ := b.Used()
	if requests > 3 {
		t.Errorf("requests in window = %d, want <= 3", requests)
	}
}

func TestRateBudget_WeightQuotaBlocks(t *testing.T) {
	b, _ := testBudget(100, 10)
	ctx := context.Background()

	for i := 0; i < 2; i++ {
		if waited, err := b.Acquire(ctx, 4); err != nil || waited != 0 {
			t.Fatalf("Acquire %d: waited=%v err=%v, want instant", i, waited, err)
		}
	}

	// 8 of 10 weight used; another 4 exceeds the quota.
	waited, err := b.Acquire(ctx, 4)
	if err != nil {
		t.Fatalf("Acquire failed: %v", err)
	}
	if waited == 0 {
		t.Error("third Acquire should have waited for weight headroom")
	}

	_, weight := b.Used()
	if weight > 10 {
		t.Errorf("weight in window = %d, want <= 10", weight)
	}
}

// TestRateBudget_SlidingWindowNeverExceeded drives many acquisitions
// through a small budget and asserts no 60s window ever exceeds either
// quota.
func TestRateBudget_SlidingWindowNeverExceeded(t *testing.T) {
	const (
		maxRequests = 10
		maxWeight   = 30
		reqWeight   = 5
		total       = 50
	)

	b, clock := testBudget(maxRequests, maxWeight)
	ctx := context.Background()

	var admissions []time.Time
	for i := 0; i < total; i++ {
		if _, err := b.Acquire(ctx, reqWeight); err != nil {
			t.Fatalf("Acquire %d failed: %v", i, err)
		}
		admissions = append(admissions, clock.Now())
	}

	// Windows ending at admission instants are the extreme points.
	for i, end := range admissions {
		cutoff := end.Add(-rateWindow)
		count, weight := 0, 0
		for _, at := range admissions {
			if at.After(cutoff) && !at.After(end) {
				count++
				weight += reqWeight
			}
		}
		if count > maxRequests {
			t.Fatalf("window ending at admission %d holds %d requests, want <= %d", i, count, maxRequests)
		}
		if weight > maxWeight {
			t.Fatalf("window ending at admission %d holds weight %d, want <= %d", i, weight, maxWeight)
		}
	}
}

func TestRateBudget_WindowRollRestoresHeadroom(t *testing.T) {
	b, clock := testBudget(2, 100)
	ctx := context.Background()

	b.Acquire(ctx, 1)
	b.Acquire(ctx, 1)

	clock.Advance(rateWindow + time.Second)

	waited, err := b.Acquire(ctx, 1)
	if err != nil {
		t.Fatalf("Acquire failed: %v", err)
	}
	if waited != 0 {
		t.Errorf("Acquire after window roll waited %v, want 0", waited)
	}

	requests, weight := b.Used()
	if requests != 1 || weight != 1 {
		t.Errorf("Used() = (%d, %d), want (1, 1)", requests, weight)
	}
}

func TestRateBudget_OverweightRequestAdmittedWhenIdle(t *testing.T) {
	// A single request heavier than the whole budget can never gain
	// headroom by waiting; an idle budget admits it rather than spinning.
	b, _ := testBudget(10, 5)
	ctx := context.Background()

	waited, err := b.Acquire(ctx, 50)
	if err != nil {
		t.Fatalf("Acquire failed: %v", err)
	}
	if waited != 0 {
		t.Errorf("idle Acquire waited %v, want 0", waited)
	}
}

func TestRateBudget_ContextCancellation(t *testing.T) {
	b := NewRateBudget(1, 100)
	ctx, cancel := context.WithCancel(context.Background())

	if _, err := b.Acquire(ctx, 1); err != nil {
		t.Fatalf("first Acquire failed: %v", err)
	}

	cancel()
	_, err := b.Acquire(ctx, 1)
	if err == nil {
		t.Fatal("expected context error, got nil")
	}
}
