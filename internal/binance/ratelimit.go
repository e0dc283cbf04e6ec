package binance

import (
	"context"
	"sync"
	"time"
)

// Default quotas per rolling window. These match the exchange's published
// spot API limits; override them via config when the account tier differs.
const (
	DefaultMaxRequests = 1200
	DefaultMaxWeight   = 6000
)

// rateWindow is the length of the rolling quota window.
const rateWindow = time.Minute

// budgetEntry records one admitted request.
type budgetEntry struct {
	at     time.Time
	weight int
}

// RateBudget tracks request count and weighted cost over a rolling window
// and blocks callers until both quotas have headroom. It is the one piece
// of shared mutable state in the collection pipeline; all concurrent
// callers of a Client go through the same budget.
type RateBudget struct {
	mu         sync.Mutex
	maxRequest int
	maxWeight  int
	window     time.Duration

	entries    []budgetEntry
	usedWeight int

	// Injectable for tests.
	now   func() time.Time
	sleep func(context.Context, time.Duration) error
}

// NewRateBudget creates a budget with the given per-window quotas.
func NewRateBudget(maxRequests, maxWeight int) *RateBudget {
	return &RateBudget{
		maxRequest: maxRequests,
		maxWeight:  maxWeight,
		window:     rateWindow,
		now:        time.Now,
		sleep:      sleepCtx,
	}
}

// Acquire blocks until admitting a request of the given weight would keep
// both quotas within their limits over the trailing window, then records
// it. Returns the total time spent waiting; a wait is a scheduled delay,
// not a failure. The only error returned is the context's.
func (b *RateBudget) Acquire(ctx context.Context, weight int) (time.Duration, error) {
	var waited time.Duration

	for {
		b.mu.Lock()
		now := b.now()
		b.pruneLocked(now)

		// An empty window always admits: a request heavier than the whole
		// budget can never gain headroom by waiting.
		if len(b.entries) == 0 ||
			(len(b.entries)+1 <= b.maxRequest && b.usedWeight+weight <= b.maxWeight) {
			b.entries = append(b.entries, budgetEntry{at: now, weight: weight})
			b.usedWeight += weight
			b.mu.Unlock()
			return waited, nil
		}

		// Wait until the oldest entry falls out of the window, then re-check.
		wait := b.entries[0].at.Add(b.window).Sub(now)
		b.mu.Unlock()

		if wait <= 0 {
			wait = time.Millisecond
		}
		waited += wait
		if err := b.sleep(ctx, wait); err != nil {
			return waited, err
		}
	}
}

// Used returns the current request count and weighted cost in the window.
func (b *RateBudget) Used() (requests, weight int) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.pruneLocked(b.now())
	return len(b.entries), b.usedWeight
}

// pruneLocked drops entries older than the window. Caller holds b.mu.
func (b *RateBudget) pruneLocked(now time.Time) {
	cutoff := now.Add(-b.window)
	i := 0
	for ; i < len(b.entries); i++ {
		if b.entries[i].at.After(cutoff) {
			break
		}
		b.usedWeight -= b.entries[i].weight
	}
	if i > 0 {
		b.entries = append(b.entries[:0], b.entries[i:]...)
	}
}

// sleepCtx sleeps for d or until the context is canceled.
func sleepCtx(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
