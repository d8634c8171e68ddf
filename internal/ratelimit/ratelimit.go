package ratelimit

import (
	"context"
	"sync"
	"time"
)

// Limiter enforces a minimum delay between consecutive acquisitions.
// It is a single-slot limiter: callers are strictly serialised and queue
// behind the mutex in arrival order. Acquisition only ever delays, it
// never fails, short of the caller's context being cancelled mid-wait.
type Limiter struct {
	minDelay time.Duration

	mu       sync.Mutex
	last     time.Time
	requests uint64

	// now and sleep are swappable for tests.
	now   func() time.Time
	sleep func(context.Context, time.Duration) error
}

// New constructs a Limiter with the given minimum inter-request delay.
func New(minDelay time.Duration) *Limiter {
	return &Limiter{
		minDelay: minDelay,
		now:      time.Now,
		sleep:    sleepCtx,
	}
}

// Acquire blocks until at least the minimum delay has elapsed since the
// start of the previous granted acquisition. The first call returns
// immediately.
func (l *Limiter) Acquire(ctx context.Context) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if !l.last.IsZero() {
		if wait := l.minDelay - l.now().Sub(l.last); wait > 0 {
			if err := l.sleep(ctx, wait); err != nil {
				return err
			}
		}
	}

	l.last = l.now()
	l.requests++
	return nil
}

// Requests reports the total number of granted acquisitions.
func (l *Limiter) Requests() uint64 {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.requests
}

// Reset clears the counter and the last-acquired timestamp. Intended for
// test harnesses only.
func (l *Limiter) Reset() {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.last = time.Time{}
	l.requests = 0
}

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
