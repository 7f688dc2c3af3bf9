package ratelimit

import (
	"context"
	"math/rand"
	"sync"
	"time"
)

// Limiter blocks the caller until the next request may start
type Limiter interface {
	Wait(ctx context.Context) error
}

// SleepFunc sleeps for d or until ctx is done
type SleepFunc func(ctx context.Context, d time.Duration) error

// Delay is a fixed inter-request delay with optional random jitter in [0, jitter].
// Each call to Wait sleeps once; nothing is carried between calls.
type Delay struct {
	mu     sync.Mutex
	base   time.Duration
	jitter time.Duration
	rnd    *rand.Rand
	sleep  SleepFunc
}

// NewDelay creates a Delay. Negative durations are treated as zero.
func NewDelay(base, jitter time.Duration) *Delay {
	if base < 0 {
		base = 0
	}
	if jitter < 0 {
		jitter = 0
	}
	return &Delay{
		base:   base,
		jitter: jitter,
		rnd:    rand.New(rand.NewSource(time.Now().UnixNano())),
		sleep:  Sleep,
	}
}

// WithSleep replaces the sleep implementation
func (d *Delay) WithSleep(fn SleepFunc) *Delay {
	d.sleep = fn
	return d
}

// Next returns the duration the next Wait will sleep
func (d *Delay) Next() time.Duration {
	if d.jitter == 0 {
		return d.base
	}
	d.mu.Lock()
	n := d.rnd.Int63n(int64(d.jitter) + 1)
	d.mu.Unlock()
	return d.base + time.Duration(n)
}

// Wait sleeps for Next() or until ctx is done
func (d *Delay) Wait(ctx context.Context) error {
	return d.sleep(ctx, d.Next())
}

// Sleep waits for d or until ctx is done
func Sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}

	t := time.NewTimer(d)
	defer t.Stop()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

// Recorder is a SleepFunc that records requested durations without sleeping
type Recorder struct {
	mu     sync.Mutex
	Sleeps []time.Duration
}

// Sleep records d and returns ctx.Err()
func (r *Recorder) Sleep(ctx context.Context, d time.Duration) error {
	r.mu.Lock()
	r.Sleeps = append(r.Sleeps, d)
	r.mu.Unlock()
	return ctx.Err()
}

// Count returns how many sleeps were requested
func (r *Recorder) Count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.Sleeps)
}
