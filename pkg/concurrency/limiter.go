// Package concurrency bounds the number of workflow invocations running at
// once. Each invocation owns a JavaScript runtime, so an unbounded burst
// translates directly into memory pressure; the limiter applies backpressure
// at the invocation boundary instead.
package concurrency

import (
	"context"
	"sync/atomic"
	"time"
)

// Metrics is a snapshot of limiter activity.
type Metrics struct {
	// TotalAcquired counts successful slot acquisitions.
	TotalAcquired int64
	// TotalReleased counts slot releases.
	TotalReleased int64
	// PeakConcurrent is the highest number of simultaneously held slots.
	PeakConcurrent int64
	// TotalWait is the cumulative time spent waiting for a slot.
	TotalWait time.Duration
}

// Limiter is a semaphore with activity metrics. The zero value is not
// usable; create one with NewLimiter.
type Limiter struct {
	sem chan struct{}

	active        atomic.Int64
	totalAcquired atomic.Int64
	totalReleased atomic.Int64
	peak          atomic.Int64
	totalWaitNs   atomic.Int64
}

// NewLimiter creates a limiter allowing up to maxConcurrent holders.
func NewLimiter(maxConcurrent int) *Limiter {
	if maxConcurrent <= 0 {
		maxConcurrent = 1
	}
	return &Limiter{sem: make(chan struct{}, maxConcurrent)}
}

// Acquire blocks until a slot is free or the context is cancelled.
func (l *Limiter) Acquire(ctx context.Context) error {
	start := time.Now()
	select {
	case l.sem <- struct{}{}:
		l.totalWaitNs.Add(time.Since(start).Nanoseconds())
		l.totalAcquired.Add(1)
		l.updatePeak(l.active.Add(1))
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Release returns a slot. Every successful Acquire must be paired with
// exactly one Release.
func (l *Limiter) Release() {
	select {
	case <-l.sem:
		l.active.Add(-1)
		l.totalReleased.Add(1)
	default:
	}
}

// Do runs fn while holding a slot.
func (l *Limiter) Do(ctx context.Context, fn func() error) error {
	if err := l.Acquire(ctx); err != nil {
		return err
	}
	defer l.Release()
	return fn()
}

// Active returns the number of currently held slots.
func (l *Limiter) Active() int64 {
	return l.active.Load()
}

// Snapshot returns the current metrics.
func (l *Limiter) Snapshot() Metrics {
	return Metrics{
		TotalAcquired:  l.totalAcquired.Load(),
		TotalReleased:  l.totalReleased.Load(),
		PeakConcurrent: l.peak.Load(),
		TotalWait:      time.Duration(l.totalWaitNs.Load()),
	}
}

func (l *Limiter) updatePeak(current int64) {
	for {
		peak := l.peak.Load()
		if current <= peak || l.peak.CompareAndSwap(peak, current) {
			return
		}
	}
}
