// Package appstats holds the application counters the collector samples:
// a trailing-window error/operation tally, lifetime cache hit/miss counters,
// active connections and job queue depth.
//
// A Tracker is safe for concurrent use. Request-handling code increments it
// from any goroutine while the collector reads it once per tick.
package appstats

import (
	"sync"
	"sync/atomic"
	"time"
)

// DefaultWindow is the trailing window over which the error rate is computed.
const DefaultWindow = 5 * time.Minute

// Stats is a consistent read of all tracker values at one instant.
type Stats struct {
	Operations        int
	Errors            int
	ErrorRate         float64
	CacheHits         uint64
	CacheMisses       uint64
	CacheHitRate      float64
	ActiveConnections int
	QueueSize         int
	ActiveJobs        int
}

// Tracker accumulates application counters.
type Tracker struct {
	window time.Duration
	now    func() time.Time // injectable for deterministic tests

	mu      sync.Mutex
	buckets []bucket // ring indexed by unix second modulo its length

	hits   atomic.Uint64
	misses atomic.Uint64

	conns   atomic.Int64
	pending atomic.Int64
	active  atomic.Int64
}

// bucket tallies the operations recorded during one wall-clock second.
type bucket struct {
	sec  int64
	ops  int
	errs int
}

// New creates a Tracker with the default 5 minute window.
func New() *Tracker {
	return NewWithWindow(DefaultWindow)
}

// NewWithWindow creates a Tracker with a custom trailing window.
func NewWithWindow(window time.Duration) *Tracker {
	if window <= 0 {
		window = DefaultWindow
	}
	n := int((window+time.Second-1)/time.Second) + 1
	return &Tracker{window: window, now: time.Now, buckets: make([]bucket, n)}
}

// RecordOperation counts one successful operation.
func (t *Tracker) RecordOperation() { t.record(false) }

// RecordError counts one failed operation. A failure is also an operation,
// so it contributes to the denominator of the error rate.
func (t *Tracker) RecordError() { t.record(true) }

func (t *Tracker) record(failed bool) {
	sec := t.now().Unix()

	t.mu.Lock()
	b := &t.buckets[t.slot(sec)]
	if b.sec != sec {
		*b = bucket{sec: sec}
	}
	b.ops++
	if failed {
		b.errs++
	}
	t.mu.Unlock()
}

func (t *Tracker) slot(sec int64) int {
	n := int64(len(t.buckets))
	return int((sec%n + n) % n)
}

// RecordCacheHit counts one cache hit. Cache counters are lifetime totals.
func (t *Tracker) RecordCacheHit() { t.hits.Add(1) }

// RecordCacheMiss counts one cache miss.
func (t *Tracker) RecordCacheMiss() { t.misses.Add(1) }

// ConnOpened and ConnClosed track the number of live client connections.
func (t *Tracker) ConnOpened() { t.conns.Add(1) }

func (t *Tracker) ConnClosed() { decrementFloor(&t.conns) }

// SetQueue records the job queue depth as reported by the queue owner.
func (t *Tracker) SetQueue(pending, active int) {
	t.pending.Store(int64(max(pending, 0)))
	t.active.Store(int64(max(active, 0)))
}

// JobEnqueued moves the pending gauge up by one.
func (t *Tracker) JobEnqueued() { t.pending.Add(1) }

// JobStarted moves one job from pending to active.
func (t *Tracker) JobStarted() {
	decrementFloor(&t.pending)
	t.active.Add(1)
}

// JobFinished removes one job from the active gauge.
func (t *Tracker) JobFinished() { decrementFloor(&t.active) }

// ErrorRate returns errors/operations*100 over the trailing window, or 0 when
// no operation was recorded. Entries older than the window are pruned.
func (t *Tracker) ErrorRate() float64 {
	ops, errs := t.tally()
	return errorRate(ops, errs)
}

// CacheHitRate returns hits/(hits+misses)*100, or 100 when nothing was recorded.
func (t *Tracker) CacheHitRate() float64 {
	return hitRate(t.hits.Load(), t.misses.Load())
}

// Stats prunes the window and returns all counters.
func (t *Tracker) Stats() Stats {
	ops, errs := t.tally()
	hits, misses := t.hits.Load(), t.misses.Load()
	return Stats{
		Operations:        ops,
		Errors:            errs,
		ErrorRate:         errorRate(ops, errs),
		CacheHits:         hits,
		CacheMisses:       misses,
		CacheHitRate:      hitRate(hits, misses),
		ActiveConnections: int(t.conns.Load()),
		QueueSize:         int(t.pending.Load()),
		ActiveJobs:        int(t.active.Load()),
	}
}

// tally clears buckets that fell out of the window and sums the rest.
// The window has one second resolution.
func (t *Tracker) tally() (ops, errs int) {
	now := t.now()
	cutoff := now.Add(-t.window).Unix()
	nowSec := now.Unix()

	t.mu.Lock()
	defer t.mu.Unlock()

	for i := range t.buckets {
		b := &t.buckets[i]
		if b.sec <= cutoff || b.sec > nowSec {
			*b = bucket{}
			continue
		}
		ops += b.ops
		errs += b.errs
	}
	return ops, errs
}

func errorRate(ops, errs int) float64 {
	if ops == 0 {
		return 0
	}
	r := float64(errs) / float64(ops) * 100
	if r > 100 {
		return 100
	}
	return r
}

func hitRate(hits, misses uint64) float64 {
	total := hits + misses
	if total == 0 {
		return 100 // healthy until proven otherwise
	}
	return float64(hits) / float64(total) * 100
}

// decrementFloor decrements v without going below zero.
func decrementFloor(v *atomic.Int64) {
	for {
		cur := v.Load()
		if cur <= 0 {
			return
		}
		if v.CompareAndSwap(cur, cur-1) {
			return
		}
	}
}
