/*
Copyright © 2026 Seednode <seednode@seedno.de>
*/

// Package throttle implements a leading+trailing rate limiter.
//
// The first call in a quiet window fires immediately. Calls landing inside
// the window are coalesced: only the newest argument is kept, and it fires
// once when the window closes. A steady stream of calls therefore produces a
// regular cadence of firings at least one delay apart, and the last argument
// given before the caller goes quiet is always delivered.
package throttle

import (
	"sync"
	"time"

	"github.com/Seednode/partycursor/clock"
)

// DefaultDelay is the outbound cap used for cursor broadcasts.
const DefaultDelay = 50 * time.Millisecond

type Option func(*options)

type options struct {
	clock clock.Clock
}

// WithClock sets the time source. The default is the real clock.
func WithClock(c clock.Clock) Option {
	return func(o *options) {
		o.clock = c
	}
}

// Throttler wraps fn so it runs at most once per delay.
//
// fn is invoked while the Throttler's lock is held and must not call back
// into the same Throttler.
type Throttler[T any] struct {
	mu    sync.Mutex
	delay time.Duration
	fn    func(T)
	clock clock.Clock

	fired bool
	last  time.Time

	timer      clock.Timer
	generation uint64
	pending    T
	hasPending bool

	stopped bool
}

// New returns a Throttler that calls fn at most once per delay. A delay of
// zero or less disables throttling.
func New[T any](delay time.Duration, fn func(T), opts ...Option) *Throttler[T] {
	o := options{clock: clock.Real()}
	for _, opt := range opts {
		opt(&o)
	}

	return &Throttler[T]{
		delay: delay,
		fn:    fn,
		clock: o.clock,
	}
}

// Call fires fn(v) now, or schedules it for the end of the current window.
func (t *Throttler[T]) Call(v T) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.stopped {
		return
	}

	now := t.clock.Now()
	remaining := t.delay - now.Sub(t.last)

	if !t.fired || remaining <= 0 {
		t.cancelLocked()
		t.fireLocked(now, v)

		return
	}

	t.pending = v
	t.hasPending = true

	t.cancelTimerLocked()
	t.generation++
	gen := t.generation
	t.timer = t.clock.AfterFunc(remaining, func() {
		t.deferred(gen)
	})
}

// Flush fires the pending argument immediately, if there is one.
func (t *Throttler[T]) Flush() {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.stopped || !t.hasPending {
		return
	}

	v := t.pending
	t.cancelLocked()
	t.fireLocked(t.clock.Now(), v)
}

// Stop cancels any pending firing. Later calls are ignored.
func (t *Throttler[T]) Stop() {
	t.mu.Lock()
	defer t.mu.Unlock()

	t.stopped = true
	t.cancelLocked()
}

// Pending reports whether a deferred firing is scheduled.
func (t *Throttler[T]) Pending() bool {
	t.mu.Lock()
	defer t.mu.Unlock()

	return t.hasPending
}

func (t *Throttler[T]) deferred(gen uint64) {
	t.mu.Lock()
	defer t.mu.Unlock()

	// A stopped or replaced timer may still have its callback in flight.
	if t.stopped || !t.hasPending || gen != t.generation {
		return
	}

	v := t.pending
	t.timer = nil
	t.clearPendingLocked()
	t.fireLocked(t.clock.Now(), v)
}

func (t *Throttler[T]) fireLocked(now time.Time, v T) {
	t.fired = true
	t.last = now
	t.fn(v)
}

func (t *Throttler[T]) cancelLocked() {
	t.cancelTimerLocked()
	t.generation++
	t.clearPendingLocked()
}

func (t *Throttler[T]) cancelTimerLocked() {
	if t.timer != nil {
		t.timer.Stop()
		t.timer = nil
	}
}

func (t *Throttler[T]) clearPendingLocked() {
	var zero T
	t.pending = zero
	t.hasPending = false
}
