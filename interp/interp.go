/*
Copyright © 2026 Seednode <seednode@seedno.de>
*/

// Package interp smooths a sparse, irregular stream of remote cursor points
// into a position that can be sampled on every display refresh.
//
// Each new point starts a segment from wherever the cursor is currently drawn
// toward the new point. The segment lasts about as long as the sender's
// recent inter-arrival interval and is eased out, so the cursor decelerates
// into each target. The cursor trails the newest point by roughly one
// segment and freezes in place when points stop arriving.
package interp

import (
	"time"
)

const (
	DefaultHistorySize = 10
	DefaultMinSegment  = 16 * time.Millisecond
	DefaultMaxSegment  = 300 * time.Millisecond
)

type Point struct {
	X, Y float64
}

func lerp(a, b Point, t float64) Point {
	return Point{X: a.X + (b.X-a.X)*t, Y: a.Y + (b.Y-a.Y)*t}
}

// EaseOutCubic decelerates into the target without overshooting.
func EaseOutCubic(t float64) float64 {
	u := 1 - t
	return 1 - u*u*u
}

// Linear is the identity easing.
func Linear(t float64) float64 {
	return t
}

type Options struct {
	HistorySize int
	MinSegment  time.Duration
	MaxSegment  time.Duration

	// Easing maps elapsed fraction to travelled fraction. It must be
	// monotonic with Easing(0) == 0 and Easing(1) == 1.
	Easing func(float64) float64
}

func (o Options) withDefaults() Options {
	if o.HistorySize < 2 {
		o.HistorySize = DefaultHistorySize
	}
	if o.MinSegment <= 0 {
		o.MinSegment = DefaultMinSegment
	}
	if o.MaxSegment < o.MinSegment {
		o.MaxSegment = max(DefaultMaxSegment, o.MinSegment)
	}
	if o.Easing == nil {
		o.Easing = EaseOutCubic
	}
	return o
}

type arrival struct {
	p  Point
	at time.Time
}

// Interpolator animates one peer's cursor. It is not safe for concurrent
// use; it belongs to whatever drives the display refresh.
type Interpolator struct {
	opts Options

	history []arrival

	from, to, current Point
	velocity          Point
	start             time.Time
	duration          time.Duration
	animating         bool

	now     time.Time
	started bool
	stopped bool
}

func New(opts Options) *Interpolator {
	opts = opts.withDefaults()

	return &Interpolator{
		opts:    opts,
		history: make([]arrival, 0, opts.HistorySize),
	}
}

// Add feeds a point received at the given time.
func (ip *Interpolator) Add(p Point, at time.Time) {
	if ip.stopped {
		return
	}

	if !ip.started {
		ip.started = true
		ip.now = at
		ip.current, ip.from, ip.to = p, p, p
		ip.record(p, at)

		return
	}

	ip.advance(at)
	ip.record(p, ip.now)

	ip.from = ip.current
	ip.to = p
	ip.start = ip.now
	ip.duration = ip.segmentDuration()
	ip.animating = true

	secs := ip.duration.Seconds()
	ip.velocity = Point{X: (ip.to.X - ip.from.X) / secs, Y: (ip.to.Y - ip.from.Y) / secs}
}

// Tick advances the animation to now and returns the position to draw.
func (ip *Interpolator) Tick(now time.Time) Point {
	if ip.stopped || !ip.started {
		return ip.current
	}

	ip.advance(now)

	return ip.current
}

// Position returns the last computed position without advancing time.
func (ip *Interpolator) Position() Point {
	return ip.current
}

// Target returns the point the current segment is heading to.
func (ip *Interpolator) Target() Point {
	return ip.to
}

// Velocity is the average speed of the current segment in units per second,
// zero when the cursor is at rest.
func (ip *Interpolator) Velocity() Point {
	return ip.velocity
}

// Animating reports whether a segment is in flight.
func (ip *Interpolator) Animating() bool {
	return ip.animating
}

// Started reports whether any point has been added.
func (ip *Interpolator) Started() bool {
	return ip.started
}

// History returns the number of buffered arrivals.
func (ip *Interpolator) History() int {
	return len(ip.history)
}

// Stop ends the animation for good and drops the history.
func (ip *Interpolator) Stop() {
	ip.stopped = true
	ip.animating = false
	ip.velocity = Point{}
	ip.history = nil
}

func (ip *Interpolator) Stopped() bool {
	return ip.stopped
}

func (ip *Interpolator) record(p Point, at time.Time) {
	if len(ip.history) == ip.opts.HistorySize {
		copy(ip.history, ip.history[1:])
		ip.history = ip.history[:len(ip.history)-1]
	}
	ip.history = append(ip.history, arrival{p: p, at: at})
}

// segmentDuration is the mean inter-arrival interval over the history.
func (ip *Interpolator) segmentDuration() time.Duration {
	if len(ip.history) < 2 {
		return ip.opts.MaxSegment
	}

	var total time.Duration
	for i := 1; i < len(ip.history); i++ {
		d := ip.history[i].at.Sub(ip.history[i-1].at)
		total += min(max(d, 0), ip.opts.MaxSegment)
	}
	mean := total / time.Duration(len(ip.history)-1)

	return min(max(mean, ip.opts.MinSegment), ip.opts.MaxSegment)
}

func (ip *Interpolator) advance(now time.Time) {
	// Time never runs backwards for the animation.
	if now.Before(ip.now) {
		now = ip.now
	}
	ip.now = now

	if !ip.animating {
		return
	}

	f := float64(now.Sub(ip.start)) / float64(ip.duration)
	if f >= 1 {
		ip.current = ip.to
		ip.animating = false
		ip.velocity = Point{}

		return
	}
	f = max(f, 0)

	ip.current = lerp(ip.from, ip.to, ip.opts.Easing(f))
}
