/*
Copyright © 2026 Seednode <seednode@seedno.de>
*/

package position

import (
	"math"
	"sync"

	"github.com/Seednode/partycursor/cursor"
	"github.com/Seednode/partycursor/throttle"
)

const (
	smoothingWindow   = 5
	smoothingDeadzone = 0.5
	smoothingRange    = 30.0
	smoothingBeta     = 80.0
)

// Smoothed is the absolute tilt mapping: a moving average over the last few
// readings, ignoring sub-degree jitter, mapped so that ±30° around a
// comfortable holding angle spans the viewport.
type Smoothed struct {
	mu      sync.Mutex
	buffer  []Tilt
	closed  bool
	limiter *throttle.Throttler[cursor.Sample]
}

func NewSmoothed(opts Options, emit func(cursor.Sample)) (*Smoothed, error) {
	if !opts.Capabilities.Orientation {
		return nil, ErrUnsupportedCapability
	}
	opts = opts.withDefaults()

	return &Smoothed{
		buffer:  make([]Tilt, 0, smoothingWindow+1),
		limiter: opts.limiter(emit),
	}, nil
}

func (s *Smoothed) Handle(in Input) {
	t, ok := in.(Tilt)
	if !ok || !validTilt(t) {
		return
	}

	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}

	s.buffer = append(s.buffer, t)
	if len(s.buffer) > smoothingWindow {
		s.buffer = s.buffer[1:]
	}
	if len(s.buffer) < smoothingWindow {
		s.mu.Unlock()
		return
	}

	var sumGamma, sumBeta float64
	for _, r := range s.buffer {
		sumGamma += r.Gamma
		sumBeta += r.Beta
	}
	avgGamma := sumGamma / smoothingWindow
	avgBeta := sumBeta / smoothingWindow

	prev := s.buffer[len(s.buffer)-2]
	if math.Abs(avgGamma-prev.Gamma) < smoothingDeadzone && math.Abs(avgBeta-prev.Beta) < smoothingDeadzone {
		s.mu.Unlock()
		return
	}
	s.mu.Unlock()

	// Tilting right (positive gamma) moves the cursor right.
	s.limiter.Call(cursor.Sample{
		X: 0.5 + (avgGamma/smoothingRange)*0.5,
		Y: 0.5 + ((avgBeta-smoothingBeta)/smoothingRange)*0.5,
	}.Clamp())
}

func (s *Smoothed) Flush() {
	s.limiter.Flush()
}

func (s *Smoothed) Close() {
	s.mu.Lock()
	s.closed = true
	s.buffer = nil
	s.mu.Unlock()

	s.limiter.Stop()
}
