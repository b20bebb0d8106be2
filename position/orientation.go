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

type calibration struct {
	gamma0, beta0 float64
}

// Orientation is a relative, joystick-like tilt control. The first valid
// reading becomes the zero point and emits nothing; every later reading
// nudges the cursor by its offset from that zero point, saturating at the
// viewport edges.
type Orientation struct {
	mu          sync.Mutex
	sensitivity float64
	deadzone    float64
	calib       *calibration
	pos         cursor.Sample
	closed      bool

	limiter *throttle.Throttler[cursor.Sample]
}

func NewOrientation(opts Options, emit func(cursor.Sample)) (*Orientation, error) {
	if !opts.Capabilities.Orientation {
		return nil, ErrUnsupportedCapability
	}
	opts = opts.withDefaults()

	return &Orientation{
		sensitivity: opts.Sensitivity,
		deadzone:    opts.Deadzone,
		pos:         cursor.Center(),
		limiter:     opts.limiter(emit),
	}, nil
}

func (o *Orientation) Handle(in Input) {
	t, ok := in.(Tilt)
	if !ok || !validTilt(t) {
		return
	}

	o.mu.Lock()
	if o.closed {
		o.mu.Unlock()
		return
	}
	if o.calib == nil {
		o.calib = &calibration{gamma0: t.Gamma, beta0: t.Beta}
		o.mu.Unlock()
		return
	}

	dGamma := o.applyDeadzone(t.Gamma - o.calib.gamma0)
	dBeta := o.applyDeadzone(t.Beta - o.calib.beta0)

	o.pos = cursor.Sample{
		X: o.pos.X + dGamma/o.sensitivity,
		Y: o.pos.Y + dBeta/o.sensitivity,
	}.Clamp()
	s := o.pos
	o.mu.Unlock()

	o.limiter.Call(s)
}

// Calibrated reports whether the zero point has been captured.
func (o *Orientation) Calibrated() bool {
	o.mu.Lock()
	defer o.mu.Unlock()

	return o.calib != nil
}

// Position returns the accumulated position, which may be ahead of the last
// emitted sample while the throttle holds it back.
func (o *Orientation) Position() cursor.Sample {
	o.mu.Lock()
	defer o.mu.Unlock()

	return o.pos
}

func (o *Orientation) Flush() {
	o.limiter.Flush()
}

// Close drops the calibration and any pending emission.
func (o *Orientation) Close() {
	o.mu.Lock()
	o.closed = true
	o.calib = nil
	o.mu.Unlock()

	o.limiter.Stop()
}

func (o *Orientation) applyDeadzone(delta float64) float64 {
	if math.Abs(delta) < o.deadzone {
		return 0
	}
	return delta
}

func validTilt(t Tilt) bool {
	return !math.IsNaN(t.Gamma) && !math.IsNaN(t.Beta) &&
		!math.IsInf(t.Gamma, 0) && !math.IsInf(t.Beta, 0)
}
