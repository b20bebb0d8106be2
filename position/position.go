/*
Copyright © 2026 Seednode <seednode@seedno.de>
*/

// Package position turns raw local input into normalized cursor samples.
//
// Two strategies sit behind the Source contract: Pointer normalizes pointer
// motion against the viewport, and Orientation drives a joystick-like cursor
// from device tilt. Both hand their samples to a throttle before emitting.
package position

import (
	"errors"
	"fmt"
	"regexp"
	"time"

	"github.com/Seednode/partycursor/clock"
	"github.com/Seednode/partycursor/cursor"
	"github.com/Seednode/partycursor/throttle"
)

const (
	DefaultSensitivity = 30.0
	DefaultDeadzone    = 1.0
)

var ErrUnsupportedCapability = errors.New("browser or device does not support orientation events")

var mobileAgents = regexp.MustCompile(`(?i)Android|webOS|iPhone|iPad|iPod|BlackBerry|IEMobile|Opera Mini`)

// Input is a local input event. It is one of PointerMove or Tilt.
type Input interface {
	input()
}

// PointerMove is a pointer position in client coordinates along with the
// viewport it was measured against.
type PointerMove struct {
	X, Y          float64
	Width, Height float64
}

// Tilt is a device orientation reading in degrees. Gamma is left/right tilt
// and Beta front/back tilt; an axis the device did not report is NaN.
type Tilt struct {
	Gamma, Beta float64
}

func (PointerMove) input() {}
func (Tilt) input()        {}

// Source produces samples when local input changes.
type Source interface {
	Handle(in Input)
	// Flush emits a sample the throttle is still holding back.
	Flush()
	Close()
}

type Strategy int

const (
	StrategyPointer Strategy = iota
	StrategyOrientation
	StrategySmoothed
)

func (s Strategy) String() string {
	switch s {
	case StrategyPointer:
		return "pointer"
	case StrategyOrientation:
		return "orientation"
	case StrategySmoothed:
		return "smoothed"
	}
	return fmt.Sprintf("strategy(%d)", int(s))
}

// ParseStrategy reads a strategy name as printed by String.
func ParseStrategy(name string) (Strategy, error) {
	for _, s := range []Strategy{StrategyPointer, StrategyOrientation, StrategySmoothed} {
		if s.String() == name {
			return s, nil
		}
	}
	return 0, fmt.Errorf("unknown input strategy %q", name)
}

// IsMobile reports whether a user agent looks like a phone or tablet.
func IsMobile(userAgent string) bool {
	return mobileAgents.MatchString(userAgent)
}

// SelectStrategy picks tilt input for mobile user agents and pointer input
// for everything else.
func SelectStrategy(userAgent string) Strategy {
	if IsMobile(userAgent) {
		return StrategyOrientation
	}
	return StrategyPointer
}

// Capabilities describes what the local device can sense.
type Capabilities struct {
	Orientation bool
}

type Options struct {
	Strategy     Strategy
	Capabilities Capabilities

	// Throttle caps the emission rate. Zero means throttle.DefaultDelay.
	Throttle time.Duration

	// Sensitivity is the tilt, in degrees, that traverses a full axis.
	Sensitivity float64

	// Deadzone is the tilt, in degrees, treated as no tilt at all.
	Deadzone float64

	Clock clock.Clock
}

func (o Options) withDefaults() Options {
	if o.Throttle == 0 {
		o.Throttle = throttle.DefaultDelay
	}
	if o.Sensitivity <= 0 {
		o.Sensitivity = DefaultSensitivity
	}
	if o.Deadzone < 0 {
		o.Deadzone = 0
	}
	if o.Clock == nil {
		o.Clock = clock.Real()
	}
	return o
}

func (o Options) limiter(emit func(cursor.Sample)) *throttle.Throttler[cursor.Sample] {
	return throttle.New(o.Throttle, emit, throttle.WithClock(o.Clock))
}

// New builds the Source for opts.Strategy. Orientation-based strategies fail
// with ErrUnsupportedCapability when the device cannot sense tilt.
func New(opts Options, emit func(cursor.Sample)) (Source, error) {
	switch opts.Strategy {
	case StrategyPointer:
		return NewPointer(opts, emit), nil
	case StrategyOrientation:
		o, err := NewOrientation(opts, emit)
		if err != nil {
			return nil, err
		}
		return o, nil
	case StrategySmoothed:
		s, err := NewSmoothed(opts, emit)
		if err != nil {
			return nil, err
		}
		return s, nil
	}
	return nil, fmt.Errorf("unknown input strategy %d", int(opts.Strategy))
}
