/*
Copyright © 2026 Seednode <seednode@seedno.de>
*/

package position

import (
	"github.com/Seednode/partycursor/cursor"
	"github.com/Seednode/partycursor/throttle"
)

// Pointer normalizes pointer motion by the viewport size.
type Pointer struct {
	limiter *throttle.Throttler[cursor.Sample]
}

func NewPointer(opts Options, emit func(cursor.Sample)) *Pointer {
	opts = opts.withDefaults()

	return &Pointer{limiter: opts.limiter(emit)}
}

func (p *Pointer) Handle(in Input) {
	m, ok := in.(PointerMove)
	if !ok || m.Width <= 0 || m.Height <= 0 {
		return
	}

	p.limiter.Call(cursor.Sample{X: m.X / m.Width, Y: m.Y / m.Height}.Clamp())
}

func (p *Pointer) Flush() {
	p.limiter.Flush()
}

func (p *Pointer) Close() {
	p.limiter.Stop()
}
