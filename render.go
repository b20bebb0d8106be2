/*
Copyright © 2026 Seednode <seednode@seedno.de>
*/

package main

import (
	"fmt"
	"math"
	"sync"
	"time"

	"github.com/Seednode/partycursor/cursor"
	"github.com/Seednode/partycursor/interp"
	"github.com/Seednode/partycursor/position"
	"github.com/gdamore/tcell/v2"
	"github.com/lucasb-eyer/go-colorful"
)

const (
	cursorGlyph  = '▲'
	inputBacklog = 256
)

// parseColor reads the hsl(H, S%, L%) strings peers pick for themselves.
func parseColor(s string) (colorful.Color, bool) {
	var h, sat, light float64
	if _, err := fmt.Sscanf(s, "hsl(%g, %g%%, %g%%)", &h, &sat, &light); err != nil {
		return colorful.Color{}, false
	}
	if math.IsNaN(h) || sat < 0 || sat > 100 || light < 0 || light > 100 {
		return colorful.Color{}, false
	}

	h = math.Mod(h, 360)
	if h < 0 {
		h += 360
	}

	return colorful.Hsl(h, sat/100, light/100).Clamped(), true
}

func styleFor(color string) tcell.Style {
	c, ok := parseColor(color)
	if !ok {
		return tcell.StyleDefault.Foreground(tcell.ColorWhite)
	}

	r, g, b := c.RGB255()
	return tcell.StyleDefault.Foreground(tcell.NewRGBColor(int32(r), int32(g), int32(b)))
}

// terminal draws remote cursors into a tcell screen and reports mouse motion
// as pointer input.
type terminal struct {
	screen tcell.Screen
	done   chan struct{}
	quit   sync.Once

	mu     sync.Mutex
	input  []position.Input
	notice string
}

func newTerminal() (*terminal, error) {
	screen, err := tcell.NewScreen()
	if err != nil {
		return nil, err
	}
	if err := screen.Init(); err != nil {
		return nil, err
	}

	return attachTerminal(screen), nil
}

// attachTerminal takes over an initialized screen.
func attachTerminal(screen tcell.Screen) *terminal {
	screen.EnableMouse()
	screen.HideCursor()
	screen.Clear()

	t := &terminal{
		screen: screen,
		done:   make(chan struct{}),
	}
	go t.events()

	return t
}

func isQuitKey(ev *tcell.EventKey) bool {
	switch ev.Key() {
	case tcell.KeyEscape, tcell.KeyCtrlC:
		return true
	case tcell.KeyRune:
		return ev.Rune() == 'q' || ev.Rune() == 'Q'
	}
	return false
}

func (t *terminal) events() {
	for {
		ev := t.screen.PollEvent()
		if ev == nil {
			return
		}

		switch ev := ev.(type) {
		case *tcell.EventMouse:
			x, y := ev.Position()
			w, h := t.screen.Size()

			t.mu.Lock()
			if len(t.input) < inputBacklog {
				t.input = append(t.input, position.PointerMove{
					X:      float64(x) + 0.5,
					Y:      float64(y) + 0.5,
					Width:  float64(w),
					Height: float64(max(h-1, 1)),
				})
			}
			t.mu.Unlock()

		case *tcell.EventKey:
			if isQuitKey(ev) {
				t.quit.Do(func() { close(t.done) })
			}

		case *tcell.EventResize:
			t.screen.Sync()
		}
	}
}

// Capabilities reports no orientation sensor; terminals only have a pointer.
func (t *terminal) Capabilities() position.Capabilities {
	return position.Capabilities{}
}

func (t *terminal) Size() (float64, float64) {
	w, h := t.screen.Size()
	return float64(w), float64(max(h-1, 1))
}

func (t *terminal) Poll(time.Time) []position.Input {
	t.mu.Lock()
	defer t.mu.Unlock()

	in := t.input
	t.input = nil

	return in
}

func (t *terminal) Done() <-chan struct{} {
	return t.done
}

func (t *terminal) Notice(msg string) {
	t.mu.Lock()
	t.notice = msg
	t.mu.Unlock()
}

func (t *terminal) Draw(frame map[cursor.PeerID]interp.Cursor, status string) {
	w, h := t.screen.Size()
	t.screen.Clear()

	for _, c := range sortedCursors(frame) {
		x := min(max(int(c.ScreenX), 0), w-1)
		y := min(max(int(c.ScreenY), 0), max(h-2, 0))
		style := styleFor(c.Color)

		t.screen.SetContent(x, y, cursorGlyph, nil, style)
		t.putString(x+2, y, c.Name, style)
	}

	t.mu.Lock()
	notice := t.notice
	t.mu.Unlock()

	line := status
	if notice != "" {
		line = notice + " | " + status
	}
	t.putString(0, h-1, line, tcell.StyleDefault.Reverse(true))

	t.screen.Show()
}

func (t *terminal) putString(x, y int, s string, style tcell.Style) {
	w, _ := t.screen.Size()
	for _, r := range s {
		if x >= w {
			return
		}
		t.screen.SetContent(x, y, r, nil, style)
		x++
	}
}

func (t *terminal) Close() {
	t.quit.Do(func() { close(t.done) })
	t.screen.Fini()
}

const (
	virtualWidth  = 1920
	virtualHeight = 1080
)

// headless moves a synthetic cursor and logs what it would have drawn.
type headless struct {
	cfg      *Config
	strategy position.Strategy
	start    time.Time

	now    time.Time
	logged time.Time
	frames int

	mu      sync.Mutex
	notices []string
}

func newHeadless(cfg *Config, strategy position.Strategy, start time.Time) *headless {
	return &headless{
		cfg:      cfg,
		strategy: strategy,
		start:    start,
	}
}

// Capabilities reports a tilt sensor, which the synthetic input provides.
func (hl *headless) Capabilities() position.Capabilities {
	return position.Capabilities{Orientation: true}
}

func (hl *headless) Size() (float64, float64) {
	return virtualWidth, virtualHeight
}

// Poll traces a circle with the pointer, or sways the device for tilt input.
func (hl *headless) Poll(now time.Time) []position.Input {
	hl.now = now
	t := now.Sub(hl.start).Seconds()

	if hl.strategy == position.StrategyPointer {
		return []position.Input{position.PointerMove{
			X:      (0.5 + 0.35*math.Cos(t)) * virtualWidth,
			Y:      (0.5 + 0.35*math.Sin(t)) * virtualHeight,
			Width:  virtualWidth,
			Height: virtualHeight,
		}}
	}

	return []position.Input{position.Tilt{
		Gamma: 10 * math.Sin(t),
		Beta:  80 + 10*math.Sin(t/2),
	}}
}

func (hl *headless) Done() <-chan struct{} {
	return nil
}

func (hl *headless) Notice(msg string) {
	hl.mu.Lock()
	hl.notices = append(hl.notices, msg)
	hl.mu.Unlock()

	logf(hl.cfg, "CLIENT: %s", msg)
}

func (hl *headless) Notices() []string {
	hl.mu.Lock()
	defer hl.mu.Unlock()

	return append([]string(nil), hl.notices...)
}

func (hl *headless) Draw(frame map[cursor.PeerID]interp.Cursor, status string) {
	hl.frames++

	if !hl.logged.IsZero() && hl.now.Sub(hl.logged) < time.Second {
		return
	}
	hl.logged = hl.now

	logf(hl.cfg, "CLIENT: Frame %d | %s | %s", hl.frames, status, describeFrame(frame))
}

func (hl *headless) Close() {
	logf(hl.cfg, "CLIENT: Drew %d frames in %s", hl.frames, hl.now.Sub(hl.start).Round(time.Millisecond))
}
