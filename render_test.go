/*
Copyright © 2026 Seednode <seednode@seedno.de>
*/

package main

import (
	"strings"
	"testing"
	"time"

	"github.com/Seednode/partycursor/cursor"
	"github.com/Seednode/partycursor/interp"
	"github.com/Seednode/partycursor/position"
	"github.com/gdamore/tcell/v2"
)

func newSimulatedTerminal(t *testing.T) (*terminal, tcell.SimulationScreen) {
	t.Helper()

	screen := tcell.NewSimulationScreen("UTF-8")
	if err := screen.Init(); err != nil {
		t.Fatalf("init screen: %v", err)
	}
	screen.SetSize(40, 10)

	view := attachTerminal(screen)
	t.Cleanup(view.Close)

	return view, screen
}

func rowText(screen tcell.Screen, y, from, n int) string {
	var b strings.Builder
	for x := from; x < from+n; x++ {
		r, _, _, _ := screen.GetContent(x, y)
		b.WriteRune(r)
	}
	return b.String()
}

func TestTerminalDraw(t *testing.T) {
	view, screen := newSimulatedTerminal(t)

	if w, h := view.Size(); w != 40 || h != 9 {
		t.Fatalf("expected a 40x9 drawing area, got %vx%v", w, h)
	}

	view.Notice("hello")
	view.Draw(map[cursor.PeerID]interp.Cursor{
		1: {ScreenX: 3.7, ScreenY: 2.2, Color: "hsl(120, 100%, 70%)", Name: "ann"},
		// Off-screen cursors are pinned to the edge of the drawing area.
		2: {ScreenX: 500, ScreenY: 500, Color: "not a color", Name: "zed"},
	}, "lobby | subscribed")

	r, _, style, _ := screen.GetContent(3, 2)
	if r != cursorGlyph {
		t.Fatalf("expected cursor glyph at (3, 2), got %q", r)
	}
	if fg, _, _ := style.Decompose(); fg != tcell.NewRGBColor(102, 255, 102) {
		t.Fatalf("unexpected cursor color %v", fg)
	}
	if got := rowText(screen, 2, 5, 3); got != "ann" {
		t.Fatalf("expected name next to cursor, got %q", got)
	}

	if r, _, _, _ := screen.GetContent(39, 8); r != cursorGlyph {
		t.Fatalf("expected clamped cursor at (39, 8), got %q", r)
	}

	if got := rowText(screen, 9, 0, 26); got != "hello | lobby | subscribed" {
		t.Fatalf("unexpected status line %q", got)
	}
}

func TestTerminalMouseInput(t *testing.T) {
	view, screen := newSimulatedTerminal(t)

	screen.InjectMouse(5, 2, tcell.ButtonNone, tcell.ModNone)

	var got []position.Input
	eventually(t, "mouse input", func() bool {
		got = append(got, view.Poll(time.Now())...)
		return len(got) > 0
	})

	want := position.PointerMove{X: 5.5, Y: 2.5, Width: 40, Height: 9}
	if got[0] != want {
		t.Fatalf("expected %+v, got %+v", want, got[0])
	}
	if len(view.Poll(time.Now())) != 0 {
		t.Fatalf("poll did not consume input")
	}
}

func TestTerminalQuitKey(t *testing.T) {
	view, screen := newSimulatedTerminal(t)

	screen.InjectKey(tcell.KeyRune, 'x', tcell.ModNone)
	screen.InjectKey(tcell.KeyRune, 'q', tcell.ModNone)

	select {
	case <-view.Done():
	case <-time.After(2 * time.Second):
		t.Fatalf("q did not end the session")
	}
}

func TestIsQuitKey(t *testing.T) {
	tests := []struct {
		ev   *tcell.EventKey
		quit bool
	}{
		{tcell.NewEventKey(tcell.KeyEscape, 0, tcell.ModNone), true},
		{tcell.NewEventKey(tcell.KeyCtrlC, 0, tcell.ModCtrl), true},
		{tcell.NewEventKey(tcell.KeyRune, 'q', tcell.ModNone), true},
		{tcell.NewEventKey(tcell.KeyRune, 'Q', tcell.ModShift), true},
		{tcell.NewEventKey(tcell.KeyRune, 'w', tcell.ModNone), false},
		{tcell.NewEventKey(tcell.KeyEnter, 0, tcell.ModNone), false},
	}

	for _, tt := range tests {
		if got := isQuitKey(tt.ev); got != tt.quit {
			t.Errorf("isQuitKey(%s) = %v, want %v", tt.ev.Name(), got, tt.quit)
		}
	}
}

func TestParseColor(t *testing.T) {
	c, ok := parseColor("hsl(120, 100%, 70%)")
	if !ok {
		t.Fatalf("failed to parse a peer color")
	}
	if r, g, b := c.RGB255(); r != 102 || g != 255 || b != 102 {
		t.Fatalf("expected (102, 255, 102), got (%d, %d, %d)", r, g, b)
	}

	wrapped, ok := parseColor("hsl(-240, 100%, 70%)")
	if !ok {
		t.Fatalf("failed to parse a negative hue")
	}
	if wrapped.Hex() != c.Hex() {
		t.Fatalf("negative hue did not wrap: %s vs %s", wrapped.Hex(), c.Hex())
	}

	for _, bad := range []string{"", "red", "#ff0000", "hsl(120, 140%, 70%)", "hsl(120, 100%, -1%)"} {
		if _, ok := parseColor(bad); ok {
			t.Errorf("parseColor(%q) succeeded", bad)
		}
	}
}
