/*
Copyright © 2026 Seednode <seednode@seedno.de>
*/

package interp

import (
	"testing"

	"github.com/Seednode/partycursor/cursor"
)

func event(id cursor.PeerID, x, y float64, ts int64) cursor.Event {
	return cursor.NewEvent(cursor.Sample{X: x, Y: y}, cursor.Peer{ID: id, Name: "peer"}, "hsl(120, 100%, 70%)", ts)
}

func TestSceneFollowsSnapshots(t *testing.T) {
	s := NewScene(Options{})
	defer s.Close()

	s.Sync(map[cursor.PeerID]cursor.Event{1: event(1, 0.5, 0.5, 1)}, at(0))
	frame := s.Frame(at(0), 800, 600)
	if got := frame[1]; got.ScreenX != 400 || got.ScreenY != 300 || got.Name != "peer" {
		t.Fatalf("expected first point drawn at (400, 300), got %+v", got)
	}

	// Re-syncing an unchanged snapshot must not restart the animation.
	s.Sync(map[cursor.PeerID]cursor.Event{1: event(1, 0.5, 0.5, 1)}, at(50))
	ip, _ := s.Interpolator(1)
	if ip.History() != 1 {
		t.Fatalf("unchanged event should not be fed again, history %d", ip.History())
	}

	s.Sync(map[cursor.PeerID]cursor.Event{1: event(1, 1, 1, 2)}, at(100))
	mid := s.Frame(at(150), 800, 600)[1]
	if mid.ScreenX <= 400 || mid.ScreenX >= 800 {
		t.Fatalf("expected the cursor mid-flight, got %+v", mid)
	}

	end := s.Frame(at(1000), 800, 600)[1]
	if end.ScreenX != 800 || end.ScreenY != 600 {
		t.Fatalf("expected the cursor to settle on the new point, got %+v", end)
	}
}

func TestSceneDropsDepartedPeers(t *testing.T) {
	s := NewScene(Options{})

	s.Sync(map[cursor.PeerID]cursor.Event{
		1: event(1, 0.1, 0.1, 1),
		2: event(2, 0.9, 0.9, 1),
	}, at(0))
	ip, ok := s.Interpolator(2)
	if !ok {
		t.Fatalf("expected interpolator for peer 2")
	}

	s.Sync(map[cursor.PeerID]cursor.Event{1: event(1, 0.1, 0.1, 1)}, at(10))
	if s.Len() != 1 {
		t.Fatalf("expected one peer left, got %d", s.Len())
	}
	if !ip.Stopped() {
		t.Fatalf("departed peer's interpolator must be stopped")
	}
	if _, ok := s.Frame(at(20), 100, 100)[2]; ok {
		t.Fatalf("departed peer still rendered")
	}

	remaining, _ := s.Interpolator(1)
	s.Close()
	if s.Len() != 0 || !remaining.Stopped() {
		t.Fatalf("close must stop and drop every interpolator")
	}
}
