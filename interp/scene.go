/*
Copyright © 2026 Seednode <seednode@seedno.de>
*/

package interp

import (
	"time"

	"github.com/Seednode/partycursor/cursor"
)

// Cursor is what the renderer paints for one peer on one frame.
type Cursor struct {
	ScreenX, ScreenY float64
	Color            string
	Name             string
}

type peer struct {
	ip   *Interpolator
	last cursor.Event
}

// Scene keeps one Interpolator per remote peer, in normalized coordinates,
// and produces screen coordinates on demand.
type Scene struct {
	opts  Options
	peers map[cursor.PeerID]*peer
}

func NewScene(opts Options) *Scene {
	return &Scene{
		opts:  opts,
		peers: make(map[cursor.PeerID]*peer),
	}
}

// Sync reconciles the scene with a table snapshot received at now. New
// peers get an interpolator, changed events become new points, and peers
// missing from the snapshot are stopped and dropped.
func (s *Scene) Sync(snapshot map[cursor.PeerID]cursor.Event, now time.Time) {
	for id, p := range s.peers {
		if _, ok := snapshot[id]; !ok {
			p.ip.Stop()
			delete(s.peers, id)
		}
	}

	for id, e := range snapshot {
		p, ok := s.peers[id]
		if !ok {
			p = &peer{ip: New(s.opts)}
			s.peers[id] = p
		} else if p.last == e {
			continue
		}
		p.last = e
		p.ip.Add(Point{X: e.Position.X, Y: e.Position.Y}, now)
	}
}

// Frame advances every interpolator to now and maps positions onto a
// viewport of the given size.
func (s *Scene) Frame(now time.Time, width, height float64) map[cursor.PeerID]Cursor {
	out := make(map[cursor.PeerID]Cursor, len(s.peers))
	for id, p := range s.peers {
		pt := p.ip.Tick(now)
		out[id] = Cursor{
			ScreenX: pt.X * width,
			ScreenY: pt.Y * height,
			Color:   p.last.Color,
			Name:    p.last.Peer.Name,
		}
	}

	return out
}

// Interpolator returns the interpolator for a peer, if it is in the scene.
func (s *Scene) Interpolator(id cursor.PeerID) (*Interpolator, bool) {
	p, ok := s.peers[id]
	if !ok {
		return nil, false
	}
	return p.ip, true
}

func (s *Scene) Len() int {
	return len(s.peers)
}

// Close stops every interpolator.
func (s *Scene) Close() {
	for id, p := range s.peers {
		p.ip.Stop()
		delete(s.peers, id)
	}
}
