/*
Copyright © 2026 Seednode <seednode@seedno.de>
*/

// Package cursor holds the shared cursor data model: normalized samples,
// peer identities, broadcast events and the remote cursor table.
package cursor

import (
	"crypto/rand"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"math/big"
	"strconv"
)

// EventName is the broadcast event carrying cursor positions.
const EventName = "realtime-cursor-move"

// MaxPeerID bounds randomly chosen peer ids.
const MaxPeerID = 100

var ErrMalformedEvent = errors.New("malformed cursor event")

// Sample is a resolution-independent pointer position in [0,1]².
type Sample struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
}

// Clamp returns s with both components forced into [0,1]. NaN maps to the center.
func (s Sample) Clamp() Sample {
	return Sample{X: clampUnit(s.X), Y: clampUnit(s.Y)}
}

// Center is the middle of the viewport.
func Center() Sample {
	return Sample{X: 0.5, Y: 0.5}
}

func clampUnit(v float64) float64 {
	switch {
	case math.IsNaN(v):
		return 0.5
	case v < 0:
		return 0
	case v > 1:
		return 1
	}
	return v
}

// PeerID disambiguates concurrently connected sessions. It is not globally
// unique; collisions resolve as last writer wins.
type PeerID int

func (id PeerID) Key() string {
	return strconv.Itoa(int(id))
}

// ParsePeerID reads a presence tracking key back into a PeerID.
func ParsePeerID(key string) (PeerID, bool) {
	n, err := strconv.Atoi(key)
	if err != nil {
		return 0, false
	}
	return PeerID(n), true
}

// RandomPeerID picks a process-local id in [0, MaxPeerID).
func RandomPeerID() PeerID {
	return PeerID(randomInt(MaxPeerID))
}

// RandomColor returns a bright hsl() color string with a random hue.
func RandomColor() string {
	return fmt.Sprintf("hsl(%d, 100%%, 70%%)", randomInt(360))
}

func randomInt(n int64) int64 {
	v, err := rand.Int(rand.Reader, big.NewInt(n))
	if err != nil {
		return 0
	}
	return v.Int64()
}

type Peer struct {
	ID   PeerID `json:"id"`
	Name string `json:"name"`
}

// Event is one broadcast cursor position. EmittedAtMs is the sender's wall
// clock and is diagnostic only.
type Event struct {
	Position    Sample `json:"position"`
	Peer        Peer   `json:"user"`
	Color       string `json:"color"`
	EmittedAtMs int64  `json:"timestamp"`
}

// NewEvent builds an event with a clamped position.
func NewEvent(pos Sample, peer Peer, color string, emittedAtMs int64) Event {
	return Event{
		Position:    pos.Clamp(),
		Peer:        peer,
		Color:       color,
		EmittedAtMs: emittedAtMs,
	}
}

func (e Event) Marshal() ([]byte, error) {
	return json.Marshal(e)
}

// wireEvent mirrors Event with pointer fields so missing keys can be told
// apart from zero values.
type wireEvent struct {
	Position *struct {
		X *float64 `json:"x"`
		Y *float64 `json:"y"`
	} `json:"position"`
	User *struct {
		ID   *int    `json:"id"`
		Name *string `json:"name"`
	} `json:"user"`
	Color     *string `json:"color"`
	Timestamp *int64  `json:"timestamp"`
}

// DecodeEvent validates a broadcast payload. Missing fields, wrong types and
// non-finite coordinates are rejected with ErrMalformedEvent; coordinates
// outside [0,1] are clamped.
func DecodeEvent(payload []byte) (Event, error) {
	var w wireEvent
	if err := json.Unmarshal(payload, &w); err != nil {
		return Event{}, fmt.Errorf("%w: %v", ErrMalformedEvent, err)
	}

	switch {
	case w.Position == nil || w.Position.X == nil || w.Position.Y == nil:
		return Event{}, fmt.Errorf("%w: missing position", ErrMalformedEvent)
	case w.User == nil || w.User.ID == nil || w.User.Name == nil:
		return Event{}, fmt.Errorf("%w: missing user", ErrMalformedEvent)
	case w.Color == nil:
		return Event{}, fmt.Errorf("%w: missing color", ErrMalformedEvent)
	case w.Timestamp == nil:
		return Event{}, fmt.Errorf("%w: missing timestamp", ErrMalformedEvent)
	}

	x, y := *w.Position.X, *w.Position.Y
	if math.IsNaN(x) || math.IsInf(x, 0) || math.IsNaN(y) || math.IsInf(y, 0) {
		return Event{}, fmt.Errorf("%w: non-finite position", ErrMalformedEvent)
	}

	return NewEvent(
		Sample{X: x, Y: y},
		Peer{ID: PeerID(*w.User.ID), Name: *w.User.Name},
		*w.Color,
		*w.Timestamp,
	), nil
}
