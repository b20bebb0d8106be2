/*
Copyright © 2026 Seednode <seednode@seedno.de>
*/

// Package channel owns the lifecycle of one cursor room: joining, presence,
// sending and receiving cursor broadcasts, and leaving.
package channel

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"

	"github.com/Seednode/partycursor/clock"
	"github.com/Seednode/partycursor/cursor"
)

var (
	ErrUnauthenticated = errors.New("identity is not authenticated")
	ErrNotIdle         = errors.New("session has already joined")
)

type State int

const (
	StateIdle State = iota
	StateJoining
	StateSubscribed
	// StateFailed is an idle session whose subscription failed. It stays
	// inert until its owner replaces it.
	StateFailed
	StateLeft
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateJoining:
		return "joining"
	case StateSubscribed:
		return "subscribed"
	case StateFailed:
		return "failed"
	case StateLeft:
		return "left"
	}
	return fmt.Sprintf("state(%d)", int(s))
}

// Identity is supplied by whatever handles sign-in.
type Identity struct {
	Authenticated bool
	DisplayName   string
}

// Stats counts inbound traffic the session dropped or applied.
type Stats struct {
	Applied   int
	Malformed int
	SelfEcho  int
	Departed  int
}

type Option func(*Session)

// WithPeerID fixes the peer id instead of picking a random one.
func WithPeerID(id cursor.PeerID) Option {
	return func(s *Session) {
		s.peer.ID = id
	}
}

func WithColor(color string) Option {
	return func(s *Session) {
		s.color = color
	}
}

func WithClock(c clock.Clock) Option {
	return func(s *Session) {
		s.clock = c
	}
}

// WithOnChange registers a callback run after every table mutation.
func WithOnChange(f func()) Option {
	return func(s *Session) {
		s.onChange = f
	}
}

// WithOnStatus registers a callback run for every subscription status.
func WithOnStatus(f func(Status, error)) Option {
	return func(s *Session) {
		s.onStatus = f
	}
}

// Session is one subscription to a room. It is safe for concurrent use.
type Session struct {
	// sendMu orders outbound broadcasts. It is taken before mu.
	sendMu sync.Mutex
	mu     sync.Mutex

	transport Transport
	// outbound is the transport while it can be trusted to deliver, nil
	// otherwise.
	outbound Transport

	state State
	peer  cursor.Peer
	color string
	clock clock.Clock

	table *cursor.Table
	last  *cursor.Event
	stats Stats

	onChange func()
	onStatus func(Status, error)
}

// NewSession prepares a session on t. It does not touch the transport
// until Join.
func NewSession(t Transport, id Identity, opts ...Option) (*Session, error) {
	if !id.Authenticated {
		return nil, ErrUnauthenticated
	}

	s := &Session{
		transport: t,
		peer: cursor.Peer{
			ID:   cursor.RandomPeerID(),
			Name: strings.TrimSpace(id.DisplayName),
		},
		color:    cursor.RandomColor(),
		clock:    clock.Real(),
		table:    cursor.NewTable(),
		onChange: func() {},
		onStatus: func(Status, error) {},
	}
	for _, opt := range opts {
		opt(s)
	}

	return s, nil
}

// Join attaches handlers and subscribes.
func (s *Session) Join(ctx context.Context) error {
	s.mu.Lock()
	if s.state != StateIdle {
		s.mu.Unlock()
		return ErrNotIdle
	}
	s.state = StateJoining
	t := s.transport
	s.mu.Unlock()

	err := t.Subscribe(ctx, Handlers{
		Broadcast: s.handleBroadcast,
		Join:      s.handleJoin,
		Leave:     s.handleLeave,
		Status:    s.handleStatus,
	})
	if err != nil {
		err = fmt.Errorf("%w: %w", ErrSubscriptionFailed, err)
		s.fail(StatusChannelError, err)

		return err
	}

	return nil
}

// Send broadcasts the local cursor at sample. The event is remembered as the
// last outbound payload even when the session cannot deliver it, so it can
// be announced once subscribed. Delivery is best effort.
func (s *Session) Send(sample cursor.Sample) {
	e := cursor.NewEvent(sample, s.peer, s.color, s.clock.Now().UnixMilli())

	s.sendMu.Lock()
	defer s.sendMu.Unlock()

	s.mu.Lock()
	if s.state == StateLeft {
		s.mu.Unlock()
		return
	}
	s.last = &e
	out := s.outbound
	s.mu.Unlock()

	if out == nil {
		return
	}
	broadcast(out, e)
}

// resend broadcasts the newest outbound payload, if any. Holding sendMu
// while reading it keeps a concurrent Send from being overtaken by an older
// event.
func (s *Session) resend() {
	s.sendMu.Lock()
	defer s.sendMu.Unlock()

	s.mu.Lock()
	out, last := s.outbound, s.last
	s.mu.Unlock()

	if out == nil || last == nil {
		return
	}
	broadcast(out, *last)
}

// Leave unsubscribes and clears all remote state. It is safe to call more
// than once.
func (s *Session) Leave() error {
	s.mu.Lock()
	if s.state == StateLeft {
		s.mu.Unlock()
		return nil
	}
	wasActive := s.state != StateIdle
	s.state = StateLeft
	s.outbound = nil
	s.table.Clear()
	t := s.transport
	s.mu.Unlock()

	s.onChange()

	if !wasActive {
		return nil
	}
	return t.Unsubscribe()
}

// Snapshot returns a copy of the remote cursor table.
func (s *Session) Snapshot() map[cursor.PeerID]cursor.Event {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.table.Snapshot()
}

func (s *Session) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.state
}

func (s *Session) Peer() cursor.Peer {
	return s.peer
}

func (s *Session) Color() string {
	return s.color
}

// LastPayload returns the most recent outbound event, if any.
func (s *Session) LastPayload() (cursor.Event, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.last == nil {
		return cursor.Event{}, false
	}
	return *s.last, true
}

func (s *Session) Stats() Stats {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.stats
}

func (s *Session) handleStatus(status Status, err error) {
	if status != StatusSubscribed {
		if err == nil {
			err = fmt.Errorf("%w: %s", ErrSubscriptionFailed, status)
		} else if !errors.Is(err, ErrSubscriptionFailed) {
			err = fmt.Errorf("%w: %s: %w", ErrSubscriptionFailed, status, err)
		}
		s.fail(status, err)

		return
	}

	s.mu.Lock()
	if s.state != StateJoining {
		s.mu.Unlock()
		return
	}
	s.state = StateSubscribed
	s.outbound = s.transport
	out := s.outbound
	s.mu.Unlock()

	_ = out.Track(s.peer.ID.Key())
	s.resend()

	s.onStatus(status, nil)
}

// fail resets local state after the channel stopped being trustworthy.
func (s *Session) fail(status Status, err error) {
	s.mu.Lock()
	if s.state == StateLeft || s.state == StateFailed {
		s.mu.Unlock()
		return
	}
	s.state = StateFailed
	s.outbound = nil
	s.table.Clear()
	s.mu.Unlock()

	s.onChange()
	s.onStatus(status, err)
}

func (s *Session) handleBroadcast(event string, payload []byte) {
	if event != cursor.EventName {
		return
	}

	e, err := cursor.DecodeEvent(payload)

	s.mu.Lock()
	if s.state != StateSubscribed {
		s.mu.Unlock()
		return
	}
	switch {
	case err != nil:
		s.stats.Malformed++
		s.mu.Unlock()
		return
	case e.Peer.ID == s.peer.ID:
		s.stats.SelfEcho++
		s.mu.Unlock()
		return
	}
	s.table.Upsert(e)
	s.stats.Applied++
	s.mu.Unlock()

	s.onChange()
}

func (s *Session) handleLeave(key string) {
	id, ok := cursor.ParsePeerID(key)
	if !ok {
		return
	}

	s.mu.Lock()
	removed := s.table.Remove(id)
	if removed {
		s.stats.Departed++
	}
	s.mu.Unlock()

	if removed {
		s.onChange()
	}
}

// handleJoin re-announces the last outbound payload so a late joiner sees
// this cursor without waiting for the next move.
func (s *Session) handleJoin(key string) {
	if key == s.peer.ID.Key() {
		return
	}

	s.resend()
}

func broadcast(t Transport, e cursor.Event) {
	data, err := e.Marshal()
	if err != nil {
		return
	}
	_ = t.Broadcast(cursor.EventName, data)
}
