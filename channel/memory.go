/*
Copyright © 2026 Seednode <seednode@seedno.de>
*/

package channel

import (
	"context"
	"sync"
)

// Bus is an in-process room broker. Nothing is delivered until Drain runs
// the queued callbacks, one at a time and in order, on the caller's
// goroutine, which makes join/leave/broadcast sequences replayable.
type Bus struct {
	mu     sync.Mutex
	rooms  map[string]map[*Memory]struct{}
	failed map[string]Status
	queue  []delivery
}

type delivery struct {
	to    *Memory
	force bool
	fn    func(Handlers)
}

func NewBus() *Bus {
	return &Bus{
		rooms:  make(map[string]map[*Memory]struct{}),
		failed: make(map[string]Status),
	}
}

// Transport returns a new, unsubscribed member of room.
func (b *Bus) Transport(room string) *Memory {
	return &Memory{bus: b, room: room}
}

// FailRoom makes every later subscription to room end with status.
func (b *Bus) FailRoom(room string, status Status) {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.failed[room] = status
}

// Members returns the number of subscribers in room.
func (b *Bus) Members(room string) int {
	b.mu.Lock()
	defer b.mu.Unlock()

	return len(b.rooms[room])
}

// Leave announces that key left room, as a transport eventually does for a
// member that vanished without unsubscribing.
func (b *Bus) Leave(room, key string) {
	b.mu.Lock()
	defer b.mu.Unlock()

	for m := range b.rooms[room] {
		b.enqueueLocked(m, func(h Handlers) {
			h.Leave(key)
		})
	}
}

// Drain delivers queued callbacks until none remain and returns how many ran.
func (b *Bus) Drain() int {
	n := 0
	for {
		b.mu.Lock()
		if len(b.queue) == 0 {
			b.mu.Unlock()
			return n
		}
		d := b.queue[0]
		b.queue = b.queue[1:]
		live := d.force || d.to.subscribed
		h := d.to.h
		b.mu.Unlock()

		if live {
			d.fn(h)
			n++
		}
	}
}

func (b *Bus) enqueueLocked(to *Memory, fn func(Handlers)) {
	b.queue = append(b.queue, delivery{to: to, fn: fn})
}

func (b *Bus) othersLocked(m *Memory) []*Memory {
	out := make([]*Memory, 0, len(b.rooms[m.room]))
	for other := range b.rooms[m.room] {
		if other != m {
			out = append(out, other)
		}
	}
	return out
}

// Memory is one Bus member.
type Memory struct {
	bus        *Bus
	room       string
	h          Handlers
	key        string
	subscribed bool
}

func (m *Memory) Subscribe(_ context.Context, h Handlers) error {
	b := m.bus
	b.mu.Lock()
	defer b.mu.Unlock()

	m.h = h.withDefaults()

	if status, ok := b.failed[m.room]; ok {
		b.queue = append(b.queue, delivery{to: m, force: true, fn: func(h Handlers) {
			h.Status(status, nil)
		}})
		return nil
	}

	if b.rooms[m.room] == nil {
		b.rooms[m.room] = make(map[*Memory]struct{})
	}
	b.rooms[m.room][m] = struct{}{}
	m.subscribed = true

	b.enqueueLocked(m, func(h Handlers) {
		h.Status(StatusSubscribed, nil)
	})
	for _, other := range b.othersLocked(m) {
		if key := other.key; key != "" {
			b.enqueueLocked(m, func(h Handlers) {
				h.Join(key)
			})
		}
	}

	return nil
}

func (m *Memory) Broadcast(event string, payload []byte) error {
	b := m.bus
	b.mu.Lock()
	defer b.mu.Unlock()

	if !m.subscribed {
		return ErrNotSubscribed
	}

	data := append([]byte(nil), payload...)
	for _, other := range b.othersLocked(m) {
		b.enqueueLocked(other, func(h Handlers) {
			h.Broadcast(event, data)
		})
	}

	return nil
}

func (m *Memory) Track(key string) error {
	b := m.bus
	b.mu.Lock()
	defer b.mu.Unlock()

	if !m.subscribed {
		return ErrNotSubscribed
	}

	old := m.key
	m.key = key
	for _, other := range b.othersLocked(m) {
		if old != "" && old != key {
			b.enqueueLocked(other, func(h Handlers) {
				h.Leave(old)
			})
		}
		b.enqueueLocked(other, func(h Handlers) {
			h.Join(key)
		})
	}

	return nil
}

// Unsubscribe leaves the room and announces the departure.
func (m *Memory) Unsubscribe() error {
	m.drop(true)
	return nil
}

// Disconnect drops out of the room without a leave notification, the way
// a crashed client would.
func (m *Memory) Disconnect() {
	m.drop(false)
}

// Fail reports status to this member and removes it from the room.
func (m *Memory) Fail(status Status) {
	b := m.bus
	b.mu.Lock()
	defer b.mu.Unlock()

	b.queue = append(b.queue, delivery{to: m, force: true, fn: func(h Handlers) {
		h.Status(status, nil)
	}})
	m.removeLocked(true)
}

func (m *Memory) drop(announce bool) {
	b := m.bus
	b.mu.Lock()
	defer b.mu.Unlock()

	m.removeLocked(announce)
}

func (m *Memory) removeLocked(announce bool) {
	b := m.bus
	if !m.subscribed {
		return
	}

	key := m.key
	if announce && key != "" {
		for _, other := range b.othersLocked(m) {
			b.enqueueLocked(other, func(h Handlers) {
				h.Leave(key)
			})
		}
	}

	delete(b.rooms[m.room], m)
	if len(b.rooms[m.room]) == 0 {
		delete(b.rooms, m.room)
	}
	m.subscribed = false
	m.key = ""
}
