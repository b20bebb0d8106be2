/*
Copyright © 2026 Seednode <seednode@seedno.de>
*/

package main

import (
	"context"
	"crypto/rand"
	"regexp"
	"sync"
	"time"
)

const roomIDLength = 8

var validRoom = regexp.MustCompile(`^[A-Za-z0-9_-]{1,64}$`)

// RoomManager holds a set of hubs keyed by room name, so each
// $prefix/room/$room is its own isolated channel.
type RoomManager struct {
	cfg         *Config
	relay       *Relay
	idleTimeout time.Duration

	mu   sync.Mutex
	hubs map[string]*Hub
}

func newRoomManager(cfg *Config, relay *Relay) *RoomManager {
	return &RoomManager{
		cfg:         cfg,
		relay:       relay,
		idleTimeout: cfg.roomTimeout,
		hubs:        make(map[string]*Hub),
	}
}

func (rm *RoomManager) getHub(room string) *Hub {
	rm.mu.Lock()
	defer rm.mu.Unlock()

	if hub, ok := rm.hubs[room]; ok {
		return hub
	}

	hub := newHub(rm.cfg, room)
	if rm.relay != nil {
		hub.link = rm.relay.Attach(hub)
	}
	rm.hubs[room] = hub
	go hub.run()

	logf(rm.cfg, "ROOMS: Opened %s", room)

	return hub
}

// Rooms returns the number of open rooms.
func (rm *RoomManager) Rooms() int {
	rm.mu.Lock()
	defer rm.mu.Unlock()

	return len(rm.hubs)
}

// newRoomID generates a crypto-random room name that no open room uses.
func (rm *RoomManager) newRoomID() string {
	const letters = "ABCDEFGHIJKLMNOPQRSTUVWXYZabcdefghijklmnopqrstuvwxyz0123456789"
	for {
		buf := make([]byte, roomIDLength)
		if _, err := rand.Read(buf); err != nil {
			panic("crypto/rand failure: " + err.Error())
		}
		out := make([]byte, roomIDLength)
		for i := range out {
			out[i] = letters[int(buf[i])%len(letters)]
		}
		id := string(out)

		rm.mu.Lock()
		_, exists := rm.hubs[id]
		rm.mu.Unlock()

		if !exists {
			return id
		}
	}
}

// reaperLoop closes idle rooms until ctx is done.
func (rm *RoomManager) reaperLoop(ctx context.Context) {
	if rm.idleTimeout <= 0 {
		return
	}

	ticker := time.NewTicker(rm.idleTimeout / 2)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case now := <-ticker.C:
			rm.reap(now.Add(-rm.idleTimeout))
		}
	}
}

// reap closes every room that has been idle since before cutoff and
// returns how many it closed.
func (rm *RoomManager) reap(cutoff time.Time) int {
	var idle []*Hub

	rm.mu.Lock()
	for id, hub := range rm.hubs {
		if hub.idleSince().Before(cutoff) {
			delete(rm.hubs, id)
			idle = append(idle, hub)
		}
	}
	rm.mu.Unlock()

	for _, hub := range idle {
		hub.shutdown()
		logf(rm.cfg, "ROOMS: Closed idle room %s after %s", hub.id, time.Since(hub.createdAt).Round(time.Second))
	}

	return len(idle)
}

// closeAll shuts every room down.
func (rm *RoomManager) closeAll() {
	rm.mu.Lock()
	hubs := make([]*Hub, 0, len(rm.hubs))
	for id, hub := range rm.hubs {
		hubs = append(hubs, hub)
		delete(rm.hubs, id)
	}
	rm.mu.Unlock()

	for _, hub := range hubs {
		hub.shutdown()
	}
}
