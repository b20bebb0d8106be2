/*
Copyright © 2026 Seednode <seednode@seedno.de>
*/

package main

import (
	"sync"
	"time"

	"github.com/Seednode/partycursor/channel"
	"github.com/gorilla/websocket"
)

const (
	clientBacklog = 64
	readLimit     = 4096
	writeWait     = 10 * time.Second
)

// Client is one websocket subscriber of a room.
type Client struct {
	conn *websocket.Conn
	send chan channel.Envelope
	addr string

	// key is the presence key the client tracked, owned by the hub goroutine.
	key string
}

type inbound struct {
	client *Client
	env    channel.Envelope
}

// link carries room traffic to and from other instances.
type link interface {
	Publish(env channel.Envelope)
	Close()
}

// Hub serializes everything that happens in one room on its run goroutine.
type Hub struct {
	id       string
	cfg      *Config
	maxPeers int

	clients map[*Client]bool
	// remote counts presence keys tracked on other instances.
	remote map[string]int
	link   link

	register chan *Client
	unreg    chan *Client
	inbound  chan inbound
	relayed  chan channel.Envelope
	quit     chan struct{}
	stopped  chan struct{}
	once     sync.Once

	mu         sync.RWMutex
	createdAt  time.Time
	lastActive time.Time
	peers      int
}

func newHub(cfg *Config, roomID string) *Hub {
	now := time.Now()
	return &Hub{
		id:         roomID,
		cfg:        cfg,
		maxPeers:   cfg.maxPeers,
		clients:    make(map[*Client]bool),
		remote:     make(map[string]int),
		register:   make(chan *Client),
		unreg:      make(chan *Client),
		inbound:    make(chan inbound),
		relayed:    make(chan channel.Envelope, clientBacklog),
		quit:       make(chan struct{}),
		stopped:    make(chan struct{}),
		createdAt:  now,
		lastActive: now,
	}
}

func (h *Hub) run() {
	defer close(h.stopped)

	for {
		select {
		case c := <-h.register:
			h.touch()
			h.join(c)

		case c := <-h.unreg:
			h.touch()
			h.remove(c)

		case in := <-h.inbound:
			h.touch()
			h.handle(in.client, in.env)

		case env := <-h.relayed:
			h.touch()
			h.handleRelayed(env)

		case <-h.quit:
			h.closeAll()
			return
		}
	}
}

func (h *Hub) touch() {
	h.mu.Lock()
	h.lastActive = time.Now()
	h.peers = len(h.clients)
	h.mu.Unlock()
}

// idleSince reports when the room last saw any traffic.
func (h *Hub) idleSince() time.Time {
	h.mu.RLock()
	defer h.mu.RUnlock()

	return h.lastActive
}

// Peers returns the number of connected subscribers as of the last event.
func (h *Hub) Peers() int {
	h.mu.RLock()
	defer h.mu.RUnlock()

	return h.peers
}

// shutdown closes the room, telling every subscriber the channel is closed.
func (h *Hub) shutdown() {
	h.once.Do(func() {
		close(h.quit)
	})
	<-h.stopped
}

// submit hands v to the hub unless it has shut down.
func submit[T any](h *Hub, ch chan T, v T) bool {
	select {
	case ch <- v:
		return true
	case <-h.quit:
		return false
	}
}

func (h *Hub) join(c *Client) {
	if len(h.clients) >= h.maxPeers {
		logf(h.cfg, "ROOMS: Rejected %s from %s, room is full (%d peers)", c.addr, h.id, len(h.clients))

		c.send <- channel.Envelope{
			Type:    channel.TypeStatus,
			Status:  channel.StatusChannelError,
			Message: "room is full",
		}
		close(c.send)

		return
	}

	h.clients[c] = true
	h.touch()

	logf(h.cfg, "ROOMS: %s joined %s (%d peers)", c.addr, h.id, len(h.clients))

	if !h.deliver(c, channel.Envelope{Type: channel.TypeStatus, Status: channel.StatusSubscribed}) {
		h.remove(c)
		return
	}

	seen := make(map[string]bool)
	for other := range h.clients {
		if other != c && other.key != "" {
			seen[other.key] = true
		}
	}
	for key := range h.remote {
		seen[key] = true
	}
	for key := range seen {
		if !h.deliver(c, channel.Envelope{Type: channel.TypePresenceJoin, Key: key}) {
			h.remove(c)
			return
		}
	}
}

func (h *Hub) handle(c *Client, env channel.Envelope) {
	if !h.clients[c] {
		return
	}

	switch env.Type {
	case channel.TypeBroadcast:
		out := channel.Envelope{Type: channel.TypeBroadcast, Event: env.Event, Payload: env.Payload}
		h.fanout(c, out)
		h.publish(out)

	case channel.TypeTrack:
		if env.Key == "" || env.Key == c.key {
			return
		}
		if c.key != "" {
			h.announce(c, channel.TypePresenceLeave, c.key)
		}
		c.key = env.Key
		h.announce(c, channel.TypePresenceJoin, c.key)

		logf(h.cfg, "ROOMS: %s tracked as %q in %s", c.addr, c.key, h.id)
	}
}

func (h *Hub) handleRelayed(env channel.Envelope) {
	switch env.Type {
	case channel.TypeBroadcast:
	case channel.TypePresenceJoin:
		h.remote[env.Key]++
	case channel.TypePresenceLeave:
		if h.remote[env.Key] <= 1 {
			delete(h.remote, env.Key)
		} else {
			h.remote[env.Key]--
		}
	default:
		return
	}

	h.fanout(nil, env)
}

// announce tells every other subscriber, here and on other instances, that
// c's presence changed.
func (h *Hub) announce(c *Client, kind, key string) {
	env := channel.Envelope{Type: kind, Key: key}
	h.fanout(c, env)
	h.publish(env)
}

func (h *Hub) publish(env channel.Envelope) {
	if h.link != nil {
		h.link.Publish(env)
	}
}

// fanout sends env to every client except skip, evicting any that cannot
// keep up.
func (h *Hub) fanout(skip *Client, env channel.Envelope) {
	var slow []*Client
	for c := range h.clients {
		if c == skip {
			continue
		}
		if !h.deliver(c, env) {
			slow = append(slow, c)
		}
	}

	for _, c := range slow {
		logf(h.cfg, "ROOMS: Dropping slow client %s from %s", c.addr, h.id)
		h.remove(c)
	}
}

func (h *Hub) deliver(c *Client, env channel.Envelope) bool {
	select {
	case c.send <- env:
		return true
	default:
		return false
	}
}

func (h *Hub) remove(c *Client) {
	if _, ok := h.clients[c]; !ok {
		return
	}

	delete(h.clients, c)
	close(c.send)
	h.touch()

	logf(h.cfg, "ROOMS: %s left %s (%d peers)", c.addr, h.id, len(h.clients))

	if c.key != "" {
		h.announce(c, channel.TypePresenceLeave, c.key)
	}
}

func (h *Hub) closeAll() {
	for c := range h.clients {
		h.deliver(c, channel.Envelope{
			Type:    channel.TypeStatus,
			Status:  channel.StatusClosed,
			Message: "room closed",
		})
		close(c.send)
		delete(h.clients, c)
	}

	if h.link != nil {
		h.link.Close()
	}

	h.touch()
}

func (c *Client) readPump(h *Hub) {
	defer func() {
		submit(h, h.unreg, c)
		_ = c.conn.Close()
	}()

	c.conn.SetReadLimit(readLimit)

	for {
		var env channel.Envelope
		if err := c.conn.ReadJSON(&env); err != nil {
			return
		}

		switch env.Type {
		case channel.TypeBroadcast, channel.TypeTrack:
			if !submit(h, h.inbound, inbound{client: c, env: env}) {
				return
			}
		default:
			// ignore unknown types
		}
	}
}

func (c *Client) writePump() {
	defer c.conn.Close()

	for env := range c.send {
		_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
		if err := c.conn.WriteJSON(env); err != nil {
			return
		}
	}

	_ = c.conn.WriteControl(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
		time.Now().Add(writeWait))
}
