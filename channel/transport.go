/*
Copyright © 2026 Seednode <seednode@seedno.de>
*/

package channel

import (
	"context"
	"encoding/json"
	"errors"
)

var (
	ErrSubscriptionFailed = errors.New("channel subscription failed")
	ErrNotSubscribed      = errors.New("channel is not subscribed")
	ErrClosed             = errors.New("channel is closed")
	ErrQueueFull          = errors.New("channel send queue is full")
)

// Status is a subscription state reported by the transport.
type Status string

const (
	StatusSubscribed   Status = "SUBSCRIBED"
	StatusTimedOut     Status = "TIMED_OUT"
	StatusClosed       Status = "CLOSED"
	StatusChannelError Status = "CHANNEL_ERROR"
)

// Handlers receive everything a transport delivers. A transport calls them
// one at a time, never concurrently with each other.
type Handlers struct {
	Broadcast func(event string, payload []byte)
	Join      func(key string)
	Leave     func(key string)
	Status    func(status Status, err error)
}

// Transport is a pub/sub channel bound to one room.
type Transport interface {
	// Subscribe attaches h and opens the channel. The outcome arrives later
	// through h.Status; a returned error means the channel never opened.
	Subscribe(ctx context.Context, h Handlers) error

	// Broadcast sends payload to every other subscriber, best effort.
	Broadcast(event string, payload []byte) error

	// Track announces presence under key.
	Track(key string) error

	Unsubscribe() error
}

// Envelope types exchanged with the room hub.
const (
	TypeBroadcast     = "broadcast"
	TypeTrack         = "track"
	TypeStatus        = "status"
	TypePresenceJoin  = "presence_join"
	TypePresenceLeave = "presence_leave"
)

// Envelope is the JSON frame carried over the websocket.
type Envelope struct {
	Type    string          `json:"type"`              // see Type* constants
	Event   string          `json:"event,omitempty"`   // broadcast
	Payload json.RawMessage `json:"payload,omitempty"` // broadcast
	Key     string          `json:"key,omitempty"`     // track / presence_*
	Status  Status          `json:"status,omitempty"`  // status
	Message string          `json:"message,omitempty"` // status, human-readable reason
}

func (h Handlers) withDefaults() Handlers {
	if h.Broadcast == nil {
		h.Broadcast = func(string, []byte) {}
	}
	if h.Join == nil {
		h.Join = func(string) {}
	}
	if h.Leave == nil {
		h.Leave = func(string) {}
	}
	if h.Status == nil {
		h.Status = func(Status, error) {}
	}
	return h
}
