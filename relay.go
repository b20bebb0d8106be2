/*
Copyright © 2026 Seednode <seednode@seedno.de>
*/

package main

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/Seednode/partycursor/channel"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

const (
	relayBacklog = 256
	relayTimeout = 2 * time.Second
)

// Relay shares room traffic between instances over redis pub/sub.
type Relay struct {
	cfg    *Config
	rdb    *redis.Client
	prefix string
	origin string
}

type relayMessage struct {
	Origin   string           `json:"origin"`
	Envelope channel.Envelope `json:"envelope"`
}

func newRelay(ctx context.Context, cfg *Config) (*Relay, error) {
	rdb := redis.NewClient(&redis.Options{Addr: cfg.redisAddr})

	pingCtx, cancel := context.WithTimeout(ctx, relayTimeout)
	defer cancel()

	if err := rdb.Ping(pingCtx).Err(); err != nil {
		_ = rdb.Close()

		return nil, err
	}

	r := &Relay{
		cfg:    cfg,
		rdb:    rdb,
		prefix: cfg.redisPrefix,
		origin: uuid.NewString(),
	}

	logf(cfg, "RELAY: Connected to redis at %s as instance %s", cfg.redisAddr, r.origin)

	return r, nil
}

func (r *Relay) Close() error {
	return r.rdb.Close()
}

func (r *Relay) topic(room string) string {
	return r.prefix + ":" + room
}

func encodeRelay(origin string, env channel.Envelope) ([]byte, error) {
	return json.Marshal(relayMessage{Origin: origin, Envelope: env})
}

// decodeRelay returns the envelope carried by payload, unless it is
// malformed or was published by origin itself.
func decodeRelay(origin string, payload []byte) (channel.Envelope, bool) {
	var msg relayMessage
	if err := json.Unmarshal(payload, &msg); err != nil {
		return channel.Envelope{}, false
	}
	if msg.Origin == "" || msg.Origin == origin {
		return channel.Envelope{}, false
	}

	switch msg.Envelope.Type {
	case channel.TypeBroadcast:
	case channel.TypePresenceJoin, channel.TypePresenceLeave:
		if msg.Envelope.Key == "" {
			return channel.Envelope{}, false
		}
	default:
		return channel.Envelope{}, false
	}

	return msg.Envelope, true
}

// roomLink binds one hub to its redis topic.
type roomLink struct {
	relay  *Relay
	hub    *Hub
	topic  string
	out    chan channel.Envelope
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// Attach subscribes hub to its room topic and returns the link the hub
// publishes through.
func (r *Relay) Attach(hub *Hub) *roomLink {
	ctx, cancel := context.WithCancel(context.Background())

	l := &roomLink{
		relay:  r,
		hub:    hub,
		topic:  r.topic(hub.id),
		out:    make(chan channel.Envelope, relayBacklog),
		cancel: cancel,
	}

	pubsub := r.rdb.Subscribe(ctx, l.topic)

	l.wg.Add(2)
	go l.receive(ctx, pubsub)
	go l.send(ctx)

	return l
}

// Publish queues env for other instances, dropping it if redis falls behind.
func (l *roomLink) Publish(env channel.Envelope) {
	select {
	case l.out <- env:
	default:
		logf(l.relay.cfg, "RELAY: Dropped %s for %s, backlog full", env.Type, l.topic)
	}
}

func (l *roomLink) Close() {
	l.cancel()
	l.wg.Wait()
}

func (l *roomLink) send(ctx context.Context) {
	defer l.wg.Done()

	for {
		select {
		case <-ctx.Done():
			return
		case env := <-l.out:
			data, err := encodeRelay(l.relay.origin, env)
			if err != nil {
				continue
			}

			pubCtx, cancel := context.WithTimeout(ctx, relayTimeout)
			err = l.relay.rdb.Publish(pubCtx, l.topic, data).Err()
			cancel()
			if err != nil && ctx.Err() == nil {
				logf(l.relay.cfg, "ERROR: Publishing to %s: %v", l.topic, err)
			}
		}
	}
}

func (l *roomLink) receive(ctx context.Context, pubsub *redis.PubSub) {
	defer l.wg.Done()
	defer pubsub.Close()

	messages := pubsub.Channel()
	for {
		select {
		case <-ctx.Done():
			return
		case msg, ok := <-messages:
			if !ok {
				return
			}

			env, ok := decodeRelay(l.relay.origin, []byte(msg.Payload))
			if !ok {
				continue
			}

			select {
			case l.hub.relayed <- env:
			case <-l.hub.quit:
				return
			case <-ctx.Done():
				return
			}
		}
	}
}
