/*
Copyright © 2026 Seednode <seednode@seedno.de>
*/

package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/Seednode/partycursor/channel"
	"github.com/Seednode/partycursor/clock"
	"github.com/Seednode/partycursor/cursor"
	"github.com/Seednode/partycursor/interp"
	"github.com/Seednode/partycursor/position"
	"github.com/cenkalti/backoff"
)

// renderer is where local input comes from and remote cursors go.
type renderer interface {
	Capabilities() position.Capabilities
	Size() (width, height float64)
	// Poll returns local input gathered since the previous call.
	Poll(now time.Time) []position.Input
	// Done is closed when the user asks to leave.
	Done() <-chan struct{}
	Notice(msg string)
	Draw(frame map[cursor.PeerID]interp.Cursor, status string)
	Close()
}

type client struct {
	cfg   *Config
	clock clock.Clock
	view  renderer

	dial  func() channel.Transport
	opts  []channel.Option
	retry backoff.BackOff
	// retrying is set while a reconnect episode is in progress. Only the run
	// loop touches it and retry.
	retrying bool

	mu      sync.Mutex
	session *channel.Session
	gen     int

	// source is nil when this device has no usable local cursor.
	source position.Source
	scene  *interp.Scene

	failed chan error
}

// newClient builds a client whose sessions run on transports from dial. A
// nil retry policy means the client never reconnects.
func newClient(cfg *Config, dial func() channel.Transport, view renderer, clk clock.Clock, retry backoff.BackOff, opts ...channel.Option) (*client, error) {
	if retry == nil {
		retry = &backoff.StopBackOff{}
	}

	c := &client{
		cfg:    cfg,
		clock:  clk,
		view:   view,
		dial:   dial,
		opts:   opts,
		retry:  retry,
		scene:  interp.NewScene(interp.Options{}),
		failed: make(chan error, 1),
	}

	session, err := c.newSession()
	if err != nil {
		return nil, err
	}
	c.session = session
	// Later sessions keep the same peer id and color.
	c.opts = append(c.opts, channel.WithPeerID(session.Peer().ID), channel.WithColor(session.Color()))

	strategy := cfg.strategy()
	source, err := position.New(position.Options{
		Strategy:     strategy,
		Capabilities: view.Capabilities(),
		Throttle:     cfg.throttle,
		Sensitivity:  cfg.tiltSensitivity,
		Clock:        clk,
	}, c.send)
	switch {
	case errors.Is(err, position.ErrUnsupportedCapability):
		view.Notice("Unsupported: " + err.Error())
		logf(cfg, "CLIENT: %s input unavailable, joining without a local cursor", strategy)
	case err != nil:
		return nil, err
	default:
		c.source = source
	}

	logf(cfg, "CLIENT: Joining %s as %q (peer %d, %s, %s input)",
		cfg.room, cfg.name, session.Peer().ID, session.Color(), strategy)

	return c, nil
}

func (c *client) newSession() (*channel.Session, error) {
	c.mu.Lock()
	c.gen++
	gen := c.gen
	c.mu.Unlock()

	opts := append([]channel.Option{
		channel.WithClock(c.clock),
		channel.WithOnStatus(func(status channel.Status, err error) {
			c.onStatus(gen, status, err)
		}),
	}, c.opts...)

	return channel.NewSession(c.dial(),
		channel.Identity{Authenticated: c.cfg.name != "", DisplayName: c.cfg.name},
		opts...,
	)
}

func (c *client) current() *channel.Session {
	c.mu.Lock()
	defer c.mu.Unlock()

	return c.session
}

// send is where the position source emits; it always reaches the live
// session.
func (c *client) send(sample cursor.Sample) {
	c.current().Send(sample)
}

func (c *client) onStatus(gen int, status channel.Status, err error) {
	c.mu.Lock()
	stale := gen != c.gen
	c.mu.Unlock()

	if stale {
		return
	}

	logf(c.cfg, "CLIENT: Channel %s", status)

	if err == nil {
		return
	}

	c.view.Notice(fmt.Sprintf("Disconnected: %v", err))

	select {
	case c.failed <- err:
	default:
	}
}

// reconnect replaces a failed session with a fresh one on a new transport,
// waiting between attempts as the retry policy says. It returns cause once
// the policy gives up, and nil if the user leaves while waiting.
func (c *client) reconnect(ctx context.Context, cause error) error {
	if !c.retrying {
		c.retry.Reset()
		c.retrying = true
	}

	for {
		wait := c.retry.NextBackOff()
		if wait == backoff.Stop {
			return cause
		}

		logf(c.cfg, "CLIENT: Reconnecting to %s in %s", c.cfg.room, wait)
		c.view.Notice(fmt.Sprintf("Reconnecting in %s", wait.Round(time.Millisecond)))

		elapsed := make(chan struct{})
		timer := c.clock.AfterFunc(wait, func() { close(elapsed) })

		select {
		case <-ctx.Done():
			timer.Stop()
			return nil
		case <-c.view.Done():
			timer.Stop()
			return nil
		case <-elapsed:
		}

		select {
		case <-c.failed:
		default:
		}

		session, err := c.newSession()
		if err != nil {
			return err
		}

		c.mu.Lock()
		old := c.session
		c.session = session
		c.mu.Unlock()

		_ = old.Leave()

		if err := session.Join(ctx); err != nil {
			cause = err
			continue
		}

		return nil
	}
}

// step feeds pending input to the position source and draws one frame.
func (c *client) step(now time.Time) {
	session := c.current()

	if c.retrying && session.State() == channel.StateSubscribed {
		c.retrying = false
		c.view.Notice("Reconnected")
	}

	for _, in := range c.view.Poll(now) {
		if c.source != nil {
			c.source.Handle(in)
		}
	}

	c.scene.Sync(session.Snapshot(), now)

	width, height := c.view.Size()
	c.view.Draw(c.scene.Frame(now, width, height), c.status())
}

func (c *client) status() string {
	return fmt.Sprintf("%s | %s | %d peers | q to leave", c.cfg.room, c.current().State(), c.scene.Len())
}

func (c *client) run(ctx context.Context) error {
	if err := c.current().Join(ctx); err != nil {
		if err := c.reconnect(ctx, err); err != nil {
			return err
		}
	}

	ticker := time.NewTicker(time.Second / time.Duration(c.cfg.fps))
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-c.view.Done():
			return nil
		case err := <-c.failed:
			if err := c.reconnect(ctx, err); err != nil {
				return err
			}
		case <-ticker.C:
			c.step(c.clock.Now())
		}
	}
}

// close sends any position the throttle still holds, then leaves.
func (c *client) close() {
	session := c.current()

	if c.source != nil {
		c.source.Flush()
		c.source.Close()
	}
	if err := session.Leave(); err != nil {
		logf(c.cfg, "ERROR: Leaving %s: %v", c.cfg.room, err)
	}
	c.scene.Close()

	stats := session.Stats()
	logf(c.cfg, "CLIENT: Left %s (%d applied, %d malformed, %d echoes, %d departures)",
		c.cfg.room, stats.Applied, stats.Malformed, stats.SelfEcho, stats.Departed)
}

// retryPolicy backs off exponentially for up to --reconnect.
func retryPolicy(cfg *Config) backoff.BackOff {
	if cfg.reconnect <= 0 {
		return &backoff.StopBackOff{}
	}

	b := backoff.NewExponentialBackOff()
	b.InitialInterval = 500 * time.Millisecond
	b.MaxInterval = 10 * time.Second
	b.MaxElapsedTime = cfg.reconnect

	return b
}

func JoinRoom(ctx context.Context, cfg *Config) error {
	logf(cfg, "START: partycursor v%s", releaseVersion)

	var (
		view renderer
		err  error
	)
	if cfg.headless {
		view = newHeadless(cfg, cfg.strategy(), time.Now())

		if cfg.duration > 0 {
			var cancel context.CancelFunc
			ctx, cancel = context.WithTimeout(ctx, cfg.duration)
			defer cancel()
		}
	} else {
		view, err = newTerminal()
		if err != nil {
			return err
		}
	}
	defer view.Close()

	header := http.Header{}
	header.Set("User-Agent", "partycursor/"+releaseVersion)

	dial := func() channel.Transport {
		return channel.NewWebSocket(cfg.roomURL(), header)
	}

	c, err := newClient(cfg, dial, view, clock.Real(), retryPolicy(cfg))
	if err != nil {
		return err
	}
	defer c.close()

	return c.run(ctx)
}
