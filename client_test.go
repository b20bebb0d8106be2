/*
Copyright © 2026 Seednode <seednode@seedno.de>
*/

package main

import (
	"context"
	"errors"
	"math"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/Seednode/partycursor/channel"
	"github.com/Seednode/partycursor/clock"
	"github.com/Seednode/partycursor/cursor"
	"github.com/Seednode/partycursor/interp"
	"github.com/Seednode/partycursor/position"
	"github.com/cenkalti/backoff"
)

type fakeView struct {
	caps          position.Capabilities
	width, height float64
	done          chan struct{}

	mu      sync.Mutex
	input   []position.Input
	frame   map[cursor.PeerID]interp.Cursor
	status  string
	notices []string
}

func newFakeView(width, height float64, caps position.Capabilities) *fakeView {
	return &fakeView{
		caps:   caps,
		width:  width,
		height: height,
		done:   make(chan struct{}),
	}
}

func (v *fakeView) Capabilities() position.Capabilities { return v.caps }

func (v *fakeView) Size() (float64, float64) { return v.width, v.height }

func (v *fakeView) push(in position.Input) {
	v.mu.Lock()
	v.input = append(v.input, in)
	v.mu.Unlock()
}

func (v *fakeView) Poll(time.Time) []position.Input {
	v.mu.Lock()
	defer v.mu.Unlock()

	in := v.input
	v.input = nil
	return in
}

func (v *fakeView) Done() <-chan struct{} { return v.done }

func (v *fakeView) Notice(msg string) {
	v.mu.Lock()
	v.notices = append(v.notices, msg)
	v.mu.Unlock()
}

func (v *fakeView) Draw(frame map[cursor.PeerID]interp.Cursor, status string) {
	v.mu.Lock()
	v.frame, v.status = frame, status
	v.mu.Unlock()
}

func (v *fakeView) Close() {}

func (v *fakeView) last() (map[cursor.PeerID]interp.Cursor, string) {
	v.mu.Lock()
	defer v.mu.Unlock()

	return v.frame, v.status
}

func (v *fakeView) lastNotice() string {
	v.mu.Lock()
	defer v.mu.Unlock()

	if len(v.notices) == 0 {
		return ""
	}
	return v.notices[len(v.notices)-1]
}

func clientConfig(name, input string) *Config {
	return &Config{
		fps:             60,
		input:           input,
		name:            name,
		room:            "lobby",
		throttle:        50 * time.Millisecond,
		tiltSensitivity: position.DefaultSensitivity,
	}
}

// dialer hands out bus transports for a room and remembers them.
type dialer struct {
	bus  *channel.Bus
	room string

	mu     sync.Mutex
	dialed []*channel.Memory
}

func (d *dialer) dial() channel.Transport {
	tr := d.bus.Transport(d.room)

	d.mu.Lock()
	d.dialed = append(d.dialed, tr)
	d.mu.Unlock()

	return tr
}

func (d *dialer) count() int {
	d.mu.Lock()
	defer d.mu.Unlock()

	return len(d.dialed)
}

func (d *dialer) last() *channel.Memory {
	d.mu.Lock()
	defer d.mu.Unlock()

	return d.dialed[len(d.dialed)-1]
}

func newTestClient(t *testing.T, bus *channel.Bus, clk clock.Clock, cfg *Config, view renderer, id cursor.PeerID) (*client, *dialer) {
	t.Helper()

	return newRetryingClient(t, bus, clk, cfg, view, id, nil)
}

func newRetryingClient(t *testing.T, bus *channel.Bus, clk clock.Clock, cfg *Config, view renderer, id cursor.PeerID, retry backoff.BackOff) (*client, *dialer) {
	t.Helper()

	d := &dialer{bus: bus, room: cfg.room}
	c, err := newClient(cfg, d.dial, view, clk, retry, channel.WithPeerID(id), channel.WithColor("hsl(120, 100%, 70%)"))
	if err != nil {
		t.Fatalf("new client: %v", err)
	}

	return c, d
}

func near(a, b float64) bool {
	return math.Abs(a-b) < 1e-6
}

func TestClientCarriesCursorToPeer(t *testing.T) {
	clk := clock.NewManual(time.Unix(1_700_000_000, 0))
	bus := channel.NewBus()

	aliceView := newFakeView(100, 100, position.Capabilities{})
	bobView := newFakeView(200, 100, position.Capabilities{})

	alice, _ := newTestClient(t, bus, clk, clientConfig("alice", "pointer"), aliceView, 1)
	bob, _ := newTestClient(t, bus, clk, clientConfig("bob", "pointer"), bobView, 2)

	for _, c := range []*client{alice, bob} {
		if err := c.current().Join(context.Background()); err != nil {
			t.Fatalf("join: %v", err)
		}
	}
	bus.Drain()

	aliceView.push(position.PointerMove{X: 25, Y: 75, Width: 100, Height: 100})
	alice.step(clk.Now())
	bus.Drain()
	bob.step(clk.Now())

	frame, status := bobView.last()
	got, ok := frame[1]
	if !ok {
		t.Fatalf("bob did not draw alice: %+v", frame)
	}
	if !near(got.ScreenX, 50) || !near(got.ScreenY, 75) {
		t.Fatalf("expected alice at (50, 75), got (%v, %v)", got.ScreenX, got.ScreenY)
	}
	if got.Name != "alice" || got.Color != "hsl(120, 100%, 70%)" {
		t.Fatalf("unexpected label %q / %q", got.Name, got.Color)
	}
	if want := "lobby | subscribed | 1 peers"; !strings.HasPrefix(status, want) {
		t.Fatalf("expected status %q, got %q", want, status)
	}

	// Within the throttle window the newest position waits for the timer.
	aliceView.push(position.PointerMove{X: 50, Y: 50, Width: 100, Height: 100})
	alice.step(clk.Now())
	if n := bus.Drain(); n != 0 {
		t.Fatalf("throttled move was sent early (%d deliveries)", n)
	}

	clk.Advance(50 * time.Millisecond)
	bus.Drain()
	bob.step(clk.Now())

	clk.Advance(time.Second)
	bob.step(clk.Now())

	frame, _ = bobView.last()
	if got := frame[1]; !near(got.ScreenX, 100) || !near(got.ScreenY, 50) {
		t.Fatalf("expected alice to settle at (100, 50), got (%v, %v)", got.ScreenX, got.ScreenY)
	}

	alice.close()
	bus.Drain()
	bob.step(clk.Now())

	frame, status = bobView.last()
	if len(frame) != 0 {
		t.Fatalf("alice still drawn after leaving: %+v", frame)
	}
	if !strings.Contains(status, "| 0 peers |") {
		t.Fatalf("unexpected status after leave: %q", status)
	}
}

func TestClientWithoutOrientationSensor(t *testing.T) {
	clk := clock.NewManual(time.Unix(1_700_000_000, 0))
	bus := channel.NewBus()

	view := newFakeView(100, 100, position.Capabilities{})
	c, _ := newTestClient(t, bus, clk, clientConfig("phone", "orientation"), view, 3)

	if c.source != nil {
		t.Fatalf("expected no local cursor without a tilt sensor")
	}
	if notice := view.lastNotice(); !strings.HasPrefix(notice, "Unsupported:") {
		t.Fatalf("expected an unsupported notice, got %q", notice)
	}

	// The client still watches the room.
	if err := c.current().Join(context.Background()); err != nil {
		t.Fatalf("join: %v", err)
	}
	bus.Drain()

	view.push(position.Tilt{Gamma: 10, Beta: 45})
	c.step(clk.Now())

	if _, ok := c.current().LastPayload(); ok {
		t.Fatalf("client without a local cursor sent a position")
	}
	if _, status := view.last(); !strings.Contains(status, "subscribed") {
		t.Fatalf("unexpected status %q", status)
	}
}

func TestClientOrientationWithSensor(t *testing.T) {
	clk := clock.NewManual(time.Unix(1_700_000_000, 0))
	bus := channel.NewBus()

	view := newFakeView(100, 100, position.Capabilities{Orientation: true})
	c, _ := newTestClient(t, bus, clk, clientConfig("phone", "orientation"), view, 4)

	if c.source == nil {
		t.Fatalf("expected a local cursor with a tilt sensor")
	}
	if notice := view.lastNotice(); notice != "" {
		t.Fatalf("unexpected notice %q", notice)
	}
}

func TestNewClientRequiresName(t *testing.T) {
	bus := channel.NewBus()
	view := newFakeView(100, 100, position.Capabilities{})

	d := &dialer{bus: bus, room: "lobby"}
	_, err := newClient(clientConfig("", "pointer"), d.dial, view, clock.Real(), nil)
	if !errors.Is(err, channel.ErrUnauthenticated) {
		t.Fatalf("expected ErrUnauthenticated, got %v", err)
	}
}

func TestClientReportsChannelFailure(t *testing.T) {
	clk := clock.NewManual(time.Unix(1_700_000_000, 0))
	bus := channel.NewBus()

	view := newFakeView(100, 100, position.Capabilities{})
	c, d := newTestClient(t, bus, clk, clientConfig("carol", "pointer"), view, 5)

	if err := c.current().Join(context.Background()); err != nil {
		t.Fatalf("join: %v", err)
	}
	bus.Drain()

	d.last().Fail(channel.StatusTimedOut)
	bus.Drain()

	select {
	case err := <-c.failed:
		if !errors.Is(err, channel.ErrSubscriptionFailed) {
			t.Fatalf("expected ErrSubscriptionFailed, got %v", err)
		}
	default:
		t.Fatalf("failure was not reported")
	}

	if notice := view.lastNotice(); !strings.HasPrefix(notice, "Disconnected:") {
		t.Fatalf("expected a disconnect notice, got %q", notice)
	}
	if state := c.current().State(); state != channel.StateFailed {
		t.Fatalf("expected failed state, got %s", state)
	}
}

func TestClientReconnectsAfterFailure(t *testing.T) {
	clk := clock.Real()
	bus := channel.NewBus()

	aliceView := newFakeView(100, 100, position.Capabilities{})
	bobView := newFakeView(100, 100, position.Capabilities{})

	alice, d := newRetryingClient(t, bus, clk, clientConfig("alice", "pointer"), aliceView, 1, backoff.NewConstantBackOff(time.Millisecond))
	bob, _ := newTestClient(t, bus, clk, clientConfig("bob", "pointer"), bobView, 2)

	for _, c := range []*client{alice, bob} {
		if err := c.current().Join(context.Background()); err != nil {
			t.Fatalf("join: %v", err)
		}
	}
	bus.Drain()

	first := alice.current()
	d.last().Fail(channel.StatusTimedOut)
	bus.Drain()

	var cause error
	select {
	case cause = <-alice.failed:
	default:
		t.Fatalf("failure was not reported")
	}

	if err := alice.reconnect(context.Background(), cause); err != nil {
		t.Fatalf("reconnect: %v", err)
	}
	bus.Drain()

	session := alice.current()
	switch {
	case session == first:
		t.Fatalf("failed session was not replaced")
	case first.State() != channel.StateLeft:
		t.Fatalf("old session left in state %s", first.State())
	case session.State() != channel.StateSubscribed:
		t.Fatalf("new session is %s", session.State())
	case session.Peer().ID != 1 || session.Color() != first.Color():
		t.Fatalf("new session changed identity: %+v %s", session.Peer(), session.Color())
	case d.count() != 2:
		t.Fatalf("expected 2 dials, got %d", d.count())
	}

	// The local cursor now flows through the new session.
	aliceView.push(position.PointerMove{X: 10, Y: 20, Width: 100, Height: 100})
	alice.step(clk.Now())
	bus.Drain()
	bob.step(clk.Now())

	if notice := aliceView.lastNotice(); notice != "Reconnected" {
		t.Fatalf("expected a reconnected notice, got %q", notice)
	}
	frame, _ := bobView.last()
	if got, ok := frame[1]; !ok || !near(got.ScreenX, 10) || !near(got.ScreenY, 20) {
		t.Fatalf("bob did not see alice after reconnect: %+v", frame)
	}
}

type refusedTransport struct{}

func (refusedTransport) Subscribe(context.Context, channel.Handlers) error {
	return errors.New("connection refused")
}

func (refusedTransport) Broadcast(string, []byte) error { return nil }
func (refusedTransport) Track(string) error             { return nil }
func (refusedTransport) Unsubscribe() error             { return nil }

func TestClientGivesUpReconnecting(t *testing.T) {
	view := newFakeView(100, 100, position.Capabilities{})

	var dials int
	dial := func() channel.Transport {
		dials++
		return refusedTransport{}
	}

	retry := backoff.WithMaxRetries(backoff.NewConstantBackOff(time.Millisecond), 3)
	c, err := newClient(clientConfig("frank", "pointer"), dial, view, clock.Real(), retry)
	if err != nil {
		t.Fatalf("new client: %v", err)
	}
	defer c.close()

	err = c.run(context.Background())
	if !errors.Is(err, channel.ErrSubscriptionFailed) {
		t.Fatalf("expected ErrSubscriptionFailed, got %v", err)
	}
	if dials != 4 {
		t.Fatalf("expected the first dial and 3 retries, got %d dials", dials)
	}
}

func TestClientFlushesHeldBackMoveOnClose(t *testing.T) {
	clk := clock.NewManual(time.Unix(1_700_000_000, 0))
	bus := channel.NewBus()

	aliceView := newFakeView(100, 100, position.Capabilities{})
	alice, _ := newTestClient(t, bus, clk, clientConfig("alice", "pointer"), aliceView, 1)
	bob, _ := newTestClient(t, bus, clk, clientConfig("bob", "pointer"), newFakeView(100, 100, position.Capabilities{}), 2)

	for _, c := range []*client{alice, bob} {
		if err := c.current().Join(context.Background()); err != nil {
			t.Fatalf("join: %v", err)
		}
	}
	bus.Drain()

	aliceView.push(position.PointerMove{X: 10, Y: 10, Width: 100, Height: 100})
	alice.step(clk.Now())
	aliceView.push(position.PointerMove{X: 90, Y: 90, Width: 100, Height: 100})
	alice.step(clk.Now())
	bus.Drain()

	if n := bob.current().Stats().Applied; n != 1 {
		t.Fatalf("expected 1 applied move before leaving, got %d", n)
	}

	alice.close()
	bus.Drain()

	if n := bob.current().Stats().Applied; n != 2 {
		t.Fatalf("held back move was lost on leave, %d applied", n)
	}
	if last, ok := alice.current().LastPayload(); !ok || last.Position != (cursor.Sample{X: 0.9, Y: 0.9}) {
		t.Fatalf("unexpected last payload %+v", last)
	}
}

func TestClientRunStopsWhenViewIsDone(t *testing.T) {
	bus := channel.NewBus()
	view := newFakeView(100, 100, position.Capabilities{})
	close(view.done)

	c, _ := newTestClient(t, bus, clock.Real(), clientConfig("dave", "pointer"), view, 6)
	defer c.close()

	if err := c.run(context.Background()); err != nil {
		t.Fatalf("run: %v", err)
	}
}

func TestClientRunStopsOnCancel(t *testing.T) {
	bus := channel.NewBus()
	view := newFakeView(100, 100, position.Capabilities{})

	c, _ := newTestClient(t, bus, clock.Real(), clientConfig("erin", "pointer"), view, 7)
	defer c.close()

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	if err := c.run(ctx); err != nil {
		t.Fatalf("run: %v", err)
	}
}

func TestHeadlessInput(t *testing.T) {
	start := time.Unix(1_700_000_000, 0)
	cfg := clientConfig("bot", "pointer")

	pointer := newHeadless(cfg, position.StrategyPointer, start)
	for _, d := range []time.Duration{0, time.Second, 5 * time.Second} {
		in := pointer.Poll(start.Add(d))
		if len(in) != 1 {
			t.Fatalf("expected one input, got %d", len(in))
		}
		m, ok := in[0].(position.PointerMove)
		if !ok {
			t.Fatalf("expected pointer input, got %T", in[0])
		}
		if m.X < 0 || m.X > m.Width || m.Y < 0 || m.Y > m.Height {
			t.Fatalf("pointer left the virtual screen: %+v", m)
		}
	}

	tilt := newHeadless(cfg, position.StrategyOrientation, start)
	if !tilt.Capabilities().Orientation {
		t.Fatalf("headless view should offer a tilt sensor")
	}
	in := tilt.Poll(start.Add(time.Second))
	if _, ok := in[0].(position.Tilt); !ok {
		t.Fatalf("expected tilt input, got %T", in[0])
	}

	tilt.Notice("hello")
	tilt.Draw(nil, "status")
	tilt.Draw(nil, "status")
	if tilt.frames != 2 {
		t.Fatalf("expected 2 frames, got %d", tilt.frames)
	}
	if n := tilt.Notices(); len(n) != 1 || n[0] != "hello" {
		t.Fatalf("unexpected notices %v", n)
	}
}

func TestJoinRoomHeadless(t *testing.T) {
	srv, _ := newTestServer(t, testConfig())

	// Random peer ids stay below cursor.MaxPeerID, so the watcher cannot
	// collide with the headless client.
	watcher := joinSession(t, srv, defaultRoom, cursor.MaxPeerID, "watcher")

	cfg := clientConfig("bot", "pointer")
	cfg.room = defaultRoom
	cfg.server = "ws" + strings.TrimPrefix(srv.URL, "http")
	cfg.headless = true
	cfg.duration = 2 * time.Second
	cfg.throttle = 10 * time.Millisecond

	done := make(chan error, 1)
	go func() {
		done <- JoinRoom(context.Background(), cfg)
	}()

	eventually(t, "watcher to see the headless cursor", func() bool {
		for _, e := range watcher.Snapshot() {
			if e.Peer.Name == "bot" {
				return true
			}
		}
		return false
	})

	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("join room: %v", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatalf("headless client did not stop after its duration")
	}

	eventually(t, "watcher to drop the headless cursor", func() bool {
		return len(watcher.Snapshot()) == 0
	})
}
