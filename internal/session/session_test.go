package session

import (
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/benbjohnson/clock"

	"github.com/coview/sync-agent/internal/protocol"
	"github.com/coview/sync-agent/internal/relay"
)

// fakeChannel is a scripted relay channel.
type fakeChannel struct {
	events chan relay.Event

	mu         sync.Mutex
	connected  bool
	closed     bool
	updates    []protocol.ClientUpdate
	heartbeats int
}

func newFakeChannel() *fakeChannel {
	return &fakeChannel{events: make(chan relay.Event, 16)}
}

func (c *fakeChannel) Events() <-chan relay.Event { return c.events }

func (c *fakeChannel) SendUpdate(state protocol.PlaybackState, progress float64) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.connected {
		return relay.ErrNotConnected
	}
	c.updates = append(c.updates, protocol.NewClientUpdate(state, progress))
	return nil
}

func (c *fakeChannel) SendHeartbeat() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.connected {
		return relay.ErrNotConnected
	}
	c.heartbeats++
	return nil
}

func (c *fakeChannel) IsConnected() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.connected
}

func (c *fakeChannel) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.closed = true
	c.connected = false
	return nil
}

func (c *fakeChannel) isClosed() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.closed
}

func (c *fakeChannel) heartbeatCount() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.heartbeats
}

func (c *fakeChannel) sentUpdates() []protocol.ClientUpdate {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]protocol.ClientUpdate(nil), c.updates...)
}

// Scripted outcomes.

func (c *fakeChannel) scriptConnected() {
	c.mu.Lock()
	c.connected = true
	c.mu.Unlock()
	c.events <- relay.Connected{}
}

func (c *fakeChannel) scriptConnectFailed(err error) {
	c.events <- relay.ConnectFailed{Err: err}
	close(c.events)
}

func (c *fakeChannel) scriptDisconnect(reason relay.Reason) {
	c.mu.Lock()
	c.connected = false
	c.mu.Unlock()
	c.events <- relay.Disconnected{Reason: reason}
	close(c.events)
}

func (c *fakeChannel) scriptEvent(ev relay.Event) {
	c.events <- ev
}

// fakeDialer records opened channels and their params.
type fakeDialer struct {
	mu     sync.Mutex
	opened []*fakeChannel
	params []relay.Params
}

func (d *fakeDialer) Open(p relay.Params) relay.Channel {
	ch := newFakeChannel()
	d.mu.Lock()
	d.opened = append(d.opened, ch)
	d.params = append(d.params, p)
	d.mu.Unlock()
	return ch
}

func (d *fakeDialer) openCount() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.opened)
}

func (d *fakeDialer) channel(t *testing.T, i int) *fakeChannel {
	t.Helper()
	waitFor(t, func() bool { return d.openCount() > i }, "dial never happened")
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.opened[i]
}

func (d *fakeDialer) param(i int) relay.Params {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.params[i]
}

// fakeContent records content-port notifications.
type fakeContent struct {
	mu       sync.Mutex
	requests int
	updates  []protocol.RemoteUpdateNotice
	errs     []string
}

func (c *fakeContent) RequestConnection() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.requests++
}

func (c *fakeContent) RemoteUpdate(state protocol.PlaybackState, progress float64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.updates = append(c.updates, protocol.NewRemoteUpdateNotice(state, progress))
}

func (c *fakeContent) ConnectionError(msg string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.errs = append(c.errs, msg)
}

func (c *fakeContent) errorCount() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.errs)
}

func (c *fakeContent) updateCount() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.updates)
}

// fakePopup records popup-port notifications.
type fakePopup struct {
	mu      sync.Mutex
	rooms   []protocol.RoomIDNotice
	actions []protocol.ActionStateNotice
}

func (p *fakePopup) RoomID(tabID, roomID string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.rooms = append(p.rooms, protocol.NewRoomIDNotice(tabID, roomID))
}

func (p *fakePopup) ActionEnabled(tabID string, enabled bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.actions = append(p.actions, protocol.NewActionStateNotice(tabID, enabled))
}

func (p *fakePopup) lastRoom() (protocol.RoomIDNotice, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if len(p.rooms) == 0 {
		return protocol.RoomIDNotice{}, false
	}
	return p.rooms[len(p.rooms)-1], true
}

// waitFor polls until cond holds or the test fails.
func waitFor(t *testing.T, cond func() bool, msg string) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(2 * time.Millisecond)
	}
	t.Fatalf("timeout waiting for %s", msg)
}

type fixture struct {
	s       *Session
	dialer  *fakeDialer
	content *fakeContent
	popup   *fakePopup
	clock   *clock.Mock
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	f := &fixture{
		dialer:  &fakeDialer{},
		content: &fakeContent{},
		popup:   &fakePopup{},
		clock:   clock.NewMock(),
	}
	f.s = New(Config{TabID: "tab-1"}, f.dialer, f.content, f.popup, f.clock, nil)
	t.Cleanup(f.s.Shutdown)
	return f
}

// waitState waits for the actor to reach a state.
func (f *fixture) waitState(t *testing.T, want State) {
	t.Helper()
	waitFor(t, func() bool { return f.s.Snapshot().State == want.String() }, "state "+want.String())
}

// connectEstablished drives the session to connected over a fresh channel.
func (f *fixture) connectEstablished(t *testing.T, roomID string) *fakeChannel {
	t.Helper()
	idx := f.dialer.openCount()
	if err := f.s.Connect(42, protocol.PlaybackPlaying, roomID, false); err != nil {
		t.Fatalf("Connect failed: %v", err)
	}
	ch := f.dialer.channel(t, idx)
	ch.scriptConnected()
	f.waitState(t, StateConnected)
	return ch
}

func TestSession_ConnectAndJoin(t *testing.T) {
	f := newFixture(t)

	if err := f.s.Connect(42.4, protocol.PlaybackPlaying, "R1", false); err != nil {
		t.Fatalf("Connect failed: %v", err)
	}

	ch := f.dialer.channel(t, 0)
	p := f.dialer.param(0)
	if p.VideoProgress != 42.4 || p.VideoState != protocol.PlaybackPlaying || p.RoomID != "R1" {
		t.Errorf("dial params = %+v", p)
	}
	f.waitState(t, StateConnecting)

	ch.scriptConnected()
	f.waitState(t, StateConnected)

	st := f.s.Snapshot()
	if st.ReconnectAttempts != 0 {
		t.Errorf("ReconnectAttempts = %d, want 0", st.ReconnectAttempts)
	}

	ch.scriptEvent(relay.Joined{RoomID: "R1", State: protocol.PlaybackPlaying, Progress: 50})
	waitFor(t, func() bool { return f.content.updateCount() == 1 }, "remote update")

	f.content.mu.Lock()
	upd := f.content.updates[0]
	f.content.mu.Unlock()
	if upd.VideoState != protocol.PlaybackPlaying || upd.VideoProgress != 50 {
		t.Errorf("remote update = %+v", upd)
	}

	room, ok := f.popup.lastRoom()
	if !ok || room.TabID != "tab-1" || room.RoomID != "R1" {
		t.Errorf("popup room notice = %+v", room)
	}
	if got, ok := f.s.RoomID(); !ok || got != "R1" {
		t.Errorf("RoomID() = %q, %v", got, ok)
	}
}

func TestSession_ConnectWhileConnectingIsNoOp(t *testing.T) {
	f := newFixture(t)

	f.s.Connect(1, protocol.PlaybackPlaying, "", false)
	f.dialer.channel(t, 0)

	f.s.Connect(2, protocol.PlaybackPaused, "", false)
	f.s.Snapshot() // barrier: both ops processed

	if n := f.dialer.openCount(); n != 1 {
		t.Errorf("opened %d channels, want 1", n)
	}
}

func TestSession_ConnectWhileConnectedIsNoOp(t *testing.T) {
	f := newFixture(t)
	f.connectEstablished(t, "R1")

	f.s.Connect(9, protocol.PlaybackPaused, "R2", false)
	f.s.Snapshot()

	if n := f.dialer.openCount(); n != 1 {
		t.Errorf("opened %d channels, want 1", n)
	}
	if st := f.s.Snapshot(); st.State != StateConnected.String() {
		t.Errorf("state = %s, want connected", st.State)
	}
}

func TestSession_BackoffSequence(t *testing.T) {
	f := newFixture(t)

	f.s.Connect(42, protocol.PlaybackPlaying, "R1", false)
	f.dialer.channel(t, 0).scriptConnectFailed(errors.New("dial refused"))

	delays := []time.Duration{
		1000 * time.Millisecond,
		2000 * time.Millisecond,
		4000 * time.Millisecond,
		8000 * time.Millisecond,
		16000 * time.Millisecond,
	}

	for i, delay := range delays {
		waitFor(t, func() bool {
			st := f.s.Snapshot()
			return st.State == StateReconnecting.String() && st.ReconnectAttempts == i+1
		}, "retry scheduled")

		// One tick early: nothing fires.
		f.clock.Add(delay - time.Millisecond)
		f.s.Snapshot()
		if n := f.dialer.openCount(); n != i+1 {
			t.Fatalf("attempt %d: opened %d channels before delay elapsed", i+1, n)
		}

		f.clock.Add(time.Millisecond)
		ch := f.dialer.channel(t, i+1)

		// Retries reuse the last-attempted parameters.
		p := f.dialer.param(i + 1)
		if p.VideoProgress != 42 || p.RoomID != "R1" {
			t.Errorf("attempt %d: dial params = %+v", i+1, p)
		}

		ch.scriptConnectFailed(errors.New("dial refused"))
	}

	// Sixth scheduling call: terminal error, no timer armed.
	waitFor(t, func() bool { return f.content.errorCount() == 1 }, "terminal error")
	f.waitState(t, StateDisconnected)

	f.clock.Add(10 * time.Minute)
	f.s.Snapshot()
	if n := f.dialer.openCount(); n != 6 {
		t.Errorf("opened %d channels after giving up, want 6", n)
	}
}

func TestSession_ServerDisconnectNeverRetries(t *testing.T) {
	f := newFixture(t)
	ch := f.connectEstablished(t, "R1")

	ch.scriptDisconnect(relay.ReasonServer)
	f.waitState(t, StateDisconnected)

	f.clock.Add(10 * time.Minute)
	f.s.Snapshot()
	if n := f.dialer.openCount(); n != 1 {
		t.Errorf("opened %d channels, want 1 (no retry on server close)", n)
	}
	if st := f.s.Snapshot(); st.ReconnectAttempts != 0 {
		t.Errorf("ReconnectAttempts = %d, want 0", st.ReconnectAttempts)
	}
}

func TestSession_TransportDisconnectRetries(t *testing.T) {
	f := newFixture(t)
	ch := f.connectEstablished(t, "R1")

	ch.scriptDisconnect(relay.ReasonTransport)
	waitFor(t, func() bool {
		return f.s.Snapshot().State == StateReconnecting.String()
	}, "retry scheduled")

	f.clock.Add(time.Second)
	ch2 := f.dialer.channel(t, 1)
	ch2.scriptConnected()
	f.waitState(t, StateConnected)

	if st := f.s.Snapshot(); st.ReconnectAttempts != 0 {
		t.Errorf("ReconnectAttempts = %d, want 0 after successful reconnect", st.ReconnectAttempts)
	}
}

func TestSession_ConnectTimeout(t *testing.T) {
	f := newFixture(t)

	f.s.Connect(1, protocol.PlaybackWaiting, "", false)
	ch := f.dialer.channel(t, 0)
	f.waitState(t, StateConnecting)

	// The dial never resolves; the 10s liveness bound fires.
	f.clock.Add(10 * time.Second)

	waitFor(t, func() bool {
		st := f.s.Snapshot()
		return st.State == StateReconnecting.String() && st.ReconnectAttempts == 1
	}, "timeout handled")

	if !ch.isClosed() {
		t.Error("timed-out channel was not closed")
	}
}

func TestSession_ManualDisconnect(t *testing.T) {
	f := newFixture(t)
	ch := f.connectEstablished(t, "R1")
	ch.scriptEvent(relay.Joined{RoomID: "R1", State: protocol.PlaybackPlaying, Progress: 5})
	waitFor(t, func() bool {
		id, ok := f.s.RoomID()
		return ok && id == "R1"
	}, "room join")

	if err := f.s.Disconnect(); err != nil {
		t.Fatalf("Disconnect failed: %v", err)
	}
	f.waitState(t, StateDisconnected)

	if !ch.isClosed() {
		t.Error("channel was not closed")
	}
	if id, ok := f.s.RoomID(); ok {
		t.Errorf("RoomID() = %q after disconnect, want absent", id)
	}
	if st := f.s.Snapshot(); st.ReconnectAttempts != 0 {
		t.Errorf("ReconnectAttempts = %d, want 0", st.ReconnectAttempts)
	}

	room, ok := f.popup.lastRoom()
	if !ok || room.RoomID != "" {
		t.Errorf("popup notice = %+v, want empty room id", room)
	}
}

func TestSession_UserConnectResetsAttempts(t *testing.T) {
	f := newFixture(t)

	f.s.Connect(1, protocol.PlaybackPlaying, "", false)
	f.dialer.channel(t, 0).scriptConnectFailed(errors.New("refused"))
	waitFor(t, func() bool { return f.s.Snapshot().ReconnectAttempts == 1 }, "first failure counted")

	// A fresh user-triggered connect starts the budget over and cancels
	// the armed retry.
	f.s.Connect(2, protocol.PlaybackPlaying, "", false)
	ch2 := f.dialer.channel(t, 1)

	if st := f.s.Snapshot(); st.ReconnectAttempts != 0 || st.State != StateConnecting.String() {
		t.Errorf("snapshot = %+v", st)
	}

	ch2.scriptConnected()
	f.waitState(t, StateConnected)

	f.clock.Add(time.Minute)
	f.s.Snapshot()
	if n := f.dialer.openCount(); n != 2 {
		t.Errorf("opened %d channels, want 2 (stale retry must not fire)", n)
	}
}

func TestSession_LocalUpdateForwardsWhenConnected(t *testing.T) {
	f := newFixture(t)
	ch := f.connectEstablished(t, "R1")

	if err := f.s.LocalUpdate(17.5, protocol.PlaybackPaused); err != nil {
		t.Fatalf("LocalUpdate failed: %v", err)
	}
	waitFor(t, func() bool { return len(ch.sentUpdates()) == 1 }, "update sent")

	upd := ch.sentUpdates()[0]
	if upd.VideoState != protocol.PlaybackPaused || upd.VideoProgress != 17.5 {
		t.Errorf("update = %+v", upd)
	}
	if n := f.dialer.openCount(); n != 1 {
		t.Errorf("opened %d channels, want 1", n)
	}
}

func TestSession_LocalUpdateReconnectsWithLastRoom(t *testing.T) {
	f := newFixture(t)
	ch := f.connectEstablished(t, "")
	ch.scriptEvent(relay.Joined{RoomID: "R7", State: protocol.PlaybackPlaying, Progress: 1})
	waitFor(t, func() bool { _, ok := f.s.RoomID(); return ok }, "room join")

	// Server teardown leaves the session disconnected with no retry.
	ch.scriptDisconnect(relay.ReasonServer)
	f.waitState(t, StateDisconnected)

	if err := f.s.LocalUpdate(30, protocol.PlaybackPlaying); err != nil {
		t.Fatalf("LocalUpdate failed: %v", err)
	}

	f.dialer.channel(t, 1)
	p := f.dialer.param(1)
	if p.RoomID != "R7" || p.VideoProgress != 30 {
		t.Errorf("recovery dial params = %+v, want room R7, progress 30", p)
	}
}

func TestSession_RequestConnection(t *testing.T) {
	f := newFixture(t)

	if err := f.s.RequestConnection(); err != nil {
		t.Fatalf("RequestConnection failed: %v", err)
	}
	waitFor(t, func() bool {
		f.content.mu.Lock()
		defer f.content.mu.Unlock()
		return f.content.requests == 1
	}, "connection request")

	if st := f.s.Snapshot(); !st.RequestPending {
		t.Error("RequestPending should be set")
	}

	ch := f.connectEstablished(t, "R1")
	ch.scriptEvent(relay.Joined{RoomID: "R1", State: protocol.PlaybackPlaying, Progress: 0})
	waitFor(t, func() bool { return !f.s.Snapshot().RequestPending }, "pending cleared on join")
}

func TestSession_Heartbeats(t *testing.T) {
	f := newFixture(t)
	ch := f.connectEstablished(t, "R1")

	f.clock.Add(30 * time.Second)
	waitFor(t, func() bool { return ch.heartbeatCount() == 1 }, "first heartbeat")

	f.clock.Add(30 * time.Second)
	waitFor(t, func() bool { return ch.heartbeatCount() == 2 }, "second heartbeat")

	if st := f.s.Snapshot(); st.LastHeartbeatAt.IsZero() {
		t.Error("LastHeartbeatAt not recorded")
	}

	// Heartbeats stop with the connection.
	ch.scriptDisconnect(relay.ReasonServer)
	f.waitState(t, StateDisconnected)

	f.clock.Add(5 * time.Minute)
	f.s.Snapshot()
	if n := ch.heartbeatCount(); n != 2 {
		t.Errorf("heartbeats = %d after disconnect, want 2", n)
	}
}

func TestSession_Shutdown(t *testing.T) {
	f := newFixture(t)
	ch := f.connectEstablished(t, "R1")

	f.s.Shutdown()
	f.s.Shutdown() // idempotent

	waitFor(t, ch.isClosed, "channel closed on shutdown")

	if err := f.s.Connect(1, protocol.PlaybackPlaying, "", false); !errors.Is(err, ErrSessionClosed) {
		t.Errorf("Connect after Shutdown = %v, want ErrSessionClosed", err)
	}
	if st := f.s.Snapshot(); st.State != StateDisconnected.String() {
		t.Errorf("state = %s, want disconnected", st.State)
	}
}
