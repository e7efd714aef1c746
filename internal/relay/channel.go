package relay

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/coview/sync-agent/internal/metrics"
	"github.com/coview/sync-agent/internal/protocol"
)

// transport is the part of a channel that differs between WebSocket and
// long-polling: framed sends and blocking receives of raw relay messages.
type transport interface {
	send(v any) error
	recv() ([]byte, error)
	teardown()
	name() string
}

// channel implements the Channel interface over either transport.
type channel struct {
	cfg    Config
	logger *slog.Logger

	events chan Event

	// lifeCtx bounds the dial and all polling requests; cancelled on Close.
	lifeCtx    context.Context
	lifeCancel context.CancelFunc

	mu        sync.RWMutex
	tr        transport
	connected bool
	closed    bool
}

func newChannel(cfg Config, logger *slog.Logger) *channel {
	ctx, cancel := context.WithCancel(context.Background())
	return &channel{
		cfg:        cfg,
		logger:     logger,
		events:     make(chan Event, cfg.EventBuffer),
		lifeCtx:    ctx,
		lifeCancel: cancel,
	}
}

// run dials the relay and, on success, pumps inbound events until the
// transport fails. It is the only goroutine that writes to c.events.
func (c *channel) run(params Params) {
	defer close(c.events)

	tr, err := c.dialWebSocket(params)
	if err != nil {
		if !c.cfg.EnablePollingFallback {
			c.emitTerminal(ConnectFailed{Err: err})
			return
		}
		c.logger.Debug("websocket dial failed, trying polling fallback", "error", err)
		ptr, perr := c.openPolling(params)
		if perr != nil {
			c.emitTerminal(ConnectFailed{Err: fmt.Errorf("websocket: %v; polling: %w", err, perr)})
			return
		}
		tr = ptr
	}

	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		tr.teardown()
		c.emitTerminal(Disconnected{Reason: ReasonLocal})
		return
	}
	c.tr = tr
	c.connected = true
	c.mu.Unlock()

	c.logger.Debug("relay channel connected", "transport", tr.name())
	metrics.TransportOpensTotal.WithLabelValues(tr.name()).Inc()
	c.emit(Connected{})

	for {
		data, err := tr.recv()
		if err != nil {
			c.emitTerminal(Disconnected{Reason: c.classify(err)})
			return
		}

		ev, err := protocol.DecodeRelayEvent(data)
		if err != nil {
			// Unknown relay event types are skipped, not fatal.
			c.logger.Debug("skipping relay message", "error", err)
			continue
		}

		switch ev := ev.(type) {
		case protocol.ServerJoin:
			c.emit(Joined{RoomID: ev.RoomID, State: ev.VideoState, Progress: ev.VideoProgress})
		case protocol.ServerUpdate:
			c.emit(RemoteUpdate{SenderID: ev.SenderID, State: ev.VideoState, Progress: ev.VideoProgress})
		case protocol.ServerReconnected:
			c.emit(Rejoined{RoomID: ev.RoomID, SenderID: ev.SenderID, State: ev.VideoState, Progress: ev.VideoProgress})
		}
	}
}

// classify maps a transport error to a disconnect reason. Must only be
// called after the transport reported a receive failure.
func (c *channel) classify(err error) Reason {
	c.mu.Lock()
	c.connected = false
	closed := c.closed
	c.mu.Unlock()

	if closed {
		return ReasonLocal
	}
	if errors.Is(err, errServerGone) {
		return ReasonServer
	}
	if websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
		return ReasonServer
	}
	return ReasonTransport
}

// dialWebSocket attempts the primary WebSocket transport.
func (c *channel) dialWebSocket(params Params) (transport, error) {
	u, err := url.Parse(c.cfg.URL)
	if err != nil {
		return nil, fmt.Errorf("parse relay url: %w", err)
	}
	u.RawQuery = protocol.OpenQuery(params.VideoProgress, params.VideoState, params.RoomID).Encode()

	d := websocket.Dialer{
		HandshakeTimeout: c.cfg.HandshakeTimeout,
	}

	conn, _, err := d.DialContext(c.lifeCtx, u.String(), nil)
	if err != nil {
		return nil, err
	}

	return &wsTransport{conn: conn, writeTimeout: c.cfg.WriteTimeout}, nil
}

// emit delivers an event without ever blocking the transport goroutine.
// The buffer is sized so a draining session never sees a drop.
func (c *channel) emit(ev Event) {
	select {
	case c.events <- ev:
	default:
		c.logger.Warn("event buffer full, dropping event", "event", fmt.Sprintf("%T", ev))
	}
}

// emitTerminal delivers the channel's final event. Terminal events must
// land even when the consumer lags behind a full buffer, so stale
// buffered events are shed to make room; the loop terminates because
// this goroutine is the only writer.
func (c *channel) emitTerminal(ev Event) {
	for {
		select {
		case c.events <- ev:
			return
		default:
		}
		select {
		case dropped := <-c.events:
			c.logger.Warn("event buffer full, shedding stale event", "event", fmt.Sprintf("%T", dropped))
		default:
		}
	}
}

// Events returns the event stream.
func (c *channel) Events() <-chan Event {
	return c.events
}

// SendUpdate forwards a local playback change to the relay.
func (c *channel) SendUpdate(state protocol.PlaybackState, progress float64) error {
	return c.send(protocol.NewClientUpdate(state, progress))
}

// SendHeartbeat emits a liveness ping.
func (c *channel) SendHeartbeat() error {
	return c.send(protocol.NewClientHeartbeat())
}

func (c *channel) send(v any) error {
	c.mu.RLock()
	tr, connected := c.tr, c.connected
	c.mu.RUnlock()

	if !connected || tr == nil {
		return ErrNotConnected
	}
	return tr.send(v)
}

// IsConnected reports whether the channel is established.
func (c *channel) IsConnected() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.connected
}

// Close tears the channel down. Safe to call at any point in the
// lifecycle, including while the dial is still in flight.
func (c *channel) Close() error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return nil
	}
	c.closed = true
	c.connected = false
	tr := c.tr
	c.mu.Unlock()

	c.lifeCancel()
	if tr != nil {
		tr.teardown()
	}
	return nil
}

// wsTransport is the primary WebSocket transport.
type wsTransport struct {
	conn         *websocket.Conn
	writeTimeout time.Duration
	writeMu      sync.Mutex
}

func (t *wsTransport) send(v any) error {
	t.writeMu.Lock()
	defer t.writeMu.Unlock()

	t.conn.SetWriteDeadline(time.Now().Add(t.writeTimeout))
	return t.conn.WriteJSON(v)
}

func (t *wsTransport) recv() ([]byte, error) {
	_, data, err := t.conn.ReadMessage()
	return data, err
}

func (t *wsTransport) teardown() {
	t.writeMu.Lock()
	t.conn.WriteControl(
		websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
		time.Now().Add(time.Second),
	)
	t.writeMu.Unlock()
	t.conn.Close()
}

func (t *wsTransport) name() string { return "websocket" }
