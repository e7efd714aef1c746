package session

import (
	"log/slog"
	"time"

	"github.com/benbjohnson/clock"

	"github.com/coview/sync-agent/internal/metrics"
	"github.com/coview/sync-agent/internal/protocol"
	"github.com/coview/sync-agent/internal/relay"
)

// Session is the connection lifecycle actor for one tab.
type Session struct {
	cfg     Config
	dialer  relay.Dialer
	content ContentPort
	popup   PopupPort
	clock   clock.Clock
	logger  *slog.Logger

	ops  chan func()
	done chan struct{}

	// Actor-owned state below; touched only by the run goroutine.
	state          State
	channel        relay.Channel
	events         <-chan relay.Event
	roomID         string
	attempts       int
	requestPending bool
	lastHeartbeat  time.Time
	lastParams     relay.Params

	// Timer handles: at most one live per purpose.
	connectTimeout *clock.Timer
	retry          *clock.Timer
	heartbeat      *clock.Ticker
}

// New creates a session and starts its actor goroutine.
func New(cfg Config, dialer relay.Dialer, content ContentPort, popup PopupPort, clk clock.Clock, logger *slog.Logger) *Session {
	def := DefaultConfig()
	if cfg.ConnectTimeout == 0 {
		cfg.ConnectTimeout = def.ConnectTimeout
	}
	if cfg.HeartbeatInterval == 0 {
		cfg.HeartbeatInterval = def.HeartbeatInterval
	}
	if cfg.ReconnectBaseDelay == 0 {
		cfg.ReconnectBaseDelay = def.ReconnectBaseDelay
	}
	if cfg.MaxReconnectAttempts == 0 {
		cfg.MaxReconnectAttempts = def.MaxReconnectAttempts
	}
	if clk == nil {
		clk = clock.New()
	}
	if logger == nil {
		logger = slog.Default()
	}

	s := &Session{
		cfg:     cfg,
		dialer:  dialer,
		content: content,
		popup:   popup,
		clock:   clk,
		logger:  logger.With("tab_id", cfg.TabID),
		ops:     make(chan func(), 16),
		done:    make(chan struct{}),
	}

	metrics.SessionsActive.Inc()
	go s.run()
	return s
}

// run is the actor loop. All state transitions happen here, strictly
// sequentially: collaborator operations, relay events and timer fires
// are different cases of the same select.
func (s *Session) run() {
	for {
		select {
		case op := <-s.ops:
			op()
			select {
			case <-s.done:
				return
			default:
			}

		case ev, ok := <-s.events:
			if !ok {
				s.events = nil
				continue
			}
			s.handleEvent(ev)

		case <-s.timeoutC():
			s.handleConnectTimeout()

		case <-s.retryC():
			s.handleRetryFire()

		case <-s.heartbeatC():
			s.handleHeartbeatTick()
		}
	}
}

// do posts an operation onto the actor.
func (s *Session) do(op func()) error {
	select {
	case <-s.done:
		return ErrSessionClosed
	default:
	}

	select {
	case s.ops <- op:
		return nil
	case <-s.done:
		return ErrSessionClosed
	}
}

// timeoutC returns the armed connect-timeout channel, or nil. Evaluated
// fresh on every select iteration, so a released timer is never read.
func (s *Session) timeoutC() <-chan time.Time {
	if s.connectTimeout == nil {
		return nil
	}
	return s.connectTimeout.C
}

func (s *Session) retryC() <-chan time.Time {
	if s.retry == nil {
		return nil
	}
	return s.retry.C
}

func (s *Session) heartbeatC() <-chan time.Time {
	if s.heartbeat == nil {
		return nil
	}
	return s.heartbeat.C
}

// Connect opens (or reopens) the tab's relay connection.
func (s *Session) Connect(progress float64, state protocol.PlaybackState, roomID string, isReconnect bool) error {
	return s.do(func() { s.connect(progress, state, roomID, isReconnect) })
}

// Disconnect tears the connection down on user request.
func (s *Session) Disconnect() error {
	return s.do(func() { s.disconnect() })
}

// LocalUpdate forwards a local playback change to the relay, or falls
// back to reconnecting with the last known room id.
func (s *Session) LocalUpdate(progress float64, state protocol.PlaybackState) error {
	return s.do(func() { s.localUpdate(progress, state) })
}

// RequestConnection asks the content collaborator to initiate a
// connection (playback position must be read from the page first).
func (s *Session) RequestConnection() error {
	return s.do(func() {
		s.requestPending = true
		s.content.RequestConnection()
	})
}

// RoomID returns the tab's current room id, if any.
func (s *Session) RoomID() (string, bool) {
	st := s.Snapshot()
	return st.RoomID, st.RoomID != ""
}

// Snapshot returns a point-in-time view of the session. A closed session
// reports itself disconnected.
func (s *Session) Snapshot() Status {
	reply := make(chan Status, 1)
	if err := s.do(func() { reply <- s.status() }); err != nil {
		return Status{TabID: s.cfg.TabID, State: StateDisconnected.String()}
	}

	select {
	case st := <-reply:
		return st
	case <-s.done:
		select {
		case st := <-reply:
			return st
		default:
			return Status{TabID: s.cfg.TabID, State: StateDisconnected.String()}
		}
	}
}

// Shutdown tears the session down and stops the actor. Idempotent.
func (s *Session) Shutdown() {
	s.do(func() {
		s.disconnect()
		metrics.SessionsActive.Dec()
		close(s.done)
	})
}

// connect is the core state transition. Guards: a dial in flight wins
// over any new request, and a healthy connection is never clobbered by a
// duplicate user-triggered connect.
func (s *Session) connect(progress float64, state protocol.PlaybackState, roomID string, isReconnect bool) {
	if s.state == StateConnecting {
		s.logger.Debug("connect ignored, dial already in flight")
		return
	}
	if s.state == StateConnected && !isReconnect {
		s.logger.Debug("connect ignored, already connected")
		return
	}

	// A fresh user-initiated request starts the retry budget over.
	if !isReconnect {
		s.attempts = 0
	}

	s.releaseRetry()
	s.releaseTimeout()
	s.stopHeartbeat()
	s.closeChannel()

	s.state = StateConnecting
	s.lastParams = relay.Params{VideoProgress: progress, VideoState: state, RoomID: roomID}
	s.channel = s.dialer.Open(s.lastParams)
	s.events = s.channel.Events()
	s.connectTimeout = s.clock.Timer(s.cfg.ConnectTimeout)

	s.logger.Info("connecting to relay", "room_id", roomID, "reconnect", isReconnect)
}

func (s *Session) disconnect() {
	s.releaseRetry()
	s.releaseTimeout()
	s.stopHeartbeat()
	s.closeChannel()

	s.roomID = ""
	s.state = StateDisconnected
	s.attempts = 0
	s.requestPending = false
	s.popup.RoomID(s.cfg.TabID, "")

	s.logger.Info("disconnected")
}

func (s *Session) localUpdate(progress float64, state protocol.PlaybackState) {
	if s.state == StateConnected && s.channel != nil {
		if err := s.channel.SendUpdate(state, progress); err != nil {
			s.logger.Warn("failed to send update", "error", err)
			return
		}
		metrics.LocalUpdatesTotal.Inc()
		return
	}

	// Recovery path: reconnect with the last known room id. The id may be
	// stale relative to the page URL; the relay is the authority on drift.
	s.connect(progress, state, s.roomID, false)
}

func (s *Session) handleEvent(ev relay.Event) {
	switch ev := ev.(type) {
	case relay.Connected:
		s.releaseTimeout()
		s.state = StateConnected
		s.attempts = 0
		s.startHeartbeat()
		metrics.ConnectsTotal.Inc()
		s.logger.Info("connected to relay")

	case relay.ConnectFailed:
		s.releaseTimeout()
		s.closeChannel()
		s.state = StateDisconnected
		metrics.ConnectFailuresTotal.Inc()
		s.logger.Warn("connect failed", "error", ev.Err)
		s.scheduleRetry()

	case relay.Disconnected:
		s.releaseTimeout()
		s.stopHeartbeat()
		s.closeChannel()
		s.state = StateDisconnected
		s.logger.Info("relay channel closed", "reason", ev.Reason)
		if ev.Reason == relay.ReasonTransport {
			s.scheduleRetry()
		}

	case relay.Joined:
		s.roomID = ev.RoomID
		s.requestPending = false
		s.popup.RoomID(s.cfg.TabID, ev.RoomID)
		s.popup.ActionEnabled(s.cfg.TabID, true)
		s.content.RemoteUpdate(ev.State, ev.Progress)
		metrics.RemoteUpdatesTotal.Inc()
		s.logger.Info("joined room", "room_id", ev.RoomID)

	case relay.RemoteUpdate:
		s.content.RemoteUpdate(ev.State, ev.Progress)
		metrics.RemoteUpdatesTotal.Inc()
		s.logger.Debug("remote update", "sender_id", ev.SenderID, "state", ev.State, "progress", ev.Progress)

	case relay.Rejoined:
		if ev.RoomID != "" {
			s.roomID = ev.RoomID
		}
		s.content.RemoteUpdate(ev.State, ev.Progress)
		metrics.RemoteUpdatesTotal.Inc()
		s.logger.Info("room member reconnected", "room_id", ev.RoomID, "sender_id", ev.SenderID)
	}
}

// handleConnectTimeout bounds the connecting phase. Once connected the
// timer has already been released, so a fire always means a stuck dial.
func (s *Session) handleConnectTimeout() {
	s.releaseTimeout()
	if s.state != StateConnecting {
		return
	}

	s.logger.Warn("connect timed out")
	s.closeChannel()
	s.state = StateDisconnected
	metrics.ConnectFailuresTotal.Inc()
	s.scheduleRetry()
}

func (s *Session) releaseTimeout() {
	if s.connectTimeout != nil {
		s.connectTimeout.Stop()
		s.connectTimeout = nil
	}
}

func (s *Session) closeChannel() {
	if s.channel != nil {
		s.channel.Close()
		s.channel = nil
		s.events = nil
	}
}

func (s *Session) status() Status {
	return Status{
		TabID:             s.cfg.TabID,
		State:             s.state.String(),
		RoomID:            s.roomID,
		ReconnectAttempts: s.attempts,
		RequestPending:    s.requestPending,
		LastHeartbeatAt:   s.lastHeartbeat,
	}
}
