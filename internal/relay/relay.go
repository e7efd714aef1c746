package relay

import (
	"errors"
	"log/slog"
	"time"

	"github.com/coview/sync-agent/internal/protocol"
)

// Errors
var (
	ErrNotConnected  = errors.New("not connected")
	ErrAlreadyClosed = errors.New("already closed")
)

// Reason classifies why a channel disconnected.
type Reason int

const (
	// ReasonLocal means we closed the channel ourselves.
	ReasonLocal Reason = iota

	// ReasonServer means the relay closed the channel deliberately
	// (normal-closure or going-away close frame, or a polling teardown).
	ReasonServer

	// ReasonTransport covers everything else: network failures, abrupt
	// resets, protocol errors. Only these disconnects are worth retrying.
	ReasonTransport
)

func (r Reason) String() string {
	switch r {
	case ReasonLocal:
		return "local"
	case ReasonServer:
		return "server"
	case ReasonTransport:
		return "transport"
	}
	return "unknown"
}

// Event is an event emitted by a Channel. The variant set is sealed.
type Event interface {
	channelEvent()
}

// Connected reports that the dial succeeded (over either transport).
type Connected struct{}

// ConnectFailed reports that the dial failed on every enabled transport.
// Terminal: no further events follow.
type ConnectFailed struct {
	Err error
}

// Disconnected reports that an established channel went down.
// Terminal: no further events follow.
type Disconnected struct {
	Reason Reason
}

// Joined confirms room membership.
type Joined struct {
	RoomID   string
	State    protocol.PlaybackState
	Progress float64
}

// RemoteUpdate is another room member's playback change.
type RemoteUpdate struct {
	SenderID string
	State    protocol.PlaybackState
	Progress float64
}

// Rejoined announces a member's return, carrying the room's current
// playback position.
type Rejoined struct {
	RoomID   string
	SenderID string
	State    protocol.PlaybackState
	Progress float64
}

func (Connected) channelEvent()     {}
func (ConnectFailed) channelEvent() {}
func (Disconnected) channelEvent()  {}
func (Joined) channelEvent()        {}
func (RemoteUpdate) channelEvent()  {}
func (Rejoined) channelEvent()      {}

// Params are the connection parameters encoded into the open request.
type Params struct {
	VideoProgress float64
	VideoState    protocol.PlaybackState
	RoomID        string // empty = ask the relay to mint a room
}

// Channel is one duplex connection to the relay.
type Channel interface {
	// Events returns the event stream. It closes after the terminal event.
	Events() <-chan Event

	// SendUpdate forwards a local playback change to the relay.
	SendUpdate(state protocol.PlaybackState, progress float64) error

	// SendHeartbeat emits a fire-and-forget liveness ping.
	SendHeartbeat() error

	// IsConnected reports whether the channel is currently established.
	IsConnected() bool

	// Close tears the channel down, aborting an in-flight dial if needed.
	Close() error
}

// Dialer opens channels to the relay.
type Dialer interface {
	// Open starts a connection attempt and returns immediately; the dial
	// outcome arrives on the returned channel's event stream.
	Open(params Params) Channel
}

// Config configures the relay dialer.
type Config struct {
	URL                   string        // relay WebSocket URL (ws:// or wss://)
	HandshakeTimeout      time.Duration // WebSocket handshake deadline
	WriteTimeout          time.Duration // write deadline for sends
	EventBuffer           int           // event channel buffer size
	EnablePollingFallback bool          // long-poll when the WS dial fails
}

// DefaultConfig returns sensible defaults.
func DefaultConfig() Config {
	return Config{
		HandshakeTimeout:      10 * time.Second,
		WriteTimeout:          5 * time.Second,
		EventBuffer:           64,
		EnablePollingFallback: true,
	}
}

// dialer implements the Dialer interface.
type dialer struct {
	cfg    Config
	logger *slog.Logger
}

// NewDialer creates the production dialer.
func NewDialer(cfg Config, logger *slog.Logger) Dialer {
	if logger == nil {
		logger = slog.Default()
	}
	return &dialer{cfg: cfg, logger: logger}
}

// Open starts a connection attempt in the background.
func (d *dialer) Open(params Params) Channel {
	ch := newChannel(d.cfg, d.logger)
	go ch.run(params)
	return ch
}
