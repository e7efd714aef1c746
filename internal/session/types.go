package session

import (
	"errors"
	"time"

	"github.com/coview/sync-agent/internal/protocol"
)

// Errors
var (
	ErrSessionClosed = errors.New("session closed")
)

// State is the connection lifecycle state of a tab.
type State int

const (
	// StateDisconnected is the initial state, and the terminal state after
	// a manual disconnect or retry exhaustion.
	StateDisconnected State = iota

	// StateConnecting means a channel dial is in flight.
	StateConnecting

	// StateConnected means the relay channel is established.
	StateConnected

	// StateReconnecting means a retry timer is armed after a failure.
	StateReconnecting
)

func (s State) String() string {
	switch s {
	case StateDisconnected:
		return "disconnected"
	case StateConnecting:
		return "connecting"
	case StateConnected:
		return "connected"
	case StateReconnecting:
		return "reconnecting"
	}
	return "unknown"
}

// ContentPort is the session's view of the content collaborator.
type ContentPort interface {
	// RequestConnection asks the collaborator to read the page's playback
	// position and send a room-connection message back.
	RequestConnection()

	// RemoteUpdate forwards the room's playback position to the page.
	RemoteUpdate(state protocol.PlaybackState, progress float64)

	// ConnectionError surfaces a terminal, user-visible error.
	ConnectionError(msg string)
}

// PopupPort is the session's view of the popup collaborator.
type PopupPort interface {
	// RoomID reports the tab's current room (empty = no room).
	RoomID(tabID, roomID string)

	// ActionEnabled toggles the tab's action affordance.
	ActionEnabled(tabID string, enabled bool)
}

// Status is a point-in-time snapshot of a session, answered synchronously
// by the actor for the router, the health endpoint and tests.
type Status struct {
	TabID             string    `json:"tab_id"`
	State             string    `json:"state"`
	RoomID            string    `json:"room_id,omitempty"`
	ReconnectAttempts int       `json:"reconnect_attempts"`
	RequestPending    bool      `json:"request_pending"`
	LastHeartbeatAt   time.Time `json:"last_heartbeat_at,omitzero"`
}

// Config configures a session.
type Config struct {
	TabID                string
	ConnectTimeout       time.Duration // liveness bound on the connecting phase
	HeartbeatInterval    time.Duration // app-level heartbeat period
	ReconnectBaseDelay   time.Duration // first retry delay; doubles per attempt
	MaxReconnectAttempts int           // retry ceiling before giving up
}

// DefaultConfig returns sensible defaults.
func DefaultConfig() Config {
	return Config{
		ConnectTimeout:       10 * time.Second,
		HeartbeatInterval:    30 * time.Second,
		ReconnectBaseDelay:   time.Second,
		MaxReconnectAttempts: 5,
	}
}
