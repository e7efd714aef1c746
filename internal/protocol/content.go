package protocol

import (
	"encoding/json"
	"errors"
	"fmt"
)

// Errors
var (
	ErrUnknownType    = errors.New("unknown message type")
	ErrInvalidPayload = errors.New("invalid message payload")
)

// PlaybackState is the player state reported by the content collaborator
// and relayed between room members.
type PlaybackState string

const (
	PlaybackPlaying PlaybackState = "playing"
	PlaybackPaused  PlaybackState = "paused"
	PlaybackWaiting PlaybackState = "waiting"
)

// Valid reports whether s is one of the known playback states.
func (s PlaybackState) Valid() bool {
	switch s {
	case PlaybackPlaying, PlaybackPaused, PlaybackWaiting:
		return true
	}
	return false
}

// Content stream type tags (content collaborator → core).
const (
	TypeRoomConnection = "room-connection"
	TypeLocalUpdate    = "local-update"
	TypeHeartbeatAck   = "heartbeat-ack"
)

// ContentMessage is a message received from the content collaborator.
// The variant set is sealed; values are produced by DecodeContentMessage.
type ContentMessage interface {
	contentMessage()
}

// RoomConnection asks the core to open a relay connection for the tab,
// carrying the playback position read from the page and any room id the
// page URL encoded.
type RoomConnection struct {
	VideoProgress float64       `json:"video_progress"`
	VideoState    PlaybackState `json:"video_state"`
	RoomID        string        `json:"room_id,omitempty"`
}

// LocalUpdate reports a local playback change (seek, play, pause).
type LocalUpdate struct {
	VideoProgress float64       `json:"video_progress"`
	VideoState    PlaybackState `json:"video_state"`
}

// HeartbeatAck is reserved; the router treats it as a no-op.
type HeartbeatAck struct{}

func (RoomConnection) contentMessage() {}
func (LocalUpdate) contentMessage()    {}
func (HeartbeatAck) contentMessage()   {}

// envelope extracts the type tag before variant-specific decoding.
type envelope struct {
	Type string `json:"type"`
}

// DecodeContentMessage parses one content-stream message.
func DecodeContentMessage(data []byte) (ContentMessage, error) {
	var env envelope
	if err := json.Unmarshal(data, &env); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidPayload, err)
	}

	switch env.Type {
	case TypeRoomConnection:
		var msg RoomConnection
		if err := json.Unmarshal(data, &msg); err != nil {
			return nil, fmt.Errorf("%w: %v", ErrInvalidPayload, err)
		}
		if !msg.VideoState.Valid() {
			return nil, fmt.Errorf("%w: video_state %q", ErrInvalidPayload, msg.VideoState)
		}
		return msg, nil

	case TypeLocalUpdate:
		var msg LocalUpdate
		if err := json.Unmarshal(data, &msg); err != nil {
			return nil, fmt.Errorf("%w: %v", ErrInvalidPayload, err)
		}
		if !msg.VideoState.Valid() {
			return nil, fmt.Errorf("%w: video_state %q", ErrInvalidPayload, msg.VideoState)
		}
		return msg, nil

	case TypeHeartbeatAck:
		return HeartbeatAck{}, nil

	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownType, env.Type)
	}
}
