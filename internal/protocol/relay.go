package protocol

import (
	"encoding/json"
	"fmt"
	"math"
	"net/url"
	"strconv"
)

// Relay type tags, both directions.
const (
	TypeUpdate      = "update"
	TypeHeartbeat   = "heartbeat"
	TypeJoin        = "join"
	TypeReconnected = "reconnected"
)

// ClientUpdate is the client → relay playback update.
type ClientUpdate struct {
	Type          string        `json:"type"`
	VideoState    PlaybackState `json:"video_state"`
	VideoProgress float64       `json:"video_progress"`
}

// NewClientUpdate builds an update message for the relay.
func NewClientUpdate(state PlaybackState, progress float64) ClientUpdate {
	return ClientUpdate{Type: TypeUpdate, VideoState: state, VideoProgress: progress}
}

// ClientHeartbeat is the client → relay liveness ping. Fire-and-forget;
// the relay never acknowledges it.
type ClientHeartbeat struct {
	Type string `json:"type"`
}

// NewClientHeartbeat builds a heartbeat message for the relay.
func NewClientHeartbeat() ClientHeartbeat {
	return ClientHeartbeat{Type: TypeHeartbeat}
}

// RelayEvent is an application-level event received from the relay.
// The variant set is sealed; values are produced by DecodeRelayEvent.
type RelayEvent interface {
	relayEvent()
}

// ServerJoin confirms room membership and carries the room's current
// playback position.
type ServerJoin struct {
	RoomID        string        `json:"room_id"`
	VideoState    PlaybackState `json:"video_state"`
	VideoProgress float64       `json:"video_progress"`
}

// ServerUpdate is another member's playback change. SenderID is
// informational only.
type ServerUpdate struct {
	SenderID      string        `json:"sender_id"`
	VideoState    PlaybackState `json:"video_state"`
	VideoProgress float64       `json:"video_progress"`
}

// ServerReconnected announces a member's return to the room, carrying
// the room's current playback position.
type ServerReconnected struct {
	RoomID        string        `json:"room_id,omitempty"`
	SenderID      string        `json:"sender_id,omitempty"`
	VideoState    PlaybackState `json:"video_state"`
	VideoProgress float64       `json:"video_progress"`
}

func (ServerJoin) relayEvent()        {}
func (ServerUpdate) relayEvent()      {}
func (ServerReconnected) relayEvent() {}

// DecodeRelayEvent parses one relay → client event.
func DecodeRelayEvent(data []byte) (RelayEvent, error) {
	var env envelope
	if err := json.Unmarshal(data, &env); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidPayload, err)
	}

	switch env.Type {
	case TypeJoin:
		var ev ServerJoin
		if err := json.Unmarshal(data, &ev); err != nil {
			return nil, fmt.Errorf("%w: %v", ErrInvalidPayload, err)
		}
		return ev, nil

	case TypeUpdate:
		var ev ServerUpdate
		if err := json.Unmarshal(data, &ev); err != nil {
			return nil, fmt.Errorf("%w: %v", ErrInvalidPayload, err)
		}
		return ev, nil

	case TypeReconnected:
		var ev ServerReconnected
		if err := json.Unmarshal(data, &ev); err != nil {
			return nil, fmt.Errorf("%w: %v", ErrInvalidPayload, err)
		}
		return ev, nil

	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownType, env.Type)
	}
}

// OpenQuery encodes the relay open parameters. Progress is rounded to
// whole seconds; an empty room id is omitted so the relay mints one.
func OpenQuery(progress float64, state PlaybackState, roomID string) url.Values {
	q := url.Values{}
	q.Set("videoProgress", strconv.Itoa(int(math.Round(progress))))
	q.Set("videoState", string(state))
	if roomID != "" {
		q.Set("room", roomID)
	}
	return q
}
