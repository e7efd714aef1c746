package protocol

import (
	"encoding/json"
	"fmt"
)

// Popup stream type tags (popup collaborator → core).
const (
	TypeCreateRoom     = "create-room"
	TypeDisconnectRoom = "disconnect-room"
	TypeRequestRoomID  = "request-room-id"
)

// PopupMessage is a message received from the popup collaborator.
// The variant set is sealed; values are produced by DecodePopupMessage.
type PopupMessage interface {
	popupMessage()
}

// CreateRoom asks the core to get the named tab into a room.
type CreateRoom struct {
	TabID string `json:"tab_id"`
}

// DisconnectRoom tears the named tab's connection down.
type DisconnectRoom struct {
	TabID string `json:"tab_id"`
}

// RequestRoomID asks for the tab's current room id, if any.
type RequestRoomID struct {
	TabID string `json:"tab_id"`
}

func (CreateRoom) popupMessage()     {}
func (DisconnectRoom) popupMessage() {}
func (RequestRoomID) popupMessage()  {}

// DecodePopupMessage parses one popup-stream message.
func DecodePopupMessage(data []byte) (PopupMessage, error) {
	var env envelope
	if err := json.Unmarshal(data, &env); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidPayload, err)
	}

	switch env.Type {
	case TypeCreateRoom:
		var msg CreateRoom
		if err := json.Unmarshal(data, &msg); err != nil {
			return nil, fmt.Errorf("%w: %v", ErrInvalidPayload, err)
		}
		if msg.TabID == "" {
			return nil, fmt.Errorf("%w: missing tab_id", ErrInvalidPayload)
		}
		return msg, nil

	case TypeDisconnectRoom:
		var msg DisconnectRoom
		if err := json.Unmarshal(data, &msg); err != nil {
			return nil, fmt.Errorf("%w: %v", ErrInvalidPayload, err)
		}
		if msg.TabID == "" {
			return nil, fmt.Errorf("%w: missing tab_id", ErrInvalidPayload)
		}
		return msg, nil

	case TypeRequestRoomID:
		var msg RequestRoomID
		if err := json.Unmarshal(data, &msg); err != nil {
			return nil, fmt.Errorf("%w: %v", ErrInvalidPayload, err)
		}
		if msg.TabID == "" {
			return nil, fmt.Errorf("%w: missing tab_id", ErrInvalidPayload)
		}
		return msg, nil

	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownType, env.Type)
	}
}
