package protocol

// Notification type tags (core → collaborators).
const (
	TypeConnectionRequest = "room-connection-request"
	TypeRemoteUpdate      = "remote-update"
	TypeConnectionError   = "connection-error"
	TypeRoomID            = "room-id"
	TypeActionState       = "action-state"
)

// ConnectionRequestNotice asks the content collaborator to read the
// current playback position and send a room-connection message back.
type ConnectionRequestNotice struct {
	Type string `json:"type"`
}

// NewConnectionRequestNotice builds a room-connection-request notice.
func NewConnectionRequestNotice() ConnectionRequestNotice {
	return ConnectionRequestNotice{Type: TypeConnectionRequest}
}

// RemoteUpdateNotice forwards the room's playback position to the
// content collaborator.
type RemoteUpdateNotice struct {
	Type          string        `json:"type"`
	VideoState    PlaybackState `json:"video_state"`
	VideoProgress float64       `json:"video_progress"`
}

// NewRemoteUpdateNotice builds a remote-update notice.
func NewRemoteUpdateNotice(state PlaybackState, progress float64) RemoteUpdateNotice {
	return RemoteUpdateNotice{Type: TypeRemoteUpdate, VideoState: state, VideoProgress: progress}
}

// ConnectionErrorNotice surfaces a terminal, user-visible connection
// error to the content collaborator.
type ConnectionErrorNotice struct {
	Type  string `json:"type"`
	Error string `json:"error"`
}

// NewConnectionErrorNotice builds a connection-error notice.
func NewConnectionErrorNotice(msg string) ConnectionErrorNotice {
	return ConnectionErrorNotice{Type: TypeConnectionError, Error: msg}
}

// RoomIDNotice tells the popup which room a tab is in. RoomID is empty
// when the tab has no active room.
type RoomIDNotice struct {
	Type   string `json:"type"`
	TabID  string `json:"tab_id"`
	RoomID string `json:"room_id,omitempty"`
}

// NewRoomIDNotice builds a room-id notice.
func NewRoomIDNotice(tabID, roomID string) RoomIDNotice {
	return RoomIDNotice{Type: TypeRoomID, TabID: tabID, RoomID: roomID}
}

// ActionStateNotice tells the popup whether the tab's action affordance
// should be enabled.
type ActionStateNotice struct {
	Type    string `json:"type"`
	TabID   string `json:"tab_id"`
	Enabled bool   `json:"enabled"`
}

// NewActionStateNotice builds an action-state notice.
func NewActionStateNotice(tabID string, enabled bool) ActionStateNotice {
	return ActionStateNotice{Type: TypeActionState, TabID: tabID, Enabled: enabled}
}
