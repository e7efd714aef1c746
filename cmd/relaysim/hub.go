package main

import (
	"encoding/json"
	"log/slog"
	"sync"

	"github.com/google/uuid"

	"github.com/coview/sync-agent/internal/protocol"
)

// member is one connected client, WebSocket or polling.
type member struct {
	id     string
	roomID string

	// deliver carries encoded relay events to the member's transport.
	deliver chan []byte
	gone    chan struct{}
	once    sync.Once
}

func newMember(roomID string) *member {
	return &member{
		id:      uuid.NewString(),
		roomID:  roomID,
		deliver: make(chan []byte, 64),
		gone:    make(chan struct{}),
	}
}

func (m *member) push(ev wireEvent) {
	data, err := json.Marshal(ev)
	if err != nil {
		return
	}
	select {
	case m.deliver <- data:
	case <-m.gone:
	default:
		// Slow member; drop rather than stall the room.
	}
}

func (m *member) close() {
	m.once.Do(func() { close(m.gone) })
}

// room holds the members and the last known playback position.
type room struct {
	id       string
	state    protocol.PlaybackState
	progress float64
	members  map[string]*member
}

// hub owns all rooms and polling sessions.
type hub struct {
	mu     sync.Mutex
	rooms  map[string]*room
	polls  map[string]*member // token → polling member
	logger *slog.Logger
}

func newHub(logger *slog.Logger) *hub {
	return &hub{
		rooms:  make(map[string]*room),
		polls:  make(map[string]*member),
		logger: logger,
	}
}

// join adds a member to a room, minting the room when no id was given.
// The newcomer gets a join event; existing members are told the member
// (re)connected.
func (h *hub) join(p openParams) *member {
	h.mu.Lock()
	defer h.mu.Unlock()

	roomID := p.roomID
	if roomID == "" {
		roomID = uuid.NewString()
	}

	rm, ok := h.rooms[roomID]
	if !ok {
		rm = &room{
			id:       roomID,
			state:    p.state,
			progress: p.progress,
			members:  make(map[string]*member),
		}
		h.rooms[roomID] = rm
	}

	m := newMember(roomID)
	rm.members[m.id] = m

	m.push(wireEvent{
		Type:          protocol.TypeJoin,
		RoomID:        rm.id,
		VideoState:    rm.state,
		VideoProgress: rm.progress,
	})

	for _, other := range rm.members {
		if other.id == m.id {
			continue
		}
		other.push(wireEvent{
			Type:          protocol.TypeReconnected,
			RoomID:        rm.id,
			SenderID:      m.id,
			VideoState:    rm.state,
			VideoProgress: rm.progress,
		})
	}

	h.logger.Info("member joined",
		"room_id", rm.id,
		"member_id", m.id,
		"members", len(rm.members),
	)
	return m
}

// leave removes a member, dropping the room once it empties.
func (h *hub) leave(m *member) {
	h.mu.Lock()
	defer h.mu.Unlock()

	m.close()
	rm, ok := h.rooms[m.roomID]
	if !ok {
		return
	}
	delete(rm.members, m.id)
	if len(rm.members) == 0 {
		delete(h.rooms, rm.id)
		h.logger.Info("room emptied", "room_id", rm.id)
		return
	}
	h.logger.Info("member left", "room_id", rm.id, "member_id", m.id)
}

// handleMessage processes one client → relay message from a member.
func (h *hub) handleMessage(m *member, data []byte) {
	var env struct {
		Type string `json:"type"`
	}
	if err := json.Unmarshal(data, &env); err != nil {
		h.logger.Warn("bad message", "member_id", m.id, "error", err)
		return
	}

	switch env.Type {
	case protocol.TypeUpdate:
		var upd protocol.ClientUpdate
		if err := json.Unmarshal(data, &upd); err != nil {
			h.logger.Warn("bad update", "member_id", m.id, "error", err)
			return
		}
		h.broadcastUpdate(m, upd)

	case protocol.TypeHeartbeat:
		// Fire-and-forget liveness ping; nothing to answer.
		h.logger.Debug("heartbeat", "member_id", m.id)

	default:
		h.logger.Warn("unknown message type", "member_id", m.id, "type", env.Type)
	}
}

// broadcastUpdate records the room's new position and fans it out to
// every member except the sender.
func (h *hub) broadcastUpdate(m *member, upd protocol.ClientUpdate) {
	h.mu.Lock()
	defer h.mu.Unlock()

	rm, ok := h.rooms[m.roomID]
	if !ok {
		return
	}
	rm.state = upd.VideoState
	rm.progress = upd.VideoProgress

	h.logger.Debug("update",
		"room_id", rm.id,
		"member_id", m.id,
		"video_state", upd.VideoState,
		"video_progress", upd.VideoProgress,
	)

	for _, other := range rm.members {
		if other.id == m.id {
			continue
		}
		other.push(wireEvent{
			Type:          protocol.TypeUpdate,
			SenderID:      m.id,
			VideoState:    upd.VideoState,
			VideoProgress: upd.VideoProgress,
		})
	}
}
