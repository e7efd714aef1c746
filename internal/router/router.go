package router

import (
	"errors"
	"fmt"
	"log/slog"

	"github.com/coview/sync-agent/internal/metrics"
	"github.com/coview/sync-agent/internal/protocol"
	"github.com/coview/sync-agent/internal/tabs"
)

// Errors
var (
	ErrUnknownTab = errors.New("unknown tab")
)

// SessionLookup resolves tab ids to their sessions. Implemented by
// *tabs.Registry.
type SessionLookup interface {
	Lookup(tabID string) (tabs.Session, bool)
}

// Router dispatches collaborator messages into session operations.
type Router struct {
	sessions SessionLookup
	hub      *PopupHub
	logger   *slog.Logger
}

// New creates a router.
func New(sessions SessionLookup, hub *PopupHub, logger *slog.Logger) *Router {
	if logger == nil {
		logger = slog.Default()
	}
	return &Router{
		sessions: sessions,
		hub:      hub,
		logger:   logger,
	}
}

// HandleContent dispatches one raw content-stream message for a tab.
// The returned error is scoped to this message only.
func (r *Router) HandleContent(tabID string, raw []byte) error {
	msg, err := protocol.DecodeContentMessage(raw)
	if err != nil {
		metrics.InvalidMessagesTotal.WithLabelValues("content").Inc()
		return fmt.Errorf("content message from tab %s: %w", tabID, err)
	}

	sess, ok := r.sessions.Lookup(tabID)
	if !ok {
		return fmt.Errorf("content message from tab %s: %w", tabID, ErrUnknownTab)
	}

	switch m := msg.(type) {
	case protocol.RoomConnection:
		return sess.Connect(m.VideoProgress, m.VideoState, m.RoomID, false)

	case protocol.LocalUpdate:
		return sess.LocalUpdate(m.VideoProgress, m.VideoState)

	case protocol.HeartbeatAck:
		// Reserved for future use.
		return nil
	}

	// Unreachable: the decoder seals the variant set.
	return nil
}

// HandlePopup dispatches one raw popup-stream message. The returned
// error is scoped to this message only.
func (r *Router) HandlePopup(raw []byte) error {
	msg, err := protocol.DecodePopupMessage(raw)
	if err != nil {
		metrics.InvalidMessagesTotal.WithLabelValues("popup").Inc()
		return fmt.Errorf("popup message: %w", err)
	}

	switch m := msg.(type) {
	case protocol.CreateRoom:
		sess, ok := r.sessions.Lookup(m.TabID)
		if !ok {
			return fmt.Errorf("create-room for tab %s: %w", m.TabID, ErrUnknownTab)
		}
		return sess.RequestConnection()

	case protocol.DisconnectRoom:
		sess, ok := r.sessions.Lookup(m.TabID)
		if !ok {
			return fmt.Errorf("disconnect-room for tab %s: %w", m.TabID, ErrUnknownTab)
		}
		return sess.Disconnect()

	case protocol.RequestRoomID:
		sess, ok := r.sessions.Lookup(m.TabID)
		if !ok {
			// An unknown tab simply has no room.
			r.hub.RoomID(m.TabID, "")
			return nil
		}
		roomID, _ := sess.RoomID()
		r.hub.RoomID(m.TabID, roomID)
		return nil
	}

	return nil
}
