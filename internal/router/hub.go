package router

import (
	"log/slog"
	"sync"

	"github.com/coview/sync-agent/internal/session"
)

// PopupHub tracks the single active popup collaborator. Only the most
// recently connected popup is tracked; notifications are dropped while
// none is connected. The hub itself implements session.PopupPort, so
// sessions stay unaware of popup churn.
type PopupHub struct {
	logger *slog.Logger

	mu      sync.Mutex
	current session.PopupPort
}

// NewPopupHub creates a hub with no popup attached.
func NewPopupHub(logger *slog.Logger) *PopupHub {
	if logger == nil {
		logger = slog.Default()
	}
	return &PopupHub{logger: logger}
}

// Attach makes p the tracked popup, superseding any previous one.
func (h *PopupHub) Attach(p session.PopupPort) {
	h.mu.Lock()
	h.current = p
	h.mu.Unlock()
	h.logger.Debug("popup attached")
}

// Detach clears the tracked popup. Detaching a superseded popup is a
// no-op, and no tab's connection is affected either way.
func (h *PopupHub) Detach(p session.PopupPort) {
	h.mu.Lock()
	if h.current == p {
		h.current = nil
	}
	h.mu.Unlock()
}

// RoomID forwards a room-id notification to the tracked popup.
func (h *PopupHub) RoomID(tabID, roomID string) {
	if p := h.popup(); p != nil {
		p.RoomID(tabID, roomID)
	}
}

// ActionEnabled forwards an action-affordance toggle to the tracked popup.
func (h *PopupHub) ActionEnabled(tabID string, enabled bool) {
	if p := h.popup(); p != nil {
		p.ActionEnabled(tabID, enabled)
	}
}

func (h *PopupHub) popup() session.PopupPort {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.current
}
