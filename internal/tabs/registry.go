package tabs

import (
	"context"
	"log/slog"
	"net/url"
	"sync"

	"github.com/coview/sync-agent/internal/protocol"
	"github.com/coview/sync-agent/internal/session"
)

// RoomURLParam is the page-URL query parameter carrying a target room id.
const RoomURLParam = "coview"

// Session is the per-tab connection lifecycle the registry manages.
// Implemented by *session.Session.
type Session interface {
	Connect(progress float64, state protocol.PlaybackState, roomID string, isReconnect bool) error
	Disconnect() error
	LocalUpdate(progress float64, state protocol.PlaybackState) error
	RequestConnection() error
	RoomID() (string, bool)
	Snapshot() session.Status
	Shutdown()
}

// Factory creates the session for a newly attached tab.
type Factory func(tabID string, content session.ContentPort) Session

// Registry maps attached tabs to their sessions.
type Registry struct {
	factory Factory
	popup   session.PopupPort
	logger  *slog.Logger

	mu   sync.Mutex
	tabs map[string]Session
}

// NewRegistry creates an empty registry.
func NewRegistry(factory Factory, popup session.PopupPort, logger *slog.Logger) *Registry {
	if logger == nil {
		logger = slog.Default()
	}
	return &Registry{
		factory: factory,
		popup:   popup,
		logger:  logger,
		tabs:    make(map[string]Session),
	}
}

// Attach creates the session for a tab. Re-attaching a live tab id (a
// page reload reopening its collaborator stream) tears the old session
// down first and starts fresh.
//
// When the page URL carries a room id the content collaborator is asked
// to initiate a connection; the registry never connects directly because
// the playback position must be read from the page first.
func (r *Registry) Attach(tabID, pageURL string, content session.ContentPort) Session {
	r.mu.Lock()
	if old, ok := r.tabs[tabID]; ok {
		r.logger.Info("tab re-attached, replacing session", "tab_id", tabID)
		old.Shutdown()
	}
	sess := r.factory(tabID, content)
	r.tabs[tabID] = sess
	r.mu.Unlock()

	r.logger.Info("tab attached", "tab_id", tabID)

	if roomIDFromURL(pageURL) != "" {
		sess.RequestConnection()
	}
	return sess
}

// Detach disables the tab's action affordance, tears its session down
// and removes it. Unknown tab ids are a no-op.
func (r *Registry) Detach(tabID string) {
	r.mu.Lock()
	sess, ok := r.tabs[tabID]
	if ok {
		delete(r.tabs, tabID)
	}
	r.mu.Unlock()

	if !ok {
		return
	}

	r.popup.ActionEnabled(tabID, false)
	sess.Shutdown()
	r.logger.Info("tab detached", "tab_id", tabID)
}

// DetachSession detaches the tab only while it is still bound to sess.
// A stream superseded by a re-attach tears down nothing: the
// replacement session belongs to the new stream.
func (r *Registry) DetachSession(tabID string, sess Session) {
	r.mu.Lock()
	current, ok := r.tabs[tabID]
	if ok && current == sess {
		delete(r.tabs, tabID)
	} else {
		ok = false
	}
	r.mu.Unlock()

	if !ok {
		return
	}

	r.popup.ActionEnabled(tabID, false)
	sess.Shutdown()
	r.logger.Info("tab detached", "tab_id", tabID)
}

// Lookup returns the session for a tab, if attached.
func (r *Registry) Lookup(tabID string) (Session, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	sess, ok := r.tabs[tabID]
	return sess, ok
}

// Len returns the number of attached tabs.
func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.tabs)
}

// TabIDs returns the attached tab ids.
func (r *Registry) TabIDs() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	ids := make([]string, 0, len(r.tabs))
	for id := range r.tabs {
		ids = append(ids, id)
	}
	return ids
}

// Statuses returns a snapshot of every attached tab.
func (r *Registry) Statuses() []session.Status {
	statuses := make([]session.Status, 0, r.Len())
	for _, id := range r.TabIDs() {
		if sess, ok := r.Lookup(id); ok {
			statuses = append(statuses, sess.Snapshot())
		}
	}
	return statuses
}

// Shutdown detaches every tab, for agent shutdown.
func (r *Registry) Shutdown(ctx context.Context) error {
	for _, id := range r.TabIDs() {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}
		r.Detach(id)
	}
	return nil
}

// roomIDFromURL extracts the target room id from a page URL, if any.
func roomIDFromURL(pageURL string) string {
	if pageURL == "" {
		return ""
	}
	u, err := url.Parse(pageURL)
	if err != nil {
		return ""
	}
	return u.Query().Get(RoomURLParam)
}
