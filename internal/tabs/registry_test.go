package tabs

import (
	"context"
	"sync"
	"testing"

	"github.com/coview/sync-agent/internal/protocol"
	"github.com/coview/sync-agent/internal/session"
)

// stubSession records lifecycle calls.
type stubSession struct {
	mu        sync.Mutex
	requests  int
	shutdowns int
}

func (s *stubSession) Connect(float64, protocol.PlaybackState, string, bool) error { return nil }
func (s *stubSession) Disconnect() error                                           { return nil }
func (s *stubSession) LocalUpdate(float64, protocol.PlaybackState) error           { return nil }

func (s *stubSession) RequestConnection() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.requests++
	return nil
}

func (s *stubSession) RoomID() (string, bool) { return "", false }
func (s *stubSession) Snapshot() session.Status { return session.Status{} }

func (s *stubSession) Shutdown() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.shutdowns++
}

func (s *stubSession) counts() (requests, shutdowns int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.requests, s.shutdowns
}

type stubPopup struct {
	mu      sync.Mutex
	actions []protocol.ActionStateNotice
}

func (p *stubPopup) RoomID(string, string) {}

func (p *stubPopup) ActionEnabled(tabID string, enabled bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.actions = append(p.actions, protocol.NewActionStateNotice(tabID, enabled))
}

type nopContent struct{}

func (nopContent) RequestConnection() {}
func (nopContent) RemoteUpdate(protocol.PlaybackState, float64) {}
func (nopContent) ConnectionError(string) {}

func newTestRegistry() (*Registry, *stubPopup, map[string]*stubSession) {
	popup := &stubPopup{}
	created := make(map[string]*stubSession)
	factory := func(tabID string, _ session.ContentPort) Session {
		s := &stubSession{}
		created[tabID] = s
		return s
	}
	return NewRegistry(factory, popup, nil), popup, created
}

func TestRegistry_AttachDetach(t *testing.T) {
	reg, popup, created := newTestRegistry()

	reg.Attach("7", "https://video.example/watch?v=abc", nopContent{})

	if reg.Len() != 1 {
		t.Fatalf("Len = %d, want 1", reg.Len())
	}
	if _, ok := reg.Lookup("7"); !ok {
		t.Fatal("Lookup failed for attached tab")
	}
	if requests, _ := created["7"].counts(); requests != 0 {
		t.Errorf("requests = %d, want 0 (URL has no room id)", requests)
	}

	reg.Detach("7")

	if reg.Len() != 0 {
		t.Errorf("Len = %d after detach, want 0", reg.Len())
	}
	if _, shutdowns := created["7"].counts(); shutdowns != 1 {
		t.Errorf("shutdowns = %d, want 1", shutdowns)
	}

	popup.mu.Lock()
	defer popup.mu.Unlock()
	if len(popup.actions) != 1 || popup.actions[0].Enabled || popup.actions[0].TabID != "7" {
		t.Errorf("popup actions = %+v, want single disable for tab 7", popup.actions)
	}
}

func TestRegistry_AttachWithRoomInURL(t *testing.T) {
	reg, _, created := newTestRegistry()

	reg.Attach("3", "https://video.example/watch?v=abc&coview=R1", nopContent{})

	if requests, _ := created["3"].counts(); requests != 1 {
		t.Errorf("requests = %d, want 1 (URL carries room id)", requests)
	}
}

func TestRegistry_ReattachReplacesSession(t *testing.T) {
	reg, _, _ := newTestRegistry()

	first := reg.Attach("5", "", nopContent{}).(*stubSession)
	second := reg.Attach("5", "", nopContent{}).(*stubSession)

	if first == second {
		t.Fatal("re-attach should create a fresh session")
	}
	if _, shutdowns := first.counts(); shutdowns != 1 {
		t.Error("old session was not shut down on re-attach")
	}
	if reg.Len() != 1 {
		t.Errorf("Len = %d, want 1", reg.Len())
	}

	got, _ := reg.Lookup("5")
	if got != Session(second) {
		t.Error("Lookup should return the replacement session")
	}
}

func TestRegistry_DetachSessionIgnoresSuperseded(t *testing.T) {
	reg, _, _ := newTestRegistry()

	first := reg.Attach("5", "", nopContent{}).(*stubSession)
	second := reg.Attach("5", "", nopContent{}).(*stubSession)

	// The superseded stream's teardown must leave the replacement alone.
	reg.DetachSession("5", first)

	if reg.Len() != 1 {
		t.Fatalf("Len = %d, want 1 after superseded detach", reg.Len())
	}
	if got, ok := reg.Lookup("5"); !ok || got != Session(second) {
		t.Fatal("replacement session should still be registered")
	}
	if _, shutdowns := second.counts(); shutdowns != 0 {
		t.Error("replacement session must not be shut down by the old stream")
	}

	reg.DetachSession("5", second)

	if reg.Len() != 0 {
		t.Errorf("Len = %d, want 0", reg.Len())
	}
	if _, shutdowns := second.counts(); shutdowns != 1 {
		t.Error("current session should be shut down on its own detach")
	}
}

func TestRegistry_DetachUnknownTab(t *testing.T) {
	reg, popup, _ := newTestRegistry()

	reg.Detach("nope")

	popup.mu.Lock()
	defer popup.mu.Unlock()
	if len(popup.actions) != 0 {
		t.Error("detach of unknown tab should not touch the popup")
	}
}

func TestRegistry_Shutdown(t *testing.T) {
	reg, _, created := newTestRegistry()

	reg.Attach("1", "", nopContent{})
	reg.Attach("2", "", nopContent{})

	if err := reg.Shutdown(context.Background()); err != nil {
		t.Fatalf("Shutdown failed: %v", err)
	}

	if reg.Len() != 0 {
		t.Errorf("Len = %d after shutdown, want 0", reg.Len())
	}
	for id, sess := range created {
		if _, shutdowns := sess.counts(); shutdowns != 1 {
			t.Errorf("tab %s: shutdowns = %d, want 1", id, shutdowns)
		}
	}
}

func TestRoomIDFromURL(t *testing.T) {
	tests := []struct {
		name string
		url  string
		want string
	}{
		{"with room", "https://video.example/watch?coview=R1", "R1"},
		{"with room among others", "https://video.example/watch?v=abc&coview=R2&t=3", "R2"},
		{"no room", "https://video.example/watch?v=abc", ""},
		{"empty url", "", ""},
		{"garbage url", "://not-a-url", ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := roomIDFromURL(tt.url); got != tt.want {
				t.Errorf("roomIDFromURL(%q) = %q, want %q", tt.url, got, tt.want)
			}
		})
	}
}
