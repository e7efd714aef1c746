package gateway

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/gorilla/websocket"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/coview/sync-agent/internal/metrics"
	"github.com/coview/sync-agent/internal/protocol"
	"github.com/coview/sync-agent/internal/router"
	"github.com/coview/sync-agent/internal/tabs"
	"github.com/coview/sync-agent/internal/version"
)

// Config configures the collaborator gateway.
type Config struct {
	// AllowedOrigins whitelists Origin headers on the upgrade. Empty
	// allows any origin: collaborators are browser-extension contexts,
	// whose origins the same-host default would reject.
	AllowedOrigins []string

	SendBuffer   int           // per-connection outbound queue capacity
	WriteTimeout time.Duration // write deadline for notifications
}

// DefaultConfig returns sensible defaults.
func DefaultConfig() Config {
	return Config{
		SendBuffer:   64,
		WriteTimeout: 5 * time.Second,
	}
}

// Gateway serves the collaborator WebSocket endpoints plus health and
// metrics.
type Gateway struct {
	cfg      Config
	registry *tabs.Registry
	router   *router.Router
	hub      *router.PopupHub
	logger   *slog.Logger
	upgrader websocket.Upgrader
}

// New creates a gateway.
func New(cfg Config, registry *tabs.Registry, rt *router.Router, hub *router.PopupHub, logger *slog.Logger) *Gateway {
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.SendBuffer == 0 {
		cfg.SendBuffer = DefaultConfig().SendBuffer
	}
	if cfg.WriteTimeout == 0 {
		cfg.WriteTimeout = DefaultConfig().WriteTimeout
	}

	g := &Gateway{
		cfg:      cfg,
		registry: registry,
		router:   rt,
		hub:      hub,
		logger:   logger,
	}
	g.upgrader = websocket.Upgrader{
		CheckOrigin: g.checkOrigin,
	}
	return g
}

func (g *Gateway) checkOrigin(r *http.Request) bool {
	if len(g.cfg.AllowedOrigins) == 0 {
		return true
	}
	origin := r.Header.Get("Origin")
	for _, allowed := range g.cfg.AllowedOrigins {
		if origin == allowed {
			return true
		}
	}
	return false
}

// Handler returns the gateway's HTTP handler.
func (g *Gateway) Handler() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.Recoverer)

	r.Get("/ws/tab", g.handleTab)
	r.Get("/ws/popup", g.handlePopup)
	r.Get("/healthz", g.handleHealth)
	r.Handle("/metrics", promhttp.Handler())

	return r
}

// handleTab runs one content collaborator stream. The stream's lifetime
// is the tab's lifetime: upgrade attaches the tab, close detaches it.
func (g *Gateway) handleTab(w http.ResponseWriter, r *http.Request) {
	tabID := r.URL.Query().Get("tab")
	if tabID == "" {
		http.Error(w, "missing tab parameter", http.StatusBadRequest)
		return
	}
	pageURL := r.URL.Query().Get("url")

	conn, err := g.upgrader.Upgrade(w, r, nil)
	if err != nil {
		g.logger.Warn("content upgrade failed", "tab_id", tabID, "error", err)
		return
	}

	cc := newCollabConn(conn, g.cfg.SendBuffer, g.cfg.WriteTimeout, g.logger.With("tab_id", tabID))
	cc.logger.Info("content collaborator connected")
	metrics.CollaboratorsConnected.WithLabelValues("content").Inc()

	sess := g.registry.Attach(tabID, pageURL, &contentPort{c: cc})

	defer func() {
		// Detach by identity: a reload's fresh stream may have replaced
		// this session already, and its registry entry must survive.
		g.registry.DetachSession(tabID, sess)
		cc.close()
		metrics.CollaboratorsConnected.WithLabelValues("content").Dec()
		cc.logger.Info("content collaborator disconnected")
	}()

	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			return
		}
		if err := g.router.HandleContent(tabID, data); err != nil {
			// Scoped to this message; the stream stays up.
			cc.logger.Warn("invalid content message", "error", err)
			cc.send(protocol.NewConnectionErrorNotice("invalid message: " + err.Error()))
		}
	}
}

// handlePopup runs one popup collaborator stream. Only the most recent
// popup is tracked; its disconnection affects no tab.
func (g *Gateway) handlePopup(w http.ResponseWriter, r *http.Request) {
	conn, err := g.upgrader.Upgrade(w, r, nil)
	if err != nil {
		g.logger.Warn("popup upgrade failed", "error", err)
		return
	}

	cc := newCollabConn(conn, g.cfg.SendBuffer, g.cfg.WriteTimeout, g.logger)
	cc.logger.Info("popup collaborator connected")
	metrics.CollaboratorsConnected.WithLabelValues("popup").Inc()

	port := &popupPort{c: cc}
	g.hub.Attach(port)

	defer func() {
		g.hub.Detach(port)
		cc.close()
		metrics.CollaboratorsConnected.WithLabelValues("popup").Dec()
		cc.logger.Info("popup collaborator disconnected")
	}()

	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			return
		}
		if err := g.router.HandlePopup(data); err != nil {
			cc.logger.Warn("invalid popup message", "error", err)
		}
	}
}

func (g *Gateway) handleHealth(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]any{
		"status":   "ok",
		"version":  version.Version,
		"tabs":     g.registry.Len(),
		"sessions": g.registry.Statuses(),
	})
}
