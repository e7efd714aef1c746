// Command relaysim is a local stand-in for the sync relay. It keeps
// rooms in memory and speaks both the WebSocket endpoint and the
// long-polling fallback, which makes it useful for manual testing of
// the agent without a real relay deployment.
package main

import (
	"flag"
	"log/slog"
	"net/http"
	"os"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/coview/sync-agent/internal/protocol"
)

func main() {
	addr := flag.String("addr", "127.0.0.1:9100", "listen address")
	verbose := flag.Bool("verbose", false, "log every message")
	flag.Parse()

	level := slog.LevelInfo
	if *verbose {
		level = slog.LevelDebug
	}
	logger := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: level}))
	slog.SetDefault(logger)

	h := newHub(logger)

	r := chi.NewRouter()
	r.Use(middleware.Recoverer)
	r.Get("/sync", h.handleWS)
	r.Post("/poll", h.handlePollOpen)
	r.Get("/poll/events", h.handlePollEvents)
	r.Post("/poll/send", h.handlePollSend)
	r.Delete("/poll", h.handlePollClose)

	logger.Info("relaysim listening",
		"addr", *addr,
		"ws_url", "ws://"+*addr+"/sync",
	)
	if err := http.ListenAndServe(*addr, r); err != nil {
		logger.Error("relaysim exited", "error", err)
		os.Exit(1)
	}
}

// wireEvent is the relay → client message envelope.
type wireEvent struct {
	Type          string                 `json:"type"`
	RoomID        string                 `json:"room_id,omitempty"`
	SenderID      string                 `json:"sender_id,omitempty"`
	VideoState    protocol.PlaybackState `json:"video_state"`
	VideoProgress float64                `json:"video_progress"`
}

// openParams are the query parameters a client connects with.
type openParams struct {
	roomID   string
	state    protocol.PlaybackState
	progress float64
}

func parseOpenParams(r *http.Request) openParams {
	q := r.URL.Query()
	progress, _ := strconv.ParseFloat(q.Get("videoProgress"), 64)
	state := protocol.PlaybackState(q.Get("videoState"))
	if !state.Valid() {
		state = protocol.PlaybackPaused
	}
	return openParams{
		roomID:   q.Get("room"),
		state:    state,
		progress: progress,
	}
}
