package main

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
)

var upgrader = websocket.Upgrader{
	// Clients are local agents; any origin is fine for a simulator.
	CheckOrigin: func(r *http.Request) bool { return true },
}

// handleWS serves the primary WebSocket endpoint.
func (h *hub) handleWS(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Warn("upgrade failed", "error", err)
		return
	}

	m := h.join(parseOpenParams(r))
	defer h.leave(m)

	// Writer: drain deliveries onto the socket.
	go func() {
		for {
			select {
			case data := <-m.deliver:
				if err := conn.WriteMessage(websocket.TextMessage, data); err != nil {
					conn.Close()
					return
				}
			case <-m.gone:
				conn.WriteMessage(websocket.CloseMessage,
					websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
				conn.Close()
				return
			}
		}
	}()

	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			return
		}
		h.handleMessage(m, data)
	}
}

// handlePollOpen starts a long-polling session and hands back its token.
func (h *hub) handlePollOpen(w http.ResponseWriter, r *http.Request) {
	m := h.join(parseOpenParams(r))
	token := uuid.NewString()

	h.mu.Lock()
	h.polls[token] = m
	h.mu.Unlock()

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]string{"token": token})
}

// pollWait bounds how long an events poll is held open before answering
// 204.
const pollWait = 25 * time.Second

// handlePollEvents answers with a batch of pending events (200), nothing
// yet (204), or session gone (410).
func (h *hub) handlePollEvents(w http.ResponseWriter, r *http.Request) {
	m := h.pollMember(r)
	if m == nil {
		w.WriteHeader(http.StatusGone)
		return
	}

	timer := time.NewTimer(pollWait)
	defer timer.Stop()

	var batch []json.RawMessage
	select {
	case data := <-m.deliver:
		batch = append(batch, data)
	case <-m.gone:
		w.WriteHeader(http.StatusGone)
		return
	case <-r.Context().Done():
		return
	case <-timer.C:
		w.WriteHeader(http.StatusNoContent)
		return
	}

	// Drain whatever else is already queued.
	for {
		select {
		case data := <-m.deliver:
			batch = append(batch, data)
		default:
			w.Header().Set("Content-Type", "application/json")
			json.NewEncoder(w).Encode(batch)
			return
		}
	}
}

// handlePollSend accepts one client → relay message over HTTP.
func (h *hub) handlePollSend(w http.ResponseWriter, r *http.Request) {
	m := h.pollMember(r)
	if m == nil {
		w.WriteHeader(http.StatusGone)
		return
	}

	var raw json.RawMessage
	if err := json.NewDecoder(r.Body).Decode(&raw); err != nil {
		http.Error(w, "invalid json", http.StatusBadRequest)
		return
	}
	h.handleMessage(m, raw)
	w.WriteHeader(http.StatusNoContent)
}

// handlePollClose tears down a long-polling session.
func (h *hub) handlePollClose(w http.ResponseWriter, r *http.Request) {
	token := r.URL.Query().Get("token")

	h.mu.Lock()
	m, ok := h.polls[token]
	delete(h.polls, token)
	h.mu.Unlock()

	if ok {
		h.leave(m)
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *hub) pollMember(r *http.Request) *member {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.polls[r.URL.Query().Get("token")]
}
