package gateway

import (
	"encoding/json"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/coview/sync-agent/internal/protocol"
)

// collabConn is one collaborator WebSocket. Outbound notifications go
// through the growable queue and a single writer goroutine; inbound
// reads stay with the HTTP handler goroutine.
type collabConn struct {
	id           string // correlation id for logging
	conn         *websocket.Conn
	queue        *GrowableBuffer[[]byte]
	writeTimeout time.Duration
	logger       *slog.Logger
	closeOnce    sync.Once
}

func newCollabConn(conn *websocket.Conn, sendBuffer int, writeTimeout time.Duration, logger *slog.Logger) *collabConn {
	c := &collabConn{
		id:           uuid.NewString(),
		conn:         conn,
		queue:        NewGrowableBuffer[[]byte](sendBuffer),
		writeTimeout: writeTimeout,
	}
	c.logger = logger.With("conn_id", c.id)

	go c.writeLoop()
	return c
}

// send marshals and queues one notification. Never blocks.
func (c *collabConn) send(v any) {
	data, err := json.Marshal(v)
	if err != nil {
		c.logger.Error("failed to marshal notification", "error", err)
		return
	}
	if !c.queue.Send(data) {
		c.logger.Debug("dropping notification for closed connection")
	}
}

func (c *collabConn) writeLoop() {
	for {
		data, ok := c.queue.Receive()
		if !ok {
			return
		}

		c.conn.SetWriteDeadline(time.Now().Add(c.writeTimeout))
		if err := c.conn.WriteMessage(websocket.TextMessage, data); err != nil {
			c.logger.Debug("write failed, closing connection", "error", err)
			c.close()
			return
		}
	}
}

func (c *collabConn) close() {
	c.closeOnce.Do(func() {
		c.queue.Close()
		c.conn.Close()
	})
}

// contentPort adapts a collaborator connection to session.ContentPort.
type contentPort struct {
	c *collabConn
}

func (p *contentPort) RequestConnection() {
	p.c.send(protocol.NewConnectionRequestNotice())
}

func (p *contentPort) RemoteUpdate(state protocol.PlaybackState, progress float64) {
	p.c.send(protocol.NewRemoteUpdateNotice(state, progress))
}

func (p *contentPort) ConnectionError(msg string) {
	p.c.send(protocol.NewConnectionErrorNotice(msg))
}

// popupPort adapts a collaborator connection to session.PopupPort.
type popupPort struct {
	c *collabConn
}

func (p *popupPort) RoomID(tabID, roomID string) {
	p.c.send(protocol.NewRoomIDNotice(tabID, roomID))
}

func (p *popupPort) ActionEnabled(tabID string, enabled bool) {
	p.c.send(protocol.NewActionStateNotice(tabID, enabled))
}
