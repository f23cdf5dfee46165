package api

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"

	"gitlab.com/nunet/nosana-node-monitor/internal/jsonx"
)

const (
	writeWait  = 10 * time.Second
	pongWait   = 60 * time.Second
	pingPeriod = pongWait * 9 / 10
)

var upgradeConnection = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 4096,
	// origins are enforced by the CORS middleware for browsers
	CheckOrigin: func(r *http.Request) bool { return true },
}

// HandleWebSocket streams every newly published snapshot to the client,
// starting with the current one when available. Incoming messages are ignored.
func (h *Handler) HandleWebSocket(c *gin.Context) {
	ws, err := upgradeConnection.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		zlog.Sugar().Debugf("failed to set websocket upgrade: %v", err)
		return
	}
	defer ws.Close()

	updates, unsubscribe := h.source.Subscribe()
	defer unsubscribe()

	closed := make(chan struct{})
	go readPump(ws, closed)

	if snap, ok := h.source.Snapshot(); ok {
		if err := writeMessage(ws, snap); err != nil {
			return
		}
	}

	ticker := time.NewTicker(pingPeriod)
	defer ticker.Stop()
	for {
		select {
		case <-closed:
			return
		case snap, ok := <-updates:
			if !ok {
				_ = ws.WriteControl(websocket.CloseMessage,
					websocket.FormatCloseMessage(websocket.CloseGoingAway, "monitor stopped"), time.Now().Add(writeWait))
				return
			}
			if err := writeMessage(ws, snap); err != nil {
				return
			}
		case <-ticker.C:
			if err := ws.WriteControl(websocket.PingMessage, nil, time.Now().Add(writeWait)); err != nil {
				return
			}
		}
	}
}

// readPump drains the connection so control frames are processed, and
// closes done when the peer goes away.
func readPump(ws *websocket.Conn, done chan<- struct{}) {
	defer close(done)
	ws.SetReadLimit(1024)
	_ = ws.SetReadDeadline(time.Now().Add(pongWait))
	ws.SetPongHandler(func(string) error {
		return ws.SetReadDeadline(time.Now().Add(pongWait))
	})
	for {
		if _, _, err := ws.ReadMessage(); err != nil {
			return
		}
	}
}

func writeMessage(ws *websocket.Conn, v interface{}) error {
	raw, err := jsonx.Marshal(v)
	if err != nil {
		return err
	}
	_ = ws.SetWriteDeadline(time.Now().Add(writeWait))
	return ws.WriteMessage(websocket.TextMessage, raw)
}
