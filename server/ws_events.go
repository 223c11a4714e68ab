package server

import (
	"net/http"
	"time"

	"stemdeck/logger"

	"github.com/gorilla/websocket"
)

var wsUpgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool { return true },
}

const wsWriteTimeout = 5 * time.Second

// EventsHandler streams engine events to a UI shell over WebSocket.
// Each connection gets its own bus subscription; a shell that stops
// reading is disconnected rather than allowed to stall the engine.
func (h *APIHandler) EventsHandler(w http.ResponseWriter, r *http.Request) {
	conn, err := wsUpgrader.Upgrade(w, r, nil)
	if err != nil {
		logger.Error("websocket upgrade failed", logger.Err(err))
		return
	}
	defer conn.Close()

	id, events := h.engine.Subscribe()
	defer h.engine.Unsubscribe(id)

	// Drain client frames so pings and close frames are processed.
	done := make(chan struct{})
	go func() {
		defer close(done)
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	for {
		select {
		case event, open := <-events:
			if !open {
				return
			}
			conn.SetWriteDeadline(time.Now().Add(wsWriteTimeout))
			if err := conn.WriteJSON(event); err != nil {
				logger.Debug("websocket write failed", logger.Err(err))
				return
			}
		case <-done:
			return
		}
	}
}
