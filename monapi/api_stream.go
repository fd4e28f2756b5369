package main

import (
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/itskum47/monforge/monapi/store"
)

const (
	pongWait   = 60 * time.Second
	pingPeriod = 30 * time.Second
)

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool {
		// CORS is handled by the middleware
		return true
	},
}

// handleRefreshStream upgrades to a websocket that drives the auto-refresh
// countdown of one screen.
func (a *API) handleRefreshStream(w http.ResponseWriter, r *http.Request) {
	id, err := urlParamInt64(r, "id")
	if err != nil {
		a.writeError(w, r, err)
		return
	}
	sc, err := a.store.GetScreen(r.Context(), id)
	if err != nil {
		a.writeError(w, r, err)
		return
	}
	if sc == nil {
		a.writeError(w, r, fmt.Errorf("screen %d: %w", id, store.ErrNotFound))
		return
	}

	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		a.logger.Warn("websocket upgrade failed", zap.Error(err))
		return
	}

	session, err := a.wsHub.Register(conn, id)
	if err != nil {
		msg := websocket.FormatCloseMessage(websocket.CloseTryAgainLater, err.Error())
		conn.WriteControl(websocket.CloseMessage, msg, time.Now().Add(writeWait))
		conn.Close()
		return
	}
	defer a.wsHub.Unregister(session)

	conn.SetReadDeadline(time.Now().Add(pongWait))
	conn.SetPongHandler(func(string) error {
		conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	pingTicker := time.NewTicker(pingPeriod)
	defer pingTicker.Stop()

	done := make(chan struct{})
	defer close(done)

	go func() {
		for {
			select {
			case <-done:
				return
			case <-pingTicker.C:
				if err := conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(writeWait)); err != nil {
					return
				}
			}
		}
	}()

	// Read pump; returns when the client goes away.
	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				a.logger.Debug("websocket closed", zap.Int64("screen_id", id), zap.Error(err))
			}
			return
		}
		var cmd refreshCommand
		if err := json.Unmarshal(data, &cmd); err != nil {
			session.send(errorMessage{Type: "error", Error: "invalid command"})
			continue
		}
		session.Handle(cmd)
	}
}
