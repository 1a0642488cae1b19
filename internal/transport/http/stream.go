package http

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/gorilla/websocket"

	"trivia-sync-service/internal/relay"
)

const (
	writeWait  = 10 * time.Second
	pongWait   = 60 * time.Second
	pingPeriod = pongWait * 9 / 10
)

// stream upgrades to a websocket and forwards every relay event of the game as one JSON
// frame. The socket is read only to notice the peer going away.
func (h *Handler) stream(w http.ResponseWriter, r *http.Request) {
	gameID := chi.URLParam(r, "gameID")
	if _, err := h.service.Games.GetGame(r.Context(), gameID); err != nil {
		writeError(w, h.logger, err)
		return
	}

	events, cancel, err := h.events.Subscribe(r.Context(), relay.Channel(gameID))
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	defer cancel()

	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Warn("ws upgrade failed", "game_id", gameID, "error", err)
		return
	}
	defer conn.Close()

	closed := make(chan struct{})
	writerDone := make(chan struct{})

	go func() {
		defer close(writerDone)
		ping := time.NewTicker(pingPeriod)
		defer ping.Stop()
		for {
			select {
			case ev, ok := <-events:
				if !ok {
					_ = conn.WriteControl(websocket.CloseMessage,
						websocket.FormatCloseMessage(websocket.CloseGoingAway, "relay closed"), time.Now().Add(writeWait))
					return
				}
				_ = conn.SetWriteDeadline(time.Now().Add(writeWait))
				if err := conn.WriteJSON(ev); err != nil {
					h.logger.Debug("ws write failed", "game_id", gameID, "error", err)
					return
				}
			case <-ping.C:
				if err := conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(writeWait)); err != nil {
					return
				}
			case <-closed:
				return
			}
		}
	}()

	_ = conn.SetReadDeadline(time.Now().Add(pongWait))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(pongWait))
	})
	h.logger.Debug("ws stream opened", "game_id", gameID)
	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			break
		}
	}
	close(closed)
	<-writerDone
	h.logger.Debug("ws stream closed", "game_id", gameID)
}
