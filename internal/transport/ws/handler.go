// Package wstransport streams a game's events to WebSocket clients.
package wstransport

import (
	"context"
	"encoding/json"
	"expvar"
	"net/http"
	"time"

	"twovue/internal/broadcast"
	"twovue/internal/game"

	"github.com/go-chi/chi/v5"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"
)

const writeWait = 10 * time.Second

var metricWSConnectionsActive = expvar.NewInt("ws_connections_active")

type GameChecker interface {
	Exists(ctx context.Context, gameID string) error
}

type Options struct {
	Buffer       int
	PingInterval time.Duration
}

// Handler upgrades /ws/{game_id} requests and subscribes the connection to
// that game. Messages sent by the client are read and discarded.
type Handler struct {
	games        GameChecker
	hub          *broadcast.Broadcaster
	upgrader     websocket.Upgrader
	buffer       int
	pingInterval time.Duration
}

func NewHandler(games GameChecker, hub *broadcast.Broadcaster, opts Options) *Handler {
	if opts.PingInterval <= 0 {
		opts.PingInterval = 15 * time.Second
	}
	return &Handler{
		games:        games,
		hub:          hub,
		upgrader:     websocket.Upgrader{CheckOrigin: func(r *http.Request) bool { return true }},
		buffer:       opts.Buffer,
		pingInterval: opts.PingInterval,
	}
}

func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	gameID := chi.URLParam(r, "game_id")
	if err := h.games.Exists(r.Context(), gameID); err != nil {
		status, code := game.MapGameError(err)
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(status)
		_ = json.NewEncoder(w).Encode(map[string]any{"error": code})
		return
	}

	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Debug().Err(err).Str("game_id", gameID).Msg("websocket upgrade failed")
		return
	}
	sub := broadcast.NewChannelSubscriber(h.buffer)
	h.hub.Subscribe(gameID, sub)
	metricWSConnectionsActive.Add(1)
	log.Debug().Str("game_id", gameID).Int("subscribers", h.hub.SubscriberCount(gameID)).Msg("websocket subscribed")

	go h.writeLoop(conn, sub)
	h.readLoop(conn, gameID, sub)
}

func (h *Handler) readLoop(conn *websocket.Conn, gameID string, sub *broadcast.ChannelSubscriber) {
	defer func() {
		h.hub.Unsubscribe(gameID, sub)
		sub.Close()
		_ = conn.Close()
		metricWSConnectionsActive.Add(-1)
		log.Debug().Str("game_id", gameID).Msg("websocket closed")
	}()

	readWait := 2 * h.pingInterval
	_ = conn.SetReadDeadline(time.Now().Add(readWait))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(readWait))
	})
	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				log.Debug().Err(err).Str("game_id", gameID).Msg("websocket read error")
			}
			return
		}
	}
}

// writeLoop is the only writer on conn. It exits when the subscriber is
// closed, either by readLoop or by the broadcaster dropping a lagging client.
func (h *Handler) writeLoop(conn *websocket.Conn, sub *broadcast.ChannelSubscriber) {
	ticker := time.NewTicker(h.pingInterval)
	defer func() {
		ticker.Stop()
		_ = conn.Close()
	}()
	for {
		select {
		case ev, ok := <-sub.Events():
			_ = conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				_ = conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
				return
			}
			if err := conn.WriteJSON(ev); err != nil {
				return
			}
		case <-ticker.C:
			if err := conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(writeWait)); err != nil {
				return
			}
		}
	}
}
