package httptransport

import (
	"net/http"
	"time"

	"twovue/internal/broadcast"
	"twovue/internal/game"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog/log"
)

type StreamOptions struct {
	Buffer       int
	PingInterval time.Duration
}

// EventsHandler streams a game's events as server-sent events. The first
// event is "ready", written once the subscription is registered.
func EventsHandler(games *game.Coordinator, hub *broadcast.Broadcaster, opts StreamOptions) http.HandlerFunc {
	if opts.PingInterval <= 0 {
		opts.PingInterval = 15 * time.Second
	}
	return func(w http.ResponseWriter, r *http.Request) {
		gameID := chi.URLParam(r, "game_id")
		if err := games.Exists(r.Context(), gameID); err != nil {
			writeGameError(w, err)
			return
		}
		flusher, ok := w.(http.Flusher)
		if !ok {
			WriteHTTPError(w, http.StatusInternalServerError, "streaming_unsupported")
			return
		}

		sub := broadcast.NewChannelSubscriber(opts.Buffer)
		hub.Subscribe(gameID, sub)
		metricSSEConnectionsTotal.Add(1)
		metricSSEConnectionsActive.Add(1)
		defer func() {
			hub.Unsubscribe(gameID, sub)
			sub.Close()
			metricSSEConnectionsActive.Add(-1)
			log.Debug().Str("game_id", gameID).Msg("event stream closed")
		}()

		SetSSEHeaders(w)
		w.WriteHeader(http.StatusOK)
		if err := WriteSSE(w, "ready", map[string]any{"game_id": gameID}); err != nil {
			return
		}
		flusher.Flush()

		ticker := time.NewTicker(opts.PingInterval)
		defer ticker.Stop()
		for {
			select {
			case <-r.Context().Done():
				return
			case ev, ok := <-sub.Events():
				if !ok {
					return
				}
				if err := WriteSSE(w, string(ev.Type), ev); err != nil {
					return
				}
				flusher.Flush()
			case <-ticker.C:
				if err := WriteSSE(w, "ping", map[string]any{"ts": time.Now().UnixMilli()}); err != nil {
					return
				}
				flusher.Flush()
			}
		}
	}
}
