package httptransport

import (
	"context"
	"net/http"
	"time"

	"twovue/internal/dedupe"
	"twovue/internal/game"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog/log"
)

type Pinger interface {
	Ping(ctx context.Context) error
}

type AdminHandlers struct {
	store  Pinger
	games  *game.Coordinator
	dedupe *dedupe.Detector
}

func NewAdminHandlers(st Pinger, games *game.Coordinator, dd *dedupe.Detector) *AdminHandlers {
	return &AdminHandlers{store: st, games: games, dedupe: dd}
}

func (h *AdminHandlers) Root() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]any{
			"message":   "Twovue Game API is running!",
			"status":    "online",
			"timestamp": time.Now().UTC().Format(time.RFC3339),
		})
	}
}

func (h *AdminHandlers) Health() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if err := h.store.Ping(r.Context()); err != nil {
			log.Warn().Err(err).Msg("health check: store down")
			writeJSON(w, http.StatusServiceUnavailable, map[string]any{"ok": false, "db": "down"})
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"ok": true, "db": "up", "service": "twovue-api"})
	}
}

func (h *AdminHandlers) Duplicates() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		gameID := chi.URLParam(r, "game_id")
		if err := h.games.Exists(r.Context(), gameID); err != nil {
			writeGameError(w, err)
			return
		}
		report, err := h.dedupe.Detect(r.Context(), gameID)
		if err != nil {
			log.Error().Err(err).Str("game_id", gameID).Msg("duplicate detection failed")
			WriteHTTPError(w, http.StatusServiceUnavailable, "service_unavailable")
			return
		}
		writeJSON(w, http.StatusOK, report)
	}
}

func (h *AdminHandlers) PurgeDuplicates() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		gameID := chi.URLParam(r, "game_id")
		if err := h.games.Exists(r.Context(), gameID); err != nil {
			writeGameError(w, err)
			return
		}
		removed, err := h.dedupe.Purge(r.Context(), gameID)
		if err != nil {
			log.Error().Err(err).Str("game_id", gameID).Int("removed", removed).Msg("duplicate purge failed")
			WriteHTTPError(w, http.StatusServiceUnavailable, "service_unavailable")
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"game_id": gameID, "removed": removed})
	}
}
