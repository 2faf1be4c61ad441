package httptransport

import (
	"encoding/json"
	"net/http"

	"twovue/internal/game"

	"github.com/go-chi/chi/v5"
)

const maxJSONBody = 1 << 20

type GameHandlers struct {
	games *game.Coordinator
}

func NewGameHandlers(games *game.Coordinator) *GameHandlers {
	return &GameHandlers{games: games}
}

type createGameRequest struct {
	Player1Name string `json:"player1_name"`
}

type joinGameRequest struct {
	Player2Name string `json:"player2_name"`
}

type submitTurnRequest struct {
	PlayerName   string   `json:"player_name"`
	PhotoURL     string   `json:"photo_url"`
	Tags         []string `json:"tags"`
	SharedTag    string   `json:"shared_tag"`
	DetectedTags []string `json:"detected_tags"`
}

func (h *GameHandlers) Create() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req createGameRequest
		if !decodeJSON(w, r, &req) {
			return
		}
		g, err := h.games.CreateGame(r.Context(), req.Player1Name)
		if err != nil {
			writeGameError(w, err)
			return
		}
		writeJSON(w, http.StatusCreated, map[string]any{"game_id": g.ID})
	}
}

func (h *GameHandlers) Get() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		g, err := h.games.GetGame(r.Context(), chi.URLParam(r, "game_id"))
		if err != nil {
			writeGameError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, g)
	}
}

func (h *GameHandlers) Join() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req joinGameRequest
		if !decodeJSON(w, r, &req) {
			return
		}
		if err := h.games.JoinGame(r.Context(), chi.URLParam(r, "game_id"), req.Player2Name); err != nil {
			writeGameError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"ok": true})
	}
}

func (h *GameHandlers) SubmitTurn() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req submitTurnRequest
		if !decodeJSON(w, r, &req) {
			return
		}
		turn, err := h.games.SubmitTurn(r.Context(), chi.URLParam(r, "game_id"), game.TurnSubmission{
			PlayerName:   req.PlayerName,
			PhotoURL:     req.PhotoURL,
			Tags:         req.Tags,
			SharedTag:    req.SharedTag,
			DetectedTags: req.DetectedTags,
		})
		if err != nil {
			writeGameError(w, err)
			return
		}
		writeJSON(w, http.StatusCreated, turn)
	}
}

func decodeJSON(w http.ResponseWriter, r *http.Request, dst any) bool {
	r.Body = http.MaxBytesReader(w, r.Body, maxJSONBody)
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		WriteHTTPError(w, http.StatusBadRequest, "invalid_json")
		return false
	}
	return true
}

func writeGameError(w http.ResponseWriter, err error) {
	status, code := game.MapGameError(err)
	WriteHTTPError(w, status, code)
}
