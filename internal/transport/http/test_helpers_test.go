package httptransport

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"twovue/internal/broadcast"
	"twovue/internal/config"
	"twovue/internal/dedupe"
	"twovue/internal/detect"
	"twovue/internal/game"
	"twovue/internal/store/memstore"

	"github.com/go-chi/chi/v5"
)

type testEnv struct {
	store  *memstore.Store
	games  *game.Coordinator
	hub    *broadcast.Broadcaster
	router *chi.Mux
}

type downPinger struct{}

func (downPinger) Ping(context.Context) error { return errors.New("db down") }

func newTestEnv(t *testing.T, cfg config.ServerConfig) *testEnv {
	t.Helper()
	st := memstore.New()
	hub := broadcast.New()
	games := game.NewCoordinator(st, hub, game.Options{})
	if cfg.StreamPingInterval == 0 {
		cfg.StreamPingInterval = time.Second
	}
	router := NewRouter(Deps{
		Store:       st,
		Games:       games,
		Dedupe:      dedupe.New(st),
		Broadcaster: hub,
		Detector:    detect.NewClient(detect.Config{}),
	}, cfg)
	return &testEnv{store: st, games: games, hub: hub, router: router}
}

func (e *testEnv) do(t *testing.T, method, path string, body any, headers map[string]string) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		if raw, ok := body.(string); ok {
			buf.WriteString(raw)
		} else if err := json.NewEncoder(&buf).Encode(body); err != nil {
			t.Fatalf("encode body: %v", err)
		}
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	w := httptest.NewRecorder()
	e.router.ServeHTTP(w, req)
	return w
}

func decodeBody(t *testing.T, w *httptest.ResponseRecorder, dst any) {
	t.Helper()
	if err := json.NewDecoder(w.Body).Decode(dst); err != nil {
		t.Fatalf("decode response: %v body=%s", err, w.Body.String())
	}
}

func errorCode(t *testing.T, w *httptest.ResponseRecorder) string {
	t.Helper()
	var resp map[string]any
	decodeBody(t, w, &resp)
	code, _ := resp["error"].(string)
	return code
}

func mustCreateGame(t *testing.T, e *testEnv, player string) string {
	t.Helper()
	w := e.do(t, http.MethodPost, "/api/games", map[string]string{"player1_name": player}, nil)
	if w.Code != http.StatusCreated {
		t.Fatalf("create game status = %d body=%s", w.Code, w.Body.String())
	}
	var resp struct {
		GameID string `json:"game_id"`
	}
	decodeBody(t, w, &resp)
	if resp.GameID == "" {
		t.Fatal("empty game_id")
	}
	return resp.GameID
}
