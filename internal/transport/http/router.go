package httptransport

import (
	"expvar"
	"fmt"
	"net/http"
	"sort"
	"strings"

	"twovue/internal/broadcast"
	"twovue/internal/config"
	"twovue/internal/dedupe"
	"twovue/internal/game"
	wstransport "twovue/internal/transport/ws"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/rs/zerolog/log"
)

type Deps struct {
	Store       Pinger
	Games       *game.Coordinator
	Dedupe      *dedupe.Detector
	Broadcaster *broadcast.Broadcaster
	Detector    Labeler
}

func NewRouter(deps Deps, cfg config.ServerConfig) *chi.Mux {
	gameHandlers := NewGameHandlers(deps.Games)
	adminHandlers := NewAdminHandlers(deps.Store, deps.Games, deps.Dedupe)
	stream := StreamOptions{Buffer: cfg.SubscriberBuffer, PingInterval: cfg.StreamPingInterval}
	wsHandler := wstransport.NewHandler(deps.Games, deps.Broadcaster, wstransport.Options{
		Buffer:       cfg.SubscriberBuffer,
		PingInterval: cfg.StreamPingInterval,
	})

	r := chi.NewRouter()
	r.Use(chimw.RequestID)
	r.Use(chimw.Recoverer)
	r.Use(chimw.RealIP)

	r.With(APILogMiddleware()).Get("/", adminHandlers.Root())
	r.With(APILogMiddleware()).Get("/health", adminHandlers.Health())
	r.With(APILogMiddleware()).Get("/healthz", adminHandlers.Health())
	r.With(APILogMiddleware()).Post("/detect-llm", DetectHandler(deps.Detector))
	r.Get("/ws/{game_id}", wsHandler.ServeHTTP)

	r.Route("/api", func(r chi.Router) {
		r.Get("/ws/{game_id}", wsHandler.ServeHTTP)

		r.Group(func(r chi.Router) {
			r.Use(APILogMiddleware())
			r.Post("/games", gameHandlers.Create())
			r.Get("/games/{game_id}", gameHandlers.Get())
			r.Post("/games/{game_id}/join", gameHandlers.Join())
			r.Post("/games/{game_id}/turns", gameHandlers.SubmitTurn())
			r.Get("/games/{game_id}/events", EventsHandler(deps.Games, deps.Broadcaster, stream))
			r.Post("/detect-llm", DetectHandler(deps.Detector))

			r.Group(func(r chi.Router) {
				r.Use(AdminAuthMiddleware(cfg.AdminAPIKey))
				r.Use(BodyCaptureMiddleware(4096))
				r.Get("/games/{game_id}/duplicates", adminHandlers.Duplicates())
				r.Post("/games/{game_id}/duplicates/purge", adminHandlers.PurgeDuplicates())
				r.Get("/debug/vars", expvar.Handler().ServeHTTP)
			})
		})
	})
	return r
}

func LogRoutes(r chi.Router) {
	type routeDef struct {
		Method string
		Path   string
	}
	routes := make([]routeDef, 0, 32)
	err := chi.Walk(r, func(method string, route string, _ http.Handler, _ ...func(http.Handler) http.Handler) error {
		routes = append(routes, routeDef{Method: method, Path: route})
		return nil
	})
	if err != nil {
		log.Error().Err(err).Msg("walk routes failed")
		return
	}
	sort.Slice(routes, func(i, j int) bool {
		if routes[i].Path == routes[j].Path {
			return routes[i].Method < routes[j].Method
		}
		return routes[i].Path < routes[j].Path
	})
	var b strings.Builder
	b.WriteString(fmt.Sprintf("Registered routes (%d):\n", len(routes)))
	for _, rt := range routes {
		b.WriteString(fmt.Sprintf("  %-6s %s\n", rt.Method, rt.Path))
	}
	fmt.Print(b.String())
}
