package main

import (
	"context"
	"errors"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"twovue/internal/broadcast"
	"twovue/internal/config"
	"twovue/internal/dedupe"
	"twovue/internal/detect"
	"twovue/internal/game"
	"twovue/internal/logging"
	"twovue/internal/store/backend"
	httptransport "twovue/internal/transport/http"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog/log"
)

func main() {
	cfg, err := config.LoadApp()
	if err != nil {
		panic(err)
	}
	logging.Init(cfg.Log)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	st, closeStore, err := backend.Open(ctx, cfg.Server)
	if err != nil {
		log.Fatal().Err(err).Str("driver", cfg.Server.StoreDriver).Msg("store init failed")
	}
	defer closeStore()
	log.Info().Str("driver", cfg.Server.StoreDriver).Msg("store ready")

	hub := broadcast.New()
	var notifier game.Notifier = hub
	if cfg.RelayEnabled() {
		relay, closeRelay, err := newRelay(ctx, cfg.Server, hub)
		if err != nil {
			log.Fatal().Err(err).Msg("redis relay init failed")
		}
		defer closeRelay()
		notifier = relay
	}

	games := game.NewCoordinator(st, notifier, game.Options{GameIDAttempts: cfg.Server.GameIDAttempts})
	detector := detect.NewClient(detect.Config{
		URL:       cfg.Server.DetectorURL,
		Timeout:   cfg.Server.DetectorTimeout,
		MaxLabels: cfg.Server.DetectorMaxLabels,
	})
	r := httptransport.NewRouter(httptransport.Deps{
		Store:       st,
		Games:       games,
		Dedupe:      dedupe.New(st),
		Broadcaster: hub,
		Detector:    detector,
	}, cfg.Server)
	httptransport.LogRoutes(r)

	server := &http.Server{
		Addr:              cfg.Server.HTTPAddr,
		Handler:           r,
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       30 * time.Second,
		IdleTimeout:       120 * time.Second,
	}
	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		_ = server.Shutdown(shutdownCtx)
	}()

	log.Info().Str("addr", cfg.Server.HTTPAddr).Msg("http listening")
	if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		log.Fatal().Err(err).Msg("server stopped")
	}
	log.Info().Msg("server stopped")
}

const relayRetryDelay = 5 * time.Second

func newRelay(ctx context.Context, cfg config.ServerConfig, hub *broadcast.Broadcaster) (*broadcast.RedisRelay, func(), error) {
	opts, err := redis.ParseURL(cfg.RedisURL)
	if err != nil {
		return nil, nil, err
	}
	opts.ContextTimeoutEnabled = true
	client := redis.NewClient(opts)
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, nil, err
	}
	relay := broadcast.NewRedisRelay(client, hub, cfg.RelayOutbox)
	go func() {
		for {
			err := relay.Run(ctx)
			if ctx.Err() != nil {
				return
			}
			log.Error().Err(err).Dur("retry_in", relayRetryDelay).Msg("redis relay stopped, delivering locally")
			select {
			case <-ctx.Done():
				return
			case <-time.After(relayRetryDelay):
			}
		}
	}()
	log.Info().Int("outbox", cfg.RelayOutbox).Msg("redis relay enabled")
	return relay, func() { _ = client.Close() }, nil
}
