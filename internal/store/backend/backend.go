// Package backend opens the game store selected by STORE_DRIVER.
package backend

import (
	"context"
	"fmt"
	"time"

	"twovue/internal/config"
	"twovue/internal/store"
	"twovue/internal/store/memstore"
	"twovue/internal/store/sqlite"
)

// Store is the method set shared by every store implementation.
type Store interface {
	InsertGame(ctx context.Context, g store.Game) error
	GetGame(ctx context.Context, id string) (*store.Game, error)
	UpdateGame(ctx context.Context, g store.Game) error
	SeatPlayer2(ctx context.Context, id, player2Name string, at time.Time) error
	FindGames(ctx context.Context, substr string) ([]store.Game, error)
	InsertTurn(ctx context.Context, t store.Turn) error
	ListTurns(ctx context.Context, gameID string) ([]store.Turn, error)
	CountTurns(ctx context.Context, gameID string) (int, error)
	DeleteTurn(ctx context.Context, id string) error
	Ping(ctx context.Context) error
}

// Open returns the configured store and a function releasing it.
func Open(ctx context.Context, cfg config.ServerConfig) (Store, func(), error) {
	switch cfg.StoreDriver {
	case config.StoreDriverPostgres:
		st, err := store.New(cfg.PostgresDSN)
		if err != nil {
			return nil, nil, fmt.Errorf("open postgres store: %w", err)
		}
		if err := st.Ping(ctx); err != nil {
			st.Close()
			return nil, nil, fmt.Errorf("ping postgres store: %w", err)
		}
		return st, st.Close, nil
	case config.StoreDriverSQLite:
		st, err := sqlite.Open(cfg.SQLitePath)
		if err != nil {
			return nil, nil, err
		}
		return st, func() { _ = st.Close() }, nil
	case config.StoreDriverMemory:
		return memstore.New(), func() {}, nil
	default:
		return nil, nil, fmt.Errorf("unknown store driver %q", cfg.StoreDriver)
	}
}
