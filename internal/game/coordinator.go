// Package game coordinates the lifecycle of a two-player match: creating
// games, letting the second player join, and sequencing turn submissions.
package game

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"twovue/internal/broadcast"
	"twovue/internal/gameid"
	"twovue/internal/store"

	"github.com/rs/zerolog/log"
)

const (
	defaultGameIDAttempts = 5
	turnNumberAttempts    = 3
)

// Repository is the slice of the game store the coordinator writes through.
type Repository interface {
	InsertGame(ctx context.Context, g store.Game) error
	GetGame(ctx context.Context, id string) (*store.Game, error)
	UpdateGame(ctx context.Context, g store.Game) error
	SeatPlayer2(ctx context.Context, id, player2Name string, at time.Time) error
	InsertTurn(ctx context.Context, t store.Turn) error
	ListTurns(ctx context.Context, gameID string) ([]store.Turn, error)
	CountTurns(ctx context.Context, gameID string) (int, error)
	DeleteTurn(ctx context.Context, id string) error
}

// Notifier receives events after a state change has been committed.
// Publish must not block and never reports failure.
type Notifier interface {
	Publish(gameID string, ev broadcast.Event)
}

type Options struct {
	GameIDAttempts int
	NewGameID      func() string
	NewTurnID      func() string
	Now            func() time.Time
}

type TurnSubmission struct {
	PlayerName   string
	PhotoURL     string
	Tags         []string
	SharedTag    string
	DetectedTags []string
}

type Coordinator struct {
	repo     Repository
	notifier Notifier
	locks    *gameLocks

	idAttempts int
	newGameID  func() string
	newTurnID  func() string
	now        func() time.Time
}

func NewCoordinator(repo Repository, notifier Notifier, opts Options) *Coordinator {
	c := &Coordinator{
		repo:       repo,
		notifier:   notifier,
		locks:      newGameLocks(),
		idAttempts: opts.GameIDAttempts,
		newGameID:  opts.NewGameID,
		newTurnID:  opts.NewTurnID,
		now:        opts.Now,
	}
	if c.idAttempts <= 0 {
		c.idAttempts = defaultGameIDAttempts
	}
	if c.newGameID == nil {
		c.newGameID = gameid.Generate
	}
	if c.newTurnID == nil {
		c.newTurnID = store.NewTurnID
	}
	if c.now == nil {
		c.now = func() time.Time { return time.Now().UTC() }
	}
	return c
}

func (c *Coordinator) CreateGame(ctx context.Context, player1Name string) (store.Game, error) {
	player1Name = strings.TrimSpace(player1Name)
	if player1Name == "" {
		return store.Game{}, ErrInvalidRequest
	}
	for attempt := 1; attempt <= c.idAttempts; attempt++ {
		now := c.now()
		g := store.Game{
			ID:          c.newGameID(),
			Player1Name: player1Name,
			Status:      store.GameStatusWaitingForPlayer2,
			CreatedAt:   now,
			UpdatedAt:   now,
		}
		err := c.repo.InsertGame(ctx, g)
		if err == nil {
			metricGamesCreatedTotal.Add(1)
			log.Info().Str("game_id", g.ID).Str("player_name", player1Name).Msg("game created")
			return g, nil
		}
		if !errors.Is(err, store.ErrConflict) {
			return store.Game{}, storeFailure(err)
		}
		log.Debug().Str("game_id", g.ID).Int("attempt", attempt).Msg("game id taken, regenerating")
	}
	return store.Game{}, fmt.Errorf("%w: no free game id after %d attempts", ErrStoreUnavailable, c.idAttempts)
}

// JoinGame seats the second player. A game that already has two players
// rejects every further join, including a repeat by the same player. The
// store only fills an empty seat, so instances sharing one database cannot
// both win.
func (c *Coordinator) JoinGame(ctx context.Context, gameID, player2Name string) error {
	player2Name = strings.TrimSpace(player2Name)
	if gameID == "" || player2Name == "" {
		return ErrInvalidRequest
	}

	unlock := c.locks.lock(gameID)
	defer unlock()

	g, err := c.repo.GetGame(ctx, gameID)
	if err != nil {
		return storeFailure(err)
	}
	if g.Full() {
		return rejectJoin(gameID, player2Name)
	}

	if err := c.repo.SeatPlayer2(ctx, gameID, player2Name, c.now()); err != nil {
		if errors.Is(err, store.ErrConflict) {
			return rejectJoin(gameID, player2Name)
		}
		return storeFailure(err)
	}
	metricGamesJoinedTotal.Add(1)
	log.Info().Str("game_id", gameID).Str("player_name", player2Name).Msg("player joined")

	c.publish(gameID, broadcast.PlayerJoined(player2Name))
	return nil
}

func rejectJoin(gameID, player2Name string) error {
	metricJoinRejectedTotal.Add(1)
	log.Info().Str("game_id", gameID).Str("player_name", player2Name).Msg("join rejected, game full")
	return ErrAlreadyFull
}

func (c *Coordinator) GetGame(ctx context.Context, gameID string) (store.GameWithTurns, error) {
	if gameID == "" {
		return store.GameWithTurns{}, ErrInvalidRequest
	}
	g, err := c.repo.GetGame(ctx, gameID)
	if err != nil {
		return store.GameWithTurns{}, storeFailure(err)
	}
	turns, err := c.repo.ListTurns(ctx, gameID)
	if err != nil {
		return store.GameWithTurns{}, storeFailure(err)
	}
	return store.GameWithTurns{Game: *g, Turns: turns}, nil
}

// Exists reports whether gameID is a known game.
func (c *Coordinator) Exists(ctx context.Context, gameID string) error {
	if gameID == "" {
		return ErrInvalidRequest
	}
	if _, err := c.repo.GetGame(ctx, gameID); err != nil {
		return storeFailure(err)
	}
	return nil
}

// SubmitTurn numbers and stores a turn. Count and insert run under the
// game's lock, so concurrent submissions for one game get distinct numbers.
func (c *Coordinator) SubmitTurn(ctx context.Context, gameID string, sub TurnSubmission) (store.Turn, error) {
	sub.PlayerName = strings.TrimSpace(sub.PlayerName)
	sub.PhotoURL = strings.TrimSpace(sub.PhotoURL)
	if gameID == "" || sub.PlayerName == "" || sub.PhotoURL == "" {
		return store.Turn{}, ErrInvalidRequest
	}

	unlock := c.locks.lock(gameID)
	defer unlock()

	g, err := c.repo.GetGame(ctx, gameID)
	if err != nil {
		return store.Turn{}, storeFailure(err)
	}

	turn, err := c.insertNextTurn(ctx, gameID, sub)
	if err != nil {
		return store.Turn{}, err
	}

	touched := *g
	touched.UpdatedAt = turn.CreatedAt
	if err := c.repo.UpdateGame(ctx, touched); err != nil {
		if delErr := c.repo.DeleteTurn(ctx, turn.ID); delErr != nil {
			log.Error().Err(delErr).Str("game_id", gameID).Str("turn_id", turn.ID).Msg("rollback of turn failed")
		}
		return store.Turn{}, storeFailure(err)
	}
	metricTurnsSubmittedTotal.Add(1)
	log.Info().Str("game_id", gameID).Str("player_name", turn.PlayerName).Int("turn_number", turn.TurnNumber).Msg("turn submitted")

	c.publish(gameID, broadcast.TurnSubmitted(turn.PlayerName, turn.TurnNumber))
	return turn, nil
}

// insertNextTurn numbers the turn count+1. When the store reports that number
// as taken (a purge left a gap, or another process wrote to the game) it
// retries with the highest stored number + 1.
func (c *Coordinator) insertNextTurn(ctx context.Context, gameID string, sub TurnSubmission) (store.Turn, error) {
	var lastErr error
	for attempt := 0; attempt < turnNumberAttempts; attempt++ {
		next, err := c.nextTurnNumber(ctx, gameID, attempt > 0)
		if err != nil {
			return store.Turn{}, storeFailure(err)
		}
		turn := store.Turn{
			ID:           c.newTurnID(),
			GameID:       gameID,
			PlayerName:   sub.PlayerName,
			PhotoURL:     sub.PhotoURL,
			Tags:         cloneTags(sub.Tags),
			SharedTag:    sub.SharedTag,
			DetectedTags: cloneTags(sub.DetectedTags),
			TurnNumber:   next,
			CreatedAt:    c.now(),
		}
		err = c.repo.InsertTurn(ctx, turn)
		if err == nil {
			return turn, nil
		}
		if !errors.Is(err, store.ErrConflict) {
			return store.Turn{}, storeFailure(err)
		}
		lastErr = err
		log.Warn().Str("game_id", gameID).Int("turn_number", turn.TurnNumber).Msg("turn number taken, renumbering")
	}
	return store.Turn{}, fmt.Errorf("%w: %v", ErrStoreUnavailable, lastErr)
}

func (c *Coordinator) nextTurnNumber(ctx context.Context, gameID string, afterConflict bool) (int, error) {
	if !afterConflict {
		n, err := c.repo.CountTurns(ctx, gameID)
		return n + 1, err
	}
	turns, err := c.repo.ListTurns(ctx, gameID)
	if err != nil {
		return 0, err
	}
	highest := 0
	for _, t := range turns {
		if t.TurnNumber > highest {
			highest = t.TurnNumber
		}
	}
	return highest + 1, nil
}

func (c *Coordinator) publish(gameID string, ev broadcast.Event) {
	if c.notifier == nil {
		return
	}
	c.notifier.Publish(gameID, ev)
}

func storeFailure(err error) error {
	switch {
	case errors.Is(err, store.ErrNotFound):
		return ErrNotFound
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return err
	default:
		return fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}
}

func cloneTags(tags []string) []string {
	out := make([]string, len(tags))
	copy(out, tags)
	return out
}
