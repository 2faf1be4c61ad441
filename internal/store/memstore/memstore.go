// Package memstore keeps games and turns in process memory. It backs
// STORE_DRIVER=memory and the coordinator tests.
package memstore

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	"twovue/internal/store"
)

type Store struct {
	mu          sync.RWMutex
	games       map[string]store.Game
	turns       map[string]store.Turn
	turnsByGame map[string][]string
	numbers     map[string]map[int]struct{}
}

func New() *Store {
	return &Store{
		games:       map[string]store.Game{},
		turns:       map[string]store.Turn{},
		turnsByGame: map[string][]string{},
		numbers:     map[string]map[int]struct{}{},
	}
}

func (s *Store) Ping(ctx context.Context) error {
	return ctx.Err()
}

func (s *Store) InsertGame(ctx context.Context, g store.Game) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.games[g.ID]; ok {
		return store.ErrConflict
	}
	s.games[g.ID] = g
	return nil
}

func (s *Store) GetGame(ctx context.Context, id string) (*store.Game, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	g, ok := s.games[id]
	if !ok {
		return nil, store.ErrNotFound
	}
	return &g, nil
}

func (s *Store) UpdateGame(ctx context.Context, g store.Game) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.games[g.ID]; !ok {
		return store.ErrNotFound
	}
	s.games[g.ID] = g
	return nil
}

func (s *Store) SeatPlayer2(ctx context.Context, id, player2Name string, at time.Time) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	g, ok := s.games[id]
	if !ok {
		return store.ErrNotFound
	}
	if g.Full() {
		return store.ErrConflict
	}
	g.Player2Name = player2Name
	g.Status = store.GameStatusInProgress
	g.UpdatedAt = at
	s.games[id] = g
	return nil
}

func (s *Store) FindGames(ctx context.Context, substr string) ([]store.Game, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := []store.Game{}
	for id, g := range s.games {
		if strings.Contains(id, substr) {
			out = append(out, g)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].ID < out[j].ID
		}
		return out[i].CreatedAt.Before(out[j].CreatedAt)
	})
	return out, nil
}

func (s *Store) InsertTurn(ctx context.Context, t store.Turn) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.games[t.GameID]; !ok {
		return store.ErrNotFound
	}
	if _, ok := s.turns[t.ID]; ok {
		return store.ErrConflict
	}
	nums := s.numbers[t.GameID]
	if nums == nil {
		nums = map[int]struct{}{}
		s.numbers[t.GameID] = nums
	}
	if _, taken := nums[t.TurnNumber]; taken {
		return store.ErrConflict
	}
	t.Tags = cloneTags(t.Tags)
	t.DetectedTags = cloneTags(t.DetectedTags)
	nums[t.TurnNumber] = struct{}{}
	s.turns[t.ID] = t
	s.turnsByGame[t.GameID] = append(s.turnsByGame[t.GameID], t.ID)
	return nil
}

func (s *Store) ListTurns(ctx context.Context, gameID string) ([]store.Turn, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	ids := s.turnsByGame[gameID]
	out := make([]store.Turn, 0, len(ids))
	for _, id := range ids {
		t := s.turns[id]
		t.Tags = cloneTags(t.Tags)
		t.DetectedTags = cloneTags(t.DetectedTags)
		out = append(out, t)
	}
	sort.SliceStable(out, func(i, j int) bool {
		if out[i].TurnNumber == out[j].TurnNumber {
			return out[i].CreatedAt.Before(out[j].CreatedAt)
		}
		return out[i].TurnNumber < out[j].TurnNumber
	})
	return out, nil
}

func (s *Store) CountTurns(ctx context.Context, gameID string) (int, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.turnsByGame[gameID]), nil
}

func (s *Store) DeleteTurn(ctx context.Context, id string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	t, ok := s.turns[id]
	if !ok {
		return store.ErrNotFound
	}
	delete(s.turns, id)
	delete(s.numbers[t.GameID], t.TurnNumber)
	ids := s.turnsByGame[t.GameID]
	for i, v := range ids {
		if v == id {
			s.turnsByGame[t.GameID] = append(ids[:i:i], ids[i+1:]...)
			break
		}
	}
	return nil
}

func cloneTags(v []string) []string {
	out := make([]string, len(v))
	copy(out, v)
	return out
}
