package store

import (
	"context"
	"strings"
	"time"
)

const gameColumns = `id, player1_name, player2_name, status, created_at, updated_at`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanGame(row rowScanner) (*Game, error) {
	var g Game
	var player2 *string
	var status string
	if err := row.Scan(&g.ID, &g.Player1Name, &player2, &status, &g.CreatedAt, &g.UpdatedAt); err != nil {
		return nil, mapPgError(err)
	}
	if player2 != nil {
		g.Player2Name = *player2
	}
	g.Status = GameStatus(status)
	return &g, nil
}

func nullableString(v string) *string {
	if v == "" {
		return nil
	}
	return &v
}

func (s *Store) InsertGame(ctx context.Context, g Game) error {
	_, err := s.Pool.Exec(ctx,
		`INSERT INTO games (`+gameColumns+`) VALUES ($1,$2,$3,$4,$5,$6)`,
		g.ID, g.Player1Name, nullableString(g.Player2Name), string(g.Status), g.CreatedAt, g.UpdatedAt)
	return mapPgError(err)
}

func (s *Store) GetGame(ctx context.Context, id string) (*Game, error) {
	row := s.Pool.QueryRow(ctx, `SELECT `+gameColumns+` FROM games WHERE id = $1`, id)
	return scanGame(row)
}

func (s *Store) UpdateGame(ctx context.Context, g Game) error {
	tag, err := s.Pool.Exec(ctx,
		`UPDATE games SET player2_name = $2, status = $3, updated_at = $4 WHERE id = $1`,
		g.ID, nullableString(g.Player2Name), string(g.Status), g.UpdatedAt)
	if err != nil {
		return mapPgError(err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// SeatPlayer2 fills the second seat only while it is still empty. It returns
// ErrConflict when another writer got there first.
func (s *Store) SeatPlayer2(ctx context.Context, id, player2Name string, at time.Time) error {
	tag, err := s.Pool.Exec(ctx,
		`UPDATE games SET player2_name = $2, status = $3, updated_at = $4 WHERE id = $1 AND player2_name IS NULL`,
		id, player2Name, string(GameStatusInProgress), at)
	if err != nil {
		return mapPgError(err)
	}
	if tag.RowsAffected() == 1 {
		return nil
	}
	if _, err := s.GetGame(ctx, id); err != nil {
		return err
	}
	return ErrConflict
}

// FindGames returns games whose id contains substr, oldest first.
func (s *Store) FindGames(ctx context.Context, substr string) ([]Game, error) {
	pattern := "%" + escapeLike(substr) + "%"
	rows, err := s.Pool.Query(ctx,
		`SELECT `+gameColumns+` FROM games WHERE id LIKE $1 ESCAPE '\' ORDER BY created_at ASC`, pattern)
	if err != nil {
		return nil, mapPgError(err)
	}
	defer rows.Close()
	out := []Game{}
	for rows.Next() {
		g, err := scanGame(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *g)
	}
	return out, mapPgError(rows.Err())
}

func escapeLike(v string) string {
	r := strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)
	return r.Replace(v)
}
