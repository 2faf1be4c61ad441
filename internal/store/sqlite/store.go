// Package sqlite provides a SQLite-backed game store, compatible with the
// local development database (twovue.db).
package sqlite

import (
	"context"
	"database/sql"
	_ "embed"
	"encoding/json"
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"twovue/internal/store"

	msqlite "modernc.org/sqlite"
	sqlite3lib "modernc.org/sqlite/lib"
)

//go:embed schema.sql
var schemaSQL string

// Store persists games and turns in a single SQLite file.
type Store struct {
	sqlDB *sql.DB
}

func toMicros(value time.Time) int64 {
	return value.UTC().UnixMicro()
}

func fromMicros(value int64) time.Time {
	return time.UnixMicro(value).UTC()
}

// Open opens path, creating the schema when missing.
func Open(path string) (*Store, error) {
	if strings.TrimSpace(path) == "" {
		return nil, fmt.Errorf("storage path is required")
	}
	dsn := "file:" + filepath.Clean(path) +
		"?_pragma=foreign_keys(1)&_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)"
	sqlDB, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open sqlite db: %w", err)
	}
	// One writer at a time; the coordinator already serialises per game.
	sqlDB.SetMaxOpenConns(1)
	if err := sqlDB.Ping(); err != nil {
		_ = sqlDB.Close()
		return nil, fmt.Errorf("ping sqlite db: %w", err)
	}
	if _, err := sqlDB.Exec(schemaSQL); err != nil {
		_ = sqlDB.Close()
		return nil, fmt.Errorf("apply schema: %w", err)
	}
	return &Store{sqlDB: sqlDB}, nil
}

func (s *Store) Close() error {
	if s == nil || s.sqlDB == nil {
		return nil
	}
	return s.sqlDB.Close()
}

func (s *Store) Ping(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()
	return s.sqlDB.PingContext(ctx)
}

func (s *Store) InsertGame(ctx context.Context, g store.Game) error {
	_, err := s.sqlDB.ExecContext(ctx,
		`INSERT INTO games (id, player1_name, player2_name, status, created_at, updated_at) VALUES (?, ?, ?, ?, ?, ?)`,
		g.ID, g.Player1Name, nullString(g.Player2Name), string(g.Status), toMicros(g.CreatedAt), toMicros(g.UpdatedAt))
	return mapError(err)
}

func (s *Store) GetGame(ctx context.Context, id string) (*store.Game, error) {
	row := s.sqlDB.QueryRowContext(ctx,
		`SELECT id, player1_name, player2_name, status, created_at, updated_at FROM games WHERE id = ?`, id)
	return scanGame(row)
}

func (s *Store) UpdateGame(ctx context.Context, g store.Game) error {
	res, err := s.sqlDB.ExecContext(ctx,
		`UPDATE games SET player2_name = ?, status = ?, updated_at = ? WHERE id = ?`,
		nullString(g.Player2Name), string(g.Status), toMicros(g.UpdatedAt), g.ID)
	if err != nil {
		return mapError(err)
	}
	return requireAffected(res)
}

// SeatPlayer2 fills the second seat only while it is still empty.
func (s *Store) SeatPlayer2(ctx context.Context, id, player2Name string, at time.Time) error {
	res, err := s.sqlDB.ExecContext(ctx,
		`UPDATE games SET player2_name = ?, status = ?, updated_at = ? WHERE id = ? AND player2_name IS NULL`,
		player2Name, string(store.GameStatusInProgress), toMicros(at), id)
	if err != nil {
		return mapError(err)
	}
	if err := requireAffected(res); !errors.Is(err, store.ErrNotFound) {
		return err
	}
	if _, err := s.GetGame(ctx, id); err != nil {
		return err
	}
	return store.ErrConflict
}

func (s *Store) FindGames(ctx context.Context, substr string) ([]store.Game, error) {
	rows, err := s.sqlDB.QueryContext(ctx,
		`SELECT id, player1_name, player2_name, status, created_at, updated_at FROM games
		 WHERE instr(id, ?) > 0 ORDER BY created_at ASC`, substr)
	if err != nil {
		return nil, mapError(err)
	}
	defer rows.Close()
	out := []store.Game{}
	for rows.Next() {
		g, err := scanGame(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *g)
	}
	return out, mapError(rows.Err())
}

func (s *Store) InsertTurn(ctx context.Context, t store.Turn) error {
	tags, err := encodeTags(t.Tags)
	if err != nil {
		return err
	}
	detected, err := encodeTags(t.DetectedTags)
	if err != nil {
		return err
	}
	_, err = s.sqlDB.ExecContext(ctx,
		`INSERT INTO turns (id, game_id, player_name, photo_url, tags, shared_tag, detected_tags, turn_number, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		t.ID, t.GameID, t.PlayerName, t.PhotoURL, tags, t.SharedTag, detected, t.TurnNumber, toMicros(t.CreatedAt))
	return mapError(err)
}

func (s *Store) ListTurns(ctx context.Context, gameID string) ([]store.Turn, error) {
	rows, err := s.sqlDB.QueryContext(ctx,
		`SELECT id, game_id, player_name, photo_url, tags, shared_tag, detected_tags, turn_number, created_at
		 FROM turns WHERE game_id = ? ORDER BY turn_number ASC, created_at ASC`, gameID)
	if err != nil {
		return nil, mapError(err)
	}
	defer rows.Close()
	out := []store.Turn{}
	for rows.Next() {
		var (
			t              store.Turn
			tags, detected string
			createdAt      int64
		)
		if err := rows.Scan(&t.ID, &t.GameID, &t.PlayerName, &t.PhotoURL, &tags, &t.SharedTag, &detected, &t.TurnNumber, &createdAt); err != nil {
			return nil, mapError(err)
		}
		if t.Tags, err = decodeTags(tags); err != nil {
			return nil, err
		}
		if t.DetectedTags, err = decodeTags(detected); err != nil {
			return nil, err
		}
		t.CreatedAt = fromMicros(createdAt)
		out = append(out, t)
	}
	return out, mapError(rows.Err())
}

func (s *Store) CountTurns(ctx context.Context, gameID string) (int, error) {
	var n int
	if err := s.sqlDB.QueryRowContext(ctx, `SELECT COUNT(1) FROM turns WHERE game_id = ?`, gameID).Scan(&n); err != nil {
		return 0, mapError(err)
	}
	return n, nil
}

func (s *Store) DeleteTurn(ctx context.Context, id string) error {
	res, err := s.sqlDB.ExecContext(ctx, `DELETE FROM turns WHERE id = ?`, id)
	if err != nil {
		return mapError(err)
	}
	return requireAffected(res)
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanGame(row rowScanner) (*store.Game, error) {
	var (
		g                    store.Game
		player2              sql.NullString
		status               string
		createdAt, updatedAt int64
	)
	if err := row.Scan(&g.ID, &g.Player1Name, &player2, &status, &createdAt, &updatedAt); err != nil {
		return nil, mapError(err)
	}
	g.Player2Name = player2.String
	g.Status = store.GameStatus(status)
	g.CreatedAt = fromMicros(createdAt)
	g.UpdatedAt = fromMicros(updatedAt)
	return &g, nil
}

func requireAffected(res sql.Result) error {
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return store.ErrNotFound
	}
	return nil
}

func nullString(v string) sql.NullString {
	return sql.NullString{String: v, Valid: v != ""}
}

func encodeTags(tags []string) (string, error) {
	if tags == nil {
		tags = []string{}
	}
	b, err := json.Marshal(tags)
	if err != nil {
		return "", fmt.Errorf("encode tags: %w", err)
	}
	return string(b), nil
}

func decodeTags(raw string) ([]string, error) {
	out := []string{}
	if strings.TrimSpace(raw) == "" {
		return out, nil
	}
	if err := json.Unmarshal([]byte(raw), &out); err != nil {
		return nil, fmt.Errorf("decode tags: %w", err)
	}
	return out, nil
}

func mapError(err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, sql.ErrNoRows) {
		return store.ErrNotFound
	}
	var sqliteErr *msqlite.Error
	if errors.As(err, &sqliteErr) {
		switch sqliteErr.Code() {
		case sqlite3lib.SQLITE_CONSTRAINT_PRIMARYKEY, sqlite3lib.SQLITE_CONSTRAINT_UNIQUE:
			return store.ErrConflict
		case sqlite3lib.SQLITE_CONSTRAINT_FOREIGNKEY:
			return store.ErrNotFound
		}
	}
	return err
}
