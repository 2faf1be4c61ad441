package store

import "context"

const turnColumns = `id, game_id, player_name, photo_url, tags, shared_tag, detected_tags, turn_number, created_at`

func (s *Store) InsertTurn(ctx context.Context, t Turn) error {
	_, err := s.Pool.Exec(ctx,
		`INSERT INTO turns (`+turnColumns+`) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9)`,
		t.ID, t.GameID, t.PlayerName, t.PhotoURL, nonNil(t.Tags), t.SharedTag, nonNil(t.DetectedTags), t.TurnNumber, t.CreatedAt)
	return mapPgError(err)
}

func (s *Store) ListTurns(ctx context.Context, gameID string) ([]Turn, error) {
	rows, err := s.Pool.Query(ctx,
		`SELECT `+turnColumns+` FROM turns WHERE game_id = $1 ORDER BY turn_number ASC, created_at ASC`, gameID)
	if err != nil {
		return nil, mapPgError(err)
	}
	defer rows.Close()
	out := []Turn{}
	for rows.Next() {
		var t Turn
		if err := rows.Scan(&t.ID, &t.GameID, &t.PlayerName, &t.PhotoURL, &t.Tags, &t.SharedTag, &t.DetectedTags, &t.TurnNumber, &t.CreatedAt); err != nil {
			return nil, mapPgError(err)
		}
		t.Tags = nonNil(t.Tags)
		t.DetectedTags = nonNil(t.DetectedTags)
		out = append(out, t)
	}
	return out, mapPgError(rows.Err())
}

func (s *Store) CountTurns(ctx context.Context, gameID string) (int, error) {
	var n int
	if err := s.Pool.QueryRow(ctx, `SELECT COUNT(1) FROM turns WHERE game_id = $1`, gameID).Scan(&n); err != nil {
		return 0, mapPgError(err)
	}
	return n, nil
}

func (s *Store) DeleteTurn(ctx context.Context, id string) error {
	tag, err := s.Pool.Exec(ctx, `DELETE FROM turns WHERE id = $1`, id)
	if err != nil {
		return mapPgError(err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func nonNil(v []string) []string {
	if v == nil {
		return []string{}
	}
	return v
}
