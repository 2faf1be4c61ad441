package store

import "errors"

var (
	ErrNotFound = errors.New("not found")
	// ErrConflict reports a unique key collision (game id, turn id, or
	// game/turn number pair).
	ErrConflict = errors.New("conflict")
)
