package game

import (
	"errors"
	"net/http"
)

var (
	ErrNotFound         = errors.New("game_not_found")
	ErrAlreadyFull      = errors.New("game_already_full")
	ErrInvalidRequest   = errors.New("invalid_request")
	ErrStoreUnavailable = errors.New("service_unavailable")
)

// MapGameError converts coordinator errors into an HTTP status and the code
// written in the response body.
func MapGameError(err error) (int, string) {
	switch {
	case errors.Is(err, ErrNotFound):
		return http.StatusNotFound, "game_not_found"
	case errors.Is(err, ErrAlreadyFull):
		return http.StatusConflict, "game_already_full"
	case errors.Is(err, ErrInvalidRequest):
		return http.StatusBadRequest, "invalid_request"
	case errors.Is(err, ErrStoreUnavailable):
		return http.StatusServiceUnavailable, "service_unavailable"
	default:
		return http.StatusInternalServerError, "internal_error"
	}
}
