package api

import (
	"errors"
	"net/http"

	"github.com/luckforge/casino-core/internal/crash"
	"github.com/luckforge/casino-core/internal/games"
	"github.com/luckforge/casino-core/internal/store"
)

// EngineError is the structured error envelope every failed request returns.
type EngineError struct {
	Type      string `json:"type"`
	Message   string `json:"message"`
	RequestID string `json:"request_id,omitempty"`
}

// Error implements the error interface
func (e EngineError) Error() string {
	return e.Message
}

// Error types
const (
	ErrTypeInvalidParams       = "invalid_params"
	ErrTypeInsufficientBalance = "insufficient_balance"
	ErrTypeUserNotFound        = "user_not_found"
	ErrTypeSessionNotFound     = "session_not_found"
	ErrTypeSessionConflict     = "session_conflict"
	ErrTypeRoundCrashed        = "round_crashed"
	ErrTypeNoBetFound          = "no_bet_found"
	ErrTypeInternal            = "internal_error"
)

// classify maps a service error onto an HTTP status and error type. Unknown
// errors are internal by definition and keep their detail out of the
// response body.
func classify(err error) (status int, errType string, public bool) {
	switch {
	case errors.Is(err, games.ErrInvalidInput):
		return http.StatusBadRequest, ErrTypeInvalidParams, true
	case errors.Is(err, games.ErrInsufficientBalance), errors.Is(err, store.ErrInsufficientBalance):
		return http.StatusBadRequest, ErrTypeInsufficientBalance, true
	case errors.Is(err, store.ErrUserNotFound):
		return http.StatusNotFound, ErrTypeUserNotFound, true
	case errors.Is(err, store.ErrSessionNotFound):
		return http.StatusNotFound, ErrTypeSessionNotFound, true
	case errors.Is(err, store.ErrSessionExists), errors.Is(err, store.ErrSessionConflict):
		return http.StatusConflict, ErrTypeSessionConflict, true
	case errors.Is(err, crash.ErrRoundCrashed):
		return http.StatusConflict, ErrTypeRoundCrashed, true
	case errors.Is(err, crash.ErrNoBetFound), errors.Is(err, crash.ErrNoActiveRound):
		return http.StatusNotFound, ErrTypeNoBetFound, true
	default:
		return http.StatusInternalServerError, ErrTypeInternal, false
	}
}
