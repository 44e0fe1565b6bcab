package engine

import (
	"errors"
)

// Draft errors. Every failure returned by this package wraps exactly one
// of these, so callers branch with errors.Is and show err.Error() as is.
var (
	ErrNotFound                 = errors.New("not found")
	ErrInvalidState             = errors.New("invalid state")
	ErrUnauthorized             = errors.New("unauthorized")
	ErrInsufficientParticipants = errors.New("insufficient participants")
	ErrOutOfTurn                = errors.New("out of turn")
	ErrAlreadyPicked            = errors.New("already picked")
	ErrUnavailable              = errors.New("unavailable")
	ErrDraftFull                = errors.New("draft full")
)

var kinds = []struct {
	err  error
	name string
}{
	{ErrNotFound, "NotFound"},
	{ErrInvalidState, "InvalidState"},
	{ErrUnauthorized, "Unauthorized"},
	{ErrInsufficientParticipants, "InsufficientParticipants"},
	{ErrOutOfTurn, "OutOfTurn"},
	{ErrAlreadyPicked, "AlreadyPicked"},
	{ErrUnavailable, "Unavailable"},
	{ErrDraftFull, "RoomFull"},
}

// Kind returns the stable name of the draft error wrapped by err, or ""
// if err is not a draft error.
func Kind(err error) string {
	if err == nil {
		return ""
	}
	for _, k := range kinds {
		if errors.Is(err, k.err) {
			return k.name
		}
	}
	return ""
}
