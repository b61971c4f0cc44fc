package timer

import "errors"

var (
	// ErrForbidden is returned when the actor is neither the owner nor the holder.
	ErrForbidden = errors.New("not allowed to control this timer")
	// ErrInvalidCommand is returned for unknown actions or bad adjustment values.
	ErrInvalidCommand = errors.New("invalid timer command")
	// ErrNotFound is returned when the token has no timer.
	ErrNotFound = errors.New("timer not found")
	// ErrUnavailable is returned when the store could not be read or written.
	// Nothing was published; the actor may retry.
	ErrUnavailable = errors.New("timer store unavailable")
)
