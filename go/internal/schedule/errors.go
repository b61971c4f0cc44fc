package schedule

import "errors"

var (
	ErrForbidden     = errors.New("only the guild owner may change the battle schedule")
	ErrInvalidSlot   = errors.New("invalid battle time slot")
	ErrInvalidRange  = errors.New("invalid battle date range")
	ErrGuildNotFound = errors.New("guild not found")
)
