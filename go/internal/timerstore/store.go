// Package timerstore persists control timer state and its authorization record,
// keyed by the timer's token. It is the source of truth shared by every server
// instance; nothing about a timer is kept in process memory between requests.
package timerstore

import (
	"context"
	"errors"
	"regexp"
	"time"

	"github.com/mcdev12/battletimer/go/internal/clock"
)

var (
	// ErrNotFound is returned when no value exists for a token.
	ErrNotFound = errors.New("timer not found")
	// ErrConflict is returned when a conditional write loses to a concurrent writer.
	ErrConflict = errors.New("timer revision conflict")
	// ErrInvalidToken is returned for tokens that cannot be used as keys.
	ErrInvalidToken = errors.New("invalid timer token")
)

var tokenPattern = regexp.MustCompile(`^[A-Za-z0-9_-]{1,128}$`)

// ValidToken reports whether token can be used as a store key and room name.
func ValidToken(token string) bool {
	return tokenPattern.MatchString(token)
}

// StateKey is the key holding a timer's state.
func StateKey(token string) string { return "timer:" + token }

// OwnerKey is the key holding a timer's authorization record.
func OwnerKey(token string) string { return "timer:" + token + ":owner" }

// Ownership says who may operate a timer.
type Ownership struct {
	OwnerID  string `json:"ownerId"`
	HolderID string `json:"holderId,omitempty"`
	// DefaultDurationMs is what reset restores. Zero means the service default.
	DefaultDurationMs int64 `json:"defaultDuration,omitempty"`
}

// Allows reports whether actorID may issue control actions: the owner always
// can, the holder can while assigned.
func (o Ownership) Allows(actorID string) bool {
	if actorID == "" {
		return false
	}
	return actorID == o.OwnerID || (o.HolderID != "" && actorID == o.HolderID)
}

// DefaultDuration returns the configured reset duration, or fallback when unset.
func (o Ownership) DefaultDuration(fallback time.Duration) time.Duration {
	if o.DefaultDurationMs > 0 {
		return time.Duration(o.DefaultDurationMs) * time.Millisecond
	}
	return fallback
}

// Store is the narrow persistence contract the timer controller depends on.
//
// Put is conditional on state.Revision: zero creates the key and fails with
// ErrConflict if it already exists, any other value must equal the stored
// revision. On success Put returns the new revision, which is strictly greater
// than every revision previously returned by the store.
type Store interface {
	Get(ctx context.Context, token string) (clock.State, error)
	Put(ctx context.Context, token string, state clock.State) (uint64, error)
	Delete(ctx context.Context, token string) error
	GetOwnership(ctx context.Context, token string) (Ownership, error)
	PutOwnership(ctx context.Context, token string, owner Ownership) error
}
