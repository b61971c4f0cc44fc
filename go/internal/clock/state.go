package clock

import (
	"encoding/json"
	"time"
)

// DefaultDuration is the length a control timer starts with when its entity
// does not configure one.
const DefaultDuration = 5 * time.Minute

// State is the persisted state of one control timer. The remaining time is never
// stored; every observer derives it from the timestamps with Remaining.
type State struct {
	DurationMs int64
	IsRunning  bool
	// StartedAt is the wall-clock instant the current run began. Zero unless IsRunning.
	StartedAt time.Time
	// PausedMs is the time consumed by runs before the current one.
	PausedMs int64
	// Revision increases on every accepted write; observers drop states older than
	// the last one they applied.
	Revision uint64
}

// NewState returns an idle timer configured for d.
func NewState(d time.Duration) State {
	return State{DurationMs: d.Milliseconds()}
}

// Duration returns the configured length as a time.Duration.
func (s State) Duration() time.Duration {
	return time.Duration(s.DurationMs) * time.Millisecond
}

// Valid reports whether s respects the running/start-timestamp invariant.
func (s State) Valid() bool {
	if s.DurationMs < 0 || s.PausedMs < 0 {
		return false
	}
	return s.IsRunning == !s.StartedAt.IsZero()
}

type wireState struct {
	Duration       int64  `json:"duration"`
	IsRunning      bool   `json:"isRunning"`
	StartTimestamp *int64 `json:"startTimestamp,omitempty"`
	PausedDuration *int64 `json:"pausedDuration,omitempty"`
	Revision       uint64 `json:"revision,omitempty"`
}

// MarshalJSON writes the layout shared with browser clients: milliseconds for
// durations and epoch milliseconds for the start timestamp.
func (s State) MarshalJSON() ([]byte, error) {
	w := wireState{
		Duration:  s.DurationMs,
		IsRunning: s.IsRunning,
		Revision:  s.Revision,
	}
	if s.IsRunning {
		ms := s.StartedAt.UnixMilli()
		w.StartTimestamp = &ms
	}
	if s.PausedMs > 0 {
		paused := s.PausedMs
		w.PausedDuration = &paused
	}
	return json.Marshal(w)
}

// UnmarshalJSON accepts the layout written by MarshalJSON. A start timestamp on a
// stopped timer is dropped.
func (s *State) UnmarshalJSON(data []byte) error {
	var w wireState
	if err := json.Unmarshal(data, &w); err != nil {
		return err
	}
	*s = State{
		DurationMs: w.Duration,
		IsRunning:  w.IsRunning,
		Revision:   w.Revision,
	}
	if w.PausedDuration != nil {
		s.PausedMs = *w.PausedDuration
	}
	if w.IsRunning && w.StartTimestamp != nil {
		s.StartedAt = time.UnixMilli(*w.StartTimestamp).UTC()
	}
	return nil
}
