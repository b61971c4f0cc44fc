// Package clock holds the arithmetic that turns a stored control timer state into
// the remaining time at a given instant. Everything here is pure, so any number of
// observers evaluating the same state at the same instant agree on the answer.
package clock

import "time"

// Consumed returns how much of the configured duration has been used at now.
// A start timestamp in the future counts as no elapsed time.
func Consumed(s State, now time.Time) time.Duration {
	consumed := time.Duration(s.PausedMs) * time.Millisecond
	if s.IsRunning {
		if elapsed := now.Sub(s.StartedAt); elapsed > 0 {
			consumed += elapsed
		}
	}
	return consumed
}

// Remaining returns the time left on the timer at now, never negative.
func Remaining(s State, now time.Time) time.Duration {
	left := s.Duration() - Consumed(s, now)
	if left < 0 {
		return 0
	}
	return left
}

// RemainingMs is Remaining truncated to whole milliseconds.
func RemainingMs(s State, now time.Time) int64 {
	return Remaining(s, now).Milliseconds()
}

// IsExpired reports whether no time is left at now.
func IsExpired(s State, now time.Time) bool {
	return Remaining(s, now) == 0
}

// ExpiresAt returns the instant a running timer reaches zero. ok is false for a
// stopped timer.
func ExpiresAt(s State) (at time.Time, ok bool) {
	if !s.IsRunning {
		return time.Time{}, false
	}
	left := s.Duration() - time.Duration(s.PausedMs)*time.Millisecond
	if left < 0 {
		left = 0
	}
	return s.StartedAt.Add(left), true
}
