package timer

import (
	"time"

	"github.com/mcdev12/battletimer/go/internal/clock"
)

// Apply computes the state that cmd produces from s at now. changed is false
// when the command is a no-op on s, such as starting a running timer; no-ops
// are not persisted or published. defaultDuration is what reset restores.
func Apply(s clock.State, cmd Command, now time.Time, defaultDuration time.Duration) (next clock.State, changed bool) {
	now = now.UTC().Truncate(time.Millisecond)
	next = s

	switch cmd.Action {
	case ActionStart:
		if s.IsRunning || clock.IsExpired(s, now) {
			return s, false
		}
		next.IsRunning = true
		next.StartedAt = now

	case ActionPause:
		if !s.IsRunning {
			return s, false
		}
		next.PausedMs += elapsedMs(s, now)
		next.IsRunning = false
		next.StartedAt = time.Time{}

	case ActionReset:
		next = reset(s, defaultDuration)

	case ActionExpire:
		if !s.IsRunning || !clock.IsExpired(s, now) {
			return s, false
		}
		next = reset(s, defaultDuration)

	case ActionIncrease:
		next.DurationMs += int64(cmd.Value) * 1000

	case ActionDecrease:
		next.DurationMs -= int64(cmd.Value) * 1000
		if next.DurationMs < 0 {
			next.DurationMs = 0
		}
		if clock.Remaining(next, now) <= 0 {
			// Clamp at zero: the timer stops with nothing left, the way it does
			// when it runs out on its own.
			next.PausedMs = next.DurationMs
			next.IsRunning = false
			next.StartedAt = time.Time{}
		}

	default:
		return s, false
	}

	return next, !sameState(s, next)
}

func reset(s clock.State, defaultDuration time.Duration) clock.State {
	return clock.State{
		DurationMs: defaultDuration.Milliseconds(),
		Revision:   s.Revision,
	}
}

func elapsedMs(s clock.State, now time.Time) int64 {
	if d := now.Sub(s.StartedAt).Milliseconds(); d > 0 {
		return d
	}
	return 0
}

func sameState(a, b clock.State) bool {
	return a.DurationMs == b.DurationMs &&
		a.IsRunning == b.IsRunning &&
		a.StartedAt.Equal(b.StartedAt) &&
		a.PausedMs == b.PausedMs
}
