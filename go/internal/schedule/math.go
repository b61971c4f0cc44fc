// Package schedule computes and stores guild battle schedules: a window of
// three consecutive UTC dates and the daily slot a battle starts in.
//
// Whether a battle is on, and when the next one starts, is always derived from
// the window, the slot and the current time. Nothing is ticked.
package schedule

import (
	"encoding/json"
	"time"
)

// BattleDuration is how long each daily battle lasts.
const BattleDuration = time.Hour

// Calendar evaluates a window and slot at a given instant.
type Calendar struct {
	Window Window
	Slot   Slot
	// Battle is the length of a battle. Zero means BattleDuration.
	Battle time.Duration
}

func (c Calendar) battle() time.Duration {
	if c.Battle > 0 {
		return c.Battle
	}
	return BattleDuration
}

// usable reports whether the calendar can schedule anything. Malformed
// windows and slots count as nothing scheduled rather than as errors.
func (c Calendar) usable() bool {
	return c.Window.IsSet() && c.Window.Validate() == nil && c.Slot.Valid()
}

func (c Calendar) startOn(day time.Time) time.Time {
	return Date(day).Add(time.Duration(c.Slot.Hour()) * time.Hour)
}

// current returns the start of the battle in progress at now, if any.
func (c Calendar) current(now time.Time) (time.Time, bool) {
	// A battle started yesterday can still be running when it crosses midnight.
	for _, day := range []time.Time{Date(now), Date(now).AddDate(0, 0, -1)} {
		if !c.Window.Contains(day) {
			continue
		}
		start := c.startOn(day)
		if !now.Before(start) && now.Before(start.Add(c.battle())) {
			return start, true
		}
	}
	return time.Time{}, false
}

// IsActive reports whether now falls in [start, start+battle) of a battle day.
func (c Calendar) IsActive(now time.Time) bool {
	if !c.usable() {
		return false
	}
	_, ok := c.current(now)
	return ok
}

// NextOccurrence returns the start of the battle in progress, or of the next
// one. It reports false when no battle remains in the window.
func (c Calendar) NextOccurrence(now time.Time) (time.Time, bool) {
	if !c.usable() {
		return time.Time{}, false
	}
	if start, ok := c.current(now); ok {
		return start, true
	}

	day := Date(now)
	if c.Window.Contains(day) && !now.Before(c.startOn(day)) {
		day = day.AddDate(0, 0, 1)
	}
	if day.Before(c.Window.From) {
		day = c.Window.From
	}
	for ; !day.After(c.Window.To); day = day.AddDate(0, 0, 1) {
		if start := c.startOn(day); !start.Before(now) {
			return start, true
		}
	}
	return time.Time{}, false
}

// Countdown is what a battle banner shows at a given instant.
type Countdown struct {
	Scheduled bool
	Active    bool
	Next      time.Time
	// StartsIn is the time until Next, zero while a battle is on.
	StartsIn time.Duration
	// EndsIn is the time left in the battle in progress.
	EndsIn time.Duration
}

type countdownJSON struct {
	Scheduled  bool       `json:"scheduled"`
	Active     bool       `json:"active"`
	Next       *time.Time `json:"next,omitempty"`
	StartsInMs int64      `json:"startsIn"`
	EndsInMs   int64      `json:"endsIn,omitempty"`
}

// MarshalJSON encodes durations in milliseconds and omits Next when nothing is
// scheduled.
func (c Countdown) MarshalJSON() ([]byte, error) {
	out := countdownJSON{
		Scheduled:  c.Scheduled,
		Active:     c.Active,
		StartsInMs: c.StartsIn.Milliseconds(),
		EndsInMs:   c.EndsIn.Milliseconds(),
	}
	if c.Scheduled {
		next := c.Next
		out.Next = &next
	}
	return json.Marshal(out)
}

// UnmarshalJSON is the inverse of MarshalJSON.
func (c *Countdown) UnmarshalJSON(data []byte) error {
	var in countdownJSON
	if err := json.Unmarshal(data, &in); err != nil {
		return err
	}
	*c = Countdown{
		Scheduled: in.Scheduled,
		Active:    in.Active,
		StartsIn:  time.Duration(in.StartsInMs) * time.Millisecond,
		EndsIn:    time.Duration(in.EndsInMs) * time.Millisecond,
	}
	if in.Next != nil {
		c.Next = in.Next.UTC()
	}
	return nil
}

// Countdown evaluates the calendar at now.
func (c Calendar) Countdown(now time.Time) Countdown {
	next, ok := c.NextOccurrence(now)
	if !ok {
		return Countdown{}
	}
	out := Countdown{Scheduled: true, Next: next.UTC()}
	if start, active := c.current(now); active {
		out.Active = true
		out.EndsIn = start.Add(c.battle()).Sub(now)
		return out
	}
	out.StartsIn = next.Sub(now)
	return out
}

// NextOccurrence is Calendar.NextOccurrence with the standard battle length.
func NextOccurrence(w Window, slot Slot, now time.Time) (time.Time, bool) {
	return Calendar{Window: w, Slot: slot}.NextOccurrence(now)
}

// IsActive is Calendar.IsActive with the standard battle length.
func IsActive(w Window, slot Slot, now time.Time) bool {
	return Calendar{Window: w, Slot: slot}.IsActive(now)
}
