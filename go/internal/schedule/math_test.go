package schedule

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var day = time.Date(2025, 6, 10, 0, 0, 0, 0, time.UTC)

func at(offsetDays, hour, min, sec int) time.Time {
	return day.AddDate(0, 0, offsetDays).Add(time.Duration(hour)*time.Hour + time.Duration(min)*time.Minute + time.Duration(sec)*time.Second)
}

func TestNextOccurrence(t *testing.T) {
	w := WindowStarting(day)

	tests := []struct {
		name     string
		slot     Slot
		now      time.Time
		active   bool
		next     time.Time
		upcoming bool
	}{
		{"one second before first battle", Slot21, at(0, 20, 59, 59), false, at(0, 21, 0, 0), true},
		{"battle start is active", Slot21, at(0, 21, 0, 0), true, at(0, 21, 0, 0), true},
		{"mid battle", Slot21, at(0, 21, 30, 0), true, at(0, 21, 0, 0), true},
		{"battle end is exclusive", Slot21, at(0, 22, 0, 0), false, at(1, 21, 0, 0), true},
		{"before window", Slot21, at(-5, 12, 0, 0), false, at(0, 21, 0, 0), true},
		{"day before window late evening", Slot21, at(-1, 23, 0, 0), false, at(0, 21, 0, 0), true},
		{"last day before battle", Slot21, at(2, 8, 0, 0), false, at(2, 21, 0, 0), true},
		{"after last battle", Slot21, at(2, 22, 0, 0), false, time.Time{}, false},
		{"after window", Slot21, at(9, 0, 0, 0), false, time.Time{}, false},
		{"early slot after today's battle", Slot1, at(0, 3, 0, 0), false, at(1, 1, 0, 0), true},
		{"early slot active", Slot1, at(1, 1, 59, 59), true, at(1, 1, 0, 0), true},
		{"morning slot on last day", Slot11, at(2, 10, 0, 0), false, at(2, 11, 0, 0), true},
		{"morning slot after last day", Slot11, at(2, 12, 0, 0), false, time.Time{}, false},
		{"slot four", Slot4, at(1, 4, 0, 1), true, at(1, 4, 0, 0), true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.active, IsActive(w, tt.slot, tt.now))

			next, ok := NextOccurrence(w, tt.slot, tt.now)
			assert.Equal(t, tt.upcoming, ok)
			assert.True(t, tt.next.Equal(next), "next = %s, want %s", next, tt.next)
		})
	}
}

func TestNothingScheduled(t *testing.T) {
	broken := []struct {
		name string
		w    Window
		slot Slot
	}{
		{"no window", Window{}, Slot21},
		{"two day window", Window{From: day, To: day.AddDate(0, 0, 1)}, Slot21},
		{"not midnight", Window{From: day.Add(time.Hour), To: day.AddDate(0, 0, 2).Add(time.Hour)}, Slot21},
		{"end only", Window{To: day}, Slot21},
		{"unknown slot", WindowStarting(day), Slot(7)},
	}
	for _, tt := range broken {
		t.Run(tt.name, func(t *testing.T) {
			_, ok := NextOccurrence(tt.w, tt.slot, at(0, 21, 30, 0))
			assert.False(t, ok)
			assert.False(t, IsActive(tt.w, tt.slot, at(0, 21, 30, 0)))
			assert.Equal(t, Countdown{}, Calendar{Window: tt.w, Slot: tt.slot}.Countdown(at(0, 21, 30, 0)))
		})
	}
}

func TestBattleCrossingMidnight(t *testing.T) {
	c := Calendar{Window: WindowStarting(day), Slot: Slot21, Battle: 4 * time.Hour}

	assert.True(t, c.IsActive(at(1, 0, 30, 0)), "yesterday's battle still running")
	next, ok := c.NextOccurrence(at(1, 0, 30, 0))
	require.True(t, ok)
	assert.Equal(t, at(0, 21, 0, 0), next)

	assert.True(t, c.IsActive(at(3, 0, 59, 0)), "last battle runs past the window")
	assert.False(t, c.IsActive(at(3, 1, 0, 0)))
}

func TestCountdown(t *testing.T) {
	c := Calendar{Window: WindowStarting(day), Slot: Slot21}

	before := c.Countdown(at(0, 20, 0, 0))
	assert.Equal(t, Countdown{Scheduled: true, Next: at(0, 21, 0, 0), StartsIn: time.Hour}, before)

	during := c.Countdown(at(0, 21, 45, 0))
	assert.Equal(t, Countdown{Scheduled: true, Active: true, Next: at(0, 21, 0, 0), EndsIn: 15 * time.Minute}, during)

	data, err := json.Marshal(during)
	require.NoError(t, err)
	assert.JSONEq(t, `{"scheduled":true,"active":true,"next":"2025-06-10T21:00:00Z","startsIn":0,"endsIn":900000}`, string(data))

	var decoded Countdown
	require.NoError(t, json.Unmarshal(data, &decoded))
	assert.Equal(t, during, decoded)

	data, err = json.Marshal(Countdown{})
	require.NoError(t, err)
	assert.JSONEq(t, `{"scheduled":false,"active":false,"startsIn":0}`, string(data))
}
