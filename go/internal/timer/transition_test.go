package timer

import (
	"testing"
	"time"

	"github.com/mcdev12/battletimer/go/internal/clock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var t0 = time.Date(2025, 6, 1, 20, 0, 0, 0, time.UTC)

const def = 5 * time.Minute

func cmd(action Action) Command { return Command{Token: "tok", Action: action} }

func adjust(action Action, seconds int) Command {
	return Command{Token: "tok", Action: action, Value: seconds}
}

func TestApplyStartPause(t *testing.T) {
	s := clock.NewState(def)

	running, changed := Apply(s, cmd(ActionStart), t0, def)
	require.True(t, changed)
	assert.True(t, running.IsRunning)
	assert.Equal(t, t0, running.StartedAt)
	assert.True(t, running.Valid())

	_, changed = Apply(running, cmd(ActionStart), t0.Add(time.Second), def)
	assert.False(t, changed, "start on a running timer is a no-op")

	paused, changed := Apply(running, cmd(ActionPause), t0.Add(40*time.Second), def)
	require.True(t, changed)
	assert.False(t, paused.IsRunning)
	assert.True(t, paused.StartedAt.IsZero())
	assert.Equal(t, int64(40_000), paused.PausedMs)
	assert.True(t, paused.Valid())
}

func TestApplyPauseTwiceEqualsOnce(t *testing.T) {
	running, _ := Apply(clock.NewState(def), cmd(ActionStart), t0, def)

	once, changed := Apply(running, cmd(ActionPause), t0.Add(10*time.Second), def)
	require.True(t, changed)
	twice, changed := Apply(once, cmd(ActionPause), t0.Add(25*time.Second), def)

	assert.False(t, changed)
	assert.Equal(t, once, twice)
}

func TestApplyRunsAccumulateAcrossPause(t *testing.T) {
	s := clock.State{DurationMs: def.Milliseconds(), PausedMs: 7_000}

	s, _ = Apply(s, cmd(ActionStart), t0, def)
	s, _ = Apply(s, cmd(ActionPause), t0.Add(30*time.Second), def)
	s, _ = Apply(s, cmd(ActionStart), t0.Add(time.Hour), def)
	s, _ = Apply(s, cmd(ActionPause), t0.Add(time.Hour+12*time.Second), def)

	assert.Equal(t, int64(7_000+30_000+12_000), s.PausedMs)
	assert.Equal(t, def-49*time.Second, clock.Remaining(s, t0.Add(2*time.Hour)))
}

func TestApplyResetRestoresDefault(t *testing.T) {
	states := map[string]clock.State{
		"fresh":   clock.NewState(def),
		"paused":  {DurationMs: 420_000, PausedMs: 100_000},
		"running": {DurationMs: 10_000, IsRunning: true, StartedAt: t0.Add(-time.Minute), PausedMs: 3_000},
		"empty":   {},
	}
	for name, s := range states {
		t.Run(name, func(t *testing.T) {
			next, _ := Apply(s, cmd(ActionReset), t0, def)
			assert.Equal(t, def, clock.Remaining(next, t0))
			assert.Equal(t, def, clock.Remaining(next, t0.Add(time.Hour)))
			assert.False(t, next.IsRunning)
		})
	}

	_, changed := Apply(clock.NewState(def), cmd(ActionReset), t0, def)
	assert.False(t, changed, "reset of a fresh timer is a no-op")
}

func TestApplyExpire(t *testing.T) {
	running := clock.State{DurationMs: 10_000, IsRunning: true, StartedAt: t0}

	_, changed := Apply(running, cmd(ActionExpire), t0.Add(9*time.Second), def)
	assert.False(t, changed, "not yet expired")

	expired, changed := Apply(running, cmd(ActionExpire), t0.Add(10*time.Second), def)
	require.True(t, changed)
	assert.Equal(t, clock.NewState(def), expired)

	_, changed = Apply(expired, cmd(ActionExpire), t0.Add(11*time.Second), def)
	assert.False(t, changed, "expire of an idle timer is a no-op")
}

func TestApplyAdjust(t *testing.T) {
	t.Run("increase keeps run state", func(t *testing.T) {
		running := clock.State{DurationMs: 60_000, IsRunning: true, StartedAt: t0}
		next, changed := Apply(running, adjust(ActionIncrease, 10), t0.Add(5*time.Second), def)
		require.True(t, changed)
		assert.True(t, next.IsRunning)
		assert.Equal(t, t0, next.StartedAt)
		assert.Equal(t, int64(70_000), next.DurationMs)
	})

	t.Run("decrease while idle", func(t *testing.T) {
		next, changed := Apply(clock.NewState(time.Minute), adjust(ActionDecrease, 5), t0, def)
		require.True(t, changed)
		assert.Equal(t, 55*time.Second, clock.Remaining(next, t0))
	})

	t.Run("decrease past zero while idle clamps", func(t *testing.T) {
		s := clock.State{DurationMs: 10_000, PausedMs: 6_000}
		next, changed := Apply(s, adjust(ActionDecrease, 10), t0, def)
		require.True(t, changed)
		assert.Zero(t, clock.Remaining(next, t0))
		assert.GreaterOrEqual(t, next.DurationMs, int64(0))
	})

	t.Run("decrease to zero while running stops the timer", func(t *testing.T) {
		running := clock.State{DurationMs: 20_000, IsRunning: true, StartedAt: t0}
		next, changed := Apply(running, adjust(ActionDecrease, 15), t0.Add(5*time.Second), def)
		require.True(t, changed)
		assert.False(t, next.IsRunning)
		assert.True(t, next.StartedAt.IsZero())
		assert.Zero(t, clock.Remaining(next, t0.Add(time.Hour)))
		assert.True(t, next.Valid())
	})

	t.Run("decrease leaving time keeps running", func(t *testing.T) {
		running := clock.State{DurationMs: 20_000, IsRunning: true, StartedAt: t0}
		next, _ := Apply(running, adjust(ActionDecrease, 10), t0.Add(5*time.Second), def)
		assert.True(t, next.IsRunning)
		assert.Equal(t, 5*time.Second, clock.Remaining(next, t0.Add(5*time.Second)))
	})
}

func TestApplyStartWithNothingLeftIsNoop(t *testing.T) {
	s := clock.State{DurationMs: 5_000, PausedMs: 5_000}
	_, changed := Apply(s, cmd(ActionStart), t0, def)
	assert.False(t, changed)
}

func TestParseCommand(t *testing.T) {
	tests := []struct {
		name    string
		payload string
		want    Command
		wantErr bool
	}{
		{"start", `{"roomId":"abc","action":"start"}`, Command{Token: "abc", Action: ActionStart}, false},
		{"increase", `{"roomId":"abc","action":"increase","value":5}`, Command{Token: "abc", Action: ActionIncrease, Value: 5}, false},
		{"unknown action", `{"roomId":"abc","action":"rewind"}`, Command{}, true},
		{"missing value", `{"roomId":"abc","action":"decrease"}`, Command{}, true},
		{"negative value", `{"roomId":"abc","action":"increase","value":-5}`, Command{}, true},
		{"value on start", `{"roomId":"abc","action":"start","value":5}`, Command{}, true},
		{"unknown field", `{"roomId":"abc","action":"start","force":true}`, Command{}, true},
		{"bad token", `{"roomId":"a:b","action":"start"}`, Command{}, true},
		{"not json", `start`, Command{}, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ParseCommand([]byte(tt.payload))
			if tt.wantErr {
				assert.ErrorIs(t, err, ErrInvalidCommand)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}
