package schedule

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/mcdev12/battletimer/go/internal/broadcast"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestService(t *testing.T) (*Service, *broadcast.Hub, *clockwork.FakeClock) {
	t.Helper()
	hub := broadcast.NewHub(16)
	t.Cleanup(func() { _ = hub.Close() })
	clk := clockwork.NewFakeClockAt(at(0, 20, 0, 0))
	svc := NewService(NewMemoryRepository(), hub, WithServiceClock(clk))

	_, err := svc.Register(context.Background(), "guild-1", "owner")
	require.NoError(t, err)
	return svc, hub, clk
}

func TestServiceOwnerSetsSchedule(t *testing.T) {
	ctx := context.Background()
	svc, hub, _ := newTestService(t)

	sub, err := hub.Subscribe(ctx, broadcast.GuildRoom("guild-1"))
	require.NoError(t, err)
	defer sub.Close()

	_, err = svc.SetTimeSlot(ctx, "owner", SlotCommand{GuildID: "guild-1", Slot: Slot4})
	require.NoError(t, err)
	sched, err := svc.SetDateRange(ctx, "owner", RangeCommand{GuildID: "guild-1", Window: WindowStarting(day)})
	require.NoError(t, err)
	assert.Equal(t, Slot4, sched.Slot)
	assert.Equal(t, WindowStarting(day), sched.Window)

	for i := 0; i < 2; i++ {
		select {
		case msg := <-sub.C:
			assert.Equal(t, broadcast.GuildUpdateEvent, msg.Event)
			var view struct {
				GuildID  string `json:"guildId"`
				TimeSlot Slot   `json:"timeSlot"`
			}
			require.NoError(t, json.Unmarshal(msg.Data, &view))
			assert.Equal(t, "guild-1", view.GuildID)
			assert.Equal(t, Slot4, view.TimeSlot)
		case <-time.After(time.Second):
			t.Fatal("no guild update published")
		}
	}
}

func TestServiceRejectsNonOwner(t *testing.T) {
	ctx := context.Background()
	svc, hub, _ := newTestService(t)

	sub, err := hub.Subscribe(ctx, broadcast.GuildRoom("guild-1"))
	require.NoError(t, err)
	defer sub.Close()

	_, err = svc.SetTimeSlot(ctx, "member", SlotCommand{GuildID: "guild-1", Slot: Slot1})
	assert.ErrorIs(t, err, ErrForbidden)
	_, err = svc.SetDateRange(ctx, "", RangeCommand{GuildID: "guild-1", Window: WindowStarting(day)})
	assert.ErrorIs(t, err, ErrForbidden)

	sched, err := svc.Get(ctx, "guild-1")
	require.NoError(t, err)
	assert.Equal(t, DefaultSlot, sched.Slot)
	assert.False(t, sched.Window.IsSet())

	select {
	case msg := <-sub.C:
		t.Fatalf("unexpected publish %s", msg.Event)
	default:
	}
}

func TestServiceValidatesInput(t *testing.T) {
	ctx := context.Background()
	svc, _, _ := newTestService(t)

	_, err := svc.SetTimeSlot(ctx, "owner", SlotCommand{GuildID: "guild-1", Slot: Slot(13)})
	assert.ErrorIs(t, err, ErrInvalidSlot)
	_, err = svc.SetDateRange(ctx, "owner", RangeCommand{GuildID: "guild-1", Window: Window{From: day, To: day}})
	assert.ErrorIs(t, err, ErrInvalidRange)
	_, err = svc.SetTimeSlot(ctx, "owner", SlotCommand{GuildID: "nope", Slot: Slot1})
	assert.ErrorIs(t, err, ErrGuildNotFound)
}

func TestServiceRegister(t *testing.T) {
	ctx := context.Background()
	svc, _, _ := newTestService(t)

	again, err := svc.Register(ctx, "guild-1", "owner")
	require.NoError(t, err)
	assert.Equal(t, "owner", again.OwnerID)

	_, err = svc.Register(ctx, "guild-1", "intruder")
	assert.ErrorIs(t, err, ErrForbidden)
}

func TestServiceViewFollowsClock(t *testing.T) {
	ctx := context.Background()
	svc, _, clk := newTestService(t)

	_, err := svc.SetDateRange(ctx, "owner", RangeCommand{GuildID: "guild-1", Window: WindowStarting(day)})
	require.NoError(t, err)

	view, err := svc.View(ctx, "guild-1")
	require.NoError(t, err)
	assert.Equal(t, []string{"2025-06-10", "2025-06-11", "2025-06-12"}, view.Dates)
	assert.False(t, view.Countdown.Active)
	assert.Equal(t, time.Hour, view.Countdown.StartsIn)

	clk.Advance(90 * time.Minute)
	view, err = svc.View(ctx, "guild-1")
	require.NoError(t, err)
	assert.True(t, view.Countdown.Active)
	assert.Equal(t, 30*time.Minute, view.Countdown.EndsIn)

	clk.Advance(3 * 24 * time.Hour)
	view, err = svc.View(ctx, "guild-1")
	require.NoError(t, err)
	assert.False(t, view.Countdown.Scheduled)
}
