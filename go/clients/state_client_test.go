package clients

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mcdev12/battletimer/go/internal/broadcast"
	"github.com/mcdev12/battletimer/go/internal/gateway"
	"github.com/mcdev12/battletimer/go/internal/schedule"
	"github.com/mcdev12/battletimer/go/internal/timer"
	"github.com/mcdev12/battletimer/go/internal/timerstore"
)

func newGateway(t *testing.T) (*StateClient, *timer.Controller) {
	t.Helper()
	clk := clockwork.NewFakeClockAt(time.Date(2025, 6, 10, 20, 0, 0, 0, time.UTC))
	hub := broadcast.NewHub(8)
	ctl := timer.NewController(timerstore.NewMemoryStore(), hub, timer.WithClock(clk))
	sched := schedule.NewService(schedule.NewMemoryRepository(), hub, schedule.WithServiceClock(clk))

	ctx := context.Background()
	_, err := ctl.Provision(ctx, timer.ProvisionRequest{Token: "tok", OwnerID: "owner"})
	require.NoError(t, err)
	_, err = sched.Register(ctx, "guild-1", "owner")
	require.NoError(t, err)
	_, err = sched.SetDateRange(ctx, "owner", schedule.RangeCommand{
		GuildID: "guild-1",
		Window:  schedule.WindowStarting(time.Date(2025, 6, 11, 0, 0, 0, 0, time.UTC)),
	})
	require.NoError(t, err)

	srv := httptest.NewServer(gateway.NewService(gateway.DefaultConfig(), hub, ctl, sched).Handler())
	t.Cleanup(func() {
		srv.Close()
		_ = hub.Close()
	})
	return NewStateClient(srv.URL + "/"), ctl
}

func TestStateClientGetTimer(t *testing.T) {
	client, _ := newGateway(t)

	snap, err := client.GetTimer(context.Background(), "tok")
	require.NoError(t, err)
	assert.Equal(t, "tok", snap.Token)
	assert.False(t, snap.State.IsRunning)
	assert.Equal(t, snap.State.DurationMs, snap.RemainingMs)
}

func TestStateClientNotFound(t *testing.T) {
	client, _ := newGateway(t)

	_, err := client.GetTimer(context.Background(), "missing")
	var statusErr *StatusError
	require.ErrorAs(t, err, &statusErr)
	assert.Equal(t, http.StatusNotFound, statusErr.StatusCode)
	assert.Equal(t, "not_found", statusErr.Code)

	_, err = client.GetSchedule(context.Background(), "nobody")
	require.ErrorAs(t, err, &statusErr)
	assert.Equal(t, http.StatusNotFound, statusErr.StatusCode)
}

func TestStateClientGetSchedule(t *testing.T) {
	client, _ := newGateway(t)

	view, err := client.GetSchedule(context.Background(), "guild-1")
	require.NoError(t, err)
	assert.Equal(t, "guild-1", view.GuildID)
	assert.Equal(t, schedule.DefaultSlot, view.Slot)
	assert.Equal(t, []string{"2025-06-11", "2025-06-12", "2025-06-13"}, view.Dates)
	assert.True(t, view.Countdown.Scheduled)
	assert.False(t, view.Countdown.Active)
}

func TestStatusErrorPlainBody(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "bad gateway", http.StatusBadGateway)
	}))
	defer srv.Close()

	_, err := NewBaseClient(srv.URL).MakeRequest(context.Background(), http.MethodGet, "/x", nil)
	var statusErr *StatusError
	require.ErrorAs(t, err, &statusErr)
	assert.Equal(t, http.StatusBadGateway, statusErr.StatusCode)
	assert.Empty(t, statusErr.Code)
	assert.Contains(t, statusErr.Error(), "bad gateway")
}
