package clients

import (
	"context"
	"net/url"

	"github.com/mcdev12/battletimer/go/internal/schedule"
	"github.com/mcdev12/battletimer/go/internal/timer"
)

// StateClient reads timer and schedule state from a gateway's HTTP routes.
type StateClient struct {
	*BaseClient
}

func NewStateClient(baseURL string) *StateClient {
	return &StateClient{BaseClient: NewBaseClient(baseURL)}
}

func (c *StateClient) GetTimer(ctx context.Context, token string) (timer.Snapshot, error) {
	var snap timer.Snapshot
	err := c.GetJSON(ctx, "/api/timers/"+url.PathEscape(token), &snap)
	return snap, err
}

func (c *StateClient) GetSchedule(ctx context.Context, guildID string) (schedule.View, error) {
	var view schedule.View
	err := c.GetJSON(ctx, "/api/guilds/"+url.PathEscape(guildID)+"/schedule", &view)
	return view, err
}
