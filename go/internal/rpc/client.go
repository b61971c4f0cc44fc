package rpc

import (
	"context"
	"strings"
	"time"

	"connectrpc.com/connect"
	"github.com/mcdev12/battletimer/go/internal/clock"
	"github.com/mcdev12/battletimer/go/internal/schedule"
	"github.com/mcdev12/battletimer/go/internal/timer"
)

// TimerClient calls a remote TimerService. Its methods mirror the controller's
// and report the controller's errors.
type TimerClient struct {
	control      *connect.Client[timer.Command, ControlResponse]
	snapshot     *connect.Client[SnapshotRequest, timer.Snapshot]
	provision    *connect.Client[ProvisionRequest, timer.Snapshot]
	revoke       *connect.Client[RevokeRequest, Empty]
	assignHolder *connect.Client[AssignHolderRequest, Empty]
}

// NewTimerClient creates a client for the service at baseURL.
func NewTimerClient(httpClient connect.HTTPClient, baseURL string, opts ...connect.ClientOption) *TimerClient {
	baseURL = strings.TrimRight(baseURL, "/")
	opts = append([]connect.ClientOption{ClientJSON()}, opts...)
	return &TimerClient{
		control:      connect.NewClient[timer.Command, ControlResponse](httpClient, baseURL+TimerControlProcedure, opts...),
		snapshot:     connect.NewClient[SnapshotRequest, timer.Snapshot](httpClient, baseURL+TimerSnapshotProcedure, opts...),
		provision:    connect.NewClient[ProvisionRequest, timer.Snapshot](httpClient, baseURL+TimerProvisionProcedure, opts...),
		revoke:       connect.NewClient[RevokeRequest, Empty](httpClient, baseURL+TimerRevokeProcedure, opts...),
		assignHolder: connect.NewClient[AssignHolderRequest, Empty](httpClient, baseURL+TimerAssignHolderProcedure, opts...),
	}
}

func (c *TimerClient) Control(ctx context.Context, actorID string, cmd timer.Command) (clock.State, error) {
	res, err := c.control.CallUnary(ctx, withActor(connect.NewRequest(&cmd), actorID))
	if err != nil {
		return clock.State{}, fromTimerError(err)
	}
	return res.Msg.State, nil
}

func (c *TimerClient) Snapshot(ctx context.Context, token string) (timer.Snapshot, error) {
	res, err := c.snapshot.CallUnary(ctx, connect.NewRequest(&SnapshotRequest{Token: token}))
	if err != nil {
		return timer.Snapshot{}, fromTimerError(err)
	}
	return *res.Msg, nil
}

// Provision creates a timer owned by actorID.
func (c *TimerClient) Provision(ctx context.Context, actorID, token, holderID string, defaultDuration time.Duration) (timer.Snapshot, error) {
	req := &ProvisionRequest{Token: token, HolderID: holderID, DefaultDurationMs: defaultDuration.Milliseconds()}
	res, err := c.provision.CallUnary(ctx, withActor(connect.NewRequest(req), actorID))
	if err != nil {
		return timer.Snapshot{}, fromTimerError(err)
	}
	return *res.Msg, nil
}

func (c *TimerClient) Revoke(ctx context.Context, actorID, token string) error {
	_, err := c.revoke.CallUnary(ctx, withActor(connect.NewRequest(&RevokeRequest{Token: token}), actorID))
	if err != nil {
		return fromTimerError(err)
	}
	return nil
}

func (c *TimerClient) AssignHolder(ctx context.Context, actorID, token, holderID string) error {
	req := &AssignHolderRequest{Token: token, HolderID: holderID}
	if _, err := c.assignHolder.CallUnary(ctx, withActor(connect.NewRequest(req), actorID)); err != nil {
		return fromTimerError(err)
	}
	return nil
}

// ScheduleClient calls a remote ScheduleService.
type ScheduleClient struct {
	register     *connect.Client[GuildRequest, schedule.Schedule]
	setTimeSlot  *connect.Client[schedule.SlotCommand, schedule.Schedule]
	setDateRange *connect.Client[schedule.RangeCommand, schedule.Schedule]
	get          *connect.Client[GuildRequest, schedule.View]
}

func NewScheduleClient(httpClient connect.HTTPClient, baseURL string, opts ...connect.ClientOption) *ScheduleClient {
	baseURL = strings.TrimRight(baseURL, "/")
	opts = append([]connect.ClientOption{ClientJSON()}, opts...)
	return &ScheduleClient{
		register:     connect.NewClient[GuildRequest, schedule.Schedule](httpClient, baseURL+ScheduleRegisterProcedure, opts...),
		setTimeSlot:  connect.NewClient[schedule.SlotCommand, schedule.Schedule](httpClient, baseURL+ScheduleSetTimeSlotProcedure, opts...),
		setDateRange: connect.NewClient[schedule.RangeCommand, schedule.Schedule](httpClient, baseURL+ScheduleSetDateRangeProcedure, opts...),
		get:          connect.NewClient[GuildRequest, schedule.View](httpClient, baseURL+ScheduleGetProcedure, opts...),
	}
}

func (c *ScheduleClient) Register(ctx context.Context, guildID, ownerID string) (schedule.Schedule, error) {
	res, err := c.register.CallUnary(ctx, withActor(connect.NewRequest(&GuildRequest{GuildID: guildID}), ownerID))
	if err != nil {
		return schedule.Schedule{}, fromScheduleError(err)
	}
	return *res.Msg, nil
}

func (c *ScheduleClient) SetTimeSlot(ctx context.Context, actorID string, cmd schedule.SlotCommand) (schedule.Schedule, error) {
	res, err := c.setTimeSlot.CallUnary(ctx, withActor(connect.NewRequest(&cmd), actorID))
	if err != nil {
		return schedule.Schedule{}, fromScheduleError(err)
	}
	return *res.Msg, nil
}

func (c *ScheduleClient) SetDateRange(ctx context.Context, actorID string, cmd schedule.RangeCommand) (schedule.Schedule, error) {
	res, err := c.setDateRange.CallUnary(ctx, withActor(connect.NewRequest(&cmd), actorID))
	if err != nil {
		return schedule.Schedule{}, fromScheduleError(err)
	}
	return *res.Msg, nil
}

func (c *ScheduleClient) View(ctx context.Context, guildID string) (schedule.View, error) {
	res, err := c.get.CallUnary(ctx, connect.NewRequest(&GuildRequest{GuildID: guildID}))
	if err != nil {
		return schedule.View{}, fromScheduleError(err)
	}
	return *res.Msg, nil
}

func withActor[T any](req *connect.Request[T], actorID string) *connect.Request[T] {
	if actorID != "" {
		req.Header().Set(ActorHeader, actorID)
	}
	return req
}
