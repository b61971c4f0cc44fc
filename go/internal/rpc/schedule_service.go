package rpc

import (
	"context"
	"net/http"

	"connectrpc.com/connect"
	"github.com/mcdev12/battletimer/go/internal/schedule"
)

const (
	ScheduleRegisterProcedure     = "/" + ScheduleServiceName + "/Register"
	ScheduleSetTimeSlotProcedure  = "/" + ScheduleServiceName + "/SetTimeSlot"
	ScheduleSetDateRangeProcedure = "/" + ScheduleServiceName + "/SetDateRange"
	ScheduleGetProcedure          = "/" + ScheduleServiceName + "/GetSchedule"
)

// ScheduleApp is what the schedule service needs from the schedule package.
type ScheduleApp interface {
	Register(ctx context.Context, guildID, ownerID string) (schedule.Schedule, error)
	SetTimeSlot(ctx context.Context, actorID string, cmd schedule.SlotCommand) (schedule.Schedule, error)
	SetDateRange(ctx context.Context, actorID string, cmd schedule.RangeCommand) (schedule.Schedule, error)
	View(ctx context.Context, guildID string) (schedule.View, error)
}

type GuildRequest struct {
	GuildID string `json:"guildId"`
}

type ScheduleService struct {
	app ScheduleApp
}

func NewScheduleService(app ScheduleApp) *ScheduleService {
	return &ScheduleService{app: app}
}

// Register makes the calling actor the owner of a guild schedule.
func (s *ScheduleService) Register(ctx context.Context, req *connect.Request[GuildRequest]) (*connect.Response[schedule.Schedule], error) {
	sched, err := s.app.Register(ctx, req.Msg.GuildID, actor(req.Header()))
	if err != nil {
		return nil, toConnectError(err)
	}
	return connect.NewResponse(&sched), nil
}

func (s *ScheduleService) SetTimeSlot(ctx context.Context, req *connect.Request[schedule.SlotCommand]) (*connect.Response[schedule.Schedule], error) {
	sched, err := s.app.SetTimeSlot(ctx, actor(req.Header()), *req.Msg)
	if err != nil {
		return nil, toConnectError(err)
	}
	return connect.NewResponse(&sched), nil
}

func (s *ScheduleService) SetDateRange(ctx context.Context, req *connect.Request[schedule.RangeCommand]) (*connect.Response[schedule.Schedule], error) {
	sched, err := s.app.SetDateRange(ctx, actor(req.Header()), *req.Msg)
	if err != nil {
		return nil, toConnectError(err)
	}
	return connect.NewResponse(&sched), nil
}

func (s *ScheduleService) GetSchedule(ctx context.Context, req *connect.Request[GuildRequest]) (*connect.Response[schedule.View], error) {
	view, err := s.app.View(ctx, req.Msg.GuildID)
	if err != nil {
		return nil, toConnectError(err)
	}
	return connect.NewResponse(&view), nil
}

// NewScheduleServiceHandler builds the HTTP handler for ScheduleService and
// returns the path to mount it on.
func NewScheduleServiceHandler(svc *ScheduleService, opts ...connect.HandlerOption) (string, http.Handler) {
	opts = append([]connect.HandlerOption{WithJSON()}, opts...)

	mux := http.NewServeMux()
	mux.Handle(ScheduleRegisterProcedure, connect.NewUnaryHandler(ScheduleRegisterProcedure, svc.Register, opts...))
	mux.Handle(ScheduleSetTimeSlotProcedure, connect.NewUnaryHandler(ScheduleSetTimeSlotProcedure, svc.SetTimeSlot, opts...))
	mux.Handle(ScheduleSetDateRangeProcedure, connect.NewUnaryHandler(ScheduleSetDateRangeProcedure, svc.SetDateRange, opts...))
	mux.Handle(ScheduleGetProcedure, connect.NewUnaryHandler(ScheduleGetProcedure, svc.GetSchedule,
		append(opts, connect.WithIdempotency(connect.IdempotencyNoSideEffects))...))
	return "/" + ScheduleServiceName + "/", mux
}
