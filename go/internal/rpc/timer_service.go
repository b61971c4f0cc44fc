package rpc

import (
	"context"
	"net/http"
	"time"

	"connectrpc.com/connect"
	"github.com/mcdev12/battletimer/go/internal/clock"
	"github.com/mcdev12/battletimer/go/internal/timer"
)

const (
	TimerControlProcedure      = "/" + TimerServiceName + "/Control"
	TimerSnapshotProcedure     = "/" + TimerServiceName + "/Snapshot"
	TimerProvisionProcedure    = "/" + TimerServiceName + "/Provision"
	TimerRevokeProcedure       = "/" + TimerServiceName + "/Revoke"
	TimerAssignHolderProcedure = "/" + TimerServiceName + "/AssignHolder"
)

// TimerApp is what the timer service needs from the controller.
type TimerApp interface {
	Control(ctx context.Context, actorID string, cmd timer.Command) (clock.State, error)
	Snapshot(ctx context.Context, token string) (timer.Snapshot, error)
	Provision(ctx context.Context, req timer.ProvisionRequest) (timer.Snapshot, error)
	Revoke(ctx context.Context, actorID, token string) error
	AssignHolder(ctx context.Context, actorID, token, holderID string) error
}

type ControlResponse struct {
	State clock.State `json:"state"`
}

type SnapshotRequest struct {
	Token string `json:"roomId"`
}

// ProvisionRequest creates a timer owned by the calling actor.
type ProvisionRequest struct {
	Token             string `json:"roomId,omitempty"`
	HolderID          string `json:"holderId,omitempty"`
	DefaultDurationMs int64  `json:"defaultDuration,omitempty"`
}

type RevokeRequest struct {
	Token string `json:"roomId"`
}

type AssignHolderRequest struct {
	Token    string `json:"roomId"`
	HolderID string `json:"holderId"`
}

// TimerService serves the timer procedures.
type TimerService struct {
	app TimerApp
}

func NewTimerService(app TimerApp) *TimerService {
	return &TimerService{app: app}
}

func (s *TimerService) Control(ctx context.Context, req *connect.Request[timer.Command]) (*connect.Response[ControlResponse], error) {
	state, err := s.app.Control(ctx, actor(req.Header()), *req.Msg)
	if err != nil {
		return nil, toConnectError(err)
	}
	return connect.NewResponse(&ControlResponse{State: state}), nil
}

func (s *TimerService) Snapshot(ctx context.Context, req *connect.Request[SnapshotRequest]) (*connect.Response[timer.Snapshot], error) {
	snap, err := s.app.Snapshot(ctx, req.Msg.Token)
	if err != nil {
		return nil, toConnectError(err)
	}
	return connect.NewResponse(&snap), nil
}

func (s *TimerService) Provision(ctx context.Context, req *connect.Request[ProvisionRequest]) (*connect.Response[timer.Snapshot], error) {
	snap, err := s.app.Provision(ctx, timer.ProvisionRequest{
		Token:           req.Msg.Token,
		OwnerID:         actor(req.Header()),
		HolderID:        req.Msg.HolderID,
		DefaultDuration: time.Duration(req.Msg.DefaultDurationMs) * time.Millisecond,
	})
	if err != nil {
		return nil, toConnectError(err)
	}
	return connect.NewResponse(&snap), nil
}

func (s *TimerService) Revoke(ctx context.Context, req *connect.Request[RevokeRequest]) (*connect.Response[Empty], error) {
	if err := s.app.Revoke(ctx, actor(req.Header()), req.Msg.Token); err != nil {
		return nil, toConnectError(err)
	}
	return connect.NewResponse(&Empty{}), nil
}

func (s *TimerService) AssignHolder(ctx context.Context, req *connect.Request[AssignHolderRequest]) (*connect.Response[Empty], error) {
	if err := s.app.AssignHolder(ctx, actor(req.Header()), req.Msg.Token, req.Msg.HolderID); err != nil {
		return nil, toConnectError(err)
	}
	return connect.NewResponse(&Empty{}), nil
}

// NewTimerServiceHandler builds the HTTP handler for TimerService and returns
// the path to mount it on.
func NewTimerServiceHandler(svc *TimerService, opts ...connect.HandlerOption) (string, http.Handler) {
	opts = append([]connect.HandlerOption{WithJSON()}, opts...)

	mux := http.NewServeMux()
	mux.Handle(TimerControlProcedure, connect.NewUnaryHandler(TimerControlProcedure, svc.Control, opts...))
	mux.Handle(TimerSnapshotProcedure, connect.NewUnaryHandler(TimerSnapshotProcedure, svc.Snapshot,
		append(opts, connect.WithIdempotency(connect.IdempotencyNoSideEffects))...))
	mux.Handle(TimerProvisionProcedure, connect.NewUnaryHandler(TimerProvisionProcedure, svc.Provision, opts...))
	mux.Handle(TimerRevokeProcedure, connect.NewUnaryHandler(TimerRevokeProcedure, svc.Revoke, opts...))
	mux.Handle(TimerAssignHolderProcedure, connect.NewUnaryHandler(TimerAssignHolderProcedure, svc.AssignHolder, opts...))
	return "/" + TimerServiceName + "/", mux
}

func actor(h http.Header) string {
	return h.Get(ActorHeader)
}
