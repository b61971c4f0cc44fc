// Package rpc exposes the timer controller and the schedule service over
// Connect. Messages are plain Go structs carried by a JSON codec, so the
// services speak the Connect protocol without generated code.
package rpc

import (
	"encoding/json"
	"fmt"

	"connectrpc.com/connect"
)

const (
	TimerServiceName    = "battletimer.timer.v1.TimerService"
	ScheduleServiceName = "battletimer.schedule.v1.ScheduleService"

	// ActorHeader carries the caller identity set by the upstream auth layer.
	ActorHeader = "X-Actor-ID"
)

// jsonCodec replaces Connect's protobuf JSON codec for non-proto messages.
type jsonCodec struct{}

var _ connect.Codec = jsonCodec{}

func (jsonCodec) Name() string { return "json" }

func (jsonCodec) Marshal(msg any) ([]byte, error) {
	data, err := json.Marshal(msg)
	if err != nil {
		return nil, fmt.Errorf("marshal %T: %w", msg, err)
	}
	return data, nil
}

func (jsonCodec) Unmarshal(data []byte, msg any) error {
	if len(data) == 0 {
		return nil
	}
	if err := json.Unmarshal(data, msg); err != nil {
		return fmt.Errorf("unmarshal %T: %w", msg, err)
	}
	return nil
}

// WithJSON is the handler option every service in this package is built with.
func WithJSON() connect.HandlerOption { return connect.WithCodec(jsonCodec{}) }

// ClientJSON is the client option matching WithJSON.
func ClientJSON() connect.ClientOption { return connect.WithCodec(jsonCodec{}) }

// Empty is the response of calls that return nothing.
type Empty struct{}
