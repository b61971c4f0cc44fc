package gateway

import (
	"encoding/json"
	"errors"

	"github.com/mcdev12/battletimer/go/internal/schedule"
	"github.com/mcdev12/battletimer/go/internal/timer"
)

// MessageType is the kind of a websocket message, in either direction.
type MessageType string

const (
	// Client to server.
	TypeJoin         MessageType = "join"
	TypeLeave        MessageType = "leave"
	TypeTimerControl MessageType = "timer:control"
	TypeSetTimeSlot  MessageType = "schedule:timeSlot"
	TypeSetDateRange MessageType = "schedule:dateRange"

	// Server to client.
	TypeEvent    MessageType = "event"
	TypeSnapshot MessageType = "snapshot"
	TypeAck      MessageType = "ack"
	TypeError    MessageType = "error"
)

// ClientMessage is a frame received from an observer or actor.
type ClientMessage struct {
	Type      MessageType     `json:"type"`
	RequestID string          `json:"requestId,omitempty"`
	Room      string          `json:"room,omitempty"`
	Data      json.RawMessage `json:"data,omitempty"`
}

// ServerMessage is a frame sent to a connection. Events and snapshots for the
// same room carry the same Event name and payload shape, so clients handle
// both alike and de-duplicate by revision.
type ServerMessage struct {
	Type      MessageType     `json:"type"`
	RequestID string          `json:"requestId,omitempty"`
	Room      string          `json:"room,omitempty"`
	Event     string          `json:"event,omitempty"`
	Data      json.RawMessage `json:"data,omitempty"`
	Code      ErrorCode       `json:"code,omitempty"`
	Message   string          `json:"message,omitempty"`
}

// ErrorCode classifies a rejected client message.
type ErrorCode string

const (
	CodeForbidden   ErrorCode = "forbidden"
	CodeInvalid     ErrorCode = "invalid"
	CodeNotFound    ErrorCode = "not_found"
	CodeUnavailable ErrorCode = "unavailable"
	CodeInternal    ErrorCode = "internal"
)

func errorCode(err error) ErrorCode {
	switch {
	case errors.Is(err, timer.ErrForbidden), errors.Is(err, schedule.ErrForbidden):
		return CodeForbidden
	case errors.Is(err, timer.ErrInvalidCommand),
		errors.Is(err, schedule.ErrInvalidSlot),
		errors.Is(err, schedule.ErrInvalidRange),
		errors.Is(err, errBadMessage):
		return CodeInvalid
	case errors.Is(err, timer.ErrNotFound), errors.Is(err, schedule.ErrGuildNotFound):
		return CodeNotFound
	case errors.Is(err, timer.ErrUnavailable):
		return CodeUnavailable
	}
	return CodeInternal
}

var errBadMessage = errors.New("malformed message")

func errorReply(requestID string, err error) ServerMessage {
	return ServerMessage{
		Type:      TypeError,
		RequestID: requestID,
		Code:      errorCode(err),
		Message:   err.Error(),
	}
}
