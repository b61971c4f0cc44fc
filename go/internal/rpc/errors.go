package rpc

import (
	"errors"
	"strings"

	"connectrpc.com/connect"
	"github.com/mcdev12/battletimer/go/internal/schedule"
	"github.com/mcdev12/battletimer/go/internal/timer"
)

var codeOf = []struct {
	err  error
	code connect.Code
}{
	{timer.ErrForbidden, connect.CodePermissionDenied},
	{schedule.ErrForbidden, connect.CodePermissionDenied},
	{timer.ErrInvalidCommand, connect.CodeInvalidArgument},
	{schedule.ErrInvalidSlot, connect.CodeInvalidArgument},
	{schedule.ErrInvalidRange, connect.CodeInvalidArgument},
	{timer.ErrNotFound, connect.CodeNotFound},
	{schedule.ErrGuildNotFound, connect.CodeNotFound},
	{timer.ErrUnavailable, connect.CodeUnavailable},
}

// toConnectError maps service errors onto Connect codes.
func toConnectError(err error) error {
	for _, c := range codeOf {
		if errors.Is(err, c.err) {
			return connect.NewError(c.code, err)
		}
	}
	return connect.NewError(connect.CodeInternal, err)
}

// fromTimerError turns a Connect error received by a client back into the
// matching timer error so callers can handle local and remote controllers alike.
func fromTimerError(err error) error {
	switch connect.CodeOf(err) {
	case connect.CodePermissionDenied:
		return errors.Join(timer.ErrForbidden, err)
	case connect.CodeInvalidArgument:
		return errors.Join(timer.ErrInvalidCommand, err)
	case connect.CodeNotFound:
		return errors.Join(timer.ErrNotFound, err)
	case connect.CodeUnavailable, connect.CodeDeadlineExceeded:
		return errors.Join(timer.ErrUnavailable, err)
	}
	return err
}

func fromScheduleError(err error) error {
	switch connect.CodeOf(err) {
	case connect.CodePermissionDenied:
		return errors.Join(schedule.ErrForbidden, err)
	case connect.CodeInvalidArgument:
		var cerr *connect.Error
		if errors.As(err, &cerr) && strings.Contains(cerr.Message(), schedule.ErrInvalidSlot.Error()) {
			return errors.Join(schedule.ErrInvalidSlot, err)
		}
		return errors.Join(schedule.ErrInvalidRange, err)
	case connect.CodeNotFound:
		return errors.Join(schedule.ErrGuildNotFound, err)
	}
	return err
}
