package timer

import (
	"bytes"
	"encoding/json"
	"fmt"

	"github.com/mcdev12/battletimer/go/internal/timerstore"
)

// Action is one of the control actions accepted on a timer.
type Action string

const (
	ActionStart    Action = "start"
	ActionPause    Action = "pause"
	ActionReset    Action = "reset"
	ActionIncrease Action = "increase"
	ActionDecrease Action = "decrease"
	// ActionExpire is sent by observers that saw a running timer reach zero.
	ActionExpire Action = "expire"
)

// MaxAdjustSeconds bounds a single increase or decrease.
const MaxAdjustSeconds = 24 * 60 * 60

// Command is the payload of a timer:control request.
type Command struct {
	Token  string `json:"roomId"`
	Action Action `json:"action"`
	// Value is the adjustment in seconds for increase and decrease.
	Value int `json:"value,omitempty"`
}

// Validate rejects unknown actions and adjustment values outside (0, MaxAdjustSeconds].
func (c Command) Validate() error {
	if !timerstore.ValidToken(c.Token) {
		return fmt.Errorf("%w: bad roomId %q", ErrInvalidCommand, c.Token)
	}
	switch c.Action {
	case ActionStart, ActionPause, ActionReset, ActionExpire:
		if c.Value != 0 {
			return fmt.Errorf("%w: %s takes no value", ErrInvalidCommand, c.Action)
		}
	case ActionIncrease, ActionDecrease:
		if c.Value <= 0 || c.Value > MaxAdjustSeconds {
			return fmt.Errorf("%w: %s needs a value between 1 and %d seconds", ErrInvalidCommand, c.Action, MaxAdjustSeconds)
		}
	default:
		return fmt.Errorf("%w: unknown action %q", ErrInvalidCommand, c.Action)
	}
	return nil
}

// ParseCommand decodes and validates a timer:control payload. Unknown fields
// are rejected along with unknown actions.
func ParseCommand(data []byte) (Command, error) {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.DisallowUnknownFields()

	var cmd Command
	if err := dec.Decode(&cmd); err != nil {
		return Command{}, fmt.Errorf("%w: %v", ErrInvalidCommand, err)
	}
	if err := cmd.Validate(); err != nil {
		return Command{}, err
	}
	return cmd, nil
}
