// Package broadcast fans state-change notifications out to every subscriber of a
// room. A room is a string such as "room:{token}" for one control timer or
// "guild:{guildId}" for a guild's battle schedule.
//
// Delivery is at-least-once per live subscriber. Subscribers that fall behind are
// dropped: their channel is closed and they are expected to subscribe again and
// re-read current state from the store.
package broadcast

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"time"
)

// GuildUpdateEvent is emitted on a guild room whenever its schedule changes.
const GuildUpdateEvent = "update"

// ErrClosed is returned by operations on a closed broadcaster.
var ErrClosed = errors.New("broadcaster closed")

// TimerRoom returns the room carrying state updates for a control timer.
func TimerRoom(token string) string { return "room:" + token }

// GuildRoom returns the room carrying schedule updates for a guild.
func GuildRoom(guildID string) string { return "guild:" + guildID }

// TimerUpdateEvent names the event published with a timer's full state.
func TimerUpdateEvent(token string) string { return "timer:" + token + ":update" }

// TimerRemovedEvent names the event published when a timer is deleted.
func TimerRemovedEvent(token string) string { return "timer:" + token + ":removed" }

// Message is one notification delivered to a room.
type Message struct {
	Room        string          `json:"room"`
	Event       string          `json:"event"`
	Data        json.RawMessage `json:"data"`
	PublishedAt time.Time       `json:"publishedAt"`
}

// Publisher emits events to rooms.
type Publisher interface {
	Publish(ctx context.Context, room, event string, payload any) error
}

// Subscriber opens a stream of messages for one room.
type Subscriber interface {
	Subscribe(ctx context.Context, room string) (*Subscription, error)
}

// Broadcaster is both ends of the fan-out.
type Broadcaster interface {
	Publisher
	Subscriber
	Close() error
}

// Subscription is a live stream of messages for a room. C is closed when the
// subscription ends, whether by Close, context cancellation or being dropped
// for falling behind.
type Subscription struct {
	Room string
	C    <-chan Message

	once   sync.Once
	cancel func()
}

func newSubscription(room string, ch <-chan Message, cancel func()) *Subscription {
	return &Subscription{Room: room, C: ch, cancel: cancel}
}

// Close stops delivery. It is safe to call more than once.
func (s *Subscription) Close() {
	s.once.Do(s.cancel)
}

func newMessage(room, event string, payload any) (Message, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return Message{}, err
	}
	return Message{
		Room:        room,
		Event:       event,
		Data:        data,
		PublishedAt: time.Now().UTC(),
	}, nil
}
