package broadcast

import (
	"context"
	"fmt"
	"sync"

	"github.com/rs/zerolog/log"
)

// Hub is an in-process Broadcaster. It serves single-instance deployments and
// tests; multi-instance deployments use NATSBroadcaster.
type Hub struct {
	mu         sync.RWMutex
	rooms      map[string]map[*hubSub]struct{}
	bufferSize int
	closed     bool
}

type hubSub struct {
	room string
	ch   chan Message
	done bool
}

// NewHub creates a hub whose subscribers buffer up to bufferSize messages.
func NewHub(bufferSize int) *Hub {
	if bufferSize <= 0 {
		bufferSize = 64
	}
	return &Hub{
		rooms:      make(map[string]map[*hubSub]struct{}),
		bufferSize: bufferSize,
	}
}

// Publish delivers payload to every current subscriber of room. Subscribers whose
// buffer is full are dropped.
func (h *Hub) Publish(ctx context.Context, room, event string, payload any) error {
	msg, err := newMessage(room, event, payload)
	if err != nil {
		return fmt.Errorf("marshal %s payload: %w", event, err)
	}

	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed {
		return ErrClosed
	}

	delivered := 0
	for sub := range h.rooms[room] {
		select {
		case sub.ch <- msg:
			delivered++
		default:
			log.Warn().
				Str("room", room).
				Str("event", event).
				Msg("subscriber buffer full, dropping subscriber")
			h.removeLocked(sub)
		}
	}

	log.Debug().
		Str("room", room).
		Str("event", event).
		Int("subscribers", delivered).
		Msg("event broadcasted")
	return nil
}

// Subscribe registers a new subscriber for room. The subscription ends when ctx
// is cancelled or Close is called.
func (h *Hub) Subscribe(ctx context.Context, room string) (*Subscription, error) {
	sub := &hubSub{room: room, ch: make(chan Message, h.bufferSize)}

	h.mu.Lock()
	if h.closed {
		h.mu.Unlock()
		return nil, ErrClosed
	}
	if h.rooms[room] == nil {
		h.rooms[room] = make(map[*hubSub]struct{})
	}
	h.rooms[room][sub] = struct{}{}
	h.mu.Unlock()

	stop := make(chan struct{})
	cancel := func() {
		close(stop)
		h.mu.Lock()
		h.removeLocked(sub)
		h.mu.Unlock()
	}
	go func() {
		select {
		case <-ctx.Done():
			h.mu.Lock()
			h.removeLocked(sub)
			h.mu.Unlock()
		case <-stop:
		}
	}()

	return newSubscription(room, sub.ch, cancel), nil
}

// Subscribers returns how many subscribers room currently has.
func (h *Hub) Subscribers(room string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.rooms[room])
}

// Close ends every subscription.
func (h *Hub) Close() error {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed {
		return nil
	}
	h.closed = true
	for _, subs := range h.rooms {
		for sub := range subs {
			h.removeLocked(sub)
		}
	}
	return nil
}

func (h *Hub) removeLocked(sub *hubSub) {
	if sub.done {
		return
	}
	sub.done = true
	close(sub.ch)

	subs := h.rooms[sub.room]
	delete(subs, sub)
	if len(subs) == 0 {
		delete(h.rooms, sub.room)
	}
}
