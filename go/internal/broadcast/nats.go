package broadcast

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/rs/zerolog/log"
)

// NATSConfig holds configuration for the NATS broadcaster.
type NATSConfig struct {
	URL           string
	SubjectPrefix string // e.g. "battletimer"
	MaxReconnects int
	ReconnectWait time.Duration
	BufferSize    int
}

// DefaultNATSConfig returns default NATS broadcaster configuration.
func DefaultNATSConfig() NATSConfig {
	return NATSConfig{
		URL:           nats.DefaultURL,
		SubjectPrefix: "battletimer",
		MaxReconnects: -1,
		ReconnectWait: 2 * time.Second,
		BufferSize:    64,
	}
}

// Connect dials NATS with the reconnect and logging handlers shared by every
// component that talks to the bus.
func Connect(url string, maxReconnects int, reconnectWait time.Duration) (*nats.Conn, error) {
	opts := []nats.Option{
		nats.MaxReconnects(maxReconnects),
		nats.ReconnectWait(reconnectWait),
		nats.DisconnectErrHandler(func(nc *nats.Conn, err error) {
			log.Error().Err(err).Msg("NATS disconnected")
		}),
		nats.ReconnectHandler(func(nc *nats.Conn) {
			log.Info().Str("url", nc.ConnectedUrl()).Msg("NATS reconnected")
		}),
		nats.ErrorHandler(func(nc *nats.Conn, sub *nats.Subscription, err error) {
			log.Error().Err(err).Msg("NATS error")
		}),
	}

	nc, err := nats.Connect(url, opts...)
	if err != nil {
		return nil, fmt.Errorf("connect to NATS: %w", err)
	}
	return nc, nil
}

// NATSBroadcaster publishes room messages on core NATS subjects so that every
// server instance sees every state change. Messages published over one
// connection are delivered in publish order.
type NATSBroadcaster struct {
	nc     *nats.Conn
	config NATSConfig
	owned  bool
}

// NewNATSBroadcaster wraps an existing connection. The caller keeps ownership of nc.
func NewNATSBroadcaster(nc *nats.Conn, config NATSConfig) *NATSBroadcaster {
	if config.BufferSize <= 0 {
		config.BufferSize = 64
	}
	return &NATSBroadcaster{nc: nc, config: config}
}

// DialNATSBroadcaster connects to config.URL and owns the resulting connection.
func DialNATSBroadcaster(config NATSConfig) (*NATSBroadcaster, error) {
	nc, err := Connect(config.URL, config.MaxReconnects, config.ReconnectWait)
	if err != nil {
		return nil, err
	}
	b := NewNATSBroadcaster(nc, config)
	b.owned = true
	return b, nil
}

// Subject maps a room name onto a NATS subject. Room separators become subject
// tokens, so "room:abc" is published on "<prefix>.room.abc".
func (b *NATSBroadcaster) Subject(room string) string {
	return b.config.SubjectPrefix + "." + strings.ReplaceAll(room, ":", ".")
}

// Publish sends the message and waits until the server has received it.
func (b *NATSBroadcaster) Publish(ctx context.Context, room, event string, payload any) error {
	msg, err := newMessage(room, event, payload)
	if err != nil {
		return fmt.Errorf("marshal %s payload: %w", event, err)
	}
	data, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("marshal message: %w", err)
	}

	subject := b.Subject(room)
	if err := b.nc.Publish(subject, data); err != nil {
		return fmt.Errorf("publish to %s: %w", subject, err)
	}
	if err := b.nc.FlushWithContext(ctx); err != nil {
		return fmt.Errorf("flush %s: %w", subject, err)
	}

	log.Debug().
		Str("subject", subject).
		Str("event", event).
		Int("size", len(data)).
		Msg("event published")
	return nil
}

// Subscribe starts delivering room messages. A subscriber that cannot keep up is
// unsubscribed and its channel closed.
func (b *NATSBroadcaster) Subscribe(ctx context.Context, room string) (*Subscription, error) {
	ch := make(chan Message, b.config.BufferSize)
	subject := b.Subject(room)

	var (
		mu     sync.Mutex
		done   bool
		natSub *nats.Subscription
	)
	finish := func() {
		mu.Lock()
		defer mu.Unlock()
		if done {
			return
		}
		done = true
		if natSub != nil {
			if err := natSub.Unsubscribe(); err != nil && err != nats.ErrConnectionClosed {
				log.Warn().Err(err).Str("subject", subject).Msg("failed to unsubscribe")
			}
		}
		close(ch)
	}

	mu.Lock()
	sub, err := b.nc.Subscribe(subject, func(m *nats.Msg) {
		var msg Message
		if err := json.Unmarshal(m.Data, &msg); err != nil {
			log.Error().Err(err).Str("subject", m.Subject).Msg("failed to decode room message")
			return
		}

		mu.Lock()
		if done {
			mu.Unlock()
			return
		}
		select {
		case ch <- msg:
			mu.Unlock()
		default:
			mu.Unlock()
			log.Warn().Str("subject", subject).Msg("subscriber buffer full, dropping subscriber")
			finish()
		}
	})
	if err != nil {
		mu.Unlock()
		return nil, fmt.Errorf("subscribe to %s: %w", subject, err)
	}
	natSub = sub
	mu.Unlock()

	stop := make(chan struct{})
	go func() {
		select {
		case <-ctx.Done():
			finish()
		case <-stop:
		}
	}()

	return newSubscription(room, ch, func() {
		close(stop)
		finish()
	}), nil
}

// Ping reports whether the connection is up and the server answers a flush.
func (b *NATSBroadcaster) Ping(ctx context.Context) error {
	if !b.nc.IsConnected() {
		return fmt.Errorf("NATS %s", b.nc.Status())
	}
	return b.nc.FlushWithContext(ctx)
}

// Close drains the connection if this broadcaster owns it.
func (b *NATSBroadcaster) Close() error {
	if !b.owned {
		return nil
	}
	return b.nc.Drain()
}
