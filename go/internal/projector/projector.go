// Package projector turns the last known state of a control timer into a
// locally refreshed countdown. Only state transitions arrive over the network;
// the value shown between them is derived from the state and the local clock.
package projector

import (
	"context"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/mcdev12/battletimer/go/internal/clock"
	"github.com/rs/zerolog/log"
)

const (
	DefaultRefresh     = 200 * time.Millisecond
	DefaultExpireRetry = 2 * time.Second
	expireTimeout      = 5 * time.Second
)

// ExpireFunc asks the server to expire a timer.
type ExpireFunc func(ctx context.Context, token string) error

// Frame is one rendering of the countdown.
type Frame struct {
	Token     string
	State     clock.State
	Remaining time.Duration
	// Expiring is set between requesting expire and receiving the resulting state.
	Expiring bool
	At       time.Time
}

// Projector tracks one timer for one observer. It is not safe for concurrent
// use; Run drives it from a single goroutine.
type Projector struct {
	token       string
	clock       clockwork.Clock
	refresh     time.Duration
	expireRetry time.Duration
	expire      ExpireFunc
	render      func(Frame)

	state clock.State
	known bool

	// expireSent is set once expire was requested for the current state;
	// expireAt is when. The request is repeated every expireRetry until a newer
	// state arrives, since the server ignores expire while its own clock still
	// shows time left.
	expireSent bool
	expireAt   time.Time
}

type Option func(*Projector)

func WithClock(c clockwork.Clock) Option {
	return func(p *Projector) { p.clock = c }
}

// WithRefresh sets how often the countdown is re-derived.
func WithRefresh(d time.Duration) Option {
	return func(p *Projector) { p.refresh = d }
}

// WithExpireRetry sets how long to wait for the state that follows an expire
// request before asking again.
func WithExpireRetry(d time.Duration) Option {
	return func(p *Projector) { p.expireRetry = d }
}

// WithRender sets the callback receiving every frame.
func WithRender(fn func(Frame)) Option {
	return func(p *Projector) { p.render = fn }
}

func New(token string, expire ExpireFunc, opts ...Option) *Projector {
	p := &Projector{
		token:       token,
		clock:       clockwork.NewRealClock(),
		refresh:     DefaultRefresh,
		expireRetry: DefaultExpireRetry,
		expire:      expire,
		render:      func(Frame) {},
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Apply records a pushed or fetched state. States carrying a revision at or
// below the one already known are duplicates and are ignored.
func (p *Projector) Apply(state clock.State) bool {
	if p.known && state.Revision <= p.state.Revision {
		return false
	}
	p.state = state
	p.known = true
	p.expireSent = false
	p.expireAt = time.Time{}
	return true
}

// State returns the last known state.
func (p *Projector) State() (clock.State, bool) {
	return p.state, p.known
}

// Tick derives the current frame and requests expire when a running state is
// seen at zero, again every expireRetry until the server's reset arrives.
func (p *Projector) Tick(ctx context.Context) Frame {
	now := p.clock.Now()
	frame := Frame{Token: p.token, State: p.state, At: now}
	if !p.known {
		return frame
	}
	frame.Remaining = clock.Remaining(p.state, now)

	if p.state.IsRunning && clock.IsExpired(p.state, now) {
		frame.Expiring = true
		if p.shouldRequestExpire(now) {
			p.requestExpire(ctx, now)
		}
	}
	return frame
}

func (p *Projector) shouldRequestExpire(now time.Time) bool {
	if !p.expireSent {
		return true
	}
	return now.Sub(p.expireAt) >= p.expireRetry
}

func (p *Projector) requestExpire(ctx context.Context, now time.Time) {
	resend := p.expireSent
	p.expireSent = true
	p.expireAt = now
	if p.expire == nil {
		return
	}

	ctx, cancel := context.WithTimeout(ctx, expireTimeout)
	defer cancel()
	if err := p.expire(ctx, p.token); err != nil {
		log.Warn().Err(err).Str("token", p.token).Msg("expire request failed")
		return
	}
	log.Debug().
		Str("token", p.token).
		Uint64("revision", p.state.Revision).
		Bool("resend", resend).
		Msg("expire requested")
}

// Run renders a frame on every refresh tick and after every accepted state
// from updates until ctx ends or updates is closed.
func (p *Projector) Run(ctx context.Context, updates <-chan clock.State) error {
	ticker := p.clock.NewTicker(p.refresh)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case state, ok := <-updates:
			if !ok {
				return nil
			}
			if p.Apply(state) {
				p.render(p.Tick(ctx))
			}
		case <-ticker.Chan():
			p.render(p.Tick(ctx))
		}
	}
}
