// Package timer owns the control timer state machine. Every accepted transition
// is written to the timer store and then published to the timer's room, in that
// order and only together.
package timer

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"
	"github.com/mcdev12/battletimer/go/internal/broadcast"
	"github.com/mcdev12/battletimer/go/internal/clock"
	"github.com/mcdev12/battletimer/go/internal/timerstore"
	"github.com/rs/zerolog/log"
)

const (
	defaultMaxRetries     = 5
	defaultPublishTimeout = 5 * time.Second
)

// Snapshot is a timer's state together with the remaining time the server
// derived from it.
type Snapshot struct {
	Token       string      `json:"roomId"`
	State       clock.State `json:"state"`
	RemainingMs int64       `json:"remaining"`
	ServerTime  time.Time   `json:"serverTime"`
}

// ProvisionRequest creates a timer for a newly created entity.
type ProvisionRequest struct {
	// Token identifies the timer. A random one is generated when empty.
	Token           string
	OwnerID         string
	HolderID        string
	DefaultDuration time.Duration
}

// Controller applies control actions to timers.
type Controller struct {
	store           timerstore.Store
	publisher       broadcast.Publisher
	clock           clockwork.Clock
	locks           *tokenLocks
	defaultDuration time.Duration
	maxRetries      int
	publishTimeout  time.Duration
}

// Option configures a Controller.
type Option func(*Controller)

// WithClock sets the clock used for "now". Tests pass a clockwork.FakeClock.
func WithClock(c clockwork.Clock) Option {
	return func(ctl *Controller) { ctl.clock = c }
}

// WithDefaultDuration sets the duration used when an entity configures none.
func WithDefaultDuration(d time.Duration) Option {
	return func(ctl *Controller) { ctl.defaultDuration = d }
}

// WithMaxRetries bounds how often a transition is re-applied after losing a
// conditional write to another instance.
func WithMaxRetries(n int) Option {
	return func(ctl *Controller) { ctl.maxRetries = n }
}

// NewController creates a controller over store and publisher.
func NewController(store timerstore.Store, publisher broadcast.Publisher, opts ...Option) *Controller {
	c := &Controller{
		store:           store,
		publisher:       publisher,
		clock:           clockwork.NewRealClock(),
		locks:           newTokenLocks(),
		defaultDuration: clock.DefaultDuration,
		maxRetries:      defaultMaxRetries,
		publishTimeout:  defaultPublishTimeout,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Control validates cmd, checks that actorID may operate the timer and applies
// the transition. The returned state is the one now in the store. No-op
// transitions return the current state without writing or publishing.
//
// Expire is accepted from any actor since it only takes effect when the stored
// state has really run out at the server's clock.
func (c *Controller) Control(ctx context.Context, actorID string, cmd Command) (clock.State, error) {
	if err := cmd.Validate(); err != nil {
		return clock.State{}, err
	}

	unlock := c.locks.lock(cmd.Token)
	defer unlock()

	owner, err := c.ownership(ctx, cmd.Token)
	if err != nil {
		return clock.State{}, err
	}
	if cmd.Action != ActionExpire && !owner.Allows(actorID) {
		log.Warn().
			Str("token", cmd.Token).
			Str("actor_id", actorID).
			Str("action", string(cmd.Action)).
			Msg("rejected timer command from unauthorized actor")
		return clock.State{}, ErrForbidden
	}
	defaultDuration := owner.DefaultDuration(c.defaultDuration)

	for attempt := 0; ; attempt++ {
		current, err := c.load(ctx, cmd.Token)
		if err != nil {
			return clock.State{}, err
		}

		next, changed := Apply(current, cmd, c.clock.Now(), defaultDuration)
		if !changed {
			log.Debug().
				Str("token", cmd.Token).
				Str("action", string(cmd.Action)).
				Msg("timer command is a no-op")
			return current, nil
		}

		rev, err := c.store.Put(ctx, cmd.Token, next)
		if errors.Is(err, timerstore.ErrConflict) {
			if attempt >= c.maxRetries {
				return clock.State{}, fmt.Errorf("%w: too many concurrent writers on %s", ErrUnavailable, cmd.Token)
			}
			log.Debug().
				Str("token", cmd.Token).
				Int("attempt", attempt+1).
				Msg("timer revision conflict, retrying")
			continue
		}
		if err != nil {
			return clock.State{}, fmt.Errorf("%w: %v", ErrUnavailable, err)
		}
		next.Revision = rev

		log.Info().
			Str("token", cmd.Token).
			Str("actor_id", actorID).
			Str("action", string(cmd.Action)).
			Int("value", cmd.Value).
			Bool("running", next.IsRunning).
			Int64("duration_ms", next.DurationMs).
			Uint64("revision", rev).
			Msg("timer transition applied")

		c.publish(ctx, cmd.Token, broadcast.TimerUpdateEvent(cmd.Token), next)
		return next, nil
	}
}

// Provision creates the state and authorization record for a new timer.
// Provisioning an existing token is allowed only for its owner, who may change
// the holder and default duration that way; the state itself is kept.
func (c *Controller) Provision(ctx context.Context, req ProvisionRequest) (Snapshot, error) {
	if req.OwnerID == "" {
		return Snapshot{}, fmt.Errorf("%w: owner is required", ErrInvalidCommand)
	}
	if req.DefaultDuration < 0 {
		return Snapshot{}, fmt.Errorf("%w: negative default duration", ErrInvalidCommand)
	}
	token := req.Token
	if token == "" {
		token = uuid.New().String()
	}
	if !timerstore.ValidToken(token) {
		return Snapshot{}, fmt.Errorf("%w: bad token %q", ErrInvalidCommand, token)
	}

	unlock := c.locks.lock(token)
	defer unlock()

	owner := timerstore.Ownership{
		OwnerID:           req.OwnerID,
		HolderID:          req.HolderID,
		DefaultDurationMs: req.DefaultDuration.Milliseconds(),
	}

	// The conditional create decides who provisioned the token; ownership is
	// only written by the winner.
	state := clock.NewState(owner.DefaultDuration(c.defaultDuration))
	rev, err := c.store.Put(ctx, token, state)
	if errors.Is(err, timerstore.ErrConflict) {
		return c.reprovision(ctx, token, owner)
	}
	if err != nil {
		return Snapshot{}, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	state.Revision = rev

	if err := c.store.PutOwnership(ctx, token, owner); err != nil {
		return Snapshot{}, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}

	log.Info().
		Str("token", token).
		Str("owner_id", req.OwnerID).
		Int64("duration_ms", state.DurationMs).
		Msg("timer provisioned")

	c.publish(ctx, token, broadcast.TimerUpdateEvent(token), state)
	return c.snapshot(token, state), nil
}

// reprovision handles Provision on a token whose state already exists. A
// missing authorization record means an earlier Provision failed between its
// two writes, and the caller completes it.
func (c *Controller) reprovision(ctx context.Context, token string, owner timerstore.Ownership) (Snapshot, error) {
	existing, err := c.store.GetOwnership(ctx, token)
	switch {
	case errors.Is(err, timerstore.ErrNotFound):
	case err != nil:
		return Snapshot{}, fmt.Errorf("%w: %v", ErrUnavailable, err)
	case existing.OwnerID != owner.OwnerID:
		log.Warn().
			Str("token", token).
			Str("actor_id", owner.OwnerID).
			Msg("rejected provision of a timer owned by someone else")
		return Snapshot{}, ErrForbidden
	}

	if err := c.store.PutOwnership(ctx, token, owner); err != nil {
		return Snapshot{}, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	state, err := c.load(ctx, token)
	if err != nil {
		return Snapshot{}, err
	}
	log.Info().Str("token", token).Str("owner_id", owner.OwnerID).Msg("timer already provisioned, ownership updated")
	return c.snapshot(token, state), nil
}

// Revoke deletes a timer. Only the owner may revoke.
func (c *Controller) Revoke(ctx context.Context, actorID, token string) error {
	unlock := c.locks.lock(token)
	defer unlock()

	owner, err := c.ownership(ctx, token)
	if err != nil {
		return err
	}
	if actorID == "" || actorID != owner.OwnerID {
		return ErrForbidden
	}
	if err := c.store.Delete(ctx, token); err != nil {
		return fmt.Errorf("%w: %v", ErrUnavailable, err)
	}

	log.Info().Str("token", token).Str("actor_id", actorID).Msg("timer revoked")
	c.publish(ctx, token, broadcast.TimerRemovedEvent(token), map[string]string{"roomId": token})
	return nil
}

// AssignHolder sets the identity allowed to operate the timer besides its owner.
// An empty holderID clears the assignment. Only the owner may assign.
func (c *Controller) AssignHolder(ctx context.Context, actorID, token, holderID string) error {
	unlock := c.locks.lock(token)
	defer unlock()

	owner, err := c.ownership(ctx, token)
	if err != nil {
		return err
	}
	if actorID == "" || actorID != owner.OwnerID {
		return ErrForbidden
	}
	owner.HolderID = holderID
	if err := c.store.PutOwnership(ctx, token, owner); err != nil {
		return fmt.Errorf("%w: %v", ErrUnavailable, err)
	}

	log.Info().Str("token", token).Str("holder_id", holderID).Msg("timer holder assigned")
	return nil
}

// Snapshot reads the current state of a timer.
func (c *Controller) Snapshot(ctx context.Context, token string) (Snapshot, error) {
	state, err := c.load(ctx, token)
	if err != nil {
		return Snapshot{}, err
	}
	return c.snapshot(token, state), nil
}

func (c *Controller) snapshot(token string, state clock.State) Snapshot {
	now := c.clock.Now()
	return Snapshot{
		Token:       token,
		State:       state,
		RemainingMs: clock.RemainingMs(state, now),
		ServerTime:  now.UTC(),
	}
}

func (c *Controller) load(ctx context.Context, token string) (clock.State, error) {
	state, err := c.store.Get(ctx, token)
	if errors.Is(err, timerstore.ErrNotFound) {
		return clock.State{}, fmt.Errorf("%w: %s", ErrNotFound, token)
	}
	if err != nil {
		return clock.State{}, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	return state, nil
}

func (c *Controller) ownership(ctx context.Context, token string) (timerstore.Ownership, error) {
	owner, err := c.store.GetOwnership(ctx, token)
	if errors.Is(err, timerstore.ErrNotFound) {
		return timerstore.Ownership{}, fmt.Errorf("%w: %s", ErrNotFound, token)
	}
	if err != nil {
		return timerstore.Ownership{}, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	return owner, nil
}

// publish runs after a successful write. It outlives the caller's context so a
// cancelled request cannot leave a persisted state unannounced, and its failure
// is only logged: observers reconcile on their next fetch.
func (c *Controller) publish(ctx context.Context, token, event string, payload any) {
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), c.publishTimeout)
	defer cancel()

	if err := c.publisher.Publish(ctx, broadcast.TimerRoom(token), event, payload); err != nil {
		log.Error().
			Err(err).
			Str("token", token).
			Str("event", event).
			Msg("failed to publish timer event")
	}
}
