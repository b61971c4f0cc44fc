package timer

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/mcdev12/battletimer/go/internal/broadcast"
	"github.com/mcdev12/battletimer/go/internal/clock"
	"github.com/mcdev12/battletimer/go/internal/timerstore"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/sync/errgroup"
)

type published struct {
	room  string
	event string
	state clock.State
}

type recordingPublisher struct {
	mu     sync.Mutex
	events []published
	err    error
}

func (p *recordingPublisher) Publish(ctx context.Context, room, event string, payload any) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.err != nil {
		return p.err
	}
	state, _ := payload.(clock.State)
	p.events = append(p.events, published{room: room, event: event, state: state})
	return nil
}

func (p *recordingPublisher) all() []published {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]published(nil), p.events...)
}

// flakyStore fails Put while failPut is set and can inject a competing write
// before the next Put to simulate another server instance.
type flakyStore struct {
	*timerstore.MemoryStore
	failPut   bool
	interfere int
}

func (s *flakyStore) Put(ctx context.Context, token string, state clock.State) (uint64, error) {
	if s.failPut {
		return 0, errors.New("connection refused")
	}
	if s.interfere > 0 {
		s.interfere--
		current, err := s.MemoryStore.Get(ctx, token)
		if err != nil {
			return 0, err
		}
		current.DurationMs += 1000
		if _, err := s.MemoryStore.Put(ctx, token, current); err != nil {
			return 0, err
		}
	}
	return s.MemoryStore.Put(ctx, token, state)
}

type fixture struct {
	ctl   *Controller
	store *flakyStore
	pub   *recordingPublisher
	clock *clockwork.FakeClock
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	f := &fixture{
		store: &flakyStore{MemoryStore: timerstore.NewMemoryStore()},
		pub:   &recordingPublisher{},
		clock: clockwork.NewFakeClockAt(t0),
	}
	f.ctl = NewController(f.store, f.pub, WithClock(f.clock), WithDefaultDuration(def))

	_, err := f.ctl.Provision(context.Background(), ProvisionRequest{Token: "tok", OwnerID: "owner", HolderID: "holder"})
	require.NoError(t, err)
	return f
}

func TestControllerStartPausePublishes(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)

	started, err := f.ctl.Control(ctx, "holder", cmd(ActionStart))
	require.NoError(t, err)
	assert.True(t, started.IsRunning)

	f.clock.Advance(30 * time.Second)
	paused, err := f.ctl.Control(ctx, "owner", cmd(ActionPause))
	require.NoError(t, err)
	assert.Equal(t, int64(30_000), paused.PausedMs)
	assert.Greater(t, paused.Revision, started.Revision)

	events := f.pub.all()
	require.Len(t, events, 3, "provision, start, pause")
	for _, e := range events {
		assert.Equal(t, "room:tok", e.room)
		assert.Equal(t, "timer:tok:update", e.event)
	}
	assert.Equal(t, paused, events[2].state)

	stored, err := f.store.Get(ctx, "tok")
	require.NoError(t, err)
	assert.Equal(t, paused, stored)
}

func TestControllerNoopDoesNotWriteOrPublish(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)

	before, err := f.store.Get(ctx, "tok")
	require.NoError(t, err)

	got, err := f.ctl.Control(ctx, "owner", cmd(ActionPause))
	require.NoError(t, err)
	assert.Equal(t, before, got)
	assert.Len(t, f.pub.all(), 1, "only the provision event")
}

func TestControllerRejectsUnauthorizedActor(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)

	before, err := f.store.Get(ctx, "tok")
	require.NoError(t, err)
	owner, err := f.store.GetOwnership(ctx, "tok")
	require.NoError(t, err)

	for _, action := range []Command{cmd(ActionStart), cmd(ActionReset), adjust(ActionIncrease, 5)} {
		_, err := f.ctl.Control(ctx, "stranger", action)
		assert.ErrorIs(t, err, ErrForbidden)
		_, err = f.ctl.Control(ctx, "", action)
		assert.ErrorIs(t, err, ErrForbidden)
	}

	after, err := f.store.Get(ctx, "tok")
	require.NoError(t, err)
	assert.Equal(t, before, after)
	ownerAfter, err := f.store.GetOwnership(ctx, "tok")
	require.NoError(t, err)
	assert.Equal(t, owner, ownerAfter)
	assert.Len(t, f.pub.all(), 1)
}

func TestControllerStoreFailureDoesNotPublish(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	f.store.failPut = true

	_, err := f.ctl.Control(ctx, "owner", cmd(ActionStart))
	assert.ErrorIs(t, err, ErrUnavailable)
	assert.Len(t, f.pub.all(), 1)

	f.store.failPut = false
	state, err := f.ctl.Control(ctx, "owner", cmd(ActionStart))
	require.NoError(t, err, "retry after the store recovers")
	assert.True(t, state.IsRunning)
}

func TestControllerPublishFailureIsNotFatal(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	f.pub.err = errors.New("bus down")

	state, err := f.ctl.Control(ctx, "owner", cmd(ActionStart))
	require.NoError(t, err)

	stored, err := f.store.Get(ctx, "tok")
	require.NoError(t, err)
	assert.Equal(t, state, stored)
}

func TestControllerRetriesOnRevisionConflict(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	f.store.interfere = 2

	state, err := f.ctl.Control(ctx, "owner", adjust(ActionIncrease, 5))
	require.NoError(t, err)
	assert.Equal(t, def.Milliseconds()+2_000+5_000, state.DurationMs, "both competing writes and ours survive")
}

func TestControllerGivesUpAfterTooManyConflicts(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	f.ctl.maxRetries = 1
	f.store.interfere = 10

	_, err := f.ctl.Control(ctx, "owner", adjust(ActionIncrease, 5))
	assert.ErrorIs(t, err, ErrUnavailable)
}

func TestControllerConcurrentAdjustsAreNotLost(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)

	var g errgroup.Group
	for i := 0; i < 50; i++ {
		g.Go(func() error {
			_, err := f.ctl.Control(ctx, "owner", adjust(ActionIncrease, 5))
			return err
		})
		g.Go(func() error {
			_, err := f.ctl.Control(ctx, "holder", adjust(ActionDecrease, 3))
			return err
		})
	}
	require.NoError(t, g.Wait())

	state, err := f.store.Get(ctx, "tok")
	require.NoError(t, err)
	assert.Equal(t, def.Milliseconds()+50*5_000-50*3_000, state.DurationMs)
	assert.Len(t, f.pub.all(), 101)
	assert.Zero(t, f.ctl.locks.size())
}

func TestControllerExpireIsIdempotent(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)

	_, err := f.ctl.Control(ctx, "owner", cmd(ActionStart))
	require.NoError(t, err)

	_, err = f.ctl.Control(ctx, "observer", cmd(ActionExpire))
	require.NoError(t, err)
	assert.Len(t, f.pub.all(), 2, "early expire is ignored")

	f.clock.Advance(def)
	var g errgroup.Group
	for _, observer := range []string{"a", "b", "c", ""} {
		observer := observer
		g.Go(func() error {
			_, err := f.ctl.Control(ctx, observer, cmd(ActionExpire))
			return err
		})
	}
	require.NoError(t, g.Wait())

	events := f.pub.all()
	require.Len(t, events, 3, "exactly one reset is published")
	assert.Equal(t, def, clock.Remaining(events[2].state, f.clock.Now()))
	assert.False(t, events[2].state.IsRunning)
}

func TestControllerResetUsesEntityDefault(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)

	snap, err := f.ctl.Provision(ctx, ProvisionRequest{Token: "custom", OwnerID: "owner", DefaultDuration: 90 * time.Second})
	require.NoError(t, err)
	assert.Equal(t, int64(90_000), snap.RemainingMs)

	_, err = f.ctl.Control(ctx, "owner", Command{Token: "custom", Action: ActionIncrease, Value: 30})
	require.NoError(t, err)
	state, err := f.ctl.Control(ctx, "owner", Command{Token: "custom", Action: ActionReset})
	require.NoError(t, err)
	assert.Equal(t, 90*time.Second, clock.Remaining(state, f.clock.Now()))
}

func TestControllerUnknownTimer(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)

	_, err := f.ctl.Control(ctx, "owner", Command{Token: "missing", Action: ActionStart})
	assert.ErrorIs(t, err, ErrNotFound)
	_, err = f.ctl.Snapshot(ctx, "missing")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestControllerInvalidCommand(t *testing.T) {
	f := newFixture(t)
	_, err := f.ctl.Control(context.Background(), "owner", Command{Token: "tok", Action: "rewind"})
	assert.ErrorIs(t, err, ErrInvalidCommand)
}

func TestControllerAssignHolder(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)

	assert.ErrorIs(t, f.ctl.AssignHolder(ctx, "holder", "tok", "someone"), ErrForbidden)
	require.NoError(t, f.ctl.AssignHolder(ctx, "owner", "tok", "new-holder"))

	_, err := f.ctl.Control(ctx, "holder", cmd(ActionStart))
	assert.ErrorIs(t, err, ErrForbidden, "previous holder lost access")
	_, err = f.ctl.Control(ctx, "new-holder", cmd(ActionStart))
	assert.NoError(t, err)
}

func TestControllerRevoke(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)

	assert.ErrorIs(t, f.ctl.Revoke(ctx, "holder", "tok"), ErrForbidden)
	require.NoError(t, f.ctl.Revoke(ctx, "owner", "tok"))

	_, err := f.ctl.Snapshot(ctx, "tok")
	assert.ErrorIs(t, err, ErrNotFound)

	events := f.pub.all()
	assert.Equal(t, broadcast.TimerRemovedEvent("tok"), events[len(events)-1].event)
}

func TestControllerProvisionCannotTakeOverTimer(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)

	owner, err := f.store.GetOwnership(ctx, "tok")
	require.NoError(t, err)
	state, err := f.store.Get(ctx, "tok")
	require.NoError(t, err)

	_, err = f.ctl.Provision(ctx, ProvisionRequest{Token: "tok", OwnerID: "mallory"})
	assert.ErrorIs(t, err, ErrForbidden)

	after, err := f.store.GetOwnership(ctx, "tok")
	require.NoError(t, err)
	assert.Equal(t, owner, after)
	stateAfter, err := f.store.Get(ctx, "tok")
	require.NoError(t, err)
	assert.Equal(t, state, stateAfter)

	_, err = f.ctl.Control(ctx, "mallory", cmd(ActionStart))
	assert.ErrorIs(t, err, ErrForbidden)
	_, err = f.ctl.Control(ctx, "owner", cmd(ActionStart))
	assert.NoError(t, err)
}

func TestControllerOwnerReprovisionKeepsState(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)

	started, err := f.ctl.Control(ctx, "owner", cmd(ActionStart))
	require.NoError(t, err)
	f.clock.Advance(10 * time.Second)

	snap, err := f.ctl.Provision(ctx, ProvisionRequest{Token: "tok", OwnerID: "owner", HolderID: "other", DefaultDuration: time.Minute})
	require.NoError(t, err)
	assert.Equal(t, started, snap.State, "running state untouched")
	assert.Equal(t, def.Milliseconds()-10_000, snap.RemainingMs)

	owner, err := f.store.GetOwnership(ctx, "tok")
	require.NoError(t, err)
	assert.Equal(t, timerstore.Ownership{OwnerID: "owner", HolderID: "other", DefaultDurationMs: 60_000}, owner)
	assert.Len(t, f.pub.all(), 2, "provision and start only")
}

func TestControllerProvisionCompletesMissingOwnership(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)

	_, err := f.store.Put(ctx, "orphan", clock.NewState(def))
	require.NoError(t, err)
	_, err = f.ctl.Control(ctx, "owner", Command{Token: "orphan", Action: ActionStart})
	assert.ErrorIs(t, err, ErrNotFound)

	_, err = f.ctl.Provision(ctx, ProvisionRequest{Token: "orphan", OwnerID: "owner"})
	require.NoError(t, err)
	_, err = f.ctl.Control(ctx, "owner", Command{Token: "orphan", Action: ActionStart})
	assert.NoError(t, err)
}

func TestControllerProvisionGeneratesToken(t *testing.T) {
	f := newFixture(t)

	snap, err := f.ctl.Provision(context.Background(), ProvisionRequest{OwnerID: "owner"})
	require.NoError(t, err)
	assert.True(t, timerstore.ValidToken(snap.Token))
	assert.Equal(t, def.Milliseconds(), snap.RemainingMs)

	_, err = f.ctl.Provision(context.Background(), ProvisionRequest{})
	assert.ErrorIs(t, err, ErrInvalidCommand)
}
