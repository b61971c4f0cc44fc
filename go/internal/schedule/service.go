package schedule

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/mcdev12/battletimer/go/internal/broadcast"
	"github.com/rs/zerolog/log"
)

const publishTimeout = 5 * time.Second

// SlotCommand changes a guild's daily battle slot.
type SlotCommand struct {
	GuildID string `json:"guildId"`
	Slot    Slot   `json:"timeSlot"`
}

// RangeCommand replaces a guild's battle window. A null range clears it.
type RangeCommand struct {
	GuildID string `json:"guildId"`
	Window  Window `json:"dateRange"`
}

// View is a schedule together with its countdown at the server's clock.
type View struct {
	Schedule
	Dates     []string  `json:"dates"`
	Countdown Countdown `json:"countdown"`
}

// Service owns guild schedules. Changes are persisted and then announced on
// the guild's room.
type Service struct {
	repo      Repository
	publisher broadcast.Publisher
	clock     clockwork.Clock
	battle    time.Duration

	// Schedule writes are rare; one lock keeps read-modify-write whole.
	mu sync.Mutex
}

type ServiceOption func(*Service)

func WithServiceClock(c clockwork.Clock) ServiceOption {
	return func(s *Service) { s.clock = c }
}

func WithBattleDuration(d time.Duration) ServiceOption {
	return func(s *Service) { s.battle = d }
}

func NewService(repo Repository, publisher broadcast.Publisher, opts ...ServiceOption) *Service {
	s := &Service{
		repo:      repo,
		publisher: publisher,
		clock:     clockwork.NewRealClock(),
		battle:    BattleDuration,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Register records ownerID as the owner of a guild with nothing scheduled yet.
// Registering an existing guild again by its owner is a no-op.
func (s *Service) Register(ctx context.Context, guildID, ownerID string) (Schedule, error) {
	if guildID == "" || ownerID == "" {
		return Schedule{}, fmt.Errorf("%w: guild and owner are required", ErrGuildNotFound)
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	existing, err := s.repo.Get(ctx, guildID)
	switch {
	case err == nil:
		if existing.OwnerID != ownerID {
			return Schedule{}, ErrForbidden
		}
		return existing, nil
	case !errors.Is(err, ErrGuildNotFound):
		return Schedule{}, err
	}

	sched := Schedule{
		GuildID:   guildID,
		OwnerID:   ownerID,
		Slot:      DefaultSlot,
		UpdatedAt: s.clock.Now().UTC(),
	}
	if err := s.repo.Save(ctx, sched); err != nil {
		return Schedule{}, err
	}
	log.Info().Str("guild_id", guildID).Str("owner_id", ownerID).Msg("guild schedule registered")
	return sched, nil
}

// SetTimeSlot changes the daily battle slot. Only the guild owner may.
func (s *Service) SetTimeSlot(ctx context.Context, actorID string, cmd SlotCommand) (Schedule, error) {
	if !cmd.Slot.Valid() {
		return Schedule{}, fmt.Errorf("%w: %d", ErrInvalidSlot, cmd.Slot)
	}
	return s.update(ctx, actorID, cmd.GuildID, func(sched *Schedule) {
		sched.Slot = cmd.Slot
	})
}

// SetDateRange replaces the battle window. Only the guild owner may.
func (s *Service) SetDateRange(ctx context.Context, actorID string, cmd RangeCommand) (Schedule, error) {
	if err := cmd.Window.Validate(); err != nil {
		return Schedule{}, err
	}
	return s.update(ctx, actorID, cmd.GuildID, func(sched *Schedule) {
		sched.Window = cmd.Window
	})
}

func (s *Service) update(ctx context.Context, actorID, guildID string, mutate func(*Schedule)) (Schedule, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	sched, err := s.repo.Get(ctx, guildID)
	if err != nil {
		return Schedule{}, err
	}
	if actorID == "" || actorID != sched.OwnerID {
		log.Warn().
			Str("guild_id", guildID).
			Str("actor_id", actorID).
			Msg("rejected schedule change from non-owner")
		return Schedule{}, ErrForbidden
	}

	mutate(&sched)
	sched.UpdatedAt = s.clock.Now().UTC()
	if err := s.repo.Save(ctx, sched); err != nil {
		return Schedule{}, err
	}

	log.Info().
		Str("guild_id", guildID).
		Int("time_slot", sched.Slot.Hour()).
		Strs("dates", sched.Window.Dates()).
		Msg("guild schedule updated")

	s.publish(ctx, sched)
	return sched, nil
}

// Get returns a guild's schedule.
func (s *Service) Get(ctx context.Context, guildID string) (Schedule, error) {
	return s.repo.Get(ctx, guildID)
}

// View returns a guild's schedule and its countdown at the server's clock.
func (s *Service) View(ctx context.Context, guildID string) (View, error) {
	sched, err := s.repo.Get(ctx, guildID)
	if err != nil {
		return View{}, err
	}
	return s.view(sched), nil
}

func (s *Service) view(sched Schedule) View {
	return View{
		Schedule:  sched,
		Dates:     sched.Window.Dates(),
		Countdown: sched.Calendar(s.battle).Countdown(s.clock.Now()),
	}
}

func (s *Service) publish(ctx context.Context, sched Schedule) {
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), publishTimeout)
	defer cancel()

	if err := s.publisher.Publish(ctx, broadcast.GuildRoom(sched.GuildID), broadcast.GuildUpdateEvent, s.view(sched)); err != nil {
		log.Error().Err(err).Str("guild_id", sched.GuildID).Msg("failed to publish schedule update")
	}
}
