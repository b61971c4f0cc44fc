package schedule

import (
	"context"
	"sync"
	"time"
)

// Schedule is a guild's battle configuration. It is replaced wholesale on
// every change.
type Schedule struct {
	GuildID   string    `json:"guildId"`
	OwnerID   string    `json:"ownerId"`
	Slot      Slot      `json:"timeSlot"`
	Window    Window    `json:"dateRange"`
	UpdatedAt time.Time `json:"updatedAt"`
}

// Calendar returns the calendar evaluating this schedule with the given
// battle length.
func (s Schedule) Calendar(battle time.Duration) Calendar {
	return Calendar{Window: s.Window, Slot: s.Slot, Battle: battle}
}

// Repository persists schedules by guild.
type Repository interface {
	Get(ctx context.Context, guildID string) (Schedule, error)
	Save(ctx context.Context, s Schedule) error
}

// MemoryRepository keeps schedules in a map.
type MemoryRepository struct {
	mu        sync.RWMutex
	schedules map[string]Schedule
}

func NewMemoryRepository() *MemoryRepository {
	return &MemoryRepository{schedules: make(map[string]Schedule)}
}

func (r *MemoryRepository) Get(ctx context.Context, guildID string) (Schedule, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	s, ok := r.schedules[guildID]
	if !ok {
		return Schedule{}, ErrGuildNotFound
	}
	return s, nil
}

func (r *MemoryRepository) Save(ctx context.Context, s Schedule) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.schedules[s.GuildID] = s
	return nil
}
