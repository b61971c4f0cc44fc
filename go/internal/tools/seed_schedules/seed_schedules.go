package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/mcdev12/battletimer/go/internal/dbconfig"
	"github.com/mcdev12/battletimer/go/internal/schedule"
)

// seedSchedule mirrors one entry of the seed file. The slot accepts a label
// or an hour; the range needs only its first day.
type seedSchedule struct {
	GuildID string          `json:"guildId"`
	OwnerID string          `json:"ownerId"`
	Slot    schedule.Slot   `json:"timeSlot"`
	Window  schedule.Window `json:"dateRange"`
}

func main() {
	path := "go/internal/assets/schedules.json"
	if len(os.Args) > 1 {
		path = os.Args[1]
	}

	// 1) Load the JSON snapshot
	data, err := os.ReadFile(path)
	if err != nil {
		fmt.Fprintf(os.Stderr, "read JSON: %v\n", err)
		os.Exit(1)
	}
	var seeds []seedSchedule
	if err := json.Unmarshal(data, &seeds); err != nil {
		fmt.Fprintf(os.Stderr, "unmarshal JSON: %v\n", err)
		os.Exit(1)
	}

	// 2) Connect using shared dbconfig
	ctx := context.Background()
	pool, err := dbconfig.NewConfigFromEnv().NewPool(ctx)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to connect: %v\n", err)
		os.Exit(1)
	}
	defer pool.Close()

	repo := schedule.NewPostgresRepository(pool)
	if err := repo.Migrate(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "migrate: %v\n", err)
		os.Exit(1)
	}

	// 3) Insert missing guilds and count
	var (
		total    = len(seeds)
		inserted int
		skipped  int
		errs     int
	)

	for _, s := range seeds {
		if s.GuildID == "" || s.OwnerID == "" {
			fmt.Fprintf(os.Stderr, "skipping entry without guild or owner\n")
			errs++
			continue
		}
		_, err := repo.Get(ctx, s.GuildID)
		if err == nil {
			skipped++
			continue
		}
		if !errors.Is(err, schedule.ErrGuildNotFound) {
			fmt.Fprintf(os.Stderr, "error reading guild %s: %v\n", s.GuildID, err)
			errs++
			continue
		}

		slot := s.Slot
		if slot == 0 {
			slot = schedule.DefaultSlot
		}
		err = repo.Save(ctx, schedule.Schedule{
			GuildID:   s.GuildID,
			OwnerID:   s.OwnerID,
			Slot:      slot,
			Window:    s.Window,
			UpdatedAt: time.Now().UTC(),
		})
		if err != nil {
			fmt.Fprintf(os.Stderr, "error inserting guild %s: %v\n", s.GuildID, err)
			errs++
			continue
		}
		inserted++
	}

	// 4) Print summary
	fmt.Printf(
		"Schedules seed complete: %d total, %d inserted, %d skipped, %d errors\n",
		total, inserted, skipped, errs,
	)
}
