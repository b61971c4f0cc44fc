package main

import (
	"context"
	"fmt"

	"github.com/mcdev12/battletimer/go/internal/broadcast"
	"github.com/mcdev12/battletimer/go/internal/config"
	"github.com/mcdev12/battletimer/go/internal/health"
	"github.com/mcdev12/battletimer/go/internal/schedule"
	"github.com/mcdev12/battletimer/go/internal/timerstore"
	"github.com/nats-io/nats.go"
	"github.com/nats-io/nats.go/jetstream"
	"github.com/rs/zerolog/log"
)

// Backends are the storage and transport implementations selected by config.
type Backends struct {
	Store       timerstore.Store
	Broadcaster broadcast.Broadcaster
	Schedules   schedule.Repository
	// Probes are health checks for the selected backends.
	Probes map[string]health.Probe

	closers []func()
}

// Close releases backends in reverse order of creation.
func (b *Backends) Close() {
	for i := len(b.closers) - 1; i >= 0; i-- {
		b.closers[i]()
	}
}

func setupBackends(ctx context.Context, cfg config.Config) (_ *Backends, err error) {
	b := &Backends{Probes: make(map[string]health.Probe)}
	defer func() {
		if err != nil {
			b.Close()
		}
	}()

	var nc *nats.Conn
	if cfg.StoreBackend == config.BackendNATS || cfg.BroadcastBackend == config.BackendNATS {
		natsCfg := broadcast.DefaultNATSConfig()
		nc, err = broadcast.Connect(cfg.NATSURL, natsCfg.MaxReconnects, natsCfg.ReconnectWait)
		if err != nil {
			return nil, err
		}
		b.Probes["nats"] = func(context.Context) error {
			if !nc.IsConnected() {
				return fmt.Errorf("NATS %s", nc.Status())
			}
			return nil
		}
		b.closers = append(b.closers, func() {
			if err := nc.Drain(); err != nil {
				log.Error().Err(err).Msg("failed to drain NATS connection")
			}
		})
	}

	switch cfg.StoreBackend {
	case config.BackendNATS:
		js, err := jetstream.New(nc)
		if err != nil {
			return nil, fmt.Errorf("create JetStream context: %w", err)
		}
		store, err := timerstore.NewNATSStore(ctx, js, cfg.KVBucket)
		if err != nil {
			return nil, err
		}
		b.Store = store
	case config.BackendPostgres:
		db, err := cfg.DB.OpenSQL(ctx)
		if err != nil {
			return nil, err
		}
		b.closers = append(b.closers, func() { db.Close() })
		b.Probes["timer_store"] = db.PingContext
		store := timerstore.NewPostgresStore(db)
		if err := store.Migrate(ctx); err != nil {
			return nil, err
		}
		b.Store = store
	default:
		b.Store = timerstore.NewMemoryStore()
	}

	switch cfg.BroadcastBackend {
	case config.BackendNATS:
		natsCfg := broadcast.DefaultNATSConfig()
		natsCfg.URL = cfg.NATSURL
		b.Broadcaster = broadcast.NewNATSBroadcaster(nc, natsCfg)
	default:
		b.Broadcaster = broadcast.NewHub(256)
	}
	b.closers = append(b.closers, func() {
		if err := b.Broadcaster.Close(); err != nil {
			log.Error().Err(err).Msg("failed to close broadcaster")
		}
	})

	switch cfg.ScheduleBackend {
	case config.BackendPostgres:
		pool, err := cfg.DB.NewPool(ctx)
		if err != nil {
			return nil, err
		}
		b.closers = append(b.closers, pool.Close)
		b.Probes["schedule_store"] = pool.Ping
		repo := schedule.NewPostgresRepository(pool)
		if err := repo.Migrate(ctx); err != nil {
			return nil, err
		}
		b.Schedules = repo
	default:
		b.Schedules = schedule.NewMemoryRepository()
	}

	return b, nil
}
