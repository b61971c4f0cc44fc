package main

import (
	"time"

	"github.com/mcdev12/battletimer/go/internal/config"
	"github.com/mcdev12/battletimer/go/internal/gateway"
	"github.com/mcdev12/battletimer/go/internal/health"
	"github.com/mcdev12/battletimer/go/internal/rpc"
	"github.com/mcdev12/battletimer/go/internal/schedule"
	"github.com/mcdev12/battletimer/go/internal/timer"
)

type Services struct {
	Timers      *timer.Controller
	Schedules   *schedule.Service
	TimerRPC    *rpc.TimerService
	ScheduleRPC *rpc.ScheduleService
	Gateway     *gateway.Service
	Health      *health.Checker
}

func setupServices(cfg config.Config, b *Backends) *Services {
	// Store/broadcaster → app layer → transport layer
	counters := &health.Counters{}
	publisher := health.NewMetricPublisher(b.Broadcaster, counters)

	timers := timer.NewController(b.Store, publisher,
		timer.WithDefaultDuration(cfg.Tuning.DefaultTimer),
		timer.WithMaxRetries(cfg.Tuning.MaxRetries),
	)
	schedules := schedule.NewService(b.Schedules, publisher,
		schedule.WithBattleDuration(cfg.Tuning.BattleDuration),
	)

	gw := gateway.NewService(gateway.DefaultConfig(), b.Broadcaster, timers, schedules)

	checker := health.NewChecker(counters, time.Minute)
	for name, probe := range b.Probes {
		checker.AddProbe(name, probe)
	}
	checker.WithConnections(func() int { return gw.GetStats().TotalConnections })

	return &Services{
		Timers:      timers,
		Schedules:   schedules,
		TimerRPC:    rpc.NewTimerService(timers),
		ScheduleRPC: rpc.NewScheduleService(schedules),
		Gateway:     gw,
		Health:      checker,
	}
}
