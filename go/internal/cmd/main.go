package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog/log"
	"golang.org/x/sync/errgroup"
)

func main() {
	cfg := loadConfig()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	backends, err := setupBackends(ctx, cfg)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to set up backends")
	}
	defer backends.Close()

	services := setupServices(cfg, backends)
	server := setupServer(cfg, services)

	log.Info().
		Str("addr", server.Addr).
		Str("store", cfg.StoreBackend).
		Str("broadcast", cfg.BroadcastBackend).
		Str("schedule", cfg.ScheduleBackend).
		Dur("default_timer", cfg.Tuning.DefaultTimer).
		Msg("starting timerd")

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return services.Gateway.Start(gctx)
	})
	g.Go(func() error {
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		log.Info().Msg("shutting down")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return server.Shutdown(shutdownCtx)
	})

	if err := g.Wait(); err != nil {
		log.Error().Err(err).Msg("timerd stopped with error")
		os.Exit(1)
	}
	log.Info().Msg("timerd shutdown complete")
}
