package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/joho/godotenv"
	"github.com/mcdev12/battletimer/go/internal/broadcast"
	"github.com/mcdev12/battletimer/go/internal/config"
	"github.com/mcdev12/battletimer/go/internal/gateway"
	"github.com/mcdev12/battletimer/go/internal/health"
	"github.com/mcdev12/battletimer/go/internal/rpc"
	"github.com/rs/zerolog/log"
)

// The standalone gateway serves websockets at the edge. Rooms come from NATS,
// where every timerd instance publishes; commands are forwarded to timerd over
// Connect.
func main() {
	if err := godotenv.Load(); err != nil {
		log.Warn().Err(err).Msg("could not load .env file")
	}

	cfg, err := config.FromEnv()
	if err != nil {
		log.Fatal().Err(err).Msg("invalid configuration")
	}
	cfg.SetupLogging()

	natsCfg := broadcast.DefaultNATSConfig()
	natsCfg.URL = cfg.NATSURL
	bus, err := broadcast.DialNATSBroadcaster(natsCfg)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to connect to NATS")
	}
	defer bus.Close()

	httpClient := &http.Client{Timeout: 15 * time.Second}
	timers := rpc.NewTimerClient(httpClient, cfg.ServerURL)
	schedules := rpc.NewScheduleClient(httpClient, cfg.ServerURL)

	gatewayService := gateway.NewService(gateway.DefaultConfig(), bus, timers, schedules)

	r := chi.NewRouter()
	gatewayService.RegisterRoutes(r)
	checker := health.NewChecker(nil, time.Minute)
	checker.AddProbe("nats", bus.Ping)
	checker.AddProbe("timerd", func(ctx context.Context) error {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, cfg.ServerURL+"/health", nil)
		if err != nil {
			return err
		}
		resp, err := httpClient.Do(req)
		if err != nil {
			return err
		}
		resp.Body.Close()
		if resp.StatusCode != http.StatusOK {
			return fmt.Errorf("status %d", resp.StatusCode)
		}
		return nil
	})
	checker.WithConnections(func() int { return gatewayService.GetStats().TotalConnections })
	r.Method(http.MethodGet, "/health", checker)
	r.Method(http.MethodGet, "/metrics", health.NewPrometheusExporter(checker))
	r.Get("/info", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(map[string]any{
			"service":     "battletimer-gateway",
			"upstream":    cfg.ServerURL,
			"connections": gatewayService.GetStats().TotalConnections,
		})
	})

	server := &http.Server{
		Addr:        fmt.Sprintf(":%s", cfg.GatewayPort),
		Handler:     gateway.CORSMiddleware(r),
		ReadTimeout: 10 * time.Second,
		IdleTimeout: 120 * time.Second,
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	go func() {
		if err := gatewayService.Start(ctx); err != nil {
			log.Error().Err(err).Msg("gateway service failed")
		}
	}()

	go func() {
		log.Info().
			Str("addr", server.Addr).
			Str("nats_url", cfg.NATSURL).
			Str("upstream", cfg.ServerURL).
			Msg("gateway starting")
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatal().Err(err).Msg("HTTP server failed")
		}
	}()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	sig := <-sigChan

	log.Info().Str("signal", sig.String()).Msg("received shutdown signal")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()

	// Websockets are hijacked, so Shutdown does not wait for them; the
	// service closes them when its context ends.
	cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("HTTP server shutdown failed")
	}

	log.Info().Msg("gateway shutdown complete")
}
