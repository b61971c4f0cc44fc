package main

import (
	"fmt"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/mcdev12/battletimer/go/internal/config"
	"github.com/mcdev12/battletimer/go/internal/health"
	"github.com/mcdev12/battletimer/go/internal/rpc"
	"github.com/rs/cors"
	"golang.org/x/net/http2"
	"golang.org/x/net/http2/h2c"
)

func setupServer(cfg config.Config, services *Services) *http.Server {
	r := chi.NewRouter()

	// Setup CORS middleware
	c := cors.New(cors.Options{
		AllowedMethods: []string{
			http.MethodHead,
			http.MethodGet,
			http.MethodPost,
		},
		AllowedOrigins: []string{"*"},
		AllowedHeaders: []string{"*"},
		ExposedHeaders: []string{"Grpc-Status", "Grpc-Message"},
	})

	registerServices(r, services)
	services.Gateway.RegisterRoutes(r)
	setupHealthCheck(r, services.Health)

	return &http.Server{
		Addr:    fmt.Sprintf(":%s", cfg.Port),
		Handler: h2c.NewHandler(c.Handler(r), &http2.Server{}),
	}
}

func registerServices(r chi.Router, services *Services) {
	timerPath, timerHandler := rpc.NewTimerServiceHandler(services.TimerRPC)
	r.Handle(timerPath+"*", timerHandler)

	schedulePath, scheduleHandler := rpc.NewScheduleServiceHandler(services.ScheduleRPC)
	r.Handle(schedulePath+"*", scheduleHandler)
}

func setupHealthCheck(r chi.Router, checker *health.Checker) {
	r.Method(http.MethodGet, "/health", checker)
	r.Method(http.MethodGet, "/metrics", health.NewPrometheusExporter(checker))
}
