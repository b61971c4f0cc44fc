// Package gateway serves timer rooms and guild schedules to websocket clients.
// Every connection can join rooms, issue timer control commands and change
// schedules; the gateway relays room traffic from the broadcaster and sends
// each joiner the current state.
package gateway

import (
	"context"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/mcdev12/battletimer/go/internal/broadcast"
	"github.com/rs/zerolog/log"
)

// Service wires the connection manager and HTTP handlers together.
type Service struct {
	connectionManager *ConnectionManager
	wsHandler         *WebSocketHandler
	stateHandler      *StateHandler
}

// Config holds configuration for the gateway service.
type Config struct {
	ConnectionConfig ConnectionConfig
}

func DefaultConfig() Config {
	return Config{ConnectionConfig: DefaultConnectionConfig()}
}

func NewService(config Config, subscriber broadcast.Subscriber, timers TimerControl, schedules ScheduleControl) *Service {
	cm := NewConnectionManager(config.ConnectionConfig, subscriber, timers, schedules)
	return &Service{
		connectionManager: cm,
		wsHandler:         NewWebSocketHandler(cm),
		stateHandler:      NewStateHandler(timers, schedules),
	}
}

// Start runs until ctx ends and then disconnects every client.
func (s *Service) Start(ctx context.Context) error {
	log.Info().Msg("starting gateway service")
	s.connectionManager.Start(ctx)
	log.Info().Msg("gateway service stopped")
	return nil
}

// RegisterRoutes mounts the websocket and state routes.
func (s *Service) RegisterRoutes(r chi.Router) {
	r.Get("/ws", s.wsHandler.HandleConnection)
	r.Get("/ws/stats", s.wsHandler.HandleConnectionStats)
	r.Get("/api/timers/{token}", s.stateHandler.HandleGetTimer)
	r.Get("/api/guilds/{guildId}/schedule", s.stateHandler.HandleGetSchedule)
	log.Info().Msg("gateway routes registered")
}

// Handler returns a router serving only the gateway routes.
func (s *Service) Handler() http.Handler {
	r := chi.NewRouter()
	s.RegisterRoutes(r)
	return r
}

func (s *Service) GetStats() Stats {
	return s.connectionManager.GetConnectionStats()
}
