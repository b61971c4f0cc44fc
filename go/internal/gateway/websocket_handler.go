package gateway

import (
	"encoding/json"
	"net/http"

	"github.com/mcdev12/battletimer/go/internal/broadcast"
	"github.com/rs/zerolog/log"
)

// ActorHeader carries the identity an upstream auth layer vouched for.
const ActorHeader = "X-Actor-ID"

// WebSocketHandler handles websocket upgrade requests.
type WebSocketHandler struct {
	connectionManager *ConnectionManager
}

func NewWebSocketHandler(cm *ConnectionManager) *WebSocketHandler {
	return &WebSocketHandler{connectionManager: cm}
}

// ActorID returns the caller identity from the X-Actor-ID header, falling back
// to the actor query parameter for browsers that cannot set headers on a
// websocket handshake. Empty means an anonymous observer.
func ActorID(r *http.Request) string {
	if id := r.Header.Get(ActorHeader); id != "" {
		return id
	}
	return r.URL.Query().Get("actor")
}

// HandleConnection upgrades the request. Rooms named by "room" query
// parameters are joined immediately; a "token" parameter is shorthand for the
// timer's room.
func (h *WebSocketHandler) HandleConnection(w http.ResponseWriter, r *http.Request) {
	query := r.URL.Query()
	rooms := query["room"]
	for _, token := range query["token"] {
		rooms = append(rooms, broadcast.TimerRoom(token))
	}
	for _, room := range rooms {
		if _, _, err := parseRoom(room); err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
	}

	actorID := ActorID(r)
	if err := h.connectionManager.UpgradeConnection(w, r, actorID, rooms); err != nil {
		// The upgrader has already replied to the client.
		log.Error().
			Err(err).
			Str("actor_id", actorID).
			Msg("failed to upgrade websocket connection")
	}
}

// HandleConnectionStats returns statistics about active connections.
func (h *WebSocketHandler) HandleConnectionStats(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(h.connectionManager.GetConnectionStats()); err != nil {
		log.Error().Err(err).Msg("failed to encode connection stats")
	}
}
