package gateway

import (
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog/log"
)

// StateHandler serves current timer and schedule state over plain HTTP, for
// clients that poll instead of joining a room.
type StateHandler struct {
	timers    TimerControl
	schedules ScheduleControl
}

func NewStateHandler(timers TimerControl, schedules ScheduleControl) *StateHandler {
	return &StateHandler{timers: timers, schedules: schedules}
}

// HandleGetTimer handles GET /api/timers/{token}.
func (h *StateHandler) HandleGetTimer(w http.ResponseWriter, r *http.Request) {
	token := chi.URLParam(r, "token")

	snap, err := h.timers.Snapshot(r.Context(), token)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, snap)
}

// HandleGetSchedule handles GET /api/guilds/{guildId}/schedule.
func (h *StateHandler) HandleGetSchedule(w http.ResponseWriter, r *http.Request) {
	guildID := chi.URLParam(r, "guildId")

	view, err := h.schedules.View(r.Context(), guildID)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, view)
}

func writeError(w http.ResponseWriter, err error) {
	code := errorCode(err)
	status := http.StatusInternalServerError
	switch code {
	case CodeForbidden:
		status = http.StatusForbidden
	case CodeInvalid:
		status = http.StatusBadRequest
	case CodeNotFound:
		status = http.StatusNotFound
	case CodeUnavailable:
		status = http.StatusServiceUnavailable
	}
	if status == http.StatusInternalServerError {
		log.Error().Err(err).Msg("state request failed")
	}
	writeJSON(w, status, ServerMessage{Type: TypeError, Code: code, Message: err.Error()})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Error().Err(err).Msg("failed to encode response")
	}
}
