package handlers

import (
	"encoding/json"
	"net/http"
	"strings"

	"github.com/turnero-app/turnero/internal/booking"
	"github.com/turnero-app/turnero/internal/fault"
)

type turnoRequest struct {
	Fecha     string `json:"fecha"`
	Hora      string `json:"hora"`
	IDPersona int64  `json:"id_persona"`
}

func (h *Handler) createTurno(w http.ResponseWriter, r *http.Request) {
	var req turnoRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, h.logger, fault.New(fault.Validation, "invalid json body"))
		return
	}
	req.Hora = strings.TrimSpace(req.Hora)
	if req.IDPersona <= 0 {
		writeError(w, h.logger, fault.Field(fault.Validation, "id_persona", "must be a positive integer"))
		return
	}
	fecha, err := parseFecha(req.Fecha)
	if err != nil {
		writeError(w, h.logger, err)
		return
	}

	turno, owner, err := h.bookings.Admit(r.Context(), booking.AdmitRequest{
		Fecha:     fecha,
		Hora:      req.Hora,
		PersonaID: req.IDPersona,
	})
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	// The persona block is a read convenience for clients, not a second
	// source of truth.
	writeJSON(w, http.StatusCreated, map[string]any{
		"turno":   turnoJSON(turno),
		"persona": personaJSON(owner, h.now()),
	})
}

func (h *Handler) listTurnos(w http.ResponseWriter, r *http.Request) {
	turnos, err := h.bookings.List(r.Context())
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	out := make([]map[string]any, 0, len(turnos))
	for _, t := range turnos {
		out = append(out, turnoJSON(t))
	}
	writeJSON(w, http.StatusOK, out)
}

func (h *Handler) getTurno(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	turno, err := h.bookings.Get(r.Context(), id)
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, turnoJSON(turno))
}

func (h *Handler) deleteTurno(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	if err := h.bookings.Delete(r.Context(), id); err != nil {
		writeError(w, h.logger, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) transition(action booking.Action) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, err := pathID(r)
		if err != nil {
			writeError(w, h.logger, err)
			return
		}
		turno, err := h.bookings.Transition(r.Context(), id, action)
		if err != nil {
			writeError(w, h.logger, err)
			return
		}
		writeJSON(w, http.StatusOK, turnoJSON(turno))
	}
}

func (h *Handler) turnosDisponibles(w http.ResponseWriter, r *http.Request) {
	fecha, err := parseFecha(strings.TrimSpace(r.URL.Query().Get("fecha")))
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	slots, err := h.bookings.AvailableSlots(r.Context(), fecha)
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	if slots == nil {
		slots = []string{}
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"fecha":     fecha.Format("2006-01-02"),
		"horarios":  slots,
		"completos": len(slots) == 0,
	})
}
