package handlers

import (
	"net/http"
	"strconv"
	"strings"

	"github.com/turnero-app/turnero/internal/eligibility"
	"github.com/turnero-app/turnero/internal/fault"
)

func (h *Handler) reportTurnosPorDNI(w http.ResponseWriter, r *http.Request) {
	dni, err := strconv.ParseInt(strings.TrimSpace(r.URL.Query().Get("dni")), 10, 64)
	if err != nil || dni <= 0 {
		writeError(w, h.logger, fault.Field(fault.Validation, "dni", "must be a positive integer"))
		return
	}
	persona, turnos, err := h.bookings.AppointmentsByDNI(r.Context(), dni)
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	items := make([]map[string]any, 0, len(turnos))
	for _, t := range turnos {
		items = append(items, turnoJSON(t))
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"persona": personaJSON(persona, h.now()),
		"turnos":  items,
	})
}

func (h *Handler) reportTurnosEntreFechas(w http.ResponseWriter, r *http.Request) {
	desde, err := parseFecha(strings.TrimSpace(r.URL.Query().Get("desde")))
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	hasta, err := parseFecha(strings.TrimSpace(r.URL.Query().Get("hasta")))
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	turnos, err := h.bookings.AppointmentsBetween(r.Context(), desde, hasta)
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

func (h *Handler) reportPenalizadas(w http.ResponseWriter, r *http.Request) {
	min := eligibility.MaxCancellations
	if raw := strings.TrimSpace(r.URL.Query().Get("min")); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 1 {
			writeError(w, h.logger, fault.Field(fault.Validation, "min", "must be a positive integer"))
			return
		}
		min = n
	}
	rows, err := h.bookings.PenalizedPersons(r.Context(), min)
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	now := h.now()
	out := make([]map[string]any, 0, len(rows))
	for _, row := range rows {
		item := personaJSON(row.Person, now)
		item["cancelados"] = row.Cancelled
		out = append(out, item)
	}
	writeJSON(w, http.StatusOK, out)
}

func (h *Handler) reportPersonasPorHabilitado(w http.ResponseWriter, r *http.Request) {
	raw := strings.TrimSpace(r.URL.Query().Get("habilitado"))
	habilitado, err := strconv.ParseBool(raw)
	if err != nil {
		writeError(w, h.logger, fault.Field(fault.Validation, "habilitado", "must be true or false"))
		return
	}
	personas, err := h.persons.ListByHabilitado(r.Context(), habilitado)
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	now := h.now()
	out := make([]map[string]any, 0, len(personas))
	for _, p := range personas {
		out = append(out, personaJSON(p, now))
	}
	writeJSON(w, http.StatusOK, out)
}
