package handlers

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/turnero-app/turnero/internal/booking"
	"github.com/turnero-app/turnero/internal/fault"
	"github.com/turnero-app/turnero/internal/person"
)

type Handler struct {
	persons  *person.Service
	bookings *booking.Service
	logger   *slog.Logger
	now      func() time.Time
}

func New(persons *person.Service, bookings *booking.Service, logger *slog.Logger) *Handler {
	return &Handler{persons: persons, bookings: bookings, logger: logger, now: time.Now}
}

// NewAt fixes the clock, for tests.
func NewAt(persons *person.Service, bookings *booking.Service, logger *slog.Logger, now func() time.Time) *Handler {
	return &Handler{persons: persons, bookings: bookings, logger: logger, now: now}
}

func (h *Handler) Register(mux *http.ServeMux) {
	mux.HandleFunc("POST /personas", h.createPersona)
	mux.HandleFunc("GET /personas", h.listPersonas)
	mux.HandleFunc("GET /personas/{id}", h.getPersona)
	mux.HandleFunc("PUT /personas/{id}", h.replacePersona)
	mux.HandleFunc("PATCH /personas/{id}", h.patchPersona)
	mux.HandleFunc("DELETE /personas/{id}", h.deletePersona)

	mux.HandleFunc("POST /turno", h.createTurno)
	mux.HandleFunc("GET /turnos", h.listTurnos)
	mux.HandleFunc("GET /turno/{id}", h.getTurno)
	mux.HandleFunc("DELETE /turno/{id}", h.deleteTurno)
	mux.HandleFunc("GET /turnos-disponibles", h.turnosDisponibles)
	for _, method := range []string{http.MethodPut, http.MethodPatch} {
		mux.HandleFunc(method+" /turno/{id}/confirmar", h.transition(booking.ActionConfirm))
		mux.HandleFunc(method+" /turno/{id}/cancelar", h.transition(booking.ActionCancel))
		mux.HandleFunc(method+" /turno/{id}/asistido", h.transition(booking.ActionAttend))
	}

	mux.HandleFunc("GET /reportes/turnos-por-dni", h.reportTurnosPorDNI)
	mux.HandleFunc("GET /reportes/turnos", h.reportTurnosEntreFechas)
	mux.HandleFunc("GET /reportes/personas-penalizadas", h.reportPenalizadas)
	mux.HandleFunc("GET /reportes/personas", h.reportPersonasPorHabilitado)
}

func pathID(r *http.Request) (int64, error) {
	id, err := strconv.ParseInt(r.PathValue("id"), 10, 64)
	if err != nil || id <= 0 {
		return 0, fault.Field(fault.Validation, "id", "must be a positive integer")
	}
	return id, nil
}

type personaRequest struct {
	Nombre          *string `json:"nombre"`
	Email           *string `json:"email"`
	DNI             *int64  `json:"dni"`
	Telefono        *string `json:"telefono"`
	FechaNacimiento *string `json:"fechaNacimiento"`
}

func (req personaRequest) input() (person.Input, error) {
	in := person.Input{
		Nombre:   req.Nombre,
		Email:    req.Email,
		DNI:      req.DNI,
		Telefono: req.Telefono,
	}
	if req.FechaNacimiento != nil {
		t, err := time.ParseInLocation("2006-01-02", *req.FechaNacimiento, time.UTC)
		if err != nil {
			return person.Input{}, fault.Field(fault.Validation, "fechaNacimiento", "%q is not a YYYY-MM-DD date", *req.FechaNacimiento)
		}
		in.FechaNacimiento = &t
	}
	return in, nil
}

func (h *Handler) createPersona(w http.ResponseWriter, r *http.Request) {
	var req personaRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, h.logger, fault.New(fault.Validation, "invalid json body"))
		return
	}
	in, err := req.input()
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	created, err := h.persons.Register(r.Context(), in)
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusCreated, personaJSON(created, h.now()))
}

func (h *Handler) listPersonas(w http.ResponseWriter, r *http.Request) {
	personas, err := h.persons.List(r.Context())
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

func (h *Handler) getPersona(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	p, err := h.persons.Get(r.Context(), id)
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, personaJSON(p, h.now()))
}

func (h *Handler) replacePersona(w http.ResponseWriter, r *http.Request) {
	h.updatePersona(w, r, true)
}

func (h *Handler) patchPersona(w http.ResponseWriter, r *http.Request) {
	h.updatePersona(w, r, false)
}

func (h *Handler) updatePersona(w http.ResponseWriter, r *http.Request, replace bool) {
	id, err := pathID(r)
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	var req personaRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, h.logger, fault.New(fault.Validation, "invalid json body"))
		return
	}
	in, err := req.input()
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	updated, err := h.persons.Update(r.Context(), id, in, replace)
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, personaJSON(updated, h.now()))
}

func (h *Handler) deletePersona(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	if err := h.persons.Delete(r.Context(), id); err != nil {
		writeError(w, h.logger, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
