package handlers

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"time"

	"github.com/turnero-app/turnero/internal/fault"
	"github.com/turnero-app/turnero/internal/model"
	"github.com/turnero-app/turnero/internal/person"
)

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// writeError maps the fault taxonomy onto the response conventions: 404 for
// missing entities, 409 for conflicts, 400 for business-rule failures.
// Untyped errors stay opaque to the client and go to the log instead.
func writeError(w http.ResponseWriter, logger *slog.Logger, err error) {
	status := fault.HTTPStatus(err)
	msg := err.Error()
	if status == http.StatusInternalServerError {
		if logger != nil {
			logger.Error("request failed", "err", err)
		}
		msg = "internal error"
	}
	writeJSON(w, status, map[string]string{"error": msg})
}

func parseFecha(raw string) (time.Time, error) {
	t, err := time.ParseInLocation("2006-01-02", raw, time.UTC)
	if err != nil {
		return time.Time{}, fault.Field(fault.Validation, "fecha", "%q is not a YYYY-MM-DD date", raw)
	}
	return t, nil
}

func personaJSON(p model.Person, now time.Time) map[string]any {
	return map[string]any{
		"id":              p.ID,
		"nombre":          p.Nombre,
		"email":           p.Email,
		"dni":             p.DNI,
		"telefono":        p.Telefono,
		"fechaNacimiento": p.FechaNacimiento.Format("2006-01-02"),
		"edad":            person.Age(p.FechaNacimiento, now),
		"habilitado":      p.Habilitado,
	}
}

func turnoJSON(t model.Appointment) map[string]any {
	return map[string]any{
		"id":         t.ID,
		"fecha":      t.Fecha.Format("2006-01-02"),
		"hora":       t.Hora,
		"estado":     string(t.Estado),
		"id_persona": t.PersonaID,
	}
}
