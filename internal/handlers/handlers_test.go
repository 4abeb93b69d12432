package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/turnero-app/turnero/internal/booking"
	"github.com/turnero-app/turnero/internal/person"
	"github.com/turnero-app/turnero/internal/schedule"
	"github.com/turnero-app/turnero/internal/storage"
)

func fixedNow() time.Time {
	return time.Date(2025, 1, 1, 10, 0, 0, 0, time.UTC)
}

func newMux(t *testing.T) (*http.ServeMux, *storage.Memory) {
	t.Helper()
	store := storage.NewMemory()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	persons := person.NewServiceAt(store, fixedNow)
	bookings := booking.NewServiceAt(store, schedule.Default(), fixedNow)
	mux := http.NewServeMux()
	NewAt(persons, bookings, logger, fixedNow).Register(mux)
	return mux, store
}

func do(t *testing.T, mux *http.ServeMux, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var reader io.Reader
	if body != nil {
		b, err := json.Marshal(body)
		if err != nil {
			t.Fatal(err)
		}
		reader = bytes.NewReader(b)
	}
	req := httptest.NewRequest(method, path, reader)
	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, req)
	return rec
}

func decode(t *testing.T, rec *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var out map[string]any
	if err := json.NewDecoder(rec.Body).Decode(&out); err != nil {
		t.Fatalf("decoding response: %v", err)
	}
	return out
}

func validPersona(dni int64) map[string]any {
	return map[string]any{
		"nombre":          "Ana Prueba",
		"email":           fmt.Sprintf("ana%d@example.com", dni),
		"dni":             dni,
		"telefono":        "11 4555 0101",
		"fechaNacimiento": "1990-05-05",
	}
}

func createPersona(t *testing.T, mux *http.ServeMux, dni int64) int64 {
	t.Helper()
	rec := do(t, mux, http.MethodPost, "/personas", validPersona(dni))
	if rec.Code != http.StatusCreated {
		t.Fatalf("create persona: status %d body %s", rec.Code, rec.Body)
	}
	return int64(decode(t, rec)["id"].(float64))
}

func TestCreatePersona(t *testing.T) {
	mux, _ := newMux(t)

	rec := do(t, mux, http.MethodPost, "/personas", validPersona(30111222))
	if rec.Code != http.StatusCreated {
		t.Fatalf("status %d body %s", rec.Code, rec.Body)
	}
	got := decode(t, rec)
	if got["habilitado"] != true {
		t.Fatal("new personas must be habilitado")
	}
	// Born 1990-05-05, clock fixed at 2025-01-01: birthday not reached yet.
	if got["edad"].(float64) != 34 {
		t.Fatalf("edad = %v, want 34", got["edad"])
	}
}

func TestCreatePersona_DuplicateDNI(t *testing.T) {
	mux, _ := newMux(t)
	createPersona(t, mux, 30111222)

	dup := validPersona(30111222)
	dup["email"] = "otra@example.com"
	rec := do(t, mux, http.MethodPost, "/personas", dup)
	if rec.Code != http.StatusConflict {
		t.Fatalf("status %d, want 409", rec.Code)
	}
	if decode(t, rec)["error"] == "" {
		t.Fatal("expected an error message")
	}
}

func TestCreatePersona_BadBody(t *testing.T) {
	mux, _ := newMux(t)
	req := httptest.NewRequest(http.MethodPost, "/personas", bytes.NewReader([]byte("{")))
	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, req)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("status %d, want 400", rec.Code)
	}
}

func TestGetPersona_NotFound(t *testing.T) {
	mux, _ := newMux(t)
	rec := do(t, mux, http.MethodGet, "/personas/42", nil)
	if rec.Code != http.StatusNotFound {
		t.Fatalf("status %d, want 404", rec.Code)
	}
}

func TestPutPersona_RequiresAllFields(t *testing.T) {
	mux, _ := newMux(t)
	id := createPersona(t, mux, 30111222)

	rec := do(t, mux, http.MethodPut, fmt.Sprintf("/personas/%d", id), map[string]any{"nombre": "Otra Persona"})
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("partial PUT: status %d, want 400", rec.Code)
	}

	rec = do(t, mux, http.MethodPatch, fmt.Sprintf("/personas/%d", id), map[string]any{"nombre": "Otra Persona"})
	if rec.Code != http.StatusOK {
		t.Fatalf("PATCH: status %d body %s", rec.Code, rec.Body)
	}
	if decode(t, rec)["nombre"] != "Otra Persona" {
		t.Fatal("nombre not updated")
	}
}

func TestDeletePersona(t *testing.T) {
	mux, _ := newMux(t)
	id := createPersona(t, mux, 30111222)

	rec := do(t, mux, http.MethodDelete, fmt.Sprintf("/personas/%d", id), nil)
	if rec.Code != http.StatusNoContent {
		t.Fatalf("status %d, want 204", rec.Code)
	}
	rec = do(t, mux, http.MethodGet, fmt.Sprintf("/personas/%d", id), nil)
	if rec.Code != http.StatusNotFound {
		t.Fatalf("status %d, want 404 after delete", rec.Code)
	}
}

func TestCreateTurno(t *testing.T) {
	mux, _ := newMux(t)
	id := createPersona(t, mux, 30111222)

	rec := do(t, mux, http.MethodPost, "/turno", map[string]any{
		"fecha":      "2025-01-01",
		"hora":       "10:00",
		"id_persona": id,
	})
	if rec.Code != http.StatusCreated {
		t.Fatalf("status %d body %s", rec.Code, rec.Body)
	}
	got := decode(t, rec)
	turno := got["turno"].(map[string]any)
	if turno["estado"] != "PENDIENTE" || turno["hora"] != "10:00" {
		t.Fatalf("unexpected turno %v", turno)
	}
	persona := got["persona"].(map[string]any)
	if int64(persona["id"].(float64)) != id {
		t.Fatalf("unexpected persona snapshot %v", persona)
	}
}

func TestCreateTurno_Failures(t *testing.T) {
	mux, _ := newMux(t)
	id := createPersona(t, mux, 30111222)

	cases := []struct {
		name string
		body map[string]any
		want int
	}{
		{"unregistered persona", map[string]any{"fecha": "2025-01-01", "hora": "10:00", "id_persona": 99}, http.StatusBadRequest},
		{"off-grid hora", map[string]any{"fecha": "2025-01-01", "hora": "10:15", "id_persona": id}, http.StatusBadRequest},
		{"past fecha", map[string]any{"fecha": "2024-12-31", "hora": "10:00", "id_persona": id}, http.StatusBadRequest},
		{"bad fecha", map[string]any{"fecha": "01/01/2025", "hora": "10:00", "id_persona": id}, http.StatusBadRequest},
		{"missing id_persona", map[string]any{"fecha": "2025-01-01", "hora": "10:00"}, http.StatusBadRequest},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if rec := do(t, mux, http.MethodPost, "/turno", tc.body); rec.Code != tc.want {
				t.Fatalf("status %d, want %d (body %s)", rec.Code, tc.want, rec.Body)
			}
		})
	}

	if rec := do(t, mux, http.MethodPost, "/turno", map[string]any{"fecha": "2025-01-01", "hora": "10:00", "id_persona": id}); rec.Code != http.StatusCreated {
		t.Fatalf("booking should still work: %d", rec.Code)
	}
	rec := do(t, mux, http.MethodPost, "/turno", map[string]any{"fecha": "2025-01-01", "hora": "10:00", "id_persona": id})
	if rec.Code != http.StatusConflict {
		t.Fatalf("taken slot: status %d, want 409", rec.Code)
	}
}

func TestTransitions(t *testing.T) {
	mux, _ := newMux(t)
	id := createPersona(t, mux, 30111222)

	rec := do(t, mux, http.MethodPost, "/turno", map[string]any{"fecha": "2025-01-01", "hora": "11:00", "id_persona": id})
	turnoID := int64(decode(t, rec)["turno"].(map[string]any)["id"].(float64))

	rec = do(t, mux, http.MethodPut, fmt.Sprintf("/turno/%d/confirmar", turnoID), nil)
	if rec.Code != http.StatusOK || decode(t, rec)["estado"] != "CONFIRMADO" {
		t.Fatalf("confirm failed: %d %s", rec.Code, rec.Body)
	}

	// PATCH is accepted alongside PUT.
	rec = do(t, mux, http.MethodPatch, fmt.Sprintf("/turno/%d/cancelar", turnoID), nil)
	if rec.Code != http.StatusOK || decode(t, rec)["estado"] != "CANCELADO" {
		t.Fatalf("cancel failed: %d %s", rec.Code, rec.Body)
	}

	// Cancelled is terminal.
	rec = do(t, mux, http.MethodPut, fmt.Sprintf("/turno/%d/asistido", turnoID), nil)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("frozen turno: status %d, want 400", rec.Code)
	}
}

func TestDeleteTurno_AttendedIsFrozen(t *testing.T) {
	mux, _ := newMux(t)
	id := createPersona(t, mux, 30111222)

	rec := do(t, mux, http.MethodPost, "/turno", map[string]any{"fecha": "2025-01-01", "hora": "12:00", "id_persona": id})
	turnoID := int64(decode(t, rec)["turno"].(map[string]any)["id"].(float64))

	do(t, mux, http.MethodPut, fmt.Sprintf("/turno/%d/asistido", turnoID), nil)
	if rec := do(t, mux, http.MethodDelete, fmt.Sprintf("/turno/%d", turnoID), nil); rec.Code != http.StatusBadRequest {
		t.Fatalf("status %d, want 400", rec.Code)
	}
}

func TestTurnosDisponibles(t *testing.T) {
	mux, _ := newMux(t)
	id := createPersona(t, mux, 30111222)
	do(t, mux, http.MethodPost, "/turno", map[string]any{"fecha": "2025-01-01", "hora": "09:00", "id_persona": id})

	rec := do(t, mux, http.MethodGet, "/turnos-disponibles?fecha=2025-01-01", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("status %d body %s", rec.Code, rec.Body)
	}
	got := decode(t, rec)
	horarios := got["horarios"].([]any)
	if len(horarios) != 15 || horarios[0] != "09:30" {
		t.Fatalf("unexpected horarios %v", horarios)
	}
	if got["completos"] != false {
		t.Fatal("day is not fully booked")
	}

	if rec := do(t, mux, http.MethodGet, "/turnos-disponibles?fecha=2024-12-31", nil); rec.Code != http.StatusBadRequest {
		t.Fatalf("past fecha: status %d, want 400", rec.Code)
	}
}

func TestReportTurnosPorDNI(t *testing.T) {
	mux, _ := newMux(t)
	id := createPersona(t, mux, 30111222)
	do(t, mux, http.MethodPost, "/turno", map[string]any{"fecha": "2025-01-01", "hora": "13:00", "id_persona": id})

	rec := do(t, mux, http.MethodGet, "/reportes/turnos-por-dni?dni=30111222", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("status %d body %s", rec.Code, rec.Body)
	}
	got := decode(t, rec)
	if len(got["turnos"].([]any)) != 1 {
		t.Fatalf("expected 1 turno, got %v", got["turnos"])
	}

	if rec := do(t, mux, http.MethodGet, "/reportes/turnos-por-dni?dni=99999999", nil); rec.Code != http.StatusNotFound {
		t.Fatalf("unknown dni: status %d, want 404", rec.Code)
	}
	if rec := do(t, mux, http.MethodGet, "/reportes/turnos-por-dni?dni=abc", nil); rec.Code != http.StatusBadRequest {
		t.Fatalf("bad dni: status %d, want 400", rec.Code)
	}
}

func TestReportTurnosEntreFechas(t *testing.T) {
	mux, _ := newMux(t)
	id := createPersona(t, mux, 30111222)
	do(t, mux, http.MethodPost, "/turno", map[string]any{"fecha": "2025-01-01", "hora": "14:00", "id_persona": id})
	do(t, mux, http.MethodPost, "/turno", map[string]any{"fecha": "2025-01-03", "hora": "14:00", "id_persona": id})

	rec := do(t, mux, http.MethodGet, "/reportes/turnos?desde=2025-01-01&hasta=2025-01-02", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("status %d body %s", rec.Code, rec.Body)
	}
	var out []map[string]any
	if err := json.NewDecoder(rec.Body).Decode(&out); err != nil {
		t.Fatal(err)
	}
	if len(out) != 1 || out[0]["fecha"] != "2025-01-01" {
		t.Fatalf("unexpected rows %v", out)
	}

	if rec := do(t, mux, http.MethodGet, "/reportes/turnos?desde=2025-01-02&hasta=2025-01-01", nil); rec.Code != http.StatusBadRequest {
		t.Fatalf("inverted range: status %d, want 400", rec.Code)
	}
}

func TestReportPersonasPorHabilitado(t *testing.T) {
	mux, store := newMux(t)
	createPersona(t, mux, 30111222)
	otherID := createPersona(t, mux, 40111222)
	if err := store.SetPersonHabilitado(context.Background(), otherID, false); err != nil {
		t.Fatal(err)
	}

	rec := do(t, mux, http.MethodGet, "/reportes/personas?habilitado=false", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("status %d body %s", rec.Code, rec.Body)
	}
	var out []map[string]any
	if err := json.NewDecoder(rec.Body).Decode(&out); err != nil {
		t.Fatal(err)
	}
	if len(out) != 1 || int64(out[0]["id"].(float64)) != otherID {
		t.Fatalf("unexpected rows %v", out)
	}

	if rec := do(t, mux, http.MethodGet, "/reportes/personas?habilitado=maybe", nil); rec.Code != http.StatusBadRequest {
		t.Fatalf("bad flag: status %d, want 400", rec.Code)
	}
}
