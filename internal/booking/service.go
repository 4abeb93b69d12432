// Package booking is the appointment lifecycle manager: it admits new turnos
// against the schedule grid and the cancellation-penalty policy, and governs
// the state machine of existing ones.
package booking

import (
	"context"
	"encoding/json"
	"strconv"
	"time"

	"github.com/turnero-app/turnero/internal/eligibility"
	"github.com/turnero-app/turnero/internal/fault"
	"github.com/turnero-app/turnero/internal/model"
	"github.com/turnero-app/turnero/internal/outbox"
	"github.com/turnero-app/turnero/internal/schedule"
	"github.com/turnero-app/turnero/internal/storage"
)

const (
	EventAppointmentCreated   = "turnero.turno.created.v1"
	EventAppointmentConfirmed = "turnero.turno.confirmed.v1"
	EventAppointmentCancelled = "turnero.turno.cancelled.v1"
	EventAppointmentAttended  = "turnero.turno.attended.v1"
)

// Action is a requested state transition.
type Action string

const (
	ActionConfirm Action = "confirmar"
	ActionCancel  Action = "cancelar"
	ActionAttend  Action = "asistido"
)

func (a Action) target() (model.Status, string, bool) {
	switch a {
	case ActionConfirm:
		return model.StatusConfirmed, EventAppointmentConfirmed, true
	case ActionCancel:
		return model.StatusCancelled, EventAppointmentCancelled, true
	case ActionAttend:
		return model.StatusAttended, EventAppointmentAttended, true
	}
	return "", "", false
}

type Service struct {
	store storage.Store
	grid  *schedule.Grid
	now   func() time.Time
}

func NewService(store storage.Store, grid *schedule.Grid) *Service {
	return &Service{store: store, grid: grid, now: time.Now}
}

// NewServiceAt fixes the clock, for tests.
func NewServiceAt(store storage.Store, grid *schedule.Grid, now func() time.Time) *Service {
	return &Service{store: store, grid: grid, now: now}
}

// AdmitRequest is a booking request for one slot on one date.
type AdmitRequest struct {
	Fecha     time.Time
	Hora      string
	PersonaID int64
}

// AvailableSlots returns the open slots on fecha in canonical order. Dates
// strictly before today are rejected; a fully booked day yields an empty
// (non-error) result.
func (s *Service) AvailableSlots(ctx context.Context, fecha time.Time) ([]string, error) {
	fecha = model.Date(fecha)
	if fecha.Before(model.Date(s.now())) {
		return nil, fault.Field(fault.Validation, "fecha", "must not be before today")
	}
	taken, err := s.store.ActiveHorasOnFecha(ctx, fecha)
	if err != nil {
		return nil, err
	}
	return s.grid.Available(taken), nil
}

// Admit validates a booking request and creates the turno in PENDIENTE
// state. Checks run in order and the first failure wins: persona exists,
// persona eligible, slot free, hora on the grid, fecha not in the past.
// The partial unique index backs the slot check at commit time, so two
// concurrent admissions for one slot cannot both succeed.
func (s *Service) Admit(ctx context.Context, req AdmitRequest) (model.Appointment, model.Person, error) {
	var (
		created model.Appointment
		owner   model.Person
	)
	err := s.store.Atomic(ctx, func(tx storage.Store) error {
		persona, err := tx.GetPerson(ctx, req.PersonaID)
		if err != nil {
			if fault.IsKind(err, fault.NotFound) {
				return fault.New(fault.FailedPrecondition, "persona %d is not registered", req.PersonaID)
			}
			return err
		}

		eligible, err := s.refreshEligibility(ctx, tx, persona)
		if err != nil {
			return err
		}
		if !eligible {
			return fault.New(fault.FailedPrecondition,
				"persona %d may not book: %d or more turnos cancelled in the last %d days",
				persona.ID, eligibility.MaxCancellations, int(eligibility.Window.Hours()/24))
		}

		fecha := model.Date(req.Fecha)
		held, err := tx.SlotHeld(ctx, fecha, req.Hora)
		if err != nil {
			return err
		}
		if held {
			return fault.Field(fault.Conflict, "hora", "slot already held for that fecha")
		}
		if !s.grid.Contains(req.Hora) {
			return fault.Field(fault.Validation, "hora", "%q is not a bookable slot", req.Hora)
		}
		if fecha.Before(model.Date(s.now())) {
			return fault.Field(fault.Validation, "fecha", "must not be before today")
		}

		created, err = tx.CreateAppointment(ctx, model.Appointment{
			Fecha:     fecha,
			Hora:      req.Hora,
			Estado:    model.StatusPending,
			PersonaID: persona.ID,
		})
		if err != nil {
			return err
		}
		owner = persona
		return s.appendTurnoEvent(ctx, tx, EventAppointmentCreated, created)
	})
	if err != nil {
		return model.Appointment{}, model.Person{}, err
	}
	return created, owner, nil
}

// Transition applies confirm, cancel or mark-attended to an existing turno.
// Terminal states freeze the record; cancelling additionally refreshes the
// owner's habilitado flag in the same transaction.
func (s *Service) Transition(ctx context.Context, id int64, action Action) (model.Appointment, error) {
	estado, eventType, ok := action.target()
	if !ok {
		return model.Appointment{}, fault.Field(fault.Validation, "action", "unknown action %q", string(action))
	}

	var out model.Appointment
	err := s.store.Atomic(ctx, func(tx storage.Store) error {
		turno, err := tx.GetAppointment(ctx, id)
		if err != nil {
			return err
		}
		if turno.Estado.Terminal() {
			return fault.New(fault.FrozenState, "turno %d is %s and cannot change", id, turno.Estado)
		}
		if err := tx.SetAppointmentEstado(ctx, id, estado); err != nil {
			return err
		}
		turno.Estado = estado
		out = turno

		if action == ActionCancel {
			persona, err := tx.GetPerson(ctx, turno.PersonaID)
			if err != nil {
				return err
			}
			if _, err := s.refreshEligibility(ctx, tx, persona); err != nil {
				return err
			}
		}
		return s.appendTurnoEvent(ctx, tx, eventType, turno)
	})
	if err != nil {
		return model.Appointment{}, err
	}
	return out, nil
}

// Delete removes a turno. Attended turnos are frozen and may not be deleted;
// any other state (including cancelled) may.
func (s *Service) Delete(ctx context.Context, id int64) error {
	return s.store.Atomic(ctx, func(tx storage.Store) error {
		turno, err := tx.GetAppointment(ctx, id)
		if err != nil {
			return err
		}
		if turno.Estado == model.StatusAttended {
			return fault.New(fault.FrozenState, "turno %d was attended and cannot be deleted", id)
		}
		return tx.DeleteAppointment(ctx, id)
	})
}

func (s *Service) Get(ctx context.Context, id int64) (model.Appointment, error) {
	return s.store.GetAppointment(ctx, id)
}

func (s *Service) List(ctx context.Context) ([]model.Appointment, error) {
	return s.store.ListAppointments(ctx)
}

// Eligible recomputes the persona's eligibility and refreshes the cached
// habilitado flag.
func (s *Service) Eligible(ctx context.Context, personaID int64) (bool, error) {
	var eligible bool
	err := s.store.Atomic(ctx, func(tx storage.Store) error {
		persona, err := tx.GetPerson(ctx, personaID)
		if err != nil {
			return err
		}
		eligible, err = s.refreshEligibility(ctx, tx, persona)
		return err
	})
	return eligible, err
}

// refreshEligibility evaluates the penalty window for persona and persists
// the habilitado flag when it changed. The flag is a cache of this
// computation, never an independent fact.
func (s *Service) refreshEligibility(ctx context.Context, tx storage.Store, persona model.Person) (bool, error) {
	now := s.now()
	count, err := tx.CountCancelledInWindow(ctx, persona.ID, model.Date(eligibility.WindowStart(now)), model.Date(now))
	if err != nil {
		return false, err
	}
	eligible := eligibility.Eligible(count)
	if eligible != persona.Habilitado {
		if err := tx.SetPersonHabilitado(ctx, persona.ID, eligible); err != nil {
			return false, err
		}
	}
	return eligible, nil
}

func (s *Service) appendTurnoEvent(ctx context.Context, tx storage.Store, eventType string, turno model.Appointment) error {
	payload, err := json.Marshal(map[string]any{
		"turno_id":   turno.ID,
		"persona_id": turno.PersonaID,
		"fecha":      turno.Fecha.Format("2006-01-02"),
		"hora":       turno.Hora,
		"estado":     string(turno.Estado),
	})
	if err != nil {
		return err
	}
	return tx.AppendEvent(ctx, outbox.Event{
		AggregateType: "turno",
		AggregateID:   strconv.FormatInt(turno.ID, 10),
		EventType:     eventType,
		Payload:       payload,
	})
}
