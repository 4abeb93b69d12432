package booking

import (
	"context"
	"time"

	"github.com/turnero-app/turnero/internal/eligibility"
	"github.com/turnero-app/turnero/internal/fault"
	"github.com/turnero-app/turnero/internal/model"
	"github.com/turnero-app/turnero/internal/storage"
)

// AppointmentsByDNI returns every turno belonging to the persona with the
// given dni.
func (s *Service) AppointmentsByDNI(ctx context.Context, dni int64) (model.Person, []model.Appointment, error) {
	persona, err := s.store.GetPersonByDNI(ctx, dni)
	if err != nil {
		return model.Person{}, nil, err
	}
	turnos, err := s.store.ListAppointmentsByPersona(ctx, persona.ID)
	if err != nil {
		return model.Person{}, nil, err
	}
	return persona, turnos, nil
}

// AppointmentsBetween returns turnos whose fecha falls inside [desde, hasta].
func (s *Service) AppointmentsBetween(ctx context.Context, desde, hasta time.Time) ([]model.Appointment, error) {
	desde, hasta = model.Date(desde), model.Date(hasta)
	if hasta.Before(desde) {
		return nil, fault.Field(fault.Validation, "hasta", "must not be before desde")
	}
	return s.store.ListAppointmentsBetween(ctx, desde, hasta)
}

// PenalizedPersons reports personas with at least min cancelled turnos
// inside the current penalty window.
func (s *Service) PenalizedPersons(ctx context.Context, min int) ([]storage.PersonCancellations, error) {
	if min < 1 {
		return nil, fault.Field(fault.Validation, "min", "must be at least 1")
	}
	now := s.now()
	return s.store.PersonsWithCancellationsSince(ctx, model.Date(eligibility.WindowStart(now)), model.Date(now), min)
}
