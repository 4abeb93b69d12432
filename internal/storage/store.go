// Package storage defines the record store consumed by the services and its
// Postgres implementation. Services receive the Store interface explicitly
// (no package-level handle) so tests can substitute the in-memory double.
package storage

import (
	"context"
	"time"

	"github.com/turnero-app/turnero/internal/model"
	"github.com/turnero-app/turnero/internal/outbox"
)

// PersonCancellations is a report row: a persona together with their number
// of cancelled turnos inside the queried window.
type PersonCancellations struct {
	Person    model.Person
	Cancelled int
}

// Store is the persistence boundary. Atomic runs fn against a
// transaction-bound store; any error rolls the whole unit back, so no
// partial mutation is ever observable.
type Store interface {
	Atomic(ctx context.Context, fn func(Store) error) error

	CreatePerson(ctx context.Context, p model.Person) (model.Person, error)
	GetPerson(ctx context.Context, id int64) (model.Person, error)
	GetPersonByDNI(ctx context.Context, dni int64) (model.Person, error)
	ListPersons(ctx context.Context) ([]model.Person, error)
	ListPersonsByHabilitado(ctx context.Context, habilitado bool) ([]model.Person, error)
	UpdatePerson(ctx context.Context, p model.Person) (model.Person, error)
	SetPersonHabilitado(ctx context.Context, id int64, habilitado bool) error
	DeletePerson(ctx context.Context, id int64) error

	CreateAppointment(ctx context.Context, a model.Appointment) (model.Appointment, error)
	GetAppointment(ctx context.Context, id int64) (model.Appointment, error)
	ListAppointments(ctx context.Context) ([]model.Appointment, error)
	ListAppointmentsByPersona(ctx context.Context, personaID int64) ([]model.Appointment, error)
	ListAppointmentsBetween(ctx context.Context, desde, hasta time.Time) ([]model.Appointment, error)
	ActiveHorasOnFecha(ctx context.Context, fecha time.Time) ([]string, error)
	SlotHeld(ctx context.Context, fecha time.Time, hora string) (bool, error)
	CountNonCancelledByPersona(ctx context.Context, personaID int64) (int, error)
	CountCancelledInWindow(ctx context.Context, personaID int64, desde, hasta time.Time) (int, error)
	SetAppointmentEstado(ctx context.Context, id int64, estado model.Status) error
	DeleteAppointment(ctx context.Context, id int64) error
	PersonsWithCancellationsSince(ctx context.Context, desde, hasta time.Time, min int) ([]PersonCancellations, error)

	AppendEvent(ctx context.Context, evt outbox.Event) error
}
