// Package person owns persona registration, profile edits and removal.
package person

import (
	"context"
	"encoding/json"
	"net/mail"
	"regexp"
	"strconv"
	"time"
	"unicode/utf8"

	"github.com/turnero-app/turnero/internal/fault"
	"github.com/turnero-app/turnero/internal/model"
	"github.com/turnero-app/turnero/internal/outbox"
	"github.com/turnero-app/turnero/internal/storage"
)

const EventPersonRegistered = "turnero.persona.registered.v1"

type Service struct {
	store storage.Store
	now   func() time.Time
}

func NewService(store storage.Store) *Service {
	return &Service{store: store, now: time.Now}
}

// NewServiceAt fixes the clock, for tests.
func NewServiceAt(store storage.Store, now func() time.Time) *Service {
	return &Service{store: store, now: now}
}

// Input carries the mutable persona fields. Pointers distinguish "absent"
// from zero for partial edits.
type Input struct {
	Nombre          *string
	Email           *string
	DNI             *int64
	Telefono        *string
	FechaNacimiento *time.Time
}

var nombreRe = regexp.MustCompile(`^[A-Za-zÁÉÍÓÚáéíóúÑñÜü]+( [A-Za-zÁÉÍÓÚáéíóúÑñÜü]+)*$`)
var telefonoRe = regexp.MustCompile(`^\+?[0-9][0-9 -]{4,18}[0-9]$`)

// Age derives the persona's age from the birth date: the year difference,
// minus one if today's (month, day) precedes the birthday's.
func Age(fechaNacimiento, now time.Time) int {
	age := now.Year() - fechaNacimiento.Year()
	if now.Month() < fechaNacimiento.Month() ||
		(now.Month() == fechaNacimiento.Month() && now.Day() < fechaNacimiento.Day()) {
		age--
	}
	return age
}

func (s *Service) Register(ctx context.Context, in Input) (model.Person, error) {
	p := model.Person{Habilitado: true}
	if err := apply(&p, in, true); err != nil {
		return model.Person{}, err
	}
	if err := validate(p, s.now()); err != nil {
		return model.Person{}, err
	}

	var created model.Person
	err := s.store.Atomic(ctx, func(tx storage.Store) error {
		var err error
		created, err = tx.CreatePerson(ctx, p)
		if err != nil {
			return err
		}
		payload, err := json.Marshal(map[string]any{
			"persona_id": created.ID,
			"dni":        created.DNI,
			"email":      created.Email,
		})
		if err != nil {
			return err
		}
		return tx.AppendEvent(ctx, outbox.Event{
			AggregateType: "persona",
			AggregateID:   strconv.FormatInt(created.ID, 10),
			EventType:     EventPersonRegistered,
			Payload:       payload,
		})
	})
	if err != nil {
		return model.Person{}, err
	}
	return created, nil
}

func (s *Service) Get(ctx context.Context, id int64) (model.Person, error) {
	return s.store.GetPerson(ctx, id)
}

func (s *Service) List(ctx context.Context) ([]model.Person, error) {
	return s.store.ListPersons(ctx)
}

func (s *Service) ListByHabilitado(ctx context.Context, habilitado bool) ([]model.Person, error) {
	return s.store.ListPersonsByHabilitado(ctx, habilitado)
}

// Update edits a persona. With replace set every field must be present
// (PUT); otherwise absent fields keep their current value (PATCH).
func (s *Service) Update(ctx context.Context, id int64, in Input, replace bool) (model.Person, error) {
	var updated model.Person
	err := s.store.Atomic(ctx, func(tx storage.Store) error {
		current, err := tx.GetPerson(ctx, id)
		if err != nil {
			return err
		}
		if err := apply(&current, in, replace); err != nil {
			return err
		}
		if err := validate(current, s.now()); err != nil {
			return err
		}
		updated, err = tx.UpdatePerson(ctx, current)
		return err
	})
	if err != nil {
		return model.Person{}, err
	}
	return updated, nil
}

// Delete removes a persona. Removal is forbidden while any non-cancelled
// turno of theirs exists; cancelled turnos are removed with the persona.
func (s *Service) Delete(ctx context.Context, id int64) error {
	return s.store.Atomic(ctx, func(tx storage.Store) error {
		if _, err := tx.GetPerson(ctx, id); err != nil {
			return err
		}
		n, err := tx.CountNonCancelledByPersona(ctx, id)
		if err != nil {
			return err
		}
		if n > 0 {
			return fault.New(fault.FailedPrecondition, "persona still holds %d non-cancelled turno(s)", n)
		}
		return tx.DeletePerson(ctx, id)
	})
}

func apply(p *model.Person, in Input, replace bool) error {
	if replace {
		if in.Nombre == nil || in.Email == nil || in.DNI == nil || in.Telefono == nil || in.FechaNacimiento == nil {
			return fault.New(fault.Validation, "all fields are required")
		}
	}
	if in.Nombre != nil {
		p.Nombre = *in.Nombre
	}
	if in.Email != nil {
		p.Email = *in.Email
	}
	if in.DNI != nil {
		p.DNI = *in.DNI
	}
	if in.Telefono != nil {
		p.Telefono = *in.Telefono
	}
	if in.FechaNacimiento != nil {
		p.FechaNacimiento = model.Date(*in.FechaNacimiento)
	}
	return nil
}

func validate(p model.Person, now time.Time) error {
	if n := utf8.RuneCountInString(p.Nombre); n < 2 || n > 60 || !nombreRe.MatchString(p.Nombre) {
		return fault.Field(fault.Validation, "nombre", "must be 2-60 letters and spaces")
	}
	if _, err := mail.ParseAddress(p.Email); err != nil {
		return fault.Field(fault.Validation, "email", "not a valid address")
	}
	if p.DNI < 1_000_000 || p.DNI > 99_999_999 {
		return fault.Field(fault.Validation, "dni", "must be a positive 7-8 digit number")
	}
	if !telefonoRe.MatchString(p.Telefono) {
		return fault.Field(fault.Validation, "telefono", "not a valid phone number")
	}
	if !p.FechaNacimiento.Before(model.Date(now)) {
		return fault.Field(fault.Validation, "fechaNacimiento", "must be in the past")
	}
	return nil
}
