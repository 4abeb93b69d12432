package storage

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/turnero-app/turnero/internal/fault"
	"github.com/turnero-app/turnero/internal/model"
	"github.com/turnero-app/turnero/internal/outbox"
)

// Memory is an in-process Store used as a test double and for local runs
// without Postgres. It enforces the same uniqueness rules the schema does,
// including the partial (fecha, hora) index over non-cancelled turnos.
type Memory struct {
	mu         sync.Mutex
	personas   map[int64]model.Person
	turnos     map[int64]model.Appointment
	events     []outbox.Event
	nextPerson int64
	nextTurno  int64
}

func NewMemory() *Memory {
	return &Memory{
		personas:   map[int64]model.Person{},
		turnos:     map[int64]model.Appointment{},
		nextPerson: 1,
		nextTurno:  1,
	}
}

// Atomic runs fn under the store lock. Rollback-on-error is not simulated;
// tests that need failure atomicity assert on the Postgres implementation's
// transaction instead.
func (m *Memory) Atomic(ctx context.Context, fn func(Store) error) error {
	return fn(m)
}

// Events returns a copy of everything appended via AppendEvent.
func (m *Memory) Events() []outbox.Event {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]outbox.Event, len(m.events))
	copy(out, m.events)
	return out
}

func (m *Memory) CreatePerson(_ context.Context, p model.Person) (model.Person, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, existing := range m.personas {
		if existing.DNI == p.DNI {
			return model.Person{}, fault.Field(fault.Conflict, "dni", "a persona with that dni already exists")
		}
		if existing.Email == p.Email {
			return model.Person{}, fault.Field(fault.Conflict, "email", "a persona with that email already exists")
		}
	}
	p.ID = m.nextPerson
	m.nextPerson++
	if p.CreatedAt.IsZero() {
		p.CreatedAt = time.Now().UTC()
	}
	m.personas[p.ID] = p
	return p, nil
}

func (m *Memory) GetPerson(_ context.Context, id int64) (model.Person, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	p, ok := m.personas[id]
	if !ok {
		return model.Person{}, fault.New(fault.NotFound, "persona not found")
	}
	return p, nil
}

func (m *Memory) GetPersonByDNI(_ context.Context, dni int64) (model.Person, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, p := range m.personas {
		if p.DNI == dni {
			return p, nil
		}
	}
	return model.Person{}, fault.New(fault.NotFound, "persona not found")
}

func (m *Memory) ListPersons(_ context.Context) ([]model.Person, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.sortedPersons(func(model.Person) bool { return true }), nil
}

func (m *Memory) ListPersonsByHabilitado(_ context.Context, habilitado bool) ([]model.Person, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.sortedPersons(func(p model.Person) bool { return p.Habilitado == habilitado }), nil
}

func (m *Memory) sortedPersons(keep func(model.Person) bool) []model.Person {
	var out []model.Person
	for _, p := range m.personas {
		if keep(p) {
			out = append(out, p)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

func (m *Memory) UpdatePerson(_ context.Context, p model.Person) (model.Person, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	existing, ok := m.personas[p.ID]
	if !ok {
		return model.Person{}, fault.New(fault.NotFound, "persona not found")
	}
	for id, other := range m.personas {
		if id == p.ID {
			continue
		}
		if other.DNI == p.DNI {
			return model.Person{}, fault.Field(fault.Conflict, "dni", "a persona with that dni already exists")
		}
		if other.Email == p.Email {
			return model.Person{}, fault.Field(fault.Conflict, "email", "a persona with that email already exists")
		}
	}
	p.Habilitado = existing.Habilitado
	p.CreatedAt = existing.CreatedAt
	m.personas[p.ID] = p
	return p, nil
}

func (m *Memory) SetPersonHabilitado(_ context.Context, id int64, habilitado bool) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	p, ok := m.personas[id]
	if !ok {
		return fault.New(fault.NotFound, "persona not found")
	}
	p.Habilitado = habilitado
	m.personas[id] = p
	return nil
}

func (m *Memory) DeletePerson(_ context.Context, id int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.personas[id]; !ok {
		return fault.New(fault.NotFound, "persona not found")
	}
	delete(m.personas, id)
	for tid, t := range m.turnos {
		if t.PersonaID == id {
			delete(m.turnos, tid)
		}
	}
	return nil
}

func (m *Memory) CreateAppointment(_ context.Context, a model.Appointment) (model.Appointment, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.personas[a.PersonaID]; !ok {
		return model.Appointment{}, fault.New(fault.FailedPrecondition, "referenced persona does not exist")
	}
	if a.Estado != model.StatusCancelled {
		for _, t := range m.turnos {
			if t.Fecha.Equal(a.Fecha) && t.Hora == a.Hora && t.Estado != model.StatusCancelled {
				return model.Appointment{}, fault.Field(fault.Conflict, "hora", "slot already held for that fecha")
			}
		}
	}
	a.ID = m.nextTurno
	m.nextTurno++
	if a.CreatedAt.IsZero() {
		a.CreatedAt = time.Now().UTC()
	}
	m.turnos[a.ID] = a
	return a, nil
}

func (m *Memory) GetAppointment(_ context.Context, id int64) (model.Appointment, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	a, ok := m.turnos[id]
	if !ok {
		return model.Appointment{}, fault.New(fault.NotFound, "turno not found")
	}
	return a, nil
}

func (m *Memory) sortedTurnos(keep func(model.Appointment) bool) []model.Appointment {
	var out []model.Appointment
	for _, a := range m.turnos {
		if keep(a) {
			out = append(out, a)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].Fecha.Equal(out[j].Fecha) {
			return out[i].Fecha.Before(out[j].Fecha)
		}
		if out[i].Hora != out[j].Hora {
			return out[i].Hora < out[j].Hora
		}
		return out[i].ID < out[j].ID
	})
	return out
}

func (m *Memory) ListAppointments(_ context.Context) ([]model.Appointment, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.sortedTurnos(func(model.Appointment) bool { return true }), nil
}

func (m *Memory) ListAppointmentsByPersona(_ context.Context, personaID int64) ([]model.Appointment, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.sortedTurnos(func(a model.Appointment) bool { return a.PersonaID == personaID }), nil
}

func (m *Memory) ListAppointmentsBetween(_ context.Context, desde, hasta time.Time) ([]model.Appointment, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.sortedTurnos(func(a model.Appointment) bool {
		return !a.Fecha.Before(desde) && !a.Fecha.After(hasta)
	}), nil
}

func (m *Memory) ActiveHorasOnFecha(_ context.Context, fecha time.Time) ([]string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var horas []string
	for _, a := range m.sortedTurnos(func(a model.Appointment) bool {
		return a.Fecha.Equal(fecha) && a.Estado != model.StatusCancelled
	}) {
		horas = append(horas, a.Hora)
	}
	return horas, nil
}

func (m *Memory) SlotHeld(_ context.Context, fecha time.Time, hora string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, a := range m.turnos {
		if a.Fecha.Equal(fecha) && a.Hora == hora && a.Estado != model.StatusCancelled {
			return true, nil
		}
	}
	return false, nil
}

func (m *Memory) CountNonCancelledByPersona(_ context.Context, personaID int64) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	n := 0
	for _, a := range m.turnos {
		if a.PersonaID == personaID && a.Estado != model.StatusCancelled {
			n++
		}
	}
	return n, nil
}

func (m *Memory) CountCancelledInWindow(_ context.Context, personaID int64, desde, hasta time.Time) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	n := 0
	for _, a := range m.turnos {
		if a.PersonaID == personaID && a.Estado == model.StatusCancelled &&
			!a.Fecha.Before(desde) && !a.Fecha.After(hasta) {
			n++
		}
	}
	return n, nil
}

func (m *Memory) SetAppointmentEstado(_ context.Context, id int64, estado model.Status) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	a, ok := m.turnos[id]
	if !ok {
		return fault.New(fault.NotFound, "turno not found")
	}
	if estado != model.StatusCancelled && a.Estado == model.StatusCancelled {
		// Reactivating would need the slot to still be free.
		for _, other := range m.turnos {
			if other.ID != id && other.Fecha.Equal(a.Fecha) && other.Hora == a.Hora && other.Estado != model.StatusCancelled {
				return fault.Field(fault.Conflict, "hora", "slot already held for that fecha")
			}
		}
	}
	a.Estado = estado
	m.turnos[id] = a
	return nil
}

func (m *Memory) DeleteAppointment(_ context.Context, id int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.turnos[id]; !ok {
		return fault.New(fault.NotFound, "turno not found")
	}
	delete(m.turnos, id)
	return nil
}

func (m *Memory) PersonsWithCancellationsSince(_ context.Context, desde, hasta time.Time, min int) ([]PersonCancellations, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	counts := map[int64]int{}
	for _, a := range m.turnos {
		if a.Estado == model.StatusCancelled && !a.Fecha.Before(desde) && !a.Fecha.After(hasta) {
			counts[a.PersonaID]++
		}
	}
	var out []PersonCancellations
	for id, n := range counts {
		if n < min {
			continue
		}
		p, ok := m.personas[id]
		if !ok {
			continue
		}
		out = append(out, PersonCancellations{Person: p, Cancelled: n})
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Cancelled != out[j].Cancelled {
			return out[i].Cancelled > out[j].Cancelled
		}
		return out[i].Person.ID < out[j].Person.ID
	})
	return out, nil
}

func (m *Memory) AppendEvent(_ context.Context, evt outbox.Event) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.events = append(m.events, evt)
	return nil
}
