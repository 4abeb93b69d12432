package storage

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/turnero-app/turnero/internal/fault"
	"github.com/turnero-app/turnero/internal/model"
	"github.com/turnero-app/turnero/internal/outbox"
	"github.com/turnero-app/turnero/libs/db"
	"github.com/turnero-app/turnero/libs/otelx"
)

// querier is satisfied by both *pgxpool.Pool and pgx.Tx so the same queries
// run inside and outside Atomic.
type querier interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

type Postgres struct {
	q    querier
	pool *db.Pool
}

func NewPostgres(pool *db.Pool) *Postgres {
	return &Postgres{q: pool.Pool, pool: pool}
}

func (s *Postgres) Atomic(ctx context.Context, fn func(Store) error) error {
	if s.pool == nil {
		// Already transaction-bound; nested units join the outer transaction.
		return fn(s)
	}
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback(ctx) }()

	if err := fn(&Postgres{q: tx}); err != nil {
		return err
	}
	return tx.Commit(ctx)
}

// classify re-maps store-level integrity violations into the fault taxonomy
// by the violated constraint, so callers get field-precise conflicts.
func classify(err error) error {
	var pgErr *pgconn.PgError
	if !errors.As(err, &pgErr) {
		return err
	}
	switch pgErr.Code {
	case "23505":
		switch pgErr.ConstraintName {
		case "personas_dni_key":
			return fault.Field(fault.Conflict, "dni", "a persona with that dni already exists")
		case "personas_email_key":
			return fault.Field(fault.Conflict, "email", "a persona with that email already exists")
		case "turnos_fecha_hora_activos_key":
			return fault.Field(fault.Conflict, "hora", "slot already held for that fecha")
		}
		return fault.New(fault.Conflict, "duplicate record")
	case "23503":
		return fault.New(fault.FailedPrecondition, "referenced persona does not exist")
	}
	return err
}

const personColumns = `id, nombre, email, dni, telefono, fecha_nacimiento, habilitado, created_at`

func scanPerson(row pgx.Row) (model.Person, error) {
	var p model.Person
	err := row.Scan(&p.ID, &p.Nombre, &p.Email, &p.DNI, &p.Telefono, &p.FechaNacimiento, &p.Habilitado, &p.CreatedAt)
	return p, err
}

func (s *Postgres) CreatePerson(ctx context.Context, p model.Person) (model.Person, error) {
	row := s.q.QueryRow(ctx, `
		INSERT INTO personas (nombre, email, dni, telefono, fecha_nacimiento, habilitado)
		VALUES ($1, $2, $3, $4, $5, $6)
		RETURNING `+personColumns+`
	`, p.Nombre, p.Email, p.DNI, p.Telefono, p.FechaNacimiento, p.Habilitado)
	created, err := scanPerson(row)
	if err != nil {
		return model.Person{}, classify(err)
	}
	return created, nil
}

func (s *Postgres) GetPerson(ctx context.Context, id int64) (model.Person, error) {
	p, err := scanPerson(s.q.QueryRow(ctx, `
		SELECT `+personColumns+` FROM personas WHERE id = $1
	`, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return model.Person{}, fault.New(fault.NotFound, "persona not found")
	}
	if err != nil {
		return model.Person{}, err
	}
	return p, nil
}

func (s *Postgres) GetPersonByDNI(ctx context.Context, dni int64) (model.Person, error) {
	p, err := scanPerson(s.q.QueryRow(ctx, `
		SELECT `+personColumns+` FROM personas WHERE dni = $1
	`, dni))
	if errors.Is(err, pgx.ErrNoRows) {
		return model.Person{}, fault.New(fault.NotFound, "persona not found")
	}
	if err != nil {
		return model.Person{}, err
	}
	return p, nil
}

func (s *Postgres) listPersons(ctx context.Context, query string, args ...any) ([]model.Person, error) {
	rows, err := s.q.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []model.Person
	for rows.Next() {
		var p model.Person
		if err := rows.Scan(&p.ID, &p.Nombre, &p.Email, &p.DNI, &p.Telefono, &p.FechaNacimiento, &p.Habilitado, &p.CreatedAt); err != nil {
			return nil, err
		}
		out = append(out, p)
	}
	return out, rows.Err()
}

func (s *Postgres) ListPersons(ctx context.Context) ([]model.Person, error) {
	return s.listPersons(ctx, `SELECT `+personColumns+` FROM personas ORDER BY id`)
}

func (s *Postgres) ListPersonsByHabilitado(ctx context.Context, habilitado bool) ([]model.Person, error) {
	return s.listPersons(ctx, `
		SELECT `+personColumns+` FROM personas WHERE habilitado = $1 ORDER BY id
	`, habilitado)
}

func (s *Postgres) UpdatePerson(ctx context.Context, p model.Person) (model.Person, error) {
	row := s.q.QueryRow(ctx, `
		UPDATE personas
		SET nombre = $2, email = $3, dni = $4, telefono = $5, fecha_nacimiento = $6
		WHERE id = $1
		RETURNING `+personColumns+`
	`, p.ID, p.Nombre, p.Email, p.DNI, p.Telefono, p.FechaNacimiento)
	updated, err := scanPerson(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return model.Person{}, fault.New(fault.NotFound, "persona not found")
	}
	if err != nil {
		return model.Person{}, classify(err)
	}
	return updated, nil
}

func (s *Postgres) SetPersonHabilitado(ctx context.Context, id int64, habilitado bool) error {
	tag, err := s.q.Exec(ctx, `
		UPDATE personas SET habilitado = $2 WHERE id = $1
	`, id, habilitado)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return fault.New(fault.NotFound, "persona not found")
	}
	return nil
}

func (s *Postgres) DeletePerson(ctx context.Context, id int64) error {
	tag, err := s.q.Exec(ctx, `DELETE FROM personas WHERE id = $1`, id)
	if err != nil {
		return classify(err)
	}
	if tag.RowsAffected() == 0 {
		return fault.New(fault.NotFound, "persona not found")
	}
	return nil
}

const turnoColumns = `id, fecha, hora, estado, persona_id, created_at`

func scanTurno(row pgx.Row) (model.Appointment, error) {
	var a model.Appointment
	var estado string
	err := row.Scan(&a.ID, &a.Fecha, &a.Hora, &estado, &a.PersonaID, &a.CreatedAt)
	a.Estado = model.Status(estado)
	a.Fecha = model.Date(a.Fecha)
	return a, err
}

func (s *Postgres) CreateAppointment(ctx context.Context, a model.Appointment) (model.Appointment, error) {
	row := s.q.QueryRow(ctx, `
		INSERT INTO turnos (fecha, hora, estado, persona_id)
		VALUES ($1, $2, $3, $4)
		RETURNING `+turnoColumns+`
	`, a.Fecha, a.Hora, string(a.Estado), a.PersonaID)
	created, err := scanTurno(row)
	if err != nil {
		return model.Appointment{}, classify(err)
	}
	return created, nil
}

func (s *Postgres) GetAppointment(ctx context.Context, id int64) (model.Appointment, error) {
	a, err := scanTurno(s.q.QueryRow(ctx, `
		SELECT `+turnoColumns+` FROM turnos WHERE id = $1
	`, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return model.Appointment{}, fault.New(fault.NotFound, "turno not found")
	}
	if err != nil {
		return model.Appointment{}, err
	}
	return a, nil
}

func (s *Postgres) listTurnos(ctx context.Context, query string, args ...any) ([]model.Appointment, error) {
	rows, err := s.q.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []model.Appointment
	for rows.Next() {
		var a model.Appointment
		var estado string
		if err := rows.Scan(&a.ID, &a.Fecha, &a.Hora, &estado, &a.PersonaID, &a.CreatedAt); err != nil {
			return nil, err
		}
		a.Estado = model.Status(estado)
		a.Fecha = model.Date(a.Fecha)
		out = append(out, a)
	}
	return out, rows.Err()
}

func (s *Postgres) ListAppointments(ctx context.Context) ([]model.Appointment, error) {
	return s.listTurnos(ctx, `SELECT `+turnoColumns+` FROM turnos ORDER BY fecha, hora`)
}

func (s *Postgres) ListAppointmentsByPersona(ctx context.Context, personaID int64) ([]model.Appointment, error) {
	return s.listTurnos(ctx, `
		SELECT `+turnoColumns+` FROM turnos WHERE persona_id = $1 ORDER BY fecha, hora
	`, personaID)
}

func (s *Postgres) ListAppointmentsBetween(ctx context.Context, desde, hasta time.Time) ([]model.Appointment, error) {
	return s.listTurnos(ctx, `
		SELECT `+turnoColumns+` FROM turnos
		WHERE fecha >= $1 AND fecha <= $2
		ORDER BY fecha, hora
	`, desde, hasta)
}

func (s *Postgres) ActiveHorasOnFecha(ctx context.Context, fecha time.Time) ([]string, error) {
	rows, err := s.q.Query(ctx, `
		SELECT hora FROM turnos
		WHERE fecha = $1 AND estado <> $2
		ORDER BY hora
	`, fecha, string(model.StatusCancelled))
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var horas []string
	for rows.Next() {
		var h string
		if err := rows.Scan(&h); err != nil {
			return nil, err
		}
		horas = append(horas, h)
	}
	return horas, rows.Err()
}

func (s *Postgres) SlotHeld(ctx context.Context, fecha time.Time, hora string) (bool, error) {
	var held bool
	err := s.q.QueryRow(ctx, `
		SELECT EXISTS (
			SELECT 1 FROM turnos
			WHERE fecha = $1 AND hora = $2 AND estado <> $3
		)
	`, fecha, hora, string(model.StatusCancelled)).Scan(&held)
	return held, err
}

func (s *Postgres) CountNonCancelledByPersona(ctx context.Context, personaID int64) (int, error) {
	var n int
	err := s.q.QueryRow(ctx, `
		SELECT count(*) FROM turnos
		WHERE persona_id = $1 AND estado <> $2
	`, personaID, string(model.StatusCancelled)).Scan(&n)
	return n, err
}

func (s *Postgres) CountCancelledInWindow(ctx context.Context, personaID int64, desde, hasta time.Time) (int, error) {
	var n int
	err := s.q.QueryRow(ctx, `
		SELECT count(*) FROM turnos
		WHERE persona_id = $1 AND estado = $2 AND fecha >= $3 AND fecha <= $4
	`, personaID, string(model.StatusCancelled), desde, hasta).Scan(&n)
	return n, err
}

func (s *Postgres) SetAppointmentEstado(ctx context.Context, id int64, estado model.Status) error {
	tag, err := s.q.Exec(ctx, `
		UPDATE turnos SET estado = $2 WHERE id = $1
	`, id, string(estado))
	if err != nil {
		return classify(err)
	}
	if tag.RowsAffected() == 0 {
		return fault.New(fault.NotFound, "turno not found")
	}
	return nil
}

func (s *Postgres) DeleteAppointment(ctx context.Context, id int64) error {
	tag, err := s.q.Exec(ctx, `DELETE FROM turnos WHERE id = $1`, id)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return fault.New(fault.NotFound, "turno not found")
	}
	return nil
}

func (s *Postgres) PersonsWithCancellationsSince(ctx context.Context, desde, hasta time.Time, min int) ([]PersonCancellations, error) {
	rows, err := s.q.Query(ctx, `
		SELECT p.id, p.nombre, p.email, p.dni, p.telefono, p.fecha_nacimiento, p.habilitado, p.created_at,
			count(t.id) AS cancelados
		FROM personas p
		JOIN turnos t ON t.persona_id = p.id
		WHERE t.estado = $1 AND t.fecha >= $2 AND t.fecha <= $3
		GROUP BY p.id
		HAVING count(t.id) >= $4
		ORDER BY cancelados DESC, p.id
	`, string(model.StatusCancelled), desde, hasta, min)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []PersonCancellations
	for rows.Next() {
		var pc PersonCancellations
		if err := rows.Scan(&pc.Person.ID, &pc.Person.Nombre, &pc.Person.Email, &pc.Person.DNI,
			&pc.Person.Telefono, &pc.Person.FechaNacimiento, &pc.Person.Habilitado, &pc.Person.CreatedAt,
			&pc.Cancelled); err != nil {
			return nil, err
		}
		out = append(out, pc)
	}
	return out, rows.Err()
}

func (s *Postgres) AppendEvent(ctx context.Context, evt outbox.Event) error {
	traceparent, tracestate := otelx.TraceContextStrings(ctx)
	_, err := s.q.Exec(ctx, `
		INSERT INTO outbox_events (event_id, aggregate_type, aggregate_id, event_type, payload, traceparent, tracestate)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
	`, uuid.NewString(), evt.AggregateType, evt.AggregateID, evt.EventType, evt.Payload, traceparent, tracestate)
	return err
}
