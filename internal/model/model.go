package model

import "time"

// Status is the lifecycle state of a turno. Wire values match the API
// (Spanish), constants use English names.
type Status string

const (
	StatusPending   Status = "PENDIENTE"
	StatusConfirmed Status = "CONFIRMADO"
	StatusCancelled Status = "CANCELADO"
	StatusAttended  Status = "ASISTIDO"
)

// Terminal reports whether no further transition is permitted from s.
func (s Status) Terminal() bool {
	return s == StatusCancelled || s == StatusAttended
}

func ParseStatus(raw string) (Status, bool) {
	switch Status(raw) {
	case StatusPending, StatusConfirmed, StatusCancelled, StatusAttended:
		return Status(raw), true
	}
	return "", false
}

type Person struct {
	ID              int64
	Nombre          string
	Email           string
	DNI             int64
	Telefono        string
	FechaNacimiento time.Time
	// Habilitado caches the rolling-window eligibility computation. It is
	// refreshed whenever eligibility is evaluated and on every cancellation;
	// it is never set directly.
	Habilitado bool
	CreatedAt  time.Time
}

type Appointment struct {
	ID        int64
	Fecha     time.Time // calendar date, midnight UTC
	Hora      string    // HH:MM, must belong to the schedule grid
	Estado    Status
	PersonaID int64
	CreatedAt time.Time
}

// Date normalizes t to midnight UTC so fecha comparisons are calendar-day
// comparisons regardless of the wall clock.
func Date(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
}
