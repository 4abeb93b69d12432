package person

import (
	"context"
	"testing"
	"time"

	"github.com/turnero-app/turnero/internal/fault"
	"github.com/turnero-app/turnero/internal/model"
	"github.com/turnero-app/turnero/internal/storage"
)

func fixedNow() time.Time {
	return time.Date(2025, 1, 1, 10, 0, 0, 0, time.UTC)
}

func newService() (*Service, *storage.Memory) {
	store := storage.NewMemory()
	return NewServiceAt(store, fixedNow), store
}

func ptr[T any](v T) *T { return &v }

func validInput() Input {
	return Input{
		Nombre:          ptr("María José"),
		Email:           ptr("maria@example.com"),
		DNI:             ptr(int64(30111222)),
		Telefono:        ptr("11 4555 0101"),
		FechaNacimiento: ptr(time.Date(1990, 5, 5, 0, 0, 0, 0, time.UTC)),
	}
}

func TestAge(t *testing.T) {
	born := time.Date(1990, 5, 5, 0, 0, 0, 0, time.UTC)
	cases := []struct {
		now  time.Time
		want int
	}{
		{time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC), 34},  // before birthday
		{time.Date(2025, 5, 5, 0, 0, 0, 0, time.UTC), 35},  // on the birthday
		{time.Date(2025, 12, 1, 0, 0, 0, 0, time.UTC), 35}, // after birthday
	}
	for _, tc := range cases {
		if got := Age(born, tc.now); got != tc.want {
			t.Errorf("Age at %s = %d, want %d", tc.now.Format("2006-01-02"), got, tc.want)
		}
	}
}

func TestRegister(t *testing.T) {
	svc, store := newService()

	p, err := svc.Register(context.Background(), validInput())
	if err != nil {
		t.Fatal(err)
	}
	if p.ID == 0 {
		t.Fatal("expected an assigned id")
	}
	if !p.Habilitado {
		t.Fatal("new personas start habilitado")
	}

	events := store.Events()
	if len(events) != 1 || events[0].EventType != EventPersonRegistered {
		t.Fatalf("expected one registered event, got %+v", events)
	}
}

func TestRegister_Validation(t *testing.T) {
	svc, _ := newService()

	cases := []struct {
		name   string
		mutate func(*Input)
	}{
		{"missing nombre", func(in *Input) { in.Nombre = nil }},
		{"one letter nombre", func(in *Input) { in.Nombre = ptr("A") }},
		{"nombre with digits", func(in *Input) { in.Nombre = ptr("Ana 2") }},
		{"bad email", func(in *Input) { in.Email = ptr("not-an-address") }},
		{"dni too small", func(in *Input) { in.DNI = ptr(int64(999_999)) }},
		{"dni too large", func(in *Input) { in.DNI = ptr(int64(100_000_000)) }},
		{"negative dni", func(in *Input) { in.DNI = ptr(int64(-30111222)) }},
		{"bad telefono", func(in *Input) { in.Telefono = ptr("phone") }},
		{"born today", func(in *Input) { in.FechaNacimiento = ptr(fixedNow()) }},
		{"born tomorrow", func(in *Input) { in.FechaNacimiento = ptr(fixedNow().AddDate(0, 0, 1)) }},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			in := validInput()
			tc.mutate(&in)
			if _, err := svc.Register(context.Background(), in); !fault.IsKind(err, fault.Validation) {
				t.Fatalf("expected Validation, got %v", err)
			}
		})
	}
}

func TestRegister_AccentedNombre(t *testing.T) {
	svc, _ := newService()
	in := validInput()
	in.Nombre = ptr("Ñoño Gutiérrez")
	if _, err := svc.Register(context.Background(), in); err != nil {
		t.Fatalf("accented names are valid: %v", err)
	}
}

func TestRegister_UniqueDNIAndEmail(t *testing.T) {
	svc, _ := newService()
	if _, err := svc.Register(context.Background(), validInput()); err != nil {
		t.Fatal(err)
	}

	dup := validInput()
	dup.Email = ptr("other@example.com")
	if _, err := svc.Register(context.Background(), dup); !fault.IsKind(err, fault.Conflict) {
		t.Fatalf("duplicate dni: expected Conflict, got %v", err)
	}

	dup = validInput()
	dup.DNI = ptr(int64(40111222))
	if _, err := svc.Register(context.Background(), dup); !fault.IsKind(err, fault.Conflict) {
		t.Fatalf("duplicate email: expected Conflict, got %v", err)
	}
}

func TestUpdate_ReplaceRequiresAllFields(t *testing.T) {
	svc, _ := newService()
	p, err := svc.Register(context.Background(), validInput())
	if err != nil {
		t.Fatal(err)
	}

	if _, err := svc.Update(context.Background(), p.ID, Input{Nombre: ptr("Otra Persona")}, true); !fault.IsKind(err, fault.Validation) {
		t.Fatalf("partial PUT should fail, got %v", err)
	}

	in := validInput()
	in.Nombre = ptr("Otra Persona")
	updated, err := svc.Update(context.Background(), p.ID, in, true)
	if err != nil {
		t.Fatal(err)
	}
	if updated.Nombre != "Otra Persona" {
		t.Fatalf("unexpected nombre %q", updated.Nombre)
	}
}

func TestUpdate_PatchKeepsAbsentFields(t *testing.T) {
	svc, _ := newService()
	p, err := svc.Register(context.Background(), validInput())
	if err != nil {
		t.Fatal(err)
	}

	updated, err := svc.Update(context.Background(), p.ID, Input{Telefono: ptr("11 4555 9999")}, false)
	if err != nil {
		t.Fatal(err)
	}
	if updated.Telefono != "11 4555 9999" {
		t.Fatalf("telefono not updated: %q", updated.Telefono)
	}
	if updated.Nombre != p.Nombre || updated.DNI != p.DNI {
		t.Fatal("absent fields must keep their values")
	}
}

func TestUpdate_NotFound(t *testing.T) {
	svc, _ := newService()
	if _, err := svc.Update(context.Background(), 42, Input{Nombre: ptr("Alguien")}, false); !fault.IsKind(err, fault.NotFound) {
		t.Fatalf("expected NotFound, got %v", err)
	}
}

func TestDelete_BlockedByActiveTurnos(t *testing.T) {
	svc, store := newService()
	p, err := svc.Register(context.Background(), validInput())
	if err != nil {
		t.Fatal(err)
	}

	turno, err := store.CreateAppointment(context.Background(), model.Appointment{
		Fecha:     model.Date(fixedNow()),
		Hora:      "10:00",
		Estado:    model.StatusPending,
		PersonaID: p.ID,
	})
	if err != nil {
		t.Fatal(err)
	}

	if err := svc.Delete(context.Background(), p.ID); !fault.IsKind(err, fault.FailedPrecondition) {
		t.Fatalf("expected FailedPrecondition, got %v", err)
	}

	// Once the turno is cancelled, removal proceeds and takes the cancelled
	// turnos with it.
	if err := store.SetAppointmentEstado(context.Background(), turno.ID, model.StatusCancelled); err != nil {
		t.Fatal(err)
	}
	if err := svc.Delete(context.Background(), p.ID); err != nil {
		t.Fatal(err)
	}
	if _, err := store.GetAppointment(context.Background(), turno.ID); !fault.IsKind(err, fault.NotFound) {
		t.Fatalf("cancelled turnos should be cascaded, got %v", err)
	}
}

func TestListByHabilitado(t *testing.T) {
	svc, store := newService()
	p, err := svc.Register(context.Background(), validInput())
	if err != nil {
		t.Fatal(err)
	}
	second := validInput()
	second.DNI = ptr(int64(40111222))
	second.Email = ptr("segunda@example.com")
	q, err := svc.Register(context.Background(), second)
	if err != nil {
		t.Fatal(err)
	}
	if err := store.SetPersonHabilitado(context.Background(), q.ID, false); err != nil {
		t.Fatal(err)
	}

	enabled, err := svc.ListByHabilitado(context.Background(), true)
	if err != nil {
		t.Fatal(err)
	}
	if len(enabled) != 1 || enabled[0].ID != p.ID {
		t.Fatalf("unexpected enabled list: %+v", enabled)
	}
	disabled, err := svc.ListByHabilitado(context.Background(), false)
	if err != nil {
		t.Fatal(err)
	}
	if len(disabled) != 1 || disabled[0].ID != q.ID {
		t.Fatalf("unexpected disabled list: %+v", disabled)
	}
}
