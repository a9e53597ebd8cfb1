package integration

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/google/uuid"

	"github.com/clinic/clinic/internal/domain/scheduling"
	"github.com/clinic/clinic/internal/platform/apperr"
)

const mondayHours = `{"Monday": {"working": true, "start": "09:00", "end": "12:00"}}`

func mustDate(t *testing.T, s string) scheduling.Date {
	t.Helper()
	d, err := scheduling.ParseDate(s)
	if err != nil {
		t.Fatalf("parse date: %v", err)
	}
	return d
}

func mustTime(t *testing.T, s string) *scheduling.TimeOfDay {
	t.Helper()
	tod, err := scheduling.ParseTimeOfDay(s)
	if err != nil {
		t.Fatalf("parse time: %v", err)
	}
	return &tod
}

func TestScheduling_BookCancelCycle(t *testing.T) {
	ctx := context.Background()
	s := newServices(t)
	doc := s.createDoctor(t, mondayHours)
	pat := s.createPatient(t, "Ada", "Lovelace")
	monday := mustDate(t, "2026-03-02")

	avail, err := s.scheduling.AvailableSlots(ctx, doc.ID, monday)
	if err != nil {
		t.Fatalf("available slots: %v", err)
	}
	if len(avail.Slots) != 6 {
		t.Fatalf("expected 6 slots, got %d", len(avail.Slots))
	}

	a, err := s.scheduling.BookAppointment(ctx, scheduling.BookInput{
		PatientID: pat.ID, DoctorID: doc.ID, Date: monday, Time: mustTime(t, "10:30"),
	})
	if err != nil {
		t.Fatalf("book: %v", err)
	}
	if a.AppointmentNumber != "APT0001" {
		t.Errorf("expected APT0001, got %s", a.AppointmentNumber)
	}
	if a.PatientName != "Ada Lovelace" || a.DoctorName != "Meredith Grey" {
		t.Errorf("expected joined names, got %q / %q", a.PatientName, a.DoctorName)
	}

	avail, _ = s.scheduling.AvailableSlots(ctx, doc.ID, monday)
	for _, slot := range avail.Slots {
		if slot.String() == "10:30" {
			t.Error("booked slot must not be offered")
		}
	}

	_, err = s.scheduling.BookAppointment(ctx, scheduling.BookInput{
		PatientID: pat.ID, DoctorID: doc.ID, Date: monday, Time: mustTime(t, "10:30"),
	})
	if !errors.Is(err, apperr.ErrConflict) {
		t.Fatalf("expected ErrConflict for a taken slot, got %v", err)
	}

	if _, err := s.scheduling.CancelAppointment(ctx, a.ID, "patient request"); err != nil {
		t.Fatalf("cancel: %v", err)
	}
	ok, err := s.scheduling.IsSlotAvailable(ctx, doc.ID, monday, *mustTime(t, "10:30"), nil)
	if err != nil || !ok {
		t.Errorf("cancelled slot must be free again, got %v (%v)", ok, err)
	}

	again, err := s.scheduling.BookAppointment(ctx, scheduling.BookInput{
		PatientID: pat.ID, DoctorID: doc.ID, Date: monday, Time: mustTime(t, "10:30"),
	})
	if err != nil {
		t.Fatalf("rebook: %v", err)
	}
	if again.AppointmentNumber != "APT0002" {
		t.Errorf("expected APT0002, got %s", again.AppointmentNumber)
	}
}

func TestScheduling_ConcurrentBookingOneWinner(t *testing.T) {
	ctx := context.Background()
	s := newServices(t)
	doc := s.createDoctor(t, mondayHours)
	monday := mustDate(t, "2026-03-02")

	const callers = 8
	patients := make([]uuid.UUID, callers)
	for i := range patients {
		patients[i] = s.createPatient(t, "Racer", string(rune('A'+i))).ID
	}
	nine := mustTime(t, "09:00")

	var wg sync.WaitGroup
	errs := make([]error, callers)
	for i := 0; i < callers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, errs[i] = s.scheduling.BookAppointment(ctx, scheduling.BookInput{
				PatientID: patients[i], DoctorID: doc.ID, Date: monday, Time: nine,
			})
		}(i)
	}
	wg.Wait()

	wins := 0
	for _, err := range errs {
		switch {
		case err == nil:
			wins++
		case errors.Is(err, apperr.ErrConflict), errors.Is(err, apperr.ErrTransactionFailure):
		default:
			t.Errorf("unexpected error: %v", err)
		}
	}
	if wins != 1 {
		t.Errorf("expected exactly one booking to win, got %d", wins)
	}

	var active int
	err := globalPool.QueryRow(ctx, `SELECT COUNT(*) FROM appointments
		WHERE doctor_id = $1 AND appointment_time = '09:00' AND status <> 'Cancelled'`, doc.ID).Scan(&active)
	if err != nil {
		t.Fatalf("count: %v", err)
	}
	if active != 1 {
		t.Errorf("expected one active appointment, found %d", active)
	}
}

func TestScheduling_RescheduleIntoTakenSlot(t *testing.T) {
	ctx := context.Background()
	s := newServices(t)
	doc := s.createDoctor(t, mondayHours)
	pat := s.createPatient(t, "Ada", "Lovelace")
	monday := mustDate(t, "2026-03-02")

	first, err := s.scheduling.BookAppointment(ctx, scheduling.BookInput{
		PatientID: pat.ID, DoctorID: doc.ID, Date: monday, Time: mustTime(t, "09:00"),
	})
	if err != nil {
		t.Fatalf("book: %v", err)
	}
	second, err := s.scheduling.BookAppointment(ctx, scheduling.BookInput{
		PatientID: pat.ID, DoctorID: doc.ID, Date: monday, Time: mustTime(t, "09:30"),
	})
	if err != nil {
		t.Fatalf("book: %v", err)
	}

	_, _, err = s.scheduling.UpdateAppointment(ctx, second.ID, scheduling.Changes{
		"appointment_time": []byte(`"09:00"`),
	})
	if !errors.Is(err, apperr.ErrConflict) {
		t.Fatalf("expected ErrConflict, got %v", err)
	}

	moved, tr, err := s.scheduling.UpdateAppointment(ctx, first.ID, scheduling.Changes{
		"appointment_time": []byte(`"11:30"`),
		"notes":            []byte(`"moved by phone"`),
	})
	if err != nil {
		t.Fatalf("reschedule: %v", err)
	}
	if !tr.Moved || moved.Time.String() != "11:30" {
		t.Errorf("expected move to 11:30, got %s (moved=%v)", moved.Time, tr.Moved)
	}
}
