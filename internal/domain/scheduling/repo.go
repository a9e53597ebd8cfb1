package scheduling

import (
	"context"

	"github.com/google/uuid"
)

type AppointmentRepository interface {
	Create(ctx context.Context, a *Appointment) error
	GetByID(ctx context.Context, id uuid.UUID) (*Appointment, error)
	// GetForUpdate reads and row-locks the appointment for the rest of the
	// enclosing transaction.
	GetForUpdate(ctx context.Context, id uuid.UUID) (*Appointment, error)
	Update(ctx context.Context, a *Appointment, set []Assignment) error
	// BookedTimes returns the start times held by non-cancelled appointments.
	BookedTimes(ctx context.Context, doctorID uuid.UUID, date Date) (map[TimeOfDay]bool, error)
	// CountOccupying counts non-cancelled appointments at one slot, ignoring
	// exclude when set.
	CountOccupying(ctx context.Context, doctorID uuid.UUID, date Date, t TimeOfDay, exclude *uuid.UUID) (int, error)
	List(ctx context.Context, f ListFilter, limit, offset int) ([]*Appointment, int, error)
	// ListByDay returns the non-cancelled appointments of a date ordered by
	// time, optionally for one doctor.
	ListByDay(ctx context.Context, date Date, doctorID *uuid.UUID) ([]*Appointment, error)
}

// ScheduleReader loads a doctor's stored weekly template. It fails with
// apperr.ErrNotFound when no active doctor has the id.
type ScheduleReader interface {
	DoctorSchedule(ctx context.Context, doctorID uuid.UUID) ([]byte, error)
}
