package scheduling

import (
	"context"
	"strings"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/clinic/clinic/internal/platform/apperr"
	"github.com/clinic/clinic/internal/platform/db"
	"github.com/clinic/clinic/internal/platform/sequence"
)

type Service struct {
	appointments AppointmentRepository
	schedules    ScheduleReader
	numbers      sequence.Generator
	tx           db.TxRunner
	logger       zerolog.Logger
}

func NewService(appts AppointmentRepository, schedules ScheduleReader, numbers sequence.Generator, tx db.TxRunner, logger zerolog.Logger) *Service {
	return &Service{
		appointments: appts,
		schedules:    schedules,
		numbers:      numbers,
		tx:           tx,
		logger:       logger.With().Str("component", "scheduling").Logger(),
	}
}

// weekSchedule loads and parses a doctor's template. A stored template that
// does not parse is treated as no working days.
func (s *Service) weekSchedule(ctx context.Context, doctorID uuid.UUID) (WeekSchedule, error) {
	raw, err := s.schedules.DoctorSchedule(ctx, doctorID)
	if err != nil {
		return nil, err
	}
	week, err := ParseWeekSchedule(raw)
	if err != nil {
		s.logger.Warn().Err(err).Str("doctor_id", doctorID.String()).Msg("malformed doctor schedule; treating as unavailable")
		return WeekSchedule{}, nil
	}
	return week, nil
}

// -- Availability --

func (s *Service) AvailableSlots(ctx context.Context, doctorID uuid.UUID, date Date) (*Availability, error) {
	week, err := s.weekSchedule(ctx, doctorID)
	if err != nil {
		return nil, err
	}

	avail := &Availability{
		DoctorID: doctorID,
		Date:     date,
		Weekday:  date.Weekday().String(),
		Slots:    []TimeOfDay{},
	}
	day, ok := week.Day(date)
	if !ok {
		return avail, nil
	}

	booked, err := s.appointments.BookedTimes(ctx, doctorID, date)
	if err != nil {
		return nil, err
	}
	avail.Working = true
	avail.WorkingHours = day.String()
	avail.Slots = GenerateSlots(day, booked)
	return avail, nil
}

// IsSlotAvailable reports whether no live appointment other than exclude
// holds the slot.
func (s *Service) IsSlotAvailable(ctx context.Context, doctorID uuid.UUID, date Date, t TimeOfDay, exclude *uuid.UUID) (bool, error) {
	n, err := s.appointments.CountOccupying(ctx, doctorID, date, t, exclude)
	if err != nil {
		return false, err
	}
	return n == 0, nil
}

func (s *Service) requireSlot(ctx context.Context, doctorID uuid.UUID, date Date, t TimeOfDay, exclude *uuid.UUID) error {
	ok, err := s.IsSlotAvailable(ctx, doctorID, date, t, exclude)
	if err != nil {
		return err
	}
	if !ok {
		return apperr.Conflict("the doctor already has an appointment on %s at %s", date, t)
	}
	return nil
}

// -- Booking --

func (s *Service) BookAppointment(ctx context.Context, in BookInput) (*Appointment, error) {
	if err := in.Validate(); err != nil {
		return nil, apperr.Invalid("%s", err.Error())
	}
	if _, err := s.schedules.DoctorSchedule(ctx, in.DoctorID); err != nil {
		return nil, err
	}

	var booked *Appointment
	err := s.tx.InTx(ctx, func(ctx context.Context) error {
		if err := s.requireSlot(ctx, in.DoctorID, in.Date, *in.Time, nil); err != nil {
			return err
		}
		number, err := s.numbers.Next(ctx)
		if err != nil {
			return err
		}

		a := &Appointment{
			AppointmentNumber: number,
			PatientID:         in.PatientID,
			DoctorID:          in.DoctorID,
			Date:              in.Date,
			Time:              *in.Time,
			Type:              in.Type,
			Status:            StatusScheduled,
			Reason:            in.Reason,
			Notes:             in.Notes,
		}
		if in.CreatedBy != "" {
			a.CreatedBy = &in.CreatedBy
		}
		if err := s.appointments.Create(ctx, a); err != nil {
			return err
		}
		booked, err = s.appointments.GetByID(ctx, a.ID)
		return err
	})
	if err != nil {
		return nil, err
	}
	s.logger.Info().Str("appointment_number", booked.AppointmentNumber).
		Str("doctor_id", booked.DoctorID.String()).
		Str("date", booked.Date.String()).Str("time", booked.Time.String()).
		Msg("appointment booked")
	return booked, nil
}

// Transition reports what an update did to the appointment.
type Transition struct {
	Moved     bool // doctor, date or time changed
	Cancelled bool // status changed into Cancelled
}

// UpdateAppointment applies the allow-listed changes. Moving the appointment
// to another doctor, date or time, or reviving a cancelled one, re-checks the
// target slot.
func (s *Service) UpdateAppointment(ctx context.Context, id uuid.UUID, changes Changes) (*Appointment, Transition, error) {
	var updated *Appointment
	var tr Transition
	err := s.tx.InTx(ctx, func(ctx context.Context) error {
		a, err := s.appointments.GetForUpdate(ctx, id)
		if err != nil {
			return err
		}
		before := *a

		set, err := applyChanges(a, changes)
		if err != nil {
			return apperr.Invalid("%s", err.Error())
		}
		if len(set) == 0 {
			return apperr.Invalid("No valid fields to update")
		}

		moved := a.DoctorID != before.DoctorID || !a.Date.Equal(before.Date) || a.Time != before.Time
		revived := !before.Occupies() && a.Occupies()
		tr = Transition{
			Moved:     moved,
			Cancelled: before.Status != StatusCancelled && a.Status == StatusCancelled,
		}
		if a.DoctorID != before.DoctorID {
			if _, err := s.schedules.DoctorSchedule(ctx, a.DoctorID); err != nil {
				return err
			}
		}
		if a.Occupies() && (moved || revived) {
			if err := s.requireSlot(ctx, a.DoctorID, a.Date, a.Time, &a.ID); err != nil {
				return err
			}
		}

		if err := s.appointments.Update(ctx, a, set); err != nil {
			return err
		}
		updated, err = s.appointments.GetByID(ctx, id)
		return err
	})
	if err != nil {
		return nil, Transition{}, err
	}
	return updated, tr, nil
}

// CancelAppointment releases the slot. Appointments are never deleted.
func (s *Service) CancelAppointment(ctx context.Context, id uuid.UUID, reason string) (*Appointment, error) {
	var cancelled *Appointment
	err := s.tx.InTx(ctx, func(ctx context.Context) error {
		a, err := s.appointments.GetForUpdate(ctx, id)
		if err != nil {
			return err
		}
		if a.Status == StatusCancelled {
			return apperr.AlreadyCancelled("Appointment is already cancelled")
		}

		a.Status = StatusCancelled
		a.CancellationReason = nil
		if r := strings.TrimSpace(reason); r != "" {
			a.CancellationReason = &r
		}
		set := []Assignment{
			{Column: "status", Value: a.Status},
			{Column: "cancellation_reason", Value: a.CancellationReason},
		}
		if err := s.appointments.Update(ctx, a, set); err != nil {
			return err
		}
		cancelled = a
		return nil
	})
	if err != nil {
		return nil, err
	}
	s.logger.Info().Str("appointment_number", cancelled.AppointmentNumber).Msg("appointment cancelled")
	return cancelled, nil
}

// CompleteAppointment closes a scheduled appointment with its clinical
// outcome. Fields left nil in outcome keep their current value.
func (s *Service) CompleteAppointment(ctx context.Context, id uuid.UUID, outcome Outcome) (*Appointment, error) {
	var completed *Appointment
	err := s.tx.InTx(ctx, func(ctx context.Context) error {
		a, err := s.appointments.GetForUpdate(ctx, id)
		if err != nil {
			return err
		}
		if a.Status != StatusScheduled {
			return apperr.Conflict("cannot complete a %s appointment", strings.ToLower(a.Status))
		}

		a.Status = StatusCompleted
		set := []Assignment{{Column: "status", Value: a.Status}}
		for _, f := range []struct {
			column string
			src    *string
			dst    **string
		}{
			{"diagnosis", outcome.Diagnosis, &a.Diagnosis},
			{"treatment", outcome.Treatment, &a.Treatment},
			{"prescription", outcome.Prescription, &a.Prescription},
			{"notes", outcome.Notes, &a.Notes},
		} {
			if f.src != nil {
				*f.dst = f.src
				set = append(set, Assignment{Column: f.column, Value: f.src})
			}
		}
		if err := s.appointments.Update(ctx, a, set); err != nil {
			return err
		}
		completed = a
		return nil
	})
	if err != nil {
		return nil, err
	}
	return completed, nil
}

// -- Reads --

func (s *Service) GetAppointment(ctx context.Context, id uuid.UUID) (*Appointment, error) {
	return s.appointments.GetByID(ctx, id)
}

func (s *Service) ListAppointments(ctx context.Context, f ListFilter, limit, offset int) ([]*Appointment, int, error) {
	if f.Status != "" && !validStatuses[f.Status] {
		return nil, 0, apperr.Invalid("invalid appointment status: %s", f.Status)
	}
	return s.appointments.List(ctx, f, limit, offset)
}

// DailySchedule lists every live appointment of a date across doctors.
func (s *Service) DailySchedule(ctx context.Context, date Date) ([]*Appointment, error) {
	return s.appointments.ListByDay(ctx, date, nil)
}

// DoctorDay returns one doctor's live appointments and working hours.
func (s *Service) DoctorDay(ctx context.Context, doctorID uuid.UUID, date Date) (*DoctorDay, error) {
	week, err := s.weekSchedule(ctx, doctorID)
	if err != nil {
		return nil, err
	}
	appts, err := s.appointments.ListByDay(ctx, date, &doctorID)
	if err != nil {
		return nil, err
	}
	dd := &DoctorDay{DoctorID: doctorID, Date: date, Appointments: appts}
	if day, ok := week.Day(date); ok {
		dd.WorkingHours = &day
	}
	return dd, nil
}
