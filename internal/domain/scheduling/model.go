package scheduling

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
)

const (
	StatusScheduled = "Scheduled"
	StatusCompleted = "Completed"
	StatusCancelled = "Cancelled"
)

const (
	TypeConsultation = "Consultation"
	TypeFollowUp     = "Follow-up"
	TypeEmergency    = "Emergency"
	TypeRoutineCheck = "Routine Check"
)

var validTypes = map[string]bool{
	TypeConsultation: true, TypeFollowUp: true, TypeEmergency: true, TypeRoutineCheck: true,
}

var validStatuses = map[string]bool{
	StatusScheduled: true, StatusCompleted: true, StatusCancelled: true,
}

// Appointment maps to the appointments table. PatientName and DoctorName are
// filled on reads that join the people tables.
type Appointment struct {
	ID                 uuid.UUID `db:"id" json:"id"`
	AppointmentNumber  string    `db:"appointment_number" json:"appointment_number"`
	PatientID          uuid.UUID `db:"patient_id" json:"patient_id"`
	DoctorID           uuid.UUID `db:"doctor_id" json:"doctor_id"`
	Date               Date      `db:"appointment_date" json:"appointment_date"`
	Time               TimeOfDay `db:"appointment_time" json:"appointment_time"`
	Type               string    `db:"type" json:"type"`
	Status             string    `db:"status" json:"status"`
	Reason             *string   `db:"reason" json:"reason,omitempty"`
	Diagnosis          *string   `db:"diagnosis" json:"diagnosis,omitempty"`
	Treatment          *string   `db:"treatment" json:"treatment,omitempty"`
	Prescription       *string   `db:"prescription" json:"prescription,omitempty"`
	Notes              *string   `db:"notes" json:"notes,omitempty"`
	CancellationReason *string   `db:"cancellation_reason" json:"cancellation_reason,omitempty"`
	CreatedBy          *string   `db:"created_by" json:"created_by,omitempty"`
	CreatedAt          time.Time `db:"created_at" json:"created_at"`
	UpdatedAt          time.Time `db:"updated_at" json:"updated_at"`

	PatientName string `json:"patient_name,omitempty"`
	DoctorName  string `json:"doctor_name,omitempty"`
}

// Occupies reports whether the appointment holds its slot.
func (a *Appointment) Occupies() bool {
	return a.Status != StatusCancelled
}

// BookInput is the request to create an appointment.
type BookInput struct {
	PatientID uuid.UUID  `json:"patient_id"`
	DoctorID  uuid.UUID  `json:"doctor_id"`
	Date      Date       `json:"appointment_date"`
	Time      *TimeOfDay `json:"appointment_time"`
	Type      string     `json:"type"`
	Reason    *string    `json:"reason,omitempty"`
	Notes     *string    `json:"notes,omitempty"`
	CreatedBy string     `json:"-"`
}

func (in *BookInput) Validate() error {
	if in.PatientID == uuid.Nil {
		return fmt.Errorf("patient_id is required")
	}
	if in.DoctorID == uuid.Nil {
		return fmt.Errorf("doctor_id is required")
	}
	if in.Date.IsZero() {
		return fmt.Errorf("appointment_date is required")
	}
	if in.Time == nil {
		return fmt.Errorf("appointment_time is required")
	}
	if in.Type == "" {
		in.Type = TypeConsultation
	}
	if !validTypes[in.Type] {
		return fmt.Errorf("invalid appointment type: %s", in.Type)
	}
	return nil
}

// Outcome records the clinical result when an appointment is completed.
type Outcome struct {
	Diagnosis    *string `json:"diagnosis,omitempty"`
	Treatment    *string `json:"treatment,omitempty"`
	Prescription *string `json:"prescription,omitempty"`
	Notes        *string `json:"notes,omitempty"`
}

// ListFilter narrows appointment listings. Zero values match everything.
type ListFilter struct {
	Status    string
	DoctorID  uuid.UUID
	PatientID uuid.UUID
	Date      Date
}

// Availability is the result of a slot lookup for one doctor and date.
type Availability struct {
	DoctorID     uuid.UUID   `json:"doctor_id"`
	Date         Date        `json:"date"`
	Weekday      string      `json:"weekday"`
	Working      bool        `json:"working"`
	WorkingHours string      `json:"working_hours,omitempty"`
	Slots        []TimeOfDay `json:"available_slots"`
}

// DoctorDay is one doctor's bookings and working hours for a date.
type DoctorDay struct {
	DoctorID     uuid.UUID      `json:"doctor_id"`
	Date         Date           `json:"date"`
	WorkingHours *DaySchedule   `json:"working_hours"`
	Appointments []*Appointment `json:"appointments"`
}

// DateLayout is the wire and storage form of a calendar date.
const DateLayout = "2006-01-02"

// Date is a calendar date without time or zone.
type Date struct {
	t time.Time
}

func NewDate(t time.Time) Date {
	y, m, d := t.Date()
	return Date{t: time.Date(y, m, d, 0, 0, 0, 0, time.UTC)}
}

func ParseDate(s string) (Date, error) {
	t, err := time.Parse(DateLayout, strings.TrimSpace(s))
	if err != nil {
		return Date{}, fmt.Errorf("invalid date %q: want YYYY-MM-DD", s)
	}
	return Date{t: t}, nil
}

func (d Date) IsZero() bool          { return d.t.IsZero() }
func (d Date) Time() time.Time       { return d.t }
func (d Date) Weekday() time.Weekday { return d.t.Weekday() }
func (d Date) Equal(o Date) bool     { return d.t.Equal(o.t) }

func (d Date) String() string {
	if d.t.IsZero() {
		return ""
	}
	return d.t.Format(DateLayout)
}

func (d Date) MarshalText() ([]byte, error) {
	return []byte(d.String()), nil
}

func (d *Date) UnmarshalText(b []byte) error {
	parsed, err := ParseDate(string(b))
	if err != nil {
		return err
	}
	*d = parsed
	return nil
}

// TimeOfDay is a wall-clock time in minutes after midnight. It travels as
// "HH:MM".
type TimeOfDay int

// ParseTimeOfDay accepts H:MM, HH:MM and HH:MM:SS. Seconds are dropped.
func ParseTimeOfDay(s string) (TimeOfDay, error) {
	parts := strings.Split(strings.TrimSpace(s), ":")
	if len(parts) < 2 || len(parts) > 3 || len(parts[1]) != 2 {
		return 0, fmt.Errorf("invalid time %q: want HH:MM", s)
	}
	h, err := strconv.Atoi(parts[0])
	if err != nil || len(parts[0]) > 2 || h < 0 || h > 23 {
		return 0, fmt.Errorf("invalid time %q: want HH:MM", s)
	}
	m, err := strconv.Atoi(parts[1])
	if err != nil || m < 0 || m > 59 {
		return 0, fmt.Errorf("invalid time %q: want HH:MM", s)
	}
	return TimeOfDay(h*60 + m), nil
}

func (t TimeOfDay) Hour() int   { return int(t) / 60 }
func (t TimeOfDay) Minute() int { return int(t) % 60 }

func (t TimeOfDay) String() string {
	return fmt.Sprintf("%02d:%02d", t.Hour(), t.Minute())
}

func (t TimeOfDay) MarshalText() ([]byte, error) {
	return []byte(t.String()), nil
}

func (t *TimeOfDay) UnmarshalText(b []byte) error {
	parsed, err := ParseTimeOfDay(string(b))
	if err != nil {
		return err
	}
	*t = parsed
	return nil
}
