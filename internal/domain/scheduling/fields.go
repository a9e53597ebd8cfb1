package scheduling

import (
	"bytes"
	"encoding/json"
	"fmt"

	"github.com/google/uuid"
)

// Changes is a partial update keyed by external field name.
type Changes map[string]json.RawMessage

// Assignment is one column write produced from an accepted change.
type Assignment struct {
	Column string
	Value  interface{}
}

type field struct {
	key    string
	column string
	set    func(a *Appointment, raw json.RawMessage) error
	value  func(a *Appointment) interface{}
}

// appointmentFields is the complete list of externally mutable appointment
// fields. Keys not listed here are ignored.
var appointmentFields = []field{
	{
		key: "doctor_id", column: "doctor_id",
		set: func(a *Appointment, raw json.RawMessage) error {
			var id uuid.UUID
			if err := json.Unmarshal(raw, &id); err != nil || id == uuid.Nil {
				return fmt.Errorf("doctor_id must be a UUID")
			}
			a.DoctorID = id
			return nil
		},
		value: func(a *Appointment) interface{} { return a.DoctorID },
	},
	{
		key: "appointment_date", column: "appointment_date",
		set: func(a *Appointment, raw json.RawMessage) error {
			var d Date
			if err := json.Unmarshal(raw, &d); err != nil || d.IsZero() {
				return fmt.Errorf("appointment_date must be YYYY-MM-DD")
			}
			a.Date = d
			return nil
		},
		value: func(a *Appointment) interface{} { return a.Date.Time() },
	},
	{
		key: "appointment_time", column: "appointment_time",
		set: func(a *Appointment, raw json.RawMessage) error {
			var t TimeOfDay
			if isNull(raw) || json.Unmarshal(raw, &t) != nil {
				return fmt.Errorf("appointment_time must be HH:MM")
			}
			a.Time = t
			return nil
		},
		value: func(a *Appointment) interface{} { return a.Time.String() },
	},
	{
		key: "type", column: "type",
		set: func(a *Appointment, raw json.RawMessage) error {
			var s string
			if err := json.Unmarshal(raw, &s); err != nil || !validTypes[s] {
				return fmt.Errorf("invalid appointment type")
			}
			a.Type = s
			return nil
		},
		value: func(a *Appointment) interface{} { return a.Type },
	},
	{
		key: "status", column: "status",
		set: func(a *Appointment, raw json.RawMessage) error {
			var s string
			if err := json.Unmarshal(raw, &s); err != nil || !validStatuses[s] {
				return fmt.Errorf("invalid appointment status")
			}
			a.Status = s
			return nil
		},
		value: func(a *Appointment) interface{} { return a.Status },
	},
	textField("reason", func(a *Appointment) **string { return &a.Reason }),
	textField("notes", func(a *Appointment) **string { return &a.Notes }),
	textField("diagnosis", func(a *Appointment) **string { return &a.Diagnosis }),
	textField("treatment", func(a *Appointment) **string { return &a.Treatment }),
	textField("prescription", func(a *Appointment) **string { return &a.Prescription }),
	textField("cancellation_reason", func(a *Appointment) **string { return &a.CancellationReason }),
}

// textField is a nullable free-text column whose external key matches the
// column name. JSON null clears it.
func textField(name string, ptr func(a *Appointment) **string) field {
	return field{
		key: name, column: name,
		set: func(a *Appointment, raw json.RawMessage) error {
			if isNull(raw) {
				*ptr(a) = nil
				return nil
			}
			var s string
			if err := json.Unmarshal(raw, &s); err != nil {
				return fmt.Errorf("%s must be a string", name)
			}
			*ptr(a) = &s
			return nil
		},
		value: func(a *Appointment) interface{} { return *ptr(a) },
	}
}

func isNull(raw json.RawMessage) bool {
	return len(raw) == 0 || bytes.Equal(bytes.TrimSpace(raw), []byte("null"))
}

// applyChanges sets every allow-listed field present in changes on a and
// returns the column writes in table order.
func applyChanges(a *Appointment, changes Changes) ([]Assignment, error) {
	var set []Assignment
	for _, f := range appointmentFields {
		raw, ok := changes[f.key]
		if !ok {
			continue
		}
		if err := f.set(a, raw); err != nil {
			return nil, err
		}
		set = append(set, Assignment{Column: f.column, Value: f.value(a)})
	}
	return set, nil
}
