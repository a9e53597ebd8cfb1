package staff

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"
)

// Changes is a partial update keyed by external field name.
type Changes map[string]json.RawMessage

// Assignment is one column write produced from an accepted change.
type Assignment struct {
	Column string
	Value  interface{}
}

type field struct {
	key   string
	set   func(s *Staff, raw json.RawMessage) error
	value func(s *Staff) interface{}
}

// staffFields lists the externally mutable staff columns. External keys
// match column names. Role and user_id are fixed at creation.
var staffFields = []field{
	requiredText("first_name", func(s *Staff) *string { return &s.FirstName }),
	requiredText("last_name", func(s *Staff) *string { return &s.LastName }),
	optionalText("email", func(s *Staff) **string { return &s.Email }),
	optionalText("phone", func(s *Staff) **string { return &s.Phone }),
	optionalText("specialization", func(s *Staff) **string { return &s.Specialization }),
	optionalText("license_number", func(s *Staff) **string { return &s.LicenseNumber }),
	optionalText("qualification", func(s *Staff) **string { return &s.Qualification }),
	{
		key: "schedule",
		set: func(s *Staff, raw json.RawMessage) error {
			norm, err := normalizeSchedule(raw)
			if err != nil {
				return err
			}
			s.Schedule = norm
			return nil
		},
		value: func(s *Staff) interface{} { return []byte(s.Schedule) },
	},
	{
		key: "is_active",
		set: func(s *Staff, raw json.RawMessage) error {
			var b bool
			if err := json.Unmarshal(raw, &b); err != nil || isNull(raw) {
				return fmt.Errorf("is_active must be a boolean")
			}
			s.IsActive = b
			return nil
		},
		value: func(s *Staff) interface{} { return s.IsActive },
	},
}

func requiredText(name string, ptr func(s *Staff) *string) field {
	return field{
		key: name,
		set: func(s *Staff, raw json.RawMessage) error {
			var v string
			if err := json.Unmarshal(raw, &v); err != nil || strings.TrimSpace(v) == "" {
				return fmt.Errorf("%s must be a non-empty string", name)
			}
			*ptr(s) = strings.TrimSpace(v)
			return nil
		},
		value: func(s *Staff) interface{} { return *ptr(s) },
	}
}

func optionalText(name string, ptr func(s *Staff) **string) field {
	return field{
		key: name,
		set: func(s *Staff, raw json.RawMessage) error {
			if isNull(raw) {
				*ptr(s) = nil
				return nil
			}
			var v string
			if err := json.Unmarshal(raw, &v); err != nil {
				return fmt.Errorf("%s must be a string", name)
			}
			*ptr(s) = &v
			return nil
		},
		value: func(s *Staff) interface{} { return *ptr(s) },
	}
}

func isNull(raw json.RawMessage) bool {
	return len(raw) == 0 || bytes.Equal(bytes.TrimSpace(raw), []byte("null"))
}

func applyChanges(s *Staff, changes Changes) ([]Assignment, error) {
	var set []Assignment
	for _, f := range staffFields {
		raw, ok := changes[f.key]
		if !ok {
			continue
		}
		if err := f.set(s, raw); err != nil {
			return nil, err
		}
		set = append(set, Assignment{Column: f.key, Value: f.value(s)})
	}
	return set, nil
}
