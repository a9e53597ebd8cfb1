package patient

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
	set   func(p *Patient, raw json.RawMessage) error
	value func(p *Patient) (interface{}, error)
}

// patientFields lists the externally mutable patient columns. External keys
// match column names; patient_code and audit columns are never writable.
var patientFields = []field{
	requiredText("first_name", func(p *Patient) *string { return &p.FirstName }),
	requiredText("last_name", func(p *Patient) *string { return &p.LastName }),
	{
		key: "date_of_birth",
		set: func(p *Patient, raw json.RawMessage) error {
			v, err := decodeOptional(raw, "date_of_birth")
			if err == nil && v != nil {
				err = validateBirthDate(*v)
			}
			if err != nil {
				return err
			}
			p.DateOfBirth = v
			return nil
		},
		value: func(p *Patient) (interface{}, error) { return parseDate(p.DateOfBirth) },
	},
	{
		key: "gender",
		set: func(p *Patient, raw json.RawMessage) error {
			v, err := decodeOptional(raw, "gender")
			if err != nil {
				return err
			}
			if v != nil && !validGenders[*v] {
				return fmt.Errorf("gender must be Male, Female or Other")
			}
			p.Gender = v
			return nil
		},
		value: func(p *Patient) (interface{}, error) { return p.Gender, nil },
	},
	requiredText("phone", func(p *Patient) *string { return &p.Phone }),
	{
		key: "email",
		set: func(p *Patient, raw json.RawMessage) error {
			v, err := decodeOptional(raw, "email")
			if err == nil && v != nil {
				err = validateEmail(*v)
			}
			if err != nil {
				return err
			}
			p.Email = v
			return nil
		},
		value: func(p *Patient) (interface{}, error) { return p.Email, nil },
	},
	optionalText("address", func(p *Patient) **string { return &p.Address }),
	optionalText("emergency_contact", func(p *Patient) **string { return &p.EmergencyContact }),
	optionalText("emergency_phone", func(p *Patient) **string { return &p.EmergencyPhone }),
	optionalText("medical_history", func(p *Patient) **string { return &p.MedicalHistory }),
	optionalText("allergies", func(p *Patient) **string { return &p.Allergies }),
	optionalText("blood_group", func(p *Patient) **string { return &p.BloodGroup }),
}

func requiredText(name string, ptr func(p *Patient) *string) field {
	return field{
		key: name,
		set: func(p *Patient, raw json.RawMessage) error {
			v, err := decodeOptional(raw, name)
			if err != nil {
				return err
			}
			if v == nil || strings.TrimSpace(*v) == "" {
				return fmt.Errorf("%s must not be empty", name)
			}
			*ptr(p) = strings.TrimSpace(*v)
			return nil
		},
		value: func(p *Patient) (interface{}, error) { return *ptr(p), nil },
	}
}

func optionalText(name string, ptr func(p *Patient) **string) field {
	return field{
		key: name,
		set: func(p *Patient, raw json.RawMessage) error {
			v, err := decodeOptional(raw, name)
			if err != nil {
				return err
			}
			*ptr(p) = v
			return nil
		},
		value: func(p *Patient) (interface{}, error) { return *ptr(p), nil },
	}
}

// decodeOptional reads a JSON string, mapping null to nil.
func decodeOptional(raw json.RawMessage, name string) (*string, error) {
	if len(raw) == 0 || bytes.Equal(bytes.TrimSpace(raw), []byte("null")) {
		return nil, nil
	}
	var v string
	if err := json.Unmarshal(raw, &v); err != nil {
		return nil, fmt.Errorf("%s must be a string", name)
	}
	return &v, nil
}

func applyChanges(p *Patient, changes Changes) ([]Assignment, error) {
	var set []Assignment
	for _, f := range patientFields {
		raw, ok := changes[f.key]
		if !ok {
			continue
		}
		if err := f.set(p, raw); err != nil {
			return nil, err
		}
		v, err := f.value(p)
		if err != nil {
			return nil, err
		}
		set = append(set, Assignment{Column: f.key, Value: v})
	}
	return set, nil
}
