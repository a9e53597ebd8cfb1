package patient

import (
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
)

const dateLayout = "2006-01-02"

var validGenders = map[string]bool{"Male": true, "Female": true, "Other": true}

// Patient maps to the patients table.
type Patient struct {
	ID               uuid.UUID `db:"id" json:"id"`
	PatientCode      string    `db:"patient_code" json:"patient_code"`
	FirstName        string    `db:"first_name" json:"first_name"`
	LastName         string    `db:"last_name" json:"last_name"`
	DateOfBirth      *string   `db:"date_of_birth" json:"date_of_birth,omitempty"`
	Gender           *string   `db:"gender" json:"gender,omitempty"`
	Phone            string    `db:"phone" json:"phone"`
	Email            *string   `db:"email" json:"email,omitempty"`
	Address          *string   `db:"address" json:"address,omitempty"`
	EmergencyContact *string   `db:"emergency_contact" json:"emergency_contact,omitempty"`
	EmergencyPhone   *string   `db:"emergency_phone" json:"emergency_phone,omitempty"`
	BloodGroup       *string   `db:"blood_group" json:"blood_group,omitempty"`
	Allergies        *string   `db:"allergies" json:"allergies,omitempty"`
	MedicalHistory   *string   `db:"medical_history" json:"medical_history,omitempty"`
	IsActive         bool      `db:"is_active" json:"is_active"`
	CreatedBy        *string   `db:"created_by" json:"created_by,omitempty"`
	CreatedAt        time.Time `db:"created_at" json:"created_at"`
	UpdatedAt        time.Time `db:"updated_at" json:"updated_at"`
}

func (p *Patient) FullName() string {
	return strings.TrimSpace(p.FirstName + " " + p.LastName)
}

// CreateInput is the request to register a patient.
type CreateInput struct {
	FirstName        string  `json:"first_name"`
	LastName         string  `json:"last_name"`
	DateOfBirth      *string `json:"date_of_birth,omitempty"`
	Gender           *string `json:"gender,omitempty"`
	Phone            string  `json:"phone"`
	Email            *string `json:"email,omitempty"`
	Address          *string `json:"address,omitempty"`
	EmergencyContact *string `json:"emergency_contact,omitempty"`
	EmergencyPhone   *string `json:"emergency_phone,omitempty"`
	BloodGroup       *string `json:"blood_group,omitempty"`
	Allergies        *string `json:"allergies,omitempty"`
	MedicalHistory   *string `json:"medical_history,omitempty"`
	CreatedBy        string  `json:"-"`
}

func (in *CreateInput) Validate() error {
	in.FirstName = strings.TrimSpace(in.FirstName)
	in.LastName = strings.TrimSpace(in.LastName)
	in.Phone = strings.TrimSpace(in.Phone)
	if in.FirstName == "" || in.LastName == "" {
		return fmt.Errorf("first_name and last_name are required")
	}
	if in.Phone == "" {
		return fmt.Errorf("phone is required")
	}
	if in.DateOfBirth != nil {
		if err := validateBirthDate(*in.DateOfBirth); err != nil {
			return err
		}
	}
	if in.Gender != nil && !validGenders[*in.Gender] {
		return fmt.Errorf("gender must be Male, Female or Other")
	}
	if in.Email != nil {
		if err := validateEmail(*in.Email); err != nil {
			return err
		}
	}
	return nil
}

func validateBirthDate(s string) error {
	d, err := time.Parse(dateLayout, s)
	if err != nil {
		return fmt.Errorf("date_of_birth must be YYYY-MM-DD")
	}
	if d.After(time.Now()) {
		return fmt.Errorf("date_of_birth is in the future")
	}
	return nil
}

func validateEmail(s string) error {
	at := strings.IndexByte(s, '@')
	if at < 1 || at == len(s)-1 || strings.ContainsAny(s, " \t") {
		return fmt.Errorf("email is not valid")
	}
	return nil
}

// parseDate converts an optional YYYY-MM-DD string for storage.
func parseDate(s *string) (*time.Time, error) {
	if s == nil {
		return nil, nil
	}
	t, err := time.Parse(dateLayout, *s)
	if err != nil {
		return nil, err
	}
	return &t, nil
}
