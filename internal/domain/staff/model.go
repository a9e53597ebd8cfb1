package staff

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/clinic/clinic/internal/domain/scheduling"
	"github.com/clinic/clinic/internal/platform/auth"
)

var validRoles = map[string]bool{
	auth.RoleAdmin: true, auth.RoleDoctor: true, auth.RoleNurse: true,
	auth.RoleReceptionist: true, auth.RoleAccountant: true,
}

// Staff maps to the staff table. UserID is the identity-provider subject of
// the staff member. Schedule holds the normalized weekly template.
type Staff struct {
	ID             uuid.UUID       `db:"id" json:"id"`
	UserID         string          `db:"user_id" json:"user_id"`
	FirstName      string          `db:"first_name" json:"first_name"`
	LastName       string          `db:"last_name" json:"last_name"`
	Email          *string         `db:"email" json:"email,omitempty"`
	Phone          *string         `db:"phone" json:"phone,omitempty"`
	Role           string          `db:"role" json:"role"`
	Specialization *string         `db:"specialization" json:"specialization,omitempty"`
	LicenseNumber  *string         `db:"license_number" json:"license_number,omitempty"`
	Qualification  *string         `db:"qualification" json:"qualification,omitempty"`
	Schedule       json.RawMessage `db:"schedule" json:"schedule"`
	IsActive       bool            `db:"is_active" json:"is_active"`
	CreatedAt      time.Time       `db:"created_at" json:"created_at"`
	UpdatedAt      time.Time       `db:"updated_at" json:"updated_at"`
}

func (s *Staff) FullName() string {
	return strings.TrimSpace(s.FirstName + " " + s.LastName)
}

// CreateInput is the request to register a staff profile.
type CreateInput struct {
	UserID         string          `json:"user_id"`
	FirstName      string          `json:"first_name"`
	LastName       string          `json:"last_name"`
	Email          *string         `json:"email,omitempty"`
	Phone          *string         `json:"phone,omitempty"`
	Role           string          `json:"role"`
	Specialization *string         `json:"specialization,omitempty"`
	LicenseNumber  *string         `json:"license_number,omitempty"`
	Qualification  *string         `json:"qualification,omitempty"`
	Schedule       json.RawMessage `json:"schedule,omitempty"`
}

func (in *CreateInput) Validate() error {
	if strings.TrimSpace(in.UserID) == "" {
		return fmt.Errorf("user_id is required")
	}
	if strings.TrimSpace(in.FirstName) == "" || strings.TrimSpace(in.LastName) == "" {
		return fmt.Errorf("first_name and last_name are required")
	}
	if !validRoles[in.Role] {
		return fmt.Errorf("invalid role: %s", in.Role)
	}
	return nil
}

// ListFilter narrows staff listings. Zero values match everything.
type ListFilter struct {
	Role           string
	Specialization string
	Search         string
	ActiveOnly     bool
}

// normalizeSchedule validates a weekly template and returns its canonical
// encoding. Empty input becomes an empty template.
func normalizeSchedule(raw json.RawMessage) (json.RawMessage, error) {
	week, err := scheduling.ParseWeekSchedule(raw)
	if err != nil {
		return nil, fmt.Errorf("invalid schedule: %w", err)
	}
	return json.Marshal(week)
}
