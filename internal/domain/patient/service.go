package patient

import (
	"context"
	"strings"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/clinic/clinic/internal/platform/apperr"
	"github.com/clinic/clinic/internal/platform/db"
	"github.com/clinic/clinic/internal/platform/notification"
	"github.com/clinic/clinic/internal/platform/sequence"
)

type Service struct {
	repo    Repository
	numbers sequence.Generator
	tx      db.TxRunner
	logger  zerolog.Logger
}

func NewService(repo Repository, numbers sequence.Generator, tx db.TxRunner, logger zerolog.Logger) *Service {
	return &Service{
		repo:    repo,
		numbers: numbers,
		tx:      tx,
		logger:  logger.With().Str("component", "patient").Logger(),
	}
}

// RegisterPatient rejects a phone or email already on file, then stores the
// patient under the next P code.
func (s *Service) RegisterPatient(ctx context.Context, in CreateInput) (*Patient, error) {
	if err := in.Validate(); err != nil {
		return nil, apperr.Invalid("%s", err.Error())
	}

	p := &Patient{
		FirstName:        in.FirstName,
		LastName:         in.LastName,
		DateOfBirth:      in.DateOfBirth,
		Gender:           in.Gender,
		Phone:            in.Phone,
		Email:            trimmed(in.Email),
		Address:          in.Address,
		EmergencyContact: in.EmergencyContact,
		EmergencyPhone:   in.EmergencyPhone,
		BloodGroup:       in.BloodGroup,
		Allergies:        in.Allergies,
		MedicalHistory:   in.MedicalHistory,
		IsActive:         true,
	}
	if in.CreatedBy != "" {
		p.CreatedBy = &in.CreatedBy
	}

	err := s.tx.InTx(ctx, func(ctx context.Context) error {
		taken, err := s.repo.ContactTaken(ctx, p.Phone, p.Email, nil)
		if err != nil {
			return err
		}
		if taken {
			return apperr.Conflict(duplicateContact)
		}
		code, err := s.numbers.Next(ctx)
		if err != nil {
			return err
		}
		p.PatientCode = code
		return s.repo.Create(ctx, p)
	})
	if err != nil {
		return nil, err
	}
	s.logger.Info().Str("patient_id", p.ID.String()).Str("patient_code", p.PatientCode).Msg("patient registered")
	return p, nil
}

func (s *Service) GetPatient(ctx context.Context, id uuid.UUID) (*Patient, error) {
	return s.repo.GetByID(ctx, id)
}

// ListPatients pages active patients, newest first. search matches name,
// email, phone or patient code.
func (s *Service) ListPatients(ctx context.Context, search string, limit, offset int) ([]*Patient, int, error) {
	return s.repo.List(ctx, strings.TrimSpace(search), limit, offset)
}

func (s *Service) UpdatePatient(ctx context.Context, id uuid.UUID, changes Changes) (*Patient, error) {
	var updated *Patient
	err := s.tx.InTx(ctx, func(ctx context.Context) error {
		p, err := s.repo.GetForUpdate(ctx, id)
		if err != nil {
			return err
		}
		set, err := applyChanges(p, changes)
		if err != nil {
			return apperr.Invalid("%s", err.Error())
		}
		if len(set) == 0 {
			return apperr.Invalid("No valid fields to update")
		}
		if touchesContact(changes) {
			taken, err := s.repo.ContactTaken(ctx, p.Phone, p.Email, &p.ID)
			if err != nil {
				return err
			}
			if taken {
				return apperr.Conflict(duplicateContact)
			}
		}
		if err := s.repo.Update(ctx, p, set); err != nil {
			return err
		}
		updated = p
		return nil
	})
	if err != nil {
		return nil, err
	}
	return updated, nil
}

// Contact resolves notification addresses for a patient.
func (s *Service) Contact(ctx context.Context, patientID uuid.UUID) (notification.Contact, error) {
	p, err := s.repo.GetByID(ctx, patientID)
	if err != nil {
		return notification.Contact{}, err
	}
	c := notification.Contact{Name: p.FullName(), Phone: p.Phone}
	if p.Email != nil {
		c.Email = *p.Email
	}
	return c, nil
}

func touchesContact(changes Changes) bool {
	_, phone := changes["phone"]
	_, email := changes["email"]
	return phone || email
}

func trimmed(s *string) *string {
	if s == nil {
		return nil
	}
	v := strings.TrimSpace(*s)
	if v == "" {
		return nil
	}
	return &v
}
