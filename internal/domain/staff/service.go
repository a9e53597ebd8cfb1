package staff

import (
	"context"
	"strings"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/clinic/clinic/internal/platform/apperr"
	"github.com/clinic/clinic/internal/platform/auth"
	"github.com/clinic/clinic/internal/platform/db"
)

type Service struct {
	repo   Repository
	tx     db.TxRunner
	logger zerolog.Logger
}

func NewService(repo Repository, tx db.TxRunner, logger zerolog.Logger) *Service {
	return &Service{repo: repo, tx: tx, logger: logger.With().Str("component", "staff").Logger()}
}

func (s *Service) CreateStaff(ctx context.Context, in CreateInput) (*Staff, error) {
	if err := in.Validate(); err != nil {
		return nil, apperr.Invalid("%s", err.Error())
	}
	schedule, err := normalizeSchedule(in.Schedule)
	if err != nil {
		return nil, apperr.Invalid("%s", err.Error())
	}

	st := &Staff{
		UserID:         strings.TrimSpace(in.UserID),
		FirstName:      strings.TrimSpace(in.FirstName),
		LastName:       strings.TrimSpace(in.LastName),
		Email:          in.Email,
		Phone:          in.Phone,
		Role:           in.Role,
		Specialization: in.Specialization,
		LicenseNumber:  in.LicenseNumber,
		Qualification:  in.Qualification,
		Schedule:       schedule,
		IsActive:       true,
	}
	if err := s.repo.Create(ctx, st); err != nil {
		return nil, err
	}
	s.logger.Info().Str("staff_id", st.ID.String()).Str("role", st.Role).Msg("staff member created")
	return st, nil
}

func (s *Service) GetStaff(ctx context.Context, id uuid.UUID) (*Staff, error) {
	return s.repo.GetByID(ctx, id)
}

func (s *Service) ListStaff(ctx context.Context, f ListFilter, limit, offset int) ([]*Staff, int, error) {
	if f.Role != "" && !validRoles[f.Role] {
		return nil, 0, apperr.Invalid("invalid role: %s", f.Role)
	}
	return s.repo.List(ctx, f, limit, offset)
}

// ListDoctors lists active doctors, optionally narrowed by specialization.
func (s *Service) ListDoctors(ctx context.Context, specialization string, limit, offset int) ([]*Staff, int, error) {
	return s.repo.List(ctx, ListFilter{Role: auth.RoleDoctor, Specialization: specialization, ActiveOnly: true}, limit, offset)
}

// UpdateStaff applies the allow-listed changes. A schedule change is
// validated and stored in canonical form.
func (s *Service) UpdateStaff(ctx context.Context, id uuid.UUID, changes Changes) (*Staff, error) {
	var updated *Staff
	err := s.tx.InTx(ctx, func(ctx context.Context) error {
		st, err := s.repo.GetForUpdate(ctx, id)
		if err != nil {
			return err
		}
		set, err := applyChanges(st, changes)
		if err != nil {
			return apperr.Invalid("%s", err.Error())
		}
		if len(set) == 0 {
			return apperr.Invalid("No valid fields to update")
		}
		if err := s.repo.Update(ctx, st, set); err != nil {
			return err
		}
		updated = st
		return nil
	})
	if err != nil {
		return nil, err
	}
	return updated, nil
}

// DoctorSchedule serves the scheduling engine's template lookups.
func (s *Service) DoctorSchedule(ctx context.Context, doctorID uuid.UUID) ([]byte, error) {
	return s.repo.DoctorSchedule(ctx, doctorID)
}
