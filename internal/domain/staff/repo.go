package staff

import (
	"context"

	"github.com/google/uuid"
)

type Repository interface {
	Create(ctx context.Context, s *Staff) error
	GetByID(ctx context.Context, id uuid.UUID) (*Staff, error)
	GetForUpdate(ctx context.Context, id uuid.UUID) (*Staff, error)
	Update(ctx context.Context, s *Staff, set []Assignment) error
	List(ctx context.Context, f ListFilter, limit, offset int) ([]*Staff, int, error)
	// DoctorSchedule returns the stored template of an active doctor.
	DoctorSchedule(ctx context.Context, id uuid.UUID) ([]byte, error)
}
