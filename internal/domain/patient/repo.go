package patient

import (
	"context"

	"github.com/google/uuid"
)

type Repository interface {
	Create(ctx context.Context, p *Patient) error
	GetByID(ctx context.Context, id uuid.UUID) (*Patient, error)
	GetForUpdate(ctx context.Context, id uuid.UUID) (*Patient, error)
	Update(ctx context.Context, p *Patient, set []Assignment) error
	List(ctx context.Context, search string, limit, offset int) ([]*Patient, int, error)
	// ContactTaken reports whether another patient already uses phone or
	// email. exclude skips the patient being edited.
	ContactTaken(ctx context.Context, phone string, email *string, exclude *uuid.UUID) (bool, error)
}
