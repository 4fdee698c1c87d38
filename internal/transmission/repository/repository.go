package repository

import (
	"context"

	"mininter-gps-proxy/backend/internal/transmission/domain"
)

// Repository defines persistence for transmission audit rows.
//
// InTx runs fn against a transaction-bound repository. The orchestrator uses
// it to create a PENDING row and finalize it in one atomic unit, so a
// concurrent reader never sees a payload without a status or a SENT row
// without its response fields.
type Repository interface {
	Create(ctx context.Context, t *domain.Transmission) error
	Finalize(ctx context.Context, t *domain.Transmission) error
	GetByID(ctx context.Context, id string) (*domain.Transmission, error)
	ListByMunicipality(ctx context.Context, municipalityID string, limit, offset int32) ([]*domain.Transmission, error)
	InTx(ctx context.Context, fn func(Repository) error) error
}
