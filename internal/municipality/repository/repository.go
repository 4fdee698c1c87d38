package repository

import (
	"context"

	"mininter-gps-proxy/backend/internal/municipality/domain"
)

// Repository defines read access to the municipality registry.
// The sync pipeline never writes municipalities; the administrative surface owns them.
type Repository interface {
	GetByID(ctx context.Context, id string) (*domain.Municipality, error)
	ListActive(ctx context.Context) ([]*domain.Municipality, error)
}
