package catalog

import (
	"context"

	"autorent/internal/domain"
)

type CarRepository interface {
	Create(ctx context.Context, c *domain.Car) error
	GetByID(ctx context.Context, id int64) (*domain.Car, error)
	ListBookable(ctx context.Context) ([]domain.Car, error)
	ListByOwner(ctx context.Context, ownerID int64) ([]domain.Car, error)
	SetAvailability(ctx context.Context, id int64, available bool) error
	SetValidated(ctx context.Context, id int64, validated bool) error
}
