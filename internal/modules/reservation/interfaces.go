package reservation

import (
	"context"
	"time"

	"autorent/internal/domain"
)

// CarCatalog is the read-only slice of the catalog the engine depends on.
// The catalog has no dependency back on reservations; this interface is what
// breaks the cycle.
type CarCatalog interface {
	GetByID(ctx context.Context, id int64) (*domain.Car, error)
}

type ReservationRepository interface {
	GetByID(ctx context.Context, id string) (*domain.Reservation, error)
	ListByClient(ctx context.Context, clientID int64) ([]domain.Reservation, error)
	ListByCar(ctx context.Context, carID int64) ([]domain.Reservation, error)
	CreateIfAvailable(ctx context.Context, res *domain.Reservation, now time.Time) error
	UpdateWindowIfAvailable(ctx context.Context, res *domain.Reservation, now time.Time) error
	TransitionStatus(ctx context.Context, id string, from, to domain.ReservationStatus, reason string, now time.Time) (bool, error)
	ExpireStaleHolds(ctx context.Context, now time.Time) (int64, error)
	CompleteElapsed(ctx context.Context, now time.Time) (int64, error)
}
