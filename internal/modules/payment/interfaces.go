package payment

import (
	"context"
	"time"

	"autorent/internal/domain"
)

type SessionRepository interface {
	Create(ctx context.Context, p *domain.PaymentSession) error
	GetByID(ctx context.Context, id string) (*domain.PaymentSession, error)
	GetByExternalRef(ctx context.Context, ref string) (*domain.PaymentSession, error)
	GetOpenByReservation(ctx context.Context, reservationID string) (*domain.PaymentSession, error)
	HasCompletedForReservation(ctx context.Context, reservationID string) (bool, error)
	ListByClient(ctx context.Context, clientID int64) ([]domain.PaymentSession, error)
	MarkCompleted(ctx context.Context, id, eventBody string, now time.Time) (bool, error)
	MarkFailed(ctx context.Context, id, reason, eventBody string, now time.Time) (bool, error)
	MarkRefunded(ctx context.Context, id, eventBody string, now time.Time) (bool, error)
}

// ReservationStore is the slice of reservation persistence the payment side
// drives: guarded status transitions and hold management. It deliberately
// bypasses the reservation service so neither module depends on the other.
type ReservationStore interface {
	GetByID(ctx context.Context, id string) (*domain.Reservation, error)
	TransitionStatus(ctx context.Context, id string, from, to domain.ReservationStatus, reason string, now time.Time) (bool, error)
	ClearHold(ctx context.Context, id string, now time.Time) error
	ResetHold(ctx context.Context, id string, until, now time.Time) error
}

// Gateway abstracts the payment provider. Calls carry the caller's context
// and a bounded timeout; retries stay inside the implementation.
type Gateway interface {
	CreateIntent(ctx context.Context, amount domain.Money, metadata map[string]string) (*Intent, error)
	RetrieveIntent(ctx context.Context, id string) (*Intent, error)
	RefundIntent(ctx context.Context, id string) error
}
