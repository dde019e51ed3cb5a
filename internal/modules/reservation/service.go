package reservation

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"autorent/internal/domain"
	"autorent/internal/messaging"
	"autorent/internal/modules/pricing"
	"autorent/internal/pkg/lock"
	"autorent/internal/repository"

	"github.com/google/uuid"
)

type Service struct {
	reservations ReservationRepository
	cars         CarCatalog
	locks        *lock.Keyed
	events       messaging.Publisher
	holdTTL      time.Duration
	log          *slog.Logger
	now          func() time.Time
}

func NewService(reservations ReservationRepository, cars CarCatalog, events messaging.Publisher, holdTTL time.Duration, log *slog.Logger) *Service {
	if log == nil {
		log = slog.Default()
	}
	return &Service{
		reservations: reservations,
		cars:         cars,
		locks:        lock.NewKeyed(),
		events:       events,
		holdTTL:      holdTTL,
		log:          log,
		now:          time.Now,
	}
}

// Create validates the window against the car's calendar and persists a
// PENDING reservation with a bounded hold. The per-car lock plus the
// transactional check-then-insert in the repository keep two concurrent
// requests for overlapping windows from both succeeding.
func (s *Service) Create(ctx context.Context, clientID int64, req CreateRequest) (*domain.Reservation, error) {
	now := s.now().UTC()
	if err := validateWindow(req.StartAt, req.EndAt, now); err != nil {
		return nil, err
	}

	car, err := s.cars.GetByID(ctx, req.CarID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	if !car.Bookable() {
		return nil, ErrNotBookable
	}

	cost, err := pricing.Quote(car.DailyRate(), req.StartAt, req.EndAt)
	if err != nil {
		return nil, ErrValidation
	}

	holdUntil := now.Add(s.holdTTL)
	res := &domain.Reservation{
		ID:            uuid.NewString(),
		CarID:         car.ID,
		ClientID:      clientID,
		StartAt:       req.StartAt.UTC(),
		EndAt:         req.EndAt.UTC(),
		CostCents:     cost.Cents,
		Currency:      cost.Currency,
		Status:        domain.ReservationPending,
		HoldExpiresAt: &holdUntil,
		CreatedAt:     now,
		UpdatedAt:     now,
	}

	s.locks.Lock(car.ID)
	defer s.locks.Unlock(car.ID)

	if err := s.reservations.CreateIfAvailable(ctx, res, now); err != nil {
		if errors.Is(err, repository.ErrWindowTaken) {
			return nil, ErrWindowTaken
		}
		return nil, err
	}

	s.publish(messaging.Event{
		Type:          messaging.EventReservationCreated,
		ReservationID: res.ID,
		CarID:         res.CarID,
		ClientID:      res.ClientID,
		AmountCents:   res.CostCents,
		Currency:      res.Currency,
		OccurredAt:    now,
	})
	return res, nil
}

// Update reschedules a PENDING reservation. The new window is revalidated
// excluding the reservation itself and the cost recomputed at the car's
// current rate; the hold deadline restarts.
func (s *Service) Update(ctx context.Context, id string, clientID int64, req UpdateRequest) (*domain.Reservation, error) {
	res, err := s.getOwned(ctx, id, clientID)
	if err != nil {
		return nil, err
	}
	if res.Status != domain.ReservationPending {
		return nil, ErrIllegalState
	}

	start, end := res.StartAt, res.EndAt
	if req.StartAt != nil {
		start = req.StartAt.UTC()
	}
	if req.EndAt != nil {
		end = req.EndAt.UTC()
	}

	now := s.now().UTC()
	if err := validateWindow(start, end, now); err != nil {
		return nil, err
	}

	car, err := s.cars.GetByID(ctx, res.CarID)
	if err != nil {
		return nil, err
	}
	cost, err := pricing.Quote(car.DailyRate(), start, end)
	if err != nil {
		return nil, ErrValidation
	}

	if err := res.Reschedule(start, end, cost, now); err != nil {
		return nil, ErrIllegalState
	}
	holdUntil := now.Add(s.holdTTL)
	res.HoldExpiresAt = &holdUntil

	s.locks.Lock(res.CarID)
	defer s.locks.Unlock(res.CarID)

	if err := s.reservations.UpdateWindowIfAvailable(ctx, res, now); err != nil {
		switch {
		case errors.Is(err, repository.ErrWindowTaken):
			return nil, ErrWindowTaken
		case errors.Is(err, domain.ErrInvalidTransition):
			return nil, ErrIllegalState
		}
		return nil, err
	}
	return res, nil
}

// Cancel is the requester's cancellation, legal only while PENDING. An
// APPROVED reservation is cancelled through the payment refund path instead.
func (s *Service) Cancel(ctx context.Context, id string, clientID int64, reason string) error {
	res, err := s.getOwned(ctx, id, clientID)
	if err != nil {
		return err
	}
	now := s.now().UTC()
	changed, err := s.reservations.TransitionStatus(ctx, res.ID,
		domain.ReservationPending, domain.ReservationCancelled, reason, now)
	if err != nil {
		return err
	}
	if !changed {
		return ErrIllegalState
	}
	s.publish(messaging.Event{
		Type:          messaging.EventReservationCancelled,
		ReservationID: res.ID,
		CarID:         res.CarID,
		ClientID:      res.ClientID,
		Reason:        reason,
		OccurredAt:    now,
	})
	return nil
}

// Reject lets the car's owner decline a PENDING request.
func (s *Service) Reject(ctx context.Context, id string, ownerID int64, reason string) error {
	res, err := s.reservations.GetByID(ctx, id)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return ErrNotFound
		}
		return err
	}
	car, err := s.cars.GetByID(ctx, res.CarID)
	if err != nil {
		return err
	}
	if car.OwnerID != ownerID {
		return ErrForbidden
	}

	now := s.now().UTC()
	changed, err := s.reservations.TransitionStatus(ctx, res.ID,
		domain.ReservationPending, domain.ReservationRejected, reason, now)
	if err != nil {
		return err
	}
	if !changed {
		return ErrIllegalState
	}
	s.publish(messaging.Event{
		Type:          messaging.EventReservationRejected,
		ReservationID: res.ID,
		CarID:         res.CarID,
		ClientID:      res.ClientID,
		Reason:        reason,
		OccurredAt:    now,
	})
	return nil
}

// Get returns the reservation to its requester or to the car's owner.
func (s *Service) Get(ctx context.Context, id string, userID int64) (*domain.Reservation, error) {
	res, err := s.reservations.GetByID(ctx, id)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	if res.ClientID == userID {
		return res, nil
	}
	car, err := s.cars.GetByID(ctx, res.CarID)
	if err != nil {
		return nil, err
	}
	if car.OwnerID != userID {
		return nil, ErrForbidden
	}
	return res, nil
}

func (s *Service) ListForClient(ctx context.Context, clientID int64) ([]domain.Reservation, error) {
	return s.reservations.ListByClient(ctx, clientID)
}

// ListForCar is the owner's view of requests against their car.
func (s *Service) ListForCar(ctx context.Context, carID, ownerID int64) ([]domain.Reservation, error) {
	car, err := s.cars.GetByID(ctx, carID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	if car.OwnerID != ownerID {
		return nil, ErrForbidden
	}
	return s.reservations.ListByCar(ctx, carID)
}

func (s *Service) getOwned(ctx context.Context, id string, clientID int64) (*domain.Reservation, error) {
	res, err := s.reservations.GetByID(ctx, id)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	if res.ClientID != clientID {
		return nil, ErrForbidden
	}
	return res, nil
}

func (s *Service) publish(evt messaging.Event) {
	if s.events != nil {
		s.events.Publish(evt)
	}
}

func validateWindow(start, end, now time.Time) error {
	if !start.Before(end) {
		return ErrValidation
	}
	if !start.After(now) {
		return ErrValidation
	}
	return nil
}
