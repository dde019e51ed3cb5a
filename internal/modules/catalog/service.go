package catalog

import (
	"context"
	"errors"
	"log/slog"
	"strings"

	"autorent/internal/domain"
	"autorent/internal/repository"
)

type Service struct {
	cars     CarRepository
	currency string
	log      *slog.Logger
}

func NewService(cars CarRepository, currency string, log *slog.Logger) *Service {
	if log == nil {
		log = slog.Default()
	}
	return &Service{cars: cars, currency: currency, log: log}
}

// Create lists a new car for the owner. It starts unvalidated and stays
// invisible to clients until an admin approves it.
func (s *Service) Create(ctx context.Context, ownerID int64, req CreateCarRequest) (*domain.Car, error) {
	currency := strings.ToUpper(strings.TrimSpace(req.Currency))
	if currency == "" {
		currency = s.currency
	}
	if len(currency) != 3 || req.DailyRateCents <= 0 {
		return nil, ErrValidation
	}

	car := &domain.Car{
		OwnerID:        ownerID,
		Make:           req.Make,
		Model:          req.Model,
		Year:           req.Year,
		Color:          req.Color,
		LicensePlate:   strings.ToUpper(strings.TrimSpace(req.LicensePlate)),
		DailyRateCents: req.DailyRateCents,
		Currency:       currency,
		IsAvailable:    true,
		IsValidated:    false,
	}
	if err := s.cars.Create(ctx, car); err != nil {
		return nil, err
	}
	s.log.Info("car listed", "car_id", car.ID, "owner_id", ownerID)
	return car, nil
}

func (s *Service) Get(ctx context.Context, id int64) (*domain.Car, error) {
	car, err := s.cars.GetByID(ctx, id)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return car, nil
}

func (s *Service) ListBookable(ctx context.Context) ([]domain.Car, error) {
	return s.cars.ListBookable(ctx)
}

func (s *Service) ListForOwner(ctx context.Context, ownerID int64) ([]domain.Car, error) {
	return s.cars.ListByOwner(ctx, ownerID)
}

// SetAvailability lets the owner pull a car from (or return it to) the
// listing. Existing reservations are untouched; only new ones are gated.
func (s *Service) SetAvailability(ctx context.Context, carID, requesterID int64, available bool) (*domain.Car, error) {
	car, err := s.Get(ctx, carID)
	if err != nil {
		return nil, err
	}
	if car.OwnerID != requesterID {
		return nil, ErrForbidden
	}
	if err := s.cars.SetAvailability(ctx, carID, available); err != nil {
		return nil, err
	}
	car.IsAvailable = available
	return car, nil
}

// Validate is the admin gate: unvalidated cars never take reservations.
func (s *Service) Validate(ctx context.Context, carID int64, validated bool) (*domain.Car, error) {
	car, err := s.Get(ctx, carID)
	if err != nil {
		return nil, err
	}
	if err := s.cars.SetValidated(ctx, carID, validated); err != nil {
		return nil, err
	}
	car.IsValidated = validated
	s.log.Info("car validation updated", "car_id", carID, "validated", validated)
	return car, nil
}
