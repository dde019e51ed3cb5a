package repository

import (
	"context"
	"errors"

	"autorent/internal/domain"

	"gorm.io/gorm"
)

type CarRepository struct {
	db *gorm.DB
}

func NewCarRepository(db *gorm.DB) *CarRepository {
	return &CarRepository{db: db}
}

func (r *CarRepository) Create(ctx context.Context, c *domain.Car) error {
	return r.db.WithContext(ctx).Create(c).Error
}

func (r *CarRepository) GetByID(ctx context.Context, id int64) (*domain.Car, error) {
	var c domain.Car
	if err := r.db.WithContext(ctx).First(&c, id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return &c, nil
}

// ListBookable returns the public catalog: validated cars their owners keep
// listed.
func (r *CarRepository) ListBookable(ctx context.Context) ([]domain.Car, error) {
	var cars []domain.Car
	err := r.db.WithContext(ctx).
		Where("is_validated = ? AND is_available = ?", true, true).
		Order("id").
		Find(&cars).Error
	return cars, err
}

func (r *CarRepository) ListByOwner(ctx context.Context, ownerID int64) ([]domain.Car, error) {
	var cars []domain.Car
	err := r.db.WithContext(ctx).
		Where("owner_id = ?", ownerID).
		Order("id").
		Find(&cars).Error
	return cars, err
}

func (r *CarRepository) SetAvailability(ctx context.Context, id int64, available bool) error {
	tx := r.db.WithContext(ctx).Model(&domain.Car{}).
		Where("id = ?", id).
		Update("is_available", available)
	if tx.Error != nil {
		return tx.Error
	}
	if tx.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}

func (r *CarRepository) SetValidated(ctx context.Context, id int64, validated bool) error {
	tx := r.db.WithContext(ctx).Model(&domain.Car{}).
		Where("id = ?", id).
		Update("is_validated", validated)
	if tx.Error != nil {
		return tx.Error
	}
	if tx.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}
