package repository

import (
	"context"
	"errors"
	"time"

	"autorent/internal/domain"

	"gorm.io/gorm"
)

type PaymentSessionRepository struct {
	db *gorm.DB
}

func NewPaymentSessionRepository(db *gorm.DB) *PaymentSessionRepository {
	return &PaymentSessionRepository{db: db}
}

func (r *PaymentSessionRepository) Create(ctx context.Context, p *domain.PaymentSession) error {
	return r.db.WithContext(ctx).Create(p).Error
}

func (r *PaymentSessionRepository) GetByID(ctx context.Context, id string) (*domain.PaymentSession, error) {
	var p domain.PaymentSession
	err := r.db.WithContext(ctx).Where("id = ?", id).First(&p).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return &p, nil
}

func (r *PaymentSessionRepository) GetByExternalRef(ctx context.Context, ref string) (*domain.PaymentSession, error) {
	var p domain.PaymentSession
	err := r.db.WithContext(ctx).Where("external_ref = ?", ref).First(&p).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return &p, nil
}

// GetOpenByReservation returns the reservation's still-PENDING session, if
// any. At most one session per reservation is open at a time.
func (r *PaymentSessionRepository) GetOpenByReservation(ctx context.Context, reservationID string) (*domain.PaymentSession, error) {
	var p domain.PaymentSession
	err := r.db.WithContext(ctx).
		Where("reservation_id = ? AND status = ?", reservationID, domain.PaymentSessionPending).
		Order("created_at DESC").
		First(&p).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return &p, nil
}

func (r *PaymentSessionRepository) HasCompletedForReservation(ctx context.Context, reservationID string) (bool, error) {
	var cnt int64
	err := r.db.WithContext(ctx).Model(&domain.PaymentSession{}).
		Where("reservation_id = ? AND status = ?", reservationID, domain.PaymentSessionCompleted).
		Count(&cnt).Error
	return cnt > 0, err
}

func (r *PaymentSessionRepository) ListByClient(ctx context.Context, clientID int64) ([]domain.PaymentSession, error) {
	var out []domain.PaymentSession
	err := r.db.WithContext(ctx).
		Where("client_id = ?", clientID).
		Order("created_at DESC").
		Find(&out).Error
	return out, err
}

// MarkCompleted is the at-most-once COMPLETED transition: a single guarded
// UPDATE that moves only PENDING or FAILED sessions (a retried intent may
// succeed after an earlier failure event). A false return means the session
// was already COMPLETED or REFUNDED; duplicate success deliveries land here
// and are silent no-ops.
func (r *PaymentSessionRepository) MarkCompleted(ctx context.Context, id, eventBody string, now time.Time) (bool, error) {
	at := now.UTC()
	tx := r.db.WithContext(ctx).Model(&domain.PaymentSession{}).
		Where("id = ? AND status IN ?", id,
			[]domain.PaymentSessionStatus{domain.PaymentSessionPending, domain.PaymentSessionFailed}).
		Updates(map[string]any{
			"status":          domain.PaymentSessionCompleted,
			"completed_at":    at,
			"last_event_body": eventBody,
			"failure_reason":  "",
			"updated_at":      at,
		})
	if tx.Error != nil {
		return false, tx.Error
	}
	return tx.RowsAffected > 0, nil
}

// MarkFailed moves an open session to FAILED. Terminal sessions are left
// untouched so a late failure event cannot clobber a completed payment.
func (r *PaymentSessionRepository) MarkFailed(ctx context.Context, id, reason, eventBody string, now time.Time) (bool, error) {
	tx := r.db.WithContext(ctx).Model(&domain.PaymentSession{}).
		Where("id = ? AND status = ?", id, domain.PaymentSessionPending).
		Updates(map[string]any{
			"status":          domain.PaymentSessionFailed,
			"failure_reason":  reason,
			"last_event_body": eventBody,
			"updated_at":      now.UTC(),
		})
	if tx.Error != nil {
		return false, tx.Error
	}
	return tx.RowsAffected > 0, nil
}

// MarkRefunded moves a COMPLETED session to REFUNDED.
func (r *PaymentSessionRepository) MarkRefunded(ctx context.Context, id, eventBody string, now time.Time) (bool, error) {
	tx := r.db.WithContext(ctx).Model(&domain.PaymentSession{}).
		Where("id = ? AND status = ?", id, domain.PaymentSessionCompleted).
		Updates(map[string]any{
			"status":          domain.PaymentSessionRefunded,
			"last_event_body": eventBody,
			"updated_at":      now.UTC(),
		})
	if tx.Error != nil {
		return false, tx.Error
	}
	return tx.RowsAffected > 0, nil
}
