package repository

import (
	"context"
	"errors"
	"time"

	"autorent/internal/domain"

	"github.com/jackc/pgx/v5/pgconn"
	"gorm.io/gorm"
)

// ErrWindowTaken reports that the requested window overlaps an active claim
// on the same car, whether caught by the pre-insert query or by the Postgres
// exclusion constraint.
var ErrWindowTaken = errors.New("repository: reservation window overlaps an active claim")

// HoldExpiredReason is recorded on PENDING reservations cancelled because
// their checkout was abandoned past the hold deadline.
const HoldExpiredReason = "pending hold expired"

// activeClaimClause matches reservations that count toward overlap
// detection: APPROVED and COMPLETED always, PENDING while its hold is live.
const activeClaimClause = `status IN ('APPROVED', 'COMPLETED')
	OR (status = 'PENDING' AND (hold_expires_at IS NULL OR hold_expires_at > ?))`

type ReservationRepository struct {
	db *gorm.DB
}

func NewReservationRepository(db *gorm.DB) *ReservationRepository {
	return &ReservationRepository{db: db}
}

func (r *ReservationRepository) GetByID(ctx context.Context, id string) (*domain.Reservation, error) {
	var res domain.Reservation
	err := r.db.WithContext(ctx).Where("id = ?", id).First(&res).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return &res, nil
}

func (r *ReservationRepository) ListByClient(ctx context.Context, clientID int64) ([]domain.Reservation, error) {
	var out []domain.Reservation
	err := r.db.WithContext(ctx).
		Where("client_id = ?", clientID).
		Order("created_at DESC").
		Find(&out).Error
	return out, err
}

func (r *ReservationRepository) ListByCar(ctx context.Context, carID int64) ([]domain.Reservation, error) {
	var out []domain.Reservation
	err := r.db.WithContext(ctx).
		Where("car_id = ?", carID).
		Order("start_at").
		Find(&out).Error
	return out, err
}

// HasActiveOverlap reports whether the half-open [start, end) window
// conflicts with an active claim on the car. excludeID lets an update
// revalidate without conflicting with itself.
func (r *ReservationRepository) HasActiveOverlap(ctx context.Context, carID int64, start, end time.Time, excludeID string, now time.Time) (bool, error) {
	return hasActiveOverlap(r.db.WithContext(ctx), carID, start, end, excludeID, now)
}

func hasActiveOverlap(db *gorm.DB, carID int64, start, end time.Time, excludeID string, now time.Time) (bool, error) {
	var cnt int64
	q := db.Model(&domain.Reservation{}).
		Where("car_id = ?", carID).
		Where("start_at < ? AND end_at > ?", end, start).
		Where(activeClaimClause, now)
	if excludeID != "" {
		q = q.Where("id <> ?", excludeID)
	}
	if err := q.Count(&cnt).Error; err != nil {
		return false, err
	}
	return cnt > 0, nil
}

// CreateIfAvailable runs the expire-stale, overlap-check, insert sequence in
// one transaction. Stale PENDING holds on the car are released first so an
// abandoned checkout cannot block the slot (or trip the exclusion
// constraint) until the sweeper gets to it.
func (r *ReservationRepository) CreateIfAvailable(ctx context.Context, res *domain.Reservation, now time.Time) error {
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := expireStaleForCar(tx, res.CarID, now); err != nil {
			return err
		}
		taken, err := hasActiveOverlap(tx, res.CarID, res.StartAt, res.EndAt, "", now)
		if err != nil {
			return err
		}
		if taken {
			return ErrWindowTaken
		}
		return tx.Create(res).Error
	})
	if isOverlapViolation(err) {
		return ErrWindowTaken
	}
	return err
}

// UpdateWindowIfAvailable persists a rescheduled PENDING reservation after
// revalidating the new window against every other active claim. The guarded
// WHERE keeps a racing payment webhook from losing its APPROVED transition.
func (r *ReservationRepository) UpdateWindowIfAvailable(ctx context.Context, res *domain.Reservation, now time.Time) error {
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		taken, err := hasActiveOverlap(tx, res.CarID, res.StartAt, res.EndAt, res.ID, now)
		if err != nil {
			return err
		}
		if taken {
			return ErrWindowTaken
		}
		upd := tx.Model(&domain.Reservation{}).
			Where("id = ? AND status = ?", res.ID, domain.ReservationPending).
			Updates(map[string]any{
				"start_at":        res.StartAt,
				"end_at":          res.EndAt,
				"cost_cents":      res.CostCents,
				"currency":        res.Currency,
				"hold_expires_at": res.HoldExpiresAt,
				"updated_at":      now.UTC(),
			})
		if upd.Error != nil {
			return upd.Error
		}
		if upd.RowsAffected == 0 {
			return domain.ErrInvalidTransition
		}
		return nil
	})
	if isOverlapViolation(err) {
		return ErrWindowTaken
	}
	return err
}

// TransitionStatus applies from -> to as a single guarded UPDATE and reports
// whether the row actually moved. A false return with no error means another
// writer got there first; callers decide whether that is an idempotent
// success or a conflict.
func (r *ReservationRepository) TransitionStatus(ctx context.Context, id string, from, to domain.ReservationStatus, reason string, now time.Time) (bool, error) {
	updates := map[string]any{
		"status":     to,
		"updated_at": now.UTC(),
	}
	if reason != "" {
		updates["cancel_reason"] = reason
	}
	tx := r.db.WithContext(ctx).Model(&domain.Reservation{}).
		Where("id = ? AND status = ?", id, from).
		Updates(updates)
	if tx.Error != nil {
		return false, tx.Error
	}
	return tx.RowsAffected > 0, nil
}

// ClearHold removes the hold deadline of a PENDING reservation once a
// payment session is open; the claim then stands until the session reaches a
// terminal status.
func (r *ReservationRepository) ClearHold(ctx context.Context, id string, now time.Time) error {
	return r.db.WithContext(ctx).Model(&domain.Reservation{}).
		Where("id = ? AND status = ?", id, domain.ReservationPending).
		Updates(map[string]any{"hold_expires_at": nil, "updated_at": now.UTC()}).Error
}

// ResetHold re-arms the hold deadline of a PENDING reservation after its
// payment attempt failed, so an abandoned retry releases the slot again.
func (r *ReservationRepository) ResetHold(ctx context.Context, id string, until, now time.Time) error {
	return r.db.WithContext(ctx).Model(&domain.Reservation{}).
		Where("id = ? AND status = ?", id, domain.ReservationPending).
		Updates(map[string]any{"hold_expires_at": until.UTC(), "updated_at": now.UTC()}).Error
}

func expireStaleForCar(db *gorm.DB, carID int64, now time.Time) error {
	return db.Model(&domain.Reservation{}).
		Where("car_id = ? AND status = ? AND hold_expires_at IS NOT NULL AND hold_expires_at <= ?",
			carID, domain.ReservationPending, now).
		Updates(map[string]any{
			"status":        domain.ReservationCancelled,
			"cancel_reason": HoldExpiredReason,
			"updated_at":    now.UTC(),
		}).Error
}

// ExpireStaleHolds is the sweeper's pass over every car.
func (r *ReservationRepository) ExpireStaleHolds(ctx context.Context, now time.Time) (int64, error) {
	tx := r.db.WithContext(ctx).Model(&domain.Reservation{}).
		Where("status = ? AND hold_expires_at IS NOT NULL AND hold_expires_at <= ?",
			domain.ReservationPending, now).
		Updates(map[string]any{
			"status":        domain.ReservationCancelled,
			"cancel_reason": HoldExpiredReason,
			"updated_at":    now.UTC(),
		})
	return tx.RowsAffected, tx.Error
}

// CompleteElapsed finishes APPROVED reservations whose window has passed.
func (r *ReservationRepository) CompleteElapsed(ctx context.Context, now time.Time) (int64, error) {
	tx := r.db.WithContext(ctx).Model(&domain.Reservation{}).
		Where("status = ? AND end_at <= ?", domain.ReservationApproved, now).
		Updates(map[string]any{
			"status":     domain.ReservationCompleted,
			"updated_at": now.UTC(),
		})
	return tx.RowsAffected, tx.Error
}

// isOverlapViolation recognizes the reservations_no_overlap exclusion
// constraint (23P01) so a race that slips past the pre-insert check still
// surfaces as a window conflict, not an internal error.
func isOverlapViolation(err error) bool {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code == "23P01" && pgErr.ConstraintName == "reservations_no_overlap"
	}
	return false
}
