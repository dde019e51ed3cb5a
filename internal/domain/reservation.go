package domain

import (
	"errors"
	"time"
)

type ReservationStatus string

const (
	ReservationPending   ReservationStatus = "PENDING"
	ReservationApproved  ReservationStatus = "APPROVED"
	ReservationRejected  ReservationStatus = "REJECTED"
	ReservationCancelled ReservationStatus = "CANCELLED"
	ReservationCompleted ReservationStatus = "COMPLETED"
)

// ErrInvalidTransition is returned by every transition method when the
// current status does not permit it. Callers map it to a conflict.
var ErrInvalidTransition = errors.New("reservation: invalid status transition")

// Reservation is a client's claim on a car for a half-open [StartAt, EndAt)
// window. Terminal statuses are REJECTED, CANCELLED and COMPLETED; no
// mutation is permitted past a terminal status.
type Reservation struct {
	ID           string            `json:"id" gorm:"primaryKey;type:varchar(36)"`
	CarID        int64             `json:"car_id" gorm:"index;not null"`
	ClientID     int64             `json:"client_id" gorm:"index;not null"`
	StartAt      time.Time         `json:"start_at" gorm:"not null"`
	EndAt        time.Time         `json:"end_at" gorm:"not null"`
	CostCents    int64             `json:"cost_cents" gorm:"not null"`
	Currency     string            `json:"currency" gorm:"type:varchar(3)"`
	Status       ReservationStatus `json:"status" gorm:"type:varchar(20);default:'PENDING';index"`
	CancelReason string            `json:"cancel_reason,omitempty" gorm:"type:text"`
	// HoldExpiresAt bounds how long a PENDING reservation with no payment
	// session keeps its calendar claim. NULL means the hold does not expire
	// (a payment session is in flight).
	HoldExpiresAt *time.Time `json:"hold_expires_at,omitempty" gorm:"index"`
	CreatedAt     time.Time  `json:"created_at"`
	UpdatedAt     time.Time  `json:"updated_at"`
}

func (Reservation) TableName() string { return "reservations" }

func (r *Reservation) Cost() Money {
	return Money{Cents: r.CostCents, Currency: r.Currency}
}

func (r *Reservation) Terminal() bool {
	switch r.Status {
	case ReservationRejected, ReservationCancelled, ReservationCompleted:
		return true
	}
	return false
}

// ActiveClaimAt reports whether the reservation counts toward overlap
// detection at the given instant. APPROVED and COMPLETED always claim the
// calendar; PENDING claims it only while its hold is live.
func (r *Reservation) ActiveClaimAt(now time.Time) bool {
	switch r.Status {
	case ReservationApproved, ReservationCompleted:
		return true
	case ReservationPending:
		return r.HoldExpiresAt == nil || r.HoldExpiresAt.After(now)
	}
	return false
}

// Reschedule moves a PENDING reservation to a new window with a recomputed
// cost. The caller revalidates availability before persisting.
func (r *Reservation) Reschedule(start, end time.Time, cost Money, now time.Time) error {
	if r.Status != ReservationPending {
		return ErrInvalidTransition
	}
	r.StartAt = start
	r.EndAt = end
	r.CostCents = cost.Cents
	r.Currency = cost.Currency
	r.UpdatedAt = now.UTC()
	return nil
}

func (r *Reservation) Approve(now time.Time) error {
	if r.Status != ReservationPending {
		return ErrInvalidTransition
	}
	r.Status = ReservationApproved
	r.UpdatedAt = now.UTC()
	return nil
}

func (r *Reservation) Reject(reason string, now time.Time) error {
	if r.Status != ReservationPending {
		return ErrInvalidTransition
	}
	r.Status = ReservationRejected
	r.CancelReason = reason
	r.UpdatedAt = now.UTC()
	return nil
}

// Cancel covers the client cancellation of a PENDING reservation and the
// refund/admin cancellation of an APPROVED one.
func (r *Reservation) Cancel(reason string, now time.Time) error {
	switch r.Status {
	case ReservationPending, ReservationApproved:
	default:
		return ErrInvalidTransition
	}
	r.Status = ReservationCancelled
	r.CancelReason = reason
	r.UpdatedAt = now.UTC()
	return nil
}

func (r *Reservation) Complete(now time.Time) error {
	if r.Status != ReservationApproved {
		return ErrInvalidTransition
	}
	r.Status = ReservationCompleted
	r.UpdatedAt = now.UTC()
	return nil
}
