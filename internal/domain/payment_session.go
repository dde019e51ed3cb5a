package domain

import "time"

type PaymentSessionStatus string

const (
	PaymentSessionPending   PaymentSessionStatus = "PENDING"
	PaymentSessionCompleted PaymentSessionStatus = "COMPLETED"
	PaymentSessionFailed    PaymentSessionStatus = "FAILED"
	PaymentSessionRefunded  PaymentSessionStatus = "REFUNDED"
)

// PaymentSession is one attempt to collect payment for a reservation. A
// reservation may accumulate historical FAILED sessions; at most one session
// per reservation ever reaches COMPLETED. Sessions are never deleted.
type PaymentSession struct {
	ID            string `json:"id" gorm:"primaryKey;type:varchar(36)"`
	ReservationID string `json:"reservation_id" gorm:"index;not null"`
	ClientID      int64  `json:"client_id" gorm:"index;not null"`
	AmountCents   int64  `json:"amount_cents" gorm:"not null"`
	Currency      string `json:"currency" gorm:"type:varchar(3)"`
	// ExternalRef is the gateway-side payment intent id; webhook events are
	// matched against it.
	ExternalRef   string               `json:"external_ref" gorm:"uniqueIndex;not null"`
	ClientSecret  string               `json:"-" gorm:"type:text"`
	Status        PaymentSessionStatus `json:"status" gorm:"type:varchar(20);default:'PENDING';index"`
	FailureReason string               `json:"failure_reason,omitempty" gorm:"type:text"`
	LastEventBody string               `json:"-" gorm:"type:text"`
	CompletedAt   *time.Time           `json:"completed_at,omitempty"`
	CreatedAt     time.Time            `json:"created_at"`
	UpdatedAt     time.Time            `json:"updated_at"`
}

func (PaymentSession) TableName() string { return "payment_sessions" }

func (p *PaymentSession) Amount() Money {
	return Money{Cents: p.AmountCents, Currency: p.Currency}
}

func (p *PaymentSession) Terminal() bool {
	return p.Status != PaymentSessionPending
}
