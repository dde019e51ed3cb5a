package messaging

import "time"

const (
	EventReservationCreated   = "ReservationCreated"
	EventReservationApproved  = "ReservationApproved"
	EventReservationRejected  = "ReservationRejected"
	EventReservationCancelled = "ReservationCancelled"
	EventReservationCompleted = "ReservationCompleted"
	EventPaymentCompleted     = "PaymentCompleted"
	EventPaymentFailed        = "PaymentFailed"
	EventPaymentRefunded      = "PaymentRefunded"
)

// Event is the lifecycle notification published after a state change
// commits. Partition key = ReservationID so one reservation's events keep
// their order.
type Event struct {
	Type          string    `json:"type"`
	ReservationID string    `json:"reservation_id"`
	CarID         int64     `json:"car_id,omitempty"`
	ClientID      int64     `json:"client_id,omitempty"`
	SessionID     string    `json:"session_id,omitempty"`
	AmountCents   int64     `json:"amount_cents,omitempty"`
	Currency      string    `json:"currency,omitempty"`
	Reason        string    `json:"reason,omitempty"`
	OccurredAt    time.Time `json:"occurred_at"`
}

// Publisher is satisfied by the Kafka producer; services treat a nil
// publisher as disabled.
type Publisher interface {
	Publish(evt Event)
}
