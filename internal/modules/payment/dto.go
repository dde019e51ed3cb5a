package payment

type OpenSessionRequest struct {
	ReservationID string `json:"reservation_id" binding:"required"`
}

// SessionHandle is what the client needs to drive the gateway checkout.
type SessionHandle struct {
	SessionID    string `json:"session_id"`
	ClientSecret string `json:"client_secret"`
	AmountCents  int64  `json:"amount_cents"`
	Amount       string `json:"amount"`
	Currency     string `json:"currency"`
}

type ConfirmRequest struct {
	SessionID string `json:"session_id" binding:"required"`
}
