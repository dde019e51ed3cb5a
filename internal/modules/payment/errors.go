package payment

import "errors"

var (
	ErrNotFound         = errors.New("payment: not found")
	ErrForbidden        = errors.New("payment: forbidden")
	ErrIllegalState     = errors.New("payment: status does not permit this operation")
	ErrAlreadyPaid      = errors.New("payment: reservation already has a completed session")
	ErrPaymentRejected  = errors.New("payment: gateway reports the payment did not succeed")
	ErrGateway          = errors.New("payment: gateway unavailable")
	ErrInvalidSignature = errors.New("payment: invalid webhook signature")
	ErrMalformedPayload = errors.New("payment: malformed webhook payload")
)
