package reservation

import "errors"

var (
	ErrValidation   = errors.New("reservation: validation error")
	ErrNotFound     = errors.New("reservation: not found")
	ErrForbidden    = errors.New("reservation: forbidden")
	ErrNotBookable  = errors.New("reservation: car is not open for booking")
	ErrWindowTaken  = errors.New("reservation: window conflicts with an existing reservation")
	ErrIllegalState = errors.New("reservation: status does not permit this operation")
)
