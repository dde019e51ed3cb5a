package catalog

import "errors"

var (
	ErrValidation = errors.New("catalog: invalid car data")
	ErrNotFound   = errors.New("catalog: car not found")
	ErrForbidden  = errors.New("catalog: requester may not manage this car")
)
