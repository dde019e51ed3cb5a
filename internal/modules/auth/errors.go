package auth

import "errors"

var (
	ErrEmailTaken         = errors.New("auth: email already registered")
	ErrInvalidCredentials = errors.New("auth: invalid email or password")
	ErrInvalidRole        = errors.New("auth: invalid role")
)
