package auth

import "errors"

// Sentinel kinds for token errors.
var (
	ErrInvalidToken     = errors.New("invalid token")
	ErrExpiredToken     = errors.New("token expired")
	ErrInvalidSignature = errors.New("invalid token signature")
	ErrMissingSecret    = errors.New("jwt secret not configured")
)
