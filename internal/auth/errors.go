package auth

import "errors"

var (
	ErrNotFound         = errors.New("auth: not found")
	ErrAlreadyExists    = errors.New("auth: already exists")
	ErrInvalidToken     = errors.New("auth: invalid token")
	ErrTokenExpired     = errors.New("auth: token expired")
	ErrInvalidTokenKind = errors.New("auth: unexpected token kind")
	ErrTokenRevoked     = errors.New("auth: token revoked")
)
