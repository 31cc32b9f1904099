package admin

import "errors"

var (
	ErrInvalidConfig           = errors.New("invalid admin configuration")
	ErrTokenMissing            = errors.New("bearer token missing")
	ErrTokenInvalid            = errors.New("bearer token invalid")
	ErrTokenExpired            = errors.New("bearer token expired")
	ErrUnexpectedSigningMethod = errors.New("unexpected signing method")
	ErrServerNotStarted        = errors.New("admin server not started")
)
