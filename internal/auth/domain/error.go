package domain

import "errors"

var (
	ErrMissingToken        = errors.New("missing_session")
	ErrInvalidToken        = errors.New("invalid_session")
	ErrTokenExpired        = errors.New("session_expired")
	ErrSecretNotConfigured = errors.New("session_secret_not_configured")
	ErrUnknownUser         = errors.New("session_user_not_found")
)
