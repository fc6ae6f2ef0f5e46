package domain

import (
	"context"
	"errors"
)

var (
	ErrInvalidSignature = errors.New("invalid_signature")
	ErrInvalidPayload   = errors.New("invalid_payload")
)

type Service interface {
	// Handle verifies and applies one installation webhook delivery.
	Handle(ctx context.Context, payload []byte, signature string) (Outcome, error)
	Get(ctx context.Context, installationID int64) (*Installation, error)
}
