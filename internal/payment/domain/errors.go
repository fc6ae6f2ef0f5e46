package domain

import "errors"

var (
	ErrInvalidSource       = errors.New("invalid_webhook_source")
	ErrInvalidSignature    = errors.New("invalid_signature")
	ErrInvalidPayload      = errors.New("invalid_payload")
	ErrSecretNotConfigured = errors.New("webhook_secret_not_configured")
	ErrEventNotFound       = errors.New("stripe_event_not_found")
	ErrEventInFlight       = errors.New("stripe_event_in_flight")
	ErrMissingMetadata     = errors.New("missing_checkout_metadata")
	ErrGatewayDisabled     = errors.New("stripe_not_configured")

	// Checkout sync failures. The codes travel to the billing page as the
	// error query parameter.
	ErrMissingSession         = errors.New("missing_session")
	ErrMissingCustomer        = errors.New("missing_customer")
	ErrMissingSubscription    = errors.New("missing_subscription")
	ErrMissingProduct         = errors.New("missing_product")
	ErrMissingClientReference = errors.New("missing_client_reference")
	ErrUnknownPlan            = errors.New("unknown_plan")
	ErrPaymentsDisabled       = errors.New("payments_not_enabled")
	ErrInvalidBuyer           = errors.New("invalid_buyer")
)
