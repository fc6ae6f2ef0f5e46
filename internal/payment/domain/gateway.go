package domain

import (
	"context"

	"github.com/shopspring/decimal"
	"github.com/stripe/stripe-go/v82"
)

// CheckoutSession is the reconciled view of a vendor checkout session.
type CheckoutSession struct {
	ID                 string
	URL                string
	Mode               string
	PaymentStatus      string
	ClientReferenceID  string
	CustomerID         string
	SubscriptionID     string
	SubscriptionStatus string
	PaymentIntentID    string
	ProductIDs         []string
	AmountTotal        int64
	Currency           string
	Metadata           map[string]string
}

type CheckoutRequest struct {
	AccountID             string
	Recurring             bool
	PriceID               string
	ProductName           string
	Amount                decimal.Decimal
	Currency              string
	Interval              string
	SuccessURL            string
	CancelURL             string
	ClientReferenceID     string
	CustomerEmail         string
	Metadata              map[string]string
	ApplicationFeePercent float64
}

// CheckoutGateway reads and opens vendor checkout sessions.
type CheckoutGateway interface {
	GetCheckoutSession(ctx context.Context, sessionID string) (*CheckoutSession, error)
	CreateCheckoutSession(ctx context.Context, req CheckoutRequest) (*CheckoutSession, error)
}

// EventVerifier authenticates a raw webhook body against the secret of its
// source and decodes it.
type EventVerifier interface {
	Verify(source string, payload []byte, signature string) (stripe.Event, error)
}
