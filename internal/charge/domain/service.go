package domain

import (
	"context"
	"errors"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/gitwallet/market/pkg/db/pagination"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

var (
	ErrInvalidOrganization = errors.New("invalid_organization")
	ErrInvalidPayment      = errors.New("invalid_payment_reference")
	ErrInvalidBuyer        = errors.New("invalid_buyer")
	ErrNotFound            = errors.New("charge_not_found")
	ErrTierVersionNotFound = errors.New("tier_version_not_found")
)

// CheckoutPayment is a completed one-time checkout tagged with the
// TierVersion it sold.
type CheckoutPayment struct {
	OrgID                 snowflake.ID
	BuyerUserID           snowflake.ID
	TierVersionID         snowflake.ID
	StripePaymentIntentID string
	StripeChargeID        string
	Amount                decimal.Decimal
	Currency              string
}

// Refund identifies a charge by Stripe charge id, payment intent, or both.
type Refund struct {
	StripeChargeID        string
	StripePaymentIntentID string
	RefundedAt            time.Time
}

type ListRequest struct {
	OrgID       snowflake.ID
	BuyerUserID snowflake.ID
	pagination.Pagination
}

type ListResponse struct {
	pagination.PageInfo
	Charges []Charge `json:"charges"`
}

type Service interface {
	RecordFromCheckout(ctx context.Context, tx *gorm.DB, req CheckoutPayment) (*Charge, bool, error)
	MarkRefunded(ctx context.Context, tx *gorm.DB, req Refund) (*Charge, error)
	List(ctx context.Context, req ListRequest) (ListResponse, error)
}
