package domain

import (
	"context"
	"time"

	"github.com/bwmarrin/snowflake"
	"gorm.io/gorm"
)

type ListFilter struct {
	OrgID       snowflake.ID
	BuyerUserID snowflake.ID
	AfterID     snowflake.ID
	Limit       int
}

type Repository interface {
	Insert(ctx context.Context, db *gorm.DB, charge *Charge) error
	FindByPaymentIntent(ctx context.Context, db *gorm.DB, paymentIntentID string) (*Charge, error)
	FindByStripeCharge(ctx context.Context, db *gorm.DB, stripeChargeID string) (*Charge, error)
	// MarkRefunded sets refunded_at only when it is still empty and fills in
	// the Stripe charge id if it was not known at checkout.
	MarkRefunded(ctx context.Context, db *gorm.DB, id snowflake.ID, stripeChargeID string, at time.Time) (int64, error)
	List(ctx context.Context, db *gorm.DB, filter ListFilter) ([]Charge, error)
}
