// Package domain contains one-time purchase records.
package domain

import (
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/shopspring/decimal"
)

// Charge records a one-time purchase of a TierVersion. Amount and tier
// references are written once; only RefundedAt may be set afterwards.
type Charge struct {
	ID                    snowflake.ID    `gorm:"primaryKey" json:"id"`
	OrgID                 snowflake.ID    `gorm:"not null;index" json:"org_id"`
	BuyerUserID           snowflake.ID    `gorm:"not null;index" json:"buyer_user_id"`
	TierID                snowflake.ID    `gorm:"not null;index" json:"tier_id"`
	TierVersionID         snowflake.ID    `gorm:"not null;index" json:"tier_version_id"`
	StripeChargeID        *string         `gorm:"type:text;uniqueIndex:ux_charges_stripe_charge" json:"stripe_charge_id,omitempty"`
	StripePaymentIntentID string          `gorm:"type:text;not null;uniqueIndex:ux_charges_payment_intent" json:"stripe_payment_intent_id"`
	Amount                decimal.Decimal `gorm:"type:numeric(12,2);not null" json:"amount"`
	Currency              string          `gorm:"type:text;not null" json:"currency"`
	RefundedAt            *time.Time      `json:"refunded_at,omitempty"`
	CreatedAt             time.Time       `gorm:"not null" json:"created_at"`
}

func (Charge) TableName() string { return "charges" }

func (c Charge) IsRefunded() bool {
	return c.RefundedAt != nil
}
