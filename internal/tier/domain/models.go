// Package domain contains persistence models for sellable tiers and their pinned versions.
package domain

import (
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/shopspring/decimal"
	"gorm.io/datatypes"
)

// Cadence is how often a tier bills.
type Cadence string

const (
	CadenceMonth Cadence = "month"
	CadenceYear  Cadence = "year"
	CadenceOnce  Cadence = "once"
)

func (c Cadence) Valid() bool {
	switch c {
	case CadenceMonth, CadenceYear, CadenceOnce:
		return true
	default:
		return false
	}
}

// Recurring reports whether purchases of this cadence create subscriptions
// rather than one-time charges.
func (c Cadence) Recurring() bool {
	return c == CadenceMonth || c == CadenceYear
}

// Tier is the live, editable offering shown on an organization's site.
type Tier struct {
	ID               snowflake.ID                `gorm:"primaryKey" json:"id"`
	OrgID            snowflake.ID                `gorm:"not null;index" json:"org_id"`
	Name             string                      `gorm:"type:text;not null" json:"name"`
	Description      string                      `gorm:"type:text;not null;default:''" json:"description"`
	Price            decimal.Decimal             `gorm:"type:numeric(12,2);not null" json:"price"`
	Currency         string                      `gorm:"type:text;not null" json:"currency"`
	Cadence          Cadence                     `gorm:"type:text;not null" json:"cadence"`
	Features         datatypes.JSONSlice[string] `gorm:"type:jsonb" json:"features"`
	CurrentVersionID *snowflake.ID               `json:"current_version_id,omitempty"`
	StripeProductID  *string                     `gorm:"type:text" json:"stripe_product_id,omitempty"`
	ArchivedAt       *time.Time                  `json:"archived_at,omitempty"`
	CreatedAt        time.Time                   `gorm:"not null" json:"created_at"`
	UpdatedAt        time.Time                   `gorm:"not null" json:"updated_at"`
}

func (Tier) TableName() string { return "tiers" }

// TierVersion pins the commercial terms of a tier at one revision. Rows are
// never updated once a subscription or charge references them.
type TierVersion struct {
	ID            snowflake.ID                `gorm:"primaryKey" json:"id"`
	OrgID         snowflake.ID                `gorm:"not null;index" json:"org_id"`
	TierID        snowflake.ID                `gorm:"not null;uniqueIndex:ux_tier_versions_revision,priority:1" json:"tier_id"`
	Revision      int                         `gorm:"not null;uniqueIndex:ux_tier_versions_revision,priority:2" json:"revision"`
	Price         decimal.Decimal             `gorm:"type:numeric(12,2);not null" json:"price"`
	Currency      string                      `gorm:"type:text;not null" json:"currency"`
	Cadence       Cadence                     `gorm:"type:text;not null" json:"cadence"`
	Features      datatypes.JSONSlice[string] `gorm:"type:jsonb" json:"features"`
	StripePriceID *string                     `gorm:"type:text" json:"stripe_price_id,omitempty"`
	CreatedAt     time.Time                   `gorm:"not null" json:"created_at"`
}

func (TierVersion) TableName() string { return "tier_versions" }
