package domain

import (
	"context"
	"time"

	"github.com/bwmarrin/snowflake"
	"gorm.io/gorm"
)

type ListFilter struct {
	OrgID       snowflake.ID
	TierID      snowflake.ID
	BuyerUserID snowflake.ID
	State       State
	AfterID     snowflake.ID
	Limit       int
}

type Repository interface {
	Insert(ctx context.Context, db *gorm.DB, sub *Subscription) error
	UpdateState(ctx context.Context, db *gorm.DB, sub *Subscription) error
	FindByID(ctx context.Context, db *gorm.DB, orgID, id snowflake.ID) (*Subscription, error)
	FindByStripeID(ctx context.Context, db *gorm.DB, stripeSubscriptionID string) (*Subscription, error)
	List(ctx context.Context, db *gorm.DB, filter ListFilter) ([]Subscription, error)
	// CountActiveByTier counts subscriptions that are renewing or still
	// inside their paid period at now.
	CountActiveByTier(ctx context.Context, db *gorm.DB, tierID snowflake.ID, now time.Time) (int64, error)
}
