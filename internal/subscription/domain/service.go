package domain

import (
	"context"
	"errors"

	"github.com/bwmarrin/snowflake"
	"github.com/gitwallet/market/pkg/db/pagination"
	"gorm.io/gorm"
)

var (
	ErrInvalidOrganization = errors.New("invalid_organization")
	ErrInvalidSubscription = errors.New("invalid_subscription")
	ErrInvalidBuyer        = errors.New("invalid_buyer")
	ErrNotFound            = errors.New("subscription_not_found")
	ErrTierVersionNotFound = errors.New("tier_version_not_found")
	ErrNotCancellable      = errors.New("subscription_not_cancellable")
	ErrNotReactivatable    = errors.New("subscription_not_reactivatable")
	ErrAccountNotConnected = errors.New("stripe_account_not_connected")
)

// CreateFromStripeRequest describes a vendor subscription created by a
// checkout that was tagged with a TierVersion.
type CreateFromStripeRequest struct {
	OrgID                snowflake.ID
	BuyerUserID          snowflake.ID
	TierVersionID        snowflake.ID
	StripeSubscriptionID string
	Snapshot             VendorSnapshot
}

type ListRequest struct {
	OrgID       snowflake.ID
	TierID      snowflake.ID
	BuyerUserID snowflake.ID
	State       State
	pagination.Pagination
}

type ListResponse struct {
	pagination.PageInfo
	Subscriptions []Subscription `json:"subscriptions"`
}

type Service interface {
	// Webhook-driven operations run on the caller's transaction.
	CreateFromStripe(ctx context.Context, tx *gorm.DB, req CreateFromStripeRequest) (*Subscription, bool, error)
	SyncFromStripe(ctx context.Context, tx *gorm.DB, stripeSubscriptionID string, snapshot VendorSnapshot) (*Subscription, error)
	MarkDeleted(ctx context.Context, tx *gorm.DB, stripeSubscriptionID string, snapshot VendorSnapshot) (*Subscription, error)

	Cancel(ctx context.Context, orgID, id snowflake.ID) (*Subscription, error)
	Reactivate(ctx context.Context, orgID, id snowflake.ID) (*Subscription, error)
	Get(ctx context.Context, orgID, id snowflake.ID) (*Subscription, error)
	List(ctx context.Context, req ListRequest) (ListResponse, error)
	CountActiveByTier(ctx context.Context, tierID snowflake.ID) (int64, error)
}
