package authorization

import (
	"context"
	"errors"

	"github.com/bwmarrin/snowflake"
)

var (
	ErrInvalidActor        = errors.New("invalid_actor")
	ErrInvalidOrganization = errors.New("invalid_organization")
	ErrInvalidObject       = errors.New("invalid_object")
	ErrInvalidAction       = errors.New("invalid_action")
	ErrForbidden           = errors.New("forbidden")
)

const (
	ObjectTier         = "tier"
	ObjectSubscription = "subscription"
	ObjectCharge       = "charge"
	ObjectBilling      = "billing"
)

const (
	ActionTierView    = "tier.view"
	ActionTierCreate  = "tier.create"
	ActionTierUpdate  = "tier.update"
	ActionTierArchive = "tier.archive"

	ActionSubscriptionView       = "subscription.view"
	ActionSubscriptionCancel     = "subscription.cancel"
	ActionSubscriptionReactivate = "subscription.reactivate"

	ActionChargeView = "charge.view"

	ActionBillingView   = "billing.view"
	ActionBillingManage = "billing.manage"
)

type Service interface {
	// Authorize checks an org-scoped action for actor ("user:<id>" or "system").
	Authorize(ctx context.Context, actor string, orgID snowflake.ID, object, action string) error
	// AuthorizePlatform allows only platform administrators.
	AuthorizePlatform(ctx context.Context, userID snowflake.ID) error
}
