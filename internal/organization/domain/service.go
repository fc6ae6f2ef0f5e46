package domain

import (
	"context"
	"errors"

	"github.com/bwmarrin/snowflake"
	"gorm.io/gorm"
)

var (
	ErrInvalidName      = errors.New("invalid_name")
	ErrInvalidUser      = errors.New("invalid_user")
	ErrInvalidHost      = errors.New("invalid_host")
	ErrNotFound         = errors.New("organization_not_found")
	ErrUserNotFound     = errors.New("user_not_found")
	ErrBillingNotFound  = errors.New("billing_record_not_found")
	ErrAccountNotFound  = errors.New("connected_account_not_found")
	ErrNotMember        = errors.New("not_a_member")
	ErrInvalidBillingID = errors.New("invalid_billing_customer")
)

type CreateRequest struct {
	Name        string
	OwnerUserID snowflake.ID
}

// BillingSync is the platform plan state reconciled from a completed checkout.
type BillingSync struct {
	OrgID                snowflake.ID
	StripeCustomerID     string
	StripeSubscriptionID string
	PlanType             string
	Status               string
}

type Service interface {
	Create(ctx context.Context, req CreateRequest) (*Organization, error)
	GetByID(ctx context.Context, id snowflake.ID) (*Organization, error)
	GetBySlug(ctx context.Context, slug string) (*Organization, error)
	ResolveHost(ctx context.Context, host string) (*Organization, error)

	CreateUser(ctx context.Context, user *User) error
	GetUser(ctx context.Context, id snowflake.ID) (*User, error)
	GetUserByGitHubID(ctx context.Context, githubID int64) (*User, error)
	MemberRole(ctx context.Context, orgID, userID snowflake.ID) (string, error)
	FindBillingByOrg(ctx context.Context, orgID snowflake.ID) (*Billing, error)

	// The methods below run on the caller's transaction so webhook
	// handlers can apply them atomically with the event claim.
	UpdateAccountStatus(ctx context.Context, tx *gorm.DB, accountID string, status AccountStatus) error
	MarkAccountDeauthorized(ctx context.Context, tx *gorm.DB, accountID string) error
	SyncBilling(ctx context.Context, tx *gorm.DB, req BillingSync) (*Billing, error)
	UpdateBillingStatusByCustomer(ctx context.Context, tx *gorm.DB, customerID, status string) error
}
