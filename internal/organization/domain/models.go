// Package domain contains persistence models for tenants, their members and platform billing.
package domain

import (
	"time"

	"github.com/bwmarrin/snowflake"
)

const (
	RoleOwner  = "owner"
	RoleAdmin  = "admin"
	RoleMember = "member"
)

// Platform billing statuses for an organization's own market.dev plan.
const (
	BillingStatusInactive  = "inactive"
	BillingStatusActive    = "active"
	BillingStatusPastDue   = "past_due"
	BillingStatusCancelled = "cancelled"

	PlanTypeFree = "free"
)

// Organization is the tenant boundary. It owns tiers, subscriptions, charges
// and one platform billing record.
type Organization struct {
	ID                    snowflake.ID `gorm:"primaryKey" json:"id"`
	Name                  string       `gorm:"type:text;not null" json:"name"`
	Slug                  string       `gorm:"type:text;not null;uniqueIndex:ux_organizations_slug" json:"slug"`
	CustomDomain          *string      `gorm:"type:text;uniqueIndex:ux_organizations_custom_domain" json:"custom_domain,omitempty"`
	StripeAccountID       *string      `gorm:"type:text;uniqueIndex:ux_organizations_stripe_account" json:"stripe_account_id,omitempty"`
	ChargesEnabled        bool         `gorm:"not null;default:false" json:"charges_enabled"`
	PayoutsEnabled        bool         `gorm:"not null;default:false" json:"payouts_enabled"`
	DetailsSubmitted      bool         `gorm:"not null;default:false" json:"details_submitted"`
	AccountDeauthorizedAt *time.Time   `json:"account_deauthorized_at,omitempty"`
	CreatedAt             time.Time    `gorm:"not null" json:"created_at"`
	UpdatedAt             time.Time    `gorm:"not null" json:"updated_at"`
}

func (Organization) TableName() string { return "organizations" }

// CanAcceptPayments reports whether the connected Stripe account can take charges.
func (o Organization) CanAcceptPayments() bool {
	return o.StripeAccountID != nil && *o.StripeAccountID != "" && o.ChargesEnabled && o.AccountDeauthorizedAt == nil
}

type User struct {
	ID        snowflake.ID `gorm:"primaryKey" json:"id"`
	Email     string       `gorm:"type:text;not null;uniqueIndex:ux_users_email" json:"email"`
	Name      string       `gorm:"type:text;not null;default:''" json:"name"`
	GitHubID  *int64       `gorm:"column:github_id;uniqueIndex:ux_users_github_id" json:"github_id,omitempty"`
	IsAdmin   bool         `gorm:"not null;default:false" json:"is_admin"`
	CreatedAt time.Time    `gorm:"not null" json:"created_at"`
	UpdatedAt time.Time    `gorm:"not null" json:"updated_at"`
}

func (User) TableName() string { return "users" }

type Member struct {
	ID        snowflake.ID `gorm:"primaryKey" json:"id"`
	OrgID     snowflake.ID `gorm:"not null;uniqueIndex:ux_org_user,priority:1" json:"org_id"`
	UserID    snowflake.ID `gorm:"not null;index;uniqueIndex:ux_org_user,priority:2" json:"user_id"`
	Role      string       `gorm:"type:text;not null" json:"role"`
	CreatedAt time.Time    `gorm:"not null" json:"created_at"`
}

func (Member) TableName() string { return "organization_members" }

// Billing is the organization's own subscription to the platform.
type Billing struct {
	ID                   snowflake.ID `gorm:"primaryKey" json:"id"`
	OrgID                snowflake.ID `gorm:"not null;uniqueIndex:ux_organization_billings_org" json:"org_id"`
	StripeCustomerID     *string      `gorm:"type:text;uniqueIndex:ux_organization_billings_customer" json:"stripe_customer_id,omitempty"`
	StripeSubscriptionID *string      `gorm:"type:text" json:"stripe_subscription_id,omitempty"`
	PlanType             string       `gorm:"type:text;not null" json:"plan_type"`
	Status               string       `gorm:"type:text;not null" json:"status"`
	CreatedAt            time.Time    `gorm:"not null" json:"created_at"`
	UpdatedAt            time.Time    `gorm:"not null" json:"updated_at"`
}

func (Billing) TableName() string { return "organization_billings" }
