package domain

import (
	"context"
	"time"

	"github.com/bwmarrin/snowflake"
	"gorm.io/gorm"
)

// AccountStatus mirrors the capability flags Stripe reports for a connected account.
type AccountStatus struct {
	ChargesEnabled   bool
	PayoutsEnabled   bool
	DetailsSubmitted bool
}

type Repository interface {
	Insert(ctx context.Context, db *gorm.DB, org *Organization) error
	InsertMember(ctx context.Context, db *gorm.DB, member *Member) error
	InsertBilling(ctx context.Context, db *gorm.DB, billing *Billing) error
	InsertUser(ctx context.Context, db *gorm.DB, user *User) error

	FindByID(ctx context.Context, db *gorm.DB, id snowflake.ID) (*Organization, error)
	FindBySlug(ctx context.Context, db *gorm.DB, slug string) (*Organization, error)
	FindByCustomDomain(ctx context.Context, db *gorm.DB, domain string) (*Organization, error)
	SlugExists(ctx context.Context, db *gorm.DB, slug string) (bool, error)

	FindUserByID(ctx context.Context, db *gorm.DB, id snowflake.ID) (*User, error)
	FindUserByGitHubID(ctx context.Context, db *gorm.DB, githubID int64) (*User, error)
	FindMemberRole(ctx context.Context, db *gorm.DB, orgID, userID snowflake.ID) (string, error)

	UpdateAccountStatus(ctx context.Context, db *gorm.DB, accountID string, status AccountStatus, now time.Time) (int64, error)
	MarkAccountDeauthorized(ctx context.Context, db *gorm.DB, accountID string, at time.Time) (int64, error)

	FindBillingByOrg(ctx context.Context, db *gorm.DB, orgID snowflake.ID) (*Billing, error)
	UpdateBilling(ctx context.Context, db *gorm.DB, billing *Billing) error
	UpdateBillingStatusByCustomer(ctx context.Context, db *gorm.DB, customerID, status string, now time.Time) (int64, error)
}
