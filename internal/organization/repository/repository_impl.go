package repository

import (
	"context"
	"strings"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/gitwallet/market/internal/organization/domain"
	"gorm.io/gorm"
)

type repo struct{}

func Provide() domain.Repository {
	return &repo{}
}

func (r *repo) Insert(ctx context.Context, db *gorm.DB, org *domain.Organization) error {
	return db.WithContext(ctx).Exec(
		`INSERT INTO organizations (id, name, slug, custom_domain, stripe_account_id,
			charges_enabled, payouts_enabled, details_submitted, created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		org.ID,
		org.Name,
		org.Slug,
		org.CustomDomain,
		org.StripeAccountID,
		org.ChargesEnabled,
		org.PayoutsEnabled,
		org.DetailsSubmitted,
		org.CreatedAt,
		org.UpdatedAt,
	).Error
}

func (r *repo) InsertMember(ctx context.Context, db *gorm.DB, member *domain.Member) error {
	return db.WithContext(ctx).Exec(
		`INSERT INTO organization_members (id, org_id, user_id, role, created_at)
		 VALUES (?, ?, ?, ?, ?)`,
		member.ID,
		member.OrgID,
		member.UserID,
		member.Role,
		member.CreatedAt,
	).Error
}

func (r *repo) InsertBilling(ctx context.Context, db *gorm.DB, billing *domain.Billing) error {
	return db.WithContext(ctx).Exec(
		`INSERT INTO organization_billings (id, org_id, stripe_customer_id, stripe_subscription_id,
			plan_type, status, created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		billing.ID,
		billing.OrgID,
		billing.StripeCustomerID,
		billing.StripeSubscriptionID,
		billing.PlanType,
		billing.Status,
		billing.CreatedAt,
		billing.UpdatedAt,
	).Error
}

func (r *repo) InsertUser(ctx context.Context, db *gorm.DB, user *domain.User) error {
	return db.WithContext(ctx).Exec(
		`INSERT INTO users (id, email, name, github_id, is_admin, created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?)`,
		user.ID,
		user.Email,
		user.Name,
		user.GitHubID,
		user.IsAdmin,
		user.CreatedAt,
		user.UpdatedAt,
	).Error
}

func (r *repo) FindByID(ctx context.Context, db *gorm.DB, id snowflake.ID) (*domain.Organization, error) {
	return r.findOne(ctx, db, `id = ?`, id)
}

func (r *repo) FindBySlug(ctx context.Context, db *gorm.DB, slug string) (*domain.Organization, error) {
	return r.findOne(ctx, db, `slug = ?`, strings.ToLower(strings.TrimSpace(slug)))
}

func (r *repo) FindByCustomDomain(ctx context.Context, db *gorm.DB, host string) (*domain.Organization, error) {
	return r.findOne(ctx, db, `custom_domain = ?`, strings.ToLower(strings.TrimSpace(host)))
}

func (r *repo) findOne(ctx context.Context, db *gorm.DB, where string, arg any) (*domain.Organization, error) {
	var org domain.Organization
	err := db.WithContext(ctx).Raw(
		`SELECT id, name, slug, custom_domain, stripe_account_id, charges_enabled, payouts_enabled,
			details_submitted, account_deauthorized_at, created_at, updated_at
		 FROM organizations
		 WHERE `+where+`
		 LIMIT 1`,
		arg,
	).Scan(&org).Error
	if err != nil {
		return nil, err
	}
	if org.ID == 0 {
		return nil, nil
	}
	return &org, nil
}

func (r *repo) SlugExists(ctx context.Context, db *gorm.DB, slug string) (bool, error) {
	var count int64
	err := db.WithContext(ctx).Raw(
		`SELECT COUNT(1) FROM organizations WHERE slug = ?`,
		slug,
	).Scan(&count).Error
	if err != nil {
		return false, err
	}
	return count > 0, nil
}

func (r *repo) FindUserByID(ctx context.Context, db *gorm.DB, id snowflake.ID) (*domain.User, error) {
	var user domain.User
	err := db.WithContext(ctx).Raw(
		`SELECT id, email, name, github_id, is_admin, created_at, updated_at
		 FROM users
		 WHERE id = ?
		 LIMIT 1`,
		id,
	).Scan(&user).Error
	if err != nil {
		return nil, err
	}
	if user.ID == 0 {
		return nil, nil
	}
	return &user, nil
}

func (r *repo) FindUserByGitHubID(ctx context.Context, db *gorm.DB, githubID int64) (*domain.User, error) {
	var user domain.User
	err := db.WithContext(ctx).Raw(
		`SELECT id, email, name, github_id, is_admin, created_at, updated_at
		 FROM users
		 WHERE github_id = ?
		 LIMIT 1`,
		githubID,
	).Scan(&user).Error
	if err != nil {
		return nil, err
	}
	if user.ID == 0 {
		return nil, nil
	}
	return &user, nil
}

func (r *repo) FindMemberRole(ctx context.Context, db *gorm.DB, orgID, userID snowflake.ID) (string, error) {
	var row struct {
		Role string `gorm:"column:role"`
	}
	err := db.WithContext(ctx).Raw(
		`SELECT role
		 FROM organization_members
		 WHERE org_id = ? AND user_id = ?
		 LIMIT 1`,
		orgID,
		userID,
	).Scan(&row).Error
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(row.Role), nil
}

func (r *repo) UpdateAccountStatus(ctx context.Context, db *gorm.DB, accountID string, status domain.AccountStatus, now time.Time) (int64, error) {
	res := db.WithContext(ctx).Exec(
		`UPDATE organizations
		 SET charges_enabled = ?, payouts_enabled = ?, details_submitted = ?,
			account_deauthorized_at = NULL, updated_at = ?
		 WHERE stripe_account_id = ?`,
		status.ChargesEnabled,
		status.PayoutsEnabled,
		status.DetailsSubmitted,
		now,
		accountID,
	)
	return res.RowsAffected, res.Error
}

func (r *repo) MarkAccountDeauthorized(ctx context.Context, db *gorm.DB, accountID string, at time.Time) (int64, error) {
	res := db.WithContext(ctx).Exec(
		`UPDATE organizations
		 SET charges_enabled = ?, payouts_enabled = ?, account_deauthorized_at = ?, updated_at = ?
		 WHERE stripe_account_id = ?`,
		false,
		false,
		at,
		at,
		accountID,
	)
	return res.RowsAffected, res.Error
}

func (r *repo) FindBillingByOrg(ctx context.Context, db *gorm.DB, orgID snowflake.ID) (*domain.Billing, error) {
	var billing domain.Billing
	err := db.WithContext(ctx).Raw(
		`SELECT id, org_id, stripe_customer_id, stripe_subscription_id, plan_type, status, created_at, updated_at
		 FROM organization_billings
		 WHERE org_id = ?
		 LIMIT 1`,
		orgID,
	).Scan(&billing).Error
	if err != nil {
		return nil, err
	}
	if billing.ID == 0 {
		return nil, nil
	}
	return &billing, nil
}

func (r *repo) UpdateBilling(ctx context.Context, db *gorm.DB, billing *domain.Billing) error {
	return db.WithContext(ctx).Exec(
		`UPDATE organization_billings
		 SET stripe_customer_id = ?, stripe_subscription_id = ?, plan_type = ?, status = ?, updated_at = ?
		 WHERE id = ?`,
		billing.StripeCustomerID,
		billing.StripeSubscriptionID,
		billing.PlanType,
		billing.Status,
		billing.UpdatedAt,
		billing.ID,
	).Error
}

func (r *repo) UpdateBillingStatusByCustomer(ctx context.Context, db *gorm.DB, customerID, status string, now time.Time) (int64, error) {
	res := db.WithContext(ctx).Exec(
		`UPDATE organization_billings
		 SET status = ?, updated_at = ?
		 WHERE stripe_customer_id = ?`,
		status,
		now,
		customerID,
	)
	return res.RowsAffected, res.Error
}
