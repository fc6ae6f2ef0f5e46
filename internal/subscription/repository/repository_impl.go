package repository

import (
	"context"
	"time"

	"github.com/bwmarrin/snowflake"
	subscriptiondomain "github.com/gitwallet/market/internal/subscription/domain"
	"gorm.io/gorm"
)

type repo struct{}

func Provide() subscriptiondomain.Repository {
	return &repo{}
}

const selectColumns = `SELECT id, org_id, buyer_user_id, tier_id, tier_version_id, stripe_subscription_id,
	stripe_customer_id, state, active_until, ended_at, created_at, updated_at
	FROM subscriptions`

func (r *repo) Insert(ctx context.Context, db *gorm.DB, sub *subscriptiondomain.Subscription) error {
	return db.WithContext(ctx).Exec(
		`INSERT INTO subscriptions (
			id, org_id, buyer_user_id, tier_id, tier_version_id, stripe_subscription_id,
			stripe_customer_id, state, active_until, ended_at, created_at, updated_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		sub.ID,
		sub.OrgID,
		sub.BuyerUserID,
		sub.TierID,
		sub.TierVersionID,
		sub.StripeSubscriptionID,
		sub.StripeCustomerID,
		sub.State,
		sub.ActiveUntil,
		sub.EndedAt,
		sub.CreatedAt,
		sub.UpdatedAt,
	).Error
}

// UpdateState writes the vendor-driven fields. The TierVersion reference is
// fixed at creation and never rewritten.
func (r *repo) UpdateState(ctx context.Context, db *gorm.DB, sub *subscriptiondomain.Subscription) error {
	return db.WithContext(ctx).Exec(
		`UPDATE subscriptions
		SET state = ?, active_until = ?, ended_at = ?, stripe_customer_id = ?, updated_at = ?
		WHERE id = ?`,
		sub.State,
		sub.ActiveUntil,
		sub.EndedAt,
		sub.StripeCustomerID,
		sub.UpdatedAt,
		sub.ID,
	).Error
}

func (r *repo) FindByID(ctx context.Context, db *gorm.DB, orgID, id snowflake.ID) (*subscriptiondomain.Subscription, error) {
	var sub subscriptiondomain.Subscription
	err := db.WithContext(ctx).Raw(
		selectColumns+` WHERE org_id = ? AND id = ? LIMIT 1`,
		orgID,
		id,
	).Scan(&sub).Error
	if err != nil {
		return nil, err
	}
	if sub.ID == 0 {
		return nil, nil
	}
	return &sub, nil
}

func (r *repo) FindByStripeID(ctx context.Context, db *gorm.DB, stripeSubscriptionID string) (*subscriptiondomain.Subscription, error) {
	var sub subscriptiondomain.Subscription
	err := db.WithContext(ctx).Raw(
		selectColumns+` WHERE stripe_subscription_id = ? LIMIT 1`,
		stripeSubscriptionID,
	).Scan(&sub).Error
	if err != nil {
		return nil, err
	}
	if sub.ID == 0 {
		return nil, nil
	}
	return &sub, nil
}

func (r *repo) List(ctx context.Context, db *gorm.DB, filter subscriptiondomain.ListFilter) ([]subscriptiondomain.Subscription, error) {
	query := selectColumns + ` WHERE org_id = ?`
	args := []any{filter.OrgID}

	if filter.TierID != 0 {
		query += ` AND tier_id = ?`
		args = append(args, filter.TierID)
	}
	if filter.BuyerUserID != 0 {
		query += ` AND buyer_user_id = ?`
		args = append(args, filter.BuyerUserID)
	}
	if filter.State != "" {
		query += ` AND state = ?`
		args = append(args, filter.State)
	}
	if filter.AfterID != 0 {
		query += ` AND id < ?`
		args = append(args, filter.AfterID)
	}
	query += ` ORDER BY id DESC`
	if filter.Limit > 0 {
		query += ` LIMIT ?`
		args = append(args, filter.Limit)
	}

	items := []subscriptiondomain.Subscription{}
	if err := db.WithContext(ctx).Raw(query, args...).Scan(&items).Error; err != nil {
		return nil, err
	}
	return items, nil
}

func (r *repo) CountActiveByTier(ctx context.Context, db *gorm.DB, tierID snowflake.ID, now time.Time) (int64, error) {
	var count int64
	err := db.WithContext(ctx).Raw(
		`SELECT COUNT(1)
		FROM subscriptions
		WHERE tier_id = ?
			AND (state = ? OR (active_until IS NOT NULL AND active_until > ?))`,
		tierID,
		subscriptiondomain.StateRenewing,
		now,
	).Scan(&count).Error
	return count, err
}
