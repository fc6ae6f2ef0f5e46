package repository

import (
	"context"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/gitwallet/market/internal/charge/domain"
	"gorm.io/gorm"
)

type repo struct{}

func Provide() domain.Repository {
	return &repo{}
}

const selectColumns = `SELECT id, org_id, buyer_user_id, tier_id, tier_version_id, stripe_charge_id,
	stripe_payment_intent_id, amount, currency, refunded_at, created_at
	FROM charges`

func (r *repo) Insert(ctx context.Context, db *gorm.DB, charge *domain.Charge) error {
	return db.WithContext(ctx).Exec(
		`INSERT INTO charges (
			id, org_id, buyer_user_id, tier_id, tier_version_id, stripe_charge_id,
			stripe_payment_intent_id, amount, currency, refunded_at, created_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		charge.ID,
		charge.OrgID,
		charge.BuyerUserID,
		charge.TierID,
		charge.TierVersionID,
		charge.StripeChargeID,
		charge.StripePaymentIntentID,
		charge.Amount,
		charge.Currency,
		charge.RefundedAt,
		charge.CreatedAt,
	).Error
}

func (r *repo) FindByPaymentIntent(ctx context.Context, db *gorm.DB, paymentIntentID string) (*domain.Charge, error) {
	return r.findOne(ctx, db, `stripe_payment_intent_id = ?`, paymentIntentID)
}

func (r *repo) FindByStripeCharge(ctx context.Context, db *gorm.DB, stripeChargeID string) (*domain.Charge, error) {
	return r.findOne(ctx, db, `stripe_charge_id = ?`, stripeChargeID)
}

func (r *repo) findOne(ctx context.Context, db *gorm.DB, where string, arg any) (*domain.Charge, error) {
	var charge domain.Charge
	err := db.WithContext(ctx).Raw(selectColumns+` WHERE `+where+` LIMIT 1`, arg).Scan(&charge).Error
	if err != nil {
		return nil, err
	}
	if charge.ID == 0 {
		return nil, nil
	}
	return &charge, nil
}

func (r *repo) MarkRefunded(ctx context.Context, db *gorm.DB, id snowflake.ID, stripeChargeID string, at time.Time) (int64, error) {
	res := db.WithContext(ctx).Exec(
		`UPDATE charges
		SET refunded_at = ?, stripe_charge_id = COALESCE(stripe_charge_id, NULLIF(?, ''))
		WHERE id = ? AND refunded_at IS NULL`,
		at,
		stripeChargeID,
		id,
	)
	return res.RowsAffected, res.Error
}

func (r *repo) List(ctx context.Context, db *gorm.DB, filter domain.ListFilter) ([]domain.Charge, error) {
	query := selectColumns + ` WHERE org_id = ?`
	args := []any{filter.OrgID}
	if filter.BuyerUserID != 0 {
		query += ` AND buyer_user_id = ?`
		args = append(args, filter.BuyerUserID)
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

	items := []domain.Charge{}
	if err := db.WithContext(ctx).Raw(query, args...).Scan(&items).Error; err != nil {
		return nil, err
	}
	return items, nil
}
