package repository

import (
	"context"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/gitwallet/market/internal/payment/domain"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type repo struct{}

func Provide() domain.Repository {
	return &repo{}
}

const selectColumns = `SELECT id, stripe_event_id, source, type, account_id, payload,
	processed, processed_at, attempts, last_error, received_at
	FROM stripe_events`

// InsertIfAbsent reports false when the vendor event id was already recorded.
func (r *repo) InsertIfAbsent(ctx context.Context, db *gorm.DB, event *domain.StripeEvent) (bool, error) {
	event.Processed = false
	event.Attempts = 0
	res := db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "stripe_event_id"}},
			DoNothing: true,
		}).
		Create(event)
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected > 0, nil
}

func (r *repo) FindByStripeID(ctx context.Context, db *gorm.DB, stripeEventID string) (*domain.StripeEvent, error) {
	return r.findOne(ctx, db, `stripe_event_id = ?`, stripeEventID)
}

func (r *repo) FindByID(ctx context.Context, db *gorm.DB, id snowflake.ID) (*domain.StripeEvent, error) {
	return r.findOne(ctx, db, `id = ?`, id)
}

func (r *repo) findOne(ctx context.Context, db *gorm.DB, where string, arg any) (*domain.StripeEvent, error) {
	var item domain.StripeEvent
	err := db.WithContext(ctx).Raw(selectColumns+` WHERE `+where+` LIMIT 1`, arg).Scan(&item).Error
	if err != nil {
		return nil, err
	}
	if item.ID == 0 {
		return nil, nil
	}
	return &item, nil
}

func (r *repo) Claim(ctx context.Context, db *gorm.DB, id snowflake.ID, at time.Time) (bool, error) {
	res := db.WithContext(ctx).Exec(
		`UPDATE stripe_events
		 SET processed = ?, processed_at = ?, last_error = NULL, attempts = attempts + 1
		 WHERE id = ? AND processed = ?`,
		true,
		at,
		id,
		false,
	)
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected == 1, nil
}

func (r *repo) RecordError(ctx context.Context, db *gorm.DB, id snowflake.ID, message string) error {
	return db.WithContext(ctx).Exec(
		`UPDATE stripe_events
		 SET attempts = attempts + 1, last_error = ?
		 WHERE id = ? AND processed = ?`,
		message,
		id,
		false,
	).Error
}

func (r *repo) List(ctx context.Context, db *gorm.DB, filter domain.ListFilter) ([]domain.StripeEvent, error) {
	query := selectColumns + ` WHERE 1 = 1`
	args := []any{}

	if filter.Source != "" {
		query += ` AND source = ?`
		args = append(args, filter.Source)
	}
	if filter.Type != "" {
		query += ` AND type = ?`
		args = append(args, filter.Type)
	}
	if filter.Processed != nil {
		query += ` AND processed = ?`
		args = append(args, *filter.Processed)
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

	items := []domain.StripeEvent{}
	if err := db.WithContext(ctx).Raw(query, args...).Scan(&items).Error; err != nil {
		return nil, err
	}
	return items, nil
}
