package domain

import (
	"context"
	"time"

	"github.com/bwmarrin/snowflake"
	"gorm.io/gorm"
)

type ListFilter struct {
	Source    string
	Type      string
	Processed *bool
	AfterID   snowflake.ID
	Limit     int
}

type Repository interface {
	// InsertIfAbsent reports false when the vendor event id is already stored.
	InsertIfAbsent(ctx context.Context, db *gorm.DB, event *StripeEvent) (bool, error)
	FindByStripeID(ctx context.Context, db *gorm.DB, stripeEventID string) (*StripeEvent, error)
	FindByID(ctx context.Context, db *gorm.DB, id snowflake.ID) (*StripeEvent, error)
	// Claim flips processed from false to true and reports whether this
	// caller won the row.
	Claim(ctx context.Context, db *gorm.DB, id snowflake.ID, at time.Time) (bool, error)
	RecordError(ctx context.Context, db *gorm.DB, id snowflake.ID, message string) error
	List(ctx context.Context, db *gorm.DB, filter ListFilter) ([]StripeEvent, error)
}
