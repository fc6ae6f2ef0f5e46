package domain

import (
	"context"

	"github.com/bwmarrin/snowflake"
	"gorm.io/gorm"
)

type ListFilter struct {
	OrgID           snowflake.ID
	IncludeArchived bool
}

type Repository interface {
	Insert(ctx context.Context, db *gorm.DB, tier *Tier) error
	Update(ctx context.Context, db *gorm.DB, tier *Tier) error
	FindByID(ctx context.Context, db *gorm.DB, orgID, id snowflake.ID) (*Tier, error)
	FindByIDForUpdate(ctx context.Context, db *gorm.DB, orgID, id snowflake.ID) (*Tier, error)
	// FindSellable loads an unarchived tier by id regardless of organization.
	FindSellable(ctx context.Context, db *gorm.DB, id snowflake.ID) (*Tier, error)
	List(ctx context.Context, db *gorm.DB, filter ListFilter) ([]Tier, error)

	InsertVersion(ctx context.Context, db *gorm.DB, version *TierVersion) error
	UpdateVersion(ctx context.Context, db *gorm.DB, version *TierVersion) error
	FindVersionByID(ctx context.Context, db *gorm.DB, id snowflake.ID) (*TierVersion, error)
	ListVersions(ctx context.Context, db *gorm.DB, tierID snowflake.ID) ([]TierVersion, error)
	MaxRevision(ctx context.Context, db *gorm.DB, tierID snowflake.ID) (int, error)
}
