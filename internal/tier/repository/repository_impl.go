package repository

import (
	"context"
	"errors"

	"github.com/bwmarrin/snowflake"
	"github.com/gitwallet/market/internal/tier/domain"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type repo struct{}

func Provide() domain.Repository {
	return &repo{}
}

func (r *repo) Insert(ctx context.Context, db *gorm.DB, tier *domain.Tier) error {
	return db.WithContext(ctx).Create(tier).Error
}

func (r *repo) Update(ctx context.Context, db *gorm.DB, tier *domain.Tier) error {
	return db.WithContext(ctx).
		Model(&domain.Tier{}).
		Where("id = ? AND org_id = ?", tier.ID, tier.OrgID).
		Updates(map[string]any{
			"name":               tier.Name,
			"description":        tier.Description,
			"price":              tier.Price,
			"currency":           tier.Currency,
			"cadence":            tier.Cadence,
			"features":           tier.Features,
			"current_version_id": tier.CurrentVersionID,
			"stripe_product_id":  tier.StripeProductID,
			"archived_at":        tier.ArchivedAt,
			"updated_at":         tier.UpdatedAt,
		}).Error
}

func (r *repo) FindByID(ctx context.Context, db *gorm.DB, orgID, id snowflake.ID) (*domain.Tier, error) {
	return r.find(db.WithContext(ctx), orgID, id)
}

// FindByIDForUpdate row-locks the tier so concurrent edits serialize on
// revision numbering.
func (r *repo) FindByIDForUpdate(ctx context.Context, db *gorm.DB, orgID, id snowflake.ID) (*domain.Tier, error) {
	stmt := db.WithContext(ctx)
	if stmt.Dialector.Name() != "sqlite" {
		stmt = stmt.Clauses(clause.Locking{Strength: "UPDATE"})
	}
	return r.find(stmt, orgID, id)
}

func (r *repo) FindSellable(ctx context.Context, db *gorm.DB, id snowflake.ID) (*domain.Tier, error) {
	var tier domain.Tier
	err := db.WithContext(ctx).Where("id = ? AND archived_at IS NULL", id).First(&tier).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &tier, nil
}

func (r *repo) find(db *gorm.DB, orgID, id snowflake.ID) (*domain.Tier, error) {
	var tier domain.Tier
	err := db.Where("id = ? AND org_id = ?", id, orgID).First(&tier).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &tier, nil
}

func (r *repo) List(ctx context.Context, db *gorm.DB, filter domain.ListFilter) ([]domain.Tier, error) {
	tiers := []domain.Tier{}
	stmt := db.WithContext(ctx).Where("org_id = ?", filter.OrgID)
	if !filter.IncludeArchived {
		stmt = stmt.Where("archived_at IS NULL")
	}
	if err := stmt.Order("price ASC, id ASC").Find(&tiers).Error; err != nil {
		return nil, err
	}
	return tiers, nil
}

func (r *repo) InsertVersion(ctx context.Context, db *gorm.DB, version *domain.TierVersion) error {
	return db.WithContext(ctx).Create(version).Error
}

// UpdateVersion rewrites the terms of a version that no active subscription
// depends on.
func (r *repo) UpdateVersion(ctx context.Context, db *gorm.DB, version *domain.TierVersion) error {
	return db.WithContext(ctx).
		Model(&domain.TierVersion{}).
		Where("id = ?", version.ID).
		Updates(map[string]any{
			"price":           version.Price,
			"currency":        version.Currency,
			"cadence":         version.Cadence,
			"features":        version.Features,
			"stripe_price_id": version.StripePriceID,
		}).Error
}

func (r *repo) FindVersionByID(ctx context.Context, db *gorm.DB, id snowflake.ID) (*domain.TierVersion, error) {
	var version domain.TierVersion
	err := db.WithContext(ctx).Where("id = ?", id).First(&version).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &version, nil
}

func (r *repo) ListVersions(ctx context.Context, db *gorm.DB, tierID snowflake.ID) ([]domain.TierVersion, error) {
	versions := []domain.TierVersion{}
	err := db.WithContext(ctx).
		Where("tier_id = ?", tierID).
		Order("revision ASC").
		Find(&versions).Error
	if err != nil {
		return nil, err
	}
	return versions, nil
}

func (r *repo) MaxRevision(ctx context.Context, db *gorm.DB, tierID snowflake.ID) (int, error) {
	var revision int
	err := db.WithContext(ctx).
		Raw(`SELECT COALESCE(MAX(revision), 0) FROM tier_versions WHERE tier_id = ?`, tierID).
		Scan(&revision).Error
	return revision, err
}
