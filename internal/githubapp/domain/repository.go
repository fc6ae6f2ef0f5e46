package domain

import (
	"context"

	"gorm.io/gorm"
)

type Repository interface {
	Upsert(ctx context.Context, db *gorm.DB, installation *Installation) error
	DeleteByInstallationID(ctx context.Context, db *gorm.DB, installationID int64) (int64, error)
	FindByInstallationID(ctx context.Context, db *gorm.DB, installationID int64) (*Installation, error)
}
