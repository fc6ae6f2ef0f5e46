package repository

import (
	"context"

	"github.com/gitwallet/market/internal/githubapp/domain"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type repo struct{}

func Provide() domain.Repository {
	return &repo{}
}

// Upsert keeps the original row id and creation time on redelivery.
func (r *repo) Upsert(ctx context.Context, db *gorm.DB, in *domain.Installation) error {
	return db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns: []clause.Column{{Name: "installation_id"}},
			DoUpdates: clause.AssignmentColumns([]string{
				"account_id", "account_login", "account_type", "sender_id", "user_id", "updated_at",
			}),
		}).
		Create(in).Error
}

func (r *repo) DeleteByInstallationID(ctx context.Context, db *gorm.DB, installationID int64) (int64, error) {
	res := db.WithContext(ctx).Exec(
		`DELETE FROM github_installations WHERE installation_id = ?`,
		installationID,
	)
	return res.RowsAffected, res.Error
}

func (r *repo) FindByInstallationID(ctx context.Context, db *gorm.DB, installationID int64) (*domain.Installation, error) {
	var in domain.Installation
	err := db.WithContext(ctx).Raw(
		`SELECT id, installation_id, account_id, account_login, account_type, sender_id, user_id, created_at, updated_at
		FROM github_installations
		WHERE installation_id = ?
		LIMIT 1`,
		installationID,
	).Scan(&in).Error
	if err != nil {
		return nil, err
	}
	if in.ID == 0 {
		return nil, nil
	}
	return &in, nil
}
