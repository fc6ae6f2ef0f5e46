package migration

import (
	chargedomain "github.com/gitwallet/market/internal/charge/domain"
	"github.com/gitwallet/market/internal/config"
	githubappdomain "github.com/gitwallet/market/internal/githubapp/domain"
	orgdomain "github.com/gitwallet/market/internal/organization/domain"
	paymentdomain "github.com/gitwallet/market/internal/payment/domain"
	subscriptiondomain "github.com/gitwallet/market/internal/subscription/domain"
	tierdomain "github.com/gitwallet/market/internal/tier/domain"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

var Module = fx.Module("migrations",
	fx.Invoke(migrateOnStart),
)

// Models lists every table owned by the application, in dependency order.
func Models() []any {
	return []any{
		&orgdomain.User{},
		&orgdomain.Organization{},
		&orgdomain.Member{},
		&orgdomain.Billing{},
		&tierdomain.Tier{},
		&tierdomain.TierVersion{},
		&subscriptiondomain.Subscription{},
		&chargedomain.Charge{},
		&paymentdomain.StripeEvent{},
		&githubappdomain.Installation{},
	}
}

// Postgres gets the embedded SQL schema. Other dialects serve local runs and
// are brought up with AutoMigrate.
func migrateOnStart(conn *gorm.DB, cfg config.Config, log *zap.Logger) error {
	log = log.Named("migration")
	if cfg.DBType != "postgres" {
		log.Warn("embedded schema is postgres only; using AutoMigrate", zap.String("db_type", cfg.DBType))
		return conn.AutoMigrate(Models()...)
	}
	sqlDB, err := conn.DB()
	if err != nil {
		return err
	}
	_, err = Up(sqlDB, log)
	return err
}
