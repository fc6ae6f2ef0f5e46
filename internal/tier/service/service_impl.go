package service

import (
	"context"
	"fmt"
	"strings"

	"github.com/bwmarrin/snowflake"
	"github.com/gitwallet/market/internal/clock"
	"github.com/gitwallet/market/internal/observability/metrics"
	orgdomain "github.com/gitwallet/market/internal/organization/domain"
	subscriptiondomain "github.com/gitwallet/market/internal/subscription/domain"
	"github.com/gitwallet/market/internal/tier/domain"
	"github.com/shopspring/decimal"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

const (
	versionReasonCreate = "create"
	versionReasonFork   = "fork"
)

type Service struct {
	db      *gorm.DB
	log     *zap.Logger
	genID   *snowflake.Node
	clock   clock.Clock
	repo    domain.Repository
	subs    subscriptiondomain.Repository
	orgs    orgdomain.Service
	gateway domain.Gateway
	metrics *metrics.Metrics
}

type Params struct {
	fx.In

	DB      *gorm.DB
	Log     *zap.Logger
	GenID   *snowflake.Node
	Clock   clock.Clock
	Repo    domain.Repository
	Subs    subscriptiondomain.Repository
	Orgs    orgdomain.Service
	Gateway domain.Gateway   `optional:"true"`
	Metrics *metrics.Metrics `optional:"true"`
}

func NewService(p Params) domain.Service {
	return &Service{
		db:      p.DB,
		log:     p.Log.Named("tier.service"),
		genID:   p.GenID,
		clock:   p.Clock,
		repo:    p.Repo,
		subs:    p.Subs,
		orgs:    p.Orgs,
		gateway: p.Gateway,
		metrics: p.Metrics,
	}
}

func (s *Service) Create(ctx context.Context, req domain.CreateRequest) (*domain.Tier, error) {
	if req.OrgID == 0 {
		return nil, domain.ErrInvalidOrganization
	}
	name := strings.TrimSpace(req.Name)
	if name == "" {
		return nil, domain.ErrInvalidName
	}
	if err := validateTerms(req.Price, req.Currency, req.Cadence); err != nil {
		return nil, err
	}

	org, err := s.orgs.GetByID(ctx, req.OrgID)
	if err != nil {
		return nil, err
	}

	now := s.clock.Now()
	tier := domain.Tier{
		ID:          s.genID.Generate(),
		OrgID:       req.OrgID,
		Name:        name,
		Description: strings.TrimSpace(req.Description),
		Price:       req.Price,
		Currency:    normalizeCurrency(req.Currency),
		Cadence:     req.Cadence,
		Features:    datatypes.JSONSlice[string](cleanFeatures(req.Features)),
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	version := domain.TierVersion{
		ID:        s.genID.Generate(),
		OrgID:     tier.OrgID,
		TierID:    tier.ID,
		Revision:  1,
		Price:     tier.Price,
		Currency:  tier.Currency,
		Cadence:   tier.Cadence,
		Features:  tier.Features,
		CreatedAt: now,
	}
	tier.CurrentVersionID = &version.ID

	// Rows go in first so constraint failures never reach the vendor.
	var pub published
	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := s.repo.Insert(ctx, tx, &tier); err != nil {
			return err
		}
		if err := s.repo.InsertVersion(ctx, tx, &version); err != nil {
			return err
		}
		if !s.publishable(org) {
			return nil
		}

		productID, err := s.gateway.CreateProduct(ctx, domain.ProductRequest{
			AccountID:   *org.StripeAccountID,
			TierID:      tier.ID,
			Name:        tier.Name,
			Description: tier.Description,
		})
		if err != nil {
			return fmt.Errorf("create stripe product: %w", err)
		}
		pub.products = append(pub.products, productID)
		tier.StripeProductID = &productID

		if err := s.attachPrice(ctx, org, &tier, &version, &pub); err != nil {
			return err
		}
		if err := s.repo.Update(ctx, tx, &tier); err != nil {
			return err
		}
		return s.repo.UpdateVersion(ctx, tx, &version)
	})
	if err != nil {
		s.retract(ctx, org, pub)
		return nil, err
	}

	s.metrics.RecordTierVersion(ctx, versionReasonCreate)
	s.log.Info("tier created",
		zap.String("org_id", tier.OrgID.String()),
		zap.String("tier_id", tier.ID.String()),
		zap.String("tier_version_id", version.ID.String()),
	)
	return &tier, nil
}

// Update applies an edit. Price, currency and cadence are versioned: while a
// tier has active subscribers, changing any of them forks a new revision so
// existing subscriptions keep the terms they bought. Without active
// subscribers the current revision is rewritten in place.
func (s *Service) Update(ctx context.Context, req domain.UpdateRequest) (*domain.UpdateResult, error) {
	if req.OrgID == 0 {
		return nil, domain.ErrInvalidOrganization
	}

	org, err := s.orgs.GetByID(ctx, req.OrgID)
	if err != nil {
		return nil, err
	}

	var result domain.UpdateResult
	var pub published
	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		tier, err := s.repo.FindByIDForUpdate(ctx, tx, req.OrgID, req.TierID)
		if err != nil {
			return err
		}
		if tier == nil {
			return domain.ErrNotFound
		}
		if tier.ArchivedAt != nil {
			return domain.ErrArchived
		}

		current, err := s.currentVersion(ctx, tx, tier)
		if err != nil {
			return err
		}

		next, err := applyEdit(*tier, req)
		if err != nil {
			return err
		}

		now := s.clock.Now()
		active, err := s.subs.CountActiveByTier(ctx, tx, tier.ID, now)
		if err != nil {
			return err
		}

		termsChanged := !next.Price.Equal(current.Price) ||
			next.Currency != current.Currency ||
			next.Cadence != current.Cadence

		version := *current
		switch {
		case termsChanged && active > 0:
			maxRevision, err := s.repo.MaxRevision(ctx, tx, tier.ID)
			if err != nil {
				return err
			}
			version = domain.TierVersion{
				ID:        s.genID.Generate(),
				OrgID:     tier.OrgID,
				TierID:    tier.ID,
				Revision:  maxRevision + 1,
				Price:     next.Price,
				Currency:  next.Currency,
				Cadence:   next.Cadence,
				Features:  next.Features,
				CreatedAt: now,
			}
			if err := s.attachPrice(ctx, org, &next, &version, &pub); err != nil {
				return err
			}
			if err := s.repo.InsertVersion(ctx, tx, &version); err != nil {
				return err
			}
			next.CurrentVersionID = &version.ID
			result.Forked = true

		case active == 0:
			version.Price = next.Price
			version.Currency = next.Currency
			version.Cadence = next.Cadence
			version.Features = next.Features
			if termsChanged {
				// Stripe prices are immutable, so changed terms need a new one.
				version.StripePriceID = nil
				if err := s.attachPrice(ctx, org, &next, &version, &pub); err != nil {
					return err
				}
			}
			if err := s.repo.UpdateVersion(ctx, tx, &version); err != nil {
				return err
			}
		}

		next.UpdatedAt = now
		if err := s.repo.Update(ctx, tx, &next); err != nil {
			return err
		}

		result.Tier = &next
		result.Version = &version
		return nil
	})
	if err != nil {
		s.retract(ctx, org, pub)
		return nil, err
	}

	if result.Forked {
		s.metrics.RecordTierVersion(ctx, versionReasonFork)
		s.log.Info("tier version forked",
			zap.String("tier_id", result.Tier.ID.String()),
			zap.String("tier_version_id", result.Version.ID.String()),
			zap.Int("revision", result.Version.Revision),
		)
	}
	return &result, nil
}

func applyEdit(tier domain.Tier, req domain.UpdateRequest) (domain.Tier, error) {
	if req.Name != nil {
		name := strings.TrimSpace(*req.Name)
		if name == "" {
			return tier, domain.ErrInvalidName
		}
		tier.Name = name
	}
	if req.Description != nil {
		tier.Description = strings.TrimSpace(*req.Description)
	}
	if req.Price != nil {
		tier.Price = *req.Price
	}
	if req.Currency != nil {
		tier.Currency = normalizeCurrency(*req.Currency)
	}
	if req.Cadence != nil {
		tier.Cadence = *req.Cadence
	}
	if req.Features != nil {
		tier.Features = datatypes.JSONSlice[string](cleanFeatures(*req.Features))
	}
	if err := validateTerms(tier.Price, tier.Currency, tier.Cadence); err != nil {
		return tier, err
	}
	return tier, nil
}

func (s *Service) Get(ctx context.Context, orgID, tierID snowflake.ID) (*domain.Tier, error) {
	tier, err := s.repo.FindByID(ctx, s.db, orgID, tierID)
	if err != nil {
		return nil, err
	}
	if tier == nil {
		return nil, domain.ErrNotFound
	}
	return tier, nil
}

func (s *Service) List(ctx context.Context, orgID snowflake.ID, includeArchived bool) ([]domain.Tier, error) {
	if orgID == 0 {
		return nil, domain.ErrInvalidOrganization
	}
	return s.repo.List(ctx, s.db, domain.ListFilter{OrgID: orgID, IncludeArchived: includeArchived})
}

func (s *Service) ListVersions(ctx context.Context, orgID, tierID snowflake.ID) ([]domain.TierVersion, error) {
	if _, err := s.Get(ctx, orgID, tierID); err != nil {
		return nil, err
	}
	return s.repo.ListVersions(ctx, s.db, tierID)
}

func (s *Service) CurrentVersion(ctx context.Context, orgID, tierID snowflake.ID) (*domain.TierVersion, error) {
	tier, err := s.Get(ctx, orgID, tierID)
	if err != nil {
		return nil, err
	}
	return s.currentVersion(ctx, s.db, tier)
}

func (s *Service) currentVersion(ctx context.Context, db *gorm.DB, tier *domain.Tier) (*domain.TierVersion, error) {
	if tier.CurrentVersionID == nil {
		return nil, domain.ErrVersionNotFound
	}
	version, err := s.repo.FindVersionByID(ctx, db, *tier.CurrentVersionID)
	if err != nil {
		return nil, err
	}
	if version == nil {
		return nil, domain.ErrVersionNotFound
	}
	return version, nil
}

func (s *Service) GetForSale(ctx context.Context, tierID snowflake.ID) (*domain.Tier, *domain.TierVersion, error) {
	tier, err := s.repo.FindSellable(ctx, s.db, tierID)
	if err != nil {
		return nil, nil, err
	}
	if tier == nil {
		return nil, nil, domain.ErrNotFound
	}
	version, err := s.currentVersion(ctx, s.db, tier)
	if err != nil {
		return nil, nil, err
	}
	return tier, version, nil
}

func (s *Service) GetVersion(ctx context.Context, versionID snowflake.ID) (*domain.TierVersion, error) {
	version, err := s.repo.FindVersionByID(ctx, s.db, versionID)
	if err != nil {
		return nil, err
	}
	if version == nil {
		return nil, domain.ErrVersionNotFound
	}
	return version, nil
}

// Archive hides a tier from sale. Its versions stay in place for the
// subscriptions and charges that reference them.
func (s *Service) Archive(ctx context.Context, orgID, tierID snowflake.ID) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		tier, err := s.repo.FindByIDForUpdate(ctx, tx, orgID, tierID)
		if err != nil {
			return err
		}
		if tier == nil {
			return domain.ErrNotFound
		}
		if tier.ArchivedAt != nil {
			return nil
		}
		now := s.clock.Now()
		tier.ArchivedAt = &now
		tier.UpdatedAt = now
		return s.repo.Update(ctx, tx, tier)
	})
}

func (s *Service) publishable(org *orgdomain.Organization) bool {
	return s.gateway != nil && org != nil && org.StripeAccountID != nil && *org.StripeAccountID != ""
}

// published tracks vendor objects created inside a transaction.
type published struct {
	products []string
	prices   []string
}

// retract deactivates vendor objects whose rows were rolled back. Stripe
// prices cannot be deleted, so both kinds are archived.
func (s *Service) retract(ctx context.Context, org *orgdomain.Organization, pub published) {
	if len(pub.products) == 0 && len(pub.prices) == 0 {
		return
	}
	ctx = context.WithoutCancel(ctx)
	for _, priceID := range pub.prices {
		if err := s.gateway.ArchivePrice(ctx, *org.StripeAccountID, priceID); err != nil {
			s.log.Error("archive orphaned stripe price", zap.String("price_id", priceID), zap.Error(err))
		}
	}
	for _, productID := range pub.products {
		if err := s.gateway.ArchiveProduct(ctx, *org.StripeAccountID, productID); err != nil {
			s.log.Error("archive orphaned stripe product", zap.String("product_id", productID), zap.Error(err))
		}
	}
}

// attachPrice creates the vendor price for a version when the tier is linked
// to a Stripe product.
func (s *Service) attachPrice(ctx context.Context, org *orgdomain.Organization, tier *domain.Tier, version *domain.TierVersion, pub *published) error {
	if !s.publishable(org) || tier.StripeProductID == nil {
		return nil
	}
	priceID, err := s.gateway.CreatePrice(ctx, domain.PriceRequest{
		AccountID:     *org.StripeAccountID,
		ProductID:     *tier.StripeProductID,
		TierVersionID: version.ID,
		Amount:        version.Price,
		Currency:      version.Currency,
		Cadence:       version.Cadence,
	})
	if err != nil {
		return fmt.Errorf("create stripe price: %w", err)
	}
	pub.prices = append(pub.prices, priceID)
	version.StripePriceID = &priceID
	return nil
}

func validateTerms(price decimal.Decimal, currency string, cadence domain.Cadence) error {
	if price.IsNegative() {
		return domain.ErrInvalidPrice
	}
	if price.Exponent() < -2 && !price.Equal(price.Round(2)) {
		return domain.ErrInvalidPrice
	}
	if len(strings.TrimSpace(currency)) != 3 {
		return domain.ErrInvalidCurrency
	}
	if !cadence.Valid() {
		return domain.ErrInvalidCadence
	}
	return nil
}

func normalizeCurrency(currency string) string {
	return strings.ToLower(strings.TrimSpace(currency))
}

func cleanFeatures(features []string) []string {
	out := make([]string, 0, len(features))
	for _, f := range features {
		if f = strings.TrimSpace(f); f != "" {
			out = append(out, f)
		}
	}
	return out
}
