package service

import (
	"context"
	"strconv"
	"strings"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/gitwallet/market/internal/clock"
	orgdomain "github.com/gitwallet/market/internal/organization/domain"
	subscriptiondomain "github.com/gitwallet/market/internal/subscription/domain"
	tierdomain "github.com/gitwallet/market/internal/tier/domain"
	"github.com/gitwallet/market/pkg/db/pagination"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

type Service struct {
	db      *gorm.DB
	log     *zap.Logger
	genID   *snowflake.Node
	clock   clock.Clock
	repo    subscriptiondomain.Repository
	tiers   tierdomain.Repository
	orgs    orgdomain.Service
	gateway subscriptiondomain.Gateway
}

type ServiceParam struct {
	fx.In

	DB      *gorm.DB
	Log     *zap.Logger
	GenID   *snowflake.Node
	Clock   clock.Clock
	Repo    subscriptiondomain.Repository
	Tiers   tierdomain.Repository
	Orgs    orgdomain.Service
	Gateway subscriptiondomain.Gateway `optional:"true"`
}

func NewService(p ServiceParam) subscriptiondomain.Service {
	return &Service{
		db:      p.DB,
		log:     p.Log.Named("subscription.service"),
		genID:   p.GenID,
		clock:   p.Clock,
		repo:    p.Repo,
		tiers:   p.Tiers,
		orgs:    p.Orgs,
		gateway: p.Gateway,
	}
}

// CreateFromStripe records a vendor subscription against the TierVersion it
// was sold at. Redelivery of the same vendor subscription returns the
// existing row with created=false.
func (s *Service) CreateFromStripe(ctx context.Context, tx *gorm.DB, req subscriptiondomain.CreateFromStripeRequest) (*subscriptiondomain.Subscription, bool, error) {
	stripeID := strings.TrimSpace(req.StripeSubscriptionID)
	if stripeID == "" {
		return nil, false, subscriptiondomain.ErrInvalidSubscription
	}
	if req.BuyerUserID == 0 {
		return nil, false, subscriptiondomain.ErrInvalidBuyer
	}

	db := s.conn(tx)
	existing, err := s.repo.FindByStripeID(ctx, db, stripeID)
	if err != nil {
		return nil, false, err
	}
	if existing != nil {
		return existing, false, nil
	}

	version, err := s.tiers.FindVersionByID(ctx, db, req.TierVersionID)
	if err != nil {
		return nil, false, err
	}
	if version == nil || (req.OrgID != 0 && version.OrgID != req.OrgID) {
		return nil, false, subscriptiondomain.ErrTierVersionNotFound
	}

	now := s.clock.Now()
	sub := subscriptiondomain.Subscription{
		ID:                   s.genID.Generate(),
		OrgID:                version.OrgID,
		BuyerUserID:          req.BuyerUserID,
		TierID:               version.TierID,
		TierVersionID:        version.ID,
		StripeSubscriptionID: stripeID,
		CreatedAt:            now,
		UpdatedAt:            now,
	}
	req.Snapshot.Apply(&sub, now)

	if err := s.repo.Insert(ctx, db, &sub); err != nil {
		return nil, false, err
	}

	s.log.Info("subscription created",
		zap.String("org_id", sub.OrgID.String()),
		zap.String("subscription_id", sub.ID.String()),
		zap.String("tier_version_id", sub.TierVersionID.String()),
		zap.String("state", string(sub.State)),
	)
	return &sub, true, nil
}

func (s *Service) SyncFromStripe(ctx context.Context, tx *gorm.DB, stripeSubscriptionID string, snapshot subscriptiondomain.VendorSnapshot) (*subscriptiondomain.Subscription, error) {
	return s.apply(ctx, s.conn(tx), stripeSubscriptionID, snapshot)
}

// MarkDeleted handles a vendor subscription that has ended. The snapshot's
// status is forced to canceled so the paid period closes at the end time.
func (s *Service) MarkDeleted(ctx context.Context, tx *gorm.DB, stripeSubscriptionID string, snapshot subscriptiondomain.VendorSnapshot) (*subscriptiondomain.Subscription, error) {
	snapshot.Status = "canceled"
	return s.apply(ctx, s.conn(tx), stripeSubscriptionID, snapshot)
}

func (s *Service) apply(ctx context.Context, db *gorm.DB, stripeSubscriptionID string, snapshot subscriptiondomain.VendorSnapshot) (*subscriptiondomain.Subscription, error) {
	stripeID := strings.TrimSpace(stripeSubscriptionID)
	if stripeID == "" {
		return nil, subscriptiondomain.ErrInvalidSubscription
	}

	sub, err := s.repo.FindByStripeID(ctx, db, stripeID)
	if err != nil {
		return nil, err
	}
	if sub == nil {
		return nil, subscriptiondomain.ErrNotFound
	}

	before := *sub
	now := s.clock.Now()
	snapshot.Apply(sub, now)
	if unchanged(before, *sub) {
		return sub, nil
	}

	sub.UpdatedAt = now
	if err := s.repo.UpdateState(ctx, db, sub); err != nil {
		return nil, err
	}

	s.log.Info("subscription state synced",
		zap.String("subscription_id", sub.ID.String()),
		zap.String("from", string(before.State)),
		zap.String("to", string(sub.State)),
	)
	return sub, nil
}

func unchanged(a, b subscriptiondomain.Subscription) bool {
	if a.State != b.State || a.StripeCustomerID != b.StripeCustomerID {
		return false
	}
	return sameTime(a.ActiveUntil, b.ActiveUntil) && sameTime(a.EndedAt, b.EndedAt)
}

func sameTime(a, b *time.Time) bool {
	switch {
	case a == nil && b == nil:
		return true
	case a == nil || b == nil:
		return false
	default:
		return a.Equal(*b)
	}
}

// Cancel stops renewal at the end of the paid period. The vendor is updated
// first; local state only follows a successful vendor call.
func (s *Service) Cancel(ctx context.Context, orgID, id snowflake.ID) (*subscriptiondomain.Subscription, error) {
	sub, accountID, err := s.loadForVendor(ctx, orgID, id)
	if err != nil {
		return nil, err
	}
	if !sub.IsRenewing() {
		return nil, subscriptiondomain.ErrNotCancellable
	}

	snapshot, err := s.gateway.CancelAtPeriodEnd(ctx, accountID, sub.StripeSubscriptionID)
	if err != nil {
		s.log.Warn("vendor cancel failed", zap.String("subscription_id", sub.ID.String()), zap.Error(err))
		return nil, err
	}
	return s.apply(ctx, s.db, sub.StripeSubscriptionID, snapshot)
}

// Reactivate resumes renewal for a cancelled subscription that is still
// inside its paid period.
func (s *Service) Reactivate(ctx context.Context, orgID, id snowflake.ID) (*subscriptiondomain.Subscription, error) {
	sub, accountID, err := s.loadForVendor(ctx, orgID, id)
	if err != nil {
		return nil, err
	}
	if !sub.IsCancelled() || sub.IsEnded() || !sub.IsFinishingMonth(s.clock.Now()) {
		return nil, subscriptiondomain.ErrNotReactivatable
	}

	snapshot, err := s.gateway.Resume(ctx, accountID, sub.StripeSubscriptionID)
	if err != nil {
		s.log.Warn("vendor resume failed", zap.String("subscription_id", sub.ID.String()), zap.Error(err))
		return nil, err
	}
	return s.apply(ctx, s.db, sub.StripeSubscriptionID, snapshot)
}

func (s *Service) loadForVendor(ctx context.Context, orgID, id snowflake.ID) (*subscriptiondomain.Subscription, string, error) {
	sub, err := s.Get(ctx, orgID, id)
	if err != nil {
		return nil, "", err
	}
	org, err := s.orgs.GetByID(ctx, orgID)
	if err != nil {
		return nil, "", err
	}
	if s.gateway == nil || org.StripeAccountID == nil || *org.StripeAccountID == "" {
		return nil, "", subscriptiondomain.ErrAccountNotConnected
	}
	return sub, *org.StripeAccountID, nil
}

func (s *Service) Get(ctx context.Context, orgID, id snowflake.ID) (*subscriptiondomain.Subscription, error) {
	if orgID == 0 {
		return nil, subscriptiondomain.ErrInvalidOrganization
	}
	sub, err := s.repo.FindByID(ctx, s.db, orgID, id)
	if err != nil {
		return nil, err
	}
	if sub == nil {
		return nil, subscriptiondomain.ErrNotFound
	}
	return sub, nil
}

func (s *Service) List(ctx context.Context, req subscriptiondomain.ListRequest) (subscriptiondomain.ListResponse, error) {
	if req.OrgID == 0 {
		return subscriptiondomain.ListResponse{}, subscriptiondomain.ErrInvalidOrganization
	}

	filter := subscriptiondomain.ListFilter{
		OrgID:       req.OrgID,
		TierID:      req.TierID,
		BuyerUserID: req.BuyerUserID,
		State:       req.State,
		Limit:       req.Limit() + 1,
	}
	if req.PageToken != "" {
		cursor, err := pagination.DecodeCursor(req.PageToken)
		if err != nil {
			return subscriptiondomain.ListResponse{}, err
		}
		afterID, err := snowflake.ParseString(cursor.ID)
		if err != nil {
			return subscriptiondomain.ListResponse{}, pagination.ErrInvalidPageToken
		}
		filter.AfterID = afterID
	}

	items, err := s.repo.List(ctx, s.db, filter)
	if err != nil {
		return subscriptiondomain.ListResponse{}, err
	}

	items, pageInfo, err := pagination.Trim(items, req.Limit(), func(sub subscriptiondomain.Subscription) pagination.Cursor {
		return pagination.Cursor{ID: strconv.FormatInt(sub.ID.Int64(), 10)}
	})
	if err != nil {
		return subscriptiondomain.ListResponse{}, err
	}
	return subscriptiondomain.ListResponse{PageInfo: pageInfo, Subscriptions: items}, nil
}

func (s *Service) CountActiveByTier(ctx context.Context, tierID snowflake.ID) (int64, error) {
	return s.repo.CountActiveByTier(ctx, s.db, tierID, s.clock.Now())
}

func (s *Service) conn(tx *gorm.DB) *gorm.DB {
	if tx != nil {
		return tx
	}
	return s.db
}
