package service

import (
	"context"
	"strconv"
	"strings"

	"github.com/bwmarrin/snowflake"
	"github.com/gitwallet/market/internal/charge/domain"
	"github.com/gitwallet/market/internal/clock"
	tierdomain "github.com/gitwallet/market/internal/tier/domain"
	"github.com/gitwallet/market/pkg/db/pagination"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

type Service struct {
	db    *gorm.DB
	log   *zap.Logger
	genID *snowflake.Node
	clock clock.Clock
	repo  domain.Repository
	tiers tierdomain.Repository
}

type Params struct {
	fx.In

	DB    *gorm.DB
	Log   *zap.Logger
	GenID *snowflake.Node
	Clock clock.Clock
	Repo  domain.Repository
	Tiers tierdomain.Repository
}

func NewService(p Params) domain.Service {
	return &Service{
		db:    p.DB,
		log:   p.Log.Named("charge.service"),
		genID: p.GenID,
		clock: p.Clock,
		repo:  p.Repo,
		tiers: p.Tiers,
	}
}

// RecordFromCheckout stores a completed one-time purchase. The payment intent
// is the idempotency key; a repeat returns the stored charge with
// created=false.
func (s *Service) RecordFromCheckout(ctx context.Context, tx *gorm.DB, req domain.CheckoutPayment) (*domain.Charge, bool, error) {
	paymentIntentID := strings.TrimSpace(req.StripePaymentIntentID)
	if paymentIntentID == "" {
		return nil, false, domain.ErrInvalidPayment
	}
	if req.BuyerUserID == 0 {
		return nil, false, domain.ErrInvalidBuyer
	}

	db := s.conn(tx)
	existing, err := s.repo.FindByPaymentIntent(ctx, db, paymentIntentID)
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
		return nil, false, domain.ErrTierVersionNotFound
	}

	amount := req.Amount
	currency := strings.ToLower(strings.TrimSpace(req.Currency))
	if currency == "" {
		amount = version.Price
		currency = version.Currency
	}

	charge := domain.Charge{
		ID:                    s.genID.Generate(),
		OrgID:                 version.OrgID,
		BuyerUserID:           req.BuyerUserID,
		TierID:                version.TierID,
		TierVersionID:         version.ID,
		StripePaymentIntentID: paymentIntentID,
		Amount:                amount,
		Currency:              currency,
		CreatedAt:             s.clock.Now(),
	}
	if chargeID := strings.TrimSpace(req.StripeChargeID); chargeID != "" {
		charge.StripeChargeID = &chargeID
	}

	if err := s.repo.Insert(ctx, db, &charge); err != nil {
		return nil, false, err
	}

	s.log.Info("charge recorded",
		zap.String("org_id", charge.OrgID.String()),
		zap.String("charge_id", charge.ID.String()),
		zap.String("tier_version_id", charge.TierVersionID.String()),
	)
	return &charge, true, nil
}

// MarkRefunded sets the refund time once. Later refund events for the same
// charge leave the first timestamp in place.
func (s *Service) MarkRefunded(ctx context.Context, tx *gorm.DB, req domain.Refund) (*domain.Charge, error) {
	chargeID := strings.TrimSpace(req.StripeChargeID)
	paymentIntentID := strings.TrimSpace(req.StripePaymentIntentID)
	if chargeID == "" && paymentIntentID == "" {
		return nil, domain.ErrInvalidPayment
	}

	db := s.conn(tx)
	var (
		charge *domain.Charge
		err    error
	)
	if chargeID != "" {
		charge, err = s.repo.FindByStripeCharge(ctx, db, chargeID)
		if err != nil {
			return nil, err
		}
	}
	if charge == nil && paymentIntentID != "" {
		charge, err = s.repo.FindByPaymentIntent(ctx, db, paymentIntentID)
		if err != nil {
			return nil, err
		}
	}
	if charge == nil {
		return nil, domain.ErrNotFound
	}
	if charge.IsRefunded() {
		return charge, nil
	}

	at := req.RefundedAt
	if at.IsZero() {
		at = s.clock.Now()
	}
	at = at.UTC()
	if _, err := s.repo.MarkRefunded(ctx, db, charge.ID, chargeID, at); err != nil {
		return nil, err
	}

	charge.RefundedAt = &at
	if charge.StripeChargeID == nil && chargeID != "" {
		charge.StripeChargeID = &chargeID
	}
	s.log.Info("charge refunded", zap.String("charge_id", charge.ID.String()))
	return charge, nil
}

func (s *Service) List(ctx context.Context, req domain.ListRequest) (domain.ListResponse, error) {
	if req.OrgID == 0 {
		return domain.ListResponse{}, domain.ErrInvalidOrganization
	}

	filter := domain.ListFilter{
		OrgID:       req.OrgID,
		BuyerUserID: req.BuyerUserID,
		Limit:       req.Limit() + 1,
	}
	if req.PageToken != "" {
		cursor, err := pagination.DecodeCursor(req.PageToken)
		if err != nil {
			return domain.ListResponse{}, err
		}
		afterID, err := snowflake.ParseString(cursor.ID)
		if err != nil {
			return domain.ListResponse{}, pagination.ErrInvalidPageToken
		}
		filter.AfterID = afterID
	}

	items, err := s.repo.List(ctx, s.db, filter)
	if err != nil {
		return domain.ListResponse{}, err
	}
	items, pageInfo, err := pagination.Trim(items, req.Limit(), func(c domain.Charge) pagination.Cursor {
		return pagination.Cursor{ID: strconv.FormatInt(c.ID.Int64(), 10)}
	})
	if err != nil {
		return domain.ListResponse{}, err
	}
	return domain.ListResponse{PageInfo: pageInfo, Charges: items}, nil
}

func (s *Service) conn(tx *gorm.DB) *gorm.DB {
	if tx != nil {
		return tx
	}
	return s.db
}
