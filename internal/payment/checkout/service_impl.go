package checkout

import (
	"context"
	"errors"
	"net/url"
	"strings"

	"github.com/bwmarrin/snowflake"
	"github.com/gitwallet/market/internal/config"
	"github.com/gitwallet/market/internal/observability/metrics"
	orgdomain "github.com/gitwallet/market/internal/organization/domain"
	stripeadapter "github.com/gitwallet/market/internal/payment/adapters/stripe"
	paymentdomain "github.com/gitwallet/market/internal/payment/domain"
	tierdomain "github.com/gitwallet/market/internal/tier/domain"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

type Params struct {
	fx.In

	DB       *gorm.DB
	Log      *zap.Logger
	Config   config.Config
	Platform *config.PlatformConfigHolder
	Orgs     orgdomain.Service
	Tiers    tierdomain.Service
	Gateway  paymentdomain.CheckoutGateway `optional:"true"`
	Metrics  *metrics.Metrics              `optional:"true"`
}

type Service struct {
	db         *gorm.DB
	log        *zap.Logger
	rootDomain string
	platform   *config.PlatformConfigHolder
	orgs       orgdomain.Service
	tiers      tierdomain.Service
	gateway    paymentdomain.CheckoutGateway
	metrics    *metrics.Metrics
}

func NewService(p Params) paymentdomain.CheckoutService {
	return &Service{
		db:         p.DB,
		log:        p.Log.Named("payment.checkout"),
		rootDomain: p.Config.RootDomain,
		platform:   p.Platform,
		orgs:       p.Orgs,
		tiers:      p.Tiers,
		gateway:    p.Gateway,
		metrics:    p.Metrics,
	}
}

// Sync reads the session back from the vendor and writes the plan to the
// organization's billing record. Every precondition is checked before the
// write so a failed sync commits nothing.
func (s *Service) Sync(ctx context.Context, sessionID string) (*orgdomain.Billing, error) {
	billing, err := s.sync(ctx, sessionID)
	outcome := "success"
	if err != nil {
		outcome = errorCode(err)
		s.log.Warn("checkout sync failed", zap.String("checkout_session_id", sessionID), zap.Error(err))
	}
	s.metrics.RecordCheckoutSync(ctx, outcome)
	return billing, err
}

func (s *Service) sync(ctx context.Context, sessionID string) (*orgdomain.Billing, error) {
	sessionID = strings.TrimSpace(sessionID)
	if sessionID == "" {
		return nil, paymentdomain.ErrMissingSession
	}
	if s.gateway == nil {
		return nil, paymentdomain.ErrGatewayDisabled
	}

	session, err := s.gateway.GetCheckoutSession(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	if session.CustomerID == "" {
		return nil, paymentdomain.ErrMissingCustomer
	}
	if session.SubscriptionID == "" {
		return nil, paymentdomain.ErrMissingSubscription
	}
	if len(session.ProductIDs) == 0 {
		return nil, paymentdomain.ErrMissingProduct
	}
	planType, ok := s.planType(session.ProductIDs)
	if !ok {
		return nil, paymentdomain.ErrUnknownPlan
	}

	userID, orgID, err := ParseClientReference(session.ClientReferenceID)
	if err != nil {
		return nil, err
	}
	if userID != 0 {
		if _, err := s.orgs.MemberRole(ctx, orgID, userID); err != nil {
			return nil, err
		}
	}
	if _, err := s.orgs.FindBillingByOrg(ctx, orgID); err != nil {
		return nil, err
	}

	var billing *orgdomain.Billing
	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var err error
		billing, err = s.orgs.SyncBilling(ctx, tx, orgdomain.BillingSync{
			OrgID:                orgID,
			StripeCustomerID:     session.CustomerID,
			StripeSubscriptionID: session.SubscriptionID,
			PlanType:             planType,
			Status:               paymentdomain.BillingStatus(session.SubscriptionStatus),
		})
		return err
	})
	if err != nil {
		return nil, err
	}

	s.log.Info("platform billing synced",
		zap.String("org_id", orgID.String()),
		zap.String("plan_type", planType),
		zap.String("status", billing.Status),
	)
	return billing, nil
}

func (s *Service) planType(productIDs []string) (string, bool) {
	cfg := s.platform.Get()
	for _, productID := range productIDs {
		if planType, ok := cfg.PlanTypeForProduct(productID); ok {
			return planType, true
		}
	}
	return "", false
}

// ParseClientReference reads "<userID>:<orgID>" or a bare org id.
func ParseClientReference(ref string) (snowflake.ID, snowflake.ID, error) {
	ref = strings.TrimSpace(ref)
	if ref == "" {
		return 0, 0, paymentdomain.ErrMissingClientReference
	}

	userPart, orgPart, found := strings.Cut(ref, ":")
	if !found {
		orgPart, userPart = userPart, ""
	} else if strings.TrimSpace(userPart) == "" {
		return 0, 0, paymentdomain.ErrMissingClientReference
	}

	orgID, err := snowflake.ParseString(strings.TrimSpace(orgPart))
	if err != nil || orgID == 0 {
		return 0, 0, paymentdomain.ErrMissingClientReference
	}
	if userPart == "" {
		return 0, orgID, nil
	}
	userID, err := snowflake.ParseString(strings.TrimSpace(userPart))
	if err != nil || userID == 0 {
		return 0, 0, paymentdomain.ErrMissingClientReference
	}
	return userID, orgID, nil
}

func ClientReference(userID, orgID snowflake.ID) string {
	return userID.String() + ":" + orgID.String()
}

func (s *Service) RedirectURL(status string, cause error) string {
	target, err := url.Parse(s.platform.Get().BillingPageURL)
	if err != nil {
		return s.platform.Get().BillingPageURL
	}
	query := target.Query()
	query.Set("status", status)
	if cause != nil {
		query.Set("error", errorCode(cause))
	}
	target.RawQuery = query.Encode()
	return target.String()
}

var knownCodes = []error{
	paymentdomain.ErrMissingSession,
	paymentdomain.ErrMissingCustomer,
	paymentdomain.ErrMissingSubscription,
	paymentdomain.ErrMissingProduct,
	paymentdomain.ErrMissingClientReference,
	paymentdomain.ErrUnknownPlan,
	paymentdomain.ErrGatewayDisabled,
	orgdomain.ErrBillingNotFound,
	orgdomain.ErrNotMember,
}

func errorCode(err error) string {
	for _, known := range knownCodes {
		if errors.Is(err, known) {
			return known.Error()
		}
	}
	return "checkout_sync_failed"
}

func (s *Service) Start(ctx context.Context, req paymentdomain.StartRequest) (*paymentdomain.CheckoutSession, error) {
	if req.BuyerUserID == 0 {
		return nil, paymentdomain.ErrInvalidBuyer
	}
	if s.gateway == nil {
		return nil, paymentdomain.ErrGatewayDisabled
	}

	tier, version, err := s.tiers.GetForSale(ctx, req.TierID)
	if err != nil {
		return nil, err
	}
	org, err := s.orgs.GetByID(ctx, tier.OrgID)
	if err != nil {
		return nil, err
	}
	if !org.CanAcceptPayments() {
		return nil, paymentdomain.ErrPaymentsDisabled
	}
	buyer, err := s.orgs.GetUser(ctx, req.BuyerUserID)
	if err != nil {
		return nil, err
	}

	site := s.siteURL(org)
	checkout := paymentdomain.CheckoutRequest{
		AccountID:         *org.StripeAccountID,
		Recurring:         version.Cadence.Recurring(),
		ProductName:       tier.Name,
		Amount:            version.Price,
		Currency:          version.Currency,
		Interval:          string(version.Cadence),
		SuccessURL:        site + "/checkout/success?session_id={CHECKOUT_SESSION_ID}",
		CancelURL:         site + "/",
		ClientReferenceID: ClientReference(buyer.ID, org.ID),
		CustomerEmail:     buyer.Email,
		Metadata: stripeadapter.PurchaseMetadata{
			OrgID:         org.ID,
			BuyerUserID:   buyer.ID,
			TierVersionID: version.ID,
		}.Map(),
		ApplicationFeePercent: s.platform.Get().ApplicationFeePercent,
	}
	if version.StripePriceID != nil {
		checkout.PriceID = *version.StripePriceID
	}

	session, err := s.gateway.CreateCheckoutSession(ctx, checkout)
	if err != nil {
		return nil, err
	}

	s.log.Info("checkout started",
		zap.String("org_id", org.ID.String()),
		zap.String("tier_version_id", version.ID.String()),
		zap.String("checkout_session_id", session.ID),
	)
	return session, nil
}

func (s *Service) siteURL(org *orgdomain.Organization) string {
	if org.CustomDomain != nil && strings.TrimSpace(*org.CustomDomain) != "" {
		return "https://" + strings.TrimSpace(*org.CustomDomain)
	}
	return "https://" + org.Slug + "." + s.rootDomain
}
