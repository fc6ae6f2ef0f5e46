package stripe

import (
	"context"
	"strings"

	"github.com/gitwallet/market/internal/config"
	paymentdomain "github.com/gitwallet/market/internal/payment/domain"
	subscriptiondomain "github.com/gitwallet/market/internal/subscription/domain"
	tierdomain "github.com/gitwallet/market/internal/tier/domain"
	"github.com/shopspring/decimal"
	stripego "github.com/stripe/stripe-go/v82"
	"github.com/stripe/stripe-go/v82/client"
	"go.uber.org/zap"
)

// Gateway is the vendor API client shared by tier publishing, subscription
// renewal changes and checkout. Calls on behalf of a seller carry the
// connected account id.
type Gateway struct {
	api *client.API
	log *zap.Logger
}

func NewGateway(cfg config.Config, log *zap.Logger) *Gateway {
	return New(cfg.Stripe.SecretKey, nil, log)
}

// New builds a gateway for the secret key. A nil backends value uses the
// vendor defaults; an empty key yields a disabled gateway.
func New(secretKey string, backends *stripego.Backends, log *zap.Logger) *Gateway {
	g := &Gateway{log: log.Named("payment.stripe")}
	secretKey = strings.TrimSpace(secretKey)
	if secretKey == "" {
		return g
	}
	g.api = &client.API{}
	g.api.Init(secretKey, backends)
	return g
}

func (g *Gateway) Enabled() bool {
	return g != nil && g.api != nil
}

func (g *Gateway) CreateProduct(ctx context.Context, req tierdomain.ProductRequest) (string, error) {
	if !g.Enabled() {
		return "", paymentdomain.ErrGatewayDisabled
	}
	params := &stripego.ProductParams{
		Name:     stripego.String(req.Name),
		Metadata: map[string]string{"tier_id": req.TierID.String()},
	}
	if desc := strings.TrimSpace(req.Description); desc != "" {
		params.Description = stripego.String(desc)
	}
	params.Context = ctx
	params.SetStripeAccount(req.AccountID)

	product, err := g.api.Products.New(params)
	if err != nil {
		g.log.Warn("create product failed", zap.String("account_id", req.AccountID), zap.Error(err))
		return "", err
	}
	return product.ID, nil
}

func (g *Gateway) CreatePrice(ctx context.Context, req tierdomain.PriceRequest) (string, error) {
	if !g.Enabled() {
		return "", paymentdomain.ErrGatewayDisabled
	}
	params := &stripego.PriceParams{
		Product:    stripego.String(req.ProductID),
		Currency:   stripego.String(strings.ToLower(req.Currency)),
		UnitAmount: stripego.Int64(toMinorUnits(req.Amount)),
		Metadata:   map[string]string{MetadataTierVersionID: req.TierVersionID.String()},
	}
	if req.Cadence.Recurring() {
		params.Recurring = &stripego.PriceRecurringParams{Interval: stripego.String(string(req.Cadence))}
	}
	params.Context = ctx
	params.SetStripeAccount(req.AccountID)

	price, err := g.api.Prices.New(params)
	if err != nil {
		g.log.Warn("create price failed",
			zap.String("account_id", req.AccountID),
			zap.String("tier_version_id", req.TierVersionID.String()),
			zap.Error(err),
		)
		return "", err
	}
	return price.ID, nil
}

// ArchiveProduct deactivates a product so it can no longer be sold.
func (g *Gateway) ArchiveProduct(ctx context.Context, accountID, productID string) error {
	if !g.Enabled() {
		return paymentdomain.ErrGatewayDisabled
	}
	params := &stripego.ProductParams{Active: stripego.Bool(false)}
	params.Context = ctx
	params.SetStripeAccount(accountID)
	if _, err := g.api.Products.Update(productID, params); err != nil {
		g.log.Warn("archive product failed", zap.String("account_id", accountID), zap.String("product_id", productID), zap.Error(err))
		return err
	}
	return nil
}

func (g *Gateway) ArchivePrice(ctx context.Context, accountID, priceID string) error {
	if !g.Enabled() {
		return paymentdomain.ErrGatewayDisabled
	}
	params := &stripego.PriceParams{Active: stripego.Bool(false)}
	params.Context = ctx
	params.SetStripeAccount(accountID)
	if _, err := g.api.Prices.Update(priceID, params); err != nil {
		g.log.Warn("archive price failed", zap.String("account_id", accountID), zap.String("price_id", priceID), zap.Error(err))
		return err
	}
	return nil
}

func (g *Gateway) CancelAtPeriodEnd(ctx context.Context, accountID, subscriptionID string) (subscriptiondomain.VendorSnapshot, error) {
	return g.setCancelAtPeriodEnd(ctx, accountID, subscriptionID, true)
}

func (g *Gateway) Resume(ctx context.Context, accountID, subscriptionID string) (subscriptiondomain.VendorSnapshot, error) {
	return g.setCancelAtPeriodEnd(ctx, accountID, subscriptionID, false)
}

func (g *Gateway) setCancelAtPeriodEnd(ctx context.Context, accountID, subscriptionID string, cancel bool) (subscriptiondomain.VendorSnapshot, error) {
	if !g.Enabled() {
		return subscriptiondomain.VendorSnapshot{}, paymentdomain.ErrGatewayDisabled
	}
	params := &stripego.SubscriptionParams{CancelAtPeriodEnd: stripego.Bool(cancel)}
	params.Context = ctx
	params.SetStripeAccount(accountID)

	sub, err := g.api.Subscriptions.Update(subscriptionID, params)
	if err != nil {
		return subscriptiondomain.VendorSnapshot{}, err
	}
	return Snapshot(sub), nil
}

// GetCheckoutSession loads a platform checkout session with its customer,
// subscription and purchased products expanded.
func (g *Gateway) GetCheckoutSession(ctx context.Context, sessionID string) (*paymentdomain.CheckoutSession, error) {
	if !g.Enabled() {
		return nil, paymentdomain.ErrGatewayDisabled
	}
	params := &stripego.CheckoutSessionParams{}
	params.Context = ctx
	params.AddExpand("customer")
	params.AddExpand("subscription")
	params.AddExpand("line_items.data.price.product")

	session, err := g.api.CheckoutSessions.Get(sessionID, params)
	if err != nil {
		return nil, err
	}
	return checkoutSession(session), nil
}

func (g *Gateway) CreateCheckoutSession(ctx context.Context, req paymentdomain.CheckoutRequest) (*paymentdomain.CheckoutSession, error) {
	if !g.Enabled() {
		return nil, paymentdomain.ErrGatewayDisabled
	}

	line := &stripego.CheckoutSessionLineItemParams{Quantity: stripego.Int64(1)}
	if req.PriceID != "" {
		line.Price = stripego.String(req.PriceID)
	} else {
		line.PriceData = &stripego.CheckoutSessionLineItemPriceDataParams{
			Currency:   stripego.String(strings.ToLower(req.Currency)),
			UnitAmount: stripego.Int64(toMinorUnits(req.Amount)),
			ProductData: &stripego.CheckoutSessionLineItemPriceDataProductDataParams{
				Name: stripego.String(req.ProductName),
			},
		}
		if req.Recurring {
			line.PriceData.Recurring = &stripego.CheckoutSessionLineItemPriceDataRecurringParams{
				Interval: stripego.String(req.Interval),
			}
		}
	}

	params := &stripego.CheckoutSessionParams{
		LineItems:  []*stripego.CheckoutSessionLineItemParams{line},
		SuccessURL: stripego.String(req.SuccessURL),
		CancelURL:  stripego.String(req.CancelURL),
		Metadata:   req.Metadata,
	}
	if req.ClientReferenceID != "" {
		params.ClientReferenceID = stripego.String(req.ClientReferenceID)
	}
	if req.CustomerEmail != "" {
		params.CustomerEmail = stripego.String(req.CustomerEmail)
	}
	if req.Recurring {
		params.Mode = stripego.String(string(stripego.CheckoutSessionModeSubscription))
		params.SubscriptionData = &stripego.CheckoutSessionSubscriptionDataParams{Metadata: req.Metadata}
		if req.ApplicationFeePercent > 0 {
			params.SubscriptionData.ApplicationFeePercent = stripego.Float64(req.ApplicationFeePercent)
		}
	} else {
		params.Mode = stripego.String(string(stripego.CheckoutSessionModePayment))
		params.PaymentIntentData = &stripego.CheckoutSessionPaymentIntentDataParams{Metadata: req.Metadata}
		if fee := applicationFee(req.Amount, req.ApplicationFeePercent); fee > 0 {
			params.PaymentIntentData.ApplicationFeeAmount = stripego.Int64(fee)
		}
	}
	params.Context = ctx
	if req.AccountID != "" {
		params.SetStripeAccount(req.AccountID)
	}

	session, err := g.api.CheckoutSessions.New(params)
	if err != nil {
		g.log.Warn("create checkout session failed", zap.String("account_id", req.AccountID), zap.Error(err))
		return nil, err
	}
	return checkoutSession(session), nil
}

func toMinorUnits(amount decimal.Decimal) int64 {
	return amount.Shift(2).Round(0).IntPart()
}

func applicationFee(amount decimal.Decimal, percent float64) int64 {
	if percent <= 0 {
		return 0
	}
	fee := amount.Mul(decimal.NewFromFloat(percent)).Div(decimal.NewFromInt(100))
	return toMinorUnits(fee)
}
