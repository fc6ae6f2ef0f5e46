package payment

import (
	stripeadapter "github.com/gitwallet/market/internal/payment/adapters/stripe"
	"github.com/gitwallet/market/internal/payment/checkout"
	paymentdomain "github.com/gitwallet/market/internal/payment/domain"
	"github.com/gitwallet/market/internal/payment/repository"
	"github.com/gitwallet/market/internal/payment/webhook"
	subscriptiondomain "github.com/gitwallet/market/internal/subscription/domain"
	tierdomain "github.com/gitwallet/market/internal/tier/domain"
	"go.uber.org/fx"
)

var Module = fx.Module("payment.service",
	fx.Provide(repository.Provide),
	fx.Provide(stripeadapter.NewGateway),
	fx.Provide(
		provideTierGateway,
		provideSubscriptionGateway,
		provideCheckoutGateway,
	),
	fx.Provide(fx.Annotate(stripeadapter.NewVerifier, fx.As(new(paymentdomain.EventVerifier)))),
	fx.Provide(webhook.NewService),
	fx.Provide(checkout.NewService),
)

// The gateway interfaces resolve to nil without a secret key so dependent
// services skip vendor calls.

func provideTierGateway(g *stripeadapter.Gateway) tierdomain.Gateway {
	if !g.Enabled() {
		return nil
	}
	return g
}

func provideSubscriptionGateway(g *stripeadapter.Gateway) subscriptiondomain.Gateway {
	if !g.Enabled() {
		return nil
	}
	return g
}

func provideCheckoutGateway(g *stripeadapter.Gateway) paymentdomain.CheckoutGateway {
	if !g.Enabled() {
		return nil
	}
	return g
}
