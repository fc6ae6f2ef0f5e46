package webhook

import (
	"context"
	"encoding/json"
	"errors"

	chargedomain "github.com/gitwallet/market/internal/charge/domain"
	orgdomain "github.com/gitwallet/market/internal/organization/domain"
	stripeadapter "github.com/gitwallet/market/internal/payment/adapters/stripe"
	paymentdomain "github.com/gitwallet/market/internal/payment/domain"
	subscriptiondomain "github.com/gitwallet/market/internal/subscription/domain"
	"github.com/shopspring/decimal"
	stripego "github.com/stripe/stripe-go/v82"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

type handlerFunc func(ctx context.Context, tx *gorm.DB, event stripego.Event) error

func (s *Service) connectHandlers() map[string]handlerFunc {
	return map[string]handlerFunc{
		"customer.subscription.created":    s.subscriptionCreated,
		"customer.subscription.updated":    s.subscriptionUpdated,
		"customer.subscription.deleted":    s.subscriptionDeleted,
		"charge.refunded":                  s.chargeRefunded,
		"checkout.session.completed":       s.checkoutCompleted,
		"account.updated":                  s.accountUpdated,
		"account.application.deauthorized": s.accountDeauthorized,
	}
}

func (s *Service) platformHandlers() map[string]handlerFunc {
	return map[string]handlerFunc{
		"customer.subscription.updated": s.platformSubscriptionChanged,
		"customer.subscription.deleted": s.platformSubscriptionChanged,
	}
}

func decodeObject(event stripego.Event, out any) error {
	if event.Data == nil || len(event.Data.Raw) == 0 {
		return paymentdomain.ErrInvalidPayload
	}
	if err := json.Unmarshal(event.Data.Raw, out); err != nil {
		return paymentdomain.ErrInvalidPayload
	}
	return nil
}

func (s *Service) subscriptionCreated(ctx context.Context, tx *gorm.DB, event stripego.Event) error {
	var sub stripego.Subscription
	if err := decodeObject(event, &sub); err != nil {
		return err
	}
	return s.createSubscription(ctx, tx, event, &sub)
}

func (s *Service) createSubscription(ctx context.Context, tx *gorm.DB, event stripego.Event, sub *stripego.Subscription) error {
	meta, err := stripeadapter.ParsePurchaseMetadata(sub.Metadata)
	if err != nil {
		// Subscriptions opened outside a tier checkout have nothing to link to.
		s.log.Warn("subscription without purchase metadata",
			zap.String("stripe_event_id", event.ID),
			zap.String("stripe_subscription_id", sub.ID),
		)
		return nil
	}

	_, created, err := s.subscriptions.CreateFromStripe(ctx, tx, subscriptiondomain.CreateFromStripeRequest{
		OrgID:                meta.OrgID,
		BuyerUserID:          meta.BuyerUserID,
		TierVersionID:        meta.TierVersionID,
		StripeSubscriptionID: sub.ID,
		Snapshot:             stripeadapter.Snapshot(sub),
	})
	if err != nil {
		return err
	}
	if !created {
		// The row already tracks later events; a created snapshot is never newer.
		s.log.Debug("subscription already recorded",
			zap.String("stripe_event_id", event.ID),
			zap.String("stripe_subscription_id", sub.ID),
		)
	}
	return nil
}

func (s *Service) subscriptionUpdated(ctx context.Context, tx *gorm.DB, event stripego.Event) error {
	var sub stripego.Subscription
	if err := decodeObject(event, &sub); err != nil {
		return err
	}
	_, err := s.subscriptions.SyncFromStripe(ctx, tx, sub.ID, stripeadapter.Snapshot(&sub))
	if errors.Is(err, subscriptiondomain.ErrNotFound) {
		if _, metaErr := stripeadapter.ParsePurchaseMetadata(sub.Metadata); metaErr == nil {
			// The update arrived before the create.
			return s.createSubscription(ctx, tx, event, &sub)
		}
	}
	return err
}

func (s *Service) subscriptionDeleted(ctx context.Context, tx *gorm.DB, event stripego.Event) error {
	var sub stripego.Subscription
	if err := decodeObject(event, &sub); err != nil {
		return err
	}
	snapshot := stripeadapter.Snapshot(&sub)
	if snapshot.EndedAt == nil {
		at := stripeadapter.EventTime(event)
		if !at.IsZero() {
			snapshot.EndedAt = &at
		}
	}
	_, err := s.subscriptions.MarkDeleted(ctx, tx, sub.ID, snapshot)
	return err
}

func (s *Service) chargeRefunded(ctx context.Context, tx *gorm.DB, event stripego.Event) error {
	var charge stripego.Charge
	if err := decodeObject(event, &charge); err != nil {
		return err
	}
	if !charge.Refunded {
		// Partial refunds leave the purchase in place.
		return nil
	}

	refund := chargedomain.Refund{
		StripeChargeID: charge.ID,
		RefundedAt:     stripeadapter.EventTime(event),
	}
	if charge.PaymentIntent != nil {
		refund.StripePaymentIntentID = charge.PaymentIntent.ID
	}
	if refund.RefundedAt.IsZero() {
		refund.RefundedAt = s.clock.Now()
	}
	_, err := s.charges.MarkRefunded(ctx, tx, refund)
	return err
}

func (s *Service) checkoutCompleted(ctx context.Context, tx *gorm.DB, event stripego.Event) error {
	var raw stripego.CheckoutSession
	if err := decodeObject(event, &raw); err != nil {
		return err
	}
	session := stripeadapter.CheckoutSessionFromEvent(&raw)
	if session.Mode != string(stripego.CheckoutSessionModePayment) {
		// Recurring purchases are recorded from the subscription events.
		return nil
	}
	if session.PaymentStatus != string(stripego.CheckoutSessionPaymentStatusPaid) {
		return nil
	}

	meta, err := stripeadapter.ParsePurchaseMetadata(session.Metadata)
	if err != nil {
		s.log.Warn("checkout without purchase metadata",
			zap.String("stripe_event_id", event.ID),
			zap.String("checkout_session_id", session.ID),
		)
		return nil
	}

	_, _, err = s.charges.RecordFromCheckout(ctx, tx, chargedomain.CheckoutPayment{
		OrgID:                 meta.OrgID,
		BuyerUserID:           meta.BuyerUserID,
		TierVersionID:         meta.TierVersionID,
		StripePaymentIntentID: session.PaymentIntentID,
		Amount:                decimal.New(session.AmountTotal, -2),
		Currency:              session.Currency,
	})
	return err
}

func (s *Service) accountUpdated(ctx context.Context, tx *gorm.DB, event stripego.Event) error {
	var account stripego.Account
	if err := decodeObject(event, &account); err != nil {
		return err
	}
	accountID := account.ID
	if accountID == "" {
		accountID = event.Account
	}
	return s.orgs.UpdateAccountStatus(ctx, tx, accountID, orgdomain.AccountStatus{
		ChargesEnabled:   account.ChargesEnabled,
		PayoutsEnabled:   account.PayoutsEnabled,
		DetailsSubmitted: account.DetailsSubmitted,
	})
}

func (s *Service) accountDeauthorized(ctx context.Context, tx *gorm.DB, event stripego.Event) error {
	if event.Account == "" {
		return paymentdomain.ErrInvalidPayload
	}
	return s.orgs.MarkAccountDeauthorized(ctx, tx, event.Account)
}

func (s *Service) platformSubscriptionChanged(ctx context.Context, tx *gorm.DB, event stripego.Event) error {
	var sub stripego.Subscription
	if err := decodeObject(event, &sub); err != nil {
		return err
	}
	if sub.Customer == nil || sub.Customer.ID == "" {
		return paymentdomain.ErrMissingCustomer
	}

	status := paymentdomain.BillingStatus(string(sub.Status))
	if string(event.Type) == "customer.subscription.deleted" {
		status = orgdomain.BillingStatusCancelled
	}
	return s.orgs.UpdateBillingStatusByCustomer(ctx, tx, sub.Customer.ID, status)
}
