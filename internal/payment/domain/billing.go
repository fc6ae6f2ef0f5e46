package domain

import (
	orgdomain "github.com/gitwallet/market/internal/organization/domain"
	stripe "github.com/stripe/stripe-go/v82"
)

// BillingStatus maps a vendor subscription status onto the organization's
// billing status.
func BillingStatus(vendorStatus string) string {
	switch stripe.SubscriptionStatus(vendorStatus) {
	case stripe.SubscriptionStatusActive, stripe.SubscriptionStatusTrialing:
		return orgdomain.BillingStatusActive
	case stripe.SubscriptionStatusPastDue, stripe.SubscriptionStatusUnpaid:
		return orgdomain.BillingStatusPastDue
	case stripe.SubscriptionStatusCanceled, stripe.SubscriptionStatusIncompleteExpired:
		return orgdomain.BillingStatusCancelled
	default:
		return orgdomain.BillingStatusInactive
	}
}
