package stripe

import (
	"strings"
	"time"

	"github.com/bwmarrin/snowflake"
	paymentdomain "github.com/gitwallet/market/internal/payment/domain"
	subscriptiondomain "github.com/gitwallet/market/internal/subscription/domain"
	stripego "github.com/stripe/stripe-go/v82"
)

// Metadata keys stamped on checkout sessions, subscriptions and payment
// intents so webhook handlers can find the purchased TierVersion.
const (
	MetadataTierVersionID = "tier_version_id"
	MetadataBuyerUserID   = "buyer_user_id"
	MetadataOrgID         = "org_id"
)

// Snapshot converts a vendor subscription into the fields local state is
// derived from. The period end is the latest end across subscription items.
func Snapshot(sub *stripego.Subscription) subscriptiondomain.VendorSnapshot {
	if sub == nil {
		return subscriptiondomain.VendorSnapshot{}
	}
	snapshot := subscriptiondomain.VendorSnapshot{
		Status:            string(sub.Status),
		CancelAtPeriodEnd: sub.CancelAtPeriodEnd,
		CanceledAt:        unixTime(sub.CanceledAt),
		EndedAt:           unixTime(sub.EndedAt),
	}
	if sub.Customer != nil {
		snapshot.CustomerID = sub.Customer.ID
	}

	var periodEnd int64
	if sub.Items != nil {
		for _, item := range sub.Items.Data {
			if item != nil && item.CurrentPeriodEnd > periodEnd {
				periodEnd = item.CurrentPeriodEnd
			}
		}
	}
	snapshot.CurrentPeriodEnd = unixTime(periodEnd)
	return snapshot
}

// PurchaseMetadata is the buyer and TierVersion a vendor object was sold for.
type PurchaseMetadata struct {
	OrgID         snowflake.ID
	BuyerUserID   snowflake.ID
	TierVersionID snowflake.ID
}

// ParsePurchaseMetadata reads the purchase ids. The org id is optional.
func ParsePurchaseMetadata(metadata map[string]string) (PurchaseMetadata, error) {
	var out PurchaseMetadata
	versionID, ok := readID(metadata, MetadataTierVersionID)
	if !ok {
		return out, paymentdomain.ErrMissingMetadata
	}
	buyerID, ok := readID(metadata, MetadataBuyerUserID)
	if !ok {
		return out, paymentdomain.ErrMissingMetadata
	}
	out.TierVersionID = versionID
	out.BuyerUserID = buyerID
	if orgID, ok := readID(metadata, MetadataOrgID); ok {
		out.OrgID = orgID
	}
	return out, nil
}

func (m PurchaseMetadata) Map() map[string]string {
	out := map[string]string{
		MetadataTierVersionID: m.TierVersionID.String(),
		MetadataBuyerUserID:   m.BuyerUserID.String(),
	}
	if m.OrgID != 0 {
		out[MetadataOrgID] = m.OrgID.String()
	}
	return out
}

func readID(metadata map[string]string, key string) (snowflake.ID, bool) {
	raw := strings.TrimSpace(metadata[key])
	if raw == "" {
		return 0, false
	}
	id, err := snowflake.ParseString(raw)
	if err != nil || id == 0 {
		return 0, false
	}
	return id, true
}

func checkoutSession(s *stripego.CheckoutSession) *paymentdomain.CheckoutSession {
	out := &paymentdomain.CheckoutSession{
		ID:                s.ID,
		URL:               s.URL,
		Mode:              string(s.Mode),
		PaymentStatus:     string(s.PaymentStatus),
		ClientReferenceID: strings.TrimSpace(s.ClientReferenceID),
		AmountTotal:       s.AmountTotal,
		Currency:          string(s.Currency),
		Metadata:          s.Metadata,
	}
	if s.Customer != nil {
		out.CustomerID = s.Customer.ID
	}
	if s.Subscription != nil {
		out.SubscriptionID = s.Subscription.ID
		out.SubscriptionStatus = string(s.Subscription.Status)
	}
	if s.PaymentIntent != nil {
		out.PaymentIntentID = s.PaymentIntent.ID
	}
	if s.LineItems != nil {
		for _, item := range s.LineItems.Data {
			if item == nil || item.Price == nil || item.Price.Product == nil || item.Price.Product.ID == "" {
				continue
			}
			out.ProductIDs = append(out.ProductIDs, item.Price.Product.ID)
		}
	}
	return out
}

// CheckoutSessionFromEvent converts a checkout session carried in a
// webhook payload.
func CheckoutSessionFromEvent(s *stripego.CheckoutSession) *paymentdomain.CheckoutSession {
	return checkoutSession(s)
}

func unixTime(value int64) *time.Time {
	if value <= 0 {
		return nil
	}
	t := time.Unix(value, 0).UTC()
	return &t
}

// EventTime is the vendor creation time of an event.
func EventTime(event stripego.Event) time.Time {
	if t := unixTime(event.Created); t != nil {
		return *t
	}
	return time.Time{}
}
