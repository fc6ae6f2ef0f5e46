// Package domain contains the subscription model and its state derivation.
package domain

import (
	"time"

	"github.com/bwmarrin/snowflake"
)

// State is the persisted subscription state. Whether a subscription is
// active is derived, never stored.
type State string

const (
	StateRenewing  State = "renewing"
	StateCancelled State = "cancelled"
)

// Subscription links a buyer to the TierVersion they purchased.
type Subscription struct {
	ID                   snowflake.ID `gorm:"primaryKey" json:"id"`
	OrgID                snowflake.ID `gorm:"not null;index" json:"org_id"`
	BuyerUserID          snowflake.ID `gorm:"not null;index" json:"buyer_user_id"`
	TierID               snowflake.ID `gorm:"not null;index" json:"tier_id"`
	TierVersionID        snowflake.ID `gorm:"not null;index" json:"tier_version_id"`
	StripeSubscriptionID string       `gorm:"type:text;not null;uniqueIndex:ux_subscriptions_stripe_id" json:"stripe_subscription_id"`
	StripeCustomerID     string       `gorm:"type:text;not null;default:''" json:"stripe_customer_id"`
	State                State        `gorm:"type:text;not null" json:"state"`
	ActiveUntil          *time.Time   `json:"active_until,omitempty"`
	EndedAt              *time.Time   `json:"ended_at,omitempty"`
	CreatedAt            time.Time    `gorm:"not null" json:"created_at"`
	UpdatedAt            time.Time    `gorm:"not null" json:"updated_at"`
}

func (Subscription) TableName() string { return "subscriptions" }

func (s Subscription) IsRenewing() bool {
	return s.State == StateRenewing
}

// IsFinishingMonth reports a subscription that will not renew but is still
// inside its paid period.
func (s Subscription) IsFinishingMonth(now time.Time) bool {
	return s.ActiveUntil != nil && s.ActiveUntil.After(now)
}

func (s Subscription) IsActive(now time.Time) bool {
	return s.IsRenewing() || s.IsFinishingMonth(now)
}

func (s Subscription) IsCancelled() bool {
	return s.State == StateCancelled
}

// IsEnded reports a subscription the vendor has terminated. It never renews again.
func (s Subscription) IsEnded() bool {
	return s.EndedAt != nil
}

// VendorSnapshot is the subset of a Stripe subscription that drives local state.
type VendorSnapshot struct {
	Status            string
	CancelAtPeriodEnd bool
	CurrentPeriodEnd  *time.Time
	CanceledAt        *time.Time
	EndedAt           *time.Time
	CustomerID        string
}

// Stripe subscription statuses that mean the subscription has ended.
var endedStatuses = map[string]struct{}{
	"canceled":           {},
	"incomplete_expired": {},
}

// Apply derives local state from the vendor snapshot. A subscription set to
// cancel at period end keeps the vendor period end verbatim as ActiveUntil;
// an ended one is active until the moment it ended. Once ended, later
// snapshots are stale deliveries and leave the subscription untouched.
func (v VendorSnapshot) Apply(sub *Subscription, now time.Time) {
	if sub.IsEnded() {
		return
	}
	if v.CustomerID != "" {
		sub.StripeCustomerID = v.CustomerID
	}

	if _, ended := endedStatuses[v.Status]; ended {
		sub.State = StateCancelled
		switch {
		case v.EndedAt != nil:
			sub.ActiveUntil = cloneTime(v.EndedAt)
		case v.CanceledAt != nil:
			sub.ActiveUntil = cloneTime(v.CanceledAt)
		default:
			at := now
			sub.ActiveUntil = &at
		}
		sub.EndedAt = cloneTime(sub.ActiveUntil)
		return
	}

	if v.CancelAtPeriodEnd {
		sub.State = StateCancelled
		sub.ActiveUntil = cloneTime(v.CurrentPeriodEnd)
		return
	}

	sub.State = StateRenewing
	sub.ActiveUntil = nil
}

func cloneTime(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	v := t.UTC()
	return &v
}
