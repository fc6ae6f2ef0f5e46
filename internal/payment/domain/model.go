package domain

import (
	"time"

	"github.com/bwmarrin/snowflake"
	"gorm.io/datatypes"
)

// Webhook sources. Connect events come from sellers' connected accounts;
// platform events concern organizations' own market.dev plans.
const (
	SourceConnect  = "connect"
	SourcePlatform = "platform"
)

// StripeEvent is the audit and idempotency record of one received vendor event.
type StripeEvent struct {
	ID            snowflake.ID   `json:"id" gorm:"primaryKey"`
	StripeEventID string         `json:"stripe_event_id" gorm:"type:text;not null;uniqueIndex:ux_stripe_events_stripe_id"`
	Source        string         `json:"source" gorm:"type:text;not null"`
	Type          string         `json:"type" gorm:"type:text;not null;index"`
	AccountID     *string        `json:"account_id,omitempty" gorm:"type:text"`
	Payload       datatypes.JSON `json:"payload" gorm:"type:jsonb;not null"`
	Processed     bool           `json:"processed" gorm:"not null;default:false;index"`
	ProcessedAt   *time.Time     `json:"processed_at,omitempty"`
	Attempts      int            `json:"attempts" gorm:"not null;default:0"`
	LastError     *string        `json:"last_error,omitempty" gorm:"type:text"`
	ReceivedAt    time.Time      `json:"received_at" gorm:"not null"`
}

func (StripeEvent) TableName() string { return "stripe_events" }

// Processing outcomes reported to callers and metrics.
const (
	OutcomeProcessed = "processed"
	OutcomeIgnored   = "ignored"
	OutcomeDuplicate = "duplicate"
	OutcomeDeferred  = "deferred"
	OutcomeFailed    = "failed"
)

type Result struct {
	EventID string `json:"event_id"`
	Type    string `json:"type"`
	Outcome string `json:"outcome"`
}
