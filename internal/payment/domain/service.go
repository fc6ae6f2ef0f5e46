package domain

import (
	"context"

	"github.com/bwmarrin/snowflake"
	orgdomain "github.com/gitwallet/market/internal/organization/domain"
	"github.com/gitwallet/market/pkg/db/pagination"
)

type ListRequest struct {
	Source    string `form:"source"`
	Type      string `form:"type"`
	Processed *bool  `form:"processed"`
	pagination.Pagination
}

type ListResponse struct {
	pagination.PageInfo
	Events []StripeEvent `json:"events"`
}

// WebhookService records and applies vendor events.
type WebhookService interface {
	// Ingest verifies a raw delivery and applies it at most once.
	Ingest(ctx context.Context, source string, payload []byte, signature string) (*Result, error)
	// Process re-runs a stored event that has not been applied yet.
	Process(ctx context.Context, id snowflake.ID) (*Result, error)
	Get(ctx context.Context, id snowflake.ID) (*StripeEvent, error)
	List(ctx context.Context, req ListRequest) (ListResponse, error)
}

// Checkout redirect statuses understood by the billing page.
const (
	CheckoutStatusSuccess   = "success"
	CheckoutStatusError     = "error"
	CheckoutStatusCancelled = "cancelled"
)

type StartRequest struct {
	TierID      snowflake.ID
	BuyerUserID snowflake.ID
}

type CheckoutService interface {
	// Sync reconciles a completed platform checkout with the organization's
	// billing record.
	Sync(ctx context.Context, sessionID string) (*orgdomain.Billing, error)
	// RedirectURL is the billing page location reporting a checkout result.
	RedirectURL(status string, cause error) string
	// Start opens a vendor checkout for a tier on the seller's connected
	// account, priced at the tier's current version.
	Start(ctx context.Context, req StartRequest) (*CheckoutSession, error)
}
