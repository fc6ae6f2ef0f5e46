package domain

import (
	"context"

	"github.com/bwmarrin/snowflake"
	"github.com/shopspring/decimal"
)

type ProductRequest struct {
	AccountID   string
	TierID      snowflake.ID
	Name        string
	Description string
}

type PriceRequest struct {
	AccountID     string
	ProductID     string
	TierVersionID snowflake.ID
	Amount        decimal.Decimal
	Currency      string
	Cadence       Cadence
}

// Gateway publishes tiers to the payment vendor on the organization's
// connected account.
type Gateway interface {
	CreateProduct(ctx context.Context, req ProductRequest) (string, error)
	CreatePrice(ctx context.Context, req PriceRequest) (string, error)
	ArchiveProduct(ctx context.Context, accountID, productID string) error
	ArchivePrice(ctx context.Context, accountID, priceID string) error
}
