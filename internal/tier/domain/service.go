package domain

import (
	"context"
	"errors"

	"github.com/bwmarrin/snowflake"
	"github.com/shopspring/decimal"
)

var (
	ErrInvalidOrganization = errors.New("invalid_organization")
	ErrInvalidName         = errors.New("invalid_name")
	ErrInvalidPrice        = errors.New("invalid_price")
	ErrInvalidCurrency     = errors.New("invalid_currency")
	ErrInvalidCadence      = errors.New("invalid_cadence")
	ErrNotFound            = errors.New("tier_not_found")
	ErrVersionNotFound     = errors.New("tier_version_not_found")
	ErrArchived            = errors.New("tier_archived")
)

type CreateRequest struct {
	OrgID       snowflake.ID
	Name        string
	Description string
	Price       decimal.Decimal
	Currency    string
	Cadence     Cadence
	Features    []string
}

// UpdateRequest carries a partial edit; nil fields are left untouched.
type UpdateRequest struct {
	OrgID       snowflake.ID
	TierID      snowflake.ID
	Name        *string
	Description *string
	Price       *decimal.Decimal
	Currency    *string
	Cadence     *Cadence
	Features    *[]string
}

type UpdateResult struct {
	Tier    *Tier        `json:"tier"`
	Version *TierVersion `json:"version"`
	// Forked is set when the edit produced a new revision instead of
	// rewriting the current one.
	Forked bool `json:"forked"`
}

type Service interface {
	Create(ctx context.Context, req CreateRequest) (*Tier, error)
	Update(ctx context.Context, req UpdateRequest) (*UpdateResult, error)
	Get(ctx context.Context, orgID, tierID snowflake.ID) (*Tier, error)
	List(ctx context.Context, orgID snowflake.ID, includeArchived bool) ([]Tier, error)
	ListVersions(ctx context.Context, orgID, tierID snowflake.ID) ([]TierVersion, error)
	CurrentVersion(ctx context.Context, orgID, tierID snowflake.ID) (*TierVersion, error)
	GetVersion(ctx context.Context, versionID snowflake.ID) (*TierVersion, error)
	// GetForSale returns an unarchived tier together with the version new
	// purchases are priced at.
	GetForSale(ctx context.Context, tierID snowflake.ID) (*Tier, *TierVersion, error)
	Archive(ctx context.Context, orgID, tierID snowflake.ID) error
}
