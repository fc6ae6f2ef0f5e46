package server

import (
	"net/http"

	"github.com/gin-gonic/gin"
	tierdomain "github.com/gitwallet/market/internal/tier/domain"
	"github.com/shopspring/decimal"
)

type siteTier struct {
	ID          string          `json:"id"`
	Name        string          `json:"name"`
	Description string          `json:"description"`
	Price       decimal.Decimal `json:"price"`
	Currency    string          `json:"currency"`
	Cadence     string          `json:"cadence"`
	Features    []string        `json:"features"`
}

type siteTiersResponse struct {
	Organization struct {
		ID   string `json:"id"`
		Name string `json:"name"`
		Slug string `json:"slug"`
	} `json:"organization"`
	Tiers []siteTier `json:"tiers"`
}

// ListSiteTiers serves the public pricing table of the tenant that owns the
// request host.
func (s *Server) ListSiteTiers(c *gin.Context) {
	ctx := c.Request.Context()
	org, err := s.organizationSvc.ResolveHost(ctx, c.Request.Host)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	tiers, err := s.tierSvc.List(ctx, org.ID, false)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	var resp siteTiersResponse
	resp.Organization.ID = org.ID.String()
	resp.Organization.Name = org.Name
	resp.Organization.Slug = org.Slug
	resp.Tiers = make([]siteTier, 0, len(tiers))
	for _, t := range tiers {
		resp.Tiers = append(resp.Tiers, toSiteTier(t))
	}

	c.JSON(http.StatusOK, gin.H{"data": resp})
}

func toSiteTier(t tierdomain.Tier) siteTier {
	features := []string(t.Features)
	if features == nil {
		features = []string{}
	}
	return siteTier{
		ID:          t.ID.String(),
		Name:        t.Name,
		Description: t.Description,
		Price:       t.Price,
		Currency:    t.Currency,
		Cadence:     string(t.Cadence),
		Features:    features,
	}
}
