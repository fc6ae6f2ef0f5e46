package server

import (
	"errors"
	"net/http"
	"strings"

	"github.com/bwmarrin/snowflake"
	"github.com/gin-gonic/gin"
	tierdomain "github.com/gitwallet/market/internal/tier/domain"
	"github.com/shopspring/decimal"
)

type createTierRequest struct {
	Name        string          `json:"name"`
	Description string          `json:"description"`
	Price       decimal.Decimal `json:"price"`
	Currency    string          `json:"currency"`
	Cadence     string          `json:"cadence"`
	Features    []string        `json:"features"`
}

type updateTierRequest struct {
	Name        *string          `json:"name"`
	Description *string          `json:"description"`
	Price       *decimal.Decimal `json:"price"`
	Currency    *string          `json:"currency"`
	Cadence     *string          `json:"cadence"`
	Features    *[]string        `json:"features"`
}

func (s *Server) ListTiers(c *gin.Context) {
	includeArchived, err := parseOptionalBool(c.Query("include_archived"))
	if err != nil {
		AbortWithError(c, newValidationError("include_archived", "invalid_include_archived", "invalid include_archived"))
		return
	}

	resp, err := s.tierSvc.List(c.Request.Context(), orgIDFromContext(c), includeArchived != nil && *includeArchived)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": resp})
}

func (s *Server) GetTier(c *gin.Context) {
	tierID, err := tierIDFromParam(c)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	resp, err := s.tierSvc.Get(c.Request.Context(), orgIDFromContext(c), tierID)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": resp})
}

func (s *Server) CreateTier(c *gin.Context) {
	var req createTierRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}

	resp, err := s.tierSvc.Create(c.Request.Context(), tierdomain.CreateRequest{
		OrgID:       orgIDFromContext(c),
		Name:        strings.TrimSpace(req.Name),
		Description: strings.TrimSpace(req.Description),
		Price:       req.Price,
		Currency:    strings.TrimSpace(req.Currency),
		Cadence:     tierdomain.Cadence(strings.ToLower(strings.TrimSpace(req.Cadence))),
		Features:    req.Features,
	})
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusCreated, gin.H{"data": resp})
}

// UpdateTier applies a partial edit. A tier that has already been sold gets
// a new version instead of an in-place rewrite.
func (s *Server) UpdateTier(c *gin.Context) {
	tierID, err := tierIDFromParam(c)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	var req updateTierRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}

	update := tierdomain.UpdateRequest{
		OrgID:       orgIDFromContext(c),
		TierID:      tierID,
		Name:        req.Name,
		Description: req.Description,
		Price:       req.Price,
		Currency:    req.Currency,
		Features:    req.Features,
	}
	if req.Cadence != nil {
		cadence := tierdomain.Cadence(strings.ToLower(strings.TrimSpace(*req.Cadence)))
		update.Cadence = &cadence
	}

	resp, err := s.tierSvc.Update(c.Request.Context(), update)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": resp})
}

func (s *Server) ListTierVersions(c *gin.Context) {
	tierID, err := tierIDFromParam(c)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	resp, err := s.tierSvc.ListVersions(c.Request.Context(), orgIDFromContext(c), tierID)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": resp})
}

func (s *Server) ArchiveTier(c *gin.Context) {
	tierID, err := tierIDFromParam(c)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	if err := s.tierSvc.Archive(c.Request.Context(), orgIDFromContext(c), tierID); err != nil {
		AbortWithError(c, err)
		return
	}

	c.Status(http.StatusNoContent)
}

func tierIDFromParam(c *gin.Context) (snowflake.ID, error) {
	id, err := parseOptionalSnowflakeID(c.Param("id"))
	if err != nil || id == nil {
		return 0, newValidationError("id", "invalid_id", "invalid tier id")
	}
	return *id, nil
}

func isTierValidationError(err error) bool {
	switch {
	case errors.Is(err, tierdomain.ErrInvalidOrganization),
		errors.Is(err, tierdomain.ErrInvalidName),
		errors.Is(err, tierdomain.ErrInvalidPrice),
		errors.Is(err, tierdomain.ErrInvalidCurrency),
		errors.Is(err, tierdomain.ErrInvalidCadence):
		return true
	default:
		return false
	}
}
