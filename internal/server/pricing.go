package server

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	pricingdomain "github.com/smallbiznis/paygo/internal/pricing/domain"
	tierdomain "github.com/smallbiznis/paygo/internal/pricingtier/domain"
	"github.com/smallbiznis/paygo/internal/servicetype"
)

func (s *Server) ListCurrentPricing(c *gin.Context) {
	serviceType, err := parseOptionalServiceType(c.Query("service_type"))
	if err != nil {
		AbortWithError(c, pricingdomain.ErrInvalidServiceType)
		return
	}

	resp, err := s.pricingSvc.Current(c.Request.Context(), serviceType)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": resp})
}

func (s *Server) ListPricing(c *gin.Context) {
	serviceType, err := parseOptionalServiceType(c.Query("service_type"))
	if err != nil {
		AbortWithError(c, pricingdomain.ErrInvalidServiceType)
		return
	}

	resp, err := s.pricingSvc.List(c.Request.Context(), serviceType)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": resp})
}

func (s *Server) CreatePricing(c *gin.Context) {
	var req pricingdomain.CreateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}

	resp, err := s.pricingSvc.Create(c.Request.Context(), req)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": resp})
}

func (s *Server) UpdatePricing(c *gin.Context) {
	var req pricingdomain.UpdateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}
	req.ID = strings.TrimSpace(c.Param("id"))

	resp, err := s.pricingSvc.Update(c.Request.Context(), req)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": resp})
}

func (s *Server) DeletePricing(c *gin.Context) {
	if err := s.pricingSvc.Delete(c.Request.Context(), strings.TrimSpace(c.Param("id"))); err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

func (s *Server) ListPricingTiers(c *gin.Context) {
	serviceType, err := servicetype.Parse(c.Query("service_type"))
	if err != nil {
		AbortWithError(c, tierdomain.ErrInvalidServiceType)
		return
	}

	resp, err := s.tierSvc.List(c.Request.Context(), serviceType)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": resp})
}

func (s *Server) UpsertPricingTier(c *gin.Context) {
	var req tierdomain.UpsertRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}

	resp, err := s.tierSvc.CreateOrUpdate(c.Request.Context(), req)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": resp})
}

func (s *Server) DeletePricingTier(c *gin.Context) {
	if err := s.tierSvc.Delete(c.Request.Context(), strings.TrimSpace(c.Param("id"))); err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

func parseOptionalServiceType(value string) (*servicetype.ServiceType, error) {
	trimmed := strings.TrimSpace(value)
	if trimmed == "" {
		return nil, nil
	}
	parsed, err := servicetype.Parse(trimmed)
	if err != nil {
		return nil, err
	}
	return &parsed, nil
}
