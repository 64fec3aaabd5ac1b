package server

import (
	"net/http"

	"github.com/gin-gonic/gin"
	ratingdomain "github.com/smallbiznis/paygo/internal/rating/domain"
)

func (s *Server) EstimateUsage(c *gin.Context) {
	var req ratingdomain.EstimateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}

	resp, err := s.ratingSvc.Estimate(c.Request.Context(), req)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, resp)
}
