package server

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/shopspring/decimal"
	accountdomain "github.com/smallbiznis/paygo/internal/account/domain"
)

func (s *Server) GetBalance(c *gin.Context) {
	resp, err := s.accountSvc.GetBalance(c.Request.Context(), strings.TrimSpace(c.Param("id")))
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, resp)
}

type changeStatusRequest struct {
	Status string `json:"status"`
}

func (s *Server) ChangeAccountStatus(c *gin.Context) {
	var req changeStatusRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}

	status := accountdomain.AccountStatus(strings.TrimSpace(req.Status))
	resp, err := s.accountSvc.ChangeStatus(c.Request.Context(), strings.TrimSpace(c.Param("id")), status)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, resp)
}

type creditLimitRequest struct {
	CreditLimit decimal.Decimal `json:"credit_limit"`
}

func (s *Server) SetCreditLimit(c *gin.Context) {
	var req creditLimitRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}

	resp, err := s.accountSvc.SetCreditLimit(c.Request.Context(), strings.TrimSpace(c.Param("id")), req.CreditLimit)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, resp)
}

func (s *Server) AdjustBalance(c *gin.Context) {
	var req accountdomain.AdjustRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}
	req.AccountID = strings.TrimSpace(c.Param("id"))

	resp, err := s.accountSvc.Adjust(c.Request.Context(), req)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, resp)
}
