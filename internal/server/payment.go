package server

import (
	"encoding/json"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/shopspring/decimal"
	paymentdomain "github.com/smallbiznis/paygo/internal/payment/domain"
)

func (s *Server) CreateTopup(c *gin.Context) {
	var req paymentdomain.TopupRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}
	req.AccountID = strings.TrimSpace(c.Param("id"))

	resp, err := s.paymentSvc.CreateTopup(c.Request.Context(), req)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, resp)
}

func (s *Server) GetPayment(c *gin.Context) {
	resp, err := s.paymentSvc.Get(c.Request.Context(), strings.TrimSpace(c.Param("id")))
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, resp)
}

func (s *Server) ListPayments(c *gin.Context) {
	var req paymentdomain.HistoryRequest
	if err := c.ShouldBindQuery(&req); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}
	req.AccountID = strings.TrimSpace(c.Param("id"))

	resp, err := s.paymentSvc.History(c.Request.Context(), req)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, resp)
}

// webhookPayload is the canonical callback shape providers are bridged
// into before delivery.
type webhookPayload struct {
	EventID     string          `json:"event_id"`
	Type        string          `json:"type"`
	ExternalRef string          `json:"external_ref"`
	Amount      decimal.Decimal `json:"amount"`
	Currency    string          `json:"currency"`
	Reason      string          `json:"reason"`
	OccurredAt  *time.Time      `json:"occurred_at"`
}

func (s *Server) HandlePaymentWebhook(c *gin.Context) {
	provider := strings.TrimSpace(c.Param("provider"))

	raw, err := io.ReadAll(c.Request.Body)
	if err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}

	var payload webhookPayload
	if err := json.Unmarshal(raw, &payload); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}

	event := &paymentdomain.GatewayEvent{
		Provider:        provider,
		ProviderEventID: strings.TrimSpace(payload.EventID),
		Type:            strings.TrimSpace(payload.Type),
		ExternalRef:     strings.TrimSpace(payload.ExternalRef),
		Amount:          payload.Amount,
		Currency:        strings.TrimSpace(payload.Currency),
		Reason:          strings.TrimSpace(payload.Reason),
		RawPayload:      raw,
	}
	if payload.OccurredAt != nil {
		event.OccurredAt = *payload.OccurredAt
	}

	result, err := s.paymentSvc.ProcessEvent(c.Request.Context(), event)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"status":          "ok",
		"applied":         result.Applied,
		"duplicate":       result.Duplicate,
		"already_settled": result.AlreadySettled,
	})
}
