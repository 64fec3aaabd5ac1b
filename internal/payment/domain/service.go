package domain

import (
	"context"
	"errors"

	"github.com/shopspring/decimal"
	"github.com/smallbiznis/paygo/pkg/db/pagination"
)

type Service interface {
	// CreateTopup opens a pending payment and hands back the external
	// reference the gateway will echo in its callbacks.
	CreateTopup(ctx context.Context, req TopupRequest) (*Payment, error)

	// ProcessEvent applies one gateway callback. Redelivered or
	// already-settled events return a no-op result, never an error.
	ProcessEvent(ctx context.Context, event *GatewayEvent) (*ProcessResult, error)

	Get(ctx context.Context, id string) (*Payment, error)
	History(ctx context.Context, req HistoryRequest) (*HistoryResponse, error)
}

type TopupRequest struct {
	AccountID   string          `json:"-"`
	Amount      decimal.Decimal `json:"amount"`
	Provider    string          `json:"provider"`
	Description string          `json:"description,omitempty"`
}

// ProcessResult reports what a callback did. Duplicate means the event
// was journaled before; AlreadySettled means the payment had reached a
// terminal state through another event.
type ProcessResult struct {
	Payment        *Payment `json:"payment"`
	Applied        bool     `json:"applied"`
	Duplicate      bool     `json:"duplicate"`
	AlreadySettled bool     `json:"already_settled"`
}

type HistoryRequest struct {
	AccountID string `json:"-"`

	pagination.Pagination
}

type HistoryResponse struct {
	Payments []Payment            `json:"payments"`
	PageInfo *pagination.PageInfo `json:"page_info"`
}

var (
	ErrInvalidAmount     = errors.New("invalid_amount")
	ErrBelowMinimumTopup = errors.New("below_minimum_topup")
	ErrInvalidProvider   = errors.New("invalid_provider")
	ErrInvalidEvent      = errors.New("invalid_event")
	ErrInvalidID         = errors.New("invalid_id")
	ErrNotFound          = errors.New("payment_not_found")
	ErrAccountClosed     = errors.New("account_closed")
	ErrUnknownEventType  = errors.New("unknown_event_type")
	ErrAmountMismatch    = errors.New("amount_mismatch")
)
