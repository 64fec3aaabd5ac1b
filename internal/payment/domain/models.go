// Package domain contains the payment entities and the reconciliation
// contracts.
package domain

import (
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/shopspring/decimal"
	"gorm.io/datatypes"
)

// PaymentStatus is the reconciliation state of a payment. Completed,
// failed and cancelled are terminal.
type PaymentStatus string

const (
	PaymentStatusPending    PaymentStatus = "pending"
	PaymentStatusProcessing PaymentStatus = "processing"
	PaymentStatusCompleted  PaymentStatus = "completed"
	PaymentStatusFailed     PaymentStatus = "failed"
	PaymentStatusCancelled  PaymentStatus = "cancelled"
)

// PaymentType distinguishes what a settled payment does to the
// balance: topups credit, refunds deduct, adjustments record manual
// corrections already applied to the ledger.
type PaymentType string

const (
	PaymentTypeTopup      PaymentType = "topup"
	PaymentTypeRefund     PaymentType = "refund"
	PaymentTypeAdjustment PaymentType = "adjustment"
)

func (s PaymentStatus) Terminal() bool {
	switch s {
	case PaymentStatusCompleted, PaymentStatusFailed, PaymentStatusCancelled:
		return true
	}
	return false
}

// Payment is a top-up in flight between the gateway and the account
// balance. ExternalRef ties gateway callbacks back to this row.
type Payment struct {
	ID            snowflake.ID    `json:"id" gorm:"primaryKey"`
	AccountID     snowflake.ID    `json:"account_id" gorm:"not null;index"`
	Amount        decimal.Decimal `json:"amount" gorm:"type:numeric(16,4);not null"`
	Currency      string          `json:"currency" gorm:"type:text;not null"`
	Status        PaymentStatus   `json:"status" gorm:"type:text;not null;default:'pending'"`
	Type          PaymentType     `json:"type" gorm:"type:text;not null;default:'topup'"`
	Provider      string          `json:"provider" gorm:"type:text;not null"`
	ExternalRef   string          `json:"external_ref" gorm:"type:text;not null;uniqueIndex:ux_payments_external_ref"`
	Description   string          `json:"description,omitempty" gorm:"type:text"`
	FailureReason *string         `json:"failure_reason,omitempty" gorm:"type:text"`
	CreatedAt     time.Time       `json:"created_at" gorm:"not null;default:CURRENT_TIMESTAMP"`
	UpdatedAt     time.Time       `json:"updated_at" gorm:"not null;default:CURRENT_TIMESTAMP"`
	CompletedAt   *time.Time      `json:"completed_at,omitempty"`
}

func (Payment) TableName() string { return "payments" }

// EventRecord journals every gateway callback. The unique
// (provider, provider_event_id) pair is what makes redelivery a no-op.
type EventRecord struct {
	ID              snowflake.ID   `json:"id" gorm:"primaryKey"`
	Provider        string         `json:"provider" gorm:"type:text;not null;uniqueIndex:ux_payment_events_provider_event,priority:1"`
	ProviderEventID string         `json:"provider_event_id" gorm:"type:text;not null;uniqueIndex:ux_payment_events_provider_event,priority:2"`
	EventType       string         `json:"event_type" gorm:"type:text;not null"`
	PaymentID       snowflake.ID   `json:"payment_id" gorm:"not null;index"`
	Payload         datatypes.JSON `json:"payload" gorm:"type:jsonb"`
	ReceivedAt      time.Time      `json:"received_at" gorm:"not null"`
	ProcessedAt     *time.Time     `json:"processed_at"`
}

func (EventRecord) TableName() string { return "payment_events" }

const (
	EventTypePaymentProcessing = "payment_processing"
	EventTypePaymentSucceeded  = "payment_succeeded"
	EventTypePaymentFailed     = "payment_failed"
	EventTypePaymentCancelled  = "payment_cancelled"
)

// GatewayEvent is the canonical callback parsed from a provider
// webhook. Delivery is at least once; processing must not be.
type GatewayEvent struct {
	Provider        string
	ProviderEventID string
	Type            string
	ExternalRef     string
	Amount          decimal.Decimal
	Currency        string
	Reason          string
	OccurredAt      time.Time
	RawPayload      []byte
}
