package domain

import (
	"context"
	"time"

	"github.com/bwmarrin/snowflake"
	"gorm.io/gorm"
)

type Repository interface {
	InsertPayment(ctx context.Context, db *gorm.DB, payment *Payment) error
	FindPaymentByID(ctx context.Context, db *gorm.DB, id snowflake.ID) (*Payment, error)
	FindPaymentByExternalRef(ctx context.Context, db *gorm.DB, externalRef string) (*Payment, error)
	ListPayments(ctx context.Context, db *gorm.DB, accountID snowflake.ID, afterID *snowflake.ID, limit int) ([]Payment, error)

	// InsertEvent journals a callback. Returns false when the same
	// (provider, provider_event_id) was journaled before.
	InsertEvent(ctx context.Context, db *gorm.DB, event *EventRecord) (bool, error)
	FindEvent(ctx context.Context, db *gorm.DB, provider, providerEventID string) (*EventRecord, error)
	MarkEventProcessed(ctx context.Context, db *gorm.DB, id snowflake.ID, at time.Time) error

	// TransitionStatus moves the payment between states with a guard on
	// the states it may leave. Returns false when the row was already
	// past the guard, which callers treat as "someone else finished it".
	TransitionStatus(ctx context.Context, db *gorm.DB, id snowflake.ID, from []PaymentStatus, to PaymentStatus, reason *string, now time.Time) (bool, error)
}
